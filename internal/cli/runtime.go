package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/watzon/cadence/internal/archive"
	"github.com/watzon/cadence/internal/config"
	"github.com/watzon/cadence/internal/dispatch"
	"github.com/watzon/cadence/internal/executor"
	"github.com/watzon/cadence/internal/store"
)

// openStore opens the data directory, attaching an archiver when retention
// archiving is enabled.
func openStore(ctx context.Context, c *config.Config) (*store.FileStore, error) {
	var opts []store.Option

	a, err := newArchiver(ctx, &c.Retention.Archive)
	if err != nil {
		return nil, err
	}
	if a != nil {
		opts = append(opts, store.WithArchiver(a))
	}

	fs, err := store.NewFileStore(c.DataDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening data directory: %w", err)
	}
	return fs, nil
}

func newArchiver(ctx context.Context, ac *config.ArchiveConfig) (*archive.Archiver, error) {
	if !ac.Enabled {
		return nil, nil
	}

	switch ac.Driver {
	case "filesystem":
		sink, err := archive.NewFileSink(ac.Path)
		if err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
		log.Debug().Str("path", ac.Path).Msg("Archiving executions to filesystem")
		return archive.New(sink), nil

	case "s3":
		sink, err := archive.NewS3Sink(ctx, archive.S3Options{
			Bucket:          ac.S3.Bucket,
			Prefix:          ac.S3.Prefix,
			Region:          ac.S3.Region,
			Endpoint:        ac.S3.Endpoint,
			AccessKeyID:     ac.S3.AccessKeyID,
			SecretAccessKey: ac.S3.SecretAccessKey,
			ForcePathStyle:  ac.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("creating s3 archive: %w", err)
		}
		log.Debug().Str("bucket", ac.S3.Bucket).Msg("Archiving executions to S3")
		return archive.New(sink), nil

	default:
		return nil, fmt.Errorf("unknown archive driver %q", ac.Driver)
	}
}

// newHook builds the work hook selected by hc.
func newHook(hc *config.HookConfig, bus dispatch.Broadcaster) (executor.Hook, error) {
	switch hc.Driver {
	case "broadcast":
		return dispatch.NewBroadcastHook(bus, hc.RequireReceiver), nil
	case "webhook":
		hook, err := dispatch.NewWebhookHook(dispatch.WebhookConfig{
			URL:     hc.Webhook.URL,
			Timeout: hc.Webhook.Timeout,
			Retries: hc.Webhook.Retries,
			Headers: hc.Webhook.Headers,
		})
		if err != nil {
			return nil, err
		}
		return hook, nil
	default:
		return nil, fmt.Errorf("unknown hook driver %q", hc.Driver)
	}
}
