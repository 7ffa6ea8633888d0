package dispatch

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/watzon/cadence/internal/task"
)

// WebhookConfig configures a WebhookHook.
type WebhookConfig struct {
	URL       string
	Timeout   time.Duration
	Retries   int
	RetryWait time.Duration
	Headers   map[string]string
}

// WebhookHook POSTs every request as JSON to a fixed URL. Transport errors
// and 5xx responses are retried; any other non-2xx response fails the
// dispatch.
type WebhookHook struct {
	client *resty.Client
	url    string
	now    func() time.Time
}

// NewWebhookHook validates cfg and builds the HTTP client.
func NewWebhookHook(cfg WebhookConfig) (*WebhookHook, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid webhook url %q", cfg.URL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "cadence-scheduler").
		SetHeaders(cfg.Headers).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(10 * cfg.RetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || (r != nil && r.StatusCode() >= 500)
		})

	return &WebhookHook{client: client, url: u.String(), now: time.Now}, nil
}

func (h *WebhookHook) Dispatch(ctx context.Context, t *task.ScheduledTask, e *task.Execution) error {
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(NewRequest(t, e, h.now())).
		Post(h.url)
	if err != nil {
		return fmt.Errorf("%w: posting webhook: %w", task.ErrDispatch, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: webhook returned %d", task.ErrDispatch, resp.StatusCode())
	}

	log.Debug().
		Str("task_id", t.ID).
		Str("execution_id", e.ID).
		Int("status", resp.StatusCode()).
		Dur("elapsed", resp.Time()).
		Msg("Webhook dispatched")
	return nil
}
