// Package archive writes executions removed by retention cleanup to
// zstd-compressed JSON Lines files.
package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/watzon/cadence/internal/task"
)

// Extension is appended to every archive object name.
const Extension = ".jsonl.zst"

// Sink stores an encoded archive under key.
type Sink interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Archiver encodes execution batches and hands them to a Sink.
type Archiver struct {
	sink Sink
	now  func() time.Time
}

// New creates an Archiver writing to sink.
func New(sink Sink) *Archiver {
	return &Archiver{sink: sink, now: time.Now}
}

// Key returns the object name for an archive written at t.
func Key(t time.Time) string {
	return fmt.Sprintf("executions-%d%s", t.UnixMilli(), Extension)
}

// Archive encodes executions and stores them as a single object.
func (a *Archiver) Archive(ctx context.Context, executions []*task.Execution) error {
	if len(executions) == 0 {
		return nil
	}

	data, err := Encode(executions)
	if err != nil {
		return err
	}

	key := Key(a.now())
	if err := a.sink.Put(ctx, key, data); err != nil {
		return fmt.Errorf("storing archive %s: %w", key, err)
	}

	log.Debug().
		Str("key", key).
		Int("executions", len(executions)).
		Int("bytes", len(data)).
		Msg("Archived executions")
	return nil
}

// Encode writes one JSON object per line and compresses the result.
func Encode(executions []*task.Execution) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}

	jw := json.NewEncoder(enc)
	for _, e := range executions {
		if err := jw.Encode(e); err != nil {
			_ = enc.Close()
			return nil, fmt.Errorf("encoding execution %s: %w", e.ID, err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("flushing zstd encoder: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads an archive produced by Encode.
func Decode(r io.Reader) ([]*task.Execution, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	var out []*task.Execution
	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e task.Execution
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("decoding archived execution: %w", err)
		}
		out = append(out, &e)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	return out, nil
}
