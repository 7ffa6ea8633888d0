package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/watzon/cadence/internal/events"
	"github.com/watzon/cadence/internal/metrics"
)

const (
	defaultTopicPattern = "task-*"
	eventWriteTimeout   = 10 * time.Second
	eventPingInterval   = 30 * time.Second
)

// EventSource is the subscription side of the event bus.
type EventSource interface {
	Subscribe(pattern string, handler events.Handler) (func(), error)
}

// EventHandlers streams bus events to WebSocket clients.
type EventHandlers struct {
	source EventSource
}

// NewEventHandlers creates event stream handlers.
func NewEventHandlers(source EventSource) *EventHandlers {
	return &EventHandlers{source: source}
}

// Stream handles GET /api/events. The topics query parameter is a comma
// separated list of glob patterns and defaults to "task-*". Each event is
// sent as one JSON text message.
func (h *EventHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	patterns := parseTopics(r.URL.Query().Get("topics"))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to accept WebSocket connection")
		return
	}
	defer conn.CloseNow()

	// The stream is write-only; CloseRead handles control frames and
	// cancels ctx when the client goes away.
	ctx := conn.CloseRead(r.Context())

	send := func(_ context.Context, event *events.Event) error {
		if ctx.Err() != nil {
			return nil
		}
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		writeCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
		defer cancel()
		if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil && ctx.Err() == nil {
			log.Debug().Err(err).Str("topic", string(event.Topic)).Msg("WebSocket write error")
		}
		return nil
	}

	var unsubscribes []func()
	defer func() {
		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
	}()
	for _, pattern := range patterns {
		unsubscribe, err := h.source.Subscribe(pattern, send)
		if err != nil {
			conn.Close(websocket.StatusPolicyViolation, "invalid topic pattern")
			return
		}
		unsubscribes = append(unsubscribes, unsubscribe)
	}

	metrics.IncrementEventStreams()
	defer metrics.DecrementEventStreams()

	log.Debug().Strs("topics", patterns).Msg("Event stream opened")

	ticker := time.NewTicker(eventPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Strs("topics", patterns).Msg("Event stream closed")
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func parseTopics(raw string) []string {
	var patterns []string
	depth := 0
	start := 0
	// Commas inside {a,b} alternatives belong to the pattern.
	for i, c := range raw {
		switch c {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				patterns = appendPattern(patterns, raw[start:i])
				start = i + 1
			}
		}
	}
	patterns = appendPattern(patterns, raw[start:])

	if len(patterns) == 0 {
		return []string{defaultTopicPattern}
	}
	return patterns
}

func appendPattern(patterns []string, p string) []string {
	if p = strings.TrimSpace(p); p != "" {
		patterns = append(patterns, p)
	}
	return patterns
}
