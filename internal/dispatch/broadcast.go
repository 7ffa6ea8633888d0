package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/cadence/internal/events"
	"github.com/watzon/cadence/internal/task"
)

// ErrNoReceivers is returned when a receiver is required but nobody is
// subscribed to task-dispatch.
var ErrNoReceivers = errors.New("no receivers for task dispatch")

// Broadcaster is the event bus surface used by BroadcastHook.
type Broadcaster interface {
	Publish(topic events.Topic, payload any) *events.Event
	Receivers(topic events.Topic) int
}

// BroadcastHook publishes every request on the task-dispatch topic. Work
// processes connected to the event stream pick it up from there.
type BroadcastHook struct {
	bus             Broadcaster
	requireReceiver bool
	now             func() time.Time
}

// NewBroadcastHook creates a hook publishing to bus. With requireReceiver
// set, a dispatch with no subscriber fails instead of being silently lost.
func NewBroadcastHook(bus Broadcaster, requireReceiver bool) *BroadcastHook {
	return &BroadcastHook{bus: bus, requireReceiver: requireReceiver, now: time.Now}
}

func (h *BroadcastHook) Dispatch(_ context.Context, t *task.ScheduledTask, e *task.Execution) error {
	receivers := h.bus.Receivers(events.TopicTaskDispatch)
	if receivers == 0 {
		if h.requireReceiver {
			return fmt.Errorf("%w: %w", task.ErrDispatch, ErrNoReceivers)
		}
		log.Warn().
			Str("task_id", t.ID).
			Str("execution_id", e.ID).
			Msg("Dispatching task with no receivers")
	}

	h.bus.Publish(events.TopicTaskDispatch, NewRequest(t, e, h.now()))

	log.Debug().
		Str("task_id", t.ID).
		Str("execution_id", e.ID).
		Int("receivers", receivers).
		Msg("Task dispatch broadcast")
	return nil
}
