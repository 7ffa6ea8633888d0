// Package events provides the in-process publish/subscribe bus that carries
// task lifecycle notifications to observers.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("event bus closed")

// Handler handles a delivered event. Returned errors are logged.
type Handler func(ctx context.Context, event *Event) error

// Config holds configuration for a Bus.
type Config struct {
	// BufferSize is the per-subscription queue length (default: 256).
	// Events published to a full queue are dropped.
	BufferSize int
}

type subscription struct {
	id      uint64
	pattern string
	glob    glob.Glob
	queue   chan *Event
	handler Handler
	once    sync.Once
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.queue) })
}

// Bus fans events out to subscribers whose glob pattern matches the topic.
// Each subscription is served by its own goroutine, so a slow handler never
// blocks publishers or other subscribers, and delivery order per
// subscription matches publish order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool

	bufferSize int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	now        func() time.Time
}

// NewBus creates a new event bus.
func NewBus(cfg *Config) *Bus {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		subs:       make(map[uint64]*subscription),
		bufferSize: cfg.BufferSize,
		ctx:        ctx,
		cancel:     cancel,
		now:        time.Now,
	}
}

// Subscribe registers handler for topics matching pattern, e.g. "task-*" or
// "task-{completed,failed}". The returned function removes the subscription.
func (b *Bus) Subscribe(pattern string, handler Handler) (func(), error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling topic pattern %q: %w", pattern, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	b.nextID++
	sub := &subscription{
		id:      b.nextID,
		pattern: pattern,
		glob:    g,
		queue:   make(chan *Event, b.bufferSize),
		handler: handler,
	}
	b.subs[sub.id] = sub

	b.wg.Add(1)
	go b.deliver(sub)

	log.Debug().
		Str("pattern", pattern).
		Uint64("subscription", sub.id).
		Msg("Handler subscribed")

	return func() { b.unsubscribe(sub.id) }, nil
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		sub.close()
	}
}

// Publish sends payload on topic to every matching subscriber and returns the
// event. It never blocks.
func (b *Bus) Publish(topic Topic, payload any) *Event {
	event := &Event{
		ID:      uuid.New().String(),
		Topic:   topic,
		Time:    b.now().UTC(),
		Payload: payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return event
	}

	for _, sub := range b.subs {
		if !sub.glob.Match(string(topic)) {
			continue
		}
		select {
		case sub.queue <- event:
		default:
			log.Warn().
				Str("topic", string(topic)).
				Str("pattern", sub.pattern).
				Str("event_id", event.ID).
				Msg("Subscriber queue full, dropping event")
		}
	}

	return event
}

// Receivers returns the number of subscriptions matching topic.
func (b *Bus) Receivers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, sub := range b.subs {
		if sub.glob.Match(string(topic)) {
			n++
		}
	}
	return n
}

// Close stops every subscription and waits for handlers to drain their
// queues.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.close()
	}
	b.mu.Unlock()

	b.wg.Wait()
	b.cancel()
}

func (b *Bus) deliver(sub *subscription) {
	defer b.wg.Done()

	for event := range sub.queue {
		b.handle(sub, event)
	}
}

func (b *Bus) handle(sub *subscription, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("topic", string(event.Topic)).
				Str("pattern", sub.pattern).
				Msg("Event handler panicked")
		}
	}()

	if err := sub.handler(b.ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("event_id", event.ID).
			Str("topic", string(event.Topic)).
			Msg("Handler failed")
	}
}
