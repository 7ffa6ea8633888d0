package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []*Event
}

func (c *collector) handle(_ context.Context, e *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *collector) topics() []Topic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Topic, len(c.events))
	for i, e := range c.events {
		out[i] = e.Topic
	}
	return out
}

func TestBus_GlobRouting(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	all, outcomes, created := &collector{}, &collector{}, &collector{}
	_, err := bus.Subscribe("task-*", all.handle)
	require.NoError(t, err)
	_, err = bus.Subscribe("task-{completed,failed}", outcomes.handle)
	require.NoError(t, err)
	_, err = bus.Subscribe(string(TopicTaskCreated), created.handle)
	require.NoError(t, err)

	bus.Publish(TopicTaskCreated, nil)
	bus.Publish(TopicTaskStarted, nil)
	bus.Publish(TopicTaskCompleted, nil)
	bus.Publish(TopicTaskFailed, nil)

	require.Eventually(t, func() bool { return len(all.topics()) == 4 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(outcomes.topics()) == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(created.topics()) == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []Topic{TopicTaskCreated, TopicTaskStarted, TopicTaskCompleted, TopicTaskFailed}, all.topics())
	assert.Equal(t, []Topic{TopicTaskCompleted, TopicTaskFailed}, outcomes.topics())
}

func TestBus_PublishStampsEvent(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	bus.now = func() time.Time { return at }

	e := bus.Publish(TopicTaskDeleted, TaskRef{TaskID: "t1"})
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, at, e.Time)
	assert.Equal(t, TaskRef{TaskID: "t1"}, e.Payload)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	c := &collector{}
	unsubscribe, err := bus.Subscribe("*", c.handle)
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Receivers(TopicTaskUpdated))

	unsubscribe()
	unsubscribe()
	assert.Zero(t, bus.Receivers(TopicTaskUpdated))

	bus.Publish(TopicTaskUpdated, nil)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.topics())
}

func TestBus_Receivers(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	noop := func(context.Context, *Event) error { return nil }
	_, err := bus.Subscribe("task-dispatch", noop)
	require.NoError(t, err)
	_, err = bus.Subscribe("task-*", noop)
	require.NoError(t, err)

	assert.Equal(t, 2, bus.Receivers(TopicTaskDispatch))
	assert.Equal(t, 1, bus.Receivers(TopicTaskCreated))
	assert.Zero(t, bus.Receivers("other"))
}

func TestBus_InvalidPattern(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	_, err := bus.Subscribe("task-[", func(context.Context, *Event) error { return nil })
	assert.Error(t, err)
}

func TestBus_HandlerErrorsAndPanicsAreContained(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	var calls int
	var mu sync.Mutex
	_, err := bus.Subscribe("*", func(_ context.Context, e *Event) error {
		mu.Lock()
		calls++
		mu.Unlock()
		if e.Topic == TopicTaskFailed {
			panic("handler bug")
		}
		return errors.New("handler error")
	})
	require.NoError(t, err)

	bus.Publish(TopicTaskFailed, nil)
	bus.Publish(TopicTaskCreated, nil)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, time.Second, 5*time.Millisecond)
}

func TestBus_DropsWhenQueueFull(t *testing.T) {
	bus := NewBus(&Config{BufferSize: 1})

	release := make(chan struct{})
	var mu sync.Mutex
	var got int
	_, err := bus.Subscribe("*", func(context.Context, *Event) error {
		<-release
		mu.Lock()
		got++
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	for range 10 {
		bus.Publish(TopicTaskStarted, nil)
	}
	close(release)
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Less(t, got, 10)
	assert.GreaterOrEqual(t, got, 1)
}

func TestBus_Close(t *testing.T) {
	bus := NewBus(nil)
	c := &collector{}
	_, err := bus.Subscribe("*", c.handle)
	require.NoError(t, err)

	bus.Publish(TopicTaskCreated, nil)
	bus.Close()
	bus.Close()

	assert.Len(t, c.topics(), 1, "queued events drain before Close returns")

	_, err = bus.Subscribe("*", c.handle)
	assert.ErrorIs(t, err, ErrClosed)

	bus.Publish(TopicTaskCreated, nil)
	assert.Len(t, c.topics(), 1)
}
