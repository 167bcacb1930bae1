package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishStampsAndFansOut(t *testing.T) {
	bus := NewBus()
	a, cancelA := bus.Subscribe(1)
	b, cancelB := bus.Subscribe(1)
	defer cancelB()

	bus.Publish(Event{Kind: EventSyncStarted})

	evA := <-a
	evB := <-b
	assert.Equal(t, EventSyncStarted, evA.Kind)
	assert.NotEmpty(t, evA.ID)
	assert.False(t, evA.Time.IsZero())
	assert.Equal(t, evA.ID, evB.ID)

	cancelA()
	_, open := <-a
	assert.False(t, open)
	cancelA()
}

func TestBus_FullSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Publish(Event{Kind: EventSyncStarted})
	bus.Publish(Event{Kind: EventSyncCompleted})

	ev := <-ch
	assert.Equal(t, EventSyncStarted, ev.Kind)
	assert.Len(t, ch, 0)
}
