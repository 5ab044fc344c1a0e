package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_PublishRoutesByType(t *testing.T) {
	bus := NewEventBus()

	var joined, all []Event
	bus.Subscribe(QueueJoined, func(e Event) error {
		joined = append(joined, e)
		return nil
	})
	bus.Subscribe(All, func(e Event) error {
		all = append(all, e)
		return nil
	})

	bus.Publish(Event{Type: QueueJoined, BusinessID: 1, EntityID: 5})
	bus.Publish(Event{Type: OverrideCreated, BusinessID: 2})

	assert.Len(t, joined, 1)
	assert.Equal(t, int64(5), joined[0].EntityID)
	assert.False(t, joined[0].CreatedAt.IsZero())
	assert.Len(t, all, 2)
	assert.Equal(t, int64(2), all[1].BusinessID)
}

func TestEventBus_HandlerErrorsReported(t *testing.T) {
	bus := NewEventBus()
	boom := errors.New("boom")

	var reported error
	bus.OnError(func(_ Event, err error) { reported = err })

	called := false
	bus.Subscribe(QueueStatusChanged, func(Event) error { return boom })
	bus.Subscribe(QueueStatusChanged, func(Event) error {
		called = true
		return nil
	})

	bus.Publish(Event{Type: QueueStatusChanged, BusinessID: 1})
	assert.ErrorIs(t, reported, boom)
	assert.True(t, called, "later handlers still run")
}
