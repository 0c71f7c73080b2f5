package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestEventBusDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewEventBus(zap.NewNop())

	var order []string
	bus.Subscribe(func(Event) { order = append(order, "first") })
	bus.Subscribe(func(Event) { order = append(order, "second") })

	bus.Emit(Event{Kind: EventPublished, ContentID: "c1"})

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestEventBusIsolatesPanickingSubscriber(t *testing.T) {
	bus := NewEventBus(zap.NewNop())

	var delivered bool
	bus.Subscribe(func(Event) { panic("subscriber bug") })
	bus.Subscribe(func(Event) { delivered = true })

	assert.NotPanics(t, func() {
		bus.Emit(Event{Kind: EventPublishFailed, ContentID: "c1", Reason: "boom"})
	})
	assert.True(t, delivered, "a broken subscriber must not starve the others")
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus(zap.NewNop())

	assert.NotPanics(t, func() {
		bus.Emit(Event{Kind: EventPublished, ContentID: "c1"})
	})
}
