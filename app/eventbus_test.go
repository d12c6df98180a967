package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus()

	first, unsubFirst := bus.Subscribe()
	second, unsubSecond := bus.Subscribe()
	defer unsubFirst()
	defer unsubSecond()

	bus.Publish(BusMessage{Type: BusMessagePublished, EventID: "abc"})

	msg := <-first
	assert.Equal(t, BusMessagePublished, msg.Type)
	assert.Equal(t, "abc", msg.EventID)
	assert.NotZero(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())

	msg = <-second
	assert.Equal(t, "abc", msg.EventID)
}

func TestEventBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus()

	ch, unsubscribe := bus.Subscribe()
	unsubscribe()

	bus.Publish(BusMessage{Type: BusMessagePublished})
	assert.Empty(t, ch)
}

func TestEventBus_SlowConsumerDoesNotBlock(t *testing.T) {
	bus := NewEventBus()

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	// Overfill the subscriber buffer; Publish must never block.
	for i := 0; i < subscriberBufferSize+10; i++ {
		bus.Publish(BusMessage{Type: BusMessagePublished})
	}

	require.Len(t, ch, subscriberBufferSize)
}
