package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sweater-ventures/ventrix/db"
)

// ErrSchemaMissing is returned by Publish when no event type with the given
// name has been registered.
var ErrSchemaMissing = errors.New("no schema registered for event type")

// PayloadMismatchError is returned by Publish when the payload does not
// conform to the registered schema. Schema carries the expected payload
// definition so handlers can echo it to the caller.
type PayloadMismatchError struct {
	EventType string
	Schema    string
}

func (e *PayloadMismatchError) Error() string {
	return fmt.Sprintf("payload does not match the schema registered for event type %q", e.EventType)
}

// Publish validates the payload against the registered schema, persists the
// event, and enqueues it for asynchronous delivery. The events_published row
// exists before the event reaches the dispatch channel; a full channel blocks
// the caller rather than dropping the event. Sending on a closed channel
// panics, which is the designed fatal outcome: the channel closes only during
// shutdown.
func (ventrix *Application) Publish(ctx context.Context, eventType string, payload string) (db.Event, error) {
	event := db.Event{
		ID:        NewUUID(),
		EventType: eventType,
		Payload:   payload,
	}

	schemaStr, err := ventrix.DB.GetSchemaForEventType(ctx, eventType)
	if errors.Is(err, db.ErrNotFound) {
		return db.Event{}, ErrSchemaMissing
	}
	if err != nil {
		return db.Event{}, fmt.Errorf("fetching schema for event type %q: %w", eventType, err)
	}

	if !ventrix.ValidatePayload(payload, schemaStr) {
		return db.Event{}, &PayloadMismatchError{EventType: eventType, Schema: schemaStr}
	}

	if err := ventrix.DB.SavePublishedEvent(ctx, event); err != nil {
		return db.Event{}, fmt.Errorf("saving published event: %w", err)
	}

	log(ctx).Info("Event accepted for delivery",
		"event_id", UuidToString(event.ID),
		"event_type", eventType,
	)

	ventrix.DeliveryChan <- event

	ventrix.EventBus.Publish(BusMessage{
		Type:      BusMessagePublished,
		EventID:   UuidToString(event.ID),
		EventType: eventType,
	})

	return event, nil
}
