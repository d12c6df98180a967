package db

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Service is a registered external HTTP endpoint that may subscribe to event
// types. Name is unique.
type Service struct {
	ID   pgtype.UUID
	Name string
	URL  string
}

// EventType is a named schema descriptor governing payloads. Name is unique
// and the row is immutable once created.
type EventType struct {
	ID                pgtype.UUID
	Name              string
	Description       string
	PayloadDefinition string
}

// Subscription associates an event type with a service and the callback path
// appended to the service URL to form the delivery target.
type Subscription struct {
	ID          pgtype.UUID
	EventTypeID pgtype.UUID
	ServiceID   pgtype.UUID
	Endpoint    string
}

// EventSubscriber is the joined view the delivery worker needs: one row per
// subscription of an event type.
type EventSubscriber struct {
	ServiceName string
	ServiceURL  string
	Endpoint    string
}

// RetryDetails is present on an Event only while it is in flight as a retry.
// RetryCount is the number of retry attempts already made; RetryTime is the
// earliest instant the scheduler may re-inject the event.
type RetryDetails struct {
	RetryCount int16     `json:"retry_count"`
	RetryTime  time.Time `json:"retry_time"`
}

// Event is the canonical published event record.
type Event struct {
	ID          pgtype.UUID
	EventType   string
	Payload     string
	FulfilledAt pgtype.Timestamptz
	Retry       *RetryDetails
}

// FailedEvent tracks the retry state of an event that had at least one
// non-2xx delivery. ResolvedAt stays null while retries are pending.
type FailedEvent struct {
	ID         pgtype.UUID
	EventID    pgtype.UUID
	RetryTime  pgtype.Timestamptz
	Retries    int16
	ResolvedAt pgtype.Timestamptz
	CreatedAt  pgtype.Timestamptz
}
