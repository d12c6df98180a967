package testutil

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sweater-ventures/ventrix/app"
	"github.com/sweater-ventures/ventrix/config"
	"github.com/sweater-ventures/ventrix/db"
	"github.com/sweater-ventures/ventrix/schema"
)

// NewUUID returns a pgtype.UUID with a new random UUID.
func NewUUID() pgtype.UUID {
	return pgtype.UUID{Bytes: uuid.Must(uuid.NewV7()), Valid: true}
}

// NewTimestamp returns a pgtype.Timestamptz set to now.
func NewTimestamp() pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true}
}

// AddressBookDefinition is a payload definition matching AddressBookPayload.
const AddressBookDefinition = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"phone_number": {"type": "string"}
	},
	"required": ["name", "phone_number"]
}`

// AddressBookPayload conforms to AddressBookDefinition.
const AddressBookPayload = `{"name": "Ada Lovelace", "phone_number": "555-0100"}`

// EventOpt is a functional option for building test Events.
type EventOpt func(*db.Event)

// NewEvent creates a db.Event with sensible defaults. Use options to override.
func NewEvent(opts ...EventOpt) db.Event {
	e := db.Event{
		ID:        NewUUID(),
		EventType: "test.event",
		Payload:   AddressBookPayload,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// WithRetry marks the event as a retry in flight.
func WithRetry(count int16, retryTime time.Time) EventOpt {
	return func(e *db.Event) {
		e.Retry = &db.RetryDetails{RetryCount: count, RetryTime: retryTime}
	}
}

// ServiceOpt is a functional option for building test Services.
type ServiceOpt func(*db.Service)

// NewService creates a db.Service with sensible defaults.
func NewService(opts ...ServiceOpt) db.Service {
	s := db.Service{
		ID:   NewUUID(),
		Name: "test-service",
		URL:  "https://example.com",
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// SubscriberOpt is a functional option for building test EventSubscribers.
type SubscriberOpt func(*db.EventSubscriber)

// NewEventSubscriber creates a db.EventSubscriber with sensible defaults.
func NewEventSubscriber(opts ...SubscriberOpt) db.EventSubscriber {
	s := db.EventSubscriber{
		ServiceName: "test-service",
		ServiceURL:  "https://example.com",
		Endpoint:    "/webhook",
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// AppOpt is a functional option for building test Applications.
type AppOpt func(*app.Application)

// NewTestApp creates an app.Application suitable for testing.
// It uses the provided Querier (a MockQuerier or a MemoryStore) and
// sensible config defaults.
func NewTestApp(store db.Querier, opts ...AppOpt) *app.Application {
	a := &app.Application{
		Config: config.AppConfig{
			Port:                   8030,
			ValidateEventDef:       true,
			RetryCap:               3,
			RetryIntervalSeconds:   1,
			QueueSize:              50,
			DeliveryTimeoutSeconds: 5,
		},
		DB:              store,
		DeliveryChan:    make(chan db.Event, 50),
		EventBus:        app.NewEventBus(),
		ValidatePayload: schema.PayloadIsValid,
		Client:          &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}
