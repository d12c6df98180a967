package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgtype"
)

// Sentinel errors shared by both storage drivers. Handlers distinguish these
// logical outcomes from transport failures with errors.Is.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// firstRetryDelay is the wait before a freshly failed event becomes eligible
// for its first retry.
const firstRetryDelayMinutes = 1

type RegisterServiceParams struct {
	Name string
	URL  string
}

type RegisterEventTypeParams struct {
	Name              string
	Description       string
	PayloadDefinition string
}

type ListenParams struct {
	ServiceName   string
	EventTypeName string
	Endpoint      string
}

type UpdateRetryTimeParams struct {
	EventID   pgtype.UUID
	RetryTime pgtype.Timestamptz
	Retries   int16
}

// Querier is the storage boundary consumed by the broker core. Both the
// Postgres driver and the in-memory store implement it; implementations must
// be safe for concurrent use by the HTTP layer, the delivery worker, and the
// retry scheduler.
type Querier interface {
	RegisterService(ctx context.Context, arg RegisterServiceParams) (Service, error)
	RemoveService(ctx context.Context, name string) error
	GetServiceByName(ctx context.Context, name string) (Service, error)

	RegisterEventType(ctx context.Context, arg RegisterEventTypeParams) (EventType, error)
	GetSchemaForEventType(ctx context.Context, eventType string) (string, error)

	RegisterServiceForEventType(ctx context.Context, arg ListenParams) (Subscription, error)
	GetSubscribersForEventType(ctx context.Context, eventType string) ([]EventSubscriber, error)

	SavePublishedEvent(ctx context.Context, event Event) error
	GetPublishedEvent(ctx context.Context, id pgtype.UUID) (Event, error)
	FulfilEvent(ctx context.Context, id pgtype.UUID) error

	AddFailedEvent(ctx context.Context, event Event) error
	UpdateRetryTime(ctx context.Context, arg UpdateRetryTimeParams) error
	ResolveFailedEvent(ctx context.Context, eventID pgtype.UUID) error
	// GetFailedEvents returns unresolved failed events whose retry_time has
	// passed and whose retry count is below the cap, reconstructed with Retry
	// details populated.
	GetFailedEvents(ctx context.Context) ([]Event, error)
}
