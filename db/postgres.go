package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Querier on a pgx connection pool.
type PostgresStore struct {
	pool     *pgxpool.Pool
	retryCap int16
}

var _ Querier = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool, retryCap int) *PostgresStore {
	return &PostgresStore{pool: pool, retryCap: int16(retryCap)}
}

// uniqueViolation is the Postgres error code for a unique constraint breach.
const uniqueViolation = "23505"

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrAlreadyExists
	}
	return err
}

func newUUID() pgtype.UUID {
	return pgtype.UUID{Bytes: uuid.New(), Valid: true}
}

func (s *PostgresStore) RegisterService(ctx context.Context, arg RegisterServiceParams) (Service, error) {
	service := Service{ID: newUUID(), Name: arg.Name, URL: arg.URL}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO services (id, name, url) VALUES ($1, $2, $3)`,
		service.ID, service.Name, service.URL,
	)
	if err != nil {
		return Service{}, mapPgError(err)
	}
	return service, nil
}

func (s *PostgresStore) RemoveService(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM services WHERE name = $1`, name)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetServiceByName(ctx context.Context, name string) (Service, error) {
	var service Service
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, url FROM services WHERE name = $1`, name,
	).Scan(&service.ID, &service.Name, &service.URL)
	if err != nil {
		return Service{}, mapPgError(err)
	}
	return service, nil
}

func (s *PostgresStore) RegisterEventType(ctx context.Context, arg RegisterEventTypeParams) (EventType, error) {
	eventType := EventType{
		ID:                newUUID(),
		Name:              arg.Name,
		Description:       arg.Description,
		PayloadDefinition: arg.PayloadDefinition,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO event_types (id, name, description, payload_definition) VALUES ($1, $2, $3, $4)`,
		eventType.ID, eventType.Name, eventType.Description, eventType.PayloadDefinition,
	)
	if err != nil {
		return EventType{}, mapPgError(err)
	}
	return eventType, nil
}

func (s *PostgresStore) GetSchemaForEventType(ctx context.Context, eventType string) (string, error) {
	var schema string
	err := s.pool.QueryRow(ctx,
		`SELECT payload_definition FROM event_types WHERE name = $1`, eventType,
	).Scan(&schema)
	if err != nil {
		return "", mapPgError(err)
	}
	return schema, nil
}

func (s *PostgresStore) RegisterServiceForEventType(ctx context.Context, arg ListenParams) (Subscription, error) {
	id := newUUID()
	var sub Subscription
	err := s.pool.QueryRow(ctx,
		`WITH event_type AS (
			SELECT id FROM event_types WHERE name = $2
		),
		service AS (
			SELECT id FROM services WHERE name = $3
		)
		INSERT INTO event_type_to_service (id, event_type_id, service_id, endpoint)
		VALUES ($1, (SELECT id FROM event_type), (SELECT id FROM service), $4)
		RETURNING id, event_type_id, service_id, endpoint`,
		id, arg.EventTypeName, arg.ServiceName, arg.Endpoint,
	).Scan(&sub.ID, &sub.EventTypeID, &sub.ServiceID, &sub.Endpoint)
	if err != nil {
		return Subscription{}, mapPgError(err)
	}
	return sub, nil
}

func (s *PostgresStore) GetSubscribersForEventType(ctx context.Context, eventType string) ([]EventSubscriber, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT services.name, services.url, event_type_to_service.endpoint
		FROM services
		INNER JOIN event_type_to_service ON event_type_to_service.service_id = services.id
		INNER JOIN event_types ON event_type_to_service.event_type_id = event_types.id
		WHERE event_types.name = $1`,
		eventType,
	)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var subscribers []EventSubscriber
	for rows.Next() {
		var sub EventSubscriber
		if err := rows.Scan(&sub.ServiceName, &sub.ServiceURL, &sub.Endpoint); err != nil {
			return nil, fmt.Errorf("scanning subscriber row: %w", err)
		}
		subscribers = append(subscribers, sub)
	}
	return subscribers, rows.Err()
}

func (s *PostgresStore) SavePublishedEvent(ctx context.Context, event Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events_published (id, event_type, payload) VALUES ($1, $2, $3)`,
		event.ID, event.EventType, event.Payload,
	)
	return mapPgError(err)
}

func (s *PostgresStore) GetPublishedEvent(ctx context.Context, id pgtype.UUID) (Event, error) {
	var event Event
	err := s.pool.QueryRow(ctx,
		`SELECT id, event_type, payload, fulfilled_at FROM events_published WHERE id = $1`, id,
	).Scan(&event.ID, &event.EventType, &event.Payload, &event.FulfilledAt)
	if err != nil {
		return Event{}, mapPgError(err)
	}
	return event, nil
}

func (s *PostgresStore) FulfilEvent(ctx context.Context, id pgtype.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE events_published SET fulfilled_at = NOW() WHERE id = $1`, id,
	)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AddFailedEvent(ctx context.Context, event Event) error {
	retryTime := time.Now().UTC().Add(firstRetryDelayMinutes * time.Minute)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO failed_events (id, event_id, retry_time, retries, created_at)
		VALUES ($1, $2, $3, 0, NOW())`,
		newUUID(), event.ID, pgtype.Timestamptz{Time: retryTime, Valid: true},
	)
	return mapPgError(err)
}

func (s *PostgresStore) UpdateRetryTime(ctx context.Context, arg UpdateRetryTimeParams) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE failed_events SET retry_time = $1, retries = $2 WHERE event_id = $3`,
		arg.RetryTime, arg.Retries, arg.EventID,
	)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ResolveFailedEvent(ctx context.Context, eventID pgtype.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE failed_events SET resolved_at = NOW() WHERE event_id = $1`, eventID,
	)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetFailedEvents(ctx context.Context) ([]Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT e.id, e.event_type, e.payload, e.fulfilled_at, f.retry_time, f.retries
		FROM events_published AS e
		INNER JOIN failed_events AS f ON e.id = f.event_id
		WHERE f.resolved_at IS NULL AND f.retries < $1 AND f.retry_time <= NOW()`,
		s.retryCap,
	)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var retryTime pgtype.Timestamptz
		var retries int16
		if err := rows.Scan(&event.ID, &event.EventType, &event.Payload, &event.FulfilledAt, &retryTime, &retries); err != nil {
			return nil, fmt.Errorf("scanning failed event row: %w", err)
		}
		event.Retry = &RetryDetails{RetryCount: retries, RetryTime: retryTime.Time}
		events = append(events, event)
	}
	return events, rows.Err()
}
