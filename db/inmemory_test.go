package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *MemoryStore {
	return NewMemoryStore(3)
}

func TestRegisterService_DuplicateName(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	service, err := store.RegisterService(ctx, RegisterServiceParams{Name: "billing", URL: "http://localhost:9000"})
	require.NoError(t, err)
	assert.True(t, service.ID.Valid)
	assert.Equal(t, "billing", service.Name)

	_, err = store.RegisterService(ctx, RegisterServiceParams{Name: "billing", URL: "http://localhost:9001"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestRemoveService_NotFound(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	err := store.RemoveService(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.RegisterService(ctx, RegisterServiceParams{Name: "billing", URL: "http://localhost:9000"})
	require.NoError(t, err)
	require.NoError(t, store.RemoveService(ctx, "billing"))

	_, err = store.GetServiceByName(ctx, "billing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterEventType_DuplicateName(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	def := `{"type":"object","properties":{},"required":[]}`
	eventType, err := store.RegisterEventType(ctx, RegisterEventTypeParams{
		Name:              "user.created",
		Description:       "a user was created",
		PayloadDefinition: def,
	})
	require.NoError(t, err)
	assert.True(t, eventType.ID.Valid)

	_, err = store.RegisterEventType(ctx, RegisterEventTypeParams{Name: "user.created", PayloadDefinition: def})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	schema, err := store.GetSchemaForEventType(ctx, "user.created")
	require.NoError(t, err)
	assert.Equal(t, def, schema)

	_, err = store.GetSchemaForEventType(ctx, "user.deleted")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterServiceForEventType(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.RegisterServiceForEventType(ctx, ListenParams{
		ServiceName:   "billing",
		EventTypeName: "user.created",
		Endpoint:      "/hooks/user",
	})
	assert.ErrorIs(t, err, ErrNotFound, "neither name registered yet")

	_, err = store.RegisterEventType(ctx, RegisterEventTypeParams{Name: "user.created", PayloadDefinition: "{}"})
	require.NoError(t, err)
	_, err = store.RegisterService(ctx, RegisterServiceParams{Name: "billing", URL: "http://localhost:9000"})
	require.NoError(t, err)

	sub, err := store.RegisterServiceForEventType(ctx, ListenParams{
		ServiceName:   "billing",
		EventTypeName: "user.created",
		Endpoint:      "/hooks/user",
	})
	require.NoError(t, err)
	assert.Equal(t, "/hooks/user", sub.Endpoint)

	subscribers, err := store.GetSubscribersForEventType(ctx, "user.created")
	require.NoError(t, err)
	require.Len(t, subscribers, 1)
	assert.Equal(t, "billing", subscribers[0].ServiceName)
	assert.Equal(t, "http://localhost:9000", subscribers[0].ServiceURL)
	assert.Equal(t, "/hooks/user", subscribers[0].Endpoint)
}

func TestGetSubscribersForEventType_NoSubscribers(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	subscribers, err := store.GetSubscribersForEventType(ctx, "nobody.listens")
	require.NoError(t, err)
	assert.Empty(t, subscribers)
}

func TestSavePublishedEvent_Duplicate(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	event := Event{ID: newUUID(), EventType: "user.created", Payload: `{"a":1}`}
	require.NoError(t, store.SavePublishedEvent(ctx, event))
	assert.ErrorIs(t, store.SavePublishedEvent(ctx, event), ErrAlreadyExists)
}

func TestSavePublishedEvent_StripsRetryDetails(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	event := Event{
		ID:        newUUID(),
		EventType: "user.created",
		Payload:   `{"a":1}`,
		Retry:     &RetryDetails{RetryCount: 2, RetryTime: time.Now()},
	}
	require.NoError(t, store.SavePublishedEvent(ctx, event))

	stored, err := store.GetPublishedEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Retry)
	assert.False(t, stored.FulfilledAt.Valid)
}

func TestFulfilEvent(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	event := Event{ID: newUUID(), EventType: "user.created", Payload: `{}`}
	require.NoError(t, store.SavePublishedEvent(ctx, event))

	require.NoError(t, store.FulfilEvent(ctx, event.ID))

	stored, err := store.GetPublishedEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.True(t, stored.FulfilledAt.Valid)

	assert.ErrorIs(t, store.FulfilEvent(ctx, newUUID()), ErrNotFound)
}

func TestAddFailedEvent_Defaults(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	event := Event{ID: newUUID(), EventType: "user.created", Payload: `{}`}
	require.NoError(t, store.SavePublishedEvent(ctx, event))
	require.NoError(t, store.AddFailedEvent(ctx, event))

	failed, err := store.GetFailedEventRecord(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, int16(0), failed.Retries)
	assert.False(t, failed.ResolvedAt.Valid)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Minute), failed.RetryTime.Time, 5*time.Second)
}

func TestGetFailedEvents_Filtering(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	past := pgtype.Timestamptz{Time: time.Now().UTC().Add(-time.Minute), Valid: true}
	future := pgtype.Timestamptz{Time: time.Now().UTC().Add(time.Hour), Valid: true}

	due := Event{ID: newUUID(), EventType: "due", Payload: `{}`}
	notDue := Event{ID: newUUID(), EventType: "not.due", Payload: `{}`}
	capped := Event{ID: newUUID(), EventType: "capped", Payload: `{}`}
	resolved := Event{ID: newUUID(), EventType: "resolved", Payload: `{}`}

	for _, e := range []Event{due, notDue, capped, resolved} {
		require.NoError(t, store.SavePublishedEvent(ctx, e))
		require.NoError(t, store.AddFailedEvent(ctx, e))
	}

	require.NoError(t, store.UpdateRetryTime(ctx, UpdateRetryTimeParams{EventID: due.ID, RetryTime: past, Retries: 1}))
	require.NoError(t, store.UpdateRetryTime(ctx, UpdateRetryTimeParams{EventID: notDue.ID, RetryTime: future, Retries: 1}))
	require.NoError(t, store.UpdateRetryTime(ctx, UpdateRetryTimeParams{EventID: capped.ID, RetryTime: past, Retries: 3}))
	require.NoError(t, store.UpdateRetryTime(ctx, UpdateRetryTimeParams{EventID: resolved.ID, RetryTime: past, Retries: 1}))
	require.NoError(t, store.ResolveFailedEvent(ctx, resolved.ID))

	events, err := store.GetFailedEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, due.ID, events[0].ID)
	require.NotNil(t, events[0].Retry)
	assert.Equal(t, int16(1), events[0].Retry.RetryCount)
	assert.Equal(t, past.Time, events[0].Retry.RetryTime)
}

func TestResolveFailedEvent_NotFound(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	assert.ErrorIs(t, store.ResolveFailedEvent(ctx, newUUID()), ErrNotFound)
	assert.ErrorIs(t, store.UpdateRetryTime(ctx, UpdateRetryTimeParams{EventID: newUUID()}), ErrNotFound)
}
