package testutil

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/mock"
	"github.com/sweater-ventures/ventrix/db"
)

// MockQuerier is a testify mock implementation of db.Querier.
type MockQuerier struct {
	mock.Mock
}

var _ db.Querier = (*MockQuerier)(nil)

func (m *MockQuerier) RegisterService(ctx context.Context, arg db.RegisterServiceParams) (db.Service, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(db.Service), args.Error(1)
}

func (m *MockQuerier) RemoveService(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockQuerier) GetServiceByName(ctx context.Context, name string) (db.Service, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(db.Service), args.Error(1)
}

func (m *MockQuerier) RegisterEventType(ctx context.Context, arg db.RegisterEventTypeParams) (db.EventType, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(db.EventType), args.Error(1)
}

func (m *MockQuerier) GetSchemaForEventType(ctx context.Context, eventType string) (string, error) {
	args := m.Called(ctx, eventType)
	return args.Get(0).(string), args.Error(1)
}

func (m *MockQuerier) RegisterServiceForEventType(ctx context.Context, arg db.ListenParams) (db.Subscription, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(db.Subscription), args.Error(1)
}

func (m *MockQuerier) GetSubscribersForEventType(ctx context.Context, eventType string) ([]db.EventSubscriber, error) {
	args := m.Called(ctx, eventType)
	return args.Get(0).([]db.EventSubscriber), args.Error(1)
}

func (m *MockQuerier) SavePublishedEvent(ctx context.Context, event db.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockQuerier) GetPublishedEvent(ctx context.Context, id pgtype.UUID) (db.Event, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(db.Event), args.Error(1)
}

func (m *MockQuerier) FulfilEvent(ctx context.Context, id pgtype.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockQuerier) AddFailedEvent(ctx context.Context, event db.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockQuerier) UpdateRetryTime(ctx context.Context, arg db.UpdateRetryTimeParams) error {
	args := m.Called(ctx, arg)
	return args.Error(0)
}

func (m *MockQuerier) ResolveFailedEvent(ctx context.Context, eventID pgtype.UUID) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func (m *MockQuerier) GetFailedEvents(ctx context.Context) ([]db.Event, error) {
	args := m.Called(ctx)
	return args.Get(0).([]db.Event), args.Error(1)
}
