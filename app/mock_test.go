package app

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/mock"
	"github.com/sweater-ventures/ventrix/config"
	"github.com/sweater-ventures/ventrix/db"
	"github.com/sweater-ventures/ventrix/schema"
)

// --- local test helpers (avoid importing testutil to prevent import cycle) ---

// mockQuerier is a testify mock implementation of db.Querier.
type mockQuerier struct {
	mock.Mock
}

var _ db.Querier = (*mockQuerier)(nil)

func (m *mockQuerier) RegisterService(ctx context.Context, arg db.RegisterServiceParams) (db.Service, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(db.Service), args.Error(1)
}
func (m *mockQuerier) RemoveService(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}
func (m *mockQuerier) GetServiceByName(ctx context.Context, name string) (db.Service, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(db.Service), args.Error(1)
}
func (m *mockQuerier) RegisterEventType(ctx context.Context, arg db.RegisterEventTypeParams) (db.EventType, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(db.EventType), args.Error(1)
}
func (m *mockQuerier) GetSchemaForEventType(ctx context.Context, eventType string) (string, error) {
	args := m.Called(ctx, eventType)
	return args.Get(0).(string), args.Error(1)
}
func (m *mockQuerier) RegisterServiceForEventType(ctx context.Context, arg db.ListenParams) (db.Subscription, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(db.Subscription), args.Error(1)
}
func (m *mockQuerier) GetSubscribersForEventType(ctx context.Context, eventType string) ([]db.EventSubscriber, error) {
	args := m.Called(ctx, eventType)
	return args.Get(0).([]db.EventSubscriber), args.Error(1)
}
func (m *mockQuerier) SavePublishedEvent(ctx context.Context, event db.Event) error {
	return m.Called(ctx, event).Error(0)
}
func (m *mockQuerier) GetPublishedEvent(ctx context.Context, id pgtype.UUID) (db.Event, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(db.Event), args.Error(1)
}
func (m *mockQuerier) FulfilEvent(ctx context.Context, id pgtype.UUID) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockQuerier) AddFailedEvent(ctx context.Context, event db.Event) error {
	return m.Called(ctx, event).Error(0)
}
func (m *mockQuerier) UpdateRetryTime(ctx context.Context, arg db.UpdateRetryTimeParams) error {
	return m.Called(ctx, arg).Error(0)
}
func (m *mockQuerier) ResolveFailedEvent(ctx context.Context, eventID pgtype.UUID) error {
	return m.Called(ctx, eventID).Error(0)
}
func (m *mockQuerier) GetFailedEvents(ctx context.Context) ([]db.Event, error) {
	args := m.Called(ctx)
	return args.Get(0).([]db.Event), args.Error(1)
}

// newTestApp builds an Application on the given store with short timeouts.
func newTestApp(store db.Querier) *Application {
	return &Application{
		Config: config.AppConfig{
			ValidateEventDef:       true,
			RetryCap:               3,
			RetryIntervalSeconds:   1,
			QueueSize:              50,
			DeliveryTimeoutSeconds: 2,
		},
		DB:              store,
		DeliveryChan:    make(chan db.Event, 50),
		EventBus:        NewEventBus(),
		ValidatePayload: schema.PayloadIsValid,
		Client:          &http.Client{Timeout: 2 * time.Second},
		stopDelivery:    func() {},
		stopScheduler:   func() {},
	}
}

const testSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"phone_number": {"type": "string"}
	},
	"required": ["name", "phone_number"]
}`

const testPayload = `{"name": "Ada Lovelace", "phone_number": "555-0100"}`
