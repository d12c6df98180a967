package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sweater-ventures/ventrix/config"
	"github.com/sweater-ventures/ventrix/db"
	"github.com/sweater-ventures/ventrix/schema"
)

// ValidatePayloadFunc is the plug-in predicate publish uses to check payloads
// against the registered schema.
type ValidatePayloadFunc func(payload string, schema string) bool

type Application struct {
	Config          config.AppConfig
	DB              db.Querier
	DeliveryChan    chan db.Event
	EventBus        *EventBus
	ValidatePayload ValidatePayloadFunc
	Client          *http.Client
	dbconn          *pgxpool.Pool
	stopDelivery    func()
	stopScheduler   func()
}

// NewApp wires the application from configuration. The persistence feature
// flag selects between the Postgres driver (pool + migrations) and the
// in-memory store.
func NewApp(appConfig *config.AppConfig) (*Application, error) {
	ventrix := &Application{
		Config:          *appConfig,
		DeliveryChan:    make(chan db.Event, appConfig.QueueSize),
		EventBus:        NewEventBus(),
		ValidatePayload: schema.PayloadIsValid,
		Client:          &http.Client{Timeout: appConfig.DeliveryTimeout()},
		stopDelivery:    func() {},
		stopScheduler:   func() {},
	}

	if appConfig.Persistence {
		conn, err := connectToDB(appConfig)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			return nil, err
		}
		if err := db.Migrate(migrateURL(appConfig)); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		ventrix.dbconn = conn
		ventrix.DB = db.NewPostgresStore(conn, appConfig.RetryCap)
	} else {
		slog.Info("Persistence disabled, using in-memory store")
		ventrix.DB = db.NewMemoryStore(appConfig.RetryCap)
	}

	return ventrix, nil
}

func (ventrix *Application) SetStopDelivery(fn func()) {
	ventrix.stopDelivery = fn
}

func (ventrix *Application) SetStopScheduler(fn func()) {
	ventrix.stopScheduler = fn
}

// Close stops the retry scheduler, drains the delivery pipeline, and releases
// the database pool. The scheduler must stop first; it produces onto the
// channel the dispatcher is about to close.
func (ventrix *Application) Close() {
	ventrix.stopScheduler()
	ventrix.stopDelivery()
	if ventrix.dbconn != nil {
		ventrix.dbconn.Close()
	}
}
