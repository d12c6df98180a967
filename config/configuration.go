package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/joho/godotenv"
)

// Version is the build identifier, overridden at link time.
var Version = "dev"

type AppConfig struct {
	DevMode  bool   `arg:"--dev,env:DEV_MODE" default:"false"`
	Port     int    `arg:"-p,--port,env:LISTEN_PORT" default:"8030"`
	Host     string `arg:"--host,env:LISTEN_HOST" default:"0.0.0.0"`
	LogLevel string `arg:"--log-level,env:LOG_LEVEL" default:"default" help:"Log level to use.  Valid values are: debug, info, and warn/warning.  If default the level will be info or debug in dev mode."`

	DBHost     string `arg:"--db-host,env:DB_HOST" default:"localhost"`
	DBName     string `arg:"--db-name,env:DB_NAME" default:"ventrix"`
	DBPort     int    `arg:"--db-port,env:DB_PORT" default:"5432"`
	DBMaxConns int    `arg:"--db-max-conns,env:DB_MAX_CONNS" default:"10"`
	DBMinConns int    `arg:"--db-min-conns,env:DB_MIN_CONNS" default:"1"`
	DBSSLMode  string `arg:"--db-ssl-mode,env:DB_SSL_MODE" default:"disable"`
	DBUsername string `arg:"--db-username,env:DB_USERNAME" default:"ventrix"`
	DBPassword string `arg:"--db-password,env:DB_PASSWORD" default:"badpassword"`

	Persistence      bool `arg:"--persistence,env:PERSISTENCE" default:"true" help:"Use Postgres for storage. When false the broker runs on the in-memory store."`
	ValidateEventDef bool `arg:"--validate-event-def,env:VALIDATE_EVENT_DEF" default:"true" help:"Structurally validate payload definitions when event types are registered."`

	RetryCap               int `arg:"--retry-cap,env:RETRY_CAP" default:"3" help:"Maximum retry attempts per failed event before it is terminally failed."`
	RetryIntervalSeconds   int `arg:"--retry-interval,env:RETRY_INTERVAL_SECONDS" default:"30" help:"How often the retry scheduler polls for due failed events."`
	QueueSize              int `arg:"--queue-size,env:QUEUE_SIZE" default:"50" help:"Capacity of the in-process dispatch channel."`
	DeliveryTimeoutSeconds int `arg:"--delivery-timeout,env:DELIVERY_TIMEOUT_SECONDS" default:"30" help:"Per-request timeout for subscriber deliveries."`
}

// FeatureFlags exposes the boolean toggles as the flag mapping consumed by
// startup and the HTTP layer.
func (c *AppConfig) FeatureFlags() map[string]bool {
	return map[string]bool{
		"persistence":        c.Persistence,
		"validate_event_def": c.ValidateEventDef,
	}
}

func (c *AppConfig) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalSeconds) * time.Second
}

func (c *AppConfig) DeliveryTimeout() time.Duration {
	return time.Duration(c.DeliveryTimeoutSeconds) * time.Second
}

func LoadConfig() (*AppConfig, error) {
	var appConfig AppConfig
	arg.MustParse(&appConfig)

	if appConfig.DevMode {
		err := godotenv.Load(".env")
		if err == nil {
			// re-parse to get env vars from .env
			slog.Info("Loaded .env")
			arg.MustParse(&appConfig)
		}
	}

	if appConfig.LogLevel == "default" {
		if appConfig.DevMode {
			logLevel.Set(slog.LevelDebug)
		} else {
			logLevel.Set(slog.LevelInfo)
		}
	} else {
		intendedLevel := strings.ToLower(appConfig.LogLevel)
		switch intendedLevel {
		case "debug":
			logLevel.Set(slog.LevelDebug)
		case "info":
			logLevel.Set(slog.LevelInfo)
		case "warn", "warning":
			logLevel.Set(slog.LevelWarn)
		default:
			slog.Error("Unable to configure log level", "level", appConfig.LogLevel)
		}
	}

	return &appConfig, nil
}
