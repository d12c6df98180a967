package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweater-ventures/ventrix/api"
	"github.com/sweater-ventures/ventrix/app"
	"github.com/sweater-ventures/ventrix/config"
	"github.com/sweater-ventures/ventrix/middleware"
)

func main() {
	config.InitLogging()
	appConfig, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Unable to load configuration!!!", err)
	}

	if appConfig == nil {
		log.Fatal("Nil AppConfig, WTF")
	}

	application, err := app.NewApp(appConfig)
	if err != nil {
		log.Fatal("Unable to initialize application", err)
	}
	defer application.Close()

	slog.Debug("Configuration",
		"DevMode", appConfig.DevMode,
		"LogLevel", appConfig.LogLevel,
		"FeatureFlags", appConfig.FeatureFlags(),
	)

	router := http.NewServeMux()
	router.Handle("GET /health_check", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	api.AddApis(application, router)

	// Start the delivery worker, then the retry scheduler that feeds it.
	app.StartDispatcher(application)
	app.StartRetryScheduler(application)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", appConfig.Host, appConfig.Port),
		Handler: middleware.AllStandardMiddleware(router),
	}

	// Listen for shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("Starting Ventrix", "host", appConfig.Host, "port", appConfig.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-sigChan
	slog.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// application.Close() runs via defer:
	// 1. Stops the retry scheduler (no more producers besides handlers)
	// 2. Closes DeliveryChan; the worker drains buffered events and exits
	// 3. DB pool closes
	slog.Info("Shutdown complete")
}
