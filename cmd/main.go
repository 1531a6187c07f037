package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-fuel/internal/auth"
	"github.com/ukydev/fleet-fuel/internal/config"
	"github.com/ukydev/fleet-fuel/internal/db"
	"github.com/ukydev/fleet-fuel/internal/fuel"
	"github.com/ukydev/fleet-fuel/internal/handlers"
	"github.com/ukydev/fleet-fuel/internal/metrics"
	"github.com/ukydev/fleet-fuel/internal/middleware"
	"github.com/ukydev/fleet-fuel/internal/notify"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
	shutdownTimeout    = 15 * time.Second
)

// app is the wired server. close releases the store and broker connections.
type app struct {
	handler http.Handler
	service *fuel.Service
	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*app, error) {
	entry := log.NewEntry(logger)
	a := &app{}

	var stores db.Stores
	switch cfg.Store {
	case config.StoreMemory:
		stores = db.NewMemoryStore().Stores()
		entry.Warn("Using in-memory store, data is lost on restart")
	case config.StoreMongo:
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Disconnect)
		database := client.Database(cfg.MongoDB)
		if err := db.EnsureIndexes(ctx, database); err != nil {
			a.close(ctx, entry)
			return nil, err
		}
		stores = db.NewMongoStores(database)
		entry.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")
	default:
		return nil, fmt.Errorf("%w: unknown store %q", config.ErrInvalidConfig, cfg.Store)
	}

	var publisher notify.Publisher = notify.LogPublisher{Log: entry.WithField("component", "feed")}
	if cfg.MQTTBroker != "" {
		client, err := notify.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID, mqttConnectTimeout)
		if err != nil {
			a.close(ctx, entry)
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error {
			client.Disconnect(250)
			return nil
		})
		publisher = notify.NewMQTTPublisher(client, cfg.MQTTTopicPrefix, mqttPublishTimeout)
		entry.WithField("broker", cfg.MQTTBroker).Info("Connected to MQTT broker")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	notifier := notify.New(stores.Notifications, publisher, m, entry)
	a.service = fuel.NewService(stores, notifier, m, entry, fuel.Options{
		YardWindow:       cfg.YardMatchWindow,
		RetryConcurrency: cfg.RetryConcurrency,
	})

	if cfg.SeedFile != "" {
		set, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			a.close(ctx, entry)
			return nil, err
		}
		report, err := a.service.ApplyConfig(ctx, set, "seed")
		if err != nil {
			a.close(ctx, entry)
			return nil, fmt.Errorf("failed to apply seed file: %w", err)
		}
		entry.WithFields(log.Fields{
			"file":     cfg.SeedFile,
			"routes":   report.Routes,
			"batches":  report.Batches,
			"stations": report.Stations,
		}).Info("Seed configuration applied")
	}

	authService, err := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		a.close(ctx, entry)
		return nil, err
	}

	a.handler = handlers.NewRouter(handlers.Router{
		Fuel:          handlers.NewFuelHandler(a.service, entry),
		Notifications: handlers.NewNotificationHandler(notifier, entry),
		Auth:          middleware.NewAuthMiddleware(authService),
		RateLimit:     middleware.NewRateLimitMiddleware(),
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Log:           entry,
	})
	return a, nil
}

func (a *app) close(ctx context.Context, entry *log.Entry) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			entry.WithError(err).Warn("Shutdown step failed")
		}
	}
	a.closers = nil
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	entry := log.NewEntry(logger)
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		entry.WithField("port", cfg.Port).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		entry.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
		a.close(shutdownCtx, entry)
		return err
	}
	a.close(context.Background(), entry)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("Server stopped")
	}
}
