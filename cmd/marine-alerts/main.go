package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/marine-alerts/internal/adapter/classifier"
	httpadapter "github.com/couchcryptid/marine-alerts/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/marine-alerts/internal/adapter/kafka"
	"github.com/couchcryptid/marine-alerts/internal/adapter/nws"
	"github.com/couchcryptid/marine-alerts/internal/adapter/openmeteo"
	"github.com/couchcryptid/marine-alerts/internal/config"
	"github.com/couchcryptid/marine-alerts/internal/dispatch"
	"github.com/couchcryptid/marine-alerts/internal/domain"
	"github.com/couchcryptid/marine-alerts/internal/ledger"
	"github.com/couchcryptid/marine-alerts/internal/observability"
	"github.com/couchcryptid/marine-alerts/internal/registry"
	"github.com/couchcryptid/marine-alerts/internal/scan"
	"github.com/couchcryptid/marine-alerts/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn := cfg.SQLitePath
	if cfg.DatabaseDriver == store.DriverPostgres {
		dsn = cfg.DatabaseURL
	}
	db, err := store.Open(ctx, cfg.DatabaseDriver, dsn)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.DatabaseDriver, "error", err)
		os.Exit(1)
	}
	logger.Info("store opened", "driver", cfg.DatabaseDriver)

	// Both pathways read through the cache so one cycle fetches a point once.
	weatherClient := openmeteo.NewClient(cfg.OpenMeteoURL, cfg.OpenMeteoMarineURL, cfg.WeatherTimeout, clock, metrics, logger)
	weather := openmeteo.NewCachedSource(weatherClient, cfg.WeatherCacheSize, cfg.WeatherCacheTTL, clock, metrics)

	var analyzer domain.HazardClassifier = classifier.Disabled{}
	if cfg.ClassifierURL != "" {
		analyzer = classifier.NewClient(cfg.ClassifierURL, cfg.ClassifierTimeout, metrics, logger)
		logger.Info("hazard classifier enabled", "timeout", cfg.ClassifierTimeout)
	} else {
		logger.Info("hazard classifier disabled")
	}

	var bulletins domain.AuxiliaryContentSource = nws.None{}
	if cfg.NWSEnabled {
		bulletins = nws.NewClient(cfg.NWSURL, cfg.WeatherTimeout, logger)
	}

	var notifier domain.Notifier
	var kafkaNotifier *kafkaadapter.Notifier
	switch cfg.Notifier {
	case "kafka":
		kafkaNotifier = kafkaadapter.NewNotifier(cfg, logger)
		notifier = kafkaNotifier
		logger.Info("kafka notifier enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaNotifyTopic)
	default:
		notifier = dispatch.NewLogNotifier(logger)
	}

	orch := scan.New(scan.Deps{
		Registry:   registry.New(db),
		Weather:    weather,
		Classifier: analyzer,
		Bulletins:  bulletins,
		Dispatcher: dispatch.New(notifier, metrics, logger),
		Audit:      db,
		Ledger:     ledger.New(),
		Clock:      clock,
		Metrics:    metrics,
		Logger:     logger,
	}, settingsFrom(cfg))

	srv := httpadapter.NewServer(cfg.HTTPAddr, orch, db, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the scan loop.
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := orch.Run(ctx); err != nil {
			logger.Error("orchestrator error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-runDone:
	case <-shutdownCtx.Done():
		logger.Warn("scan cycle still running at shutdown deadline")
	}
	if kafkaNotifier != nil {
		if err := kafkaNotifier.Close(); err != nil {
			logger.Error("kafka notifier close error", "error", err)
		}
	}
	if err := db.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}

func settingsFrom(cfg *config.Config) scan.Settings {
	s := scan.DefaultSettings()
	s.DigestHour = cfg.DigestHour
	s.PollInterval = cfg.PollInterval
	s.ThresholdInterval = cfg.ThresholdInterval
	s.ScanWindow = cfg.ScanWindow
	s.ThresholdWindow = cfg.ThresholdWindow
	s.ProbabilityBar = cfg.HazardProbabilityBar
	s.Workers = cfg.ScanWorkers
	return s
}
