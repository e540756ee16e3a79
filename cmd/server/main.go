// Package main is the entry point for the cropwise service.
//
// It loads configuration, opens the model artifact, wires the store backend
// and the inference pipeline, mounts the HTTP surface, and starts the
// configured background trigger source. A governor halt stops only the
// background trigger; the HTTP surface stays up so operators can diagnose.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"cropwise/internal/api/handlers"
	"cropwise/internal/artifact"
	"cropwise/internal/config"
	"cropwise/internal/core"
	"cropwise/internal/db"
	"cropwise/internal/external"
	"cropwise/internal/features"
	"cropwise/internal/inference"
	"cropwise/internal/metrics"
	"cropwise/internal/pipeline"
	"cropwise/internal/scheduler"
	"cropwise/internal/store"
	"cropwise/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on
// error.
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg)
	logger.Info("cropwise starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
		"store_backend", string(cfg.Store.Backend),
		"trigger_mode", string(cfg.Pipeline.TriggerMode),
	)

	// Model artifact: loaded once, read-only thereafter.
	bundle, err := artifact.Load(cfg.Model.Path)
	if err != nil {
		return fmt.Errorf("loading model artifact: %w", err)
	}
	logger.Info("model artifact loaded",
		"version", bundle.Version,
		"features", bundle.NumFeatures(),
	)

	// The builder pre-encodes the farm context; an unknown category is a
	// deployment defect and fails startup.
	builder, err := features.NewBuilder(bundle, features.Context{
		District:       cfg.Farm.District,
		Zone:           cfg.Farm.Zone,
		Season:         cfg.Farm.Season,
		RainfallNext1H: cfg.Farm.RainfallNext1H,
	})
	if err != nil {
		return fmt.Errorf("constructing feature builder: %w", err)
	}
	engine := inference.NewEngine(bundle)

	kv, closeKV, err := newStoreBackend(cfg)
	if err != nil {
		return fmt.Errorf("connecting store backend: %w", err)
	}
	defer closeKV()
	sensors := store.NewSensorStore(kv, cfg.Store.SensorPath)

	collector := metrics.NewCollector()

	probes := []core.HealthProbe{storeProbe{sensors}}

	// Optional prediction history.
	var history pipeline.HistoryRecorder
	var historyRepo *db.HistoryRepository
	if cfg.Database.HistoryEnabled() {
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting database: %w", err)
		}
		defer pool.Close()
		historyRepo = db.NewHistoryRepository(pool)
		history = historyRepo
		probes = append(probes, db.Probe{Pool: pool})
		logger.Info("prediction history enabled")
	}

	runner := pipeline.NewRunner(pipeline.RunnerConfig{
		Builder:   builder,
		Engine:    engine,
		Publisher: sensors,
		History:   history,
		Metrics:   collector,
		Logger:    logger,
	})

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = collector
	srv.MetricsHandler = collector.Handler()
	srv.HealthProbes = probes

	predictHandler := handlers.NewPredictHandler(runner, sensors, logger)
	srv.RouteRegistrars = append(srv.RouteRegistrars, predictHandler.RegisterRoutes)
	if historyRepo != nil {
		historyHandler := handlers.NewHistoryHandler(historyRepo, logger)
		srv.RouteRegistrars = append(srv.RouteRegistrars, historyHandler.RegisterRoutes)
	}

	trigger, detector, governor := newTrigger(cfg, sensors, runner, collector, logger)
	srv.StatusDetail = statusDetail(cfg, sensors, detector, governor)

	srv.MountRoutes()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if trigger != nil {
		g.Go(func() error {
			err := trigger.Run(gCtx)
			if scheduler.IsHalted(err) {
				// Terminal for the trigger loop only. The HTTP surface keeps
				// serving; a restart is required to resume the loop.
				logger.Error("trigger source halted permanently",
					"source", string(trigger.Name()),
				)
				return nil
			}
			return err
		})
	}

	err = g.Wait()
	stop()
	if err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

// newStoreBackend constructs the configured KV implementation. The returned
// closer releases backend resources at shutdown.
func newStoreBackend(cfg *config.Config) (store.KV, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreBackendRTDB:
		httpClient := &http.Client{Timeout: cfg.Store.Timeout}
		client := external.NewClient(httpClient, "rtdb-store", external.DefaultRetryPolicy())
		return store.NewRTDB(cfg.Store.BaseURL, cfg.Store.AuthToken, client), func() {}, nil
	case config.StoreBackendRedis:
		rds, err := store.NewRedis(cfg.Store.RedisURL.Unmask(), cfg.Service)
		if err != nil {
			return nil, nil, err
		}
		return rds, func() { _ = rds.Close() }, nil
	case config.StoreBackendMemory:
		return store.NewMemory(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// newTrigger builds the configured background trigger source with its own
// processing state. Returns nils when no trigger is configured.
func newTrigger(
	cfg *config.Config,
	sensors *store.SensorStore,
	runner *pipeline.Runner,
	collector *metrics.Collector,
	logger *slog.Logger,
) (scheduler.Trigger, *pipeline.ChangeDetector, *pipeline.FailureGovernor) {
	if cfg.Pipeline.TriggerMode == config.TriggerModeNone {
		return nil, nil, nil
	}

	detector := pipeline.NewChangeDetector()

	var source types.TriggerSource
	if cfg.Pipeline.TriggerMode == config.TriggerModePush {
		source = types.TriggerPush
	} else {
		source = types.TriggerPoll
	}
	governor := pipeline.NewFailureGovernor(cfg.Pipeline.GovernorThreshold, logger, func(int) {
		collector.RecordHalt(source)
	})

	if cfg.Pipeline.TriggerMode == config.TriggerModePush {
		return scheduler.NewSubscriber(scheduler.SubscriberConfig{
			Stream:   sensors,
			Detector: detector,
			Runner:   runner,
			Governor: governor,
			Logger:   logger,
		}), detector, governor
	}

	return scheduler.NewPoller(scheduler.PollerConfig{
		Source:   sensors,
		Interval: cfg.Pipeline.PollInterval,
		Detector: detector,
		Runner:   runner,
		Governor: governor,
		Logger:   logger,
	}), detector, governor
}

// statusDetail exposes the store's current reading and trigger progress on
// the health endpoint. The reading is fetched live so it reflects what the
// store holds right now, including values the pipeline would reject, and is
// present even when no background trigger is configured.
func statusDetail(
	cfg *config.Config,
	sensors *store.SensorStore,
	detector *pipeline.ChangeDetector,
	governor *pipeline.FailureGovernor,
) func(ctx context.Context) map[string]any {
	return func(ctx context.Context) map[string]any {
		detail := map[string]any{
			"trigger_mode": string(cfg.Pipeline.TriggerMode),
		}
		if snap, err := sensors.Fetch(ctx); err == nil {
			detail["current_reading"] = snap
		}
		if detector != nil {
			if reading, ok := detector.Last(); ok {
				detail["last_processed_reading"] = reading
			}
		}
		if governor != nil {
			detail["halted"] = governor.Halted()
			detail["consecutive_failures"] = governor.Failures()
		}
		return detail
	}
}

// storeProbe adapts the sensor store to the health probe interface.
type storeProbe struct {
	sensors *store.SensorStore
}

func (p storeProbe) Name() string { return "store" }

func (p storeProbe) Check(ctx context.Context) error {
	return p.sensors.Ping(ctx)
}

// newLogger creates a structured slog.Logger for the configured level. Local
// environments get human-readable colored output; everything else gets JSON.
func newLogger(cfg *config.Config) *slog.Logger {
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Environment == "local" {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      lvl,
			TimeFormat: time.RFC3339,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	return slog.New(handler)
}
