// Package main is the entry point for the shift simulation server.
// It only handles dependency injection and server initialization.
// No business logic belongs here.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MRamiBalles/bugshift/internal/datastore"
	"github.com/MRamiBalles/bugshift/internal/engine"
	"github.com/MRamiBalles/bugshift/internal/events"
	"github.com/MRamiBalles/bugshift/internal/infra/cache"
	"github.com/MRamiBalles/bugshift/internal/infra/storage"
	"github.com/MRamiBalles/bugshift/internal/mail"
	"github.com/MRamiBalles/bugshift/internal/network"
	"github.com/MRamiBalles/bugshift/internal/platform/clock"
	"github.com/MRamiBalles/bugshift/internal/platform/config"
	"github.com/MRamiBalles/bugshift/internal/platform/logger"
	"github.com/MRamiBalles/bugshift/internal/platform/metrics"
)

type journal struct {
	db        *sql.DB
	events    storage.EventRepository
	summaries storage.SummaryRepository
}

func openJournal(ctx context.Context, cfg config.Config) (*journal, error) {
	switch cfg.JournalDriver {
	case config.DriverPostgres:
		db, err := storage.OpenPostgres(ctx, cfg.JournalDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
		if err != nil {
			return nil, err
		}
		return &journal{
			db:        db,
			events:    storage.NewPostgresEventRepository(db),
			summaries: storage.NewPostgresSummaryRepository(db),
		}, nil
	default:
		db, err := storage.InitSQLite(cfg.JournalDSN)
		if err != nil {
			return nil, err
		}
		return &journal{
			db:        db,
			events:    storage.NewSQLiteEventRepository(db),
			summaries: storage.NewSQLiteSummaryRepository(db),
		}, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.Exitf("configuration: %v", err)
	}

	appLogger := logger.NewWithOptions(logger.Options{Format: cfg.LogFormat, Level: cfg.LogLevel})
	appLogger.Info("Initializing shift simulation server", "session", cfg.SessionID)

	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		config.Exitf("rules: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := metrics.NewCollector()

	appLogger.Info("Opening event journal", "driver", cfg.JournalDriver)
	j, err := openJournal(ctx, cfg)
	if err != nil {
		appLogger.Error("Failed to open journal", "error", err)
		os.Exit(1)
	}
	defer j.db.Close()

	eventLog := events.NewEventLog(storage.NewJournalPersister(j.events, j.summaries, cfg.SessionID))
	eventLog.OnPersisted(collector.RecordEventWrite)
	defer eventLog.Close()

	store := datastore.New(appLogger.With("datastore"))
	go func() {
		if err := store.LoadDir(cfg.DataDir); err != nil {
			appLogger.Error("Failed to load data tables", "dir", cfg.DataDir, "error", err)
			return
		}
		for _, w := range store.Warnings() {
			appLogger.Warn("Data table warning", "error", w)
		}
		appLogger.Info("Data tables loaded", "days", store.Days())
	}()

	inbox := mail.NewInbox()

	engineCfg := engine.Config{
		Shift:         rules.ShiftConfig(),
		FrameRate:     cfg.FrameRate,
		CommandBuffer: cfg.CommandBuffer,
	}
	shiftEngine := engine.NewEngine(engineCfg, clock.System{}, store, inbox, eventLog, appLogger.With("engine"), collector)

	hub := network.NewHub(network.HubConfig{
		SendBuffer:      cfg.ClientSendBuffer,
		BroadcastBuffer: cfg.BroadcastBuffer,
		CommandRate:     cfg.ClientCommandRate,
		CommandBurst:    cfg.ClientCommandBurst,
		BroadcastTicks:  cfg.BroadcastTicks,
	}, shiftEngine, appLogger.With("hub"), collector)
	go hub.Run(ctx)
	unsubscribeHub := eventLog.Subscribe(hub.Observe)
	defer unsubscribeHub()

	if cfg.RedisAddr != "" {
		rdb := cache.NewGoRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPoolSize)
		defer rdb.Close()
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx); err != nil {
			appLogger.Warn("Redis unreachable, status cache writes will fail until it is", "addr", cfg.RedisAddr, "error", err)
		}
		pingCancel()

		statusCache := cache.NewStatusCache(rdb, cfg.SessionID, shiftEngine, appLogger.With("cache"))
		go statusCache.Run(ctx)
		unsubscribeCache := eventLog.Subscribe(statusCache.Observe)
		defer unsubscribeCache()
	}

	go shiftEngine.Run(ctx)

	api := network.NewAPIHandler(shiftEngine, shiftEngine, inbox,
		storage.NewReconstructor(j.events, j.summaries), cfg.SessionID, appLogger.With("api"))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	api.RegisterRoutes(mux)
	mux.HandleFunc("/metrics", collector.PrometheusHandler())
	mux.HandleFunc("/metrics.json", collector.Handler())

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		appLogger.Info("HTTP API & WS server listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Server failed", "error", err)
			cancel()
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("HTTP shutdown incomplete", "error", err)
	}
	cancel()
}
