// Package main is the entry point for the Helmsman FX decision engine.
// The process runs the tick pipeline (market data, context, brains,
// portfolio manager, command mapping, executor dispatch), records every
// step in an append-only ledger, and exposes a thin HTTP surface for
// operators and live event streams.
//
// The application follows clean architecture principles:
// - Domain layer is pure (no infrastructure dependencies)
// - Repository pattern for ledger access
// - Narrow ports for market data and execution
// - HTTP handlers for API endpoints
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/quantarch/helmsman/internal/config"
	"github.com/quantarch/helmsman/internal/database"
	"github.com/quantarch/helmsman/internal/domain"
	"github.com/quantarch/helmsman/internal/modules/brains"
	"github.com/quantarch/helmsman/internal/modules/calendar"
	"github.com/quantarch/helmsman/internal/modules/executor"
	"github.com/quantarch/helmsman/internal/modules/ledger"
	"github.com/quantarch/helmsman/internal/modules/marketdata"
	"github.com/quantarch/helmsman/internal/modules/ops"
	"github.com/quantarch/helmsman/internal/modules/replay"
	"github.com/quantarch/helmsman/internal/orchestrator"
	"github.com/quantarch/helmsman/internal/recorder"
	"github.com/quantarch/helmsman/internal/reliability"
	"github.com/quantarch/helmsman/internal/scheduler"
	"github.com/quantarch/helmsman/internal/server"
	"github.com/quantarch/helmsman/internal/stream"
	"github.com/quantarch/helmsman/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Bool("mock_mode", cfg.MockMode).Strs("symbols", cfg.Symbols).Msg("Starting Helmsman")

	// Databases: ledger.db carries the durable profile (synchronous FULL),
	// cache.db the relaxed one.
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	for name, db := range map[string]*database.DB{"ledger": ledgerDB, "cache": cacheDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", name).Msg("Failed to migrate database")
		}
	}

	// Repositories, stream hub and the single write path.
	eventRepo := ledger.NewEventRepository(ledgerDB.Conn(), log)
	auditRepo := ledger.NewAuditRepository(ledgerDB.Conn(), log)
	replayRepo := ledger.NewReplayDayRepository(ledgerDB.Conn(), log)
	hub := stream.NewHub(log)
	rec := recorder.New(eventRepo, auditRepo, hub, log)

	// Ports: synthetic + simulator in mock mode, HTTP adapters otherwise.
	var market marketdata.Port
	var execPort executor.Port
	if cfg.MockMode {
		market = marketdata.NewSyntheticProvider()
		execPort = executor.NewSimulator(log)
	} else {
		market = marketdata.NewHTTPProvider(cfg.MarketDataURL, cfg.MarketDataToken, marketdata.NewCache(cacheDB.Conn(), log), log)
		adapter := executor.NewHTTPAdapter(cfg.ExecutorURL, cfg.ExecutorWSURL, "", log)
		execPort = adapter
	}

	opsMgr := ops.NewManager(rec, cfg.MockMode, log)
	limits := domain.DefaultRiskLimits()
	registry := brains.NewRegistry()
	orch := orchestrator.New(rec, market, registry, execPort, opsMgr, cfg.Symbols, limits, log)
	if cfg.EventWindows != "" {
		events, err := calendar.Parse(cfg.EventWindows)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to parse event windows")
		}
		orch.WithCalendar(calendar.New(events))
		log.Info().Int("events", len(events)).Msg("Event calendar loaded")
	}
	replaySvc := replay.NewService(eventRepo, auditRepo, replayRepo, log)

	authority := ops.NewAuthority(opsMgr, rec, func(gate domain.Gate) ops.ConfigView {
		return ops.ConfigView{
			Gate:    gate,
			Symbols: cfg.Symbols,
			Limits:  limits,
			Mock:    cfg.MockMode,
		}
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The real adapter keeps its lifecycle websocket open for the whole
	// process lifetime; simulator callbacks are synchronous.
	if adapter, ok := execPort.(*executor.HTTPAdapter); ok {
		go adapter.RunLifecycleFeed(ctx)
	}

	go hub.RunKeepalive(ctx)

	// Startup CONFIG_SNAPSHOT so every ledger read starts from a known
	// configuration.
	startupConfig, _ := json.Marshal(map[string]any{
		"symbols":   cfg.Symbols,
		"limits":    limits,
		"mock_mode": cfg.MockMode,
	})
	if err := rec.Record(domain.LedgerEvent{
		EventID:       uuid.NewString(),
		CorrelationID: uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Severity:      domain.SeverityInfo,
		EventType:     domain.EventConfigSnapshot,
		Component:     domain.ComponentSystem,
		Payload:       startupConfig,
	}); err != nil {
		log.Error().Err(err).Msg("Failed to record startup config snapshot")
	}

	// Background jobs.
	sched := scheduler.New(log)
	replayJob := scheduler.NewReplayRollupJob(replaySvc, log)
	if err := sched.AddJob("0 10 0 * * *", replayJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register replay rollup job")
	}
	walJob := scheduler.NewWALCheckpointJob(map[string]*database.DB{"ledger": ledgerDB, "cache": cacheDB}, log)
	if err := sched.AddJob("0 0 * * * *", walJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register WAL checkpoint job")
	}
	if cfg.TickInterval > 0 {
		tickJob := scheduler.NewAutoTickJob(orch, opsMgr, log)
		schedule := fmt.Sprintf("0 */%d * * * *", cfg.TickInterval)
		if err := sched.AddJob(schedule, tickJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to register auto tick job")
		}
	}
	if cfg.Backup != nil && cfg.Backup.Enabled {
		s3Client, err := reliability.NewS3Client(cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create backup client")
		}
		backupSvc := reliability.NewBackupService(ledgerDB, s3Client, cfg.DataDir, log)
		backupJob := scheduler.NewBackupJob(backupSvc, log)
		if err := sched.AddJob("0 30 2 * * *", backupJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
	}
	sched.Start()
	defer sched.Stop()

	monitor := server.NewStatusMonitor(execPort, opsMgr, 30*time.Second, log)
	monitor.Start(ctx)

	srv := server.New(server.Config{
		Log:       log,
		Cfg:       cfg,
		LedgerDB:  ledgerDB,
		CacheDB:   cacheDB,
		Hub:       hub,
		Events:    eventRepo,
		Replay:    replaySvc,
		Ops:       opsMgr,
		Authority: authority,
		Orch:      orch,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	log.Info().Msg("Helmsman stopped")
}
