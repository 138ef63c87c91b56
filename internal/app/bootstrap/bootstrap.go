package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	pollreconciler "rollcall/contexts/group-scheduling/poll-reconciler"
	postgresadapter "rollcall/contexts/group-scheduling/poll-reconciler/adapters/postgres"
	sheetsadapter "rollcall/contexts/group-scheduling/poll-reconciler/adapters/sheets"
	workerapp "rollcall/contexts/group-scheduling/poll-reconciler/application/workers"
	"rollcall/contexts/group-scheduling/poll-reconciler/ports"
	"rollcall/internal/platform/config"
	"rollcall/internal/platform/db"
	"rollcall/internal/platform/httpserver"
	"rollcall/internal/platform/messaging"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres      *db.Postgres
	gateway       workerapp.GatewayConsumer
	sweeper       workerapp.RetentionSweeper
	relay         workerapp.OutboxRelay
	sweepInterval time.Duration
	relayInterval time.Duration
	logger        *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	module, err := buildReconciler(cfg, repo, logger)
	if err != nil {
		return nil, err
	}

	server := httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	module, err := buildReconciler(cfg, repo, logger)
	if err != nil {
		return nil, err
	}

	return &WorkerApp{
		postgres: pg,
		gateway: workerapp.GatewayConsumer{
			Subscriber:    kafka,
			Ingest:        module.Ingest,
			ConsumerGroup: cfg.GatewayConsumerGroup,
			Disabled:      !cfg.EnableGatewayConsumer,
			Logger:        logger,
		},
		sweeper: workerapp.RetentionSweeper{
			Polls:           repo,
			Outbox:          repo,
			IDGen:           postgresadapter.UUIDGenerator{},
			Clock:           postgresadapter.SystemClock{},
			RetentionWindow: cfg.RetentionWindow,
			BatchSize:       cfg.SweepBatchSize,
			Logger:          logger,
		},
		relay: workerapp.OutboxRelay{
			Outbox:    repo,
			Publisher: kafka,
			Clock:     postgresadapter.SystemClock{},
			BatchSize: cfg.RelayBatchSize,
			Logger:    logger,
		},
		sweepInterval: cfg.SweepInterval,
		relayInterval: cfg.RelayInterval,
		logger:        logger,
	}, nil
}

// buildReconciler assembles the poll reconciler module that both the API and
// the worker share. The attendance store is optional: without a configured
// spreadsheet the module records votes but projects nothing.
func buildReconciler(cfg config.Config, repo *postgresadapter.Repository, logger *slog.Logger) (pollreconciler.Module, error) {
	attendance, err := buildAttendanceStore(cfg, logger)
	if err != nil {
		return pollreconciler.Module{}, err
	}

	return pollreconciler.NewModule(pollreconciler.Dependencies{
		Polls:               repo,
		Attendance:          attendance,
		Outbox:              repo,
		IDGen:               postgresadapter.UUIDGenerator{},
		RetentionWindow:     cfg.RetentionWindow,
		CannotAttendPhrases: cfg.CannotAttendPhrases,
		WriteAttempts:       cfg.WriteAttempts,
		WriteBackoff:        cfg.WriteBackoff,
		Logger:              logger,
	}), nil
}

func buildAttendanceStore(cfg config.Config, logger *slog.Logger) (ports.AttendanceStore, error) {
	if !cfg.EnableAttendanceProjection || strings.TrimSpace(cfg.SheetsSpreadsheetID) == "" {
		logger.Info("attendance projection disabled",
			"event", "bootstrap_projection_disabled",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		return nil, nil
	}

	grid, err := sheetsadapter.NewGrid(context.Background(), sheetsadapter.Config{
		SpreadsheetID:     cfg.SheetsSpreadsheetID,
		SheetName:         cfg.SheetsSheetName,
		CredentialsFile:   cfg.SheetsCredentialsFile,
		MobileColumn:      cfg.SheetsMobileColumn,
		LastVotedColumn:   cfg.SheetsLastVotedColumn,
		FirstOptionColumn: cfg.SheetsFirstOptionColumn,
	}, logger)
	if err != nil {
		return nil, err
	}
	return grid, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	if err := w.gateway.Start(ctx); err != nil {
		return err
	}

	sweepTicker := time.NewTicker(w.sweepInterval)
	defer sweepTicker.Stop()
	relayTicker := time.NewTicker(w.relayInterval)
	defer relayTicker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"sweep_interval", w.sweepInterval.String(),
		"relay_interval", w.relayInterval.String(),
	)

	if err := w.sweeper.RunOnce(ctx); err != nil {
		return err
	}
	if err := w.relay.RunOnce(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sweepTicker.C:
			if err := w.sweeper.RunOnce(ctx); err != nil {
				return err
			}
		case <-relayTicker.C:
			if err := w.relay.RunOnce(ctx); err != nil {
				return err
			}
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
