package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/disbursement/internal"
	"github.com/frahmantamala/disbursement/internal/audit"
	auditpostgres "github.com/frahmantamala/disbursement/internal/audit/postgres"
	"github.com/frahmantamala/disbursement/internal/batch"
	batchpostgres "github.com/frahmantamala/disbursement/internal/batch/postgres"
	"github.com/frahmantamala/disbursement/internal/core/database"
	"github.com/frahmantamala/disbursement/internal/core/events"
	"github.com/frahmantamala/disbursement/internal/fsp"
	fsppostgres "github.com/frahmantamala/disbursement/internal/fsp/postgres"
	"github.com/frahmantamala/disbursement/internal/notification"
	"github.com/frahmantamala/disbursement/internal/payment"
	paymentpostgres "github.com/frahmantamala/disbursement/internal/payment/postgres"
	"github.com/frahmantamala/disbursement/internal/reconciliation"
	reconpostgres "github.com/frahmantamala/disbursement/internal/reconciliation/postgres"
)

// App holds the services shared by the server and the worker commands.
type App struct {
	Config *internal.Config
	Logger *slog.Logger
	DB     *database.DB
	Bus    *events.EventBus

	Registry       *fsp.Registry
	FSP            *fsp.Service
	PaymentRepo    payment.RepositoryAPI
	Executor       *payment.Executor
	Payments       *payment.Service
	Batches        *batch.Service
	Reconciliation *reconciliation.Engine
	Audit          *audit.Service
}

func newApp(ctx context.Context, cfg *internal.Config, lg *slog.Logger) (*App, error) {
	db, err := database.Connect(ctx, cfg.Database, lg)
	if err != nil {
		return nil, err
	}

	auditRepo := auditpostgres.NewAuditRepository(db.Gorm)
	fspRepo := fsppostgres.NewConfigurationRepository(db.Gorm)

	registry, err := fsp.BuildRegistry(ctx, cfg.FSP, fspRepo, lg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to build fsp registry: %w", err)
	}

	bus := events.NewEventBus(lg)

	paymentRepo := paymentpostgres.NewPaymentRepository(db.Gorm, auditRepo)
	executor := payment.NewExecutor(paymentRepo, registry, bus, lg)

	batchRepo := batchpostgres.NewBatchRepository(db.Gorm, auditRepo)
	batches := batch.NewService(batchRepo, batchpostgres.NewStatsRepository(db.SQL), executor, bus, cfg.Disbursement, lg)
	batches.RegisterEventHandlers(bus)

	notification.NewWebhookNotifier(cfg.Notification, lg).Register(bus)

	engine := reconciliation.NewEngine(
		batchRepo,
		paymentRepo,
		registry,
		reconpostgres.NewReconciliationRepository(db.Gorm, auditRepo),
		bus,
		reconciliation.DefaultRefreshConcurrency,
		lg,
	)

	lg.Info("application initialised", "providers", len(registry.Profiles()), "currency", cfg.Disbursement.Currency)

	return &App{
		Config:         cfg,
		Logger:         lg,
		DB:             db,
		Bus:            bus,
		Registry:       registry,
		FSP:            fsp.NewService(registry, fspRepo, lg),
		PaymentRepo:    paymentRepo,
		Executor:       executor,
		Payments:       payment.NewService(paymentRepo, bus, lg),
		Batches:        batches,
		Reconciliation: engine,
		Audit:          audit.NewService(auditRepo, lg),
	}, nil
}

// Close stops dispatch, drains event handlers and closes the database.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Batches.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("dispatcher shutdown: %w", err))
	}
	if err := a.Bus.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("event handlers: %w", err))
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database close: %w", err))
	}
	return errors.Join(errs...)
}
