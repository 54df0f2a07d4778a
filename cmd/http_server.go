package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/disbursement/internal/audit"
	"github.com/frahmantamala/disbursement/internal/auth"
	"github.com/frahmantamala/disbursement/internal/batch"
	"github.com/frahmantamala/disbursement/internal/fsp"
	"github.com/frahmantamala/disbursement/internal/payment"
	"github.com/frahmantamala/disbursement/internal/reconciliation"
	"github.com/frahmantamala/disbursement/internal/transport/middleware"
	"github.com/frahmantamala/disbursement/internal/transport/rest"
)

var (
	openAPIFile   string
	withScheduler bool
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests and provider callbacks`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startHTTPServer()
	},
}

func startHTTPServer() error {
	cfg, lg, err := setup()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	verifier, err := auth.NewTokenVerifier(cfg.Security)
	if err != nil {
		return err
	}

	var doc *openapi3.T
	if openAPIFile != "" {
		if _, statErr := os.Stat(openAPIFile); statErr == nil {
			if doc, err = middleware.LoadOpenAPI(openAPIFile); err != nil {
				return err
			}
		} else {
			lg.Warn("openapi document not found, request validation disabled", "path", openAPIFile)
			openAPIFile = ""
		}
	}

	router := chi.NewRouter()
	err = rest.RegisterAllRoutes(router, rest.Handlers{
		Batch:          batch.NewHandler(app.Batches, lg),
		Payment:        payment.NewHandler(app.Payments, lg),
		Callback:       payment.NewCallbackHandler(app.FSP, app.Executor, app.PaymentRepo, lg),
		Reconciliation: reconciliation.NewHandler(app.Reconciliation, lg),
		Audit:          audit.NewHandler(app.Audit, lg),
		FSP:            fsp.NewHandler(app.FSP, lg),
	}, rest.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		OpenAPIFile:    openAPIFile,
		OpenAPI:        doc,
		Verifier:       verifier,
		HealthChecks: map[string]rest.HealthCheck{
			"postgres": app.DB.SQL.PingContext,
		},
	}, lg)
	if err != nil {
		return err
	}

	if withScheduler {
		go newScheduler(app).Run(ctx)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		lg.Info("starting HTTP server", "address", addr)
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		lg.Info("received signal, shutting down...")
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("server failed", "error", err)
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("server shutdown error", "error", err)
	}
	if err := app.Close(shutdownCtx); err != nil {
		lg.Error("application shutdown error", "error", err)
	}

	lg.Info("server stopped")
	return nil
}

func init() {
	httpServerCmd.Flags().StringVar(&openAPIFile, "openapi", "api/openapi.yml", "OpenAPI document used for request validation and Swagger UI")
	httpServerCmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "run the background scheduler in the server process")
}
