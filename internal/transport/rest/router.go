package rest

import (
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/disbursement/internal/audit"
	"github.com/frahmantamala/disbursement/internal/auth"
	"github.com/frahmantamala/disbursement/internal/batch"
	"github.com/frahmantamala/disbursement/internal/fsp"
	"github.com/frahmantamala/disbursement/internal/payment"
	"github.com/frahmantamala/disbursement/internal/reconciliation"
	"github.com/frahmantamala/disbursement/internal/transport/middleware"
	"github.com/frahmantamala/disbursement/internal/transport/swagger"
)

const APIPrefix = "/api/v1"

type Handlers struct {
	Batch          *batch.Handler
	Payment        *payment.Handler
	Callback       *payment.CallbackHandler
	Reconciliation *reconciliation.Handler
	Audit          *audit.Handler
	FSP            *fsp.Handler
}

type Options struct {
	AllowedOrigins string
	OpenAPIFile    string
	OpenAPI        *openapi3.T
	Verifier       auth.TokenVerifierAPI
	HealthChecks   map[string]HealthCheck
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, opts Options, logger *slog.Logger) error {
	healthHandler := NewHealthHandler(opts.HealthChecks, logger)
	rbac := auth.NewRBACAuthorization(auth.NewPermissionChecker(), logger)

	// Apply global middleware
	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.TraceID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	if opts.OpenAPIFile != "" {
		router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, opts.OpenAPIFile)
		})
		router.Handle("/swagger/*", swagger.Handler())
	}

	var validate func(http.Handler) http.Handler
	if opts.OpenAPI != nil {
		v, err := middleware.OpenAPIValidator(opts.OpenAPI, APIPrefix, logger)
		if err != nil {
			return err
		}
		validate = v
	}

	router.Route(APIPrefix, func(r chi.Router) {
		if validate != nil {
			r.Use(validate)
		}

		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Provider callbacks authenticate with their own token.
		if h.Callback != nil {
			r.Post("/fsp/{code}/callback", h.Callback.HandleCallback)
		}

		r.Group(func(pr chi.Router) {
			pr.Use(middleware.Authenticate(opts.Verifier, logger))

			if h.Batch != nil {
				registerBatchRoutes(pr, h.Batch, rbac)
			}

			if h.Payment != nil {
				pr.With(rbac.Middleware(auth.PermViewBatches)).Get("/batches/{id}/payments", h.Payment.ListBatchPayments)
				pr.Route("/payments/{id}", func(pm chi.Router) {
					pm.With(rbac.Middleware(auth.PermViewBatches)).Get("/", h.Payment.GetPayment)
					pm.Group(func(mr chi.Router) {
						mr.Use(rbac.Middleware(auth.PermManagePayments))
						mr.Post("/hold", h.Payment.HoldPayment)
						mr.Post("/release", h.Payment.ReleasePayment)
						mr.Post("/refund", h.Payment.RefundPayment)
					})
				})
			}

			if h.Reconciliation != nil {
				pr.Group(func(rr chi.Router) {
					rr.Use(rbac.Middleware(auth.PermReconcile))
					rr.Post("/batches/{id}/reconcile", h.Reconciliation.Reconcile)
					rr.Get("/batches/{id}/reconciliation", h.Reconciliation.Latest)
					rr.Get("/batches/{id}/reconciliation/history", h.Reconciliation.History)
				})
			}

			if h.Audit != nil {
				pr.Group(func(ar chi.Router) {
					ar.Use(rbac.Middleware(auth.PermViewAudit))
					ar.Get("/audit/{subjectId}", h.Audit.GetTrail)
					ar.Get("/audit/{subjectId}/verify", h.Audit.VerifyTrail)
				})
			}

			if h.FSP != nil {
				pr.With(rbac.Middleware(auth.PermViewBatches)).Get("/fsp", h.FSP.ListProviders)
			}
		})
	})
	return nil
}

func registerBatchRoutes(r chi.Router, h *batch.Handler, rbac *auth.RBACAuthorization) {
	r.With(rbac.Middleware(auth.PermCreateBatches)).Post("/batches", h.CreateBatch)

	r.Group(func(vr chi.Router) {
		vr.Use(rbac.Middleware(auth.PermViewBatches))
		vr.Get("/batches", h.ListBatches)
		vr.Get("/batches/statistics", h.Statistics)
		vr.Get("/batches/statistics/programs", h.StatisticsByProgram)
		vr.Get("/batches/number/{number}", h.GetBatchByNumber)
		vr.Get("/batches/{id}", h.GetBatch)
		vr.Get("/batches/{id}/progress", h.MonitorProgress)
		vr.Get("/batches/{id}/estimate", h.CompletionEstimate)
		vr.Get("/batches/{id}/report", h.Report)
	})

	r.Group(func(mr chi.Router) {
		mr.Use(rbac.Middleware(auth.PermManageBatches))
		mr.Post("/batches/process-due", h.ProcessDue)
		mr.Post("/batches/{id}/start", h.StartBatch)
		mr.Post("/batches/{id}/pause", h.PauseBatch)
		mr.Post("/batches/{id}/resume", h.ResumeBatch)
		mr.Post("/batches/{id}/cancel", h.CancelBatch)
	})

	r.With(rbac.Middleware(auth.PermRetryPayments)).Post("/batches/{id}/retry-failed", h.RetryFailed)
}
