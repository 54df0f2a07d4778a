package batch

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/disbursement/internal"
	"github.com/frahmantamala/disbursement/internal/core/common/validation"
	"github.com/frahmantamala/disbursement/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		Service:     service,
	}
}

// CreateBatch handles POST /api/v1/batches
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	actor := errors.ActorFromContext(r.Context())

	var req CreateRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.Logger.Error("CreateBatch: invalid request body", "error", appErr)
		h.HandleError(w, appErr)
		return
	}

	view, err := h.Service.Create(r.Context(), req, actor)
	if err != nil {
		h.Logger.Error("CreateBatch: service error", "error", err, "program_id", req.ProgramID, "actor", actor)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, view)
}

// ListBatches handles GET /api/v1/batches
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		ProgramID: q.Get("program_id"),
		Status:    Status(q.Get("status")),
	}

	var appErr *errors.AppError
	if filter.Page, appErr = queryInt(q.Get("page"), "page"); appErr != nil {
		h.HandleError(w, appErr)
		return
	}
	if filter.PageSize, appErr = queryInt(q.Get("page_size"), "page_size"); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	resp, err := h.Service.List(r.Context(), filter)
	if err != nil {
		h.Logger.Error("ListBatches: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// GetBatch handles GET /api/v1/batches/{id}
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.Logger.Error("GetBatch: service error", "error", err, "batch_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

// GetBatchByNumber handles GET /api/v1/batches/number/{number}
func (h *Handler) GetBatchByNumber(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	view, err := h.Service.GetByNumber(r.Context(), number)
	if err != nil {
		h.Logger.Error("GetBatchByNumber: service error", "error", err, "batch_number", number)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

// StartBatch handles POST /api/v1/batches/{id}/start
func (h *Handler) StartBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := errors.ActorFromContext(r.Context())

	view, err := h.Service.Start(r.Context(), id, actor)
	if err != nil {
		h.Logger.Error("StartBatch: service error", "error", err, "batch_id", id, "actor", actor)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusAccepted, view)
}

// PauseBatch handles POST /api/v1/batches/{id}/pause
func (h *Handler) PauseBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := errors.ActorFromContext(r.Context())

	view, err := h.Service.Pause(r.Context(), id, actor)
	if err != nil {
		h.Logger.Error("PauseBatch: service error", "error", err, "batch_id", id, "actor", actor)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

// ResumeBatch handles POST /api/v1/batches/{id}/resume
func (h *Handler) ResumeBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := errors.ActorFromContext(r.Context())

	view, err := h.Service.Resume(r.Context(), id, actor)
	if err != nil {
		h.Logger.Error("ResumeBatch: service error", "error", err, "batch_id", id, "actor", actor)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

// CancelBatch handles POST /api/v1/batches/{id}/cancel
func (h *Handler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := errors.ActorFromContext(r.Context())

	var req CancelRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.Logger.Error("CancelBatch: invalid request body", "error", appErr, "batch_id", id)
		h.HandleError(w, appErr)
		return
	}
	v := validation.NewValidator()
	v.Field("reason", req.Reason).Required().MaxLength(500)
	if appErr := v.Validate(); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	view, err := h.Service.Cancel(r.Context(), id, req.Reason, actor)
	if err != nil {
		h.Logger.Error("CancelBatch: service error", "error", err, "batch_id", id, "actor", actor)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

// RetryFailed handles POST /api/v1/batches/{id}/retry-failed
func (h *Handler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := errors.ActorFromContext(r.Context())

	requeued, err := h.Service.RetryFailed(r.Context(), id, actor)
	if err != nil {
		h.Logger.Error("RetryFailed: service error", "error", err, "batch_id", id, "actor", actor)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, RetryResponse{BatchID: id, Requeued: requeued})
}

// MonitorProgress handles GET /api/v1/batches/{id}/progress
func (h *Handler) MonitorProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	progress, err := h.Service.MonitorProgress(r.Context(), id)
	if err != nil {
		h.Logger.Error("MonitorProgress: service error", "error", err, "batch_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, progress)
}

// CompletionEstimate handles GET /api/v1/batches/{id}/estimate
func (h *Handler) CompletionEstimate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	est, err := h.Service.CompletionEstimate(r.Context(), id)
	if err != nil {
		h.Logger.Error("CompletionEstimate: service error", "error", err, "batch_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, est)
}

// Report handles GET /api/v1/batches/{id}/report
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := h.Service.Report(r.Context(), id)
	if err != nil {
		h.Logger.Error("Report: service error", "error", err, "batch_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, report)
}

// Statistics handles GET /api/v1/batches/statistics
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Statistics(r.Context())
	if err != nil {
		h.Logger.Error("Statistics: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"by_status": stats})
}

// StatisticsByProgram handles GET /api/v1/batches/statistics/programs
func (h *Handler) StatisticsByProgram(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.StatisticsByProgram(r.Context())
	if err != nil {
		h.Logger.Error("StatisticsByProgram: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"by_program": stats})
}

// ProcessDue handles POST /api/v1/batches/process-due
func (h *Handler) ProcessDue(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.ProcessDueBatches(r.Context())
	if err != nil {
		h.Logger.Error("ProcessDue: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}

func queryInt(raw, field string) (int, *errors.AppError) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.NewValidationFieldError(field, field+" must be a positive integer", errors.ErrCodeInvalidFormat)
	}
	return n, nil
}
