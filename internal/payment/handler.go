package payment

import (
	"log/slog"
	"net/http"

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

// GetPayment handles GET /api/v1/payments/{id}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.Logger.Error("GetPayment: service error", "error", err, "payment_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

// ListBatchPayments handles GET /api/v1/batches/{id}/payments
func (h *Handler) ListBatchPayments(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	views, err := h.Service.ListByBatch(r.Context(), batchID)
	if err != nil {
		h.Logger.Error("ListBatchPayments: service error", "error", err, "batch_id", batchID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"batch_id": batchID,
		"payments": views,
	})
}

// HoldPayment handles POST /api/v1/payments/{id}/hold
func (h *Handler) HoldPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := errors.ActorFromContext(r.Context())

	req, appErr := h.decodeReason(r)
	if appErr != nil {
		h.Logger.Error("HoldPayment: invalid request", "error", appErr, "payment_id", id)
		h.HandleError(w, appErr)
		return
	}

	view, err := h.Service.Hold(r.Context(), id, req.Reason, actor)
	if err != nil {
		h.Logger.Error("HoldPayment: service error", "error", err, "payment_id", id, "actor", actor)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

// ReleasePayment handles POST /api/v1/payments/{id}/release
func (h *Handler) ReleasePayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := errors.ActorFromContext(r.Context())

	view, err := h.Service.Release(r.Context(), id, actor)
	if err != nil {
		h.Logger.Error("ReleasePayment: service error", "error", err, "payment_id", id, "actor", actor)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

// RefundPayment handles POST /api/v1/payments/{id}/refund
func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := errors.ActorFromContext(r.Context())

	req, appErr := h.decodeReason(r)
	if appErr != nil {
		h.Logger.Error("RefundPayment: invalid request", "error", appErr, "payment_id", id)
		h.HandleError(w, appErr)
		return
	}

	view, err := h.Service.Refund(r.Context(), id, req.Reason, actor)
	if err != nil {
		h.Logger.Error("RefundPayment: service error", "error", err, "payment_id", id, "actor", actor)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) decodeReason(r *http.Request) (*ReasonRequest, *errors.AppError) {
	var req ReasonRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		return nil, appErr
	}

	v := validation.NewValidator()
	v.Field("reason", req.Reason).Required().MaxLength(500)
	if appErr := v.Validate(); appErr != nil {
		return nil, appErr
	}
	return &req, nil
}
