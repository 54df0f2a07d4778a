package reconciliation

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/disbursement/internal"
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

// Reconcile handles POST /api/v1/batches/{id}/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")
	actor := errors.ActorFromContext(r.Context())

	view, err := h.Service.Reconcile(r.Context(), batchID, actor)
	if err != nil {
		h.Logger.Error("Reconcile: service error", "error", err, "batch_id", batchID, "actor", actor)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, view)
}

// Latest handles GET /api/v1/batches/{id}/reconciliation
func (h *Handler) Latest(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	view, err := h.Service.Latest(r.Context(), batchID)
	if err != nil {
		h.Logger.Error("Latest: service error", "error", err, "batch_id", batchID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

// History handles GET /api/v1/batches/{id}/reconciliation/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	views, err := h.Service.History(r.Context(), batchID)
	if err != nil {
		h.Logger.Error("History: service error", "error", err, "batch_id", batchID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"results": views})
}
