package audit

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

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

type EntryResponse struct {
	Sequence    int64     `json:"sequence"`
	SubjectType string    `json:"subject_type"`
	SubjectID   string    `json:"subject_id"`
	EventType   string    `json:"event_type"`
	OldStatus   string    `json:"old_status,omitempty"`
	NewStatus   string    `json:"new_status,omitempty"`
	Actor       string    `json:"actor"`
	Description string    `json:"description,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
	Hash        string    `json:"hash"`
}

// GetTrail handles GET /api/v1/audit/{subjectId}
func (h *Handler) GetTrail(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectId")

	entries, err := h.Service.Trail(r.Context(), subjectID)
	if err != nil {
		h.Logger.Error("GetTrail: service error", "error", err, "subject_id", subjectID)
		h.HandleServiceError(w, err)
		return
	}

	resp := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, EntryResponse{
			Sequence:    e.Sequence,
			SubjectType: e.SubjectType,
			SubjectID:   e.SubjectID,
			EventType:   e.EventType,
			OldStatus:   e.OldStatus,
			NewStatus:   e.NewStatus,
			Actor:       e.Actor,
			Description: e.Description,
			OccurredAt:  e.OccurredAt,
			Hash:        e.Hash,
		})
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"subject_id": subjectID,
		"entries":    resp,
	})
}

// VerifyTrail handles GET /api/v1/audit/{subjectId}/verify
func (h *Handler) VerifyTrail(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectId")

	v, err := h.Service.Verify(r.Context(), subjectID)
	if err != nil {
		h.Logger.Error("VerifyTrail: service error", "error", err, "subject_id", subjectID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, v)
}
