package fsp

import (
	"log/slog"
	"net/http"

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

// ListProviders handles GET /api/v1/fsp
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"providers": h.Service.Providers(r.Context()),
	})
}
