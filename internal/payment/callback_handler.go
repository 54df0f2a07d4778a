package payment

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/disbursement/internal"
	fspmodel "github.com/frahmantamala/disbursement/internal/core/datamodel/fsp"
	"github.com/frahmantamala/disbursement/internal/fsp"
	"github.com/frahmantamala/disbursement/internal/transport"
)

const CallbackTokenHeader = "X-Callback-Token"

// CallbackVerifier authenticates provider callbacks.
type CallbackVerifier interface {
	VerifyCallback(ctx context.Context, code, token string) error
}

// CallbackHandler receives settlement callbacks from providers for payments
// they accepted earlier.
type CallbackHandler struct {
	*transport.BaseHandler
	verifier CallbackVerifier
	executor ExecutorAPI
	repo     RepositoryAPI
}

func NewCallbackHandler(verifier CallbackVerifier, executor ExecutorAPI, repo RepositoryAPI, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{
		BaseHandler: transport.NewBaseHandler(logger),
		verifier:    verifier,
		executor:    executor,
		repo:        repo,
	}
}

type CallbackResponse struct {
	Status    string `json:"status"`
	PaymentID string `json:"payment_id,omitempty"`
	State     Status `json:"payment_status,omitempty"`
}

// HandleCallback handles POST /fsp/{code}/callback.
//
// A callback racing its own submission is not queued: while Execute still
// holds the payment it gets 409, and before the provider reference is stored
// it gets 404. Providers are expected to retry non-2xx answers; otherwise the
// payment settles only through PollAccepted, which covers adapters that
// implement fsp.StatusChecker.
func (h *CallbackHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if err := h.verifier.VerifyCallback(r.Context(), code, r.Header.Get(CallbackTokenHeader)); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	var req fspmodel.CallbackPayload
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.Logger.Error("HandleCallback: invalid request body", "error", appErr, "fsp_code", code)
		h.HandleError(w, appErr)
		return
	}

	h.Logger.Info("received fsp callback",
		"fsp_code", code,
		"provider_reference", req.ProviderReference,
		"external_id", req.ExternalID,
		"status", req.Status)

	result, appErr := callbackResult(&req)
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	if result.Outcome == fsp.OutcomeAccepted {
		h.WriteJSON(w, http.StatusOK, CallbackResponse{Status: "ignored"})
		return
	}

	ref := req.ProviderReference
	if ref == "" {
		p, err := h.repo.GetByReference(r.Context(), req.ExternalID)
		if err != nil {
			h.Logger.Error("HandleCallback: payment lookup failed", "error", err, "external_id", req.ExternalID)
			h.HandleServiceError(w, err)
			return
		}
		ref = deref(p.ProviderReference)
	}

	actor := "FSP:" + code
	p, err := h.executor.Settle(r.Context(), code, ref, result, actor)
	if err != nil {
		h.Logger.Error("HandleCallback: settle failed",
			"error", err,
			"fsp_code", code,
			"provider_reference", ref)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, CallbackResponse{
		Status:    "processed",
		PaymentID: p.ID,
		State:     Status(p.Status),
	})
}

func callbackResult(req *fspmodel.CallbackPayload) (fsp.Result, *errors.AppError) {
	if req.ProviderReference == "" && req.ExternalID == "" {
		return fsp.Result{}, errors.NewValidationFieldError("provider_reference", "provider_reference or external_id is required", errors.ErrCodeValidationFailed)
	}

	res := fsp.Result{ProviderReference: req.ProviderReference}
	switch req.Status {
	case fspmodel.GatewayStatusSuccess:
		res.Outcome = fsp.OutcomeSuccess
		if req.ConfirmedAmount != "" {
			amt, err := decimal.NewFromString(req.ConfirmedAmount)
			if err != nil {
				return fsp.Result{}, errors.NewValidationFieldError("confirmed_amount", "confirmed_amount must be a decimal", errors.ErrCodeInvalidAmount)
			}
			res.ConfirmedAmount = &amt
		}
	case fspmodel.GatewayStatusFailed, fspmodel.GatewayStatusRejected:
		res.Outcome = fsp.OutcomePermanentFailure
		res.Reason = req.FailureCode
		if res.Reason == "" {
			res.Reason = "PROVIDER_REJECTED"
		}
	case fspmodel.GatewayStatusPending:
		res.Outcome = fsp.OutcomeAccepted
	default:
		return fsp.Result{}, errors.NewValidationFieldError("status", "unknown status "+string(req.Status), errors.ErrCodeInvalidFormat)
	}
	return res, nil
}
