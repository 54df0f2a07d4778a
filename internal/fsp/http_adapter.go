package fsp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	fspmodel "github.com/frahmantamala/disbursement/internal/core/datamodel/fsp"
)

type HTTPAdapterConfig struct {
	Code    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPAdapter talks JSON to a provider gateway.
type HTTPAdapter struct {
	code    string
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPAdapter(cfg HTTPAdapterConfig, logger *slog.Logger) *HTTPAdapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPAdapter{
		code:    cfg.Code,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (a *HTTPAdapter) Code() string {
	return a.code
}

func (a *HTTPAdapter) Submit(ctx context.Context, req SubmitRequest) (Result, error) {
	body := &fspmodel.GatewayPaymentRequest{
		ExternalID:    req.Reference,
		Amount:        req.Amount.StringFixed(2),
		Currency:      req.Currency,
		Channel:       string(req.Channel),
		RecipientName: req.RecipientName,
		Destination:   req.Destination,
	}
	if err := body.Validate(); err != nil {
		return Result{}, &PermanentProviderError{Provider: a.code, Reason: "INVALID_REQUEST", Err: err}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return Result{}, &PermanentProviderError{Provider: a.code, Reason: "INVALID_REQUEST", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/payments", bytes.NewReader(jsonData))
	if err != nil {
		return Result{}, &PermanentProviderError{Provider: a.code, Reason: "INVALID_REQUEST", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.Reference)
	a.authorize(httpReq)

	a.logger.Debug("submitting payment to fsp",
		"fsp_code", a.code,
		"reference", req.Reference,
		"channel", req.Channel)

	data, err := a.do(httpReq)
	if err != nil {
		return Result{}, err
	}
	return a.toResult(data), nil
}

func (a *HTTPAdapter) CheckStatus(ctx context.Context, providerReference string) (Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/payments/%s", a.baseURL, url.PathEscape(providerReference)), nil)
	if err != nil {
		return Result{}, &PermanentProviderError{Provider: a.code, Reason: "INVALID_REQUEST", Err: err}
	}
	a.authorize(httpReq)

	data, err := a.do(httpReq)
	if err != nil {
		return Result{}, err
	}
	return a.toResult(data), nil
}

func (a *HTTPAdapter) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	a.authorize(httpReq)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("health endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (a *HTTPAdapter) authorize(r *http.Request) {
	if a.apiKey != "" {
		r.Header.Set("X-API-Key", a.apiKey)
	}
}

// do sends the request and classifies transport and status failures:
// network errors, timeouts, 429 and 5xx are transient, other 4xx permanent.
func (a *HTTPAdapter) do(req *http.Request) (*fspmodel.GatewayPaymentData, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		reason := "NETWORK_ERROR"
		if ue, ok := err.(*url.Error); ok && ue.Timeout() {
			reason = "PROVIDER_TIMEOUT"
		}
		return nil, &TransientProviderError{Provider: a.code, Reason: reason, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &TransientProviderError{Provider: a.code, Reason: "NETWORK_ERROR", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &TransientProviderError{Provider: a.code, Reason: "RATE_LIMITED"}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &TransientProviderError{Provider: a.code, Reason: fmt.Sprintf("HTTP_%d", resp.StatusCode)}
	case resp.StatusCode >= http.StatusBadRequest:
		reason := fmt.Sprintf("HTTP_%d", resp.StatusCode)
		var failed fspmodel.GatewayPaymentResponse
		if json.Unmarshal(raw, &failed) == nil && failed.Data.FailureCode != "" {
			reason = failed.Data.FailureCode
		}
		return nil, &PermanentProviderError{Provider: a.code, Reason: reason}
	}

	var apiResponse fspmodel.GatewayPaymentResponse
	if err := json.Unmarshal(raw, &apiResponse); err != nil {
		return nil, &TransientProviderError{Provider: a.code, Reason: "MALFORMED_RESPONSE", Err: err}
	}
	return &apiResponse.Data, nil
}

// toResult leaves ConfirmedAmount nil when the provider reports none.
func (a *HTTPAdapter) toResult(data *fspmodel.GatewayPaymentData) Result {
	res := Result{ProviderReference: data.ID}

	switch data.Status {
	case fspmodel.GatewayStatusSuccess:
		res.Outcome = OutcomeSuccess
		if data.ConfirmedAmount != "" {
			if amt, err := decimal.NewFromString(data.ConfirmedAmount); err == nil {
				res.ConfirmedAmount = &amt
			}
		}
	case fspmodel.GatewayStatusPending:
		res.Outcome = OutcomeAccepted
	case fspmodel.GatewayStatusFailed, fspmodel.GatewayStatusRejected:
		res.Outcome = OutcomePermanentFailure
		res.Reason = data.FailureCode
		if res.Reason == "" {
			res.Reason = "PROVIDER_REJECTED"
		}
	default:
		res.Outcome = OutcomeTransientFailure
		res.Reason = "UNKNOWN_PROVIDER_STATUS"
		a.logger.Warn("unknown fsp status", "fsp_code", a.code, "status", data.Status)
	}
	return res
}
