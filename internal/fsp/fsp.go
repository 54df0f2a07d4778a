package fsp

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Channel is the payout channel a provider can deliver to.
type Channel string

const (
	ChannelBankTransfer  Channel = "BANK_TRANSFER"
	ChannelDigitalWallet Channel = "DIGITAL_WALLET"
	ChannelCashPickup    Channel = "CASH_PICKUP"
)

var AllChannels = []Channel{ChannelBankTransfer, ChannelDigitalWallet, ChannelCashPickup}

func (c Channel) Valid() bool {
	switch c {
	case ChannelBankTransfer, ChannelDigitalWallet, ChannelCashPickup:
		return true
	}
	return false
}

type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	// OutcomeAccepted means the provider took the payment and will report
	// the final outcome later, by callback or status check.
	OutcomeAccepted         Outcome = "ACCEPTED"
	OutcomeTransientFailure Outcome = "TRANSIENT_FAILURE"
	OutcomePermanentFailure Outcome = "PERMANENT_FAILURE"
)

// SubmitRequest carries what a provider needs to move one payment.
type SubmitRequest struct {
	PaymentID     string
	Reference     string
	BeneficiaryID string
	RecipientName string
	Amount        decimal.Decimal
	Currency      string
	Channel       Channel
	Destination   map[string]string
}

type Result struct {
	Outcome           Outcome
	ProviderReference string
	ConfirmedAmount   *decimal.Decimal
	Reason            string
}

//go:generate mockgen -destination=mocks/mock_fsp.go -package=mocks -source=fsp.go Adapter,StatusCheckingAdapter
type Adapter interface {
	Code() string
	Submit(ctx context.Context, req SubmitRequest) (Result, error)
}

// StatusChecker is implemented by adapters that can report the settled
// state of a submitted payment.
type StatusChecker interface {
	CheckStatus(ctx context.Context, providerReference string) (Result, error)
}

// StatusCheckingAdapter is an adapter that also answers status checks.
type StatusCheckingAdapter interface {
	Adapter
	StatusChecker
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// TransientProviderError is a failure that a later attempt may not repeat.
type TransientProviderError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *TransientProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: transient failure %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: transient failure %s", e.Provider, e.Reason)
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// PermanentProviderError is a failure that retrying will not fix.
type PermanentProviderError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *PermanentProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: permanent failure %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: permanent failure %s", e.Provider, e.Reason)
}

func (e *PermanentProviderError) Unwrap() error { return e.Err }

var (
	// ErrNoProvider means no registered provider can ever serve the request.
	ErrNoProvider = errors.New("no provider configured for channel and amount")
	// ErrProviderUnavailable means a suitable provider exists but none is healthy.
	ErrProviderUnavailable = errors.New("no healthy provider available")
)

// Classify turns an adapter call into an outcome. Errors are transient unless
// the adapter says otherwise; a timeout never proves the payment was not received.
func Classify(res Result, err error) Result {
	if err == nil {
		if res.Outcome == "" {
			res.Outcome = OutcomeTransientFailure
			res.Reason = "EMPTY_PROVIDER_RESPONSE"
		}
		return res
	}

	var permanent *PermanentProviderError
	if errors.As(err, &permanent) {
		return Result{Outcome: OutcomePermanentFailure, ProviderReference: res.ProviderReference, Reason: permanent.Reason}
	}

	reason := "PROVIDER_ERROR"
	var transient *TransientProviderError
	switch {
	case errors.As(err, &transient):
		reason = transient.Reason
	case errors.Is(err, context.DeadlineExceeded):
		reason = "PROVIDER_TIMEOUT"
	case errors.Is(err, ErrProviderUnavailable):
		reason = "PROVIDER_UNAVAILABLE"
	}
	return Result{Outcome: OutcomeTransientFailure, ProviderReference: res.ProviderReference, Reason: reason}
}
