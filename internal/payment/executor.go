package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/frahmantamala/disbursement/internal"
	"github.com/frahmantamala/disbursement/internal/audit"
	"github.com/frahmantamala/disbursement/internal/core/datamodel/payment"
	"github.com/frahmantamala/disbursement/internal/core/events"
	"github.com/frahmantamala/disbursement/internal/fsp"
)

const pollBatchSize = 200

// Executor submits payments to providers and applies their outcomes.
type Executor struct {
	repo      RepositoryAPI
	registry  ProviderRegistry
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time

	inflight sync.Map
}

func NewExecutor(repo RepositoryAPI, registry ProviderRegistry, publisher events.Publisher, logger *slog.Logger) *Executor {
	return &Executor{
		repo:      repo,
		registry:  registry,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// lock guards one payment within this process. The database claim guards it
// across processes.
func (e *Executor) lock(paymentID string) (func(), bool) {
	if _, busy := e.inflight.LoadOrStore(paymentID, struct{}{}); busy {
		return nil, false
	}
	return func() { e.inflight.Delete(paymentID) }, true
}

// Execute claims a PENDING payment, submits it to a provider and records the
// outcome. Provider failures are recorded on the payment, never returned.
// When every suitable provider is unhealthy it returns
// fsp.ErrProviderUnavailable and leaves the payment untouched.
func (e *Executor) Execute(ctx context.Context, paymentID, actor string) (*payment.Payment, error) {
	unlock, ok := e.lock(paymentID)
	if !ok {
		return nil, apperrors.ErrDispatchInProgress
	}
	defer unlock()

	p, err := e.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if Status(p.Status) != StatusPending {
		return nil, apperrors.NewInvalidStateTransitionError("payment", p.Status, string(StatusProcessing), apperrors.ErrCodeInvalidPaymentStatus)
	}

	channel, err := DecodePayout(p.ChannelType, p.PayoutDetails)
	if err != nil {
		return nil, fmt.Errorf("decode payout channel of payment %s: %w", p.ID, err)
	}

	adapter, profile, err := e.registry.Resolve(deref(p.FSPCode), channel.Channel(), p.Amount)
	if errors.Is(err, fsp.ErrNoProvider) {
		e.logger.Warn("no fsp configured for payment",
			"payment_id", p.ID,
			"channel", channel.Channel(),
			"fsp_code", deref(p.FSPCode),
			"amount", p.Amount.String())
		return e.fail(ctx, p, StatusPending, ReasonNoFSPConfigured, nil, actor)
	}
	if errors.Is(err, fsp.ErrProviderUnavailable) {
		// Left PENDING with its retries intact until a provider recovers.
		e.logger.Info("no healthy fsp for payment",
			"payment_id", p.ID,
			"channel", channel.Channel(),
			"fsp_code", deref(p.FSPCode))
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	release, err := e.registry.Acquire(ctx, profile.Code)
	if err != nil {
		return nil, err
	}
	defer release()

	submittedAt := e.now()
	p, err = e.repo.Transition(ctx, p.ID, Transition{
		From:        StatusPending,
		To:          StatusProcessing,
		Event:       audit.EventPaymentSubmitted,
		Actor:       actor,
		Description: "submitted to " + profile.Code,
		FSPCode:     stringPtr(profile.Code),
		SubmittedAt: &submittedAt,
	})
	if err != nil {
		return nil, err
	}

	// The provider call and the write of its outcome must finish even if the
	// caller goes away: money may already be moving.
	detached := context.WithoutCancel(ctx)

	submitCtx, cancel := context.WithTimeout(detached, profile.Timeout)
	result := fsp.Classify(adapter.Submit(submitCtx, SubmitRequestFor(p, channel)))
	cancel()

	e.logger.Info("fsp submission returned",
		"payment_id", p.ID,
		"reference", p.Reference,
		"fsp_code", profile.Code,
		"outcome", result.Outcome,
		"reason", result.Reason)

	return e.apply(detached, p, result, actor)
}

func SubmitRequestFor(p *payment.Payment, channel PayoutChannel) fsp.SubmitRequest {
	return fsp.SubmitRequest{
		PaymentID:     p.ID,
		Reference:     p.Reference,
		BeneficiaryID: p.BeneficiaryID,
		RecipientName: p.RecipientName,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Channel:       channel.Channel(),
		Destination:   channel.Destination(),
	}
}

// Settle applies an outcome reported after submission, by callback or by a
// status check, to the PROCESSING payment holding providerReference.
func (e *Executor) Settle(ctx context.Context, fspCode, providerReference string, result fsp.Result, actor string) (*payment.Payment, error) {
	p, err := e.repo.GetByProviderReference(ctx, fspCode, providerReference)
	if err != nil {
		return nil, err
	}

	unlock, ok := e.lock(p.ID)
	if !ok {
		return nil, apperrors.ErrDispatchInProgress
	}
	defer unlock()

	// Reload under the lock so a concurrent settle is seen.
	if p, err = e.repo.GetByID(ctx, p.ID); err != nil {
		return nil, err
	}
	if Status(p.Status) != StatusProcessing {
		return nil, apperrors.NewInvalidStateTransitionError("payment", p.Status, string(StatusCompleted), apperrors.ErrCodeInvalidPaymentStatus)
	}

	if result.ProviderReference == "" {
		result.ProviderReference = providerReference
	}
	return e.apply(ctx, p, result, actor)
}

// PollAccepted asks providers about payments they accepted more than
// olderThan ago and settles those with a final answer.
func (e *Executor) PollAccepted(ctx context.Context, olderThan time.Duration) (int, error) {
	pending, err := e.repo.ListAwaitingSettlement(ctx, e.now().Add(-olderThan), pollBatchSize)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return settled, err
		}

		code := deref(p.FSPCode)
		adapter, profile, ok := e.registry.Get(code)
		if !ok {
			continue
		}
		checker, ok := adapter.(fsp.StatusChecker)
		if !ok {
			continue
		}

		checkCtx, cancel := context.WithTimeout(ctx, profile.Timeout)
		result := fsp.Classify(checker.CheckStatus(checkCtx, deref(p.ProviderReference)))
		cancel()

		switch result.Outcome {
		case fsp.OutcomeAccepted, fsp.OutcomeTransientFailure:
			continue
		}

		if _, err := e.Settle(ctx, code, deref(p.ProviderReference), result, apperrors.SystemActor); err != nil {
			e.logger.Warn("failed to settle polled payment",
				"payment_id", p.ID,
				"fsp_code", code,
				"error", err)
			continue
		}
		settled++
	}
	return settled, nil
}

// apply moves a PROCESSING payment according to result.
func (e *Executor) apply(ctx context.Context, p *payment.Payment, result fsp.Result, actor string) (*payment.Payment, error) {
	var providerRef *string
	if result.ProviderReference != "" {
		providerRef = stringPtr(result.ProviderReference)
	}

	switch result.Outcome {
	case fsp.OutcomeSuccess:
		processedAt := e.now()
		confirmed := result.ConfirmedAmount
		updated, err := e.repo.Transition(ctx, p.ID, Transition{
			From:              StatusProcessing,
			To:                StatusCompleted,
			Event:             audit.EventPaymentCompleted,
			Actor:             actor,
			ProviderReference: providerRef,
			ConfirmedAmount:   confirmed,
			ProcessedAt:       &processedAt,
		})
		if err != nil {
			return nil, err
		}
		e.publish(ctx, events.EventTypePaymentCompleted, updated)
		return updated, nil

	case fsp.OutcomeAccepted:
		if providerRef == nil {
			return e.transient(ctx, p, "MISSING_PROVIDER_REFERENCE", actor)
		}
		return e.repo.RecordAcceptance(ctx, p.ID, *providerRef, actor)

	case fsp.OutcomePermanentFailure:
		reason := result.Reason
		if reason == "" {
			reason = "PROVIDER_REJECTED"
		}
		return e.fail(ctx, p, StatusProcessing, reason, providerRef, actor)

	default:
		return e.transient(ctx, p, result.Reason, actor)
	}
}

// transient requeues the payment while retries remain. A payment whose batch
// was cancelled meanwhile is cancelled instead.
func (e *Executor) transient(ctx context.Context, p *payment.Payment, reason, actor string) (*payment.Payment, error) {
	cancelled, err := e.repo.BatchCancelled(ctx, p.BatchID)
	if err != nil {
		return nil, err
	}
	if cancelled {
		updated, err := e.repo.Transition(ctx, p.ID, Transition{
			From:          StatusProcessing,
			To:            StatusCancelled,
			Event:         audit.EventPaymentCancelled,
			Actor:         actor,
			Description:   "transient failure " + reason + " after batch cancellation",
			FailureReason: stringPtr(ReasonBatchCancelled),
		})
		if err != nil {
			return nil, err
		}
		e.publish(ctx, events.EventTypePaymentCancelled, updated)
		return updated, nil
	}

	retries := p.RetryCount + 1
	if retries >= p.MaxRetries {
		processedAt := e.now()
		updated, err := e.repo.Transition(ctx, p.ID, Transition{
			From:          StatusProcessing,
			To:            StatusFailed,
			Event:         audit.EventPaymentFailed,
			Actor:         actor,
			Description:   "last attempt failed with " + reason,
			FailureReason: stringPtr(ReasonRetriesExhausted),
			RetryCount:    &retries,
			ProcessedAt:   &processedAt,
		})
		if err != nil {
			return nil, err
		}
		e.logger.Warn("payment retries exhausted",
			"payment_id", p.ID,
			"retry_count", retries,
			"reason", reason)
		e.publish(ctx, events.EventTypePaymentFailed, updated)
		return updated, nil
	}

	return e.repo.Transition(ctx, p.ID, Transition{
		From:          StatusProcessing,
		To:            StatusPending,
		Event:         audit.EventPaymentRetry,
		Actor:         actor,
		Description:   fmt.Sprintf("attempt %d failed with %s", retries, reason),
		FailureReason: stringPtr(reason),
		RetryCount:    &retries,
	})
}

func (e *Executor) fail(ctx context.Context, p *payment.Payment, from Status, reason string, providerRef *string, actor string) (*payment.Payment, error) {
	processedAt := e.now()
	updated, err := e.repo.Transition(ctx, p.ID, Transition{
		From:              from,
		To:                StatusFailed,
		Event:             audit.EventPaymentFailed,
		Actor:             actor,
		Description:       reason,
		FailureReason:     stringPtr(reason),
		ProviderReference: providerRef,
		ProcessedAt:       &processedAt,
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events.EventTypePaymentFailed, updated)
	return updated, nil
}

func (e *Executor) publish(ctx context.Context, eventType string, p *payment.Payment) {
	if e.publisher == nil {
		return
	}
	event := events.NewPaymentEvent(eventType, p.ID, p.Reference, p.BatchID, p.BeneficiaryID,
		p.Amount.StringFixed(2), p.Currency, p.Status, deref(p.FailureReason))
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Error("failed to publish payment event",
			"event_type", eventType,
			"payment_id", p.ID,
			"error", err)
	}
}
