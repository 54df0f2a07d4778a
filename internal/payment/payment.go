package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/disbursement/internal/audit"
	"github.com/frahmantamala/disbursement/internal/core/datamodel/payment"
	"github.com/frahmantamala/disbursement/internal/fsp"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
	StatusOnHold     Status = "ON_HOLD"
)

var AllStatuses = []Status{
	StatusPending, StatusProcessing, StatusCompleted, StatusFailed,
	StatusCancelled, StatusRefunded, StatusOnHold,
}

// transitions is the payment state machine. FAILED -> PENDING is only taken by
// a batch retry, PENDING -> FAILED only when no provider can take the payment.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed, StatusCancelled, StatusOnHold},
	StatusProcessing: {StatusCompleted, StatusPending, StatusFailed, StatusCancelled},
	StatusCompleted:  {StatusRefunded},
	StatusFailed:     {StatusPending},
	StatusOnHold:     {StatusPending, StatusCancelled},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Bucket is the counter a status contributes to.
type Bucket int

const (
	BucketPending Bucket = iota
	BucketSuccessful
	BucketFailed
)

func (s Status) Bucket() Bucket {
	switch s {
	case StatusCompleted, StatusRefunded:
		return BucketSuccessful
	case StatusFailed, StatusCancelled:
		return BucketFailed
	default:
		return BucketPending
	}
}

// Counts partitions a set of payments by bucket. Successful+Failed+Pending
// always equals Total.
type Counts struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`
}

func Tally(byStatus map[Status]int) Counts {
	var c Counts
	for status, n := range byStatus {
		c.Total += n
		switch status.Bucket() {
		case BucketSuccessful:
			c.Successful += n
		case BucketFailed:
			c.Failed += n
		default:
			c.Pending += n
		}
	}
	return c
}

const (
	ReasonNoFSPConfigured  = "NO_FSP_CONFIGURED"
	ReasonRetriesExhausted = "RETRIES_EXHAUSTED"
	ReasonBatchCancelled   = "BATCH_CANCELLED"
)

// Transition is a compare-and-swap status change of one payment. Nil fields
// leave the column untouched.
type Transition struct {
	From              Status
	To                Status
	Event             audit.EventType
	Actor             string
	Description       string
	FailureReason     *string
	FSPCode           *string
	ProviderReference *string
	ConfirmedAmount   *decimal.Decimal
	RetryCount        *int
	SubmittedAt       *time.Time
	ProcessedAt       *time.Time
}

type RepositoryAPI interface {
	GetByID(ctx context.Context, id string) (*payment.Payment, error)
	GetByReference(ctx context.Context, reference string) (*payment.Payment, error)
	GetByProviderReference(ctx context.Context, fspCode, providerReference string) (*payment.Payment, error)
	ListByBatch(ctx context.Context, batchID string) ([]*payment.Payment, error)
	ListAwaitingSettlement(ctx context.Context, submittedBefore time.Time, limit int) ([]*payment.Payment, error)
	// Transition applies t only if the payment is still in t.From and writes
	// the audit entry in the same transaction.
	Transition(ctx context.Context, id string, t Transition) (*payment.Payment, error)
	// RecordAcceptance stores the provider reference of a PROCESSING payment
	// the provider will settle later.
	RecordAcceptance(ctx context.Context, id, providerReference, actor string) (*payment.Payment, error)
	BatchCancelled(ctx context.Context, batchID string) (bool, error)
}

// ProviderRegistry is the part of fsp.Registry the executor needs.
type ProviderRegistry interface {
	Resolve(preferred string, ch fsp.Channel, amount decimal.Decimal) (fsp.Adapter, fsp.Profile, error)
	Acquire(ctx context.Context, code string) (func(), error)
	Get(code string) (fsp.Adapter, fsp.Profile, bool)
}

type ExecutorAPI interface {
	Execute(ctx context.Context, paymentID, actor string) (*payment.Payment, error)
	Settle(ctx context.Context, fspCode, providerReference string, result fsp.Result, actor string) (*payment.Payment, error)
	PollAccepted(ctx context.Context, olderThan time.Duration) (int, error)
}

type ServiceAPI interface {
	Get(ctx context.Context, id string) (*View, error)
	ListByBatch(ctx context.Context, batchID string) ([]*View, error)
	Hold(ctx context.Context, id, reason, actor string) (*View, error)
	Release(ctx context.Context, id, actor string) (*View, error)
	Refund(ctx context.Context, id, reason, actor string) (*View, error)
}

func stringPtr(s string) *string {
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
