package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/disbursement/internal/audit"
	paymentmodel "github.com/frahmantamala/disbursement/internal/core/datamodel/payment"
	"github.com/frahmantamala/disbursement/internal/payment"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusPaused     Status = "PAUSED"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

var AllStatuses = []Status{
	StatusPending, StatusProcessing, StatusPaused,
	StatusCompleted, StatusFailed, StatusCancelled,
}

// transitions is the batch state machine. COMPLETED, FAILED and CANCELLED
// have no way out.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled, StatusFailed},
	StatusProcessing: {StatusPaused, StatusCompleted, StatusCancelled},
	StatusPaused:     {StatusProcessing, StatusCancelled},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// dispatchable reports whether PENDING payments of a batch in s may be
// submitted. A COMPLETED batch only has PENDING payments after a retry.
func (s Status) dispatchable() bool {
	return s == StatusProcessing || s == StatusCompleted
}

// retryableFrom lists the batch states in which failed payments may be requeued.
var retryableFrom = []Status{StatusProcessing, StatusPaused, StatusCompleted}

const (
	MaxAmount       = "999999999.99"
	MaxLineItems    = 10000
	MinRetries      = 1
	MaxRetriesLimit = 10
)

// Sequence names and numbers are per prefix and year, e.g. BATCH-2026-000042.
func BatchSequence(year int) string   { return fmt.Sprintf("BATCH-%d", year) }
func PaymentSequence(year int) string { return fmt.Sprintf("PAY-%d", year) }

func FormatNumber(sequence string, n int64) string {
	return fmt.Sprintf("%s-%06d", sequence, n)
}

type PaymentLine struct {
	BeneficiaryID string                `json:"beneficiary_id"`
	RecipientName string                `json:"recipient_name"`
	Amount        decimal.Decimal       `json:"amount"`
	FSPCode       string                `json:"fsp_code,omitempty"`
	MaxRetries    *int                  `json:"max_retries,omitempty"`
	Payout        payment.PayoutRequest `json:"payout"`
}

type CreateRequest struct {
	ProgramID     string                 `json:"program_id"`
	ProgramName   string                 `json:"program_name"`
	Currency      string                 `json:"currency,omitempty"`
	ScheduledDate time.Time              `json:"scheduled_date"`
	MaxRetries    *int                   `json:"max_retries,omitempty"`
	Description   string                 `json:"description,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Payments      []PaymentLine          `json:"payments"`
}

type Filter struct {
	ProgramID string
	Status    Status
	Page      int
	PageSize  int
}

func (f *Filter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
}

// Transition is a compare-and-swap status change of one batch, optionally
// cascading to its payments in the same transaction.
type Transition struct {
	From        []Status
	To          Status
	Event       audit.EventType
	Actor       string
	Description string
	StartedAt   *time.Time
	CompletedAt *time.Time
	Cascade     *Cascade
}

// Cascade moves every payment of the batch in one of From to To, one audit
// entry per payment moved.
type Cascade struct {
	From          []payment.Status
	To            payment.Status
	Event         audit.EventType
	FailureReason string
}

type Totals struct {
	Count  int
	Amount decimal.Decimal
}

type StatusStatistic struct {
	Status      Status          `json:"status" db:"status"`
	Count       int             `json:"count" db:"count"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
}

type ProgramStatistic struct {
	ProgramID     string          `json:"program_id" db:"program_id"`
	ProgramName   string          `json:"program_name" db:"program_name"`
	Batches       int             `json:"batches" db:"batches"`
	TotalPayments int             `json:"total_payments" db:"total_payments"`
	TotalAmount   decimal.Decimal `json:"total_amount" db:"total_amount"`
}

type StatusBreakdown struct {
	Status payment.Status  `json:"status" db:"status"`
	Count  int             `json:"count" db:"count"`
	Amount decimal.Decimal `json:"amount" db:"amount"`
}

type FSPBreakdown struct {
	FSPCode   string          `json:"fsp_code" db:"fsp_code"`
	Count     int             `json:"count" db:"count"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Completed int             `json:"completed" db:"completed"`
}

type RepositoryAPI interface {
	// Create persists the batch, its payments and their audit entries in one
	// transaction, numbering them from the sequences.
	Create(ctx context.Context, b *paymentmodel.PaymentBatch, payments []*paymentmodel.Payment) error
	GetByID(ctx context.Context, id string) (*paymentmodel.PaymentBatch, error)
	GetByNumber(ctx context.Context, number string) (*paymentmodel.PaymentBatch, error)
	GetStatus(ctx context.Context, id string) (Status, error)
	List(ctx context.Context, filter Filter) ([]*paymentmodel.PaymentBatch, int64, error)
	ListDue(ctx context.Context, now time.Time) ([]*paymentmodel.PaymentBatch, error)
	ListByStatus(ctx context.Context, status Status) ([]*paymentmodel.PaymentBatch, error)
	// Transition applies t only if the batch is still in one of t.From.
	Transition(ctx context.Context, id string, t Transition) (*paymentmodel.PaymentBatch, int, error)
	// RequeueFailed moves FAILED payments with retries left back to PENDING,
	// provided the batch is in one of batchStates.
	RequeueFailed(ctx context.Context, id string, batchStates []Status, actor string) (int, error)
	CountByStatus(ctx context.Context, id string) (map[payment.Status]int, error)
	PaymentTotals(ctx context.Context, id string) (Totals, error)
	PendingPaymentIDs(ctx context.Context, id string) ([]string, error)
	SaveSnapshot(ctx context.Context, id string, counts payment.Counts) error
}

// StatsRepositoryAPI serves the aggregate read models.
type StatsRepositoryAPI interface {
	ByStatus(ctx context.Context) ([]StatusStatistic, error)
	ByProgram(ctx context.Context) ([]ProgramStatistic, error)
	PaymentsByStatus(ctx context.Context, batchID string) ([]StatusBreakdown, error)
	PaymentsByFSP(ctx context.Context, batchID string) ([]FSPBreakdown, error)
	CountsByBatch(ctx context.Context, batchIDs []string) (map[string]map[payment.Status]int, error)
}

type ServiceAPI interface {
	Create(ctx context.Context, req CreateRequest, actor string) (*View, error)
	Start(ctx context.Context, id, actor string) (*View, error)
	Pause(ctx context.Context, id, actor string) (*View, error)
	Resume(ctx context.Context, id, actor string) (*View, error)
	Cancel(ctx context.Context, id, reason, actor string) (*View, error)
	MonitorProgress(ctx context.Context, id string) (*Progress, error)
	RetryFailed(ctx context.Context, id, actor string) (int, error)
	ProcessDueBatches(ctx context.Context) (*DueResult, error)
	Get(ctx context.Context, id string) (*View, error)
	GetByNumber(ctx context.Context, number string) (*View, error)
	List(ctx context.Context, filter Filter) (*ListResponse, error)
	Statistics(ctx context.Context) ([]StatusStatistic, error)
	StatisticsByProgram(ctx context.Context) ([]ProgramStatistic, error)
	CompletionEstimate(ctx context.Context, id string) (*Estimate, error)
	Report(ctx context.Context, id string) (*Report, error)
}
