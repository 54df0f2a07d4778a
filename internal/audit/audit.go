package audit

import (
	"context"
	"time"

	auditmodel "github.com/frahmantamala/disbursement/internal/core/datamodel/audit"
	"gorm.io/gorm"
)

type SubjectType string

const (
	SubjectPayment SubjectType = "PAYMENT"
	SubjectBatch   SubjectType = "BATCH"
)

type EventType string

const (
	EventPaymentCreated   EventType = "PAYMENT_CREATED"
	EventPaymentSubmitted EventType = "PAYMENT_SUBMITTED"
	EventPaymentAccepted  EventType = "PAYMENT_ACCEPTED"
	EventPaymentCompleted EventType = "PAYMENT_COMPLETED"
	EventPaymentFailed    EventType = "PAYMENT_FAILED"
	EventPaymentCancelled EventType = "PAYMENT_CANCELLED"
	EventPaymentRefunded  EventType = "PAYMENT_REFUNDED"
	EventPaymentRetry     EventType = "PAYMENT_RETRY"
	EventPaymentOnHold    EventType = "PAYMENT_ON_HOLD"
	EventPaymentReleased  EventType = "PAYMENT_RELEASED"

	EventBatchCreated   EventType = "BATCH_CREATED"
	EventBatchStarted   EventType = "BATCH_STARTED"
	EventBatchPaused    EventType = "BATCH_PAUSED"
	EventBatchResumed   EventType = "BATCH_RESUMED"
	EventBatchCompleted EventType = "BATCH_COMPLETED"
	EventBatchFailed    EventType = "BATCH_FAILED"
	EventBatchCancelled EventType = "BATCH_CANCELLED"

	EventReconciliationCompleted   EventType = "RECONCILIATION_COMPLETED"
	EventReconciliationDiscrepancy EventType = "RECONCILIATION_DISCREPANCY"
)

// Record is one state transition to be appended to the log.
type Record struct {
	SubjectType SubjectType
	SubjectID   string
	EventType   EventType
	OldStatus   string
	NewStatus   string
	Actor       string
	Description string
	OccurredAt  time.Time
}

// Writer appends records inside the caller's transaction so the status change
// and its audit entry commit together.
type Writer interface {
	Append(tx *gorm.DB, records ...Record) error
}

type RepositoryAPI interface {
	Writer
	Trail(ctx context.Context, subjectID string) ([]*auditmodel.Entry, error)
}

type ServiceAPI interface {
	Trail(ctx context.Context, subjectID string) ([]*auditmodel.Entry, error)
	Verify(ctx context.Context, subjectID string) (*Verification, error)
}

type Verification struct {
	SubjectID string `json:"subject_id"`
	Entries   int    `json:"entries"`
	Valid     bool   `json:"valid"`
	BrokenAt  *int64 `json:"broken_at,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
