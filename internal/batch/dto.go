package batch

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	paymentmodel "github.com/frahmantamala/disbursement/internal/core/datamodel/payment"
	"github.com/frahmantamala/disbursement/internal/payment"
)

// View is the API shape of a batch. Its counters are computed from the
// payment rows at read time.
type View struct {
	ID            string                 `json:"id"`
	BatchNumber   string                 `json:"batch_number"`
	ProgramID     string                 `json:"program_id"`
	ProgramName   string                 `json:"program_name,omitempty"`
	Currency      string                 `json:"currency"`
	TotalAmount   decimal.Decimal        `json:"total_amount"`
	TotalPayments int                    `json:"total_payments"`
	Counts        payment.Counts         `json:"counts"`
	Status        Status                 `json:"status"`
	MaxRetries    int                    `json:"max_retries"`
	ScheduledDate time.Time              `json:"scheduled_date"`
	StartedAt     *time.Time             `json:"started_at,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	Description   string                 `json:"description,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedBy     string                 `json:"created_by"`
	UpdatedBy     string                 `json:"updated_by,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

func ToView(b *paymentmodel.PaymentBatch, byStatus map[payment.Status]int) *View {
	if b == nil {
		return nil
	}
	v := &View{
		ID:            b.ID,
		BatchNumber:   b.BatchNumber,
		ProgramID:     b.ProgramID,
		ProgramName:   b.ProgramName,
		Currency:      b.Currency,
		TotalAmount:   b.TotalAmount,
		TotalPayments: b.TotalPayments,
		Counts:        payment.Tally(byStatus),
		Status:        Status(b.Status),
		MaxRetries:    b.MaxRetries,
		ScheduledDate: b.ScheduledDate,
		StartedAt:     b.StartedAt,
		CompletedAt:   b.CompletedAt,
		Description:   b.Description,
		CreatedBy:     b.CreatedBy,
		UpdatedBy:     b.UpdatedBy,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
	if len(b.Metadata) > 0 {
		_ = json.Unmarshal(b.Metadata, &v.Metadata)
	}
	return v
}

type ListResponse struct {
	Batches  []*View `json:"batches"`
	Total    int64   `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

// Progress is the outcome of one monitorProgress pass.
type Progress struct {
	BatchID           string         `json:"batch_id"`
	Status            Status         `json:"status"`
	Counts            payment.Counts `json:"counts"`
	CompletionPercent float64        `json:"completion_percent"`
	Completed         bool           `json:"completed"`
}

type DueResult struct {
	Started []string          `json:"started"`
	Failed  map[string]string `json:"failed,omitempty"`
}

type Estimate struct {
	BatchID               string     `json:"batch_id"`
	Status                Status     `json:"status"`
	Total                 int        `json:"total"`
	Completed             int        `json:"completed"`
	Remaining             int        `json:"remaining"`
	CompletionPercent     float64    `json:"completion_percent"`
	ElapsedSeconds        float64    `json:"elapsed_seconds,omitempty"`
	EstimatedRemainingSec *float64   `json:"estimated_remaining_seconds,omitempty"`
	EstimatedCompletionAt *time.Time `json:"estimated_completion_at,omitempty"`
}

type Report struct {
	Batch       *View             `json:"batch"`
	ByStatus    []StatusBreakdown `json:"by_status"`
	ByFSP       []FSPBreakdown    `json:"by_fsp"`
	GeneratedAt time.Time         `json:"generated_at"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type RetryResponse struct {
	BatchID  string `json:"batch_id"`
	Requeued int    `json:"requeued"`
}
