package payment

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Payment struct {
	ID                string           `gorm:"column:id;primaryKey"`
	Reference         string           `gorm:"column:reference;not null;uniqueIndex"`
	BatchID           string           `gorm:"column:batch_id;not null;index"`
	BeneficiaryID     string           `gorm:"column:beneficiary_id;not null"`
	RecipientName     string           `gorm:"column:recipient_name;not null"`
	Amount            decimal.Decimal  `gorm:"column:amount;type:decimal(18,2);not null"`
	Currency          string           `gorm:"column:currency;size:3;not null"`
	ChannelType       string           `gorm:"column:channel_type;not null"`
	PayoutDetails     datatypes.JSON   `gorm:"column:payout_details"`
	FSPCode           *string          `gorm:"column:fsp_code"`
	ProviderReference *string          `gorm:"column:provider_reference;index"`
	ConfirmedAmount   *decimal.Decimal `gorm:"column:confirmed_amount;type:decimal(18,2)"`
	Status            string           `gorm:"column:status;not null;index"`
	RetryCount        int              `gorm:"column:retry_count;not null;default:0"`
	MaxRetries        int              `gorm:"column:max_retries;not null"`
	FailureReason     *string          `gorm:"column:failure_reason"`
	ScheduledAt       time.Time        `gorm:"column:scheduled_at;not null"`
	SubmittedAt       *time.Time       `gorm:"column:submitted_at"`
	ProcessedAt       *time.Time       `gorm:"column:processed_at"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string {
	return "payments"
}

type PaymentBatch struct {
	ID                 string          `gorm:"column:id;primaryKey"`
	BatchNumber        string          `gorm:"column:batch_number;not null;uniqueIndex"`
	ProgramID          string          `gorm:"column:program_id;not null;index"`
	ProgramName        string          `gorm:"column:program_name"`
	Currency           string          `gorm:"column:currency;size:3;not null"`
	TotalAmount        decimal.Decimal `gorm:"column:total_amount;type:decimal(18,2);not null"`
	TotalPayments      int             `gorm:"column:total_payments;not null"`
	SuccessfulPayments int             `gorm:"column:successful_payments;not null;default:0"`
	FailedPayments     int             `gorm:"column:failed_payments;not null;default:0"`
	PendingPayments    int             `gorm:"column:pending_payments;not null;default:0"`
	Status             string          `gorm:"column:status;not null;index"`
	MaxRetries         int             `gorm:"column:max_retries;not null"`
	ScheduledDate      time.Time       `gorm:"column:scheduled_date;not null"`
	StartedAt          *time.Time      `gorm:"column:started_at"`
	CompletedAt        *time.Time      `gorm:"column:completed_at"`
	Description        string          `gorm:"column:description"`
	Metadata           datatypes.JSON  `gorm:"column:metadata"`
	CreatedBy          string          `gorm:"column:created_by;not null"`
	UpdatedBy          string          `gorm:"column:updated_by"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentBatch) TableName() string {
	return "payment_batches"
}

// NumberSequence backs the human readable BATCH-/PAY- numbers, one row per prefix and year.
type NumberSequence struct {
	Name  string `gorm:"column:name;primaryKey"`
	Value int64  `gorm:"column:value;not null"`
}

func (NumberSequence) TableName() string {
	return "number_sequences"
}
