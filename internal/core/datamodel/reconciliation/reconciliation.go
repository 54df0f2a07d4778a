package reconciliation

import (
	"time"

	"github.com/shopspring/decimal"
)

type Result struct {
	ID                string          `gorm:"column:id;primaryKey"`
	BatchID           string          `gorm:"column:batch_id;not null;index"`
	RunAt             time.Time       `gorm:"column:run_at;not null"`
	TotalPayments     int             `gorm:"column:total_payments;not null"`
	ReconciledCount   int             `gorm:"column:reconciled_count;not null"`
	UnreconciledCount int             `gorm:"column:unreconciled_count;not null"`
	ExpectedTotal     decimal.Decimal `gorm:"column:expected_total;type:decimal(18,2);not null"`
	ActualTotal       decimal.Decimal `gorm:"column:actual_total;type:decimal(18,2);not null"`
	Superseded        bool            `gorm:"column:superseded;not null;default:false"`
	RunBy             string          `gorm:"column:run_by;not null"`
	Discrepancies     []Discrepancy   `gorm:"foreignKey:ResultID"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (Result) TableName() string {
	return "reconciliation_results"
}

type Discrepancy struct {
	ID               string          `gorm:"column:id;primaryKey"`
	ResultID         string          `gorm:"column:result_id;not null;index"`
	PaymentID        string          `gorm:"column:payment_id;not null"`
	PaymentReference string          `gorm:"column:payment_reference;not null"`
	Expected         decimal.Decimal `gorm:"column:expected;type:decimal(18,2);not null"`
	Actual           decimal.Decimal `gorm:"column:actual;type:decimal(18,2);not null"`
	Difference       decimal.Decimal `gorm:"column:difference;type:decimal(18,2);not null"`
	Reason           string          `gorm:"column:reason;not null"`
	Position         int             `gorm:"column:position;not null"`
}

func (Discrepancy) TableName() string {
	return "reconciliation_discrepancies"
}
