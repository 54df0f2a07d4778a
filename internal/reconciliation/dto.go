package reconciliation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/disbursement/internal/core/datamodel/reconciliation"
)

type DiscrepancyView struct {
	PaymentID        string          `json:"payment_id"`
	PaymentReference string          `json:"payment_reference"`
	Expected         decimal.Decimal `json:"expected"`
	Actual           decimal.Decimal `json:"actual"`
	Difference       decimal.Decimal `json:"difference"`
	Reason           string          `json:"reason"`
}

type View struct {
	ID                string            `json:"id"`
	BatchID           string            `json:"batch_id"`
	RunAt             time.Time         `json:"run_at"`
	RunBy             string            `json:"run_by"`
	TotalPayments     int               `json:"total_payments"`
	ReconciledCount   int               `json:"reconciled_count"`
	UnreconciledCount int               `json:"unreconciled_count"`
	ExpectedTotal     decimal.Decimal   `json:"expected_total"`
	ActualTotal       decimal.Decimal   `json:"actual_total"`
	Superseded        bool              `json:"superseded"`
	Discrepancies     []DiscrepancyView `json:"discrepancies"`
}

func ToView(r *reconciliation.Result) *View {
	if r == nil {
		return nil
	}
	v := &View{
		ID:                r.ID,
		BatchID:           r.BatchID,
		RunAt:             r.RunAt,
		RunBy:             r.RunBy,
		TotalPayments:     r.TotalPayments,
		ReconciledCount:   r.ReconciledCount,
		UnreconciledCount: r.UnreconciledCount,
		ExpectedTotal:     r.ExpectedTotal,
		ActualTotal:       r.ActualTotal,
		Superseded:        r.Superseded,
		Discrepancies:     make([]DiscrepancyView, 0, len(r.Discrepancies)),
	}
	for _, d := range r.Discrepancies {
		v.Discrepancies = append(v.Discrepancies, DiscrepancyView{
			PaymentID:        d.PaymentID,
			PaymentReference: d.PaymentReference,
			Expected:         d.Expected,
			Actual:           d.Actual,
			Difference:       d.Difference,
			Reason:           d.Reason,
		})
	}
	return v
}
