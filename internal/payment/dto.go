package payment

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/disbursement/internal/core/datamodel/payment"
)

// View is the API shape of a payment.
type View struct {
	ID                string           `json:"id"`
	Reference         string           `json:"reference"`
	BatchID           string           `json:"batch_id"`
	BeneficiaryID     string           `json:"beneficiary_id"`
	RecipientName     string           `json:"recipient_name"`
	Amount            decimal.Decimal  `json:"amount"`
	Currency          string           `json:"currency"`
	Channel           string           `json:"channel"`
	Payout            PayoutChannel    `json:"payout,omitempty"`
	FSPCode           *string          `json:"fsp_code,omitempty"`
	ProviderReference *string          `json:"provider_reference,omitempty"`
	ConfirmedAmount   *decimal.Decimal `json:"confirmed_amount,omitempty"`
	Status            Status           `json:"status"`
	RetryCount        int              `json:"retry_count"`
	MaxRetries        int              `json:"max_retries"`
	FailureReason     *string          `json:"failure_reason,omitempty"`
	ScheduledAt       time.Time        `json:"scheduled_at"`
	SubmittedAt       *time.Time       `json:"submitted_at,omitempty"`
	ProcessedAt       *time.Time       `json:"processed_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func ToView(p *payment.Payment) *View {
	if p == nil {
		return nil
	}
	v := &View{
		ID:                p.ID,
		Reference:         p.Reference,
		BatchID:           p.BatchID,
		BeneficiaryID:     p.BeneficiaryID,
		RecipientName:     p.RecipientName,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Channel:           p.ChannelType,
		FSPCode:           p.FSPCode,
		ProviderReference: p.ProviderReference,
		ConfirmedAmount:   p.ConfirmedAmount,
		Status:            Status(p.Status),
		RetryCount:        p.RetryCount,
		MaxRetries:        p.MaxRetries,
		FailureReason:     p.FailureReason,
		ScheduledAt:       p.ScheduledAt,
		SubmittedAt:       p.SubmittedAt,
		ProcessedAt:       p.ProcessedAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
	if ch, err := DecodePayout(p.ChannelType, p.PayoutDetails); err == nil {
		v.Payout = ch
	}
	return v
}

func ToViews(payments []*payment.Payment) []*View {
	views := make([]*View, 0, len(payments))
	for _, p := range payments {
		views = append(views, ToView(p))
	}
	return views
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}
