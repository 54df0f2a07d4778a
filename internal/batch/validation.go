package batch

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/disbursement/internal"
	"github.com/frahmantamala/disbursement/internal/core/common/validation"
)

var (
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	maxAmount       = decimal.RequireFromString(MaxAmount)
)

// Validate reports every violated field of the request at once. Line item
// fields are reported as payments[i].field.
func (r *CreateRequest) Validate(now time.Time) *errors.AppError {
	v := validation.NewValidator()

	v.Field("program_id", r.ProgramID).Required().MaxLength(50)
	v.Field("program_name", r.ProgramName).MaxLength(200)
	v.Field("currency", r.Currency).Pattern(currencyPattern, "a three letter ISO currency code")
	v.Field("scheduled_date", r.ScheduledDate).Required().NotPast(now)
	v.Field("description", r.Description).MaxLength(500)
	if r.MaxRetries != nil {
		v.Field("max_retries", *r.MaxRetries).
			MinInt(MinRetries, errors.ErrCodeValidationFailed).
			MaxInt(MaxRetriesLimit, errors.ErrCodeValidationFailed)
	}

	switch {
	case len(r.Payments) == 0:
		v.Fail("payments", "at least one payment is required", errors.ErrCodeEmptyBatch)
	case len(r.Payments) > MaxLineItems:
		v.Fail("payments", fmt.Sprintf("a batch holds at most %d payments", MaxLineItems), errors.ErrCodeValidationFailed)
	}

	for i := range r.Payments {
		r.Payments[i].validate(v.Nested(fmt.Sprintf("payments[%d]", i)))
	}

	return v.Validate()
}

func (l PaymentLine) validate(v *validation.ValidationBuilder) {
	v.Field("beneficiary_id", l.BeneficiaryID).Required().MaxLength(50)
	v.Field("recipient_name", l.RecipientName).Required().MaxLength(200)
	v.Field("amount", l.Amount).
		Positive().
		MaxDecimal(maxAmount, errors.ErrCodeAmountTooHigh).
		MaxScale(2)
	v.Field("fsp_code", l.FSPCode).MaxLength(20)
	if l.MaxRetries != nil {
		v.Field("max_retries", *l.MaxRetries).
			MinInt(MinRetries, errors.ErrCodeValidationFailed).
			MaxInt(MaxRetriesLimit, errors.ErrCodeValidationFailed)
	}
	l.Payout.Validate(v.Nested("payout"))
}
