package batch_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/disbursement/internal"
	"github.com/frahmantamala/disbursement/internal/batch"
	"github.com/frahmantamala/disbursement/internal/payment"
)

func walletLine(beneficiary, amount string) batch.PaymentLine {
	return batch.PaymentLine{
		BeneficiaryID: beneficiary,
		RecipientName: "Maria Santos",
		Amount:        decimal.RequireFromString(amount),
		Payout: payment.PayoutRequest{
			DigitalWallet: &payment.DigitalWallet{Provider: "GCASH", MobileNumber: "09171234567"},
		},
	}
}

func intPtr(n int) *int {
	return &n
}

var _ = Describe("Batch status", func() {
	DescribeTable("transitions",
		func(from, to batch.Status, allowed bool) {
			Expect(from.CanTransitionTo(to)).To(Equal(allowed))
		},
		Entry("pending to processing", batch.StatusPending, batch.StatusProcessing, true),
		Entry("pending to failed", batch.StatusPending, batch.StatusFailed, true),
		Entry("pending to cancelled", batch.StatusPending, batch.StatusCancelled, true),
		Entry("pending to paused", batch.StatusPending, batch.StatusPaused, false),
		Entry("processing to paused", batch.StatusProcessing, batch.StatusPaused, true),
		Entry("processing to completed", batch.StatusProcessing, batch.StatusCompleted, true),
		Entry("processing to failed", batch.StatusProcessing, batch.StatusFailed, false),
		Entry("paused to processing", batch.StatusPaused, batch.StatusProcessing, true),
		Entry("paused to completed", batch.StatusPaused, batch.StatusCompleted, false),
		Entry("completed to processing", batch.StatusCompleted, batch.StatusProcessing, false),
		Entry("cancelled to processing", batch.StatusCancelled, batch.StatusProcessing, false),
	)

	It("treats completed, failed and cancelled as terminal", func() {
		Expect(batch.StatusCompleted.Terminal()).To(BeTrue())
		Expect(batch.StatusFailed.Terminal()).To(BeTrue())
		Expect(batch.StatusCancelled.Terminal()).To(BeTrue())
		Expect(batch.StatusPaused.Terminal()).To(BeFalse())
	})

	It("formats sequence numbers with six digits", func() {
		Expect(batch.FormatNumber(batch.BatchSequence(2026), 42)).To(Equal("BATCH-2026-000042"))
		Expect(batch.FormatNumber(batch.PaymentSequence(2026), 7)).To(Equal("PAY-2026-000007"))
	})
})

var _ = Describe("CreateRequest validation", func() {
	var (
		now time.Time
		req batch.CreateRequest
	)

	BeforeEach(func() {
		now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
		req = batch.CreateRequest{
			ProgramID:     "4PS",
			ProgramName:   "Pantawid Pamilyang Pilipino Program",
			Currency:      "PHP",
			ScheduledDate: now,
			Payments: []batch.PaymentLine{
				walletLine("BEN-1", "1000.00"),
				walletLine("BEN-2", "2000.00"),
				walletLine("BEN-3", "1500.00"),
			},
		}
	})

	fieldsOf := func(appErr *errors.AppError) []string {
		Expect(appErr).ToNot(BeNil())
		details, ok := appErr.Details.(errors.ValidationErrors)
		Expect(ok).To(BeTrue())
		return details.Fields()
	}

	It("accepts a well formed batch", func() {
		Expect(req.Validate(now)).To(BeNil())
	})

	It("accepts a batch scheduled earlier today", func() {
		req.ScheduledDate = now.Add(-2 * time.Hour)
		Expect(req.Validate(now)).To(BeNil())
	})

	It("rejects a batch scheduled in the past", func() {
		req.ScheduledDate = now.AddDate(0, 0, -1)
		Expect(fieldsOf(req.Validate(now))).To(ConsistOf("scheduled_date"))
	})

	It("requires at least one payment", func() {
		req.Payments = nil

		appErr := req.Validate(now)

		details := appErr.Details.(errors.ValidationErrors)
		Expect(details.Errors).To(HaveLen(1))
		Expect(details.Errors[0].Field).To(Equal("payments"))
		Expect(details.Errors[0].Code).To(Equal(string(errors.ErrCodeEmptyBatch)))
	})

	It("reports every violated field with its line index", func() {
		// Given
		req.ProgramID = ""
		req.MaxRetries = intPtr(11)
		req.Payments[0].Amount = decimal.Zero
		req.Payments[1].Amount = decimal.RequireFromString("1000000000.00")
		req.Payments[1].RecipientName = ""
		req.Payments[2].Payout = payment.PayoutRequest{}
		req.Payments = append(req.Payments, walletLine("", "10.005"))

		// When
		appErr := req.Validate(now)

		// Then
		Expect(appErr.Type).To(Equal(errors.ErrorTypeValidation))
		Expect(fieldsOf(appErr)).To(ConsistOf(
			"program_id",
			"max_retries",
			"payments[0].amount",
			"payments[1].recipient_name",
			"payments[1].amount",
			"payments[2].payout",
			"payments[3].beneficiary_id",
			"payments[3].amount",
		))
	})

	It("accepts the largest allowed amount", func() {
		req.Payments[0].Amount = decimal.RequireFromString(batch.MaxAmount)
		Expect(req.Validate(now)).To(BeNil())
	})

	It("validates the payout block of each line", func() {
		req.Payments[1].Payout = payment.PayoutRequest{
			BankTransfer: &payment.BankTransfer{BankCode: "LBP", AccountNumber: "12ab", AccountName: "Maria Santos"},
		}

		Expect(fieldsOf(req.Validate(now))).To(ConsistOf("payments[1].payout.bank_transfer.account_number"))
	})

	It("bounds per line retries", func() {
		req.Payments[0].MaxRetries = intPtr(0)

		Expect(fieldsOf(req.Validate(now))).To(ConsistOf("payments[0].max_retries"))
	})
})
