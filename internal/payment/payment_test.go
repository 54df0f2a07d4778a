package payment_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	errors "github.com/frahmantamala/disbursement/internal"
	"github.com/frahmantamala/disbursement/internal/core/common/validation"
	"github.com/frahmantamala/disbursement/internal/fsp"
	"github.com/frahmantamala/disbursement/internal/payment"
)

var _ = Describe("Status", func() {
	DescribeTable("CanTransitionTo",
		func(from, to payment.Status, allowed bool) {
			Expect(from.CanTransitionTo(to)).To(Equal(allowed))
		},
		Entry("dispatch", payment.StatusPending, payment.StatusProcessing, true),
		Entry("success", payment.StatusProcessing, payment.StatusCompleted, true),
		Entry("transient with retries left", payment.StatusProcessing, payment.StatusPending, true),
		Entry("failure", payment.StatusProcessing, payment.StatusFailed, true),
		Entry("no provider", payment.StatusPending, payment.StatusFailed, true),
		Entry("hold", payment.StatusPending, payment.StatusOnHold, true),
		Entry("release", payment.StatusOnHold, payment.StatusPending, true),
		Entry("reversal", payment.StatusCompleted, payment.StatusRefunded, true),
		Entry("batch retry", payment.StatusFailed, payment.StatusPending, true),
		Entry("skipping the provider", payment.StatusPending, payment.StatusCompleted, false),
		Entry("reopening a completed payment", payment.StatusCompleted, payment.StatusPending, false),
		Entry("cancelling a completed payment", payment.StatusCompleted, payment.StatusCancelled, false),
		Entry("leaving cancelled", payment.StatusCancelled, payment.StatusPending, false),
		Entry("leaving refunded", payment.StatusRefunded, payment.StatusCompleted, false),
		Entry("dispatching a held payment", payment.StatusOnHold, payment.StatusProcessing, false),
	)

	It("partitions every status into exactly one counter", func() {
		byStatus := map[payment.Status]int{}
		for i, s := range payment.AllStatuses {
			byStatus[s] = i + 1
		}

		counts := payment.Tally(byStatus)

		Expect(counts.Total).To(Equal(28))
		Expect(counts.Successful + counts.Failed + counts.Pending).To(Equal(counts.Total))
		Expect(counts.Successful).To(Equal(3 + 6))
		Expect(counts.Failed).To(Equal(4 + 5))
		Expect(counts.Pending).To(Equal(1 + 2 + 7))
	})
})

var _ = Describe("PayoutRequest", func() {
	validate := func(req payment.PayoutRequest) []string {
		v := validation.NewValidator()
		req.Validate(v.Nested("payments[0].payout"))
		appErr := v.Validate()
		if appErr == nil {
			return nil
		}
		return appErr.Details.(errors.ValidationErrors).Fields()
	}

	It("accepts a single valid block", func() {
		req := payment.PayoutRequest{DigitalWallet: &payment.DigitalWallet{Provider: "GCASH", MobileNumber: "09171234567"}}

		Expect(validate(req)).To(BeEmpty())
		Expect(req.Channel().Channel()).To(Equal(fsp.ChannelDigitalWallet))
	})

	It("requires one block", func() {
		Expect(validate(payment.PayoutRequest{})).To(ConsistOf("payments[0].payout"))
	})

	It("rejects more than one block", func() {
		req := payment.PayoutRequest{
			BankTransfer: &payment.BankTransfer{BankCode: "LBP", AccountNumber: "1234567890", AccountName: "Juan"},
			CashPickup:   &payment.CashPickup{MobileNumber: "09171234567"},
		}

		Expect(validate(req)).To(ConsistOf("payments[0].payout"))
		Expect(req.Channel()).To(BeNil())
	})

	It("reports invalid fields of the block by path", func() {
		req := payment.PayoutRequest{BankTransfer: &payment.BankTransfer{BankCode: "LBP", AccountNumber: "12ab"}}

		Expect(validate(req)).To(ConsistOf(
			"payments[0].payout.bank_transfer.account_number",
			"payments[0].payout.bank_transfer.account_name",
		))
	})

	It("round-trips through storage", func() {
		wallet := payment.DigitalWallet{Provider: "MAYA", MobileNumber: "+639171234567"}

		channelType, raw, err := payment.EncodePayout(wallet)
		Expect(err).ToNot(HaveOccurred())
		decoded, err := payment.DecodePayout(channelType, raw)

		Expect(err).ToNot(HaveOccurred())
		Expect(decoded).To(Equal(wallet))
		Expect(decoded.Destination()).To(HaveKeyWithValue("mobile_number", "+639171234567"))
	})
})
