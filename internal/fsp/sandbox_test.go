package fsp_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/disbursement/internal/fsp"
)

var _ = Describe("Sandbox", func() {
	var (
		sandbox *fsp.Sandbox
		ctx     context.Context
	)

	BeforeEach(func() {
		sandbox = fsp.NewSandbox()
		ctx = context.Background()
	})

	request := func(ref, amount string) fsp.SubmitRequest {
		return fsp.SubmitRequest{
			Reference: ref,
			Amount:    decimal.RequireFromString(amount),
			Currency:  "PHP",
			Channel:   fsp.ChannelDigitalWallet,
		}
	}

	It("settles small amounts immediately", func() {
		res, err := sandbox.Submit(ctx, request("PAY-2026-000001", "500.00"))

		Expect(err).ToNot(HaveOccurred())
		Expect(res.Outcome).To(Equal(fsp.OutcomeSuccess))
		Expect(res.ProviderReference).To(HavePrefix("MOCK-"))
		Expect(res.ConfirmedAmount.Equal(decimal.RequireFromString("500.00"))).To(BeTrue())
	})

	It("rejects amounts over the limit permanently", func() {
		res, err := sandbox.Submit(ctx, request("PAY-2026-000002", "10000.01"))

		Expect(err).ToNot(HaveOccurred())
		Expect(res.Outcome).To(Equal(fsp.OutcomePermanentFailure))
		Expect(res.Reason).To(Equal("AMOUNT_LIMIT_EXCEEDED"))
	})

	It("accepts mid-range amounts and settles them on status check", func() {
		res, err := sandbox.Submit(ctx, request("PAY-2026-000003", "5000.00"))
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Outcome).To(Equal(fsp.OutcomeAccepted))
		Expect(res.ConfirmedAmount).To(BeNil())

		settled, err := sandbox.CheckStatus(ctx, res.ProviderReference)

		Expect(err).ToNot(HaveOccurred())
		Expect(settled.Outcome).To(Equal(fsp.OutcomeSuccess))
		Expect(settled.ProviderReference).To(Equal(res.ProviderReference))
	})

	It("returns the same provider reference for a repeated submission", func() {
		first, err := sandbox.Submit(ctx, request("PAY-2026-000004", "10.00"))
		Expect(err).ToNot(HaveOccurred())

		second, err := sandbox.Submit(ctx, request("PAY-2026-000004", "10.00"))

		Expect(err).ToNot(HaveOccurred())
		Expect(second.ProviderReference).To(Equal(first.ProviderReference))
	})

	It("fails status checks for unknown references", func() {
		_, err := sandbox.CheckStatus(ctx, "MOCK-UNKNOWN")

		var permanent *fsp.PermanentProviderError
		Expect(errors.As(err, &permanent)).To(BeTrue())
		Expect(permanent.Reason).To(Equal("UNKNOWN_REFERENCE"))
	})
})

var _ = Describe("Classify", func() {
	It("treats an error-free empty result as transient", func() {
		res := fsp.Classify(fsp.Result{}, nil)

		Expect(res.Outcome).To(Equal(fsp.OutcomeTransientFailure))
		Expect(res.Reason).To(Equal("EMPTY_PROVIDER_RESPONSE"))
	})

	It("keeps permanent provider reasons", func() {
		res := fsp.Classify(fsp.Result{}, &fsp.PermanentProviderError{Provider: "X", Reason: "ACCOUNT_CLOSED"})

		Expect(res.Outcome).To(Equal(fsp.OutcomePermanentFailure))
		Expect(res.Reason).To(Equal("ACCOUNT_CLOSED"))
	})

	It("classifies deadlines as provider timeouts", func() {
		res := fsp.Classify(fsp.Result{}, context.DeadlineExceeded)

		Expect(res.Outcome).To(Equal(fsp.OutcomeTransientFailure))
		Expect(res.Reason).To(Equal("PROVIDER_TIMEOUT"))
	})

	It("classifies unknown errors as transient", func() {
		res := fsp.Classify(fsp.Result{}, errors.New("boom"))

		Expect(res.Outcome).To(Equal(fsp.OutcomeTransientFailure))
		Expect(res.Reason).To(Equal("PROVIDER_ERROR"))
	})
})
