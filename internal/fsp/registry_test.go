package fsp_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/disbursement/internal/fsp"
)

type stubAdapter struct {
	code    string
	pingErr error
}

func (s *stubAdapter) Code() string { return s.code }

func (s *stubAdapter) Submit(ctx context.Context, req fsp.SubmitRequest) (fsp.Result, error) {
	return fsp.Result{Outcome: fsp.OutcomeSuccess}, nil
}

func (s *stubAdapter) Ping(ctx context.Context) error { return s.pingErr }

func profile(code string, channels []fsp.Channel, min, max string) fsp.Profile {
	return fsp.Profile{
		Code:          code,
		Channels:      channels,
		MinAmount:     decimal.RequireFromString(min),
		MaxAmount:     decimal.RequireFromString(max),
		MaxConcurrent: 1,
		Timeout:       time.Second,
		Active:        true,
	}
}

var _ = Describe("Registry", func() {
	var (
		registry *fsp.Registry
		bank     *stubAdapter
		wallet   *stubAdapter
	)

	BeforeEach(func() {
		registry = fsp.NewRegistry(silentLogger())
		bank = &stubAdapter{code: "BANKCO"}
		wallet = &stubAdapter{code: "WALLETCO"}
		Expect(registry.Register(bank, profile("BANKCO", []fsp.Channel{fsp.ChannelBankTransfer}, "1", "100000"))).To(Succeed())
		Expect(registry.Register(wallet, profile("WALLETCO", []fsp.Channel{fsp.ChannelDigitalWallet, fsp.ChannelBankTransfer}, "1", "5000"))).To(Succeed())
	})

	Describe("Register", func() {
		It("rejects a duplicate code", func() {
			err := registry.Register(&stubAdapter{code: "BANKCO"}, profile("BANKCO", nil, "0", "0"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Resolve", func() {
		It("returns the only provider supporting the channel", func() {
			adapter, p, err := registry.Resolve("", fsp.ChannelDigitalWallet, decimal.NewFromInt(100))

			Expect(err).ToNot(HaveOccurred())
			Expect(adapter.Code()).To(Equal("WALLETCO"))
			Expect(p.Code).To(Equal("WALLETCO"))
		})

		It("skips providers whose amount range excludes the payment", func() {
			adapter, _, err := registry.Resolve("", fsp.ChannelBankTransfer, decimal.NewFromInt(20000))

			Expect(err).ToNot(HaveOccurred())
			Expect(adapter.Code()).To(Equal("BANKCO"))
		})

		It("reports no provider for an unsupported channel", func() {
			_, _, err := registry.Resolve("", fsp.ChannelCashPickup, decimal.NewFromInt(100))

			Expect(errors.Is(err, fsp.ErrNoProvider)).To(BeTrue())
		})

		It("honours a preferred provider", func() {
			adapter, _, err := registry.Resolve("WALLETCO", fsp.ChannelBankTransfer, decimal.NewFromInt(100))

			Expect(err).ToNot(HaveOccurred())
			Expect(adapter.Code()).To(Equal("WALLETCO"))
		})

		It("treats an unknown preferred provider as a configuration problem", func() {
			_, _, err := registry.Resolve("NOPE", fsp.ChannelBankTransfer, decimal.NewFromInt(100))

			Expect(errors.Is(err, fsp.ErrNoProvider)).To(BeTrue())
		})

		It("prefers the less loaded provider", func() {
			release, err := registry.Acquire(context.Background(), "BANKCO")
			Expect(err).ToNot(HaveOccurred())
			defer release()

			adapter, _, err := registry.Resolve("", fsp.ChannelBankTransfer, decimal.NewFromInt(100))

			Expect(err).ToNot(HaveOccurred())
			Expect(adapter.Code()).To(Equal("WALLETCO"))
		})

		It("reports unavailability when every supporting provider is unhealthy", func() {
			wallet.pingErr = errors.New("connection refused")
			registry.CheckHealth(context.Background())

			_, _, err := registry.Resolve("", fsp.ChannelDigitalWallet, decimal.NewFromInt(100))

			Expect(errors.Is(err, fsp.ErrProviderUnavailable)).To(BeTrue())
		})
	})

	Describe("Acquire", func() {
		It("bounds concurrent submissions per provider", func() {
			release, err := registry.Acquire(context.Background(), "BANKCO")
			Expect(err).ToNot(HaveOccurred())

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			_, err = registry.Acquire(ctx, "BANKCO")
			Expect(err).To(MatchError(context.DeadlineExceeded))

			release()
			release()

			again, err := registry.Acquire(context.Background(), "BANKCO")
			Expect(err).ToNot(HaveOccurred())
			again()
		})
	})

	Describe("CheckHealth", func() {
		It("records failures per provider", func() {
			bank.pingErr = errors.New("503")

			health := registry.CheckHealth(context.Background())

			Expect(health).To(HaveLen(2))
			Expect(health[0].Code).To(Equal("BANKCO"))
			Expect(health[0].Healthy).To(BeFalse())
			Expect(health[0].Error).To(Equal("503"))
			Expect(health[1].Healthy).To(BeTrue())
		})
	})
})
