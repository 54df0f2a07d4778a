package fsp_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/disbursement/internal"
	"github.com/frahmantamala/disbursement/internal/core/database"
	fspmodel "github.com/frahmantamala/disbursement/internal/core/datamodel/fsp"
	"github.com/frahmantamala/disbursement/internal/fsp"
	"github.com/frahmantamala/disbursement/internal/fsp/postgres"
)

var _ = Describe("Service", func() {
	var (
		db      *database.DB
		repo    fsp.RepositoryAPI
		service *fsp.Service
		ctx     context.Context
	)

	BeforeEach(func() {
		var err error
		db, err = database.OpenInMemory()
		Expect(err).ToNot(HaveOccurred())
		ctx = context.Background()
		repo = postgres.NewConfigurationRepository(db.Gorm)

		hash, err := fsp.HashCallbackSecret("callback-secret", bcrypt.MinCost)
		Expect(err).ToNot(HaveOccurred())

		Expect(repo.Upsert(ctx, &fspmodel.Configuration{
			Code:               "GCASH",
			Name:               "GCash",
			Channels:           []string{"DIGITAL_WALLET"},
			BaseURL:            "http://gcash.invalid",
			MinAmount:          decimal.NewFromInt(1),
			MaxAmount:          decimal.NewFromInt(50000),
			TimeoutSeconds:     10,
			MaxConcurrent:      3,
			Active:             true,
			CallbackSecretHash: hash,
		})).To(Succeed())
		Expect(repo.Upsert(ctx, &fspmodel.Configuration{
			Code:      "DORMANT",
			Name:      "Dormant Bank",
			Channels:  []string{"BANK_TRANSFER"},
			BaseURL:   "http://dormant.invalid",
			MinAmount: decimal.Zero,
			MaxAmount: decimal.Zero,
			Active:    false,
		})).To(Succeed())

		registry, err := fsp.BuildRegistry(ctx, internal.FSPConfig{
			SandboxEnabled: true,
			DefaultTimeout: 5 * time.Second,
		}, repo, silentLogger())
		Expect(err).ToNot(HaveOccurred())

		service = fsp.NewService(registry, repo, silentLogger())
	})

	AfterEach(func() {
		Expect(db.Close()).To(Succeed())
	})

	Describe("Providers", func() {
		It("lists the sandbox and active stored providers", func() {
			providers := service.Providers(ctx)

			Expect(providers).To(HaveLen(2))
			Expect(providers[0].Code).To(Equal(fsp.SandboxCode))
			Expect(providers[1].Code).To(Equal("GCASH"))
			Expect(providers[1].Timeout).To(Equal(10 * time.Second))
			Expect(providers[1].MaxConcurrent).To(Equal(int64(3)))
			Expect(providers[1].Health.Healthy).To(BeTrue())
		})
	})

	Describe("VerifyCallback", func() {
		It("accepts the stored secret", func() {
			Expect(service.VerifyCallback(ctx, "GCASH", "callback-secret")).To(Succeed())
		})

		It("rejects a wrong token", func() {
			err := service.VerifyCallback(ctx, "GCASH", "guess")

			Expect(errors.Is(err, internal.ErrInvalidCallbackAuth)).To(BeTrue())
		})

		It("rejects an empty token", func() {
			err := service.VerifyCallback(ctx, "GCASH", "")

			Expect(errors.Is(err, internal.ErrInvalidCallbackAuth)).To(BeTrue())
		})

		It("rejects providers without a secret", func() {
			err := service.VerifyCallback(ctx, "DORMANT", "anything")

			Expect(errors.Is(err, internal.ErrInvalidCallbackAuth)).To(BeTrue())
		})

		It("rejects unknown providers", func() {
			err := service.VerifyCallback(ctx, "NOPE", "callback-secret")

			Expect(errors.Is(err, internal.ErrInvalidCallbackAuth)).To(BeTrue())
		})
	})
})

var _ = Describe("BuildRegistry", func() {
	It("rejects unknown channels in provider config", func() {
		_, err := fsp.BuildRegistry(context.Background(), internal.FSPConfig{
			Providers: []internal.ProviderConfig{{
				Code:     "BDO",
				BaseURL:  "http://bdo.invalid",
				Channels: []string{"CARRIER_PIGEON"},
			}},
		}, nil, silentLogger())

		Expect(err).To(HaveOccurred())
	})

	It("builds http providers from config", func() {
		registry, err := fsp.BuildRegistry(context.Background(), internal.FSPConfig{
			DefaultTimeout: 7 * time.Second,
			Providers: []internal.ProviderConfig{{
				Code:      "BDO",
				Name:      "BDO Unibank",
				BaseURL:   "http://bdo.invalid",
				Channels:  []string{"BANK_TRANSFER"},
				MinAmount: "100.00",
			}},
		}, nil, silentLogger())
		Expect(err).ToNot(HaveOccurred())

		_, profile, ok := registry.Get("BDO")

		Expect(ok).To(BeTrue())
		Expect(profile.Timeout).To(Equal(7 * time.Second))
		Expect(profile.SupportsAmount(decimal.NewFromInt(50))).To(BeFalse())
		Expect(profile.SupportsAmount(decimal.NewFromInt(5000000))).To(BeTrue())
	})
})
