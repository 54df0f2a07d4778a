package fsp_test

import (
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/disbursement/internal/core/database"
	"github.com/frahmantamala/disbursement/internal/fsp"
	"github.com/frahmantamala/disbursement/internal/fsp/postgres"
)

const catalogueYAML = `
providers:
  - code: GCASH
    name: GCash
    channels: [DIGITAL_WALLET]
    base_url: https://gateway.gcash.example
    api_key: gcash-key
    min_amount: "1.00"
    max_amount: "50000.00"
    timeout_seconds: 10
    max_concurrent: 4
    callback_secret: gcash-callback
  - code: LANDBANK
    name: Land Bank
    channels: [BANK_TRANSFER]
    active: false
`

var _ = Describe("Catalogue", func() {
	It("parses providers with defaults", func() {
		c, err := fsp.ParseCatalogue(strings.NewReader(catalogueYAML))

		Expect(err).ToNot(HaveOccurred())
		Expect(c.Providers).To(HaveLen(2))

		cfg, err := c.Providers[1].Configuration(bcrypt.MinCost)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Active).To(BeFalse())
		Expect(cfg.TimeoutSeconds).To(Equal(30))
		Expect(cfg.MaxConcurrent).To(BeEquivalentTo(5))
		Expect(cfg.CallbackSecretHash).To(BeEmpty())
	})

	It("rejects unknown keys and channels", func() {
		_, err := fsp.ParseCatalogue(strings.NewReader("providers:\n  - code: X\n    name: X\n    colour: red\n"))
		Expect(err).To(HaveOccurred())

		_, err = fsp.ParseCatalogue(strings.NewReader("providers:\n  - code: X\n    name: X\n    channels: [PIGEON]\n"))
		Expect(err).To(MatchError(ContainSubstring("unknown channel")))
	})

	It("rejects duplicate codes", func() {
		_, err := fsp.ParseCatalogue(strings.NewReader("providers:\n  - {code: X, name: X}\n  - {code: X, name: Y}\n"))

		Expect(err).To(MatchError(ContainSubstring("duplicate code")))
	})

	It("seeds configurations that verify callbacks", func() {
		// Given
		db, err := database.OpenInMemory()
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()
		ctx := context.Background()
		repo := postgres.NewConfigurationRepository(db.Gorm)
		c, err := fsp.ParseCatalogue(strings.NewReader(catalogueYAML))
		Expect(err).ToNot(HaveOccurred())

		// When
		n, err := fsp.Seed(ctx, repo, c, bcrypt.MinCost, true)

		// Then
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(2))

		stored, err := repo.GetByCode(ctx, "GCASH")
		Expect(err).ToNot(HaveOccurred())
		Expect(stored.MaxAmount.Equal(decimal.NewFromInt(50000))).To(BeTrue())
		Expect([]string(stored.Channels)).To(Equal([]string{"DIGITAL_WALLET"}))

		service := fsp.NewService(fsp.NewRegistry(silentLogger()), repo, silentLogger())
		Expect(service.VerifyCallback(ctx, "GCASH", "gcash-callback")).To(Succeed())
		Expect(service.VerifyCallback(ctx, "GCASH", "wrong")).ToNot(Succeed())
	})
})
