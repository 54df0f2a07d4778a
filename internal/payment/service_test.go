package payment_test

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/disbursement/internal"
	auditpostgres "github.com/frahmantamala/disbursement/internal/audit/postgres"
	"github.com/frahmantamala/disbursement/internal/core/database"
	paymentmodel "github.com/frahmantamala/disbursement/internal/core/datamodel/payment"
	"github.com/frahmantamala/disbursement/internal/core/events"
	"github.com/frahmantamala/disbursement/internal/payment"
	"github.com/frahmantamala/disbursement/internal/payment/postgres"
)

var _ = Describe("Service", func() {
	var (
		db        *database.DB
		auditRepo *auditpostgres.AuditRepository
		publisher *recordingPublisher
		service   *payment.Service
		ctx       context.Context
		batchID   string
	)

	BeforeEach(func() {
		var err error
		db, err = database.OpenInMemory()
		Expect(err).ToNot(HaveOccurred())
		ctx = context.Background()
		auditRepo = auditpostgres.NewAuditRepository(db.Gorm)
		publisher = &recordingPublisher{}
		service = payment.NewService(postgres.NewPaymentRepository(db.Gorm, auditRepo), publisher, silentLogger())

		batchID = uuid.New().String()
		Expect(db.Gorm.Create(&paymentmodel.PaymentBatch{
			ID:            batchID,
			BatchNumber:   "BATCH-2026-000009",
			ProgramID:     "4PS",
			Currency:      "PHP",
			TotalAmount:   decimal.NewFromInt(500),
			TotalPayments: 1,
			Status:        "PROCESSING",
			MaxRetries:    3,
			ScheduledDate: time.Now().UTC(),
			CreatedBy:     "officer-1",
		}).Error).To(Succeed())
	})

	AfterEach(func() {
		_ = db.Close()
	})

	seed := func(status payment.Status) *paymentmodel.Payment {
		channelType, details, err := payment.EncodePayout(payment.DigitalWallet{Provider: "GCASH", MobileNumber: "09171234567"})
		Expect(err).ToNot(HaveOccurred())
		p := &paymentmodel.Payment{
			ID:            uuid.New().String(),
			Reference:     "PAY-2026-000042",
			BatchID:       batchID,
			BeneficiaryID: "BEN-42",
			RecipientName: "Jose Rizal",
			Amount:        decimal.NewFromInt(500),
			Currency:      "PHP",
			ChannelType:   channelType,
			PayoutDetails: details,
			Status:        string(status),
			MaxRetries:    3,
			ScheduledAt:   time.Now().UTC(),
		}
		Expect(db.Gorm.Create(p).Error).To(Succeed())
		return p
	}

	trailEvents := func(id string) []string {
		trail, err := auditRepo.Trail(ctx, id)
		Expect(err).ToNot(HaveOccurred())
		out := make([]string, 0, len(trail))
		for _, e := range trail {
			out = append(out, e.EventType)
		}
		return out
	}

	It("holds and releases a pending payment", func() {
		// Given
		p := seed(payment.StatusPending)

		// When
		held, err := service.Hold(ctx, p.ID, "beneficiary under review", "officer-1")
		Expect(err).ToNot(HaveOccurred())
		released, err := service.Release(ctx, p.ID, "officer-1")

		// Then
		Expect(err).ToNot(HaveOccurred())
		Expect(held.Status).To(Equal(payment.StatusOnHold))
		Expect(released.Status).To(Equal(payment.StatusPending))
		Expect(trailEvents(p.ID)).To(Equal([]string{"PAYMENT_ON_HOLD", "PAYMENT_RELEASED"}))
	})

	It("refuses to hold a payment already with a provider", func() {
		p := seed(payment.StatusProcessing)

		_, err := service.Hold(ctx, p.ID, "too late", "officer-1")

		appErr, ok := apperrors.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.Type).To(Equal(apperrors.ErrorTypeInvalidStateTransition))
		Expect(trailEvents(p.ID)).To(BeEmpty())
	})

	It("refunds a completed payment and announces it", func() {
		// Given
		p := seed(payment.StatusCompleted)

		// When
		refunded, err := service.Refund(ctx, p.ID, "reversed by provider", "officer-2")

		// Then
		Expect(err).ToNot(HaveOccurred())
		Expect(refunded.Status).To(Equal(payment.StatusRefunded))
		Expect(publisher.types()).To(Equal([]string{events.EventTypePaymentRefunded}))
		Expect(trailEvents(p.ID)).To(Equal([]string{"PAYMENT_REFUNDED"}))
	})

	It("reports an unknown payment as not found", func() {
		_, err := service.Refund(ctx, uuid.New().String(), "n/a", "officer-2")

		Expect(errors.Is(err, apperrors.ErrPaymentNotFound)).To(BeTrue())
	})

	It("lists the payments of a batch", func() {
		seed(payment.StatusPending)

		views, err := service.ListByBatch(ctx, batchID)

		Expect(err).ToNot(HaveOccurred())
		Expect(views).To(HaveLen(1))
		Expect(views[0].Channel).To(Equal("DIGITAL_WALLET"))
	})
})
