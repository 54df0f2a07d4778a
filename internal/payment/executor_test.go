package payment_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
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
	"github.com/frahmantamala/disbursement/internal/fsp"
	"github.com/frahmantamala/disbursement/internal/payment"
	"github.com/frahmantamala/disbursement/internal/payment/postgres"
)

type response struct {
	result fsp.Result
	err    error
}

// scriptedAdapter answers submissions from a script, repeating the last entry.
type scriptedAdapter struct {
	code    string
	script  []response
	calls   atomic.Int32
	release chan struct{}
}

func (a *scriptedAdapter) Code() string { return a.code }

func (a *scriptedAdapter) Submit(ctx context.Context, req fsp.SubmitRequest) (fsp.Result, error) {
	n := int(a.calls.Add(1)) - 1
	if a.release != nil {
		<-a.release
	}
	if n >= len(a.script) {
		n = len(a.script) - 1
	}
	return a.script[n].result, a.script[n].err
}

// unhealthyAdapter fails every health check.
type unhealthyAdapter struct {
	scriptedAdapter
}

func (a *unhealthyAdapter) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

func walletProfile(code string) fsp.Profile {
	return fsp.Profile{
		Code:          code,
		Channels:      []fsp.Channel{fsp.ChannelDigitalWallet},
		MaxConcurrent: 4,
		Timeout:       time.Second,
		Active:        true,
	}
}

var _ = Describe("Executor", func() {
	var (
		db        *database.DB
		repo      payment.RepositoryAPI
		auditRepo *auditpostgres.AuditRepository
		registry  *fsp.Registry
		publisher *recordingPublisher
		executor  *payment.Executor
		ctx       context.Context
		batch     *paymentmodel.PaymentBatch
		seq       int
	)

	BeforeEach(func() {
		var err error
		db, err = database.OpenInMemory()
		Expect(err).ToNot(HaveOccurred())
		ctx = context.Background()
		auditRepo = auditpostgres.NewAuditRepository(db.Gorm)
		repo = postgres.NewPaymentRepository(db.Gorm, auditRepo)
		registry = fsp.NewRegistry(silentLogger())
		publisher = &recordingPublisher{}
		executor = payment.NewExecutor(repo, registry, publisher, silentLogger())
		seq = 0

		batch = &paymentmodel.PaymentBatch{
			ID:            uuid.New().String(),
			BatchNumber:   "BATCH-2026-000001",
			ProgramID:     "4PS",
			Currency:      "PHP",
			TotalAmount:   decimal.NewFromInt(1000),
			TotalPayments: 1,
			Status:        "PROCESSING",
			MaxRetries:    3,
			ScheduledDate: time.Now().UTC(),
			CreatedBy:     "officer-1",
		}
		Expect(db.Gorm.Create(batch).Error).To(Succeed())
	})

	AfterEach(func() {
		_ = db.Close()
	})

	seedPayment := func(amount string, channel payment.PayoutChannel) *paymentmodel.Payment {
		seq++
		channelType, details, err := payment.EncodePayout(channel)
		Expect(err).ToNot(HaveOccurred())
		p := &paymentmodel.Payment{
			ID:            uuid.New().String(),
			Reference:     fmt.Sprintf("PAY-2026-%06d", seq),
			BatchID:       batch.ID,
			BeneficiaryID: uuid.New().String(),
			RecipientName: "Maria Santos",
			Amount:        decimal.RequireFromString(amount),
			Currency:      "PHP",
			ChannelType:   channelType,
			PayoutDetails: details,
			Status:        string(payment.StatusPending),
			MaxRetries:    3,
			ScheduledAt:   time.Now().UTC(),
		}
		Expect(db.Gorm.Create(p).Error).To(Succeed())
		return p
	}

	wallet := payment.DigitalWallet{Provider: "GCASH", MobileNumber: "09171234567"}

	register := func(adapter fsp.Adapter) {
		Expect(registry.Register(adapter, walletProfile(adapter.Code()))).To(Succeed())
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

	Describe("Execute", func() {
		It("completes a payment the provider settles at once", func() {
			// Given
			confirmed := decimal.RequireFromString("250.00")
			adapter := &scriptedAdapter{code: "GCASH", script: []response{{result: fsp.Result{
				Outcome:           fsp.OutcomeSuccess,
				ProviderReference: "GC-1",
				ConfirmedAmount:   &confirmed,
			}}}}
			register(adapter)
			p := seedPayment("250.00", wallet)

			// When
			updated, err := executor.Execute(ctx, p.ID, "officer-1")

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(updated.Status).To(Equal("COMPLETED"))
			Expect(*updated.ProviderReference).To(Equal("GC-1"))
			Expect(*updated.FSPCode).To(Equal("GCASH"))
			Expect(updated.ConfirmedAmount.Equal(confirmed)).To(BeTrue())
			Expect(updated.ProcessedAt).ToNot(BeNil())
			Expect(trailEvents(p.ID)).To(Equal([]string{"PAYMENT_SUBMITTED", "PAYMENT_COMPLETED"}))
			Expect(publisher.types()).To(Equal([]string{events.EventTypePaymentCompleted}))
		})

		It("stops retrying transient failures at max retries", func() {
			// Given
			adapter := &scriptedAdapter{code: "GCASH", script: []response{{
				err: &fsp.TransientProviderError{Provider: "GCASH", Reason: "RATE_LIMITED"},
			}}}
			register(adapter)
			p := seedPayment("100.00", wallet)

			// When
			var updated *paymentmodel.Payment
			for i := 0; i < 5; i++ {
				next, err := executor.Execute(ctx, p.ID, apperrors.SystemActor)
				if err != nil {
					break
				}
				updated = next
			}

			// Then
			Expect(adapter.calls.Load()).To(Equal(int32(3)))
			Expect(updated.Status).To(Equal("FAILED"))
			Expect(updated.RetryCount).To(Equal(3))
			Expect(*updated.FailureReason).To(Equal(payment.ReasonRetriesExhausted))
			Expect(trailEvents(p.ID)).To(Equal([]string{
				"PAYMENT_SUBMITTED", "PAYMENT_RETRY",
				"PAYMENT_SUBMITTED", "PAYMENT_RETRY",
				"PAYMENT_SUBMITTED", "PAYMENT_FAILED",
			}))
		})

		It("fails permanently without consuming retries", func() {
			// Given
			register(&scriptedAdapter{code: "GCASH", script: []response{{
				err: &fsp.PermanentProviderError{Provider: "GCASH", Reason: "INVALID_ACCOUNT"},
			}}})
			p := seedPayment("100.00", wallet)

			// When
			updated, err := executor.Execute(ctx, p.ID, apperrors.SystemActor)

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(updated.Status).To(Equal("FAILED"))
			Expect(updated.RetryCount).To(Equal(0))
			Expect(*updated.FailureReason).To(Equal("INVALID_ACCOUNT"))
			Expect(publisher.types()).To(Equal([]string{events.EventTypePaymentFailed}))
		})

		It("fails a payment no provider can carry", func() {
			// Given
			adapter := &scriptedAdapter{code: "GCASH", script: []response{{result: fsp.Result{Outcome: fsp.OutcomeSuccess}}}}
			register(adapter)
			p := seedPayment("100.00", payment.CashPickup{MobileNumber: "09171234567"})

			// When
			updated, err := executor.Execute(ctx, p.ID, apperrors.SystemActor)

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(adapter.calls.Load()).To(BeZero())
			Expect(updated.Status).To(Equal("FAILED"))
			Expect(*updated.FailureReason).To(Equal(payment.ReasonNoFSPConfigured))
			Expect(trailEvents(p.ID)).To(Equal([]string{"PAYMENT_FAILED"}))
		})

		It("leaves a payment untouched while its provider is unhealthy", func() {
			// Given
			adapter := &unhealthyAdapter{scriptedAdapter{code: "GCASH", script: []response{{result: fsp.Result{Outcome: fsp.OutcomeSuccess}}}}}
			register(adapter)
			registry.CheckHealth(ctx)
			p := seedPayment("100.00", wallet)

			// When
			for i := 0; i < 5; i++ {
				_, err := executor.Execute(ctx, p.ID, apperrors.SystemActor)
				Expect(errors.Is(err, fsp.ErrProviderUnavailable)).To(BeTrue())
			}

			// Then
			stored, err := repo.GetByID(ctx, p.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.Status).To(Equal("PENDING"))
			Expect(stored.RetryCount).To(BeZero())
			Expect(adapter.calls.Load()).To(BeZero())
			Expect(trailEvents(p.ID)).To(BeEmpty())
			Expect(publisher.types()).To(BeEmpty())
		})

		It("refuses to execute a payment that is not pending", func() {
			// Given
			register(&scriptedAdapter{code: "GCASH", script: []response{{result: fsp.Result{Outcome: fsp.OutcomeSuccess}}}})
			p := seedPayment("100.00", wallet)
			_, err := executor.Execute(ctx, p.ID, apperrors.SystemActor)
			Expect(err).ToNot(HaveOccurred())

			// When
			_, err = executor.Execute(ctx, p.ID, apperrors.SystemActor)

			// Then
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeInvalidStateTransition))
		})

		It("submits only once when executed concurrently", func() {
			// Given
			adapter := &scriptedAdapter{
				code:    "GCASH",
				script:  []response{{result: fsp.Result{Outcome: fsp.OutcomeSuccess, ProviderReference: "GC-2"}}},
				release: make(chan struct{}),
			}
			register(adapter)
			p := seedPayment("100.00", wallet)

			done := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				_, err := executor.Execute(ctx, p.ID, apperrors.SystemActor)
				done <- err
			}()
			Eventually(adapter.calls.Load).Should(Equal(int32(1)))

			// When
			_, err := executor.Execute(ctx, p.ID, apperrors.SystemActor)

			// Then
			Expect(errors.Is(err, apperrors.ErrDispatchInProgress)).To(BeTrue())
			close(adapter.release)
			Eventually(done).Should(Receive(BeNil()))
			Expect(adapter.calls.Load()).To(Equal(int32(1)))
		})

		It("finishes an in-flight submission after the caller gives up", func() {
			// Given
			adapter := &scriptedAdapter{
				code:    "GCASH",
				script:  []response{{result: fsp.Result{Outcome: fsp.OutcomeSuccess, ProviderReference: "GC-3"}}},
				release: make(chan struct{}),
			}
			register(adapter)
			p := seedPayment("100.00", wallet)
			callerCtx, cancel := context.WithCancel(ctx)

			result := make(chan *paymentmodel.Payment, 1)
			go func() {
				defer GinkgoRecover()
				updated, err := executor.Execute(callerCtx, p.ID, apperrors.SystemActor)
				Expect(err).ToNot(HaveOccurred())
				result <- updated
			}()
			Eventually(adapter.calls.Load).Should(Equal(int32(1)))

			// When
			cancel()
			close(adapter.release)

			// Then
			var updated *paymentmodel.Payment
			Eventually(result).Should(Receive(&updated))
			Expect(updated.Status).To(Equal("COMPLETED"))
		})

		It("cancels instead of requeueing when the batch was cancelled", func() {
			// Given
			register(&scriptedAdapter{code: "GCASH", script: []response{{err: context.DeadlineExceeded}}})
			p := seedPayment("100.00", wallet)
			Expect(db.Gorm.Model(batch).Update("status", "CANCELLED").Error).To(Succeed())

			// When
			updated, err := executor.Execute(ctx, p.ID, apperrors.SystemActor)

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(updated.Status).To(Equal("CANCELLED"))
			Expect(*updated.FailureReason).To(Equal(payment.ReasonBatchCancelled))
		})
	})

	Describe("accepted payments", func() {
		var sandbox *fsp.Sandbox

		BeforeEach(func() {
			sandbox = fsp.NewSandbox()
			Expect(registry.Register(sandbox, fsp.SandboxProfile())).To(Succeed())
		})

		It("keeps an accepted payment processing with its provider reference", func() {
			p := seedPayment("5000.00", wallet)

			updated, err := executor.Execute(ctx, p.ID, apperrors.SystemActor)

			Expect(err).ToNot(HaveOccurred())
			Expect(updated.Status).To(Equal("PROCESSING"))
			Expect(updated.ProviderReference).ToNot(BeNil())
			Expect(trailEvents(p.ID)).To(Equal([]string{"PAYMENT_SUBMITTED", "PAYMENT_ACCEPTED"}))
		})

		It("settles accepted payments from a callback outcome", func() {
			// Given
			p := seedPayment("5000.00", wallet)
			accepted, err := executor.Execute(ctx, p.ID, apperrors.SystemActor)
			Expect(err).ToNot(HaveOccurred())
			confirmed := decimal.RequireFromString("4999.00")

			// When
			settled, err := executor.Settle(ctx, fsp.SandboxCode, *accepted.ProviderReference, fsp.Result{
				Outcome:         fsp.OutcomeSuccess,
				ConfirmedAmount: &confirmed,
			}, "FSP:MOCK")

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(settled.Status).To(Equal("COMPLETED"))
			Expect(settled.ConfirmedAmount.Equal(confirmed)).To(BeTrue())

			_, err = executor.Settle(ctx, fsp.SandboxCode, *accepted.ProviderReference, fsp.Result{Outcome: fsp.OutcomeSuccess}, "FSP:MOCK")
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeInvalidStateTransition))
		})

		It("settles accepted payments by polling the provider", func() {
			// Given
			p := seedPayment("5000.00", wallet)
			_, err := executor.Execute(ctx, p.ID, apperrors.SystemActor)
			Expect(err).ToNot(HaveOccurred())
			time.Sleep(5 * time.Millisecond)

			// When
			settled, err := executor.PollAccepted(ctx, 0)

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(settled).To(Equal(1))
			reloaded, err := repo.GetByID(ctx, p.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(reloaded.Status).To(Equal("COMPLETED"))
			Expect(reloaded.ConfirmedAmount.Equal(decimal.RequireFromString("5000.00"))).To(BeTrue())
		})
	})
})
