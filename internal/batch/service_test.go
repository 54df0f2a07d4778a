package batch_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/disbursement/internal"
	"github.com/frahmantamala/disbursement/internal/audit"
	auditpostgres "github.com/frahmantamala/disbursement/internal/audit/postgres"
	"github.com/frahmantamala/disbursement/internal/batch"
	batchpostgres "github.com/frahmantamala/disbursement/internal/batch/postgres"
	"github.com/frahmantamala/disbursement/internal/core/database"
	paymentmodel "github.com/frahmantamala/disbursement/internal/core/datamodel/payment"
	"github.com/frahmantamala/disbursement/internal/core/events"
	"github.com/frahmantamala/disbursement/internal/fsp"
	"github.com/frahmantamala/disbursement/internal/payment"
	paymentpostgres "github.com/frahmantamala/disbursement/internal/payment/postgres"
)

type scripted struct {
	result fsp.Result
	err    error
}

// walletProvider answers by amount and settles anything unscripted at once.
type walletProvider struct {
	mu       sync.Mutex
	byAmount map[string]scripted
	calls    map[string]int
	release  chan struct{}
	started  atomic.Int32
}

func newWalletProvider() *walletProvider {
	return &walletProvider{byAmount: make(map[string]scripted), calls: make(map[string]int)}
}

func (w *walletProvider) Code() string { return "GCASH" }

func (w *walletProvider) Submit(ctx context.Context, req fsp.SubmitRequest) (fsp.Result, error) {
	w.mu.Lock()
	w.calls[req.Reference]++
	answer, ok := w.byAmount[req.Amount.StringFixed(2)]
	w.mu.Unlock()
	w.started.Add(1)

	if w.release != nil {
		<-w.release
	}
	if ok {
		return answer.result, answer.err
	}
	confirmed := req.Amount
	return fsp.Result{
		Outcome:           fsp.OutcomeSuccess,
		ProviderReference: "GC-" + req.Reference,
		ConfirmedAmount:   &confirmed,
	}, nil
}

func (w *walletProvider) script(amount string, s scripted) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.byAmount[amount] = s
}

func (w *walletProvider) forget(amount string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.byAmount, amount)
}

func (w *walletProvider) callsFor(reference string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[reference]
}

type batchEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *batchEvents) Publish(ctx context.Context, event events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *batchEvents) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.EventType())
	}
	return out
}

var _ = Describe("Batch Service", func() {
	var (
		db          *database.DB
		ctx         context.Context
		auditRepo   *auditpostgres.AuditRepository
		paymentRepo payment.RepositoryAPI
		provider    *walletProvider
		publisher   *batchEvents
		service     *batch.Service
	)

	build := func(concurrency int) {
		registry := fsp.NewRegistry(silentLogger())
		Expect(registry.Register(provider, fsp.Profile{
			Code:          "GCASH",
			Channels:      []fsp.Channel{fsp.ChannelDigitalWallet},
			Timeout:       2 * time.Second,
			MaxConcurrent: 10,
			Active:        true,
		})).To(Succeed())

		executor := payment.NewExecutor(paymentRepo, registry, nil, silentLogger())
		service = batch.NewService(
			batchpostgres.NewBatchRepository(db.Gorm, auditRepo),
			batchpostgres.NewStatsRepository(db.SQL),
			executor,
			publisher,
			internal.DisbursementConfig{
				Currency:          "PHP",
				BatchConcurrency:  concurrency,
				DefaultMaxRetries: 3,
				RetryBackoff:      5 * time.Millisecond,
				RetryBackoffCap:   20 * time.Millisecond,
			},
			silentLogger(),
		)
	}

	BeforeEach(func() {
		var err error
		db, err = database.OpenInMemory()
		Expect(err).ToNot(HaveOccurred())
		ctx = context.Background()
		auditRepo = auditpostgres.NewAuditRepository(db.Gorm)
		paymentRepo = paymentpostgres.NewPaymentRepository(db.Gorm, auditRepo)
		provider = newWalletProvider()
		publisher = &batchEvents{}
		build(4)
	})

	AfterEach(func() {
		if provider.release != nil {
			select {
			case <-provider.release:
			default:
				close(provider.release)
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		Expect(service.Shutdown(shutdownCtx)).To(Succeed())
		_ = db.Close()
	})

	newRequest := func(amounts ...string) batch.CreateRequest {
		req := batch.CreateRequest{
			ProgramID:     "4PS",
			ProgramName:   "Pantawid Pamilyang Pilipino Program",
			ScheduledDate: time.Now().UTC(),
		}
		for i, amount := range amounts {
			req.Payments = append(req.Payments, walletLine(string(rune('A'+i)), amount))
		}
		return req
	}

	create := func(req batch.CreateRequest) *batch.View {
		view, err := service.Create(ctx, req, "officer-1")
		Expect(err).ToNot(HaveOccurred())
		return view
	}

	batchStatus := func(id string) func() batch.Status {
		return func() batch.Status {
			view, err := service.Get(ctx, id)
			Expect(err).ToNot(HaveOccurred())
			return view.Status
		}
	}

	paymentsOf := func(id string) []*paymentmodel.Payment {
		payments, err := paymentRepo.ListByBatch(ctx, id)
		Expect(err).ToNot(HaveOccurred())
		return payments
	}

	statusesOf := func(id string) func() []string {
		return func() []string {
			var out []string
			for _, p := range paymentsOf(id) {
				out = append(out, p.Status)
			}
			return out
		}
	}

	trailOf := func(id string) []string {
		trail, err := auditRepo.Trail(ctx, id)
		Expect(err).ToNot(HaveOccurred())
		out := make([]string, 0, len(trail))
		for _, e := range trail {
			out = append(out, e.EventType)
		}
		return out
	}

	Describe("Create", func() {
		It("persists the batch with one pending payment per line", func() {
			// When
			view := create(newRequest("1000.00", "2000.00", "1500.00"))

			// Then
			Expect(view.Status).To(Equal(batch.StatusPending))
			Expect(view.TotalAmount.Equal(decimal.NewFromInt(4500))).To(BeTrue())
			Expect(view.TotalPayments).To(Equal(3))
			Expect(view.Currency).To(Equal("PHP"))
			Expect(view.Counts).To(Equal(payment.Counts{Total: 3, Pending: 3}))
			Expect(view.BatchNumber).To(MatchRegexp(`^BATCH-\d{4}-000001$`))

			payments := paymentsOf(view.ID)
			Expect(payments).To(HaveLen(3))
			for _, p := range payments {
				Expect(p.Status).To(Equal("PENDING"))
				Expect(p.MaxRetries).To(Equal(3))
				Expect(p.Reference).To(MatchRegexp(`^PAY-\d{4}-\d{6}$`))
				Expect(trailOf(p.ID)).To(Equal([]string{"PAYMENT_CREATED"}))
			}
			Expect(trailOf(view.ID)).To(Equal([]string{"BATCH_CREATED"}))
		})

		It("falls back to the configured retry default", func() {
			// Given
			unconfigured := batch.NewService(
				batchpostgres.NewBatchRepository(db.Gorm, auditRepo),
				batchpostgres.NewStatsRepository(db.SQL),
				payment.NewExecutor(paymentRepo, fsp.NewRegistry(silentLogger()), nil, silentLogger()),
				publisher,
				internal.DisbursementConfig{},
				silentLogger(),
			)
			defaults := internal.DisbursementConfig{}
			defaults.ApplyDefaults()

			// When
			view, err := unconfigured.Create(ctx, newRequest("10.00"), "officer-1")

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(view.MaxRetries).To(Equal(defaults.DefaultMaxRetries))
			Expect(view.Currency).To(Equal(defaults.Currency))
			Expect(paymentsOf(view.ID)[0].MaxRetries).To(Equal(defaults.DefaultMaxRetries))
		})

		It("numbers batches and payments from running sequences", func() {
			first := create(newRequest("10.00", "20.00"))
			second := create(newRequest("30.00"))

			Expect(first.BatchNumber).To(HaveSuffix("-000001"))
			Expect(second.BatchNumber).To(HaveSuffix("-000002"))
			Expect(paymentsOf(first.ID)[1].Reference).To(HaveSuffix("-000002"))
			Expect(paymentsOf(second.ID)[0].Reference).To(HaveSuffix("-000003"))
		})

		It("writes nothing when a line is invalid", func() {
			// Given
			req := newRequest("1000.00", "-5.00")

			// When
			_, err := service.Create(ctx, req, "officer-1")

			// Then
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Details.(internal.ValidationErrors).Fields()).To(ConsistOf("payments[1].amount"))

			var batches, payments int64
			Expect(db.Gorm.Model(&paymentmodel.PaymentBatch{}).Count(&batches).Error).To(Succeed())
			Expect(db.Gorm.Model(&paymentmodel.Payment{}).Count(&payments).Error).To(Succeed())
			Expect(batches).To(BeZero())
			Expect(payments).To(BeZero())
		})

		It("keeps per line retry limits and metadata", func() {
			req := newRequest("10.00", "20.00")
			req.MaxRetries = intPtr(5)
			req.Payments[1].MaxRetries = intPtr(2)
			req.Metadata = map[string]interface{}{"region": "NCR"}

			view := create(req)

			Expect(view.MaxRetries).To(Equal(5))
			Expect(view.Metadata).To(HaveKeyWithValue("region", "NCR"))
			payments := paymentsOf(view.ID)
			Expect(payments[0].MaxRetries).To(Equal(5))
			Expect(payments[1].MaxRetries).To(Equal(2))
		})
	})

	Describe("Start", func() {
		It("completes a batch whose payments all settle", func() {
			// Given
			view := create(newRequest("1000.00", "2000.00", "1500.00"))

			// When
			started, err := service.Start(ctx, view.ID, "officer-1")

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(started.Status).To(Equal(batch.StatusProcessing))
			Expect(started.StartedAt).ToNot(BeNil())

			Eventually(batchStatus(view.ID), "5s").Should(Equal(batch.StatusCompleted))
			final, err := service.Get(ctx, view.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(final.Counts).To(Equal(payment.Counts{Total: 3, Successful: 3}))
			Expect(final.CompletedAt).ToNot(BeNil())
			Expect(trailOf(view.ID)).To(Equal([]string{"BATCH_CREATED", "BATCH_STARTED", "BATCH_COMPLETED"}))
			Expect(publisher.types()).To(ContainElement(events.EventTypeBatchCompleted))
		})

		It("rejects a second start without dispatching twice", func() {
			// Given
			view := create(newRequest("100.00", "200.00", "300.00"))
			_, err := service.Start(ctx, view.ID, "officer-1")
			Expect(err).ToNot(HaveOccurred())

			// When
			_, err = service.Start(ctx, view.ID, "officer-2")

			// Then
			Expect(internal.IsType(err, internal.ErrorTypeInvalidStateTransition)).To(BeTrue())
			Eventually(batchStatus(view.ID), "5s").Should(Equal(batch.StatusCompleted))
			for _, p := range paymentsOf(view.ID) {
				Expect(provider.callsFor(p.Reference)).To(Equal(1))
			}
		})

		It("fails a batch whose payments no longer match its totals", func() {
			// Given
			view := create(newRequest("100.00", "200.00"))
			Expect(db.Gorm.Where("id = ?", paymentsOf(view.ID)[0].ID).Delete(&paymentmodel.Payment{}).Error).To(Succeed())

			// When
			_, err := service.Start(ctx, view.ID, "officer-1")

			// Then
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeBatchTotalsMismatch))
			Expect(batchStatus(view.ID)()).To(Equal(batch.StatusFailed))
			Expect(trailOf(view.ID)).To(Equal([]string{"BATCH_CREATED", "BATCH_FAILED"}))
		})

		It("completes once retries of a transient failure run out", func() {
			// Given
			provider.script("2000.00", scripted{err: &fsp.TransientProviderError{Provider: "GCASH", Reason: "RATE_LIMITED"}})
			req := newRequest("1000.00", "2000.00", "1500.00")
			req.MaxRetries = intPtr(1)
			view := create(req)

			// When
			_, err := service.Start(ctx, view.ID, "officer-1")
			Expect(err).ToNot(HaveOccurred())

			// Then
			Eventually(batchStatus(view.ID), "5s").Should(Equal(batch.StatusCompleted))
			final, err := service.Get(ctx, view.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(final.Counts).To(Equal(payment.Counts{Total: 3, Successful: 2, Failed: 1}))

			for _, p := range paymentsOf(view.ID) {
				if p.Amount.Equal(decimal.NewFromInt(2000)) {
					Expect(p.Status).To(Equal("FAILED"))
					Expect(*p.FailureReason).To(Equal(payment.ReasonRetriesExhausted))
				}
			}
		})

		It("rejects starting a cancelled batch", func() {
			view := create(newRequest("100.00"))
			_, err := service.Cancel(ctx, view.ID, "program suspended", "officer-1")
			Expect(err).ToNot(HaveOccurred())

			_, err = service.Start(ctx, view.ID, "officer-1")

			Expect(internal.IsType(err, internal.ErrorTypeInvalidStateTransition)).To(BeTrue())
		})
	})

	Describe("Cancel", func() {
		It("cancels pending payments and leaves the in-flight one to finish", func() {
			// Given
			provider.release = make(chan struct{})
			build(1)
			view := create(newRequest("1000.00", "2000.00", "1500.00"))
			_, err := service.Start(ctx, view.ID, "officer-1")
			Expect(err).ToNot(HaveOccurred())
			Eventually(provider.started.Load, "2s").Should(BeEquivalentTo(1))

			// When
			cancelled, err := service.Cancel(ctx, view.ID, "duplicate beneficiaries", "officer-1")
			Expect(err).ToNot(HaveOccurred())
			close(provider.release)

			// Then
			Expect(cancelled.Status).To(Equal(batch.StatusCancelled))
			Eventually(statusesOf(view.ID), "5s").Should(ConsistOf("COMPLETED", "CANCELLED", "CANCELLED"))
			Expect(batchStatus(view.ID)()).To(Equal(batch.StatusCancelled))
			Expect(provider.started.Load()).To(BeEquivalentTo(1))

			for _, p := range paymentsOf(view.ID) {
				if p.Status == "CANCELLED" {
					Expect(*p.FailureReason).To(Equal(payment.ReasonBatchCancelled))
					Expect(trailOf(p.ID)).To(Equal([]string{"PAYMENT_CREATED", "PAYMENT_CANCELLED"}))
				}
			}
			Expect(publisher.types()).To(ContainElement(events.EventTypeBatchCancelled))
		})

		It("cancels held payments of a pending batch", func() {
			// Given
			view := create(newRequest("100.00", "200.00"))
			held := paymentsOf(view.ID)[0]
			_, err := paymentRepo.Transition(ctx, held.ID, payment.Transition{
				From: payment.StatusPending, To: payment.StatusOnHold, Event: audit.EventPaymentOnHold, Actor: "officer-1",
			})
			Expect(err).ToNot(HaveOccurred())

			// When
			_, err = service.Cancel(ctx, view.ID, "withdrawn", "officer-1")

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(statusesOf(view.ID)()).To(ConsistOf("CANCELLED", "CANCELLED"))
		})

		It("refuses to cancel a completed batch", func() {
			view := create(newRequest("100.00"))
			_, err := service.Start(ctx, view.ID, "officer-1")
			Expect(err).ToNot(HaveOccurred())
			Eventually(batchStatus(view.ID), "5s").Should(Equal(batch.StatusCompleted))

			_, err = service.Cancel(ctx, view.ID, "too late", "officer-1")

			Expect(internal.IsType(err, internal.ErrorTypeInvalidStateTransition)).To(BeTrue())
		})
	})

	Describe("Pause and Resume", func() {
		BeforeEach(func() {
			provider.release = make(chan struct{})
			build(1)
		})

		It("holds back unsubmitted payments until resumed", func() {
			// Given
			view := create(newRequest("100.00", "200.00", "300.00"))
			_, err := service.Start(ctx, view.ID, "officer-1")
			Expect(err).ToNot(HaveOccurred())
			Eventually(provider.started.Load, "2s").Should(BeEquivalentTo(1))

			// When
			paused, err := service.Pause(ctx, view.ID, "officer-1")
			Expect(err).ToNot(HaveOccurred())
			close(provider.release)

			// Then
			Expect(paused.Status).To(Equal(batch.StatusPaused))
			Eventually(statusesOf(view.ID), "5s").Should(ConsistOf("COMPLETED", "PENDING", "PENDING"))
			Consistently(batchStatus(view.ID), "150ms").Should(Equal(batch.StatusPaused))
			Expect(provider.started.Load()).To(BeEquivalentTo(1))

			// When
			_, err = service.Resume(ctx, view.ID, "officer-1")

			// Then
			Expect(err).ToNot(HaveOccurred())
			Eventually(batchStatus(view.ID), "5s").Should(Equal(batch.StatusCompleted))
			Expect(trailOf(view.ID)).To(Equal([]string{
				"BATCH_CREATED", "BATCH_STARTED", "BATCH_PAUSED", "BATCH_RESUMED", "BATCH_COMPLETED",
			}))
		})

		It("keeps a paused batch paused when an in-flight payment fails", func() {
			// Given
			provider.script("100.00", scripted{err: &fsp.PermanentProviderError{Provider: "GCASH", Reason: "ACCOUNT_CLOSED"}})
			view := create(newRequest("100.00", "200.00"))
			_, err := service.Start(ctx, view.ID, "officer-1")
			Expect(err).ToNot(HaveOccurred())
			Eventually(provider.started.Load, "2s").Should(BeEquivalentTo(1))

			// When
			_, err = service.Pause(ctx, view.ID, "officer-1")
			Expect(err).ToNot(HaveOccurred())
			close(provider.release)

			// Then
			Eventually(statusesOf(view.ID), "5s").Should(ConsistOf("FAILED", "PENDING"))
			progress, err := service.MonitorProgress(ctx, view.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(progress.Status).To(Equal(batch.StatusPaused))
			Expect(progress.Completed).To(BeFalse())
			Expect(progress.Counts).To(Equal(payment.Counts{Total: 2, Failed: 1, Pending: 1}))
		})

		It("only pauses a processing batch", func() {
			view := create(newRequest("100.00"))

			_, err := service.Pause(ctx, view.ID, "officer-1")

			Expect(internal.IsType(err, internal.ErrorTypeInvalidStateTransition)).To(BeTrue())
		})
	})

	Describe("RetryFailed", func() {
		It("requeues failed payments with retries left", func() {
			// Given
			provider.script("200.00", scripted{err: &fsp.PermanentProviderError{Provider: "GCASH", Reason: "ACCOUNT_CLOSED"}})
			view := create(newRequest("100.00", "200.00"))
			_, err := service.Start(ctx, view.ID, "officer-1")
			Expect(err).ToNot(HaveOccurred())
			Eventually(batchStatus(view.ID), "5s").Should(Equal(batch.StatusCompleted))
			provider.forget("200.00")

			// When
			requeued, err := service.RetryFailed(ctx, view.ID, "officer-1")

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(requeued).To(Equal(1))
			Eventually(statusesOf(view.ID), "5s").Should(ConsistOf("COMPLETED", "COMPLETED"))
			Expect(batchStatus(view.ID)()).To(Equal(batch.StatusCompleted))

			for _, p := range paymentsOf(view.ID) {
				if p.Amount.Equal(decimal.NewFromInt(200)) {
					Expect(p.RetryCount).To(Equal(1))
					Expect(trailOf(p.ID)).To(Equal([]string{
						"PAYMENT_CREATED", "PAYMENT_SUBMITTED", "PAYMENT_FAILED",
						"PAYMENT_RETRY", "PAYMENT_SUBMITTED", "PAYMENT_COMPLETED",
					}))
				}
			}
		})

		It("leaves payments that exhausted their retries alone", func() {
			// Given
			provider.script("200.00", scripted{err: &fsp.TransientProviderError{Provider: "GCASH", Reason: "HTTP_503"}})
			req := newRequest("100.00", "200.00")
			req.MaxRetries = intPtr(1)
			view := create(req)
			_, err := service.Start(ctx, view.ID, "officer-1")
			Expect(err).ToNot(HaveOccurred())
			Eventually(batchStatus(view.ID), "5s").Should(Equal(batch.StatusCompleted))

			// When
			requeued, err := service.RetryFailed(ctx, view.ID, "officer-1")

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(requeued).To(BeZero())
		})

		It("is not allowed before the batch started", func() {
			view := create(newRequest("100.00"))

			_, err := service.RetryFailed(ctx, view.ID, "officer-1")

			Expect(internal.IsType(err, internal.ErrorTypeInvalidStateTransition)).To(BeTrue())
		})
	})

	Describe("ProcessDueBatches", func() {
		It("starts only batches whose date has come", func() {
			// Given
			due := create(newRequest("100.00"))
			later := newRequest("200.00")
			later.ScheduledDate = time.Now().UTC().AddDate(0, 0, 3)
			future := create(later)

			// When
			result, err := service.ProcessDueBatches(ctx)

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Started).To(Equal([]string{due.ID}))
			Expect(result.Failed).To(BeEmpty())
			Eventually(batchStatus(due.ID), "5s").Should(Equal(batch.StatusCompleted))
			Expect(batchStatus(future.ID)()).To(Equal(batch.StatusPending))
			Expect(trailOf(due.ID)).To(ContainElement("BATCH_STARTED"))
		})
	})

	Describe("MonitorProgress", func() {
		It("reports counters of a batch that has not started", func() {
			view := create(newRequest("100.00", "200.00"))

			progress, err := service.MonitorProgress(ctx, view.ID)

			Expect(err).ToNot(HaveOccurred())
			Expect(progress.Status).To(Equal(batch.StatusPending))
			Expect(progress.Completed).To(BeFalse())
			Expect(progress.Counts).To(Equal(payment.Counts{Total: 2, Pending: 2}))
			Expect(progress.CompletionPercent).To(BeZero())
		})

		It("reports unknown batches as not found", func() {
			_, err := service.MonitorProgress(ctx, "missing")

			Expect(err).To(MatchError(internal.ErrBatchNotFound))
		})
	})

	Describe("read models", func() {
		It("lists batches by program with derived counters", func() {
			create(newRequest("100.00", "200.00"))
			other := newRequest("300.00")
			other.ProgramID = "KALAHI"
			create(other)

			resp, err := service.List(ctx, batch.Filter{ProgramID: "4PS"})

			Expect(err).ToNot(HaveOccurred())
			Expect(resp.Total).To(BeEquivalentTo(1))
			Expect(resp.Page).To(Equal(1))
			Expect(resp.PageSize).To(Equal(20))
			Expect(resp.Batches).To(HaveLen(1))
			Expect(resp.Batches[0].Counts).To(Equal(payment.Counts{Total: 2, Pending: 2}))
		})

		It("rejects unknown status filters", func() {
			_, err := service.List(ctx, batch.Filter{Status: "DONE"})

			Expect(internal.IsType(err, internal.ErrorTypeValidation)).To(BeTrue())
		})

		It("finds a batch by its number", func() {
			view := create(newRequest("100.00"))

			found, err := service.GetByNumber(ctx, view.BatchNumber)

			Expect(err).ToNot(HaveOccurred())
			Expect(found.ID).To(Equal(view.ID))
		})

		It("aggregates statistics by status and program", func() {
			create(newRequest("100.00", "200.00"))
			other := newRequest("300.00")
			other.ProgramID = "KALAHI"
			create(other)

			byStatus, err := service.Statistics(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(byStatus).To(HaveLen(1))
			Expect(byStatus[0].Status).To(Equal(batch.StatusPending))
			Expect(byStatus[0].Count).To(Equal(2))
			Expect(byStatus[0].TotalAmount.Equal(decimal.NewFromInt(600))).To(BeTrue())

			byProgram, err := service.StatisticsByProgram(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(byProgram).To(HaveLen(2))
			Expect(byProgram[0].ProgramID).To(Equal("4PS"))
			Expect(byProgram[0].TotalPayments).To(Equal(2))
			Expect(byProgram[1].ProgramID).To(Equal("KALAHI"))
			Expect(byProgram[1].TotalAmount.Equal(decimal.NewFromInt(300))).To(BeTrue())
		})

		It("reports a finished batch by status and provider", func() {
			view := create(newRequest("100.00", "200.00"))
			_, err := service.Start(ctx, view.ID, "officer-1")
			Expect(err).ToNot(HaveOccurred())
			Eventually(batchStatus(view.ID), "5s").Should(Equal(batch.StatusCompleted))

			report, err := service.Report(ctx, view.ID)

			Expect(err).ToNot(HaveOccurred())
			Expect(report.Batch.ID).To(Equal(view.ID))
			Expect(report.ByStatus).To(HaveLen(1))
			Expect(report.ByStatus[0].Status).To(Equal(payment.StatusCompleted))
			Expect(report.ByStatus[0].Count).To(Equal(2))
			Expect(report.ByFSP).To(HaveLen(1))
			Expect(report.ByFSP[0].FSPCode).To(Equal("GCASH"))
			Expect(report.ByFSP[0].Completed).To(Equal(2))
			Expect(report.ByFSP[0].Amount.Equal(decimal.NewFromInt(300))).To(BeTrue())
		})

		It("labels payments without a provider as unassigned", func() {
			view := create(newRequest("100.00"))

			report, err := service.Report(ctx, view.ID)

			Expect(err).ToNot(HaveOccurred())
			Expect(report.ByFSP).To(HaveLen(1))
			Expect(report.ByFSP[0].FSPCode).To(Equal("UNASSIGNED"))
		})

		It("estimates completion only once progress exists", func() {
			view := create(newRequest("100.00", "200.00"))

			pending, err := service.CompletionEstimate(ctx, view.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(pending.Remaining).To(Equal(2))
			Expect(pending.EstimatedCompletionAt).To(BeNil())

			_, err = service.Start(ctx, view.ID, "officer-1")
			Expect(err).ToNot(HaveOccurred())
			Eventually(batchStatus(view.ID), "5s").Should(Equal(batch.StatusCompleted))

			done, err := service.CompletionEstimate(ctx, view.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(done.Completed).To(Equal(2))
			Expect(done.Remaining).To(BeZero())
			Expect(done.CompletionPercent).To(Equal(100.0))
			Expect(done.EstimatedRemainingSec).To(BeNil())
		})
	})
})
