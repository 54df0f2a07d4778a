package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/frahmantamala/disbursement/internal"
	"github.com/frahmantamala/disbursement/internal/audit"
	paymentmodel "github.com/frahmantamala/disbursement/internal/core/datamodel/payment"
	"github.com/frahmantamala/disbursement/internal/core/events"
	"github.com/frahmantamala/disbursement/internal/payment"
)

const unassignedFSP = "UNASSIGNED"

type Service struct {
	repo       RepositoryAPI
	stats      StatsRepositoryAPI
	dispatcher *Dispatcher
	publisher  events.Publisher
	cfg        internal.DisbursementConfig
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(repo RepositoryAPI, stats StatsRepositoryAPI, executor payment.ExecutorAPI, publisher events.Publisher, cfg internal.DisbursementConfig, logger *slog.Logger) *Service {
	cfg.ApplyDefaults()
	s := &Service{
		repo:      repo,
		stats:     stats,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	s.dispatcher = NewDispatcher(repo, executor, s.afterRound, DispatcherConfig{
		Workers:    cfg.BatchConcurrency,
		Backoff:    cfg.RetryBackoff,
		BackoffCap: cfg.RetryBackoffCap,
	}, logger)
	return s
}

// Create validates the request and persists the batch with one PENDING
// payment per line. Nothing is written when any line is invalid.
func (s *Service) Create(ctx context.Context, req CreateRequest, actor string) (*View, error) {
	if req.Currency == "" {
		req.Currency = s.cfg.Currency
	}
	if appErr := req.Validate(s.now()); appErr != nil {
		return nil, appErr
	}

	maxRetries := s.cfg.DefaultMaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	b := &paymentmodel.PaymentBatch{
		ID:              uuid.New().String(),
		ProgramID:       req.ProgramID,
		ProgramName:     req.ProgramName,
		Currency:        req.Currency,
		TotalPayments:   len(req.Payments),
		PendingPayments: len(req.Payments),
		Status:          string(StatusPending),
		MaxRetries:      maxRetries,
		ScheduledDate:   req.ScheduledDate.UTC(),
		Description:     req.Description,
		CreatedBy:       actor,
		UpdatedBy:       actor,
	}
	if len(req.Metadata) > 0 {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, internal.NewValidationFieldError("metadata", "metadata must be a JSON object", internal.ErrCodeInvalidFormat)
		}
		b.Metadata = datatypes.JSON(raw)
	}

	total := decimal.Zero
	payments := make([]*paymentmodel.Payment, 0, len(req.Payments))
	for i, line := range req.Payments {
		channelType, details, err := payment.EncodePayout(line.Payout.Channel())
		if err != nil {
			return nil, fmt.Errorf("encode payout of line %d: %w", i, err)
		}

		p := &paymentmodel.Payment{
			ID:            uuid.New().String(),
			BeneficiaryID: line.BeneficiaryID,
			RecipientName: line.RecipientName,
			Amount:        line.Amount,
			Currency:      b.Currency,
			ChannelType:   channelType,
			PayoutDetails: datatypes.JSON(details),
			Status:        string(payment.StatusPending),
			MaxRetries:    maxRetries,
			ScheduledAt:   b.ScheduledDate,
		}
		if line.FSPCode != "" {
			code := line.FSPCode
			p.FSPCode = &code
		}
		if line.MaxRetries != nil {
			p.MaxRetries = *line.MaxRetries
		}

		total = total.Add(line.Amount)
		payments = append(payments, p)
	}
	b.TotalAmount = total

	if err := s.repo.Create(ctx, b, payments); err != nil {
		s.logger.Error("failed to create payment batch", "program_id", req.ProgramID, "actor", actor, "error", err)
		return nil, err
	}

	s.logger.Info("payment batch created",
		"batch_id", b.ID,
		"batch_number", b.BatchNumber,
		"program_id", b.ProgramID,
		"payments", b.TotalPayments,
		"total_amount", b.TotalAmount.StringFixed(2),
		"actor", actor)

	return ToView(b, map[payment.Status]int{payment.StatusPending: len(payments)}), nil
}

// Start moves a PENDING batch to PROCESSING and launches its dispatch in the
// background. Only the caller that wins the status change dispatches.
func (s *Service) Start(ctx context.Context, id, actor string) (*View, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if Status(b.Status) != StatusPending {
		return nil, internal.NewInvalidStateTransitionError("batch", b.Status, string(StatusProcessing), internal.ErrCodeInvalidBatchStatus)
	}

	if err := s.checkTotals(ctx, b, actor); err != nil {
		return nil, err
	}

	startedAt := s.now()
	updated, _, err := s.repo.Transition(ctx, id, Transition{
		From:      []Status{StatusPending},
		To:        StatusProcessing,
		Event:     audit.EventBatchStarted,
		Actor:     actor,
		StartedAt: &startedAt,
	})
	if err != nil {
		s.logger.Warn("failed to start batch", "batch_id", id, "actor", actor, "error", err)
		return nil, err
	}

	s.dispatcher.Dispatch(id)
	s.logger.Info("batch started", "batch_id", id, "batch_number", updated.BatchNumber, "actor", actor)
	return s.view(ctx, updated)
}

// checkTotals fails a PENDING batch whose payment rows no longer add up to
// what was declared at creation.
func (s *Service) checkTotals(ctx context.Context, b *paymentmodel.PaymentBatch, actor string) error {
	totals, err := s.repo.PaymentTotals(ctx, b.ID)
	if err != nil {
		return err
	}
	if totals.Count > 0 && totals.Count == b.TotalPayments && totals.Amount.Equal(b.TotalAmount) {
		return nil
	}

	description := fmt.Sprintf("declared %d payments totalling %s, found %d totalling %s",
		b.TotalPayments, b.TotalAmount.StringFixed(2), totals.Count, totals.Amount.StringFixed(2))
	_, _, err = s.repo.Transition(ctx, b.ID, Transition{
		From:        []Status{StatusPending},
		To:          StatusFailed,
		Event:       audit.EventBatchFailed,
		Actor:       actor,
		Description: description,
	})
	if err != nil {
		return err
	}

	s.logger.Error("batch failed precondition check", "batch_id", b.ID, "detail", description)
	return internal.NewConfigurationError("Batch payments do not match the declared totals: "+description, internal.ErrCodeBatchTotalsMismatch)
}

// Pause stops new submissions. Payments already with a provider finish.
func (s *Service) Pause(ctx context.Context, id, actor string) (*View, error) {
	updated, _, err := s.repo.Transition(ctx, id, Transition{
		From:  []Status{StatusProcessing},
		To:    StatusPaused,
		Event: audit.EventBatchPaused,
		Actor: actor,
	})
	if err != nil {
		s.logger.Warn("failed to pause batch", "batch_id", id, "actor", actor, "error", err)
		return nil, err
	}

	s.dispatcher.Stop(id)
	s.logger.Info("batch paused", "batch_id", id, "actor", actor)
	return s.view(ctx, updated)
}

func (s *Service) Resume(ctx context.Context, id, actor string) (*View, error) {
	updated, _, err := s.repo.Transition(ctx, id, Transition{
		From:  []Status{StatusPaused},
		To:    StatusProcessing,
		Event: audit.EventBatchResumed,
		Actor: actor,
	})
	if err != nil {
		s.logger.Warn("failed to resume batch", "batch_id", id, "actor", actor, "error", err)
		return nil, err
	}

	s.dispatcher.Dispatch(id)
	s.logger.Info("batch resumed", "batch_id", id, "actor", actor)
	return s.view(ctx, updated)
}

// Cancel ends the batch and cancels its payments that have not been submitted.
// Submitted payments reach their own terminal state.
func (s *Service) Cancel(ctx context.Context, id, reason, actor string) (*View, error) {
	updated, cancelled, err := s.repo.Transition(ctx, id, Transition{
		From:        []Status{StatusPending, StatusProcessing, StatusPaused},
		To:          StatusCancelled,
		Event:       audit.EventBatchCancelled,
		Actor:       actor,
		Description: reason,
		Cascade: &Cascade{
			From:          []payment.Status{payment.StatusPending, payment.StatusOnHold},
			To:            payment.StatusCancelled,
			Event:         audit.EventPaymentCancelled,
			FailureReason: payment.ReasonBatchCancelled,
		},
	})
	if err != nil {
		s.logger.Warn("failed to cancel batch", "batch_id", id, "actor", actor, "error", err)
		return nil, err
	}

	s.dispatcher.Stop(id)
	s.logger.Info("batch cancelled",
		"batch_id", id,
		"actor", actor,
		"reason", reason,
		"payments_cancelled", cancelled)

	view, err := s.view(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.publishBatch(ctx, events.EventTypeBatchCancelled, view)
	return view, nil
}

// MonitorProgress recomputes the counters from the payment rows, stores the
// snapshot and completes a PROCESSING batch with nothing left pending. It is
// the only path to COMPLETED.
func (s *Service) MonitorProgress(ctx context.Context, id string) (*Progress, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.repo.CountByStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	counts := payment.Tally(byStatus)

	if err := s.repo.SaveSnapshot(ctx, id, counts); err != nil {
		return nil, err
	}

	progress := &Progress{
		BatchID:           id,
		Status:            Status(b.Status),
		Counts:            counts,
		CompletionPercent: completionPercent(counts),
	}
	if progress.Status != StatusProcessing || counts.Pending > 0 || counts.Total == 0 {
		return progress, nil
	}

	completedAt := s.now()
	updated, _, err := s.repo.Transition(ctx, id, Transition{
		From:        []Status{StatusProcessing},
		To:          StatusCompleted,
		Event:       audit.EventBatchCompleted,
		Actor:       internal.SystemActor,
		Description: fmt.Sprintf("%d successful, %d failed", counts.Successful, counts.Failed),
		CompletedAt: &completedAt,
	})
	if internal.IsType(err, internal.ErrorTypeInvalidStateTransition) {
		// Paused, cancelled or completed by another caller meanwhile.
		status, statusErr := s.repo.GetStatus(ctx, id)
		if statusErr != nil {
			return nil, statusErr
		}
		progress.Status = status
		return progress, nil
	}
	if err != nil {
		return nil, err
	}

	progress.Status = StatusCompleted
	progress.Completed = true
	s.logger.Info("batch completed",
		"batch_id", id,
		"batch_number", updated.BatchNumber,
		"successful", counts.Successful,
		"failed", counts.Failed)

	s.publishBatch(ctx, events.EventTypeBatchCompleted, ToView(updated, byStatus))
	return progress, nil
}

func (s *Service) afterRound(ctx context.Context, batchID string) {
	if _, err := s.MonitorProgress(ctx, batchID); err != nil {
		s.logger.Error("failed to monitor batch progress", "batch_id", batchID, "error", err)
	}
}

// RetryFailed requeues failed payments that have retries left and
// relaunches dispatch unless the batch is paused.
func (s *Service) RetryFailed(ctx context.Context, id, actor string) (int, error) {
	requeued, err := s.repo.RequeueFailed(ctx, id, retryableFrom, actor)
	if err != nil {
		s.logger.Warn("failed to retry failed payments", "batch_id", id, "actor", actor, "error", err)
		return 0, err
	}

	s.logger.Info("failed payments requeued", "batch_id", id, "requeued", requeued, "actor", actor)
	if requeued == 0 {
		return 0, nil
	}

	status, err := s.repo.GetStatus(ctx, id)
	if err != nil {
		return requeued, err
	}
	if status.dispatchable() {
		s.dispatcher.Dispatch(id)
	}
	return requeued, nil
}

// ProcessDueBatches starts every PENDING batch whose scheduled date has
// arrived. One batch failing to start does not stop the others.
func (s *Service) ProcessDueBatches(ctx context.Context) (*DueResult, error) {
	due, err := s.repo.ListDue(ctx, s.now())
	if err != nil {
		return nil, err
	}

	result := &DueResult{Started: []string{}}
	for _, b := range due {
		if _, err := s.Start(ctx, b.ID, internal.SystemActor); err != nil {
			if result.Failed == nil {
				result.Failed = make(map[string]string)
			}
			result.Failed[b.ID] = err.Error()
			s.logger.Error("failed to start scheduled batch", "batch_id", b.ID, "batch_number", b.BatchNumber, "error", err)
			continue
		}
		result.Started = append(result.Started, b.ID)
	}

	if len(due) > 0 {
		s.logger.Info("processed due batches", "due", len(due), "started", len(result.Started))
	}
	return result, nil
}

// MonitorProcessing runs MonitorProgress over every PROCESSING batch and
// relaunches dispatch for those with PENDING payments and no loop in this
// process. Returns how many batches completed.
func (s *Service) MonitorProcessing(ctx context.Context) (int, error) {
	batches, err := s.repo.ListByStatus(ctx, StatusProcessing)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, b := range batches {
		progress, err := s.MonitorProgress(ctx, b.ID)
		if err != nil {
			s.logger.Error("failed to monitor batch", "batch_id", b.ID, "error", err)
			continue
		}
		if progress.Completed {
			completed++
			continue
		}
		if progress.Status == StatusProcessing && !s.dispatcher.Running(b.ID) {
			ids, err := s.repo.PendingPaymentIDs(ctx, b.ID)
			if err == nil && len(ids) > 0 {
				s.dispatcher.Dispatch(b.ID)
			}
		}
	}
	return completed, nil
}

// RegisterEventHandlers keeps batch progress current when payments settle
// outside a dispatch round, by callback or status poll.
func (s *Service) RegisterEventHandlers(bus interface {
	Subscribe(eventType string, handler events.Handler)
}) {
	handler := func(ctx context.Context, event events.Event) error {
		pe, ok := event.(*events.PaymentEvent)
		if !ok || pe.BatchID == "" {
			return nil
		}
		_, err := s.MonitorProgress(ctx, pe.BatchID)
		return err
	}
	for _, eventType := range []string{
		events.EventTypePaymentCompleted,
		events.EventTypePaymentFailed,
		events.EventTypePaymentCancelled,
	} {
		bus.Subscribe(eventType, handler)
	}
}

// Shutdown stops dispatch loops and waits for in-flight submissions.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.dispatcher.Shutdown(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, b)
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*View, error) {
	b, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, b)
}

func (s *Service) List(ctx context.Context, filter Filter) (*ListResponse, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, internal.NewValidationFieldError("status", "unknown batch status "+string(filter.Status), internal.ErrCodeInvalidFormat)
	}
	filter.normalize()

	batches, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(batches))
	for i, b := range batches {
		ids[i] = b.ID
	}
	counts, err := s.stats.CountsByBatch(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]*View, 0, len(batches))
	for _, b := range batches {
		views = append(views, ToView(b, counts[b.ID]))
	}
	return &ListResponse{
		Batches:  views,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

func (s *Service) Statistics(ctx context.Context) ([]StatusStatistic, error) {
	return s.stats.ByStatus(ctx)
}

func (s *Service) StatisticsByProgram(ctx context.Context) ([]ProgramStatistic, error) {
	return s.stats.ByProgram(ctx)
}

// CompletionEstimate extrapolates the time left from the rate at which
// payments reached a final state since the batch started.
func (s *Service) CompletionEstimate(ctx context.Context, id string) (*Estimate, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.repo.CountByStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	counts := payment.Tally(byStatus)
	done := counts.Successful + counts.Failed

	est := &Estimate{
		BatchID:           id,
		Status:            Status(b.Status),
		Total:             counts.Total,
		Completed:         done,
		Remaining:         counts.Pending,
		CompletionPercent: completionPercent(counts),
	}
	if b.StartedAt == nil {
		return est, nil
	}

	now := s.now()
	end := now
	if b.CompletedAt != nil {
		end = *b.CompletedAt
	}
	elapsed := end.Sub(*b.StartedAt)
	est.ElapsedSeconds = elapsed.Seconds()

	if done > 0 && counts.Pending > 0 {
		remaining := time.Duration(float64(elapsed) / float64(done) * float64(counts.Pending))
		seconds := remaining.Seconds()
		at := now.Add(remaining)
		est.EstimatedRemainingSec = &seconds
		est.EstimatedCompletionAt = &at
	}
	return est, nil
}

func (s *Service) Report(ctx context.Context, id string) (*Report, error) {
	view, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.stats.PaymentsByStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	byFSP, err := s.stats.PaymentsByFSP(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range byFSP {
		if byFSP[i].FSPCode == "" {
			byFSP[i].FSPCode = unassignedFSP
		}
	}

	return &Report{
		Batch:       view,
		ByStatus:    byStatus,
		ByFSP:       byFSP,
		GeneratedAt: s.now(),
	}, nil
}

func (s *Service) view(ctx context.Context, b *paymentmodel.PaymentBatch) (*View, error) {
	byStatus, err := s.repo.CountByStatus(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	return ToView(b, byStatus), nil
}

func (s *Service) publishBatch(ctx context.Context, eventType string, v *View) {
	if s.publisher == nil {
		return
	}
	event := events.NewBatchEvent(eventType, v.ID, v.BatchNumber, string(v.Status),
		v.Counts.Successful, v.Counts.Failed, v.Counts.Pending)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish batch event", "event_type", eventType, "batch_id", v.ID, "error", err)
	}
}

func completionPercent(c payment.Counts) float64 {
	if c.Total == 0 {
		return 0
	}
	pct := float64(c.Successful+c.Failed) / float64(c.Total) * 100
	return math.Round(pct*100) / 100
}
