package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	apperrors "github.com/frahmantamala/disbursement/internal"
	"github.com/frahmantamala/disbursement/internal/fsp"
	"github.com/frahmantamala/disbursement/internal/payment"
)

type Job struct {
	BatchID   string
	PaymentID string
}

type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing payment", "worker_id", w.ID, "batch_id", job.BatchID, "payment_id", job.PaymentID)
				processFunc(job)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// DispatchSource is what the dispatcher reads between rounds.
type DispatchSource interface {
	GetStatus(ctx context.Context, id string) (Status, error)
	PendingPaymentIDs(ctx context.Context, id string) ([]string, error)
}

type DispatcherConfig struct {
	Workers    int
	Backoff    time.Duration
	BackoffCap time.Duration
}

// Dispatcher runs at most one dispatch loop per batch. A loop hands the
// batch's PENDING payments to a pool of workers in rounds and ends when
// nothing is left to submit or the batch is paused, cancelled or failed.
type Dispatcher struct {
	source     DispatchSource
	executor   payment.ExecutorAPI
	afterRound func(ctx context.Context, batchID string)
	cfg        DispatcherConfig
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	runs map[string]*run
}

type run struct {
	cancel   context.CancelFunc
	stopping bool
	again    bool
}

func NewDispatcher(source DispatchSource, executor payment.ExecutorAPI, afterRound func(ctx context.Context, batchID string), cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	if cfg.BackoffCap < cfg.Backoff {
		cfg.BackoffCap = cfg.Backoff
	}
	if afterRound == nil {
		afterRound = func(context.Context, string) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		source:     source,
		executor:   executor,
		afterRound: afterRound,
		cfg:        cfg,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		runs:       make(map[string]*run),
	}
}

// Dispatch starts the loop for batchID. It returns false when a loop is
// already running for it or the dispatcher is shut down.
func (d *Dispatcher) Dispatch(batchID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx.Err() != nil {
		return false
	}
	if r, ok := d.runs[batchID]; ok {
		if r.stopping {
			// Restart once the stopping loop has drained its in-flight jobs.
			r.again = true
			return true
		}
		return false
	}
	d.launch(batchID)
	return true
}

// Stop ends the loop for batchID after its in-flight submissions return.
func (d *Dispatcher) Stop(batchID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r, ok := d.runs[batchID]; ok {
		r.stopping = true
		r.again = false
		r.cancel()
	}
}

func (d *Dispatcher) Running(batchID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.runs[batchID]
	return ok && (!r.stopping || r.again)
}

// Shutdown stops every loop and waits for in-flight submissions.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("batch dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// launch must be called with d.mu held.
func (d *Dispatcher) launch(batchID string) {
	ctx, cancel := context.WithCancel(d.ctx)
	r := &run{cancel: cancel}
	d.runs[batchID] = r

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop(ctx, batchID)
		cancel()
		d.finish(batchID, r)
	}()
}

func (d *Dispatcher) finish(batchID string, r *run) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.runs[batchID] != r {
		return
	}
	if r.again && d.ctx.Err() == nil {
		d.launch(batchID)
		return
	}
	delete(d.runs, batchID)
}

func (d *Dispatcher) loop(ctx context.Context, batchID string) {
	backoff := retry.WithCappedDuration(d.cfg.BackoffCap, retry.NewExponential(d.cfg.Backoff))
	detached := context.WithoutCancel(ctx)

	d.logger.Info("batch dispatch started", "batch_id", batchID, "workers", d.cfg.Workers)

	for round := 1; ; round++ {
		if ctx.Err() != nil || d.halted(ctx, batchID) {
			return
		}

		ids, err := d.source.PendingPaymentIDs(ctx, batchID)
		if err != nil {
			if ctx.Err() == nil {
				d.logger.Error("failed to list pending payments", "batch_id", batchID, "error", err)
			}
			return
		}
		if len(ids) == 0 {
			d.afterRound(detached, batchID)
			d.logger.Info("batch dispatch finished", "batch_id", batchID, "rounds", round-1)
			return
		}

		stats := d.runRound(ctx, batchID, ids)
		d.logger.Info("dispatch round finished",
			"batch_id", batchID,
			"round", round,
			"payments", len(ids),
			"completed", stats.completed,
			"accepted", stats.accepted,
			"failed", stats.failed,
			"requeued", stats.requeued)

		d.afterRound(detached, batchID)

		if stats.requeued == 0 {
			continue
		}
		delay, stop := backoff.Next()
		if stop {
			return
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeCompleted
	outcomeAccepted
	outcomeFailed
	outcomeRequeued
)

type roundStats struct {
	completed int
	accepted  int
	failed    int
	requeued  int
}

func (s *roundStats) record(o outcome) {
	switch o {
	case outcomeCompleted:
		s.completed++
	case outcomeAccepted:
		s.accepted++
	case outcomeFailed:
		s.failed++
	case outcomeRequeued:
		s.requeued++
	}
}

func (d *Dispatcher) runRound(ctx context.Context, batchID string, ids []string) roundStats {
	roundCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := d.cfg.Workers
	if workers > len(ids) {
		workers = len(ids)
	}
	pool := make(chan chan Job, workers)

	var (
		workersWG sync.WaitGroup
		jobsWG    sync.WaitGroup
		mu        sync.Mutex
		stats     roundStats
	)
	process := func(job Job) {
		defer jobsWG.Done()
		out := d.execute(ctx, job)
		mu.Lock()
		stats.record(out)
		mu.Unlock()
	}
	for i := 0; i < workers; i++ {
		NewWorker(i, pool, d.logger).Start(roundCtx, &workersWG, process)
	}

feed:
	for _, id := range ids {
		// Checked before every claim so a pause or cancel stops new submissions.
		if ctx.Err() != nil || d.halted(ctx, batchID) {
			break
		}
		select {
		case jobs := <-pool:
			if ctx.Err() != nil {
				break feed
			}
			jobsWG.Add(1)
			select {
			case jobs <- Job{BatchID: batchID, PaymentID: id}:
			case <-roundCtx.Done():
				jobsWG.Done()
				break feed
			}
		case <-ctx.Done():
			break feed
		}
	}

	jobsWG.Wait()
	cancel()
	workersWG.Wait()
	return stats
}

func (d *Dispatcher) halted(ctx context.Context, batchID string) bool {
	status, err := d.source.GetStatus(ctx, batchID)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Error("failed to read batch status", "batch_id", batchID, "error", err)
		}
		return true
	}
	return !status.dispatchable()
}

func (d *Dispatcher) execute(ctx context.Context, job Job) outcome {
	p, err := d.executor.Execute(ctx, job.PaymentID, apperrors.SystemActor)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrDispatchInProgress), errors.Is(err, fsp.ErrProviderUnavailable):
		return outcomeRequeued
	case apperrors.IsType(err, apperrors.ErrorTypeInvalidStateTransition):
		// Held, cancelled or claimed elsewhere since the round was listed.
		return outcomeSkipped
	default:
		if ctx.Err() == nil {
			d.logger.Warn("payment dispatch failed",
				"batch_id", job.BatchID,
				"payment_id", job.PaymentID,
				"error", err)
		}
		return outcomeRequeued
	}

	switch payment.Status(p.Status) {
	case payment.StatusCompleted:
		return outcomeCompleted
	case payment.StatusProcessing:
		return outcomeAccepted
	case payment.StatusPending:
		return outcomeRequeued
	default:
		return outcomeFailed
	}
}
