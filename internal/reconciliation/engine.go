package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	apperrors "github.com/frahmantamala/disbursement/internal"
	"github.com/frahmantamala/disbursement/internal/audit"
	"github.com/frahmantamala/disbursement/internal/core/datamodel/payment"
	"github.com/frahmantamala/disbursement/internal/core/datamodel/reconciliation"
	"github.com/frahmantamala/disbursement/internal/core/events"
	"github.com/frahmantamala/disbursement/internal/fsp"
	paymentpkg "github.com/frahmantamala/disbursement/internal/payment"
)

// Engine compares what each settled payment should have moved with what its
// provider confirmed. It reads payments and never changes them.
type Engine struct {
	batches     BatchLookup
	payments    PaymentSource
	providers   ProviderLookup
	repo        RepositoryAPI
	publisher   events.Publisher
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

func NewEngine(batches BatchLookup, payments PaymentSource, providers ProviderLookup, repo RepositoryAPI, publisher events.Publisher, concurrency int, logger *slog.Logger) *Engine {
	if concurrency <= 0 {
		concurrency = DefaultRefreshConcurrency
	}
	return &Engine{
		batches:     batches,
		payments:    payments,
		providers:   providers,
		repo:        repo,
		publisher:   publisher,
		concurrency: concurrency,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// settled is one COMPLETED or FAILED payment with the amounts compared.
type settled struct {
	payment   *payment.Payment
	expected  decimal.Decimal
	confirmed *decimal.Decimal
}

func (e *Engine) Reconcile(ctx context.Context, batchID, actor string) (*View, error) {
	b, err := e.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	all, err := e.payments.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("list payments of batch %s: %w", batchID, err)
	}

	var rows []*settled
	for _, p := range all {
		switch paymentpkg.Status(p.Status) {
		case paymentpkg.StatusCompleted:
			rows = append(rows, &settled{payment: p, expected: p.Amount, confirmed: p.ConfirmedAmount})
		case paymentpkg.StatusFailed:
			rows = append(rows, &settled{payment: p, expected: decimal.Zero, confirmed: p.ConfirmedAmount})
		}
	}
	if len(rows) == 0 {
		return nil, apperrors.ErrNothingToReconcile
	}

	e.refresh(ctx, rows)

	result := e.compare(batchID, rows)
	result.ID = uuid.New().String()
	result.RunAt = e.now()
	result.RunBy = actor
	for i := range result.Discrepancies {
		result.Discrepancies[i].ID = uuid.New().String()
		result.Discrepancies[i].ResultID = result.ID
	}

	records := []audit.Record{{
		SubjectType: audit.SubjectBatch,
		SubjectID:   batchID,
		EventType:   audit.EventReconciliationCompleted,
		OldStatus:   b.Status,
		NewStatus:   b.Status,
		Actor:       actor,
		Description: fmt.Sprintf("%d reconciled, %d unreconciled", result.ReconciledCount, result.UnreconciledCount),
	}}
	if len(result.Discrepancies) > 0 {
		records = append(records, audit.Record{
			SubjectType: audit.SubjectBatch,
			SubjectID:   batchID,
			EventType:   audit.EventReconciliationDiscrepancy,
			OldStatus:   b.Status,
			NewStatus:   b.Status,
			Actor:       actor,
			Description: fmt.Sprintf("%d discrepancies, difference %s", len(result.Discrepancies), result.ExpectedTotal.Sub(result.ActualTotal).StringFixed(2)),
		})
	}

	if err := e.repo.Save(ctx, result, records...); err != nil {
		return nil, fmt.Errorf("save reconciliation of batch %s: %w", batchID, err)
	}

	e.logger.Info("batch reconciled",
		"batch_id", batchID,
		"result_id", result.ID,
		"reconciled", result.ReconciledCount,
		"unreconciled", result.UnreconciledCount,
		"discrepancies", len(result.Discrepancies))

	if e.publisher != nil {
		event := events.NewReconciliationCompletedEvent(batchID, result.ID, result.ReconciledCount, result.UnreconciledCount, len(result.Discrepancies))
		if err := e.publisher.Publish(ctx, event); err != nil {
			e.logger.Warn("failed to publish reconciliation event", "batch_id", batchID, "error", err)
		}
	}

	return ToView(result), nil
}

// refresh replaces stored confirmations with the provider's current answer
// where the provider supports status checks. Failures keep the stored value.
func (e *Engine) refresh(ctx context.Context, rows []*settled) {
	p := pool.New().WithMaxGoroutines(e.concurrency)
	for _, row := range rows {
		if row.payment.FSPCode == nil || row.payment.ProviderReference == nil {
			continue
		}
		adapter, profile, ok := e.providers.Get(*row.payment.FSPCode)
		if !ok {
			continue
		}
		checker, ok := adapter.(fsp.StatusChecker)
		if !ok {
			continue
		}

		row, reference, timeout := row, *row.payment.ProviderReference, profile.Timeout
		p.Go(func() {
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			res, err := checker.CheckStatus(checkCtx, reference)
			if err != nil {
				e.logger.Warn("provider status check failed",
					"payment_id", row.payment.ID,
					"fsp_code", *row.payment.FSPCode,
					"error", err)
				return
			}
			if res.Outcome == fsp.OutcomeSuccess && res.ConfirmedAmount != nil {
				confirmed := *res.ConfirmedAmount
				row.confirmed = &confirmed
			}
		})
	}
	p.Wait()
}

// compare builds the result for rows. Its output depends only on rows, so
// two runs over the same provider data produce the same discrepancies.
func (e *Engine) compare(batchID string, rows []*settled) *reconciliation.Result {
	result := &reconciliation.Result{
		BatchID:       batchID,
		TotalPayments: len(rows),
		ExpectedTotal: decimal.Zero,
		ActualTotal:   decimal.Zero,
	}

	settlements := make(map[string]int)
	for _, row := range rows {
		if key, ok := settlementKey(row); ok {
			settlements[key]++
		}
	}

	var found []reconciliation.Discrepancy
	for _, row := range rows {
		actual := decimal.Zero
		if row.confirmed != nil {
			actual = *row.confirmed
		}
		result.ExpectedTotal = result.ExpectedTotal.Add(row.expected)
		result.ActualTotal = result.ActualTotal.Add(actual)

		flag := func(reason Reason) {
			found = append(found, reconciliation.Discrepancy{
				PaymentID:        row.payment.ID,
				PaymentReference: row.payment.Reference,
				Expected:         row.expected,
				Actual:           actual,
				Difference:       row.expected.Sub(actual),
				Reason:           string(reason),
			})
		}

		clean := true
		switch {
		case row.confirmed == nil && row.expected.IsPositive():
			flag(ReasonProviderUnconfirmed)
			clean = false
		case row.confirmed != nil && !row.confirmed.Equal(row.expected):
			flag(ReasonAmountMismatch)
			clean = false
		}
		if key, ok := settlementKey(row); ok && settlements[key] > 1 {
			flag(ReasonDuplicateSettlement)
			clean = false
		}

		if clean {
			result.ReconciledCount++
		}
	}
	result.UnreconciledCount = result.TotalPayments - result.ReconciledCount

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].PaymentReference != found[j].PaymentReference {
			return found[i].PaymentReference < found[j].PaymentReference
		}
		return found[i].Reason < found[j].Reason
	})
	for i := range found {
		found[i].Position = i
	}
	result.Discrepancies = found
	return result
}

func settlementKey(row *settled) (string, bool) {
	p := row.payment
	if p.FSPCode == nil || p.ProviderReference == nil || *p.ProviderReference == "" {
		return "", false
	}
	return *p.FSPCode + "/" + *p.ProviderReference, true
}

func (e *Engine) Latest(ctx context.Context, batchID string) (*View, error) {
	result, err := e.repo.Latest(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return ToView(result), nil
}

func (e *Engine) History(ctx context.Context, batchID string) ([]*View, error) {
	if _, err := e.batches.GetByID(ctx, batchID); err != nil {
		return nil, err
	}
	results, err := e.repo.History(ctx, batchID)
	if err != nil {
		return nil, err
	}
	views := make([]*View, 0, len(results))
	for _, r := range results {
		views = append(views, ToView(r))
	}
	return views, nil
}
