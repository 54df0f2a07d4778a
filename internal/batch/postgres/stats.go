package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	batchpkg "github.com/frahmantamala/disbursement/internal/batch"
	paymentpkg "github.com/frahmantamala/disbursement/internal/payment"
)

const (
	queryBatchesByStatus = `
		SELECT status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS total_amount
		FROM payment_batches
		GROUP BY status
		ORDER BY status`

	queryBatchesByProgram = `
		SELECT program_id,
		       MAX(program_name) AS program_name,
		       COUNT(*) AS batches,
		       COALESCE(SUM(total_payments), 0) AS total_payments,
		       COALESCE(SUM(total_amount), 0) AS total_amount
		FROM payment_batches
		GROUP BY program_id
		ORDER BY program_id`

	queryPaymentsByStatus = `
		SELECT status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount
		FROM payments
		WHERE batch_id = ?
		GROUP BY status
		ORDER BY status`

	queryPaymentsByFSP = `
		SELECT COALESCE(fsp_code, '') AS fsp_code,
		       COUNT(*) AS count,
		       COALESCE(SUM(amount), 0) AS amount,
		       COALESCE(SUM(CASE WHEN status IN ('COMPLETED', 'REFUNDED') THEN 1 ELSE 0 END), 0) AS completed
		FROM payments
		WHERE batch_id = ?
		GROUP BY fsp_code
		ORDER BY fsp_code`

	queryCountsByBatch = `
		SELECT batch_id, status, COUNT(*) AS count
		FROM payments
		WHERE batch_id IN (?)
		GROUP BY batch_id, status`
)

// StatsRepository runs the aggregate queries directly through sqlx.
type StatsRepository struct {
	db *sqlx.DB
}

func NewStatsRepository(db *sqlx.DB) batchpkg.StatsRepositoryAPI {
	return &StatsRepository{db: db}
}

func (r *StatsRepository) ByStatus(ctx context.Context) ([]batchpkg.StatusStatistic, error) {
	stats := []batchpkg.StatusStatistic{}
	if err := r.db.SelectContext(ctx, &stats, queryBatchesByStatus); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *StatsRepository) ByProgram(ctx context.Context) ([]batchpkg.ProgramStatistic, error) {
	stats := []batchpkg.ProgramStatistic{}
	if err := r.db.SelectContext(ctx, &stats, queryBatchesByProgram); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *StatsRepository) PaymentsByStatus(ctx context.Context, batchID string) ([]batchpkg.StatusBreakdown, error) {
	rows := []batchpkg.StatusBreakdown{}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(queryPaymentsByStatus), batchID); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *StatsRepository) PaymentsByFSP(ctx context.Context, batchID string) ([]batchpkg.FSPBreakdown, error) {
	rows := []batchpkg.FSPBreakdown{}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(queryPaymentsByFSP), batchID); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *StatsRepository) CountsByBatch(ctx context.Context, batchIDs []string) (map[string]map[paymentpkg.Status]int, error) {
	counts := make(map[string]map[paymentpkg.Status]int, len(batchIDs))
	if len(batchIDs) == 0 {
		return counts, nil
	}

	query, args, err := sqlx.In(queryCountsByBatch, batchIDs)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		BatchID string `db:"batch_id"`
		Status  string `db:"status"`
		Count   int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	for _, row := range rows {
		if counts[row.BatchID] == nil {
			counts[row.BatchID] = make(map[paymentpkg.Status]int)
		}
		counts[row.BatchID][paymentpkg.Status(row.Status)] = row.Count
	}
	return counts, nil
}
