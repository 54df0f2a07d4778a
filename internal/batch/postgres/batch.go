package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/frahmantamala/disbursement/internal"
	"github.com/frahmantamala/disbursement/internal/audit"
	batchpkg "github.com/frahmantamala/disbursement/internal/batch"
	"github.com/frahmantamala/disbursement/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/disbursement/internal/payment"
)

const createChunkSize = 500

type BatchRepository struct {
	db    *gorm.DB
	audit audit.Writer
}

func NewBatchRepository(db *gorm.DB, auditWriter audit.Writer) batchpkg.RepositoryAPI {
	return &BatchRepository{
		db:    db,
		audit: auditWriter,
	}
}

func (r *BatchRepository) Create(ctx context.Context, b *payment.PaymentBatch, payments []*payment.Payment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		year := time.Now().UTC().Year()

		batchSeq := batchpkg.BatchSequence(year)
		n, err := nextSequence(tx, batchSeq, 1)
		if err != nil {
			return err
		}
		b.BatchNumber = batchpkg.FormatNumber(batchSeq, n)

		if err := tx.Create(b).Error; err != nil {
			return err
		}

		if len(payments) > 0 {
			paymentSeq := batchpkg.PaymentSequence(year)
			first, err := nextSequence(tx, paymentSeq, len(payments))
			if err != nil {
				return err
			}
			for i, p := range payments {
				p.BatchID = b.ID
				p.Reference = batchpkg.FormatNumber(paymentSeq, first+int64(i))
			}
			if err := tx.CreateInBatches(payments, createChunkSize).Error; err != nil {
				return err
			}
		}

		records := make([]audit.Record, 0, len(payments)+1)
		records = append(records, audit.Record{
			SubjectType: audit.SubjectBatch,
			SubjectID:   b.ID,
			EventType:   audit.EventBatchCreated,
			NewStatus:   b.Status,
			Actor:       b.CreatedBy,
			Description: b.BatchNumber,
		})
		for _, p := range payments {
			records = append(records, audit.Record{
				SubjectType: audit.SubjectPayment,
				SubjectID:   p.ID,
				EventType:   audit.EventPaymentCreated,
				NewStatus:   p.Status,
				Actor:       b.CreatedBy,
				Description: p.Reference,
			})
		}
		return r.audit.Append(tx, records...)
	})
}

// nextSequence reserves n consecutive numbers and returns the first.
func nextSequence(tx *gorm.DB, name string, n int) (int64, error) {
	seed := payment.NumberSequence{Name: name, Value: int64(n)}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value": gorm.Expr("number_sequences.value + ?", n),
		}),
	}).Create(&seed).Error
	if err != nil {
		return 0, err
	}

	var current payment.NumberSequence
	if err := tx.Where("name = ?", name).First(&current).Error; err != nil {
		return 0, err
	}
	return current.Value - int64(n) + 1, nil
}

func (r *BatchRepository) GetByID(ctx context.Context, id string) (*payment.PaymentBatch, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *BatchRepository) GetByNumber(ctx context.Context, number string) (*payment.PaymentBatch, error) {
	return r.first(r.db.WithContext(ctx).Where("batch_number = ?", number))
}

func (r *BatchRepository) first(q *gorm.DB) (*payment.PaymentBatch, error) {
	var b payment.PaymentBatch
	err := q.First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BatchRepository) GetStatus(ctx context.Context, id string) (batchpkg.Status, error) {
	b, err := r.first(r.db.WithContext(ctx).Select("id", "status").Where("id = ?", id))
	if err != nil {
		return "", err
	}
	return batchpkg.Status(b.Status), nil
}

func (r *BatchRepository) List(ctx context.Context, filter batchpkg.Filter) ([]*payment.PaymentBatch, int64, error) {
	q := r.db.WithContext(ctx).Model(&payment.PaymentBatch{})
	if filter.ProgramID != "" {
		q = q.Where("program_id = ?", filter.ProgramID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var batches []*payment.PaymentBatch
	err := q.Order("created_at DESC").Order("batch_number DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&batches).Error
	return batches, total, err
}

func (r *BatchRepository) ListDue(ctx context.Context, now time.Time) ([]*payment.PaymentBatch, error) {
	var batches []*payment.PaymentBatch
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_date <= ?", string(batchpkg.StatusPending), now).
		Order("scheduled_date ASC").
		Find(&batches).Error
	return batches, err
}

func (r *BatchRepository) ListByStatus(ctx context.Context, status batchpkg.Status) ([]*payment.PaymentBatch, error) {
	var batches []*payment.PaymentBatch
	err := r.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("created_at ASC").
		Find(&batches).Error
	return batches, err
}

func (r *BatchRepository) Transition(ctx context.Context, id string, t batchpkg.Transition) (*payment.PaymentBatch, int, error) {
	for _, from := range t.From {
		if !from.CanTransitionTo(t.To) {
			return nil, 0, apperrors.NewInvalidStateTransitionError("batch", string(from), string(t.To), apperrors.ErrCodeInvalidBatchStatus)
		}
	}

	var (
		updated payment.PaymentBatch
		moved   int
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := r.first(tx.Select("id", "status").Where("id = ?", id))
		if err != nil {
			return err
		}
		if !containsStatus(t.From, batchpkg.Status(current.Status)) {
			return apperrors.NewInvalidStateTransitionError("batch", current.Status, string(t.To), apperrors.ErrCodeInvalidBatchStatus)
		}

		updates := map[string]interface{}{
			"status":     string(t.To),
			"updated_by": t.Actor,
			"updated_at": time.Now().UTC(),
		}
		if t.StartedAt != nil {
			updates["started_at"] = *t.StartedAt
		}
		if t.CompletedAt != nil {
			updates["completed_at"] = *t.CompletedAt
		}

		res := tx.Model(&payment.PaymentBatch{}).
			Where("id = ? AND status = ?", id, current.Status).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.NewInvalidStateTransitionError("batch", current.Status, string(t.To), apperrors.ErrCodeInvalidBatchStatus)
		}

		records := []audit.Record{{
			SubjectType: audit.SubjectBatch,
			SubjectID:   id,
			EventType:   t.Event,
			OldStatus:   current.Status,
			NewStatus:   string(t.To),
			Actor:       t.Actor,
			Description: t.Description,
		}}

		if t.Cascade != nil {
			cascaded, err := cascade(tx, id, *t.Cascade, t.Actor)
			if err != nil {
				return err
			}
			moved = len(cascaded)
			records = append(records, cascaded...)
		}

		if err := r.audit.Append(tx, records...); err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&updated).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return &updated, moved, nil
}

// cascade moves member payments one row at a time so a payment claimed by a
// dispatcher in the meantime is skipped rather than overwritten.
func cascade(tx *gorm.DB, batchID string, c batchpkg.Cascade, actor string) ([]audit.Record, error) {
	from := paymentStatuses(c.From)

	var candidates []payment.Payment
	err := tx.Select("id", "status").
		Where("batch_id = ? AND status IN ?", batchID, from).
		Order("reference ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"status":     string(c.To),
		"updated_at": time.Now().UTC(),
	}
	if c.FailureReason != "" {
		updates["failure_reason"] = c.FailureReason
	}

	records := make([]audit.Record, 0, len(candidates))
	for _, p := range candidates {
		if !paymentpkg.Status(p.Status).CanTransitionTo(c.To) {
			continue
		}
		res := tx.Model(&payment.Payment{}).
			Where("id = ? AND status = ?", p.ID, p.Status).
			Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		records = append(records, audit.Record{
			SubjectType: audit.SubjectPayment,
			SubjectID:   p.ID,
			EventType:   c.Event,
			OldStatus:   p.Status,
			NewStatus:   string(c.To),
			Actor:       actor,
			Description: c.FailureReason,
		})
	}
	return records, nil
}

func (r *BatchRepository) RequeueFailed(ctx context.Context, id string, batchStates []batchpkg.Status, actor string) (int, error) {
	requeued := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := r.first(tx.Select("id", "status").Where("id = ?", id))
		if err != nil {
			return err
		}
		if !containsStatus(batchStates, batchpkg.Status(current.Status)) {
			return apperrors.NewInvalidStateTransitionError("batch", current.Status, "RETRY", apperrors.ErrCodeInvalidBatchStatus)
		}

		var failed []payment.Payment
		err = tx.Select("id", "retry_count", "failure_reason").
			Where("batch_id = ? AND status = ? AND retry_count < max_retries", id, string(paymentpkg.StatusFailed)).
			Order("reference ASC").
			Find(&failed).Error
		if err != nil {
			return err
		}

		records := make([]audit.Record, 0, len(failed))
		for _, p := range failed {
			res := tx.Model(&payment.Payment{}).
				Where("id = ? AND status = ?", p.ID, string(paymentpkg.StatusFailed)).
				Updates(map[string]interface{}{
					"status":       string(paymentpkg.StatusPending),
					"retry_count":  p.RetryCount + 1,
					"processed_at": nil,
					"updated_at":   time.Now().UTC(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			description := "requeued by batch retry"
			if p.FailureReason != nil {
				description += " after " + *p.FailureReason
			}
			records = append(records, audit.Record{
				SubjectType: audit.SubjectPayment,
				SubjectID:   p.ID,
				EventType:   audit.EventPaymentRetry,
				OldStatus:   string(paymentpkg.StatusFailed),
				NewStatus:   string(paymentpkg.StatusPending),
				Actor:       actor,
				Description: description,
			})
		}
		requeued = len(records)
		return r.audit.Append(tx, records...)
	})
	return requeued, err
}

func (r *BatchRepository) CountByStatus(ctx context.Context, id string) (map[paymentpkg.Status]int, error) {
	var rows []struct {
		Status string
		Count  int
	}
	err := r.db.WithContext(ctx).
		Model(&payment.Payment{}).
		Select("status, COUNT(*) AS count").
		Where("batch_id = ?", id).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[paymentpkg.Status]int, len(rows))
	for _, row := range rows {
		counts[paymentpkg.Status(row.Status)] = row.Count
	}
	return counts, nil
}

func (r *BatchRepository) PaymentTotals(ctx context.Context, id string) (batchpkg.Totals, error) {
	var row struct {
		Count  int
		Amount decimal.NullDecimal
	}
	err := r.db.WithContext(ctx).
		Model(&payment.Payment{}).
		Select("COUNT(*) AS count, SUM(amount) AS amount").
		Where("batch_id = ?", id).
		Scan(&row).Error
	if err != nil {
		return batchpkg.Totals{}, err
	}

	totals := batchpkg.Totals{Count: row.Count, Amount: decimal.Zero}
	if row.Amount.Valid {
		totals.Amount = row.Amount.Decimal
	}
	return totals, nil
}

func (r *BatchRepository) PendingPaymentIDs(ctx context.Context, id string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&payment.Payment{}).
		Where("batch_id = ? AND status = ?", id, string(paymentpkg.StatusPending)).
		Order("reference ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *BatchRepository) SaveSnapshot(ctx context.Context, id string, counts paymentpkg.Counts) error {
	return r.db.WithContext(ctx).
		Model(&payment.PaymentBatch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"successful_payments": counts.Successful,
			"failed_payments":     counts.Failed,
			"pending_payments":    counts.Pending,
			"updated_at":          time.Now().UTC(),
		}).Error
}

func containsStatus(statuses []batchpkg.Status, s batchpkg.Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func paymentStatuses(statuses []paymentpkg.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
