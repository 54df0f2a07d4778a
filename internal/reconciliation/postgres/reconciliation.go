package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/frahmantamala/disbursement/internal"
	"github.com/frahmantamala/disbursement/internal/audit"
	"github.com/frahmantamala/disbursement/internal/core/datamodel/payment"
	"github.com/frahmantamala/disbursement/internal/core/datamodel/reconciliation"
	reconciliationpkg "github.com/frahmantamala/disbursement/internal/reconciliation"
)

type ReconciliationRepository struct {
	db    *gorm.DB
	audit audit.Writer
}

func NewReconciliationRepository(db *gorm.DB, auditWriter audit.Writer) reconciliationpkg.RepositoryAPI {
	return &ReconciliationRepository{
		db:    db,
		audit: auditWriter,
	}
}

// Save stores result as the current one for its batch. The batch row is
// locked first so the batch audit chain has a single writer, as in batch
// transitions.
func (r *ReconciliationRepository) Save(ctx context.Context, result *reconciliation.Result, records ...audit.Record) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", result.BatchID).
			First(&payment.PaymentBatch{}).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrBatchNotFound
		}
		if err != nil {
			return err
		}

		err = tx.Model(&reconciliation.Result{}).
			Where("batch_id = ? AND superseded = ?", result.BatchID, false).
			Update("superseded", true).Error
		if err != nil {
			return err
		}

		discrepancies := result.Discrepancies
		result.Discrepancies = nil
		if err := tx.Create(result).Error; err != nil {
			return err
		}
		result.Discrepancies = discrepancies
		if len(discrepancies) > 0 {
			if err := tx.Create(&discrepancies).Error; err != nil {
				return err
			}
		}

		return r.audit.Append(tx, records...)
	})
}

func (r *ReconciliationRepository) Latest(ctx context.Context, batchID string) (*reconciliation.Result, error) {
	var result reconciliation.Result
	err := r.db.WithContext(ctx).
		Preload("Discrepancies", orderedDiscrepancies).
		Where("batch_id = ? AND superseded = ?", batchID, false).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrReconciliationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// History returns every run of the batch, newest first.
func (r *ReconciliationRepository) History(ctx context.Context, batchID string) ([]*reconciliation.Result, error) {
	var results []*reconciliation.Result
	err := r.db.WithContext(ctx).
		Preload("Discrepancies", orderedDiscrepancies).
		Where("batch_id = ?", batchID).
		Order("run_at DESC").
		Find(&results).Error
	return results, err
}

func orderedDiscrepancies(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}
