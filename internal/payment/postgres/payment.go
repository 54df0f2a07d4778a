package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/disbursement/internal"
	"github.com/frahmantamala/disbursement/internal/audit"
	"github.com/frahmantamala/disbursement/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/disbursement/internal/payment"
)

const batchStatusCancelled = "CANCELLED"

type PaymentRepository struct {
	db    *gorm.DB
	audit audit.Writer
}

func NewPaymentRepository(db *gorm.DB, auditWriter audit.Writer) paymentpkg.RepositoryAPI {
	return &PaymentRepository{
		db:    db,
		audit: auditWriter,
	}
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("reference = ?", reference))
}

func (r *PaymentRepository) GetByProviderReference(ctx context.Context, fspCode, providerReference string) (*payment.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("fsp_code = ? AND provider_reference = ?", fspCode, providerReference))
}

func (r *PaymentRepository) first(q *gorm.DB) (*payment.Payment, error) {
	var p payment.Payment
	err := q.First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) ListByBatch(ctx context.Context, batchID string) ([]*payment.Payment, error) {
	var payments []*payment.Payment
	err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("reference ASC").Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) ListAwaitingSettlement(ctx context.Context, submittedBefore time.Time, limit int) ([]*payment.Payment, error) {
	var payments []*payment.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND provider_reference IS NOT NULL AND submitted_at < ?", string(paymentpkg.StatusProcessing), submittedBefore).
		Order("submitted_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) Transition(ctx context.Context, id string, t paymentpkg.Transition) (*payment.Payment, error) {
	if !t.From.CanTransitionTo(t.To) {
		return nil, apperrors.NewInvalidStateTransitionError("payment", string(t.From), string(t.To), apperrors.ErrCodeInvalidPaymentStatus)
	}

	updates := map[string]interface{}{
		"status":     string(t.To),
		"updated_at": time.Now().UTC(),
	}
	if t.FailureReason != nil {
		updates["failure_reason"] = *t.FailureReason
	}
	if t.FSPCode != nil {
		updates["fsp_code"] = *t.FSPCode
	}
	if t.ProviderReference != nil {
		updates["provider_reference"] = *t.ProviderReference
	}
	if t.ConfirmedAmount != nil {
		updates["confirmed_amount"] = *t.ConfirmedAmount
	}
	if t.RetryCount != nil {
		updates["retry_count"] = *t.RetryCount
	}
	if t.SubmittedAt != nil {
		updates["submitted_at"] = *t.SubmittedAt
	}
	if t.ProcessedAt != nil {
		updates["processed_at"] = *t.ProcessedAt
	}

	return r.update(ctx, id, t.From, t.To, updates, audit.Record{
		EventType:   t.Event,
		OldStatus:   string(t.From),
		NewStatus:   string(t.To),
		Actor:       t.Actor,
		Description: t.Description,
	})
}

func (r *PaymentRepository) RecordAcceptance(ctx context.Context, id, providerReference, actor string) (*payment.Payment, error) {
	processing := paymentpkg.StatusProcessing
	return r.update(ctx, id, processing, processing, map[string]interface{}{
		"provider_reference": providerReference,
		"updated_at":         time.Now().UTC(),
	}, audit.Record{
		EventType:   audit.EventPaymentAccepted,
		OldStatus:   string(processing),
		NewStatus:   string(processing),
		Actor:       actor,
		Description: "accepted as " + providerReference,
	})
}

// update applies updates where the payment is still in from, appends the
// audit record and returns the fresh row, all in one transaction.
func (r *PaymentRepository) update(ctx context.Context, id string, from, to paymentpkg.Status, updates map[string]interface{}, rec audit.Record) (*payment.Payment, error) {
	var updated payment.Payment

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&payment.Payment{}).
			Where("id = ? AND status = ?", id, string(from)).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var current payment.Payment
			err := tx.Select("status").Where("id = ?", id).First(&current).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrPaymentNotFound
			}
			if err != nil {
				return err
			}
			return apperrors.NewInvalidStateTransitionError("payment", current.Status, string(to), apperrors.ErrCodeInvalidPaymentStatus)
		}

		rec.SubjectType = audit.SubjectPayment
		rec.SubjectID = id
		if err := r.audit.Append(tx, rec); err != nil {
			return err
		}

		return tx.Where("id = ?", id).First(&updated).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *PaymentRepository) BatchCancelled(ctx context.Context, batchID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&payment.PaymentBatch{}).
		Where("id = ? AND status = ?", batchID, batchStatusCancelled).
		Count(&count).Error
	return count > 0, err
}
