package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	auditpkg "github.com/frahmantamala/disbursement/internal/audit"
	"github.com/frahmantamala/disbursement/internal/core/datamodel/audit"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{
		db: db,
	}
}

var _ auditpkg.RepositoryAPI = (*AuditRepository)(nil)

// Append seals and inserts records using tx. Records for the same subject are
// chained in the order given.
func (r *AuditRepository) Append(tx *gorm.DB, records ...auditpkg.Record) error {
	if len(records) == 0 {
		return nil
	}

	heads := make(map[string]*audit.Entry)
	entries := make([]*audit.Entry, 0, len(records))

	for _, rec := range records {
		head, ok := heads[rec.SubjectID]
		if !ok {
			var err error
			head, err = r.lastEntry(tx, rec.SubjectID)
			if err != nil {
				return err
			}
		}

		occurred := rec.OccurredAt
		if occurred.IsZero() {
			occurred = time.Now()
		}

		entry := &audit.Entry{
			ID:          uuid.New().String(),
			SubjectType: string(rec.SubjectType),
			SubjectID:   rec.SubjectID,
			Sequence:    1,
			EventType:   string(rec.EventType),
			OldStatus:   rec.OldStatus,
			NewStatus:   rec.NewStatus,
			Actor:       rec.Actor,
			Description: rec.Description,
			OccurredAt:  occurred.UTC().Truncate(time.Microsecond),
		}
		if head != nil {
			entry.Sequence = head.Sequence + 1
			entry.PrevHash = head.Hash
		}

		hash, err := auditpkg.Seal(entry)
		if err != nil {
			return err
		}
		entry.Hash = hash

		heads[rec.SubjectID] = entry
		entries = append(entries, entry)
	}

	if err := tx.CreateInBatches(entries, 200).Error; err != nil {
		return fmt.Errorf("append audit entries: %w", err)
	}
	return nil
}

func (r *AuditRepository) lastEntry(tx *gorm.DB, subjectID string) (*audit.Entry, error) {
	var e audit.Entry
	err := tx.Where("subject_id = ?", subjectID).Order("sequence DESC").First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load audit head for %s: %w", subjectID, err)
	}
	return &e, nil
}

func (r *AuditRepository) Trail(ctx context.Context, subjectID string) ([]*audit.Entry, error) {
	var entries []*audit.Entry
	err := r.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("sequence ASC").
		Find(&entries).Error
	return entries, err
}
