package audit

import "time"

// Entry rows are never updated or deleted.
type Entry struct {
	ID          string    `gorm:"column:id;primaryKey"`
	SubjectType string    `gorm:"column:subject_type;not null"`
	SubjectID   string    `gorm:"column:subject_id;not null;uniqueIndex:idx_audit_subject_seq"`
	Sequence    int64     `gorm:"column:sequence;not null;uniqueIndex:idx_audit_subject_seq"`
	EventType   string    `gorm:"column:event_type;not null;index"`
	OldStatus   string    `gorm:"column:old_status"`
	NewStatus   string    `gorm:"column:new_status"`
	Actor       string    `gorm:"column:actor;not null"`
	Description string    `gorm:"column:description"`
	OccurredAt  time.Time `gorm:"column:occurred_at;not null"`
	PrevHash    string    `gorm:"column:prev_hash"`
	Hash        string    `gorm:"column:hash;not null"`
}

func (Entry) TableName() string {
	return "audit_entries"
}
