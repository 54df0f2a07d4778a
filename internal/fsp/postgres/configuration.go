package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/frahmantamala/disbursement/internal"
	"github.com/frahmantamala/disbursement/internal/core/datamodel/fsp"
	fsppkg "github.com/frahmantamala/disbursement/internal/fsp"
)

type ConfigurationRepository struct {
	db *gorm.DB
}

func NewConfigurationRepository(db *gorm.DB) fsppkg.RepositoryAPI {
	return &ConfigurationRepository{
		db: db,
	}
}

func (r *ConfigurationRepository) List(ctx context.Context) ([]*fsp.Configuration, error) {
	var configs []*fsp.Configuration
	err := r.db.WithContext(ctx).Order("code ASC").Find(&configs).Error
	return configs, err
}

func (r *ConfigurationRepository) GetByCode(ctx context.Context, code string) (*fsp.Configuration, error) {
	var c fsp.Configuration
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrFSPNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Upsert inserts the configuration or replaces every column of an existing one.
func (r *ConfigurationRepository) Upsert(ctx context.Context, c *fsp.Configuration) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "channels", "base_url", "api_key", "min_amount", "max_amount",
			"timeout_seconds", "max_concurrent", "active", "callback_secret_hash", "updated_at",
		}),
	}).Create(c).Error
}

func (r *ConfigurationRepository) DeleteAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&fsp.Configuration{}).Error
}
