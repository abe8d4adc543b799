package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/gongdel/promptview/internal/app/model"
)

// ViewLogRepository persists the append-only view audit trail.
type ViewLogRepository interface {
	Create(ctx context.Context, record *model.ViewRecord) error
	CountByPromptID(ctx context.Context, promptID int64) (int64, error)
	CountSince(ctx context.Context, promptID int64, since time.Time) (int64, error)
}

type viewLogRepository struct {
	db *gorm.DB
}

// NewViewLogRepository returns a GORM-backed ViewLogRepository.
func NewViewLogRepository(db *gorm.DB) ViewLogRepository {
	return &viewLogRepository{db: db}
}

func (r *viewLogRepository) Create(ctx context.Context, record *model.ViewRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *viewLogRepository) CountByPromptID(ctx context.Context, promptID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ViewRecord{}).
		Where("prompt_id = ?", promptID).
		Count(&count).Error
	return count, err
}

func (r *viewLogRepository) CountSince(ctx context.Context, promptID int64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ViewRecord{}).
		Where("prompt_id = ? AND viewed_at >= ?", promptID, since).
		Count(&count).Error
	return count, err
}
