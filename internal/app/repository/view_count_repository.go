package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gongdel/promptview/internal/app/model"
)

var (
	// ErrViewCountNotFound signals that no durable count row exists for the prompt.
	ErrViewCountNotFound = errors.New("view count not found")
)

// ViewCountRepository is the durable side of the per-prompt view counters.
// The rows it manages are the source of truth; the Redis copies are
// disposable accelerators.
type ViewCountRepository interface {
	// Increment adds one view, creating the row when absent.
	Increment(ctx context.Context, promptID int64) (*model.ViewCount, error)
	// IncrementBy adds n views in a single upsert; n must be positive.
	IncrementBy(ctx context.Context, promptID, n int64) (*model.ViewCount, error)
	// SaveOrUpdate overwrites the stored aggregate.
	SaveOrUpdate(ctx context.Context, vc *model.ViewCount) error
	// FindByPromptID loads the aggregate, or ErrViewCountNotFound.
	FindByPromptID(ctx context.Context, promptID int64) (*model.ViewCount, error)
	// ListTopByViews returns the most-viewed prompts, highest first.
	ListTopByViews(ctx context.Context, limit int) ([]model.ViewCount, error)
}

type viewCountRepository struct {
	db *gorm.DB
}

// NewViewCountRepository returns a GORM-backed ViewCountRepository.
func NewViewCountRepository(db *gorm.DB) ViewCountRepository {
	return &viewCountRepository{db: db}
}

func (r *viewCountRepository) Increment(ctx context.Context, promptID int64) (*model.ViewCount, error) {
	return r.IncrementBy(ctx, promptID, 1)
}

func (r *viewCountRepository) IncrementBy(ctx context.Context, promptID, n int64) (*model.ViewCount, error) {
	if n <= 0 {
		return nil, fmt.Errorf("increment must be positive, got %d", n)
	}

	// Atomic upsert so concurrent incrementers never lose updates or race on
	// row creation.
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "prompt_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_view_count": gorm.Expr("view_counts.total_view_count + ?", n),
			"updated_at":       time.Now(),
		}),
	}).Create(&model.ViewCount{
		PromptID:       promptID,
		TotalViewCount: n,
	}).Error
	if err != nil {
		return nil, err
	}

	return r.FindByPromptID(ctx, promptID)
}

func (r *viewCountRepository) SaveOrUpdate(ctx context.Context, vc *model.ViewCount) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "prompt_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_view_count": vc.TotalViewCount,
			"updated_at":       time.Now(),
		}),
	}).Create(vc).Error
}

func (r *viewCountRepository) FindByPromptID(ctx context.Context, promptID int64) (*model.ViewCount, error) {
	var vc model.ViewCount
	if err := r.db.WithContext(ctx).Where("prompt_id = ?", promptID).First(&vc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrViewCountNotFound
		}
		return nil, err
	}
	return &vc, nil
}

func (r *viewCountRepository) ListTopByViews(ctx context.Context, limit int) ([]model.ViewCount, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	var result []model.ViewCount
	if err := r.db.WithContext(ctx).
		Order("total_view_count DESC").
		Limit(limit).
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}
