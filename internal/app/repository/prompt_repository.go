package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gongdel/promptview/internal/app/model"
)

var (
	// ErrPromptNotFound signals that the requested prompt does not exist.
	ErrPromptNotFound = errors.New("prompt not found")
)

// PromptRepository defines the data access contract for prompts.
type PromptRepository interface {
	Create(ctx context.Context, prompt *model.Prompt) error
	GetByUUID(ctx context.Context, id uuid.UUID) (*model.Prompt, error)
	// FindIDByUUID resolves the public UUID to the internal numeric id that
	// the view subsystem keys on.
	FindIDByUUID(ctx context.Context, id uuid.UUID) (int64, error)
	List(ctx context.Context, limit, offset int) ([]model.Prompt, error)
	ListUUIDs(ctx context.Context) ([]uuid.UUID, error)
}

type promptRepository struct {
	db *gorm.DB
}

// NewPromptRepository returns a GORM-backed PromptRepository.
func NewPromptRepository(db *gorm.DB) PromptRepository {
	return &promptRepository{db: db}
}

func (r *promptRepository) Create(ctx context.Context, prompt *model.Prompt) error {
	if prompt.UUID == uuid.Nil {
		prompt.UUID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(prompt).Error
}

func (r *promptRepository) GetByUUID(ctx context.Context, id uuid.UUID) (*model.Prompt, error) {
	var prompt model.Prompt
	if err := r.db.WithContext(ctx).Where("uuid = ?", id).First(&prompt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromptNotFound
		}
		return nil, err
	}
	return &prompt, nil
}

func (r *promptRepository) FindIDByUUID(ctx context.Context, id uuid.UUID) (int64, error) {
	var promptID int64
	err := r.db.WithContext(ctx).
		Model(&model.Prompt{}).
		Where("uuid = ?", id).
		Pluck("id", &promptID).Error
	if err != nil {
		return 0, err
	}
	if promptID == 0 {
		return 0, ErrPromptNotFound
	}
	return promptID, nil
}

func (r *promptRepository) List(ctx context.Context, limit, offset int) ([]model.Prompt, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var result []model.Prompt
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&result).Error; err != nil {
		return nil, err
	}

	return result, nil
}

func (r *promptRepository) ListUUIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&model.Prompt{}).
		Pluck("uuid", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
