package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gongdel/promptview/internal/app/model"
	"github.com/gongdel/promptview/internal/app/repository"
)

// PromptService defines behaviour-level operations on prompts. It is a thin
// caller of the view subsystem's UUID-to-id resolution.
type PromptService interface {
	CreatePrompt(ctx context.Context, input CreatePromptInput) (*model.Prompt, error)
	GetPrompt(ctx context.Context, id uuid.UUID) (*model.Prompt, error)
	ListPrompts(ctx context.Context, limit, offset int) ([]model.Prompt, error)
	ResolvePromptID(ctx context.Context, id uuid.UUID) (int64, error)
}

// CreatePromptInput captures data required to create a prompt.
type CreatePromptInput struct {
	Title       string
	Content     string
	Description string
}

type promptService struct {
	repo   repository.PromptRepository
	filter *PromptFilter
}

// NewPromptService returns a service implementation backed by the given
// repository. filter may be nil.
func NewPromptService(repo repository.PromptRepository, filter *PromptFilter) PromptService {
	return &promptService{repo: repo, filter: filter}
}

func (s *promptService) CreatePrompt(ctx context.Context, input CreatePromptInput) (*model.Prompt, error) {
	prompt := &model.Prompt{
		UUID:        uuid.New(),
		Title:       input.Title,
		Content:     input.Content,
		Description: input.Description,
	}

	if err := s.repo.Create(ctx, prompt); err != nil {
		return nil, fmt.Errorf("create prompt: %w", err)
	}

	if s.filter != nil {
		s.filter.Add(prompt.UUID)
	}

	return prompt, nil
}

func (s *promptService) GetPrompt(ctx context.Context, id uuid.UUID) (*model.Prompt, error) {
	prompt, err := s.repo.GetByUUID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get prompt: %w", err)
	}
	return prompt, nil
}

func (s *promptService) ListPrompts(ctx context.Context, limit, offset int) ([]model.Prompt, error) {
	prompts, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	return prompts, nil
}

// ResolvePromptID maps the public UUID to the internal id the view subsystem
// keys on, consulting the bloom filter first to shed lookups for prompts that
// certainly do not exist.
func (s *promptService) ResolvePromptID(ctx context.Context, id uuid.UUID) (int64, error) {
	if s.filter != nil && !s.filter.MightExist(id) {
		return 0, repository.ErrPromptNotFound
	}

	promptID, err := s.repo.FindIDByUUID(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("resolve prompt id: %w", err)
	}
	return promptID, nil
}
