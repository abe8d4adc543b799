package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gongdel/promptview/internal/app/cache"
	"github.com/gongdel/promptview/internal/app/model"
	"github.com/gongdel/promptview/internal/app/repository"
)

// ViewEventPublisher hands an accepted view to the asynchronous persistence
// pipeline. Implementations must be safe for concurrent use.
type ViewEventPublisher interface {
	Publish(record *model.ViewRecord) error
}

// RecordViewInput captures one incoming view request. UserID is set when the
// caller has already authenticated the viewer; AnonymousID is a
// client-supplied identity for guests. IPAddress is always required.
type RecordViewInput struct {
	PromptID    int64
	UserID      *int64
	AnonymousID string
	IPAddress   string
}

// RecordViewResult reports whether the view counted as new and the resulting
// total. Accepted carries the real dedup outcome end-to-end.
type RecordViewResult struct {
	Accepted       bool
	TotalViewCount int64
}

// ViewService is the behaviour-level surface of the view subsystem: recording
// views under the dedup window and answering count queries cache-aside.
type ViewService interface {
	RecordView(ctx context.Context, in RecordViewInput) (*RecordViewResult, error)
	GetViewCount(ctx context.Context, promptID int64) (*model.ViewCount, error)
	GetTotalViewCount(ctx context.Context, promptID int64) (int64, error)
	GetTopViewed(ctx context.Context, limit int) ([]model.ViewCount, error)
}

type viewService struct {
	cache     cache.ViewCache
	counts    repository.ViewCountRepository
	logs      repository.ViewLogRepository
	publisher ViewEventPublisher
	logger    *zap.Logger
}

// NewViewService wires the orchestrators. publisher may be nil, in which case
// every accepted view is persisted synchronously.
func NewViewService(
	viewCache cache.ViewCache,
	counts repository.ViewCountRepository,
	logs repository.ViewLogRepository,
	publisher ViewEventPublisher,
	logger *zap.Logger,
) ViewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &viewService{
		cache:     viewCache,
		counts:    counts,
		logs:      logs,
		publisher: publisher,
		logger:    logger,
	}
}

// RecordView runs the recording pipeline: dedup gate, counter increment,
// durable persistence. Concurrent calls for the same viewer+prompt are
// serialized only at the gate; exactly one of them is accepted per window.
func (s *viewService) RecordView(ctx context.Context, in RecordViewInput) (*RecordViewResult, error) {
	identifier := model.ViewIdentifier{
		PromptID:    in.PromptID,
		UserID:      in.UserID,
		AnonymousID: in.AnonymousID,
		IPAddress:   in.IPAddress,
	}
	if err := identifier.Validate(); err != nil {
		return nil, err
	}

	novel, err := s.cache.TryMarkSeen(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("record view: %w", err)
	}

	if !novel {
		// Duplicate within the window: no side effects on the count.
		current, err := s.currentCount(ctx, in.PromptID)
		if err != nil {
			return nil, fmt.Errorf("record view: %w", err)
		}
		s.logger.Debug("duplicate view suppressed",
			zap.Int64("prompt_id", in.PromptID),
			zap.String("viewer", identifier.ViewerLabel()))
		return &RecordViewResult{Accepted: false, TotalViewCount: current}, nil
	}

	newCount, err := s.cache.IncrementViewCount(ctx, in.PromptID)
	if err != nil {
		return nil, fmt.Errorf("record view: %w", err)
	}

	record := &model.ViewRecord{
		ID:          uuid.New().String(),
		PromptID:    in.PromptID,
		UserID:      in.UserID,
		AnonymousID: in.AnonymousID,
		IPAddress:   in.IPAddress,
		ViewedAt:    time.Now(),
	}
	s.persistView(ctx, record)

	s.logger.Info("view recorded",
		zap.Int64("prompt_id", in.PromptID),
		zap.String("viewer", identifier.ViewerLabel()),
		zap.Int64("total", newCount))

	return &RecordViewResult{Accepted: true, TotalViewCount: newCount}, nil
}

// persistView hands the record to the durable store. The cache already
// answered the caller, so a failure here is logged and left to the
// reconciliation sweep instead of revoking acceptance.
func (s *viewService) persistView(ctx context.Context, record *model.ViewRecord) {
	if s.publisher != nil {
		err := s.publisher.Publish(record)
		if err == nil {
			return
		}
		s.logger.Warn("view event publish failed, persisting synchronously",
			zap.String("record_id", record.ID), zap.Error(err))
	}

	if err := s.logs.Create(ctx, record); err != nil {
		s.logger.Error("failed to persist view log",
			zap.String("record_id", record.ID),
			zap.Int64("prompt_id", record.PromptID),
			zap.Error(err))
		return
	}
	if _, err := s.counts.Increment(ctx, record.PromptID); err != nil {
		s.logger.Error("failed to persist view count",
			zap.Int64("prompt_id", record.PromptID),
			zap.Error(err))
	}
}

// currentCount is the duplicate-path read: cached value when present,
// durable value otherwise, zero when the prompt was never viewed.
func (s *viewService) currentCount(ctx context.Context, promptID int64) (int64, error) {
	cached, err := s.cache.GetViewCount(ctx, promptID)
	if err != nil {
		return 0, err
	}
	if cached != nil {
		return cached.TotalViewCount, nil
	}

	stored, err := s.counts.FindByPromptID(ctx, promptID)
	if errors.Is(err, repository.ErrViewCountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return stored.TotalViewCount, nil
}

// GetViewCount is a cache-aside read: cache hit returns immediately; a miss
// falls through to Postgres and repopulates the cache. Absence in storage is
// not cached, so a first-ever view is never masked by a stale zero entry.
func (s *viewService) GetViewCount(ctx context.Context, promptID int64) (*model.ViewCount, error) {
	cached, err := s.cache.GetViewCount(ctx, promptID)
	if err != nil {
		return nil, fmt.Errorf("get view count: %w", err)
	}
	if cached != nil {
		return cached, nil
	}

	stored, err := s.counts.FindByPromptID(ctx, promptID)
	if errors.Is(err, repository.ErrViewCountNotFound) {
		return model.EmptyViewCount(promptID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get view count: %w", err)
	}

	if err := s.cache.SetViewCount(ctx, stored); err != nil {
		// The answer is already in hand; a failed fill only costs the next
		// reader another storage round trip.
		s.logger.Warn("failed to fill view count cache",
			zap.Int64("prompt_id", promptID), zap.Error(err))
	}

	return stored, nil
}

func (s *viewService) GetTotalViewCount(ctx context.Context, promptID int64) (int64, error) {
	vc, err := s.GetViewCount(ctx, promptID)
	if err != nil {
		return 0, err
	}
	return vc.TotalViewCount, nil
}

func (s *viewService) GetTopViewed(ctx context.Context, limit int) ([]model.ViewCount, error) {
	counts, err := s.counts.ListTopByViews(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("get top viewed: %w", err)
	}
	return counts, nil
}
