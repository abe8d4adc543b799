package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/gongdel/promptview/internal/app/cache"
	"github.com/gongdel/promptview/internal/app/repository"
)

// ViewSyncer periodically folds cached view counts back into Postgres, healing
// the window where a cache increment outran its durable write.
type ViewSyncer struct {
	logger   *zap.Logger
	cache    cache.ViewCache
	counts   repository.ViewCountRepository
	interval time.Duration
	stopChan chan struct{}
}

// NewViewSyncer creates a syncer sweeping at the given interval.
func NewViewSyncer(
	logger *zap.Logger,
	viewCache cache.ViewCache,
	counts repository.ViewCountRepository,
	interval time.Duration,
) *ViewSyncer {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &ViewSyncer{
		logger:   logger,
		cache:    viewCache,
		counts:   counts,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic synchronization.
func (s *ViewSyncer) Start() {
	go s.run()
}

// Stop stops the periodic synchronization.
func (s *ViewSyncer) Stop() {
	close(s.stopChan)
}

func (s *ViewSyncer) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SyncOnce(context.Background())
		case <-s.stopChan:
			s.logger.Info("view syncer stopped")
			return
		}
	}
}

// SyncOnce runs a single sweep. Per-prompt failures are logged and skipped so
// one bad entry never aborts the rest of the sweep.
func (s *ViewSyncer) SyncOnce(ctx context.Context) {
	start := time.Now()

	ids, err := s.cache.ListCachedPromptIDs(ctx)
	if err != nil {
		s.logger.Error("failed to list cached view counts", zap.Error(err))
		return
	}
	if len(ids) == 0 {
		return
	}

	var synced int
	for _, promptID := range ids {
		if err := s.syncPrompt(ctx, promptID); err != nil {
			s.logger.Error("failed to sync view count",
				zap.Int64("prompt_id", promptID), zap.Error(err))
			continue
		}
		synced++
	}

	s.logger.Info("view count sync completed",
		zap.Int("prompts", synced),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func (s *ViewSyncer) syncPrompt(ctx context.Context, promptID int64) error {
	cached, err := s.cache.GetViewCount(ctx, promptID)
	if err != nil {
		return err
	}
	if cached == nil {
		// Expired between scan and read; nothing to reconcile.
		return nil
	}

	var storedTotal int64
	stored, err := s.counts.FindByPromptID(ctx, promptID)
	switch {
	case errors.Is(err, repository.ErrViewCountNotFound):
		storedTotal = 0
	case err != nil:
		return err
	default:
		storedTotal = stored.TotalViewCount
	}

	diff := cached.TotalViewCount - storedTotal
	if diff <= 0 {
		return nil
	}

	if _, err := s.counts.IncrementBy(ctx, promptID, diff); err != nil {
		return err
	}

	s.logger.Debug("synchronized view count",
		zap.Int64("prompt_id", promptID),
		zap.Int64("added", diff),
		zap.Int64("cached", cached.TotalViewCount),
		zap.Int64("stored", storedTotal),
	)
	return nil
}
