package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/gongdel/promptview/internal/app/model"
	"github.com/gongdel/promptview/internal/app/repository"
)

func TestViewSyncer_SyncOnce_WritesDiff(t *testing.T) {
	fake := newFakeViewCache()
	fake.SetViewCount(context.Background(), model.NewViewCount(42, 10))

	var (
		mu         sync.Mutex
		increments = map[int64]int64{}
	)
	counts := &mockViewCountRepo{
		findFn: func(ctx context.Context, promptID int64) (*model.ViewCount, error) {
			return model.NewViewCount(promptID, 7), nil
		},
		incrementByFn: func(ctx context.Context, promptID, n int64) (*model.ViewCount, error) {
			mu.Lock()
			increments[promptID] += n
			mu.Unlock()
			return model.NewViewCount(promptID, 7+n), nil
		},
	}

	syncer := NewViewSyncer(zap.NewNop(), fake, counts, 0)
	syncer.SyncOnce(context.Background())

	if increments[42] != 3 {
		t.Fatalf("expected single IncrementBy of 3 (cached 10 - stored 7), got %d", increments[42])
	}
}

func TestViewSyncer_SyncOnce_SkipsUpToDateAndStale(t *testing.T) {
	fake := newFakeViewCache()
	// Equal to stored: nothing to do. Behind stored: never decrement.
	fake.SetViewCount(context.Background(), model.NewViewCount(1, 5))
	fake.SetViewCount(context.Background(), model.NewViewCount(2, 3))

	counts := &mockViewCountRepo{
		findFn: func(ctx context.Context, promptID int64) (*model.ViewCount, error) {
			return model.NewViewCount(promptID, 5), nil
		},
		incrementByFn: func(ctx context.Context, promptID, n int64) (*model.ViewCount, error) {
			t.Fatalf("unexpected IncrementBy(%d, %d)", promptID, n)
			return nil, nil
		},
	}

	syncer := NewViewSyncer(zap.NewNop(), fake, counts, 0)
	syncer.SyncOnce(context.Background())
}

func TestViewSyncer_SyncOnce_CreatesMissingRows(t *testing.T) {
	fake := newFakeViewCache()
	fake.SetViewCount(context.Background(), model.NewViewCount(9, 4))

	var got int64
	counts := &mockViewCountRepo{
		findFn: func(ctx context.Context, promptID int64) (*model.ViewCount, error) {
			return nil, repository.ErrViewCountNotFound
		},
		incrementByFn: func(ctx context.Context, promptID, n int64) (*model.ViewCount, error) {
			got = n
			return model.NewViewCount(promptID, n), nil
		},
	}

	syncer := NewViewSyncer(zap.NewNop(), fake, counts, 0)
	syncer.SyncOnce(context.Background())

	if got != 4 {
		t.Fatalf("expected the full cached count 4 for a missing row, got %d", got)
	}
}

func TestViewSyncer_SyncOnce_BadPromptDoesNotAbortSweep(t *testing.T) {
	fake := newFakeViewCache()
	fake.SetViewCount(context.Background(), model.NewViewCount(1, 10))
	fake.SetViewCount(context.Background(), model.NewViewCount(2, 10))

	var (
		mu     sync.Mutex
		synced []int64
	)
	counts := &mockViewCountRepo{
		findFn: func(ctx context.Context, promptID int64) (*model.ViewCount, error) {
			if promptID == 1 {
				return nil, errors.New("connection reset")
			}
			return nil, repository.ErrViewCountNotFound
		},
		incrementByFn: func(ctx context.Context, promptID, n int64) (*model.ViewCount, error) {
			mu.Lock()
			synced = append(synced, promptID)
			mu.Unlock()
			return model.NewViewCount(promptID, n), nil
		},
	}

	syncer := NewViewSyncer(zap.NewNop(), fake, counts, 0)
	syncer.SyncOnce(context.Background())

	if len(synced) != 1 || synced[0] != 2 {
		t.Fatalf("expected the healthy prompt to sync despite the failing one, got %v", synced)
	}
}
