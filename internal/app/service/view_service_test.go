package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gongdel/promptview/internal/app/cache"
	"github.com/gongdel/promptview/internal/app/model"
	"github.com/gongdel/promptview/internal/app/repository"
)

type mockViewCache struct {
	tryMarkSeenFn func(ctx context.Context, id model.ViewIdentifier) (bool, error)
	incrementFn   func(ctx context.Context, promptID int64) (int64, error)
	getFn         func(ctx context.Context, promptID int64) (*model.ViewCount, error)
	setFn         func(ctx context.Context, vc *model.ViewCount) error
	evictFn       func(ctx context.Context, promptID int64) error
	listFn        func(ctx context.Context) ([]int64, error)
}

func (m *mockViewCache) TryMarkSeen(ctx context.Context, id model.ViewIdentifier) (bool, error) {
	if m.tryMarkSeenFn != nil {
		return m.tryMarkSeenFn(ctx, id)
	}
	return true, nil
}

func (m *mockViewCache) IncrementViewCount(ctx context.Context, promptID int64) (int64, error) {
	if m.incrementFn != nil {
		return m.incrementFn(ctx, promptID)
	}
	return 1, nil
}

func (m *mockViewCache) GetViewCount(ctx context.Context, promptID int64) (*model.ViewCount, error) {
	if m.getFn != nil {
		return m.getFn(ctx, promptID)
	}
	return nil, nil
}

func (m *mockViewCache) SetViewCount(ctx context.Context, vc *model.ViewCount) error {
	if m.setFn != nil {
		return m.setFn(ctx, vc)
	}
	return nil
}

func (m *mockViewCache) EvictViewCount(ctx context.Context, promptID int64) error {
	if m.evictFn != nil {
		return m.evictFn(ctx, promptID)
	}
	return nil
}

func (m *mockViewCache) ListCachedPromptIDs(ctx context.Context) ([]int64, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

type mockViewCountRepo struct {
	incrementFn   func(ctx context.Context, promptID int64) (*model.ViewCount, error)
	incrementByFn func(ctx context.Context, promptID, n int64) (*model.ViewCount, error)
	saveFn        func(ctx context.Context, vc *model.ViewCount) error
	findFn        func(ctx context.Context, promptID int64) (*model.ViewCount, error)
	listTopFn     func(ctx context.Context, limit int) ([]model.ViewCount, error)
}

func (m *mockViewCountRepo) Increment(ctx context.Context, promptID int64) (*model.ViewCount, error) {
	if m.incrementFn != nil {
		return m.incrementFn(ctx, promptID)
	}
	return model.NewViewCount(promptID, 1), nil
}

func (m *mockViewCountRepo) IncrementBy(ctx context.Context, promptID, n int64) (*model.ViewCount, error) {
	if m.incrementByFn != nil {
		return m.incrementByFn(ctx, promptID, n)
	}
	return model.NewViewCount(promptID, n), nil
}

func (m *mockViewCountRepo) SaveOrUpdate(ctx context.Context, vc *model.ViewCount) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, vc)
	}
	return nil
}

func (m *mockViewCountRepo) FindByPromptID(ctx context.Context, promptID int64) (*model.ViewCount, error) {
	if m.findFn != nil {
		return m.findFn(ctx, promptID)
	}
	return nil, repository.ErrViewCountNotFound
}

func (m *mockViewCountRepo) ListTopByViews(ctx context.Context, limit int) ([]model.ViewCount, error) {
	if m.listTopFn != nil {
		return m.listTopFn(ctx, limit)
	}
	return nil, nil
}

type mockViewLogRepo struct {
	mu        sync.Mutex
	created   []model.ViewRecord
	createErr error
}

func (m *mockViewLogRepo) Create(ctx context.Context, record *model.ViewRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, *record)
	return nil
}

func (m *mockViewLogRepo) CountByPromptID(ctx context.Context, promptID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.created {
		if r.PromptID == promptID {
			n++
		}
	}
	return n, nil
}

func (m *mockViewLogRepo) CountSince(ctx context.Context, promptID int64, since time.Time) (int64, error) {
	return 0, nil
}

type mockPublisher struct {
	mu        sync.Mutex
	published []model.ViewRecord
	err       error
}

func (m *mockPublisher) Publish(record *model.ViewRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, *record)
	return nil
}

// fakeViewCache is an in-memory ViewCache with real dedup/increment semantics
// so the orchestrator can be exercised without Redis.
type fakeViewCache struct {
	mu       sync.Mutex
	keys     cache.KeyStrategy
	markers  map[string]struct{}
	counters map[int64]int64
}

func newFakeViewCache() *fakeViewCache {
	return &fakeViewCache{
		keys:     cache.NewKeyStrategy(0, 0),
		markers:  make(map[string]struct{}),
		counters: make(map[int64]int64),
	}
}

func (f *fakeViewCache) TryMarkSeen(_ context.Context, id model.ViewIdentifier) (bool, error) {
	key, err := f.keys.DuplicationCheckKey(id)
	if err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.markers[key]; exists {
		return false, nil
	}
	f.markers[key] = struct{}{}
	return true, nil
}

func (f *fakeViewCache) IncrementViewCount(_ context.Context, promptID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[promptID]++
	return f.counters[promptID], nil
}

func (f *fakeViewCache) GetViewCount(_ context.Context, promptID int64) (*model.ViewCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count, ok := f.counters[promptID]
	if !ok {
		return nil, nil
	}
	return model.NewViewCount(promptID, count), nil
}

func (f *fakeViewCache) SetViewCount(_ context.Context, vc *model.ViewCount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[vc.PromptID] = vc.TotalViewCount
	return nil
}

func (f *fakeViewCache) EvictViewCount(_ context.Context, promptID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counters, promptID)
	return nil
}

func (f *fakeViewCache) ListCachedPromptIDs(_ context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.counters))
	for id := range f.counters {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeViewCache) hasCounter(promptID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.counters[promptID]
	return ok
}

func TestViewService_RecordView_SameUserTwice(t *testing.T) {
	fake := newFakeViewCache()
	logs := &mockViewLogRepo{}
	svc := NewViewService(fake, &mockViewCountRepo{}, logs, nil, nil)

	userID := int64(1)
	input := RecordViewInput{PromptID: 42, UserID: &userID, IPAddress: "203.0.113.1"}

	first, err := svc.RecordView(context.Background(), input)
	if err != nil {
		t.Fatalf("first RecordView returned error: %v", err)
	}
	if !first.Accepted || first.TotalViewCount != 1 {
		t.Fatalf("expected (true, 1), got (%v, %d)", first.Accepted, first.TotalViewCount)
	}

	second, err := svc.RecordView(context.Background(), input)
	if err != nil {
		t.Fatalf("second RecordView returned error: %v", err)
	}
	if second.Accepted || second.TotalViewCount != 1 {
		t.Fatalf("expected (false, 1), got (%v, %d)", second.Accepted, second.TotalViewCount)
	}

	if len(logs.created) != 1 {
		t.Fatalf("expected exactly one audit row, got %d", len(logs.created))
	}
}

func TestViewService_RecordView_DistinctViewerTypes(t *testing.T) {
	fake := newFakeViewCache()
	svc := NewViewService(fake, &mockViewCountRepo{}, &mockViewLogRepo{}, nil, nil)

	// Seed one prior view.
	userID := int64(1)
	if _, err := svc.RecordView(context.Background(), RecordViewInput{
		PromptID: 42, UserID: &userID, IPAddress: "198.51.100.9",
	}); err != nil {
		t.Fatalf("seed RecordView returned error: %v", err)
	}

	anon, err := svc.RecordView(context.Background(), RecordViewInput{
		PromptID: 42, AnonymousID: "anon-abc", IPAddress: "203.0.113.1",
	})
	if err != nil {
		t.Fatalf("anonymous RecordView returned error: %v", err)
	}
	ip, err := svc.RecordView(context.Background(), RecordViewInput{
		PromptID: 42, IPAddress: "203.0.113.1",
	})
	if err != nil {
		t.Fatalf("ip RecordView returned error: %v", err)
	}

	if !anon.Accepted || !ip.Accepted {
		t.Fatalf("expected both viewer types accepted, got anon=%v ip=%v", anon.Accepted, ip.Accepted)
	}
	if ip.TotalViewCount != 3 {
		t.Fatalf("expected final count 3 (= 1 previous + 2), got %d", ip.TotalViewCount)
	}
}

func TestViewService_RecordView_DuplicateReadsStoredCount(t *testing.T) {
	// Marker present but counter evicted: the duplicate response must fall
	// back to the durable count instead of reporting zero.
	viewCache := &mockViewCache{
		tryMarkSeenFn: func(ctx context.Context, id model.ViewIdentifier) (bool, error) {
			return false, nil
		},
	}
	counts := &mockViewCountRepo{
		findFn: func(ctx context.Context, promptID int64) (*model.ViewCount, error) {
			return model.NewViewCount(promptID, 57), nil
		},
	}
	svc := NewViewService(viewCache, counts, &mockViewLogRepo{}, nil, nil)

	result, err := svc.RecordView(context.Background(), RecordViewInput{
		PromptID: 42, IPAddress: "203.0.113.1",
	})
	if err != nil {
		t.Fatalf("RecordView returned error: %v", err)
	}
	if result.Accepted {
		t.Fatal("expected duplicate")
	}
	if result.TotalViewCount != 57 {
		t.Fatalf("expected stored count 57, got %d", result.TotalViewCount)
	}
}

func TestViewService_RecordView_StoreUnavailable(t *testing.T) {
	viewCache := &mockViewCache{
		tryMarkSeenFn: func(ctx context.Context, id model.ViewIdentifier) (bool, error) {
			return false, fmt.Errorf("mark view seen: %w", cache.ErrStoreUnavailable)
		},
	}
	svc := NewViewService(viewCache, &mockViewCountRepo{}, &mockViewLogRepo{}, nil, nil)

	_, err := svc.RecordView(context.Background(), RecordViewInput{
		PromptID: 42, IPAddress: "203.0.113.1",
	})
	if !errors.Is(err, cache.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable to propagate, got %v", err)
	}
}

func TestViewService_RecordView_InvalidIdentifier(t *testing.T) {
	svc := NewViewService(&mockViewCache{}, &mockViewCountRepo{}, &mockViewLogRepo{}, nil, nil)

	_, err := svc.RecordView(context.Background(), RecordViewInput{PromptID: 0, IPAddress: "203.0.113.1"})
	if !errors.Is(err, model.ErrInvalidViewIdentifier) {
		t.Fatalf("expected ErrInvalidViewIdentifier, got %v", err)
	}
}

func TestViewService_RecordView_PublishesAcceptedViews(t *testing.T) {
	pub := &mockPublisher{}
	logs := &mockViewLogRepo{}
	svc := NewViewService(newFakeViewCache(), &mockViewCountRepo{}, logs, pub, nil)

	result, err := svc.RecordView(context.Background(), RecordViewInput{
		PromptID: 42, AnonymousID: "anon-abc", IPAddress: "203.0.113.1",
	})
	if err != nil {
		t.Fatalf("RecordView returned error: %v", err)
	}
	if !result.Accepted {
		t.Fatal("expected accepted view")
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected one published event, got %d", len(pub.published))
	}
	if pub.published[0].PromptID != 42 || pub.published[0].AnonymousID != "anon-abc" {
		t.Fatalf("unexpected published record: %+v", pub.published[0])
	}
	if len(logs.created) != 0 {
		t.Fatal("expected no synchronous persistence when publishing succeeds")
	}
}

func TestViewService_RecordView_PublishFailureFallsBackToSync(t *testing.T) {
	pub := &mockPublisher{err: errors.New("nats down")}
	logs := &mockViewLogRepo{}

	var incremented int64
	counts := &mockViewCountRepo{
		incrementFn: func(ctx context.Context, promptID int64) (*model.ViewCount, error) {
			incremented = promptID
			return model.NewViewCount(promptID, 1), nil
		},
	}

	svc := NewViewService(newFakeViewCache(), counts, logs, pub, nil)

	result, err := svc.RecordView(context.Background(), RecordViewInput{
		PromptID: 42, IPAddress: "203.0.113.1",
	})
	if err != nil {
		t.Fatalf("RecordView returned error: %v", err)
	}
	if !result.Accepted {
		t.Fatal("expected the view to stay accepted despite the publish failure")
	}
	if len(logs.created) != 1 {
		t.Fatalf("expected synchronous audit row, got %d", len(logs.created))
	}
	if incremented != 42 {
		t.Fatalf("expected durable increment for prompt 42, got %d", incremented)
	}
}

func TestViewService_GetViewCount_CacheAsideFill(t *testing.T) {
	fake := newFakeViewCache()
	counts := &mockViewCountRepo{
		findFn: func(ctx context.Context, promptID int64) (*model.ViewCount, error) {
			return model.NewViewCount(promptID, 57), nil
		},
	}
	svc := NewViewService(fake, counts, &mockViewLogRepo{}, nil, nil)

	vc, err := svc.GetViewCount(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetViewCount returned error: %v", err)
	}
	if vc.TotalViewCount != 57 {
		t.Fatalf("expected durable count 57, got %d", vc.TotalViewCount)
	}

	// The fill must satisfy the next read without the durable store.
	counts.findFn = func(ctx context.Context, promptID int64) (*model.ViewCount, error) {
		t.Fatal("unexpected durable read after cache fill")
		return nil, nil
	}
	again, err := svc.GetViewCount(context.Background(), 42)
	if err != nil {
		t.Fatalf("second GetViewCount returned error: %v", err)
	}
	if again.TotalViewCount != 57 {
		t.Fatalf("expected cached 57, got %d", again.TotalViewCount)
	}
}

func TestViewService_GetViewCount_NeverViewedIsNotCached(t *testing.T) {
	fake := newFakeViewCache()
	svc := NewViewService(fake, &mockViewCountRepo{}, &mockViewLogRepo{}, nil, nil)

	for i := 0; i < 2; i++ {
		vc, err := svc.GetViewCount(context.Background(), 777)
		if err != nil {
			t.Fatalf("GetViewCount returned error: %v", err)
		}
		if vc.TotalViewCount != 0 {
			t.Fatalf("expected zero count, got %d", vc.TotalViewCount)
		}
	}

	if fake.hasCounter(777) {
		t.Fatal("absence in storage must not create a cache entry")
	}
}

func TestViewService_GetTotalViewCount(t *testing.T) {
	fake := newFakeViewCache()
	fake.SetViewCount(context.Background(), model.NewViewCount(42, 9))
	svc := NewViewService(fake, &mockViewCountRepo{}, &mockViewLogRepo{}, nil, nil)

	total, err := svc.GetTotalViewCount(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetTotalViewCount returned error: %v", err)
	}
	if total != 9 {
		t.Fatalf("expected 9, got %d", total)
	}

	total, err = svc.GetTotalViewCount(context.Background(), 999)
	if err != nil {
		t.Fatalf("GetTotalViewCount returned error: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected 0 for never-viewed prompt, got %d", total)
	}
}

func TestViewService_RecordView_ConcurrentDistinctViewers(t *testing.T) {
	const viewers = 50

	fake := newFakeViewCache()
	svc := NewViewService(fake, &mockViewCountRepo{}, &mockViewLogRepo{}, nil, nil)

	var wg sync.WaitGroup
	accepted := make([]bool, viewers)

	for i := 0; i < viewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := int64(i + 1)
			result, err := svc.RecordView(context.Background(), RecordViewInput{
				PromptID:  42,
				UserID:    &userID,
				IPAddress: "203.0.113.1",
			})
			if err != nil {
				t.Errorf("viewer %d: %v", i, err)
				return
			}
			accepted[i] = result.Accepted
		}(i)
	}
	wg.Wait()

	for i, ok := range accepted {
		if !ok {
			t.Fatalf("viewer %d was wrongly treated as duplicate", i)
		}
	}

	final, err := svc.GetTotalViewCount(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetTotalViewCount returned error: %v", err)
	}
	if final != viewers {
		t.Fatalf("expected %d views with no lost updates, got %d", viewers, final)
	}
}

func TestViewService_RecordView_ConcurrentSameViewer(t *testing.T) {
	const attempts = 20

	fake := newFakeViewCache()
	svc := NewViewService(fake, &mockViewCountRepo{}, &mockViewLogRepo{}, nil, nil)

	var (
		wg            sync.WaitGroup
		mu            sync.Mutex
		acceptedTotal int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.RecordView(context.Background(), RecordViewInput{
				PromptID: 42, AnonymousID: "anon-abc", IPAddress: "203.0.113.1",
			})
			if err != nil {
				t.Errorf("RecordView returned error: %v", err)
				return
			}
			if result.Accepted {
				mu.Lock()
				acceptedTotal++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if acceptedTotal != 1 {
		t.Fatalf("expected exactly one accepted view per window, got %d", acceptedTotal)
	}
}

func TestViewService_GetTopViewed(t *testing.T) {
	counts := &mockViewCountRepo{
		listTopFn: func(ctx context.Context, limit int) ([]model.ViewCount, error) {
			return []model.ViewCount{
				{PromptID: 1, TotalViewCount: 30},
				{PromptID: 2, TotalViewCount: 12},
			}, nil
		},
	}
	svc := NewViewService(&mockViewCache{}, counts, &mockViewLogRepo{}, nil, nil)

	top, err := svc.GetTopViewed(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetTopViewed returned error: %v", err)
	}
	if len(top) != 2 || top[0].TotalViewCount < top[1].TotalViewCount {
		t.Fatalf("unexpected top list: %+v", top)
	}
}
