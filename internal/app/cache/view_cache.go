package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gongdel/promptview/internal/app/model"
)

const (
	defaultOpTimeout = 2 * time.Second
	scanBatchSize    = 100
)

// ViewCache is the fast-store side of the view subsystem: the dedup gate and
// the per-prompt counter. All methods may block on Redis I/O and are bounded
// by a per-operation timeout.
type ViewCache interface {
	// TryMarkSeen atomically creates the dedup marker for the identifier.
	// Returns true iff this call created it, i.e. the view is novel within
	// the dedup window. Fails closed with ErrStoreUnavailable when Redis
	// cannot answer.
	TryMarkSeen(ctx context.Context, id model.ViewIdentifier) (bool, error)

	// IncrementViewCount atomically increments the cached counter and returns
	// the new value. The counter TTL is applied only when the increment
	// creates the key, so repeated views never extend the cache lifetime.
	IncrementViewCount(ctx context.Context, promptID int64) (int64, error)

	// GetViewCount returns the cached aggregate, or (nil, nil) on a miss.
	// Never touches the durable store.
	GetViewCount(ctx context.Context, promptID int64) (*model.ViewCount, error)

	// SetViewCount overwrites the cached counter with a fresh TTL (cache-aside fill).
	SetViewCount(ctx context.Context, vc *model.ViewCount) error

	// EvictViewCount drops the cached counter, forcing the next read to the
	// durable store.
	EvictViewCount(ctx context.Context, promptID int64) error

	// ListCachedPromptIDs scans the counter keyspace incrementally and
	// returns every prompt id with a live cached counter. Keys that fail
	// extraction are skipped and logged, not fatal.
	ListCachedPromptIDs(ctx context.Context) ([]int64, error)
}

type redisViewCache struct {
	rdb       *redis.Client
	keys      KeyStrategy
	logger    *zap.Logger
	opTimeout time.Duration
}

// NewViewCache returns a Redis-backed ViewCache using the given key strategy.
func NewViewCache(rdb *redis.Client, keys KeyStrategy, logger *zap.Logger) ViewCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisViewCache{
		rdb:       rdb,
		keys:      keys,
		logger:    logger,
		opTimeout: defaultOpTimeout,
	}
}

func (c *redisViewCache) TryMarkSeen(ctx context.Context, id model.ViewIdentifier) (bool, error) {
	key, err := c.keys.DuplicationCheckKey(id)
	if err != nil {
		return false, err
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	created, err := c.rdb.SetNX(opCtx, key, "1", c.keys.DuplicationCheckTTL()).Result()
	if err != nil {
		return false, storeErr("mark view seen", err)
	}
	return created, nil
}

func (c *redisViewCache) IncrementViewCount(ctx context.Context, promptID int64) (int64, error) {
	key := c.keys.ViewCountKey(promptID)

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	count, err := c.rdb.Incr(opCtx, key).Result()
	if err != nil {
		return 0, storeErr("increment view count", err)
	}

	// INCR created the key; attach the TTL exactly once.
	if count == 1 {
		if err := c.rdb.Expire(opCtx, key, c.keys.CountCacheTTL()).Err(); err != nil {
			c.logger.Warn("failed to set view count TTL",
				zap.Int64("prompt_id", promptID), zap.Error(err))
		}
	}

	return count, nil
}

func (c *redisViewCache) GetViewCount(ctx context.Context, promptID int64) (*model.ViewCount, error) {
	key := c.keys.ViewCountKey(promptID)

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	raw, err := c.rdb.Get(opCtx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get view count", err)
	}

	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || count < 0 {
		return nil, fmt.Errorf("%w: key %s holds %q", ErrBadCachePayload, key, raw)
	}

	return model.NewViewCount(promptID, count), nil
}

func (c *redisViewCache) SetViewCount(ctx context.Context, vc *model.ViewCount) error {
	key := c.keys.ViewCountKey(vc.PromptID)

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	value := strconv.FormatInt(vc.TotalViewCount, 10)
	if err := c.rdb.Set(opCtx, key, value, c.keys.CountCacheTTL()).Err(); err != nil {
		return storeErr("set view count", err)
	}
	return nil
}

func (c *redisViewCache) EvictViewCount(ctx context.Context, promptID int64) error {
	key := c.keys.ViewCountKey(promptID)

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.rdb.Del(opCtx, key).Err(); err != nil {
		return storeErr("evict view count", err)
	}
	return nil
}

func (c *redisViewCache) ListCachedPromptIDs(ctx context.Context) ([]int64, error) {
	pattern := c.keys.ViewCountKeyPattern()

	var (
		ids    []int64
		seen   = make(map[int64]struct{})
		cursor uint64
	)

	for {
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		keys, next, err := c.rdb.Scan(opCtx, cursor, pattern, scanBatchSize).Result()
		cancel()
		if err != nil {
			return nil, storeErr("scan view count keys", err)
		}

		for _, key := range keys {
			id, err := c.keys.PromptIDFromViewCountKey(key)
			if err != nil {
				c.logger.Warn("skipping unparseable view count key",
					zap.String("key", key), zap.Error(err))
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}

		cursor = next
		if cursor == 0 {
			return ids, nil
		}
	}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}
