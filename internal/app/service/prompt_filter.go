package service

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/google/uuid"
)

const (
	filterCapacity      = 1_000_000
	filterFalsePositive = 0.01
)

// PromptFilter is a bloom filter over known prompt UUIDs. It sits in front of
// the view endpoints so floods of made-up UUIDs are rejected before touching
// Postgres. A "might exist" answer is only a hint; a "does not exist" answer
// is definitive for every UUID added on this instance.
type PromptFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewPromptFilter creates an empty filter sized for the expected prompt volume.
func NewPromptFilter() *PromptFilter {
	return &PromptFilter{
		filter: bloom.NewWithEstimates(filterCapacity, filterFalsePositive),
	}
}

// UUIDLister yields every stored prompt UUID.
type UUIDLister interface {
	ListUUIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Warm seeds the filter with every prompt UUID currently stored.
func (f *PromptFilter) Warm(ctx context.Context, prompts UUIDLister) error {
	ids, err := prompts.ListUUIDs(ctx)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.filter.Add(id[:])
	}
	return nil
}

// Add registers a newly created prompt UUID.
func (f *PromptFilter) Add(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter.Add(id[:])
}

// MightExist reports whether the UUID could belong to a stored prompt.
func (f *PromptFilter) MightExist(id uuid.UUID) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.Test(id[:])
}
