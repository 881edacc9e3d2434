package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const defaultCleanupInterval = time.Minute

// MemoryBackend is a Backend kept in process memory. Expiry is handled by
// go-cache; mu serializes the read-modify-write operations on index sets
// and generation counters.
type MemoryBackend struct {
	mu    sync.Mutex
	items *gocache.Cache
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns an empty in-memory backend whose expired keys are
// purged every cleanupInterval.
func NewMemoryBackend(cleanupInterval time.Duration) *MemoryBackend {
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	}
	return &MemoryBackend{
		items: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

// Get returns a copy of the value for key if present and not expired.
func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	raw, ok := b.items.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	stored, ok := raw.([]byte)
	if !ok {
		return nil, ErrMiss
	}

	value := make([]byte, len(stored))
	copy(value, stored)
	return value, nil
}

// Set stores a copy of value until ttl elapses.
func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	b.items.Set(key, stored, ttl)
	return nil
}

// Delete removes keys, whether they name values, indexes or counters.
func (b *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, key := range keys {
		b.items.Delete(key)
	}
	return nil
}

func (b *MemoryBackend) StoreIndexed(_ context.Context, entry Entry) (bool, error) {
	stored := make([]byte, len(entry.Value))
	copy(stored, entry.Value)

	b.mu.Lock()
	defer b.mu.Unlock()

	if !guardsHold(entry.Guards, b.generation) {
		return false, nil
	}
	for _, index := range entry.Indexes {
		b.addToIndex(index, entry.Key, entry.IndexTTL)
	}
	b.items.Set(entry.Key, stored, entry.TTL)
	return true, nil
}

// addToIndex replaces the set under index with a copy holding member, so
// readers of the previous set never see it change.
func (b *MemoryBackend) addToIndex(index, member string, ttl time.Duration) {
	members := map[string]struct{}{member: {}}
	if raw, ok := b.items.Get(index); ok {
		if existing, ok := raw.(map[string]struct{}); ok {
			for m := range existing {
				members[m] = struct{}{}
			}
		}
	}
	b.items.Set(index, members, ttl)
}

// IndexMembers returns the members of index; an absent or expired index is empty.
func (b *MemoryBackend) IndexMembers(_ context.Context, index string) ([]string, error) {
	raw, ok := b.items.Get(index)
	if !ok {
		return nil, nil
	}
	set, ok := raw.(map[string]struct{})
	if !ok {
		return nil, nil
	}
	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}
	return members, nil
}

func (b *MemoryBackend) Generations(_ context.Context, counters ...string) ([]int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	values := make([]int64, len(counters))
	for i, counter := range counters {
		values[i] = b.generation(counter)
	}
	return values, nil
}

func (b *MemoryBackend) BumpGenerations(_ context.Context, ttl time.Duration, counters ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, counter := range counters {
		b.items.Set(counter, b.generation(counter)+1, ttl)
	}
	return nil
}

func (b *MemoryBackend) generation(counter string) int64 {
	raw, ok := b.items.Get(counter)
	if !ok {
		return 0
	}
	value, _ := raw.(int64)
	return value
}

func (b *MemoryBackend) Ping(context.Context) error {
	return nil
}

// Close drops every stored key.
func (b *MemoryBackend) Close() error {
	b.items.Flush()
	return nil
}
