// Package cacheaside places a cache in front of store reads and drops the
// affected entries after store writes. Cache failures never reach callers:
// they are logged and the store result is used instead.
package cacheaside

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/userservice/userservice/internal/cache"
	"go.uber.org/zap"
)

const (
	defaultTTL               = 60 * time.Second
	defaultInvalidateTimeout = 2 * time.Second
	defaultGenerationTTL     = 24 * time.Hour

	// tag sets outlive the entries they index by this much
	indexTTLMargin = 5 * time.Second
)

// Options configures a Coordinator
type Options struct {
	// Prefix namespaces every key written to the backend.
	Prefix string
	// TTL applies to entries and to the tag sets that index them.
	TTL time.Duration
	// InvalidateTimeout bounds a single Invalidate call.
	InvalidateTimeout time.Duration
	// GenerationTTL is how long a tag's generation counter survives its
	// last invalidation. Loads taking longer are never written back.
	GenerationTTL time.Duration
}

// Coordinator implements read-through caching with tag based invalidation.
// A nil backend disables caching and every read goes to the loader.
type Coordinator struct {
	backend cache.Backend
	opts    Options
	logger  *zap.Logger
}

// New creates a coordinator over backend
func New(backend cache.Backend, opts Options, logger *zap.Logger) *Coordinator {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.InvalidateTimeout <= 0 {
		opts.InvalidateTimeout = defaultInvalidateTimeout
	}
	if opts.GenerationTTL <= 0 {
		opts.GenerationTTL = defaultGenerationTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		backend: backend,
		opts:    opts,
		logger:  logger,
	}
}

// Disabled returns a coordinator that never touches a cache
func Disabled() *Coordinator {
	return New(nil, Options{}, nil)
}

// Enabled reports whether a backend is configured
func (c *Coordinator) Enabled() bool {
	return c != nil && c.backend != nil
}

// EntryKey is the backend key under which the entry called name is stored
func (c *Coordinator) EntryKey(name string) string {
	return c.opts.Prefix + ":" + name
}

// TagKey is the backend key of the set indexing entries tagged with tag
func (c *Coordinator) TagKey(tag string) string {
	return c.opts.Prefix + ":tag:" + tag
}

// GenerationKey is the backend key of the invalidation counter of tag
func (c *Coordinator) GenerationKey(tag string) string {
	return c.opts.Prefix + ":gen:" + tag
}

// Read returns the cached value of the entry called name, or calls load on a
// miss and writes the result back indexed under scope. Scope names every tag
// a write that could change the result must invalidate. Errors from load are
// returned unchanged and never cached, and a read with an empty scope is
// never cached.
//
// The generations of the scope tags are read before load and the write-back
// only happens if none of them moved, so a load that raced with an
// invalidation can not put its result back into the cache.
func Read[T any](ctx context.Context, c *Coordinator, name string, scope []string, load func(context.Context) (T, error)) (T, error) {
	if !c.Enabled() {
		return load(ctx)
	}

	key := c.EntryKey(name)
	if value, ok := lookup[T](ctx, c, key); ok {
		recordOutcome(ctx, OutcomeHit)
		return value, nil
	}
	recordOutcome(ctx, OutcomeMiss)

	scope = uniqueStrings(scope)
	generations, guarded := c.snapshot(ctx, scope)

	started := time.Now()
	value, err := load(ctx)
	if err != nil {
		return value, err
	}

	if guarded && time.Since(started) < c.opts.GenerationTTL {
		c.writeBack(ctx, key, value, scope, generations)
	}
	return value, nil
}

// snapshot reads the generation of every scope tag. It reports false when
// the result must not be written back.
func (c *Coordinator) snapshot(ctx context.Context, scope []string) ([]int64, bool) {
	if len(scope) == 0 {
		return nil, false
	}

	counters := make([]string, len(scope))
	for i, tag := range scope {
		counters[i] = c.GenerationKey(tag)
	}
	generations, err := c.backend.Generations(ctx, counters...)
	if err != nil {
		c.logger.Warn("Failed to read cache generations, skipping write-back",
			zap.Strings("tags", scope),
			zap.Error(err))
		return nil, false
	}
	if len(generations) != len(counters) {
		return nil, false
	}
	return generations, true
}

func lookup[T any](ctx context.Context, c *Coordinator, key string) (T, bool) {
	var value T

	raw, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			c.logger.Warn("Cache read failed, falling back to store",
				zap.String("key", key),
				zap.Error(err))
		}
		return value, false
	}

	if err := json.Unmarshal(raw, &value); err != nil {
		c.logger.Warn("Discarding undecodable cache entry",
			zap.String("key", key),
			zap.Error(err))
		if err := c.backend.Delete(ctx, key); err != nil {
			c.logger.Warn("Failed to delete undecodable cache entry",
				zap.String("key", key),
				zap.Error(err))
		}
		var zero T
		return zero, false
	}
	return value, true
}

// writeBack stores the entry and its tag memberships in one backend call,
// conditional on the scope generations observed before the load.
func (c *Coordinator) writeBack(ctx context.Context, key string, value any, scope []string, generations []int64) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Failed to encode cache entry",
			zap.String("key", key),
			zap.Error(err))
		return
	}

	indexes := make([]string, len(scope))
	guards := make(map[string]int64, len(scope))
	for i, tag := range scope {
		indexes[i] = c.TagKey(tag)
		guards[c.GenerationKey(tag)] = generations[i]
	}

	stored, err := c.backend.StoreIndexed(ctx, cache.Entry{
		Key:      key,
		Value:    raw,
		TTL:      c.opts.TTL,
		Indexes:  indexes,
		IndexTTL: c.opts.TTL + indexTTLMargin,
		Guards:   guards,
	})
	if err != nil {
		c.logger.Warn("Failed to write cache entry",
			zap.String("key", key),
			zap.Error(err))
		return
	}
	if !stored {
		c.logger.Debug("Skipped cache write-back, scope invalidated during load",
			zap.String("key", key))
	}
}

// Invalidate bumps the generation of every tag, then deletes every entry
// indexed under any of tags along with the tag sets themselves. Bumping
// first stops reads already in flight from writing back. It runs detached
// from ctx cancellation within InvalidateTimeout and only logs failures.
func (c *Coordinator) Invalidate(ctx context.Context, tags ...string) {
	if !c.Enabled() {
		return
	}
	tags = uniqueStrings(tags)
	if len(tags) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.InvalidateTimeout)
	defer cancel()

	counters := make([]string, len(tags))
	for i, tag := range tags {
		counters[i] = c.GenerationKey(tag)
	}
	if err := c.backend.BumpGenerations(ctx, c.opts.GenerationTTL, counters...); err != nil {
		c.logger.Warn("Failed to bump cache generations",
			zap.Strings("tags", tags),
			zap.Error(err))
	}

	keys := make([]string, 0, len(tags))
	for _, tag := range tags {
		tagKey := c.TagKey(tag)
		members, err := c.backend.IndexMembers(ctx, tagKey)
		if err != nil {
			c.logger.Warn("Failed to read cache index",
				zap.String("tag", tag),
				zap.Error(err))
			continue
		}
		keys = append(keys, members...)
		keys = append(keys, tagKey)
	}
	keys = uniqueStrings(keys)
	if len(keys) == 0 {
		return
	}

	if err := c.backend.Delete(ctx, keys...); err != nil {
		c.logger.Warn("Failed to invalidate cache entries",
			zap.Strings("tags", tags),
			zap.Int("keys", len(keys)),
			zap.Error(err))
		return
	}

	c.logger.Debug("Invalidated cache entries",
		zap.Strings("tags", tags),
		zap.Int("keys", len(keys)))
}

func uniqueStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
