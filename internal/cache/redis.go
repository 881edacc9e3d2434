package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBackend implements Backend on top of a Redis server. Indexes are Redis sets.
type RedisBackend struct {
	client redis.UniversalClient
	logger *zap.Logger
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend connects to the Redis server described by a redis:// URL
func NewRedisBackend(dsn string, logger *zap.Logger) (*RedisBackend, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return NewRedisBackendFromClient(redis.NewClient(opts), logger), nil
}

// NewRedisBackendFromClient wraps an existing client
func NewRedisBackendFromClient(client redis.UniversalClient, logger *zap.Logger) *RedisBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBackend{
		client: client,
		logger: logger,
	}
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, NewCacheError("get", key, err)
	}
	return value, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return NewCacheError("set", key, err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return NewCacheError("delete", keys[0], err)
	}
	return nil
}

// StoreIndexed watches the guard counters, compares them with the expected
// generations and then runs every SADD, EXPIRE and the SET in one MULTI.
// A counter bumped between the check and EXEC aborts the transaction.
func (r *RedisBackend) StoreIndexed(ctx context.Context, entry Entry) (bool, error) {
	guards := make([]string, 0, len(entry.Guards))
	for counter := range entry.Guards {
		guards = append(guards, counter)
	}

	stored := false
	txf := func(tx *redis.Tx) error {
		if len(guards) > 0 {
			values, err := tx.MGet(ctx, guards...).Result()
			if err != nil {
				return err
			}
			current := make(map[string]int64, len(guards))
			for i, counter := range guards {
				current[counter] = parseGeneration(values[i])
			}
			if !guardsHold(entry.Guards, func(counter string) int64 { return current[counter] }) {
				return nil
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, index := range entry.Indexes {
				pipe.SAdd(ctx, index, entry.Key)
				pipe.Expire(ctx, index, entry.IndexTTL)
			}
			pipe.Set(ctx, entry.Key, entry.Value, entry.TTL)
			return nil
		})
		if err != nil {
			return err
		}
		stored = true
		return nil
	}

	if err := r.client.Watch(ctx, txf, guards...); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			r.logger.Debug("Guard changed during cache write", zap.String("key", entry.Key))
			return false, nil
		}
		return false, NewCacheError("store", entry.Key, err)
	}
	return stored, nil
}

func (r *RedisBackend) IndexMembers(ctx context.Context, index string) ([]string, error) {
	members, err := r.client.SMembers(ctx, index).Result()
	if err != nil {
		return nil, NewCacheError("index_members", index, err)
	}
	return members, nil
}

func (r *RedisBackend) Generations(ctx context.Context, counters ...string) ([]int64, error) {
	if len(counters) == 0 {
		return nil, nil
	}
	values, err := r.client.MGet(ctx, counters...).Result()
	if err != nil {
		return nil, NewCacheError("generations", counters[0], err)
	}
	generations := make([]int64, len(values))
	for i, value := range values {
		generations[i] = parseGeneration(value)
	}
	return generations, nil
}

// BumpGenerations sends every INCR and EXPIRE in a single transaction.
func (r *RedisBackend) BumpGenerations(ctx context.Context, ttl time.Duration, counters ...string) error {
	if len(counters) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, counter := range counters {
			pipe.Incr(ctx, counter)
			pipe.Expire(ctx, counter, ttl)
		}
		return nil
	})
	if err != nil {
		return NewCacheError("bump", counters[0], err)
	}
	return nil
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return NewCacheError("ping", "", err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	r.logger.Debug("Closing redis client")
	return r.client.Close()
}

// parseGeneration reads an MGET reply; nil and unparsable values count as 0.
func parseGeneration(value interface{}) int64 {
	s, ok := value.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
