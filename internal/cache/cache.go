package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"chatsync-backend/internal/logger"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds staleness as a safety net; explicit invalidation is the
// primary mechanism.
const DefaultTTL = 5 * time.Minute

// KV is the minimal key-value surface the read cache needs. Backed by redis
// in production, by an in-memory map in tests.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

type redisKV struct {
	rdb *redis.Client
}

func (r *redisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (r *redisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *redisKV) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.rdb.Del(ctx, keys...).Err()
}

func (r *redisKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// ReadCache stores JSON values gzip-compressed under a TTL. Writes to the
// underlying data never update entries here, they only delete them.
type ReadCache struct {
	kv  KV
	ttl time.Duration
}

func NewReadCache(rdb *redis.Client, ttl time.Duration) *ReadCache {
	return NewReadCacheWithKV(&redisKV{rdb: rdb}, ttl)
}

func NewReadCacheWithKV(kv KV, ttl time.Duration) *ReadCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ReadCache{kv: kv, ttl: ttl}
}

// GetCompressed loads and decompresses a cached value into out. A corrupted
// entry is deleted and reported as a miss, never retried or surfaced.
func (c *ReadCache) GetCompressed(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	decoded, err := decompress(raw)
	if err == nil {
		err = json.Unmarshal(decoded, out)
	}
	if err != nil {
		logger.Log.WithField("key", key).WithError(err).Warn("corrupted cache entry, deleting")
		if delErr := c.kv.Del(ctx, key); delErr != nil {
			logger.Log.WithField("key", key).WithError(delErr).Warn("failed to delete corrupted cache entry")
		}
		return false, nil
	}
	return true, nil
}

// SetCompressed stores v as gzipped JSON under the cache TTL.
func (c *ReadCache) SetCompressed(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}
	compressed, err := compress(raw)
	if err != nil {
		return fmt.Errorf("cache compress %s: %w", key, err)
	}
	return c.kv.Set(ctx, key, compressed, c.ttl)
}

// Delete removes specific keys. Safe to call redundantly.
func (c *ReadCache) Delete(ctx context.Context, keys ...string) error {
	return c.kv.Del(ctx, keys...)
}

// DeleteByPrefix removes every key under the prefix. Invalidation is
// idempotent, so overlapping calls are fine.
func (c *ReadCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	keys, err := c.kv.Keys(ctx, prefix+"*")
	if err != nil {
		return fmt.Errorf("cache scan %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.kv.Del(ctx, keys...)
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(raw []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

// ChatListKey includes the paging params so each page is cached separately.
func ChatListKey(ownerID uuid.UUID, page, pageSize int) string {
	return fmt.Sprintf("chatList:%s:p%d_s%d", ownerID, page, pageSize)
}

// ChatListPrefix covers every cached page of one owner's chat list.
func ChatListPrefix(ownerID uuid.UUID) string {
	return fmt.Sprintf("chatList:%s:", ownerID)
}

func MessagesKey(ownerID, chatID uuid.UUID) string {
	return fmt.Sprintf("messages:%s:%s", ownerID, chatID)
}
