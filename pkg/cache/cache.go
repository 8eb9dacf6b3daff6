package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"catalog-browser-api/internal/models"
)

const keyPrefix = "catalog:"

var ErrUnavailable = errors.New("redis client not available")

// RedisCache stores lookup label lists and listing pages. A nil *RedisCache is
// valid and behaves as an always-missing cache.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

type Options struct {
	URL    string
	DB     int
	TTL    time.Duration
	Logger *zap.Logger
}

// NewRedisCache connects and pings Redis. It returns nil (not an error) when
// Redis is unreachable so the service can run uncached.
func NewRedisCache(ctx context.Context, opts Options) *RedisCache {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	opt, err := redis.ParseURL(opts.URL)
	if err != nil {
		logger.Warn("failed to parse redis url", zap.Error(err))
		return nil
	}
	opt.DB = opts.DB

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis connection failed, running without cache", zap.Error(err))
		_ = client.Close()
		return nil
	}

	logger.Info("redis connected", zap.Int("db", opts.DB), zap.Duration("ttl", opts.TTL))
	return New(client, opts.TTL, logger)
}

// New wraps an existing client.
func New(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (r *RedisCache) IsAvailable() bool {
	return r != nil && r.client != nil
}

// LabelsKey names the cache entry for a lookup list. parent is empty for the
// top-level category and store lookups.
func LabelsKey(kind, parent string) string {
	if parent == "" {
		return keyPrefix + "labels:" + kind
	}
	return keyPrefix + "labels:" + kind + ":" + digest(parent)
}

// PageKey names the cache entry for a listing page. The rendered query text is
// deterministic for a given selection and page, so it identifies the entry.
func PageKey(query string) string {
	return keyPrefix + "page:" + digest(query)
}

// CountKey names the cache entry for a total count.
func CountKey(query string) string {
	return keyPrefix + "count:" + digest(query)
}

// GetLabels returns (nil, false, nil) on a miss.
func (r *RedisCache) GetLabels(ctx context.Context, key string) ([]string, bool, error) {
	var labels []string
	ok, err := r.getJSON(ctx, key, &labels)
	if err != nil || !ok {
		return nil, ok, err
	}
	return labels, true, nil
}

func (r *RedisCache) SetLabels(ctx context.Context, key string, labels []string) error {
	return r.setJSON(ctx, key, labels)
}

func (r *RedisCache) GetProducts(ctx context.Context, key string) ([]models.Product, bool, error) {
	var products []models.Product
	ok, err := r.getJSON(ctx, key, &products)
	if err != nil || !ok {
		return nil, ok, err
	}
	return products, true, nil
}

func (r *RedisCache) SetProducts(ctx context.Context, key string, products []models.Product) error {
	return r.setJSON(ctx, key, products)
}

func (r *RedisCache) GetCount(ctx context.Context, key string) (int, bool, error) {
	var n int
	ok, err := r.getJSON(ctx, key, &n)
	return n, ok, err
}

func (r *RedisCache) SetCount(ctx context.Context, key string, n int) error {
	return r.setJSON(ctx, key, n)
}

func (r *RedisCache) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	if !r.IsAvailable() {
		return false, ErrUnavailable
	}

	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get error: %w", err)
	}

	if err := json.Unmarshal(val, dst); err != nil {
		return false, fmt.Errorf("json unmarshal error: %w", err)
	}
	return true, nil
}

func (r *RedisCache) setJSON(ctx context.Context, key string, v any) error {
	if !r.IsAvailable() {
		return ErrUnavailable
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal error: %w", err)
	}
	return r.client.Set(ctx, key, data, r.ttl).Err()
}

func (r *RedisCache) Close() error {
	if !r.IsAvailable() {
		return nil
	}
	return r.client.Close()
}

func (r *RedisCache) GetStats(ctx context.Context) map[string]interface{} {
	if !r.IsAvailable() {
		return map[string]interface{}{
			"status": "unavailable",
		}
	}

	info := r.client.Info(ctx, "memory").Val()
	return map[string]interface{}{
		"status":      "connected",
		"ttl_seconds": int(r.ttl.Seconds()),
		"keys":        len(r.GetAllKeys(ctx)),
		"memory_info": info,
	}
}

// GetAllKeys lists this service's keys only.
func (r *RedisCache) GetAllKeys(ctx context.Context) []string {
	if !r.IsAvailable() {
		return []string{}
	}

	var keys []string
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.logger.Warn("redis scan failed", zap.Error(err))
		return []string{}
	}
	return keys
}

// FlushCache deletes this service's keys; other data in the DB is left alone.
func (r *RedisCache) FlushCache(ctx context.Context) error {
	if !r.IsAvailable() {
		return ErrUnavailable
	}
	keys := r.GetAllKeys(ctx)
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisCache) GetKeyTTL(ctx context.Context, key string) time.Duration {
	if !r.IsAvailable() {
		return 0
	}
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0
	}
	return ttl
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:12])
}
