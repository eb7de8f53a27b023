package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/annel0/lerocia/internal/logging"
	"github.com/annel0/lerocia/internal/persistence"
	"github.com/go-redis/redis/v8"
)

// RedisCache оборачивает persistence.Store: статистика и инвентарь персонажей
// читаются через Redis (read-through), записи идут в хранилище и инвалидируют кеш.
// Остальные операции проходят напрямую.
type RedisCache struct {
	persistence.Store

	client *redis.Client
	ttl    time.Duration
	prefix string
	log    *logging.Logger

	requests      int64
	hits          int64
	misses        int64
	errors        int64
	invalidations int64
}

// NewRedisCache подключается к Redis и оборачивает inner
func NewRedisCache(config CacheConfig, inner persistence.Store) (*RedisCache, error) {
	if config.TTL == 0 {
		config.TTL = 10 * time.Minute
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "lerocia"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.RedisURL,
		Password:     config.RedisPassword,
		DB:           config.RedisDB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	// Проверяем соединение
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info("Redis cache initialized: %s", config.RedisURL)
	return &RedisCache{
		Store:  inner,
		client: rdb,
		ttl:    config.TTL,
		prefix: config.KeyPrefix,
		log:    logging.GetPersistenceLogger(),
	}, nil
}

func (r *RedisCache) statsKey(id int) string {
	return r.prefix + ":stats:" + strconv.Itoa(id)
}

func (r *RedisCache) itemsKey(id int) string {
	return r.prefix + ":items:" + strconv.Itoa(id)
}

// lookup читает ключ из Redis; false при промахе или ошибке Redis
func (r *RedisCache) lookup(ctx context.Context, key string, v interface{}) bool {
	atomic.AddInt64(&r.requests, 1)
	val, err := r.client.Get(ctx, key).Bytes()
	if err == nil && json.Unmarshal(val, v) == nil {
		atomic.AddInt64(&r.hits, 1)
		return true
	}
	atomic.AddInt64(&r.misses, 1)
	if err != nil && !errors.Is(err, redis.Nil) {
		atomic.AddInt64(&r.errors, 1)
		r.log.Warn("Redis Get error for key %s: %v", key, err)
	}
	return false
}

func (r *RedisCache) fill(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		atomic.AddInt64(&r.errors, 1)
		r.log.Warn("Redis Set error for key %s: %v", key, err)
	}
}

func (r *RedisCache) invalidate(ctx context.Context, keys ...string) {
	atomic.AddInt64(&r.invalidations, int64(len(keys)))
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		atomic.AddInt64(&r.errors, 1)
		r.log.Warn("Redis Del error for keys %v: %v", keys, err)
	}
}

func (r *RedisCache) GetStatsForCharacter(ctx context.Context, characterID int) (persistence.StatsRecord, error) {
	var st persistence.StatsRecord
	key := r.statsKey(characterID)
	if r.lookup(ctx, key, &st) {
		return st, nil
	}
	st, err := r.Store.GetStatsForCharacter(ctx, characterID)
	if err != nil {
		return st, err
	}
	r.fill(ctx, key, st)
	return st, nil
}

func (r *RedisCache) SetStatsForCharacter(ctx context.Context, characterID int, stats persistence.StatsRecord) error {
	if err := r.Store.SetStatsForCharacter(ctx, characterID, stats); err != nil {
		r.invalidate(ctx, r.statsKey(characterID))
		return err
	}
	r.fill(ctx, r.statsKey(characterID), stats)
	return nil
}

func (r *RedisCache) GetItemsForCharacter(ctx context.Context, characterID int) ([]int, error) {
	var items []int
	key := r.itemsKey(characterID)
	if r.lookup(ctx, key, &items) {
		return items, nil
	}
	items, err := r.Store.GetItemsForCharacter(ctx, characterID)
	if err != nil {
		return nil, err
	}
	r.fill(ctx, key, items)
	return items, nil
}

func (r *RedisCache) AddItemForCharacter(ctx context.Context, characterID, itemID int) error {
	defer r.invalidate(ctx, r.itemsKey(characterID))
	return r.Store.AddItemForCharacter(ctx, characterID, itemID)
}

func (r *RedisCache) DeleteItemForCharacter(ctx context.Context, characterID, itemID int) error {
	defer r.invalidate(ctx, r.itemsKey(characterID))
	return r.Store.DeleteItemForCharacter(ctx, characterID, itemID)
}

func (r *RedisCache) UpdateInventoryOwnership(ctx context.Context, oldOwner, newOwner int) error {
	defer r.invalidate(ctx, r.itemsKey(oldOwner), r.itemsKey(newOwner))
	return r.Store.UpdateInventoryOwnership(ctx, oldOwner, newOwner)
}

// GetMetrics возвращает метрики кеша.
func (r *RedisCache) GetMetrics() *CacheMetrics {
	m := &CacheMetrics{
		TotalRequests: atomic.LoadInt64(&r.requests),
		CacheHits:     atomic.LoadInt64(&r.hits),
		CacheMisses:   atomic.LoadInt64(&r.misses),
		Errors:        atomic.LoadInt64(&r.errors),
		Invalidations: atomic.LoadInt64(&r.invalidations),
		LastUpdate:    time.Now(),
	}
	if m.TotalRequests > 0 {
		m.HitRatio = float64(m.CacheHits) / float64(m.TotalRequests)
	}
	return m
}

// Close закрывает Redis и обёрнутое хранилище
func (r *RedisCache) Close() error {
	cerr := r.client.Close()
	if err := r.Store.Close(); err != nil {
		return err
	}
	return cerr
}

var _ persistence.Store = (*RedisCache)(nil)
