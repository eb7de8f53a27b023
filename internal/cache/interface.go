// Package cache кеширует горячие данные персонажей поверх persistence.Store.
package cache

import (
	"time"
)

// CacheMetrics содержит метрики производительности кеша.
type CacheMetrics struct {
	TotalRequests int64   `json:"total_requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	HitRatio      float64 `json:"hit_ratio"`
	Errors        int64   `json:"errors"`
	Invalidations int64   `json:"invalidations"`

	LastUpdate time.Time `json:"last_update"`
}

// CacheConfig содержит конфигурацию для кеша.
type CacheConfig struct {
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// TTL записи; 0 означает значение по умолчанию
	TTL       time.Duration
	KeyPrefix string
}
