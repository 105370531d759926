// Package cache implements a small per-owner response cache on Redis.
// Inventory list endpoints are read far more often than they change, but
// every response is tenant-scoped, so entries are keyed by owner and by an
// owner version counter. Mutations bump the counter instead of scanning for
// keys to delete; superseded entries simply age out via TTL.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maquiflow/fleet-portal/internal/config"
)

// Entry is one cached response.
type Entry struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// ResponseCache is safe for concurrent use. A nil receiver or a missing Redis
// client disables every method, so callers never have to branch.
type ResponseCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// New builds a ResponseCache. Returns nil when caching is disabled or no
// Redis client is available.
func New(cfg config.CacheConfig, rdb *redis.Client) *ResponseCache {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ResponseCache{rdb: rdb, ttl: ttl, prefix: cfg.Prefix}
}

// Enabled reports whether the cache will actually store anything.
func (rc *ResponseCache) Enabled() bool { return rc != nil && rc.rdb != nil }

func (rc *ResponseCache) versionKey(ownerID int64) string {
	return fmt.Sprintf("%s:ver:%d", rc.prefix, ownerID)
}

func (rc *ResponseCache) entryKey(ctx context.Context, ownerID int64, route, query string) string {
	ver, _ := rc.rdb.Get(ctx, rc.versionKey(ownerID)).Int64() // missing key -> version 0
	sum := sha1.Sum([]byte(route + "?" + query))
	return fmt.Sprintf("%s:%d:v%d:%x", rc.prefix, ownerID, ver, sum)
}

// Get returns the cached response for an owner's route+query, if any.
func (rc *ResponseCache) Get(ctx context.Context, ownerID int64, route, query string) (*Entry, bool) {
	if !rc.Enabled() {
		return nil, false
	}
	raw, err := rc.rdb.Get(ctx, rc.entryKey(ctx, ownerID, route, query)).Bytes()
	if err != nil {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	return &e, true
}

// Set stores a response under the owner's current version. Failures are
// silent: a cache that cannot write is just a cache miss later.
func (rc *ResponseCache) Set(ctx context.Context, ownerID int64, route, query string, e Entry) {
	if !rc.Enabled() {
		return
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	_ = rc.rdb.Set(ctx, rc.entryKey(ctx, ownerID, route, query), raw, rc.ttl).Err()
}

// Invalidate bumps the owner's version counter, orphaning every cached entry
// for that owner at once.
func (rc *ResponseCache) Invalidate(ctx context.Context, ownerID int64) {
	if !rc.Enabled() {
		return
	}
	_ = rc.rdb.Incr(ctx, rc.versionKey(ownerID)).Err()
}
