// Package cache memoizes rendered PDFs in Redis, keyed by the composed
// document.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"resume-pdf/internal/infra/logging"
)

const (
	keyPrefix = "pdfcache:"
	opTimeout = time.Second
)

// PDFCache stores PDFs for a fixed TTL. Redis errors never fail a request;
// they are logged and treated as a miss.
type PDFCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPDFCache returns a cache. A non-positive ttl falls back to one minute.
func NewPDFCache(rdb *redis.Client, ttl time.Duration) *PDFCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PDFCache{rdb: rdb, ttl: ttl}
}

// Key derives the cache key from the exact document sent to the renderer, so
// a changed template or stylesheet never serves a stale PDF.
func Key(document string) string {
	sum := sha256.Sum256([]byte(document))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached PDF and true on a hit.
func (c *PDFCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logging.Warn("Redis read failed", "key", key, "error", err)
		return nil, false
	}
	return b, true
}

// Set stores pdf under key.
func (c *PDFCache) Set(ctx context.Context, key string, pdf []byte) {
	if c == nil || c.rdb == nil || len(pdf) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.rdb.Set(ctx, key, pdf, c.ttl).Err(); err != nil {
		logging.Warn("Redis write failed", "key", key, "error", err)
	}
}

// Ping reports whether Redis is reachable.
func (c *PDFCache) Ping(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return errors.New("pdf cache disabled")
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}
