// Package cache keeps generated PDFs in Redis keyed by their inputs.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"pdfgateway/internal/infra/logging"
)

const keyPrefix = "pdfcache:"

// PDFCache is a thin Redis wrapper; a nil *PDFCache is a disabled cache.
type PDFCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns a cache storing entries for ttl (one minute when ttl <= 0).
func New(rdb *redis.Client, ttl time.Duration) *PDFCache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PDFCache{rdb: rdb, ttl: ttl}
}

// Key hashes the route name and every input part.
func Key(route string, parts ...[]byte) string {
	h := sha256.New()
	h.Write([]byte(route))
	for _, p := range parts {
		// Length prefix keeps ("ab","c") and ("a","bc") apart.
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write(p)
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached PDF, or false on a miss or Redis failure.
func (c *PDFCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logging.Warn("Redis read failed", "error", err)
		return nil, false
	}
	logging.Info("PDF cache hit", "key", key)
	return data, true
}

// Set stores a PDF; failures are logged and ignored.
func (c *PDFCache) Set(ctx context.Context, key string, data []byte) {
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logging.Warn("Redis write failed", "error", err)
	}
}
