// Package ristretto provides the in-process L1 cache for repository file
// content served by the file-content endpoint.
package ristretto

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// contentTTL bounds how long cached file bytes stay valid.
const contentTTL = time.Hour

// ContentCache caches raw file bytes keyed by absolute path.
type ContentCache struct {
	c *ristretto.Cache[string, []byte]
}

// NewContentCache creates a cache bounded by maxSizeMB of value bytes.
func NewContentCache(maxSizeMB int64) (*ContentCache, error) {
	maxCost := maxSizeMB << 20
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCost / 1024 * 10, // ~10x expected 1KiB-average entries
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &ContentCache{c: c}, nil
}

// Get returns the cached bytes for key, if present.
func (c *ContentCache) Get(key string) ([]byte, bool) {
	return c.c.Get(key)
}

// Set stores value under key, costed by its length.
func (c *ContentCache) Set(key string, value []byte) {
	c.c.SetWithTTL(key, value, int64(len(value)), contentTTL)
}

// Close releases cache resources.
func (c *ContentCache) Close() {
	c.c.Close()
}
