// Package caching keeps remote documents on disk for a fixed TTL.
package caching

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dtnitsch/content-gate/pkg/storage"
)

type Cache struct {
	path string
	ttl  time.Duration
	fs   storage.Storage
	now  func() time.Time
}

// NewCache creates the cache directory if it doesn't exist.
func NewCache(path string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{path: path, ttl: ttl, now: time.Now}, nil
}

// key hashes the URL into a file name.
func (c *Cache) key(url string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(url)))
}

// Get returns the cached bytes for url if present and younger than the TTL.
func (c *Cache) Get(url string) ([]byte, bool) {
	p := filepath.Join(c.path, c.key(url))

	st, err := c.fs.GetFileStats(p)
	if err != nil {
		return nil, false
	}
	if c.now().Sub(st.ModTime) > c.ttl {
		return nil, false
	}

	data, err := c.fs.ReadFile(p)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *Cache) Set(url string, data []byte) error {
	if err := c.fs.SaveFile(filepath.Join(c.path, c.key(url)), data); err != nil {
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	return nil
}
