package fetcher

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// Cache is a flat content-addressed page cache: one file per URL, named by
// the hex SHA-256 of the URL.
type Cache struct {
	dir string
}

// NewCache creates the cache directory if needed.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFetch, "failed to create cache directory")
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) path(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".html")
}

// Get returns the cached body for url, or ok=false when absent.
func (c *Cache) Get(url string) ([]byte, bool) {
	body, err := os.ReadFile(c.path(url))
	if err != nil {
		return nil, false
	}
	return body, true
}

// Put stores body for url, replacing any prior entry.
func (c *Cache) Put(url string, body []byte) error {
	tmp, err := os.CreateTemp(c.dir, ".cache-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.path(url))
}
