// Package cache stores minimized outputs keyed by source content and run
// options, so re-optimizing an unchanged file is a read instead of a parse.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// Cache provides file-based caching for optimization results.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
}

// Entry represents one cached optimization result.
type Entry struct {
	Hash      string    `json:"hash"`    // BLAKE3 of the input source
	Options   string    `json:"options"` // fingerprint of the run options
	Timestamp time.Time `json:"timestamp"`
	Output    []byte    `json:"output"`
}

// New creates a new cache instance.
func New(dir string, ttlHours int, enabled bool) (*Cache, error) {
	if !enabled {
		return &Cache{enabled: false}, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	return &Cache{
		dir:     dir,
		ttl:     time.Duration(ttlHours) * time.Hour,
		enabled: true,
	}, nil
}

// HashBytes computes a BLAKE3 hash of bytes and returns it as a hex string.
func HashBytes(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// OptionsKey fingerprints the run options that affect the output. Any
// change to entry points, defines or allowlists must miss the cache.
func OptionsKey(parts ...string) string {
	h := xxhash.New()
	for _, p := range parts {
		h.WriteString(p)
		h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// Get retrieves a cached output when the source hash and options match and
// the entry has not expired.
func (c *Cache) Get(path, hash, options string) ([]byte, bool) {
	if !c.enabled {
		return nil, false
	}

	data, err := os.ReadFile(c.keyPath(path))
	if err != nil {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}

	if entry.Hash != hash || entry.Options != options {
		return nil, false
	}

	if time.Since(entry.Timestamp) > c.ttl {
		os.Remove(c.keyPath(path))
		return nil, false
	}

	return entry.Output, true
}

// Set stores an optimization result.
func (c *Cache) Set(path, hash, options string, output []byte) error {
	if !c.enabled {
		return nil
	}

	entry := Entry{
		Hash:      hash,
		Options:   options,
		Timestamp: time.Now(),
		Output:    output,
	}

	entryData, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return os.WriteFile(c.keyPath(path), entryData, 0600)
}

// Invalidate removes the entry for one input path.
func (c *Cache) Invalidate(path string) error {
	if !c.enabled {
		return nil
	}
	if err := os.Remove(c.keyPath(path)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Clear removes all cache entries.
func (c *Cache) Clear() error {
	if !c.enabled {
		return nil
	}
	if err := os.RemoveAll(c.dir); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0755)
}

// keyPath converts an input path to a cache file path.
func (c *Cache) keyPath(path string) string {
	hash := blake3.Sum256([]byte(path))
	return filepath.Join(c.dir, hex.EncodeToString(hash[:])+".json")
}

// Stats returns cache statistics.
type Stats struct {
	Entries   int           `json:"entries"`
	TotalSize int64         `json:"total_size"`
	OldestAge time.Duration `json:"oldest_age"`
	NewestAge time.Duration `json:"newest_age"`
}

// GetStats returns statistics about the cache.
func (c *Cache) GetStats() (*Stats, error) {
	if !c.enabled {
		return &Stats{}, nil
	}

	stats := &Stats{}
	var oldest, newest time.Time

	err := filepath.Walk(c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		stats.Entries++
		stats.TotalSize += info.Size()

		modTime := info.ModTime()
		if oldest.IsZero() || modTime.Before(oldest) {
			oldest = modTime
		}
		if newest.IsZero() || modTime.After(newest) {
			newest = modTime
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	if !oldest.IsZero() {
		stats.OldestAge = time.Since(oldest)
	}
	if !newest.IsZero() {
		stats.NewestAge = time.Since(newest)
	}

	return stats, nil
}
