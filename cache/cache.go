// Package cache keeps served post banner images on disk so repeated image
// requests skip the database. Entries are keyed by the post's URL identifier
// and expire by file age.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

const cacheRoot = "cache"

// GetCachePath returns the cache file path for a post banner.
func GetCachePath(urlID string) string {
	hash := hashKey(urlID)
	return filepath.Join(cacheRoot, "banners", fmt.Sprintf("%s_%s.bin", urlID, hash[:16]))
}

func hashKey(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}

func ensureCacheDir() error {
	return os.MkdirAll(filepath.Join(cacheRoot, "banners"), 0755)
}

// WriteCache stores banner bytes for a post.
func WriteCache(urlID string, data []byte) error {
	if err := ensureCacheDir(); err != nil {
		return err
	}

	return os.WriteFile(GetCachePath(urlID), data, 0644)
}

// ReadCache returns the cached banner for a post if present and fresh.
func ReadCache(urlID string, maxAge time.Duration) ([]byte, bool) {
	cachePath := GetCachePath(urlID)

	info, err := os.Stat(cachePath)
	if err != nil {
		return nil, false
	}

	if time.Since(info.ModTime()) > maxAge {
		return nil, false
	}

	content, err := os.ReadFile(cachePath)
	if err != nil {
		return nil, false
	}

	return content, true
}

// ClearCache removes the cached banner for a post. Used when a post is edited
// or deleted so the next request serves the current image.
func ClearCache(urlID string) error {
	err := os.Remove(GetCachePath(urlID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ClearOldCache removes cached banners older than maxAge.
func ClearOldCache(maxAge time.Duration) error {
	return filepath.Walk(cacheRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}

		if info.IsDir() {
			return nil
		}

		if !strings.HasSuffix(path, ".bin") {
			return nil
		}

		if time.Since(info.ModTime()) > maxAge {
			os.Remove(path)
		}

		return nil
	})
}
