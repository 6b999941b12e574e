// Package cache memoizes expensive function calls to JSON files on disk.
//
// Entries are content-addressed: the key is a hash over a caller-supplied
// namespace/version string, the function name, and the JSON form of the
// arguments. Entries are never invalidated automatically; bump the version
// string to bust the cache.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mbarkhau/stammtischbot/core/logger"
)

// Cache stores memoized results under a root directory, one subdirectory
// per function name.
type Cache struct {
	root    string
	version string
}

// New creates a Cache rooted at dir. The version string participates in
// every key; changing it invalidates all previous entries.
func New(dir, version string) *Cache {
	return &Cache{root: dir, version: version}
}

// Key computes the stable cache key for a function name and its arguments.
// Arguments must be JSON-serializable; marshalling failures propagate.
func (c *Cache) Key(fn string, args ...any) (string, error) {
	h := sha1.New()
	fmt.Fprintf(h, "%s\x00%s\x00", c.version, fn)
	enc := json.NewEncoder(h)
	for _, arg := range args {
		if err := enc.Encode(arg); err != nil {
			return "", fmt.Errorf("cache key for %s: %w", fn, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (c *Cache) entryPath(fn, key string) string {
	return filepath.Join(c.root, fn, key+".json")
}

// Get loads the raw JSON entry for (fn, args). ok is false on a miss.
func (c *Cache) Get(fn string, args ...any) (raw []byte, ok bool, err error) {
	key, err := c.Key(fn, args...)
	if err != nil {
		return nil, false, err
	}
	raw, err = os.ReadFile(c.entryPath(fn, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache read %s: %w", fn, err)
	}
	return raw, true, nil
}

// Put stores value as the entry for (fn, args). The write goes through a
// temp file and rename so a crash cannot leave a corrupt entry behind.
func (c *Cache) Put(fn string, value any, args ...any) error {
	key, err := c.Key(fn, args...)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", fn, err)
	}
	path := c.entryPath(fn, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cache dir %s: %w", fn, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+key+".tmp")
	if err != nil {
		return fmt.Errorf("cache temp %s: %w", fn, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("cache write %s: %w", fn, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cache close %s: %w", fn, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cache rename %s: %w", fn, err)
	}
	return nil
}

// Memoize wraps fn so results are served from c when present. The wrapped
// function must be deterministic and side-effect free: same (version,
// name, arg) means the same cached result on every subsequent call, across
// process restarts, until the cache directory is cleared or the version
// changes.
//
// A nil/zero result is cached like any other value. Callers that need to
// distinguish "not yet computed" from "computed to nothing" must encode a
// sentinel inside T; cache presence is not observable through this wrapper.
func Memoize[A any, T any](c *Cache, name string, fn func(context.Context, A) (T, error)) func(context.Context, A) (T, error) {
	return func(ctx context.Context, arg A) (T, error) {
		var zero T
		raw, ok, err := c.Get(name, arg)
		if err != nil {
			return zero, err
		}
		if ok {
			var cached T
			if err := json.Unmarshal(raw, &cached); err != nil {
				return zero, fmt.Errorf("cache decode %s: %w", name, err)
			}
			logger.Debug(ctx, "cache", "lookup",
				slog.String("cache", "hit"),
				slog.String("op", name),
			)
			return cached, nil
		}

		result, err := fn(ctx, arg)
		if err != nil {
			// Failures are never cached; the next call retries.
			return zero, err
		}
		if err := c.Put(name, result, arg); err != nil {
			return zero, err
		}
		logger.Debug(ctx, "cache", "lookup",
			slog.String("cache", "miss"),
			slog.String("op", name),
		)
		return result, nil
	}
}
