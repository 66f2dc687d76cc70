// Package cache implements the content-addressed, hash-verified payload
// cache the apply engine's cache phase reads and writes.
//
// Generalized from quarry/lode's content-addressed dataset storage:
// lode partitions JSONL event records by (source, category, day, run_id,
// event_type) under a pluggable Store; this package keeps the same
// "pluggable backend behind a small interface, content identity as the
// lookup key" shape but flattens it from a partitioned event dataset down
// to the simpler {hash -> verified local file} layout the specification's
// payload cache needs, and adds an LRU front (hashicorp/golang-lru/v2,
// which lode itself does not use) since the cache has a bounded local
// disk budget that a write-once event dataset does not.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pithecene-io/bundleforge/bferr"
)

// Status mirrors the detect-derived cache status for a payload.
type Status int

const (
	StatusNone Status = iota
	StatusPartial
	StatusComplete
)

// Index is the on-disk payload cache rooted at a directory, fronted by an
// in-memory LRU of recently verified entries so repeated detect passes
// over the same bundle don't re-hash unchanged files.
type Index struct {
	root string

	mu    sync.Mutex
	cache *lru.Cache[string, entryMeta]
}

type entryMeta struct {
	size int64
	hash string
}

// NewIndex returns an Index rooted at root, creating it if necessary, with
// an LRU front of capacity entries.
func NewIndex(root string, capacity int) (*Index, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, bferr.Wrap(bferr.IO, "cache.NewIndex", err)
	}
	c, err := lru.New[string, entryMeta](capacity)
	if err != nil {
		return nil, bferr.Wrap(bferr.Unexpected, "cache.NewIndex", err)
	}
	return &Index{root: root, cache: c}, nil
}

// pathFor returns the cache-local path for a payload identified by key.
func (idx *Index) pathFor(key string) string {
	return filepath.Join(idx.root, key)
}

// Status reports whether key is absent, partially written, or complete in
// the cache. It compares only the file size with expectedSize; the hash is
// not rechecked here.
func (idx *Index) Status(key string, expectedSize int64) Status {
	info, err := os.Stat(idx.pathFor(key))
	if err != nil {
		return StatusNone
	}
	if info.Size() < expectedSize {
		return StatusPartial
	}
	return StatusComplete
}

// CachePayload verifies srcPath against expectedHash/expectedSize and, on
// success, moves it into the cache under key. It is the implementation of
// the plan's cache_payload action. Verification failure returns tampered;
// a size mismatch returns corrupt_format, matching the distinction the
// specification draws between "wrong bytes" and "wrong length."
func (idx *Index) CachePayload(key, srcPath string, expectedSize int64, expectedHash string) error {
	info, err := os.Stat(srcPath)
	if err != nil {
		return bferr.Wrap(bferr.IO, "cache.CachePayload", err)
	}
	if info.Size() != expectedSize {
		return bferr.New(bferr.CorruptFormat, "cache.CachePayload").WithBundle(key)
	}

	hash, err := hashFile(srcPath)
	if err != nil {
		return err
	}
	if expectedHash != "" && hash != expectedHash {
		return bferr.New(bferr.Tampered, "cache.CachePayload").WithBundle(key)
	}

	dst := idx.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return bferr.Wrap(bferr.IO, "cache.CachePayload", err)
	}
	if err := moveFile(srcPath, dst); err != nil {
		return err
	}

	idx.mu.Lock()
	idx.cache.Add(key, entryMeta{size: info.Size(), hash: hash})
	idx.mu.Unlock()
	return nil
}

// LayoutPayload copies a cached payload out to destPath (the "layout"
// action: place a cached file at its final install-time location without
// removing it from the cache).
func (idx *Index) LayoutPayload(key, destPath string) error {
	src := idx.pathFor(key)
	if _, err := os.Stat(src); err != nil {
		return bferr.Wrap(bferr.NotFound, "cache.LayoutPayload", err).WithBundle(key)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return bferr.Wrap(bferr.IO, "cache.LayoutPayload", err)
	}
	return copyFile(src, destPath)
}

// RemoveFromCache implements clean_actions' remove_package_from_cache: a
// best-effort delete that never fails the caller's cleanup loop.
func (idx *Index) RemoveFromCache(key string) {
	idx.mu.Lock()
	idx.cache.Remove(key)
	idx.mu.Unlock()
	_ = os.Remove(idx.pathFor(key))
}

// VerifyHash recomputes and compares the cached file's hash, used to
// detect tampering between cache_payload and a later layout.
func (idx *Index) VerifyHash(key, expectedHash string) (bool, error) {
	idx.mu.Lock()
	if meta, ok := idx.cache.Get(key); ok {
		idx.mu.Unlock()
		return meta.hash == expectedHash, nil
	}
	idx.mu.Unlock()

	hash, err := hashFile(idx.pathFor(key))
	if err != nil {
		return false, err
	}
	return hash == expectedHash, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", bferr.Wrap(bferr.IO, "cache.hashFile", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", bferr.Wrap(bferr.IO, "cache.hashFile", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return bferr.Wrap(bferr.IO, "cache.copyFile", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return bferr.Wrap(bferr.IO, "cache.copyFile", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return bferr.Wrap(bferr.IO, "cache.copyFile", err)
	}
	return nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Cross-device rename: fall back to copy-then-remove.
	if err := copyFile(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return bferr.Wrap(bferr.IO, "cache.moveFile", err)
	}
	return nil
}
