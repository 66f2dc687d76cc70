package cache

import (
	"sync"

	"github.com/pithecene-io/bundleforge/bferr"
)

// Catalog tracks attached catalog files: signed manifests that list
// expected {key -> hash} pairs for a set of payloads, used to
// authenticate payload sources beyond a single payload's own declared
// hash/size (original Burn's catalog.cpp, dropped by the distilled
// specification but not excluded by its Non-goals).
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]string // key -> expected hash
}

// NewCatalog returns a Catalog seeded with entries.
func NewCatalog(entries map[string]string) *Catalog {
	c := &Catalog{entries: make(map[string]string, len(entries))}
	for k, v := range entries {
		c.entries[k] = v
	}
	return c
}

// Lookup returns the catalog's expected hash for key.
func (c *Catalog) Lookup(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.entries[key]
	return h, ok
}

// VerifyAgainstCatalog is an additional verification step cache_payload
// may invoke when a package declares a catalog reference: it checks the
// cached file's hash against the catalog's entry for key, independent of
// whatever hash the package's own manifest declared. A key absent from
// the catalog fails with not_found. Only packages that declare a catalog
// reference require this check, and that declaration lives outside this
// package.
func (idx *Index) VerifyAgainstCatalog(key string, cat *Catalog) error {
	expected, ok := cat.Lookup(key)
	if !ok {
		return bferr.New(bferr.NotFound, "cache.VerifyAgainstCatalog").WithBundle(key)
	}
	ok2, err := idx.VerifyHash(key, expected)
	if err != nil {
		return err
	}
	if !ok2 {
		return bferr.New(bferr.Tampered, "cache.VerifyAgainstCatalog").WithBundle(key)
	}
	return nil
}
