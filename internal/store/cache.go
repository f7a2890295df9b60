package store

import (
	lru "github.com/hashicorp/golang-lru"
)

// handleCache caches LDBHandle lookups by name so repeated GetLDB calls
// don't round-trip the catalog (spec §4.3: "results are cached by
// name"). Eviction only drops the cached handle; GetLDB re-validates
// against the catalog on a miss, so a stale eviction is never
// observable as incorrect behavior.
type handleCache struct {
	cache *lru.Cache
}

func newHandleCache(size int) (*handleCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &handleCache{cache: c}, nil
}

func (h *handleCache) get(name string) (*LDBHandle, bool) {
	v, ok := h.cache.Get(name)
	if !ok {
		return nil, false
	}
	return v.(*LDBHandle), true
}

func (h *handleCache) put(handle *LDBHandle) {
	h.cache.Add(handle.Name, handle)
}

func (h *handleCache) remove(name string) {
	h.cache.Remove(name)
}
