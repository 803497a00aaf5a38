package client

import (
	"sync"
	"time"
)

type cacheEntry struct {
	crop      Crop
	expiresAt time.Time
}

// cropCache holds crops by id for a fixed TTL. Expired entries are swept on
// write.
type cropCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func newCropCache(ttl time.Duration) *cropCache {
	return &cropCache{entries: make(map[string]cacheEntry), ttl: ttl, now: time.Now}
}

func (cc *cropCache) get(cropID string) (*Crop, bool) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	e, ok := cc.entries[cropID]
	if !ok || cc.now().After(e.expiresAt) {
		return nil, false
	}
	crop := e.crop
	return &crop, true
}

func (cc *cropCache) set(cropID string, crop *Crop) {
	if cropID == "" {
		return
	}
	cc.mu.Lock()
	defer cc.mu.Unlock()
	now := cc.now()
	for id, e := range cc.entries {
		if now.After(e.expiresAt) {
			delete(cc.entries, id)
		}
	}
	cc.entries[cropID] = cacheEntry{crop: *crop, expiresAt: now.Add(cc.ttl)}
}
