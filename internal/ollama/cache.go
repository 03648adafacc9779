// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"sync"
	"time"
)

// ModelLister is the part of Client the cache needs.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// ModelCache holds the installed-model list between requests. It is owned by
// whoever constructs it; pull and delete handlers call Invalidate.
type ModelCache struct {
	lister ModelLister
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	models  []ModelInfo
	fetched time.Time
	valid   bool
}

// NewModelCache creates a cache over lister. A ttl of zero keeps entries
// until Invalidate.
func NewModelCache(lister ModelLister, ttl time.Duration) *ModelCache {
	return &ModelCache{lister: lister, ttl: ttl, now: time.Now}
}

// Get returns the cached list, refreshing it when empty, invalidated or
// older than the TTL.
func (c *ModelCache) Get(ctx context.Context) ([]ModelInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && (c.ttl <= 0 || c.now().Sub(c.fetched) < c.ttl) {
		return cloneModels(c.models), nil
	}
	return c.refreshLocked(ctx)
}

// Refresh fetches the list unconditionally.
func (c *ModelCache) Refresh(ctx context.Context) ([]ModelInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *ModelCache) refreshLocked(ctx context.Context) ([]ModelInfo, error) {
	models, err := c.lister.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	c.models = cloneModels(models)
	c.fetched = c.now()
	c.valid = true
	return cloneModels(models), nil
}

// Invalidate forces the next Get to fetch.
func (c *ModelCache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.models = nil
	c.mu.Unlock()
}

// Lookup reports whether name is installed, returning its info.
func (c *ModelCache) Lookup(ctx context.Context, name string) (ModelInfo, bool, error) {
	models, err := c.Get(ctx)
	if err != nil {
		return ModelInfo{}, false, err
	}
	for _, m := range models {
		if m.Name == name {
			return m, true, nil
		}
	}
	return ModelInfo{}, false, nil
}

func cloneModels(in []ModelInfo) []ModelInfo {
	out := make([]ModelInfo, len(in))
	copy(out, in)
	return out
}
