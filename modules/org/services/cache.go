package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HierarchyCache stores assembled hierarchy views keyed by tenant and
// revision. A view for an older revision is never returned for a newer one.
// Cached views are shared and must not be modified.
type HierarchyCache interface {
	Name() string
	Get(ctx context.Context, tenantID uuid.UUID, revision int64) (*HierarchyView, bool)
	Set(ctx context.Context, view *HierarchyView)
	InvalidateTenant(ctx context.Context, tenantID uuid.UUID)
}

type cacheEntry struct {
	view      *HierarchyView
	expiresAt time.Time
}

type MemoryCache struct {
	mu          sync.RWMutex
	ttl         time.Duration
	now         func() time.Time
	entries     map[string]cacheEntry
	tenantIndex map[uuid.UUID]map[string]struct{}
}

// NewMemoryCache returns a process-local cache. ttl <= 0 disables expiry.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:         ttl,
		now:         time.Now,
		entries:     make(map[string]cacheEntry),
		tenantIndex: make(map[uuid.UUID]map[string]struct{}),
	}
}

func (c *MemoryCache) Name() string { return "memory" }

func memoryKey(tenantID uuid.UUID, revision int64) string {
	return fmt.Sprintf("%s:%d", tenantID, revision)
}

func (c *MemoryCache) Get(_ context.Context, tenantID uuid.UUID, revision int64) (*HierarchyView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[memoryKey(tenantID, revision)]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.view, true
}

func (c *MemoryCache) Set(_ context.Context, view *HierarchyView) {
	if view == nil || view.TenantID == uuid.Nil {
		return
	}
	key := memoryKey(view.TenantID, view.Revision)
	e := cacheEntry{view: view}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Only the latest revision of a tenant is worth keeping.
	for old := range c.tenantIndex[view.TenantID] {
		delete(c.entries, old)
	}
	c.entries[key] = e
	c.tenantIndex[view.TenantID] = map[string]struct{}{key: {}}
}

func (c *MemoryCache) InvalidateTenant(_ context.Context, tenantID uuid.UUID) {
	if tenantID == uuid.Nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.tenantIndex[tenantID] {
		delete(c.entries, key)
	}
	delete(c.tenantIndex, tenantID)
}
