package status

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/designer-bridge/internal/model"
)

// Entry is a cached status together with the instant it was fetched.  A
// missing entry means the status is unknown, which is different from an
// entry whose status is "not applied".
type Entry struct {
	Status    model.StatusEntry `json:"status"`
	FetchedAt time.Time         `json:"fetchedAt"`
}

// Cache stores entries keyed by (scriptID, targetID).  Writes replace the
// whole entry, so concurrent writers resolve as last writer wins.
type Cache interface {
	Get(ctx context.Context, scriptID, targetID string) (Entry, bool)
	Set(ctx context.Context, scriptID, targetID string, e Entry)
	Delete(ctx context.Context, scriptID, targetID string)
	DeleteTarget(ctx context.Context, targetID string)
}

// MemoryCache is a process-local Cache.  Entries older than the retention
// window are treated as absent and pruned on the next write to their
// target.
type MemoryCache struct {
	mu      sync.RWMutex
	targets map[string]map[string]Entry // targetID -> scriptID -> entry
	retain  time.Duration
	now     func() time.Time
}

// NewMemoryCache creates a MemoryCache keeping entries for retain.
func NewMemoryCache(retain time.Duration) *MemoryCache {
	return &MemoryCache{
		targets: make(map[string]map[string]Entry),
		retain:  retain,
		now:     time.Now,
	}
}

func (c *MemoryCache) expired(e Entry, now time.Time) bool {
	return c.retain > 0 && now.Sub(e.FetchedAt) > c.retain
}

// Get returns the entry for (scriptID, targetID) if it is still retained.
func (c *MemoryCache) Get(_ context.Context, scriptID, targetID string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.targets[targetID][scriptID]
	if !ok || c.expired(e, c.now()) {
		return Entry{}, false
	}
	return e, true
}

// Set stores e.
func (c *MemoryCache) Set(_ context.Context, scriptID, targetID string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	scripts, ok := c.targets[targetID]
	if !ok {
		scripts = make(map[string]Entry)
		c.targets[targetID] = scripts
	}
	now := c.now()
	for id, old := range scripts {
		if c.expired(old, now) {
			delete(scripts, id)
		}
	}
	scripts[scriptID] = e
}

// Delete removes one entry.
func (c *MemoryCache) Delete(_ context.Context, scriptID, targetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if scripts, ok := c.targets[targetID]; ok {
		delete(scripts, scriptID)
		if len(scripts) == 0 {
			delete(c.targets, targetID)
		}
	}
}

// DeleteTarget removes every entry of targetID.
func (c *MemoryCache) DeleteTarget(_ context.Context, targetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.targets, targetID)
}

// Clear removes every entry.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targets = make(map[string]map[string]Entry)
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, scripts := range c.targets {
		n += len(scripts)
	}
	return n
}

// Layered keeps a process-local cache in front of an optional shared one.
// Reads that miss locally fall through to the shared layer and warm the
// local one.
type Layered struct {
	local  *MemoryCache
	shared Cache
}

// NewLayered combines local and shared.  shared may be nil.
func NewLayered(local *MemoryCache, shared Cache) *Layered {
	return &Layered{local: local, shared: shared}
}

// Local returns the process-local layer.
func (l *Layered) Local() *MemoryCache { return l.local }

func (l *Layered) Get(ctx context.Context, scriptID, targetID string) (Entry, bool) {
	if e, ok := l.local.Get(ctx, scriptID, targetID); ok {
		return e, true
	}
	if l.shared == nil {
		return Entry{}, false
	}
	e, ok := l.shared.Get(ctx, scriptID, targetID)
	if ok {
		l.local.Set(ctx, scriptID, targetID, e)
	}
	return e, ok
}

func (l *Layered) Set(ctx context.Context, scriptID, targetID string, e Entry) {
	l.local.Set(ctx, scriptID, targetID, e)
	if l.shared != nil {
		l.shared.Set(ctx, scriptID, targetID, e)
	}
}

func (l *Layered) Delete(ctx context.Context, scriptID, targetID string) {
	l.local.Delete(ctx, scriptID, targetID)
	if l.shared != nil {
		l.shared.Delete(ctx, scriptID, targetID)
	}
}

func (l *Layered) DeleteTarget(ctx context.Context, targetID string) {
	l.local.DeleteTarget(ctx, targetID)
	if l.shared != nil {
		l.shared.DeleteTarget(ctx, targetID)
	}
}

// nopCache never stores anything.
type nopCache struct{}

func (nopCache) Get(context.Context, string, string) (Entry, bool) { return Entry{}, false }
func (nopCache) Set(context.Context, string, string, Entry)        {}
func (nopCache) Delete(context.Context, string, string)            {}
func (nopCache) DeleteTarget(context.Context, string)              {}
