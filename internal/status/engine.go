// Package status computes whether a script is applied to a site and its
// pages.  Lookups go through a cache with a freshness window: fresh entries
// are served as is, stale ones are served while a background refresh runs,
// and unknown ones are fetched in paced batches.
package status

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/designer-bridge/internal/logging"
	"github.com/iliyamo/designer-bridge/internal/model"
)

// ErrMissingScript is returned when no script id is given.
var ErrMissingScript = errors.New("script id is required")

// Fetcher looks up the status of one script on one batch of targets.
// Targets absent from the returned map could not be determined.  An error
// means the whole batch failed.
type Fetcher interface {
	FetchStatus(ctx context.Context, scriptID string, targets []model.Target) (map[string]model.StatusEntry, error)
}

// Scoped is implemented by fetchers whose answers depend on who asks.
// Cached statuses are only shared between fetchers of the same scope.
type Scoped interface {
	CacheScope() string
}

// Options tunes an Engine.
type Options struct {
	FreshFor   time.Duration // how long an entry is served without refresh
	BatchSize  int           // pages per remote lookup
	BatchPause time.Duration // pause between consecutive lookups
}

// DefaultOptions returns the production tuning.
func DefaultOptions() Options {
	return Options{FreshFor: time.Minute, BatchSize: 10, BatchPause: 100 * time.Millisecond}
}

// Engine answers status queries.  It is safe for concurrent use and is
// meant to be shared by every request of a process.
type Engine struct {
	cache Cache
	opts  Options
	log   *zap.Logger
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	refreshing map[string]struct{}
	// epochs counts invalidations per target.  A lookup that overlaps an
	// invalidation of its target does not write its result to the cache.
	epochs map[string]uint64
}

// NewEngine creates an Engine over cache.  A nil cache disables caching.
func NewEngine(cache Cache, opts Options, logger *zap.Logger) *Engine {
	def := DefaultOptions()
	if opts.FreshFor <= 0 {
		opts.FreshFor = def.FreshFor
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = def.BatchSize
	}
	if opts.BatchPause < 0 {
		opts.BatchPause = 0
	}
	if cache == nil {
		cache = nopCache{}
	}
	return &Engine{
		cache:      cache,
		opts:       opts,
		log:        logging.OrNop(logger).With(logging.Component("status")),
		now:        time.Now,
		sleep:      sleepCtx,
		refreshing: make(map[string]struct{}),
		epochs:     make(map[string]uint64),
	}
}

// GetStatus returns the status of scriptID on siteID and every page in
// pageIDs.  The result has exactly one entry per requested target; targets
// whose status could not be determined are reported as not applied.
// siteID may be empty for a page-only query.
func (e *Engine) GetStatus(ctx context.Context, f Fetcher, scriptID, siteID string, pageIDs []string) (map[string]model.StatusEntry, error) {
	if scriptID == "" {
		return nil, ErrMissingScript
	}
	key := cacheKey(f, scriptID)
	targets := requestedTargets(siteID, pageIDs)
	result := make(map[string]model.StatusEntry, len(targets))

	now := e.now()
	var need, stale []model.Target
	for _, t := range targets {
		entry, ok := e.cache.Get(ctx, key, t.ID)
		switch {
		case !ok:
			need = append(need, t)
		case now.Sub(entry.FetchedAt) > e.opts.FreshFor:
			result[t.ID] = entry.Status
			stale = append(stale, t)
		default:
			result[t.ID] = entry.Status
		}
	}

	if len(need) > 0 {
		fetched, err := e.fetch(ctx, f, scriptID, need)
		if err != nil {
			return nil, err
		}
		for id, st := range fetched {
			result[id] = st
		}
	}
	if len(stale) > 0 {
		e.revalidate(ctx, f, scriptID, stale)
	}

	for _, t := range targets {
		if _, ok := result[t.ID]; !ok {
			result[t.ID] = model.NotApplied
		}
	}
	return result, nil
}

// Refresh drops the cached entries of the requested targets and fetches
// them again.
func (e *Engine) Refresh(ctx context.Context, f Fetcher, scriptID, siteID string, pageIDs []string) (map[string]model.StatusEntry, error) {
	key := cacheKey(f, scriptID)
	for _, t := range requestedTargets(siteID, pageIDs) {
		e.bump(t.ID)
		e.cache.Delete(ctx, key, t.ID)
	}
	return e.GetStatus(ctx, f, scriptID, siteID, pageIDs)
}

// Invalidate drops the cached status of scriptID on targetID, along with
// any lookup of targetID still in flight.  Statuses are cached per
// credential scope and the scopes are not enumerable, so every entry of
// targetID goes.
func (e *Engine) Invalidate(ctx context.Context, scriptID, targetID string) {
	e.bump(targetID)
	e.cache.DeleteTarget(ctx, targetID)
	e.log.Debug("status invalidated", logging.ScriptID(scriptID), logging.TargetID(targetID))
}

// InvalidateTarget drops every cached status of targetID.
func (e *Engine) InvalidateTarget(ctx context.Context, targetID string) {
	e.bump(targetID)
	e.cache.DeleteTarget(ctx, targetID)
}

func (e *Engine) bump(targetID string) {
	e.mu.Lock()
	e.epochs[targetID]++
	e.mu.Unlock()
}

// snapshot returns the current epoch of every target in batch.
func (e *Engine) snapshot(batch []model.Target) []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]uint64, len(batch))
	for i, t := range batch {
		out[i] = e.epochs[t.ID]
	}
	return out
}

// cacheKey is the key scriptID is cached under for f.
func cacheKey(f Fetcher, scriptID string) string {
	if s, ok := f.(Scoped); ok {
		if scope := s.CacheScope(); scope != "" {
			return scope + "/" + scriptID
		}
	}
	return scriptID
}

// fetch looks up targets in batches of at most BatchSize pages, the site
// riding along with the first batch.  Batches run one after another with
// BatchPause between them.  Determined statuses are cached unless their
// target was invalidated while the batch was being read.
func (e *Engine) fetch(ctx context.Context, f Fetcher, scriptID string, targets []model.Target) (map[string]model.StatusEntry, error) {
	key := cacheKey(f, scriptID)
	out := make(map[string]model.StatusEntry, len(targets))
	for i, batch := range batches(targets, e.opts.BatchSize) {
		if i > 0 && e.opts.BatchPause > 0 {
			if err := e.sleep(ctx, e.opts.BatchPause); err != nil {
				return nil, err
			}
		}
		started := e.snapshot(batch)
		got, err := f.FetchStatus(ctx, scriptID, batch)
		if err != nil {
			return nil, err
		}
		fetchedAt := e.now()
		current := e.snapshot(batch)
		for j, t := range batch {
			st, ok := got[t.ID]
			if !ok {
				continue
			}
			if current[j] == started[j] {
				e.cache.Set(ctx, key, t.ID, Entry{Status: st, FetchedAt: fetchedAt})
			}
			out[t.ID] = st
		}
	}
	return out, nil
}

// revalidate refreshes stale entries in the background.  A target already
// being refreshed for scriptID in the same scope is skipped.
func (e *Engine) revalidate(ctx context.Context, f Fetcher, scriptID string, stale []model.Target) {
	prefix := cacheKey(f, scriptID) + "|"
	e.mu.Lock()
	var todo []model.Target
	for _, t := range stale {
		key := prefix + t.ID
		if _, busy := e.refreshing[key]; busy {
			continue
		}
		e.refreshing[key] = struct{}{}
		todo = append(todo, t)
	}
	e.mu.Unlock()
	if len(todo) == 0 {
		return
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			e.mu.Lock()
			for _, t := range todo {
				delete(e.refreshing, prefix+t.ID)
			}
			e.mu.Unlock()
		}()
		if _, err := e.fetch(bg, f, scriptID, todo); err != nil {
			e.log.Warn("background status refresh failed",
				logging.ScriptID(scriptID), zap.Int("targets", len(todo)), zap.Error(err))
		}
	}()
}

// requestedTargets lists the site (if any) followed by the distinct pages.
func requestedTargets(siteID string, pageIDs []string) []model.Target {
	out := make([]model.Target, 0, len(pageIDs)+1)
	seen := make(map[string]struct{}, len(pageIDs)+1)
	if siteID != "" {
		out = append(out, model.SiteTarget(siteID))
		seen[siteID] = struct{}{}
	}
	for _, id := range pageIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, model.PageTarget(id))
	}
	return out
}

// batches splits targets so that each batch holds at most size pages.  The
// site target, if present, joins the first batch on top of its pages.
func batches(targets []model.Target, size int) [][]model.Target {
	var site []model.Target
	var pages []model.Target
	for _, t := range targets {
		switch t.Type {
		case model.TargetSite:
			site = append(site, t)
		case model.TargetPage:
			pages = append(pages, t)
		}
	}

	var out [][]model.Target
	for start := 0; start < len(pages); start += size {
		end := min(start+size, len(pages))
		out = append(out, pages[start:end:end])
	}
	if len(site) > 0 {
		if len(out) == 0 {
			return [][]model.Target{site}
		}
		out[0] = append(site, out[0]...)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
