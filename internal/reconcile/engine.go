// Package reconcile recomputes the cache's aggregate counters from the local
// store, the single source of truth. It runs after every mutation and once
// after each confirmed reconnection; it never mutates records itself.
package reconcile

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tunecache/tunecache-go/internal/monitoring"
	"github.com/tunecache/tunecache-go/internal/store"
)

// Engine aggregates cache statistics per owner
type Engine struct {
	cache  *store.CacheStore
	logger *zap.Logger

	mu   sync.RWMutex
	last map[string]store.CacheStats
}

// NewEngine creates a reconciliation engine
func NewEngine(cache *store.CacheStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cache:  cache,
		logger: logger,
		last:   make(map[string]store.CacheStats),
	}
}

// Recompute re-reads the aggregate counters for an owner. When the store is
// unavailable it returns the last known snapshot instead of failing; stats
// are presentation data and must not break callers on a store hiccup.
func (e *Engine) Recompute(ownerID string) store.CacheStats {
	stats, err := e.cache.Stats(ownerID)
	if err != nil {
		e.logger.Warn("stats recomputation failed, serving last known snapshot",
			zap.String("owner_id", ownerID), zap.Error(err))
		return e.Snapshot(ownerID)
	}

	e.mu.Lock()
	e.last[ownerID] = *stats
	e.mu.Unlock()

	monitoring.UpdateCacheStats(stats.Count, stats.TotalBytes)

	return *stats
}

// Snapshot returns the last known counters for an owner without touching the
// store. Unknown owners get zeros.
func (e *Engine) Snapshot(ownerID string) store.CacheStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last[ownerID]
}
