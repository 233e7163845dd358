package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// attributionFallback is the display name used when uploader resolution
// yields nothing usable
const attributionFallback = "unknown"

// uploaderCache caches resolved uploader display names
type uploaderCache struct {
	data map[string]uploaderCacheEntry
	mu   sync.RWMutex
	ttl  time.Duration
}

type uploaderCacheEntry struct {
	name       string
	expiration time.Time
}

func newUploaderCache(ttl time.Duration) *uploaderCache {
	c := &uploaderCache{
		data: make(map[string]uploaderCacheEntry),
		ttl:  ttl,
	}

	go c.cleanup()

	return c
}

func (c *uploaderCache) get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[key]
	if !exists || time.Now().After(entry.expiration) {
		return "", false
	}
	return entry.name, true
}

func (c *uploaderCache) set(key, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = uploaderCacheEntry{
		name:       name,
		expiration: time.Now().Add(c.ttl),
	}
}

func (c *uploaderCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now()
		for key, entry := range c.data {
			if now.After(entry.expiration) {
				delete(c.data, key)
			}
		}
		c.mu.Unlock()
	}
}

// OnlineChecker reports whether remote operations may run
type OnlineChecker interface {
	IsOnline() bool
}

// CacheChecker answers local membership queries for search enrichment
type CacheChecker interface {
	Has(id, ownerID string) (bool, error)
}

// SearchAdapter queries the remote catalog and enriches the hits. Callers
// are expected to debounce keystroke-driven queries (~300ms); the adapter
// itself runs every call it receives.
type SearchAdapter struct {
	client    *Client
	online    OnlineChecker
	cache     CacheChecker
	logger    *zap.Logger
	limit     int
	uploaders *uploaderCache
}

// NewSearchAdapter creates a search adapter with the given result cap
func NewSearchAdapter(client *Client, online OnlineChecker, cache CacheChecker, limit int, logger *zap.Logger) *SearchAdapter {
	if limit <= 0 {
		limit = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchAdapter{
		client:    client,
		online:    online,
		cache:     cache,
		logger:    logger,
		limit:     limit,
		uploaders: newUploaderCache(10 * time.Minute),
	}
}

// Search returns public, approved catalog items matching the query, newest
// first, capped at the configured limit. It fails closed: when connectivity
// is anything but online it returns an empty list without any network I/O.
func (a *SearchAdapter) Search(ctx context.Context, query, ownerID string) ([]*EnrichedRemoteItem, error) {
	if !a.online.IsOnline() {
		return []*EnrichedRemoteItem{}, nil
	}

	items, err := a.client.ListItems(ctx, a.limit*4)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(query))

	var hits []*RemoteCatalogItem
	for _, item := range items {
		if !item.Visible || !item.Approved {
			continue
		}
		if needle != "" && !matches(item, needle) {
			continue
		}
		hits = append(hits, item)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].CreatedAt.After(hits[j].CreatedAt)
	})
	if len(hits) > a.limit {
		hits = hits[:a.limit]
	}

	enriched := make([]*EnrichedRemoteItem, 0, len(hits))
	for _, item := range hits {
		cached := false
		if ownerID != "" {
			has, err := a.cache.Has(item.ID, ownerID)
			if err != nil {
				// A store hiccup must not hide search results
				a.logger.Warn("cache membership check failed",
					zap.String("item_id", item.ID), zap.Error(err))
			} else {
				cached = has
			}
		}

		enriched = append(enriched, &EnrichedRemoteItem{
			RemoteCatalogItem: *item,
			Attribution:       a.ResolveAttribution(ctx, item.UploaderID),
			AlreadyCached:     cached,
		})
	}

	return enriched, nil
}

// ResolveAttribution resolves an uploader reference to a display name. The
// fallback chain is display name, then the email's local part, then a fixed
// placeholder. Failures are non-fatal and never abort a batch.
func (a *SearchAdapter) ResolveAttribution(ctx context.Context, uploaderID string) string {
	if uploaderID == "" {
		return attributionFallback
	}

	if name, ok := a.uploaders.get(uploaderID); ok {
		return name
	}

	uploader, err := a.client.GetUploader(ctx, uploaderID)
	if err != nil {
		a.logger.Debug("uploader resolution failed",
			zap.String("uploader_id", uploaderID), zap.Error(err))
		return attributionFallback
	}

	name := displayName(uploader)
	a.uploaders.set(uploaderID, name)
	return name
}

func displayName(u *Uploader) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if at := strings.Index(u.Email, "@"); at > 0 {
		return u.Email[:at]
	}
	return attributionFallback
}

func matches(item *RemoteCatalogItem, needle string) bool {
	return strings.Contains(strings.ToLower(item.Title), needle) ||
		strings.Contains(strings.ToLower(item.Category), needle)
}
