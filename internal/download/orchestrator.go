// Package download owns the cache's write path: it resolves a catalog item,
// fetches its payloads and commits them to the local store as one unit. The
// in-flight ticket set is the sole concurrency-control primitive; it allows
// any number of distinct items to download at once but at most one download
// per (owner, item).
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tunecache/tunecache-go/internal/catalog"
	apperrors "github.com/tunecache/tunecache-go/internal/errors"
	"github.com/tunecache/tunecache-go/internal/monitoring"
	"github.com/tunecache/tunecache-go/internal/network"
	"github.com/tunecache/tunecache-go/internal/store"
)

// TicketStatus is the lifecycle state of an in-flight download
type TicketStatus string

const (
	TicketQueued   TicketStatus = "queued"
	TicketFetching TicketStatus = "fetching"
	TicketError    TicketStatus = "error"
)

// Ticket tracks one in-flight download. Tickets live only in memory and are
// removed from the in-flight set on success or terminal failure.
type Ticket struct {
	ID     string
	Owner  string
	Status TicketStatus

	done   chan struct{}
	record *store.CachedItemRecord
	err    error
}

// Wait blocks until the download finishes or the context is cancelled
func (t *Ticket) Wait(ctx context.Context) (*store.CachedItemRecord, error) {
	select {
	case <-ctx.Done():
		return nil, apperrors.NewNetworkError("wait for download interrupted", ctx.Err())
	case <-t.done:
		return t.record, t.err
	}
}

type inflightKey struct {
	owner string
	id    string
}

// OnlineChecker reports whether remote operations may run
type OnlineChecker interface {
	IsOnline() bool
}

// AttributionResolver resolves an uploader reference to a display name
type AttributionResolver interface {
	ResolveAttribution(ctx context.Context, uploaderID string) string
}

// Options configures an Orchestrator
type Options struct {
	FetchTimeout     time.Duration
	ArtworkMaxPixels int
	Logger           *zap.Logger
	// FetchClient overrides the payload HTTP client, used by tests
	FetchClient *http.Client
}

// Orchestrator coordinates the download lifecycle
type Orchestrator struct {
	catalog     *catalog.Client
	attribution AttributionResolver
	cache       *store.CacheStore
	online      OnlineChecker
	fetchClient *http.Client
	artworkMax  int
	logger      *zap.Logger

	mu         sync.Mutex
	inFlight   map[inflightKey]*Ticket
	onComplete []func(*store.CachedItemRecord)
	onDelete   []func(id string)
}

// NewOrchestrator creates a download orchestrator
func NewOrchestrator(
	catalogClient *catalog.Client,
	attribution AttributionResolver,
	cache *store.CacheStore,
	online OnlineChecker,
	opts Options,
) *Orchestrator {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 2 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	fetchClient := opts.FetchClient
	if fetchClient == nil {
		fetchClient = network.GetDownloadClient(opts.FetchTimeout)
	}

	return &Orchestrator{
		catalog:     catalogClient,
		attribution: attribution,
		cache:       cache,
		online:      online,
		fetchClient: fetchClient,
		artworkMax:  opts.ArtworkMaxPixels,
		logger:      opts.Logger,
		inFlight:    make(map[inflightKey]*Ticket),
	}
}

// OnComplete registers a listener invoked after every committed download.
// Listeners run on the downloading goroutine and must not block.
func (o *Orchestrator) OnComplete(fn func(*store.CachedItemRecord)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onComplete = append(o.onComplete, fn)
}

// OnDelete registers a listener invoked after every removal
func (o *Orchestrator) OnDelete(fn func(id string)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onDelete = append(o.onDelete, fn)
}

// InFlightCount returns the size of the in-flight set
func (o *Orchestrator) InFlightCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inFlight)
}

// Download fetches an item by id and commits it to the local cache
func (o *Orchestrator) Download(ctx context.Context, itemID, ownerID string) (*store.CachedItemRecord, error) {
	return o.download(ctx, itemID, nil, ownerID)
}

// DownloadItem is Download for callers that already hold the full catalog
// record, typically straight from a search result; it saves the single-item
// fetch.
func (o *Orchestrator) DownloadItem(ctx context.Context, item *catalog.RemoteCatalogItem, ownerID string) (*store.CachedItemRecord, error) {
	if item == nil {
		return nil, apperrors.NewValidationError("catalog item cannot be nil")
	}
	return o.download(ctx, item.ID, item, ownerID)
}

func (o *Orchestrator) download(ctx context.Context, itemID string, item *catalog.RemoteCatalogItem, ownerID string) (*store.CachedItemRecord, error) {
	if itemID == "" || ownerID == "" {
		return nil, apperrors.NewValidationError("item id and owner id are required")
	}

	if !o.online.IsOnline() {
		return nil, apperrors.NewOfflineError("cannot download while offline")
	}

	cached, err := o.cache.Has(itemID, ownerID)
	if err != nil {
		return nil, err
	}
	if cached {
		return nil, apperrors.NewAlreadyCachedError(itemID)
	}

	key := inflightKey{owner: ownerID, id: itemID}

	o.mu.Lock()
	if existing, ok := o.inFlight[key]; ok {
		o.mu.Unlock()
		// Dedup: join the pending download instead of starting a second fetch
		return existing.Wait(ctx)
	}
	ticket := &Ticket{
		ID:     itemID,
		Owner:  ownerID,
		Status: TicketQueued,
		done:   make(chan struct{}),
	}
	o.inFlight[key] = ticket
	o.mu.Unlock()

	monitoring.RecordDownloadStart()
	start := time.Now()

	record, err := o.fetchAndCommit(ctx, itemID, item, ownerID, ticket)

	o.mu.Lock()
	delete(o.inFlight, key)
	var listeners []func(*store.CachedItemRecord)
	if err == nil {
		listeners = append(listeners, o.onComplete...)
	}
	o.mu.Unlock()

	if err != nil {
		ticket.Status = TicketError
		ticket.err = err
		monitoring.RecordDownloadFailed(string(apperrors.GetErrorType(err)))
		o.logger.Warn("download failed",
			zap.String("item_id", itemID),
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
	} else {
		ticket.record = record
		monitoring.RecordDownloadComplete(time.Since(start), record.ByteSize)
		o.logger.Info("download committed",
			zap.String("item_id", itemID),
			zap.Int64("byte_size", record.ByteSize),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	close(ticket.done)

	for _, fn := range listeners {
		fn(record)
	}

	return record, err
}

// fetchAndCommit runs the fallible middle of a download. Nothing is written
// until the final Put, so a failure at any step leaves no partial state.
func (o *Orchestrator) fetchAndCommit(ctx context.Context, itemID string, item *catalog.RemoteCatalogItem, ownerID string, ticket *Ticket) (*store.CachedItemRecord, error) {
	// Re-check membership now that this ticket owns the (owner, item) slot: a
	// download that committed between the caller's fast-fail check and ticket
	// registration must not be fetched a second time.
	cached, err := o.cache.Has(itemID, ownerID)
	if err != nil {
		return nil, err
	}
	if cached {
		return nil, apperrors.NewAlreadyCachedError(itemID)
	}

	if item == nil {
		fetched, err := o.catalog.GetItem(ctx, itemID)
		if err != nil {
			return nil, err
		}
		item = fetched
	}

	ticket.Status = TicketFetching

	audio, err := o.fetchPayload(ctx, item.AudioLocator)
	if err != nil {
		return nil, apperrors.NewAudioFetchError(
			fmt.Sprintf("failed to fetch audio for %s", itemID), err)
	}

	var artwork []byte
	if item.ArtworkLocator != "" {
		artwork, err = o.fetchPayload(ctx, item.ArtworkLocator)
		if err != nil {
			// Artwork is optional; log the typed failure and continue
			ferr := apperrors.NewImageFetchError(
				fmt.Sprintf("failed to fetch artwork for %s", itemID), err)
			monitoring.RecordError(string(apperrors.GetErrorType(ferr)))
			o.logger.Warn("artwork fetch failed, continuing without it",
				zap.String("item_id", itemID), zap.Error(ferr))
			artwork = nil
		} else if shrunk, serr := shrinkArtwork(artwork, o.artworkMax); serr != nil {
			o.logger.Debug("artwork downscale skipped",
				zap.String("item_id", itemID), zap.Error(serr))
		} else {
			artwork = shrunk
		}
	}

	record := &store.CachedItemRecord{
		ID:             item.ID,
		OwnerID:        ownerID,
		Title:          item.Title,
		Attribution:    o.attribution.ResolveAttribution(ctx, item.UploaderID),
		CollectionName: item.Category,
		DurationLabel:  catalog.FormatDuration(item.DurationSeconds),
		ArtworkLocator: item.ArtworkLocator,
		ByteSize:       int64(len(audio) + len(artwork)),
		DownloadedAt:   time.Now(),
	}

	if err := o.cache.Put(record, audio, artwork); err != nil {
		return nil, err
	}

	return record, nil
}

// fetchPayload downloads one binary payload from a locator URL
func (o *Orchestrator) fetchPayload(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid locator %q: %w", locator, err)
	}

	resp, err := o.fetchClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("locator returned status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("locator returned an empty payload")
	}

	return payload, nil
}

// Remove deletes an item from the local cache. Removal is idempotent; the
// delete listeners (handle revocation, stats refresh) run even when the item
// was already gone.
func (o *Orchestrator) Remove(ctx context.Context, itemID string) error {
	if itemID == "" {
		return apperrors.NewValidationError("item id is required")
	}

	if err := o.cache.Delete(itemID); err != nil {
		return err
	}

	o.mu.Lock()
	listeners := append([]func(id string){}, o.onDelete...)
	o.mu.Unlock()

	for _, fn := range listeners {
		fn(itemID)
	}

	return nil
}
