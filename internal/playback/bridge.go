// Package playback bridges locally cached audio to the external playback
// engine. The engine owns transport (play, pause, seek, queue traversal);
// this package only materializes revocable in-memory handles for cached
// payloads and hands them off.
package playback

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/tunecache/tunecache-go/internal/errors"
	"github.com/tunecache/tunecache-go/internal/store"
)

// Handle is a short-lived, revocable in-memory reference to a cached payload
type Handle struct {
	id string

	mu      sync.RWMutex
	data    []byte
	revoked bool
}

func newHandle(id string, data []byte) *Handle {
	return &Handle{id: id, data: data}
}

// ID returns the media identifier this handle refers to
func (h *Handle) ID() string { return h.id }

// Bytes returns the payload, or a typed error once the handle is revoked
func (h *Handle) Bytes() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.revoked {
		return nil, apperrors.NewNotFoundError("playback handle has been revoked")
	}
	return h.data, nil
}

// Revoke releases the payload. Revoking twice is harmless.
func (h *Handle) Revoke() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.revoked = true
	h.data = nil
}

// Revoked reports whether the handle has been released
func (h *Handle) Revoked() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.revoked
}

// TrackInfo is the metadata handed to the playback engine alongside a handle
type TrackInfo struct {
	ID              string
	Title           string
	Attribution     string
	Album           string
	DurationSeconds int
	Audio           *Handle
	Artwork         *Handle
}

// Engine is the external playback engine. It owns play/pause/seek and the
// queue; this bridge only hands items off and toggles pause.
type Engine interface {
	Play(ctx context.Context, track TrackInfo, queue []TrackInfo) error
	TogglePause()
	CurrentItemID() string
	IsPlaying() bool
}

// Bridge loads cached payloads and forwards them to the engine
type Bridge struct {
	cache  *store.CacheStore
	engine Engine
	grace  time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	current *Handle
	artwork *Handle
}

// NewBridge creates a playback bridge. grace bounds how long a superseded
// handle stays readable for lingering consumers.
func NewBridge(cache *store.CacheStore, engine Engine, grace time.Duration, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		cache:  cache,
		engine: engine,
		grace:  grace,
		logger: logger,
	}
}

// PlayCached hands a cached item to the playback engine. Requesting the item
// the engine is already holding toggles play/pause instead of materializing
// a second handle.
func (b *Bridge) PlayCached(ctx context.Context, id, ownerID string) error {
	if id == "" {
		return apperrors.NewValidationError("item id is required")
	}

	b.mu.Lock()
	sameItem := b.engine.CurrentItemID() == id && b.current != nil && b.current.ID() == id && !b.current.Revoked()
	b.mu.Unlock()
	if sameItem {
		b.engine.TogglePause()
		return nil
	}

	record, err := b.cache.Get(id, ownerID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewNotFoundError("audio not available locally")
		}
		return err
	}

	audio, err := b.cache.GetAudio(id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewNotFoundError("audio not available locally")
		}
		return err
	}

	audioHandle := newHandle(id, audio)

	var artworkHandle *Handle
	if image, err := b.cache.GetImage(id); err == nil {
		artworkHandle = newHandle(id, image)
	}

	track := TrackInfo{
		ID:              id,
		Title:           record.Title,
		Attribution:     record.Attribution,
		Album:           record.CollectionName,
		DurationSeconds: parseDurationLabel(record.DurationLabel),
		Audio:           audioHandle,
		Artwork:         artworkHandle,
	}

	queue, err := b.buildQueue(ownerID, track)
	if err != nil {
		return err
	}

	if err := b.engine.Play(ctx, track, queue); err != nil {
		audioHandle.Revoke()
		if artworkHandle != nil {
			artworkHandle.Revoke()
		}
		return err
	}

	b.mu.Lock()
	previous := b.current
	previousArt := b.artwork
	b.current = audioHandle
	b.artwork = artworkHandle
	b.mu.Unlock()

	if previous != nil && previous.ID() != id {
		b.scheduleRevoke(previous, previousArt)
	}

	return nil
}

// buildQueue assembles the engine's queue from every cached item. Payloads
// beyond the current track are not materialized; the engine comes back
// through PlayCached when it advances.
func (b *Bridge) buildQueue(ownerID string, current TrackInfo) ([]TrackInfo, error) {
	records, err := b.cache.GetAllForOwner(ownerID)
	if err != nil {
		return nil, err
	}

	queue := make([]TrackInfo, 0, len(records))
	for _, record := range records {
		if record.ID == current.ID {
			queue = append(queue, current)
			continue
		}
		queue = append(queue, TrackInfo{
			ID:              record.ID,
			Title:           record.Title,
			Attribution:     record.Attribution,
			Album:           record.CollectionName,
			DurationSeconds: parseDurationLabel(record.DurationLabel),
		})
	}
	return queue, nil
}

// scheduleRevoke releases a superseded handle after the grace period. The
// revocation is suppressed if the bridge has re-acquired a handle for the
// same id in the meantime, which defends against a revoke-then-reuse race.
func (b *Bridge) scheduleRevoke(audio, artwork *Handle) {
	time.AfterFunc(b.grace, func() {
		b.mu.Lock()
		suppressed := b.current != nil && b.current.ID() == audio.ID()
		b.mu.Unlock()

		if suppressed {
			return
		}
		audio.Revoke()
		if artwork != nil {
			artwork.Revoke()
		}
	})
}

// RevokeFor immediately revokes any live handle for an item. Called when the
// item is deleted from the cache.
func (b *Bridge) RevokeFor(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current != nil && b.current.ID() == id {
		b.current.Revoke()
		b.current = nil
	}
	if b.artwork != nil && b.artwork.ID() == id {
		b.artwork.Revoke()
		b.artwork = nil
	}
}

// parseDurationLabel converts the stored "m:ss" label back to seconds for
// the engine hand-off
func parseDurationLabel(label string) int {
	parts := strings.SplitN(label, ":", 2)
	if len(parts) != 2 {
		return 0
	}
	minutes, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0
	}
	seconds, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0
	}
	return minutes*60 + seconds
}
