package playback

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "github.com/tunecache/tunecache-go/internal/errors"
	"github.com/tunecache/tunecache-go/internal/store"
)

type stubEngine struct {
	mu          sync.Mutex
	playCalls   int
	toggleCalls int
	currentID   string
	playing     bool
	lastTrack   TrackInfo
	lastQueue   []TrackInfo
}

func (e *stubEngine) Play(_ context.Context, track TrackInfo, queue []TrackInfo) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playCalls++
	e.currentID = track.ID
	e.playing = true
	e.lastTrack = track
	e.lastQueue = queue
	return nil
}

func (e *stubEngine) TogglePause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.toggleCalls++
	e.playing = !e.playing
}

func (e *stubEngine) CurrentItemID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentID
}

func (e *stubEngine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

func newTestStore(t *testing.T) (*store.CacheStore, *sql.DB) {
	t.Helper()
	db, err := store.InitDB(filepath.Join(t.TempDir(), "playback_test.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewCacheStore(db), db
}

func seedItem(t *testing.T, cache *store.CacheStore, id, owner, title string) {
	t.Helper()
	err := cache.Put(&store.CachedItemRecord{
		ID:             id,
		OwnerID:        owner,
		Title:          title,
		Attribution:    "some uploader",
		CollectionName: "some album",
		DurationLabel:  "3:25",
		ByteSize:       int64(len("audio-" + id)),
	}, []byte("audio-"+id), []byte("art-"+id))
	if err != nil {
		t.Fatalf("Put(%s): %v", id, err)
	}
}

func TestPlayCachedHandsOffTrackAndQueue(t *testing.T) {
	cache, _ := newTestStore(t)
	seedItem(t, cache, "m1", "u1", "First")
	seedItem(t, cache, "m2", "u1", "Second")

	engine := &stubEngine{}
	bridge := NewBridge(cache, engine, time.Minute, nil)

	if err := bridge.PlayCached(context.Background(), "m1", "u1"); err != nil {
		t.Fatalf("PlayCached: %v", err)
	}

	if engine.playCalls != 1 {
		t.Fatalf("playCalls = %d, want 1", engine.playCalls)
	}
	if engine.lastTrack.Title != "First" {
		t.Errorf("track title = %q, want First", engine.lastTrack.Title)
	}
	if engine.lastTrack.DurationSeconds != 205 {
		t.Errorf("duration = %d, want 205", engine.lastTrack.DurationSeconds)
	}
	if len(engine.lastQueue) != 2 {
		t.Fatalf("queue length = %d, want 2", len(engine.lastQueue))
	}

	data, err := engine.lastTrack.Audio.Bytes()
	if err != nil {
		t.Fatalf("audio handle: %v", err)
	}
	if string(data) != "audio-m1" {
		t.Errorf("audio = %q, want audio-m1", data)
	}
	if engine.lastTrack.Artwork == nil {
		t.Error("expected artwork handle")
	}
}

func TestPlayCachedSameItemTogglesWithoutNewHandle(t *testing.T) {
	cache, _ := newTestStore(t)
	seedItem(t, cache, "m1", "u1", "First")

	engine := &stubEngine{}
	bridge := NewBridge(cache, engine, time.Minute, nil)

	if err := bridge.PlayCached(context.Background(), "m1", "u1"); err != nil {
		t.Fatalf("first PlayCached: %v", err)
	}
	if err := bridge.PlayCached(context.Background(), "m1", "u1"); err != nil {
		t.Fatalf("second PlayCached: %v", err)
	}

	if engine.playCalls != 1 {
		t.Errorf("playCalls = %d, want 1 (second call should toggle)", engine.playCalls)
	}
	if engine.toggleCalls != 1 {
		t.Errorf("toggleCalls = %d, want 1", engine.toggleCalls)
	}
	if engine.IsPlaying() {
		t.Error("expected paused after toggle")
	}

	if err := bridge.PlayCached(context.Background(), "m1", "u1"); err != nil {
		t.Fatalf("third PlayCached: %v", err)
	}
	if !engine.IsPlaying() {
		t.Error("expected playing after second toggle")
	}
	if engine.playCalls != 1 {
		t.Errorf("playCalls = %d after three requests, want 1", engine.playCalls)
	}
}

func TestPlayCachedMissingItem(t *testing.T) {
	cache, _ := newTestStore(t)
	engine := &stubEngine{}
	bridge := NewBridge(cache, engine, time.Minute, nil)

	err := bridge.PlayCached(context.Background(), "ghost", "u1")
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if engine.playCalls != 0 {
		t.Errorf("playCalls = %d, want 0", engine.playCalls)
	}
}

func TestSwitchingItemsRevokesPreviousAfterGrace(t *testing.T) {
	cache, _ := newTestStore(t)
	seedItem(t, cache, "m1", "u1", "First")
	seedItem(t, cache, "m2", "u1", "Second")

	engine := &stubEngine{}
	bridge := NewBridge(cache, engine, 20*time.Millisecond, nil)

	if err := bridge.PlayCached(context.Background(), "m1", "u1"); err != nil {
		t.Fatalf("PlayCached m1: %v", err)
	}
	first := engine.lastTrack.Audio

	if err := bridge.PlayCached(context.Background(), "m2", "u1"); err != nil {
		t.Fatalf("PlayCached m2: %v", err)
	}

	if first.Revoked() {
		t.Fatal("previous handle revoked before grace elapsed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for !first.Revoked() {
		if time.Now().After(deadline) {
			t.Fatal("previous handle never revoked")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := first.Bytes(); !apperrors.IsNotFound(err) {
		t.Errorf("revoked handle Bytes() error = %v, want not-found", err)
	}
	if engine.lastTrack.Audio.Revoked() {
		t.Error("current handle should stay live")
	}
}

func TestRevocationSuppressedWhenItemReacquired(t *testing.T) {
	cache, _ := newTestStore(t)
	seedItem(t, cache, "m1", "u1", "First")
	seedItem(t, cache, "m2", "u1", "Second")

	engine := &stubEngine{}
	bridge := NewBridge(cache, engine, 30*time.Millisecond, nil)

	if err := bridge.PlayCached(context.Background(), "m1", "u1"); err != nil {
		t.Fatalf("PlayCached m1: %v", err)
	}
	if err := bridge.PlayCached(context.Background(), "m2", "u1"); err != nil {
		t.Fatalf("PlayCached m2: %v", err)
	}
	// Come back to m1 before the grace period fires; the pending revoke
	// must not tear down the handle the engine now holds.
	if err := bridge.PlayCached(context.Background(), "m1", "u1"); err != nil {
		t.Fatalf("PlayCached m1 again: %v", err)
	}
	current := engine.lastTrack.Audio

	time.Sleep(100 * time.Millisecond)

	if current.Revoked() {
		t.Error("re-acquired handle was revoked by stale grace timer")
	}
	if _, err := current.Bytes(); err != nil {
		t.Errorf("current handle unreadable: %v", err)
	}
}

func TestRevokeForReleasesImmediately(t *testing.T) {
	cache, _ := newTestStore(t)
	seedItem(t, cache, "m1", "u1", "First")

	engine := &stubEngine{}
	bridge := NewBridge(cache, engine, time.Minute, nil)

	if err := bridge.PlayCached(context.Background(), "m1", "u1"); err != nil {
		t.Fatalf("PlayCached: %v", err)
	}
	handle := engine.lastTrack.Audio

	bridge.RevokeFor("m1")

	if !handle.Revoked() {
		t.Fatal("handle not revoked after RevokeFor")
	}
	if _, err := handle.Bytes(); !apperrors.IsNotFound(err) {
		t.Errorf("Bytes() after revoke = %v, want not-found", err)
	}
}

func TestParseDurationLabel(t *testing.T) {
	tests := []struct {
		label string
		want  int
	}{
		{"3:25", 205},
		{"0:09", 9},
		{"10:00", 600},
		{"", 0},
		{"bogus", 0},
	}
	for _, tt := range tests {
		if got := parseDurationLabel(tt.label); got != tt.want {
			t.Errorf("parseDurationLabel(%q) = %d, want %d", tt.label, got, tt.want)
		}
	}
}
