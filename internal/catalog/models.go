package catalog

import (
	"fmt"
	"time"
)

// RemoteCatalogItem is one record in the remote catalog. This system only
// ever reads these; visibility and moderation are the catalog's concern.
type RemoteCatalogItem struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Category        string    `json:"category"`
	DurationSeconds int       `json:"duration_seconds"`
	AudioLocator    string    `json:"audio_locator"`
	ArtworkLocator  string    `json:"artwork_locator,omitempty"`
	UploaderID      string    `json:"uploader_id"`
	CreatedAt       time.Time `json:"created_at"`
	Visible         bool      `json:"visible"`
	Approved        bool      `json:"approved"`
}

// Uploader is the catalog's record for an item's creator
type Uploader struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// EnrichedRemoteItem is a search hit decorated for presentation: a resolved
// attribution and whether the item is already in the local cache.
type EnrichedRemoteItem struct {
	RemoteCatalogItem
	Attribution   string `json:"attribution"`
	AlreadyCached bool   `json:"already_cached"`
}

// FormatDuration renders seconds as the precomputed "m:ss" label stored on
// cached item records.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
