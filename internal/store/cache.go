package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	apperrors "github.com/tunecache/tunecache-go/internal/errors"
)

// CachedItemRecord describes one locally-downloaded media item for one user.
// A record exists if and only if a corresponding audio blob exists.
type CachedItemRecord struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Title          string    `json:"title"`
	Attribution    string    `json:"attribution"`
	CollectionName string    `json:"collection_name,omitempty"`
	DurationLabel  string    `json:"duration_label"`
	ArtworkLocator string    `json:"artwork_locator,omitempty"`
	ByteSize       int64     `json:"byte_size"`
	DownloadedAt   time.Time `json:"downloaded_at"`
}

// CacheStats holds the aggregate counters recomputed after every mutation
type CacheStats struct {
	Count      int   `json:"count"`
	TotalBytes int64 `json:"total_bytes"`
}

// CacheStore manages cached item records and their payloads in the database.
// It is the only way the rest of the system touches the storage engine.
type CacheStore struct {
	db *sql.DB
}

// NewCacheStore creates a new CacheStore
func NewCacheStore(db *sql.DB) *CacheStore {
	return &CacheStore{db: db}
}

// Put commits the metadata record, the audio payload and the optional image
// payload as a single transaction. No partial state is observable afterward:
// either all three writes are durable or none are.
func (cs *CacheStore) Put(record *CachedItemRecord, audio []byte, image []byte) error {
	if record == nil || record.ID == "" || record.OwnerID == "" {
		return apperrors.NewValidationError("record must carry an id and an owner")
	}
	if len(audio) == 0 {
		return apperrors.NewValidationError("audio payload cannot be empty")
	}

	tx, err := cs.db.Begin()
	if err != nil {
		return apperrors.NewStorageError("failed to begin write transaction", err)
	}
	defer tx.Rollback()

	if record.DownloadedAt.IsZero() {
		record.DownloadedAt = time.Now()
	}

	_, err = tx.Exec(`
		INSERT INTO cached_items (
			id, owner_id, title, attribution, collection_name,
			duration_label, artwork_locator, byte_size, downloaded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.OwnerID,
		record.Title,
		record.Attribution,
		nullable(record.CollectionName),
		record.DurationLabel,
		nullable(record.ArtworkLocator),
		record.ByteSize,
		record.DownloadedAt,
	)
	if err != nil {
		// A primary-key conflict means the item is already cached for this
		// owner; reporting it as a storage fault would misdirect the user.
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return apperrors.NewAlreadyCachedError(record.ID)
		}
		return apperrors.NewStorageError("failed to write cached item record", err)
	}

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO audio_blobs (id, payload) VALUES (?, ?)",
		record.ID, audio,
	); err != nil {
		return apperrors.NewStorageError("failed to write audio payload", err)
	}

	if len(image) > 0 {
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO image_blobs (id, payload) VALUES (?, ?)",
			record.ID, image,
		); err != nil {
			return apperrors.NewStorageError("failed to write image payload", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStorageError("failed to commit cached item", err)
	}

	return nil
}

// GetAllForOwner returns all cached records for a user in insertion order.
// The order carries no meaning beyond stable iteration.
func (cs *CacheStore) GetAllForOwner(ownerID string) ([]*CachedItemRecord, error) {
	rows, err := cs.db.Query(`
		SELECT id, owner_id, title, attribution, collection_name,
		       duration_label, artwork_locator, byte_size, downloaded_at
		FROM cached_items
		WHERE owner_id = ?
		ORDER BY downloaded_at, id
	`, ownerID)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list cached items", err)
	}
	defer rows.Close()

	var records []*CachedItemRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, apperrors.NewStorageError("failed to scan cached item", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to iterate cached items", err)
	}

	return records, nil
}

// Get returns the record for (id, ownerID), or a typed not found error
func (cs *CacheStore) Get(id, ownerID string) (*CachedItemRecord, error) {
	row := cs.db.QueryRow(`
		SELECT id, owner_id, title, attribution, collection_name,
		       duration_label, artwork_locator, byte_size, downloaded_at
		FROM cached_items
		WHERE id = ? AND owner_id = ?
	`, id, ownerID)

	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no cached item %s", id))
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read cached item", err)
	}
	return record, nil
}

// Has reports whether an item is cached for a user
func (cs *CacheStore) Has(id, ownerID string) (bool, error) {
	var one int
	err := cs.db.QueryRow(
		"SELECT 1 FROM cached_items WHERE id = ? AND owner_id = ?",
		id, ownerID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewStorageError("failed to check cached item", err)
	}
	return true, nil
}

// GetAudio returns the audio payload for an item, or a typed not found error
func (cs *CacheStore) GetAudio(id string) ([]byte, error) {
	return cs.getBlob("audio_blobs", id)
}

// GetImage returns the artwork payload for an item, or a typed not found
// error. Artwork is optional: absence is normal even when the record carries
// an artwork locator.
func (cs *CacheStore) GetImage(id string) ([]byte, error) {
	return cs.getBlob("image_blobs", id)
}

func (cs *CacheStore) getBlob(table, id string) ([]byte, error) {
	var payload []byte
	err := cs.db.QueryRow(
		fmt.Sprintf("SELECT payload FROM %s WHERE id = ?", table),
		id,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no payload for %s", id))
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read payload", err)
	}
	return payload, nil
}

// Delete removes the record and both blobs in one transaction. Deleting an
// id that is not cached is a no-op, not an error.
func (cs *CacheStore) Delete(id string) error {
	tx, err := cs.db.Begin()
	if err != nil {
		return apperrors.NewStorageError("failed to begin delete transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM cached_items WHERE id = ?", id); err != nil {
		return apperrors.NewStorageError("failed to delete cached item record", err)
	}
	if _, err := tx.Exec("DELETE FROM audio_blobs WHERE id = ?", id); err != nil {
		return apperrors.NewStorageError("failed to delete audio payload", err)
	}
	if _, err := tx.Exec("DELETE FROM image_blobs WHERE id = ?", id); err != nil {
		return apperrors.NewStorageError("failed to delete image payload", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStorageError("failed to commit delete", err)
	}

	return nil
}

// Stats aggregates the item count and total byte size for a user
func (cs *CacheStore) Stats(ownerID string) (*CacheStats, error) {
	stats := &CacheStats{}
	err := cs.db.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(byte_size), 0) FROM cached_items WHERE owner_id = ?",
		ownerID,
	).Scan(&stats.Count, &stats.TotalBytes)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to aggregate cache stats", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*CachedItemRecord, error) {
	var record CachedItemRecord
	var collection, artwork sql.NullString
	err := row.Scan(
		&record.ID,
		&record.OwnerID,
		&record.Title,
		&record.Attribution,
		&collection,
		&record.DurationLabel,
		&artwork,
		&record.ByteSize,
		&record.DownloadedAt,
	)
	if err != nil {
		return nil, err
	}
	record.CollectionName = collection.String
	record.ArtworkLocator = artwork.String
	return &record, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
