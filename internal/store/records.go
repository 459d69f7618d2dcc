// Package store persists the voice memo library: recording and folder
// records backed by a single JSON file with atomic writes.
package store

import (
	"errors"
	"time"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when a record or folder does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateFileName is returned when inserting a record whose file
	// name collides with an existing one.
	ErrDuplicateFileName = errors.New("file name already tracked")

	// ErrNotSoftDeleted is returned when purging a record that has not been
	// soft-deleted first.
	ErrNotSoftDeleted = errors.New("record is not soft-deleted")
)

// RecordingRecord is the durable metadata for one memo file.
type RecordingRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`

	// DurationSeconds is authoritative only after the session completed or
	// the reconciler probed the file. Zero means unmeasured.
	DurationSeconds float64 `json:"duration_seconds"`

	// FileName is relative to the recordings directory and unique within it.
	FileName string `json:"file_name"`

	Favorite bool `json:"favorite,omitempty"`

	// FolderID is a weak reference: deleting the folder clears this field
	// rather than cascading.
	FolderID string `json:"folder_id,omitempty"`

	// DeletedAt is the soft-delete marker. Records are never removed by the
	// reconciler; hard deletion happens only via an explicit purge.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// Invalid marks a memo whose finalization failed: the file may exist for
	// diagnostics but its duration is not trustworthy.
	Invalid bool `json:"invalid,omitempty"`

	// CloudOnly is derived at every launch from the filesystem and is never
	// persisted as ground truth.
	CloudOnly bool `json:"-"`
}

// Deleted reports whether the record is soft-deleted.
func (r *RecordingRecord) Deleted() bool {
	return r.DeletedAt != nil
}

// FolderRecord groups memos. Folders have an independent lifecycle and may
// exist with zero recordings.
type FolderRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
}
