package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/util"
)

// library is the on-disk shape of the store file.
type library struct {
	Recordings []*RecordingRecord `json:"recordings"`
	Folders    []*FolderRecord    `json:"folders"`
}

// Store is the metadata store for recordings and folders. It is safe for
// concurrent use. Every mutation persists synchronously, so a read after a
// write always reflects it; batch mode coalesces saves for the reconciler.
type Store struct {
	mu       sync.RWMutex
	filePath string

	recordings map[string]*RecordingRecord // by ID
	folders    map[string]*FolderRecord    // by ID

	batching bool
	dirty    bool
}

// Open loads the library file at path, creating an empty store if none exists.
func Open(path string) (*Store, error) {
	s := &Store{
		filePath:   path,
		recordings: make(map[string]*RecordingRecord),
		folders:    make(map[string]*FolderRecord),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, util.WrapError("read library", err)
	}

	var lib library
	if err := json.Unmarshal(data, &lib); err != nil {
		return nil, util.WrapError("parse library", err)
	}

	for _, rec := range lib.Recordings {
		s.recordings[rec.ID] = rec
	}
	for _, f := range lib.Folders {
		s.folders[f.ID] = f
	}

	return s, nil
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}

// --- Recording CRUD ---

// Insert adds a new recording record and persists. The store keeps its own
// copy; later writes through the caller's pointer do not reach it.
func (s *Store) Insert(rec *RecordingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = NewID()
	}
	for _, existing := range s.recordings {
		if existing.FileName == rec.FileName && !existing.Deleted() {
			return fmt.Errorf("%w: %s", ErrDuplicateFileName, rec.FileName)
		}
	}

	cp := *rec
	s.recordings[cp.ID] = &cp
	return s.persistLocked()
}

// Update replaces an existing recording record and persists. As with Insert,
// the store copies the record rather than holding the caller's pointer.
func (s *Store) Update(rec *RecordingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recordings[rec.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, rec.ID)
	}
	cp := *rec
	s.recordings[cp.ID] = &cp
	return s.persistLocked()
}

// Delete removes a recording record outright. The recording pipeline only
// uses this for placeholder records of aborted attempts; user-visible
// deletion goes through SoftDelete and Purge.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recordings[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.recordings, id)
	return s.persistLocked()
}

// Get returns a copy of the record with the given ID.
func (s *Store) Get(id string) (RecordingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.recordings[id]
	if !ok {
		return RecordingRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *rec, nil
}

// All returns copies of every recording record, soft-deleted included,
// ordered by creation time descending.
func (s *Store) All() []RecordingRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectLocked(func(*RecordingRecord) bool { return true })
}

// Active returns copies of all records that are not soft-deleted.
func (s *Store) Active() []RecordingRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectLocked(func(r *RecordingRecord) bool { return !r.Deleted() })
}

// Unmeasured returns active records whose duration has not been established.
func (s *Store) Unmeasured() []RecordingRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectLocked(func(r *RecordingRecord) bool {
		return !r.Deleted() && r.DurationSeconds <= 0
	})
}

// ByFileName returns the non-deleted record tracking the given file name.
func (s *Store) ByFileName(fileName string) (RecordingRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.recordings {
		if rec.FileName == fileName && !rec.Deleted() {
			return *rec, true
		}
	}
	return RecordingRecord{}, false
}

func (s *Store) collectLocked(keep func(*RecordingRecord) bool) []RecordingRecord {
	out := make([]RecordingRecord, 0, len(s.recordings))
	for _, rec := range s.recordings {
		if keep(rec) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// --- User-facing record operations ---

// SoftDelete marks a record deleted without destroying it.
func (s *Store) SoftDelete(id string, now time.Time) error {
	return s.mutate(id, func(rec *RecordingRecord) {
		if rec.DeletedAt == nil {
			rec.DeletedAt = &now
		}
	})
}

// Restore clears the soft-delete marker.
func (s *Store) Restore(id string) error {
	return s.mutate(id, func(rec *RecordingRecord) {
		rec.DeletedAt = nil
	})
}

// Purge permanently destroys a soft-deleted record.
func (s *Store) Purge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recordings[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !rec.Deleted() {
		return ErrNotSoftDeleted
	}
	delete(s.recordings, id)
	return s.persistLocked()
}

// SetFavorite toggles the favorite flag.
func (s *Store) SetFavorite(id string, favorite bool) error {
	return s.mutate(id, func(rec *RecordingRecord) {
		rec.Favorite = favorite
	})
}

// SetFolder moves a record into a folder, or out of any folder when
// folderID is empty.
func (s *Store) SetFolder(id, folderID string) error {
	if folderID != "" {
		s.mu.RLock()
		_, ok := s.folders[folderID]
		s.mu.RUnlock()
		if !ok {
			return fmt.Errorf("%w: folder %s", ErrNotFound, folderID)
		}
	}
	return s.mutate(id, func(rec *RecordingRecord) {
		rec.FolderID = folderID
	})
}

// Rename sets a record's title.
func (s *Store) Rename(id, title string) error {
	return s.mutate(id, func(rec *RecordingRecord) {
		rec.Title = strings.TrimSpace(title)
	})
}

func (s *Store) mutate(id string, fn func(*RecordingRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recordings[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(rec)
	return s.persistLocked()
}

// SetCloudOnly updates the derived cloud flag in memory. The flag is
// recomputed every launch and never persisted, so this does not dirty the
// store or trigger a save.
func (s *Store) SetCloudOnly(id string, cloudOnly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.recordings[id]; ok {
		rec.CloudOnly = cloudOnly
	}
}

// --- Folder CRUD ---

// InsertFolder adds a folder and persists.
func (s *Store) InsertFolder(f *FolderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.ID == "" {
		f.ID = NewID()
	}
	cp := *f
	s.folders[cp.ID] = &cp
	return s.persistLocked()
}

// RenameFolder sets a folder's name.
func (s *Store) RenameFolder(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.folders[id]
	if !ok {
		return fmt.Errorf("%w: folder %s", ErrNotFound, id)
	}
	f.Name = strings.TrimSpace(name)
	return s.persistLocked()
}

// DeleteFolder removes a folder. Records referencing it keep existing with
// the reference cleared in the same persisted batch; there is no cascade.
func (s *Store) DeleteFolder(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.folders[id]; !ok {
		return fmt.Errorf("%w: folder %s", ErrNotFound, id)
	}
	delete(s.folders, id)

	for _, rec := range s.recordings {
		if rec.FolderID == id {
			rec.FolderID = ""
		}
	}
	return s.persistLocked()
}

// Folders returns copies of all folders ordered by sort order, then name.
func (s *Store) Folders() []FolderRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]FolderRecord, 0, len(s.folders))
	for _, f := range s.folders {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// --- Batch mode ---

// BeginBatch suspends per-mutation saves. Used by the reconciler so a full
// pass persists once at the end.
func (s *Store) BeginBatch() {
	s.mu.Lock()
	s.batching = true
	s.mu.Unlock()
}

// CommitBatch persists pending mutations, if any, and resumes per-mutation
// saves. A batch with no mutations writes nothing.
func (s *Store) CommitBatch() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batching = false
	if !s.dirty {
		return nil
	}
	return s.persistLocked()
}

// --- Persistence ---

// persistLocked saves the library. Caller must hold s.mu. In batch mode the
// save is deferred to CommitBatch.
func (s *Store) persistLocked() error {
	if s.batching {
		s.dirty = true
		return nil
	}

	lib := library{
		Recordings: make([]*RecordingRecord, 0, len(s.recordings)),
		Folders:    make([]*FolderRecord, 0, len(s.folders)),
	}
	for _, rec := range s.recordings {
		lib.Recordings = append(lib.Recordings, rec)
	}
	for _, f := range s.folders {
		lib.Folders = append(lib.Folders, f)
	}
	slices.SortFunc(lib.Recordings, func(a, b *RecordingRecord) int {
		return strings.Compare(a.ID, b.ID)
	})
	slices.SortFunc(lib.Folders, func(a, b *FolderRecord) int {
		return strings.Compare(a.ID, b.ID)
	})

	data, err := json.MarshalIndent(lib, "", "  ")
	if err != nil {
		return util.WrapError("marshal library", err)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create library directory", err)
	}

	// Temp file in the same directory so the rename is atomic.
	tmp, err := os.CreateTemp(dir, ".library-*.json.tmp")
	if err != nil {
		return util.WrapError("persist library", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return util.WrapError("persist library", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return util.WrapError("persist library", err)
	}
	if err := os.Rename(tmpName, s.filePath); err != nil {
		_ = os.Remove(tmpName)
		return util.WrapError("persist library", err)
	}

	s.dirty = false
	return nil
}
