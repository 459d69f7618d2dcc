package store_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/store"
)

func openTestStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "library.json")
	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st, path
}

func newRecord(fileName string, created time.Time) *store.RecordingRecord {
	return &store.RecordingRecord{
		ID:        store.NewID(),
		Title:     "New Recording",
		CreatedAt: created,
		FileName:  fileName,
	}
}

func TestInsertAndReload(t *testing.T) {
	st, path := openTestStore(t)

	rec := newRecord("memo-2026-08-25-10-00-00.m4a", time.Now().UTC().Truncate(time.Second))
	rec.DurationSeconds = 12.5
	if err := st.Insert(rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// A second store opened on the same file sees the write.
	reloaded, err := store.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reloaded.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get after reload: %v", err)
	}
	if got.FileName != rec.FileName || got.DurationSeconds != 12.5 {
		t.Errorf("reloaded record = %+v, want %+v", got, *rec)
	}
}

func TestInsertRejectsDuplicateFileName(t *testing.T) {
	st, _ := openTestStore(t)

	now := time.Now()
	if err := st.Insert(newRecord("a.m4a", now)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	err := st.Insert(newRecord("a.m4a", now))
	if !errors.Is(err, store.ErrDuplicateFileName) {
		t.Fatalf("duplicate Insert = %v, want ErrDuplicateFileName", err)
	}

	// A soft-deleted record frees its file name.
	recs := st.Active()
	if err := st.SoftDelete(recs[0].ID, now); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if err := st.Insert(newRecord("a.m4a", now)); err != nil {
		t.Errorf("Insert after soft delete = %v, want nil", err)
	}
}

func TestInsertCopiesCallerRecord(t *testing.T) {
	st, _ := openTestStore(t)
	now := time.Now()

	// A caller that reuses one struct for successive records must not be
	// able to rewrite an inserted record through its retained pointer.
	rec := newRecord("a.m4a", now)
	firstID := rec.ID
	if err := st.Insert(rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	rec.ID = store.NewID()
	rec.FileName = "b.m4a"
	rec.Title = "Second"
	if err := st.Insert(rec); err != nil {
		t.Fatalf("Insert after struct reuse: %v", err)
	}

	first, err := st.Get(firstID)
	if err != nil {
		t.Fatalf("Get(%s): %v", firstID, err)
	}
	if first.FileName != "a.m4a" || first.Title != "New Recording" {
		t.Errorf("first record rewritten through caller pointer: %+v", first)
	}
}

func TestUpdateCopiesCallerRecord(t *testing.T) {
	st, _ := openTestStore(t)

	rec := newRecord("a.m4a", time.Now())
	if err := st.Insert(rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	rec.DurationSeconds = 3.5
	if err := st.Update(rec); err != nil {
		t.Fatalf("Update: %v", err)
	}

	rec.DurationSeconds = 99
	got, err := st.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.DurationSeconds != 3.5 {
		t.Errorf("DurationSeconds = %v, want 3.5", got.DurationSeconds)
	}
}

func TestSoftDeleteRestorePurge(t *testing.T) {
	st, _ := openTestStore(t)
	now := time.Now()

	rec := newRecord("a.m4a", now)
	if err := st.Insert(rec); err != nil {
		t.Fatal(err)
	}

	// Purge requires a prior soft delete.
	if err := st.Purge(rec.ID); !errors.Is(err, store.ErrNotSoftDeleted) {
		t.Fatalf("Purge on live record = %v, want ErrNotSoftDeleted", err)
	}

	if err := st.SoftDelete(rec.ID, now); err != nil {
		t.Fatal(err)
	}
	if got := st.Active(); len(got) != 0 {
		t.Errorf("Active() after soft delete has %d records", len(got))
	}
	if got := st.All(); len(got) != 1 {
		t.Errorf("All() after soft delete has %d records, want 1", len(got))
	}

	if err := st.Restore(rec.ID); err != nil {
		t.Fatal(err)
	}
	if got := st.Active(); len(got) != 1 {
		t.Errorf("Active() after restore has %d records, want 1", len(got))
	}

	if err := st.SoftDelete(rec.ID, now); err != nil {
		t.Fatal(err)
	}
	if err := st.Purge(rec.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Get(rec.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after purge = %v, want ErrNotFound", err)
	}
}

func TestDeleteFolderClearsReferences(t *testing.T) {
	st, _ := openTestStore(t)

	folder := &store.FolderRecord{Name: "Interviews"}
	if err := st.InsertFolder(folder); err != nil {
		t.Fatal(err)
	}

	rec := newRecord("a.m4a", time.Now())
	if err := st.Insert(rec); err != nil {
		t.Fatal(err)
	}
	if err := st.SetFolder(rec.ID, folder.ID); err != nil {
		t.Fatal(err)
	}

	// Moving into an unknown folder is rejected.
	if err := st.SetFolder(rec.ID, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SetFolder(missing) = %v, want ErrNotFound", err)
	}

	if err := st.DeleteFolder(folder.ID); err != nil {
		t.Fatal(err)
	}

	got, err := st.Get(rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.FolderID != "" {
		t.Errorf("FolderID = %q after folder deletion, want empty", got.FolderID)
	}
	if folders := st.Folders(); len(folders) != 0 {
		t.Errorf("Folders() has %d entries, want 0", len(folders))
	}
}

func TestFoldersOrderedBySortOrderThenName(t *testing.T) {
	st, _ := openTestStore(t)

	for _, f := range []*store.FolderRecord{
		{Name: "Zeta", SortOrder: 1},
		{Name: "Alpha", SortOrder: 2},
		{Name: "Beta", SortOrder: 1},
	} {
		if err := st.InsertFolder(f); err != nil {
			t.Fatal(err)
		}
	}

	got := st.Folders()
	want := []string{"Beta", "Zeta", "Alpha"}
	for i, name := range want {
		if got[i].Name != name {
			t.Fatalf("Folders()[%d] = %s, want %s", i, got[i].Name, name)
		}
	}
}

func TestOrderingNewestFirst(t *testing.T) {
	st, _ := openTestStore(t)

	base := time.Now()
	for i, name := range []string{"old.m4a", "mid.m4a", "new.m4a"} {
		rec := newRecord(name, base.Add(time.Duration(i)*time.Hour))
		if err := st.Insert(rec); err != nil {
			t.Fatal(err)
		}
	}

	got := st.Active()
	want := []string{"new.m4a", "mid.m4a", "old.m4a"}
	for i, name := range want {
		if got[i].FileName != name {
			t.Fatalf("Active()[%d] = %s, want %s", i, got[i].FileName, name)
		}
	}
}

func TestUnmeasured(t *testing.T) {
	st, _ := openTestStore(t)
	now := time.Now()

	measured := newRecord("a.m4a", now)
	measured.DurationSeconds = 3.2
	unmeasured := newRecord("b.m4a", now)
	for _, rec := range []*store.RecordingRecord{measured, unmeasured} {
		if err := st.Insert(rec); err != nil {
			t.Fatal(err)
		}
	}

	got := st.Unmeasured()
	if len(got) != 1 || got[0].ID != unmeasured.ID {
		t.Errorf("Unmeasured() = %v, want just %s", got, unmeasured.ID)
	}
}

func TestBatchCoalescesSaves(t *testing.T) {
	st, path := openTestStore(t)

	st.BeginBatch()
	if err := st.Insert(newRecord("a.m4a", time.Now())); err != nil {
		t.Fatal(err)
	}

	// Nothing hits the disk until the batch commits.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("library file exists mid-batch: %v", err)
	}

	if err := st.CommitBatch(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("library file missing after commit: %v", err)
	}
}

func TestCleanBatchWritesNothing(t *testing.T) {
	st, path := openTestStore(t)

	if err := st.Insert(newRecord("a.m4a", time.Now())); err != nil {
		t.Fatal(err)
	}
	before, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	st.BeginBatch()
	if err := st.CommitBatch(); err != nil {
		t.Fatal(err)
	}

	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(before.ModTime()) || after.Size() != before.Size() {
		t.Error("clean batch rewrote the library file")
	}
}

func TestSetCloudOnlyDoesNotPersist(t *testing.T) {
	st, path := openTestStore(t)

	rec := newRecord("a.m4a", time.Now())
	if err := st.Insert(rec); err != nil {
		t.Fatal(err)
	}
	st.SetCloudOnly(rec.ID, true)

	got, err := st.Get(rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.CloudOnly {
		t.Error("CloudOnly not visible after SetCloudOnly")
	}

	// The flag is derived state: a reload starts from false.
	reloaded, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err = reloaded.Get(rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CloudOnly {
		t.Error("CloudOnly persisted to disk")
	}
}
