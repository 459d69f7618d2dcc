package reconcile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/reconcile"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/store"
)

// fixture is a recordings directory, a store, and a reconciler over them
// with a canned prober.
type fixture struct {
	dir   string
	store *store.Store
	rec   *reconcile.Reconciler

	probed    map[string]time.Duration
	probeErrs map[string]error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "library.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	f := &fixture{
		dir:       dir,
		store:     st,
		probed:    make(map[string]time.Duration),
		probeErrs: make(map[string]error),
	}

	probe := func(ctx context.Context, path string) (time.Duration, error) {
		if err, ok := f.probeErrs[filepath.Base(path)]; ok {
			return 0, err
		}
		if d, ok := f.probed[filepath.Base(path)]; ok {
			return d, nil
		}
		return 30 * time.Second, nil
	}

	f.rec = reconcile.New(st, dir, probe, &reconcile.PlaceholderChecker{
		Suffix:        ".icloud",
		StubThreshold: 64,
	})
	return f
}

// writeMemo creates a full-size (non-stub) memo file.
func (f *fixture) writeMemo(t *testing.T, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(f.dir, name), make([]byte, 4096), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) track(t *testing.T, name string, duration float64) store.RecordingRecord {
	t.Helper()
	rec := &store.RecordingRecord{
		ID:              store.NewID(),
		Title:           "New Recording",
		CreatedAt:       time.Now(),
		FileName:        name,
		DurationSeconds: duration,
	}
	if err := f.store.Insert(rec); err != nil {
		t.Fatal(err)
	}
	return *rec
}

func TestAdoptsUntrackedFiles(t *testing.T) {
	f := newFixture(t)
	f.writeMemo(t, "found-on-disk.m4a")
	f.probed["found-on-disk.m4a"] = 42 * time.Second

	report, err := f.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Adopted != 1 {
		t.Fatalf("Adopted = %d, want 1", report.Adopted)
	}

	rec, ok := f.store.ByFileName("found-on-disk.m4a")
	if !ok {
		t.Fatal("adopted file has no record")
	}
	if rec.Title != "found-on-disk" {
		t.Errorf("adopted title = %q, want %q", rec.Title, "found-on-disk")
	}
	if rec.DurationSeconds != 42 {
		t.Errorf("adopted duration = %v, want 42", rec.DurationSeconds)
	}
}

func TestSkipsNonAudioFiles(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"library.json", "notes.txt", "cover.png"} {
		if err := os.WriteFile(filepath.Join(f.dir, name), make([]byte, 4096), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	report, err := f.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Scanned != 0 || report.Adopted != 0 {
		t.Errorf("report = %+v, want nothing scanned or adopted", report)
	}
}

func TestMissingFileTombstonesRecord(t *testing.T) {
	f := newFixture(t)
	tracked := f.track(t, "vanished.m4a", 10)

	report, err := f.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.SoftDeleted != 1 {
		t.Fatalf("SoftDeleted = %d, want 1", report.SoftDeleted)
	}

	// Tombstoned, never destroyed: the record survives for recovery.
	all := f.store.All()
	if len(all) != 1 {
		t.Fatalf("All() has %d records, want 1", len(all))
	}
	if all[0].ID != tracked.ID || !all[0].Deleted() {
		t.Errorf("record %+v, want soft-deleted %s", all[0], tracked.ID)
	}
}

func TestPlaceholderKeepsRecordCloudOnly(t *testing.T) {
	f := newFixture(t)
	tracked := f.track(t, "synced-away.m4a", 10)
	sidecar := filepath.Join(f.dir, ".synced-away.m4a.icloud")
	if err := os.WriteFile(sidecar, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := f.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.SoftDeleted != 0 {
		t.Errorf("SoftDeleted = %d, want 0 for cloud placeholder", report.SoftDeleted)
	}
	if report.CloudOnly != 1 {
		t.Errorf("CloudOnly = %d, want 1", report.CloudOnly)
	}

	rec, err := f.store.Get(tracked.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.CloudOnly {
		t.Error("record not flagged cloud-only")
	}
	if rec.Deleted() {
		t.Error("cloud-only record was tombstoned")
	}
}

func TestCloudOnlyAdoptionSkipsProbe(t *testing.T) {
	f := newFixture(t)
	// Present only as a placeholder sidecar, never tracked.
	sidecar := filepath.Join(f.dir, ".remote-memo.m4a.icloud")
	if err := os.WriteFile(sidecar, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	f.probeErrs["remote-memo.m4a"] = errors.New("probe must not run on cloud-only files")

	report, err := f.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Adopted != 1 || report.CloudOnly != 1 {
		t.Fatalf("report = %+v, want one cloud-only adoption", report)
	}

	rec, ok := f.store.ByFileName("remote-memo.m4a")
	if !ok {
		t.Fatal("cloud-only file has no record")
	}
	if rec.DurationSeconds != 0 {
		t.Errorf("cloud-only adoption has duration %v, want unmeasured", rec.DurationSeconds)
	}
}

func TestBackfillsUnmeasuredDurations(t *testing.T) {
	f := newFixture(t)
	tracked := f.track(t, "crashed-mid-recording.m4a", 0)
	f.writeMemo(t, "crashed-mid-recording.m4a")
	f.probed["crashed-mid-recording.m4a"] = 7 * time.Second

	report, err := f.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Measured != 1 {
		t.Fatalf("Measured = %d, want 1", report.Measured)
	}

	rec, err := f.store.Get(tracked.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.DurationSeconds != 7 {
		t.Errorf("backfilled duration = %v, want 7", rec.DurationSeconds)
	}
}

func TestSecondRunIsIdempotent(t *testing.T) {
	f := newFixture(t)

	// A mix of everything: tracked+present, untracked, tracked+missing,
	// tracked+placeholder.
	f.track(t, "stable.m4a", 10)
	f.writeMemo(t, "stable.m4a")
	f.writeMemo(t, "untracked.m4a")
	f.track(t, "vanished.m4a", 5)
	f.track(t, "cloudy.m4a", 8)
	if err := os.WriteFile(filepath.Join(f.dir, ".cloudy.m4a.icloud"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := f.rec.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	libPath := filepath.Join(f.dir, "library.json")
	before, err := os.ReadFile(libPath)
	if err != nil {
		t.Fatal(err)
	}

	report, err := f.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if report.Adopted != 0 || report.Measured != 0 || report.SoftDeleted != 0 {
		t.Errorf("second run mutated: %+v", report)
	}

	after, err := os.ReadFile(libPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("second run rewrote the library")
	}
}

func TestProbeFailureStillAdopts(t *testing.T) {
	f := newFixture(t)
	f.writeMemo(t, "odd.m4a")
	f.probeErrs["odd.m4a"] = errors.New("moov atom not found")

	report, err := f.rec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Adopted != 1 {
		t.Fatalf("Adopted = %d, want 1", report.Adopted)
	}

	rec, ok := f.store.ByFileName("odd.m4a")
	if !ok {
		t.Fatal("unmeasurable file has no record")
	}
	if rec.DurationSeconds != 0 {
		t.Errorf("duration = %v, want 0 for unmeasurable file", rec.DurationSeconds)
	}
}
