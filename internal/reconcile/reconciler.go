// Package reconcile aligns the metadata store with the recordings directory
// at startup. External sync engines move memo files underneath the service,
// so the directory is ground truth for presence and the store follows it.
package reconcile

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/encoder"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/store"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/types"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/util"
)

// Report summarizes one reconciliation pass.
type Report struct {
	// Scanned is the number of audio files seen in the directory.
	Scanned int `json:"scanned"`
	// Adopted is the number of untracked files that got a new record.
	Adopted int `json:"adopted"`
	// Measured is the number of records whose duration was backfilled.
	Measured int `json:"measured"`
	// SoftDeleted is the number of records tombstoned for vanished files.
	SoftDeleted int `json:"soft_deleted"`
	// CloudOnly is the number of records pointing at unmaterialized files.
	CloudOnly int `json:"cloud_only"`
}

// Reconciler performs the startup pass. It mutates only the store; memo
// files are never created, moved, or removed.
type Reconciler struct {
	store *store.Store
	dir   string
	probe encoder.Prober
	cloud CloudChecker
	now   func() time.Time
}

// New builds a reconciler over the given store and recordings directory.
func New(st *store.Store, dir string, probe encoder.Prober, cloud CloudChecker) *Reconciler {
	return &Reconciler{
		store: st,
		dir:   dir,
		probe: probe,
		cloud: cloud,
		now:   time.Now,
	}
}

// scannedFile is one logical audio file found in the directory. A cloud
// placeholder sidecar counts as its logical file, flagged cloudOnly.
type scannedFile struct {
	name      string // logical file name, relative to the directory
	modTime   time.Time
	cloudOnly bool
}

// Run executes one reconciliation pass. The pass never fails a single file
// loudly: per-file problems are logged and skipped so one unreadable entry
// cannot block startup. Only directory enumeration and the final store save
// surface as errors. Running twice against an unchanged directory performs
// zero store mutations and zero writes.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	var report Report

	files, err := r.scan()
	if err != nil {
		return report, util.WrapError("scan recordings directory", err)
	}
	report.Scanned = len(files)

	r.store.BeginBatch()

	tracked := make(map[string]store.RecordingRecord)
	for _, rec := range r.store.Active() {
		tracked[rec.FileName] = rec
	}

	for _, f := range files {
		rec, known := tracked[f.name]
		if !known {
			if r.adopt(ctx, f) {
				report.Adopted++
			}
			if f.cloudOnly {
				report.CloudOnly++
			}
			continue
		}

		r.store.SetCloudOnly(rec.ID, f.cloudOnly)
		if f.cloudOnly {
			report.CloudOnly++
			continue
		}
		if rec.DurationSeconds <= 0 && !rec.Invalid {
			if r.measure(ctx, &rec) {
				report.Measured++
			}
		}
	}

	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f.name] = true
	}
	for name, rec := range tracked {
		if present[name] {
			continue
		}
		// The file vanished between the scan snapshot and now, or the scan
		// missed a freshly evicted file. Re-check the path directly before
		// tombstoning.
		if r.cloud.CloudOnly(filepath.Join(r.dir, name)) {
			r.store.SetCloudOnly(rec.ID, true)
			report.CloudOnly++
			continue
		}
		if err := r.store.SoftDelete(rec.ID, r.now()); err != nil {
			slog.Warn("Reconcile: tombstone failed", "id", rec.ID, "error", err)
			continue
		}
		report.SoftDeleted++
		slog.Info("Reconcile: file missing, record tombstoned", "file", name, "id", rec.ID)
	}

	if err := r.store.CommitBatch(); err != nil {
		return report, util.WrapError("persist reconciled library", err)
	}

	slog.Info("Reconcile: pass complete",
		"scanned", report.Scanned,
		"adopted", report.Adopted,
		"measured", report.Measured,
		"soft_deleted", report.SoftDeleted,
		"cloud_only", report.CloudOnly,
	)
	return report, nil
}

// scan enumerates logical audio files in the recordings directory. The scan
// is non-recursive: memos live flat in the directory. Placeholder sidecars
// (".<name><suffix>") are folded into their logical file.
func (r *Reconciler) scan() ([]scannedFile, error) {
	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	suffix := ""
	if pc, ok := r.cloud.(*PlaceholderChecker); ok {
		suffix = pc.Suffix
	}

	byName := make(map[string]*scannedFile)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		if suffix != "" && strings.HasPrefix(name, ".") && strings.HasSuffix(name, suffix) {
			logical := strings.TrimSuffix(strings.TrimPrefix(name, "."), suffix)
			if !audioFile(logical) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				slog.Warn("Reconcile: unreadable placeholder skipped", "file", name, "error", err)
				continue
			}
			f := byName[logical]
			if f == nil {
				f = &scannedFile{name: logical, modTime: info.ModTime()}
				byName[logical] = f
			}
			f.cloudOnly = true
			continue
		}

		if !audioFile(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			slog.Warn("Reconcile: unreadable file skipped", "file", name, "error", err)
			continue
		}
		f := byName[name]
		if f == nil {
			f = &scannedFile{name: name}
			byName[name] = f
		}
		f.modTime = info.ModTime()
		if r.cloud.CloudOnly(filepath.Join(r.dir, name)) {
			f.cloudOnly = true
		}
	}

	out := make([]scannedFile, 0, len(byName))
	for _, f := range byName {
		out = append(out, *f)
	}
	return out, nil
}

// adopt creates a record for an untracked file. Duration is probed only when
// the bytes are local; a cloud-only adoption stays unmeasured until a later
// pass finds it materialized.
func (r *Reconciler) adopt(ctx context.Context, f scannedFile) bool {
	rec := &store.RecordingRecord{
		ID:        store.NewID(),
		Title:     titleFor(f.name),
		CreatedAt: f.modTime,
		FileName:  f.name,
		CloudOnly: f.cloudOnly,
	}

	if !f.cloudOnly {
		duration, err := r.probe(ctx, filepath.Join(r.dir, f.name))
		if err != nil {
			// Unmeasurable but present. Track it anyway so the user sees the
			// file; the next pass retries the probe.
			slog.Warn("Reconcile: adopted file not measurable", "file", f.name, "error", err)
		} else {
			rec.DurationSeconds = duration.Seconds()
		}
	}

	if err := r.store.Insert(rec); err != nil {
		slog.Warn("Reconcile: adoption failed", "file", f.name, "error", err)
		return false
	}
	slog.Info("Reconcile: untracked file adopted", "file", f.name, "id", rec.ID, "cloud_only", f.cloudOnly)
	return true
}

// measure backfills the duration of a tracked, local, unmeasured record.
func (r *Reconciler) measure(ctx context.Context, rec *store.RecordingRecord) bool {
	duration, err := r.probe(ctx, filepath.Join(r.dir, rec.FileName))
	if err != nil {
		slog.Warn("Reconcile: duration backfill failed", "file", rec.FileName, "error", err)
		return false
	}
	rec.DurationSeconds = duration.Seconds()
	if err := r.store.Update(rec); err != nil {
		slog.Warn("Reconcile: duration update failed", "id", rec.ID, "error", err)
		return false
	}
	return true
}

// audioFile reports whether the name carries a memo extension.
func audioFile(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, preset := range types.CodecPresets {
		if ext == preset.Extension {
			return true
		}
	}
	return false
}

// titleFor derives a display title from a file name: the base name without
// its extension.
func titleFor(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
