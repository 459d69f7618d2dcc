package reconcile

import (
	"os"
	"path/filepath"
)

// CloudChecker reports whether a path refers to a cloud-only file: one the
// sync provider knows about but whose bytes are not locally materialized.
// Checks must be metadata-only and must never trigger a download.
type CloudChecker interface {
	CloudOnly(path string) bool
}

// PlaceholderChecker is the default CloudChecker. The provider's sidecar
// placeholder is the explicit signal; the size cutoff is a heuristic
// fallback for dataless stubs and is deliberately configurable rather than
// load-bearing.
type PlaceholderChecker struct {
	// Suffix is the sidecar placeholder suffix, e.g. ".icloud" for a
	// placeholder named ".<name>.icloud" next to the logical file.
	Suffix string

	// StubThreshold treats an existing file smaller than this many bytes as
	// a not-yet-downloaded stub. Zero disables the heuristic.
	StubThreshold int64
}

// CloudOnly implements CloudChecker using os.Stat only.
func (c *PlaceholderChecker) CloudOnly(path string) bool {
	if c.Suffix != "" {
		dir, name := filepath.Split(path)
		if _, err := os.Stat(filepath.Join(dir, "."+name+c.Suffix)); err == nil {
			return true
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	return c.StubThreshold > 0 && info.Size() < c.StubThreshold
}
