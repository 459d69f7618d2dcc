package reconcile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/reconcile"
)

func TestPlaceholderCheckerSidecar(t *testing.T) {
	dir := t.TempDir()
	checker := &reconcile.PlaceholderChecker{Suffix: ".icloud", StubThreshold: 0}

	path := filepath.Join(dir, "memo.m4a")
	if checker.CloudOnly(path) {
		t.Error("missing file without sidecar reported cloud-only")
	}

	sidecar := filepath.Join(dir, ".memo.m4a.icloud")
	if err := os.WriteFile(sidecar, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !checker.CloudOnly(path) {
		t.Error("sidecar placeholder not detected")
	}
}

func TestPlaceholderCheckerStubSize(t *testing.T) {
	dir := t.TempDir()
	checker := &reconcile.PlaceholderChecker{Suffix: ".icloud", StubThreshold: 64}

	stub := filepath.Join(dir, "stub.m4a")
	if err := os.WriteFile(stub, make([]byte, 10), 0o644); err != nil {
		t.Fatal(err)
	}
	if !checker.CloudOnly(stub) {
		t.Error("undersized file not treated as stub")
	}

	full := filepath.Join(dir, "full.m4a")
	if err := os.WriteFile(full, make([]byte, 200), 0o644); err != nil {
		t.Fatal(err)
	}
	if checker.CloudOnly(full) {
		t.Error("full-size file treated as stub")
	}
}

func TestPlaceholderCheckerThresholdDisabled(t *testing.T) {
	dir := t.TempDir()
	checker := &reconcile.PlaceholderChecker{StubThreshold: 0}

	tiny := filepath.Join(dir, "tiny.m4a")
	if err := os.WriteFile(tiny, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if checker.CloudOnly(tiny) {
		t.Error("stub heuristic fired with threshold disabled")
	}
}
