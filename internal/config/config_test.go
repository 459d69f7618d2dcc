package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/config"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/types"
)

// write puts a config file on disk with the recording paths pointed at a
// writable temp directory, plus any overrides.
func write(t *testing.T, dir string, overrides map[string]any) string {
	t.Helper()

	recDir := filepath.Join(dir, "memos")
	doc := map[string]any{
		"system": map[string]any{},
		"recording": map[string]any{
			"directory": recDir,
			"library":   filepath.Join(recDir, "library.json"),
		},
	}
	for key, value := range overrides {
		doc[key] = value
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	path := filepath.Join(dir, "config.json")
	cfg := config.New(path)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config not written: %v", err)
	}
	if cfg.Port() != config.DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), config.DefaultPort)
	}
	if cfg.Codec() != types.CodecAAC {
		t.Errorf("Codec() = %v, want aac", cfg.Codec())
	}
	if cfg.RecordingsDir() != filepath.Join(dir, config.DefaultRecordingsDirName) {
		t.Errorf("RecordingsDir() = %q", cfg.RecordingsDir())
	}
	if cfg.LibraryPath() != filepath.Join(cfg.RecordingsDir(), config.DefaultLibraryFileName) {
		t.Errorf("LibraryPath() = %q", cfg.LibraryPath())
	}

	cloud := cfg.CloudSnapshot()
	if cloud.StubThresholdBytes != config.DefaultCloudStubThreshold {
		t.Errorf("StubThresholdBytes = %d, want %d", cloud.StubThresholdBytes, config.DefaultCloudStubThreshold)
	}
	if cloud.PlaceholderSuffix != config.DefaultCloudPlaceholderSuffix {
		t.Errorf("PlaceholderSuffix = %q, want %q", cloud.PlaceholderSuffix, config.DefaultCloudPlaceholderSuffix)
	}
}

func TestLoadRejectsBadCodec(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, map[string]any{
		"recording": map[string]any{
			"directory": filepath.Join(dir, "memos"),
			"library":   filepath.Join(dir, "memos", "library.json"),
			"codec":     "flac",
		},
	})

	cfg := config.New(path)
	if err := cfg.Load(); err == nil {
		t.Fatal("Load accepted unsupported codec")
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, map[string]any{
		"system": map[string]any{"port": 70000},
	})

	cfg := config.New(path)
	if err := cfg.Load(); err == nil {
		t.Fatal("Load accepted out-of-range port")
	}
}

func TestSyncConfiguredRequiresAllFields(t *testing.T) {
	var sync config.SyncConfig
	if sync.IsConfigured() {
		t.Error("empty sync config reported configured")
	}

	sync.Bucket = "memos"
	sync.AccessKeyID = "AKIA..."
	if sync.IsConfigured() {
		t.Error("sync config without secret reported configured")
	}

	sync.SecretAccessKey = "secret"
	if !sync.IsConfigured() {
		t.Error("complete sync config reported unconfigured")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, map[string]any{
		"audio": map[string]any{"input": "hw:1"},
	})

	cfg := config.New(path)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AudioInput() != "hw:1" {
		t.Fatalf("AudioInput() = %q, want hw:1", cfg.AudioInput())
	}

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	again := config.New(path)
	if err := again.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.AudioInput() != "hw:1" {
		t.Errorf("reloaded AudioInput() = %q, want hw:1", again.AudioInput())
	}
}
