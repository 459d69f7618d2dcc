// Package config provides application configuration management.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/types"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultPort              = 8721
	DefaultRecordingsDirName = "VoiceMemos"
	DefaultLibraryFileName   = "library.json"
	DefaultCodec             = string(types.CodecAAC)

	// DefaultCloudStubThreshold is the file-size cutoff below which a file in
	// the recordings directory is treated as a not-yet-downloaded cloud stub.
	// A heuristic fallback only; the placeholder-suffix signal is preferred.
	DefaultCloudStubThreshold = 4096

	// DefaultCloudPlaceholderSuffix is the sidecar suffix cloud-sync providers
	// use for files whose bytes are not locally materialized.
	DefaultCloudPlaceholderSuffix = ".icloud"
)

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	FFmpegPath  string `json:"ffmpeg_path"`                            // Path to FFmpeg binary (empty = use PATH)
	FFprobePath string `json:"ffprobe_path"`                           // Path to ffprobe binary (empty = use PATH)
	Port        int    `json:"port" validate:"omitempty,gte=1,lte=65535"` // HTTP control API port
}

// AudioConfig holds audio input device settings.
type AudioConfig struct {
	Input string `json:"input" validate:"omitempty,max=256"` // Capture device identifier (empty = platform default)
}

// RecordingConfig holds memo recording settings.
type RecordingConfig struct {
	Directory string `json:"directory" validate:"omitempty,max=4096"`        // Recordings directory
	Library   string `json:"library" validate:"omitempty,max=4096"`          // Metadata store file
	Codec     string `json:"codec" validate:"omitempty,oneof=aac mp3 ogg"`   // Output codec
}

// CloudConfig holds cloud placeholder detection settings.
type CloudConfig struct {
	StubThresholdBytes int64  `json:"stub_threshold_bytes" validate:"omitempty,gte=0,lte=1048576"` // Size cutoff for stub detection
	PlaceholderSuffix  string `json:"placeholder_suffix" validate:"omitempty,max=32"`              // Sidecar placeholder suffix
}

// SyncConfig holds S3-compatible upload settings for completed memos.
// Upload is disabled unless bucket and credentials are all set.
type SyncConfig struct {
	Endpoint        string `json:"endpoint,omitempty" validate:"omitempty,url"` // Custom S3 endpoint (empty for AWS)
	Bucket          string `json:"bucket,omitempty" validate:"omitempty,max=63"`
	AccessKeyID     string `json:"access_key_id,omitempty" validate:"omitempty,max=128"`
	SecretAccessKey string `json:"secret_access_key,omitempty" validate:"omitempty,max=128"`
}

// IsConfigured reports whether upload settings are complete.
func (s *SyncConfig) IsConfigured() bool {
	return s.Bucket != "" && s.AccessKeyID != "" && s.SecretAccessKey != ""
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System    SystemConfig    `json:"system"`
	Audio     AudioConfig     `json:"audio"`
	Recording RecordingConfig `json:"recording"`
	Cloud     CloudConfig     `json:"cloud"`
	Sync      SyncConfig      `json:"sync"`

	mu       sync.RWMutex
	filePath string
}

// validate is the shared validator instance for configuration validation.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages instead of struct field names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port: DefaultPort,
		},
		Recording: RecordingConfig{
			Codec: DefaultCodec,
		},
		Cloud: CloudConfig{
			StubThresholdBytes: DefaultCloudStubThreshold,
			PlaceholderSuffix:  DefaultCloudPlaceholderSuffix,
		},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		c.applyDefaults()
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	if err := c.validateLocked(); err != nil {
		return err
	}

	return nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

// validateLocked checks all configuration fields. Caller must hold c.mu.
func (c *Config) validateLocked() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("invalid config field %s: failed %q validation", e.Field(), e.Tag())
		}
		return util.WrapError("validate config", err)
	}

	if err := util.ValidatePath("recording.directory", c.Recording.Directory); err != nil {
		return err
	}
	return util.ValidatePath("recording.library", c.Recording.Library)
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.System.Port == 0 {
		c.System.Port = DefaultPort
	}
	if c.Recording.Codec == "" {
		c.Recording.Codec = DefaultCodec
	}
	if c.Recording.Directory == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.Recording.Directory = filepath.Join(home, DefaultRecordingsDirName)
	}
	if c.Recording.Library == "" {
		c.Recording.Library = filepath.Join(c.Recording.Directory, DefaultLibraryFileName)
	}
	if c.Cloud.StubThresholdBytes == 0 {
		c.Cloud.StubThresholdBytes = DefaultCloudStubThreshold
	}
	if c.Cloud.PlaceholderSuffix == "" {
		c.Cloud.PlaceholderSuffix = DefaultCloudPlaceholderSuffix
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Accessors (copies, safe to use without holding locks) ---

// Port returns the control API port.
func (c *Config) Port() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.System.Port
}

// FFmpegPath returns the configured FFmpeg binary path.
func (c *Config) FFmpegPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.System.FFmpegPath
}

// FFprobePath returns the configured ffprobe binary path.
func (c *Config) FFprobePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.System.FFprobePath
}

// AudioInput returns the configured capture device identifier.
func (c *Config) AudioInput() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Audio.Input
}

// RecordingsDir returns the recordings directory.
func (c *Config) RecordingsDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Recording.Directory
}

// LibraryPath returns the metadata store file path.
func (c *Config) LibraryPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Recording.Library
}

// Codec returns the configured output codec.
func (c *Config) Codec() types.Codec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.Codec(c.Recording.Codec)
}

// CloudSnapshot returns a copy of the cloud detection settings.
func (c *Config) CloudSnapshot() CloudConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Cloud
}

// SyncSnapshot returns a copy of the upload settings.
func (c *Config) SyncSnapshot() SyncConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Sync
}
