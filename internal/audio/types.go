// Package audio captures system audio as timestamped PCM sample buffers.
package audio

import "errors"

// ErrNoAudioDevice is returned when no capturable audio device is available.
var ErrNoAudioDevice = errors.New("no capturable audio device found")

// CaptureConfig defines platform-specific audio capture configuration.
type CaptureConfig struct {
	// DefaultDevice is used when no device is configured.
	DefaultDevice string

	// BuildArgs returns the FFmpeg arguments for capturing the given device.
	BuildArgs func(device string) []string
}

// Device represents an available capture device.
type Device struct {
	// ID is the device identifier.
	ID string `json:"id"`
	// Name is the device display name.
	Name string `json:"name"`
}
