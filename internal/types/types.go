// Package types provides shared type definitions used across the service.
package types

import (
	"time"
)

// SessionState represents the lifecycle state of a recording session.
type SessionState string

const (
	// SessionIdle indicates no capture attempt is in progress.
	SessionIdle SessionState = "idle"
	// SessionStarting indicates capture and encoder setup is in progress.
	SessionStarting SessionState = "starting"
	// SessionRecording indicates sample buffers are flowing to the encoder.
	SessionRecording SessionState = "recording"
	// SessionPaused indicates capture delivery is suspended.
	SessionPaused SessionState = "paused"
	// SessionStopping indicates capture is being torn down.
	SessionStopping SessionState = "stopping"
	// SessionFinalizing indicates the encoder is flushing and the file is being measured.
	SessionFinalizing SessionState = "finalizing"
	// SessionCompleted indicates the memo file is durable with an authoritative duration.
	SessionCompleted SessionState = "completed"
	// SessionFailed indicates the attempt ended with an error.
	SessionFailed SessionState = "failed"
)

// Active reports whether the state blocks a second session from starting.
func (s SessionState) Active() bool {
	switch s {
	case SessionStarting, SessionRecording, SessionPaused, SessionStopping, SessionFinalizing:
		return true
	default:
		return false
	}
}

// SessionStatus is the externally visible snapshot of a session.
type SessionStatus struct {
	State SessionState `json:"state"`
	// RecordingID is the metadata record backing the attempt, empty when idle.
	RecordingID string `json:"recording_id,omitempty"`
	// Elapsed is the display counter in seconds: wall clock minus paused time.
	// Not authoritative; the finished file is measured separately.
	Elapsed float64 `json:"elapsed,omitempty"`
	// Error carries the failure reason when State is failed.
	Error string `json:"error,omitempty"`
}

// Audio format constants for PCM capture and encoding.
const (
	// SampleRate is the audio sample rate in Hz.
	SampleRate = 48000
	// Channels is the number of audio channels (stereo).
	Channels = 2
	// BytesPerSample is the width of one s16le sample.
	BytesPerSample = 2
	// BytesPerSecond is the raw PCM data rate.
	BytesPerSecond = SampleRate * Channels * BytesPerSample
	// FrameBytes is the size of one capture frame (20 ms of PCM).
	FrameBytes = BytesPerSecond / 50
	// FrameDuration is the timeline length of one capture frame.
	FrameDuration = time.Second / 50
)

// SampleBuffer is one timestamped chunk of raw PCM samples delivered by the
// capture source. PTS is relative to the capture epoch and strictly
// increasing within one session. The PCM slice is owned by the receiver.
type SampleBuffer struct {
	PTS time.Duration
	PCM []byte
}

// Codec represents an audio codec type.
type Codec string

// Supported memo codecs.
const (
	CodecAAC Codec = "aac" // AAC in M4A container (default)
	CodecMP3 Codec = "mp3" // MPEG Audio Layer III
	CodecOGG Codec = "ogg" // Ogg Vorbis
)

// CodecPreset defines FFmpeg encoding parameters for a codec.
type CodecPreset struct {
	Args      []string // FFmpeg codec arguments
	Format    string   // FFmpeg output format
	Extension string   // File extension
	MIMEType  string   // Content type for uploads
}

// CodecPresets maps codec types to their FFmpeg configuration. All presets
// are constant-bitrate stereo at SampleRate.
var CodecPresets = map[Codec]CodecPreset{
	CodecAAC: {[]string{"aac", "-b:a", "128k"}, "ipod", "m4a", "audio/mp4"},
	CodecMP3: {[]string{"libmp3lame", "-b:a", "192k"}, "mp3", "mp3", "audio/mpeg"},
	CodecOGG: {[]string{"libvorbis", "-b:a", "160k"}, "ogg", "ogg", "audio/ogg"},
}

// PresetFor returns the encoding preset for the given codec, falling back to AAC.
func PresetFor(codec Codec) CodecPreset {
	if preset, ok := CodecPresets[codec]; ok {
		return preset
	}
	return CodecPresets[CodecAAC]
}

const (
	// FinishTimeout is how long to wait for the encoder to flush on finish.
	FinishTimeout = 10 * time.Second
	// ProbeTimeout bounds a single duration probe.
	ProbeTimeout = 15 * time.Second
	// ShutdownTimeout is the duration to wait for graceful shutdown.
	ShutdownTimeout = 3 * time.Second
)
