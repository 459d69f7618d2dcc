// Package eventlog provides a durable history of memo lifecycle events.
// Session transitions, reconciliation passes, and cloud uploads land in a
// single JSON lines file that survives restarts, unlike the in-memory
// status feed.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// EventType represents the type of event.
type EventType string

// Session event types, one per state transition worth keeping.
const (
	SessionStarted   EventType = "session_started"
	SessionPaused    EventType = "session_paused"
	SessionResumed   EventType = "session_resumed"
	SessionCompleted EventType = "session_completed"
	SessionFailed    EventType = "session_failed"
	SessionDiscarded EventType = "session_discarded"
)

// Reconcile event types.
const (
	ReconcileCompleted EventType = "reconcile_completed"
)

// Upload event types.
const (
	UploadQueued    EventType = "upload_queued"
	UploadCompleted EventType = "upload_completed"
	UploadFailed    EventType = "upload_failed"
)

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp   time.Time `json:"ts"`
	Type        EventType `json:"type"`
	RecordingID string    `json:"recording_id,omitempty"`
	Message     string    `json:"msg,omitempty"`
	Details     any       `json:"details,omitempty"`
}

// SessionDetails contains session-specific event details.
type SessionDetails struct {
	File            string  `json:"file,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// ReconcileDetails contains the counts of one reconciliation pass.
type ReconcileDetails struct {
	Scanned     int `json:"scanned"`
	Adopted     int `json:"adopted,omitempty"`
	Measured    int `json:"measured,omitempty"`
	SoftDeleted int `json:"soft_deleted,omitempty"`
	CloudOnly   int `json:"cloud_only,omitempty"`
}

// UploadDetails contains upload-specific event details.
type UploadDetails struct {
	Key     string `json:"key,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Logger writes events to a JSON lines file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// DefaultLogPath returns the platform-specific log file path.
func DefaultLogPath(port int) string {
	switch runtime.GOOS {
	case "windows":
		// %PROGRAMDATA% is typically C:\ProgramData
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return filepath.Join(programData, "voicememod", "logs", fmt.Sprintf("%d", port), "events.jsonl")
	default: // linux, darwin
		return filepath.Join("/var/log/voicememod", fmt.Sprintf("%d", port), "events.jsonl")
	}
}

// NewLogger creates a new event logger at the specified path.
func NewLogger(filePath string) (*Logger, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log writes an event to the log file.
func (l *Logger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return l.encoder.Encode(event)
}

// LogSession logs a session lifecycle event.
func (l *Logger) LogSession(eventType EventType, recordingID, file string, durationSeconds float64, errMsg string) error {
	return l.Log(&Event{
		Type:        eventType,
		RecordingID: recordingID,
		Details: &SessionDetails{
			File:            file,
			DurationSeconds: durationSeconds,
			Error:           errMsg,
		},
	})
}

// LogReconcile logs the outcome of a reconciliation pass.
func (l *Logger) LogReconcile(details ReconcileDetails) error {
	return l.Log(&Event{
		Type:    ReconcileCompleted,
		Details: &details,
	})
}

// LogUpload logs an upload event.
func (l *Logger) LogUpload(eventType EventType, key string, attempt int, errMsg string) error {
	return l.Log(&Event{
		Type: eventType,
		Details: &UploadDetails{
			Key:     key,
			Attempt: attempt,
			Error:   errMsg,
		},
	})
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	return l.filePath
}

// MaxReadLimit is the maximum number of events that can be read at once.
const MaxReadLimit = 500

// ReadLast reads events from the log file with pagination support. Returns
// up to n events starting from offset, newest first, plus whether more
// events remain beyond them.
func ReadLast(filePath string, n, offset int) ([]Event, bool, error) {
	if n > MaxReadLimit {
		n = MaxReadLimit
	}
	if n <= 0 {
		return []Event{}, false, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	events := make([]Event, 0, n)
	skipped := 0
	hasMore := false
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(events) >= n {
			hasMore = true
			break
		}
		events = append(events, event)
	}

	return events, hasMore, nil
}
