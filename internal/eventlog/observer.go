package eventlog

import (
	"log/slog"
	"sync"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/types"
)

// SessionObserver translates session status snapshots into history events.
// It satisfies the session notifier interface and keeps just enough state to
// tell a fresh start from a resume.
type SessionObserver struct {
	log *Logger

	mu   sync.Mutex
	last types.SessionState
}

// NewSessionObserver returns an observer writing to the given logger.
func NewSessionObserver(log *Logger) *SessionObserver {
	return &SessionObserver{log: log, last: types.SessionIdle}
}

// Publish records the transitions worth keeping; intermediate states pass
// through silently.
func (o *SessionObserver) Publish(status types.SessionStatus) {
	o.mu.Lock()
	prev := o.last
	o.last = status.State
	o.mu.Unlock()

	// Elapsed ticks republish the same state; only transitions are events.
	if status.State == prev {
		return
	}

	var eventType EventType
	switch status.State {
	case types.SessionRecording:
		if prev == types.SessionPaused {
			eventType = SessionResumed
		} else {
			eventType = SessionStarted
		}
	case types.SessionPaused:
		eventType = SessionPaused
	case types.SessionCompleted:
		eventType = SessionCompleted
	case types.SessionFailed:
		eventType = SessionFailed
	case types.SessionIdle:
		// Idle is only re-entered by discarding an attempt.
		if !prev.Active() {
			return
		}
		eventType = SessionDiscarded
	default:
		return
	}

	err := o.log.LogSession(eventType, status.RecordingID, "", status.Elapsed, status.Error)
	if err != nil {
		slog.Warn("event log write failed", "type", eventType, "error", err)
	}
}
