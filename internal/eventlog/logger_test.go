package eventlog_test

import (
	"path/filepath"
	"testing"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/eventlog"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/types"
)

func newTestLogger(t *testing.T) (*eventlog.Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	log, err := eventlog.NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return log, path
}

func TestReadLastNewestFirst(t *testing.T) {
	log, path := newTestLogger(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := log.LogSession(eventlog.SessionStarted, id, "", 0, ""); err != nil {
			t.Fatalf("LogSession: %v", err)
		}
	}

	events, hasMore, err := eventlog.ReadLast(path, 2, 0)
	if err != nil {
		t.Fatalf("ReadLast: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].RecordingID != "c" || events[1].RecordingID != "b" {
		t.Errorf("order = %s, %s; want c, b", events[0].RecordingID, events[1].RecordingID)
	}
	if !hasMore {
		t.Error("hasMore = false with one event remaining")
	}

	events, hasMore, err = eventlog.ReadLast(path, 2, 2)
	if err != nil {
		t.Fatalf("ReadLast with offset: %v", err)
	}
	if len(events) != 1 || events[0].RecordingID != "a" {
		t.Errorf("offset page = %v, want just a", events)
	}
	if hasMore {
		t.Error("hasMore = true past the last event")
	}
}

func TestReadLastMissingFile(t *testing.T) {
	events, hasMore, err := eventlog.ReadLast(filepath.Join(t.TempDir(), "absent.jsonl"), 10, 0)
	if err != nil {
		t.Fatalf("ReadLast: %v", err)
	}
	if len(events) != 0 || hasMore {
		t.Errorf("got %d events, hasMore=%v; want empty", len(events), hasMore)
	}
}

func TestSessionObserverMapsTransitions(t *testing.T) {
	log, path := newTestLogger(t)
	obs := eventlog.NewSessionObserver(log)

	publish := func(state types.SessionState) {
		obs.Publish(types.SessionStatus{State: state, RecordingID: "rec-1"})
	}

	// A full attempt with one pause cycle, then a second attempt discarded.
	publish(types.SessionStarting)
	publish(types.SessionRecording)
	publish(types.SessionPaused)
	publish(types.SessionRecording)
	publish(types.SessionStopping)
	publish(types.SessionFinalizing)
	publish(types.SessionCompleted)
	publish(types.SessionStarting)
	publish(types.SessionRecording)
	publish(types.SessionIdle) // discard

	events, _, err := eventlog.ReadLast(path, eventlog.MaxReadLimit, 0)
	if err != nil {
		t.Fatalf("ReadLast: %v", err)
	}

	want := []eventlog.EventType{
		eventlog.SessionDiscarded,
		eventlog.SessionStarted,
		eventlog.SessionCompleted,
		eventlog.SessionResumed,
		eventlog.SessionPaused,
		eventlog.SessionStarted,
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, eventType := range want {
		if events[i].Type != eventType {
			t.Errorf("event[%d] = %s, want %s", i, events[i].Type, eventType)
		}
	}
}

func TestSessionObserverSkipsElapsedTicks(t *testing.T) {
	log, path := newTestLogger(t)
	obs := eventlog.NewSessionObserver(log)

	obs.Publish(types.SessionStatus{State: types.SessionStarting, RecordingID: "rec-1"})
	for i := 0; i < 4; i++ {
		obs.Publish(types.SessionStatus{
			State:       types.SessionRecording,
			RecordingID: "rec-1",
			Elapsed:     float64(i),
		})
	}

	events, _, err := eventlog.ReadLast(path, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != eventlog.SessionStarted {
		t.Errorf("got %+v, want a single started event", events)
	}
}

func TestSessionObserverIgnoresIdleStartup(t *testing.T) {
	log, path := newTestLogger(t)
	obs := eventlog.NewSessionObserver(log)

	obs.Publish(types.SessionStatus{State: types.SessionIdle})

	events, _, err := eventlog.ReadLast(path, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("idle at startup produced %d events", len(events))
	}
}
