package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/audio"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/encoder"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/store"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/types"
)

// DefaultTitle is the placeholder title for a freshly started memo.
const DefaultTitle = "New Recording"

// Sink is the encoder surface a session drives. Satisfied by
// [encoder.Sink].
type Sink interface {
	Begin(reference time.Time)
	Ready() bool
	Submit(buf types.SampleBuffer) error
	Finish(ctx context.Context) encoder.Result
}

// SinkOpener creates the sink for one attempt's output file.
type SinkOpener func(path string, codec types.Codec) (Sink, error)

// Notifier receives session status snapshots on every state transition, for
// the presentation layer to render. Implementations must not block.
type Notifier interface {
	Publish(status types.SessionStatus)
}

// Deps are the collaborators a session needs. Everything is injected; the
// session holds no ambient global state.
type Deps struct {
	Sources  audio.Factory
	OpenSink SinkOpener
	Probe    encoder.Prober
	Store    *store.Store
	Dir      string
	Codec    types.Codec

	// Notifier is optional.
	Notifier Notifier
	// OnCompleted is optional; invoked after a memo completes, outside the
	// session lock (cloud upload hook).
	OnCompleted func(rec store.RecordingRecord)
	// Now is optional; defaults to time.Now.
	Now func() time.Time
}

// Session is the recording state machine. One capture attempt owns one
// capture source, one timeline, and one encoder sink; the session is reused
// across attempts. At most one attempt is active at a time.
type Session struct {
	deps Deps

	mu           sync.Mutex
	state        types.SessionState
	lastErr      error
	gen          int // invalidates pump goroutines from earlier phases
	record       store.RecordingRecord
	outputPath   string
	source       audio.Source
	sink         Sink
	timeline     Timeline
	captureStart time.Time     // wall-clock reference for elapsed display only
	pausedAt     time.Time     // wall-clock start of the pause in progress
	displayPause time.Duration // wall-clock pause total for elapsed display
	pumpDone     chan struct{}
	tickStop     chan struct{}
}

// New creates an idle session.
func New(deps Deps) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Session{
		deps:  deps,
		state: types.SessionIdle,
	}
}

// State returns the current state.
func (s *Session) State() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the externally visible snapshot.
func (s *Session) Status() types.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() types.SessionStatus {
	status := types.SessionStatus{State: s.state}
	if s.record.ID != "" {
		status.RecordingID = s.record.ID
	}
	switch s.state {
	case types.SessionRecording, types.SessionStopping, types.SessionFinalizing:
		status.Elapsed = (s.deps.Now().Sub(s.captureStart) - s.displayPause).Seconds()
	case types.SessionPaused:
		status.Elapsed = (s.pausedAt.Sub(s.captureStart) - s.displayPause).Seconds()
	case types.SessionCompleted:
		status.Elapsed = s.record.DurationSeconds
	}
	if s.state == types.SessionFailed && s.lastErr != nil {
		status.Error = s.lastErr.Error()
	}
	return status
}

// publishLocked pushes the current status to the notifier. Caller holds s.mu.
func (s *Session) publishLocked() {
	if s.deps.Notifier == nil {
		return
	}
	s.deps.Notifier.Publish(s.statusLocked())
}

// Start begins a new capture attempt. It is rejected, not queued, while
// another attempt is active. On setup failure the placeholder record and any
// partial file are removed and the session lands in failed with the reason.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Active() {
		return types.ErrSessionActive
	}

	now := s.deps.Now()
	preset := types.PresetFor(s.deps.Codec)
	fileName := fmt.Sprintf("memo-%s.%s", now.Format("2006-01-02-15-04-05"), preset.Extension)

	s.state = types.SessionStarting
	s.lastErr = nil
	s.gen++
	s.timeline.Reset()
	s.captureStart = now
	s.displayPause = 0
	s.outputPath = filepath.Join(s.deps.Dir, fileName)
	s.record = store.RecordingRecord{
		ID:        store.NewID(),
		Title:     DefaultTitle,
		CreatedAt: now,
		FileName:  fileName,
	}
	s.publishLocked()

	if err := s.deps.Store.Insert(&s.record); err != nil {
		return s.abortStartLocked(fmt.Errorf("%w: %s", types.ErrEncodeSetupFailed, err), false, false)
	}

	sink, err := s.deps.OpenSink(s.outputPath, s.deps.Codec)
	if err != nil {
		return s.abortStartLocked(err, true, false)
	}
	s.sink = sink

	source := s.deps.Sources(0)
	if err := source.Start(ctx); err != nil {
		return s.abortStartLocked(err, true, true)
	}
	s.source = source

	s.sink.Begin(now)
	s.state = types.SessionRecording
	s.pumpDone = make(chan struct{})
	go s.pump(s.gen, source, s.pumpDone)
	s.tickStop = make(chan struct{})
	go s.tickLoop(s.tickStop)

	slog.Info("recording started", "id", s.record.ID, "file", fileName)
	s.publishLocked()
	return nil
}

// abortStartLocked unwinds a failed start. Caller holds s.mu.
func (s *Session) abortStartLocked(cause error, dropRecord, closeSink bool) error {
	if closeSink && s.sink != nil {
		_ = s.sink.Finish(context.Background())
		if err := os.Remove(s.outputPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove partial file", "path", s.outputPath, "error", err)
		}
	}
	if dropRecord {
		if err := s.deps.Store.Delete(s.record.ID); err != nil {
			slog.Warn("failed to delete placeholder record", "id", s.record.ID, "error", err)
		}
	}
	s.sink = nil
	s.source = nil
	s.state = types.SessionFailed
	s.lastErr = cause
	slog.Error("recording start failed", "error", cause)
	s.publishLocked()
	return cause
}

// tickLoop republishes status once a second while recording so the event
// feed carries a moving elapsed counter between state changes.
func (s *Session) tickLoop(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.state == types.SessionRecording {
				s.publishLocked()
			}
			s.mu.Unlock()
		}
	}
}

// stopTicksLocked ends the attempt's tick loop. Caller holds s.mu.
func (s *Session) stopTicksLocked() {
	if s.tickStop != nil {
		close(s.tickStop)
		s.tickStop = nil
	}
}

// pump moves buffers from one capture source run into the sink. It exits
// when the source's delivery channel closes (stop, pause, or capture death).
func (s *Session) pump(gen int, source audio.Source, done chan struct{}) {
	defer close(done)

	for {
		select {
		case buf, ok := <-source.Buffers():
			if !ok {
				// A capture failure also closes the channel; surface it.
				select {
				case err := <-source.Err():
					s.captureFailed(gen, err)
				default:
				}
				return
			}
			s.handleBuffer(gen, buf)
		case err := <-source.Err():
			s.captureFailed(gen, err)
			return
		}
	}
}

// handleBuffer rewrites and submits one buffer. Buffers racing a state
// change are deterministically dropped; they never produce a decreasing
// timestamp.
func (s *Session) handleBuffer(gen int, buf types.SampleBuffer) {
	s.mu.Lock()

	if gen != s.gen || s.state != types.SessionRecording {
		s.mu.Unlock()
		return
	}

	s.timeline.Observe(buf.PTS)

	// Pull-based backpressure: a sink that is not ready loses this buffer
	// rather than growing an unbounded queue.
	if !s.sink.Ready() {
		s.mu.Unlock()
		return
	}

	buf.PTS = s.timeline.Rewrite(buf.PTS)
	err := s.sink.Submit(buf)
	s.mu.Unlock()

	if err != nil && errors.Is(err, types.ErrEncodeFailed) {
		s.encodeFailed(gen, err)
	} else if err != nil {
		slog.Warn("buffer rejected by sink", "error", err)
	}
}

// Pause suspends capture delivery. The underlying capture process is fully
// stopped rather than left running and ignored.
func (s *Session) Pause() error {
	s.mu.Lock()
	if s.state != types.SessionRecording {
		s.mu.Unlock()
		return types.ErrNotRecording
	}
	s.state = types.SessionPaused
	s.gen++
	s.timeline.Pause()
	s.pausedAt = s.deps.Now()
	source := s.source
	s.source = nil
	s.publishLocked()
	s.mu.Unlock()

	source.Stop()
	slog.Info("recording paused", "id", s.record.ID)
	return nil
}

// Resume restarts capture with the timeline continued where the pause began.
func (s *Session) Resume(ctx context.Context) error {
	s.mu.Lock()
	if s.state != types.SessionPaused {
		s.mu.Unlock()
		return types.ErrNotPaused
	}

	now := s.deps.Now()
	resumePTS := now.Sub(s.captureStart)
	s.timeline.Resume(resumePTS)
	s.displayPause += now.Sub(s.pausedAt)

	source := s.deps.Sources(resumePTS)
	if err := source.Start(ctx); err != nil {
		// Capture went away mid-session; the attempt cannot continue.
		s.mu.Unlock()
		s.failAttempt(fmt.Errorf("%w: %s", types.ErrCaptureInterrupted, err))
		return err
	}

	s.source = source
	s.state = types.SessionRecording
	s.gen++
	s.pumpDone = make(chan struct{})
	go s.pump(s.gen, source, s.pumpDone)

	slog.Info("recording resumed", "id", s.record.ID, "paused_total", s.timeline.Accumulated())
	s.publishLocked()
	s.mu.Unlock()
	return nil
}

// Stop ends the attempt and finalizes the file. The finished file is probed
// for its authoritative duration; wall-clock counters are display-only.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != types.SessionRecording && s.state != types.SessionPaused {
		s.mu.Unlock()
		return types.ErrNotRecording
	}
	s.state = types.SessionStopping
	s.gen++
	source := s.source
	s.source = nil
	pumpDone := s.pumpDone
	s.publishLocked()
	s.mu.Unlock()

	if source != nil {
		source.Stop()
	}
	if pumpDone != nil {
		<-pumpDone
	}

	s.mu.Lock()
	// The pump's failure handler may have finalized the attempt while Stop
	// waited for it to drain; it already flushed the sink and flagged the
	// record, so there is nothing left to finalize here.
	if s.sink == nil {
		err := s.lastErr
		s.mu.Unlock()
		if err == nil {
			err = types.ErrCaptureInterrupted
		}
		return err
	}
	s.state = types.SessionFinalizing
	sink := s.sink
	s.publishLocked()
	s.mu.Unlock()

	result := sink.Finish(ctx)
	if result.Err != nil {
		s.failAttempt(result.Err)
		return result.Err
	}

	duration, err := s.deps.Probe(ctx, s.outputPath)
	if err != nil {
		err = fmt.Errorf("%w: %s", types.ErrFinalizationFailed, err)
		s.failAttempt(err)
		return err
	}

	s.mu.Lock()
	s.record.DurationSeconds = duration.Seconds()
	if err := s.deps.Store.Update(&s.record); err != nil {
		s.mu.Unlock()
		err = fmt.Errorf("%w: %s", types.ErrFinalizationFailed, err)
		s.failAttempt(err)
		return err
	}
	s.state = types.SessionCompleted
	s.sink = nil
	s.stopTicksLocked()
	completed := s.record
	s.publishLocked()
	s.mu.Unlock()

	slog.Info("recording completed", "id", completed.ID, "duration", duration)

	if s.deps.OnCompleted != nil {
		s.deps.OnCompleted(completed)
	}
	return nil
}

// Discard abandons the attempt: capture stops, the partial file and the
// placeholder record are removed, and the session returns to idle. Nothing
// of the attempt survives, so a fresh start cannot collide with orphans.
func (s *Session) Discard(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case types.SessionRecording, types.SessionPaused, types.SessionStarting:
	default:
		s.mu.Unlock()
		return types.ErrNotRecording
	}
	s.gen++
	source := s.source
	s.source = nil
	pumpDone := s.pumpDone
	s.pumpDone = nil
	sink := s.sink
	s.sink = nil
	record := s.record
	outputPath := s.outputPath
	s.mu.Unlock()

	if source != nil {
		source.Stop()
	}
	if pumpDone != nil {
		<-pumpDone
	}
	if sink != nil {
		_ = sink.Finish(ctx)
	}
	if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove discarded file", "path", outputPath, "error", err)
	}
	if err := s.deps.Store.Delete(record.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("failed to delete discarded record", "id", record.ID, "error", err)
	}

	s.mu.Lock()
	s.state = types.SessionIdle
	s.lastErr = nil
	s.stopTicksLocked()
	s.record = store.RecordingRecord{}
	s.publishLocked()
	s.mu.Unlock()

	slog.Info("recording discarded", "id", record.ID)
	return nil
}

// captureFailed handles an asynchronous capture failure: equivalent to a
// stop, but the attempt is marked failed, not completed.
func (s *Session) captureFailed(gen int, err error) {
	s.mu.Lock()
	if gen != s.gen || (s.state != types.SessionRecording && s.state != types.SessionPaused) {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.source = nil
	s.mu.Unlock()

	slog.Error("capture failed mid-session", "id", s.record.ID, "error", err)
	s.failAttempt(err)
}

// encodeFailed handles a writer failure observed during submission.
func (s *Session) encodeFailed(gen int, err error) {
	s.mu.Lock()
	if gen != s.gen || s.state != types.SessionRecording {
		s.mu.Unlock()
		return
	}
	s.gen++
	source := s.source
	s.source = nil
	s.mu.Unlock()

	if source != nil {
		source.Stop()
	}
	slog.Error("encoder failed mid-session", "id", s.record.ID, "error", err)
	s.failAttempt(err)
}

// failAttempt finalizes a failed attempt: the sink is flushed (best effort,
// the partial file stays on disk for diagnostics) and the record is marked
// invalid so it is never presented as a silently-zero-duration memo.
func (s *Session) failAttempt(cause error) {
	s.mu.Lock()
	sink := s.sink
	s.sink = nil
	s.state = types.SessionFinalizing
	s.publishLocked()
	s.mu.Unlock()

	if sink != nil {
		_ = sink.Finish(context.Background())
	}

	s.mu.Lock()
	s.record.Invalid = true
	if err := s.deps.Store.Update(&s.record); err != nil {
		slog.Warn("failed to flag record invalid", "id", s.record.ID, "error", err)
	}
	s.state = types.SessionFailed
	s.lastErr = cause
	s.stopTicksLocked()
	s.publishLocked()
	s.mu.Unlock()
}
