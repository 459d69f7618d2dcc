// Package encoder commits raw sample buffers, in order, to a compressed
// audio file through an FFmpeg subprocess.
package encoder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/ffmpeg"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/types"
)

// queueDepth bounds the submit queue. Ready() reports false when the queue
// is full; callers drop buffers then rather than queueing without bound.
const queueDepth = 64

// Result is the outcome of finishing a sink, latched on first Finish so
// repeated calls observe the same answer.
type Result struct {
	// Timeline is the encoded timeline length: the last rewritten PTS plus
	// one frame. Zero when nothing was encoded or the writer failed.
	Timeline time.Duration
	// Err is non-nil when the writer entered a failed state or the flush
	// did not complete. The partial file is left on disk for diagnostics.
	Err error
}

// Opener creates a sink for an output path. Indirection for tests.
type Opener func(path string, codec types.Codec) (*Sink, error)

// Sink accepts raw sample buffers and encodes them to one output file.
// Submissions are only valid between Begin and Finish.
type Sink struct {
	path   string
	preset types.CodecPreset

	proc  *ffmpeg.Process
	queue chan types.SampleBuffer

	mu         sync.Mutex
	began      bool
	finishing  bool
	failed     bool
	failure    error
	lastPTS    time.Duration
	hasPTS     bool
	dropped    int64
	writerDone chan struct{}

	finishOnce sync.Once
	result     Result
}

// NewOpener returns an Opener that spawns FFmpeg encoder processes.
func NewOpener(ffmpegPath string) Opener {
	return func(path string, codec types.Codec) (*Sink, error) {
		return Open(ffmpegPath, path, codec)
	}
}

// Open creates the output file's encoder process. The file itself is created
// by FFmpeg, so an unwritable path surfaces as ErrEncodeSetupFailed here.
func Open(ffmpegPath, path string, codec types.Codec) (*Sink, error) {
	preset := types.PresetFor(codec)

	args := ffmpeg.BaseInputArgs()
	args = append(args, "-c:a")
	args = append(args, preset.Args...)
	args = append(args,
		"-f", preset.Format,
		"-hide_banner",
		"-loglevel", "warning",
		"-y",
		path,
	)

	proc, err := ffmpeg.StartProcess(ffmpegPath, args)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrEncodeSetupFailed, err)
	}

	return &Sink{
		path:       path,
		preset:     preset,
		proc:       proc,
		queue:      make(chan types.SampleBuffer, queueDepth),
		writerDone: make(chan struct{}),
	}, nil
}

// Path returns the output file path.
func (s *Sink) Path() string {
	return s.path
}

// Begin declares time zero for the output timeline and starts the writer.
// Must be called exactly once, before the first Submit.
func (s *Sink) Begin(reference time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.began {
		return
	}
	s.began = true

	slog.Info("encoding started", "file", s.path, "codec", s.preset.Format, "reference", reference)
	go s.writeLoop()
}

// Ready is the pull-based backpressure signal: it reports whether the sink
// can accept another buffer without queueing it indefinitely. Callers must
// check it before each Submit and drop the buffer when false.
func (s *Sink) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.began || s.finishing || s.failed {
		return false
	}
	return len(s.queue) < cap(s.queue)
}

// Submit enqueues one buffer for encoding. Buffers must arrive in strictly
// increasing PTS order; a decreasing timestamp is a programming error in the
// caller and is rejected. A full queue drops the buffer silently, which is
// the designed lossy-degradation path, not an error.
func (s *Sink) Submit(buf types.SampleBuffer) error {
	s.mu.Lock()
	if !s.began {
		s.mu.Unlock()
		return fmt.Errorf("submit before begin")
	}
	if s.finishing {
		s.mu.Unlock()
		return fmt.Errorf("submit after finish")
	}
	if s.failed {
		failure := s.failure
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrEncodeFailed, failure)
	}
	if s.hasPTS && buf.PTS <= s.lastPTS {
		s.mu.Unlock()
		return fmt.Errorf("non-monotonic timestamp: %v after %v", buf.PTS, s.lastPTS)
	}

	select {
	case s.queue <- buf:
		s.lastPTS = buf.PTS
		s.hasPTS = true
	default:
		s.dropped++
	}
	s.mu.Unlock()
	return nil
}

// Failed reports whether the underlying writer entered a failed state
// (disk full, permission revoked).
func (s *Sink) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// writeLoop drains the queue into the encoder's stdin. After a write error
// it keeps draining so Finish never blocks on a full queue.
func (s *Sink) writeLoop() {
	defer close(s.writerDone)

	for buf := range s.queue {
		s.mu.Lock()
		failed := s.failed
		s.mu.Unlock()
		if failed {
			continue
		}

		if _, err := s.proc.Stdin.Write(buf.PCM); err != nil {
			s.mu.Lock()
			s.failed = true
			s.failure = err
			s.mu.Unlock()
			slog.Error("encoder write failed", "file", s.path, "error", err)
		}
	}
}

// Finish marks that no more input will arrive, flushes remaining encoded
// data, and closes the file. It is idempotent: repeated calls return the
// first outcome without re-running teardown. The file is durable only after
// Finish returns without error.
func (s *Sink) Finish(ctx context.Context) Result {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.finishing = true
		began := s.began
		dropped := s.dropped
		s.mu.Unlock()

		close(s.queue)
		if began {
			<-s.writerDone
		}

		if err := s.proc.Stdin.Close(); err != nil {
			slog.Warn("failed to close encoder stdin", "file", s.path, "error", err)
		}

		waitErr := s.proc.Await(ctx, types.FinishTimeout)

		s.mu.Lock()
		failed := s.failed
		failure := s.failure
		timeline := time.Duration(0)
		if s.hasPTS {
			timeline = s.lastPTS + types.FrameDuration
		}
		s.mu.Unlock()

		switch {
		case failed:
			s.result = Result{Err: fmt.Errorf("%w: %s", types.ErrEncodeFailed, failure)}
		case waitErr != nil:
			s.result = Result{Err: fmt.Errorf("%w: %s", types.ErrEncodeFailed, waitErr)}
		default:
			s.result = Result{Timeline: timeline}
		}

		if dropped > 0 {
			slog.Warn("buffers dropped under backpressure", "file", s.path, "count", dropped)
		}
		if s.result.Err != nil {
			slog.Error("encoding finished with error", "file", s.path, "error", s.result.Err)
		} else {
			slog.Info("encoding finished", "file", s.path, "timeline", timeline)
		}
	})

	return s.result
}
