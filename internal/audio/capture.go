package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/types"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/util"
)

// bufferChannelDepth bounds the capture-to-session handoff. When the session
// falls behind, frames are dropped here instead of blocking the reader.
const bufferChannelDepth = 32

// Source delivers an ordered sequence of timestamped sample buffers for as
// long as capture is active. Implementations must never block the delivery
// goroutine on a slow consumer.
type Source interface {
	// Start begins buffer delivery. It fails with types.ErrCaptureUnavailable
	// when no capturable device exists or the OS denies the request.
	Start(ctx context.Context) error

	// Stop is idempotent. When it returns, no further buffers will be
	// delivered and Buffers() is closed.
	Stop()

	// Buffers is the delivery channel. Closed after Stop or a capture failure.
	Buffers() <-chan types.SampleBuffer

	// Err reports at most one asynchronous capture failure after a
	// successful Start.
	Err() <-chan error
}

// Factory creates a Source whose first buffer carries the given PTS epoch.
// The session uses it to continue the timeline across pause/resume, where
// the underlying capture process is stopped and started again.
type Factory func(epoch time.Duration) Source

// CaptureSource captures system audio through an FFmpeg subprocess emitting
// s16le PCM on stdout. Presentation timestamps are derived from the byte
// offset in the stream plus the configured epoch.
type CaptureSource struct {
	ffmpegPath string
	device     string
	epoch      time.Duration

	mu      sync.Mutex
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	stderr  *bytes.Buffer
	started bool
	stopped bool

	buffers    chan types.SampleBuffer
	errCh      chan error
	readerDone chan struct{}
	closeOnce  sync.Once
}

// closeDelivery closes the delivery channels exactly once, whether the
// reader exits, Start fails, or Stop runs before Start.
func (s *CaptureSource) closeDelivery() {
	s.closeOnce.Do(func() {
		close(s.buffers)
		close(s.readerDone)
	})
}

// NewCaptureSource returns an unstarted capture source. An empty device
// selects the platform default.
func NewCaptureSource(ffmpegPath, device string, epoch time.Duration) *CaptureSource {
	return &CaptureSource{
		ffmpegPath: ffmpegPath,
		device:     device,
		epoch:      epoch,
		buffers:    make(chan types.SampleBuffer, bufferChannelDepth),
		errCh:      make(chan error, 1),
		readerDone: make(chan struct{}),
	}
}

// NewFactory returns a Factory producing FFmpeg capture sources.
func NewFactory(ffmpegPath, device string) Factory {
	return func(epoch time.Duration) Source {
		return NewCaptureSource(ffmpegPath, device, epoch)
	}
}

// Start spawns the capture process and begins delivering buffers.
func (s *CaptureSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("capture source already started")
	}

	device := s.device
	if device == "" {
		cfg := getPlatformConfig()
		device = cfg.DefaultDevice
	}
	if device == "" {
		devices := Devices()
		if len(devices) == 0 {
			s.closeDelivery()
			return fmt.Errorf("%w: %s", types.ErrCaptureUnavailable, ErrNoAudioDevice)
		}
		device = devices[0].ID
	}

	cfg := getPlatformConfig()
	args := cfg.BuildArgs(device)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(runCtx, s.ffmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		s.closeDelivery()
		return fmt.Errorf("%w: create stdout pipe: %s", types.ErrCaptureUnavailable, err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		s.closeDelivery()
		return fmt.Errorf("%w: start capture: %s", types.ErrCaptureUnavailable, err)
	}

	s.cmd = cmd
	s.cancel = cancel
	s.stderr = &stderr
	s.started = true

	slog.Info("capture started", "device", device, "epoch", s.epoch)

	go s.readLoop(stdout)
	return nil
}

// readLoop slices the PCM stream into fixed frames, stamps them, and hands
// them off without ever blocking on the receiver.
func (s *CaptureSource) readLoop(stdout io.Reader) {
	defer s.closeDelivery()

	var bytesRead int64
	for {
		frame := make([]byte, types.FrameBytes)
		if _, err := io.ReadFull(stdout, frame); err != nil {
			s.mu.Lock()
			stopped := s.stopped
			stderr := ""
			if s.stderr != nil {
				stderr = util.ExtractLastError(s.stderr.String())
			}
			s.mu.Unlock()

			if stopped {
				return
			}

			// The process died underneath us: device unplugged, permission
			// revoked, or FFmpeg crashed.
			if stderr == "" {
				stderr = err.Error()
			}
			s.errCh <- fmt.Errorf("%w: %s", types.ErrCaptureInterrupted, stderr)
			return
		}

		pts := s.epoch + time.Duration(bytesRead)*time.Second/types.BytesPerSecond
		bytesRead += types.FrameBytes

		select {
		case s.buffers <- types.SampleBuffer{PTS: pts, PCM: frame}:
		default:
			// Receiver congested; dropping keeps the delivery path bounded.
		}
	}
}

// Stop terminates capture. Safe to call repeatedly and before Start; when it
// returns the delivery channel is closed and no further buffers arrive.
func (s *CaptureSource) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.readerDone
		return
	}
	s.stopped = true
	started := s.started
	cmd := s.cmd
	cancel := s.cancel
	s.mu.Unlock()

	if !started {
		// Never started: there is no reader to close the channels.
		s.closeDelivery()
		return
	}

	if cmd != nil && cmd.Process != nil {
		if err := util.GracefulSignal(cmd.Process); err != nil {
			slog.Warn("failed to signal capture process", "error", err)
		}
	}

	select {
	case <-s.readerDone:
	case <-time.After(types.ShutdownTimeout):
		slog.Warn("capture did not stop in time, forcing kill")
		if cancel != nil {
			cancel()
		}
		<-s.readerDone
	}

	if cmd != nil {
		_ = cmd.Wait()
	}
	if cancel != nil {
		cancel()
	}

	slog.Info("capture stopped")
}

// Buffers returns the delivery channel.
func (s *CaptureSource) Buffers() <-chan types.SampleBuffer {
	return s.buffers
}

// Err returns the asynchronous failure channel.
func (s *CaptureSource) Err() <-chan error {
	return s.errCh
}
