// Package ffmpeg provides shared FFmpeg process management utilities.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/types"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/util"
)

// Process represents a running FFmpeg subprocess fed over stdin.
type Process struct {
	Cmd    *exec.Cmd
	Cancel context.CancelFunc
	Stdin  io.WriteCloser
	Stderr *bytes.Buffer
}

// BaseInputArgs returns FFmpeg arguments for raw PCM input on stdin.
func BaseInputArgs() []string {
	return []string{
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", types.SampleRate),
		"-ac", fmt.Sprintf("%d", types.Channels),
		"-i", "pipe:0",
	}
}

// StartProcess launches an FFmpeg subprocess.
func StartProcess(ffmpegPath string, args []string) (*Process, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		if closeErr := stdinPipe.Close(); closeErr != nil {
			slog.Warn("failed to close stdin pipe", "error", closeErr)
		}
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &Process{
		Cmd:    cmd,
		Cancel: cancel,
		Stdin:  stdinPipe,
		Stderr: &stderr,
	}, nil
}

// Await waits for the process to exit, killing it when the timeout or the
// context expires. The returned error carries the last stderr line when the
// process exited unsuccessfully.
func (p *Process) Await(ctx context.Context, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- p.Cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			if msg := util.ExtractLastError(p.Stderr.String()); msg != "" {
				return fmt.Errorf("%s: %w", msg, err)
			}
			return err
		}
		return nil
	case <-ctx.Done():
		p.Cancel()
		<-done
		return ctx.Err()
	case <-time.After(timeout):
		slog.Warn("ffmpeg did not exit in time, forcing kill")
		p.Cancel()
		<-done
		return fmt.Errorf("ffmpeg shutdown timeout")
	}
}
