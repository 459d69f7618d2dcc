// Package session orchestrates one recording attempt: the state machine
// driving capture and encoding, and the timeline arithmetic that keeps the
// encoded output gap-free across pause/resume cycles.
package session

import (
	"time"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/types"
)

// Timeline remaps capture timestamps to remove paused intervals, so the
// encoder sees a strictly monotonic, contiguous timeline no matter how many
// pause cycles occurred. Stopping and restarting capture without this
// rewrite reintroduces discontinuities that encoders reject or that play
// back as glitches.
//
// Not safe for concurrent use; the session serializes access.
type Timeline struct {
	paused      bool
	pauseStart  time.Duration
	accumulated time.Duration
	lastPTS     time.Duration
	hasPTS      bool
}

// Observe records the raw PTS of a delivered buffer. Must be called before
// Rewrite for the same buffer.
func (t *Timeline) Observe(pts time.Duration) {
	t.lastPTS = pts
	t.hasPTS = true
}

// Pause marks the pause boundary. The pause begins after the last observed
// frame's playout, so the resumed timeline continues exactly one frame
// later. A pause before any buffer arrived is legal and anchors at zero.
func (t *Timeline) Pause() {
	if t.paused {
		return
	}
	t.paused = true
	if t.hasPTS {
		t.pauseStart = t.lastPTS + types.FrameDuration
	} else {
		t.pauseStart = 0
	}
}

// Resume folds the finished pause into the accumulator. resumePTS is the
// raw-timeline position at which capture restarts. A resume without a
// preceding pause is a no-op.
func (t *Timeline) Resume(resumePTS time.Duration) {
	if !t.paused {
		return
	}
	t.paused = false
	if resumePTS > t.pauseStart {
		t.accumulated += resumePTS - t.pauseStart
	}
}

// Rewrite maps a raw capture PTS onto the gap-free output timeline.
func (t *Timeline) Rewrite(pts time.Duration) time.Duration {
	return pts - t.accumulated
}

// Accumulated returns the total paused duration folded in so far.
func (t *Timeline) Accumulated() time.Duration {
	return t.accumulated
}

// Paused reports whether a pause is in progress.
func (t *Timeline) Paused() bool {
	return t.paused
}

// Reset returns the timeline to its initial state for a new attempt.
func (t *Timeline) Reset() {
	*t = Timeline{}
}
