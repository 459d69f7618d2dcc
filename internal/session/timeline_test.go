package session_test

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/session"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/types"
)

func TestTimelineNoPauseIsIdentity(t *testing.T) {
	var tl session.Timeline

	for i := range 10 {
		pts := time.Duration(i) * types.FrameDuration
		tl.Observe(pts)
		if got := tl.Rewrite(pts); got != pts {
			t.Fatalf("Rewrite(%v) = %v, want identity", pts, got)
		}
	}
	if tl.Accumulated() != 0 {
		t.Errorf("Accumulated() = %v, want 0", tl.Accumulated())
	}
}

func TestTimelineSinglePauseContiguity(t *testing.T) {
	var tl session.Timeline

	// Three frames, then a 500ms pause.
	var last time.Duration
	for i := range 3 {
		pts := time.Duration(i) * types.FrameDuration
		tl.Observe(pts)
		last = tl.Rewrite(pts)
	}

	tl.Pause()
	if !tl.Paused() {
		t.Fatal("Paused() = false after Pause")
	}

	resumePTS := 3*types.FrameDuration + 500*time.Millisecond
	tl.Resume(resumePTS)

	tl.Observe(resumePTS)
	got := tl.Rewrite(resumePTS)
	want := last + types.FrameDuration
	if got != want {
		t.Errorf("first resumed frame rewritten to %v, want %v", got, want)
	}
}

func TestTimelinePauseBeforeFirstBuffer(t *testing.T) {
	var tl session.Timeline

	tl.Pause()
	tl.Resume(200 * time.Millisecond)

	tl.Observe(200 * time.Millisecond)
	if got := tl.Rewrite(200 * time.Millisecond); got != 0 {
		t.Errorf("first frame after pre-buffer pause rewritten to %v, want 0", got)
	}
}

func TestTimelineResumeWithoutPauseIsNoop(t *testing.T) {
	var tl session.Timeline

	tl.Observe(0)
	tl.Resume(time.Second)
	if tl.Accumulated() != 0 {
		t.Errorf("Accumulated() = %v after spurious resume, want 0", tl.Accumulated())
	}
}

// TestTimelineGapFree drives random pause/resume cycles and checks the
// rewritten timeline advances by exactly one frame per buffer, with no gap
// or overlap at any pause boundary.
func TestTimelineGapFree(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var tl session.Timeline

		raw := time.Duration(0)
		var lastOut time.Duration
		first := true

		segments := rapid.IntRange(1, 6).Draw(t, "segments")
		for seg := range segments {
			frames := rapid.IntRange(1, 40).Draw(t, "frames")
			for range frames {
				tl.Observe(raw)
				out := tl.Rewrite(raw)
				if first {
					if out != 0 {
						t.Fatalf("first frame rewritten to %v, want 0", out)
					}
				} else if out != lastOut+types.FrameDuration {
					t.Fatalf("segment %d: rewritten %v after %v, want %v",
						seg, out, lastOut, lastOut+types.FrameDuration)
				}
				first = false
				lastOut = out
				raw += types.FrameDuration
			}

			if seg < segments-1 {
				tl.Pause()
				gapMs := rapid.Int64Range(0, 10_000).Draw(t, "gap_ms")
				raw += time.Duration(gapMs) * time.Millisecond
				tl.Resume(raw)
			}
		}
	})
}
