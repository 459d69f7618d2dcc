package types_test

import (
	"testing"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/types"
)

func TestPresetForFallsBackToAAC(t *testing.T) {
	got := types.PresetFor("wav")
	if got.Extension != "m4a" {
		t.Errorf("PresetFor(wav).Extension = %s, want m4a", got.Extension)
	}
	if got := types.PresetFor(types.CodecMP3); got.Extension != "mp3" {
		t.Errorf("PresetFor(mp3).Extension = %s, want mp3", got.Extension)
	}
}

func TestSessionStateActive(t *testing.T) {
	active := []types.SessionState{
		types.SessionStarting, types.SessionRecording, types.SessionPaused,
		types.SessionStopping, types.SessionFinalizing,
	}
	for _, s := range active {
		if !s.Active() {
			t.Errorf("%s.Active() = false, want true", s)
		}
	}

	inactive := []types.SessionState{
		types.SessionIdle, types.SessionCompleted, types.SessionFailed,
	}
	for _, s := range inactive {
		if s.Active() {
			t.Errorf("%s.Active() = true, want false", s)
		}
	}
}

func TestFrameConstantsConsistent(t *testing.T) {
	// 50 frames of 20ms each make one second of PCM.
	if types.FrameBytes*50 != types.BytesPerSecond {
		t.Errorf("FrameBytes*50 = %d, want %d", types.FrameBytes*50, types.BytesPerSecond)
	}
}
