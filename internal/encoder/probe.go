package encoder

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/types"
	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/util"
)

// Prober measures the authoritative duration of a finished audio file.
// Indirection for tests.
type Prober func(ctx context.Context, path string) (time.Duration, error)

// NewProber returns a Prober backed by ffprobe.
func NewProber(ffprobePath string) Prober {
	return func(ctx context.Context, path string) (time.Duration, error) {
		return ProbeDuration(ctx, ffprobePath, path)
	}
}

// probeOutput is the subset of ffprobe's JSON output we read.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeDuration reads the container duration of an audio file. The finished
// file is re-opened and measured rather than trusting any running counter,
// because buffers dropped under backpressure make wall-clock elapsed time
// and encoded duration diverge.
func ProbeDuration(ctx context.Context, ffprobePath, path string) (time.Duration, error) {
	probeCtx, cancel := context.WithTimeout(ctx, types.ProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, util.WrapError("probe duration", err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return 0, util.WrapError("parse probe output", err)
	}
	if parsed.Format.Duration == "" {
		return 0, fmt.Errorf("probe returned no duration for %s", path)
	}

	seconds, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil {
		return 0, util.WrapError("parse probe duration", err)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}
