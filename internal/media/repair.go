package media

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// corruptionThreshold is the maximum tolerated discrepancy, in seconds,
// between the container duration and the primary video stream duration.
// Aborted live captures routinely leave containers whose format duration
// runs past the actual stream.
const corruptionThreshold = 50.0

// IsCorrupt flags a probe result whose format duration and video stream
// duration diverge by more than the threshold.
func IsCorrupt(probe ProbeResult) bool {
	return math.Abs(probe.FormatDuration()-probe.VideoStreamDuration()) > corruptionThreshold
}

// Repairer re-muxes malformed captures in place. Maintenance only; not part
// of the per-job critical path.
type Repairer struct {
	ffmpeg  string
	ffprobe string
	logger  *zap.Logger
}

// NewRepairer creates a corruption repairer.
func NewRepairer(ffmpeg, ffprobe string, logger *zap.Logger) *Repairer {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repairer{ffmpeg: ffmpeg, ffprobe: ffprobe, logger: logger}
}

// Repair probes path and, when flagged corrupt, stream-copies video and
// audio into a fresh container, validates the result, and atomically swaps
// it in. The original is never touched without a validated replacement.
// Returns (false, nil) when the file was not corrupt.
func (r *Repairer) Repair(ctx context.Context, path string) (repaired bool, err error) {
	probe, err := Probe(ctx, r.ffprobe, path)
	if err != nil {
		return false, fmt.Errorf("probe: %w", err)
	}
	if !IsCorrupt(probe) {
		return false, nil
	}
	r.logger.Info("corrupt container detected",
		zap.String("path", path),
		zap.Float64("format_duration", probe.FormatDuration()),
		zap.Float64("stream_duration", probe.VideoStreamDuration()))

	tmpPath := path + ".repair.mp4"
	cmd := exec.CommandContext(ctx, r.ffmpeg,
		"-i", path,
		"-c:v", "copy",
		"-c:a", "copy",
		"-y",
		tmpPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		_ = os.Remove(tmpPath)
		return false, fmt.Errorf("remux: %w: %s", err, strings.TrimSpace(string(output)))
	}

	fixed, err := Probe(ctx, r.ffprobe, tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return false, fmt.Errorf("probe repaired file: %w", err)
	}
	if IsCorrupt(fixed) {
		_ = os.Remove(tmpPath)
		return false, fmt.Errorf("repaired file still corrupt, original left untouched: %s", path)
	}

	oldPath := path + ".old"
	if err := os.Rename(path, oldPath); err != nil {
		_ = os.Remove(tmpPath)
		return false, fmt.Errorf("stash original: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		// Put the original back; the swap must be all or nothing.
		_ = os.Rename(oldPath, path)
		_ = os.Remove(tmpPath)
		return false, fmt.Errorf("swap repaired file: %w", err)
	}
	_ = os.Remove(oldPath)

	r.logger.Info("container repaired", zap.String("path", path))
	return true, nil
}
