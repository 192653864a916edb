// Package capture supervises the external capture binary for one job.
package capture

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// progressMarkers are substrings of capture-tool stderr lines that indicate
// routine progress rather than problems. The tool's stderr format is not
// contractually stable, so this filtering is a logging heuristic only; the
// exit code alone decides success.
var progressMarkers = []string{"Skip", "Opening", "frame"}

// ResolveBinary returns the capture binary to use: the explicit configured
// path when set, otherwise the platform default. Resolved once at startup.
func ResolveBinary(configured string) string {
	if configured != "" {
		return configured
	}
	if runtime.GOOS == "windows" {
		return "yt-dlp.exe"
	}
	return "yt-dlp"
}

// Runner spawns the capture binary and reports success only on exit code 0.
type Runner struct {
	binary string
	logger *zap.Logger
}

// NewRunner creates a process runner for the given capture binary.
func NewRunner(binary string, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{binary: binary, logger: logger}
}

// Run captures url with the given format selector into outputPath, streaming
// stderr as it arrives. Non-progress stderr lines are logged at error level
// but never abort the process; only a non-zero exit fails the run.
func (r *Runner) Run(ctx context.Context, url, formatSelector, outputPath string) error {
	cmd := exec.CommandContext(ctx, r.binary,
		"-f", formatSelector,
		"-o", outputPath,
		"--no-part",
		url,
	)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", r.binary, err)
	}

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if isProgressLine(line) {
			r.logger.Debug("capture progress", zap.String("line", line), zap.String("url", url))
			continue
		}
		r.logger.Error("capture stderr", zap.String("line", line), zap.String("url", url))
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("capture %s: %w", url, err)
	}
	return nil
}

func isProgressLine(line string) bool {
	for _, marker := range progressMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}
