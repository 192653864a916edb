// Package media probes finished captures for metadata, generates thumbnails,
// and repairs malformed containers.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeResult is the parsed ffprobe output for one file.
type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

// ProbeStream describes one stream in the container.
type ProbeStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// ProbeFormat is the container-level metadata.
type ProbeFormat struct {
	Filename string `json:"filename"`
	Duration string `json:"duration"`
	Size     string `json:"size"`
}

// Probe runs ffprobe against path and decodes its JSON output.
func Probe(ctx context.Context, binary, path string) (ProbeResult, error) {
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return ProbeResult{}, errors.New("probe: empty path")
	}
	cmd := exec.CommandContext(ctx, binary,
		"-v", "error", "-hide_banner",
		"-show_format", "-show_streams",
		"-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(output)))
	}
	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// FormatDuration returns the container duration in seconds, or 0 when
// unavailable.
func (r ProbeResult) FormatDuration() float64 {
	return parseSeconds(r.Format.Duration)
}

// VideoStreamDuration returns the primary video stream's duration in
// seconds, or 0 when unavailable.
func (r ProbeResult) VideoStreamDuration() float64 {
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, "video") {
			return parseSeconds(s.Duration)
		}
	}
	return 0
}

func parseSeconds(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}
