package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	// thumbnailOffset is the first screenshot timestamp.
	thumbnailOffset = 300.0
	// thumbnailStep advances the timestamp between retries.
	thumbnailStep = 60.0
	// thumbnailAttempts bounds the retry loop.
	thumbnailAttempts = 5
)

// ErrSingleColor signals that a grabbed frame is a solid color, which for
// live captures usually means an intro card or dead air.
var ErrSingleColor = errors.New("image is a single color")

// Result holds the metadata extracted from a finished capture. Fields that
// failed to extract keep their zero value; extraction failures never block
// finalization.
type Result struct {
	ThumbnailPath string
	Duration      float64
	Size          float64
}

// Extractor probes finished captures. The grab and solid-color hooks exist so
// tests can run without ffmpeg on the path.
type Extractor struct {
	ffmpeg   string
	ffprobe  string
	thumbDir string
	logger   *zap.Logger

	grabFrame     func(ctx context.Context, videoPath, outPath string, offset float64) error
	isSingleColor func(path string) (bool, error)
}

// NewExtractor creates a metadata extractor writing thumbnails under
// thumbDir.
func NewExtractor(ffmpeg, ffprobe, thumbDir string, logger *zap.Logger) *Extractor {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Extractor{ffmpeg: ffmpeg, ffprobe: ffprobe, thumbDir: thumbDir, logger: logger}
	e.grabFrame = e.ffmpegGrabFrame
	e.isSingleColor = decodeIsSingleColor
	return e
}

// Finish extracts duration, thumbnail and size for a finished capture. Each
// sub-step is isolated: a failure in one is logged and does not abort the
// others.
func (e *Extractor) Finish(ctx context.Context, videoPath, filename, channelLogin string) Result {
	var res Result

	res.Duration = e.Duration(ctx, videoPath)

	thumb, err := e.GenerateThumbnail(ctx, videoPath, channelLogin, filename, res.Duration)
	if err != nil {
		e.logger.Error("thumbnail generation failed", zap.Error(err), zap.String("video", videoPath))
	} else {
		res.ThumbnailPath = thumb
	}

	size, err := SizeMB(videoPath)
	if err != nil {
		e.logger.Error("size extraction failed", zap.Error(err), zap.String("video", videoPath))
	} else {
		res.Size = size
	}
	return res
}

// Duration probes the container duration in seconds. Best-effort: returns 0
// when the probe fails rather than failing the pipeline.
func (e *Extractor) Duration(ctx context.Context, videoPath string) float64 {
	probe, err := Probe(ctx, e.ffprobe, videoPath)
	if err != nil {
		e.logger.Error("duration probe failed", zap.Error(err), zap.String("video", videoPath))
		return 0
	}
	return probe.FormatDuration()
}

// GenerateThumbnail grabs a screenshot at a fixed offset, retrying with
// advancing timestamps when the frame is a single solid color. Returns ""
// with an error if every attempt fails; thumbnails are optional.
func (e *Extractor) GenerateThumbnail(ctx context.Context, videoPath, channelLogin, filename string, duration float64) (string, error) {
	dir := filepath.Join(e.thumbDir, channelLogin)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("thumbnail dir: %w", err)
	}
	outPath := filepath.Join(dir, strings.TrimSuffix(filename, filepath.Ext(filename))+".jpg")

	var lastErr error
	for attempt := 0; attempt < thumbnailAttempts; attempt++ {
		offset := thumbnailOffset + float64(attempt)*thumbnailStep
		if duration > 0 && offset >= duration {
			// Wrap back near the end of the clip.
			offset = math.Max(duration-thumbnailStep, 0)
		}
		if err := e.grabFrame(ctx, videoPath, outPath, offset); err != nil {
			lastErr = err
			continue
		}
		solid, err := e.isSingleColor(outPath)
		if err != nil {
			lastErr = err
			continue
		}
		if solid {
			lastErr = ErrSingleColor
			continue
		}
		return outPath, nil
	}
	_ = os.Remove(outPath)
	return "", fmt.Errorf("thumbnail after %d attempts: %w", thumbnailAttempts, lastErr)
}

func (e *Extractor) ffmpegGrabFrame(ctx context.Context, videoPath, outPath string, offset float64) error {
	cmd := exec.CommandContext(ctx, e.ffmpeg,
		"-ss", fmt.Sprintf("%.0f", offset),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		"-y",
		outPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("grab frame at %.0fs: %w: %s", offset, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// decodeIsSingleColor decodes the frame and samples a pixel grid; the frame
// is solid when every sample matches the first.
func decodeIsSingleColor(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return false, fmt.Errorf("decode frame: %w", err)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return true, nil
	}
	const grid = 16
	stepX := max(bounds.Dx()/grid, 1)
	stepY := max(bounds.Dy()/grid, 1)
	r0, g0, b0, _ := img.At(bounds.Min.X, bounds.Min.Y).RGBA()
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			r, g, b, _ := img.At(x, y).RGBA()
			if r != r0 || g != g0 || b != b0 {
				return false, nil
			}
		}
	}
	return true, nil
}

// SizeMB stats the file and converts bytes to MB, rounded to 2 decimals.
func SizeMB(path string) (float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	mb := float64(info.Size()) / (1024 * 1024)
	return math.Round(mb*100) / 100, nil
}
