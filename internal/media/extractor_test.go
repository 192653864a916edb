package media

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

func newHookedExtractor(t *testing.T) *Extractor {
	t.Helper()
	return NewExtractor("ffmpeg", "ffprobe", t.TempDir(), nil)
}

func TestGenerateThumbnailFirstAttempt(t *testing.T) {
	e := newHookedExtractor(t)
	var offsets []float64
	e.grabFrame = func(ctx context.Context, videoPath, outPath string, offset float64) error {
		offsets = append(offsets, offset)
		return nil
	}
	e.isSingleColor = func(path string) (bool, error) { return false, nil }

	out, err := e.GenerateThumbnail(context.Background(), "clip.mp4", "somelogin", "somelogin_01012024-120000.mp4", 3600)
	if err != nil {
		t.Fatalf("GenerateThumbnail: %v", err)
	}
	if filepath.Base(out) != "somelogin_01012024-120000.jpg" {
		t.Fatalf("thumbnail name = %s", filepath.Base(out))
	}
	if len(offsets) != 1 || offsets[0] != 300 {
		t.Fatalf("offsets = %v, want [300]", offsets)
	}
}

func TestGenerateThumbnailRetriesOnSolidColor(t *testing.T) {
	e := newHookedExtractor(t)
	var offsets []float64
	e.grabFrame = func(ctx context.Context, videoPath, outPath string, offset float64) error {
		offsets = append(offsets, offset)
		return nil
	}
	solidUntil := 3
	e.isSingleColor = func(path string) (bool, error) {
		return len(offsets) <= solidUntil, nil
	}

	if _, err := e.GenerateThumbnail(context.Background(), "clip.mp4", "somelogin", "clip.mp4", 3600); err != nil {
		t.Fatalf("GenerateThumbnail: %v", err)
	}
	want := []float64{300, 360, 420, 480}
	if len(offsets) != len(want) {
		t.Fatalf("offsets = %v, want %v", offsets, want)
	}
	for i := range want {
		if offsets[i] != want[i] {
			t.Fatalf("offsets = %v, want %v", offsets, want)
		}
	}
}

func TestGenerateThumbnailAttemptBound(t *testing.T) {
	e := newHookedExtractor(t)
	var offsets []float64
	e.grabFrame = func(ctx context.Context, videoPath, outPath string, offset float64) error {
		offsets = append(offsets, offset)
		return nil
	}
	e.isSingleColor = func(path string) (bool, error) { return true, nil }

	_, err := e.GenerateThumbnail(context.Background(), "clip.mp4", "somelogin", "clip.mp4", 3600)
	if !errors.Is(err, ErrSingleColor) {
		t.Fatalf("err = %v, want ErrSingleColor", err)
	}
	want := []float64{300, 360, 420, 480, 540}
	if len(offsets) != len(want) {
		t.Fatalf("made %d attempts, want %d", len(offsets), len(want))
	}
	for i := range want {
		if offsets[i] != want[i] {
			t.Fatalf("offsets = %v, want %v", offsets, want)
		}
	}
}

func TestGenerateThumbnailWrapsNearClipEnd(t *testing.T) {
	// A 200s clip is shorter than the 300s first offset: every attempt wraps
	// back to duration - step.
	e := newHookedExtractor(t)
	var offsets []float64
	e.grabFrame = func(ctx context.Context, videoPath, outPath string, offset float64) error {
		offsets = append(offsets, offset)
		return nil
	}
	e.isSingleColor = func(path string) (bool, error) { return false, nil }

	if _, err := e.GenerateThumbnail(context.Background(), "clip.mp4", "somelogin", "clip.mp4", 200); err != nil {
		t.Fatalf("GenerateThumbnail: %v", err)
	}
	if len(offsets) != 1 || offsets[0] != 140 {
		t.Fatalf("offsets = %v, want [140]", offsets)
	}
}

func TestGenerateThumbnailWrapClampsToZero(t *testing.T) {
	// Clips shorter than one step wrap to offset 0 rather than negative.
	e := newHookedExtractor(t)
	var offsets []float64
	e.grabFrame = func(ctx context.Context, videoPath, outPath string, offset float64) error {
		offsets = append(offsets, offset)
		return nil
	}
	e.isSingleColor = func(path string) (bool, error) { return false, nil }

	if _, err := e.GenerateThumbnail(context.Background(), "clip.mp4", "somelogin", "clip.mp4", 30); err != nil {
		t.Fatalf("GenerateThumbnail: %v", err)
	}
	if len(offsets) != 1 || offsets[0] != 0 {
		t.Fatalf("offsets = %v, want [0]", offsets)
	}
}

func writeJPEG(t *testing.T, path string, w, h int, pix func(x, y int) color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, pix(x, y))
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatal(err)
	}
}

func TestDecodeIsSingleColor(t *testing.T) {
	dir := t.TempDir()

	solid := filepath.Join(dir, "solid.jpg")
	writeJPEG(t, solid, 64, 64, func(x, y int) color.Color {
		return color.RGBA{R: 20, G: 20, B: 20, A: 255}
	})
	got, err := decodeIsSingleColor(solid)
	if err != nil {
		t.Fatalf("decodeIsSingleColor(solid): %v", err)
	}
	if !got {
		t.Fatal("solid frame not flagged")
	}

	varied := filepath.Join(dir, "varied.jpg")
	writeJPEG(t, varied, 64, 64, func(x, y int) color.Color {
		if x < 32 {
			return color.RGBA{R: 255, A: 255}
		}
		return color.RGBA{B: 255, A: 255}
	})
	got, err = decodeIsSingleColor(varied)
	if err != nil {
		t.Fatalf("decodeIsSingleColor(varied): %v", err)
	}
	if got {
		t.Fatal("varied frame flagged as solid")
	}
}

func TestSizeMB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, make([]byte, 3*1024*1024), 0o644); err != nil {
		t.Fatal(err)
	}
	size, err := SizeMB(path)
	if err != nil {
		t.Fatalf("SizeMB: %v", err)
	}
	if size != 3 {
		t.Fatalf("size = %v, want 3", size)
	}

	if _, err := SizeMB(filepath.Join(t.TempDir(), "missing.mp4")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
