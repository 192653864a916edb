package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/streamvault/backend/internal/models"
)

type fakeRetentionStore struct {
	expired []models.Video
	listErr error
	marked  []uuid.UUID
}

func (s *fakeRetentionStore) ListExpiredRediffs(ctx context.Context) ([]models.Video, error) {
	return s.expired, s.listErr
}

func (s *fakeRetentionStore) MarkRediffDeleted(ctx context.Context, id uuid.UUID) error {
	s.marked = append(s.marked, id)
	return nil
}

type fakeRemover struct {
	deleted []string
	err     error
}

func (r *fakeRemover) DeleteObject(ctx context.Context, bucket, key string) error {
	if r.err != nil {
		return r.err
	}
	r.deleted = append(r.deleted, key)
	return nil
}

func (r *fakeRemover) CapturesBucket() string { return "test-bucket" }

func writeClip(t *testing.T, dir, login, filename string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, login), 0o750); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, login, filename)
	if err := os.WriteFile(path, []byte("clip"), 0o640); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSweepRemovesExpiredRediff(t *testing.T) {
	dir := t.TempDir()
	path := writeClip(t, dir, "somelogin", "somelogin_01012024-120000.mp4")

	video := models.Video{
		ID:               uuid.New(),
		BroadcasterLogin: "somelogin",
		Filename:         "somelogin_01012024-120000.mp4",
		ArchiveKey:       "captures/abc.mp4",
	}
	store := &fakeRetentionStore{expired: []models.Video{video}}
	remover := &fakeRemover{}

	n, err := NewRetention(store, remover, dir, nil).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("removed = %d, want 1", n)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("clip still exists: %v", err)
	}
	if len(remover.deleted) != 1 || remover.deleted[0] != "captures/abc.mp4" {
		t.Fatalf("deleted objects = %v", remover.deleted)
	}
	if len(store.marked) != 1 || store.marked[0] != video.ID {
		t.Fatalf("marked = %v", store.marked)
	}
}

func TestSweepMissingLocalFileStillMarks(t *testing.T) {
	video := models.Video{ID: uuid.New(), BroadcasterLogin: "gone", Filename: "gone.mp4"}
	store := &fakeRetentionStore{expired: []models.Video{video}}

	n, err := NewRetention(store, nil, t.TempDir(), nil).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("removed = %d, want 1", n)
	}
	if len(store.marked) != 1 {
		t.Fatalf("marked = %v", store.marked)
	}
}

func TestSweepObjectDeleteFailureLeavesUnmarked(t *testing.T) {
	dir := t.TempDir()
	writeClip(t, dir, "somelogin", "clip.mp4")

	video := models.Video{
		ID:               uuid.New(),
		BroadcasterLogin: "somelogin",
		Filename:         "clip.mp4",
		ArchiveKey:       "captures/abc.mp4",
	}
	store := &fakeRetentionStore{expired: []models.Video{video}}
	remover := &fakeRemover{err: os.ErrPermission}

	n, err := NewRetention(store, remover, dir, nil).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 0 {
		t.Fatalf("removed = %d, want 0", n)
	}
	if len(store.marked) != 0 {
		t.Fatalf("marked = %v, want none", store.marked)
	}
}

func TestSweepSkipsArchiveWithoutRemover(t *testing.T) {
	dir := t.TempDir()
	writeClip(t, dir, "somelogin", "clip.mp4")

	video := models.Video{
		ID:               uuid.New(),
		BroadcasterLogin: "somelogin",
		Filename:         "clip.mp4",
		ArchiveKey:       "captures/abc.mp4",
	}
	store := &fakeRetentionStore{expired: []models.Video{video}}

	n, err := NewRetention(store, nil, dir, nil).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("removed = %d, want 1", n)
	}
}
