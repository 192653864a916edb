package download

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/streamvault/backend/internal/jobs"
	"github.com/streamvault/backend/internal/media"
	"github.com/streamvault/backend/internal/models"
)

// fakeStore keeps videos in memory with the same active-job semantics as the
// SQL repository.
type fakeStore struct {
	mu     sync.Mutex
	videos []*models.Video
}

func (s *fakeStore) Create(ctx context.Context, v *models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.ID = uuid.New()
	cp := *v
	s.videos = append(s.videos, &cp)
	return nil
}

func (s *fakeStore) FindActiveByBroadcaster(ctx context.Context, broadcasterID string) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.videos {
		if v.BroadcasterID == broadcasterID && !v.Status.Terminal() {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) MarkRunning(ctx context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.videos {
		if v.JobID == jobID {
			v.Status = models.JobStatusRunning
			return nil
		}
	}
	return errors.New("job not found")
}

func (s *fakeStore) FinalizeByFilename(ctx context.Context, filename string, downloadedAt time.Time, thumbnail string, size, duration float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.videos {
		if v.Filename == filename {
			v.Status = models.JobStatusDone
			v.DownloadedAt = &downloadedAt
			v.Thumbnail = thumbnail
			v.Size = size
			v.Duration = duration
			return nil
		}
	}
	return errors.New("filename not found")
}

func (s *fakeStore) FailByFilename(ctx context.Context, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.videos {
		if v.Filename == filename {
			v.Status = models.JobStatusFailed
			return nil
		}
	}
	return errors.New("filename not found")
}

func (s *fakeStore) byBroadcaster(broadcasterID string) []*models.Video {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Video
	for _, v := range s.videos {
		if v.BroadcasterID == broadcasterID {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	err   error
	block chan struct{} // when non-nil, Run waits until closed
}

func (r *fakeRunner) Run(ctx context.Context, url, formatSelector, outputPath string) error {
	r.mu.Lock()
	r.calls = append(r.calls, url+" "+formatSelector)
	r.mu.Unlock()
	if r.block != nil {
		<-r.block
	}
	return r.err
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fakeExtractor struct {
	result media.Result
}

func (e *fakeExtractor) Finish(ctx context.Context, videoPath, filename, channelLogin string) media.Result {
	return e.result
}

type fakeArchiver struct {
	mu       sync.Mutex
	enqueued []uuid.UUID
}

func (a *fakeArchiver) EnqueueArchive(ctx context.Context, videoID uuid.UUID, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enqueued = append(a.enqueued, videoID)
	return nil
}

func testRequest(broadcasterID, login string) *models.JobRequest {
	return &models.JobRequest{
		BroadcasterID:    broadcasterID,
		BroadcasterLogin: login,
		DisplayName:      strings.ToUpper(login),
		Quality:          models.QualityHigh,
		Snapshot: &models.StreamSnapshot{
			StreamID:    "9001",
			Title:       "test stream",
			Category:    "Just Chatting",
			ViewerCount: 42,
		},
	}
}

func newTestOrchestrator(t *testing.T, store *fakeStore, runner ProcessRunner, archive ArchiveEnqueuer) (*Orchestrator, *jobs.Registry) {
	t.Helper()
	registry := jobs.NewRegistry(nil, nil)
	o := NewOrchestrator(store, registry, runner,
		&fakeExtractor{result: media.Result{ThumbnailPath: "thumb.jpg", Duration: 3600, Size: 512.5}},
		archive, t.TempDir(), nil)
	return o, registry
}

func TestHandleDownloadSuccess(t *testing.T) {
	store := &fakeStore{}
	archiver := &fakeArchiver{}
	o, registry := newTestOrchestrator(t, store, &fakeRunner{}, archiver)

	jobID, err := o.HandleDownload(context.Background(), testRequest("123", "somelogin"))
	if err != nil {
		t.Fatalf("HandleDownload: %v", err)
	}

	status, err := registry.Status(jobID)
	if err != nil || status != models.JobStatusDone {
		t.Fatalf("job status = %s, err = %v", status, err)
	}

	vids := store.byBroadcaster("123")
	if len(vids) != 1 {
		t.Fatalf("stored %d videos, want 1", len(vids))
	}
	v := vids[0]
	if v.Status != models.JobStatusDone {
		t.Fatalf("video status = %s", v.Status)
	}
	if v.Duration != 3600 || v.Size != 512.5 || v.Thumbnail != "thumb.jpg" {
		t.Fatalf("metadata not applied: %+v", v)
	}
	if !strings.HasPrefix(v.Filename, "somelogin_") || !strings.HasSuffix(v.Filename, ".mp4") {
		t.Fatalf("filename = %s", v.Filename)
	}
	if v.Title != "test stream" || v.ViewerCount != 42 {
		t.Fatalf("snapshot fields not applied: %+v", v)
	}
	if len(archiver.enqueued) != 1 || archiver.enqueued[0] != v.ID {
		t.Fatalf("archive enqueued = %v", archiver.enqueued)
	}
}

func TestHandleDownloadProcessFailure(t *testing.T) {
	store := &fakeStore{}
	o, registry := newTestOrchestrator(t, store, &fakeRunner{err: errors.New("exit status 1")}, nil)

	jobID, err := o.HandleDownload(context.Background(), testRequest("123", "somelogin"))
	if err == nil {
		t.Fatal("expected process failure to propagate")
	}
	if status, _ := registry.Status(jobID); status != models.JobStatusFailed {
		t.Fatalf("job status = %s, want FAILED", status)
	}
	vids := store.byBroadcaster("123")
	if len(vids) != 1 || vids[0].Status != models.JobStatusFailed {
		t.Fatalf("stored videos = %+v", vids)
	}
}

func TestAdmissionRejectsSecondActiveJob(t *testing.T) {
	store := &fakeStore{}
	block := make(chan struct{})
	runner := &fakeRunner{block: block}
	o, _ := newTestOrchestrator(t, store, runner, nil)

	firstID, err := o.Launch(context.Background(), testRequest("123", "somelogin"))
	if err != nil {
		t.Fatalf("first launch: %v", err)
	}

	// Wait for the capture process to be running.
	deadline := time.Now().Add(2 * time.Second)
	for runner.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("capture never started")
		}
		time.Sleep(time.Millisecond)
	}

	conflictID, err := o.Launch(context.Background(), testRequest("123", "somelogin"))
	if !errors.Is(err, ErrAlreadyDownloading) {
		t.Fatalf("second launch err = %v, want ErrAlreadyDownloading", err)
	}
	if conflictID != firstID {
		t.Fatalf("conflicting job id = %s, want %s", conflictID, firstID)
	}

	// A different broadcaster is unaffected.
	if _, err := o.Launch(context.Background(), testRequest("456", "otherlogin")); err != nil {
		t.Fatalf("other broadcaster launch: %v", err)
	}

	close(block)
}

func TestAdmissionReopensAfterTerminalState(t *testing.T) {
	store := &fakeStore{}
	o, _ := newTestOrchestrator(t, store, &fakeRunner{err: errors.New("boom")}, nil)

	if _, err := o.HandleDownload(context.Background(), testRequest("123", "somelogin")); err == nil {
		t.Fatal("expected first job to fail")
	}
	// FAILED is terminal, so admission is open again.
	res, err := o.TryAdmit(context.Background(), "123")
	if err != nil {
		t.Fatalf("TryAdmit: %v", err)
	}
	if !res.Admitted {
		t.Fatalf("admission closed after terminal job: %+v", res)
	}
}

func TestConcurrentLaunchAdmitsExactlyOne(t *testing.T) {
	store := &fakeStore{}
	block := make(chan struct{})
	o, _ := newTestOrchestrator(t, store, &fakeRunner{block: block}, nil)
	defer close(block)

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Launch(context.Background(), testRequest("123", "somelogin"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	admitted, conflicted := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, ErrAlreadyDownloading):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if admitted != 1 || conflicted != n-1 {
		t.Fatalf("admitted=%d conflicted=%d, want 1/%d", admitted, conflicted, n-1)
	}
}

func TestFormatSelector(t *testing.T) {
	cases := []struct {
		q    models.Quality
		want string
	}{
		{models.QualityLow, "best[height<=480]"},
		{models.QualityMedium, "best[height<=720]"},
		{models.QualityHigh, "best[height<=1080]"},
		{models.Quality("bogus"), "best[height<=1080]"},
	}
	for _, c := range cases {
		if got := FormatSelector(c.q); got != c.want {
			t.Errorf("FormatSelector(%s) = %s, want %s", c.q, got, c.want)
		}
	}
}
