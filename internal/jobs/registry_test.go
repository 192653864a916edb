package jobs

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/streamvault/backend/internal/models"
)

type recordingPublisher struct {
	events []models.JobStatus
}

func (p *recordingPublisher) PublishJobEvent(jobID uuid.UUID, broadcasterID string, status models.JobStatus) {
	p.events = append(p.events, status)
}

func TestRegistryLifecycle(t *testing.T) {
	pub := &recordingPublisher{}
	r := NewRegistry(pub, nil)
	id := uuid.New()

	r.Create(id, "123")
	if status, err := r.Status(id); err != nil || status != models.JobStatusPending {
		t.Fatalf("after create: status=%s err=%v", status, err)
	}

	if err := r.Transition(id, models.JobStatusRunning); err != nil {
		t.Fatalf("pending->running: %v", err)
	}
	if err := r.Transition(id, models.JobStatusDone); err != nil {
		t.Fatalf("running->done: %v", err)
	}
	if status, _ := r.Status(id); status != models.JobStatusDone {
		t.Fatalf("final status = %s", status)
	}

	want := []models.JobStatus{models.JobStatusPending, models.JobStatusRunning, models.JobStatusDone}
	if len(pub.events) != len(want) {
		t.Fatalf("published %d events, want %d", len(pub.events), len(want))
	}
	for i, s := range want {
		if pub.events[i] != s {
			t.Fatalf("event %d = %s, want %s", i, pub.events[i], s)
		}
	}
}

func TestRegistryInvalidTransitions(t *testing.T) {
	r := NewRegistry(nil, nil)
	id := uuid.New()
	r.Create(id, "123")

	// PENDING cannot jump straight to DONE.
	if err := r.Transition(id, models.JobStatusDone); err == nil {
		t.Fatal("expected error for pending->done")
	}

	if err := r.Transition(id, models.JobStatusFailed); err != nil {
		t.Fatalf("pending->failed: %v", err)
	}
	// Terminal states accept no further transitions.
	if err := r.Transition(id, models.JobStatusRunning); err == nil {
		t.Fatal("expected error for failed->running")
	}
}

func TestRegistryUnknownJob(t *testing.T) {
	r := NewRegistry(nil, nil)
	if _, err := r.Status(uuid.New()); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("Status() err = %v, want ErrUnknownJob", err)
	}
	if err := r.Transition(uuid.New(), models.JobStatusRunning); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("Transition() err = %v, want ErrUnknownJob", err)
	}
}
