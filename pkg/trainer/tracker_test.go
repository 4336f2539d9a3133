package trainer

import (
	"errors"
	"testing"
)

func TestCreateStartsQueued(t *testing.T) {
	tr := NewTracker(nil)

	job, err := tr.Create(CreateJobInput{Name: "Sarah", SourceDurationSeconds: 9000})
	if err != nil {
		t.Fatalf("create returned error: %v", err)
	}
	if job.Status != StatusQueued {
		t.Fatalf("expected QUEUED, got %s", job.Status)
	}
	if job.Progress != 0 {
		t.Fatalf("expected progress 0, got %d", job.Progress)
	}
	if job.ID == "" || job.CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at to be set: %+v", job)
	}
	if job.CompletedAt != nil {
		t.Fatalf("completed_at must be unset for a queued job")
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	tr := NewTracker(nil)

	if _, err := tr.Create(CreateJobInput{Name: "", SourceDurationSeconds: 10}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty name, got %v", err)
	}
	if _, err := tr.Create(CreateJobInput{Name: "X", SourceDurationSeconds: 0}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero duration, got %v", err)
	}
	if _, err := tr.Create(CreateJobInput{Name: "X", SourceDurationSeconds: -5}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative duration, got %v", err)
	}
	if len(tr.List()) != 0 {
		t.Fatalf("rejected creations must not register jobs")
	}
}

func TestAdvanceToReady(t *testing.T) {
	tr := NewTracker(nil)
	created, err := tr.Create(CreateJobInput{Name: "Sarah", SourceDurationSeconds: 9000})
	if err != nil {
		t.Fatalf("create returned error: %v", err)
	}

	job, err := tr.Advance(created.ID, 50)
	if err != nil {
		t.Fatalf("advance returned error: %v", err)
	}
	if job.Status != StatusTraining || job.Progress != 50 {
		t.Fatalf("expected TRAINING/50, got %s/%d", job.Status, job.Progress)
	}

	job, err = tr.Advance(created.ID, 60)
	if err != nil {
		t.Fatalf("advance returned error: %v", err)
	}
	if job.Status != StatusReady {
		t.Fatalf("expected READY, got %s", job.Status)
	}
	if job.Progress != 100 {
		t.Fatalf("expected progress clamped to 100, got %d", job.Progress)
	}
	if job.CompletedAt == nil {
		t.Fatalf("completed_at must be set on READY")
	}
	if job.SampleReference == "" {
		t.Fatalf("sample reference must be present on READY")
	}
}

func TestAdvanceIsMonotonic(t *testing.T) {
	tr := NewTracker(nil)
	created, _ := tr.Create(CreateJobInput{Name: "Mono", SourceDurationSeconds: 60})

	last := 0
	for _, delta := range []int{0, 5, 0, 17, 3, 40} {
		job, err := tr.Advance(created.ID, delta)
		if err != nil {
			t.Fatalf("advance returned error: %v", err)
		}
		if job.Progress < last {
			t.Fatalf("progress decreased: %d -> %d", last, job.Progress)
		}
		last = job.Progress
	}
}

func TestAdvanceRejectsNegativeDelta(t *testing.T) {
	tr := NewTracker(nil)
	created, _ := tr.Create(CreateJobInput{Name: "Neg", SourceDurationSeconds: 60})

	if _, err := tr.Advance(created.ID, -1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative delta, got %v", err)
	}
}

func TestProgressStatusInvariant(t *testing.T) {
	tr := NewTracker(nil)
	created, _ := tr.Create(CreateJobInput{Name: "Inv", SourceDurationSeconds: 120})

	check := func(job TrainingJob) {
		t.Helper()
		if (job.Progress == 100) != (job.Status == StatusReady) {
			t.Fatalf("invariant violated: progress=%d status=%s", job.Progress, job.Status)
		}
		if (job.CompletedAt != nil) != job.Status.Terminal() {
			t.Fatalf("completed_at must be set exactly for terminal states: %+v", job)
		}
	}

	check(created)
	for _, delta := range []int{30, 30, 30, 30} {
		job, err := tr.Advance(created.ID, delta)
		if err != nil {
			t.Fatalf("advance returned error: %v", err)
		}
		check(job)
	}
}

func TestCancelBeforeStart(t *testing.T) {
	tr := NewTracker(nil)
	created, _ := tr.Create(CreateJobInput{Name: "X", SourceDurationSeconds: 10})

	job, err := tr.Cancel(created.ID)
	if err != nil {
		t.Fatalf("cancel returned error: %v", err)
	}
	if job.Status != StatusFailed {
		t.Fatalf("expected FAILED after cancel, got %s", job.Status)
	}
	if job.FailureReason == "" {
		t.Fatalf("cancellation must record a reason")
	}

	// A late progress report from the trainer is a no-op.
	job, err = tr.Advance(created.ID, 10)
	if err != nil {
		t.Fatalf("advance on cancelled job returned error: %v", err)
	}
	if job.Status != StatusFailed || job.Progress != 0 {
		t.Fatalf("expected FAILED/0 after late advance, got %s/%d", job.Status, job.Progress)
	}
}

func TestCancelIsIdempotentOnTerminal(t *testing.T) {
	tr := NewTracker(nil)
	created, _ := tr.Create(CreateJobInput{Name: "Idem", SourceDurationSeconds: 10})

	first, err := tr.Cancel(created.ID)
	if err != nil {
		t.Fatalf("cancel returned error: %v", err)
	}
	second, err := tr.Cancel(created.ID)
	if err != nil {
		t.Fatalf("repeated cancel returned error: %v", err)
	}
	if second.Status != first.Status || second.Progress != first.Progress || second.FailureReason != first.FailureReason {
		t.Fatalf("repeated cancel changed the snapshot: %+v vs %+v", first, second)
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Fatalf("repeated cancel must not touch the job")
	}
}

func TestFailTransitions(t *testing.T) {
	tr := NewTracker(nil)
	created, _ := tr.Create(CreateJobInput{Name: "F", SourceDurationSeconds: 10})
	if _, err := tr.Advance(created.ID, 40); err != nil {
		t.Fatalf("advance returned error: %v", err)
	}

	job, err := tr.Fail(created.ID, "gpu out of memory")
	if err != nil {
		t.Fatalf("fail returned error: %v", err)
	}
	if job.Status != StatusFailed || job.FailureReason != "gpu out of memory" {
		t.Fatalf("unexpected failed snapshot: %+v", job)
	}
	if job.Progress != 40 {
		t.Fatalf("progress must freeze at last value, got %d", job.Progress)
	}
	if job.CompletedAt == nil {
		t.Fatalf("completed_at must be set on FAILED")
	}

	if _, err := tr.Fail(created.ID, "again"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on terminal job, got %v", err)
	}
}

func TestUnknownJobID(t *testing.T) {
	tr := NewTracker(nil)
	if _, err := tr.Create(CreateJobInput{Name: "Only", SourceDurationSeconds: 10}); err != nil {
		t.Fatalf("create returned error: %v", err)
	}

	if _, err := tr.Advance("missing", 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from advance, got %v", err)
	}
	if _, err := tr.Fail("missing", "boom"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from fail, got %v", err)
	}
	if _, err := tr.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
	if got := len(tr.List()); got != 1 {
		t.Fatalf("failed lookups must not affect the list, got %d jobs", got)
	}
}

func TestListOrderedByCreation(t *testing.T) {
	tr := NewTracker(nil)
	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		job, err := tr.Create(CreateJobInput{Name: name, SourceDurationSeconds: 10})
		if err != nil {
			t.Fatalf("create returned error: %v", err)
		}
		ids = append(ids, job.ID)
	}

	listed := tr.List()
	if len(listed) != len(ids) {
		t.Fatalf("expected %d jobs, got %d", len(ids), len(listed))
	}
	for i := 1; i < len(listed); i++ {
		if listed[i].CreatedAt.Before(listed[i-1].CreatedAt) {
			t.Fatalf("list not ordered by created_at ascending")
		}
	}
}

func TestListReturnsSnapshots(t *testing.T) {
	tr := NewTracker(nil)
	created, _ := tr.Create(CreateJobInput{Name: "Snap", SourceDurationSeconds: 10})

	listed := tr.List()
	listed[0].Name = "mutated"
	listed[0].Progress = 99

	job, err := tr.Get(created.ID)
	if err != nil {
		t.Fatalf("get returned error: %v", err)
	}
	if job.Name != "Snap" || job.Progress != 0 {
		t.Fatalf("mutating a returned snapshot leaked into the tracker: %+v", job)
	}
}

func TestRename(t *testing.T) {
	tr := NewTracker(nil)
	created, _ := tr.Create(CreateJobInput{Name: "Before", SourceDurationSeconds: 10})

	job, err := tr.Rename(created.ID, "After")
	if err != nil {
		t.Fatalf("rename returned error: %v", err)
	}
	if job.Name != "After" {
		t.Fatalf("expected renamed job, got %q", job.Name)
	}

	if _, err := tr.Rename(created.ID, " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank name, got %v", err)
	}

	if _, err := tr.Cancel(created.ID); err != nil {
		t.Fatalf("cancel returned error: %v", err)
	}
	if _, err := tr.Rename(created.ID, "Late"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition after completion, got %v", err)
	}
}

func TestDeleteTerminalOnly(t *testing.T) {
	tr := NewTracker(nil)
	created, _ := tr.Create(CreateJobInput{Name: "Del", SourceDurationSeconds: 10})

	if err := tr.Delete(created.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition deleting an active job, got %v", err)
	}

	if _, err := tr.Cancel(created.ID); err != nil {
		t.Fatalf("cancel returned error: %v", err)
	}
	if err := tr.Delete(created.ID); err != nil {
		t.Fatalf("delete returned error: %v", err)
	}
	if _, err := tr.Get(created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := tr.Delete(created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestTransitionsPublishEvents(t *testing.T) {
	bus := NewEventBus(100)
	tr := NewTracker(bus)

	created, _ := tr.Create(CreateJobInput{Name: "Ev", SourceDurationSeconds: 10})
	if _, err := tr.Advance(created.ID, 100); err != nil {
		t.Fatalf("advance returned error: %v", err)
	}

	events := bus.Since(0)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Status != StatusQueued || events[1].Status != StatusReady {
		t.Fatalf("unexpected event statuses: %s, %s", events[0].Status, events[1].Status)
	}
	if events[1].Job.SampleReference == "" {
		t.Fatalf("event snapshot must carry the sample reference")
	}
}
