package trainer

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracker owns the set of training jobs and their lifecycle.
// All mutations are serialized under the tracker mutex; callers only ever
// receive snapshot copies, never live references.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*TrainingJob
	bus  *EventBus
}

// NewTracker creates an empty tracker publishing change events on bus.
// A nil bus disables event publication.
func NewTracker(bus *EventBus) *Tracker {
	return &Tracker{
		jobs: make(map[string]*TrainingJob),
		bus:  bus,
	}
}

// Create registers a new training job in QUEUED state.
func (t *Tracker) Create(input CreateJobInput) (TrainingJob, error) {
	if strings.TrimSpace(input.Name) == "" {
		return TrainingJob{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if input.SourceDurationSeconds <= 0 {
		return TrainingJob{}, fmt.Errorf("%w: source duration must be positive", ErrInvalidInput)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	job := &TrainingJob{
		ID:                    uuid.NewString(),
		Name:                  strings.TrimSpace(input.Name),
		Status:                StatusQueued,
		Progress:              0,
		SourceDurationSeconds: input.SourceDurationSeconds,
		SampleIDs:             append([]string(nil), input.SampleIDs...),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	t.jobs[job.ID] = job

	snap := job.snapshot()
	t.publish(snap, "job queued")
	return snap, nil
}

// Advance applies a progress delta reported by the external trainer.
// The first advance promotes a QUEUED job to TRAINING. Terminal jobs are
// left untouched and their current snapshot is returned.
func (t *Tracker) Advance(id string, delta int) (TrainingJob, error) {
	if delta < 0 {
		return TrainingJob{}, fmt.Errorf("%w: negative progress delta", ErrInvalidInput)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return TrainingJob{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if job.Status.Terminal() {
		return job.snapshot(), nil
	}

	if job.Status == StatusQueued {
		job.Status = StatusTraining
	}
	job.Progress += delta
	if job.Progress > 100 {
		job.Progress = 100
	}
	job.UpdatedAt = time.Now().UTC()

	message := fmt.Sprintf("progress %d%%", job.Progress)
	if job.Progress == 100 {
		now := job.UpdatedAt
		job.Status = StatusReady
		job.CompletedAt = &now
		job.SampleReference = fmt.Sprintf("voice-samples/%s/preview.wav", job.ID)
		message = "training complete"
	}

	snap := job.snapshot()
	t.publish(snap, message)
	return snap, nil
}

// Fail moves a non-terminal job to FAILED and records the reason.
func (t *Tracker) Fail(id, reason string) (TrainingJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return TrainingJob{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if job.Status.Terminal() {
		return TrainingJob{}, fmt.Errorf("%w: job already %s", ErrInvalidTransition, job.Status)
	}

	t.markFailed(job, reason)
	snap := job.snapshot()
	t.publish(snap, "training failed: "+reason)
	return snap, nil
}

// Cancel requests cancellation of a QUEUED or TRAINING job. Terminal jobs
// are unaffected; repeated calls return the same snapshot.
func (t *Tracker) Cancel(id string) (TrainingJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return TrainingJob{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if job.Status.Terminal() {
		return job.snapshot(), nil
	}

	t.markFailed(job, "cancelled by user")
	snap := job.snapshot()
	t.publish(snap, "training cancelled")
	return snap, nil
}

// Rename updates the human-supplied label. Names are frozen once the job
// reaches a terminal state.
func (t *Tracker) Rename(id, name string) (TrainingJob, error) {
	if strings.TrimSpace(name) == "" {
		return TrainingJob{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return TrainingJob{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if job.Status.Terminal() {
		return TrainingJob{}, fmt.Errorf("%w: job already %s", ErrInvalidTransition, job.Status)
	}

	job.Name = strings.TrimSpace(name)
	job.UpdatedAt = time.Now().UTC()
	snap := job.snapshot()
	t.publish(snap, "job renamed")
	return snap, nil
}

// Delete removes a terminal job from the tracker.
func (t *Tracker) Delete(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !job.Status.Terminal() {
		return fmt.Errorf("%w: job still %s", ErrInvalidTransition, job.Status)
	}
	delete(t.jobs, id)
	return nil
}

// Get returns a snapshot of a single job.
func (t *Tracker) Get(id string) (TrainingJob, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	job, ok := t.jobs[id]
	if !ok {
		return TrainingJob{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job.snapshot(), nil
}

// List returns snapshots of all jobs ordered by creation time ascending.
func (t *Tracker) List() []TrainingJob {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]TrainingJob, 0, len(t.jobs))
	for _, job := range t.jobs {
		result = append(result, job.snapshot())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// markFailed freezes progress at its last value and stamps completion.
func (t *Tracker) markFailed(job *TrainingJob, reason string) {
	now := time.Now().UTC()
	job.Status = StatusFailed
	job.FailureReason = reason
	job.UpdatedAt = now
	job.CompletedAt = &now
}

func (t *Tracker) publish(snap TrainingJob, message string) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(JobEvent{
		JobID:    snap.ID,
		Status:   snap.Status,
		Progress: snap.Progress,
		Message:  message,
		Job:      snap,
	})
}
