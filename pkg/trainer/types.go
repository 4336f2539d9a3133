package trainer

import "time"

// JobStatus represents the lifecycle state of a voice training job.
type JobStatus string

const (
	StatusQueued   JobStatus = "QUEUED"
	StatusTraining JobStatus = "TRAINING"
	StatusReady    JobStatus = "READY"
	StatusFailed   JobStatus = "FAILED"
)

// Terminal reports whether the status accepts no further transitions.
func (s JobStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// TrainingJob describes one requested voice-model training run.
type TrainingJob struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Status                JobStatus  `json:"status"`
	Progress              int        `json:"progress"`
	SourceDurationSeconds int        `json:"source_duration_seconds"`
	SampleIDs             []string   `json:"sample_ids,omitempty"`
	FailureReason         string     `json:"failure_reason,omitempty"`
	SampleReference       string     `json:"sample_reference,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
}

// CreateJobInput bundles the payload needed to request a training run.
type CreateJobInput struct {
	Name                  string   `json:"name"`
	SourceDurationSeconds int      `json:"source_duration_seconds"`
	SampleIDs             []string `json:"sample_ids,omitempty"`
}

// snapshot returns a defensive copy safe to hand to callers.
func (j *TrainingJob) snapshot() TrainingJob {
	out := *j
	out.SampleIDs = append([]string(nil), j.SampleIDs...)
	return out
}
