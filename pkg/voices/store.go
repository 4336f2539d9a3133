package voices

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SampleKind distinguishes uploaded files from in-app recordings.
type SampleKind string

const (
	KindUpload    SampleKind = "upload"
	KindRecording SampleKind = "recording"
)

var (
	// ErrNotFound indicates an unknown sample id.
	ErrNotFound = errors.New("voice sample not found")
	// ErrInvalidInput indicates rejected sample metadata.
	ErrInvalidInput = errors.New("invalid input")
)

// VoiceSample is the metadata record for one piece of source audio. The
// audio bytes themselves live in external object storage; ObjectRef is an
// opaque handle to them.
type VoiceSample struct {
	ID              string     `json:"id"`
	Label           string     `json:"label"`
	Kind            SampleKind `json:"kind"`
	FileName        string     `json:"file_name,omitempty"`
	ObjectRef       string     `json:"object_ref,omitempty"`
	SizeBytes       int64      `json:"size_bytes,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	CreatedAt       time.Time  `json:"created_at"`
}

// AddSampleInput bundles fields for registering new source audio.
type AddSampleInput struct {
	Label           string     `json:"label"`
	Kind            SampleKind `json:"kind"`
	FileName        string     `json:"file_name,omitempty"`
	ObjectRef       string     `json:"object_ref,omitempty"`
	SizeBytes       int64      `json:"size_bytes,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
}

// Store keeps voice sample metadata in memory with snapshot reads.
type Store struct {
	mu      sync.RWMutex
	samples map[string]*VoiceSample
}

func NewStore() *Store {
	return &Store{samples: make(map[string]*VoiceSample)}
}

// Add validates and registers a sample, returning its snapshot.
func (s *Store) Add(input AddSampleInput) (VoiceSample, error) {
	if strings.TrimSpace(input.Label) == "" {
		return VoiceSample{}, fmt.Errorf("%w: label is required", ErrInvalidInput)
	}
	if input.Kind != KindUpload && input.Kind != KindRecording {
		return VoiceSample{}, fmt.Errorf("%w: unknown sample kind %q", ErrInvalidInput, input.Kind)
	}
	if input.DurationSeconds <= 0 {
		return VoiceSample{}, fmt.Errorf("%w: duration must be positive", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sample := &VoiceSample{
		ID:              uuid.NewString(),
		Label:           strings.TrimSpace(input.Label),
		Kind:            input.Kind,
		FileName:        input.FileName,
		ObjectRef:       input.ObjectRef,
		SizeBytes:       input.SizeBytes,
		DurationSeconds: input.DurationSeconds,
		CreatedAt:       time.Now().UTC(),
	}
	s.samples[sample.ID] = sample
	return *sample, nil
}

// Get returns a snapshot of a single sample.
func (s *Store) Get(id string) (VoiceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sample, ok := s.samples[id]
	if !ok {
		return VoiceSample{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *sample, nil
}

// List returns all samples ordered by creation time ascending.
func (s *Store) List() []VoiceSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]VoiceSample, 0, len(s.samples))
	for _, sample := range s.samples {
		result = append(result, *sample)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Delete removes a sample.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.samples[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.samples, id)
	return nil
}

// TotalDuration sums the duration of the given samples. Every id must be
// known; the total feeds a training job's source duration.
func (s *Store) TotalDuration(ids []string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, id := range ids {
		sample, ok := s.samples[id]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		total += sample.DurationSeconds
	}
	return total, nil
}
