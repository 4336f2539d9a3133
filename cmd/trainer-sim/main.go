package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/vocalia/voice/backend/pkg/artifacts"
	"github.com/vocalia/voice/backend/pkg/config"
	"github.com/vocalia/voice/backend/pkg/queue"
	"github.com/vocalia/voice/backend/pkg/synth"
	"github.com/vocalia/voice/backend/pkg/trainer"
	"github.com/vocalia/voice/backend/pkg/trainerapi"
)

// trainer-sim stands in for the real training backend: it claims queued
// jobs and reports progress to the tracker the way an actual trainer would,
// without doing any audio or ML work.
type worker struct {
	id       string
	cfg      config.TrainerConfig
	queue    *queue.Queue
	tracker  *trainerapi.Client
	synth    *synth.Client
	uploader *artifacts.Uploader
}

func main() {
	cfg, err := config.LoadTrainer()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	q, err := queue.NewQueue(cfg.RedisURL)
	if err != nil {
		log.Fatalf("queue init failed: %v", err)
	}
	defer func() {
		if err := q.Close(); err != nil {
			log.Printf("queue close error: %v", err)
		}
	}()

	w := &worker{
		id:      workerID(cfg),
		cfg:     cfg,
		queue:   q,
		tracker: trainerapi.NewClient(cfg.TrackerURL, cfg.APIKey),
		synth:   synth.NewClient(cfg.SynthURL),
	}
	if strings.TrimSpace(cfg.ArtifactHost) != "" {
		w.uploader = artifacts.NewUploader(artifacts.Config{
			Host:     cfg.ArtifactHost,
			Port:     cfg.ArtifactPort,
			Username: cfg.ArtifactUser,
			Password: cfg.ArtifactPass,
			KeyPath:  cfg.ArtifactKeyPath,
			BaseDir:  cfg.ArtifactDir,
		})
	}

	log.Printf("trainer %s polling %s", w.id, cfg.RedisURL)
	for {
		select {
		case <-ctx.Done():
			log.Println("trainer stopped")
			return
		default:
		}

		jobID, err := w.queue.Dequeue(ctx, w.id)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Printf("dequeue error: %v", err)
			continue
		}
		if jobID == "" {
			continue
		}

		log.Printf("claimed job %s", jobID)
		w.train(ctx, jobID)
	}
}

// train drives one job to a terminal state through the tracker API.
func (w *worker) train(ctx context.Context, jobID string) {
	ticker := time.NewTicker(w.cfg.Tick())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if w.cfg.FailureRate > 0 && rand.Intn(100) < w.cfg.FailureRate {
			if _, err := w.tracker.Fail(ctx, jobID, "simulated trainer fault"); err != nil {
				log.Printf("fail report for job %s: %v", jobID, err)
			}
			return
		}

		job, err := w.tracker.Advance(ctx, jobID, w.delta())
		if err != nil {
			if errors.Is(err, trainerapi.ErrNotFound) {
				log.Printf("job %s disappeared, abandoning", jobID)
				return
			}
			log.Printf("advance error for job %s: %v", jobID, err)
			continue
		}

		// A terminal snapshot means stop: either we finished or the
		// tracker marked the job failed (cancellation) while we worked.
		switch job.Status {
		case trainer.StatusReady:
			log.Printf("job %s ready, sample %s", jobID, job.SampleReference)
			w.publishPreview(ctx, job)
			return
		case trainer.StatusFailed:
			log.Printf("job %s failed (%s), abandoning", jobID, job.FailureReason)
			return
		}
	}
}

// publishPreview renders the preview sample and pushes it to the media host.
func (w *worker) publishPreview(ctx context.Context, job trainer.TrainingJob) {
	if w.uploader == nil {
		return
	}
	data, err := w.synth.RenderPreview(ctx, job.SampleReference)
	if err != nil {
		log.Printf("render preview for job %s: %v", job.ID, err)
		return
	}
	if err := w.uploader.Upload(job.SampleReference, data); err != nil {
		log.Printf("publish preview for job %s: %v", job.ID, err)
		return
	}
	log.Printf("published preview for job %s", job.ID)
}

func (w *worker) delta() int {
	min, max := w.cfg.MinDelta, w.cfg.MaxDelta
	if min < 0 {
		min = 0
	}
	if max <= min {
		return min
	}
	return min + rand.Intn(max-min+1)
}

func workerID(cfg config.TrainerConfig) string {
	if strings.TrimSpace(cfg.WorkerID) != "" {
		return cfg.WorkerID
	}
	host, err := os.Hostname()
	if err != nil {
		host = "trainer"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
