package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vocalia/voice/backend/pkg/auth"
	"github.com/vocalia/voice/backend/pkg/config"
	"github.com/vocalia/voice/backend/pkg/queue"
	"github.com/vocalia/voice/backend/pkg/synth"
	"github.com/vocalia/voice/backend/pkg/telemetry"
	"github.com/vocalia/voice/backend/pkg/trainer"
	"github.com/vocalia/voice/backend/pkg/voices"
)

type server struct {
	tracker *trainer.Tracker
	bus     *trainer.EventBus
	journal *trainer.PostgresJournal
	voices  *voices.Store
	queue   *queue.Queue
	synth   *synth.Client
}

func main() {
	cfg, err := config.LoadTracker()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer := telemetry.InitTracer(ctx, "voice-trackerd")
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("tracer shutdown error: %v", err)
		}
	}()

	bus := trainer.NewEventBus(1000)
	srv := &server{
		tracker: trainer.NewTracker(bus),
		bus:     bus,
		voices:  voices.NewStore(),
		synth:   synth.NewClient(cfg.SynthURL),
	}

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		journal, err := trainer.NewPostgresJournal(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("journal init failed: %v", err)
		}
		srv.journal = journal
		defer func() {
			if err := journal.Close(); err != nil {
				log.Printf("journal close error: %v", err)
			}
		}()
		go srv.runJournal(ctx)
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		q, err := queue.NewQueue(cfg.RedisURL)
		if err != nil {
			log.Fatalf("queue init failed: %v", err)
		}
		srv.queue = q
		defer func() {
			if err := q.Close(); err != nil {
				log.Printf("queue close error: %v", err)
			}
		}()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/healthz", srv.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/voices", func(r chi.Router) {
			r.Post("/", srv.handleAddVoice)
			r.Get("/", srv.handleListVoices)
			r.Get("/{voiceID}", srv.handleGetVoice)
			r.Delete("/{voiceID}", srv.handleDeleteVoice)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", srv.handleCreateJob)
			r.Get("/", srv.handleListJobs)
			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", srv.handleGetJob)
				r.Patch("/", srv.handleRenameJob)
				r.Delete("/", srv.handleDeleteJob)
				r.Put("/cancel", srv.handleCancelJob)
				r.Get("/events", srv.handleJobEvents)
			})
		})

		r.Get("/events/stream", srv.handleEventStream)
		r.Post("/speech", srv.handleSpeech)
	})

	r.Route("/v1/internal", func(r chi.Router) {
		r.Use(auth.RequireKey(cfg.APIKey))
		r.Put("/jobs/{jobID}/advance", srv.handleAdvance)
		r.Put("/jobs/{jobID}/fail", srv.handleFail)
	})

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("tracker shutdown error: %v", err)
		}
	}()

	log.Printf("tracker listening on %s", cfg.ListenAddr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("tracker listen failed: %v", err)
	}

	<-ctx.Done()
	log.Println("tracker stopped")
}

// runJournal drains the event bus into the Postgres journal.
func (s *server) runJournal(ctx context.Context) {
	events, cancel := s.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := s.journal.Record(event); err != nil {
				log.Printf("journal record error for job %s: %v", event.JobID, err)
			}
		}
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	}
	status := http.StatusOK
	if s.queue != nil {
		if _, err := s.queue.Length(r.Context()); err != nil {
			resp["status"] = "degraded"
			resp["queue"] = fmt.Sprintf("error: %v", err)
			status = http.StatusServiceUnavailable
		} else {
			resp["queue"] = "ok"
		}
	}
	respondJSON(w, resp, status)
}

// Voice samples

func (s *server) handleAddVoice(w http.ResponseWriter, r *http.Request) {
	var payload voices.AddSampleInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	sample, err := s.voices.Add(payload)
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}
	respondJSON(w, map[string]any{"voice": sample}, http.StatusCreated)
}

func (s *server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{"voices": s.voices.List()}, http.StatusOK)
}

func (s *server) handleGetVoice(w http.ResponseWriter, r *http.Request) {
	sample, err := s.voices.Get(chi.URLParam(r, "voiceID"))
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}
	respondJSON(w, map[string]any{"voice": sample}, http.StatusOK)
}

func (s *server) handleDeleteVoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "voiceID")
	if err := s.voices.Delete(id); err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}
	respondJSON(w, map[string]string{"message": fmt.Sprintf("deleted voice %s", id)}, http.StatusOK)
}

// Training jobs

func (s *server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var payload trainer.CreateJobInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	// Derive the source duration from the referenced samples when the
	// caller did not supply one.
	if payload.SourceDurationSeconds == 0 && len(payload.SampleIDs) > 0 {
		total, err := s.voices.TotalDuration(payload.SampleIDs)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		payload.SourceDurationSeconds = total
	}

	job, err := s.tracker.Create(payload)
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}

	if s.queue != nil {
		if err := s.queue.Enqueue(r.Context(), job.ID); err != nil {
			log.Printf("enqueue job %s failed: %v", job.ID, err)
		}
	}
	respondJSON(w, map[string]any{"job": job}, http.StatusCreated)
}

func (s *server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{"jobs": s.tracker.List()}, http.StatusOK)
}

func (s *server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.tracker.Get(chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}
	respondJSON(w, map[string]any{"job": job}, http.StatusOK)
}

func (s *server) handleRenameJob(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	job, err := s.tracker.Rename(chi.URLParam(r, "jobID"), payload.Name)
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}
	respondJSON(w, map[string]any{"job": job}, http.StatusOK)
}

func (s *server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	if err := s.tracker.Delete(id); err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}
	respondJSON(w, map[string]string{"message": fmt.Sprintf("deleted job %s", id)}, http.StatusOK)
}

func (s *server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.tracker.Cancel(chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}
	respondJSON(w, map[string]any{"job": job}, http.StatusOK)
}

func (s *server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, err := s.tracker.Get(jobID); err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}

	if s.journal != nil {
		events, err := s.journal.ListEvents(jobID, 500)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, map[string]any{"events": events}, http.StatusOK)
		return
	}

	var events []trainer.JobEvent
	for _, event := range s.bus.Since(0) {
		if event.JobID == jobID {
			events = append(events, event)
		}
	}
	respondJSON(w, map[string]any{"events": events}, http.StatusOK)
}

func (s *server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	since := int64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid since parameter")
			return
		}
		since = parsed
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, cancel := s.bus.Subscribe()
	defer cancel()

	// Replay buffered history before following live events.
	lastSeq := since
	for _, event := range s.bus.Since(since) {
		if err := writeSSE(w, event); err != nil {
			return
		}
		lastSeq = event.Seq
	}
	flusher.Flush()

	done := r.Context().Done()
	for {
		select {
		case <-done:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Seq <= lastSeq {
				continue
			}
			if err := writeSSE(w, event); err != nil {
				return
			}
			lastSeq = event.Seq
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event trainer.JobEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// Speech generation

func (s *server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		JobID string  `json:"job_id"`
		Text  string  `json:"text"`
		Speed float64 `json:"speed,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	job, err := s.tracker.Get(payload.JobID)
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}
	if job.Status != trainer.StatusReady {
		respondError(w, http.StatusConflict, fmt.Sprintf("voice model is %s, not ready", job.Status))
		return
	}

	out, err := s.synth.Synthesize(r.Context(), synth.SynthesizeRequest{
		SampleReference: job.SampleReference,
		Text:            payload.Text,
		Speed:           payload.Speed,
	})
	if err != nil {
		respondError(w, http.StatusBadGateway, fmt.Sprintf("synthesis failed: %v", err))
		return
	}
	respondJSON(w, out, http.StatusOK)
}

// Internal trainer endpoints

func (s *server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Delta int `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	job, err := s.tracker.Advance(chi.URLParam(r, "jobID"), payload.Delta)
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}
	respondJSON(w, map[string]any{"job": job}, http.StatusOK)
}

func (s *server) handleFail(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if strings.TrimSpace(payload.Reason) == "" {
		payload.Reason = "training failed"
	}
	job, err := s.tracker.Fail(chi.URLParam(r, "jobID"), payload.Reason)
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}
	respondJSON(w, map[string]any{"job": job}, http.StatusOK)
}

// Helpers

func statusForError(err error) int {
	switch {
	case errors.Is(err, trainer.ErrNotFound), errors.Is(err, voices.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, trainer.ErrInvalidInput), errors.Is(err, voices.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, trainer.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, map[string]string{"error": message}, status)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
