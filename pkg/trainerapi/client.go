package trainerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vocalia/voice/backend/pkg/trainer"
)

// ErrNotFound is returned when the tracker does not know the job id.
var ErrNotFound = fmt.Errorf("job not found")

// Client is the HTTP client trainer workers use to report progress and
// failures back to the tracker service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a tracker client. apiKey may be empty when the tracker
// runs without an internal guard.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type advanceRequest struct {
	Delta int `json:"delta"`
}

type failRequest struct {
	Reason string `json:"reason"`
}

// Advance reports a progress delta and returns the resulting snapshot.
func (c *Client) Advance(ctx context.Context, jobID string, delta int) (trainer.TrainingJob, error) {
	endpoint := fmt.Sprintf("%s/v1/internal/jobs/%s/advance", c.baseURL, jobID)
	return c.putJob(ctx, endpoint, advanceRequest{Delta: delta})
}

// Fail reports a training failure with a reason.
func (c *Client) Fail(ctx context.Context, jobID, reason string) (trainer.TrainingJob, error) {
	endpoint := fmt.Sprintf("%s/v1/internal/jobs/%s/fail", c.baseURL, jobID)
	return c.putJob(ctx, endpoint, failRequest{Reason: reason})
}

// GetJob fetches the current snapshot of a job.
func (c *Client) GetJob(ctx context.Context, jobID string) (trainer.TrainingJob, error) {
	endpoint := fmt.Sprintf("%s/api/jobs/%s", c.baseURL, jobID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return trainer.TrainingJob{}, fmt.Errorf("create get job request: %w", err)
	}
	return c.doJob(httpReq)
}

func (c *Client) putJob(ctx context.Context, endpoint string, payload any) (trainer.TrainingJob, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return trainer.TrainingJob{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return trainer.TrainingJob{}, fmt.Errorf("create tracker request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.doJob(httpReq)
}

func (c *Client) doJob(httpReq *http.Request) (trainer.TrainingJob, error) {
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return trainer.TrainingJob{}, fmt.Errorf("call tracker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return trainer.TrainingJob{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return trainer.TrainingJob{}, fmt.Errorf("tracker returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var envelope struct {
		Job trainer.TrainingJob `json:"job"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return trainer.TrainingJob{}, fmt.Errorf("decode job snapshot: %w", err)
	}
	return envelope.Job, nil
}
