package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned when the engine does not know the voice reference.
var ErrNotFound = fmt.Errorf("voice reference not found")

// Client talks to the external speech-synthesis engine over HTTP. The
// engine owns all audio work; this client only moves requests and handles.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a synthesis client with sane defaults.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SynthesizeRequest asks the engine to render text with a trained voice.
type SynthesizeRequest struct {
	SampleReference string  `json:"sample_reference"`
	Text            string  `json:"text"`
	Speed           float64 `json:"speed,omitempty"`
}

// SynthesizeResponse carries the rendered audio handle.
type SynthesizeResponse struct {
	AudioURL        string  `json:"audio_url"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Synthesize renders speech for a READY voice model.
func (c *Client) Synthesize(ctx context.Context, req SynthesizeRequest) (SynthesizeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return SynthesizeResponse{}, fmt.Errorf("marshal synthesize request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/synthesize", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return SynthesizeResponse{}, fmt.Errorf("create synthesize request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return SynthesizeResponse{}, fmt.Errorf("synthesize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return SynthesizeResponse{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return SynthesizeResponse{}, fmt.Errorf("synthesize failed: %s", strings.TrimSpace(string(payload)))
	}

	var out SynthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return SynthesizeResponse{}, fmt.Errorf("decode synthesize response: %w", err)
	}

	return out, nil
}

// RenderPreview fetches the preview audio bytes for a freshly trained voice.
func (c *Client) RenderPreview(ctx context.Context, sampleReference string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/v1/previews?ref=%s", c.baseURL, url.QueryEscape(sampleReference))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create preview request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("render preview: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("render preview failed: %s", strings.TrimSpace(string(payload)))
	}

	return io.ReadAll(resp.Body)
}
