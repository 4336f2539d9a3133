package synth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/synthesize" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req SynthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.SampleReference != "voice-samples/abc/preview.wav" {
			t.Fatalf("unexpected sample reference: %s", req.SampleReference)
		}
		_ = json.NewEncoder(w).Encode(SynthesizeResponse{
			AudioURL:        "https://media.local/out/abc.wav",
			DurationSeconds: 3.2,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	out, err := client.Synthesize(context.Background(), SynthesizeRequest{
		SampleReference: "voice-samples/abc/preview.wav",
		Text:            "hello there",
	})
	if err != nil {
		t.Fatalf("synthesize returned error: %v", err)
	}
	if out.AudioURL != "https://media.local/out/abc.wav" {
		t.Fatalf("unexpected audio url: %s", out.AudioURL)
	}
}

func TestSynthesizeNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Synthesize(context.Background(), SynthesizeRequest{SampleReference: "missing", Text: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRenderPreview(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ref") != "voice-samples/abc/preview.wav" {
			t.Fatalf("unexpected ref: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte("RIFFfake"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	data, err := client.RenderPreview(context.Background(), "voice-samples/abc/preview.wav")
	if err != nil {
		t.Fatalf("render preview returned error: %v", err)
	}
	if string(data) != "RIFFfake" {
		t.Fatalf("unexpected payload: %q", data)
	}
}
