package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractKey(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer test-token")

	token, err := ExtractKey(req)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if token != "test-token" {
		t.Fatalf("unexpected token: %s", token)
	}
}

func TestExtractKeyErrors(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)

	if _, err := ExtractKey(req); err != ErrMissingKey {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}

	req.Header.Set("Authorization", "Key abc")
	if _, err := ExtractKey(req); err != ErrInvalidPrefix {
		t.Fatalf("expected ErrInvalidPrefix, got %v", err)
	}

	req.Header.Set("Authorization", "Bearer ")
	if _, err := ExtractKey(req); err != ErrMissingKey {
		t.Fatalf("expected ErrMissingKey for empty token, got %v", err)
	}
}

func TestRequireKey(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	guarded := RequireKey("secret")(okHandler)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/internal/jobs/x/advance", nil)
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req.Header.Set("Authorization", "Bearer wrong")
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req.Header.Set("Authorization", "Bearer secret")
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 with valid token, got %d", rec.Code)
	}

	open := RequireKey("")(okHandler)
	rec = httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected empty key to disable the guard, got %d", rec.Code)
	}
}
