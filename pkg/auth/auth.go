package auth

import (
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrMissingKey indicates that the Authorization header was not provided.
	ErrMissingKey = errors.New("missing API key")
	// ErrInvalidPrefix indicates the header did not use the Bearer prefix.
	ErrInvalidPrefix = errors.New("invalid authorization prefix")
)

// ExtractKey parses the Bearer token used by trainer workers.
func ExtractKey(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingKey
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", ErrInvalidPrefix
	}

	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return "", ErrMissingKey
	}

	return token, nil
}

// RequireKey guards a handler chain with a static API key. An empty key
// disables the check, which keeps local development friction-free.
func RequireKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			token, err := ExtractKey(r)
			if err != nil || token != key {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
