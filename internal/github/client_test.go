package github

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fclairamb/ghsync/internal/apperrors"
)

// newTestClient creates a client pointed at a test server.
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient("test-token",
		WithBaseURL(srv.URL),
		WithRateLimit(time.Millisecond))
}

// TestDo_Headers verifies authentication and API version headers.
func TestDo_Headers(t *testing.T) {
	t.Parallel()

	var gotAuth, gotAccept, gotVersion string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotVersion = r.Header.Get("X-GitHub-Api-Version")
		_, _ = w.Write([]byte(`{}`))
	}))

	var result map[string]any
	if err := client.do(context.Background(), http.MethodGet, "/repos/o/r", nil, &result); err != nil {
		t.Fatalf("do failed: %v", err)
	}

	if gotAuth != "Bearer test-token" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}
	if gotAccept != "application/vnd.github+json" {
		t.Errorf("unexpected Accept header: %q", gotAccept)
	}
	if gotVersion != APIVersion {
		t.Errorf("expected API version %q, got %q", APIVersion, gotVersion)
	}
}

// TestDo_NoAuthWithoutToken verifies that no Authorization header is sent
// when the client has no token.
func TestDo_NoAuthWithoutToken(t *testing.T) {
	t.Parallel()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	client := NewClient("", WithBaseURL(srv.URL), WithRateLimit(time.Millisecond))
	if err := client.do(context.Background(), http.MethodGet, "/repos/o/r", nil, nil); err != nil {
		t.Fatalf("do failed: %v", err)
	}

	if gotAuth != "" {
		t.Errorf("expected no Authorization header, got %q", gotAuth)
	}
}

// TestDo_NotFound verifies that a 404 maps to ErrNotFound.
func TestDo_NotFound(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	}))

	err := client.do(context.Background(), http.MethodGet, "/repos/o/r/contents/x", nil, nil)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestDo_APIError verifies that API error payloads surface as APIError.
func TestDo_APIError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"is at 1234 but expected 5678"}`))
	}))

	err := client.do(context.Background(), http.MethodGet, "/repos/o/r/contents/x", nil, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Errorf("expected status 409, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "is at 1234 but expected 5678" {
		t.Errorf("unexpected message: %q", apiErr.Message)
	}
}

// TestDo_HTTPErrorFallback verifies that non-JSON error bodies fall back to HTTPError.
func TestDo_HTTPErrorFallback(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream unavailable`))
	}))

	err := client.do(context.Background(), http.MethodGet, "/repos/o/r", nil, nil)

	var httpErr *apperrors.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", httpErr.StatusCode)
	}
}

// TestDo_RetryOnRateLimit verifies that 429 responses are retried.
func TestDo_RetryOnRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	var result map[string]any
	if err := client.do(context.Background(), http.MethodGet, "/repos/o/r", nil, &result); err != nil {
		t.Fatalf("do failed after retry: %v", err)
	}

	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

// TestDo_CanceledContext verifies that cancellation interrupts the backoff wait.
func TestDo_CanceledContext(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := client.do(ctx, http.MethodGet, "/repos/o/r", nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}
