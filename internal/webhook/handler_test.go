package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

const (
	testSecret     = "test-webhook-secret" //nolint:gosec // test constant
	testRepository = "octocat/hello-world"
	testBranch     = "main"
)

// computeSignature computes the X-Hub-Signature-256 value for a payload.
func computeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// testLogger returns a debug-level logger writing to stdout.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// createTestHandler creates a Handler with a secret and an attached worker
// whose notification channel the test can observe.
func createTestHandler(t *testing.T) (*Handler, *SyncWorker) {
	t.Helper()

	worker := &SyncWorker{
		logger: testLogger(),
		notify: make(chan struct{}, 1),
	}

	return NewHandler(testRepository, testBranch, testSecret, testLogger(), worker), worker
}

// createTestHandlerWithoutSecret creates a Handler without a secret configured.
func createTestHandlerWithoutSecret(t *testing.T) *Handler {
	t.Helper()
	return NewHandler(testRepository, testBranch, "", testLogger(), nil)
}

// pushBody builds a push event payload for the given repository and ref.
func pushBody(t *testing.T, repository, ref string) []byte {
	t.Helper()

	var event PushEvent
	event.Ref = ref
	event.After = "0123456789abcdef0123456789abcdef01234567"
	event.Repository.FullName = repository
	event.Repository.DefaultBranch = "main"

	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return body
}

// signedRequest builds a signed POST request carrying the given event type.
func signedRequest(body []byte, event, secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", event)
	if secret != "" {
		req.Header.Set("X-Hub-Signature-256", computeSignature(body, secret))
	}
	return req
}

// TestVerifySignature_Valid verifies that valid signatures pass verification.
func TestVerifySignature_Valid(t *testing.T) {
	t.Parallel()
	handler, _ := createTestHandler(t)
	body := []byte(`{"ref":"refs/heads/main"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", computeSignature(body, testSecret))

	if !handler.verifySignature(req, body) {
		t.Error("expected valid signature to pass verification")
	}
}

// TestVerifySignature_Invalid verifies that invalid signatures fail verification.
func TestVerifySignature_Invalid(t *testing.T) {
	t.Parallel()
	handler, _ := createTestHandler(t)
	body := []byte(`{"ref":"refs/heads/main"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")

	if handler.verifySignature(req, body) {
		t.Error("expected invalid signature to fail verification")
	}
}

// TestVerifySignature_NoSecret verifies that verification is skipped when no secret is configured.
func TestVerifySignature_NoSecret(t *testing.T) {
	t.Parallel()
	handler := createTestHandlerWithoutSecret(t)
	body := []byte(`{"ref":"refs/heads/main"}`)

	// No signature header, but should pass because no secret is configured
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))

	if !handler.verifySignature(req, body) {
		t.Error("expected verification to pass when no secret is configured")
	}
}

// TestVerifySignature_MissingHeader verifies that a missing header fails verification.
func TestVerifySignature_MissingHeader(t *testing.T) {
	t.Parallel()
	handler, _ := createTestHandler(t)
	body := []byte(`{"ref":"refs/heads/main"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))

	if handler.verifySignature(req, body) {
		t.Error("expected missing signature to fail verification")
	}
}

// TestHandleWebhook_Ping verifies that ping events are acknowledged.
func TestHandleWebhook_Ping(t *testing.T) {
	t.Parallel()
	handler, _ := createTestHandler(t)
	body := []byte(`{"zen":"Design for failure."}`)

	rr := httptest.NewRecorder()
	handler.HandleWebhook(rr, signedRequest(body, "ping", testSecret))

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
}

// TestHandleWebhook_PushNotifiesWorker verifies that a push on the watched
// repository and branch triggers a worker notification.
func TestHandleWebhook_PushNotifiesWorker(t *testing.T) {
	t.Parallel()
	handler, worker := createTestHandler(t)
	body := pushBody(t, testRepository, "refs/heads/main")

	rr := httptest.NewRecorder()
	handler.HandleWebhook(rr, signedRequest(body, "push", testSecret))

	if rr.Code != http.StatusAccepted {
		t.Errorf("expected status 202, got %d", rr.Code)
	}

	select {
	case <-worker.notify:
		// Worker was notified
	default:
		t.Error("expected sync worker to be notified")
	}
}

// TestHandleWebhook_PushOtherRepository verifies that pushes for other
// repositories are acknowledged but ignored.
func TestHandleWebhook_PushOtherRepository(t *testing.T) {
	t.Parallel()
	handler, worker := createTestHandler(t)
	body := pushBody(t, "octocat/other", "refs/heads/main")

	rr := httptest.NewRecorder()
	handler.HandleWebhook(rr, signedRequest(body, "push", testSecret))

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	select {
	case <-worker.notify:
		t.Error("expected no notification for other repository")
	default:
	}
}

// TestHandleWebhook_PushOtherBranch verifies that pushes to other branches
// are acknowledged but ignored.
func TestHandleWebhook_PushOtherBranch(t *testing.T) {
	t.Parallel()
	handler, worker := createTestHandler(t)
	body := pushBody(t, testRepository, "refs/heads/feature")

	rr := httptest.NewRecorder()
	handler.HandleWebhook(rr, signedRequest(body, "push", testSecret))

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	select {
	case <-worker.notify:
		t.Error("expected no notification for other branch")
	default:
	}
}

// TestHandleWebhook_UnknownEvent verifies that unrelated events are acknowledged.
func TestHandleWebhook_UnknownEvent(t *testing.T) {
	t.Parallel()
	handler, worker := createTestHandler(t)
	body := []byte(`{"action":"opened"}`)

	rr := httptest.NewRecorder()
	handler.HandleWebhook(rr, signedRequest(body, "issues", testSecret))

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	select {
	case <-worker.notify:
		t.Error("expected no notification for unrelated event")
	default:
	}
}

// TestHandleWebhook_InvalidSignature verifies rejection of invalid signatures.
func TestHandleWebhook_InvalidSignature(t *testing.T) {
	t.Parallel()
	handler, _ := createTestHandler(t)
	body := pushBody(t, testRepository, "refs/heads/main")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-Hub-Signature-256", "sha256=0000")

	rr := httptest.NewRecorder()
	handler.HandleWebhook(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rr.Code)
	}
}

// TestHandleWebhook_InvalidMethod verifies rejection of non-POST requests.
func TestHandleWebhook_InvalidMethod(t *testing.T) {
	t.Parallel()
	handler, _ := createTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/github", nil)
	rr := httptest.NewRecorder()
	handler.HandleWebhook(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", rr.Code)
	}
}

// TestHandleWebhook_InvalidPayload verifies rejection of malformed JSON.
func TestHandleWebhook_InvalidPayload(t *testing.T) {
	t.Parallel()
	handler, _ := createTestHandler(t)
	body := []byte(`{invalid json}`)

	rr := httptest.NewRecorder()
	handler.HandleWebhook(rr, signedRequest(body, "push", testSecret))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

// TestHandleVersion verifies the version endpoint.
func TestHandleVersion(t *testing.T) {
	t.Parallel()
	handler, _ := createTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	rr := httptest.NewRecorder()
	handler.HandleVersion(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	contentType := rr.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", contentType)
	}

	var response map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if _, ok := response["version"]; !ok {
		t.Error("expected version field in response")
	}
	if _, ok := response["commit"]; !ok {
		t.Error("expected commit field in response")
	}
	if _, ok := response["build_time"]; !ok {
		t.Error("expected build_time field in response")
	}
}

// TestHandleHealth verifies the health endpoint.
func TestHandleHealth(t *testing.T) {
	t.Parallel()
	handler, _ := createTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.HandleHealth(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var response map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["status"] != "ok" {
		t.Errorf("expected status ok, got %q", response["status"])
	}
}

// TestPushEvent_Branch verifies ref to branch conversion.
func TestPushEvent_Branch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ref  string
		want string
	}{
		{"refs/heads/main", "main"},
		{"refs/heads/feature/x", "feature/x"},
		{"refs/tags/v1.0.0", "refs/tags/v1.0.0"},
	}

	for _, tc := range tests {
		event := &PushEvent{Ref: tc.ref}
		if got := event.Branch(); got != tc.want {
			t.Errorf("Branch(%q) = %q, want %q", tc.ref, got, tc.want)
		}
	}
}
