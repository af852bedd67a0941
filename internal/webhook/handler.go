package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fclairamb/ghsync/internal/version"
)

// PushEvent is the subset of a GitHub push event payload the handler uses.
type PushEvent struct {
	Ref        string `json:"ref"`    // e.g. "refs/heads/main"
	Before     string `json:"before"` // previous head commit SHA
	After      string `json:"after"`  // new head commit SHA
	Repository struct {
		FullName      string `json:"full_name"` // "owner/repo"
		DefaultBranch string `json:"default_branch"`
	} `json:"repository"`
	Pusher struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"pusher"`
	Commits []PushCommit `json:"commits"`
}

// PushCommit describes one commit of a push event.
type PushCommit struct {
	ID       string   `json:"id"`
	Message  string   `json:"message"`
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

// Branch returns the branch name of the push, or "" for non-branch refs.
func (e *PushEvent) Branch() string {
	return strings.TrimPrefix(e.Ref, "refs/heads/")
}

// Handler handles incoming webhook requests.
type Handler struct {
	logger     *slog.Logger
	secret     string
	repository string // "owner/repo" the handler reacts to
	branch     string // branch the handler reacts to
	syncWorker *SyncWorker
}

// NewHandler creates a new webhook handler reacting to pushes on the given
// repository and branch. If syncWorker is nil, events are acknowledged but
// no sync is triggered.
func NewHandler(repository, branch, secret string, logger *slog.Logger, syncWorker *SyncWorker) *Handler {
	return &Handler{
		logger:     logger,
		secret:     secret,
		repository: repository,
		branch:     branch,
		syncWorker: syncWorker,
	}
}

// HandleWebhook handles incoming webhook requests.
func (h *Handler) HandleWebhook(writer http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	if req.Method != http.MethodPost {
		h.logger.WarnContext(ctx, "invalid method", "method", req.Method)
		http.Error(writer, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read webhook payload", "error", err)
		http.Error(writer, "Invalid payload", http.StatusBadRequest)
		return
	}

	if !h.verifySignature(req, body) {
		h.logger.WarnContext(ctx, "invalid webhook signature")
		http.Error(writer, "Invalid signature", http.StatusUnauthorized)
		return
	}

	event := req.Header.Get("X-GitHub-Event")
	switch event {
	case "ping":
		h.logger.InfoContext(ctx, "received ping event")
		writer.WriteHeader(http.StatusOK)
	case "push":
		h.handlePush(writer, req, body)
	default:
		h.logger.DebugContext(ctx, "ignoring event", "event", event)
		writer.WriteHeader(http.StatusOK)
	}
}

// handlePush decodes a push event and notifies the sync worker when the
// push targets the mirrored repository and branch.
func (h *Handler) handlePush(writer http.ResponseWriter, req *http.Request, body []byte) {
	ctx := req.Context()

	var event PushEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode push event", "error", err)
		http.Error(writer, "Invalid payload", http.StatusBadRequest)
		return
	}

	h.logger.InfoContext(ctx, "received push event",
		"repository", event.Repository.FullName,
		"ref", event.Ref,
		"after", event.After,
		"commits", len(event.Commits),
		"pusher", event.Pusher.Name)

	if event.Repository.FullName != h.repository {
		h.logger.DebugContext(ctx, "ignoring push for other repository",
			"repository", event.Repository.FullName, "expected", h.repository)
		writer.WriteHeader(http.StatusOK)
		return
	}

	if event.Branch() != h.branch {
		h.logger.DebugContext(ctx, "ignoring push for other branch",
			"branch", event.Branch(), "expected", h.branch)
		writer.WriteHeader(http.StatusOK)
		return
	}

	if h.syncWorker != nil {
		h.syncWorker.Notify()
	}

	// Acknowledge receipt immediately; the worker syncs in the background.
	writer.WriteHeader(http.StatusAccepted)
}

// HandleVersion handles the /api/version endpoint.
func (h *Handler) HandleVersion(writer http.ResponseWriter, req *http.Request) {
	response := map[string]string{
		"version":    version.Version,
		"commit":     version.Commit,
		"build_time": version.GitTime,
	}

	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(response); err != nil {
		h.logger.ErrorContext(req.Context(), "failed to encode version response", "error", err)
	}
}

// HandleHealth handles the /health endpoint for health checks.
func (h *Handler) HandleHealth(writer http.ResponseWriter, req *http.Request) {
	response := map[string]string{
		"status": "ok",
	}

	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(response); err != nil {
		h.logger.ErrorContext(req.Context(), "failed to encode health response", "error", err)
	}
}

// verifySignature verifies the X-Hub-Signature-256 header: "sha256=" plus
// the hex HMAC-SHA256 of the raw body keyed with the webhook secret.
// If no secret is configured, signature verification is skipped.
func (h *Handler) verifySignature(req *http.Request, body []byte) bool {
	// Skip verification if no secret is configured
	if h.secret == "" {
		return true
	}

	signature := req.Header.Get("X-Hub-Signature-256")
	if signature == "" {
		h.logger.Debug("missing signature header")
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}
