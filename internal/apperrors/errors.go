// Package apperrors provides common static errors used throughout the application.
package apperrors

import (
	"errors"
	"fmt"
)

// HTTPError represents an HTTP error with a status code.
type HTTPError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// NewHTTPError creates a new HTTPError.
func NewHTTPError(statusCode int, body string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Body: body}
}

// Common static errors used throughout the application.
var (
	// ErrNotFound is returned when the remote repository has no entry at the requested path.
	ErrNotFound = errors.New("not found")

	// ErrIsDirectory is returned when a path addressed as a file resolves to a directory.
	ErrIsDirectory = errors.New("path is a directory")

	// ErrNotDirectory is returned when a path addressed as a directory resolves to a file.
	ErrNotDirectory = errors.New("path is not a directory")

	// ErrNoContent is returned when a file entry carries no content payload.
	// It wraps ErrNotFound so callers checking for missing content and
	// missing entries can use a single errors.Is check.
	ErrNoContent = fmt.Errorf("entry has no content: %w", ErrNotFound)

	// ErrTokenRequired is returned when a GitHub token is required but not provided.
	ErrTokenRequired = errors.New("github token required (--token or GITHUB_TOKEN env var)")

	// ErrOwnerRequired is returned when the repository owner is not provided.
	ErrOwnerRequired = errors.New("repository owner required (--owner or GHS_OWNER env var)")

	// ErrRepoRequired is returned when the repository name is not provided.
	ErrRepoRequired = errors.New("repository name required (--repo or GHS_REPO env var)")

	// ErrPathRequired is returned when a repository path argument is required but not provided.
	ErrPathRequired = errors.New("path argument required")

	// ErrContentRequired is returned when a write command receives neither a local file nor inline content.
	ErrContentRequired = errors.New("content required (pass a local file argument or --content)")

	// ErrMaxRetriesExceeded is returned when the maximum number of retries is exceeded.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrRemoteNotConfigured is returned when a git remote operation is attempted but no remote is configured.
	ErrRemoteNotConfigured = errors.New("no remote configured")

	// ErrRemoteNotConfiguredSetURL is returned when push/pull is attempted without GHS_GIT_URL set.
	ErrRemoteNotConfiguredSetURL = errors.New("remote not configured (set GHS_GIT_URL)")

	// ErrHTTPSPasswordRequired is returned when HTTPS git URL is used without GHS_GIT_PASS.
	ErrHTTPSPasswordRequired = errors.New("GHS_GIT_PASS required for HTTPS URLs")

	// ErrTransactionCommitted is returned when attempting to use a transaction that has already been committed.
	ErrTransactionCommitted = errors.New("transaction already committed")

	// ErrNotLocalStore is returned when an operation requires a LocalStore but a different store type was provided.
	ErrNotLocalStore = errors.New("store is not a LocalStore")
)
