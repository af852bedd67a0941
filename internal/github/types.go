// Package github provides a client for the GitHub REST API.
package github

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Entry type discriminators returned by the contents API.
const (
	TypeFile = "file"
	TypeDir  = "dir"

	// EncodingBase64 marks base64-encoded file content.
	EncodingBase64 = "base64"
)

// ContentEntry represents a single file or directory entry in a repository's
// content tree at a point in time.
type ContentEntry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	Size        int64  `json:"size"`
	Type        string `json:"type"` // "file", "dir", "symlink" or "submodule"
	Content     string `json:"content,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
	URL         string `json:"url"`
	HTMLURL     string `json:"html_url,omitempty"`
	GitURL      string `json:"git_url,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

// IsDir returns true if the entry is a directory.
func (e *ContentEntry) IsDir() bool {
	return e.Type == TypeDir
}

// HasContent returns true if the entry carries a content payload.
// Directory entries and files above the API size limit have none.
func (e *ContentEntry) HasContent() bool {
	return e.Content != "" || (e.Type == TypeFile && e.Size == 0)
}

// Decode returns the entry's raw content bytes. Base64-encoded content is
// decoded; any other encoding is treated as a direct string representation.
func (e *ContentEntry) Decode() ([]byte, error) {
	if e.Encoding == EncodingBase64 {
		// The API wraps base64 payloads with newlines.
		data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(e.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("decode content of %s: %w", e.Path, err)
		}
		return data, nil
	}
	return []byte(e.Content), nil
}

// Author identifies the author or committer of a commit.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Commit describes the commit produced by a contents mutation.
type Commit struct {
	SHA     string  `json:"sha"`
	URL     string  `json:"url,omitempty"`
	HTMLURL string  `json:"html_url,omitempty"`
	Message string  `json:"message,omitempty"`
	Author  *Author `json:"author,omitempty"`
}

// CommitResponse is the outcome of a write or delete mutation.
// Commit may be nil when the remote reports no commit despite success;
// callers must treat that as "accepted, commit metadata unavailable".
type CommitResponse struct {
	Content *ContentEntry `json:"content"`
	Commit  *Commit       `json:"commit"`
}

// PutRequest is the body of a contents PUT (create or update).
type PutRequest struct {
	Message string  `json:"message"`
	Content string  `json:"content"` // base64-encoded
	Branch  string  `json:"branch,omitempty"`
	SHA     string  `json:"sha,omitempty"` // required when replacing an existing file
	Author  *Author `json:"author,omitempty"`
}

// DeleteRequest is the body of a contents DELETE.
type DeleteRequest struct {
	Message string  `json:"message"`
	SHA     string  `json:"sha"`
	Branch  string  `json:"branch,omitempty"`
	Author  *Author `json:"author,omitempty"`
}

// Repository holds the subset of repository metadata the application uses.
type Repository struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
}

// APIError is an error response from the GitHub API.
type APIError struct {
	StatusCode       int    `json:"-"`
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("github: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("github: HTTP %d", e.StatusCode)
}
