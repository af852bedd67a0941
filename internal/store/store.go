// Package store provides abstractions for file storage operations.
package store

import (
	"context"
	"io"
	"time"

	"github.com/fclairamb/ghsync/internal/github"
)

// FileInfo represents file metadata.
type FileInfo struct {
	Path    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// ClientProvider supplies an authenticated handle to the GitHub API on
// demand. Acquisition may itself fail (missing token, for example) and the
// failure is propagated to the caller of the operation that needed it.
type ClientProvider interface {
	Client(ctx context.Context) (*github.Client, error)
}

// Local abstracts the local file I/O used by the transfer operations
// (ReadToFile, WriteFromFile, WriteDirectory). The default implementation
// operates on the OS filesystem; tests inject their own.
type Local interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, content []byte) error

	// Walk calls fn for every regular file under root, with the path
	// relative to root in slash form. Returning an error from fn aborts
	// the walk.
	Walk(ctx context.Context, root string, fn func(relPath string) error) error
}

// CommitOptions carries the optional mutation parameters for write and
// delete operations. The zero value selects all defaults: a generated
// timestamped message, the store's default branch, and no author override.
// Author identity is applied only when both name and email are set.
type CommitOptions struct {
	Message     string
	Branch      string
	AuthorName  string
	AuthorEmail string
}

// author returns the author override, or nil when the identity is absent
// or partial.
func (o *CommitOptions) author() *github.Author {
	if o == nil || o.AuthorName == "" || o.AuthorEmail == "" {
		return nil
	}
	return &github.Author{Name: o.AuthorName, Email: o.AuthorEmail}
}

// BatchOutcome records the result of one member of a directory-scope
// operation. Either Commit or Err is set.
type BatchOutcome struct {
	Path   string
	Commit *github.CommitResponse
	Err    error
}

// Commits extracts the successful commit responses from a batch result,
// preserving order.
func Commits(outcomes []BatchOutcome) []*github.CommitResponse {
	var commits []*github.CommitResponse
	for _, o := range outcomes {
		if o.Err == nil {
			commits = append(commits, o.Commit)
		}
	}
	return commits
}

// Store abstracts read/write file operations on a rooted local tree.
// Implemented by LocalStore; consumed by the mirror and webhook worker.
//
//nolint:interfacebloat // Store needs all these methods for complete file/git operations
type Store interface {
	// Read operations
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	List(ctx context.Context, dir string) ([]FileInfo, error)

	// Write operations
	Write(ctx context.Context, path string, content []byte) error
	WriteStream(ctx context.Context, path string, reader io.Reader) (int64, error)
	Delete(ctx context.Context, path string) error
	Mkdir(ctx context.Context, path string) error

	// Atomic batch operations (maps to git commits)
	BeginTx(ctx context.Context) (Transaction, error)

	// Remote operations
	Push(ctx context.Context) error

	// Concurrency control for external coordination (e.g., sync worker)
	Lock()
	Unlock()
}

// Transaction groups multiple operations into one commit.
type Transaction interface {
	Write(ctx context.Context, path string, content []byte) error
	Delete(ctx context.Context, path string) error
	Commit(ctx context.Context, message string) error
	Rollback(ctx context.Context) error
}
