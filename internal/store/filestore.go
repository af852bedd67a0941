package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/fclairamb/ghsync/internal/apperrors"
	"github.com/fclairamb/ghsync/internal/github"
)

const (
	// DefaultBranch is the branch targeted by mutations when no branch is
	// configured on the store or supplied per call.
	DefaultBranch = "main"

	// rawBaseURL is the host serving raw file content.
	rawBaseURL = "https://raw.githubusercontent.com"
)

// FileStore is a stateless facade offering path-addressed CRUD and derived
// convenience operations against remote repository content trees. It holds
// no state across calls: every operation acquires the API client from its
// provider and builds its result fresh from the remote response.
//
// Writes and deletes re-read the target entry's SHA immediately before the
// mutation. Concurrent writers targeting the same path race on that read;
// the later mutation is rejected by the remote (HTTP 409) and surfaced as a
// transport failure.
type FileStore struct {
	provider ClientProvider
	local    Local
	logger   *slog.Logger
	branch   string
	now      func() time.Time
}

// FileStoreOption configures the FileStore.
type FileStoreOption func(*FileStore)

// WithLogger sets a custom logger for the store.
func WithLogger(l *slog.Logger) FileStoreOption {
	return func(s *FileStore) {
		s.logger = l
	}
}

// WithLocal sets the local file I/O implementation.
func WithLocal(local Local) FileStoreOption {
	return func(s *FileStore) {
		s.local = local
	}
}

// WithDefaultBranch sets the branch targeted by mutations when no branch is
// supplied per call.
func WithDefaultBranch(branch string) FileStoreOption {
	return func(s *FileStore) {
		s.branch = branch
	}
}

// WithClock sets the time source used for generated commit messages.
func WithClock(now func() time.Time) FileStoreOption {
	return func(s *FileStore) {
		s.now = now
	}
}

// NewFileStore creates a new file store backed by the given client provider.
func NewFileStore(provider ClientProvider, opts ...FileStoreOption) *FileStore {
	store := &FileStore{
		provider: provider,
		local:    OSLocal{},
		logger:   slog.Default(),
		branch:   DefaultBranch,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// normalizePath strips at most one leading slash. Paths are otherwise
// passed through verbatim: the remote service is the authority on path
// legality.
func normalizePath(p string) string {
	return strings.TrimPrefix(p, "/")
}

// mutationBranch returns the branch a mutation targets.
func (s *FileStore) mutationBranch(opts *CommitOptions) string {
	if opts != nil && opts.Branch != "" {
		return opts.Branch
	}
	if s.branch != "" {
		return s.branch
	}
	return DefaultBranch
}

// message returns the commit message for a mutation, generating a
// timestamped default when the caller supplied none.
func (s *FileStore) message(opts *CommitOptions, op, p string) string {
	if opts != nil && opts.Message != "" {
		return opts.Message
	}
	return fmt.Sprintf("[ghsync] %s %s at %s", op, p, s.now().UTC().Format(time.RFC3339))
}

// Get returns the content entry at the exact path.
func (s *FileStore) Get(ctx context.Context, owner, repo, p string) (*github.ContentEntry, error) {
	p = normalizePath(p)

	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	entry, _, err := client.GetContents(ctx, owner, repo, p, "")
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("get %s: %w", p, apperrors.ErrIsDirectory)
	}
	return entry, nil
}

// Metadata returns the entry at path with the content payload stripped.
func (s *FileStore) Metadata(ctx context.Context, owner, repo, p string) (*github.ContentEntry, error) {
	entry, err := s.Get(ctx, owner, repo, p)
	if err != nil {
		return nil, err
	}
	meta := *entry
	meta.Content = ""
	meta.Encoding = ""
	return &meta, nil
}

// ReadBytes returns the raw decoded bytes of the file at path.
func (s *FileStore) ReadBytes(ctx context.Context, owner, repo, p string) ([]byte, error) {
	entry, err := s.Get(ctx, owner, repo, p)
	if err != nil {
		return nil, err
	}
	if !entry.HasContent() {
		return nil, fmt.Errorf("read %s: %w", entry.Path, apperrors.ErrNoContent)
	}
	return entry.Decode()
}

// Read returns the file content at path decoded as a UTF-8 string.
func (s *FileStore) Read(ctx context.Context, owner, repo, p string) (string, error) {
	data, err := s.ReadBytes(ctx, owner, repo, p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadToFile downloads the file at path into localPath.
func (s *FileStore) ReadToFile(ctx context.Context, owner, repo, p, localPath string) error {
	data, err := s.ReadBytes(ctx, owner, repo, p)
	if err != nil {
		return err
	}
	if err := s.local.Write(ctx, localPath, data); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "downloaded file", "path", p, "local_path", localPath, "size", len(data))
	return nil
}

// WriteBytes creates or replaces the file at path with the given bytes.
// The current SHA is re-read immediately before the mutation: a missing
// entry (including an entirely empty repository) means first creation and
// no SHA is attached.
func (s *FileStore) WriteBytes(ctx context.Context, owner, repo, p string, content []byte, opts *CommitOptions) (*github.CommitResponse, error) {
	p = normalizePath(p)

	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	branch := s.mutationBranch(opts)

	var sha string
	entry, _, err := client.GetContents(ctx, owner, repo, p, branch)
	switch {
	case err == nil && entry != nil:
		sha = entry.SHA
	case err == nil:
		// Path currently resolves to a directory; let the remote reject
		// the mutation.
	case errors.Is(err, apperrors.ErrNotFound):
		// First creation.
	default:
		return nil, err
	}

	s.logger.DebugContext(ctx, "writing file", "owner", owner, "repo", repo, "path", p,
		"branch", branch, "size", len(content), "replace", sha != "")

	resp, err := client.PutContents(ctx, owner, repo, p, &github.PutRequest{
		Message: s.message(opts, "put", p),
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  branch,
		SHA:     sha,
		Author:  opts.author(),
	})
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "write complete", "path", p, "commit", commitSHA(resp))
	return resp, nil
}

// Write creates or replaces the file at path with the given string content.
func (s *FileStore) Write(ctx context.Context, owner, repo, p, content string, opts *CommitOptions) (*github.CommitResponse, error) {
	return s.WriteBytes(ctx, owner, repo, p, []byte(content), opts)
}

// WriteFromFile uploads the local file at localPath to path.
func (s *FileStore) WriteFromFile(ctx context.Context, owner, repo, p, localPath string, opts *CommitOptions) (*github.CommitResponse, error) {
	data, err := s.local.Read(ctx, localPath)
	if err != nil {
		return nil, err
	}
	return s.WriteBytes(ctx, owner, repo, p, data, opts)
}

// Delete removes the file at path. The entry must exist: its SHA is read
// first and a missing entry fails with a not-found error.
func (s *FileStore) Delete(ctx context.Context, owner, repo, p string, opts *CommitOptions) (*github.CommitResponse, error) {
	p = normalizePath(p)

	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	branch := s.mutationBranch(opts)

	entry, _, err := client.GetContents(ctx, owner, repo, p, branch)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("delete %s: %w", p, apperrors.ErrIsDirectory)
	}

	s.logger.DebugContext(ctx, "deleting file", "owner", owner, "repo", repo, "path", p, "branch", branch)

	resp, err := client.DeleteContents(ctx, owner, repo, p, &github.DeleteRequest{
		Message: s.message(opts, "delete", p),
		SHA:     entry.SHA,
		Branch:  branch,
		Author:  opts.author(),
	})
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "delete complete", "path", p, "commit", commitSHA(resp))
	return resp, nil
}

// List returns the members of the directory at path in listing order.
func (s *FileStore) List(ctx context.Context, owner, repo, p string) ([]github.ContentEntry, error) {
	p = normalizePath(p)

	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	entry, entries, err := client.GetContents(ctx, owner, repo, p, "")
	if err != nil {
		return nil, err
	}
	if entry != nil {
		return nil, fmt.Errorf("list %s: %w", p, apperrors.ErrNotDirectory)
	}
	return entries, nil
}

// Exists reports whether the entry at path exists. Every failure mode,
// including transport errors, is coerced to false.
func (s *FileStore) Exists(ctx context.Context, owner, repo, p string) bool {
	_, err := s.Get(ctx, owner, repo, p)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.DebugContext(ctx, "existence check failed", "path", p, "error", err)
		}
		return false
	}
	return true
}

// Copy reads the file at srcPath and writes it to dstPath. No partial
// state is reverted on failure.
func (s *FileStore) Copy(ctx context.Context, owner, repo, srcPath, dstPath string, opts *CommitOptions) (*github.CommitResponse, error) {
	data, err := s.ReadBytes(ctx, owner, repo, srcPath)
	if err != nil {
		return nil, err
	}
	return s.WriteBytes(ctx, owner, repo, dstPath, data, opts)
}

// Move copies the file at srcPath to dstPath and then deletes the source.
// A failure of the delete step is fatal for the call even though the copy
// has already taken effect: the commit response of the copied file is
// returned alongside the error, and the caller must reconcile the
// leftover source manually.
func (s *FileStore) Move(ctx context.Context, owner, repo, srcPath, dstPath string, opts *CommitOptions) (*github.CommitResponse, error) {
	resp, err := s.Copy(ctx, owner, repo, srcPath, dstPath, opts)
	if err != nil {
		return nil, err
	}

	if _, err := s.Delete(ctx, owner, repo, srcPath, opts); err != nil {
		return resp, fmt.Errorf("move: source %s not removed after copy to %s: %w",
			normalizePath(srcPath), normalizePath(dstPath), err)
	}
	return resp, nil
}

// WriteDirectory uploads every regular file under localDir to the
// destination root, one commit per file. Individual file failures are
// logged, recorded and skipped; the batch continues. The returned outcomes
// follow walk order. Context cancellation aborts the batch and returns the
// outcomes accumulated so far.
func (s *FileStore) WriteDirectory(ctx context.Context, owner, repo, destRoot, localDir string, opts *CommitOptions) ([]BatchOutcome, error) {
	destRoot = normalizePath(destRoot)

	var outcomes []BatchOutcome
	err := s.local.Walk(ctx, localDir, func(relPath string) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		dest := relPath
		if destRoot != "" {
			dest = path.Join(destRoot, relPath)
		}

		data, readErr := s.local.Read(ctx, path.Join(localDir, relPath))
		if readErr != nil {
			s.logger.WarnContext(ctx, "skipping file, local read failed",
				"local_path", relPath, "error", readErr)
			outcomes = append(outcomes, BatchOutcome{Path: dest, Err: readErr})
			return nil
		}

		resp, writeErr := s.WriteBytes(ctx, owner, repo, dest, data, opts)
		if writeErr != nil {
			s.logger.WarnContext(ctx, "skipping file, remote write failed",
				"path", dest, "error", writeErr)
			outcomes = append(outcomes, BatchOutcome{Path: dest, Err: writeErr})
			return nil
		}

		outcomes = append(outcomes, BatchOutcome{Path: dest, Commit: resp})
		return nil
	})
	if err != nil {
		if ctxErr := context.Cause(ctx); ctxErr != nil {
			return outcomes, ctxErr
		}
		return outcomes, err
	}

	s.logger.InfoContext(ctx, "directory upload complete",
		"owner", owner, "repo", repo, "dest", destRoot, "files", len(outcomes))
	return outcomes, nil
}

// DeleteDirectory deletes every file under path, recursing into
// subdirectories, one commit per file. Individual failures are logged,
// recorded and skipped; partial deletion is possible and nothing is rolled
// back.
func (s *FileStore) DeleteDirectory(ctx context.Context, owner, repo, p string, opts *CommitOptions) ([]BatchOutcome, error) {
	p = normalizePath(p)

	entries, err := s.List(ctx, owner, repo, p)
	if err != nil {
		return nil, err
	}

	var outcomes []BatchOutcome
	if err := s.deleteEntries(ctx, owner, repo, entries, opts, &outcomes); err != nil {
		return outcomes, err
	}

	s.logger.InfoContext(ctx, "directory delete complete",
		"owner", owner, "repo", repo, "path", p, "entries", len(outcomes))
	return outcomes, nil
}

// deleteEntries deletes the given entries depth-first, accumulating
// per-member outcomes. Only context cancellation aborts the loop.
func (s *FileStore) deleteEntries(ctx context.Context, owner, repo string, entries []github.ContentEntry, opts *CommitOptions, outcomes *[]BatchOutcome) error {
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		if entry.IsDir() {
			children, err := s.List(ctx, owner, repo, entry.Path)
			if err != nil {
				s.logger.WarnContext(ctx, "skipping directory, listing failed",
					"path", entry.Path, "error", err)
				*outcomes = append(*outcomes, BatchOutcome{Path: entry.Path, Err: err})
				continue
			}
			if err := s.deleteEntries(ctx, owner, repo, children, opts, outcomes); err != nil {
				return err
			}
			continue
		}

		resp, err := s.Delete(ctx, owner, repo, entry.Path, opts)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping entry, delete failed",
				"path", entry.Path, "error", err)
			*outcomes = append(*outcomes, BatchOutcome{Path: entry.Path, Err: err})
			continue
		}
		*outcomes = append(*outcomes, BatchOutcome{Path: entry.Path, Commit: resp})
	}
	return nil
}

// DeleteRepositoryContents deletes every file in the repository. It is
// equivalent to DeleteDirectory at the repository root.
func (s *FileStore) DeleteRepositoryContents(ctx context.Context, owner, repo string, opts *CommitOptions) ([]BatchOutcome, error) {
	return s.DeleteDirectory(ctx, owner, repo, "", opts)
}

// RawDownloadURL returns the static raw-content URL for a file. It is a
// pure string template: no existence check, no network round-trip.
func (s *FileStore) RawDownloadURL(owner, repo, branch, p string) string {
	if branch == "" {
		branch = s.mutationBranch(nil)
	}
	return rawBaseURL + "/" + owner + "/" + repo + "/" + branch + "/" + normalizePath(p)
}

// commitSHA extracts the commit SHA for logging, tolerating absent commit
// metadata.
func commitSHA(resp *github.CommitResponse) string {
	if resp == nil || resp.Commit == nil {
		return ""
	}
	return resp.Commit.SHA
}
