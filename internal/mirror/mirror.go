package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/fclairamb/ghsync/internal/github"
	"github.com/fclairamb/ghsync/internal/store"
)

// Mirror pulls a remote repository subtree into a local git-backed store.
// Each sync run produces at most one local commit.
type Mirror struct {
	files  *store.FileStore
	local  store.Store
	logger *slog.Logger
	owner  string
	repo   string
	root   string
	now    func() time.Time
}

// Option configures the Mirror.
type Option func(*Mirror)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mirror) {
		m.logger = l
	}
}

// WithRoot restricts the mirror to a remote subtree.
func WithRoot(root string) Option {
	return func(m *Mirror) {
		m.root = strings.TrimPrefix(root, "/")
	}
}

// WithClock sets the time source used for commit messages and state.
func WithClock(now func() time.Time) Option {
	return func(m *Mirror) {
		m.now = now
	}
}

// New creates a mirror of owner/repo into the given local store.
func New(files *store.FileStore, local store.Store, owner, repo string, opts ...Option) *Mirror {
	mirror := &Mirror{
		files:  files,
		local:  local,
		logger: slog.Default(),
		owner:  owner,
		repo:   repo,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(mirror)
	}

	return mirror
}

// Result summarizes a sync run.
type Result struct {
	Written int // files fetched and written locally
	Deleted int // stale local files removed
	Skipped int // files unchanged since the previous sync
	Failed  int // files that could not be fetched (logged and skipped)
}

// Sync brings the local store up to date with the remote subtree: changed
// files are fetched and staged, files gone from the remote are deleted,
// unchanged files (same blob SHA as recorded in state) are skipped. All
// staged changes and the updated state are committed in one git commit.
// Per-file fetch failures are logged and skipped; the sync continues.
func (m *Mirror) Sync(ctx context.Context) (*Result, error) {
	started := m.now()
	m.logger.InfoContext(ctx, "mirror sync starting", "owner", m.owner, "repo", m.repo, "root", m.root)

	state, err := LoadState(ctx, m.local)
	if err != nil {
		return nil, err
	}

	remote, err := m.collect(ctx, m.root)
	if err != nil {
		return nil, fmt.Errorf("list remote tree: %w", err)
	}

	tx, err := m.local.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	result := &Result{}
	if err := m.stageChanges(ctx, tx, state, remote, result); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	if result.Written == 0 && result.Deleted == 0 {
		_ = tx.Rollback(ctx)
		m.logger.InfoContext(ctx, "mirror sync complete, nothing changed",
			"skipped", result.Skipped, "failed", result.Failed)
		return result, nil
	}

	if err := state.Stage(ctx, tx, started); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	message := fmt.Sprintf("[ghsync] mirror %s/%s at %s", m.owner, m.repo, started.UTC().Format(time.RFC3339))
	if err := tx.Commit(ctx, message); err != nil {
		return nil, fmt.Errorf("commit mirror: %w", err)
	}

	m.logger.InfoContext(ctx, "mirror sync complete",
		"written", result.Written,
		"deleted", result.Deleted,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"time_spent_ms", time.Since(started).Milliseconds())
	return result, nil
}

// collect walks the remote tree under root and returns path -> blob SHA
// for every file.
func (m *Mirror) collect(ctx context.Context, root string) (map[string]string, error) {
	files := make(map[string]string)

	var walk func(dir string) error
	walk = func(dir string) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		entries, err := m.files.List(ctx, m.owner, m.repo, dir)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			switch {
			case entry.IsDir():
				if err := walk(entry.Path); err != nil {
					return err
				}
			case entry.Type == github.TypeFile:
				files[entry.Path] = entry.SHA
			default:
				// Symlinks and submodules are not mirrored.
				m.logger.DebugContext(ctx, "ignoring entry", "path", entry.Path, "type", entry.Type)
			}
		}
		return nil
	}

	if err := walk(root); err != nil {
		return nil, err
	}
	return files, nil
}

// stageChanges stages fetched and deleted files into the transaction and
// updates the state map accordingly.
func (m *Mirror) stageChanges(ctx context.Context, tx store.Transaction, state *State, remote map[string]string, result *Result) error {
	// Deterministic ordering for reproducible commits and logs.
	paths := make([]string, 0, len(remote))
	for p := range remote {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}

		sha := remote[p]
		if state.Files[p] == sha {
			result.Skipped++
			continue
		}

		data, err := m.files.ReadBytes(ctx, m.owner, m.repo, p)
		if err != nil {
			m.logger.WarnContext(ctx, "skipping file, fetch failed", "path", p, "error", err)
			result.Failed++
			continue
		}

		if err := tx.Write(ctx, p, data); err != nil {
			return fmt.Errorf("stage %s: %w", p, err)
		}
		state.Files[p] = sha
		result.Written++
	}

	// Remove local files that no longer exist remotely.
	stale := make([]string, 0)
	for p := range state.Files {
		if _, ok := remote[p]; !ok {
			stale = append(stale, p)
		}
	}
	sort.Strings(stale)

	for _, p := range stale {
		if err := tx.Delete(ctx, p); err != nil {
			return fmt.Errorf("stage delete %s: %w", p, err)
		}
		delete(state.Files, p)
		result.Deleted++
	}

	return nil
}
