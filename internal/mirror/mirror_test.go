package mirror

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fclairamb/ghsync/internal/github"
	"github.com/fclairamb/ghsync/internal/store"
)

// fakeRemote serves a minimal contents API for the repository o/r: directory
// listings as JSON arrays, file fetches as base64 objects.
type fakeRemote struct {
	mu    sync.Mutex
	files map[string][]byte
	shas  map[string]string
	fail  map[string]int // file path -> status code returned on fetch
	rev   int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		files: map[string][]byte{},
		shas:  map[string]string{},
		fail:  map[string]int{},
	}
}

func (f *fakeRemote) seed(path string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rev++
	f.files[path] = content
	f.shas[path] = fmt.Sprintf("blob-%d", f.rev)
}

func (f *fakeRemote) remove(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
	delete(f.shas, path)
}

type remoteEntry struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int    `json:"size"`
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

func (f *fakeRemote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := strings.TrimPrefix(r.URL.Path, "/repos/o/r/contents")
	p = strings.TrimPrefix(p, "/")

	if content, ok := f.files[p]; ok {
		if status := f.fail[p]; status != 0 {
			w.WriteHeader(status)
			_, _ = fmt.Fprintf(w, `{"message":"injected failure"}`)
			return
		}
		name := p[strings.LastIndex(p, "/")+1:]
		_ = json.NewEncoder(w).Encode(remoteEntry{
			Name:     name,
			Path:     p,
			SHA:      f.shas[p],
			Size:     len(content),
			Type:     string(github.TypeFile),
			Content:  base64.StdEncoding.EncodeToString(content),
			Encoding: string(github.EncodingBase64),
		})
		return
	}

	entries := f.list(p)
	if entries == nil && p != "" {
		w.WriteHeader(http.StatusNotFound)
		_, _ = fmt.Fprintf(w, `{"message":"Not Found"}`)
		return
	}
	if entries == nil {
		entries = []remoteEntry{}
	}
	_ = json.NewEncoder(w).Encode(entries)
}

// list returns the immediate children of dir, directories first.
func (f *fakeRemote) list(dir string) []remoteEntry {
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	dirs := map[string]bool{}
	var fileEntries []remoteEntry
	for p, content := range f.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if idx := strings.Index(rest, "/"); idx >= 0 {
			dirs[rest[:idx]] = true
			continue
		}
		fileEntries = append(fileEntries, remoteEntry{
			Name: rest,
			Path: p,
			SHA:  f.shas[p],
			Size: len(content),
			Type: string(github.TypeFile),
		})
	}

	if len(dirs) == 0 && len(fileEntries) == 0 {
		return nil
	}

	var entries []remoteEntry
	for name := range dirs {
		entries = append(entries, remoteEntry{
			Name: name,
			Path: prefix + name,
			SHA:  "tree-" + name,
			Type: string(github.TypeDir),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	sort.Slice(fileEntries, func(i, j int) bool { return fileEntries[i].Name < fileEntries[j].Name })
	return append(entries, fileEntries...)
}

// newTestMirror wires a fake remote, a temp-dir local store and a mirror
// with a fixed clock.
func newTestMirror(t *testing.T, opts ...Option) (*fakeRemote, *Mirror, *store.LocalStore) {
	t.Helper()

	remote := newFakeRemote()
	srv := httptest.NewServer(remote)
	t.Cleanup(srv.Close)

	client := github.NewClient("",
		github.WithBaseURL(srv.URL),
		github.WithRateLimit(time.Millisecond))
	files := store.NewFileStore(github.NewStaticProvider(client))

	local, err := store.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local store: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	opts = append([]Option{WithLogger(logger), WithClock(clock)}, opts...)

	return remote, New(files, local, "o", "r", opts...), local
}

// TestSync_InitialImport verifies that a first sync writes every remote file
// and records the state.
func TestSync_InitialImport(t *testing.T) {
	t.Parallel()
	remote, mirror, local := newTestMirror(t)
	ctx := context.Background()

	remote.seed("readme.md", []byte("hello"))
	remote.seed("docs/a.txt", []byte("aaa"))
	remote.seed("docs/sub/b.txt", []byte("b"))

	result, err := mirror.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if result.Written != 3 || result.Deleted != 0 || result.Skipped != 0 || result.Failed != 0 {
		t.Errorf("unexpected result: %+v", result)
	}

	data, err := local.Read(ctx, "docs/sub/b.txt")
	if err != nil {
		t.Fatalf("local read failed: %v", err)
	}
	if string(data) != "b" {
		t.Errorf("unexpected content: %q", data)
	}

	state, err := LoadState(ctx, local)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if len(state.Files) != 3 {
		t.Errorf("expected 3 tracked files, got %d", len(state.Files))
	}
	if state.SyncedAt == nil || !state.SyncedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("unexpected synced_at: %v", state.SyncedAt)
	}
}

// TestSync_SkipUnchanged verifies that a second sync with no remote changes
// skips every file and commits nothing.
func TestSync_SkipUnchanged(t *testing.T) {
	t.Parallel()
	remote, mirror, _ := newTestMirror(t)
	ctx := context.Background()

	remote.seed("a.txt", []byte("a"))
	remote.seed("b.txt", []byte("b"))

	if _, err := mirror.Sync(ctx); err != nil {
		t.Fatalf("first Sync failed: %v", err)
	}

	result, err := mirror.Sync(ctx)
	if err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	if result.Written != 0 || result.Deleted != 0 || result.Failed != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.Skipped != 2 {
		t.Errorf("expected 2 skipped files, got %d", result.Skipped)
	}
}

// TestSync_ChangedFile verifies that only files with a new blob SHA are
// fetched again.
func TestSync_ChangedFile(t *testing.T) {
	t.Parallel()
	remote, mirror, local := newTestMirror(t)
	ctx := context.Background()

	remote.seed("a.txt", []byte("a"))
	remote.seed("b.txt", []byte("b"))

	if _, err := mirror.Sync(ctx); err != nil {
		t.Fatalf("first Sync failed: %v", err)
	}

	remote.seed("a.txt", []byte("a v2"))

	result, err := mirror.Sync(ctx)
	if err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	if result.Written != 1 || result.Skipped != 1 {
		t.Errorf("unexpected result: %+v", result)
	}

	data, err := local.Read(ctx, "a.txt")
	if err != nil {
		t.Fatalf("local read failed: %v", err)
	}
	if string(data) != "a v2" {
		t.Errorf("unexpected content: %q", data)
	}
}

// TestSync_RemoteDeletion verifies that files gone from the remote are
// removed locally.
func TestSync_RemoteDeletion(t *testing.T) {
	t.Parallel()
	remote, mirror, local := newTestMirror(t)
	ctx := context.Background()

	remote.seed("keep.txt", []byte("keep"))
	remote.seed("gone.txt", []byte("gone"))

	if _, err := mirror.Sync(ctx); err != nil {
		t.Fatalf("first Sync failed: %v", err)
	}

	remote.remove("gone.txt")

	result, err := mirror.Sync(ctx)
	if err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	if result.Deleted != 1 || result.Skipped != 1 {
		t.Errorf("unexpected result: %+v", result)
	}

	exists, err := local.Exists(ctx, "gone.txt")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("expected gone.txt removed locally")
	}

	state, err := LoadState(ctx, local)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if _, ok := state.Files["gone.txt"]; ok {
		t.Error("expected gone.txt dropped from state")
	}
}

// TestSync_FetchFailureContinues verifies that a failed file fetch is
// skipped and retried on the next run.
func TestSync_FetchFailureContinues(t *testing.T) {
	t.Parallel()
	remote, mirror, local := newTestMirror(t)
	ctx := context.Background()

	remote.seed("ok1.txt", []byte("1"))
	remote.seed("ok2.txt", []byte("2"))
	remote.seed("bad.txt", []byte("3"))
	remote.fail["bad.txt"] = http.StatusInternalServerError

	result, err := mirror.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if result.Written != 2 || result.Failed != 1 {
		t.Errorf("unexpected result: %+v", result)
	}

	exists, err := local.Exists(ctx, "bad.txt")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("expected failed file to be absent locally")
	}

	// The failed file is not recorded, so the next run fetches it.
	delete(remote.fail, "bad.txt")

	result, err = mirror.Sync(ctx)
	if err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	if result.Written != 1 || result.Skipped != 2 || result.Failed != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
}

// TestSync_Root verifies that the mirror can be restricted to a remote
// subtree.
func TestSync_Root(t *testing.T) {
	t.Parallel()
	remote, mirror, local := newTestMirror(t, WithRoot("/docs"))
	ctx := context.Background()

	remote.seed("readme.md", []byte("top"))
	remote.seed("docs/a.txt", []byte("a"))
	remote.seed("docs/sub/b.txt", []byte("b"))

	result, err := mirror.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if result.Written != 2 {
		t.Errorf("expected 2 files written, got %+v", result)
	}

	exists, err := local.Exists(ctx, "readme.md")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("expected readme.md outside the root to be ignored")
	}

	data, err := local.Read(ctx, "docs/a.txt")
	if err != nil {
		t.Fatalf("local read failed: %v", err)
	}
	if string(data) != "a" {
		t.Errorf("unexpected content: %q", data)
	}
}

// TestSync_Canceled verifies that cancellation aborts the run.
func TestSync_Canceled(t *testing.T) {
	t.Parallel()
	remote, mirror, _ := newTestMirror(t)

	remote.seed("a.txt", []byte("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := mirror.Sync(ctx); err == nil {
		t.Error("expected an error from a canceled sync")
	}
}

// TestLoadState_Missing verifies that a missing state file yields a fresh
// empty state.
func TestLoadState_Missing(t *testing.T) {
	t.Parallel()

	local, err := store.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local store: %v", err)
	}

	state, err := LoadState(context.Background(), local)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if state.Version != stateFormatVersion {
		t.Errorf("expected version %d, got %d", stateFormatVersion, state.Version)
	}
	if len(state.Files) != 0 {
		t.Errorf("expected empty state, got %d files", len(state.Files))
	}
}

// TestLoadState_VersionMismatch verifies that an unknown state version
// triggers a full resync instead of a parse guess.
func TestLoadState_VersionMismatch(t *testing.T) {
	t.Parallel()

	local, err := store.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local store: %v", err)
	}
	ctx := context.Background()

	stale := `{"version": 99, "files": {"a.txt": "blob-1"}}`
	if err := local.Write(ctx, ".ghsync/state.json", []byte(stale)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	state, err := LoadState(ctx, local)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if len(state.Files) != 0 {
		t.Errorf("expected stale state discarded, got %d files", len(state.Files))
	}
}
