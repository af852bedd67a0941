package store

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// OSLocal implements Local over the OS filesystem using native paths.
// It is the default local file I/O collaborator of the FileStore.
type OSLocal struct{}

// Read reads a local file.
func (OSLocal) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the CLI user
	if err != nil {
		return nil, fmt.Errorf("read local file %s: %w", path, err)
	}
	return data, nil
}

// Write writes a local file, creating parent directories as needed.
func (OSLocal) Write(ctx context.Context, path string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("create parent dir: %w", err)
		}
	}
	if err := os.WriteFile(path, content, filePerm); err != nil {
		return fmt.Errorf("write local file %s: %w", path, err)
	}
	return nil
}

// Walk calls fn for every regular file under root, passing the path
// relative to root in slash form.
func (OSLocal) Walk(ctx context.Context, root string, fn func(relPath string) error) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel))
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", root, err)
	}
	return nil
}
