// Package storage provides object store backends for index snapshots: a
// local filesystem store for development and tests, and a Supabase Storage
// client for production.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lorebot/lore/internal/index"
)

// FS is an object store rooted at a local directory. Keys map to relative
// file paths under the root. Move uses os.Rename, so promotion of a
// temporary snapshot is atomic on POSIX filesystems.
type FS struct {
	root string
}

// NewFS creates a filesystem-backed object store rooted at dir.
func NewFS(dir string) (*FS, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage root directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating storage root %q: %w", dir, err)
	}
	return &FS{root: dir}, nil
}

// Get reads the object under key, or index.ErrNotFound.
func (f *FS) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := f.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path is validated against the root
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", index.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading object %q: %w", key, err)
	}
	return data, nil
}

// Put writes data under key, creating parent directories as needed.
func (f *FS) Put(ctx context.Context, key string, data []byte) error {
	path, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating directories for %q: %w", key, err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("writing object %q: %w", key, err)
	}
	return nil
}

// Move renames an object. The rename is atomic, replacing any existing
// object at the destination.
func (f *FS) Move(ctx context.Context, from, to string) error {
	src, err := f.resolve(from)
	if err != nil {
		return err
	}
	dst, err := f.resolve(to)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("creating directories for %q: %w", to, err)
	}
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", index.ErrNotFound, from)
		}
		return fmt.Errorf("moving object %q to %q: %w", from, to, err)
	}
	return nil
}

// resolve maps a key to an absolute path and rejects traversal outside the
// root.
func (f *FS) resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("object key must not be empty")
	}
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(f.root, cleaned), nil
}
