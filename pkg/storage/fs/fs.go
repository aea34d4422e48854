// Package fs implements storage.Backend on the local filesystem.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/stormrose-io/filegate/pkg/storage"
)

// Store persists objects as regular files under a root directory.
//
// Keys map to paths below the root; directories are created on demand
// when saving. Filesystem operations are thread-safe at the OS level,
// but concurrent writes to the same key can interleave; callers that
// need stronger guarantees must serialize externally.
type Store struct {
	root string
}

// New creates a filesystem store rooted at root, creating the
// directory if needed.
func New(ctx context.Context, root string) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if root == "" {
		return nil, fmt.Errorf("filesystem store: root path is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create root directory: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// fullPath resolves key below the root, rejecting escapes.
func (s *Store) fullPath(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidKey, key)
	}
	full := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidKey, key)
	}
	return full, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := s.fullPath(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %q: %w", key, err)
	}
	return !info.IsDir(), nil
}

func (s *Store) Save(ctx context.Context, key string, r io.Reader, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create directory for %q: %w", key, err)
	}

	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("create %q: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return fmt.Errorf("write %q: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %q: %w", key, err)
	}
	return nil
}

func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.fullPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("open %q: %w", key, storage.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("open %q: %w", key, err)
	}
	return f, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Rename moves oldKey to newKey. os.Rename is atomic on the same
// volume; across devices it falls back to copy then delete.
func (s *Store) Rename(ctx context.Context, oldKey, newKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	oldFull, err := s.fullPath(oldKey)
	if err != nil {
		return err
	}
	newFull, err := s.fullPath(newKey)
	if err != nil {
		return err
	}
	if _, err := os.Stat(oldFull); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("rename %q: %w", oldKey, storage.ErrObjectNotFound)
		}
		return fmt.Errorf("rename %q: %w", oldKey, err)
	}
	if err := os.MkdirAll(filepath.Dir(newFull), 0o755); err != nil {
		return fmt.Errorf("create directory for %q: %w", newKey, err)
	}

	if err := os.Rename(oldFull, newFull); err == nil {
		return nil
	}

	src, err := os.Open(oldFull)
	if err != nil {
		return fmt.Errorf("rename %q: %w", oldKey, err)
	}
	defer src.Close()

	dst, err := os.Create(newFull)
	if err != nil {
		return fmt.Errorf("rename to %q: %w", newKey, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(newFull)
		return fmt.Errorf("copy %q to %q: %w", oldKey, newKey, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close %q: %w", newKey, err)
	}
	if err := os.Remove(oldFull); err != nil {
		return fmt.Errorf("remove original %q: %w", oldKey, err)
	}
	return nil
}
