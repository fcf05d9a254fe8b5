package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileStore keeps blobs as plain files below a base directory. It is the
// zero-dependency backend for development and single-node deployments.
type FileStore struct {
	baseDir    string
	pathPrefix string
}

// NewFileStore roots a store at baseDir, creating it when missing. An
// optional pathPrefix nests every key below one subdirectory so source and
// result blobs can share a single base directory.
func NewFileStore(baseDir, pathPrefix string) (*FileStore, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("file store base dir is required")
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create base dir: %w", err)
	}
	return &FileStore{baseDir: abs, pathPrefix: strings.Trim(pathPrefix, "/")}, nil
}

func (s *FileStore) Get(ctx context.Context, key string) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return Blob{}, err
	}
	full, err := s.resolve(key)
	if err != nil {
		return Blob{}, err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return Blob{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return Blob{}, fmt.Errorf("read blob %s: %w", key, err)
	}
	return Blob{Data: data}, nil
}

func (s *FileStore) Put(ctx context.Context, key string, blob Blob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	if err := os.WriteFile(full, blob.Data, 0o644); err != nil {
		return fmt.Errorf("write blob %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(key)
	if err != nil {
		return err
	}
	err = os.Remove(full)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

// resolve maps a key onto the filesystem and refuses keys that would land
// outside the base directory.
func (s *FileStore) resolve(key string) (string, error) {
	key = strings.Trim(key, "/")
	if key == "" {
		return "", fmt.Errorf("storage key is empty")
	}
	rel := path.Join(s.pathPrefix, key)
	full := filepath.Join(s.baseDir, filepath.FromSlash(rel))
	if full != s.baseDir && !strings.HasPrefix(full, s.baseDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage key escapes base dir: %s", key)
	}
	return full, nil
}
