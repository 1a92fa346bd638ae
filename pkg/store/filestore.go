package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists blobs as files under a base directory. Keys may contain
// slashes; each run gets its own subdirectory so concurrent runs never clash.
type FileStore struct {
	baseDir string
}

func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: could not create %s directory: %w", baseDir, err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (f *FileStore) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	target, err := f.resolve(key)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(target); err == nil {
		return "", ErrKeyExists
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("store: could not create directory for %s: %w", key, err)
	}

	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("store: could not create blob file for %s: %w", key, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("store: could not write blob %s: %w", key, err)
	}
	// Flush to disk so the put is durable before the location escapes.
	if err := out.Sync(); err != nil {
		return "", fmt.Errorf("store: could not sync blob %s: %w", key, err)
	}
	return target, nil
}

func (f *FileStore) Get(ctx context.Context, location string) (io.ReadCloser, error) {
	r, err := os.Open(filepath.Clean(location))
	if os.IsNotExist(err) {
		return nil, ErrKeyDoesntExist
	}
	return r, err
}

func (f *FileStore) Delete(ctx context.Context, location string) error {
	err := os.Remove(filepath.Clean(location))
	if os.IsNotExist(err) {
		return ErrKeyDoesntExist
	}
	return err
}

// resolve maps a key to a path inside baseDir, rejecting traversal outside it.
func (f *FileStore) resolve(key string) (string, error) {
	target := filepath.Join(f.baseDir, filepath.FromSlash(key))
	base, err := filepath.Abs(f.baseDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	if abs != base && !strings.HasPrefix(abs, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("store: key %q escapes the store directory", key)
	}
	return target, nil
}
