package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/sys/atomicwriter"
)

// FileBackend keeps one <key>.json file per stream in a directory. Writes go
// to a temporary file that is synced and renamed over the target.
type FileBackend struct {
	dir string
}

// NewFileBackend creates the directory if needed and returns a backend rooted there.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("NewFileBackend: create %s: %w", dir, err)
	}
	return &FileBackend{dir: dir}, nil
}

// Dir returns the directory holding the snapshot files.
func (b *FileBackend) Dir() string {
	return b.dir
}

// Path returns the file path used for key.
func (b *FileBackend) Path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(b.dir, key+".json"), nil
}

func (b *FileBackend) Read(_ context.Context, key string) ([]byte, error) {
	path, err := b.Path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (b *FileBackend) Write(_ context.Context, key string, data []byte) error {
	path, err := b.Path(key)
	if err != nil {
		return err
	}
	if err := atomicwriter.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (b *FileBackend) Close() error { return nil }

// validateKey rejects keys that would escape the snapshot directory or
// prefix when used as a file or object name.
func validateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("invalid stream key %q", key)
	}
	return nil
}
