package rules

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileBackend stores the rule set as a single JSON document on disk.
type FileBackend struct {
	path string
}

// NewFileBackend creates a backend for path. The parent directory is created
// on first write.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Name() string { return "file" }

// Path returns the document location.
func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Read(_ context.Context) (RuleSet, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("rules: read %s: %w", b.path, err)
	}
	return Decode(data)
}

// Write writes to a temp file beside the target, syncs it, then renames it
// over the target. A failure at any step leaves the old document untouched.
func (b *FileBackend) Write(_ context.Context, rs RuleSet) error {
	data, err := Encode(rs)
	if err != nil {
		return err
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("rules: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".rules-*.json")
	if err != nil {
		return fmt.Errorf("rules: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("rules: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("rules: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("rules: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		cleanup()
		return fmt.Errorf("rules: replace %s: %w", b.path, err)
	}
	return nil
}
