// Package local implements the strip image store on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local asset store.
type Config struct {
	// Root is the directory that holds the year folders.
	Root string `mapstructure:"root" yaml:"root"`
}

// AssetStore writes strip images below a root directory.
type AssetStore struct {
	root string
}

// New creates the root if needed and checks that it is writable.
func New(cfg Config) (*AssetStore, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}

	info, err := os.Stat(root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(root, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create storage root: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat storage root: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("storage root %q is not a directory", root)
	}

	probe, err := os.CreateTemp(root, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("storage root is not writable: %w", err)
	}
	_ = probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("failed to clean up probe file: %w", err)
	}
	return &AssetStore{root: root}, nil
}

// Root returns the absolute root directory.
func (s *AssetStore) Root() string {
	return s.root
}

func (s *AssetStore) resolve(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", fmt.Errorf("path is required")
	}
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	within, err := filepath.Rel(s.root, full)
	if err != nil || within == "." || within == ".." ||
		strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %q", rel)
	}
	return full, nil
}

// Exists reports whether a regular file is present at rel.
func (s *AssetStore) Exists(_ context.Context, rel string) (bool, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", full, err)
	}
	return info.Mode().IsRegular(), nil
}

// Put writes data to rel via a temp file and rename, so a crash never leaves
// a truncated image at the final path. It returns the absolute file path.
func (s *AssetStore) Put(_ context.Context, rel string, data []byte) (string, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("failed to write %s: %w", full, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to close %s: %w", full, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil { // #nosec G302 -- images are meant to be readable.
		cleanup()
		return "", fmt.Errorf("failed to chmod %s: %w", full, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to move %s into place: %w", full, err)
	}
	return full, nil
}

// Open returns a reader for the file at rel. A missing file yields an error
// matching fs.ErrNotExist.
func (s *AssetStore) Open(_ context.Context, rel string) (io.ReadCloser, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full) // #nosec G304 -- resolve confines full to the root.
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", full, err)
	}
	return f, nil
}
