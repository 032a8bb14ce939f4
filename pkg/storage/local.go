package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Compile-time interface check.
var _ Reader = (*localReader)(nil)

type localReader struct {
	root string
}

// NewLocalReader creates a Reader backed by a local directory.
func NewLocalReader(root string) Reader {
	return &localReader{root: filepath.Clean(root)}
}

// Location returns the root directory.
func (r *localReader) Location() string {
	return r.root
}

// ReadFile reads {root}/{name}.
// Returns (nil, nil) when the file does not exist.
func (r *localReader) ReadFile(_ context.Context, name string) ([]byte, error) {
	p, err := r.resolve(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p) //nolint:gosec // resolved under root
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading file %s: %w", p, err)
	}

	return data, nil
}

// List returns the regular file names under {root}/{dir}.
func (r *localReader) List(_ context.Context, dir string) ([]string, error) {
	p, err := r.resolve(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(p)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}

		return nil, fmt.Errorf("reading directory %s: %w", p, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	return names, nil
}

// resolve maps a slash separated name to a path under root and rejects
// names escaping it.
func (r *localReader) resolve(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", fmt.Errorf("path %q is not allowed", name)
	}

	return filepath.Join(r.root, filepath.FromSlash(path.Clean("/"+name))), nil
}
