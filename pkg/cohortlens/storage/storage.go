// Package storage abstracts where uploaded document bytes live. The pipeline
// only holds opaque stored paths; swapping the local-disk implementation for
// an object store changes nothing upstream.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Storage is the file storage collaborator contract. Delete tolerates
// already-missing paths.
type Storage interface {
	Save(relPath string, r io.Reader) (storedPath string, err error)
	Open(storedPath string) (io.ReadCloser, error)
	Delete(storedPath string) error
}

// Local keeps files under a root directory on disk.
type Local struct {
	root string
}

// NewLocal creates (if needed) and uses root as the storage directory.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root not set")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Local{root: root}, nil
}

// Save writes r under relPath and returns relPath as the stored handle.
// Path traversal out of the root is rejected.
func (l *Local) Save(relPath string, r io.Reader) (string, error) {
	abs, err := l.resolve(relPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(abs)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(abs)
		return "", err
	}
	return relPath, nil
}

func (l *Local) Open(storedPath string) (io.ReadCloser, error) {
	abs, err := l.resolve(storedPath)
	if err != nil {
		return nil, err
	}
	return os.Open(abs)
}

// Delete removes the stored file. A path that is already gone is not an error.
func (l *Local) Delete(storedPath string) error {
	abs, err := l.resolve(storedPath)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (l *Local) resolve(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage path %q", rel)
	}
	return filepath.Join(l.root, clean), nil
}
