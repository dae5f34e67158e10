// Package imagestore persists captured frames and finished animations as
// objects addressed by hierarchical keys.
package imagestore

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/abvaden/nps-webcam-animation-generator/internal/errors"
)

// Store reads and writes binary objects under slash-separated keys like
// "images/{park}/{webcam}/{unix}.jpg" or "gifs/{park}/{webcam}/{type}/{date}.gif".
type Store interface {
	Save(key string, data []byte) error
	Reader(key string) (io.ReadCloser, error)
	// LocalPath resolves a key to a filesystem path for tools that need one,
	// such as the ffmpeg encoder.
	LocalPath(key string) (string, error)
	Exists(key string) bool
	Delete(key string) error
	// PublicURL returns the URL downstream consumers fetch the object from,
	// or "" when no public base URL is configured.
	PublicURL(key string) string
}

// DiskStore implements Store on a local directory tree.
type DiskStore struct {
	basePath      string
	publicBaseURL string
}

// NewDiskStore creates a disk-backed store rooted at basePath, creating the
// directory if needed. publicBaseURL may be empty when the objects are not
// served anywhere.
func NewDiskStore(basePath, publicBaseURL string) (*DiskStore, error) {
	if basePath == "" {
		return nil, errors.Newf("image store path is not configured").
			Component("imagestore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, errors.New(err).
			Component("imagestore").
			Category(errors.CategoryImageStore).
			Context("path", basePath).
			Build()
	}
	return &DiskStore{basePath: basePath, publicBaseURL: publicBaseURL}, nil
}

// resolve maps a key to a path under the base directory, rejecting keys that
// would escape it.
func (s *DiskStore) resolve(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return "", errors.Newf("invalid object key %q", key).
			Component("imagestore").
			Category(errors.CategoryValidation).
			Build()
	}
	return filepath.Join(s.basePath, filepath.FromSlash(key)), nil
}

// Save writes the object atomically: content lands in a temp file first and
// is renamed into place, so readers never observe a partial object.
func (s *DiskStore) Save(key string, data []byte) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(err).
			Component("imagestore").
			Category(errors.CategoryImageStore).
			Context("key", key).
			Build()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.New(err).
			Component("imagestore").
			Category(errors.CategoryImageStore).
			Context("key", key).
			Build()
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.New(err).
			Component("imagestore").
			Category(errors.CategoryImageStore).
			Context("key", key).
			Build()
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.New(err).
			Component("imagestore").
			Category(errors.CategoryImageStore).
			Context("key", key).
			Build()
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.New(err).
			Component("imagestore").
			Category(errors.CategoryImageStore).
			Context("key", key).
			Build()
	}
	return nil
}

// Reader opens the object for reading; the caller closes it.
func (s *DiskStore) Reader(key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf("object %q not found", key).
				Component("imagestore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, errors.New(err).
			Component("imagestore").
			Category(errors.CategoryImageStore).
			Context("key", key).
			Build()
	}
	return f, nil
}

// LocalPath resolves the key's path without requiring the object to exist.
func (s *DiskStore) LocalPath(key string) (string, error) {
	return s.resolve(key)
}

// Exists reports whether the object is present.
func (s *DiskStore) Exists(key string) bool {
	path, err := s.resolve(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// PublicURL joins the configured base URL and the key.
func (s *DiskStore) PublicURL(key string) string {
	if s.publicBaseURL == "" {
		return ""
	}
	return strings.TrimSuffix(s.publicBaseURL, "/") + "/" + key
}

// Delete removes the object; deleting an absent object is a no-op.
func (s *DiskStore) Delete(key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New(err).
			Component("imagestore").
			Category(errors.CategoryImageStore).
			Context("key", key).
			Build()
	}
	return nil
}
