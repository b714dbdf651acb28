package intake

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// PreviewStore allocates preview handles for accepted files. The returned
// handle is owned by the TrackedFile it is attached to.
type PreviewStore interface {
	Acquire(id, sourcePath string) (PreviewHandleCloser, error)
}

// PreviewHandleCloser mirrors models.PreviewHandle; declared here so test
// doubles in other packages do not need this package.
type PreviewHandleCloser interface {
	Path() string
	Release() error
}

// ErrPreviewReleased is returned when a preview handle is released twice.
var ErrPreviewReleased = errors.New("preview handle already released")

// DirStore materializes previews as files in a cache directory. Release
// removes the file; a handle releases at most once.
type DirStore struct {
	dir string
}

// NewDirStore creates a preview store rooted at dir, creating it as needed.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create preview directory: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

// Acquire copies the source image into the cache directory under the entry
// id and returns the releasable handle.
func (s *DirStore) Acquire(id, sourcePath string) (PreviewHandleCloser, error) {
	src, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open source for preview: %w", err)
	}
	defer src.Close()

	ext := filepath.Ext(sourcePath)
	path := filepath.Join(s.dir, id+ext)

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create preview file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write preview file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to finish preview file: %w", err)
	}

	return &filePreview{path: path}, nil
}

// filePreview is a preview backed by a file in the cache directory.
type filePreview struct {
	mu       sync.Mutex
	path     string
	released bool
}

func (p *filePreview) Path() string {
	return p.path
}

func (p *filePreview) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return ErrPreviewReleased
	}
	p.released = true

	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove preview file: %w", err)
	}
	return nil
}
