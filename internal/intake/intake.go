// Package intake validates raw file picks and wraps them into tracked
// entries with generated identifiers and preview handles.
package intake

import (
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/proptour/proptour-cli/internal/constants"
	"github.com/proptour/proptour-cli/internal/logging"
	"github.com/proptour/proptour-cli/internal/models"
)

// validImageTypes is the allow-list of accepted image MIME types.
var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// ErrNoValidFiles is returned when nothing in a pick passes the MIME filter.
var ErrNoValidFiles = errors.New("no valid image files (JPG, PNG, WebP, GIF)")

// TooManyFilesError rejects a whole incoming pick that would push the
// registry past its configured maximum. Nothing is admitted.
type TooManyFilesError struct {
	Max int
}

func (e *TooManyFilesError) Error() string {
	noun := "images"
	if e.Max == 1 {
		noun = "image"
	}
	return fmt.Sprintf("you can only upload a maximum of %d %s", e.Max, noun)
}

// Intake validates picks and allocates tracked entries.
type Intake struct {
	previews PreviewStore
	logger   *logging.Logger
}

// New creates an Intake backed by the given preview store.
func New(previews PreviewStore, logger *logging.Logger) *Intake {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Intake{previews: previews, logger: logger}
}

// Accept filters the picked paths by image type and, when the whole accepted
// set fits under maxFiles together with currentCount, wraps each into a
// TrackedFile with a fresh id and preview handle.
//
// The count check is all-or-nothing: a pick that would exceed the maximum is
// rejected in full, never truncated. On rejection no previews have been
// allocated and the caller's registry is untouched.
func (i *Intake) Accept(paths []string, currentCount, maxFiles int) ([]*models.TrackedFile, error) {
	type candidate struct {
		path        string
		size        int64
		contentType string
	}

	var accepted []candidate
	for _, p := range paths {
		ct, size, err := sniffImage(p)
		if err != nil {
			i.logger.Debug().Str("file", p).Err(err).Msg("Skipping unreadable pick")
			continue
		}
		if !validImageTypes[ct] {
			i.logger.Debug().Str("file", p).Str("content_type", ct).Msg("Skipping non-image pick")
			continue
		}
		accepted = append(accepted, candidate{path: p, size: size, contentType: ct})
	}

	if len(accepted) == 0 {
		return nil, ErrNoValidFiles
	}

	if currentCount+len(accepted) > maxFiles {
		return nil, &TooManyFilesError{Max: maxFiles}
	}

	files := make([]*models.TrackedFile, 0, len(accepted))
	for _, c := range accepted {
		id := uuid.NewString()

		preview, err := i.previews.Acquire(id, c.path)
		if err != nil {
			// Roll back previews already allocated for this pick so a
			// partial failure leaves no orphaned handles.
			for _, f := range files {
				_ = f.Preview.Release()
			}
			return nil, fmt.Errorf("failed to create preview for %s: %w", filepath.Base(c.path), err)
		}

		files = append(files, &models.TrackedFile{
			ID:          id,
			Name:        filepath.Base(c.path),
			SourcePath:  c.path,
			Size:        c.size,
			ContentType: c.contentType,
			Preview:     preview,
			Description: "",
		})
	}

	return files, nil
}

// sniffImage detects the MIME type from file content rather than trusting
// the extension.
func sniffImage(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", 0, err
	}
	if info.IsDir() {
		return "", 0, fmt.Errorf("%s is a directory", path)
	}

	head := make([]byte, constants.SniffLen)
	n, err := f.Read(head)
	if err != nil && n == 0 {
		return "", 0, err
	}

	ct := nethttp.DetectContentType(head[:n])
	// DetectContentType reports parameters for some types; the allow-list
	// works on the bare type.
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	return ct, info.Size(), nil
}
