// Package uploader drives batch submission: it gates on the registry's
// preconditions, then hands the assembled upload set to the backend client.
package uploader

import (
	"context"
	"errors"
	"fmt"

	"github.com/proptour/proptour-cli/internal/auth"
	"github.com/proptour/proptour-cli/internal/logging"
	"github.com/proptour/proptour-cli/internal/models"
	"github.com/proptour/proptour-cli/internal/registry"
)

// ErrNoFilesSelected blocks submission of an empty registry.
var ErrNoFilesSelected = errors.New("please select images to upload first")

// ErrAuthenticationFailed wraps credential problems surfaced at submit time.
var ErrAuthenticationFailed = errors.New("authentication failed")

// ErrUploadFailed wraps transport and backend failures during submission.
var ErrUploadFailed = errors.New("failed to upload images")

// SubmitAPI is the slice of the backend client the uploader needs.
type SubmitAPI interface {
	UploadBatch(ctx context.Context, files []models.UploadFile) (string, error)
}

// Uploader validates and submits the registry's contents as one batch.
type Uploader struct {
	api    SubmitAPI
	logger *logging.Logger
}

// New creates an uploader over the given backend client.
func New(api SubmitAPI, logger *logging.Logger) *Uploader {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Uploader{api: api, logger: logger}
}

// Submit checks the preconditions in order, then performs the single
// multipart upload. No network traffic happens when a precondition fails.
func (u *Uploader) Submit(ctx context.Context, reg *registry.Registry) (string, error) {
	if reg.Len() == 0 {
		return "", ErrNoFilesSelected
	}
	if err := reg.ValidateForSubmit(); err != nil {
		return "", err
	}

	files := reg.SubmissionSnapshot()
	u.logger.Info().Int("files", len(files)).Msg("Submitting batch")

	batchID, err := u.api.UploadBatch(ctx, files)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		if errors.Is(err, auth.ErrNotConfigured) {
			return "", fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	u.logger.Info().Str("batch_id", batchID).Msg("Batch accepted")
	return batchID, nil
}
