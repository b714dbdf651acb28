// Package download retrieves the finished batch archive and writes it to
// the working directory.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/proptour/proptour-cli/internal/logging"
)

// ErrNoBatch blocks a download request with no batch to retrieve.
var ErrNoBatch = errors.New("no batch available for download")

// ErrDownloadFailed wraps transport and backend failures during retrieval.
var ErrDownloadFailed = errors.New("failed to download videos")

// ArchiveAPI is the slice of the backend client the gateway needs.
type ArchiveAPI interface {
	DownloadArchive(ctx context.Context, batchID string) (io.ReadCloser, int64, error)
}

// Gateway streams batch archives to disk.
type Gateway struct {
	api      ArchiveAPI
	logger   *logging.Logger
	showBars bool
}

// NewGateway creates a download gateway. showBars controls the byte
// progress bar on stderr.
func NewGateway(api ArchiveAPI, logger *logging.Logger, showBars bool) *Gateway {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Gateway{api: api, logger: logger, showBars: showBars}
}

// Download fetches the batch archive and saves it under the derived name,
// returning the path written. The write is atomic: the stream lands in a
// temp file that is renamed into place only after a full read.
func (g *Gateway) Download(ctx context.Context, batchID, outputName string) (string, error) {
	if batchID == "" {
		return "", ErrNoBatch
	}

	body, size, err := g.api.DownloadArchive(ctx, batchID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer body.Close()

	target := ArchiveName(batchID, outputName)

	tmp, err := os.CreateTemp(filepath.Dir(target), ".proptour-download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	var dst io.Writer = tmp
	var bar *progressbar.ProgressBar
	if g.showBars {
		bar = progressbar.NewOptions64(size,
			progressbar.OptionSetDescription("Downloading "+filepath.Base(target)),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(50),
			progressbar.OptionThrottle(100),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(os.Stderr, "\n")
			}),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetRenderBlankState(true),
		)
		dst = io.MultiWriter(tmp, bar)
	}

	if _, err := io.Copy(dst, body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to finish archive write: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if err := os.Rename(tmpPath, target); err != nil {
		return "", fmt.Errorf("failed to place archive: %w", err)
	}

	g.logger.Info().Str("batch_id", batchID).Str("file", target).Msg("Archive saved")
	return target, nil
}

// ArchiveName derives the saved filename: the configured output name with a
// .zip extension ensured, or videos_<batchID>.zip when none is configured.
func ArchiveName(batchID, outputName string) string {
	name := strings.TrimSpace(outputName)
	if name == "" {
		return "videos_" + batchID + ".zip"
	}
	if !strings.EqualFold(filepath.Ext(name), ".zip") {
		name += ".zip"
	}
	return name
}
