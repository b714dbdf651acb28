// Package api implements the HTTP client for the video-generation backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/proptour/proptour-cli/internal/auth"
	"github.com/proptour/proptour-cli/internal/config"
	"github.com/proptour/proptour-cli/internal/constants"
	internalhttp "github.com/proptour/proptour-cli/internal/http"
	"github.com/proptour/proptour-cli/internal/logging"
	"github.com/proptour/proptour-cli/internal/models"
)

// Client talks to the generation backend. Every request carries a bearer
// credential obtained from the token source at call time.
type Client struct {
	httpClient *nethttp.Client
	baseURL    string
	tokens     auth.TokenSource
	logger     *logging.Logger
}

// NewClient creates a backend client from the configuration.
func NewClient(cfg *config.Config, tokens auth.TokenSource, logger *logging.Logger) (*Client, error) {
	if err := cfg.ValidateForConnection(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = internalhttp.NewClient()
	retryClient.RetryMax = constants.APIRetryMax
	retryClient.RetryWaitMin = constants.APIRetryWaitMin
	retryClient.RetryWaitMax = constants.APIRetryWaitMax
	retryClient.Logger = nil

	return &Client{
		httpClient: retryClient.StandardClient(),
		baseURL:    strings.TrimSuffix(cfg.Backend.BaseURL, "/"),
		tokens:     tokens,
		logger:     logger,
	}, nil
}

// UploadBatch submits one multipart request carrying every binary payload
// under repeated files[] parts plus one file_details JSON part, and returns
// the opaque batch identifier.
func (c *Client) UploadBatch(ctx context.Context, files []models.UploadFile) (string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to obtain credential: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	details := make([]models.FileDetail, 0, len(files))
	for _, f := range files {
		if err := appendFilePart(writer, f.SourcePath, f.Detail.Filename); err != nil {
			return "", err
		}
		details = append(details, f.Detail)
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("failed to marshal file details: %w", err)
	}
	if err := writer.WriteField("file_details", string(detailsJSON)); err != nil {
		return "", fmt.Errorf("failed to write file details part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finish multipart body: %w", err)
	}

	url := c.baseURL + "/upload-batch"
	req, err := nethttp.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body.Bytes()))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK && resp.StatusCode != nethttp.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result models.BatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if result.BatchID == "" {
		return "", fmt.Errorf("upload response carried no batch_id")
	}

	c.logger.Debug().Str("batch_id", result.BatchID).Int("files", len(files)).Msg("Batch submitted")
	return result.BatchID, nil
}

// GetBatchStatus fetches the batch status and per-item progress.
func (c *Client) GetBatchStatus(ctx context.Context, batchID string) (*models.BatchStatus, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain credential: %w", err)
	}

	url := fmt.Sprintf("%s/batch-status/%s", c.baseURL, batchID)
	req, err := nethttp.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == nethttp.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	if resp.StatusCode != nethttp.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status fetch failed: status %d: %s", resp.StatusCode, string(respBody))
	}

	var status models.BatchStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	if status.Status == "" {
		return nil, fmt.Errorf("%w: empty status for batch %s", ErrUnrecognizedStatus, batchID)
	}

	return &status, nil
}

// DownloadArchive opens the completed batch's archive stream. The caller
// owns the returned body. Size is -1 when the backend sends no length.
func (c *Client) DownloadArchive(ctx context.Context, batchID string) (io.ReadCloser, int64, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to obtain credential: %w", err)
	}

	url := fmt.Sprintf("%s/download-all/%s", c.baseURL, batchID)
	req, err := nethttp.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("download request failed: %w", err)
	}

	if resp.StatusCode != nethttp.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, 0, fmt.Errorf("download failed: status %d: %s", resp.StatusCode, string(respBody))
	}

	return resp.Body, resp.ContentLength, nil
}

// appendFilePart streams one source binary into a files[] form part. The
// part filename is the correlation key matched by file_details.
func appendFilePart(writer *multipart.Writer, sourcePath, filename string) error {
	if filename == "" {
		filename = filepath.Base(sourcePath)
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filename, err)
	}
	defer src.Close()

	part, err := writer.CreateFormFile("files[]", filename)
	if err != nil {
		return fmt.Errorf("failed to create form part for %s: %w", filename, err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return nil
}
