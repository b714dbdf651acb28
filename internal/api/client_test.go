package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/proptour/proptour-cli/internal/config"
	"github.com/proptour/proptour-cli/internal/models"
)

// staticTokens satisfies auth.TokenSource with a fixed credential.
type staticTokens struct{}

func (staticTokens) Token(ctx context.Context) (string, error) { return "test-token", nil }
func (staticTokens) IsAuthenticated() bool                     { return true }

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := config.New()
	cfg.Backend.BaseURL = baseURL

	client, err := NewClient(cfg, staticTokens{}, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

// TestNewClientRejectsEmptyBaseURL verifies NewClient fails fast on a
// blank backend URL instead of producing a broken client.
func TestNewClientRejectsEmptyBaseURL(t *testing.T) {
	cfg := config.New()
	cfg.Backend.BaseURL = ""

	if _, err := NewClient(cfg, staticTokens{}, nil); !errors.Is(err, config.ErrMissingBaseURL) {
		t.Errorf("NewClient() error = %v, want ErrMissingBaseURL", err)
	}
}

// TestUploadBatchRequestShape verifies the multipart request carries one
// files[] part per image, the file_details JSON field in order, and the
// bearer credential.
func TestUploadBatchRequestShape(t *testing.T) {
	dir := t.TempDir()
	img1 := filepath.Join(dir, "kitchen.jpg")
	img2 := filepath.Join(dir, "pool.jpg")
	if err := os.WriteFile(img1, []byte("img-one"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(img2, []byte("img-two"), 0600); err != nil {
		t.Fatal(err)
	}

	var (
		gotAuth     string
		gotNames    []string
		gotContents []string
		gotDetails  []models.FileDetail
	)

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != "POST" || r.URL.Path != "/upload-batch" {
			t.Errorf("request = %s %s, want POST /upload-batch", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm() error = %v", err)
		}
		for _, fh := range r.MultipartForm.File["files[]"] {
			gotNames = append(gotNames, fh.Filename)
			f, err := fh.Open()
			if err != nil {
				t.Fatalf("open part: %v", err)
			}
			data, _ := io.ReadAll(f)
			f.Close()
			gotContents = append(gotContents, string(data))
		}
		if err := json.Unmarshal([]byte(r.FormValue("file_details")), &gotDetails); err != nil {
			t.Fatalf("file_details did not parse: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.BatchResponse{BatchID: "batch-42"})
	}))
	defer server.Close()

	client := testClient(t, server.URL)

	files := []models.UploadFile{
		{SourcePath: img1, Detail: models.FileDetail{Filename: "kitchen.jpg", Prompt: "bright kitchen", Weight: 0.4, Duration: 8}},
		{SourcePath: img2, Detail: models.FileDetail{Filename: "pool.jpg", Prompt: "sunset pool", Weight: 0.7, Duration: 5}},
	}

	batchID, err := client.UploadBatch(context.Background(), files)
	if err != nil {
		t.Fatalf("UploadBatch() error = %v", err)
	}
	if batchID != "batch-42" {
		t.Errorf("batchID = %s, want batch-42", batchID)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want Bearer test-token", gotAuth)
	}
	if len(gotNames) != 2 || gotNames[0] != "kitchen.jpg" || gotNames[1] != "pool.jpg" {
		t.Errorf("files[] parts = %v", gotNames)
	}
	if len(gotContents) != 2 || gotContents[0] != "img-one" || gotContents[1] != "img-two" {
		t.Errorf("part contents = %v", gotContents)
	}
	if len(gotDetails) != 2 {
		t.Fatalf("file_details carried %d entries, want 2", len(gotDetails))
	}
	if gotDetails[0] != files[0].Detail || gotDetails[1] != files[1].Detail {
		t.Errorf("file_details = %+v", gotDetails)
	}
}

// TestUploadBatchRejectsMissingBatchID verifies an OK response without a
// batch id is an error.
func TestUploadBatchRejectsMissingBatchID(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(img, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	files := []models.UploadFile{{SourcePath: img, Detail: models.FileDetail{Filename: "a.jpg"}}}

	if _, err := client.UploadBatch(context.Background(), files); err == nil {
		t.Error("UploadBatch() accepted a response without batch_id")
	}
}

// TestGetBatchStatus verifies the happy path decode.
func TestGetBatchStatus(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.URL.Path != "/batch-status/batch-1" {
			t.Errorf("path = %s, want /batch-status/batch-1", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"processing","job_details":[{"job_id":"j1","filename":"a.jpg","status":"processing","progress":40}]}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	status, err := client.GetBatchStatus(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("GetBatchStatus() error = %v", err)
	}
	if status.Status != "processing" || len(status.JobDetails) != 1 {
		t.Errorf("status = %+v", status)
	}
	if status.JobDetails[0].Progress != 40 {
		t.Errorf("progress = %d, want 40", status.JobDetails[0].Progress)
	}
}

// TestGetBatchStatusNotFound verifies the 404 sentinel.
func TestGetBatchStatusNotFound(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.NotFound(w, r)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	if _, err := client.GetBatchStatus(context.Background(), "ghost"); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("GetBatchStatus() error = %v, want ErrBatchNotFound", err)
	}
}

// TestGetBatchStatusEmptyStatus verifies a decodable body with no status
// value trips the unrecognized sentinel.
func TestGetBatchStatusEmptyStatus(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"job_details":[]}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	if _, err := client.GetBatchStatus(context.Background(), "batch-1"); !errors.Is(err, ErrUnrecognizedStatus) {
		t.Errorf("GetBatchStatus() error = %v, want ErrUnrecognizedStatus", err)
	}
}

// TestDownloadArchive verifies the archive stream and size pass through.
func TestDownloadArchive(t *testing.T) {
	payload := []byte("zip-bytes")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.URL.Path != "/download-all/batch-1" {
			t.Errorf("path = %s, want /download-all/batch-1", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Errorf("Authorization = %q", auth)
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Write(payload)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	body, size, err := client.DownloadArchive(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("DownloadArchive() error = %v", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != string(payload) {
		t.Errorf("body = %q, want %q", data, payload)
	}
	if size != int64(len(payload)) {
		t.Errorf("size = %d, want %d", size, len(payload))
	}
}

// TestIsBatchGone verifies the helper matches both unverifiable sentinels.
func TestIsBatchGone(t *testing.T) {
	if !IsBatchGone(ErrBatchNotFound) || !IsBatchGone(ErrUnrecognizedStatus) {
		t.Error("IsBatchGone() = false for its own sentinels")
	}
	if IsBatchGone(errors.New("timeout")) {
		t.Error("IsBatchGone() = true for a transient error")
	}
}
