package uploader

import (
	"context"
	"errors"
	"testing"

	"github.com/proptour/proptour-cli/internal/models"
	"github.com/proptour/proptour-cli/internal/registry"
)

// fakeAPI records submissions.
type fakeAPI struct {
	calls   int
	lastSet []models.UploadFile
	batchID string
	err     error
}

func (f *fakeAPI) UploadBatch(ctx context.Context, files []models.UploadFile) (string, error) {
	f.calls++
	f.lastSet = files
	return f.batchID, f.err
}

func multiRegistry(mode models.PromptMode) *registry.Registry {
	return registry.New(models.GenerationSettings{
		Context:         models.ContextMulti,
		PromptMode:      mode,
		GlobalPrompt:    "Modern luxury home interior",
		Weight:          0.7,
		DurationSeconds: 5,
		MaxFiles:        10,
	}, nil)
}

// TestSubmitEmptyRegistry verifies submission is blocked before any
// network traffic when nothing is attached.
func TestSubmitEmptyRegistry(t *testing.T) {
	api := &fakeAPI{batchID: "b1"}
	up := New(api, nil)

	_, err := up.Submit(context.Background(), multiRegistry(models.PromptUniform))
	if !errors.Is(err, ErrNoFilesSelected) {
		t.Fatalf("Submit() error = %v, want ErrNoFilesSelected", err)
	}
	if api.calls != 0 {
		t.Errorf("backend called %d times on empty registry, want 0", api.calls)
	}
}

// TestSubmitMissingPromptsBlocksBeforeNetwork verifies the per-item prompt
// gate runs before the upload and that the empty-registry check wins when
// both preconditions fail.
func TestSubmitMissingPromptsBlocksBeforeNetwork(t *testing.T) {
	api := &fakeAPI{batchID: "b1"}
	up := New(api, nil)

	reg := multiRegistry(models.PromptPerItem)
	if err := reg.Add([]*models.TrackedFile{{ID: "f1", Name: "a.jpg"}}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	_, err := up.Submit(context.Background(), reg)
	if !errors.Is(err, registry.ErrMissingPrompts) {
		t.Fatalf("Submit() error = %v, want ErrMissingPrompts", err)
	}
	if api.calls != 0 {
		t.Errorf("backend called %d times with missing prompts, want 0", api.calls)
	}
}

// TestSubmitSendsEffectiveSnapshot verifies the submitted set resolves the
// effective fields.
func TestSubmitSendsEffectiveSnapshot(t *testing.T) {
	api := &fakeAPI{batchID: "batch-9"}
	up := New(api, nil)

	reg := multiRegistry(models.PromptUniform)
	if err := reg.Add([]*models.TrackedFile{
		{ID: "f1", Name: "a.jpg", SourcePath: "/tmp/a.jpg", Description: "ignored in uniform mode"},
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	batchID, err := up.Submit(context.Background(), reg)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if batchID != "batch-9" {
		t.Errorf("batchID = %s, want batch-9", batchID)
	}
	if api.calls != 1 {
		t.Fatalf("backend called %d times, want 1", api.calls)
	}

	detail := api.lastSet[0].Detail
	if detail.Prompt != "Modern luxury home interior" {
		t.Errorf("Prompt = %q, want the global prompt", detail.Prompt)
	}
	if detail.Weight != 0.7 || detail.Duration != 5 {
		t.Errorf("detail = %+v, want uniform weight/duration", detail)
	}
}

// TestSubmitWrapsUploadFailure verifies transport failures surface behind
// the upload sentinel.
func TestSubmitWrapsUploadFailure(t *testing.T) {
	api := &fakeAPI{err: errors.New("status 500")}
	up := New(api, nil)

	reg := multiRegistry(models.PromptUniform)
	if err := reg.Add([]*models.TrackedFile{{ID: "f1", Name: "a.jpg"}}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	_, err := up.Submit(context.Background(), reg)
	if !errors.Is(err, ErrUploadFailed) {
		t.Errorf("Submit() error = %v, want ErrUploadFailed", err)
	}
}

// TestSubmitPassesThroughCancellation verifies a cancelled context is not
// rewrapped as an upload failure.
func TestSubmitPassesThroughCancellation(t *testing.T) {
	api := &fakeAPI{err: context.Canceled}
	up := New(api, nil)

	reg := multiRegistry(models.PromptUniform)
	if err := reg.Add([]*models.TrackedFile{{ID: "f1", Name: "a.jpg"}}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	_, err := up.Submit(context.Background(), reg)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Submit() error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrUploadFailed) {
		t.Error("cancellation was wrapped as an upload failure")
	}
}
