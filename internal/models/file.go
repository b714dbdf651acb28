// Package models defines data structures shared across the proptour client.
package models

// PreviewHandle is a locally resolvable display reference derived from a
// tracked file's binary. It is a scoped resource: whoever holds the owning
// TrackedFile must release it exactly once, at removal or clear time. A
// second release is a bug and reports an error.
type PreviewHandle interface {
	// Path returns the local path of the preview image.
	Path() string

	// Release frees the preview resource. Exactly one call succeeds.
	Release() error
}

// TrackedFile is one image staged for submission.
//
// The source binary stays on disk at SourcePath and is only read when the
// batch is assembled. The preview handle is owned by this entry for its
// whole lifetime.
type TrackedFile struct {
	// ID is unique within a registry for the entry's lifetime.
	ID string

	// Name is the base filename, used as the correlation key in the
	// per-file metadata array of the upload request.
	Name string

	// SourcePath is the absolute path of the original image.
	SourcePath string

	// Size in bytes of the source binary.
	Size int64

	// ContentType is the sniffed MIME type.
	ContentType string

	// Preview is the display reference for this entry.
	Preview PreviewHandle

	// Description is the per-entry generation prompt. Ignored while uniform
	// mode is active; read it through the registry's EffectiveDescription.
	Description string

	// Weight is the per-entry generation strength (0..1).
	Weight float64

	// DurationSeconds is the per-entry clip length.
	DurationSeconds int
}
