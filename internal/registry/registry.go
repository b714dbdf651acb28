// Package registry holds the ordered in-memory collection of tracked files
// and their mutable metadata between intake and submission.
package registry

import (
	"errors"
	"sync"

	"github.com/proptour/proptour-cli/internal/logging"
	"github.com/proptour/proptour-cli/internal/models"
)

// ErrMissingPrompts blocks submission while per-item prompts are required
// and at least one entry has an empty effective description.
var ErrMissingPrompts = errors.New("please add a prompt for each image")

// Registry is the ordered sequence of tracked files. Insertion order drives
// submission order. The registry owns each entry's preview handle and
// releases it exactly once, at removal or clear time.
type Registry struct {
	mu       sync.Mutex
	files    []*models.TrackedFile
	settings models.GenerationSettings
	logger   *logging.Logger

	// onEmptied fires when the last entry leaves the registry, signalling
	// upstream that batch tracking should be reset.
	onEmptied func()
}

// New creates a registry governed by the given settings.
func New(settings models.GenerationSettings, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Registry{settings: settings, logger: logger}
}

// OnEmptied registers the callback invoked when a removal or clear leaves
// the registry empty.
func (r *Registry) OnEmptied(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEmptied = fn
}

// Settings returns the active generation settings.
func (r *Registry) Settings() models.GenerationSettings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// ApplySettings swaps the active settings. Shrinking the effective maximum
// (switching multi to single) keeps only the leading entries and releases
// the previews of the dropped ones.
func (r *Registry) ApplySettings(settings models.GenerationSettings) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.settings = settings
	max := settings.EffectiveMaxFiles()
	if len(r.files) <= max {
		return
	}

	for _, f := range r.files[max:] {
		r.releasePreview(f)
	}
	r.files = r.files[:max]
}

// Add appends tracked files in order. Intake has already enforced the
// maximum for the pick as a whole; Add still guards the invariant so a
// misordered caller cannot overfill the registry.
func (r *Registry) Add(files []*models.TrackedFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	max := r.settings.EffectiveMaxFiles()
	if len(r.files)+len(files) > max {
		return errors.New("registry full")
	}
	r.files = append(r.files, files...)
	return nil
}

// Remove releases the entry's preview and drops it from the sequence.
// Removing the last entry fires the emptied signal: submitting is
// meaningless with nothing attached, so batch tracking upstream resets
// rather than orphaning.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	var removed bool
	for idx, f := range r.files {
		if f.ID == id {
			r.releasePreview(f)
			r.files = append(r.files[:idx], r.files[idx+1:]...)
			removed = true
			break
		}
	}
	emptied := removed && len(r.files) == 0
	fn := r.onEmptied
	r.mu.Unlock()

	if emptied && fn != nil {
		fn()
	}
	return removed
}

// UpdateDescription sets the per-entry prompt text.
func (r *Registry) UpdateDescription(id, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range r.files {
		if f.ID == id {
			f.Description = text
			return true
		}
	}
	return false
}

// Clear releases every preview, empties the sequence, and fires the emptied
// signal so batch tracking resets.
func (r *Registry) Clear() {
	r.mu.Lock()
	hadFiles := len(r.files) > 0
	for _, f := range r.files {
		r.releasePreview(f)
	}
	r.files = nil
	fn := r.onEmptied
	r.mu.Unlock()

	if hadFiles && fn != nil {
		fn()
	}
}

// ReleaseAll frees every preview handle without emptying the sequence or
// signalling upstream. Used at process teardown, where the in-flight batch
// must stay tracked in the durable session.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files {
		r.releasePreview(f)
	}
}

// Len returns the number of tracked files.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}

// Files returns a snapshot of the sequence in order.
func (r *Registry) Files() []*models.TrackedFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.TrackedFile, len(r.files))
	copy(out, r.files)
	return out
}

// EffectiveDescription resolves the prompt the submission and the UI must
// use for an entry: the shared global prompt while uniform mode is active,
// the entry's own field otherwise. Never read the raw field directly when
// uniform mode is on.
func (r *Registry) EffectiveDescription(f *models.TrackedFile) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.effectiveDescriptionLocked(f)
}

func (r *Registry) effectiveDescriptionLocked(f *models.TrackedFile) string {
	if r.settings.PromptMode == models.PromptUniform {
		return r.settings.GlobalPrompt
	}
	return f.Description
}

// EffectiveWeight resolves the generation strength for an entry, applying
// the shared value in uniform mode.
func (r *Registry) EffectiveWeight(f *models.TrackedFile) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settings.PromptMode == models.PromptUniform || f.Weight == 0 {
		return r.settings.Weight
	}
	return f.Weight
}

// EffectiveDuration resolves the clip length for an entry.
func (r *Registry) EffectiveDuration(f *models.TrackedFile) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settings.PromptMode == models.PromptUniform || f.DurationSeconds == 0 {
		return r.settings.DurationSeconds
	}
	return f.DurationSeconds
}

// ValidateForSubmit is the pre-submission gate: with per-item prompts
// required, every entry needs a non-empty effective description.
func (r *Registry) ValidateForSubmit() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.settings.RequiresPerItemPrompts() {
		return nil
	}
	for _, f := range r.files {
		if r.effectiveDescriptionLocked(f) == "" {
			return ErrMissingPrompts
		}
	}
	return nil
}

// SubmissionSnapshot assembles the wire-ready upload set in insertion
// order, resolving every field through the effective accessors.
func (r *Registry) SubmissionSnapshot() []models.UploadFile {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.UploadFile, 0, len(r.files))
	for _, f := range r.files {
		weight := f.Weight
		duration := f.DurationSeconds
		if r.settings.PromptMode == models.PromptUniform || weight == 0 {
			weight = r.settings.Weight
		}
		if r.settings.PromptMode == models.PromptUniform || duration == 0 {
			duration = r.settings.DurationSeconds
		}
		out = append(out, models.UploadFile{
			SourcePath: f.SourcePath,
			Detail: models.FileDetail{
				Filename: f.Name,
				Prompt:   r.effectiveDescriptionLocked(f),
				Weight:   weight,
				Duration: duration,
			},
		})
	}
	return out
}

// releasePreview frees a handle, logging rather than failing on a double
// release so a registry bug cannot take the UI down. Callers hold r.mu.
func (r *Registry) releasePreview(f *models.TrackedFile) {
	if f.Preview == nil {
		return
	}
	if err := f.Preview.Release(); err != nil {
		r.logger.Warn().Str("file", f.Name).Err(err).Msg("Failed to release preview")
	}
}
