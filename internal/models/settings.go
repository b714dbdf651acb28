package models

import (
	"github.com/proptour/proptour-cli/internal/constants"
)

// Context selects between single-image and multi-image generation.
type Context int

const (
	ContextSingle Context = iota
	ContextMulti
)

func (c Context) String() string {
	if c == ContextSingle {
		return "single"
	}
	return "multi"
}

// ParseContext maps the config/flag spelling to a Context. Unknown values
// fall back to single, the most restrictive context.
func ParseContext(s string) Context {
	if s == "multi" {
		return ContextMulti
	}
	return ContextSingle
}

// PromptMode selects whether one shared prompt/weight overrides every entry
// (uniform) or each entry's own fields are authoritative (per-item).
type PromptMode int

const (
	PromptUniform PromptMode = iota
	PromptPerItem
)

func (m PromptMode) String() string {
	if m == PromptUniform {
		return "uniform"
	}
	return "per-item"
}

// GenerationSettings is the single explicit configuration struct for a
// submission: every recognized option enumerated up front rather than a
// drifting bag of loose fields.
type GenerationSettings struct {
	Context         Context
	PromptMode      PromptMode
	GlobalPrompt    string
	Weight          float64
	DurationSeconds int

	// MaxFiles bounds the registry in multi context. Single context is
	// always bounded at one regardless of this value.
	MaxFiles int

	// OutputName, when set, names the downloaded archive.
	OutputName string
}

// EffectiveMaxFiles returns the registry bound implied by the context.
func (s GenerationSettings) EffectiveMaxFiles() int {
	if s.Context == ContextSingle {
		return constants.MaxFilesSingle
	}
	if s.MaxFiles > 0 {
		return s.MaxFiles
	}
	return constants.MaxFilesMulti
}

// RequiresPerItemPrompts reports whether submission demands a non-empty
// effective description on every entry (multi context with per-item mode).
func (s GenerationSettings) RequiresPerItemPrompts() bool {
	return s.Context == ContextMulti && s.PromptMode == PromptPerItem
}
