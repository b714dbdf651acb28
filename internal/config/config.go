// Package config provides configuration management for the proptour CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/proptour/proptour-cli/internal/constants"
	"github.com/proptour/proptour-cli/internal/models"
)

// Config is the persisted configuration for the CLI.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\proptour\config
//   - Unix: ~/.config/proptour/config
//
// INI format:
//
//	[backend]
//	base_url = http://localhost:5000
//
//	[auth]
//	domain = login.example.com
//	client_id = <client-id>
//	client_secret = <client-secret>
//	audience = https://api.proptour.example.com
//
//	[generation]
//	context = single
//	uniform_prompts = true
//	global_prompt = Modern luxury home interior
//	weight = 0.7
//	duration_seconds = 5
//	max_files = 10
//	output_name =
//
//	[notifications]
//	enabled = true
//	show_completed = true
//	show_failed = true
type Config struct {
	Backend       BackendConfig
	Auth          AuthConfig
	Generation    GenerationConfig
	Notifications NotificationConfig
}

// BackendConfig holds the generation backend connection settings.
type BackendConfig struct {
	// BaseURL of the video-generation service.
	BaseURL string `ini:"base_url"`
}

// AuthConfig holds the identity-provider settings. The provider itself is an
// external collaborator; these fields are only what the token exchange needs.
type AuthConfig struct {
	Domain       string `ini:"domain"`
	ClientID     string `ini:"client_id"`
	ClientSecret string `ini:"client_secret"`
	Audience     string `ini:"audience"`
}

// GenerationConfig holds the default generation parameters.
type GenerationConfig struct {
	// Context is "single" or "multi".
	Context string `ini:"context"`

	// UniformPrompts applies GlobalPrompt and Weight to every image,
	// overriding individually edited values.
	UniformPrompts bool `ini:"uniform_prompts"`

	GlobalPrompt    string  `ini:"global_prompt"`
	Weight          float64 `ini:"weight"`
	DurationSeconds int     `ini:"duration_seconds"`
	MaxFiles        int     `ini:"max_files"`
	OutputName      string  `ini:"output_name"`
}

// NotificationConfig contains settings for desktop notifications.
type NotificationConfig struct {
	Enabled       bool `ini:"enabled"`
	ShowCompleted bool `ini:"show_completed"`
	ShowFailed    bool `ini:"show_failed"`
}

// Validation errors
var (
	ErrMissingBaseURL    = errors.New("base_url is required")
	ErrMissingAuthDomain = errors.New("auth domain is required")
	ErrMissingClientID   = errors.New("auth client_id is required")
	ErrInvalidWeight     = errors.New("weight must be between 0 and 1")
	ErrInvalidDuration   = errors.New("duration_seconds must be between 1 and 60")
	ErrInvalidMaxFiles   = errors.New("max_files must be at least 1")
)

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL: "http://localhost:5000",
		},
		Generation: GenerationConfig{
			Context:         "single",
			UniformPrompts:  true,
			GlobalPrompt:    "Modern luxury home interior",
			Weight:          0.7,
			DurationSeconds: 5,
			MaxFiles:        constants.MaxFilesMulti,
		},
		Notifications: NotificationConfig{
			Enabled:       true,
			ShowCompleted: true,
			ShowFailed:    true,
		},
	}
}

// Load reads configuration from an INI file. A missing file yields the
// defaults with no error; an unreadable or malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	backend := iniFile.Section("backend")
	cfg.Backend.BaseURL = backend.Key("base_url").MustString(cfg.Backend.BaseURL)

	auth := iniFile.Section("auth")
	cfg.Auth.Domain = auth.Key("domain").String()
	cfg.Auth.ClientID = auth.Key("client_id").String()
	cfg.Auth.ClientSecret = auth.Key("client_secret").String()
	cfg.Auth.Audience = auth.Key("audience").String()

	gen := iniFile.Section("generation")
	cfg.Generation.Context = gen.Key("context").MustString(cfg.Generation.Context)
	cfg.Generation.UniformPrompts = gen.Key("uniform_prompts").MustBool(cfg.Generation.UniformPrompts)
	cfg.Generation.GlobalPrompt = gen.Key("global_prompt").MustString(cfg.Generation.GlobalPrompt)
	cfg.Generation.Weight = gen.Key("weight").MustFloat64(cfg.Generation.Weight)
	cfg.Generation.DurationSeconds = gen.Key("duration_seconds").MustInt(cfg.Generation.DurationSeconds)
	cfg.Generation.MaxFiles = gen.Key("max_files").MustInt(cfg.Generation.MaxFiles)
	cfg.Generation.OutputName = gen.Key("output_name").String()

	notify := iniFile.Section("notifications")
	cfg.Notifications.Enabled = notify.Key("enabled").MustBool(true)
	cfg.Notifications.ShowCompleted = notify.Key("show_completed").MustBool(true)
	cfg.Notifications.ShowFailed = notify.Key("show_failed").MustBool(true)

	return cfg, nil
}

// Save writes configuration to an INI file, creating parent directories as
// needed. The client secret lands in the file, so permissions are tightened
// and the write is atomic (temp file + rename).
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	backend, err := iniFile.NewSection("backend")
	if err != nil {
		return fmt.Errorf("failed to create backend section: %w", err)
	}
	backend.Key("base_url").SetValue(cfg.Backend.BaseURL)

	auth, err := iniFile.NewSection("auth")
	if err != nil {
		return fmt.Errorf("failed to create auth section: %w", err)
	}
	auth.Key("domain").SetValue(cfg.Auth.Domain)
	auth.Key("client_id").SetValue(cfg.Auth.ClientID)
	auth.Key("client_secret").SetValue(cfg.Auth.ClientSecret)
	auth.Key("audience").SetValue(cfg.Auth.Audience)

	gen, err := iniFile.NewSection("generation")
	if err != nil {
		return fmt.Errorf("failed to create generation section: %w", err)
	}
	gen.Key("context").SetValue(cfg.Generation.Context)
	gen.Key("uniform_prompts").SetValue(fmt.Sprintf("%t", cfg.Generation.UniformPrompts))
	gen.Key("global_prompt").SetValue(cfg.Generation.GlobalPrompt)
	gen.Key("weight").SetValue(fmt.Sprintf("%g", cfg.Generation.Weight))
	gen.Key("duration_seconds").SetValue(fmt.Sprintf("%d", cfg.Generation.DurationSeconds))
	gen.Key("max_files").SetValue(fmt.Sprintf("%d", cfg.Generation.MaxFiles))
	gen.Key("output_name").SetValue(cfg.Generation.OutputName)

	notify, err := iniFile.NewSection("notifications")
	if err != nil {
		return fmt.Errorf("failed to create notifications section: %w", err)
	}
	notify.Key("enabled").SetValue(fmt.Sprintf("%t", cfg.Notifications.Enabled))
	notify.Key("show_completed").SetValue(fmt.Sprintf("%t", cfg.Notifications.ShowCompleted))
	notify.Key("show_failed").SetValue(fmt.Sprintf("%t", cfg.Notifications.ShowFailed))

	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks the full configuration.
func (cfg *Config) Validate() error {
	if err := cfg.ValidateForConnection(); err != nil {
		return err
	}
	if cfg.Generation.Weight < constants.MinWeight || cfg.Generation.Weight > constants.MaxWeight {
		return ErrInvalidWeight
	}
	if cfg.Generation.DurationSeconds < constants.MinDurationSeconds ||
		cfg.Generation.DurationSeconds > constants.MaxDurationSeconds {
		return ErrInvalidDuration
	}
	if cfg.Generation.MaxFiles < 1 {
		return ErrInvalidMaxFiles
	}
	return nil
}

// ValidateForConnection checks only what a backend call needs.
func (cfg *Config) ValidateForConnection() error {
	if strings.TrimSpace(cfg.Backend.BaseURL) == "" {
		return ErrMissingBaseURL
	}
	return nil
}

// ValidateForAuth checks that the identity provider is configured.
func (cfg *Config) ValidateForAuth() error {
	if strings.TrimSpace(cfg.Auth.Domain) == "" {
		return ErrMissingAuthDomain
	}
	if strings.TrimSpace(cfg.Auth.ClientID) == "" {
		return ErrMissingClientID
	}
	return nil
}

// Settings converts the persisted generation defaults into the explicit
// submission settings struct.
func (cfg *Config) Settings() models.GenerationSettings {
	mode := models.PromptPerItem
	if cfg.Generation.UniformPrompts {
		mode = models.PromptUniform
	}
	return models.GenerationSettings{
		Context:         models.ParseContext(cfg.Generation.Context),
		PromptMode:      mode,
		GlobalPrompt:    cfg.Generation.GlobalPrompt,
		Weight:          cfg.Generation.Weight,
		DurationSeconds: cfg.Generation.DurationSeconds,
		MaxFiles:        cfg.Generation.MaxFiles,
		OutputName:      cfg.Generation.OutputName,
	}
}
