package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// configDir returns the proptour configuration directory.
//   - Windows: %USERPROFILE%\.config\proptour
//   - Unix: ~/.config/proptour
func configDir() (string, error) {
	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		return filepath.Join(userProfile, ".config", "proptour"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "proptour"), nil
}

// DefaultConfigPath returns the default path of the INI config file.
func DefaultConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config"), nil
}

// DefaultSessionPath returns the default path of the durable session record.
func DefaultSessionPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.json"), nil
}

// DefaultPreviewDir returns the directory preview images are written to.
func DefaultPreviewDir() (string, error) {
	cache, err := os.UserCacheDir()
	if err != nil {
		// Fall back to a previews dir next to the config file.
		dir, derr := configDir()
		if derr != nil {
			return "", err
		}
		return filepath.Join(dir, "previews"), nil
	}
	return filepath.Join(cache, "proptour", "previews"), nil
}
