package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/hay-kot/criterio"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// Validate performs basic structural validation.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	if c.Watch.PerSecond <= 0 {
		return fmt.Errorf("watch.per_second must be positive")
	}

	if c.Watch.Burst < 1 {
		return fmt.Errorf("watch.burst must be at least 1")
	}

	if c.Watch.PollInterval < 0 {
		return fmt.Errorf("watch.poll_interval cannot be negative")
	}

	if err := validTrackerURL(c.Tracker.BaseURL); err != nil {
		return fmt.Errorf("tracker.base_url: %w", err)
	}

	return nil
}

// ValidateDeep performs comprehensive validation including filesystem
// accessibility. The configPath argument specifies the config file location
// to validate (empty string skips the config file check). This calls
// Validate() first for basic structural validation, then adds I/O checks.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
		criterio.Run("projects_dir", c.ProjectsDir, isDirectoryOrNotExist),
		criterio.Run("watch.cursor_dir", c.Watch.CursorDir, isDirectoryOrNotExist),
	)
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if c.Tracker.APIKey == "" {
		warnings = append(warnings, ValidationWarning{
			Category: "Tracker",
			Item:     "api_key",
			Message:  "no API key configured; set tracker.api_key or " + apiKeyEnv,
		})
	}

	if c.ProjectsDir != "" {
		if _, err := os.Stat(c.ProjectsDir); os.IsNotExist(err) {
			warnings = append(warnings, ValidationWarning{
				Category: "Projects",
				Item:     "projects_dir",
				Message:  fmt.Sprintf("%s does not exist yet", c.ProjectsDir),
			})
		}
	}

	return warnings
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

// validTrackerURL requires an absolute http(s) URL.
func validTrackerURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // will be created
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}
