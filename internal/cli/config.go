package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds runtime configuration shared by the subcommands. It can come
// from a project config file, CLI flags, or both; flags win.
type Config struct {
	// Comment field for user documentation (ignored by the application)
	Comment string `json:"comment,omitempty"`

	// Rules file declaring correlation rules and root event types.
	// Empty means the built-in defaults.
	RulesFile string `json:"rules_file,omitempty"`

	// Service name treated as the host plane.
	HostService string `json:"host_service,omitempty"`

	// Report line width (0 uses 80).
	Width int `json:"width,omitempty"`

	// OTLP receiver bind address for the serve command.
	OTLPHost string `json:"otlp_host,omitempty"`
	OTLPPort int    `json:"otlp_port,omitempty"`

	Verbose bool `json:"verbose,omitempty"`
}

const projectConfigName = ".trace-grouper.json"

// DefaultConfig returns a Config with the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		HostService: "host",
		Width:       80,
		OTLPHost:    "127.0.0.1",
		OTLPPort:    4317,
	}
}

// LoadConfigFromFile loads configuration from a JSON file at the given path.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &config, nil
}

// FindProjectConfig searches for a .trace-grouper.json config file, walking
// up from the working directory and stopping at a .git directory (project
// root) or the filesystem root.
func FindProjectConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	for {
		configPath := filepath.Join(dir, projectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

// MergeConfigs merges two configs with the overlay taking precedence.
func MergeConfigs(base, overlay *Config) *Config {
	if base == nil {
		base = &Config{}
	}
	if overlay == nil {
		return base
	}

	merged := *base
	if overlay.RulesFile != "" {
		merged.RulesFile = overlay.RulesFile
	}
	if overlay.HostService != "" {
		merged.HostService = overlay.HostService
	}
	if overlay.Width > 0 {
		merged.Width = overlay.Width
	}
	if overlay.OTLPHost != "" {
		merged.OTLPHost = overlay.OTLPHost
	}
	if overlay.OTLPPort > 0 {
		merged.OTLPPort = overlay.OTLPPort
	}
	if overlay.Verbose {
		merged.Verbose = overlay.Verbose
	}
	return &merged
}
