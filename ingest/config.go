package ingest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultAuthor is recorded when the file metadata names no author.
const DefaultAuthor = "Marine Accident Investigation Branch"

// Config holds the chirp service configuration.
type Config struct {
	Listen        string `yaml:"listen"`
	DBPath        string `yaml:"db_path"`
	ObsDBPath     string `yaml:"obs_db_path"`
	MaxFileMB     int64  `yaml:"max_file_mb"`
	LogLevel      string `yaml:"log_level"`
	DefaultAuthor string `yaml:"default_author"`
}

// DefaultConfig returns a config with production defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:        ":8080",
		DBPath:        "chirp.db",
		ObsDBPath:     "chirp_obs.db",
		MaxFileMB:     50,
		LogLevel:      "info",
		DefaultAuthor: DefaultAuthor,
	}
}

// LoadConfig reads a YAML config file over the defaults, then applies
// environment overrides (CHIRP_LISTEN, CHIRP_DB_PATH, CHIRP_OBS_DB_PATH,
// CHIRP_LOG_LEVEL). A missing file is not an error: defaults apply.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("CHIRP_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("CHIRP_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CHIRP_OBS_DB_PATH"); v != "" {
		cfg.ObsDBPath = v
	}
	if v := os.Getenv("CHIRP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config for obvious mistakes.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: listen required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path required")
	}
	if c.MaxFileMB <= 0 {
		return fmt.Errorf("config: max_file_mb must be positive")
	}
	if c.DefaultAuthor == "" {
		c.DefaultAuthor = DefaultAuthor
	}
	return nil
}

// MaxFileBytes converts the configured upload limit to bytes.
func (c *Config) MaxFileBytes() int64 { return c.MaxFileMB * 1024 * 1024 }
