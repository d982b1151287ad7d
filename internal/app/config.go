package app

import (
	"errors"
	"fmt"
)

// Config holds everything an App instance needs to run.
type Config struct {
	// ConfigPath points at the analysis .hcl file or a directory of them.
	ConfigPath string
	// OutputPath, when non-empty, overrides the workbook path from the
	// analysis file.
	OutputPath string

	LogFormat   string
	LogLevel    string
	WorkerCount int
}

// NewConfig validates a Config and applies nothing else; defaulting is the
// CLI layer's job.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("WorkerCount must be at least 1, got %d", cfg.WorkerCount)
	}
	return &cfg, nil
}
