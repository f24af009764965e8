package app

import (
	"errors"
	"fmt"
	"time"
)

// Config holds everything an App needs to run one orchestration. The
// positional fields come from the CLI; the rest are flags with defaults.
type Config struct {
	// ExtractExe pulls per-node elevation records for one task's node set.
	ExtractExe string
	// AnalysisExe runs the harmonic analysis over the extracted records.
	AnalysisExe string
	// TemplatePath is the scheduler job-script template rewritten per task.
	TemplatePath string
	// ConstantsFile is the shared harmonic-constants input every worker reads.
	ConstantsFile string

	TaskCount  int
	StartStack int
	EndStack   int

	// WorkDir is where all per-task artifacts and outputs live.
	WorkDir string
	// RunConfigPath points at the optional HCL run-settings file.
	RunConfigPath string

	LogFormat string
	LogLevel  string

	// PollInterval and Deadline override the run-settings values when nonzero.
	PollInterval time.Duration
	Deadline     time.Duration

	// StatusPort serves the health/status HTTP endpoint; 0 disables it.
	StatusPort int
	// MonitorURL is the optional socket.io progress endpoint.
	MonitorURL string

	// DryRun prepares every artifact but submits nothing.
	DryRun bool
}

// NewConfig validates a Config.
func NewConfig(cfg Config) (*Config, error) {
	switch {
	case cfg.ExtractExe == "":
		return nil, errors.New("extraction executable path is required")
	case cfg.AnalysisExe == "":
		return nil, errors.New("analysis executable path is required")
	case cfg.TemplatePath == "":
		return nil, errors.New("job template path is required")
	case cfg.ConstantsFile == "":
		return nil, errors.New("constants file path is required")
	}
	if cfg.TaskCount < 1 {
		return nil, fmt.Errorf("task count must be at least 1, got %d", cfg.TaskCount)
	}
	if cfg.StartStack > cfg.EndStack {
		return nil, fmt.Errorf("start stack %d is after end stack %d", cfg.StartStack, cfg.EndStack)
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	return &cfg, nil
}
