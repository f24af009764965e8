// Package runconf loads the optional HCL run-settings file that tunes the
// orchestrator: harmonic constituents, scheduler interaction, completion
// detection, and the worker command template.
package runconf

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/tidalworks/harmgrid/internal/ctxlog"
)

// Settings is the merged, validated run configuration. CLI flags may override
// PollInterval and Deadline after loading.
type Settings struct {
	// Constituents are the harmonic components each worker analyzes; one
	// pair of output files is assembled per entry.
	Constituents []string

	// CompletionMarker is the string a worker prints to its console log when
	// it finished successfully.
	CompletionMarker string

	// PollInterval is the sleep between completion-log probes.
	PollInterval time.Duration
	// Deadline bounds the wait for any single task; past it the task is
	// reported as timed out and the run aborts.
	Deadline time.Duration

	// MeshFile and MaskFile name the grid and inclusion-mask inputs,
	// resolved relative to the working directory.
	MeshFile string
	MaskFile string

	// SubmitCommand is the scheduler submission binary (qsub-style: takes a
	// script path, prints a job id).
	SubmitCommand string
	// CancelCommand withdraws a job by id on operator abort.
	CancelCommand string
	// JobNameDirective is the prefix of the template line that declares the
	// scheduler job name; the launcher rewrites that line per task.
	JobNameDirective string

	// EntrypointMarker tags the template line the launcher replaces with the
	// rendered worker command.
	EntrypointMarker string
	// Command is the worker command template, rendered once per task.
	Command CommandTemplate
}

// rawSettings mirrors the HCL file layout. Everything is optional; absent
// attributes keep their defaults.
type rawSettings struct {
	Constituents     []string      `hcl:"constituents,optional"`
	CompletionMarker string        `hcl:"completion_marker,optional"`
	PollInterval     string        `hcl:"poll_interval,optional"`
	Deadline         string        `hcl:"deadline,optional"`
	Grid             *rawGrid      `hcl:"grid,block"`
	Scheduler        *rawScheduler `hcl:"scheduler,block"`
	Template         *rawTemplate  `hcl:"template,block"`
}

type rawGrid struct {
	Mesh string `hcl:"mesh,optional"`
	Mask string `hcl:"mask,optional"`
}

type rawScheduler struct {
	SubmitCommand    string `hcl:"submit_command,optional"`
	CancelCommand    string `hcl:"cancel_command,optional"`
	JobNameDirective string `hcl:"job_name_directive,optional"`
}

type rawTemplate struct {
	EntrypointMarker string `hcl:"entrypoint_marker,optional"`
	Command          string `hcl:"command,optional"`
}

// Defaults reproduce the reference workflow: the M2 semi-diurnal and K1
// diurnal constituents, a 10 second poll, and a qsub-style scheduler.
func Defaults() *Settings {
	return &Settings{
		Constituents:     []string{"M2", "K1"},
		CompletionMarker: "Run completed successfully",
		PollInterval:     10 * time.Second,
		Deadline:         6 * time.Hour,
		MeshFile:         "hgrid.gr3",
		MaskFile:         "include.gr3",
		SubmitCommand:    "qsub",
		CancelCommand:    "qdel",
		JobNameDirective: "#PBS -N",
		EntrypointMarker: "RUN_ANALYSIS",
		Command: CommandTemplate{Source: "(${extract_exe} ${constants_file} ${task_index} " +
			"${start_stack} ${end_stack} ${node_count} && " +
			"${analysis_exe} ${constants_file} ${task_index} ${node_count}) > ${log_file}"},
	}
}

// Load parses the run-settings file at path and merges it over the defaults.
// An empty path returns the defaults unchanged.
func Load(ctx context.Context, path string) (*Settings, error) {
	s := Defaults()
	if path == "" {
		return s, nil
	}

	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading run-settings file.", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse run-settings file %s: %s", path, diags.Error())
	}

	var raw rawSettings
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode run-settings file %s: %s", path, diags.Error())
	}

	if err := s.apply(&raw); err != nil {
		return nil, fmt.Errorf("invalid run-settings file %s: %w", path, err)
	}

	logger.Debug("Run-settings loaded.", "constituents", s.Constituents,
		"pollInterval", s.PollInterval, "deadline", s.Deadline)
	return s, nil
}

func (s *Settings) apply(raw *rawSettings) error {
	if len(raw.Constituents) > 0 {
		for _, c := range raw.Constituents {
			if c == "" {
				return fmt.Errorf("constituents must not contain empty names")
			}
		}
		s.Constituents = raw.Constituents
	}
	if raw.CompletionMarker != "" {
		s.CompletionMarker = raw.CompletionMarker
	}
	if raw.PollInterval != "" {
		d, err := time.ParseDuration(raw.PollInterval)
		if err != nil {
			return fmt.Errorf("poll_interval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("poll_interval must be positive")
		}
		s.PollInterval = d
	}
	if raw.Deadline != "" {
		d, err := time.ParseDuration(raw.Deadline)
		if err != nil {
			return fmt.Errorf("deadline: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("deadline must be positive")
		}
		s.Deadline = d
	}
	if raw.Grid != nil {
		if raw.Grid.Mesh != "" {
			s.MeshFile = raw.Grid.Mesh
		}
		if raw.Grid.Mask != "" {
			s.MaskFile = raw.Grid.Mask
		}
	}
	if raw.Scheduler != nil {
		if raw.Scheduler.SubmitCommand != "" {
			s.SubmitCommand = raw.Scheduler.SubmitCommand
		}
		if raw.Scheduler.CancelCommand != "" {
			s.CancelCommand = raw.Scheduler.CancelCommand
		}
		if raw.Scheduler.JobNameDirective != "" {
			s.JobNameDirective = raw.Scheduler.JobNameDirective
		}
	}
	if raw.Template != nil {
		if raw.Template.EntrypointMarker != "" {
			s.EntrypointMarker = raw.Template.EntrypointMarker
		}
		if raw.Template.Command != "" {
			s.Command = CommandTemplate{Source: raw.Template.Command}
		}
	}
	return nil
}
