// Package cli parses the orchestrator's command line into an app.Config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tidalworks/harmgrid/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating the program should exit cleanly (help requested), or
// an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("harmgrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
harmgrid - distributed tidal harmonic-analysis orchestrator.

Usage:
  harmgrid [options] EXTRACT_EXE ANALYSIS_EXE JOB_TEMPLATE CONSTANTS_FILE TASK_COUNT START_STACK END_STACK

Arguments:
  EXTRACT_EXE     Path to the per-task record extraction executable.
  ANALYSIS_EXE    Path to the per-task harmonic-analysis executable.
  JOB_TEMPLATE    Scheduler job-script template rewritten per task.
  CONSTANTS_FILE  Shared harmonic-constants input file.
  TASK_COUNT      Number of batch tasks to split the active nodes over.
  START_STACK     First output stack to analyze.
  END_STACK       Last output stack to analyze.

Options:
`)
		flagSet.PrintDefaults()
	}

	workdirFlag := flagSet.String("workdir", ".", "Directory holding grid inputs, task artifacts, and outputs.")
	runConfigFlag := flagSet.String("run-config", "", "Path to an optional HCL run-settings file.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pollFlag := flagSet.Duration("poll-interval", 0, "Completion poll interval; overrides the run-settings value.")
	deadlineFlag := flagSet.Duration("deadline", 0, "Per-run completion deadline; overrides the run-settings value.")
	statusPortFlag := flagSet.Int("status-port", 0, "Port for the HTTP health/status server. 0 is disabled.")
	monitorFlag := flagSet.String("monitor-url", "", "socket.io endpoint for live progress events. Empty is disabled.")
	dryRunFlag := flagSet.Bool("dry-run", false, "Write filter files and job scripts but submit nothing.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if flagSet.NArg() != 7 {
		flagSet.Usage()
		return nil, false, &ExitError{
			Code:    2,
			Message: fmt.Sprintf("expected 7 positional arguments, got %d", flagSet.NArg()),
		}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	taskCount, err := positiveInt(flagSet.Arg(4), "TASK_COUNT")
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	startStack, err := strconv.Atoi(flagSet.Arg(5))
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: "START_STACK must be an integer"}
	}
	endStack, err := strconv.Atoi(flagSet.Arg(6))
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: "END_STACK must be an integer"}
	}

	config, err := app.NewConfig(app.Config{
		ExtractExe:    flagSet.Arg(0),
		AnalysisExe:   flagSet.Arg(1),
		TemplatePath:  flagSet.Arg(2),
		ConstantsFile: flagSet.Arg(3),
		TaskCount:     taskCount,
		StartStack:    startStack,
		EndStack:      endStack,
		WorkDir:       *workdirFlag,
		RunConfigPath: *runConfigFlag,
		LogFormat:     logFormat,
		LogLevel:      logLevel,
		PollInterval:  *pollFlag,
		Deadline:      *deadlineFlag,
		StatusPort:    *statusPortFlag,
		MonitorURL:    *monitorFlag,
		DryRun:        *dryRunFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return config, false, nil
}

func positiveInt(raw, name string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if n < 1 {
		return 0, fmt.Errorf("%s must be at least 1", name)
	}
	return n, nil
}
