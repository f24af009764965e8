// Package app wires the orchestration pipeline together: mesh selection,
// partitioning, job launch, the completion barrier, and result assembly.
package app

import (
	"io"
	"log/slog"

	"github.com/tidalworks/harmgrid/internal/launch"
	"github.com/tidalworks/harmgrid/internal/monitor"
)

// App encapsulates the orchestrator's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config

	// submitter is the scheduler seam; nil selects the run-settings'
	// command-line submitter. Tests inject fakes here.
	submitter launch.JobSubmitter
	// reporter is the progress seam; nil selects socket.io or no-op
	// depending on Config.MonitorURL.
	reporter monitor.Reporter

	status *statusBoard
}

// Option customizes an App; used by tests to swap external collaborators.
type Option func(*App)

// WithSubmitter replaces the scheduler submitter.
func WithSubmitter(s launch.JobSubmitter) Option {
	return func(a *App) { a.submitter = s }
}

// WithReporter replaces the progress reporter.
func WithReporter(r monitor.Reporter) Option {
	return func(a *App) { a.reporter = r }
}

// NewApp constructs the application with its own isolated logger.
func NewApp(outW io.Writer, config *Config, opts ...Option) *App {
	a := &App{
		outW:   outW,
		logger: newLogger(config.LogLevel, config.LogFormat, outW),
		config: config,
		status: newStatusBoard(config.TaskCount),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}
