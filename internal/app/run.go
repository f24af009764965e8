package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/tidalworks/harmgrid/internal/assemble"
	"github.com/tidalworks/harmgrid/internal/ctxlog"
	"github.com/tidalworks/harmgrid/internal/launch"
	"github.com/tidalworks/harmgrid/internal/mesh"
	"github.com/tidalworks/harmgrid/internal/monitor"
	"github.com/tidalworks/harmgrid/internal/partition"
	"github.com/tidalworks/harmgrid/internal/runconf"
	"github.com/tidalworks/harmgrid/internal/watch"
)

// Run executes the whole pipeline. Every error is fatal: there is no
// partial-success mode, because a subset of finished tasks cannot produce a
// usable output file set.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	logger := a.logger

	settings, err := runconf.Load(ctx, a.config.RunConfigPath)
	if err != nil {
		return err
	}
	if a.config.PollInterval > 0 {
		settings.PollInterval = a.config.PollInterval
	}
	if a.config.Deadline > 0 {
		settings.Deadline = a.config.Deadline
	}

	if a.config.StatusPort > 0 {
		a.startStatusServer(ctx, a.config.StatusPort)
	}

	reporter := a.reporter
	if reporter == nil {
		if a.config.MonitorURL != "" {
			sr, err := monitor.Dial(ctx, a.config.MonitorURL)
			if err != nil {
				return err
			}
			reporter = sr
		} else {
			reporter = monitor.Nop{}
		}
	}
	defer reporter.Close()

	plan, nodeCount, m, err := a.buildPlan(ctx, settings)
	if err != nil {
		return err
	}

	submitter := a.submitter
	if submitter == nil {
		submitter = &launch.CmdSubmitter{
			SubmitCommand: settings.SubmitCommand,
			CancelCommand: settings.CancelCommand,
			Dir:           a.config.WorkDir,
		}
	}

	launcher := &launch.Launcher{
		Dir:       a.config.WorkDir,
		Settings:  settings,
		Submitter: submitter,
		DryRun:    a.config.DryRun,
	}

	a.status.setPhase("launching")
	handles, err := launcher.LaunchAll(ctx, plan, nodeCount, launch.Exes{
		ExtractExe:    a.config.ExtractExe,
		AnalysisExe:   a.config.AnalysisExe,
		ConstantsFile: a.config.ConstantsFile,
		StartStack:    a.config.StartStack,
		EndStack:      a.config.EndStack,
	}, a.config.TemplatePath)
	if err != nil {
		// Jobs already in the queue must not keep running against a run
		// that will never assemble. Detach from the run context so an
		// operator abort cannot kill its own cleanup.
		launcher.CancelAll(context.WithoutCancel(ctx), handles)
		reporter.RunFinished(err)
		return err
	}
	for _, h := range handles {
		reporter.TaskSubmitted(h.TaskIndex, h.ID, plan.Tasks[h.TaskIndex-1].Size())
	}

	if a.config.DryRun {
		logger.Info("Dry run complete: artifacts written, nothing submitted.",
			"tasks", len(plan.Tasks), "dir", a.config.WorkDir)
		reporter.RunFinished(nil)
		return nil
	}

	a.status.setPhase("watching")
	watcher := &watch.Watcher{
		Dir:      a.config.WorkDir,
		Marker:   settings.CompletionMarker,
		Interval: settings.PollInterval,
		Deadline: settings.Deadline,
		Notify: func(e watch.Event) {
			a.status.record(e)
			switch e.State {
			case watch.Done:
				reporter.TaskDone(e.TaskIndex)
			case watch.TimedOut:
				reporter.TaskTimedOut(e.TaskIndex)
			}
		},
	}
	if err := watcher.WaitAll(ctx, plan); err != nil {
		launcher.CancelAll(context.WithoutCancel(ctx), handles)
		reporter.RunFinished(err)
		return err
	}

	a.status.setPhase("assembling")
	assembler := &assemble.Assembler{Dir: a.config.WorkDir, Mesh: m, Plan: plan}
	if err := assembler.Run(ctx, settings.Constituents); err != nil {
		reporter.RunFinished(err)
		return err
	}

	a.status.setPhase("done")
	reporter.RunFinished(nil)
	logger.Info("Run finished.", "constituents", settings.Constituents, "tasks", len(plan.Tasks))
	return nil
}

// buildPlan loads the mesh and mask, selects the active nodes, and splits
// them across the configured task count.
func (a *App) buildPlan(ctx context.Context, settings *runconf.Settings) (*partition.Plan, int, *mesh.Mesh, error) {
	logger := ctxlog.FromContext(ctx)

	m, err := mesh.Load(filepath.Join(a.config.WorkDir, settings.MeshFile))
	if err != nil {
		return nil, 0, nil, err
	}
	mask, err := mesh.LoadMask(filepath.Join(a.config.WorkDir, settings.MaskFile), m.NodeCount)
	if err != nil {
		return nil, 0, nil, err
	}

	active := m.ActiveNodes(mask)
	if len(active) == 0 {
		return nil, 0, nil, fmt.Errorf("no active nodes: every mask value is at or below %v", mesh.InclusionThreshold)
	}
	logger.Info("Active nodes selected.", "active", len(active), "total", m.NodeCount)

	plan, err := partition.Split(active, a.config.TaskCount)
	if err != nil {
		return nil, 0, nil, err
	}
	logger.Info("Plan built.", "tasks", len(plan.Tasks), "perTask", plan.PerTask)
	return plan, m.NodeCount, m, nil
}
