// Package launch materializes per-task input artifacts and hands each task
// to the batch scheduler. Per task it writes the node-ownership filter file,
// rewrites the scheduler job template, and submits the resulting script.
package launch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidalworks/harmgrid/internal/ctxlog"
	"github.com/tidalworks/harmgrid/internal/partition"
	"github.com/tidalworks/harmgrid/internal/runconf"
	"github.com/tidalworks/harmgrid/internal/taskfile"
)

// Exes are the external programs each worker runs, plus their shared inputs.
type Exes struct {
	ExtractExe    string
	AnalysisExe   string
	ConstantsFile string
	StartStack    int
	EndStack      int
}

// Launcher prepares and submits one batch job per task.
type Launcher struct {
	// Dir is the run directory all artifacts are written into.
	Dir       string
	Settings  *runconf.Settings
	Submitter JobSubmitter
	// DryRun writes every artifact but skips submission.
	DryRun bool
}

// LaunchAll fans the plan out to the scheduler. It stops at the first
// submission failure; a run with partial coverage can never assemble a valid
// output set. Returned handles are in task order.
func (l *Launcher) LaunchAll(ctx context.Context, plan *partition.Plan, nodeCount int, exes Exes, templatePath string) ([]JobHandle, error) {
	logger := ctxlog.FromContext(ctx)

	template, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read job template: %w", err)
	}
	templateLines := strings.Split(strings.TrimRight(string(template), "\n"), "\n")

	handles := make([]JobHandle, 0, len(plan.Tasks))
	for _, task := range plan.Tasks {
		if err := l.writeFilterFile(task, nodeCount); err != nil {
			return handles, err
		}

		scriptPath, err := l.writeScript(templateLines, task, exes)
		if err != nil {
			return handles, err
		}

		if l.DryRun {
			logger.Info("Dry run: job script prepared, not submitted.",
				"task", task.Index, "script", scriptPath, "nodes", task.Size())
			continue
		}

		handle, err := l.Submitter.Submit(ctx, task.Index, scriptPath)
		if err != nil {
			return handles, err
		}
		logger.Info("Task submitted.", "task", task.Index, "jobID", handle.ID, "nodes", task.Size())
		handles = append(handles, handle)
	}

	return handles, nil
}

// CancelAll withdraws every outstanding job; used on operator abort. Cancel
// failures are logged, not fatal: the run is already aborting.
func (l *Launcher) CancelAll(ctx context.Context, handles []JobHandle) {
	logger := ctxlog.FromContext(ctx)
	for _, h := range handles {
		if err := l.Submitter.Cancel(ctx, h); err != nil {
			logger.Warn("Failed to cancel job.", "task", h.TaskIndex, "jobID", h.ID, "error", err)
		}
	}
}

// writeFilterFile emits the full-length 0/1 ownership vector for one task,
// one flag per global mesh node.
func (l *Launcher) writeFilterFile(task partition.Task, nodeCount int) error {
	var b strings.Builder
	for _, owned := range task.FilterVector(nodeCount) {
		if owned {
			b.WriteString("1\n")
		} else {
			b.WriteString("0\n")
		}
	}
	path := filepath.Join(l.Dir, taskfile.Filter(task.Index))
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write filter file for task %d: %w", task.Index, err)
	}
	return nil
}

// writeScript rewrites the job template for one task. The entrypoint-marker
// line becomes the rendered worker command, the job-name directive gets the
// task id appended to the name, and every other line passes through.
func (l *Launcher) writeScript(templateLines []string, task partition.Task, exes Exes) (string, error) {
	command, err := l.Settings.Command.Render(runconf.CommandVars{
		ExtractExe:    exes.ExtractExe,
		AnalysisExe:   exes.AnalysisExe,
		ConstantsFile: exes.ConstantsFile,
		TaskIndex:     task.Index,
		StartStack:    exes.StartStack,
		EndStack:      exes.EndStack,
		NodeCount:     task.Size(),
	})
	if err != nil {
		return "", fmt.Errorf("task %d: %w", task.Index, err)
	}

	lines := make([]string, 0, len(templateLines))
	for _, line := range templateLines {
		switch {
		case strings.Contains(line, l.Settings.EntrypointMarker):
			lines = append(lines, command)
		case strings.HasPrefix(strings.TrimSpace(line), l.Settings.JobNameDirective):
			lines = append(lines, rewriteJobName(line, l.Settings.JobNameDirective, task.Index))
		default:
			lines = append(lines, line)
		}
	}

	path := filepath.Join(l.Dir, taskfile.Script(task.Index))
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0755); err != nil {
		return "", fmt.Errorf("failed to write job script for task %d: %w", task.Index, err)
	}
	return path, nil
}

// rewriteJobName embeds the task id in the scheduler job name so operators
// can tell tasks apart in the queue.
func rewriteJobName(line, directive string, taskIndex int) string {
	trimmed := strings.TrimSpace(line)
	name := strings.TrimSpace(strings.TrimPrefix(trimmed, directive))
	if name == "" {
		name = "harm"
	}
	return fmt.Sprintf("%s %s_%s", directive, name, taskfile.ID(taskIndex))
}
