// Package watch polls each task's console log for the completion marker and
// enforces the full barrier: assembly may not start until every task is Done.
//
// Each task walks a small state machine: Pending while its log is absent or
// the marker has not appeared, Done once the marker shows up, TimedOut when
// the deadline expires first. TimedOut is terminal and fatal for the run —
// the reference workflow would poll forever, which is not an acceptable
// production contract.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidalworks/harmgrid/internal/ctxlog"
	"github.com/tidalworks/harmgrid/internal/partition"
	"github.com/tidalworks/harmgrid/internal/taskfile"
)

// State is the lifecycle state of one watched task.
type State int

const (
	Pending State = iota
	Done
	TimedOut
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Done:
		return "done"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// IncompleteTaskError reports a task that never produced its completion
// marker within the deadline.
type IncompleteTaskError struct {
	TaskIndex int
	LogPath   string
	Waited    time.Duration
}

func (e *IncompleteTaskError) Error() string {
	return fmt.Sprintf("task %d did not complete within %s (log: %s)",
		e.TaskIndex, e.Waited, e.LogPath)
}

// Clock abstracts time so tests drive the poll loop without real sleeps.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until the context is cancelled.
	Sleep(ctx context.Context, d time.Duration) error
}

// realClock is the production Clock.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Event describes one task state transition, for progress reporting.
type Event struct {
	TaskIndex int
	State     State
}

// Watcher polls task logs until all tasks complete or one times out.
type Watcher struct {
	// Dir is the run directory containing the scrn.out_NNN logs.
	Dir string
	// Marker is the completion string a worker prints on success.
	Marker string
	// Interval is the sleep between poll rounds.
	Interval time.Duration
	// Deadline bounds the whole wait; zero means no deadline.
	Deadline time.Duration
	// Clock defaults to the real clock when nil.
	Clock Clock
	// Notify, when set, observes every task state transition.
	Notify func(Event)
}

// WaitAll blocks until every task in the plan reaches Done. It returns an
// IncompleteTaskError naming the first still-pending task if the deadline
// expires, or the context error on cancellation. There is no partial-success
// mode: any non-nil error means no output may be assembled.
func (w *Watcher) WaitAll(ctx context.Context, plan *partition.Plan) error {
	logger := ctxlog.FromContext(ctx)
	clock := w.Clock
	if clock == nil {
		clock = realClock{}
	}

	states := make(map[int]State, len(plan.Tasks))
	for _, task := range plan.Tasks {
		states[task.Index] = Pending
	}

	start := clock.Now()
	for {
		pending := 0
		for _, task := range plan.Tasks {
			if states[task.Index] != Pending {
				continue
			}
			if w.logComplete(task.Index) {
				states[task.Index] = Done
				logger.Info("Task completed.", "task", task.Index)
				if w.Notify != nil {
					w.Notify(Event{TaskIndex: task.Index, State: Done})
				}
				continue
			}
			pending++
		}

		if pending == 0 {
			logger.Info("All tasks completed.", "tasks", len(plan.Tasks))
			return nil
		}

		waited := clock.Now().Sub(start)
		if w.Deadline > 0 && waited >= w.Deadline {
			for _, task := range plan.Tasks {
				if states[task.Index] != Pending {
					continue
				}
				states[task.Index] = TimedOut
				if w.Notify != nil {
					w.Notify(Event{TaskIndex: task.Index, State: TimedOut})
				}
				return &IncompleteTaskError{
					TaskIndex: task.Index,
					LogPath:   filepath.Join(w.Dir, taskfile.Log(task.Index)),
					Waited:    waited,
				}
			}
		}

		logger.Debug("Waiting on tasks.", "pending", pending, "waited", waited)
		if err := clock.Sleep(ctx, w.Interval); err != nil {
			return err
		}
	}
}

// logComplete reports whether the task's console log exists and contains the
// completion marker. An absent log is simply a task that has not started.
func (w *Watcher) logComplete(taskIndex int) bool {
	data, err := os.ReadFile(filepath.Join(w.Dir, taskfile.Log(taskIndex)))
	if err != nil {
		return false
	}
	return strings.Contains(string(data), w.Marker)
}
