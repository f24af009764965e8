package launch

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// JobHandle identifies one submitted batch job.
type JobHandle struct {
	TaskIndex int
	// ID is the scheduler's job identifier, as printed by the submit command.
	ID string
}

// JobSubmitter is the capability seam to the batch scheduler. Tests swap in
// an in-memory fake.
type JobSubmitter interface {
	// Submit hands a job script to the scheduler and returns its handle.
	Submit(ctx context.Context, taskIndex int, scriptPath string) (JobHandle, error)
	// Cancel withdraws an outstanding job; used on operator abort.
	Cancel(ctx context.Context, handle JobHandle) error
}

// SubmissionError reports a scheduler rejection. Any single rejection is
// fatal for the whole run: partial coverage would corrupt assembly.
type SubmissionError struct {
	TaskIndex int
	Output    string
	Err       error
}

func (e *SubmissionError) Error() string {
	msg := fmt.Sprintf("scheduler rejected task %d: %v", e.TaskIndex, e.Err)
	if e.Output != "" {
		msg += " (" + e.Output + ")"
	}
	return msg
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// CmdSubmitter drives a qsub-style scheduler binary: submission passes the
// script path as the single argument and the job id is the trimmed stdout.
type CmdSubmitter struct {
	// SubmitCommand is the submission binary, e.g. "qsub" or "sbatch".
	SubmitCommand string
	// CancelCommand withdraws a job by id; e.g. "qdel". Empty disables Cancel.
	CancelCommand string
	// Dir is the working directory for scheduler invocations.
	Dir string
}

func (s *CmdSubmitter) Submit(ctx context.Context, taskIndex int, scriptPath string) (JobHandle, error) {
	cmd := exec.CommandContext(ctx, s.SubmitCommand, scriptPath)
	cmd.Dir = s.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return JobHandle{}, &SubmissionError{
			TaskIndex: taskIndex,
			Output:    strings.TrimSpace(string(out)),
			Err:       err,
		}
	}
	return JobHandle{TaskIndex: taskIndex, ID: strings.TrimSpace(string(out))}, nil
}

func (s *CmdSubmitter) Cancel(ctx context.Context, handle JobHandle) error {
	if s.CancelCommand == "" || handle.ID == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, s.CancelCommand, handle.ID)
	cmd.Dir = s.Dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to cancel job %s (task %d): %w (%s)",
			handle.ID, handle.TaskIndex, err, strings.TrimSpace(string(out)))
	}
	return nil
}
