// Package taskfile owns the on-disk naming scheme for per-task artifacts.
// Every task's files are keyed by its zero-padded 3-digit index, which keeps
// the inputs and outputs of different tasks disjoint.
package taskfile

import "fmt"

// ID formats a task index as the 3-digit suffix used by all task files.
func ID(index int) string {
	return fmt.Sprintf("%03d", index)
}

// Filter is the per-task node-ownership file read by the extraction program.
func Filter(index int) string {
	return "filter_flag_" + ID(index)
}

// Script is the per-task rewritten job script submitted to the scheduler.
func Script(index int) string {
	return "job_" + ID(index)
}

// Log is the per-task console log polled for the completion marker.
func Log(index int) string {
	return "scrn.out_" + ID(index)
}

// Partial is the per-task, per-constituent result file written by the
// analysis program.
func Partial(constituent string, index int) string {
	return constituent + "_" + ID(index)
}
