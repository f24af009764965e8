// Package partition splits the active node list into contiguous per-task
// slices and owns the local-to-global index mapping consumed during assembly.
package partition

import (
	"fmt"
)

// Task is one unit of batch work: a contiguous slice of the active node list.
type Task struct {
	// Index is the 1-based task number used in all per-task file names.
	Index int
	// Globals maps the task-local 1-based index (position+1) to the global
	// node id. Zero-length for tasks beyond the active node count.
	Globals []int
}

// Size returns the number of active nodes the task owns.
func (t Task) Size() int {
	return len(t.Globals)
}

// GlobalID resolves a task-local 1-based index to a global node id.
func (t Task) GlobalID(local int) (int, bool) {
	if local < 1 || local > len(t.Globals) {
		return 0, false
	}
	return t.Globals[local-1], true
}

// FilterVector produces the full-length per-node ownership vector handed to
// the extraction program: one flag per global node, true where this task owns
// the node.
func (t Task) FilterVector(nodeCount int) []bool {
	v := make([]bool, nodeCount)
	for _, id := range t.Globals {
		v[id-1] = true
	}
	return v
}

// Plan is the complete disjoint assignment of active nodes to tasks.
type Plan struct {
	Tasks []Task
	// PerTask is floor(active/tasks); every task but the last owns exactly
	// this many nodes.
	PerTask int
}

// Split assigns the active nodes to n tasks in list order. All tasks own
// floor(T/n) nodes except the last, which absorbs the remainder. When n
// exceeds the active count, trailing tasks own zero nodes; they are still
// valid tasks that submit, complete, and merge nothing.
func Split(active []int, n int) (*Plan, error) {
	if n < 1 {
		return nil, fmt.Errorf("task count must be at least 1, got %d", n)
	}

	perTask := len(active) / n
	plan := &Plan{
		Tasks:   make([]Task, 0, n),
		PerTask: perTask,
	}

	for i := 1; i <= n; i++ {
		start := (i - 1) * perTask
		end := start + perTask
		if i == n {
			end = len(active)
		}
		globals := make([]int, end-start)
		copy(globals, active[start:end])
		plan.Tasks = append(plan.Tasks, Task{Index: i, Globals: globals})
	}

	return plan, nil
}
