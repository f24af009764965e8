// Package assemble merges per-task partial harmonic results into whole-domain
// amplitude and phase fields and re-emits them in the mesh's gr3 layout.
//
// Merging happens strictly after the completion barrier, so the assembler is
// the only writer of the in-memory fields. Any node no task resolved keeps
// the -9999 sentinel, which makes coverage gaps visible downstream.
package assemble

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidalworks/harmgrid/internal/ctxlog"
	"github.com/tidalworks/harmgrid/internal/mesh"
	"github.com/tidalworks/harmgrid/internal/partition"
	"github.com/tidalworks/harmgrid/internal/taskfile"
)

// Unresolved marks nodes never touched by any task's partial results.
const Unresolved = -9999.0

// Field holds one constituent's assembled values, indexed by global node id
// (slot 0 unused).
type Field struct {
	Amp []float64
	Pha []float64
}

// NewField allocates a field with every node set to the Unresolved sentinel.
func NewField(nodeCount int) *Field {
	f := &Field{
		Amp: make([]float64, nodeCount+1),
		Pha: make([]float64, nodeCount+1),
	}
	for i := range f.Amp {
		f.Amp[i] = Unresolved
		f.Pha[i] = Unresolved
	}
	return f
}

// Assembler reads each task's partial results and writes the per-constituent
// output files.
type Assembler struct {
	// Dir is the run directory holding partial results and outputs.
	Dir  string
	Mesh *mesh.Mesh
	Plan *partition.Plan
}

// Run assembles and writes amp_<const>.gr3 and pha_<const>.gr3 for every
// constituent. Phase values arrive in radians and are emitted in degrees.
func (a *Assembler) Run(ctx context.Context, constituents []string) error {
	logger := ctxlog.FromContext(ctx)
	for _, c := range constituents {
		field, err := a.assemble(c)
		if err != nil {
			return err
		}
		logger.Info("Constituent assembled.", "constituent", c,
			"unresolved", field.UnresolvedCount())
		if err := a.writeField(filepath.Join(a.Dir, "amp_"+c+".gr3"), field.Amp); err != nil {
			return err
		}
		if err := a.writeField(filepath.Join(a.Dir, "pha_"+c+".gr3"), field.Pha); err != nil {
			return err
		}
	}
	return nil
}

// assemble merges every task's partial file for one constituent.
func (a *Assembler) assemble(constituent string) (*Field, error) {
	field := NewField(a.Mesh.NodeCount)
	for _, task := range a.Plan.Tasks {
		if task.Size() == 0 {
			// zero-node tasks produce no rows
			continue
		}
		if err := a.mergeTask(field, constituent, task); err != nil {
			return nil, err
		}
	}
	return field, nil
}

// mergeTask folds one task's (local index, amplitude, phase) rows into the
// field, resolving local indices through the task's global mapping.
func (a *Assembler) mergeTask(field *Field, constituent string, task partition.Task) error {
	path := filepath.Join(a.Dir, taskfile.Partial(constituent, task.Index))
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open partial result for task %d: %w", task.Index, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 4 {
			return fmt.Errorf("%s:%d: expected `<local> <freq> <amp> <phase>`", path, line)
		}
		local, err := strconv.Atoi(fields[0])
		if err != nil {
			return fmt.Errorf("%s:%d: local index is not an integer", path, line)
		}
		amp, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return fmt.Errorf("%s:%d: amplitude is not a number", path, line)
		}
		phase, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return fmt.Errorf("%s:%d: phase is not a number", path, line)
		}

		global, ok := task.GlobalID(local)
		if !ok {
			return fmt.Errorf("%s:%d: local index %d outside task %d's %d nodes",
				path, line, local, task.Index, task.Size())
		}
		field.Amp[global] = amp
		field.Pha[global] = phase * 180.0 / math.Pi
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

// writeField emits one gr3 output: the mesh title and counts, a row per node
// in ascending id order, and the connectivity block verbatim.
func (a *Assembler) writeField(path string, values []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, a.Mesh.Title)
	fmt.Fprintf(w, "%d %d\n", a.Mesh.ElementCount, a.Mesh.NodeCount)
	for _, n := range a.Mesh.Nodes {
		fmt.Fprintf(w, "%d %.8e %.8e %.6f\n", n.ID, n.X, n.Y, values[n.ID])
	}
	for _, row := range a.Mesh.Connectivity {
		fmt.Fprintln(w, row)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// UnresolvedCount reports how many nodes no task resolved; a nonzero count
// means the final files carry sentinel values.
func (f *Field) UnresolvedCount() int {
	unresolved := 0
	for i := 1; i < len(f.Amp); i++ {
		if f.Amp[i] == Unresolved {
			unresolved++
		}
	}
	return unresolved
}
