package assemble

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidalworks/harmgrid/internal/mesh"
	"github.com/tidalworks/harmgrid/internal/partition"
)

func testMesh(t *testing.T) *mesh.Mesh {
	t.Helper()
	grid := `test grid
2 5
1 0.0 0.0 -5.0
2 1.0 0.0 -6.0
3 2.0 0.0 -7.0
4 0.5 1.0 -8.0
5 1.5 1.0 -9.0
1 3 1 2 4
2 3 2 3 5
`
	path := filepath.Join(t.TempDir(), "hgrid.gr3")
	require.NoError(t, os.WriteFile(path, []byte(grid), 0600))
	m, err := mesh.Load(path)
	require.NoError(t, err)
	return m
}

func writePartial(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestRun(t *testing.T) {
	m := testMesh(t)
	dir := t.TempDir()

	// 4 active nodes {1,2,3,5} over 2 tasks: task 1 owns {1,2}, task 2 {3,5}.
	plan, err := partition.Split([]int{1, 2, 3, 5}, 2)
	require.NoError(t, err)

	// rows: <local> <freq> <amp> <phase_radians>
	writePartial(t, dir, "M2_001", "1 0.0000805 0.50 0.0\n2 0.0000805 0.75 1.5707963267948966\n")
	writePartial(t, dir, "M2_002", "1 0.0000805 1.25 3.141592653589793\n2 0.0000805 2.00 -1.5707963267948966\n")

	a := &Assembler{Dir: dir, Mesh: m, Plan: plan}
	require.NoError(t, a.Run(context.Background(), []string{"M2"}))

	ampLines := readLines(t, filepath.Join(dir, "amp_M2.gr3"))
	phaLines := readLines(t, filepath.Join(dir, "pha_M2.gr3"))

	t.Run("output shape", func(t *testing.T) {
		// header(2) + nodes(5) + connectivity(2)
		require.Len(t, ampLines, 9)
		assert.Equal(t, "test grid", ampLines[0])
		assert.Equal(t, "2 5", ampLines[1])
		assert.Equal(t, "1 3 1 2 4", ampLines[7])
		assert.Equal(t, "2 3 2 3 5", ampLines[8])
	})

	t.Run("amplitudes mapped to global ids", func(t *testing.T) {
		assert.InDelta(t, 0.50, nodeValue(t, ampLines[2]), 1e-9) // node 1
		assert.InDelta(t, 0.75, nodeValue(t, ampLines[3]), 1e-9) // node 2
		assert.InDelta(t, 1.25, nodeValue(t, ampLines[4]), 1e-9) // node 3
		assert.InDelta(t, 2.00, nodeValue(t, ampLines[6]), 1e-9) // node 5
	})

	t.Run("phase converted to degrees", func(t *testing.T) {
		assert.InDelta(t, 0.0, nodeValue(t, phaLines[2]), 1e-6)
		assert.InDelta(t, 90.0, nodeValue(t, phaLines[3]), 1e-6)
		assert.InDelta(t, 180.0, nodeValue(t, phaLines[4]), 1e-6)
		assert.InDelta(t, -90.0, nodeValue(t, phaLines[6]), 1e-6)
	})

	t.Run("inactive node keeps sentinel", func(t *testing.T) {
		// node 4 was never active
		assert.InDelta(t, Unresolved, nodeValue(t, ampLines[5]), 1e-9)
		assert.InDelta(t, Unresolved, nodeValue(t, phaLines[5]), 1e-9)
	})
}

func TestRun_MissingPartialIsFatal(t *testing.T) {
	m := testMesh(t)
	dir := t.TempDir()
	plan, err := partition.Split([]int{1, 2}, 2)
	require.NoError(t, err)

	writePartial(t, dir, "M2_001", "1 0.0000805 0.5 0.0\n")
	// M2_002 deliberately absent

	a := &Assembler{Dir: dir, Mesh: m, Plan: plan}
	err = a.Run(context.Background(), []string{"M2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task 2")
}

func TestRun_ZeroNodeTaskMergesNothing(t *testing.T) {
	m := testMesh(t)
	dir := t.TempDir()

	// 2 active nodes over 3 tasks: tasks 1 and 2 own nothing.
	plan, err := partition.Split([]int{2, 4}, 3)
	require.NoError(t, err)
	require.Zero(t, plan.Tasks[0].Size())

	// Only the last task has a partial file; the empty ones need none.
	writePartial(t, dir, "K1_003", "1 0.0000729 0.3 0.0\n2 0.0000729 0.4 0.0\n")

	a := &Assembler{Dir: dir, Mesh: m, Plan: plan}
	require.NoError(t, a.Run(context.Background(), []string{"K1"}))

	lines := readLines(t, filepath.Join(dir, "amp_K1.gr3"))
	assert.InDelta(t, 0.3, nodeValue(t, lines[3]), 1e-9) // node 2
	assert.InDelta(t, 0.4, nodeValue(t, lines[5]), 1e-9) // node 4
}

func TestRun_LocalIndexOutOfRange(t *testing.T) {
	m := testMesh(t)
	dir := t.TempDir()
	plan, err := partition.Split([]int{1, 2}, 1)
	require.NoError(t, err)

	writePartial(t, dir, "M2_001", "3 0.0000805 0.5 0.0\n")

	a := &Assembler{Dir: dir, Mesh: m, Plan: plan}
	err = a.Run(context.Background(), []string{"M2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "local index 3")
}

func TestNewField_Sentinel(t *testing.T) {
	f := NewField(4)
	require.Len(t, f.Amp, 5)
	for i := range f.Amp {
		assert.Equal(t, Unresolved, f.Amp[i])
		assert.Equal(t, Unresolved, f.Pha[i])
	}
	assert.Equal(t, 4, f.UnresolvedCount())
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

// nodeValue extracts the fourth column of a gr3 node row.
func nodeValue(t *testing.T, line string) float64 {
	t.Helper()
	fields := strings.Fields(line)
	require.Len(t, fields, 4)
	v, err := strconv.ParseFloat(fields[3], 64)
	require.NoError(t, err)
	return v
}
