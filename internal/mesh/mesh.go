// Package mesh reads the gr3-format grid file and its node-inclusion mask,
// and selects the active nodes the harmonic analysis will cover.
//
// The gr3 layout is: a free-text title line, a `<element_count> <node_count>`
// line, node_count rows of `<id> <x> <y> <value>`, and element_count
// connectivity rows. The connectivity block is opaque to the orchestrator and
// is carried verbatim into every output file.
package mesh

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// InclusionThreshold is the mask value above which a node is analyzed.
const InclusionThreshold = 0.1

// Node is one grid node. Nodes are 1-based and immutable after load.
type Node struct {
	ID int
	X  float64
	Y  float64
	// Value is the fourth column of the node row (depth in the grid file,
	// inclusion weight in a mask file).
	Value float64
}

// Mesh is the parsed grid file.
type Mesh struct {
	Title        string
	ElementCount int
	NodeCount    int
	Nodes        []Node
	// Connectivity holds the element block lines exactly as read.
	Connectivity []string
}

// FormatError reports a structural problem in a grid or mask file.
type FormatError struct {
	File string
	Line int
	Msg  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// Load parses a gr3 file.
func Load(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open grid file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0

	next := func() (string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", fmt.Errorf("failed to read %s: %w", path, err)
			}
			return "", &FormatError{File: path, Line: line + 1, Msg: "unexpected end of file"}
		}
		line++
		return sc.Text(), nil
	}

	title, err := next()
	if err != nil {
		return nil, err
	}

	counts, err := next()
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(counts)
	if len(fields) < 2 {
		return nil, &FormatError{File: path, Line: line, Msg: "expected `<element_count> <node_count>`"}
	}
	ne, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, &FormatError{File: path, Line: line, Msg: "element count is not an integer"}
	}
	np, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, &FormatError{File: path, Line: line, Msg: "node count is not an integer"}
	}
	if ne < 0 {
		return nil, &FormatError{File: path, Line: line, Msg: fmt.Sprintf("element count must not be negative, got %d", ne)}
	}
	if np < 0 {
		return nil, &FormatError{File: path, Line: line, Msg: fmt.Sprintf("node count must not be negative, got %d", np)}
	}

	m := &Mesh{
		Title:        title,
		ElementCount: ne,
		NodeCount:    np,
		Nodes:        make([]Node, 0, np),
	}

	for i := 0; i < np; i++ {
		row, err := next()
		if err != nil {
			return nil, err
		}
		n, err := parseNodeRow(path, line, row)
		if err != nil {
			return nil, err
		}
		m.Nodes = append(m.Nodes, n)
	}

	for i := 0; i < ne; i++ {
		row, err := next()
		if err != nil {
			return nil, err
		}
		m.Connectivity = append(m.Connectivity, row)
	}

	return m, nil
}

// LoadMask reads the inclusion mask, which shares the gr3 node-row layout.
// It returns the mask value per node in file order. A node count that
// disagrees with the mesh is a FormatError.
func LoadMask(path string, nodeCount int) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mask file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	// title line
	if !sc.Scan() {
		return nil, &FormatError{File: path, Line: 1, Msg: "unexpected end of file"}
	}
	// counts line
	if !sc.Scan() {
		return nil, &FormatError{File: path, Line: 2, Msg: "unexpected end of file"}
	}
	fields := strings.Fields(sc.Text())
	if len(fields) < 2 {
		return nil, &FormatError{File: path, Line: 2, Msg: "expected `<element_count> <node_count>`"}
	}
	np, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, &FormatError{File: path, Line: 2, Msg: "node count is not an integer"}
	}
	if np < 0 {
		return nil, &FormatError{File: path, Line: 2, Msg: fmt.Sprintf("node count must not be negative, got %d", np)}
	}
	if np != nodeCount {
		return nil, &FormatError{
			File: path,
			Line: 2,
			Msg:  fmt.Sprintf("mask has %d nodes, grid has %d", np, nodeCount),
		}
	}

	mask := make([]float64, 0, np)
	line := 2
	for i := 0; i < np; i++ {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
			return nil, &FormatError{File: path, Line: line + 1, Msg: "unexpected end of file"}
		}
		line++
		n, err := parseNodeRow(path, line, sc.Text())
		if err != nil {
			return nil, err
		}
		mask = append(mask, n.Value)
	}

	return mask, nil
}

// ActiveNodes returns the global ids of nodes whose mask value exceeds the
// inclusion threshold, in file order.
func (m *Mesh) ActiveNodes(mask []float64) []int {
	active := make([]int, 0, len(mask))
	for i, v := range mask {
		if v > InclusionThreshold {
			active = append(active, m.Nodes[i].ID)
		}
	}
	return active
}

func parseNodeRow(path string, line int, row string) (Node, error) {
	fields := strings.Fields(row)
	if len(fields) < 4 {
		return Node{}, &FormatError{File: path, Line: line, Msg: "expected `<id> <x> <y> <value>`"}
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return Node{}, &FormatError{File: path, Line: line, Msg: "node id is not an integer"}
	}
	x, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Node{}, &FormatError{File: path, Line: line, Msg: "x coordinate is not a number"}
	}
	y, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Node{}, &FormatError{File: path, Line: line, Msg: "y coordinate is not a number"}
	}
	v, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return Node{}, &FormatError{File: path, Line: line, Msg: "node value is not a number"}
	}
	return Node{ID: id, X: x, Y: y, Value: v}, nil
}
