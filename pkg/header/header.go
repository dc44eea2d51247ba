// Package header builds multi-level header trees for one grid orientation.
//
// Trees are stored as an arena: a flat node slice plus an id index. Nodes
// reference their children by arena index and never point back at their
// parent. Sibling order uses the same comparator as the grid assembler, so
// the leaves of a column tree line up with the grid's column keys.
package header

import (
	"slices"

	"github.com/leapstack-labs/latchgrid/pkg/collation"
	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/leapstack-labs/latchgrid/pkg/grid"
)

// Orientation selects which plane a tree is built for.
type Orientation int

// Orientations.
const (
	Columns Orientation = iota
	Rows
)

func (o Orientation) String() string {
	if o == Rows {
		return "row"
	}
	return "col"
}

// Plane returns the plane the orientation reads mappings from.
func (o Orientation) Plane() core.Plane {
	if o == Rows {
		return core.PlaneY
	}
	return core.PlaneX
}

// Node is one header cell.
type Node struct {
	ID    string
	Label string
	Level int

	// Span is the number of distinct next-level values under this node
	// (1 at the deepest level). LeafSpan is the number of deepest-level
	// descendants, which is the node's visual width.
	Span     int
	LeafSpan int

	// Children holds arena indices, in sibling order.
	Children []int

	// AggregateCount is the number of records under the node.
	AggregateCount int

	// Path is the composite key prefix identifying the node.
	Path  grid.Key
	Axis  core.AxisType
	Facet string
}

// Leaf reports whether the node has no children.
func (n Node) Leaf() bool { return len(n.Children) == 0 }

// Tree is an immutable header hierarchy.
type Tree struct {
	Orientation Orientation
	Roots       []int
	LeafCount   int
	Facets      []string
	Axes        []core.AxisType

	// Unassigned is set when no mapping targets the orientation's plane.
	// Such a tree has no nodes and renders as "no axis assigned".
	Unassigned bool

	nodes  []Node
	index  map[string]int
	levels [][]int
}

// Options tune tree construction.
type Options struct {
	// MaxLevels caps the depth; 0 uses every mapping on the plane.
	MaxLevels int

	// Domain adds paths with no records, typically the grid's key list so
	// headers cover empty rows and columns kept by the extent policy.
	Domain []grid.Key

	// Comparator orders siblings. Defaults to collation.Default().
	Comparator *collation.Comparator
}

// Build constructs the tree for the mappings on the orientation's plane.
func Build(o Orientation, mappings []core.AxisMapping, records []core.Record, opts Options) (*Tree, error) {
	for _, m := range mappings {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}

	used := core.OnPlane(mappings, o.Plane())
	if opts.MaxLevels > 0 && len(used) > opts.MaxLevels {
		used = used[:opts.MaxLevels]
	}

	t := &Tree{
		Orientation: o,
		Unassigned:  len(used) == 0,
		index:       make(map[string]int),
	}
	if t.Unassigned {
		return t, nil
	}
	for _, m := range used {
		t.Facets = append(t.Facets, m.Facet)
		t.Axes = append(t.Axes, m.Axis)
	}

	depth := len(used)
	counts := make(map[string]int)
	paths := make(map[string]grid.Key)
	for _, r := range records {
		k := grid.KeyOf(r, used)
		id := k.ID()
		counts[id]++
		paths[id] = k
	}
	for _, k := range opts.Domain {
		if len(k) < depth {
			continue
		}
		k = k.Prefix(depth)
		if _, ok := paths[k.ID()]; !ok {
			paths[k.ID()] = k
		}
	}
	if len(paths) == 0 {
		return t, nil
	}

	cmp := opts.Comparator
	if cmp == nil {
		cmp = collation.Default()
	}

	full := make([]grid.Key, 0, len(paths))
	for _, k := range paths {
		full = append(full, k)
	}
	slices.SortFunc(full, func(a, b grid.Key) int { return cmp.CompareTuple(a, b) })

	t.levels = make([][]int, depth)
	for _, k := range full {
		n := counts[k.ID()]
		parent := -1
		for d := 0; d < depth; d++ {
			prefix := k.Prefix(d + 1)
			id := nodeID(o, prefix)
			i, ok := t.index[id]
			if !ok {
				i = len(t.nodes)
				t.nodes = append(t.nodes, Node{
					ID:    id,
					Label: prefix[d],
					Level: d,
					Path:  slices.Clone(prefix),
					Axis:  used[d].Axis,
					Facet: used[d].Facet,
				})
				t.index[id] = i
				t.levels[d] = append(t.levels[d], i)
				if parent < 0 {
					t.Roots = append(t.Roots, i)
				} else {
					t.nodes[parent].Children = append(t.nodes[parent].Children, i)
				}
			}
			t.nodes[i].AggregateCount += n
			parent = i
		}
	}

	// Spans, deepest level first.
	for d := depth - 1; d >= 0; d-- {
		for _, i := range t.levels[d] {
			n := &t.nodes[i]
			if n.Leaf() {
				n.Span, n.LeafSpan = 1, 1
				continue
			}
			n.Span = len(n.Children)
			for _, c := range n.Children {
				n.LeafSpan += t.nodes[c].LeafSpan
			}
		}
	}
	t.LeafCount = len(t.levels[depth-1])
	return t, nil
}

func nodeID(o Orientation, path grid.Key) string {
	return o.String() + "/" + path.ID()
}

// Depth returns the number of populated levels.
func (t *Tree) Depth() int { return len(t.levels) }

// NodeCount returns the total number of nodes.
func (t *Tree) NodeCount() int { return len(t.nodes) }

// Empty reports whether the tree has no nodes.
func (t *Tree) Empty() bool { return len(t.nodes) == 0 }

// Node returns the node with the given id.
func (t *Tree) Node(id string) (Node, bool) {
	i, ok := t.index[id]
	if !ok {
		return Node{}, false
	}
	return t.nodes[i], true
}

// At returns the node at arena index i.
func (t *Tree) At(i int) Node { return t.nodes[i] }

// RootNodes returns the top-level nodes in order.
func (t *Tree) RootNodes() []Node { return t.collect(t.Roots) }

// Children returns n's children in order.
func (t *Tree) Children(n Node) []Node { return t.collect(n.Children) }

// Level returns the nodes at depth d, left to right.
func (t *Tree) Level(d int) []Node {
	if d < 0 || d >= len(t.levels) {
		return nil
	}
	return t.collect(t.levels[d])
}

// Leaves returns the deepest-level nodes.
func (t *Tree) Leaves() []Node {
	return t.Level(t.Depth() - 1)
}

// Walk visits nodes depth-first in display order. Returning false from fn
// skips the node's descendants.
func (t *Tree) Walk(fn func(Node) bool) {
	var visit func(i int)
	visit = func(i int) {
		n := t.nodes[i]
		if !fn(n) {
			return
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	for _, r := range t.Roots {
		visit(r)
	}
}

// Visible returns the nodes shown when collapsed nodes hide their
// descendants, in display order.
func (t *Tree) Visible(flags *Flags) []Node {
	var out []Node
	t.Walk(func(n Node) bool {
		out = append(out, n)
		return flags == nil || !flags.Has(n.ID, Collapsed)
	})
	return out
}

// IDs returns every node id.
func (t *Tree) IDs() []string {
	out := make([]string, len(t.nodes))
	for i, n := range t.nodes {
		out[i] = n.ID
	}
	return out
}

func (t *Tree) collect(idx []int) []Node {
	out := make([]Node, len(idx))
	for i, j := range idx {
		out[i] = t.nodes[j]
	}
	return out
}
