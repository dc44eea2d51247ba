// Package grid groups records into grid cells keyed by composite row and
// column keys, and filters the row/column cross product by extent density.
package grid

import (
	"slices"

	"github.com/leapstack-labs/latchgrid/pkg/collation"
	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/leapstack-labs/latchgrid/pkg/extract"
)

// DefaultMinPopulation is the ultra-sparse row/column population threshold.
const DefaultMinPopulation = 2

// Cell is one populated (row, column) intersection.
type Cell struct {
	ID        string
	RowKey    Key
	ColKey    Key
	GridX     int
	GridY     int
	MemberIDs []string
	Count     int

	// Color is the most common color-plane key among members; nil when no
	// mapping targets the color plane.
	Color Key

	// Size is the mean of the size-plane values of members, or Count when
	// nothing numeric is mapped to the size plane.
	Size float64
}

// Grid is an immutable assembly result.
type Grid struct {
	Columns []Key
	Rows    []Key
	Cells   []Cell

	RowMappings []core.AxisMapping
	ColMappings []core.AxisMapping
	Extent      core.ExtentDensity

	index map[string]int
}

// Options tune assembly.
type Options struct {
	// RowDomain and ColDomain add keys to the cross product even when no
	// record populates them. Only non-sparse extents keep them visible.
	RowDomain []Key
	ColDomain []Key

	// MinPopulation is the ultra-sparse threshold; rows and columns holding
	// fewer records are dropped. Zero means DefaultMinPopulation.
	MinPopulation int

	// Comparator orders keys. Defaults to collation.Default().
	Comparator *collation.Comparator
}

func (o Options) comparator() *collation.Comparator {
	if o.Comparator != nil {
		return o.Comparator
	}
	return collation.Default()
}

func (o Options) minPopulation() int {
	if o.MinPopulation <= 0 {
		return DefaultMinPopulation
	}
	return o.MinPopulation
}

// Assemble groups records into cells. The only error is an invalid mapping.
func Assemble(records []core.Record, mappings []core.AxisMapping, extent core.ExtentDensity, opts Options) (*Grid, error) {
	for _, m := range mappings {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	if !extent.Valid() {
		return nil, &core.UnknownExtentError{Name: extent.String()}
	}

	g := &Grid{
		RowMappings: core.OnPlane(mappings, core.PlaneY),
		ColMappings: core.OnPlane(mappings, core.PlaneX),
		Extent:      extent,
	}
	colorMaps := core.OnPlane(mappings, core.PlaneColor)
	sizeMaps := core.OnPlane(mappings, core.PlaneSize)

	rows := newKeySet(opts.RowDomain)
	cols := newKeySet(opts.ColDomain)

	type acc struct {
		row, col Key
		members  []string
		colors   map[string]int
		colorKey map[string]Key
		sizes    []float64
	}
	groups := make(map[string]*acc)
	var order []string

	for _, r := range records {
		rk := KeyOf(r, g.RowMappings)
		ck := KeyOf(r, g.ColMappings)
		rows.add(rk)
		cols.add(ck)
		for _, alt := range alternatives(r, g.RowMappings) {
			rows.add(alt)
		}
		for _, alt := range alternatives(r, g.ColMappings) {
			cols.add(alt)
		}

		id := CellID(rk, ck)
		a, ok := groups[id]
		if !ok {
			a = &acc{row: rk, col: ck, colors: map[string]int{}, colorKey: map[string]Key{}}
			groups[id] = a
			order = append(order, id)
		}
		a.members = append(a.members, r.ID)
		if len(colorMaps) > 0 {
			k := KeyOf(r, colorMaps)
			a.colors[k.ID()]++
			a.colorKey[k.ID()] = k
		}
		if len(sizeMaps) > 0 {
			if f, ok := extract.Ordinal(r, sizeMaps[0].Facet); ok {
				a.sizes = append(a.sizes, f)
			}
		}
	}

	cmp := opts.comparator()
	rowKeys := rows.sorted(cmp)
	colKeys := cols.sorted(cmp)

	rowPop := make(map[string]int, len(rowKeys))
	colPop := make(map[string]int, len(colKeys))
	for _, a := range groups {
		rowPop[a.row.ID()] += len(a.members)
		colPop[a.col.ID()] += len(a.members)
	}
	g.Rows = filterKeys(rowKeys, rowPop, extent, opts.minPopulation())
	g.Columns = filterKeys(colKeys, colPop, extent, opts.minPopulation())

	rowIdx := indexKeys(g.Rows)
	colIdx := indexKeys(g.Columns)

	g.index = make(map[string]int, len(groups))
	for _, id := range order {
		a := groups[id]
		y, okY := rowIdx[a.row.ID()]
		x, okX := colIdx[a.col.ID()]
		if !okX || !okY {
			continue
		}
		c := Cell{
			ID:        id,
			RowKey:    a.row,
			ColKey:    a.col,
			GridX:     x,
			GridY:     y,
			MemberIDs: a.members,
			Count:     len(a.members),
			Color:     majority(a.colors, a.colorKey, cmp),
			Size:      float64(len(a.members)),
		}
		if len(a.sizes) > 0 {
			c.Size = mean(a.sizes)
		}
		g.Cells = append(g.Cells, c)
	}

	slices.SortFunc(g.Cells, func(a, b Cell) int {
		if a.GridY != b.GridY {
			return a.GridY - b.GridY
		}
		return a.GridX - b.GridX
	})
	for i, c := range g.Cells {
		g.index[c.ID] = i
	}
	return g, nil
}

// KeyOf extracts the composite key of r for the given mappings.
func KeyOf(r core.Record, mappings []core.AxisMapping) Key {
	k := make(Key, len(mappings))
	for i, m := range mappings {
		// Mappings are validated before extraction.
		k[i], _ = extract.Label(m, r)
	}
	return k
}

// alternatives returns the keys formed by substituting each secondary value
// of a multi-valued category field, so those values join the domain.
func alternatives(r core.Record, mappings []core.AxisMapping) []Key {
	var out []Key
	for i, m := range mappings {
		if m.Axis != core.AxisCategory {
			continue
		}
		values := extract.Categories(r, m.Facet)
		if len(values) < 2 {
			continue
		}
		base := KeyOf(r, mappings)
		for _, v := range values[1:] {
			alt := slices.Clone(base)
			alt[i] = v
			out = append(out, alt)
		}
	}
	return out
}

// filterKeys applies the extent policy to one side of the cross product.
// Populated keys are never dropped except by the ultra-sparse threshold.
func filterKeys(keys []Key, pop map[string]int, extent core.ExtentDensity, minPop int) []Key {
	switch extent {
	case core.ExtentSparse, core.ExtentUltraSparse:
	default:
		return keys
	}
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		n := pop[k.ID()]
		if n == 0 {
			continue
		}
		if extent == core.ExtentUltraSparse && n < minPop {
			continue
		}
		out = append(out, k)
	}
	return out
}

func indexKeys(keys []Key) map[string]int {
	m := make(map[string]int, len(keys))
	for i, k := range keys {
		m[k.ID()] = i
	}
	return m
}

func majority(counts map[string]int, keys map[string]Key, cmp *collation.Comparator) Key {
	var best Key
	bestN := 0
	for id, n := range counts {
		k := keys[id]
		if n > bestN || (n == bestN && cmp.CompareTuple(k, best) < 0) {
			best, bestN = k, n
		}
	}
	return best
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Cell returns the cell at (row, col), if populated and visible.
func (g *Grid) Cell(row, col Key) (Cell, bool) {
	i, ok := g.index[CellID(row, col)]
	if !ok {
		return Cell{}, false
	}
	return g.Cells[i], true
}

// CellByID returns the cell with the given id.
func (g *Grid) CellByID(id string) (Cell, bool) {
	i, ok := g.index[id]
	if !ok {
		return Cell{}, false
	}
	return g.Cells[i], true
}

// Size returns the number of columns and rows.
func (g *Grid) Size() (cols, rows int) {
	return len(g.Columns), len(g.Rows)
}

// Empty reports whether the grid has no cells.
func (g *Grid) Empty() bool {
	return len(g.Cells) == 0
}

// keySet collects unique keys in first-seen order.
type keySet struct {
	seen map[string]struct{}
	keys []Key
}

func newKeySet(initial []Key) *keySet {
	s := &keySet{seen: make(map[string]struct{})}
	for _, k := range initial {
		s.add(k)
	}
	return s
}

func (s *keySet) add(k Key) {
	id := k.ID()
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.keys = append(s.keys, k)
}

func (s *keySet) sorted(cmp *collation.Comparator) []Key {
	out := slices.Clone(s.keys)
	slices.SortStableFunc(out, func(a, b Key) int { return cmp.CompareTuple(a, b) })
	return out
}
