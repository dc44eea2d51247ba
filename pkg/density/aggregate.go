package density

import (
	"slices"

	"github.com/leapstack-labs/latchgrid/pkg/grid"
)

// Fold says how many key elements survive aggregation on each side.
// Deeper elements are folded into their ancestors.
type Fold struct {
	RowDepth int
	ColDepth int
}

// FoldFor derives the fold for a value density (levels collapsed per cell)
// over the number of levels currently shown on each side.
func FoldFor(valueDensity, rowLevels, colLevels int) Fold {
	return Fold{
		RowDepth: max(rowLevels-valueDensity, 0),
		ColDepth: max(colLevels-valueDensity, 0),
	}
}

// Unfolded keeps every key element of g.
func Unfolded(g *grid.Grid) Fold {
	return Fold{RowDepth: len(g.RowMappings), ColDepth: len(g.ColMappings)}
}

// Cell is an aggregated grid cell.
type Cell struct {
	ID               string
	RowKey           grid.Key
	ColKey           grid.Key
	GridX            int
	GridY            int
	MemberIDs        []string
	AggregationCount int

	// SparsityRatio is the fraction of the folded sub-cells that hold no
	// records. Unfolded cells have a ratio of 0.
	SparsityRatio float64

	Color grid.Key
	Size  float64
}

// Aggregate folds grid cells by key prefix. The result is ordered like the
// grid: by row, then column.
func Aggregate(g *grid.Grid, fold Fold) []Cell {
	if g == nil || len(g.Cells) == 0 {
		return nil
	}
	rowIdx, rowSubs := prefixes(g.Rows, fold.RowDepth)
	colIdx, colSubs := prefixes(g.Columns, fold.ColDepth)

	type acc struct {
		cell      Cell
		populated int
		sizeSum   float64
		colors    map[string]int
		colorKeys map[string]grid.Key
	}
	byID := make(map[string]*acc)
	var order []string

	for _, gc := range g.Cells {
		rk := gc.RowKey.Prefix(fold.RowDepth)
		ck := gc.ColKey.Prefix(fold.ColDepth)
		id := grid.CellID(rk, ck)
		a, ok := byID[id]
		if !ok {
			a = &acc{
				cell: Cell{
					ID:     id,
					RowKey: rk,
					ColKey: ck,
					GridX:  colIdx[ck.ID()],
					GridY:  rowIdx[rk.ID()],
				},
				colors:    map[string]int{},
				colorKeys: map[string]grid.Key{},
			}
			byID[id] = a
			order = append(order, id)
		}
		a.cell.MemberIDs = append(a.cell.MemberIDs, gc.MemberIDs...)
		a.cell.AggregationCount += gc.Count
		a.populated++
		a.sizeSum += gc.Size * float64(gc.Count)
		if gc.Color != nil {
			a.colors[gc.Color.ID()] += gc.Count
			a.colorKeys[gc.Color.ID()] = gc.Color
		}
	}

	out := make([]Cell, 0, len(order))
	for _, id := range order {
		a := byID[id]
		c := a.cell
		possible := rowSubs[c.RowKey.ID()] * colSubs[c.ColKey.ID()]
		if possible > 0 {
			c.SparsityRatio = 1 - float64(a.populated)/float64(possible)
		}
		if c.AggregationCount > 0 {
			c.Size = a.sizeSum / float64(c.AggregationCount)
		}
		c.Color = dominant(a.colors, a.colorKeys)
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Cell) int {
		if a.GridY != b.GridY {
			return a.GridY - b.GridY
		}
		return a.GridX - b.GridX
	})
	return out
}

// prefixes indexes the distinct depth-prefixes of keys in order, and counts
// how many full keys each prefix covers.
func prefixes(keys []grid.Key, depth int) (map[string]int, map[string]int) {
	idx := make(map[string]int)
	subs := make(map[string]int)
	for _, k := range keys {
		id := k.Prefix(depth).ID()
		if _, ok := idx[id]; !ok {
			idx[id] = len(idx)
		}
		subs[id]++
	}
	return idx, subs
}

func dominant(counts map[string]int, keys map[string]grid.Key) grid.Key {
	var best grid.Key
	bestN := 0
	for id, n := range counts {
		if n > bestN || (n == bestN && id < best.ID()) {
			best, bestN = keys[id], n
		}
	}
	return best
}
