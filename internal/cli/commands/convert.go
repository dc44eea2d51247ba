package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/latchgrid/internal/cli/output"
	"github.com/leapstack-labs/latchgrid/internal/engine"
	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/leapstack-labs/latchgrid/pkg/grid"
	"github.com/leapstack-labs/latchgrid/pkg/header"
	"github.com/leapstack-labs/latchgrid/pkg/scale"
)

// allLabel names the single row or column left when every level is folded.
const allLabel = "all"

// maxTicks bounds the tick positions listed for continuous scales.
const maxTicks = 6

func frameOutput(snap *engine.Snapshot) output.FrameOutput {
	out := output.FrameOutput{
		ID:      snap.ID,
		BuiltAt: snap.BuiltAt,
		Mode:    snap.Mode.String(),
		Density: output.DensityOutput{
			Value:  snap.Density.ValueDensity,
			Extent: snap.Density.ExtentDensity.String(),
		},
		Fold:    output.FoldOutput{Rows: snap.Fold.RowDepth, Columns: snap.Fold.ColDepth},
		Records: len(snap.Records),
		Diff: output.DiffOutput{
			Enter:     len(snap.Diff.Enter),
			Update:    len(snap.Diff.Update),
			Exit:      len(snap.Diff.Exit),
			Unchanged: snap.Diff.Unchanged,
		},
	}
	if snap.Grid != nil {
		out.Rows = foldedLabels(snap.Grid.Rows, snap.Fold.RowDepth)
		out.Columns = foldedLabels(snap.Grid.Columns, snap.Fold.ColDepth)
	}
	out.Cells = make([]output.CellOutput, 0, len(snap.Frame.Cells))
	for _, c := range snap.Frame.Cells {
		co := output.CellOutput{
			ID:       c.ID,
			X:        c.X,
			Y:        c.Y,
			Row:      keyLabel(c.RowKey),
			Column:   keyLabel(c.ColKey),
			Mode:     c.Mode.String(),
			Tier:     c.Tier.String(),
			TierRank: int(c.Tier),
			Count:    c.Count,
			Sparsity: c.Sparsity,
			Size:     c.Size,
			Members:  c.MemberIDs,
		}
		if c.Labeled {
			co.Label = c.Label
		}
		if c.Color != nil {
			co.Color = c.Color.String()
		}
		out.Cells = append(out.Cells, co)
	}
	return out
}

// foldedLabels returns the distinct depth-prefixes of keys, in order.
func foldedLabels(keys []grid.Key, depth int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, k := range keys {
		p := k.Prefix(depth)
		if seen[p.ID()] {
			continue
		}
		seen[p.ID()] = true
		out = append(out, keyLabel(p))
	}
	return out
}

func keyLabel(k grid.Key) string {
	if len(k) == 0 {
		return allLabel
	}
	return k.String()
}

func headerOutput(tree *header.Tree, flags *header.Flags, visible []int) output.HeaderOutput {
	out := output.HeaderOutput{
		Orientation: orientationName(tree.Orientation),
		Depth:       tree.Depth(),
		LeafCount:   tree.LeafCount,
		Unassigned:  tree.Unassigned,
		Facets:      tree.Facets,
		Visible:     visible,
	}
	tree.Walk(func(n header.Node) bool {
		collapsed := flags != nil && flags.Has(n.ID, header.Collapsed)
		out.Nodes = append(out.Nodes, output.NodeOutput{
			ID:        n.ID,
			Label:     n.Label,
			Level:     n.Level,
			Span:      n.Span,
			LeafSpan:  n.LeafSpan,
			Count:     n.AggregateCount,
			Collapsed: collapsed,
		})
		return !collapsed
	})
	return out
}

func orientationName(o header.Orientation) string {
	if o == header.Rows {
		return "rows"
	}
	return "columns"
}

// headerOutputs lists the column tree then the row tree.
func headerOutputs(s *engine.Session, snap *engine.Snapshot) []output.HeaderOutput {
	var out []output.HeaderOutput
	for _, o := range []header.Orientation{header.Columns, header.Rows} {
		tree := snap.Columns
		levels := snap.ColumnLevels
		if o == header.Rows {
			tree, levels = snap.Rows, snap.RowLevels
		}
		if tree == nil {
			continue
		}
		out = append(out, headerOutput(tree, s.Flags(), levels))
	}
	return out
}

var planeOrder = []core.Plane{core.PlaneX, core.PlaneY, core.PlaneColor, core.PlaneSize}

func scaleOutputs(snap *engine.Snapshot) []output.ScaleOutput {
	var out []output.ScaleOutput
	for _, p := range planeOrder {
		for _, sc := range snap.Scales[p] {
			out = append(out, scaleOutput(p, sc))
		}
	}
	return out
}

func scaleOutput(p core.Plane, sc scale.Scale) output.ScaleOutput {
	d := sc.Domain()
	r := sc.Range()
	out := output.ScaleOutput{
		Plane:     p.String(),
		Axis:      sc.Axis().String(),
		Facet:     sc.Facet(),
		Values:    d.Values,
		Min:       d.Min,
		Max:       d.Max,
		RangeMin:  r.Min,
		RangeMax:  r.Max,
		Bandwidth: sc.Bandwidth(),
	}
	if len(d.Values) > 0 {
		for _, v := range d.Values {
			if pos, ok := sc.Position(v); ok {
				out.Positions = append(out.Positions, output.PositionOutput{Value: v, Position: pos})
			}
		}
		return out
	}
	if t, ok := sc.(scale.Ticker); ok {
		for _, v := range t.Ticks(maxTicks) {
			var probe any = v
			if sc.Axis() == core.AxisTime {
				probe = time.UnixMilli(int64(v)).UTC()
			}
			pos, ok := sc.Position(probe)
			if !ok {
				continue
			}
			out.Positions = append(out.Positions, output.PositionOutput{Value: tickLabel(sc.Axis(), v), Position: pos})
		}
	}
	return out
}

// tickLabel formats a continuous domain value; time domains are unix
// milliseconds.
func tickLabel(axis core.AxisType, v float64) string {
	if axis == core.AxisTime {
		return time.UnixMilli(int64(v)).UTC().Format(time.RFC3339)
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func axisOutputs(mappings []core.AxisMapping) []output.AxisOutput {
	out := make([]output.AxisOutput, 0, len(core.AllAxes))
	for _, a := range core.AllAxes {
		ao := output.AxisOutput{Axis: a.String(), Discrete: a.Discrete()}
		for _, m := range mappings {
			if m.Axis != a {
				continue
			}
			ao.Facets = append(ao.Facets, m.Facet)
			ao.Mapped = append(ao.Mapped, fmt.Sprintf("%s on %s", m.Facet, m.Plane))
		}
		out = append(out, ao)
	}
	return out
}
