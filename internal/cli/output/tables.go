package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// newTable returns a go-pretty writer in the house style.
func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	return t
}

// flush renders t in the effective mode.
func (r *Renderer) flush(t table.Writer) {
	if r.EffectiveMode() == ModeMarkdown {
		r.Println(t.RenderMarkdown())
		return
	}
	r.Println(t.Render())
}

// Frame writes a rendered frame. Text and markdown paint the cells on a
// row by column grid; json and yaml encode f.
func (r *Renderer) Frame(f FrameOutput) error {
	if ok, err := r.Structured(f); ok {
		return err
	}
	r.Header(1, fmt.Sprintf("Frame %s", f.ID))
	r.KeyValue("Mode", f.Mode)
	r.KeyValue("Density", fmt.Sprintf("value %d, %s", f.Density.Value, f.Density.Extent))
	r.KeyValue("Records", f.Records)
	r.KeyValue("Cells", len(f.Cells))
	r.Println("")

	if len(f.Cells) == 0 {
		r.Muted("(no cells)")
		return nil
	}

	cols := max(len(f.Columns), 1)
	grid := make([][]string, max(len(f.Rows), 1))
	for i := range grid {
		grid[i] = make([]string, cols)
	}
	for _, c := range f.Cells {
		if c.Y >= len(grid) || c.X >= cols {
			continue
		}
		grid[c.Y][c.X] = r.cellText(c)
	}

	t := newTable()
	header := table.Row{""}
	for _, c := range f.Columns {
		header = append(header, c)
	}
	t.AppendHeader(header)
	for y, cells := range grid {
		label := ""
		if y < len(f.Rows) {
			label = f.Rows[y]
		}
		row := table.Row{r.styles.Bold.Render(label)}
		for _, s := range cells {
			row = append(row, s)
		}
		t.AppendRow(row)
	}
	r.flush(t)
	return nil
}

// cellText draws one cell: the label or count, with a marker sized by the
// cell size in matrix mode.
func (r *Renderer) cellText(c CellOutput) string {
	text := fmt.Sprint(c.Count)
	if c.Label != "" {
		text = c.Label
	}
	if c.Mode == "matrix" {
		text = marker(c.Size) + " " + text
	}
	if r.EffectiveMode() == ModeMarkdown {
		return text
	}
	return r.styles.Tier(c.TierRank).Render(text)
}

func marker(size float64) string {
	switch {
	case size >= 0.66:
		return "●"
	case size >= 0.33:
		return "•"
	}
	return "·"
}

// Headers writes header trees.
func (r *Renderer) Headers(trees []HeaderOutput) error {
	if ok, err := r.Structured(trees); ok {
		return err
	}
	for _, h := range trees {
		r.Header(2, Title(h.Orientation))
		if h.Unassigned {
			r.Muted("no axis assigned")
			r.Println("")
			continue
		}
		r.KeyValue("Facets", strings.Join(h.Facets, " > "))
		r.KeyValue("Leaves", h.LeafCount)
		r.KeyValue("Visible levels", fmt.Sprint(h.Visible))

		t := newTable()
		t.AppendHeader(table.Row{"Label", "Level", "Span", "Leaf span", "Count", "ID"})
		for _, n := range h.Nodes {
			label := strings.Repeat("  ", n.Level) + n.Label
			if n.Collapsed {
				label += " (collapsed)"
			}
			t.AppendRow(table.Row{label, n.Level, n.Span, n.LeafSpan, n.Count, n.ID})
		}
		r.flush(t)
		r.Println("")
	}
	return nil
}

// Scales writes axis scales.
func (r *Renderer) Scales(scales []ScaleOutput) error {
	if ok, err := r.Structured(scales); ok {
		return err
	}
	for _, s := range scales {
		r.Header(2, fmt.Sprintf("%s: %s (%s)", Title(s.Plane), s.Facet, s.Axis))
		r.KeyValue("Range", fmt.Sprintf("[%g, %g]", s.RangeMin, s.RangeMax))
		if len(s.Values) == 0 {
			r.KeyValue("Domain", fmt.Sprintf("[%g, %g]", s.Min, s.Max))
		} else {
			r.KeyValue("Bandwidth", fmt.Sprintf("%.4g", s.Bandwidth))
		}
		if len(s.Positions) > 0 {
			t := newTable()
			t.AppendHeader(table.Row{"Value", "Position"})
			for _, p := range s.Positions {
				t.AppendRow(table.Row{p.Value, fmt.Sprintf("%.4g", p.Position)})
			}
			r.flush(t)
		}
		r.Println("")
	}
	return nil
}

// Axes writes the LATCH axes and their mappings.
func (r *Renderer) Axes(axes []AxisOutput) error {
	if ok, err := r.Structured(axes); ok {
		return err
	}
	t := newTable()
	t.AppendHeader(table.Row{"Axis", "Kind", "Facets", "Mapped"})
	for _, a := range axes {
		kind := "continuous"
		if a.Discrete {
			kind = "discrete"
		}
		t.AppendRow(table.Row{a.Axis, kind, strings.Join(a.Facets, ", "), strings.Join(a.Mapped, ", ")})
	}
	r.flush(t)
	return nil
}

// Sources writes registered source types.
func (r *Renderer) Sources(sources []SourceOutput) error {
	if ok, err := r.Structured(sources); ok {
		return err
	}
	t := newTable()
	t.AppendHeader(table.Row{"Type", "Active", "Tables"})
	for _, s := range sources {
		active := ""
		if s.Active {
			active = r.styles.Success.Render("yes")
		}
		t.AppendRow(table.Row{s.Type, active, strings.Join(s.Tables, ", ")})
	}
	r.flush(t)
	return nil
}

// Tooltip writes hover content lines.
func (r *Renderer) Tooltip(lines []string) {
	for _, l := range lines {
		key, value, ok := strings.Cut(l, ": ")
		if !ok {
			r.Println(l)
			continue
		}
		r.KeyValue(key, value)
	}
}
