package density

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/leapstack-labs/latchgrid/pkg/grid"
	"golang.org/x/sync/errgroup"
)

// VisualCell is one drawn cell. ID is stable across renders for the same
// logical cell.
type VisualCell struct {
	ID        string
	X, Y      int
	RowKey    grid.Key
	ColKey    grid.Key
	Mode      Mode
	Tier      Tier
	Size      float64
	Label     string
	Labeled   bool
	Count     int
	Sparsity  float64
	Color     grid.Key
	MemberIDs []string
}

func (v VisualCell) equal(o VisualCell) bool {
	return v.ID == o.ID && v.X == o.X && v.Y == o.Y &&
		v.Mode == o.Mode && v.Tier == o.Tier && v.Size == o.Size &&
		v.Label == o.Label && v.Labeled == o.Labeled &&
		v.Count == o.Count && v.Sparsity == o.Sparsity &&
		v.Color.Equal(o.Color) && slices.Equal(v.MemberIDs, o.MemberIDs)
}

// Frame is a complete render.
type Frame struct {
	Mode  Mode
	Cells []VisualCell
}

// Diff describes how a frame differs from the previous one.
type Diff struct {
	Enter     []string
	Update    []string
	Exit      []string
	Unchanged int
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool {
	return len(d.Enter) == 0 && len(d.Update) == 0 && len(d.Exit) == 0
}

// RendererConfig configures a Renderer.
type RendererConfig struct {
	// MinSize and MaxSize bound marker sizes.
	MinSize float64
	MaxSize float64
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Renderer turns aggregated cells into frames, remembering the previous
// frame so re-renders are reported as enter/update/exit by cell id.
type Renderer struct {
	mu     sync.Mutex
	cfg    RendererConfig
	logger *slog.Logger
	prev   map[string]VisualCell
}

// NewRenderer creates a renderer.
func NewRenderer(cfg RendererConfig) *Renderer {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1
	}
	if cfg.MinSize < 0 || cfg.MinSize > cfg.MaxSize {
		cfg.MinSize = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Renderer{cfg: cfg, logger: logger}
}

// Render draws cells under mode. names resolves singleton labels to record
// display names. An invalid mode is a configuration error. The previous
// frame is only replaced when rendering succeeds.
func (r *Renderer) Render(ctx context.Context, mode Mode, cells []Cell, names core.RecordIndex) (Frame, Diff, error) {
	if !mode.Valid() {
		return Frame{}, Diff{}, &core.UnknownModeError{Name: mode.String()}
	}

	maxCount := 0
	for _, c := range cells {
		maxCount = max(maxCount, c.AggregationCount)
	}
	sizes := SizeScale{Min: r.cfg.MinSize, Max: r.cfg.MaxSize, MaxCount: maxCount}

	var drawn []VisualCell
	if mode == ModeHybrid {
		var err error
		drawn, err = r.renderHybrid(ctx, cells, sizes, names)
		if err != nil {
			return Frame{}, Diff{}, err
		}
	} else {
		if err := ctx.Err(); err != nil {
			return Frame{}, Diff{}, err
		}
		drawn = drawCells(mode, cells, sizes, names)
	}

	frame := Frame{Mode: mode, Cells: drawn}

	r.mu.Lock()
	defer r.mu.Unlock()
	diff := r.diff(drawn)
	r.logger.Debug("frame rendered",
		"mode", mode.String(),
		"cells", len(drawn),
		"enter", len(diff.Enter),
		"update", len(diff.Update),
		"exit", len(diff.Exit))
	return frame, diff, nil
}

// renderHybrid draws the grid half and the matrix half concurrently.
func (r *Renderer) renderHybrid(ctx context.Context, cells []Cell, sizes SizeScale, names core.RecordIndex) ([]VisualCell, error) {
	var small, large []Cell
	for _, c := range cells {
		if CellMode(ModeHybrid, c.AggregationCount) == ModeGrid {
			small = append(small, c)
		} else {
			large = append(large, c)
		}
	}

	var gridPart, matrixPart []VisualCell
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		gridPart = drawCells(ModeGrid, small, sizes, names)
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		matrixPart = drawCells(ModeMatrix, large, sizes, names)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("hybrid render: %w", err)
	}

	out := append(gridPart, matrixPart...)
	slices.SortFunc(out, func(a, b VisualCell) int {
		if a.Y != b.Y {
			return a.Y - b.Y
		}
		return a.X - b.X
	})
	return out, nil
}

func drawCells(mode Mode, cells []Cell, sizes SizeScale, names core.RecordIndex) []VisualCell {
	out := make([]VisualCell, 0, len(cells))
	for _, c := range cells {
		v := VisualCell{
			ID:        c.ID,
			X:         c.GridX,
			Y:         c.GridY,
			RowKey:    c.RowKey,
			ColKey:    c.ColKey,
			Mode:      CellMode(mode, c.AggregationCount),
			Tier:      ColorTier(c.AggregationCount, c.SparsityRatio),
			Size:      sizes.Size(c.AggregationCount),
			Count:     c.AggregationCount,
			Sparsity:  c.SparsityRatio,
			Color:     c.Color,
			MemberIDs: c.MemberIDs,
		}
		if ShowLabel(c.AggregationCount, c.SparsityRatio) {
			v.Labeled = true
			v.Label = CellLabel(c, names)
		}
		out = append(out, v)
	}
	return out
}

// CellLabel is the record's display name for singletons, "N items" otherwise.
func CellLabel(c Cell, names core.RecordIndex) string {
	if c.AggregationCount == 1 && len(c.MemberIDs) == 1 {
		if rec, ok := names[c.MemberIDs[0]]; ok {
			return rec.DisplayName()
		}
		return c.MemberIDs[0]
	}
	return fmt.Sprintf("%d items", c.AggregationCount)
}

// diff compares drawn with the previous frame and stores it. Caller holds mu.
func (r *Renderer) diff(drawn []VisualCell) Diff {
	var d Diff
	next := make(map[string]VisualCell, len(drawn))
	for _, v := range drawn {
		next[v.ID] = v
		old, ok := r.prev[v.ID]
		switch {
		case !ok:
			d.Enter = append(d.Enter, v.ID)
		case !old.equal(v):
			d.Update = append(d.Update, v.ID)
		default:
			d.Unchanged++
		}
	}
	for id := range r.prev {
		if _, ok := next[id]; !ok {
			d.Exit = append(d.Exit, id)
		}
	}
	slices.Sort(d.Exit)
	r.prev = next
	return d
}

// Reset forgets the previous frame; the next render enters every cell.
func (r *Renderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prev = nil
}
