package density

import (
	"context"
	"fmt"
	"testing"

	"github.com/leapstack-labs/latchgrid/internal/testutil"
	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/leapstack-labs/latchgrid/pkg/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectMode(t *testing.T) {
	tests := []struct {
		extent core.ExtentDensity
		want   Mode
	}{
		{core.ExtentUltraSparse, ModeGrid},
		{core.ExtentSparse, ModeGrid},
		{core.ExtentMedium, ModeHybrid},
		{core.ExtentDense, ModeMatrix},
		{core.ExtentUltraDense, ModeMatrix},
	}
	for _, tt := range tests {
		t.Run(tt.extent.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, SelectMode(tt.extent))
		})
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeGrid, ModeMatrix, ModeHybrid} {
		got, err := ParseMode(" " + m.String() + " ")
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	_, err := ParseMode("scatter")
	var modeErr *core.UnknownModeError
	require.ErrorAs(t, err, &modeErr)
	assert.Contains(t, err.Error(), "scatter")
}

func TestColorTierAndLabel(t *testing.T) {
	tests := []struct {
		count    int
		sparsity float64
		tier     Tier
		label    bool
	}{
		{1, 0.9, TierLeaf, true},
		{2, 0.2, TierCollapsed, true},
		{3, 0.3, TierCollapsed, false},
		{5, 0.0, TierCollapsed, false},
		{6, 0.49, TierPopulated, false},
		{6, 0.5, TierSparse, false},
		{40, 0.9, TierSparse, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%.2f", tt.count, tt.sparsity), func(t *testing.T) {
			assert.Equal(t, tt.tier, ColorTier(tt.count, tt.sparsity))
			assert.Equal(t, tt.label, ShowLabel(tt.count, tt.sparsity))
		})
	}
}

func TestSizeScale_Monotonic(t *testing.T) {
	s := SizeScale{Min: 2, Max: 10, MaxCount: 50}
	prev := s.Size(0)
	assert.Equal(t, 2.0, prev)
	for n := 1; n <= 50; n++ {
		got := s.Size(n)
		assert.Greater(t, got, prev)
		prev = got
	}
	assert.InDelta(t, 10, s.Size(50), 1e-9)
	assert.InDelta(t, 10, s.Size(500), 1e-9)
}

// stackedGrid has two row levels (team, person) and one column level.
func stackedGrid(t *testing.T) (*grid.Grid, core.RecordIndex) {
	t.Helper()
	rows := []struct{ team, person, status string }{
		{"a", "ann", "done"},
		{"a", "ann", "done"},
		{"a", "bob", "todo"},
		{"b", "cat", "done"},
	}
	var records []core.Record
	for i, r := range rows {
		records = append(records, core.NewRecord(fmt.Sprint(i), map[string]any{
			"team": r.team, "person": r.person, "status": r.status, "name": fmt.Sprintf("task %d", i),
		}))
	}
	g, err := grid.Assemble(records, []core.AxisMapping{
		{Axis: core.AxisCategory, Facet: "team", Plane: core.PlaneY},
		{Axis: core.AxisCategory, Facet: "person", Plane: core.PlaneY},
		{Axis: core.AxisCategory, Facet: "status", Plane: core.PlaneX},
	}, core.ExtentDense, grid.Options{})
	require.NoError(t, err)
	return g, core.IndexRecords(records)
}

func TestAggregate(t *testing.T) {
	g, _ := stackedGrid(t)

	unfolded := Aggregate(g, Unfolded(g))
	require.Len(t, unfolded, len(g.Cells))
	for _, c := range unfolded {
		assert.Zero(t, c.SparsityRatio)
	}

	folded := Aggregate(g, Fold{RowDepth: 1, ColDepth: 1})
	require.Len(t, folded, 3)

	// team a / done: only ann of {ann, bob} has done tasks
	aDone := folded[0]
	assert.Equal(t, grid.Key{"a"}, aDone.RowKey)
	assert.Equal(t, grid.Key{"done"}, aDone.ColKey)
	assert.Equal(t, 2, aDone.AggregationCount)
	assert.InDelta(t, 0.5, aDone.SparsityRatio, 1e-9)
	assert.Equal(t, 0, aDone.GridY)
	assert.Equal(t, 0, aDone.GridX)

	bDone := folded[2]
	assert.Equal(t, grid.Key{"b"}, bDone.RowKey)
	assert.Equal(t, 1, bDone.GridY)
	assert.Zero(t, bDone.SparsityRatio)

	total := 0
	for _, c := range folded {
		total += c.AggregationCount
	}
	assert.Equal(t, 4, total)

	assert.Nil(t, Aggregate(nil, Fold{}))
	assert.Equal(t, Fold{RowDepth: 0, ColDepth: 0}, FoldFor(5, 2, 1))
}

func TestRenderer_IdentityKeyed(t *testing.T) {
	g, names := stackedGrid(t)
	cells := Aggregate(g, Unfolded(g))
	r := NewRenderer(RendererConfig{MinSize: 1, MaxSize: 4, Logger: testutil.NewTestLogger(t)})
	ctx := context.Background()

	frame, diff, err := r.Render(ctx, ModeGrid, cells, names)
	require.NoError(t, err)
	assert.Len(t, diff.Enter, len(cells))
	require.Len(t, frame.Cells, len(cells))

	// identical input re-renders without churn
	again, diff, err := r.Render(ctx, ModeGrid, cells, names)
	require.NoError(t, err)
	assert.True(t, diff.Empty())
	assert.Equal(t, len(cells), diff.Unchanged)
	assert.Equal(t, frame, again)

	// switching modes updates cells in place
	_, diff, err = r.Render(ctx, ModeMatrix, cells, names)
	require.NoError(t, err)
	assert.Empty(t, diff.Enter)
	assert.Empty(t, diff.Exit)
	assert.Len(t, diff.Update, len(cells))

	// folding replaces the leaf cells
	_, diff, err = r.Render(ctx, ModeMatrix, Aggregate(g, Fold{RowDepth: 1, ColDepth: 1}), names)
	require.NoError(t, err)
	assert.NotEmpty(t, diff.Enter)
	assert.NotEmpty(t, diff.Exit)
}

func TestRenderer_Labels(t *testing.T) {
	g, names := stackedGrid(t)
	frame, _, err := NewRenderer(RendererConfig{}).Render(context.Background(), ModeGrid, Aggregate(g, Unfolded(g)), names)
	require.NoError(t, err)

	byID := map[string]VisualCell{}
	for _, v := range frame.Cells {
		byID[v.ID] = v
	}
	bob := byID[grid.CellID(grid.Key{"a", "bob"}, grid.Key{"todo"})]
	assert.True(t, bob.Labeled)
	assert.Equal(t, "task 2", bob.Label)
	assert.Equal(t, TierLeaf, bob.Tier)

	ann := byID[grid.CellID(grid.Key{"a", "ann"}, grid.Key{"done"})]
	assert.True(t, ann.Labeled)
	assert.Equal(t, "2 items", ann.Label)
	assert.Equal(t, TierCollapsed, ann.Tier)
	assert.Greater(t, ann.Size, bob.Size)
}

func TestRenderer_Hybrid(t *testing.T) {
	var cells []Cell
	for i, n := range []int{1, 5, 6, 30} {
		cells = append(cells, Cell{
			ID:               fmt.Sprint(i),
			GridX:            i,
			AggregationCount: n,
			MemberIDs:        make([]string, n),
		})
	}
	frame, _, err := NewRenderer(RendererConfig{}).Render(context.Background(), ModeHybrid, cells, nil)
	require.NoError(t, err)
	require.Len(t, frame.Cells, 4)

	modes := make([]Mode, len(frame.Cells))
	for i, v := range frame.Cells {
		assert.Equal(t, i, v.X)
		modes[i] = v.Mode
	}
	assert.Equal(t, []Mode{ModeGrid, ModeGrid, ModeMatrix, ModeMatrix}, modes)
	assert.Equal(t, ModeHybrid, frame.Mode)
}

func TestRenderer_FailuresKeepPreviousFrame(t *testing.T) {
	g, names := stackedGrid(t)
	cells := Aggregate(g, Unfolded(g))
	r := NewRenderer(RendererConfig{})

	_, _, err := r.Render(context.Background(), ModeGrid, cells, names)
	require.NoError(t, err)

	_, _, err = r.Render(context.Background(), Mode(9), nil, names)
	var modeErr *core.UnknownModeError
	require.ErrorAs(t, err, &modeErr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = r.Render(ctx, ModeHybrid, nil, names)
	require.ErrorIs(t, err, context.Canceled)

	_, diff, err := r.Render(context.Background(), ModeGrid, cells, names)
	require.NoError(t, err)
	assert.True(t, diff.Empty())

	r.Reset()
	_, diff, err = r.Render(context.Background(), ModeGrid, cells, names)
	require.NoError(t, err)
	assert.Len(t, diff.Enter, len(cells))
}
