package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leapstack-labs/latchgrid/internal/testutil"
	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/leapstack-labs/latchgrid/pkg/density"
	"github.com/leapstack-labs/latchgrid/pkg/disclosure"
	"github.com/leapstack-labs/latchgrid/pkg/grid"
	"github.com/leapstack-labs/latchgrid/pkg/header"
	"github.com/leapstack-labs/latchgrid/pkg/interact"
	"github.com/leapstack-labs/latchgrid/pkg/source"
	"github.com/leapstack-labs/latchgrid/pkg/sources/file"
	"github.com/leapstack-labs/latchgrid/pkg/sources/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fade = 10 * time.Millisecond

func taskRecords() []core.Record {
	rows := []struct{ team, person, status string }{
		{"a", "ann", "done"},
		{"a", "ann", "done"},
		{"a", "bob", "todo"},
		{"b", "cat", "done"},
	}
	out := make([]core.Record, len(rows))
	for i, r := range rows {
		out[i] = core.NewRecord(fmt.Sprint(i+1), map[string]any{
			"team": r.team, "person": r.person, "status": r.status,
			"name": fmt.Sprintf("task %d", i+1), "points": i + 1,
		})
	}
	return out
}

var taskMappings = []core.AxisMapping{
	{Axis: core.AxisCategory, Facet: "team", Plane: core.PlaneY},
	{Axis: core.AxisCategory, Facet: "person", Plane: core.PlaneY},
	{Axis: core.AxisCategory, Facet: "status", Plane: core.PlaneX},
}

// flakySource fails queries once fail is set.
type flakySource struct {
	*memory.Source
	fail atomic.Bool
}

func (f *flakySource) Query(ctx context.Context, q source.Query) ([]core.Record, error) {
	if f.fail.Load() {
		return nil, assert.AnError
	}
	return f.Source.Query(ctx, q)
}

type fixture struct {
	session *Session
	sched   *disclosure.ManualScheduler
	src     *flakySource
	levels  []string
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	mem := memory.New(nil)
	mem.Load("", taskRecords())
	f := &fixture{sched: disclosure.NewManualScheduler(), src: &flakySource{Source: mem}}

	cfg := Config{
		Source:    f.src,
		Mappings:  taskMappings,
		Density:   core.DensityState{ExtentDensity: core.ExtentDense},
		CellWidth: 10,
		Disclosure: disclosure.Config{
			MaxVisibleLevels: 1,
			FadeDuration:     fade,
			Scheduler:        f.sched,
			Callbacks: disclosure.Callbacks{
				OnLevelChange: func(levels []int, groupID string) {
					f.levels = append(f.levels, fmt.Sprintf("%v %s", levels, groupID))
				},
			},
		},
		Now:    func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) },
		Logger: testutil.NewTestLogger(t),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	f.session = s
	return f
}

func (f *fixture) load(t *testing.T) *Snapshot {
	t.Helper()
	snap, err := f.session.Load(context.Background())
	require.NoError(t, err)
	return snap
}

func cellByRow(snap *Snapshot, row grid.Key, col grid.Key) (density.VisualCell, bool) {
	for _, c := range snap.Frame.Cells {
		if c.RowKey.Equal(row) && c.ColKey.Equal(col) {
			return c, true
		}
	}
	return density.VisualCell{}, false
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	src := memory.New(nil)
	_, err = New(Config{Source: src, Mappings: []core.AxisMapping{{Axis: core.AxisType(42), Plane: core.PlaneX}}})
	var axisErr *core.UnknownAxisError
	require.ErrorAs(t, err, &axisErr)

	_, err = New(Config{Source: src, Density: core.DensityState{ExtentDensity: core.ExtentDensity(9)}})
	var extentErr *core.UnknownExtentError
	require.ErrorAs(t, err, &extentErr)

	bad := density.Mode(7)
	_, err = New(Config{Source: src, Mode: &bad})
	var modeErr *core.UnknownModeError
	require.ErrorAs(t, err, &modeErr)
}

func TestLoad_BuildsSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	assert.Nil(t, f.session.Snapshot())

	snap := f.load(t)
	assert.Same(t, snap, f.session.Snapshot())
	assert.NotEmpty(t, snap.ID)
	assert.Len(t, snap.Records, 4)
	assert.Equal(t, density.ModeMatrix, snap.Mode)

	// rows show only the team level, so people fold into their team
	assert.Equal(t, []int{0}, snap.RowLevels)
	assert.Equal(t, density.Fold{RowDepth: 1, ColDepth: 1}, snap.Fold)
	require.Len(t, snap.Frame.Cells, 3)
	aDone, ok := cellByRow(snap, grid.Key{"a"}, grid.Key{"done"})
	require.True(t, ok)
	assert.Equal(t, 2, aDone.Count)
	assert.Len(t, snap.Diff.Enter, 3)

	// headers line up with the grid
	assert.Equal(t, 2, snap.Rows.Depth())
	assert.Len(t, snap.Rows.Level(0), 2)
	assert.Len(t, snap.Rows.Leaves(), len(snap.Grid.Rows))
	assert.Equal(t, 2, snap.Columns.LeafCount)

	x := snap.Scales[core.PlaneX]
	require.Len(t, x, 1)
	assert.Equal(t, []string{"done", "todo"}, x[0].Domain().Values)
	assert.Equal(t, 20.0, x[0].Range().Max)
	assert.Len(t, snap.Scales[core.PlaneY], 2)
}

func TestDisclosure_RefoldsOnLevelChange(t *testing.T) {
	f := newFixture(t, nil)
	first := f.load(t)

	rows := f.session.Controller(header.Rows)
	require.NotNil(t, rows)
	require.NoError(t, rows.StepDown())
	f.sched.Flush()

	snap := f.session.Snapshot()
	assert.NotEqual(t, first.ID, snap.ID)
	assert.Equal(t, []int{1}, snap.RowLevels)
	assert.Equal(t, density.Fold{RowDepth: 2, ColDepth: 1}, snap.Fold)
	ann, ok := cellByRow(snap, grid.Key{"a", "ann"}, grid.Key{"done"})
	require.True(t, ok)
	assert.Equal(t, 2, ann.Count)
	assert.Equal(t, []string{"[1] levels:1-1"}, f.levels)

	// the deepest level cannot step further
	require.ErrorIs(t, rows.StepDown(), disclosure.ErrAtBoundary)
}

func TestSync(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Mappings = []core.AxisMapping{
			{Axis: core.AxisCategory, Facet: "team", Plane: core.PlaneY},
			{Axis: core.AxisCategory, Facet: "person", Plane: core.PlaneY},
			{Axis: core.AxisCategory, Facet: "status", Plane: core.PlaneX},
			{Axis: core.AxisCategory, Facet: "name", Plane: core.PlaneX},
		}
	})
	require.ErrorIs(t, f.session.Sync(header.Rows), ErrNoSnapshot)
	f.load(t)

	rows := f.session.Controller(header.Rows)
	require.NoError(t, rows.ZoomToLevel(1, disclosure.ZoomIn))
	f.sched.Flush()
	require.NoError(t, f.session.Sync(header.Rows))
	f.sched.Flush()

	cols := f.session.Controller(header.Columns)
	assert.Equal(t, []int{1}, cols.VisibleLevels())
	assert.Equal(t, density.Fold{RowDepth: 2, ColDepth: 2}, f.session.Snapshot().Fold)

	// a step moves the window without touching the zoom level, and sync
	// follows the window
	require.NoError(t, rows.StepUp())
	f.sched.Flush()
	require.Equal(t, 1, rows.State().ZoomLevel)
	require.NoError(t, f.session.Sync(header.Rows))
	f.sched.Flush()
	assert.Equal(t, []int{0}, cols.VisibleLevels())
	assert.Equal(t, density.Fold{RowDepth: 1, ColDepth: 1}, f.session.Snapshot().Fold)
}

func TestSetMappings(t *testing.T) {
	f := newFixture(t, nil)
	first := f.load(t)

	_, err := f.session.SetMappings(context.Background(), []core.AxisMapping{{Axis: core.AxisType(9)}})
	require.Error(t, err)
	assert.Same(t, first, f.session.Snapshot())

	snap, err := f.session.SetMappings(context.Background(), []core.AxisMapping{
		{Axis: core.AxisCategory, Facet: "status", Plane: core.PlaneX},
	})
	require.NoError(t, err)
	assert.True(t, snap.Rows.Unassigned)
	assert.Len(t, snap.Frame.Cells, 2)
	assert.Len(t, f.session.Mappings(), 1)
}

func TestSetDensity(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MinPopulation = 2 })
	f.load(t)
	ctx := context.Background()

	// zooming out one level folds everything into a single cell
	snap, err := f.session.SetDensity(ctx, core.DensityState{ValueDensity: 1, ExtentDensity: core.ExtentDense})
	require.NoError(t, err)
	require.Len(t, snap.Frame.Cells, 1)
	assert.Equal(t, 4, snap.Frame.Cells[0].Count)

	// ultra-sparse drops team b and the todo column
	snap, err = f.session.SetDensity(ctx, core.DensityState{ExtentDensity: core.ExtentUltraSparse})
	require.NoError(t, err)
	assert.Equal(t, density.ModeGrid, snap.Mode)
	require.Len(t, snap.Frame.Cells, 1)
	assert.Equal(t, 2, snap.Frame.Cells[0].Count)
	assert.Len(t, snap.Rows.Level(0), 1)
	assert.Equal(t, 1, snap.Columns.LeafCount)

	_, err = f.session.SetDensity(ctx, core.DensityState{ValueDensity: -1})
	require.Error(t, err)
	assert.Equal(t, core.ExtentUltraSparse, f.session.Density().ExtentDensity)
}

func TestSetMode(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.session.SetMode(ctx, nil)
	require.ErrorIs(t, err, ErrNoSnapshot)
	f.load(t)

	g := density.ModeGrid
	snap, err := f.session.SetMode(ctx, &g)
	require.NoError(t, err)
	assert.Equal(t, density.ModeGrid, snap.Frame.Mode)
	assert.Len(t, snap.Diff.Update, len(snap.Frame.Cells))

	snap, err = f.session.SetMode(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, density.ModeMatrix, snap.Mode)
}

func TestLoad_FailureKeepsSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	first := f.load(t)

	f.src.fail.Store(true)
	_, err := f.session.Load(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	assert.Same(t, first, f.session.Snapshot())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.session.Rebuild(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Same(t, first, f.session.Snapshot())
}

// cancelAfter reports cancellation once Err has been called n times.
type cancelAfter struct {
	context.Context
	n     int32
	calls atomic.Int32
}

func (c *cancelAfter) Err() error {
	if c.calls.Add(1) > c.n {
		return context.Canceled
	}
	return nil
}

func TestRenderFailureKeepsControllers(t *testing.T) {
	f := newFixture(t, nil)

	// the first build fails while rendering, after the trees were built
	_, err := f.session.Load(&cancelAfter{Context: context.Background(), n: 1})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, f.session.Controller(header.Rows))
	assert.Nil(t, f.session.Snapshot())

	first := f.load(t)
	rows := f.session.Controller(header.Rows)
	require.NotNil(t, rows)
	require.NoError(t, rows.StepDown())
	f.sched.Flush()

	ctx := &cancelAfter{Context: context.Background(), n: 1}
	_, err = f.session.SetMappings(ctx, []core.AxisMapping{
		{Axis: core.AxisCategory, Facet: "status", Plane: core.PlaneX},
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, f.session.Mappings(), 3)

	s := rows.State()
	assert.Equal(t, 2, s.Depth)
	assert.Equal(t, []int{1}, s.VisibleLevels)
	cur := f.session.Snapshot()
	assert.NotEqual(t, first.ID, cur.ID)
	assert.Equal(t, []int{1}, cur.RowLevels)
	assert.Equal(t, 2, cur.Rows.Depth())

	// the session keeps working against the old trees
	snap, err := f.session.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, snap.RowLevels)
}

func TestLoad_DuplicateIDs(t *testing.T) {
	f := newFixture(t, nil)
	f.src.Load("", []core.Record{
		core.NewRecord("1", map[string]any{"team": "a", "person": "ann", "status": "done"}),
		core.NewRecord("1", map[string]any{"team": "b", "person": "cat", "status": "done"}),
	})
	snap := f.load(t)

	require.Len(t, snap.Records, 2)
	assert.Equal(t, "1", snap.Records[0].ID)
	assert.Equal(t, "1#2", snap.Records[1].ID)
	assert.Len(t, snap.Index, 2)

	teams := snap.Rows.Level(0)
	require.Len(t, teams, 2)
	for _, n := range teams {
		assert.Equal(t, 1, n.AggregateCount, "team %s", n.Label)
	}
}

func TestMaxLevels_CapsHeaders(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxLevels = 1 })
	snap := f.load(t)

	assert.Equal(t, 1, snap.Rows.Depth())
	assert.Equal(t, []string{"team"}, snap.Rows.Facets)
	assert.Equal(t, 1, f.session.Controller(header.Rows).State().Depth)
	assert.Equal(t, 3, snap.Rows.Level(0)[0].AggregateCount)

	rows := f.session.Controller(header.Rows)
	require.ErrorIs(t, rows.StepDown(), disclosure.ErrAtBoundary)
}

func TestInteractionsAndSelection(t *testing.T) {
	var hovered []string
	f := newFixture(t, func(c *Config) {
		c.Interact = interact.Callbacks{OnCellHover: func(cell *density.VisualCell, _ *interact.Position) {
			if cell != nil {
				hovered = append(hovered, cell.ID)
			}
		}}
	})
	snap := f.load(t)
	cell, ok := cellByRow(snap, grid.Key{"a"}, grid.Key{"done"})
	require.True(t, ok)

	tip, ok := f.session.Interactions().Hover(cell.ID, interact.Position{})
	require.True(t, ok)
	assert.Equal(t, 2, tip.Count)
	assert.Equal(t, []string{cell.ID}, hovered)

	assert.True(t, f.session.Interactions().Click(cell.ID, interact.Position{}))
	assert.Equal(t, "a\tdone\ttask 1, task 2\n", f.session.SelectionText())

	caps := f.session.Capabilities()
	assert.True(t, caps.ReleaseMemory)
	assert.False(t, caps.Clipboard)
	assert.True(t, f.session.ReleaseMemory())
}

func TestHeaderFlagsSurviveRebuild(t *testing.T) {
	f := newFixture(t, nil)
	snap := f.load(t)
	teamA := snap.Rows.Level(0)[0].ID
	f.session.Interactions().ToggleHeader(teamA)
	f.session.Flags().Set("row/stale", header.Collapsed, true)

	_, err := f.session.Rebuild(context.Background())
	require.NoError(t, err)
	assert.True(t, f.session.Flags().Has(teamA, header.Collapsed))
	assert.False(t, f.session.Flags().Has("row/stale", header.Collapsed))
}

func TestClose(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t)
	rows := f.session.Controller(header.Rows)
	require.NoError(t, rows.StepDown())

	require.NoError(t, f.session.Close())
	require.NoError(t, f.session.Close())
	assert.Zero(t, f.sched.Flush())
	require.ErrorIs(t, rows.StepUp(), disclosure.ErrClosed)
	_, err := f.session.Load(context.Background())
	require.ErrorIs(t, err, disclosure.ErrClosed)
}

func TestWatch(t *testing.T) {
	mem := memory.New(nil)
	s, err := New(Config{Source: mem})
	require.NoError(t, err)
	require.Error(t, s.Watch(context.Background(), 0, nil))

	path := filepath.Join(t.TempDir(), "tasks.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,status\n1,todo\n"), 0o600))
	src := file.New(nil)
	require.NoError(t, src.Open(context.Background(), source.Config{Path: path}))

	s, err = New(Config{
		Source:   src,
		Mappings: []core.AxisMapping{{Axis: core.AxisCategory, Facet: "status", Plane: core.PlaneX}},
		Logger:   testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	_, err = s.Load(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	results := make(chan int, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, 20*time.Millisecond, func(snap *Snapshot, err error) {
			if err != nil {
				return
			}
			select {
			case results <- len(snap.Records):
			default:
			}
		})
	}()

	// give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("id,status\n1,todo\n2,done\n"), 0o600))

	timeout := time.After(5 * time.Second)
	for got := 0; got != 2; {
		select {
		case got = <-results:
		case <-timeout:
			t.Fatal("no reload after file change")
		}
	}
	cancel()
	require.NoError(t, <-done)
}
