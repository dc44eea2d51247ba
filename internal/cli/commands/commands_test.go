package commands

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/latchgrid/internal/cli/config"
	"github.com/leapstack-labs/latchgrid/internal/cli/testutil"
	"github.com/leapstack-labs/latchgrid/internal/engine"
	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/leapstack-labs/latchgrid/pkg/disclosure"
	"github.com/leapstack-labs/latchgrid/pkg/header"
	_ "github.com/leapstack-labs/latchgrid/pkg/sources/file"
	"github.com/leapstack-labs/latchgrid/pkg/sources/memory"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{NewRenderCommand(), "render", []string{"watch", "debounce", "headers", "scales"}},
		{NewExploreCommand(), "explore", nil},
		{NewHeadersCommand(), "headers", nil},
		{NewScalesCommand(), "scales", nil},
		{NewAxesCommand(), "axes", nil},
		{NewSourcesCommand(), "sources", []string{"tables"}},
		{NewDoctorCommand(), "doctor", nil},
		{NewInitCommand(), "init [directory]", []string{"force", "example"}},
	}
	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			assert.NotEmpty(t, tt.cmd.Long, "Long should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

const tasksCSV = `id,name,team,person,status,points
1,task 1,a,ann,done,1
2,task 2,a,ann,done,2
3,task 3,a,bob,todo,3
4,task 4,b,cat,done,4
`

const tasksYAML = `source:
  type: file
  path: tasks.csv
mappings:
  - {axis: category, facet: team, plane: y}
  - {axis: category, facet: person, plane: y}
  - {axis: category, facet: status, plane: x}
density:
  extent: dense
disclosure:
  max_visible_levels: 1
output: %s
`

// loadProject writes a project and loads it as the current config.
func loadProject(t *testing.T, mode string) {
	t.Helper()
	dir := testutil.SetupTestProject(t, map[string]string{
		"tasks.csv":      tasksCSV,
		"latchgrid.yaml": fmt.Sprintf(tasksYAML, mode),
	})
	cfgPath := filepath.Join(dir, "latchgrid.yaml")

	config.ResetConfig()
	t.Cleanup(config.ResetConfig)
	_, err := config.LoadConfig(cfgPath, nil)
	require.NoError(t, err)
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRenderCommand(t *testing.T) {
	loadProject(t, "markdown")

	out, err := execute(t, NewRenderCommand(), "--headers", "--scales")
	require.NoError(t, err)
	testutil.AssertNoANSI(t, out)
	testutil.AssertValidMarkdown(t, out)
	assert.Contains(t, out, "| done | todo |")
	assert.Contains(t, out, "## Rows")
	assert.Contains(t, out, "## X: status (category)")
}

func TestRenderCommand_JSON(t *testing.T) {
	loadProject(t, "json")

	out, err := execute(t, NewRenderCommand())
	require.NoError(t, err)
	assert.Contains(t, out, `"records": 4`)
	assert.Contains(t, out, `"rows": [`)
	assert.Contains(t, out, `"a"`)
}

func TestInspectCommands(t *testing.T) {
	loadProject(t, "markdown")

	out, err := execute(t, NewAxesCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "team on y")
	assert.Contains(t, out, "hierarchy")

	out, err = execute(t, NewSourcesCommand(), "--tables")
	require.NoError(t, err)
	assert.Contains(t, out, "file")
	assert.Contains(t, out, "tasks")

	out, err = execute(t, NewHeadersCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "team > person")
}

func TestConvert_FoldedLabels(t *testing.T) {
	s, _ := newTestExplorer(t)
	snap := s.session.Snapshot()
	require.NotNil(t, snap)

	f := frameOutput(snap)
	assert.Equal(t, []string{"a", "b"}, f.Rows)
	assert.Equal(t, []string{"done", "todo"}, f.Columns)
	assert.Len(t, f.Cells, 3)
	assert.Equal(t, 4, f.Records)

	heads := headerOutputs(s.session, snap)
	require.Len(t, heads, 2)
	assert.Equal(t, "columns", heads[0].Orientation)
	assert.Equal(t, "rows", heads[1].Orientation)
	assert.Equal(t, []string{"team", "person"}, heads[1].Facets)

	scales := scaleOutputs(snap)
	require.Len(t, scales, 3)
	assert.Equal(t, "x", scales[0].Plane)
	assert.Len(t, scales[0].Positions, 2)

	axes := axisOutputs(snap.Mappings)
	require.Len(t, axes, len(core.AllAxes))
	for _, a := range axes {
		if a.Axis == "category" {
			assert.Equal(t, []string{"team", "person", "status"}, a.Facets)
		}
	}
}

// newTestExplorer builds an explorer over a memory source whose disclosure
// timers only fire when settled.
func newTestExplorer(t *testing.T) (*explorer, *bytes.Buffer) {
	t.Helper()
	mem := memory.New(nil)
	var records []core.Record
	for i, r := range [][3]string{{"a", "ann", "done"}, {"a", "ann", "done"}, {"a", "bob", "todo"}, {"b", "cat", "done"}} {
		records = append(records, core.NewRecord(fmt.Sprint(i+1), map[string]any{
			"team": r[0], "person": r[1], "status": r[2], "name": fmt.Sprintf("task %d", i+1), "points": i + 1,
		}))
	}
	mem.Load("", records)

	sched := disclosure.NewManualScheduler()
	session, err := engine.New(engine.Config{
		Source: mem,
		Mappings: []core.AxisMapping{
			{Axis: core.AxisCategory, Facet: "team", Plane: core.PlaneY},
			{Axis: core.AxisCategory, Facet: "person", Plane: core.PlaneY},
			{Axis: core.AxisCategory, Facet: "status", Plane: core.PlaneX},
		},
		Density: core.DensityState{ExtentDensity: core.ExtentDense},
		Disclosure: disclosure.Config{
			MaxVisibleLevels: 1,
			FadeDuration:     10 * time.Millisecond,
			Scheduler:        sched,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	_, err = session.Load(context.Background())
	require.NoError(t, err)

	tr := testutil.NewTestRendererMarkdown()
	return newExplorer(session, tr.Renderer, func() { sched.Flush() }), tr.Out
}

func TestExplorer_Disclosure(t *testing.T) {
	e, out := newTestExplorer(t)
	ctx := context.Background()

	require.NoError(t, e.exec(ctx, "show"))
	assert.Contains(t, out.String(), "| done | todo |")
	assert.NotContains(t, out.String(), "a / ann")

	out.Reset()
	require.NoError(t, e.exec(ctx, "down rows"))
	assert.Contains(t, out.String(), "a / ann")
	assert.Equal(t, []int{1}, e.session.Snapshot().RowLevels)

	err := e.exec(ctx, "down rows")
	require.ErrorIs(t, err, disclosure.ErrAtBoundary)

	out.Reset()
	require.NoError(t, e.exec(ctx, "levels rows"))
	assert.Contains(t, out.String(), "**Visible**: [1]")

	require.NoError(t, e.exec(ctx, "zoom 0 rows"))
	assert.Equal(t, []int{0}, e.session.Snapshot().RowLevels)

	require.NoError(t, e.exec(ctx, "tab 1 rows"))
	assert.Equal(t, []int{1}, e.session.Snapshot().RowLevels)

	_, _, err = orientationArg([]string{"sideways"})
	assert.Error(t, err)
}

func TestExplorer_DensityAndMode(t *testing.T) {
	e, out := newTestExplorer(t)
	ctx := context.Background()

	require.NoError(t, e.exec(ctx, "density 1"))
	snap := e.session.Snapshot()
	assert.Equal(t, 1, snap.Density.ValueDensity)
	assert.Len(t, snap.Frame.Cells, 1)

	require.NoError(t, e.exec(ctx, "extent ultra-sparse"))
	assert.Equal(t, core.ExtentUltraSparse, e.session.Density().ExtentDensity)

	require.NoError(t, e.exec(ctx, "mode matrix"))
	assert.Equal(t, "matrix", e.session.Snapshot().Mode.String())
	require.NoError(t, e.exec(ctx, "mode auto"))

	assert.Error(t, e.exec(ctx, "mode scatter"))
	assert.Error(t, e.exec(ctx, "density lots"))
	assert.Error(t, e.exec(ctx, "extent roomy"))

	out.Reset()
	require.NoError(t, e.exec(ctx, "map category:status:y"))
	assert.Equal(t, []core.AxisMapping{{Axis: core.AxisCategory, Facet: "status", Plane: core.PlaneY}}, e.session.Mappings())
	assert.Error(t, e.exec(ctx, "map color:status:x"))
}

func TestExplorer_Interactions(t *testing.T) {
	e, out := newTestExplorer(t)
	ctx := context.Background()
	require.NoError(t, e.exec(ctx, "down rows"))

	out.Reset()
	require.NoError(t, e.exec(ctx, "hover 0,0"))
	assert.Contains(t, out.String(), "**items**: 2")

	require.NoError(t, e.exec(ctx, "click 0,0"))
	out.Reset()
	require.NoError(t, e.exec(ctx, "copy"))
	assert.Equal(t, "a / ann\tdone\ttask 1, task 2\n", out.String())

	require.NoError(t, e.exec(ctx, "clear"))
	assert.Empty(t, e.session.Interactions().SelectedCells())

	require.NoError(t, e.exec(ctx, "select 0,0 0,2"))
	assert.Len(t, e.session.Interactions().SelectedCells(), 2)

	assert.Error(t, e.exec(ctx, "hover 9,9"))
	assert.Error(t, e.exec(ctx, "click"))

	id := e.session.Snapshot().Rows.Level(0)[0].ID
	require.NoError(t, e.exec(ctx, "toggle "+id))
	assert.True(t, e.session.Interactions().Flags().Has(id, header.Collapsed))
}

func TestExplorer_Control(t *testing.T) {
	e, out := newTestExplorer(t)
	ctx := context.Background()

	require.NoError(t, e.exec(ctx, ""))
	require.NoError(t, e.exec(ctx, "help"))
	assert.Contains(t, out.String(), "## Commands")
	require.NoError(t, e.exec(ctx, "reload"))
	require.NoError(t, e.exec(ctx, "release"))
	require.NoError(t, e.exec(ctx, "sync cols"))

	assert.ErrorIs(t, e.exec(ctx, "quit"), errQuit)
	assert.ErrorContains(t, e.exec(ctx, "dance"), "unknown command")
}
