package grid

import (
	"fmt"
	"testing"

	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapping(axis core.AxisType, facet string, plane core.Plane) core.AxisMapping {
	return core.AxisMapping{Axis: axis, Facet: facet, Plane: plane}
}

func keys(ks ...string) []Key {
	out := make([]Key, len(ks))
	for i, k := range ks {
		out[i] = Key{k}
	}
	return out
}

func TestAssemble_Empty(t *testing.T) {
	g, err := Assemble(nil, nil, core.ExtentDense, Options{})
	require.NoError(t, err)
	assert.True(t, g.Empty())
	assert.Empty(t, g.Rows)
	assert.Empty(t, g.Columns)
}

func TestAssemble_FiveEqualCategories(t *testing.T) {
	var records []core.Record
	for i, c := range []string{"e", "c", "a", "d", "b"} {
		for j := range 10 {
			records = append(records, core.NewRecord(fmt.Sprintf("%d-%d", i, j), map[string]any{"status": c}))
		}
	}

	g, err := Assemble(records, []core.AxisMapping{mapping(core.AxisCategory, "status", core.PlaneX)}, core.ExtentDense, Options{})
	require.NoError(t, err)

	assert.Equal(t, keys("a", "b", "c", "d", "e"), g.Columns)
	assert.Equal(t, []Key{{}}, g.Rows)
	require.Len(t, g.Cells, 5)
	for i, c := range g.Cells {
		assert.Equal(t, 10, c.Count)
		assert.Len(t, c.MemberIDs, 10)
		assert.Equal(t, i, c.GridX)
		assert.Equal(t, 0, c.GridY)
	}
}

func TestAssemble_ExtentFiltering(t *testing.T) {
	records := []core.Record{
		core.NewRecord("a", map[string]any{"row": "r1", "col": "c1"}),
		core.NewRecord("b", map[string]any{"row": "r2", "col": "c2"}),
	}
	mappings := []core.AxisMapping{
		mapping(core.AxisCategory, "row", core.PlaneY),
		mapping(core.AxisCategory, "col", core.PlaneX),
	}
	opts := Options{RowDomain: keys("r1", "r2", "r3"), ColDomain: keys("c1", "c2", "c3")}

	tests := []struct {
		extent core.ExtentDensity
		rows   []Key
		cols   []Key
	}{
		{core.ExtentDense, keys("r1", "r2", "r3"), keys("c1", "c2", "c3")},
		{core.ExtentMedium, keys("r1", "r2", "r3"), keys("c1", "c2", "c3")},
		{core.ExtentSparse, keys("r1", "r2"), keys("c1", "c2")},
		// every row and column holds a single record, below the threshold
		{core.ExtentUltraSparse, []Key{}, []Key{}},
	}

	for _, tt := range tests {
		t.Run(tt.extent.String(), func(t *testing.T) {
			g, err := Assemble(records, mappings, tt.extent, opts)
			require.NoError(t, err)
			assert.Equal(t, tt.rows, g.Rows)
			assert.Equal(t, tt.cols, g.Columns)
			if tt.extent != core.ExtentUltraSparse {
				assert.Len(t, g.Cells, 2)
			}
		})
	}

	g, err := Assemble(records, mappings, core.ExtentUltraSparse, Options{MinPopulation: 1})
	require.NoError(t, err)
	assert.Len(t, g.Cells, 2)
}

func TestAssemble_DenseKeepsEveryPopulatedCell(t *testing.T) {
	var records []core.Record
	for i := range 30 {
		records = append(records, core.NewRecord(fmt.Sprint(i), map[string]any{
			"row": fmt.Sprintf("r%d", i%7),
			"col": fmt.Sprintf("c%d", i%4),
		}))
	}
	g, err := Assemble(records, []core.AxisMapping{
		mapping(core.AxisCategory, "row", core.PlaneY),
		mapping(core.AxisCategory, "col", core.PlaneX),
	}, core.ExtentDense, Options{})
	require.NoError(t, err)

	total := 0
	seen := map[string]bool{}
	for _, c := range g.Cells {
		assert.False(t, seen[c.ID], "duplicate cell %s", c.ID)
		seen[c.ID] = true
		total += c.Count
	}
	assert.Equal(t, 30, total)
}

func TestAssemble_CompositeKeys(t *testing.T) {
	records := []core.Record{
		core.NewRecord("1", map[string]any{"a": "x/y", "b": "z"}),
		core.NewRecord("2", map[string]any{"a": "x", "b": "y/z"}),
		core.NewRecord("3", map[string]any{"a": "x", "b": "y/z"}),
	}
	g, err := Assemble(records, []core.AxisMapping{
		mapping(core.AxisCategory, "a", core.PlaneY),
		mapping(core.AxisCategory, "b", core.PlaneY),
	}, core.ExtentDense, Options{})
	require.NoError(t, err)

	// "x/y"+"z" and "x"+"y/z" render alike but stay distinct cells
	require.Len(t, g.Cells, 2)
	assert.Equal(t, []Key{{"x", "y/z"}, {"x/y", "z"}}, g.Rows)
	c, ok := g.Cell(Key{"x", "y/z"}, Key{})
	require.True(t, ok)
	assert.Equal(t, 2, c.Count)
}

func TestAssemble_FallbacksAndSecondaryValues(t *testing.T) {
	records := []core.Record{
		core.NewRecord("1", map[string]any{"tags": []string{"b", "a"}}),
		core.NewRecord("2", map[string]any{}),
	}
	g, err := Assemble(records, []core.AxisMapping{mapping(core.AxisCategory, "tags", core.PlaneX)}, core.ExtentDense, Options{})
	require.NoError(t, err)

	assert.Equal(t, keys("a", "b", "Uncategorized"), g.Columns)
	assert.Len(t, g.Cells, 2)

	sparse, err := Assemble(records, []core.AxisMapping{mapping(core.AxisCategory, "tags", core.PlaneX)}, core.ExtentSparse, Options{})
	require.NoError(t, err)
	assert.Equal(t, keys("b", "Uncategorized"), sparse.Columns)
}

func TestAssemble_ColorAndSize(t *testing.T) {
	records := []core.Record{
		core.NewRecord("1", map[string]any{"k": "a", "team": "red", "score": 2}),
		core.NewRecord("2", map[string]any{"k": "a", "team": "blue", "score": 4}),
		core.NewRecord("3", map[string]any{"k": "a", "team": "blue"}),
		core.NewRecord("4", map[string]any{"k": "b", "team": "red"}),
	}
	g, err := Assemble(records, []core.AxisMapping{
		mapping(core.AxisCategory, "k", core.PlaneX),
		mapping(core.AxisCategory, "team", core.PlaneColor),
		mapping(core.AxisHierarchy, "score", core.PlaneSize),
	}, core.ExtentDense, Options{})
	require.NoError(t, err)
	require.Len(t, g.Cells, 2)

	a := g.Cells[0]
	assert.Equal(t, Key{"blue"}, a.Color)
	assert.InDelta(t, 3, a.Size, 1e-9)

	b := g.Cells[1]
	assert.Equal(t, Key{"red"}, b.Color)
	assert.InDelta(t, 1, b.Size, 1e-9)
}

func TestAssemble_InvalidConfig(t *testing.T) {
	_, err := Assemble(nil, []core.AxisMapping{{Axis: core.AxisType(9)}}, core.ExtentDense, Options{})
	var axisErr *core.UnknownAxisError
	require.ErrorAs(t, err, &axisErr)

	_, err = Assemble(nil, nil, core.ExtentDensity(42), Options{})
	var extErr *core.UnknownExtentError
	require.ErrorAs(t, err, &extErr)
}

func TestKey(t *testing.T) {
	assert.NotEqual(t, Key{"a:b"}.ID(), Key{"a", "b"}.ID())
	assert.NotEqual(t, Key{"ab", ""}.ID(), Key{"a", "b"}.ID())
	assert.Equal(t, "2:1:a1:b", Key{"a", "b"}.ID())
	assert.Equal(t, "a / b", Key{"a", "b"}.String())
	assert.True(t, Key{"a", "b"}.HasPrefix(Key{"a"}))
	assert.False(t, Key{"a"}.HasPrefix(Key{"a", "b"}))
	assert.Equal(t, Key{"a"}, Key{"a", "b"}.Prefix(1))
	assert.Equal(t, Key{"a", "b"}, Key{"a", "b"}.Prefix(5))
}
