package filter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func records() []core.Record {
	return []core.Record{
		core.NewRecord("1", map[string]any{"status": "todo", "points": 3, "tags": []string{"web"}}),
		core.NewRecord("2", map[string]any{"status": "done", "points": int64(8), "due date": "2024-01-02"}),
		core.NewRecord("3", map[string]any{"status": "todo", "points": 13.5, "True": "shadow"}),
	}
}

func ids(rs []core.Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestPredicate_Apply(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want []string
	}{
		{"empty matches all", "", []string{"1", "2", "3"}},
		{"field equality", `status == "todo"`, []string{"1", "3"}},
		{"numeric comparison", "points > 5", []string{"2", "3"}},
		{"record dict", `record.get("due date") != None`, []string{"2"}},
		{"id global", `id in ("1", "3")`, []string{"1", "3"}},
		{"list membership", `"web" in record.get("tags", [])`, []string{"1"}},
		{"truthiness", "record.get(\"tags\")", []string{"1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(tt.expr)
			require.NoError(t, err)
			got, err := p.Apply(context.Background(), records())
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestCompile_SyntaxError(t *testing.T) {
	_, err := Compile("status ==")
	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "status ==", evalErr.Expr)
}

func TestPredicate_RuntimeError(t *testing.T) {
	p, err := Compile("missing > 1")
	require.NoError(t, err)

	_, err = p.Apply(context.Background(), records())
	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Contains(t, err.Error(), "missing")
}

func TestPredicate_Cancelled(t *testing.T) {
	p, err := Compile("True")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Apply(ctx, records())
	require.ErrorIs(t, err, context.Canceled)
}

func TestPredicate_NilMatches(t *testing.T) {
	var p *Predicate
	ok, err := p.Match(core.NewRecord("x", nil))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGlobals(t *testing.T) {
	g := Globals(records()[2])
	assert.Contains(t, g, "status")
	assert.NotContains(t, g, "True", "universe names are not shadowed")
	assert.Equal(t, starlark.String("3"), g["id"])

	g = Globals(records()[1])
	assert.NotContains(t, g, "due date")
}

func TestGoToStarlark(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		in   any
		want string
	}{
		{nil, "None"},
		{"x", `"x"`},
		{int32(4), "4"},
		{uint64(7), "7"},
		{float32(1.5), "1.5"},
		{true, "True"},
		{ts, `"2024-01-02T03:04:05Z"`},
		{[]any{1, "a"}, `[1, "a"]`},
		{map[string]any{"k": 1}, `{"k": 1}`},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T", tt.in), func(t *testing.T) {
			v, err := GoToStarlark(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}

	_, err := GoToStarlark(struct{}{})
	require.Error(t, err)
	assert.Equal(t, `"{}"`, looseValue(struct{}{}).String())
}

func TestThreadPool(t *testing.T) {
	pool := newThreadPool(1)
	a := pool.get("a")
	b := pool.get("b")
	pool.put(a)
	pool.put(b)
	assert.Equal(t, 1, pool.size())
	assert.Equal(t, "c", pool.get("c").Name)
	assert.Equal(t, 0, pool.size())
}
