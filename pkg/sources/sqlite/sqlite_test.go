package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/latchgrid/internal/testutil"
	"github.com/leapstack-labs/latchgrid/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, cfg source.Config) *Source {
	t.Helper()
	ctx := context.Background()
	src := New(testutil.NewTestLogger(t))
	require.NoError(t, src.Open(ctx, cfg))
	t.Cleanup(func() { _ = src.Close() })

	require.NoError(t, src.Exec(ctx, `CREATE TABLE tasks (id INTEGER PRIMARY KEY, name TEXT, team TEXT, created_at TEXT)`))
	require.NoError(t, src.Exec(ctx, `INSERT INTO tasks (id, name, team, created_at) VALUES
		(1, 'alpha', 'web', '2024-01-05'),
		(2, 'beta', 'api', '2024-03-10'),
		(3, 'gamma', 'web', '2025-02-01')`))
	return src
}

func TestSource_Query(t *testing.T) {
	tests := []struct {
		name string
		q    source.Query
		want []string
	}{
		{"all", source.Query{}, []string{"1", "2", "3"}},
		{"filter", source.Query{Filters: []source.Filter{{Field: "team", Op: source.OpEq, Value: "web"}}}, []string{"1", "3"}},
		{"in", source.Query{Filters: []source.Filter{{Field: "id", Op: source.OpIn, Value: []any{2, 3}}}}, []string{"2", "3"}},
		{"like", source.Query{Filters: []source.Filter{{Field: "name", Op: source.OpLike, Value: "%a"}}}, []string{"1", "2", "3"}},
		{"where", source.Query{Where: `created_at >= "2024-02-01"`}, []string{"2", "3"}},
		{"limit", source.Query{Limit: 1}, []string{"1"}},
	}
	src := seed(t, source.Config{Table: "tasks"})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := src.Query(context.Background(), tt.q)
			require.NoError(t, err)
			ids := make([]string, len(records))
			for i, r := range records {
				ids[i] = r.ID
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSource_GroupAndTables(t *testing.T) {
	ctx := context.Background()
	src := seed(t, source.Config{Path: filepath.Join(t.TempDir(), "tasks.db"), Params: map[string]any{
		"pragmas": map[string]any{"busy_timeout": 1000},
	}})

	grouped, err := src.Query(ctx, source.Query{Table: "tasks", GroupBy: []string{"team"}})
	require.NoError(t, err)
	require.Len(t, grouped, 2)
	assert.Equal(t, "api", grouped[0].Fields["team"])
	assert.EqualValues(t, 1, grouped[0].Fields["count"])
	assert.EqualValues(t, 2, grouped[1].Fields["count"])

	tables, err := src.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks"}, tables)
}

func TestSource_BadParams(t *testing.T) {
	err := New(nil).Open(context.Background(), source.Config{Params: map[string]any{"pragmas": []any{1}}})
	require.Error(t, err)
}
