package extract

import (
	"testing"
	"time"

	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(fields map[string]any) core.Record {
	return core.NewRecord("r", fields)
}

func TestCategories(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		want   []string
	}{
		{"single string", map[string]any{"tag": "work"}, []string{"work"}},
		{"string slice", map[string]any{"tag": []string{"b", " ", "a"}}, []string{"b", "a"}},
		{"any slice", map[string]any{"tag": []any{"x", 3, nil}}, []string{"x", "3"}},
		{"missing", map[string]any{}, []string{UncategorizedLabel}},
		{"empty string", map[string]any{"tag": "  "}, []string{UncategorizedLabel}},
		{"nil", map[string]any{"tag": nil}, []string{UncategorizedLabel}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categories(rec(tt.fields), "tag"))
			assert.Equal(t, tt.want[0], CategoryLabel(rec(tt.fields), "tag"))
		})
	}
}

func TestAlphabetLabel(t *testing.T) {
	r := rec(map[string]any{"name": "zebra", "author": "Ada"})
	assert.Equal(t, "Ada", AlphabetLabel(r, "author"))
	assert.Equal(t, "Z", AlphabetLabel(r, "letter"))
	assert.Equal(t, "zebra", AlphabetLabel(r, ""))
	assert.Equal(t, UnknownLabel, AlphabetLabel(r, "missing"))
	assert.Equal(t, "#", AlphabetLabel(rec(map[string]any{"name": "42 things"}), "initial"))
	// no name at all falls back to the record ID
	assert.Equal(t, "R", AlphabetLabel(core.Record{ID: "r"}, "letter"))
}

func TestOrdinal(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  float64
		ok    bool
	}{
		{"int", 3, 3, true},
		{"float", 2.5, 2.5, true},
		{"numeric string", "7", 7, true},
		{"bool", true, 1, true},
		{"empty string", "", 0, false},
		{"word", "high", 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Ordinal(rec(map[string]any{"priority": tt.value}), "priority")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "3", HierarchyLabel(rec(map[string]any{"p": 3.0}), "p"))
	assert.Equal(t, UnknownLabel, HierarchyLabel(rec(nil), "p"))
	assert.Equal(t, 0.0, OrdinalOrZero(rec(nil), "p"))
}

func TestLocation(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"named place", "Lisbon", "Lisbon"},
		{"float pair", []float64{38.7223, -9.13933}, "38.7223,-9.1393"},
		{"array pair", [2]float64{1, 2}, "1.0000,2.0000"},
		{"any pair", []any{"51.5", 0.12}, "51.5000,0.1200"},
		{"lat lng map", map[string]any{"lat": 10.0, "lng": 20.0}, "10.0000,20.0000"},
		{"latitude map", map[string]any{"latitude": 1, "longitude": 2}, "1.0000,2.0000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LocationLabel(rec(map[string]any{"loc": tt.value}), "loc"))
		})
	}

	assert.Equal(t, UnknownLabel, LocationLabel(rec(nil), "loc"))
	assert.Equal(t, "Porto", LocationLabel(rec(map[string]any{"location": "Porto"}), ""))
}

func TestTimeLabel(t *testing.T) {
	r := rec(map[string]any{"date": "2024-05-17", "due": "2025-03"})

	tests := []struct {
		facet string
		want  string
	}{
		{"year", "2024"},
		{"quarter", "2024-Q2"},
		{"month", "2024-05"},
		{"week", "2024-W20"},
		{"day", "2024-05-17"},
		{"hour", "2024-05-17T00"},
		{"due", "2025-03-01"},
		{"missing", UnknownLabel},
	}

	for _, tt := range tests {
		t.Run(tt.facet, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeLabel(r, tt.facet))
		})
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, v := range []any{"2024-01", "2024", "2024-01-01", "2024-01-01T00:00:00Z", want, &want, int64(want.Unix()), float64(want.UnixMilli())} {
		got, ok := ParseTime(v)
		require.True(t, ok, "%v should parse", v)
		assert.True(t, want.Equal(got), "%v parsed to %v", v, got)
	}

	for _, v := range []any{"", "not a date", nil, time.Time{}, (*time.Time)(nil), struct{}{}} {
		_, ok := ParseTime(v)
		assert.False(t, ok, "%v should not parse", v)
	}
}

func TestTimeOr_Fallback(t *testing.T) {
	now := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, now, TimeOr(rec(map[string]any{"date": "garbage"}), "year", now))
	created := TimeOr(rec(map[string]any{"created_at": "2021-02-03"}), "year", now)
	assert.Equal(t, 2021, created.Year())
}

func TestLabel_UnknownAxis(t *testing.T) {
	_, err := Label(core.AxisMapping{Axis: core.AxisType(99)}, rec(nil))
	var axisErr *core.UnknownAxisError
	assert.ErrorAs(t, err, &axisErr)

	got, err := Label(core.AxisMapping{Axis: core.AxisCategory, Facet: "tag"}, rec(map[string]any{"tag": "a"}))
	require.NoError(t, err)
	assert.Equal(t, "a", got)
}

func TestLabelers_CoverEveryAxis(t *testing.T) {
	for _, a := range core.AllAxes {
		fn, err := Labeler(a)
		require.NoError(t, err, a.String())
		assert.NotPanics(t, func() { _ = fn(core.Record{}, "") }, a.String())
	}
}
