package commands

import (
	"errors"
	"slices"
	"testing"

	"github.com/leapstack-labs/latchgrid/internal/cli/config"
	"github.com/leapstack-labs/latchgrid/internal/cli/output"
	"github.com/leapstack-labs/latchgrid/internal/cli/testutil"
	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/leapstack-labs/latchgrid/pkg/header"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateHealthScore(t *testing.T) {
	tests := []struct {
		name     string
		checks   []HealthCheck
		records  int
		minScore int
		maxScore int
	}{
		{
			name:     "no checks returns 100",
			records:  10,
			minScore: 100,
			maxScore: 100,
		},
		{
			name: "all passing returns 100",
			checks: []HealthCheck{
				{ID: "S01", Status: statusPass},
				{ID: "M01", Status: statusPass},
			},
			records:  10,
			minScore: 100,
			maxScore: 100,
		},
		{
			name: "warnings reduce score",
			checks: []HealthCheck{
				{ID: "S01", Status: statusPass},
				{ID: "M01", Status: statusWarn, IssueCount: 2},
			},
			records:  10,
			minScore: 80,
			maxScore: 80,
		},
		{
			name: "errors cost double",
			checks: []HealthCheck{
				{ID: "S01", Status: statusError, IssueCount: 1},
			},
			records:  10,
			minScore: 80,
			maxScore: 80,
		},
		{
			name: "large sources weigh issues less",
			checks: []HealthCheck{
				{ID: "M02", Status: statusWarn, IssueCount: 2},
			},
			records:  5000,
			minScore: 90,
			maxScore: 90,
		},
		{
			name: "score never drops below zero",
			checks: []HealthCheck{
				{ID: "M02", Status: statusError, IssueCount: 50},
			},
			records:  10,
			minScore: 0,
			maxScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := calculateHealthScore(tt.checks, tt.records)
			assert.GreaterOrEqual(t, score, tt.minScore)
			assert.LessOrEqual(t, score, tt.maxScore)
		})
	}
}

func TestGenerateRecommendations(t *testing.T) {
	checks := []HealthCheck{
		{ID: "C01", Status: statusWarn, IssueCount: 1},
		{ID: "S01", Status: statusPass},
		{ID: "M01", Status: statusWarn, IssueCount: 2},
		{ID: "L01", Status: statusWarn, IssueCount: 1},
	}

	recs := generateRecommendations(checks)
	require.Len(t, recs, 3)
	assert.Contains(t, recs[0], "latchgrid.yaml")
	assert.Contains(t, recs[1], "--map")
	assert.Contains(t, recs[2], "ultra-sparse")

	assert.Empty(t, getRecommendation("Z99"))
}

func TestBuildDoctorOutput(t *testing.T) {
	e, _ := newTestExplorer(t)
	snap := e.session.Snapshot()
	require.NotNil(t, snap)

	out := buildDoctorOutput(&config.Config{}, "/tmp/latchgrid.yaml", snap, nil, nil)
	assert.Equal(t, 4, out.Summary.Records)
	assert.Equal(t, 3, out.Summary.Cells)
	assert.Equal(t, 100, out.Score)
	assert.Zero(t, out.IssueCount)
	assert.Empty(t, out.Recommendations)

	ids := make([]string, 0, len(out.HealthChecks))
	for _, c := range out.HealthChecks {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"C01", "S01", "S02", "M01", "M02", "M03", "L01", "L02"}, ids)
}

func TestBuildDoctorOutput_Findings(t *testing.T) {
	out := buildDoctorOutput(&config.Config{}, "", nil, nil, errors.New("no such file"))
	require.Len(t, out.HealthChecks, 2)
	assert.Equal(t, statusWarn, out.HealthChecks[0].Status)
	assert.Equal(t, statusError, out.HealthChecks[1].Status)
	assert.Equal(t, []string{"no such file"}, out.HealthChecks[1].Details)
	assert.Equal(t, 70, out.Score)

	e, _ := newTestExplorer(t)
	snap := e.session.Snapshot()
	assert.Equal(t, statusWarn, planeCheck([]core.AxisMapping{{Axis: core.AxisCategory, Facet: "team", Plane: core.PlaneY}}).Status)
	assert.Equal(t, statusWarn, progressiveCheck(map[header.Orientation]bool{header.Rows: true}).Status)
	assert.Equal(t, statusWarn, sparsityCheck(GridSummary{EmptyShare: 0.95}, &config.Config{}).Status)

	timed := *snap
	timed.Mappings = append(slices.Clone(snap.Mappings), core.AxisMapping{Axis: core.AxisTime, Facet: "status", Plane: core.PlaneColor})
	c := timeCheck(&timed)
	assert.Equal(t, statusWarn, c.Status)
	assert.Equal(t, []string{"status: 4 values are not dates"}, c.Details)
}

func TestDoctorCommand(t *testing.T) {
	loadProject(t, "markdown")

	out, err := execute(t, NewDoctorCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "# latchgrid Health Report")
	assert.Contains(t, out, "- **[PASS]** S01: Source loads")
	assert.Contains(t, out, "**100/100**")
}

func TestRenderDoctor_Modes(t *testing.T) {
	report := buildDoctorOutput(&config.Config{}, "", nil, nil, errors.New("no such file"))

	tests := []struct {
		name     string
		tr       *testutil.TestRenderer
		mode     output.Mode
		contains []string
		excludes []string
	}{
		{"text", testutil.NewTestRendererText(), output.ModeText, []string{"latchgrid Health Report", "no such file"}, []string{"# latchgrid", `"score"`}},
		{"markdown", testutil.NewTestRendererMarkdown(), output.ModeMarkdown, []string{"# latchgrid Health Report", "no such file"}, []string{`"score"`}},
		{"auto without tty", testutil.NewTestRendererAuto(), output.ModeMarkdown, []string{"# latchgrid Health Report"}, nil},
		{"json", testutil.NewTestRendererJSON(), output.ModeJSON, []string{`"score": 70`, `"health_checks"`}, []string{"Health Report"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, renderDoctor(tt.tr.Renderer, report))
			got := tt.tr.Output()
			for _, want := range tt.contains {
				testutil.AssertContains(t, got, want)
			}
			for _, unwanted := range tt.excludes {
				testutil.AssertNotContains(t, got, unwanted)
			}
			assert.Empty(t, tt.tr.ErrorOutput())
			testutil.AssertOutputMode(t, tt.tr, tt.mode)
			if tt.mode == output.ModeMarkdown {
				testutil.AssertValidMarkdown(t, got)
			}
		})
	}
}
