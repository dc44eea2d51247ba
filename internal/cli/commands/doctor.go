package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/latchgrid/internal/cli/config"
	"github.com/leapstack-labs/latchgrid/internal/cli/output"
	"github.com/leapstack-labs/latchgrid/internal/engine"
	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/leapstack-labs/latchgrid/pkg/extract"
	"github.com/leapstack-labs/latchgrid/pkg/header"
	"github.com/spf13/cobra"
)

// Check statuses.
const (
	statusPass  = "pass"
	statusWarn  = "warn"
	statusError = "error"
)

// emptyCellThreshold is the share of empty grid slots above which a sparser
// extent is recommended.
const emptyCellThreshold = 0.9

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the configuration, source and projection",
		Long: `Load the configured source and check that the projection is usable.

The doctor command reports:
- A summary of records, grid size and header depth
- Checks grouped by category (Config, Source, Mappings, Layout)
- A health score (0-100)
- Actionable recommendations

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - --output json|yaml: Machine-readable format`,
		Example: `  # Run health check
  latchgrid doctor

  # Output as JSON
  latchgrid doctor --output json`,
		Args: cobra.NoArgs,
		RunE: runDoctor,
	}
}

// DoctorOutput is the structured output of the doctor command.
type DoctorOutput struct {
	Summary         GridSummary   `json:"summary" yaml:"summary"`
	HealthChecks    []HealthCheck `json:"health_checks" yaml:"health_checks"`
	Score           int           `json:"score" yaml:"score"`
	Recommendations []string      `json:"recommendations" yaml:"recommendations"`
	IssueCount      int           `json:"issue_count" yaml:"issue_count"`
}

// GridSummary contains projection statistics.
type GridSummary struct {
	Records     int     `json:"records" yaml:"records"`
	Rows        int     `json:"rows" yaml:"rows"`
	Columns     int     `json:"columns" yaml:"columns"`
	Cells       int     `json:"cells" yaml:"cells"`
	EmptyShare  float64 `json:"empty_share" yaml:"empty_share"`
	RowDepth    int     `json:"row_depth" yaml:"row_depth"`
	ColumnDepth int     `json:"column_depth" yaml:"column_depth"`
	Mode        string  `json:"mode" yaml:"mode"`
}

// HealthCheck is a single check result.
type HealthCheck struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Group      string   `json:"group" yaml:"group"`
	Status     string   `json:"status" yaml:"status"`
	IssueCount int      `json:"issue_count" yaml:"issue_count"`
	Details    []string `json:"details,omitempty" yaml:"details,omitempty"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cmdCtx := NewCommandContextWithoutSession(cmd)
	r := cmdCtx.Renderer

	var snap *engine.Snapshot
	var progressive map[header.Orientation]bool
	session, err := openSession(cmd.Context(), cmdCtx.Cfg, cmdCtx.Logger, SessionHooks{})
	if err == nil {
		defer func() { _ = session.Close() }()
		snap, err = session.Load(cmd.Context())
		if err == nil {
			progressive = make(map[header.Orientation]bool)
			for _, o := range []header.Orientation{header.Rows, header.Columns} {
				tree := snap.Rows
				if o == header.Columns {
					tree = snap.Columns
				}
				if c := session.Controller(o); c != nil {
					progressive[o] = c.ShouldUseProgressive(tree)
				}
			}
		}
	}

	out := buildDoctorOutput(cmdCtx.Cfg, config.GetConfigFileUsed(), snap, progressive, err)
	return renderDoctor(r, out)
}

// renderDoctor writes the report in the renderer's effective mode.
func renderDoctor(r *output.Renderer, out *DoctorOutput) error {
	if ok, err := r.Structured(out); ok {
		return err
	}
	if r.EffectiveMode() == output.ModeMarkdown {
		return renderDoctorMarkdown(r, out)
	}
	return renderDoctorText(r, out)
}

func buildDoctorOutput(cfg *config.Config, configFile string, snap *engine.Snapshot, progressive map[header.Orientation]bool, loadErr error) *DoctorOutput {
	var checks []HealthCheck

	cfgCheck := HealthCheck{ID: "C01", Name: "Project file", Group: "config", Status: statusPass}
	if configFile == "" {
		cfgCheck.Status = statusWarn
		cfgCheck.IssueCount = 1
		cfgCheck.Details = []string{"no latchgrid.yaml found; using flags and defaults"}
	} else {
		cfgCheck.Details = []string{configFile}
	}
	checks = append(checks, cfgCheck)

	srcCheck := HealthCheck{ID: "S01", Name: "Source loads", Group: "source", Status: statusPass}
	if loadErr != nil {
		srcCheck.Status = statusError
		srcCheck.IssueCount = 1
		srcCheck.Details = []string{loadErr.Error()}
	}
	checks = append(checks, srcCheck)

	out := &DoctorOutput{}
	if snap != nil {
		out.Summary = summarize(snap)
		checks = append(checks,
			emptySourceCheck(snap),
			planeCheck(snap.Mappings),
			facetCheck(snap),
			timeCheck(snap),
			sparsityCheck(out.Summary, cfg),
			progressiveCheck(progressive),
		)
	}

	for _, c := range checks {
		out.IssueCount += c.IssueCount
	}
	out.HealthChecks = checks
	out.Score = calculateHealthScore(checks, out.Summary.Records)
	out.Recommendations = generateRecommendations(checks)
	return out
}

func summarize(snap *engine.Snapshot) GridSummary {
	s := GridSummary{
		Records: len(snap.Records),
		Cells:   len(snap.Grid.Cells),
		Mode:    snap.Mode.String(),
	}
	s.Columns, s.Rows = snap.Grid.Size()
	if slots := s.Rows * s.Columns; slots > 0 {
		s.EmptyShare = 1 - float64(s.Cells)/float64(slots)
	}
	if snap.Rows != nil {
		s.RowDepth = snap.Rows.Depth()
	}
	if snap.Columns != nil {
		s.ColumnDepth = snap.Columns.Depth()
	}
	return s
}

func emptySourceCheck(snap *engine.Snapshot) HealthCheck {
	c := HealthCheck{ID: "S02", Name: "Records present", Group: "source", Status: statusPass}
	if len(snap.Records) == 0 {
		c.Status = statusWarn
		c.IssueCount = 1
		c.Details = []string{"the query returned no records"}
	}
	return c
}

func planeCheck(mappings []core.AxisMapping) HealthCheck {
	c := HealthCheck{ID: "M01", Name: "Both planes mapped", Group: "mappings", Status: statusPass}
	for _, p := range []core.Plane{core.PlaneX, core.PlaneY} {
		if len(core.OnPlane(mappings, p)) == 0 {
			c.Status = statusWarn
			c.IssueCount++
			c.Details = append(c.Details, fmt.Sprintf("no axis assigned to %s", p))
		}
	}
	return c
}

func facetCheck(snap *engine.Snapshot) HealthCheck {
	c := HealthCheck{ID: "M02", Name: "Mapped facets exist", Group: "mappings", Status: statusPass}
	for _, m := range snap.Mappings {
		found := false
		for _, r := range snap.Records {
			if _, ok := r.Get(m.Facet); ok {
				found = true
				break
			}
		}
		if !found && len(snap.Records) > 0 {
			c.Status = statusWarn
			c.IssueCount++
			c.Details = append(c.Details, fmt.Sprintf("%s: no record has field %q", m, m.Facet))
		}
	}
	return c
}

func timeCheck(snap *engine.Snapshot) HealthCheck {
	c := HealthCheck{ID: "M03", Name: "Time facets parse", Group: "mappings", Status: statusPass}
	for _, m := range snap.Mappings {
		if m.Axis != core.AxisTime {
			continue
		}
		bad := 0
		for _, r := range snap.Records {
			v, ok := r.Get(m.Facet)
			if !ok {
				continue
			}
			if _, ok := extract.ParseTime(v); !ok {
				bad++
			}
		}
		if bad > 0 {
			c.Status = statusWarn
			c.IssueCount++
			c.Details = append(c.Details, fmt.Sprintf("%s: %d values are not dates", m.Facet, bad))
		}
	}
	return c
}

func sparsityCheck(s GridSummary, cfg *config.Config) HealthCheck {
	c := HealthCheck{ID: "L01", Name: "Grid fill", Group: "layout", Status: statusPass}
	if s.EmptyShare > emptyCellThreshold && !strings.EqualFold(cfg.Density.Extent, core.ExtentUltraSparse.String()) {
		c.Status = statusWarn
		c.IssueCount = 1
		c.Details = []string{fmt.Sprintf("%.0f%% of grid slots are empty", s.EmptyShare*100)}
	}
	return c
}

func progressiveCheck(progressive map[header.Orientation]bool) HealthCheck {
	c := HealthCheck{ID: "L02", Name: "Header size", Group: "layout", Status: statusPass}
	for _, o := range []header.Orientation{header.Columns, header.Rows} {
		if progressive[o] {
			c.Status = statusWarn
			c.IssueCount++
			c.Details = append(c.Details, fmt.Sprintf("%s header exceeds the render budget", orientationName(o)))
		}
	}
	return c
}

// calculateHealthScore computes a score from 0-100. Errors cost double,
// and each issue weighs less as the record count grows.
func calculateHealthScore(checks []HealthCheck, records int) int {
	if len(checks) == 0 {
		return 100
	}

	score := 100.0
	basePenalty := 10.0
	if records > 1000 {
		basePenalty = 5.0
	}

	for _, check := range checks {
		switch check.Status {
		case statusError:
			score -= float64(check.IssueCount) * basePenalty * 2
		case statusWarn:
			score -= float64(check.IssueCount) * basePenalty
		}
	}

	return int(max(0, min(100, score)))
}

// generateRecommendations creates actionable recommendations based on findings.
func generateRecommendations(checks []HealthCheck) []string {
	var recommendations []string
	seen := make(map[string]bool)

	for _, check := range checks {
		if check.IssueCount == 0 {
			continue
		}
		rec := getRecommendation(check.ID)
		if rec != "" && !seen[rec] {
			recommendations = append(recommendations, rec)
			seen[rec] = true
		}
	}

	if len(recommendations) > 5 {
		recommendations = recommendations[:5]
	}
	return recommendations
}

func getRecommendation(id string) string {
	switch id {
	case "C01":
		return "Create latchgrid.yaml to keep source and mappings with the project"
	case "S01":
		return "Check source.type, source.path and credentials"
	case "S02":
		return "Relax query.filters or query.where"
	case "M01":
		return "Map at least one axis to each of x and y (--map axis:facet:plane)"
	case "M02":
		return "Fix facet names in mappings to match the source fields"
	case "M03":
		return "Map non-date fields to category or alphabet instead of time"
	case "L01":
		return "Use --extent ultra-sparse or sparse to hide empty rows and columns"
	case "L02":
		return "Lower disclosure.max_visible_levels or raise --value-density"
	default:
		return ""
	}
}

func renderDoctorText(r *output.Renderer, out *DoctorOutput) error {
	styles := r.Styles()

	r.Println("")
	r.Println(styles.Header.Render("latchgrid Health Report"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	r.Println("")

	r.Println(styles.Bold.Render("Grid Summary"))
	r.Printf("   Records: %d | Rows: %d | Columns: %d | Cells: %d\n", out.Summary.Records, out.Summary.Rows, out.Summary.Columns, out.Summary.Cells)
	r.Printf("   Header depth: %d rows, %d columns | Empty: %.0f%% | Mode: %s\n",
		out.Summary.RowDepth, out.Summary.ColumnDepth, out.Summary.EmptyShare*100, out.Summary.Mode)
	r.Println("")

	r.Println(styles.Bold.Render("Health Checks"))
	r.Println("")

	currentGroup := ""
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println(styles.Bold.Render("   " + output.Title(currentGroup)))
			r.Println(styles.Muted.Render("   " + strings.Repeat("-", 40)))
		}

		icon := styles.Success.Render("✓")
		switch check.Status {
		case statusWarn:
			icon = styles.Warning.Render("!")
		case statusError:
			icon = styles.Error.Render("✗")
		}

		status := fmt.Sprintf("%s %s: %s", icon, check.ID, check.Name)
		if check.IssueCount > 0 {
			status += fmt.Sprintf(" (%d issues)", check.IssueCount)
		}
		r.Println("   " + status)

		for i, detail := range check.Details {
			if i >= 3 {
				r.Println(styles.Muted.Render(fmt.Sprintf("       ... and %d more", len(check.Details)-3)))
				break
			}
			r.Println(styles.Muted.Render("       - " + detail))
		}
	}
	r.Println("")

	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	scoreStyle := styles.Success
	if out.Score < 70 {
		scoreStyle = styles.Warning
	}
	if out.Score < 50 {
		scoreStyle = styles.Error
	}
	r.Printf("   Health Score: %s\n", scoreStyle.Render(fmt.Sprintf("%d/100", out.Score)))
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println(styles.Bold.Render("Recommendations"))
		for i, rec := range out.Recommendations {
			r.Printf("   %d. %s\n", i+1, rec)
		}
		r.Println("")
	}
	return nil
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) error {
	r.Println("# latchgrid Health Report")
	r.Println("")

	r.Println("## Grid Summary")
	r.Println("")
	r.Println(output.FormatKeyValue("Records", fmt.Sprint(out.Summary.Records)))
	r.Println(output.FormatKeyValue("Rows", fmt.Sprint(out.Summary.Rows)))
	r.Println(output.FormatKeyValue("Columns", fmt.Sprint(out.Summary.Columns)))
	r.Println(output.FormatKeyValue("Cells", fmt.Sprint(out.Summary.Cells)))
	r.Println(output.FormatKeyValue("Empty", fmt.Sprintf("%.0f%%", out.Summary.EmptyShare*100)))
	r.Println(output.FormatKeyValue("Mode", out.Summary.Mode))
	r.Println("")

	r.Println("## Health Checks")
	r.Println("")

	currentGroup := ""
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println("### " + output.Title(currentGroup))
			r.Println("")
		}

		r.Printf("- **[%s]** %s: %s", strings.ToUpper(check.Status), check.ID, check.Name)
		if check.IssueCount > 0 {
			r.Printf(" (%d issues)", check.IssueCount)
		}
		r.Println("")

		for _, detail := range check.Details {
			r.Printf("  - %s\n", detail)
		}
	}
	r.Println("")

	r.Println("## Health Score")
	r.Println("")
	r.Printf("**%d/100**\n", out.Score)
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println("## Recommendations")
		r.Println("")
		for i, rec := range out.Recommendations {
			r.Printf("%d. %s\n", i+1, rec)
		}
		r.Println("")
	}
	return nil
}
