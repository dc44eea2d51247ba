// Package config loads latchgrid CLI configuration from defaults, a
// latchgrid.yaml project file, LATCHGRID_ environment variables and flags.
package config

import (
	"github.com/leapstack-labs/latchgrid/pkg/source"
)

// Config holds all CLI configuration options.
type Config struct {
	Source     source.Config    `koanf:"source"`
	Query      QueryConfig      `koanf:"query"`
	Mappings   []MappingConfig  `koanf:"mappings"`
	Density    DensityConfig    `koanf:"density"`
	Disclosure DisclosureConfig `koanf:"disclosure"`
	Render     RenderConfig     `koanf:"render"`

	Locale       string `koanf:"locale"`
	Verbose      bool   `koanf:"verbose"`
	OutputFormat string `koanf:"output"`
	LogFormat    string `koanf:"log_format"`

	// ProjectRoot is the directory relative paths resolve against. It is
	// derived, never read from the file.
	ProjectRoot string `koanf:"-"`
}

// QueryConfig selects records from the source.
type QueryConfig struct {
	Fields  []string `koanf:"fields"`
	Filters []string `koanf:"filters"`
	Where   string   `koanf:"where"`
	GroupBy []string `koanf:"group_by"`
	Limit   int      `koanf:"limit"`
}

// MappingConfig binds a LATCH axis and facet to a plane.
type MappingConfig struct {
	Axis  string `koanf:"axis"`
	Facet string `koanf:"facet"`
	Plane string `koanf:"plane"`
}

// DensityConfig is the Janus density.
type DensityConfig struct {
	Value  int    `koanf:"value"`
	Extent string `koanf:"extent"`
}

// DisclosureConfig tunes progressive disclosure. Durations are in the
// unit named by the key.
type DisclosureConfig struct {
	MaxVisibleLevels int `koanf:"max_visible_levels"`
	BufferLevels     int `koanf:"buffer_levels"`
	FadeMS           int `koanf:"fade_ms"`
	StaggerMS        int `koanf:"stagger_ms"`
	PerNodeCostUS    int `koanf:"per_node_cost_us"`
	TimeBudgetMS     int `koanf:"time_budget_ms"`
	MaxLoadedLevels  int `koanf:"max_loaded_levels"`
}

// RenderConfig sizes and forces rendering.
type RenderConfig struct {
	// Mode forces grid, matrix or hybrid; empty selects by extent.
	Mode          string   `koanf:"mode"`
	CellWidth     float64  `koanf:"cell_width"`
	CellHeight    float64  `koanf:"cell_height"`
	MinSize       float64  `koanf:"min_size"`
	MaxSize       float64  `koanf:"max_size"`
	MinPopulation int      `koanf:"min_population"`
	NumericFields []string `koanf:"numeric_fields"`

	// MaxHeaderLevels caps header depth per plane; 0 keeps every mapping.
	MaxHeaderLevels int `koanf:"max_header_levels"`
}

// Default configuration values.
const (
	DefaultSourceType = "file"
	DefaultExtent     = "medium"
	DefaultLocale     = "en"
	DefaultOutput     = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultLogFormat  = "text"
	DefaultCellWidth  = 1.0
	DefaultCellHeight = 1.0
	DefaultMaxSize    = 1.0
)

// ConfigFileNames are searched in order in each candidate directory.
var ConfigFileNames = []string{"latchgrid.yaml", "latchgrid.yml"}
