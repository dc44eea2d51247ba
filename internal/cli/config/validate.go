package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/latchgrid/internal/cli/output"
	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/leapstack-labs/latchgrid/pkg/density"
	"github.com/leapstack-labs/latchgrid/pkg/disclosure"
	"github.com/leapstack-labs/latchgrid/pkg/source"
)

// Validate checks every section that converts into engine settings.
func (c *Config) Validate() error {
	if !source.IsRegistered(c.Source.Type) {
		return &source.UnknownSourceError{Type: c.Source.Type, Available: source.List()}
	}
	if _, err := c.AxisMappings(); err != nil {
		return err
	}
	if _, err := c.DensityState(); err != nil {
		return err
	}
	if _, err := c.RenderMode(); err != nil {
		return err
	}
	if _, err := c.SourceQuery(); err != nil {
		return err
	}
	if c.Render.MaxHeaderLevels < 0 {
		return fmt.Errorf("render.max_header_levels must not be negative, got %d", c.Render.MaxHeaderLevels)
	}
	if !output.Mode(c.OutputFormat).Valid() {
		return fmt.Errorf("unknown output format %q (expected one of %s)", c.OutputFormat, strings.Join(output.Modes, ", "))
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (expected text or json)", c.LogFormat)
	}
	return nil
}

// AxisMappings converts the mappings section.
func (c *Config) AxisMappings() ([]core.AxisMapping, error) {
	out := make([]core.AxisMapping, 0, len(c.Mappings))
	for i, m := range c.Mappings {
		axis, err := core.ParseAxisType(m.Axis)
		if err != nil {
			return nil, fmt.Errorf("mappings[%d]: %w", i, err)
		}
		plane, err := core.ParsePlane(m.Plane)
		if err != nil {
			return nil, fmt.Errorf("mappings[%d]: %w", i, err)
		}
		out = append(out, core.AxisMapping{Axis: axis, Facet: strings.TrimSpace(m.Facet), Plane: plane})
	}
	return out, nil
}

// DensityState converts the density section.
func (c *Config) DensityState() (core.DensityState, error) {
	extent := core.ExtentMedium
	if c.Density.Extent != "" {
		var err error
		extent, err = core.ParseExtentDensity(c.Density.Extent)
		if err != nil {
			return core.DensityState{}, err
		}
	}
	d := core.DensityState{ValueDensity: c.Density.Value, ExtentDensity: extent}
	return d, d.Validate()
}

// RenderMode converts render.mode; nil means automatic selection.
func (c *Config) RenderMode() (*density.Mode, error) {
	if strings.TrimSpace(c.Render.Mode) == "" || c.Render.Mode == "auto" {
		return nil, nil
	}
	m, err := density.ParseMode(c.Render.Mode)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SourceQuery converts the query section.
func (c *Config) SourceQuery() (source.Query, error) {
	q := source.Query{
		Table:   c.Source.Table,
		Fields:  c.Query.Fields,
		Where:   c.Query.Where,
		GroupBy: c.Query.GroupBy,
		Limit:   c.Query.Limit,
	}
	for _, s := range c.Query.Filters {
		f, err := source.ParseFilter(s)
		if err != nil {
			return source.Query{}, err
		}
		q.Filters = append(q.Filters, f)
	}
	return q, q.Validate()
}

// DisclosureSettings converts the disclosure section, keeping stock values
// for anything left at zero.
func (c *Config) DisclosureSettings() disclosure.Config {
	d := disclosure.DefaultConfig()
	s := c.Disclosure
	if s.MaxVisibleLevels > 0 {
		d.MaxVisibleLevels = s.MaxVisibleLevels
	}
	if s.BufferLevels > 0 {
		d.BufferLevels = s.BufferLevels
	}
	if s.FadeMS > 0 {
		d.FadeDuration = time.Duration(s.FadeMS) * time.Millisecond
	}
	if s.StaggerMS > 0 {
		d.StaggerDelay = time.Duration(s.StaggerMS) * time.Millisecond
	}
	if s.PerNodeCostUS > 0 {
		d.PerNodeCost = time.Duration(s.PerNodeCostUS) * time.Microsecond
	}
	if s.TimeBudgetMS > 0 {
		d.TimeBudget = time.Duration(s.TimeBudgetMS) * time.Millisecond
	}
	d.MaxLoadedLevels = s.MaxLoadedLevels
	return d
}
