// Package interact keeps hover and selection state over rendered cells and
// assembles tooltip content.
package interact

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/leapstack-labs/latchgrid/pkg/density"
	"github.com/leapstack-labs/latchgrid/pkg/extract"
	"github.com/leapstack-labs/latchgrid/pkg/header"
	"github.com/montanaflynn/stats"
)

// Position is a pointer position in host coordinates.
type Position struct {
	X, Y float64
}

// Aggregate summarises one numeric field over a cell's members.
type Aggregate struct {
	Field  string
	N      int
	Sum    float64
	Mean   float64
	Median float64
	Min    float64
	Max    float64
}

// Tooltip is the hover content for a cell.
type Tooltip struct {
	CellID string
	Row    string
	Column string
	Count  int
	Label  string
	// DensityPercent is the populated share of the cell's folded sub-cells.
	DensityPercent float64
	Aggregates     []Aggregate
}

// Lines renders the tooltip as display lines.
func (t Tooltip) Lines() []string {
	lines := []string{
		fmt.Sprintf("row: %s", t.Row),
		fmt.Sprintf("column: %s", t.Column),
		fmt.Sprintf("items: %d", t.Count),
	}
	if t.Label != "" {
		lines = append(lines, fmt.Sprintf("label: %s", t.Label))
	}
	lines = append(lines, fmt.Sprintf("density: %.0f%%", t.DensityPercent))
	for _, a := range t.Aggregates {
		lines = append(lines, fmt.Sprintf("%s: sum %.4g, mean %.4g, min %.4g, max %.4g", a.Field, a.Sum, a.Mean, a.Min, a.Max))
	}
	return lines
}

// Callbacks notify the host. They run without the manager lock held.
type Callbacks struct {
	OnCellClick       func(cell density.VisualCell, pos Position)
	OnCellHover       func(cell *density.VisualCell, pos *Position)
	OnHeaderClick     func(level int, value string, axis core.AxisType)
	OnHeaderToggle    func(id string, collapsed bool)
	OnSelectionChange func(selected []string)
	OnHighlight       func(highlighted []string)
}

// Config configures a Manager.
type Config struct {
	Callbacks Callbacks
	// Flags holds header collapse state. A fresh map is used when nil.
	Flags *header.Flags
	// NumericFields restricts tooltip aggregates; nil detects numeric
	// fields from the members.
	NumericFields []string
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Manager tracks the hovered cell and the selected set.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	logger  *slog.Logger
	flags   *header.Flags
	cells   map[string]density.VisualCell
	records core.RecordIndex

	hovered  string
	selected map[string]struct{}
}

// New creates a manager with no frame.
func New(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	flags := cfg.Flags
	if flags == nil {
		flags = header.NewFlags()
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		flags:    flags,
		cells:    make(map[string]density.VisualCell),
		selected: make(map[string]struct{}),
	}
}

// SetFrame replaces the cells interactions resolve against. Selection is
// kept by id; a hovered cell that no longer exists is cleared.
func (m *Manager) SetFrame(frame density.Frame, records core.RecordIndex) {
	m.mu.Lock()
	m.cells = make(map[string]density.VisualCell, len(frame.Cells))
	for _, c := range frame.Cells {
		m.cells[c.ID] = c
	}
	m.records = records
	var notify []func()
	if _, ok := m.cells[m.hovered]; m.hovered != "" && !ok {
		m.hovered = ""
		notify = append(notify, m.hoverNotice(nil, nil))
	}
	notify = append(notify, m.highlightNotice())
	m.mu.Unlock()
	run(notify)
}

// Hover makes id the hovered cell and returns its tooltip. An empty or
// unknown id clears the hover.
func (m *Manager) Hover(id string, pos Position) (Tooltip, bool) {
	m.mu.Lock()
	cell, ok := m.cells[id]
	if !ok {
		changed := m.hovered != ""
		m.hovered = ""
		m.mu.Unlock()
		if changed {
			run([]func(){m.hoverNotice(nil, nil)})
		}
		return Tooltip{}, false
	}
	m.hovered = id
	tip := m.tooltip(cell)
	notice := m.hoverNotice(&cell, &pos)
	m.mu.Unlock()
	notice()
	return tip, true
}

// Leave clears the hover.
func (m *Manager) Leave() {
	m.Hover("", Position{})
}

// HoveredCell returns a copy of the hovered cell.
func (m *Manager) HoveredCell() (density.VisualCell, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cells[m.hovered]
	if !ok {
		return density.VisualCell{}, false
	}
	return cloneCell(c), true
}

// Tooltip returns the tooltip for any cell in the frame.
func (m *Manager) Tooltip(id string) (Tooltip, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cells[id]
	if !ok {
		return Tooltip{}, false
	}
	return m.tooltip(c), true
}

// Click toggles id in the selection and reports whether it is now selected.
// Unknown ids are ignored.
func (m *Manager) Click(id string, pos Position) bool {
	m.mu.Lock()
	cell, ok := m.cells[id]
	if !ok {
		m.mu.Unlock()
		m.logger.Debug("click on unknown cell", "id", id)
		return false
	}
	_, was := m.selected[id]
	if was {
		delete(m.selected, id)
	} else {
		m.selected[id] = struct{}{}
	}
	var notify []func()
	if cb := m.cfg.Callbacks.OnCellClick; cb != nil {
		c := cloneCell(cell)
		notify = append(notify, func() { cb(c, pos) })
	}
	notify = append(notify, m.highlightNotice(), m.selectionNotice())
	m.mu.Unlock()
	run(notify)
	return !was
}

// SelectCells adds ids to the selection.
func (m *Manager) SelectCells(ids ...string) {
	m.mu.Lock()
	added := 0
	for _, id := range ids {
		if _, ok := m.selected[id]; !ok {
			m.selected[id] = struct{}{}
			added++
		}
	}
	if added == 0 {
		m.mu.Unlock()
		return
	}
	notify := []func(){m.highlightNotice(), m.selectionNotice()}
	m.mu.Unlock()
	run(notify)
}

// ClearSelection empties the selection.
func (m *Manager) ClearSelection() {
	m.mu.Lock()
	if len(m.selected) == 0 {
		m.mu.Unlock()
		return
	}
	clear(m.selected)
	notify := []func(){m.highlightNotice(), m.selectionNotice()}
	m.mu.Unlock()
	run(notify)
}

// SelectedCells returns the selected ids, sorted. The slice is a copy.
func (m *Manager) SelectedCells() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectedList()
}

// Highlighted returns the selected ids present in the current frame.
func (m *Manager) Highlighted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.highlighted()
}

// ClickHeader reports a header click to the host.
func (m *Manager) ClickHeader(level int, value string, axis core.AxisType) {
	if cb := m.cfg.Callbacks.OnHeaderClick; cb != nil {
		cb(level, value, axis)
	}
}

// ToggleHeader flips the collapse flag of a header node and returns the new
// state.
func (m *Manager) ToggleHeader(id string) bool {
	collapsed := m.flags.Toggle(id, header.Collapsed)
	m.logger.Debug("header toggled", "id", id, "collapsed", collapsed)
	if cb := m.cfg.Callbacks.OnHeaderToggle; cb != nil {
		cb(id, collapsed)
	}
	return collapsed
}

// Flags returns the header flag map the manager writes to.
func (m *Manager) Flags() *header.Flags {
	return m.flags
}

func (m *Manager) selectedList() []string {
	return slices.Sorted(maps.Keys(m.selected))
}

func (m *Manager) highlighted() []string {
	var out []string
	for _, id := range m.selectedList() {
		if _, ok := m.cells[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (m *Manager) hoverNotice(cell *density.VisualCell, pos *Position) func() {
	cb := m.cfg.Callbacks.OnCellHover
	if cb == nil {
		return func() {}
	}
	if cell != nil {
		c := cloneCell(*cell)
		cell = &c
	}
	return func() { cb(cell, pos) }
}

func (m *Manager) highlightNotice() func() {
	cb := m.cfg.Callbacks.OnHighlight
	if cb == nil {
		return func() {}
	}
	ids := m.highlighted()
	return func() { cb(ids) }
}

func (m *Manager) selectionNotice() func() {
	cb := m.cfg.Callbacks.OnSelectionChange
	if cb == nil {
		return func() {}
	}
	ids := m.selectedList()
	return func() { cb(ids) }
}

func (m *Manager) tooltip(c density.VisualCell) Tooltip {
	t := Tooltip{
		CellID:         c.ID,
		Row:            c.RowKey.String(),
		Column:         c.ColKey.String(),
		Count:          c.Count,
		Label:          c.Label,
		DensityPercent: (1 - c.Sparsity) * 100,
	}
	t.Aggregates = m.aggregates(c.MemberIDs)
	return t
}

// aggregates summarises numeric member fields. Fields that are not numeric
// on any member are skipped.
func (m *Manager) aggregates(members []string) []Aggregate {
	values := make(map[string][]float64)
	for _, id := range members {
		r, ok := m.records[id]
		if !ok {
			continue
		}
		if m.cfg.NumericFields != nil {
			for _, f := range m.cfg.NumericFields {
				if x, ok := extract.Ordinal(r, f); ok {
					values[f] = append(values[f], x)
				}
			}
			continue
		}
		for f, v := range r.Fields {
			if x, ok := number(v); ok {
				values[f] = append(values[f], x)
			}
		}
	}

	out := make([]Aggregate, 0, len(values))
	for _, f := range slices.Sorted(maps.Keys(values)) {
		data := values[f]
		a := Aggregate{Field: f, N: len(data)}
		// stats only fails on empty input, which cannot happen here.
		a.Sum, _ = stats.Sum(data)
		a.Mean, _ = stats.Mean(data)
		a.Median, _ = stats.Median(data)
		a.Min, _ = stats.Min(data)
		a.Max, _ = stats.Max(data)
		out = append(out, a)
	}
	return out
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func cloneCell(c density.VisualCell) density.VisualCell {
	c.MemberIDs = slices.Clone(c.MemberIDs)
	c.RowKey = slices.Clone(c.RowKey)
	c.ColKey = slices.Clone(c.ColKey)
	c.Color = slices.Clone(c.Color)
	return c
}

func run(fns []func()) {
	for _, f := range fns {
		f()
	}
}
