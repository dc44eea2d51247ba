// Package engine runs a visualization session: it loads records from a
// source, projects them through scales, grid assembly and header trees,
// folds cells for the current density and disclosure window, and renders
// frames. Every successful build is published as an immutable Snapshot.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/latchgrid/pkg/collation"
	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/leapstack-labs/latchgrid/pkg/density"
	"github.com/leapstack-labs/latchgrid/pkg/disclosure"
	"github.com/leapstack-labs/latchgrid/pkg/grid"
	"github.com/leapstack-labs/latchgrid/pkg/header"
	"github.com/leapstack-labs/latchgrid/pkg/interact"
	"github.com/leapstack-labs/latchgrid/pkg/scale"
	"github.com/leapstack-labs/latchgrid/pkg/source"
)

// ErrNoSnapshot is returned by operations that need a completed build.
var ErrNoSnapshot = errors.New("no snapshot built yet")

// Config holds session configuration.
type Config struct {
	// Source is an opened data source. The session closes it.
	Source source.Source
	// Query selects the records to visualize.
	Query source.Query

	Mappings []core.AxisMapping
	Density  core.DensityState
	// Mode forces a render mode; nil selects one from the extent density.
	Mode *density.Mode

	// Locale drives label collation (BCP 47, e.g. "en", "sv").
	Locale string
	// CellWidth and CellHeight size one grid slot in output units.
	CellWidth  float64
	CellHeight float64
	// MinSize and MaxSize bound rendered marker sizes.
	MinSize float64
	MaxSize float64
	// MinPopulation is the ultra-sparse row/column threshold.
	MinPopulation int
	// NumericFields restricts tooltip aggregates.
	NumericFields []string
	// MaxLevels caps each header tree's depth; 0 uses every mapping.
	MaxLevels int

	// Disclosure tunes both level controllers. Its callbacks are wrapped
	// so the session refolds before they run.
	Disclosure disclosure.Config
	// Interact callbacks are passed to the interaction manager.
	Interact interact.Callbacks
	// OnSnapshot runs after every published snapshot, with the session
	// lock held; it must not call back into the session.
	OnSnapshot func(*Snapshot)

	// Now supplies the clock for time-axis fallbacks. Defaults to time.Now.
	Now func() time.Time
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Snapshot is one complete projection. It is never mutated after it is
// published.
type Snapshot struct {
	ID      string
	BuiltAt time.Time

	Records  []core.Record
	Index    core.RecordIndex
	Mappings []core.AxisMapping
	Density  core.DensityState
	Mode     density.Mode

	// Scales holds one scale per mapping, grouped by plane in mapping order.
	Scales map[core.Plane][]scale.Scale

	Grid    *grid.Grid
	Columns *header.Tree
	Rows    *header.Tree
	// RowLevels and ColumnLevels are the disclosure windows the cells were
	// folded for.
	RowLevels    []int
	ColumnLevels []int
	Fold         density.Fold
	Cells        []density.Cell
	Frame        density.Frame
	Diff         density.Diff
}

// Session owns the mutable state behind a sequence of snapshots. It is safe
// for concurrent use; rebuilds are serialized.
type Session struct {
	mu     sync.Mutex
	cfg    Config
	logger *slog.Logger
	src    source.Source

	records  []core.Record
	mappings []core.AxisMapping
	density  core.DensityState
	mode     *density.Mode

	renderer *density.Renderer
	interact *interact.Manager
	flags    *header.Flags
	rowCtl   *disclosure.Controller
	colCtl   *disclosure.Controller

	current atomic.Pointer[Snapshot]
	closed  atomic.Bool
}

// New validates cfg and creates a session. Nothing is loaded until Load.
func New(cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("session requires a source")
	}
	if err := validateMappings(cfg.Mappings); err != nil {
		return nil, err
	}
	if err := cfg.Density.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode != nil && !cfg.Mode.Valid() {
		return nil, &core.UnknownModeError{Name: cfg.Mode.String()}
	}
	if cfg.CellWidth <= 0 {
		cfg.CellWidth = 1
	}
	if cfg.CellHeight <= 0 {
		cfg.CellHeight = 1
	}

	flags := header.NewFlags()
	s := &Session{
		cfg:      cfg,
		logger:   logger,
		src:      cfg.Source,
		mappings: slices.Clone(cfg.Mappings),
		density:  cfg.Density,
		mode:     cfg.Mode,
		flags:    flags,
		renderer: density.NewRenderer(density.RendererConfig{
			MinSize: cfg.MinSize,
			MaxSize: cfg.MaxSize,
			Logger:  logger,
		}),
		interact: interact.New(interact.Config{
			Callbacks:     cfg.Interact,
			Flags:         flags,
			NumericFields: cfg.NumericFields,
			Logger:        logger,
		}),
	}
	logger.Debug("session created", "mappings", len(cfg.Mappings), "extent", cfg.Density.ExtentDensity.String())
	return s, nil
}

func validateMappings(ms []core.AxisMapping) error {
	for _, m := range ms {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Load queries the source and rebuilds. A failed load keeps the previous
// records and snapshot.
func (s *Session) Load(ctx context.Context) (*Snapshot, error) {
	if s.closed.Load() {
		return nil, disclosure.ErrClosed
	}
	records, err := s.src.Query(ctx, s.cfg.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	s.logger.Debug("records loaded", "count", len(records))
	records = core.UniqueIDs(records)

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.records
	s.records = records
	snap, err := s.rebuild(ctx)
	if err != nil {
		s.records = prev
		return nil, err
	}
	return snap, nil
}

// Rebuild re-projects the loaded records.
func (s *Session) Rebuild(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuild(ctx)
}

// Snapshot returns the latest published snapshot, or nil before the first
// build.
func (s *Session) Snapshot() *Snapshot {
	return s.current.Load()
}

// Mappings returns a copy of the active axis mappings.
func (s *Session) Mappings() []core.AxisMapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.mappings)
}

// SetMappings replaces the axis mappings and rebuilds. Invalid mappings
// are rejected before anything changes.
func (s *Session) SetMappings(ctx context.Context, mappings []core.AxisMapping) (*Snapshot, error) {
	if err := validateMappings(mappings); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.mappings
	s.mappings = slices.Clone(mappings)
	snap, err := s.rebuild(ctx)
	if err != nil {
		s.mappings = prev
		return nil, err
	}
	return snap, nil
}

// Density returns the active density state.
func (s *Session) Density() core.DensityState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.density
}

// SetDensity changes the Janus density and rebuilds.
func (s *Session) SetDensity(ctx context.Context, d core.DensityState) (*Snapshot, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.density
	s.density = d
	snap, err := s.rebuild(ctx)
	if err != nil {
		s.density = prev
		return nil, err
	}
	return snap, nil
}

// SetMode forces a render mode; nil returns to automatic selection.
func (s *Session) SetMode(ctx context.Context, mode *density.Mode) (*Snapshot, error) {
	if mode != nil && !mode.Valid() {
		return nil, &core.UnknownModeError{Name: mode.String()}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.mode
	s.mode = mode
	snap, err := s.refold(ctx)
	if err != nil {
		s.mode = prev
		return nil, err
	}
	return snap, nil
}

// Controller returns the disclosure controller for one header orientation.
// It is nil before the first build.
func (s *Session) Controller(o header.Orientation) *disclosure.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o == header.Rows {
		return s.rowCtl
	}
	return s.colCtl
}

// Sync copies the visible window of from onto the other orientation.
func (s *Session) Sync(from header.Orientation) error {
	s.mu.Lock()
	src, dst := s.colCtl, s.rowCtl
	if from == header.Rows {
		src, dst = s.rowCtl, s.colCtl
	}
	s.mu.Unlock()
	if src == nil || dst == nil {
		return ErrNoSnapshot
	}
	return dst.SetVisibleLevels(src.State().VisibleLevels)
}

// Interactions returns the hover/selection manager.
func (s *Session) Interactions() *interact.Manager {
	return s.interact
}

// Flags returns the header collapse/selection flags.
func (s *Session) Flags() *header.Flags {
	return s.flags
}

// Close stops both controllers and closes the source.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rowCtl != nil {
		s.rowCtl.Close()
	}
	if s.colCtl != nil {
		s.colCtl.Close()
	}
	return s.src.Close()
}

// rebuild runs the full projection. Caller holds mu.
func (s *Session) rebuild(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	cmp := collation.New(s.cfg.Locale)
	records := s.records
	index := core.IndexRecords(records)

	g, err := grid.Assemble(records, s.mappings, s.density.ExtentDensity, grid.Options{
		MinPopulation: s.cfg.MinPopulation,
		Comparator:    cmp,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to assemble grid: %w", err)
	}

	// headers only see records that landed in a kept cell, so they cover
	// exactly the grid's rows and columns
	members := memberRecords(g, index)
	rows, err := header.Build(header.Rows, s.mappings, members, header.Options{
		MaxLevels:  s.cfg.MaxLevels,
		Domain:     g.Rows,
		Comparator: cmp,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build row headers: %w", err)
	}
	cols, err := header.Build(header.Columns, s.mappings, members, header.Options{
		MaxLevels:  s.cfg.MaxLevels,
		Domain:     g.Columns,
		Comparator: cmp,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build column headers: %w", err)
	}

	scales, err := s.buildScales(records, g, cmp)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Records:  records,
		Index:    index,
		Mappings: slices.Clone(s.mappings),
		Density:  s.density,
		Scales:   scales,
		Grid:     g,
		Columns:  cols,
		Rows:     rows,
	}
	// the controllers keep their trees until the new frame renders
	rowLevels, colLevels, commit, abort := s.stageTrees(rows, cols)
	if err := s.render(ctx, snap, rowLevels, colLevels); err != nil {
		abort()
		return nil, err
	}
	commit()

	if n := s.flags.Prune(cols, rows); n > 0 {
		s.logger.Debug("pruned stale header flags", "count", n)
	}
	s.logger.Debug("snapshot built",
		"id", snap.ID,
		"records", len(records),
		"columns", len(g.Columns),
		"rows", len(g.Rows),
		"cells", len(snap.Frame.Cells),
		"elapsed", time.Since(start))
	return snap, nil
}

// refold re-renders the current snapshot's grid for the current mode and
// disclosure windows. Caller holds mu.
func (s *Session) refold(ctx context.Context) (*Snapshot, error) {
	cur := s.current.Load()
	if cur == nil {
		return nil, ErrNoSnapshot
	}
	next := *cur
	next.Cells, next.Frame, next.Diff = nil, density.Frame{}, density.Diff{}
	if err := s.render(ctx, &next, visibleLevels(s.rowCtl), visibleLevels(s.colCtl)); err != nil {
		return nil, err
	}
	return &next, nil
}

// render folds snap at the given windows, draws and publishes it. Caller
// holds mu.
func (s *Session) render(ctx context.Context, snap *Snapshot, rowLevels, colLevels []int) error {
	snap.RowLevels = rowLevels
	snap.ColumnLevels = colLevels
	snap.Fold = density.FoldFor(snap.Density.ValueDensity, shown(snap.RowLevels), shown(snap.ColumnLevels))
	snap.Cells = density.Aggregate(snap.Grid, snap.Fold)

	snap.Mode = density.SelectMode(snap.Density.ExtentDensity)
	if s.mode != nil {
		snap.Mode = *s.mode
	}
	frame, diff, err := s.renderer.Render(ctx, snap.Mode, snap.Cells, snap.Index)
	if err != nil {
		return fmt.Errorf("failed to render frame: %w", err)
	}
	snap.Frame, snap.Diff = frame, diff
	snap.ID = uuid.NewString()
	snap.BuiltAt = s.now()

	s.interact.SetFrame(frame, snap.Index)
	s.current.Store(snap)
	if cb := s.cfg.OnSnapshot; cb != nil {
		cb(snap)
	}
	return nil
}

func (s *Session) now() time.Time {
	if s.cfg.Now != nil {
		return s.cfg.Now()
	}
	return time.Now()
}

// stageTrees returns the windows the controllers will show once rows and
// cols are attached. commit attaches them; abort leaves the controllers as
// they were. Controllers are created on the first build and abort closes
// them again. Caller holds mu.
func (s *Session) stageTrees(rows, cols *header.Tree) (rowLevels, colLevels []int, commit, abort func()) {
	if s.rowCtl == nil {
		s.rowCtl = disclosure.New(rows, s.controllerConfig(header.Rows))
		s.colCtl = disclosure.New(cols, s.controllerConfig(header.Columns))
		abort = func() {
			s.rowCtl.Close()
			s.colCtl.Close()
			s.rowCtl, s.colCtl = nil, nil
		}
		return visibleLevels(s.rowCtl), visibleLevels(s.colCtl), func() {}, abort
	}
	commit = func() {
		s.rowCtl.SetTree(rows)
		s.colCtl.SetTree(cols)
	}
	return s.rowCtl.WindowFor(rows), s.colCtl.WindowFor(cols), commit, func() {}
}

func (s *Session) controllerConfig(o header.Orientation) disclosure.Config {
	cfg := s.cfg.Disclosure
	cfg.Logger = s.logger.With("orientation", o.String())
	user := cfg.Callbacks.OnLevelChange
	cfg.Callbacks.OnLevelChange = func(levels []int, groupID string) {
		if !s.closed.Load() {
			s.mu.Lock()
			if _, err := s.refold(context.Background()); err != nil {
				s.logger.Debug("refold after level change failed", "error", err)
			}
			s.mu.Unlock()
		}
		if user != nil {
			user(levels, groupID)
		}
	}
	return cfg
}

func (s *Session) buildScales(records []core.Record, g *grid.Grid, cmp *collation.Comparator) (map[core.Plane][]scale.Scale, error) {
	cols, rows := g.Size()
	ranges := map[core.Plane]scale.Range{
		core.PlaneX:     {Min: 0, Max: s.cfg.CellWidth * float64(max(cols, 1))},
		core.PlaneY:     {Min: 0, Max: s.cfg.CellHeight * float64(max(rows, 1))},
		core.PlaneColor: {Min: 0, Max: 1},
		core.PlaneSize:  {Min: 0, Max: 1},
	}
	opts := scale.Options{Now: s.cfg.Now, Comparator: cmp}
	out := make(map[core.Plane][]scale.Scale)
	for _, m := range s.mappings {
		sc, err := scale.ForMapping(m, records, ranges[m.Plane], opts)
		if err != nil {
			return nil, err
		}
		out[m.Plane] = append(out[m.Plane], sc)
	}
	return out, nil
}

func memberRecords(g *grid.Grid, index core.RecordIndex) []core.Record {
	var out []core.Record
	seen := make(map[string]bool)
	for _, c := range g.Cells {
		for _, id := range c.MemberIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			if r, ok := index[id]; ok {
				out = append(out, r)
			}
		}
	}
	return out
}

func visibleLevels(c *disclosure.Controller) []int {
	if c == nil {
		return nil
	}
	return c.VisibleLevels()
}

// shown is the number of key elements down to the deepest visible level.
func shown(levels []int) int {
	if len(levels) == 0 {
		return 0
	}
	return slices.Max(levels) + 1
}
