// Package disclosure bounds how much of a deep header hierarchy is shown
// and loaded at once.
//
// A Controller keeps a window of visible levels over a header tree, moves it
// with zoom, step and tab operations, and lazily buffers levels adjacent to
// the window. Level changes run a two-phase fade transition; while one is in
// flight every further change is rejected with ErrTransitionInProgress.
// Deferred work runs through a Scheduler and is defused by Close.
package disclosure

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/leapstack-labs/latchgrid/pkg/header"
)

var (
	// ErrTransitionInProgress is returned when a level change is requested
	// while another is animating. The request is dropped, not queued.
	ErrTransitionInProgress = errors.New("level transition in progress")

	// ErrAtBoundary is returned by steps that would leave the hierarchy.
	ErrAtBoundary = errors.New("already at hierarchy boundary")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("controller closed")

	// ErrEmptyWindow is returned when no levels are requested over a
	// non-empty hierarchy.
	ErrEmptyWindow = errors.New("no levels requested")
)

// Direction is the zoom direction reported to OnZoomChange.
type Direction int

// Zoom directions.
const (
	ZoomIn Direction = iota
	ZoomOut
)

func (d Direction) String() string {
	if d == ZoomOut {
		return "out"
	}
	return "in"
}

// Phase is a stage of the fade transition.
type Phase int

// Transition phases.
const (
	FadeOut Phase = iota
	FadeIn
)

func (p Phase) String() string {
	if p == FadeIn {
		return "fade-in"
	}
	return "fade-out"
}

// Callbacks are invoked without the controller lock held.
type Callbacks struct {
	OnLevelChange  func(levels []int, groupID string)
	OnZoomChange   func(zoom int, dir Direction)
	OnTransition   func(phase Phase, levels []int)
	OnLevelsLoaded func(loaded []int)
}

// Config tunes a Controller.
type Config struct {
	// MaxVisibleLevels bounds the visible window.
	MaxVisibleLevels int
	// BufferLevels is how many levels above and below the window are
	// buffered after each change.
	BufferLevels int
	// FadeDuration is the length of each transition phase.
	FadeDuration time.Duration
	// StaggerDelay spaces buffered loads.
	StaggerDelay time.Duration
	// PerNodeCost and TimeBudget drive ShouldUseProgressive.
	PerNodeCost time.Duration
	TimeBudget  time.Duration
	// MaxLoadedLevels caps LoadedLevels; 0 never evicts. Only levels
	// deeper than the visible window are evicted.
	MaxLoadedLevels int

	Scheduler Scheduler
	Callbacks Callbacks
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		MaxVisibleLevels: 3,
		BufferLevels:     1,
		FadeDuration:     150 * time.Millisecond,
		StaggerDelay:     50 * time.Millisecond,
		PerNodeCost:      20 * time.Microsecond,
		TimeBudget:       16 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxVisibleLevels < 1 {
		c.MaxVisibleLevels = d.MaxVisibleLevels
	}
	if c.BufferLevels < 0 {
		c.BufferLevels = 0
	}
	if c.PerNodeCost <= 0 {
		c.PerNodeCost = d.PerNodeCost
	}
	if c.TimeBudget <= 0 {
		c.TimeBudget = d.TimeBudget
	}
	if c.Scheduler == nil {
		c.Scheduler = RealScheduler{}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// ShouldUseProgressive reports whether rendering the whole tree would blow
// the time budget.
func (c Config) ShouldUseProgressive(tree *header.Tree) bool {
	if tree == nil {
		return false
	}
	c = c.withDefaults()
	return time.Duration(tree.NodeCount())*c.PerNodeCost > c.TimeBudget
}

// State is a snapshot of the controller.
type State struct {
	VisibleLevels    []int
	LoadedLevels     []int
	LevelGroups      []LevelGroup
	ActiveGroupIndex int
	ZoomLevel        int
	Transitioning    bool
	Depth            int
}

// Controller is the progressive disclosure state machine. It is safe for
// concurrent use.
type Controller struct {
	mu     sync.Mutex
	cfg    Config
	logger *slog.Logger

	tree  *header.Tree
	depth int

	visible       []int
	loaded        map[int]bool
	groups        []LevelGroup
	active        int
	zoom          int
	transitioning bool
	// target is the window a transition is moving to, nil when idle.
	target []int

	gen    uint64
	seq    uint64
	timers map[uint64]Timer
	closed bool
}

// New creates a controller over tree showing the first window of levels.
func New(tree *header.Tree, cfg Config) *Controller {
	cfg = cfg.withDefaults()
	c := &Controller{
		cfg:    cfg,
		logger: cfg.Logger,
		loaded: make(map[int]bool),
		timers: make(map[uint64]Timer),
	}
	c.mu.Lock()
	c.setTree(tree)
	c.visible = c.window(0)
	c.loadClosure(c.visible)
	c.scheduleBuffer(c.visible)
	c.mu.Unlock()
	return c
}

// ShouldUseProgressive applies the controller's cost heuristic to tree.
func (c *Controller) ShouldUseProgressive(tree *header.Tree) bool {
	return c.cfg.ShouldUseProgressive(tree)
}

// State returns a snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	groups := make([]LevelGroup, len(c.groups))
	for i, g := range c.groups {
		g.Levels = slices.Clone(g.Levels)
		groups[i] = g
	}
	return State{
		VisibleLevels:    slices.Clone(c.visible),
		LoadedLevels:     c.loadedList(),
		LevelGroups:      groups,
		ActiveGroupIndex: c.active,
		ZoomLevel:        c.zoom,
		Transitioning:    c.transitioning,
		Depth:            c.depth,
	}
}

// VisibleLevels returns the current window.
func (c *Controller) VisibleLevels() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.visible)
}

// Transitioning reports whether a level change is animating.
func (c *Controller) Transitioning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitioning
}

// SetVisibleLevels starts a transition to levels. Levels are clamped to the
// hierarchy, deduplicated, sorted and trimmed to MaxVisibleLevels.
func (c *Controller) SetVisibleLevels(levels []int) error {
	c.mu.Lock()
	notify, err := c.setVisible(levels)
	c.mu.Unlock()
	run(notify)
	return err
}

// StepUp shifts the window one level towards the roots.
func (c *Controller) StepUp() error {
	return c.step(-1)
}

// StepDown shifts the window one level towards the leaves.
func (c *Controller) StepDown() error {
	return c.step(1)
}

func (c *Controller) step(delta int) error {
	c.mu.Lock()
	if err := c.usable(); err != nil {
		c.mu.Unlock()
		return err
	}
	if len(c.visible) == 0 {
		c.mu.Unlock()
		return ErrAtBoundary
	}
	lo, hi := c.visible[0]+delta, c.visible[len(c.visible)-1]+delta
	if lo < 0 || hi > c.depth-1 {
		c.logger.Debug("step rejected at boundary", "delta", delta, "visible", c.visible)
		c.mu.Unlock()
		return ErrAtBoundary
	}
	next := make([]int, len(c.visible))
	for i, l := range c.visible {
		next[i] = l + delta
	}
	notify, err := c.setVisible(next)
	c.mu.Unlock()
	run(notify)
	return err
}

// ZoomToLevel moves the window so it starts at zoom, or ends at the deepest
// level when the hierarchy is too shallow for that.
func (c *Controller) ZoomToLevel(zoom int, dir Direction) error {
	c.mu.Lock()
	if err := c.usable(); err != nil {
		c.mu.Unlock()
		return err
	}
	zoom = clamp(zoom, 0, max(c.depth-1, 0))
	c.zoom = zoom
	var notify []func()
	if cb := c.cfg.Callbacks.OnZoomChange; cb != nil {
		notify = append(notify, func() { cb(zoom, dir) })
	}
	more, err := c.setVisible(c.window(zoom))
	c.mu.Unlock()
	run(append(notify, more...))
	return err
}

// SelectTab shows the levels of group i.
func (c *Controller) SelectTab(i int) error {
	c.mu.Lock()
	if err := c.usable(); err != nil {
		c.mu.Unlock()
		return err
	}
	if i < 0 || i >= len(c.groups) {
		c.mu.Unlock()
		return fmt.Errorf("level group %d out of range [0, %d)", i, len(c.groups))
	}
	levels := c.groups[i].Levels
	notify, err := c.setVisible(levels)
	if err == nil {
		c.active = i
	}
	c.mu.Unlock()
	run(notify)
	return err
}

// SetTree swaps in a rebuilt hierarchy. State is kept and clamped when the
// hierarchy got shallower; any transition in flight is abandoned.
func (c *Controller) SetTree(tree *header.Tree) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.defuse()
	c.transitioning = false
	c.setTree(tree)
	c.visible = c.keptWindow(c.depth)
	for l := range c.loaded {
		if l >= c.depth {
			delete(c.loaded, l)
		}
	}
	c.loadClosure(c.visible)
	c.scheduleBuffer(c.visible)
	c.logger.Debug("hierarchy replaced", "depth", c.depth, "visible", c.visible)
	c.mu.Unlock()
}

// WindowFor returns the levels SetTree(tree) would leave visible, without
// changing anything.
func (c *Controller) WindowFor(tree *header.Tree) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	depth := 0
	if tree != nil {
		depth = tree.Depth()
	}
	return c.keptWindow(depth)
}

// keptWindow clamps the visible levels to depth, falling back to the zoom
// window when none survive. Caller holds mu.
func (c *Controller) keptWindow(depth int) []int {
	var kept []int
	for _, l := range c.visible {
		if l < depth {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		kept = windowAt(c.zoom, depth, c.cfg.MaxVisibleLevels)
	}
	return kept
}

// Close stops every pending callback. The controller rejects all further
// changes with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.defuse()
	c.closed = true
	c.transitioning = false
}

// setTree records tree and recomputes derived state. Caller holds mu.
func (c *Controller) setTree(tree *header.Tree) {
	c.tree = tree
	c.depth = 0
	var axes []core.AxisType
	if tree != nil {
		c.depth = tree.Depth()
		axes = tree.Axes[:min(len(tree.Axes), c.depth)]
	}
	c.groups = DetectGroups(axes, c.cfg.MaxVisibleLevels)
	c.zoom = clamp(c.zoom, 0, max(c.depth-1, 0))
	c.active = clamp(c.active, 0, max(len(c.groups)-1, 0))
}

func (c *Controller) usable() error {
	if c.closed {
		return ErrClosed
	}
	if c.transitioning {
		return ErrTransitionInProgress
	}
	return nil
}

// window returns the levels of a full-width window starting at start,
// shifted up when it would run past the deepest level.
func (c *Controller) window(start int) []int {
	return windowAt(start, c.depth, c.cfg.MaxVisibleLevels)
}

func windowAt(start, depth, width int) []int {
	width = min(width, depth)
	start = min(start, depth-width)
	start = max(start, 0)
	out := make([]int, width)
	for i := range out {
		out[i] = start + i
	}
	return out
}

// setVisible runs the transition state machine. Caller holds mu; the
// returned notifications must run after it is released.
func (c *Controller) setVisible(levels []int) ([]func(), error) {
	if err := c.usable(); err != nil {
		if errors.Is(err, ErrTransitionInProgress) {
			c.logger.Debug("level change rejected", "requested", levels, "visible", c.visible)
		}
		return nil, err
	}
	if len(levels) == 0 && c.depth > 0 {
		return nil, ErrEmptyWindow
	}

	next := c.normalize(levels)
	old := slices.Clone(c.visible)
	c.transitioning = true
	c.target = next
	c.loadClosure(next)
	c.logger.Debug("level transition started", "from", old, "to", next)

	var notify []func()
	cb := c.cfg.Callbacks
	if cb.OnTransition != nil {
		notify = append(notify, func() { cb.OnTransition(FadeOut, old) })
	}

	fade := c.cfg.FadeDuration
	c.schedule(fade, func() []func() {
		c.visible = next
		c.active = c.groupIndex(next)
		var out []func()
		if cb.OnTransition != nil {
			shown := slices.Clone(next)
			out = append(out, func() { cb.OnTransition(FadeIn, shown) })
		}
		c.schedule(fade, func() []func() {
			c.transitioning = false
			c.target = nil
			c.scheduleBuffer(next)
			c.logger.Debug("level transition finished", "visible", next)
			if cb.OnLevelChange == nil {
				return nil
			}
			levels, groupID := slices.Clone(next), c.groupID(next)
			return []func(){func() { cb.OnLevelChange(levels, groupID) }}
		})
		return out
	})
	return notify, nil
}

func (c *Controller) normalize(levels []int) []int {
	if c.depth == 0 {
		return []int{}
	}
	out := make([]int, 0, len(levels))
	for _, l := range levels {
		out = append(out, clamp(l, 0, c.depth-1))
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) > c.cfg.MaxVisibleLevels {
		out = out[:c.cfg.MaxVisibleLevels]
	}
	return out
}

// groupIndex returns the group holding the first level, or the current
// index when levels is empty.
func (c *Controller) groupIndex(levels []int) int {
	if len(levels) == 0 {
		return c.active
	}
	for i, g := range c.groups {
		if slices.Contains(g.Levels, levels[0]) {
			return i
		}
	}
	return c.active
}

func (c *Controller) groupID(levels []int) string {
	i := c.groupIndex(levels)
	if i < 0 || i >= len(c.groups) {
		return ""
	}
	return c.groups[i].ID
}

// loadClosure marks every level from the root to the deepest of levels as
// loaded, so ancestors are always in memory before a level renders.
func (c *Controller) loadClosure(levels []int) {
	if len(levels) == 0 {
		return
	}
	for l := 0; l <= slices.Max(levels); l++ {
		c.loaded[l] = true
	}
}

func (c *Controller) loadedList() []int {
	out := make([]int, 0, len(c.loaded))
	for l := range c.loaded {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}

// scheduleBuffer queues loads of up to BufferLevels levels on each side of
// the window, nearest first, StaggerDelay apart.
func (c *Controller) scheduleBuffer(levels []int) {
	if len(levels) == 0 || c.cfg.BufferLevels == 0 {
		return
	}
	lo, hi := levels[0], levels[len(levels)-1]
	var queue []int
	for i := 1; i <= c.cfg.BufferLevels; i++ {
		if d := hi + i; d < c.depth && !c.loaded[d] {
			queue = append(queue, d)
		}
		if u := lo - i; u >= 0 && !c.loaded[u] {
			queue = append(queue, u)
		}
	}
	for i, level := range queue {
		c.schedule(time.Duration(i+1)*c.cfg.StaggerDelay, func() []func() {
			return c.load(level)
		})
	}
}

// load marks a buffered level as loaded and applies the eviction cap.
func (c *Controller) load(level int) []func() {
	if level >= c.depth || c.loaded[level] {
		return nil
	}
	c.loaded[level] = true
	c.evict()
	c.logger.Debug("level buffered", "level", level, "loaded", len(c.loaded))
	cb := c.cfg.Callbacks.OnLevelsLoaded
	if cb == nil {
		return nil
	}
	loaded := c.loadedList()
	return []func(){func() { cb(loaded) }}
}

// evict drops the deepest loaded levels below the visible window until the
// cap holds. Levels at or above the window, or the window a transition is
// moving to, are never evicted.
func (c *Controller) evict() {
	pinned := slices.Concat(c.visible, c.target)
	if c.cfg.MaxLoadedLevels <= 0 || len(pinned) == 0 {
		return
	}
	floor := slices.Max(pinned)
	loaded := c.loadedList()
	for i := len(loaded) - 1; i >= 0 && len(c.loaded) > c.cfg.MaxLoadedLevels; i-- {
		if loaded[i] <= floor {
			break
		}
		delete(c.loaded, loaded[i])
		c.logger.Debug("level evicted", "level", loaded[i])
	}
}

// schedule runs fn under the lock after d unless the controller was closed
// or its pending work defused in the meantime. Caller holds mu.
func (c *Controller) schedule(d time.Duration, fn func() []func()) {
	gen := c.gen
	c.seq++
	id := c.seq
	c.timers[id] = c.cfg.Scheduler.AfterFunc(d, func() {
		c.mu.Lock()
		delete(c.timers, id)
		if c.closed || c.gen != gen {
			c.mu.Unlock()
			return
		}
		notify := fn()
		c.mu.Unlock()
		run(notify)
	})
}

// defuse stops every pending callback. Caller holds mu.
func (c *Controller) defuse() {
	c.gen++
	c.target = nil
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

func run(fns []func()) {
	for _, f := range fns {
		f()
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
