package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/latchgrid/internal/cli/output"
	"github.com/leapstack-labs/latchgrid/internal/engine"
	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/leapstack-labs/latchgrid/pkg/density"
	"github.com/leapstack-labs/latchgrid/pkg/disclosure"
	"github.com/leapstack-labs/latchgrid/pkg/header"
	"github.com/leapstack-labs/latchgrid/pkg/interact"
	"github.com/spf13/cobra"
)

const explorePrompt = "latchgrid> "

// historyFileName is kept in the project root.
const historyFileName = ".latchgrid_history"

// errQuit ends the REPL loop.
var errQuit = errors.New("quit")

// NewExploreCommand creates the explore command.
func NewExploreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "explore",
		Short: "Explore the grid interactively",
		Long: `Start an interactive session over the configured source.

Step through header levels, change density and mappings, and hover or
select cells. Every change re-renders the grid. Type help for commands.`,
		Example: `  latchgrid explore
  latchgrid explore --source-path tasks.csv --map time:due:x --map category:team:y`,
		Args: cobra.NoArgs,
		RunE: runExplore,
	}
}

func runExplore(cmd *cobra.Command, _ []string) error {
	changed := make(chan struct{}, 1)
	hooks := SessionHooks{
		Disclosure: disclosure.Callbacks{
			OnLevelChange: func([]int, string) {
				select {
				case changed <- struct{}{}:
				default:
				}
			},
		},
	}
	cmdCtx, cleanup, err := NewCommandContextWithHooks(cmd, hooks)
	if err != nil {
		return err
	}
	defer cleanup()

	// two fade phases plus headroom
	wait := 2*cmdCtx.Cfg.DisclosureSettings().FadeDuration + time.Second
	settle := func() {
		select {
		case <-changed:
		case <-time.After(wait):
			cmdCtx.Logger.Debug("level change did not settle", "waited", wait)
		}
	}

	ctx := cmd.Context()
	if _, err := cmdCtx.Session.Load(ctx); err != nil {
		return err
	}

	e := newExplorer(cmdCtx.Session, cmdCtx.Renderer, settle)
	e.drain = func() {
		select {
		case <-changed:
		default:
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          explorePrompt,
		HistoryFile:     filepath.Join(historyDir(cmdCtx.Cfg.ProjectRoot), historyFileName),
		AutoComplete:    exploreCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	r := cmdCtx.Renderer
	r.Printf("latchgrid explorer (%d records)\n", len(cmdCtx.Session.Snapshot().Records))
	r.Println("Type help for commands, quit to exit")
	r.Println("")
	if err := e.show(); err != nil {
		return err
	}

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err := e.exec(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			r.Error(err.Error())
		}
	}
}

func historyDir(root string) string {
	if root != "" {
		return root
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return os.TempDir()
}

func exploreCompleter() *readline.PrefixCompleter {
	sides := []readline.PrefixCompleterInterface{readline.PcItem("rows"), readline.PcItem("cols")}
	modes := []readline.PrefixCompleterInterface{
		readline.PcItem("grid"), readline.PcItem("matrix"), readline.PcItem("hybrid"), readline.PcItem("auto"),
	}
	var extents []readline.PrefixCompleterInterface
	for _, e := range []core.ExtentDensity{core.ExtentUltraSparse, core.ExtentSparse, core.ExtentMedium, core.ExtentDense, core.ExtentUltraDense} {
		extents = append(extents, readline.PcItem(e.String()))
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("show"),
		readline.PcItem("headers"),
		readline.PcItem("scales"),
		readline.PcItem("axes"),
		readline.PcItem("down", sides...),
		readline.PcItem("up", sides...),
		readline.PcItem("zoom"),
		readline.PcItem("tab"),
		readline.PcItem("sync", sides...),
		readline.PcItem("levels", sides...),
		readline.PcItem("density"),
		readline.PcItem("extent", extents...),
		readline.PcItem("mode", modes...),
		readline.PcItem("map"),
		readline.PcItem("hover"),
		readline.PcItem("leave"),
		readline.PcItem("click"),
		readline.PcItem("select"),
		readline.PcItem("clear"),
		readline.PcItem("copy"),
		readline.PcItem("toggle"),
		readline.PcItem("reload"),
		readline.PcItem("release"),
		readline.PcItem("quit"),
	)
}

// explorer executes REPL lines against a session.
type explorer struct {
	session *engine.Session
	r       *output.Renderer
	// settle blocks until a started level change has been applied.
	settle func()
	// drain discards a stale level-change signal before a new step.
	drain func()
}

func newExplorer(s *engine.Session, r *output.Renderer, settle func()) *explorer {
	if settle == nil {
		settle = func() {}
	}
	return &explorer{session: s, r: r, settle: settle, drain: func() {}}
}

// exec runs one line. errQuit asks the caller to stop.
func (e *explorer) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit", "q":
		return errQuit
	case "help", "?":
		e.help()
		return nil
	case "show":
		return e.show()
	case "headers":
		return e.withSnapshot(func(snap *engine.Snapshot) error {
			return e.r.Headers(headerOutputs(e.session, snap))
		})
	case "scales":
		return e.withSnapshot(func(snap *engine.Snapshot) error {
			return e.r.Scales(scaleOutputs(snap))
		})
	case "axes":
		return e.r.Axes(axisOutputs(e.session.Mappings()))
	case "levels":
		return e.levels(args)
	case "down", "up":
		return e.step(cmd, args)
	case "zoom":
		return e.zoom(args)
	case "tab":
		return e.tab(args)
	case "sync":
		o, _, err := orientationArg(args)
		if err != nil {
			return err
		}
		e.drain()
		if err := e.session.Sync(o); err != nil {
			return err
		}
		e.settle()
		return e.show()
	case "density":
		return e.density(ctx, args)
	case "extent":
		return e.extent(ctx, args)
	case "mode":
		return e.mode(ctx, args)
	case "map":
		return e.mapping(ctx, args)
	case "hover":
		return e.hover(args)
	case "leave":
		e.session.Interactions().Leave()
		return nil
	case "click":
		return e.click(args)
	case "select":
		return e.selectCells(args)
	case "clear":
		e.session.Interactions().ClearSelection()
		e.r.Success("Selection cleared")
		return nil
	case "copy":
		text := e.session.SelectionText()
		if text == "" {
			e.r.Muted("Nothing selected")
			return nil
		}
		_, _ = io.WriteString(e.r.Writer(), text)
		return nil
	case "toggle":
		if len(args) != 1 {
			return fmt.Errorf("usage: toggle <header-id>")
		}
		collapsed := e.session.Interactions().ToggleHeader(args[0])
		e.r.Success(fmt.Sprintf("%s collapsed: %t", args[0], collapsed))
		return nil
	case "reload":
		if _, err := e.session.Load(ctx); err != nil {
			return err
		}
		return e.show()
	case "release":
		if e.session.Capabilities().ReleaseMemory && e.session.ReleaseMemory() {
			e.r.Success("Memory released")
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q (type help)", cmd)
	}
}

func (e *explorer) help() {
	e.r.Header(2, "Commands")
	for _, l := range [][2]string{
		{"show", "render the grid"},
		{"headers | scales | axes", "inspect the projection"},
		{"levels [rows|cols]", "show the disclosure state"},
		{"down | up [rows|cols]", "step the visible header levels"},
		{"zoom <level> [rows|cols]", "jump the window to a level"},
		{"tab <group> [rows|cols]", "show one level group"},
		{"sync [rows|cols]", "align the other side to this zoom"},
		{"density <value> [extent]", "set the Janus density"},
		{"extent <name>", "set the extent density"},
		{"mode <grid|matrix|hybrid|auto>", "force a render mode"},
		{"map <axis:facet:plane>...", "replace the axis mappings"},
		{"hover <x,y> | leave", "show a cell tooltip"},
		{"click <x,y> | select <x,y>... | clear", "change the selection"},
		{"copy", "print the selection as tab-separated text"},
		{"toggle <header-id>", "collapse or expand a header node"},
		{"reload | release | quit", "session control"},
	} {
		e.r.KeyValue(l[0], l[1])
	}
}

func (e *explorer) withSnapshot(fn func(*engine.Snapshot) error) error {
	snap := e.session.Snapshot()
	if snap == nil {
		return engine.ErrNoSnapshot
	}
	return fn(snap)
}

func (e *explorer) show() error {
	return e.withSnapshot(func(snap *engine.Snapshot) error {
		return e.r.Frame(frameOutput(snap))
	})
}

// orientationArg reads an optional trailing rows/cols argument. Columns is
// the default.
func orientationArg(args []string) (header.Orientation, []string, error) {
	if len(args) == 0 {
		return header.Columns, args, nil
	}
	last := strings.ToLower(args[len(args)-1])
	switch last {
	case "rows", "row", "y":
		return header.Rows, args[:len(args)-1], nil
	case "cols", "col", "columns", "x":
		return header.Columns, args[:len(args)-1], nil
	}
	if _, err := strconv.Atoi(last); err == nil {
		return header.Columns, args, nil
	}
	return header.Columns, args, fmt.Errorf("unknown side %q: expected rows or cols", last)
}

func (e *explorer) controller(o header.Orientation) (*disclosure.Controller, error) {
	c := e.session.Controller(o)
	if c == nil {
		return nil, engine.ErrNoSnapshot
	}
	return c, nil
}

// change runs a disclosure operation, waits for the refold and shows it.
func (e *explorer) change(o header.Orientation, fn func(*disclosure.Controller) error) error {
	c, err := e.controller(o)
	if err != nil {
		return err
	}
	e.drain()
	if err := fn(c); err != nil {
		return err
	}
	e.settle()
	return e.show()
}

func (e *explorer) step(dir string, args []string) error {
	o, _, err := orientationArg(args)
	if err != nil {
		return err
	}
	return e.change(o, func(c *disclosure.Controller) error {
		if dir == "down" {
			return c.StepDown()
		}
		return c.StepUp()
	})
}

func (e *explorer) zoom(args []string) error {
	o, rest, err := orientationArg(args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("usage: zoom <level> [rows|cols]")
	}
	level, err := strconv.Atoi(rest[0])
	if err != nil {
		return fmt.Errorf("invalid level %q: %w", rest[0], err)
	}
	return e.change(o, func(c *disclosure.Controller) error {
		dir := disclosure.ZoomIn
		if level < c.State().ZoomLevel {
			dir = disclosure.ZoomOut
		}
		return c.ZoomToLevel(level, dir)
	})
}

func (e *explorer) tab(args []string) error {
	o, rest, err := orientationArg(args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("usage: tab <group> [rows|cols]")
	}
	i, err := strconv.Atoi(rest[0])
	if err != nil {
		return fmt.Errorf("invalid group %q: %w", rest[0], err)
	}
	return e.change(o, func(c *disclosure.Controller) error { return c.SelectTab(i) })
}

func (e *explorer) levels(args []string) error {
	o, _, err := orientationArg(args)
	if err != nil {
		return err
	}
	c, err := e.controller(o)
	if err != nil {
		return err
	}
	st := c.State()
	e.r.Header(2, output.Title(orientationName(o)))
	e.r.KeyValue("Depth", st.Depth)
	e.r.KeyValue("Visible", fmt.Sprint(st.VisibleLevels))
	e.r.KeyValue("Loaded", fmt.Sprint(st.LoadedLevels))
	e.r.KeyValue("Zoom", st.ZoomLevel)
	for i, g := range st.LevelGroups {
		marker := ""
		if i == st.ActiveGroupIndex {
			marker = " (active)"
		}
		e.r.KeyValue(fmt.Sprintf("Group %d", i), fmt.Sprintf("%s (%s) %v%s", g.Name, g.Kind, g.Levels, marker))
	}
	return nil
}

func (e *explorer) density(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: density <value> [extent]")
	}
	d := e.session.Density()
	v, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid value density %q: %w", args[0], err)
	}
	d.ValueDensity = v
	if len(args) == 2 {
		if d.ExtentDensity, err = core.ParseExtentDensity(args[1]); err != nil {
			return err
		}
	}
	if _, err := e.session.SetDensity(ctx, d); err != nil {
		return err
	}
	return e.show()
}

func (e *explorer) extent(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: extent <name>")
	}
	ext, err := core.ParseExtentDensity(args[0])
	if err != nil {
		return err
	}
	d := e.session.Density()
	d.ExtentDensity = ext
	if _, err := e.session.SetDensity(ctx, d); err != nil {
		return err
	}
	return e.show()
}

func (e *explorer) mode(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: mode <grid|matrix|hybrid|auto>")
	}
	var mode *density.Mode
	if !strings.EqualFold(args[0], "auto") {
		m, err := density.ParseMode(args[0])
		if err != nil {
			return err
		}
		mode = &m
	}
	if _, err := e.session.SetMode(ctx, mode); err != nil {
		return err
	}
	return e.show()
}

func (e *explorer) mapping(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: map <axis:facet:plane>...")
	}
	mappings := make([]core.AxisMapping, 0, len(args))
	for _, a := range args {
		m, err := core.ParseMapping(a)
		if err != nil {
			return err
		}
		mappings = append(mappings, m)
	}
	if _, err := e.session.SetMappings(ctx, mappings); err != nil {
		return err
	}
	return e.show()
}

// resolveCell accepts "x,y" grid coordinates or a raw cell id.
func (e *explorer) resolveCell(ref string) (string, error) {
	snap := e.session.Snapshot()
	if snap == nil {
		return "", engine.ErrNoSnapshot
	}
	if xs, ys, ok := strings.Cut(ref, ","); ok {
		x, errX := strconv.Atoi(strings.TrimSpace(xs))
		y, errY := strconv.Atoi(strings.TrimSpace(ys))
		if errX == nil && errY == nil {
			for _, c := range snap.Frame.Cells {
				if c.X == x && c.Y == y {
					return c.ID, nil
				}
			}
			return "", fmt.Errorf("no cell at %d,%d", x, y)
		}
	}
	for _, c := range snap.Frame.Cells {
		if c.ID == ref {
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("unknown cell %q", ref)
}

func (e *explorer) hover(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: hover <x,y>")
	}
	id, err := e.resolveCell(args[0])
	if err != nil {
		return err
	}
	tip, ok := e.session.Interactions().Hover(id, interact.Position{})
	if !ok {
		return fmt.Errorf("unknown cell %q", args[0])
	}
	e.r.Tooltip(tip.Lines())
	return nil
}

func (e *explorer) click(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: click <x,y>")
	}
	id, err := e.resolveCell(args[0])
	if err != nil {
		return err
	}
	selected := e.session.Interactions().Click(id, interact.Position{})
	state := "deselected"
	if selected {
		state = "selected"
	}
	e.r.Success(fmt.Sprintf("%s %s (%d selected)", args[0], state, len(e.session.Interactions().SelectedCells())))
	return nil
}

func (e *explorer) selectCells(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: select <x,y>...")
	}
	ids := make([]string, 0, len(args))
	for _, a := range args {
		id, err := e.resolveCell(a)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	e.session.Interactions().SelectCells(ids...)
	e.r.Success(fmt.Sprintf("%d selected", len(e.session.Interactions().SelectedCells())))
	return nil
}
