package commands

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/leapstack-labs/latchgrid/internal/cli/output"
	"github.com/leapstack-labs/latchgrid/internal/engine"
	"github.com/spf13/cobra"
)

// RenderOptions holds options for the render command.
type RenderOptions struct {
	Watch    bool
	Debounce time.Duration
	Headers  bool
	Scales   bool
}

// NewRenderCommand creates the render command.
func NewRenderCommand() *cobra.Command {
	opts := &RenderOptions{}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the grid for the configured source and mappings",
		Long: `Load records from the configured source, project them onto the
configured LATCH axes and render one frame.

Output adapts to environment:
  - Terminal: Styled grid table
  - Piped/Scripted: Markdown table
  - --output json|yaml: Structured frame with every cell`,
		Example: `  # Render using latchgrid.yaml
  latchgrid render

  # Render a CSV file with ad-hoc mappings
  latchgrid render --source-path tasks.csv \
    --map category:status:x --map category:team:y

  # Re-render whenever the file changes
  latchgrid render --source-path tasks.csv --watch

  # Structured output for scripts
  latchgrid render --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRender(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Re-render when the source file changes")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", engine.DefaultDebounce, "Quiet period before a change triggers a reload")
	cmd.Flags().BoolVar(&opts.Headers, "headers", false, "Also print the header trees")
	cmd.Flags().BoolVar(&opts.Scales, "scales", false, "Also print the axis scales")

	return cmd
}

func runRender(cmd *cobra.Command, opts *RenderOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	snap, err := cmdCtx.Session.Load(cmd.Context())
	if err != nil {
		return err
	}
	if err := printSnapshot(r, cmdCtx.Session, snap, opts); err != nil {
		return err
	}
	if !opts.Watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	r.Muted("Watching for changes (Ctrl+C to stop)")
	var mu sync.Mutex
	return cmdCtx.Session.Watch(ctx, opts.Debounce, func(snap *engine.Snapshot, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			r.Error(fmt.Sprintf("reload failed: %v", err))
			return
		}
		r.Println("")
		if err := printSnapshot(r, cmdCtx.Session, snap, opts); err != nil {
			cmdCtx.Logger.Warn("failed to print frame", "error", err)
		}
	})
}

func printSnapshot(r *output.Renderer, s *engine.Session, snap *engine.Snapshot, opts *RenderOptions) error {
	if err := r.Frame(frameOutput(snap)); err != nil {
		return err
	}
	if opts.Headers {
		if err := r.Headers(headerOutputs(s, snap)); err != nil {
			return err
		}
	}
	if opts.Scales {
		if err := r.Scales(scaleOutputs(snap)); err != nil {
			return err
		}
	}
	return nil
}
