package commands

import (
	"slices"

	"github.com/leapstack-labs/latchgrid/internal/cli/output"
	"github.com/leapstack-labs/latchgrid/pkg/source"
	"github.com/spf13/cobra"
)

// NewHeadersCommand creates the headers command.
func NewHeadersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "headers",
		Short: "Show the row and column header trees",
		Long: `Build the grid and print its header hierarchies, one tree per
orientation, with spans and record counts for every node.`,
		Example: `  latchgrid headers
  latchgrid headers --output yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			snap, err := cmdCtx.Session.Load(cmd.Context())
			if err != nil {
				return err
			}
			return cmdCtx.Renderer.Headers(headerOutputs(cmdCtx.Session, snap))
		},
	}
}

// NewScalesCommand creates the scales command.
func NewScalesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scales",
		Short: "Show the scale built for every axis mapping",
		Long: `Build the grid and print one scale per mapping: its domain, output
range and the position of each domain value (or tick, for continuous
time and hierarchy scales).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			snap, err := cmdCtx.Session.Load(cmd.Context())
			if err != nil {
				return err
			}
			return cmdCtx.Renderer.Scales(scaleOutputs(snap))
		},
	}
}

// NewAxesCommand creates the axes command.
func NewAxesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "axes",
		Short: "List the LATCH axes and the configured mappings",
		Long: `List Location, Alphabet, Time, Category and Hierarchy with the
facets currently mapped to each. Does not open the source.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContextWithoutSession(cmd)
			mappings, err := cmdCtx.Cfg.AxisMappings()
			if err != nil {
				return err
			}
			return cmdCtx.Renderer.Axes(axisOutputs(mappings))
		},
	}
}

// NewSourcesCommand creates the sources command.
func NewSourcesCommand() *cobra.Command {
	var tables bool

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the registered source types",
		Long: `List every compiled-in source type and mark the configured one.
With --tables, the configured source is opened and its tables listed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContextWithoutSession(cmd)
			active := cmdCtx.Cfg.Source.Type

			var names []string
			if tables {
				src, err := openSource(cmd.Context(), cmdCtx.Cfg, cmdCtx.Logger)
				if err != nil {
					return err
				}
				defer func() { _ = src.Close() }()
				if names, err = src.Tables(cmd.Context()); err != nil {
					return err
				}
			}

			types := source.List()
			slices.Sort(types)
			out := make([]output.SourceOutput, 0, len(types))
			for _, t := range types {
				so := output.SourceOutput{Type: t, Active: t == active}
				if so.Active {
					so.Tables = names
				}
				out = append(out, so)
			}
			return cmdCtx.Renderer.Sources(out)
		},
	}

	cmd.Flags().BoolVar(&tables, "tables", false, "Open the configured source and list its tables")
	return cmd
}
