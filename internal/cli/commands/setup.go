package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/latchgrid/internal/cli/config"
	"github.com/leapstack-labs/latchgrid/internal/cli/output"
	"github.com/leapstack-labs/latchgrid/internal/engine"
	"github.com/leapstack-labs/latchgrid/pkg/disclosure"
	"github.com/leapstack-labs/latchgrid/pkg/interact"
	"github.com/leapstack-labs/latchgrid/pkg/source"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Session  *engine.Session
	Renderer *output.Renderer
}

// SessionHooks lets a command observe the session it is given.
type SessionHooks struct {
	Disclosure disclosure.Callbacks
	Interact   interact.Callbacks
}

// NewCommandContext creates a CommandContext with an opened session and a
// renderer. Returns the context and a cleanup function that must be called
// (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	return NewCommandContextWithHooks(cmd, SessionHooks{})
}

// NewCommandContextWithHooks is NewCommandContext with session callbacks.
func NewCommandContextWithHooks(cmd *cobra.Command, hooks SessionHooks) (*CommandContext, func(), error) {
	cc := NewCommandContextWithoutSession(cmd)

	session, err := openSession(cmd.Context(), cc.Cfg, cc.Logger, hooks)
	if err != nil {
		return nil, nil, err
	}
	cc.Session = session

	cleanup := func() {
		_ = session.Close()
	}
	return cc, cleanup, nil
}

// NewCommandContextWithoutSession creates a CommandContext without a session.
// Useful for commands that never touch the source.
func NewCommandContextWithoutSession(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration, or the defaults when no
// configuration was loaded.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return &config.Config{
		Source:       source.Config{Type: config.DefaultSourceType},
		Density:      config.DensityConfig{Extent: config.DefaultExtent},
		Locale:       config.DefaultLocale,
		OutputFormat: config.DefaultOutput,
		LogFormat:    config.DefaultLogFormat,
		Render: config.RenderConfig{
			CellWidth:  config.DefaultCellWidth,
			CellHeight: config.DefaultCellHeight,
			MaxSize:    config.DefaultMaxSize,
		},
	}
}

// openSource creates and opens the configured source.
func openSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (source.Source, error) {
	src, err := source.New(cfg.Source, logger)
	if err != nil {
		return nil, err
	}
	if err := src.Open(ctx, cfg.Source); err != nil {
		return nil, fmt.Errorf("failed to open %s source: %w", cfg.Source.Type, err)
	}
	return src, nil
}

// sessionConfig converts the CLI configuration into a session config.
func sessionConfig(cfg *config.Config, src source.Source, logger *slog.Logger, hooks SessionHooks) (engine.Config, error) {
	mappings, err := cfg.AxisMappings()
	if err != nil {
		return engine.Config{}, err
	}
	dens, err := cfg.DensityState()
	if err != nil {
		return engine.Config{}, err
	}
	mode, err := cfg.RenderMode()
	if err != nil {
		return engine.Config{}, err
	}
	query, err := cfg.SourceQuery()
	if err != nil {
		return engine.Config{}, err
	}

	disc := cfg.DisclosureSettings()
	disc.Callbacks = hooks.Disclosure
	disc.Logger = logger

	return engine.Config{
		Source:        src,
		Query:         query,
		Mappings:      mappings,
		Density:       dens,
		Mode:          mode,
		Locale:        cfg.Locale,
		CellWidth:     cfg.Render.CellWidth,
		CellHeight:    cfg.Render.CellHeight,
		MinSize:       cfg.Render.MinSize,
		MaxSize:       cfg.Render.MaxSize,
		MinPopulation: cfg.Render.MinPopulation,
		NumericFields: cfg.Render.NumericFields,
		MaxLevels:     cfg.Render.MaxHeaderLevels,
		Disclosure:    disc,
		Interact:      hooks.Interact,
		Logger:        logger,
	}, nil
}

// openSession opens the source and builds a session over it. The source is
// closed again if the session cannot be created.
func openSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, hooks SessionHooks) (*engine.Session, error) {
	src, err := openSource(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	ecfg, err := sessionConfig(cfg, src, logger, hooks)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	session, err := engine.New(ecfg)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}
