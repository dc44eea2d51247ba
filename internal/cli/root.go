// Package cli provides the command-line interface for latchgrid.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/leapstack-labs/latchgrid/internal/cli/commands"
	"github.com/leapstack-labs/latchgrid/internal/cli/config"
	"github.com/leapstack-labs/latchgrid/internal/cli/output"
	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/leapstack-labs/latchgrid/pkg/source"
	"github.com/spf13/cobra"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "latchgrid",
		Short: "latchgrid - LATCH multi-axis data grid",
		Long: `latchgrid projects records from a data source onto a two-dimensional
grid using the LATCH axes: Location, Alphabet, Time, Category and Hierarchy.

Facets are mapped to planes (x, y, color, size, shape), header trees are
built per plane, and nested headers can be disclosed level by level.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			logger := config.NewLogger(cmd.ErrOrStderr(), cfg.LogFormat, cfg.Verbose)
			if configFile := config.GetConfigFileUsed(); configFile != "" {
				logger.Debug("using config file", "path", configFile)
			}
			cmd.SetContext(config.WithLogger(cmd.Context(), logger))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
LATCH multi-axis data grid
`)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./latchgrid.yaml)")
	pf.String("source-type", "", "Source type ("+strings.Join(source.List(), "|")+")")
	pf.String("source-path", "", "Path to the source file or database")
	pf.String("table", "", "Table to read")
	pf.String("dsn", "", "Connection string for server sources")
	pf.String("where", "", "Row predicate pushed down to the source")
	pf.Int("limit", 0, "Maximum records to load (0 for no limit)")
	pf.StringArray("map", nil, "Axis mapping as axis:facet:plane (repeatable)")
	pf.StringArray("filter", nil, "Starlark filter expression (repeatable)")
	pf.String("extent", "", "Extent density (ultra-sparse|sparse|medium|dense|ultra-dense)")
	pf.Int("value-density", 0, "Value density: facet levels folded per axis")
	pf.String("mode", "", "Render mode (grid|matrix|hybrid), empty to select by extent")
	pf.Int("min-population", 0, "Hide cells with fewer records")
	pf.Int("max-visible-levels", 0, "Header levels visible at once")
	pf.Int("max-header-levels", 0, "Cap header depth per plane (0 for every mapping)")
	pf.String("locale", "", "Collation locale for alphabet axes")
	pf.BoolP("verbose", "v", false, "Verbose output")
	pf.StringP("output", "o", "", "Output format (auto|text|markdown|json|yaml)")
	pf.String("log-format", "", "Log format (text|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return output.Modes, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("source-type", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return source.List(), cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("extent", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		var names []string
		for e := core.ExtentUltraSparse; e.Valid(); e++ {
			names = append(names, e.String())
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewRenderCommand())
	rootCmd.AddCommand(commands.NewExploreCommand())
	rootCmd.AddCommand(commands.NewHeadersCommand())
	rootCmd.AddCommand(commands.NewScalesCommand())
	rootCmd.AddCommand(commands.NewAxesCommand())
	rootCmd.AddCommand(commands.NewSourcesCommand())
	rootCmd.AddCommand(commands.NewDoctorCommand())
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for latchgrid.

To load completions:

Bash:
  $ source <(latchgrid completion bash)

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  $ latchgrid completion zsh > "${fpath[1]}/_latchgrid"

Fish:
  $ latchgrid completion fish > ~/.config/fish/completions/latchgrid.fish

PowerShell:
  PS> latchgrid completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
