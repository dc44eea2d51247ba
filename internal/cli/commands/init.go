package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/latchgrid/internal/cli/config"
	"github.com/leapstack-labs/latchgrid/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var example bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new latchgrid project",
		Long: `Initialize a new latchgrid project with a starter configuration.

This creates:
  - latchgrid.yaml configuration file
  - .gitignore for local history and .env files

Use --example to create a working task-board project with sample data
and axis mappings for every plane.`,
		Example: `  # Initialize in current directory
  latchgrid init

  # Initialize with a full working example
  latchgrid init --example

  # Initialize in a new directory
  latchgrid init my-board --example

  # Force overwrite existing config
  latchgrid init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			cfg := getConfig()
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))

			if example {
				return runInitExample(r, dir, force)
			}
			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&example, "example", false, "Create an example project with sample data and mappings")

	return cmd
}

// prepareDir creates dir and refuses to clobber an existing config.
func prepareDir(dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, config.ConfigFileNames[0])
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", config.ConfigFileNames[0])
	}
	return nil
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if err := prepareDir(dir, force); err != nil {
		return err
	}
	if err := copyTemplate("minimal", dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, _ := listTemplateFiles("minimal")
	for _, f := range files {
		r.StatusLine(f, "created", true)
	}

	r.Println("")
	r.Success("latchgrid project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Point source.path in latchgrid.yaml at your data")
	r.Println("  2. Add axis mappings (or pass --map axis:facet:plane)")
	r.Println("  3. Run 'latchgrid doctor' to check the setup")
	r.Println("  4. Run 'latchgrid render' or 'latchgrid explore'")

	return nil
}

func runInitExample(r *output.Renderer, dir string, force bool) error {
	if err := prepareDir(dir, force); err != nil {
		return err
	}
	if err := copyTemplate("example", dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, _ := listTemplateFiles("example")
	groups := groupTemplateFiles(files)

	r.Header(2, "Configuration")
	for _, f := range groups["config"] {
		r.StatusLine(f, "created", true)
	}

	r.Println("")
	r.Header(2, "Data")
	for _, f := range groups["data"] {
		r.StatusLine(f, "created", true)
	}

	r.Println("")
	r.Success("latchgrid project initialized with example data!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  latchgrid render            Render the task board")
	r.Println("  latchgrid headers           Inspect the header trees")
	r.Println("  latchgrid explore           Step through levels interactively")
	r.Println("  latchgrid doctor            Check the projection")

	return nil
}
