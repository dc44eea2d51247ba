package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// EnvPrefix prefixes environment overrides. A double underscore nests:
// LATCHGRID_SOURCE__PATH sets source.path.
const EnvPrefix = "LATCHGRID_"

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// flagKeys maps flag names to config keys. Flags not listed here are
// command-local and never reach the config.
var flagKeys = map[string]string{
	"source-type":        "source.type",
	"source-path":        "source.path",
	"table":              "source.table",
	"dsn":                "source.dsn",
	"extent":             "density.extent",
	"value-density":      "density.value",
	"mode":               "render.mode",
	"min-population":     "render.min_population",
	"max-visible-levels": "disclosure.max_visible_levels",
	"max-header-levels":  "render.max_header_levels",
	"where":              "query.where",
	"limit":              "query.limit",
	"locale":             "locale",
	"verbose":            "verbose",
	"output":             "output",
	"log-format":         "log_format",
}

// configExistsIn returns the config file in dir, if any.
func configExistsIn(dir string) string {
	for _, name := range ConfigFileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// findProjectRootUpward searches upward from startDir for a config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func findProjectRootUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configExistsIn(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty, in-memory or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
// A .env file next to the config file is loaded into the environment first;
// it never overrides variables that are already set.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	projectRoot := cwd
	if cfgFile != "" {
		abs, err := filepath.Abs(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
		cfgFile = abs
		projectRoot = filepath.Dir(abs)
	} else if root := findProjectRootUpward(cwd); root != "" {
		projectRoot = root
		cfgFile = configExistsIn(root)
	}

	// Paths given as flags are relative to the working directory, not the
	// project root.
	var flagSourcePath string
	if flags != nil && flags.Changed("source-path") {
		if v, _ := flags.GetString("source-path"); v != "" {
			flagSourcePath = resolvePathRelativeTo(v, cwd)
		}
	}

	if dotenv := filepath.Join(projectRoot, ".env"); fileExists(dotenv) {
		if err := godotenv.Load(dotenv); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", dotenv, err)
		}
	}

	// 1. Load defaults
	if err := k.Load(confmap.Provider(map[string]any{
		"source.type":        DefaultSourceType,
		"density.extent":     DefaultExtent,
		"render.cell_width":  DefaultCellWidth,
		"render.cell_height": DefaultCellHeight,
		"render.max_size":    DefaultMaxSize,
		"locale":             DefaultLocale,
		"verbose":            false,
		"output":             DefaultOutput,
		"log_format":         DefaultLogFormat,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	configFileUsed = cfgFile
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Environment variables
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags (highest priority)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = projectRoot

	// Repeatable flags carry separators koanf would split on.
	if flags != nil {
		if err := applyListFlags(&cfg, flags); err != nil {
			return nil, err
		}
	}

	expandSourceEnvVars(&cfg)
	if flagSourcePath != "" {
		cfg.Source.Path = flagSourcePath
	} else {
		cfg.Source.Path = resolvePathRelativeTo(cfg.Source.Path, projectRoot)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	currentConfig = &cfg
	return &cfg, nil
}

// envKey transforms LATCHGRID_SOURCE__PATH into source.path.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// applyListFlags replaces mappings and filters with --map and --filter
// values when given.
func applyListFlags(cfg *Config, flags *pflag.FlagSet) error {
	if f := flags.Lookup("map"); f != nil && f.Changed {
		specs, err := flags.GetStringArray("map")
		if err != nil {
			return err
		}
		cfg.Mappings = cfg.Mappings[:0]
		for _, s := range specs {
			parts := strings.Split(s, ":")
			if len(parts) != 3 {
				return fmt.Errorf("invalid mapping %q: expected axis:facet:plane", s)
			}
			cfg.Mappings = append(cfg.Mappings, MappingConfig{Axis: parts[0], Facet: parts[1], Plane: parts[2]})
		}
	}
	if f := flags.Lookup("filter"); f != nil && f.Changed {
		filters, err := flags.GetStringArray("filter")
		if err != nil {
			return err
		}
		cfg.Query.Filters = filters
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// NewLogger builds the CLI logger. Verbose lowers the level to debug.
func NewLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelWarn}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerKey returns the context key used for storing the logger.
func LoggerKey() any {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// expandSourceEnvVars expands environment variables in connection fields.
func expandSourceEnvVars(cfg *Config) {
	s := &cfg.Source
	s.Path = expandEnvVars(s.Path)
	s.DSN = expandEnvVars(s.DSN)
	s.Host = expandEnvVars(s.Host)
	s.Database = expandEnvVars(s.Database)
	s.User = expandEnvVars(s.User)
	s.Password = expandEnvVars(s.Password)
}
