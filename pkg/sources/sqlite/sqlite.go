// Package sqlite provides a SQLite data source on the pure-Go driver.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"

	"github.com/go-viper/mapstructure/v2"
	"github.com/jmoiron/sqlx"
	"github.com/leapstack-labs/latchgrid/pkg/source"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

func init() {
	source.Register("sqlite", func(l *slog.Logger) source.Source { return New(l) })
}

const tablesQuery = `
	SELECT name FROM sqlite_master
	WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
	ORDER BY name`

var pragmaName = regexp.MustCompile(`^[a-z_]+$`)

// Params holds SQLite-specific configuration.
type Params struct {
	// Pragmas are applied after connecting, e.g. {"busy_timeout": "5000"}.
	Pragmas map[string]string `mapstructure:"pragmas"`
}

// Source implements source.Source for SQLite.
type Source struct {
	source.BaseSQL
}

// New creates a SQLite source. If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Source{BaseSQL: source.BaseSQL{Logger: logger, TablesQuery: tablesQuery}}
}

// Open connects to the database at cfg.Path; an empty path or ":memory:"
// opens a private in-memory database.
func (s *Source) Open(ctx context.Context, cfg source.Config) error {
	var params Params
	if err := mapstructure.WeakDecode(cfg.Params, &params); err != nil {
		return fmt.Errorf("invalid sqlite params: %w", err)
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	s.Logger.Debug("opening sqlite", slog.String("path", path))

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// each connection to :memory: is a separate database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.DB = db
	s.Cfg = cfg

	names := make([]string, 0, len(params.Pragmas))
	for k := range params.Pragmas {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, k := range names {
		if !pragmaName.MatchString(k) {
			_ = s.Close()
			return fmt.Errorf("invalid pragma name %q", k)
		}
		if err := s.Exec(ctx, fmt.Sprintf("PRAGMA %s = %s", k, params.Pragmas[k])); err != nil {
			_ = s.Close()
			return fmt.Errorf("failed to apply pragma %s: %w", k, err)
		}
	}
	return nil
}

var _ source.Source = (*Source)(nil)
