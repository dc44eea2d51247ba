// Package postgres provides a PostgreSQL data source.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/leapstack-labs/latchgrid/pkg/source"
)

func init() {
	source.Register("postgres", func(l *slog.Logger) source.Source { return New(l) })
}

const tablesQuery = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = current_schema()
	ORDER BY table_name`

// Source implements source.Source for PostgreSQL.
type Source struct {
	source.BaseSQL
}

// New creates a PostgreSQL source. If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Source{BaseSQL: source.BaseSQL{Logger: logger, TablesQuery: tablesQuery}}
}

// Open connects to PostgreSQL through pgx's database/sql driver.
func (s *Source) Open(ctx context.Context, cfg source.Config) error {
	connCfg, err := pgx.ParseConfig(buildDSN(cfg))
	if err != nil {
		return fmt.Errorf("invalid postgres connection settings: %w", err)
	}

	s.Logger.Debug("connecting to postgres", slog.String("host", connCfg.Host), slog.String("database", connCfg.Database))

	db := sqlx.NewDb(stdlib.OpenDB(*connCfg), "pgx")
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	s.DB = db
	s.Cfg = cfg
	return nil
}

// buildDSN returns cfg.DSN, or a key=value connection string assembled
// from the discrete settings.
func buildDSN(cfg source.Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}

	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	dsn := fmt.Sprintf("host=%s port=%d sslmode=%s", host, port, cfg.Option("sslmode", "disable"))
	if cfg.Database != "" {
		dsn += fmt.Sprintf(" dbname=%s", cfg.Database)
	}
	if cfg.User != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.User)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}
	return dsn
}

var _ source.Source = (*Source)(nil)
