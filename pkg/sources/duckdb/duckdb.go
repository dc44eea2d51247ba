// Package duckdb provides a DuckDB data source.
//
// Import it with a blank identifier to register the "duckdb" source:
//
//	import _ "github.com/leapstack-labs/latchgrid/pkg/sources/duckdb"
package duckdb

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/jmoiron/sqlx"
	"github.com/leapstack-labs/latchgrid/pkg/source"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

func init() {
	source.Register("duckdb", func(l *slog.Logger) source.Source { return New(l) })
}

const tablesQuery = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = current_schema()
	ORDER BY table_name`

// Params holds DuckDB-specific configuration, decoded from Config.Params.
type Params struct {
	// Extensions to load (e.g., "json", "parquet", "spatial").
	Extensions []string `mapstructure:"extensions"`

	// Settings to apply at session level (e.g., memory_limit, threads).
	Settings map[string]string `mapstructure:"settings"`

	// Files maps view names to data files read with DuckDB's auto readers.
	Files map[string]string `mapstructure:"files"`
}

// ParseParams decodes raw params. Nil yields an empty struct.
func ParseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if len(raw) == 0 {
		return p, nil
	}
	if err := mapstructure.WeakDecode(raw, p); err != nil {
		return nil, fmt.Errorf("invalid duckdb params: %w", err)
	}
	return p, nil
}

// Source implements source.Source for DuckDB.
type Source struct {
	source.BaseSQL
}

// New creates a DuckDB source. If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Source{BaseSQL: source.BaseSQL{Logger: logger, TablesQuery: tablesQuery}}
}

// Open connects to DuckDB. An empty path opens an in-memory database.
func (s *Source) Open(ctx context.Context, cfg source.Config) error {
	params, err := ParseParams(cfg.Params)
	if err != nil {
		return err
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	s.Logger.Debug("opening duckdb", slog.String("path", path))

	db, err := sqlx.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	s.DB = db
	s.Cfg = cfg
	if err := s.apply(ctx, params); err != nil {
		_ = s.Close()
		return err
	}
	return nil
}

func (s *Source) apply(ctx context.Context, p *Params) error {
	for _, ext := range p.Extensions {
		if err := s.Exec(ctx, "LOAD "+source.QuoteIdent(ext)); err != nil {
			return fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
	}
	for _, k := range sortedKeys(p.Settings) {
		if err := s.Exec(ctx, fmt.Sprintf("SET %s = '%s'", source.QuoteIdent(k), escape(p.Settings[k]))); err != nil {
			return fmt.Errorf("failed to apply setting %s: %w", k, err)
		}
	}
	for _, name := range sortedKeys(p.Files) {
		if err := s.LoadFile(ctx, name, p.Files[name]); err != nil {
			return err
		}
	}
	return nil
}

// LoadFile exposes a data file as a view. The reader is picked from the
// file extension: csv/tsv, parquet or json.
func (s *Source) LoadFile(ctx context.Context, view, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	var reader string
	switch strings.ToLower(filepath.Ext(abs)) {
	case ".csv", ".tsv":
		reader = "read_csv_auto"
	case ".parquet":
		reader = "read_parquet"
	case ".json", ".ndjson":
		reader = "read_json_auto"
	default:
		return fmt.Errorf("unsupported data file %s", path)
	}
	query := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s('%s')", source.QuoteIdent(view), reader, escape(abs))
	if err := s.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

var _ source.Source = (*Source)(nil)
