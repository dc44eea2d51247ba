// Package memory provides an in-process data source. Records are loaded
// programmatically or inline from configuration.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/leapstack-labs/latchgrid/pkg/source"
)

func init() {
	source.Register("memory", func(l *slog.Logger) source.Source { return New(l) })
}

// DefaultTable is used when neither the query nor the config names one.
const DefaultTable = "records"

// Params holds inline records keyed by table name.
type Params struct {
	Tables map[string][]map[string]any `mapstructure:"tables"`
}

// Source keeps tables of records in memory.
type Source struct {
	mu     sync.RWMutex
	logger *slog.Logger
	table  string
	tables map[string][]core.Record
}

// New creates an empty memory source. If logger is nil, a discard logger
// is used.
func New(logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Source{logger: logger, table: DefaultTable, tables: make(map[string][]core.Record)}
}

// Open loads inline tables from cfg.Params.
func (s *Source) Open(_ context.Context, cfg source.Config) error {
	var params Params
	if err := mapstructure.WeakDecode(cfg.Params, &params); err != nil {
		return fmt.Errorf("invalid memory params: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.Table != "" {
		s.table = cfg.Table
	}
	for name, rows := range params.Tables {
		records := make([]core.Record, len(rows))
		for i, row := range rows {
			records[i] = source.NewRecord(i, row)
		}
		s.tables[name] = records
	}
	s.logger.Debug("memory source opened", slog.Int("tables", len(s.tables)))
	return nil
}

// Load replaces a table. An empty name uses the default table.
func (s *Source) Load(table string, records []core.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if table == "" {
		table = s.table
	}
	s.tables[table] = slices.Clone(records)
}

// Close drops every table.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.tables)
	return nil
}

// Query answers q over a snapshot of the table.
func (s *Source) Query(ctx context.Context, q source.Query) ([]core.Record, error) {
	s.mu.RLock()
	table := q.Table
	if table == "" {
		table = s.table
	}
	records, ok := s.tables[table]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("table %s not found", table)
	}
	return source.Apply(ctx, slices.Clone(records), q)
}

// Tables lists the loaded tables, sorted.
func (s *Source) Tables(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

var _ source.Source = (*Source)(nil)
