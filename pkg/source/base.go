package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/leapstack-labs/latchgrid/pkg/core"
)

// BaseSQL provides the query path shared by database-backed sources.
// Embed it in concrete sources; they only need to open DB.
type BaseSQL struct {
	DB     *sqlx.DB
	Cfg    Config
	Logger *slog.Logger
	// TablesQuery returns one text column of table names.
	TablesQuery string
}

func (b *BaseSQL) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.Logger
}

// Close closes the database connection.
func (b *BaseSQL) Close() error {
	if b.DB != nil {
		b.logger().Debug("closing database connection")
		err := b.DB.Close()
		b.DB = nil
		return err
	}
	return nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQL) IsConnected() bool {
	return b.DB != nil
}

// Exec executes a SQL statement that doesn't return rows.
func (b *BaseSQL) Exec(ctx context.Context, sqlStr string, args ...any) error {
	if b.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	if _, err := b.DB.ExecContext(ctx, b.DB.Rebind(sqlStr), args...); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// Rows runs a query and returns each row as a column map. Byte slices are
// returned as strings.
func (b *BaseSQL) Rows(ctx context.Context, sqlStr string, args ...any) ([]map[string]any, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	rows, err := b.DB.QueryxContext(ctx, b.DB.Rebind(sqlStr), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []map[string]any
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for k, v := range row {
			if raw, ok := v.([]byte); ok {
				row[k] = string(raw)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// Query answers q in SQL. When q has a Where predicate, only Filters are
// pushed down; the predicate, grouping, projection and limit then run
// in-process.
func (b *BaseSQL) Query(ctx context.Context, q Query) ([]core.Record, error) {
	table := q.Table
	if table == "" {
		table = b.Cfg.Table
	}

	pushed := q
	if q.Where != "" {
		pushed = Query{Filters: q.Filters}
	}
	sqlStr, args, err := BuildSQL(table, pushed)
	if err != nil {
		return nil, err
	}
	b.logger().Debug("querying source", slog.String("sql", sqlStr), slog.Int("args", len(args)))

	rows, err := b.Rows(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	records := make([]core.Record, len(rows))
	for i, row := range rows {
		records[i] = NewRecord(i, row)
	}

	if q.Where == "" {
		return records, nil
	}
	rest := q
	rest.Filters = nil
	return Apply(ctx, records, rest)
}

// Tables lists tables using TablesQuery.
func (b *BaseSQL) Tables(ctx context.Context) ([]string, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	if b.TablesQuery == "" {
		return nil, fmt.Errorf("listing tables is not supported")
	}
	var names []string
	if err := b.DB.SelectContext(ctx, &names, b.TablesQuery); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	for i, n := range names {
		names[i] = strings.TrimSpace(n)
	}
	return names, nil
}
