// Package source defines the data-source contract records are loaded
// through, a registry of source implementations, and the shared machinery
// for answering declarative queries.
//
// Concrete sources live in pkg/sources/ subdirectories and register
// themselves in init().
package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/latchgrid/pkg/core"
)

// Config selects and configures a source.
type Config struct {
	// Type is the registered source name ("duckdb", "sqlite", "postgres", "file", "memory").
	Type string `koanf:"type"`
	// Path is a database or data file path.
	Path string `koanf:"path"`
	// DSN is a full connection string; it overrides Host/Port/Database/User/Password.
	DSN      string `koanf:"dsn"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	// Table is the default table, sheet or collection queries read from.
	Table string `koanf:"table"`
	// Options are flat string settings (sslmode, format, delimiter, ...).
	Options map[string]string `koanf:"options"`
	// Params are source-specific structured settings, decoded by each source.
	Params map[string]any `koanf:"params"`
}

// Option returns Options[key] or def.
func (c Config) Option(key, def string) string {
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// Source yields records for declarative queries.
type Source interface {
	// Open connects the source using cfg.
	Open(ctx context.Context, cfg Config) error

	// Close releases resources. Closing an unopened source is a no-op.
	Close() error

	// Query returns the records selected by q.
	Query(ctx context.Context, q Query) ([]core.Record, error)

	// Tables lists what Query.Table may name.
	Tables(ctx context.Context) ([]string, error)
}

// Watchable is implemented by sources backed by local files.
type Watchable interface {
	WatchPaths() []string
}

// Op is a filter comparison.
type Op string

// Filter operations.
const (
	OpEq   Op = "="
	OpNe   Op = "!="
	OpLt   Op = "<"
	OpLe   Op = "<="
	OpGt   Op = ">"
	OpGe   Op = ">="
	OpIn   Op = "in"
	OpLike Op = "like"
)

// ParseOp normalises an operator name.
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "=", "==", "eq":
		return OpEq, nil
	case "!=", "<>", "ne":
		return OpNe, nil
	case "<", "lt":
		return OpLt, nil
	case "<=", "le":
		return OpLe, nil
	case ">", "gt":
		return OpGt, nil
	case ">=", "ge":
		return OpGe, nil
	case "in":
		return OpIn, nil
	case "like":
		return OpLike, nil
	default:
		return "", fmt.Errorf("unknown filter operator %q", s)
	}
}

// Filter restricts a query to records whose Field compares to Value.
// For OpIn, Value is a slice.
type Filter struct {
	Field string `koanf:"field"`
	Op    Op     `koanf:"op"`
	Value any    `koanf:"value"`
}

// ParseFilter parses "field<op>value", e.g. "status=done" or "points>=3".
// "field in a,b,c" and "field like pat%" use spaced keywords.
func ParseFilter(s string) (Filter, error) {
	for _, kw := range []Op{OpIn, OpLike} {
		sep := " " + string(kw) + " "
		if i := strings.Index(strings.ToLower(s), sep); i > 0 {
			field := strings.TrimSpace(s[:i])
			raw := strings.TrimSpace(s[i+len(sep):])
			if kw == OpIn {
				var values []any
				for _, v := range strings.Split(raw, ",") {
					values = append(values, Infer(strings.TrimSpace(v)))
				}
				return Filter{Field: field, Op: OpIn, Value: values}, nil
			}
			return Filter{Field: field, Op: OpLike, Value: raw}, nil
		}
	}
	for _, op := range []string{"!=", "<=", ">=", "==", "=", "<", ">"} {
		if i := strings.Index(s, op); i > 0 {
			parsed, err := ParseOp(op)
			if err != nil {
				return Filter{}, err
			}
			return Filter{
				Field: strings.TrimSpace(s[:i]),
				Op:    parsed,
				Value: Infer(strings.TrimSpace(s[i+len(op):])),
			}, nil
		}
	}
	return Filter{}, fmt.Errorf("invalid filter %q: expected field<op>value", s)
}

// Query is a declarative request for records.
type Query struct {
	// Table overrides Config.Table.
	Table string
	// Fields projects records onto these fields; nil keeps every field.
	Fields []string
	// Filters are ANDed together.
	Filters []Filter
	// Where is a Starlark predicate evaluated in-process after Filters.
	Where string
	// GroupBy returns one record per distinct combination of these fields,
	// carrying the group fields and a CountField.
	GroupBy []string
	// Limit caps the number of records; 0 means no limit.
	Limit int
}

// CountField holds the group size in grouped results.
const CountField = "count"

// IDField is read for record ids when present.
const IDField = "id"

// Validate checks operators and the limit.
func (q Query) Validate() error {
	_, err := q.Normalize()
	return err
}

// Normalize validates q and returns a copy with canonical operators.
func (q Query) Normalize() (Query, error) {
	if q.Limit < 0 {
		return q, fmt.Errorf("limit must be >= 0, got %d", q.Limit)
	}
	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		if strings.TrimSpace(f.Field) == "" {
			return q, fmt.Errorf("filter has no field")
		}
		op, err := ParseOp(string(f.Op))
		if err != nil {
			return q, err
		}
		f.Op = op
		if op == OpIn {
			if _, ok := listValues(f.Value); !ok {
				return q, fmt.Errorf("filter %s in: value must be a list, got %T", f.Field, f.Value)
			}
		}
		filters[i] = f
	}
	if q.Filters != nil {
		q.Filters = filters
	}
	return q, nil
}

// NewRecord builds a record from a row, taking the id from IDField when
// present and the row index otherwise.
func NewRecord(index int, row map[string]any) core.Record {
	id := strconv.Itoa(index)
	if v, ok := row[IDField]; ok && v != nil {
		id = fmt.Sprint(v)
	}
	return core.NewRecord(id, row)
}

// Infer converts a raw text cell to int64, float64 or bool where it parses
// as one. Empty cells become nil; everything else stays a string.
func Infer(s string) any {
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
