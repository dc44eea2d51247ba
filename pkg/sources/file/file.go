// Package file provides a data source over local CSV, TSV, Excel, JSON and
// YAML files. The file is re-read on every query so edits are picked up.
package file

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/leapstack-labs/latchgrid/pkg/source"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

func init() {
	source.Register("file", func(l *slog.Logger) source.Source { return New(l) })
}

// Format is a supported file format.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// DetectFormat picks the format from an explicit name or the file extension.
func DetectFormat(path, explicit string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(explicit))
	if name == "" {
		name = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch name {
	case "csv":
		return FormatCSV, nil
	case "tsv", "tab":
		return FormatTSV, nil
	case "xlsx", "xlsm", "excel":
		return FormatXLSX, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported file format %q for %s", name, path)
}

// Source reads records from a file.
type Source struct {
	mu     sync.Mutex
	logger *slog.Logger
	cfg    source.Config
	path   string
	format Format
}

// New creates a file source. If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Source{logger: logger}
}

// Open checks that cfg.Path exists and has a supported format.
// Options: "format" overrides detection, "delimiter" sets the CSV separator.
func (s *Source) Open(_ context.Context, cfg source.Config) error {
	if cfg.Path == "" {
		return fmt.Errorf("file source requires a path")
	}
	format, err := DetectFormat(cfg.Path, cfg.Option("format", ""))
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return fmt.Errorf("failed to open data file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.path = cfg.Path
	s.format = format
	s.logger.Debug("file source opened", slog.String("path", cfg.Path), slog.String("format", string(format)))
	return nil
}

// Close forgets the file.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = ""
	return nil
}

// WatchPaths returns the backing file.
func (s *Source) WatchPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return nil
	}
	return []string{s.path}
}

// Query reads the file and answers q in-process. For Excel files q.Table
// (or Config.Table) names the sheet; other formats ignore it.
func (s *Source) Query(ctx context.Context, q source.Query) ([]core.Record, error) {
	s.mu.Lock()
	path, format, cfg := s.path, s.format, s.cfg
	s.mu.Unlock()
	if path == "" {
		return nil, fmt.Errorf("file source not opened")
	}

	table := q.Table
	if table == "" {
		table = cfg.Table
	}
	rows, err := read(path, format, table, cfg.Option("delimiter", ""))
	if err != nil {
		return nil, err
	}

	records := make([]core.Record, len(rows))
	for i, row := range rows {
		records[i] = source.NewRecord(i, row)
	}
	return source.Apply(ctx, records, q)
}

// Tables returns the sheet names of an Excel file, or the file's base name.
func (s *Source) Tables(_ context.Context) ([]string, error) {
	s.mu.Lock()
	path, format := s.path, s.format
	s.mu.Unlock()
	if path == "" {
		return nil, fmt.Errorf("file source not opened")
	}
	if format == FormatXLSX {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open Excel file: %w", err)
		}
		defer func() { _ = f.Close() }()
		return f.GetSheetList(), nil
	}
	return []string{strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}, nil
}

func read(path string, format Format, sheet, delimiter string) ([]map[string]any, error) {
	switch format {
	case FormatXLSX:
		return readExcel(path, sheet)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}
	switch format {
	case FormatCSV, FormatTSV:
		sep := ','
		if format == FormatTSV {
			sep = '\t'
		}
		if delimiter != "" {
			sep = []rune(delimiter)[0]
		}
		return readDelimited(bytes.NewReader(data), sep)
	case FormatJSON:
		return readJSON(data)
	case FormatYAML:
		var rows []map[string]any
		if err := yaml.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("failed to parse YAML records: %w", err)
		}
		return rows, nil
	}
	return nil, fmt.Errorf("unsupported file format %q", format)
}

func readDelimited(r io.Reader, sep rune) ([]map[string]any, error) {
	reader := csv.NewReader(r)
	reader.Comma = sep
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return tabulate(rows), nil
}

func readExcel(path, sheet string) ([]map[string]any, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	return tabulate(rows), nil
}

// tabulate turns a header row plus data rows into typed row maps. Short rows
// leave trailing fields unset.
func tabulate(rows [][]string) []map[string]any {
	if len(rows) == 0 {
		return nil
	}
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
		if headers[i] == "" {
			headers[i] = fmt.Sprintf("column_%d", i+1)
		}
	}
	out := make([]map[string]any, 0, len(rows)-1)
	for _, row := range rows[1:] {
		m := make(map[string]any, len(headers))
		for i, h := range headers {
			if i < len(row) {
				if v := source.Infer(strings.TrimSpace(row[i])); v != nil {
					m[h] = v
				}
			}
		}
		out = append(out, m)
	}
	return out
}

// readJSON accepts an array of objects or an object whose "records" or
// "data" member is one.
func readJSON(data []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON records: %w", err)
	}
	if obj, ok := raw.(map[string]any); ok {
		for _, key := range []string{"records", "data"} {
			if v, ok := obj[key]; ok {
				raw = v
				break
			}
		}
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("JSON records must be an array of objects")
	}
	out := make([]map[string]any, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("JSON record %d is %T, not an object", i, item)
		}
		out = append(out, numbers(obj).(map[string]any))
	}
	return out, nil
}

// numbers replaces json.Number values with int64 or float64.
func numbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, x := range t {
			t[k] = numbers(x)
		}
		return t
	case []any:
		for i, x := range t {
			t[i] = numbers(x)
		}
		return t
	}
	return v
}

var (
	_ source.Source    = (*Source)(nil)
	_ source.Watchable = (*Source)(nil)
)
