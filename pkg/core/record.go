package core

import (
	"strconv"
	"strings"
)

// Record is one opaque row from the data source.
// Fields hold whatever the source produced; extraction never assumes a shape.
type Record struct {
	ID     string
	Fields map[string]any
}

// NewRecord builds a record, copying fields so callers can reuse their map.
func NewRecord(id string, fields map[string]any) Record {
	cp := make(map[string]any, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Record{ID: id, Fields: cp}
}

// Get returns a field value by exact name, then by case-insensitive name.
func (r Record) Get(name string) (any, bool) {
	if r.Fields == nil || name == "" {
		return nil, false
	}
	if v, ok := r.Fields[name]; ok {
		return v, true
	}
	for k, v := range r.Fields {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// NameFields are consulted, in order, for a record's display name.
var NameFields = []string{"name", "title", "label"}

// DisplayName returns the record's human name, falling back to its ID.
func (r Record) DisplayName() string {
	for _, f := range NameFields {
		if v, ok := r.Get(f); ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return r.ID
}

// RecordIndex maps record IDs to records.
type RecordIndex map[string]Record

// UniqueIDs returns records whose IDs are pairwise distinct. The first
// record keeps a repeated ID; later ones get "#2", "#3" and so on, skipping
// suffixes already taken. The input is returned as is when nothing repeats.
func UniqueIDs(records []Record) []Record {
	taken := make(map[string]bool, len(records))
	dup := false
	for _, r := range records {
		if taken[r.ID] {
			dup = true
		}
		taken[r.ID] = true
	}
	if !dup {
		return records
	}

	out := make([]Record, len(records))
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		if seen[r.ID] {
			base := r.ID
			for n := 2; ; n++ {
				id := base + "#" + strconv.Itoa(n)
				if !taken[id] {
					r.ID = id
					taken[id] = true
					break
				}
			}
		}
		seen[r.ID] = true
		out[i] = r
	}
	return out
}

// IndexRecords builds a RecordIndex. Later duplicates win; run UniqueIDs
// first when the source does not guarantee distinct IDs.
func IndexRecords(records []Record) RecordIndex {
	idx := make(RecordIndex, len(records))
	for _, r := range records {
		idx[r.ID] = r
	}
	return idx
}
