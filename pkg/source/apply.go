package source

import (
	"cmp"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/latchgrid/internal/filter"
	"github.com/leapstack-labs/latchgrid/pkg/core"
)

// Apply answers q over records held in memory: filters, the Where
// predicate, grouping, projection and limit, in that order.
func Apply(ctx context.Context, records []core.Record, q Query) ([]core.Record, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	out := records
	if len(q.Filters) > 0 {
		out = make([]core.Record, 0, len(records))
		for _, r := range records {
			ok, err := matchAll(r, q.Filters)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, r)
			}
		}
	}

	if q.Where != "" {
		pred, err := filter.Compile(q.Where)
		if err != nil {
			return nil, err
		}
		if out, err = pred.Apply(ctx, out); err != nil {
			return nil, err
		}
	}

	switch {
	case len(q.GroupBy) > 0:
		out = group(out, q.GroupBy)
	case q.Fields != nil:
		out = project(out, q.Fields)
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matchAll(r core.Record, filters []Filter) (bool, error) {
	for _, f := range filters {
		ok, err := match(r, f)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func match(r core.Record, f Filter) (bool, error) {
	v, _ := r.Get(f.Field)
	switch f.Op {
	case OpIn:
		values, _ := listValues(f.Value)
		for _, want := range values {
			if compare(v, want) == 0 {
				return true, nil
			}
		}
		return false, nil
	case OpLike:
		re, err := likePattern(fmt.Sprint(f.Value))
		if err != nil {
			return false, err
		}
		return v != nil && re.MatchString(text(v)), nil
	}

	// SQL semantics: NULL compares false.
	if v == nil || f.Value == nil {
		return false, nil
	}
	c := compare(v, f.Value)
	switch f.Op {
	case OpEq:
		return c == 0, nil
	case OpNe:
		return c != 0, nil
	case OpLt:
		return c < 0, nil
	case OpLe:
		return c <= 0, nil
	case OpGt:
		return c > 0, nil
	case OpGe:
		return c >= 0, nil
	}
	return false, fmt.Errorf("unknown filter operator %q", f.Op)
}

// compare orders two values numerically when both are numbers and by text
// otherwise.
func compare(a, b any) int {
	x, okA := number(a)
	y, okB := number(b)
	if okA && okB {
		return cmp.Compare(x, y)
	}
	return strings.Compare(text(a), text(b))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

func listValues(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

// likePattern translates a SQL LIKE pattern into an anchored regexp.
func likePattern(p string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range p {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// group collapses records by the group fields. Groups are ordered by their
// key values and numbered from 0.
func group(records []core.Record, fields []string) []core.Record {
	type bucket struct {
		key    []string
		fields map[string]any
		count  int64
	}
	byKey := make(map[string]*bucket)
	for _, r := range records {
		key := make([]string, len(fields))
		row := make(map[string]any, len(fields)+1)
		for i, f := range fields {
			v, _ := r.Get(f)
			key[i] = text(v)
			row[f] = v
		}
		id := strings.Join(key, "\x1f")
		b, ok := byKey[id]
		if !ok {
			b = &bucket{key: key, fields: row}
			byKey[id] = b
		}
		b.count++
	}

	buckets := make([]*bucket, 0, len(byKey))
	for _, b := range byKey {
		buckets = append(buckets, b)
	}
	slices.SortFunc(buckets, func(a, b *bucket) int {
		return slices.Compare(a.key, b.key)
	})

	out := make([]core.Record, len(buckets))
	for i, b := range buckets {
		b.fields[CountField] = b.count
		out[i] = core.NewRecord(strconv.Itoa(i), b.fields)
	}
	return out
}

func project(records []core.Record, fields []string) []core.Record {
	out := make([]core.Record, len(records))
	for i, r := range records {
		row := make(map[string]any, len(fields))
		for _, f := range fields {
			if v, ok := r.Get(f); ok {
				row[f] = v
			}
		}
		out[i] = core.Record{ID: r.ID, Fields: row}
	}
	return out
}
