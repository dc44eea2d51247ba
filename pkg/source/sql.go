package source

import (
	"fmt"
	"strconv"
	"strings"
)

// QuoteIdent quotes a possibly schema-qualified identifier with ANSI double
// quotes.
func QuoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

// BuildSQL renders q as a SELECT over table using '?' placeholders. The
// Where predicate is not part of the SQL; callers evaluate it in-process.
func BuildSQL(table string, q Query) (string, []any, error) {
	if strings.TrimSpace(table) == "" {
		return "", nil, fmt.Errorf("no table specified")
	}
	q, err := q.Normalize()
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	var args []any

	b.WriteString("SELECT ")
	switch {
	case len(q.GroupBy) > 0:
		for _, f := range q.GroupBy {
			b.WriteString(QuoteIdent(f))
			b.WriteString(", ")
		}
		b.WriteString("COUNT(*) AS ")
		b.WriteString(QuoteIdent(CountField))
	case len(q.Fields) > 0:
		quoted := make([]string, len(q.Fields))
		for i, f := range q.Fields {
			quoted[i] = QuoteIdent(f)
		}
		b.WriteString(strings.Join(quoted, ", "))
	default:
		b.WriteString("*")
	}
	b.WriteString(" FROM ")
	b.WriteString(QuoteIdent(table))

	if len(q.Filters) > 0 {
		conds := make([]string, len(q.Filters))
		for i, f := range q.Filters {
			col := QuoteIdent(f.Field)
			switch f.Op {
			case OpIn:
				values, _ := listValues(f.Value)
				if len(values) == 0 {
					conds[i] = "1 = 0"
					continue
				}
				marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
				conds[i] = col + " IN (" + marks + ")"
				args = append(args, values...)
			case OpLike:
				conds[i] = col + " LIKE ?"
				args = append(args, f.Value)
			default:
				conds[i] = col + " " + string(f.Op) + " ?"
				args = append(args, f.Value)
			}
		}
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	if len(q.GroupBy) > 0 {
		quoted := make([]string, len(q.GroupBy))
		for i, f := range q.GroupBy {
			quoted[i] = QuoteIdent(f)
		}
		keys := strings.Join(quoted, ", ")
		b.WriteString(" GROUP BY " + keys + " ORDER BY " + keys)
	}

	if q.Limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}
	return b.String(), args, nil
}
