package filter

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/leapstack-labs/latchgrid/pkg/core"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"golang.org/x/sync/errgroup"
)

// EvalError represents an error while evaluating a predicate for a record.
type EvalError struct {
	Expr     string
	RecordID string
	Message  string
}

func (e *EvalError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("record %s: error evaluating %q: %s", e.RecordID, e.Expr, e.Message)
	}
	return fmt.Sprintf("error evaluating %q: %s", e.Expr, e.Message)
}

// Predicate is a compiled Starlark boolean expression. It is safe for
// concurrent use.
type Predicate struct {
	expr string
	pool *threadPool
}

// Compile parses expr. An empty expression matches every record.
func Compile(expr string) (*Predicate, error) {
	expr = strings.TrimSpace(expr)
	if expr != "" {
		if _, err := syntax.ParseExpr("where", expr, 0); err != nil { //nolint:staticcheck // SA1019: legacy parse options are sufficient here
			return nil, &EvalError{Expr: expr, Message: err.Error()}
		}
	}
	return &Predicate{expr: expr, pool: newThreadPool(runtime.GOMAXPROCS(0))}, nil
}

// String returns the source expression.
func (p *Predicate) String() string { return p.expr }

// Match reports whether r satisfies the predicate, using Starlark truthiness.
func (p *Predicate) Match(r core.Record) (bool, error) {
	if p == nil || p.expr == "" {
		return true, nil
	}
	thread := p.pool.get("where")
	defer p.pool.put(thread)

	v, err := starlark.Eval(thread, "where", p.expr, Globals(r)) //nolint:staticcheck // SA1019: will migrate to EvalOptions later
	if err != nil {
		return false, &EvalError{Expr: p.expr, RecordID: r.ID, Message: err.Error()}
	}
	return bool(v.Truth()), nil
}

// Apply returns the records that match, preserving order. Records are
// evaluated concurrently; the first evaluation error aborts.
func (p *Predicate) Apply(ctx context.Context, records []core.Record) ([]core.Record, error) {
	if p == nil || p.expr == "" {
		return records, nil
	}
	keep := make([]bool, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ok, err := p.Match(records[i])
			keep[i] = ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]core.Record, 0, len(records))
	for i, r := range records {
		if keep[i] {
			out = append(out, r)
		}
	}
	return out, nil
}

// Globals builds the predeclared environment for r: every field whose name
// is a valid identifier, plus "record" and "id".
func Globals(r core.Record) starlark.StringDict {
	globals := make(starlark.StringDict, len(r.Fields)+2)
	dict := starlark.NewDict(len(r.Fields))
	for k, v := range r.Fields {
		sv := looseValue(v)
		_ = dict.SetKey(starlark.String(k), sv)
		if identifier(k) {
			globals[k] = sv
		}
	}
	globals["record"] = dict
	globals["id"] = starlark.String(r.ID)
	return globals
}

func identifier(s string) bool {
	if s == "" || s == "record" || s == "id" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	_, builtin := starlark.Universe[s]
	return !builtin
}
