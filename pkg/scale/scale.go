// Package scale builds position-lookup scales for the five LATCH axes.
//
// A Scale is an immutable mapping from an extracted value to a numeric
// position in an output range. Lookups never fail loudly: a value outside
// the domain reports (0, false). The only error the factory returns is an
// unknown axis, which is a configuration bug.
package scale

import (
	"time"

	"github.com/leapstack-labs/latchgrid/pkg/collation"
	"github.com/leapstack-labs/latchgrid/pkg/core"
)

// Range is the output interval positions are mapped into.
type Range struct {
	Min, Max float64
}

// Slots returns the range [0, n], so a banded scale with no padding maps
// its i-th value to slot i.
func Slots(n int) Range {
	return Range{Min: 0, Max: float64(n)}
}

// Span returns Max - Min.
func (r Range) Span() float64 {
	return r.Max - r.Min
}

// Mid returns the midpoint of the range.
func (r Range) Mid() float64 {
	return r.Min + r.Span()/2
}

// Options tune scale construction.
type Options struct {
	// Padding is the fraction of each band step left empty, in [0, 1).
	// Only banded scales use it.
	Padding float64

	// Invert reverses the output range.
	Invert bool

	// Nice rounds continuous domains outward to readable bounds.
	Nice bool

	// Now supplies the current time for the time-axis fallbacks.
	// Defaults to time.Now.
	Now func() time.Time

	// Comparator orders banded domains. Defaults to collation.Default().
	Comparator *collation.Comparator
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

func (o Options) comparator() *collation.Comparator {
	if o.Comparator != nil {
		return o.Comparator
	}
	return collation.Default()
}

func (o Options) padding() float64 {
	switch {
	case o.Padding < 0:
		return 0
	case o.Padding >= 1:
		return 0.99
	}
	return o.Padding
}

// Domain describes the input side of a scale. Banded scales fill Values;
// continuous scales fill Min and Max (time scales in unix milliseconds,
// with MinTime/MaxTime set as well).
type Domain struct {
	Values   []string
	Min, Max float64
	MinTime  time.Time
	MaxTime  time.Time
}

// Scale maps extracted values to positions.
type Scale interface {
	// Axis returns the LATCH axis this scale was built for.
	Axis() core.AxisType
	// Facet returns the field the scale reads.
	Facet() string
	// Domain returns a copy of the input domain.
	Domain() Domain
	// Range returns the output range.
	Range() Range
	// Bandwidth is the width of one band; 0 for continuous scales.
	Bandwidth() float64
	// Position maps an already-extracted value. Values outside the
	// domain, or of the wrong kind, report false.
	Position(v any) (float64, bool)
	// Value extracts the value this scale positions from a record.
	Value(r core.Record) any
	// PositionOf is Position(Value(r)).
	PositionOf(r core.Record) (float64, bool)
}

// New builds the scale for one axis mapping over records.
func New(axis core.AxisType, facet string, records []core.Record, rng Range, opts Options) (Scale, error) {
	switch axis {
	case core.AxisCategory:
		return newCategory(facet, records, rng, opts), nil
	case core.AxisAlphabet:
		return newAlphabet(facet, records, rng, opts), nil
	case core.AxisLocation:
		return newLocation(facet, records, rng, opts), nil
	case core.AxisTime:
		return newTime(facet, records, rng, opts), nil
	case core.AxisHierarchy:
		return newHierarchy(facet, records, rng, opts), nil
	default:
		return nil, &core.UnknownAxisError{Name: axis.String()}
	}
}

// ForMapping is New for an AxisMapping.
func ForMapping(m core.AxisMapping, records []core.Record, rng Range, opts Options) (Scale, error) {
	return New(m.Axis, m.Facet, records, rng, opts)
}
