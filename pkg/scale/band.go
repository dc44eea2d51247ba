package scale

import (
	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/leapstack-labs/latchgrid/pkg/extract"
)

// band is a discrete scale placing sorted domain values in evenly spaced
// bands. Category, alphabet and location scales are bands that differ only
// in how they extract and key values.
type band struct {
	axis    core.AxisType
	facet   string
	values  []string
	index   map[string]int
	rng     Range
	invert  bool
	step    float64
	start   float64
	width   float64
	extract func(core.Record) string
	key     func(any) (string, bool)
}

func newBand(axis core.AxisType, facet string, raw []string, rng Range, opts Options) *band {
	values := opts.comparator().SortedUnique(raw)
	b := &band{
		axis:   axis,
		facet:  facet,
		values: values,
		index:  make(map[string]int, len(values)),
		rng:    rng,
		invert: opts.Invert,
		key:    stringKey,
	}
	for i, v := range values {
		b.index[v] = i
	}

	n := float64(len(values))
	p := opts.padding()
	if n > 0 {
		b.step = rng.Span() / (n + p)
		b.start = rng.Min + b.step*p
		b.width = b.step * (1 - p)
	}
	return b
}

func newCategory(facet string, records []core.Record, rng Range, opts Options) *band {
	var raw []string
	for _, r := range records {
		raw = append(raw, extract.Categories(r, facet)...)
	}
	b := newBand(core.AxisCategory, facet, raw, rng, opts)
	b.extract = func(r core.Record) string { return extract.CategoryLabel(r, facet) }
	return b
}

func newAlphabet(facet string, records []core.Record, rng Range, opts Options) *band {
	raw := make([]string, 0, len(records))
	for _, r := range records {
		raw = append(raw, extract.AlphabetLabel(r, facet))
	}
	b := newBand(core.AxisAlphabet, facet, raw, rng, opts)
	b.extract = func(r core.Record) string { return extract.AlphabetLabel(r, facet) }
	return b
}

func newLocation(facet string, records []core.Record, rng Range, opts Options) *band {
	raw := make([]string, 0, len(records))
	for _, r := range records {
		raw = append(raw, extract.LocationLabel(r, facet))
	}
	b := newBand(core.AxisLocation, facet, raw, rng, opts)
	b.extract = func(r core.Record) string { return extract.LocationLabel(r, facet) }
	b.key = locationKey
	return b
}

func stringKey(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// locationKey accepts names and coordinate pairs, canonicalising pairs the
// same way the domain was built.
func locationKey(v any) (string, bool) {
	if s, ok := v.(string); ok {
		return s, true
	}
	probe := core.Record{Fields: map[string]any{"location": v}}
	return extract.Location(probe, "location")
}

func (b *band) Axis() core.AxisType { return b.axis }
func (b *band) Facet() string       { return b.facet }
func (b *band) Range() Range        { return b.rng }
func (b *band) Bandwidth() float64  { return b.width }

func (b *band) Domain() Domain {
	return Domain{Values: append([]string(nil), b.values...)}
}

func (b *band) Position(v any) (float64, bool) {
	k, ok := b.key(v)
	if !ok {
		return 0, false
	}
	i, ok := b.index[k]
	if !ok {
		return 0, false
	}
	if b.invert {
		i = len(b.values) - 1 - i
	}
	return b.start + float64(i)*b.step, true
}

func (b *band) Value(r core.Record) any {
	return b.extract(r)
}

func (b *band) PositionOf(r core.Record) (float64, bool) {
	return b.Position(b.extract(r))
}
