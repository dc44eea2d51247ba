package scale

import (
	"time"

	mscale "github.com/aclements/go-moremath/scale"
	"github.com/leapstack-labs/latchgrid/pkg/core"
	"github.com/leapstack-labs/latchgrid/pkg/extract"
	"gonum.org/v1/gonum/floats"
)

// defaultTickCount bounds the number of ticks used when rounding a domain.
const defaultTickCount = 10

// continuous maps a numeric domain linearly onto the range. Time scales
// are continuous scales over unix milliseconds.
type continuous struct {
	axis    core.AxisType
	facet   string
	lin     mscale.Linear
	rng     Range
	invert  bool
	isTime  bool
	extract func(core.Record) any
}

func newHierarchy(facet string, records []core.Record, rng Range, opts Options) *continuous {
	xs := make([]float64, 0, len(records))
	for _, r := range records {
		if f, ok := extract.Ordinal(r, facet); ok {
			xs = append(xs, f)
		}
	}
	lo, hi := 0.0, 0.0
	if len(xs) > 0 {
		lo, hi = floats.Min(xs), floats.Max(xs)
	}

	lin := mscale.Linear{Min: lo, Max: hi, Base: 10}
	if opts.Nice && lo != hi {
		lin.Nice(mscale.TickOptions{Max: defaultTickCount})
	}
	return &continuous{
		axis:   core.AxisHierarchy,
		facet:  facet,
		lin:    lin,
		rng:    rng,
		invert: opts.Invert,
		extract: func(r core.Record) any {
			return extract.OrdinalOrZero(r, facet)
		},
	}
}

func newTime(facet string, records []core.Record, rng Range, opts Options) *continuous {
	now := opts.now()
	xs := make([]float64, 0, len(records))
	for _, r := range records {
		if t, ok := extract.Time(r, facet); ok {
			xs = append(xs, float64(t.UnixMilli()))
		}
	}
	lo, hi := float64(now.UnixMilli()), float64(now.UnixMilli())
	if len(xs) > 0 {
		lo, hi = floats.Min(xs), floats.Max(xs)
	}
	if opts.Nice {
		lo, hi = niceDays(lo, hi)
	}

	return &continuous{
		axis:   core.AxisTime,
		facet:  facet,
		lin:    mscale.Linear{Min: lo, Max: hi, Base: 10},
		rng:    rng,
		invert: opts.Invert,
		isTime: true,
		extract: func(r core.Record) any {
			return extract.TimeOr(r, facet, now)
		},
	}
}

// niceDays widens a millisecond interval to whole UTC days.
func niceDays(lo, hi float64) (float64, float64) {
	start := time.UnixMilli(int64(lo)).UTC().Truncate(24 * time.Hour)
	end := time.UnixMilli(int64(hi)).UTC()
	if t := end.Truncate(24 * time.Hour); !t.Equal(end) {
		end = t.Add(24 * time.Hour)
	}
	return float64(start.UnixMilli()), float64(end.UnixMilli())
}

func (c *continuous) Axis() core.AxisType { return c.axis }
func (c *continuous) Facet() string       { return c.facet }
func (c *continuous) Range() Range        { return c.rng }
func (c *continuous) Bandwidth() float64  { return 0 }

func (c *continuous) Domain() Domain {
	d := Domain{Min: c.lin.Min, Max: c.lin.Max}
	if c.isTime {
		d.MinTime = time.UnixMilli(int64(c.lin.Min)).UTC()
		d.MaxTime = time.UnixMilli(int64(c.lin.Max)).UTC()
	}
	return d
}

// Ticks returns up to max readable tick values inside the domain.
func (c *continuous) Ticks(max int) []float64 {
	if c.lin.Min == c.lin.Max || max < 1 {
		return []float64{c.lin.Min}
	}
	major, _ := c.lin.Ticks(mscale.TickOptions{Max: max})
	return major
}

func (c *continuous) Position(v any) (float64, bool) {
	x, ok := c.number(v)
	if !ok {
		return 0, false
	}
	// A degenerate domain has nothing to interpolate: every input lands
	// on the middle of the range.
	if c.lin.Min == c.lin.Max {
		return c.rng.Mid(), true
	}
	if x < c.lin.Min || x > c.lin.Max {
		return 0, false
	}
	t := c.lin.Map(x)
	if c.invert {
		return c.rng.Max - t*c.rng.Span(), true
	}
	return c.rng.Min + t*c.rng.Span(), true
}

func (c *continuous) number(v any) (float64, bool) {
	if c.isTime {
		t, ok := extract.ParseTime(v)
		if !ok {
			return 0, false
		}
		return float64(t.UnixMilli()), true
	}
	probe := core.Record{Fields: map[string]any{"v": v}}
	return extract.Ordinal(probe, "v")
}

func (c *continuous) Value(r core.Record) any {
	return c.extract(r)
}

func (c *continuous) PositionOf(r core.Record) (float64, bool) {
	return c.Position(c.extract(r))
}

// Ticker is implemented by continuous scales.
type Ticker interface {
	Ticks(max int) []float64
}
