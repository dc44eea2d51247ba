// Package density selects a rendering strategy from the Janus density state
// and turns aggregated grid cells into identity-keyed visual cells.
package density

import (
	"math"
	"strconv"
	"strings"

	"github.com/leapstack-labs/latchgrid/pkg/core"
)

// Mode is a rendering strategy.
type Mode int

// Rendering modes.
const (
	// ModeGrid draws discrete rectangles.
	ModeGrid Mode = iota
	// ModeMatrix draws sized circular markers.
	ModeMatrix
	// ModeHybrid splits cells by aggregation count between the two.
	ModeHybrid
)

// HybridThreshold is the largest aggregation count drawn as a grid cell in
// hybrid mode.
const HybridThreshold = 5

var modeNames = [...]string{ModeGrid: "grid", ModeMatrix: "matrix", ModeHybrid: "hybrid"}

func (m Mode) String() string {
	if m.Valid() {
		return modeNames[m]
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool {
	return m >= ModeGrid && m <= ModeHybrid
}

// ParseMode converts a mode name. Unknown names are configuration errors.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for m, n := range modeNames {
		if n == name {
			return Mode(m), nil
		}
	}
	return 0, &core.UnknownModeError{Name: s}
}

// SelectMode maps an extent density to a mode.
func SelectMode(extent core.ExtentDensity) Mode {
	switch extent {
	case core.ExtentUltraSparse, core.ExtentSparse:
		return ModeGrid
	case core.ExtentDense, core.ExtentUltraDense:
		return ModeMatrix
	default:
		return ModeHybrid
	}
}

// CellMode returns the strategy a single cell is drawn with under m.
func CellMode(m Mode, count int) Mode {
	if m != ModeHybrid {
		return m
	}
	if count <= HybridThreshold {
		return ModeGrid
	}
	return ModeMatrix
}

// Tier is a color tier.
type Tier int

// Color tiers in priority order.
const (
	TierLeaf Tier = iota
	TierCollapsed
	TierPopulated
	TierSparse
)

var tierNames = [...]string{TierLeaf: "leaf", TierCollapsed: "collapsed", TierPopulated: "populated", TierSparse: "sparse"}

func (t Tier) String() string {
	if t >= TierLeaf && t <= TierSparse {
		return tierNames[t]
	}
	return "tier(" + strconv.Itoa(int(t)) + ")"
}

// ColorTier classifies a cell by aggregation count, then sparsity.
func ColorTier(count int, sparsity float64) Tier {
	switch {
	case count == 1:
		return TierLeaf
	case count > 1 && count <= HybridThreshold:
		return TierCollapsed
	case sparsity < 0.5:
		return TierPopulated
	default:
		return TierSparse
	}
}

// ShowLabel reports whether a cell is labeled.
func ShowLabel(count int, sparsity float64) bool {
	return count == 1 || (count <= 3 && sparsity < 0.3)
}

// SizeScale maps aggregation counts to marker sizes. The square root keeps
// marker area proportional to count.
type SizeScale struct {
	Min, Max float64
	MaxCount int
}

// Size returns the marker size for count. It is order-preserving in count.
func (s SizeScale) Size(count int) float64 {
	if s.MaxCount <= 0 || count <= 0 {
		return s.Min
	}
	t := math.Sqrt(float64(min(count, s.MaxCount)) / float64(s.MaxCount))
	return s.Min + (s.Max-s.Min)*t
}
