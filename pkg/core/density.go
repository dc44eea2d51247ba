package core

import (
	"fmt"
	"strings"
)

// ExtentDensity controls whether empty rows and columns are shown (the
// "pan" half of the Janus density model).
type ExtentDensity int

// Extent densities from sparsest to densest.
const (
	ExtentUltraSparse ExtentDensity = iota
	ExtentSparse
	ExtentMedium
	ExtentDense
	ExtentUltraDense
)

// String returns the hyphenated extent name.
func (e ExtentDensity) String() string {
	switch e {
	case ExtentUltraSparse:
		return "ultra-sparse"
	case ExtentSparse:
		return "sparse"
	case ExtentMedium:
		return "medium"
	case ExtentDense:
		return "dense"
	case ExtentUltraDense:
		return "ultra-dense"
	default:
		return fmt.Sprintf("extent(%d)", int(e))
	}
}

// Valid reports whether e is a known extent density.
func (e ExtentDensity) Valid() bool {
	return e >= ExtentUltraSparse && e <= ExtentUltraDense
}

// ParseExtentDensity parses an extent name. Underscores and spaces are
// accepted in place of hyphens.
func ParseExtentDensity(s string) (ExtentDensity, error) {
	norm := strings.NewReplacer("_", "-", " ", "-").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch norm {
	case "ultra-sparse", "ultrasparse":
		return ExtentUltraSparse, nil
	case "sparse":
		return ExtentSparse, nil
	case "medium":
		return ExtentMedium, nil
	case "dense":
		return ExtentDense, nil
	case "ultra-dense", "ultradense":
		return ExtentUltraDense, nil
	default:
		return 0, &UnknownExtentError{Name: s}
	}
}

// DensityState is the Janus density state: ValueDensity is the zoom (how
// many hierarchy levels are folded into each cell), ExtentDensity the pan.
type DensityState struct {
	ValueDensity  int
	ExtentDensity ExtentDensity
}

// Validate rejects negative value densities and unknown extents.
func (d DensityState) Validate() error {
	if d.ValueDensity < 0 {
		return fmt.Errorf("value density must be >= 0, got %d", d.ValueDensity)
	}
	if !d.ExtentDensity.Valid() {
		return &UnknownExtentError{Name: d.ExtentDensity.String()}
	}
	return nil
}
