package core

import (
	"fmt"
	"strings"
)

// =============================================================================
// AxisType
// =============================================================================

// AxisType is one of the five LATCH dimensions a field can be classified by.
type AxisType int

// LATCH axes.
const (
	AxisLocation AxisType = iota
	AxisAlphabet
	AxisTime
	AxisCategory
	AxisHierarchy
)

// AllAxes lists every axis in LATCH order.
var AllAxes = []AxisType{AxisLocation, AxisAlphabet, AxisTime, AxisCategory, AxisHierarchy}

// String returns the lower-case axis name.
func (a AxisType) String() string {
	switch a {
	case AxisLocation:
		return "location"
	case AxisAlphabet:
		return "alphabet"
	case AxisTime:
		return "time"
	case AxisCategory:
		return "category"
	case AxisHierarchy:
		return "hierarchy"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// Valid reports whether a is one of the LATCH axes.
func (a AxisType) Valid() bool {
	return a >= AxisLocation && a <= AxisHierarchy
}

// Discrete reports whether the axis produces a banded (ordinal) scale.
func (a AxisType) Discrete() bool {
	return a == AxisLocation || a == AxisAlphabet || a == AxisCategory
}

// ParseAxisType converts a name (or its LATCH initial) to an AxisType.
func ParseAxisType(s string) (AxisType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "location", "l":
		return AxisLocation, nil
	case "alphabet", "a":
		return AxisAlphabet, nil
	case "time", "t":
		return AxisTime, nil
	case "category", "c":
		return AxisCategory, nil
	case "hierarchy", "h":
		return AxisHierarchy, nil
	default:
		return 0, &UnknownAxisError{Name: s}
	}
}

// =============================================================================
// Plane
// =============================================================================

// Plane is a visual channel a mapping projects onto.
type Plane int

// Visual planes. PlaneX lays out columns, PlaneY lays out rows.
const (
	PlaneX Plane = iota
	PlaneY
	PlaneColor
	PlaneSize
)

// String returns the lower-case plane name.
func (p Plane) String() string {
	switch p {
	case PlaneX:
		return "x"
	case PlaneY:
		return "y"
	case PlaneColor:
		return "color"
	case PlaneSize:
		return "size"
	default:
		return fmt.Sprintf("plane(%d)", int(p))
	}
}

// ParsePlane converts a plane name to a Plane.
// "column(s)" and "row(s)" are accepted as aliases of x and y.
func ParsePlane(s string) (Plane, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x", "column", "columns", "col":
		return PlaneX, nil
	case "y", "row", "rows":
		return PlaneY, nil
	case "color", "colour":
		return PlaneColor, nil
	case "size":
		return PlaneSize, nil
	default:
		return 0, &UnknownPlaneError{Name: s}
	}
}

// =============================================================================
// AxisMapping
// =============================================================================

// AxisMapping binds a LATCH axis and a field (facet) to a visual plane.
// Several mappings may share a plane; their order defines nesting depth.
type AxisMapping struct {
	Axis  AxisType
	Facet string
	Plane Plane
}

// String renders the mapping in the axis:facet:plane form accepted by ParseMapping.
func (m AxisMapping) String() string {
	return m.Axis.String() + ":" + m.Facet + ":" + m.Plane.String()
}

// Validate checks that the mapping names a known axis and plane.
func (m AxisMapping) Validate() error {
	if !m.Axis.Valid() {
		return &UnknownAxisError{Name: m.Axis.String()}
	}
	if m.Plane < PlaneX || m.Plane > PlaneSize {
		return &UnknownPlaneError{Name: m.Plane.String()}
	}
	return nil
}

// ParseMapping parses "axis:facet:plane".
func ParseMapping(s string) (AxisMapping, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return AxisMapping{}, fmt.Errorf("invalid mapping %q: expected axis:facet:plane", s)
	}
	axis, err := ParseAxisType(parts[0])
	if err != nil {
		return AxisMapping{}, err
	}
	plane, err := ParsePlane(parts[2])
	if err != nil {
		return AxisMapping{}, err
	}
	return AxisMapping{Axis: axis, Facet: strings.TrimSpace(parts[1]), Plane: plane}, nil
}

// OnPlane returns the mappings assigned to p, preserving order.
func OnPlane(mappings []AxisMapping, p Plane) []AxisMapping {
	var out []AxisMapping
	for _, m := range mappings {
		if m.Plane == p {
			out = append(out, m)
		}
	}
	return out
}
