package core

import "fmt"

// Configuration errors. These signal an upstream programming or config bug
// and are never defaulted away.

// UnknownAxisError is returned when an axis name is not a LATCH axis.
type UnknownAxisError struct {
	Name string
}

func (e *UnknownAxisError) Error() string {
	return fmt.Sprintf("unknown axis type %q\nAvailable axes: [location alphabet time category hierarchy]", e.Name)
}

// UnknownPlaneError is returned when a plane name is not recognised.
type UnknownPlaneError struct {
	Name string
}

func (e *UnknownPlaneError) Error() string {
	return fmt.Sprintf("unknown plane %q\nAvailable planes: [x y color size]", e.Name)
}

// UnknownExtentError is returned for an unrecognised extent density.
type UnknownExtentError struct {
	Name string
}

func (e *UnknownExtentError) Error() string {
	return fmt.Sprintf("unknown extent density %q\nAvailable: [ultra-sparse sparse medium dense ultra-dense]", e.Name)
}

// UnknownModeError is returned for an unrecognised render mode.
type UnknownModeError struct {
	Name string
}

func (e *UnknownModeError) Error() string {
	return fmt.Sprintf("unknown render mode %q\nAvailable modes: [grid matrix hybrid]", e.Name)
}
