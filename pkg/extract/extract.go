// Package extract is the closed table of per-axis value extraction
// functions. Every entry takes a record and a facet and always produces a
// value: missing or malformed fields resolve to the documented fallback of
// their axis instead of an error.
package extract

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/latchgrid/pkg/core"
)

// Fallback buckets for unresolved facets.
const (
	UnknownLabel       = "Unknown"
	UncategorizedLabel = "Uncategorized"
)

// LabelFunc produces the grouping label of a record on one axis.
type LabelFunc func(r core.Record, facet string) string

// labelers is indexed by core.AxisType.
var labelers = [...]LabelFunc{
	core.AxisLocation:  LocationLabel,
	core.AxisAlphabet:  AlphabetLabel,
	core.AxisTime:      TimeLabel,
	core.AxisCategory:  CategoryLabel,
	core.AxisHierarchy: HierarchyLabel,
}

// Labeler returns the label function for an axis.
func Labeler(axis core.AxisType) (LabelFunc, error) {
	if !axis.Valid() {
		return nil, &core.UnknownAxisError{Name: axis.String()}
	}
	return labelers[axis], nil
}

// Label extracts the grouping label for a mapping.
func Label(m core.AxisMapping, r core.Record) (string, error) {
	fn, err := Labeler(m.Axis)
	if err != nil {
		return "", err
	}
	return fn(r, m.Facet), nil
}

// =============================================================================
// Category
// =============================================================================

// Categories returns every category value of a (possibly multi-valued)
// field, in stored order. Missing or empty fields yield [Uncategorized].
func Categories(r core.Record, facet string) []string {
	v, ok := r.Get(facet)
	if !ok || v == nil {
		return []string{UncategorizedLabel}
	}
	var out []string
	switch val := v.(type) {
	case []string:
		for _, s := range val {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range val {
			if s, ok := toString(item); ok && s != "" {
				out = append(out, s)
			}
		}
	default:
		if s, ok := toString(val); ok && s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []string{UncategorizedLabel}
	}
	return out
}

// CategoryLabel returns the primary (first) category value.
func CategoryLabel(r core.Record, facet string) string {
	return Categories(r, facet)[0]
}

// =============================================================================
// Alphabet
// =============================================================================

// initialFacets group by the upper-cased first letter of the record name.
var initialFacets = map[string]bool{"letter": true, "initial": true}

// Name returns the naming value of a record: the facet field when present,
// otherwise the record's display name.
func Name(r core.Record, facet string) string {
	if facet != "" && !initialFacets[strings.ToLower(facet)] {
		if v, ok := r.Get(facet); ok {
			if s, ok := toString(v); ok && s != "" {
				return s
			}
		}
		return UnknownLabel
	}
	if name := r.DisplayName(); name != "" {
		return name
	}
	return UnknownLabel
}

// AlphabetLabel returns the naming value, or its initial for the
// "letter"/"initial" facets.
func AlphabetLabel(r core.Record, facet string) string {
	name := Name(r, facet)
	if !initialFacets[strings.ToLower(facet)] || name == UnknownLabel {
		return name
	}
	first, _ := utf8.DecodeRuneInString(name)
	if first == utf8.RuneError || !unicode.IsLetter(first) {
		return "#"
	}
	return string(unicode.ToUpper(first))
}

// =============================================================================
// Hierarchy
// =============================================================================

// Ordinal returns the numeric ordinal stored in facet. Strings and booleans
// are weakly coerced; anything that does not coerce reports false.
func Ordinal(r core.Record, facet string) (float64, bool) {
	v, ok := r.Get(facet)
	if !ok || v == nil {
		return 0, false
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return 0, false
	}
	var f float64
	if err := mapstructure.WeakDecode(v, &f); err != nil {
		return 0, false
	}
	return f, true
}

// OrdinalOrZero returns Ordinal with the zero fallback applied.
func OrdinalOrZero(r core.Record, facet string) float64 {
	f, _ := Ordinal(r, facet)
	return f
}

// HierarchyLabel formats the ordinal without trailing zeros.
func HierarchyLabel(r core.Record, facet string) string {
	f, ok := Ordinal(r, facet)
	if !ok {
		return UnknownLabel
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// =============================================================================
// Location
// =============================================================================

// CoordinatePrecision is the number of decimals kept when canonicalising
// coordinate pairs.
const CoordinatePrecision = 4

// Location returns the canonical location string: named places verbatim,
// coordinate pairs as "lat,lng" with fixed precision.
func Location(r core.Record, facet string) (string, bool) {
	if facet == "" {
		facet = "location"
	}
	v, ok := r.Get(facet)
	if !ok || v == nil {
		return "", false
	}
	if lat, lng, ok := coordinates(v); ok {
		return FormatCoordinates(lat, lng), true
	}
	if s, ok := toString(v); ok && s != "" {
		return s, true
	}
	return "", false
}

// LocationLabel is Location with the Unknown fallback.
func LocationLabel(r core.Record, facet string) string {
	if s, ok := Location(r, facet); ok {
		return s
	}
	return UnknownLabel
}

// FormatCoordinates canonicalises a coordinate pair.
func FormatCoordinates(lat, lng float64) string {
	return fmt.Sprintf("%.*f,%.*f", CoordinatePrecision, lat, CoordinatePrecision, lng)
}

func coordinates(v any) (lat, lng float64, ok bool) {
	switch val := v.(type) {
	case [2]float64:
		return val[0], val[1], true
	case []float64:
		if len(val) == 2 {
			return val[0], val[1], true
		}
	case []any:
		if len(val) == 2 {
			a, okA := toFloat(val[0])
			b, okB := toFloat(val[1])
			return a, b, okA && okB
		}
	case map[string]any:
		for _, keys := range [][2]string{{"lat", "lng"}, {"lat", "lon"}, {"latitude", "longitude"}} {
			a, okA := toFloat(val[keys[0]])
			b, okB := toFloat(val[keys[1]])
			if okA && okB {
				return a, b, true
			}
		}
	}
	return 0, 0, false
}

// =============================================================================
// helpers
// =============================================================================

func toFloat(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	var f float64
	if err := mapstructure.WeakDecode(v, &f); err != nil {
		return 0, false
	}
	return f, true
}

func toString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(val), true
	case []byte:
		return strings.TrimSpace(string(val)), true
	case time.Time:
		return val.Format(time.RFC3339), true
	case fmt.Stringer:
		return val.String(), true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(val), true
	default:
		return "", false
	}
}
