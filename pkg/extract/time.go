package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/latchgrid/pkg/core"
)

// Granularity buckets a date for grouping.
type Granularity string

// Time granularities accepted as time-axis facets.
const (
	Year    Granularity = "year"
	Quarter Granularity = "quarter"
	Month   Granularity = "month"
	Week    Granularity = "week"
	Day     Granularity = "day"
	Hour    Granularity = "hour"
)

// DateFields are consulted, in order, for a record's primary date when the
// time facet names a granularity rather than a field.
var DateFields = []string{"date", "created_at", "createdAt", "created", "timestamp"}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
	"01/02/2006",
	"Jan 2, 2006",
}

// ParseGranularity reports whether facet names a granularity.
func ParseGranularity(facet string) (Granularity, bool) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(facet))); g {
	case Year, Quarter, Month, Week, Day, Hour:
		return g, true
	}
	return "", false
}

// Time returns the date a time-axis mapping reads from the record.
// Granularity facets read the primary date fields; any other facet is
// treated as the name of a date field.
func Time(r core.Record, facet string) (time.Time, bool) {
	fields := []string{facet}
	if _, ok := ParseGranularity(facet); ok || facet == "" {
		fields = DateFields
	}
	for _, f := range fields {
		v, ok := r.Get(f)
		if !ok {
			continue
		}
		if t, ok := ParseTime(v); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// TimeOr returns Time, or fallback when the record carries no usable date.
func TimeOr(r core.Record, facet string, fallback time.Time) time.Time {
	if t, ok := Time(r, facet); ok {
		return t
	}
	return fallback
}

// TimeLabel buckets the record's date by the facet granularity (day when
// the facet is a field name).
func TimeLabel(r core.Record, facet string) string {
	t, ok := Time(r, facet)
	if !ok {
		return UnknownLabel
	}
	g, isGran := ParseGranularity(facet)
	if !isGran {
		g = Day
	}
	return FormatBucket(t, g)
}

// FormatBucket formats t as the label of its bucket at granularity g.
func FormatBucket(t time.Time, g Granularity) string {
	t = t.UTC()
	switch g {
	case Year:
		return t.Format("2006")
	case Quarter:
		return fmt.Sprintf("%d-Q%d", t.Year(), (int(t.Month())-1)/3+1)
	case Month:
		return t.Format("2006-01")
	case Week:
		y, w := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	case Hour:
		return t.Format("2006-01-02T15")
	default:
		return t.Format("2006-01-02")
	}
}

// ParseTime accepts time values, date strings in common layouts and unix
// timestamps (seconds, or milliseconds when the magnitude says so).
func ParseTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC(), !val.IsZero()
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		return val.UTC(), !val.IsZero()
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		return time.Time{}, false
	case int, int32, int64, uint32, uint64, float32, float64:
		f, ok := toFloat(val)
		if !ok {
			return time.Time{}, false
		}
		return unixTime(f), true
	}
	return time.Time{}, false
}

func unixTime(f float64) time.Time {
	if f > 1e12 || f < -1e12 {
		return time.UnixMilli(int64(f)).UTC()
	}
	return time.Unix(int64(f), 0).UTC()
}
