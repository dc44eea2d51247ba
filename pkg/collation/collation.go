// Package collation provides the single comparator used to order grid keys
// and header siblings, so headers always line up with the cells below them.
package collation

import (
	"slices"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Comparator orders strings with locale-aware collation. Digit runs compare
// numerically ("9" < "10"). A Comparator is safe for concurrent use.
type Comparator struct {
	mu  sync.Mutex
	col *collate.Collator
	tag language.Tag
}

// New creates a comparator for the given BCP 47 locale.
// An empty or unparseable locale falls back to the root collation.
func New(locale string) *Comparator {
	tag := language.Und
	if locale != "" {
		if t, err := language.Parse(locale); err == nil {
			tag = t
		}
	}
	return &Comparator{
		col: collate.New(tag, collate.Numeric),
		tag: tag,
	}
}

var (
	defaultOnce sync.Once
	defaultCmp  *Comparator
)

// Default returns the shared root-locale comparator.
func Default() *Comparator {
	defaultOnce.Do(func() { defaultCmp = New("") })
	return defaultCmp
}

// Locale returns the comparator's language tag.
func (c *Comparator) Locale() string {
	return c.tag.String()
}

// Compare returns -1, 0 or +1. Strings the collator considers equal but
// that differ byte-wise are ordered byte-wise so the order stays total.
func (c *Comparator) Compare(a, b string) int {
	if a == b {
		return 0
	}
	c.mu.Lock()
	r := c.col.CompareString(a, b)
	c.mu.Unlock()
	if r != 0 {
		return r
	}
	if a < b {
		return -1
	}
	return 1
}

// CompareTuple compares two keys element-wise; a shorter prefix sorts first.
func (c *Comparator) CompareTuple(a, b []string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if r := c.Compare(a[i], b[i]); r != 0 {
			return r
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// Sort sorts values in place.
func (c *Comparator) Sort(values []string) {
	slices.SortStableFunc(values, c.Compare)
}

// SortedUnique returns a sorted copy of values without duplicates.
func (c *Comparator) SortedUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	c.Sort(out)
	return out
}
