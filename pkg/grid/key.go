package grid

import (
	"slices"
	"strconv"
	"strings"
)

// Key is a composite row or column key: one extracted label per mapping on
// the plane, outermost first. Keys are compared element-wise, never by a
// joined string, so labels containing separators cannot collide.
type Key []string

// String renders the key for display.
func (k Key) String() string {
	return strings.Join(k, " / ")
}

// ID encodes the key unambiguously: the element count followed by each
// element prefixed with its byte length.
func (k Key) ID() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(len(k)))
	b.WriteByte(':')
	for _, s := range k {
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
	}
	return b.String()
}

// Equal reports element-wise equality.
func (k Key) Equal(o Key) bool {
	return slices.Equal(k, o)
}

// Prefix returns the first n elements (all of them when n exceeds the length).
func (k Key) Prefix(n int) Key {
	if n < 0 {
		n = 0
	}
	if n >= len(k) {
		return k
	}
	return k[:n]
}

// HasPrefix reports whether p is an element-wise prefix of k.
func (k Key) HasPrefix(p Key) bool {
	return len(p) <= len(k) && slices.Equal(k[:len(p)], p)
}

// CellID returns the identity of the cell at (row, col).
func CellID(row, col Key) string {
	return row.ID() + "|" + col.ID()
}
