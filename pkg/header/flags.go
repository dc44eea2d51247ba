package header

import (
	"maps"
	"sync"
)

// Flag is a per-node state bit.
type Flag uint8

// Node flags.
const (
	Collapsed Flag = 1 << iota
	Selected
)

// Flags is the flat id→flag map kept outside the trees. Node IDs are
// derived from orientation and path, so flags survive rebuilds for every
// node that still exists. Flags is safe for concurrent use.
type Flags struct {
	mu sync.RWMutex
	m  map[string]Flag
}

// NewFlags returns an empty flag map.
func NewFlags() *Flags {
	return &Flags{m: make(map[string]Flag)}
}

// Has reports whether flag is set on id.
func (f *Flags) Has(id string, flag Flag) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.m[id]&flag != 0
}

// Set sets or clears flag on id.
func (f *Flags) Set(id string, flag Flag, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set(id, flag, on)
}

// Toggle flips flag on id and returns the new state.
func (f *Flags) Toggle(id string, flag Flag) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	on := f.m[id]&flag == 0
	f.set(id, flag, on)
	return on
}

func (f *Flags) set(id string, flag Flag, on bool) {
	v := f.m[id]
	if on {
		v |= flag
	} else {
		v &^= flag
	}
	if v == 0 {
		delete(f.m, id)
		return
	}
	f.m[id] = v
}

// Prune drops flags for ids not present in any of the trees and returns
// how many entries were removed.
func (f *Flags) Prune(trees ...*Tree) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := 0
	for id := range f.m {
		found := false
		for _, t := range trees {
			if t == nil {
				continue
			}
			if _, ok := t.index[id]; ok {
				found = true
				break
			}
		}
		if !found {
			delete(f.m, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of ids with at least one flag.
func (f *Flags) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.m)
}

// Snapshot returns a copy of the map.
func (f *Flags) Snapshot() map[string]Flag {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return maps.Clone(f.m)
}
