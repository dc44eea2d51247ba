package engine

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Capabilities reports which optional host features this process offers.
type Capabilities struct {
	// ReleaseMemory is true when ReleaseMemory returns memory to the OS.
	ReleaseMemory bool
	// Clipboard is true when selections can be copied to a clipboard. A
	// terminal process has none; SelectionText gives the host the text.
	Clipboard bool
}

// Capabilities reports the optional features available to the session.
func (s *Session) Capabilities() Capabilities {
	return Capabilities{ReleaseMemory: true, Clipboard: false}
}

// ReleaseMemory forces a collection and returns freed memory to the OS.
// It reports whether the feature was available.
func (s *Session) ReleaseMemory() bool {
	debug.FreeOSMemory()
	s.logger.Debug("memory released")
	return true
}

// SelectionText renders the selected cells of the current frame, one line
// per cell, for the host to place on a clipboard.
func (s *Session) SelectionText() string {
	snap := s.Snapshot()
	if snap == nil {
		return ""
	}
	selected := s.interact.Highlighted()
	byID := make(map[string]int, len(snap.Frame.Cells))
	for i, c := range snap.Frame.Cells {
		byID[c.ID] = i
	}
	var b strings.Builder
	for _, id := range selected {
		i, ok := byID[id]
		if !ok {
			continue
		}
		c := snap.Frame.Cells[i]
		names := make([]string, 0, len(c.MemberIDs))
		for _, m := range c.MemberIDs {
			if r, ok := snap.Index[m]; ok {
				names = append(names, r.DisplayName())
			} else {
				names = append(names, m)
			}
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\n", c.RowKey, c.ColKey, strings.Join(names, ", "))
	}
	return b.String()
}
