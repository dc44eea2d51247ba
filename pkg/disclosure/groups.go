package disclosure

import (
	"fmt"

	"github.com/leapstack-labs/latchgrid/pkg/core"
)

// GroupKind names how a level group was detected.
type GroupKind string

// Group kinds.
const (
	GroupTemporal GroupKind = "temporal"
	GroupDefault  GroupKind = "levels"
)

// LevelGroup is a tab: a named set of consecutive levels shown together.
type LevelGroup struct {
	ID     string
	Name   string
	Kind   GroupKind
	Levels []int
}

// DetectGroups splits the levels of a hierarchy into tabs. Consecutive
// time-axis levels form temporal groups; every other run of levels is
// chunked by width. No group is wider than width.
func DetectGroups(axes []core.AxisType, width int) []LevelGroup {
	if width < 1 {
		width = 1
	}
	var groups []LevelGroup
	for start := 0; start < len(axes); {
		temporal := axes[start] == core.AxisTime
		end := start
		for end < len(axes) && (axes[end] == core.AxisTime) == temporal {
			end++
		}
		for lo := start; lo < end; lo += width {
			hi := min(lo+width, end)
			groups = append(groups, newGroup(temporal, lo, hi))
		}
		start = end
	}
	return groups
}

func newGroup(temporal bool, lo, hi int) LevelGroup {
	g := LevelGroup{Kind: GroupDefault, Name: fmt.Sprintf("Levels %d-%d", lo+1, hi)}
	if temporal {
		g.Kind = GroupTemporal
		g.Name = "Time"
	}
	if hi-lo == 1 && !temporal {
		g.Name = fmt.Sprintf("Level %d", lo+1)
	}
	g.ID = fmt.Sprintf("%s:%d-%d", g.Kind, lo, hi-1)
	for l := lo; l < hi; l++ {
		g.Levels = append(g.Levels, l)
	}
	return g
}
