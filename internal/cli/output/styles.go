package output

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Styles holds the lipgloss styles used for text output.
type Styles struct {
	Header  lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Info    lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	ID      lipgloss.Style

	// Tier styles paint cells by color tier: leaf, collapsed, populated,
	// sparse.
	Tiers [4]lipgloss.Style
}

// NewStyles builds styles bound to w. Without color every style renders
// plain text.
func NewStyles(w io.Writer, color bool) *Styles {
	re := lipgloss.NewRenderer(w)
	if !color {
		re.SetColorProfile(termenv.Ascii)
	}
	return &Styles{
		Header:  re.NewStyle().Bold(true).Foreground(lipgloss.Color("#89B4FA")),
		Bold:    re.NewStyle().Bold(true),
		Muted:   re.NewStyle().Foreground(lipgloss.Color("#6C7086")),
		Info:    re.NewStyle().Foreground(lipgloss.Color("#89DCEB")),
		Success: re.NewStyle().Foreground(lipgloss.Color("#A6E3A1")),
		Warning: re.NewStyle().Foreground(lipgloss.Color("#F9E2AF")),
		Error:   re.NewStyle().Foreground(lipgloss.Color("#F38BA8")),
		ID:      re.NewStyle().Foreground(lipgloss.Color("#CBA6F7")),
		Tiers: [4]lipgloss.Style{
			re.NewStyle().Foreground(lipgloss.Color("#CDD6F4")),
			re.NewStyle().Foreground(lipgloss.Color("#A6E3A1")).Bold(true),
			re.NewStyle().Foreground(lipgloss.Color("#FAB387")).Bold(true),
			re.NewStyle().Foreground(lipgloss.Color("#6C7086")),
		},
	}
}

// Tier returns the style for a tier index, falling back to Muted.
func (s *Styles) Tier(i int) lipgloss.Style {
	if i < 0 || i >= len(s.Tiers) {
		return s.Muted
	}
	return s.Tiers[i]
}
