package cli

import "github.com/charmbracelet/lipgloss"

// Palette is the small set of colors the CLI renders with.
type Palette struct {
	Blue   lipgloss.AdaptiveColor
	Cyan   lipgloss.AdaptiveColor
	Violet lipgloss.AdaptiveColor
	Orange lipgloss.AdaptiveColor
	Red    lipgloss.AdaptiveColor
	Muted  lipgloss.AdaptiveColor
}

// DefaultPalette works on both light and dark terminals.
var DefaultPalette = Palette{
	Blue:   lipgloss.AdaptiveColor{Light: "#1f5fbf", Dark: "#6aa9ff"},
	Cyan:   lipgloss.AdaptiveColor{Light: "#0f7c84", Dark: "#56c8d8"},
	Violet: lipgloss.AdaptiveColor{Light: "#7a3fb0", Dark: "#c49bf2"},
	Orange: lipgloss.AdaptiveColor{Light: "#b35c00", Dark: "#f0a35e"},
	Red:    lipgloss.AdaptiveColor{Light: "#b3261e", Dark: "#ff7a70"},
	Muted:  lipgloss.AdaptiveColor{Light: "#6b6b6b", Dark: "#8a8a8a"},
}

func (p Palette) style(c lipgloss.AdaptiveColor) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

func (p Palette) muted() lipgloss.Style {
	return p.style(p.Muted)
}
