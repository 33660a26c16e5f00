// Package styles contains Lip Gloss style definitions.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Semantic color names - Text hierarchy
	TextPrimaryColor     = lipgloss.AdaptiveColor{Light: "#333333", Dark: "#CCCCCC"} // Entry names
	TextSecondaryColor   = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#BBBBBB"} // Host targets
	TextMutedColor       = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#696969"} // Hints, tree guides, footers
	TextPlaceholderColor = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#777777"} // Input placeholders

	// Semantic color names - Status
	StatusWarningColor = lipgloss.AdaptiveColor{Light: "#C28A00", Dark: "#FECA57"} // Filter active
	StatusErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"} // Errors

	// Entry colors
	CategoryColor = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#89B4FA"}
	ProviderColor = lipgloss.AdaptiveColor{Light: "#179299", Dark: "#94E2D5"}

	// Selection indicator color (used for ">" prefix in lists)
	SelectionIndicatorColor = lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"}

	// Selection indicator style (used for ">" prefix in the outline)
	SelectionIndicatorStyle = lipgloss.NewStyle().Bold(true).Foreground(SelectionIndicatorColor)

	CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(CategoryColor)
	ProviderStyle = lipgloss.NewStyle().Bold(true).Foreground(ProviderColor)
	HostStyle     = lipgloss.NewStyle().Foreground(TextPrimaryColor)
	TargetStyle   = lipgloss.NewStyle().Foreground(TextSecondaryColor)
	GuideStyle    = lipgloss.NewStyle().Foreground(TextMutedColor)

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(TextSecondaryColor).
			Padding(0, 1)

	FilterLabelStyle = lipgloss.NewStyle().Foreground(StatusWarningColor).Bold(true)

	// Error display
	ErrorStyle = lipgloss.NewStyle().
			Foreground(StatusErrorColor).
			Bold(true).
			Padding(1, 2)
)
