// Package branding centralizes the stuckbar identity constants
// and the terminal colors used by the CLI.
package branding

// Application identity constants.
const (
	AppName    = "stuckbar"
	CLIName    = "stuckbar taskbar rescue"
	BinaryName = "stuckbar"
)

// Colors in hex format for Lipgloss true color support.
const (
	// ColorPrimary is the accent used for headings.
	ColorPrimary = "#0EA5E9"
	// ColorSuccess marks completed operations.
	ColorSuccess = "#22C55E"
	// ColorWarning marks degraded outcomes.
	ColorWarning = "#F59E0B"
	// ColorError marks failed operations.
	ColorError = "#E11D48"
	// ColorMutedGray is used for labels and help text.
	ColorMutedGray = "#71717A"
)

// Banner is a small taskbar drawing shown when the tool server starts.
const Banner = `
 ┌──────────────────────────────┐
 │ ⊞  ▣ ▣ ▣            12:00 ⌂ │
 └──────────────────────────────┘`

// StartupBanner returns the banner with the application name appended.
func StartupBanner() string {
	return Banner + "\n" +
		"  " + CLIName + "\n"
}
