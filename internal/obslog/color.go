package obslog

import "github.com/muesli/termenv"

// ColorEnabled reports whether stdout is an interactive terminal with
// at least ANSI color support, the check cmd/forge's init, status and
// respond commands make to decide whether lipgloss rendering and
// interactive prompts degrade to plain text (piped output, CI, a dumb
// terminal).
func ColorEnabled() bool {
	return termenv.ColorProfile() != termenv.Ascii
}

// DarkBackground reports whether the terminal's background is dark,
// for picking between the lipgloss light/dark theme variants.
func DarkBackground() bool {
	return termenv.HasDarkBackground()
}
