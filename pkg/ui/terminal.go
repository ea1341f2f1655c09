package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Logo printed by the CLI before long-running commands
const Logo = `
 ██╗ ██████╗ ██╗     ███████╗ █████╗ ██████╗ ███████╗
 ██║██╔════╝ ██║     ██╔════╝██╔══██╗██╔══██╗██╔════╝
 ██║██║  ███╗██║     █████╗  ███████║██║  ██║███████╗
 ██║██║   ██║██║     ██╔══╝  ██╔══██║██║  ██║╚════██║
 ██║╚██████╔╝███████╗███████╗██║  ██║██████╔╝███████║
 ╚═╝ ╚═════╝ ╚══════╝╚══════╝╚═╝  ╚═╝╚═════╝ ╚══════╝
        hashtag lead extraction`

var (
	neonCyan    = lipgloss.Color("#00FFFF")
	neonMagenta = lipgloss.Color("#FF00FF")
	neonGreen   = lipgloss.Color("#39FF14")
	neonYellow  = lipgloss.Color("#FFFF00")
	neonOrange  = lipgloss.Color("#FF6700")
	neonRed     = lipgloss.Color("#FF0000")
	dimWhite    = lipgloss.Color("#B0B0B0")

	logoStyle      = lipgloss.NewStyle().Foreground(neonCyan).Bold(true)
	labelStyle     = lipgloss.NewStyle().Foreground(neonCyan).Bold(true)
	valueStyle     = lipgloss.NewStyle().Foreground(neonYellow)
	successStyle   = lipgloss.NewStyle().Foreground(neonGreen).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(neonRed).Bold(true)
	warningStyle   = lipgloss.NewStyle().Foreground(neonOrange).Bold(true)
	highlightStyle = lipgloss.NewStyle().Foreground(neonMagenta).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(dimWhite).Faint(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(neonMagenta).
			Padding(0, 2)
)

var (
	out   io.Writer = os.Stdout
	quiet bool
)

// SetOutput redirects everything the package prints. nil restores stdout.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	out = w
}

// SetQuietMode suppresses everything but errors
func SetQuietMode(q bool) {
	quiet = q
}

// PrintLogo prints the logo
func PrintLogo() {
	if quiet {
		return
	}
	fmt.Fprintln(out, logoStyle.Render(Logo))
}

// PrintError prints an error message with an optional detail
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 && fmt.Sprint(args[0]) != "" {
		msg = msg + ": " + fmt.Sprint(args[0])
	}
	fmt.Fprintln(out, errorStyle.Render("✗ "+msg))
}

// PrintSuccess prints a success message
func PrintSuccess(msg string) {
	if quiet {
		return
	}
	fmt.Fprintln(out, successStyle.Render("✓ "+msg))
}

// PrintInfo prints a label and its value
func PrintInfo(label string, value string) {
	if quiet {
		return
	}
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render(label+":"), valueStyle.Render(value))
}

// PrintWarning prints a warning with an optional detail
func PrintWarning(msg string, args ...interface{}) {
	if quiet {
		return
	}
	if len(args) > 0 && fmt.Sprint(args[0]) != "" {
		msg = msg + ": " + fmt.Sprint(args[0])
	}
	fmt.Fprintln(out, warningStyle.Render("! "+msg))
}

// PrintHighlight prints a highlighted heading
func PrintHighlight(msg string) {
	if quiet {
		return
	}
	fmt.Fprintln(out, highlightStyle.Render(msg))
}

// PrintBlock prints pre-rendered text such as a summary panel
func PrintBlock(s string) {
	if quiet {
		return
	}
	fmt.Fprintln(out, s)
}
