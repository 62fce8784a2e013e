package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the colors of styled output.
type Theme struct {
	Primary lipgloss.Color
	Warn    lipgloss.Color
	Error   lipgloss.Color
	Dim     lipgloss.Color
}

// DefaultTheme is the default green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Warn:    lipgloss.Color("#ffb86c"),
	Error:   lipgloss.Color("#ff5555"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Printer writes styled status lines.
type Printer struct {
	Out io.Writer
	Err io.Writer

	success lipgloss.Style
	info    lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
}

// NewPrinter returns a Printer using t.
func NewPrinter(out, errOut io.Writer, t Theme) *Printer {
	return &Printer{
		Out:     out,
		Err:     errOut,
		success: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		info:    lipgloss.NewStyle().Foreground(t.Dim),
		warn:    lipgloss.NewStyle().Bold(true).Foreground(t.Warn),
		fail:    lipgloss.NewStyle().Bold(true).Foreground(t.Error),
	}
}

// Success prints a line prefixed with a check mark.
func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.Out, p.success.Render("✓")+" "+fmt.Sprintf(format, args...))
}

// Info prints an informational line.
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintln(p.Out, p.info.Render("ℹ")+" "+fmt.Sprintf(format, args...))
}

// Warning prints a warning line.
func (p *Printer) Warning(format string, args ...any) {
	fmt.Fprintln(p.Out, p.warn.Render("⚠")+" "+fmt.Sprintf(format, args...))
}

// Error prints an error line to the error writer.
func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.Err, p.fail.Render("Error:")+" "+fmt.Sprintf(format, args...))
}

var std = NewPrinter(os.Stdout, os.Stderr, DefaultTheme)

// PrintSuccess prints a success message with checkmark
func PrintSuccess(format string, args ...any) { std.Success(format, args...) }

// PrintInfo prints an info message
func PrintInfo(format string, args ...any) { std.Info(format, args...) }

// PrintWarning prints a warning message
func PrintWarning(format string, args ...any) { std.Warning(format, args...) }

// PrintError prints an error message to stderr
func PrintError(format string, args ...any) { std.Error(format, args...) }
