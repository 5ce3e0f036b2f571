// Package ui provides colored terminal output for the CLI.
package ui

import (
	"strings"

	"github.com/fatih/color"
)

const headerWidth = 60

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	stepColor    = color.New(color.FgBlue)
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgWhite)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
)

// center left-pads text to sit in the middle of width. Text wider than the
// field is returned unchanged.
func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	return strings.Repeat(" ", (width-len(text))/2) + text
}

// Header prints a banner for a major phase.
func Header(text string) {
	line := strings.Repeat("=", headerWidth)
	headerColor.Println(line)
	headerColor.Println(center(text, headerWidth))
	headerColor.Println(line)
}

// Step prints a numbered progress line.
func Step(current, total int, text string) {
	stepColor.Printf("[%d/%d] %s\n", current, total, text)
}

// Success prints a green checkmark line.
func Success(text string) {
	successColor.Printf("✓ %s\n", text)
}

// Info prints a neutral detail line.
func Info(text string) {
	infoColor.Printf("  %s\n", text)
}

// Warning prints a yellow warning line.
func Warning(text string) {
	warnColor.Printf("⚠ %s\n", text)
}

// Error prints a red error line.
func Error(text string) {
	errorColor.Printf("✗ %s\n", text)
}

// BlueText returns text wrapped in blue for inline use.
func BlueText(text string) string {
	return stepColor.Sprint(text)
}

// YellowText returns text wrapped in yellow for inline use.
func YellowText(text string) string {
	return warnColor.Sprint(text)
}

// Summary prints a key/value line, aligning values in a block.
func Summary(label string, value any) {
	infoColor.Printf("  %-24s %v\n", label+":", value)
}
