package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

// capture redirects the color package's writer to a buffer, with escape
// sequences disabled so assertions see plain text.
func capture(t *testing.T, fn func()) string {
	t.Helper()
	prevOut, prevNoColor := color.Output, color.NoColor
	var buf bytes.Buffer
	color.Output = &buf
	color.NoColor = true
	defer func() {
		color.Output = prevOut
		color.NoColor = prevNoColor
	}()
	fn()
	return buf.String()
}

func TestHeaderBanner(t *testing.T) {
	out := capture(t, func() { Header("Pipeline Run") })

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("Header printed %d lines, want 3", len(lines))
	}
	rule := strings.Repeat("=", headerWidth)
	if lines[0] != rule || lines[2] != rule {
		t.Errorf("banner rules = %q / %q, want %d '='", lines[0], lines[2], headerWidth)
	}
	if strings.TrimSpace(lines[1]) != "Pipeline Run" {
		t.Errorf("banner title = %q", lines[1])
	}
}

func TestStatusLines(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
		want string
	}{
		{"step", func() { Step(2, 3, "loading dimensions") }, "[2/3] loading dimensions\n"},
		{"success", func() { Success("schema created") }, "✓ schema created\n"},
		{"info", func() { Info("8 views") }, "  8 views\n"},
		{"warning", func() { Warning("source skipped") }, "⚠ source skipped\n"},
		{"error", func() { Error("validation failed") }, "✗ validation failed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if out := capture(t, tt.fn); out != tt.want {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestSummaryAlignsValues(t *testing.T) {
	out := capture(t, func() {
		Summary("Records processed", 1205)
		Summary("Failed", 7)
	})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.HasPrefix(lines[0], "  Records processed:") {
		t.Errorf("line = %q, want label with trailing colon", lines[0])
	}
	if strings.Index(lines[0], "1205") != strings.Index(lines[1], "7") {
		t.Errorf("value columns differ:\n%q\n%q", lines[0], lines[1])
	}
}

func TestInlineTextPlainWhenUncolored(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	if got := BlueText("quickbooks"); got != "quickbooks" {
		t.Errorf("BlueText = %q", got)
	}
	if got := YellowText("partial"); got != "partial" {
		t.Errorf("YellowText = %q", got)
	}
}

func TestCenter(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  string
	}{
		{"run", 9, "   run"},
		{"run", 3, "run"},
		{"overflowing text", 5, "overflowing text"},
		{"", 4, "  "},
	}
	for _, tt := range tests {
		if got := center(tt.text, tt.width); got != tt.want {
			t.Errorf("center(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
		}
	}
}
