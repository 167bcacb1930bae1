package main

import (
	"bytes"
	"testing"

	"github.com/hyperengineering/canvass"
	"github.com/stretchr/testify/assert"
)

func withTTY(t *testing.T, tty bool) {
	t.Helper()
	prev := stdoutIsTerminal
	stdoutIsTerminal = func() bool { return tty }
	t.Cleanup(func() { stdoutIsTerminal = prev })
}

func TestPrintHelpers_PlainWithoutTTY(t *testing.T) {
	withTTY(t, false)

	tests := []struct {
		name  string
		print func(*bytes.Buffer)
		want  string
	}{
		{"success", func(b *bytes.Buffer) { printSuccess(b, "saved %d", 2) }, "✓ saved 2\n"},
		{"error", func(b *bytes.Buffer) { printError(b, "failed") }, "✗ failed\n"},
		{"warning", func(b *bytes.Buffer) { printWarning(b, "careful") }, "⚠ careful\n"},
		{"info", func(b *bytes.Buffer) { printInfo(b, "note") }, "● note\n"},
		{"muted", func(b *bytes.Buffer) { printMuted(b, "quiet") }, "quiet\n"},
		{"field", func(b *bytes.Buffer) { printField(b, "Phone", "555-0101") }, "Phone: 555-0101\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.print(&buf)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestRenderStatus(t *testing.T) {
	withTTY(t, false)
	assert.Equal(t, "interested", renderStatus(canvass.LeadInterested))
}

func TestRenderMarkdown_PlainWithoutTTY(t *testing.T) {
	withTTY(t, false)
	notes := "## Roof\n- north face worn"
	assert.Equal(t, notes, renderMarkdown(notes))
}

func TestRenderMarkdown_LeavesPlainNotesAlone(t *testing.T) {
	withTTY(t, true)
	assert.Equal(t, "call after 5", renderMarkdown("call after 5"))
}

func TestHasMarkdown(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{"plain note", false},
		{"**gate code** 1234", true},
		{"- dog in yard", true},
		{"see [map](https://maps.example.com)", true},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, hasMarkdown(tt.content), tt.content)
	}
}
