package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// NewHelpModal lists bindings with their help text.
func NewHelpModal(title string, bindings []key.Binding) *TextModal {
	width := 0
	for _, b := range bindings {
		width = max(width, len(b.Help().Key))
	}
	var sb strings.Builder
	for _, b := range bindings {
		h := b.Help()
		fmt.Fprintf(&sb, "  %-*s  %s\n", width, h.Key, h.Desc)
	}
	return NewTextModal("help", title, sb.String())
}
