// Package markdown renders assistant reply text to ANSI-styled terminal
// output using goldmark for parsing and lipgloss for styling, and renders
// tabular query results as bordered tables.
package markdown

import "github.com/askdb/askdb"

// Render parses markdown source and returns ANSI-styled terminal output.
// Paragraphs and list items are word-wrapped to width. Code blocks are
// rendered at full width without reflow.
func Render(source string, width int, theme askdb.Theme) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	r := newRenderer(theme)
	return r.render([]byte(source), width)
}
