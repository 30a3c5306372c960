package markdown

import (
	"fmt"
	"sort"
	"strings"

	"github.com/askdb/askdb"
	"github.com/charmbracelet/lipgloss"
)

const (
	maxTableRows = 20
	maxCellWidth = 40
	columnGap    = "  "
)

// RenderRows renders tabular query results as an aligned text table. Column
// order follows metadata.Columns when the server provides it; otherwise the
// first row's keys are used in sorted order so output stays deterministic.
// Long cells are truncated and at most maxTableRows rows are shown, with a
// muted summary line for the remainder.
func RenderRows(md askdb.QueryMetadata, width int, theme askdb.Theme) string {
	if len(md.Rows) == 0 {
		return ""
	}

	cols := md.Columns
	if len(cols) == 0 {
		for k := range md.Rows[0] {
			cols = append(cols, k)
		}
		sort.Strings(cols)
	}
	if len(cols) == 0 {
		return ""
	}

	shown := md.Rows
	if len(shown) > maxTableRows {
		shown = shown[:maxTableRows]
	}

	// Column widths from header and cell content, capped per cell.
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = len(c)
	}
	cells := make([][]string, len(shown))
	for ri, row := range shown {
		cells[ri] = make([]string, len(cols))
		for ci, c := range cols {
			v := truncateCell(formatCell(row[c]))
			cells[ri][ci] = v
			if len(v) > widths[ci] {
				widths[ci] = len(v)
			}
		}
	}

	bold := lipgloss.NewStyle().Bold(true)
	muted := lipgloss.NewStyle().Foreground(ansiColor(theme.Muted)).Faint(true)

	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteString(columnGap)
		}
		b.WriteString(bold.Render(pad(c, widths[i])))
	}
	b.WriteString("\n")

	total := 0
	for i, w := range widths {
		if i > 0 {
			total += len(columnGap)
		}
		total += w
	}
	if width > 0 && total > width {
		total = width
	}
	b.WriteString(muted.Render(strings.Repeat("─", total)))
	b.WriteString("\n")

	for _, row := range cells {
		for ci, v := range row {
			if ci > 0 {
				b.WriteString(columnGap)
			}
			b.WriteString(pad(v, widths[ci]))
		}
		b.WriteString("\n")
	}

	if rest := len(md.Rows) - len(shown); rest > 0 {
		b.WriteString(muted.Render(fmt.Sprintf("… %d more rows", rest)))
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatCell(v any) string {
	if v == nil {
		return ""
	}
	switch n := v.(type) {
	case float64:
		// JSON numbers decode as float64; keep integers free of a
		// spurious fraction.
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%g", n)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func truncateCell(s string) string {
	if len(s) <= maxCellWidth {
		return s
	}
	return s[:maxCellWidth-1] + "…"
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
