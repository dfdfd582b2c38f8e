// Package report renders run summaries as aligned markdown tables.
package report

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

// minWidth keeps the separator row a valid markdown "---".
const minWidth = 3

// Table renders headers and rows as a markdown table whose columns are
// padded to the display width of their widest cell. Short rows are padded
// with empty cells; extra cells are dropped.
func Table(headers []string, rows [][]string) string {
	cols := len(headers)
	if cols == 0 {
		return ""
	}

	widths := make([]int, cols)
	for i := range widths {
		widths[i] = minWidth
	}

	measure := func(row []string) {
		for i := 0; i < len(row) && i < cols; i++ {
			widths[i] = max(widths[i], runewidth.StringWidth(cell(row[i])))
		}
	}

	measure(headers)

	for _, row := range rows {
		measure(row)
	}

	var sb strings.Builder

	writeRow(&sb, headers, widths)

	sb.WriteString("|")

	for _, w := range widths {
		sb.WriteString(" " + strings.Repeat("-", w) + " |")
	}

	sb.WriteString("\n")

	for _, row := range rows {
		writeRow(&sb, row, widths)
	}

	return sb.String()
}

func writeRow(sb *strings.Builder, row []string, widths []int) {
	sb.WriteString("|")

	for i, w := range widths {
		content := ""
		if i < len(row) {
			content = cell(row[i])
		}

		sb.WriteString(" ")
		sb.WriteString(content)
		sb.WriteString(strings.Repeat(" ", w-runewidth.StringWidth(content)))
		sb.WriteString(" |")
	}

	sb.WriteString("\n")
}

// cell keeps a value on one line and escapes the column separator.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")

	return strings.ReplaceAll(s, "|", `\|`)
}

// KV renders key/value pairs as a two-column table.
func KV(pairs ...any) string {
	rows := make([][]string, 0, len(pairs)/2)

	for i := 0; i+1 < len(pairs); i += 2 {
		rows = append(rows, []string{fmt.Sprint(pairs[i]), fmt.Sprint(pairs[i+1])})
	}

	return Table([]string{"metric", "value"}, rows)
}
