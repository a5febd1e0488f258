package format

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/standardbeagle/conch/command"
)

const verticalStars = "***************************"

// renderTable draws the MySQL-style grid:
//
//	+------+-------+
//	| id   | name  |
//	+------+-------+
//	| 1    | Alice |
//	+------+-------+
func renderTable(data any) string {
	g := normalize(data)
	if len(g.rows) == 0 {
		return "Empty set\n"
	}

	widths := make([]int, len(g.columns))
	for i, col := range g.columns {
		widths[i] = utf8.RuneCountInString(col)
	}
	cells := make([][]string, len(g.rows))
	for i, row := range g.rows {
		cells[i] = make([]string, len(g.columns))
		for j := range g.columns {
			var v any
			if j < len(row) {
				v = row[j]
			}
			s := cell(v)
			cells[i][j] = s
			if w := utf8.RuneCountInString(s); w > widths[j] {
				widths[j] = w
			}
		}
	}

	var b strings.Builder
	sep := separator(widths)

	b.WriteString(sep)
	writeRow(&b, g.columns, widths)
	b.WriteString(sep)
	for _, row := range cells {
		writeRow(&b, row, widths)
	}
	b.WriteString(sep)

	return b.String()
}

func separator(widths []int) string {
	var b strings.Builder
	b.WriteByte('+')
	for _, w := range widths {
		b.WriteString(strings.Repeat("-", w+2))
		b.WriteByte('+')
	}
	b.WriteByte('\n')
	return b.String()
}

func writeRow(b *strings.Builder, cells []string, widths []int) {
	b.WriteByte('|')
	for i, w := range widths {
		s := ""
		if i < len(cells) {
			s = cells[i]
		}
		pad := w - utf8.RuneCountInString(s)
		b.WriteByte(' ')
		b.WriteString(s)
		b.WriteString(strings.Repeat(" ", pad))
		b.WriteString(" |")
	}
	b.WriteByte('\n')
}

// renderJSON emits the data with two-space indentation and a trailing
// newline.
func renderJSON(data any) string {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "Error: " + err.Error() + "\n"
	}
	return string(out) + "\n"
}

// renderCSV emits an RFC 4180 document, header row first.
func renderCSV(data any) string {
	g := normalize(data)
	if len(g.columns) == 0 {
		return ""
	}

	var b strings.Builder
	w := csv.NewWriter(&b)

	_ = w.Write(g.columns)
	record := make([]string, len(g.columns))
	for _, row := range g.rows {
		for j := range g.columns {
			var v any
			if j < len(row) {
				v = row[j]
			}
			record[j] = cell(v)
		}
		_ = w.Write(record)
	}
	w.Flush()

	return b.String()
}

// renderVertical draws each row under a numbered banner with field
// names right-aligned, the layout MySQL uses for \G:
//
//	*************************** 1. row ***************************
//	       id: 1
//	     name: Alice
//
// When the result metadata carries duration_ms, a
// "N rows in set (S.SS sec)" summary follows.
func renderVertical(res command.Result) string {
	g := normalize(res.Data)
	if len(g.rows) == 0 {
		return "Empty set\n"
	}

	nameWidth := 0
	for _, col := range g.columns {
		if w := utf8.RuneCountInString(col); w > nameWidth {
			nameWidth = w
		}
	}

	var b strings.Builder
	for i, row := range g.rows {
		fmt.Fprintf(&b, "%s %d. row %s\n", verticalStars, i+1, verticalStars)
		for j, col := range g.columns {
			var v any
			if j < len(row) {
				v = row[j]
			}
			fmt.Fprintf(&b, "%*s: %s\n", nameWidth, col, cell(v))
		}
	}

	if ms, ok := durationMS(res.Metadata); ok {
		fmt.Fprintf(&b, "%d rows in set (%.2f sec)\n", len(g.rows), ms/1000)
	}

	return b.String()
}

func durationMS(metadata map[string]any) (float64, bool) {
	if metadata == nil {
		return 0, false
	}
	switch v := metadata["duration_ms"].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}
