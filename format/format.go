// Package format renders command results for display: aligned ASCII
// tables, indented JSON, RFC 4180 CSV, and the MySQL-style vertical
// layout selected per command with \G.
package format

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/standardbeagle/conch/command"
)

// Format names accepted by Render.
const (
	Table    = "table"
	JSON     = "json"
	CSV      = "csv"
	Vertical = "vertical"
)

// Names returns the valid format names for help output.
func Names() []string {
	return []string{Table, JSON, CSV, Vertical}
}

// Valid reports whether name is a known format.
func Valid(name string) bool {
	switch name {
	case Table, JSON, CSV, Vertical:
		return true
	}
	return false
}

// Render formats a result. Failed results render as "Error: <error>"
// in every format. Results without data render their message, or a
// generic completion line. An unknown format name falls back to the
// table format.
func Render(res command.Result, format string) string {
	if !res.Success {
		return "Error: " + res.Error + "\n"
	}
	if res.Data == nil {
		if res.Message != "" {
			return res.Message + "\n"
		}
		return "Command completed successfully\n"
	}

	switch format {
	case JSON:
		return renderJSON(res.Data)
	case CSV:
		return renderCSV(res.Data)
	case Vertical:
		return renderVertical(res)
	default:
		return renderTable(res.Data)
	}
}

// grid is the normalized row/column form every renderer consumes.
type grid struct {
	columns []string
	rows    [][]any
}

// normalize coerces the data shapes handlers produce into a grid:
//
//   - {"columns": [...], "rows": [[...], ...]} objects keep their
//     column order (this is how ordered tables survive JSON transport)
//   - a map becomes a two-column Key | Value table, one row per entry
//   - a list of maps becomes rows over the first row's keys (sorted,
//     since Go maps carry no insertion order); keys appearing only in
//     later rows are dropped
//   - any other list becomes a single "value" column
//   - a scalar becomes a single cell
func normalize(data any) grid {
	switch d := data.(type) {
	case map[string]any:
		if g, ok := columnsRowsGrid(d); ok {
			return g
		}
		keys := sortedKeys(d)
		rows := make([][]any, len(keys))
		for i, k := range keys {
			rows[i] = []any{k, d[k]}
		}
		return grid{columns: []string{"Key", "Value"}, rows: rows}

	case []map[string]any:
		items := make([]any, len(d))
		for i, m := range d {
			items[i] = m
		}
		return normalizeList(items)

	case []any:
		return normalizeList(d)

	case []string:
		items := make([]any, len(d))
		for i, s := range d {
			items[i] = s
		}
		return normalizeList(items)

	default:
		return grid{columns: []string{"value"}, rows: [][]any{{data}}}
	}
}

func normalizeList(items []any) grid {
	if len(items) == 0 {
		return grid{}
	}

	allMaps := true
	for _, item := range items {
		if _, ok := item.(map[string]any); !ok {
			allMaps = false
			break
		}
	}

	if !allMaps {
		rows := make([][]any, len(items))
		for i, item := range items {
			rows[i] = []any{item}
		}
		return grid{columns: []string{"value"}, rows: rows}
	}

	// Columns come from the first row alone.
	cols := sortedKeys(items[0].(map[string]any))

	rows := make([][]any, len(items))
	for i, item := range items {
		m := item.(map[string]any)
		row := make([]any, len(cols))
		for j, c := range cols {
			if v, ok := m[c]; ok {
				row[j] = v
			}
		}
		rows[i] = row
	}
	return grid{columns: cols, rows: rows}
}

// columnsRowsGrid recognizes the explicit ordered-table object.
func columnsRowsGrid(m map[string]any) (grid, bool) {
	rawCols, ok := m["columns"].([]any)
	if !ok {
		return grid{}, false
	}
	rawRows, ok := m["rows"].([]any)
	if !ok {
		return grid{}, false
	}

	cols := make([]string, len(rawCols))
	for i, c := range rawCols {
		s, ok := c.(string)
		if !ok {
			return grid{}, false
		}
		cols[i] = s
	}

	rows := make([][]any, len(rawRows))
	for i, r := range rawRows {
		cells, ok := r.([]any)
		if !ok {
			return grid{}, false
		}
		row := make([]any, len(cols))
		copy(row, cells)
		rows[i] = row
	}
	return grid{columns: cols, rows: rows}, true
}

// TableData builds the ordered-table object handlers return when
// column order matters. It survives JSON re-encoding, so clients see
// the same order the handler chose.
func TableData(columns []string, rows [][]any) map[string]any {
	rawRows := make([]any, len(rows))
	for i, row := range rows {
		cells := make([]any, len(row))
		copy(cells, row)
		rawRows[i] = cells
	}
	rawCols := make([]any, len(columns))
	for i, c := range columns {
		rawCols[i] = c
	}
	return map[string]any{"columns": rawCols, "rows": rawRows}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// cell renders one value for table, CSV, and vertical output.
func cell(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		if s {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case json.Number:
		return s.String()
	}
	// Composite values render as compact JSON.
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}
