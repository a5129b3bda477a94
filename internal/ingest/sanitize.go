// Package ingest turns a raw workbook grid into keyed records: blank and
// administrative total rows are dropped, the two header rows are merged into
// one composite header, and every data row is keyed by it.
package ingest

import (
	"strings"

	"dcpinventory-desktop/internal/spreadsheet"
)

// Markers flag subtotal rows the division office appends to its school lists
var Markers = []string{"TOTAL SCHOOL", "DIVISION TOTAL"}

// Sanitize drops empty rows and rows carrying a marker phrase.
// Kept rows are returned in their original order and are not copied.
func Sanitize(grid spreadsheet.Grid) spreadsheet.Grid {
	out := make(spreadsheet.Grid, 0, len(grid))
	for _, row := range grid {
		if IsEmptyRow(row) || ContainsMarker(row) {
			continue
		}
		out = append(out, row)
	}
	return out
}

// IsEmptyRow reports whether every cell is nil or "". A row with no cells is empty.
func IsEmptyRow(row spreadsheet.Row) bool {
	for _, cell := range row {
		if cell == nil {
			continue
		}
		if s, ok := cell.(string); ok && s == "" {
			continue
		}
		return false
	}
	return true
}

// ContainsMarker reports whether any cell contains a marker phrase, ignoring case
func ContainsMarker(row spreadsheet.Row) bool {
	for _, cell := range row {
		if cell == nil {
			continue
		}
		upper := strings.ToUpper(CellText(cell))
		for _, m := range Markers {
			if strings.Contains(upper, m) {
				return true
			}
		}
	}
	return false
}
