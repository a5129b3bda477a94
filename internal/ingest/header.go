package ingest

import (
	"errors"
	"fmt"
	"strings"

	"dcpinventory-desktop/internal/spreadsheet"
)

// SplitColumn is the primary header whose sub-header names an extra column
const SplitColumn = "CONTACT NUMBERS"

// ErrHeaderRowMissing is returned when the grid is too short to hold the primary header row
var ErrHeaderRowMissing = errors.New("primary header row missing")

// Layout locates the header rows in a sanitized grid (0-based)
type Layout struct {
	HeaderRowIndex    int
	SubHeaderRowIndex int
	DataStartIndex    int
}

// DefaultLayout matches the division school list template
var DefaultLayout = Layout{
	HeaderRowIndex:    4,
	SubHeaderRowIndex: 5,
	DataStartIndex:    6,
}

// Validate rejects layouts whose data rows would overlap the header rows
func (l Layout) Validate() error {
	if l.HeaderRowIndex < 0 || l.SubHeaderRowIndex < 0 || l.DataStartIndex < 0 {
		return fmt.Errorf("layout indices must be non-negative: %+v", l)
	}
	if l.DataStartIndex <= l.HeaderRowIndex || l.DataStartIndex <= l.SubHeaderRowIndex {
		return fmt.Errorf("data rows must start after the header rows: %+v", l)
	}
	return nil
}

// Slot is one generated header name and the physical column it reads from
type Slot struct {
	Name   string
	Source int
}

// Header is the composite header. Slots follow the primary row left to right;
// a split column contributes two slots reading the same source cell.
// Names holds each distinct name once, in first-seen order.
type Header struct {
	Slots []Slot
	Names []string
}

func (h *Header) Len() int {
	return len(h.Names)
}

// BuildHeader merges the primary and secondary header rows.
// Cells are trimmed. A blank name becomes the placeholder COLUMN_<index> so every
// physical column keeps a slot and a split always adds exactly one name.
func BuildHeader(grid spreadsheet.Grid, layout Layout) (*Header, error) {
	if layout.HeaderRowIndex < 0 || layout.HeaderRowIndex >= len(grid) {
		return nil, fmt.Errorf("%w: need row %d, grid has %d rows", ErrHeaderRowMissing, layout.HeaderRowIndex, len(grid))
	}
	primary := grid[layout.HeaderRowIndex]
	// trailing blank cells are sheet padding, not columns
	for len(primary) > 0 && strings.TrimSpace(CellText(primary[len(primary)-1])) == "" {
		primary = primary[:len(primary)-1]
	}

	var secondary spreadsheet.Row
	if layout.SubHeaderRowIndex >= 0 && layout.SubHeaderRowIndex < len(grid) {
		secondary = grid[layout.SubHeaderRowIndex]
	}

	h := &Header{}
	seen := make(map[string]bool)
	add := func(name string, source int) {
		if name == "" {
			name = BlankColumnName(source)
		}
		h.Slots = append(h.Slots, Slot{Name: name, Source: source})
		if !seen[name] {
			seen[name] = true
			h.Names = append(h.Names, name)
		}
	}

	for i, cell := range primary {
		name := strings.TrimSpace(CellText(cell))
		if name == SplitColumn {
			add(strings.TrimSpace(cellAt(secondary, i)), i)
			add(SplitColumn, i)
			continue
		}
		add(name, i)
	}

	return h, nil
}

// Merge builds the composite header and one record per data row
func Merge(grid spreadsheet.Grid, layout Layout) (*Header, []*Record, error) {
	if err := layout.Validate(); err != nil {
		return nil, nil, err
	}
	header, err := BuildHeader(grid, layout)
	if err != nil {
		return nil, nil, err
	}

	var records []*Record
	for i := layout.DataStartIndex; i < len(grid); i++ {
		records = append(records, header.Project(grid[i]))
	}
	return header, records, nil
}

// Project keys a data row by the header. Cells past the row's end become "".
// When two slots share a name the later slot's value is kept.
func (h *Header) Project(row spreadsheet.Row) *Record {
	rec := NewRecord()
	for _, slot := range h.Slots {
		var v any = ""
		if slot.Source < len(row) && row[slot.Source] != nil {
			v = row[slot.Source]
		}
		rec.Set(slot.Name, v)
	}
	return rec
}

// BlankColumnName names a column whose header cell is blank
func BlankColumnName(i int) string {
	return fmt.Sprintf("COLUMN_%d", i)
}

func cellAt(row spreadsheet.Row, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return CellText(row[i])
}
