package spreadsheet

import (
	"bytes"
	"strings"

	"github.com/extrame/xls"
)

// maxXLSColumns is the BIFF8 column limit (A..IV)
const maxXLSColumns = 256

// parseXLS reads a legacy BIFF workbook. Cells come back as display text.
func parseXLS(data []byte) (grid Grid, err error) {
	// extrame/xls panics on some malformed streams
	defer func() {
		if r := recover(); r != nil {
			grid = nil
			err = &ParseError{Format: FormatXLS, Reason: "corrupt workbook"}
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, &ParseError{Format: FormatXLS, Reason: "failed to open workbook", Err: err}
	}
	// OLE containers without a Workbook or Book stream (.doc, .msg) open without error
	if wb == nil {
		return nil, &ParseError{Format: FormatXLS, Reason: "no workbook stream"}
	}
	if wb.NumSheets() == 0 {
		return nil, &ParseError{Format: FormatXLS, Reason: "no sheets found"}
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, &ParseError{Format: FormatXLS, Reason: "no sheets found"}
	}

	grid = make(Grid, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		r := sheetRow(sheet, i)
		if r == nil {
			// keep row positions stable; blank rows are dropped by the sanitizer
			grid = append(grid, Row{})
			continue
		}
		grid = append(grid, readXLSRow(r))
	}
	return grid, nil
}

// sheetRow returns nil for rows the sheet never stored. WorkSheet.Row
// dereferences the missing entry instead.
func sheetRow(sheet *xls.WorkSheet, i int) (r *xls.Row) {
	defer func() {
		if recover() != nil {
			r = nil
		}
	}()
	return sheet.Row(i)
}

// readXLSRow copies a row's cells. Rows created by a cell record without a
// ROW record report no extent, so those are scanned to the column limit.
func readXLSRow(r *xls.Row) Row {
	width := r.LastCol()
	if width <= 0 {
		width = maxXLSColumns
	}

	row := make(Row, width)
	last := -1
	for j := 0; j < width; j++ {
		text := r.Col(j)
		row[j] = text
		if strings.TrimSpace(text) != "" {
			last = j
		}
	}
	if r.LastCol() <= 0 {
		row = row[:last+1]
	}
	return row
}
