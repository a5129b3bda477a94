package spreadsheet

import (
	"bytes"

	"github.com/xuri/excelize/v2"
)

func parseXLSX(data []byte) (Grid, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Format: FormatXLSX, Reason: "failed to open workbook", Err: err}
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Format: FormatXLSX, Reason: "no sheets found"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ParseError{Format: FormatXLSX, Reason: "failed to read sheet " + sheets[0], Err: err}
	}

	grid := make(Grid, len(rows))
	for i, cols := range rows {
		row := make(Row, len(cols))
		for j, c := range cols {
			row[j] = c
		}
		grid[i] = row
	}
	return grid, nil
}
