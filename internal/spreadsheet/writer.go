package spreadsheet

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const previewSheet = "Preview"

// WritePreview writes a single-sheet workbook with a header row followed by rows
func WritePreview(w io.Writer, header []string, rows [][]any) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", previewSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	head := make([]any, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := f.SetSheetRow(previewSheet, "A1", &head); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(previewSheet, cell, &r); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
