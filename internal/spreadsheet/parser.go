// Package spreadsheet decodes uploaded workbooks into a raw grid of cells.
package spreadsheet

import (
	"fmt"
	"os"

	"github.com/gabriel-vasile/mimetype"
)

// Row is one sheet row. Cells are untyped: string, number or nil.
type Row []any

// Grid is the first sheet of a workbook, rows in sheet order
type Grid []Row

// Format is a supported workbook container
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

const (
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeXLS  = "application/vnd.ms-excel"
	mimeOLE  = "application/x-ole-storage"
	mimeZip  = "application/zip"
)

// ParseError reports a payload that is not a readable spreadsheet
type ParseError struct {
	Format Format
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "failed to parse spreadsheet"
	if e.Format != "" {
		msg += " (" + string(e.Format) + ")"
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// DetectFormat sniffs the workbook container from its bytes
func DetectFormat(data []byte) (Format, error) {
	if len(data) == 0 {
		return "", &ParseError{Reason: "empty payload"}
	}

	mime := mimetype.Detect(data)
	for m := mime; m != nil; m = m.Parent() {
		switch {
		case m.Is(mimeXLSX):
			return FormatXLSX, nil
		case m.Is(mimeXLS), m.Is(mimeOLE):
			return FormatXLS, nil
		case m.Is(mimeZip):
			// OOXML without the usual part ordering still opens with excelize
			return FormatXLSX, nil
		}
	}

	return "", &ParseError{Reason: fmt.Sprintf("unrecognized spreadsheet format %s", mime.String())}
}

// Parse decodes the first sheet of an .xlsx or .xls payload
func Parse(data []byte) (Grid, error) {
	format, err := DetectFormat(data)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatXLS:
		return parseXLS(data)
	default:
		return parseXLSX(data)
	}
}

// ParseFile reads path and parses it
func ParseFile(path string) (Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spreadsheet %s: %w", path, err)
	}
	return Parse(data)
}
