// Package spreadsheet reads uploaded Excel tables and writes result workbooks.
package spreadsheet

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// IdentifierColumn is the header holding the identifiers to verify
const IdentifierColumn = "DNI"

// ErrMissingColumn matches any MissingColumnError
var ErrMissingColumn = errors.New("missing column")

// MissingColumnError reports a required header absent from the table
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("La columna %q no existe en el archivo", e.Column)
}

func (e *MissingColumnError) Is(target error) bool {
	return target == ErrMissingColumn
}

// Table is the first sheet of a workbook: one header row and the data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of the header called name
func (t *Table) Column(name string) (int, error) {
	for i, h := range t.Header {
		if h == name {
			return i, nil
		}
	}
	return -1, &MissingColumnError{Column: name}
}

// Cell returns the value at col in row, or "" for short rows
func Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

// IsSupported reports whether filename has an Excel extension
func IsSupported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xls", ".xlsx":
		return true
	default:
		return false
	}
}

// Read loads the first sheet of the workbook at path. Blank rows are skipped
// anywhere in the sheet: the header is the first non-blank row and Rows, and
// so a job's total, counts non-blank data rows only.
func Read(path string) (*Table, error) {
	var (
		rows [][]string
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xls":
		rows, err = readXLS(path)
		if err != nil {
			// Files saved as .xls are often OOXML underneath
			if xlsxRows, xlsxErr := readXLSX(path); xlsxErr == nil {
				rows, err = xlsxRows, nil
			}
		}
	case ".xlsx":
		rows, err = readXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported spreadsheet format: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	table := &Table{}
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		if table.Header == nil {
			table.Header = row
			continue
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func readXLS(path string) ([][]string, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
