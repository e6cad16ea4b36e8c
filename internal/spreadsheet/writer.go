package spreadsheet

import (
	"fmt"
	"io"

	"dnicheck/internal/models"

	"github.com/xuri/excelize/v2"
)

const resultSheet = "Sheet1"

// WriteResults encodes results as an xlsx workbook with DNI and Resultado columns
func WriteResults(w io.Writer, results []models.RowResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetRow(resultSheet, "A1", &[]interface{}{IdentifierColumn, "Resultado"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(resultSheet, cell, &[]interface{}{r.DNI, r.Resultado}); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to encode workbook: %w", err)
	}
	return nil
}
