package spreadsheet

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"dnicheck/internal/models"

	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, name string, rows [][]interface{}) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		r := row
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), name)
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return path
}

func TestReadXLSX(t *testing.T) {
	path := writeWorkbook(t, "in.xlsx", [][]interface{}{
		{"Nombre", "DNI"},
		{"Ana", "111"},
		{"Luis", 222},
		{},
		{"Eva", "333"},
	})

	table, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reflect.DeepEqual(table.Header, []string{"Nombre", "DNI"}) {
		t.Fatalf("header = %v", table.Header)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("rows = %d, want 3 (blank row skipped)", len(table.Rows))
	}

	col, err := table.Column(IdentifierColumn)
	if err != nil {
		t.Fatalf("Column: %v", err)
	}
	got := []string{Cell(table.Rows[0], col), Cell(table.Rows[1], col), Cell(table.Rows[2], col)}
	want := []string{"111", "222", "333"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DNI cells = %q, want %q", got, want)
	}
}

func TestColumnMissing(t *testing.T) {
	path := writeWorkbook(t, "in.xlsx", [][]interface{}{{"Documento"}, {"111"}})

	table, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	_, err = table.Column(IdentifierColumn)
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("err = %v, want ErrMissingColumn", err)
	}
	if err.Error() != `La columna "DNI" no existe en el archivo` {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestReadHeaderOnly(t *testing.T) {
	path := writeWorkbook(t, "in.xlsx", [][]interface{}{{"DNI"}})

	table, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(table.Rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(table.Rows))
	}
}

func TestReadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	if err := os.WriteFile(path, []byte("not a workbook"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Read(path); err == nil {
		t.Fatal("expected error for corrupt workbook")
	}
}

func TestCellShortRow(t *testing.T) {
	if got := Cell([]string{"a"}, 3); got != "" {
		t.Fatalf("Cell = %q, want empty", got)
	}
}

func TestIsSupported(t *testing.T) {
	for name, want := range map[string]bool{
		"a.xlsx": true,
		"a.XLS":  true,
		"a.csv":  false,
		"xlsx":   false,
	} {
		if got := IsSupported(name); got != want {
			t.Errorf("IsSupported(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestWriteResults(t *testing.T) {
	var buf bytes.Buffer
	results := []models.RowResult{
		{DNI: "111", Resultado: "OK"},
		{DNI: "00222", Resultado: "ERROR"},
	}
	if err := WriteResults(&buf, results); err != nil {
		t.Fatalf("WriteResults: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	want := [][]string{{"DNI", "Resultado"}, {"111", "OK"}, {"00222", "ERROR"}}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows = %v, want %v", rows, want)
	}
}
