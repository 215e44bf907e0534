package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/marginboard/internal/styles"
)

const sheetName = "Styles"

// Writer serialises rows in either flavor.
type Writer struct {
	formatter *Formatter
}

// NewWriter builds a Writer using currencySymbol for display values.
func NewWriter(currencySymbol string) *Writer {
	return &Writer{formatter: NewFormatter(currencySymbol)}
}

// WriteCSV emits a header line followed by one line per row.
func (wr *Writer) WriteCSV(w io.Writer, rows []styles.Row, flavor Flavor) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return err
	}
	for _, row := range rows {
		var record []string
		if flavor == FlavorDisplay {
			record = wr.formatter.DisplayRow(row).Cells
		} else {
			record = NewNumericRow(row).Strings()
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteXLSX emits a single-sheet workbook. Numeric flavor keeps typed cells.
func (wr *Writer) WriteXLSX(w io.Writer, rows []styles.Row, flavor Flavor) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("export: rename sheet: %w", err)
	}
	if err := setRow(f, 1, toAny(Header)); err != nil {
		return err
	}
	for i, row := range rows {
		var cells []any
		if flavor == FlavorDisplay {
			cells = toAny(wr.formatter.DisplayRow(row).Cells)
		} else {
			cells = NewNumericRow(row).Cells()
		}
		if err := setRow(f, i+2, cells); err != nil {
			return err
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, rowNo int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNo)
	if err != nil {
		return fmt.Errorf("export: cell name: %w", err)
	}
	if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
		return fmt.Errorf("export: row %d: %w", rowNo, err)
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
