// Package export renders the seating chart as a spreadsheet.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"seatmanager/internal/model"
)

const (
	SheetSeats   = "Seating"
	SheetSummary = "Summary"
)

// sheetWriter appends rows to the sheets of one workbook.
type sheetWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func newSheetWriter() *sheetWriter {
	return &sheetWriter{file: excelize.NewFile()}
}

func (w *sheetWriter) addSheet(name string) error {
	// Excel limits sheet names to 31 characters.
	if len(name) > 31 {
		name = name[:31]
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

func (w *sheetWriter) writeHeader(columns ...string) error {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.writeRow(row...); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		start, _ := excelize.CoordinatesToCellName(1, w.currentRow-1)
		end, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow-1)
		_ = w.file.SetCellStyle(w.currentSheet, start, end, style)
	}
	return nil
}

func (w *sheetWriter) writeRow(values ...any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &values); err != nil {
		return err
	}
	w.currentRow++
	return nil
}

// WriteSeatingChart writes one row per seat and one summary row per table.
func WriteSeatingChart(out io.Writer, tables []model.Table) error {
	w := newSheetWriter()
	defer w.file.Close()

	if err := w.addSheet(SheetSeats); err != nil {
		return err
	}
	if err := w.writeHeader("Table", "Seat", "Guest", "Presence"); err != nil {
		return err
	}
	for _, t := range tables {
		for _, s := range t.Seats {
			presence := ""
			if s.Assigned() {
				presence = s.Presence()
			}
			if err := w.writeRow(t.Label, s.SeatNo, s.Guest(), presence); err != nil {
				return fmt.Errorf("write seat %s: %w", s.ID, err)
			}
		}
	}

	if err := w.addSheet(SheetSummary); err != nil {
		return err
	}
	if err := w.writeHeader("Table", "Guests", "Fill %", "Status"); err != nil {
		return err
	}
	guests := 0
	for _, t := range tables {
		n := model.Occupancy(t)
		guests += n
		if err := w.writeRow(t.Label, n, model.FillPercentage(t), string(model.StatusLabel(t))); err != nil {
			return fmt.Errorf("write table %s: %w", t.ID, err)
		}
	}
	if err := w.writeRow("Total", guests); err != nil {
		return err
	}

	return w.file.Write(out)
}
