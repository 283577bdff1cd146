package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"churncli/internal/dataprocessing"
	apperrors "churncli/internal/errors"
)

// maxSheetName is the Excel limit on worksheet names.
const maxSheetName = 31

// SheetSource names a CSV result to copy into the workbook.
type SheetSource struct {
	Name string
	Path string
}

// WorkbookWriter collects result tables into one Excel file
type WorkbookWriter struct {
	logger *slog.Logger
}

// NewWorkbookWriter creates a workbook writer
func NewWorkbookWriter(logger *slog.Logger) *WorkbookWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkbookWriter{logger: logger}
}

// WriteWorkbook writes one sheet per source that exists. Numeric cells are
// stored as numbers. Missing sources are skipped and reported in the
// returned count of written sheets.
func (w *WorkbookWriter) WriteWorkbook(path string, sources []SheetSource) (int, error) {
	f := excelize.NewFile()
	defer f.Close()

	written := 0
	for _, src := range sources {
		if _, err := os.Stat(src.Path); err != nil {
			w.logger.Debug("workbook source missing, skipping",
				slog.String("sheet", src.Name),
				slog.String("path", src.Path))
			continue
		}
		t, err := dataprocessing.ReadCSV(src.Path)
		if err != nil {
			return written, err
		}

		name := sheetName(src.Name)
		if written == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return written, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return written, fmt.Errorf("create sheet %s: %w", name, err)
		}

		if err := writeSheet(f, name, t); err != nil {
			return written, err
		}
		written++
	}

	if written == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return written, apperrors.NewFileError("mkdir", filepath.Dir(path), err)
	}
	if err := f.SaveAs(path); err != nil {
		return written, apperrors.NewFileError("write", path, err)
	}

	w.logger.Info("results workbook saved",
		slog.String("file", path),
		slog.Int("sheets", written))
	return written, nil
}

func writeSheet(f *excelize.File, sheet string, t *dataprocessing.Table) error {
	for j, h := range t.Header {
		cell, err := excelize.CoordinatesToCellName(j+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for i, row := range t.Rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return err
			}
			var value interface{} = v
			if num, err := strconv.ParseFloat(v, 64); err == nil {
				value = num
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func sheetName(name string) string {
	r := []rune(name)
	if len(r) > maxSheetName {
		r = r[:maxSheetName]
	}
	return string(r)
}
