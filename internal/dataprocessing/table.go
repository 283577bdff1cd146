package dataprocessing

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "churncli/internal/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a header-indexed set of string rows. Every row has exactly
// len(Header) cells.
type Table struct {
	Path   string
	Header []string
	Rows   [][]string
	index  map[string]int
}

// NewTable creates an empty table with the given columns.
func NewTable(header ...string) *Table {
	t := &Table{Header: append([]string(nil), header...)}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		if _, dup := t.index[h]; !dup {
			t.index[h] = i
		}
	}
}

// ReadTable loads path as CSV, or as the first sheet of a workbook when the
// extension is .xlsx.
func ReadTable(path string) (*Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return ReadXLSX(path, "")
	}
	return ReadCSV(path)
}

// ReadCSV loads a comma-separated file with a header row. A leading UTF-8
// BOM is ignored, header names are trimmed and rows are fitted to the
// header width.
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewFileError("open", path, err)
	}
	defer f.Close()

	t, err := parseCSV(f)
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, apperrors.MalformedCSV(path, perr.Line, err)
		}
		return nil, apperrors.NewFileError("read", path, err)
	}
	t.Path = path
	return t, nil
}

func parseCSV(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		if _, err := br.Discard(len(utf8BOM)); err != nil {
			return nil, err
		}
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.ErrEmptyTable
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}
	t := NewTable(header...)
	for _, rec := range records[1:] {
		t.Append(rec...)
	}
	return t, nil
}

// ReadXLSX loads a worksheet; an empty sheet name selects the first sheet.
// Short rows are padded to the header width.
func ReadXLSX(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewFileError("open", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, apperrors.NewFileError("read", path, apperrors.ErrNoSheet)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, apperrors.NewFileError("read", path, fmt.Errorf("%w: %s: %w", apperrors.ErrNoSheet, sheet, err))
	}
	if len(rows) == 0 {
		return nil, apperrors.NewFileError("read", path, apperrors.ErrEmptyTable)
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	t := NewTable(header...)
	t.Path = path
	for _, row := range rows[1:] {
		t.Append(row...)
	}
	return t, nil
}

// Require returns a FileError naming the first absent column.
func (t *Table) Require(columns ...string) error {
	for _, c := range columns {
		if !t.Has(c) {
			return apperrors.MissingColumn(t.Path, c)
		}
	}
	return nil
}

// Has reports whether column exists.
func (t *Table) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Len is the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Append adds a row, padding or truncating it to the header width.
func (t *Table) Append(cells ...string) {
	row := make([]string, len(t.Header))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
}

// Get returns the cell at row i in column, or "" when the column is absent.
func (t *Table) Get(i int, column string) string {
	j, ok := t.index[column]
	if !ok || j >= len(t.Rows[i]) {
		return ""
	}
	return t.Rows[i][j]
}

// Set writes a cell, adding the column when it does not exist yet.
func (t *Table) Set(i int, column, value string) {
	j, ok := t.index[column]
	if !ok {
		t.AddColumn(column, nil)
		j = t.index[column]
	}
	t.Rows[i][j] = value
}

// Float parses the cell at row i as a number; empty or unparsable cells
// yield NaN.
func (t *Table) Float(i int, column string) float64 {
	return ParseFloat(t.Get(i, column))
}

// Column returns a copy of every cell in column.
func (t *Table) Column(column string) []string {
	out := make([]string, len(t.Rows))
	for i := range t.Rows {
		out[i] = t.Get(i, column)
	}
	return out
}

// Floats returns column parsed with ParseFloat.
func (t *Table) Floats(column string) []float64 {
	out := make([]float64, len(t.Rows))
	for i := range t.Rows {
		out[i] = t.Float(i, column)
	}
	return out
}

// AddColumn appends a column. values may be nil for an empty column, or
// must hold one value per row. An existing column is overwritten.
func (t *Table) AddColumn(name string, values []string) {
	j, ok := t.index[name]
	if !ok {
		t.Header = append(t.Header, name)
		t.reindex()
		j = len(t.Header) - 1
		for i := range t.Rows {
			t.Rows[i] = append(t.Rows[i], "")
		}
	}
	for i := range t.Rows {
		if i < len(values) {
			t.Rows[i][j] = values[i]
		}
	}
}

// RenameColumn changes a header name in place.
func (t *Table) RenameColumn(from, to string) bool {
	j, ok := t.index[from]
	if !ok {
		return false
	}
	t.Header[j] = to
	t.reindex()
	return true
}

// Select returns a new table with only the given columns, in that order.
func (t *Table) Select(columns ...string) (*Table, error) {
	if err := t.Require(columns...); err != nil {
		return nil, err
	}
	out := NewTable(columns...)
	out.Path = t.Path
	for i := range t.Rows {
		row := make([]string, len(columns))
		for j, c := range columns {
			row[j] = t.Get(i, c)
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// Filter returns a table with the rows for which keep is true.
func (t *Table) Filter(keep func(i int) bool) *Table {
	out := NewTable(t.Header...)
	out.Path = t.Path
	for i, row := range t.Rows {
		if keep(i) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// DropDuplicates removes rows identical in every cell to an earlier row
// and returns how many were dropped.
func (t *Table) DropDuplicates() int {
	seen := make(map[string]struct{}, len(t.Rows))
	kept := t.Rows[:0]
	for _, row := range t.Rows {
		key := strings.Join(row, "\x1f")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, row)
	}
	dropped := len(t.Rows) - len(kept)
	t.Rows = kept
	return dropped
}

// ParseFloat reads a numeric cell. Empty, "nan" and unparsable cells are
// NaN.
func ParseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}
