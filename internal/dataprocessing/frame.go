package dataprocessing

import (
	"math"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	apperrors "churncli/internal/errors"
)

// naValues are the cells read as missing when typing a frame.
var naValues = []string{"", "NA", "NaN", "nan", "<nil>", "None"}

// ReadFrame loads a CSV file into a typed data frame. Column types are
// detected from the values except for textColumns, which stay strings;
// empty cells are missing.
func ReadFrame(path string, textColumns ...string) (dataframe.DataFrame, error) {
	t, err := ReadCSV(path)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	return t.Frame(textColumns...)
}

// Frame converts the table into a typed data frame, keeping textColumns as
// strings.
func (t *Table) Frame(textColumns ...string) (dataframe.DataFrame, error) {
	records := make([][]string, 0, len(t.Rows)+1)
	records = append(records, t.Header)
	records = append(records, t.Rows...)

	types := make(map[string]series.Type, len(textColumns))
	for _, c := range textColumns {
		if t.Has(c) {
			types[c] = series.String
		}
	}
	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.NaNValues(naValues),
		dataframe.WithTypes(types),
	)
	if df.Err != nil {
		return df, apperrors.NewFileError("parse", t.Path, df.Err)
	}
	return df, nil
}

// FrameTable renders a data frame as a table. Floats use FormatFloat and
// missing values become empty cells.
func FrameTable(df dataframe.DataFrame) *Table {
	names := df.Names()
	t := NewTable(names...)
	if df.Nrow() == 0 {
		return t
	}

	columns := make([][]string, len(names))
	for j, name := range names {
		columns[j] = seriesCells(df.Col(name))
	}
	t.Rows = make([][]string, df.Nrow())
	for i := range t.Rows {
		row := make([]string, len(names))
		for j := range names {
			row[j] = columns[j][i]
		}
		t.Rows[i] = row
	}
	return t
}

func seriesCells(s series.Series) []string {
	na := s.IsNaN()
	out := make([]string, s.Len())
	switch s.Type() {
	case series.Float:
		for i, f := range s.Float() {
			if !na[i] {
				out[i] = FormatFloat(f)
			}
		}
	case series.Int:
		for i, f := range s.Float() {
			if !na[i] {
				out[i] = strconv.FormatInt(int64(f), 10)
			}
		}
	case series.Bool:
		for i, r := range s.Records() {
			if !na[i] {
				out[i] = FormatBool(r == "true")
			}
		}
	default:
		for i, r := range s.Records() {
			if !na[i] {
				out[i] = r
			}
		}
	}
	return out
}

// FrameFloats returns column name as floats. Missing or non-numeric values
// are NaN.
func FrameFloats(df dataframe.DataFrame, name string) ([]float64, error) {
	s := df.Col(name)
	if s.Err != nil {
		return nil, apperrors.MissingColumn("", name)
	}
	values := s.Float()
	for i, na := range s.IsNaN() {
		if na {
			values[i] = math.NaN()
		}
	}
	return values, nil
}

// FrameStrings returns column name as strings with missing values empty.
func FrameStrings(df dataframe.DataFrame, name string) ([]string, error) {
	s := df.Col(name)
	if s.Err != nil {
		return nil, apperrors.MissingColumn("", name)
	}
	return seriesCells(s), nil
}

// RequireFrame checks that df has every column.
func RequireFrame(df dataframe.DataFrame, path string, columns ...string) error {
	have := make(map[string]bool, df.Ncol())
	for _, n := range df.Names() {
		have[n] = true
	}
	for _, c := range columns {
		if !have[c] {
			return apperrors.MissingColumn(path, c)
		}
	}
	return nil
}

// SetFloats adds or replaces a float column.
func SetFloats(df dataframe.DataFrame, name string, values []float64) dataframe.DataFrame {
	return df.Mutate(series.New(values, series.Float, name))
}

// SetStrings adds or replaces a string column.
func SetStrings(df dataframe.DataFrame, name string, values []string) dataframe.DataFrame {
	return df.Mutate(series.New(values, series.String, name))
}
