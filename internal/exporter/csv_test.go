package exporter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churncli/internal/dataprocessing"
	"churncli/internal/shared/testutil"
)

func TestCSVWriter_WriteCSV(t *testing.T) {
	paths := testutil.TempPaths(t)
	w := NewCSVWriter(paths, nil)

	tests := []struct {
		name    string
		file    string
		opts    WriteOptions
		wantBOM bool
		want    [][]string
	}{
		{
			name: "bare name lands in data dir",
			file: "plain.csv",
			opts: WriteOptions{Headers: []string{"a", "b"}, Records: [][]string{{"1", "2"}}},
			want: [][]string{{"1", "2"}},
		},
		{
			name:    "bom prefix",
			file:    "bom.csv",
			opts:    WriteOptions{Headers: []string{"name"}, Records: [][]string{{"Іван"}}, BOMPrefix: true},
			wantBOM: true,
			want:    [][]string{{"Іван"}},
		},
		{
			name: "quoted cells",
			file: "quoted.csv",
			opts: WriteOptions{Headers: []string{"reason"}, Records: [][]string{{"moved, abroad"}, {`said "no"`}}},
			want: [][]string{{"moved, abroad"}, {`said "no"`}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, w.WriteCSV(tt.file, tt.opts))

			full := filepath.Join(paths.DataDir, tt.file)
			raw, err := os.ReadFile(full)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBOM, len(raw) >= 3 && string(raw[:3]) == "\ufeff")

			header, rows := testutil.ReadCSV(t, full)
			assert.Equal(t, tt.opts.Headers, header)
			assert.Equal(t, tt.want, rows)
		})
	}
}

func TestCSVWriter_Append(t *testing.T) {
	paths := testutil.TempPaths(t)
	w := NewCSVWriter(paths, nil)
	path := filepath.Join(paths.DataDir, "nested", "log.csv")

	require.NoError(t, w.WriteSimpleCSV(path, []string{"step"}, [][]string{{"extract"}}))
	require.NoError(t, w.WriteCSV(path, WriteOptions{Headers: []string{"step"}, Records: [][]string{{"build-db"}}, Append: true}))

	header, rows := testutil.ReadCSV(t, path)
	assert.Equal(t, []string{"step"}, header)
	assert.Equal(t, [][]string{{"extract"}, {"build-db"}}, rows)
}

func TestCSVWriter_WriteTable(t *testing.T) {
	paths := testutil.TempPaths(t)
	logger, handler := testutil.NewTestLogger(t)
	w := NewCSVWriter(paths, logger)

	tbl := dataprocessing.NewTable("name", "count")
	tbl.Append("Price", "2")
	tbl.Append("Moved", "1")

	path := filepath.Join(paths.DataDir, "Top3_reasons_of_loss_A.csv")
	require.NoError(t, w.WriteTable(path, tbl, WithBOM()))

	back, err := dataprocessing.ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, tbl.Header, back.Header)
	assert.Equal(t, tbl.Rows, back.Rows)
	assert.True(t, handler.ContainsMessage("table saved"))
	assert.True(t, handler.ContainsAttr("rows", int64(2)))
}

func TestStreamWriter(t *testing.T) {
	paths := testutil.TempPaths(t)
	w := NewCSVWriter(paths, nil)

	sw, err := w.CreateStreamWriter("stream.csv", []string{"id", "name"})
	require.NoError(t, err)
	for _, r := range [][]string{{"1", "a"}, {"2", "b"}} {
		require.NoError(t, sw.WriteRecord(r))
	}
	require.NoError(t, sw.Close())

	header, rows := testutil.ReadCSV(t, filepath.Join(paths.DataDir, "stream.csv"))
	assert.Equal(t, []string{"id", "name"}, header)
	assert.Len(t, rows, 2)
}
