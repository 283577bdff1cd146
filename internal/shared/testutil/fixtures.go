package testutil

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"churncli/internal/config"
)

// TempPaths returns pipeline paths rooted in a fresh temp directory with
// every output directory created.
func TempPaths(t *testing.T) *config.Paths {
	t.Helper()
	root := t.TempDir()
	paths := config.NewPaths(config.PathsConfig{
		DataDir:   filepath.Join(root, "data"),
		ImagesDir: filepath.Join(root, "images"),
		LogsDir:   filepath.Join(root, "logs"),
	})
	require.NoError(t, paths.EnsureDirectories())
	return paths
}

// WriteCSV writes header and rows to path, creating parent directories.
func WriteCSV(t *testing.T, path string, header []string, rows ...[]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := csv.NewWriter(f)
	require.NoError(t, w.Write(header))
	require.NoError(t, w.WriteAll(rows))
}

// WriteFile writes raw content to path.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// ReadCSV loads path and returns the header and rows, ignoring a BOM.
func ReadCSV(t *testing.T, path string) ([]string, [][]string) {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(raw), "\ufeff"))).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records, "%s has no header", path)
	return records[0], records[1:]
}

// Column returns the values of column name from rows read by ReadCSV.
func Column(t *testing.T, header []string, rows [][]string, name string) []string {
	t.Helper()
	for j, h := range header {
		if h == name {
			out := make([]string, len(rows))
			for i, r := range rows {
				out[i] = r[j]
			}
			return out
		}
	}
	t.Fatalf("column %q not in %v", name, header)
	return nil
}
