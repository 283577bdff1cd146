package files

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileInfo represents information about a discovered file
type FileInfo struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// alternates lists the extensions tried when a table is missing
var alternates = map[string][]string{
	".csv":  {".xlsx"},
	".xlsx": {".csv"},
}

// Resolve returns path when it is a regular file, otherwise the first
// sibling with the same base name and an alternate table extension.
func Resolve(path string) (string, bool) {
	if isFile(path) {
		return path, true
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for _, alt := range alternates[strings.ToLower(ext)] {
		for _, candidate := range []string{base + alt, base + strings.ToUpper(alt)} {
			if isFile(candidate) {
				return candidate, true
			}
		}
	}
	return path, false
}

// Stat describes path; directories and missing files report false.
func Stat(path string) (FileInfo, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return FileInfo{}, false
	}
	return FileInfo{
		Path:    path,
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, true
}

// Inventory stats every path that exists, keeping the order of paths.
func Inventory(paths []string) []FileInfo {
	out := make([]FileInfo, 0, len(paths))
	for _, p := range paths {
		if fi, ok := Stat(p); ok {
			out = append(out, fi)
		}
	}
	return out
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
