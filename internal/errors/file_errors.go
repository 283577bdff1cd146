package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
)

// Sentinel causes for failures at file-load boundaries. Wrap them in a
// FileError so callers can match with errors.Is and still see the path.
var (
	ErrFileNotFound  = stderrors.New("file not found")
	ErrMalformedCSV  = stderrors.New("malformed csv")
	ErrMissingColumn = stderrors.New("missing required column")
	ErrEmptyTable    = stderrors.New("table has no rows")
	ErrNoSheet       = stderrors.New("workbook has no readable sheet")
)

// FileError describes a failure to read or write one file.
type FileError struct {
	Path   string
	Op     string
	Column string
	Line   int
	Err    error
}

// Error implements the error interface
func (e *FileError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.Path)
	if e.Line > 0 {
		msg = fmt.Sprintf("%s (line %d)", msg, e.Line)
	}
	if e.Column != "" {
		msg = fmt.Sprintf("%s column %q", msg, e.Column)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *FileError) Unwrap() error {
	return e.Err
}

// NewFileError wraps err for path. A missing file is normalized to
// ErrFileNotFound while keeping the original error in the chain.
func NewFileError(op, path string, err error) *FileError {
	if stderrors.Is(err, fs.ErrNotExist) && !stderrors.Is(err, ErrFileNotFound) {
		err = fmt.Errorf("%w: %w", ErrFileNotFound, err)
	}
	return &FileError{Op: op, Path: path, Err: err}
}

// MissingColumn reports a required header that is not present in path.
func MissingColumn(path, column string) *FileError {
	return &FileError{Op: "read", Path: path, Column: column, Err: ErrMissingColumn}
}

// MalformedCSV reports a CSV syntax error at line.
func MalformedCSV(path string, line int, err error) *FileError {
	return &FileError{Op: "parse", Path: path, Line: line, Err: fmt.Errorf("%w: %w", ErrMalformedCSV, err)}
}

// IsFileNotFound reports whether err was caused by a missing input file.
func IsFileNotFound(err error) bool {
	return stderrors.Is(err, ErrFileNotFound)
}
