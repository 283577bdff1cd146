package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	apperrors "churncli/internal/errors"
	"churncli/internal/files"
)

// InputValidator checks the tables a step reads before it starts
type InputValidator struct {
	logger *slog.Logger
}

// NewInputValidator creates a new input validator
func NewInputValidator(logger *slog.Logger) *InputValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &InputValidator{
		logger: logger,
	}
}

// ValidateInput checks that path, or its CSV/XLSX sibling, is a non-empty
// regular file.
func (v *InputValidator) ValidateInput(path string) error {
	resolved, ok := files.Resolve(path)
	if !ok {
		info, err := os.Stat(path)
		switch {
		case err != nil:
			return apperrors.NewFileError("open", path, err)
		case info.IsDir():
			return apperrors.NewFileError("open", path, fmt.Errorf("is a directory"))
		}
		return apperrors.NewFileError("open", path, apperrors.ErrFileNotFound)
	}

	fi, _ := files.Stat(resolved)
	if fi.Size == 0 {
		return apperrors.NewFileError("read", resolved, apperrors.ErrEmptyTable)
	}
	if resolved != path {
		v.logger.Debug("input resolved to alternate format",
			slog.String("configured", path),
			slog.String("file", resolved))
	}
	return nil
}

// ValidateInputs checks every path and joins the failures
func (v *InputValidator) ValidateInputs(paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := v.ValidateInput(p); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		v.logger.Warn("step inputs missing",
			slog.Int("missing", len(errs)),
			slog.Int("inputs", len(paths)))
	}
	return errors.Join(errs...)
}

// ValidateOutputDirectory ensures output directory exists or can be created
func (v *InputValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return apperrors.NewFileError("mkdir", dir, err)
	}
	return nil
}
