package operations

import (
	"churncli/internal/lms"
)

// StageOptions contains optional dependencies for steps
type StageOptions struct {
	// LMS serves the extract step; nil keeps an existing attendance file
	LMS lms.API
	// Workers bounds concurrent LMS rows
	Workers int
}
