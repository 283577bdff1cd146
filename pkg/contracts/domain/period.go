package domain

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date layout used by every file in the pipeline.
const DateLayout = "2006-01-02"

// Period is an inclusive calendar date range.
type Period struct {
	Name  string    `json:"name" validate:"required"`
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtefield=Start"`
}

// NewPeriod parses start and end as YYYY-MM-DD dates.
func NewPeriod(name, start, end string) (Period, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return Period{}, fmt.Errorf("period %s: invalid start %q: %w", name, start, err)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return Period{}, fmt.Errorf("period %s: invalid end %q: %w", name, end, err)
	}
	if e.Before(s) {
		return Period{}, fmt.Errorf("period %s: end %s before start %s", name, end, start)
	}
	return Period{Name: name, Start: s, End: e}, nil
}

// MustPeriod is NewPeriod for package-level defaults.
func MustPeriod(name, start, end string) Period {
	p, err := NewPeriod(name, start, end)
	if err != nil {
		panic(err)
	}
	return p
}

// Contains reports whether t falls inside the period, both ends inclusive.
// Only the calendar date of t is considered.
func (p Period) Contains(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return !d.Before(p.Start) && !d.After(p.End)
}

// Label renders the period as "YYYY-MM-DD to YYYY-MM-DD".
func (p Period) Label() string {
	return fmt.Sprintf("%s to %s", p.Start.Format(DateLayout), p.End.Format(DateLayout))
}
