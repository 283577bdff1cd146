package domain

import (
	"math"
	"time"
)

// AttendanceRow is one lost student as exported by the CRM and enriched with
// identifiers and attendance pulled from the LMS.
type AttendanceRow struct {
	StudentName string
	GroupName   string
	GroupID     *int64
	StudentID   int64
	Attended    int
	LostReason  string
	ChildAge    string
	// Extra holds every other column of the raw extract, keyed by header.
	Extra map[string]string
}

// LossRecord is one row of the joined loss report. Numeric fields use NaN
// for missing values so that aggregates can skip them.
type LossRecord struct {
	StudentName      string
	StudentID        float64
	Age              float64
	TeacherName      string
	Subject          string
	City             string
	GroupName        string
	GroupID          float64
	StartDate        time.Time
	StartDateRaw     string
	AttendanceNumber float64
	LostReasons      string

	CourseCostInMonth float64
	TeacherSalaries   float64
	TeacherLost       float64
	SchoolLost        float64

	StartDateInvalid  bool
	Count             int
	TeacherNormalized string
	NameNormalized    string
	AgeGroup          string
	OutOfRangeAge     bool
}

// NewLossRecord returns a record whose numeric fields are all missing.
func NewLossRecord() LossRecord {
	nan := math.NaN()
	return LossRecord{
		StudentID:         nan,
		Age:               nan,
		GroupID:           nan,
		AttendanceNumber:  nan,
		CourseCostInMonth: nan,
		TeacherSalaries:   nan,
		TeacherLost:       nan,
		SchoolLost:        nan,
	}
}

// HasStartDate reports whether the start date parsed.
func (r LossRecord) HasStartDate() bool {
	return !r.StartDate.IsZero()
}
