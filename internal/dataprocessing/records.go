package dataprocessing

import (
	"strconv"
	"strings"
	"time"

	"churncli/pkg/contracts/domain"
)

// dateLayouts are tried in order when parsing free-form date cells.
var dateLayouts = []string{
	domain.DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006/01/02",
	"02.01.2006",
	"01/02/2006",
}

// ParseDate parses a date cell. ok is false for empty or unparsable cells;
// invalid reports a non-empty cell that could not be parsed.
func ParseDate(s string) (t time.Time, ok, invalid bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "NaT") {
		return time.Time{}, false, false
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), true, false
		}
	}
	return time.Time{}, false, true
}

// FormatDate renders t as YYYY-MM-DD, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(domain.DateLayout)
}

var monthLayouts = []string{"2006-01", "2006/01", "01.2006", "01/2006", "January 2006", "Jan 2006"}

// ParseMonth returns the first day of the month a cell refers to. Full
// dates are accepted as well as bare months.
func ParseMonth(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if d, ok, _ := ParseDate(s); ok {
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC), true
	}
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// FormatMonth renders t as YYYY-MM.
func FormatMonth(t time.Time) string {
	return t.Format("2006-01")
}

// MonthsBetween counts whole calendar months from a to b.
func MonthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// ParseBool reads True/False cells.
func ParseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

// DecodeLossRecords converts a report table into records. Columns absent
// from the table leave their fields missing; start_date is parsed but the
// invalid flag is only set by the analysis normalization.
func DecodeLossRecords(t *Table) []domain.LossRecord {
	out := make([]domain.LossRecord, t.Len())
	for i := range t.Rows {
		r := domain.NewLossRecord()
		r.StudentName = t.Get(i, domain.ColReportStudentName)
		r.StudentID = t.Float(i, domain.ColReportStudentID)
		r.Age = t.Float(i, domain.ColReportAge)
		r.TeacherName = t.Get(i, domain.ColReportTeacherName)
		r.Subject = t.Get(i, domain.ColReportSubject)
		r.City = t.Get(i, domain.ColReportCity)
		r.GroupName = t.Get(i, domain.ColReportGroupName)
		r.GroupID = t.Float(i, domain.ColReportGroupID)
		r.StartDateRaw = t.Get(i, domain.ColReportStartDate)
		if d, ok, _ := ParseDate(r.StartDateRaw); ok {
			r.StartDate = d
		}
		r.AttendanceNumber = t.Float(i, domain.ColReportAttendance)
		r.LostReasons = t.Get(i, domain.ColReportLostReasons)

		r.CourseCostInMonth = t.Float(i, domain.ColReportCourseCost)
		r.TeacherSalaries = t.Float(i, domain.ColReportTeacherSalaries)
		r.TeacherLost = t.Float(i, domain.ColReportTeacherLost)
		r.SchoolLost = t.Float(i, domain.ColReportSchoolLost)

		r.StartDateInvalid = ParseBool(t.Get(i, domain.ColReportStartDateInvalid))
		if c, err := strconv.Atoi(strings.TrimSpace(t.Get(i, domain.ColReportCount))); err == nil {
			r.Count = c
		}
		r.TeacherNormalized = t.Get(i, domain.ColReportTeacherNorm)
		r.NameNormalized = t.Get(i, domain.ColReportNameNorm)
		r.AgeGroup = t.Get(i, domain.ColReportAgeGroup)
		r.OutOfRangeAge = ParseBool(t.Get(i, domain.ColReportOutOfRangeAge))
		out[i] = r
	}
	return out
}

// EncodeLossRecords renders records under columns, which must be drawn from
// domain.AnalyzedReportColumns.
func EncodeLossRecords(records []domain.LossRecord, columns []string) *Table {
	t := NewTable(columns...)
	for _, r := range records {
		row := make([]string, len(columns))
		for j, c := range columns {
			row[j] = lossRecordCell(r, c)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func lossRecordCell(r domain.LossRecord, column string) string {
	switch column {
	case domain.ColReportStudentName:
		return r.StudentName
	case domain.ColReportStudentID:
		return FormatNumber(r.StudentID)
	case domain.ColReportAge:
		return FormatNumber(r.Age)
	case domain.ColReportTeacherName:
		return r.TeacherName
	case domain.ColReportSubject:
		return r.Subject
	case domain.ColReportCity:
		return r.City
	case domain.ColReportGroupName:
		return r.GroupName
	case domain.ColReportGroupID:
		return FormatNumber(r.GroupID)
	case domain.ColReportStartDate:
		if r.HasStartDate() {
			return FormatDate(r.StartDate)
		}
		if r.StartDateInvalid {
			return ""
		}
		return r.StartDateRaw
	case domain.ColReportAttendance:
		return FormatNumber(r.AttendanceNumber)
	case domain.ColReportLostReasons:
		return r.LostReasons
	case domain.ColReportCourseCost:
		return FormatFloat(r.CourseCostInMonth)
	case domain.ColReportTeacherSalaries:
		return FormatFloat(r.TeacherSalaries)
	case domain.ColReportTeacherLost:
		return FormatFloat(r.TeacherLost)
	case domain.ColReportSchoolLost:
		return FormatFloat(r.SchoolLost)
	case domain.ColReportStartDateInvalid:
		return FormatBool(r.StartDateInvalid)
	case domain.ColReportCount:
		return FormatInt(r.Count)
	case domain.ColReportTeacherNorm:
		return r.TeacherNormalized
	case domain.ColReportNameNorm:
		return r.NameNormalized
	case domain.ColReportAgeGroup:
		return r.AgeGroup
	case domain.ColReportOutOfRangeAge:
		return FormatBool(r.OutOfRangeAge)
	}
	return ""
}

// LoadLossRecords reads a report file and requires the base report columns.
func LoadLossRecords(path string) ([]domain.LossRecord, error) {
	t, err := ReadCSV(path)
	if err != nil {
		return nil, err
	}
	if err := t.Require(domain.ReportColumns...); err != nil {
		return nil, err
	}
	return DecodeLossRecords(t), nil
}
