package features

import (
	"math"
	"time"

	"churncli/internal/dataprocessing"
	"churncli/internal/stats"
	"churncli/pkg/contracts/domain"
)

const (
	ColRateTeacher         = "teacher_name"
	ColRateDate            = "Date"
	ColMonth               = "Month"
	ColLossNumber          = "loss_number"
	ColMonthsWorked        = "months_worked"
	ColTotalLossNumber     = "total_loss_number"
	ColLossNormalized      = "loss_number_normalized"
	ColP                   = "p"
	importanceColumnPrefix = "importance_of_"
)

// ImportanceColumn names the importance column of a KPI metric.
func ImportanceColumn(metric string) string {
	return importanceColumnPrefix + domain.KPIShortNames[metric]
}

// ImportanceColumns is the header of Analysis_teacher_with_importance.csv.
func ImportanceColumns() []string {
	cols := append([]string{ColRateTeacher, ColRateDate}, domain.KPIMetrics...)
	cols = append(cols, ColMonth, ColLossNumber, ColMonthsWorked, ColTotalLossNumber, ColLossNormalized, ColP)
	for _, m := range domain.KPIMetrics {
		cols = append(cols, ImportanceColumn(m))
	}
	return cols
}

// DecodeRates reads the KPI export.
func DecodeRates(t *dataprocessing.Table) []domain.TeacherRate {
	out := make([]domain.TeacherRate, t.Len())
	for i := range t.Rows {
		r := domain.TeacherRate{
			TeacherName: t.Get(i, ColRateTeacher),
			Date:        t.Get(i, ColRateDate),
			Metrics:     make(map[string]float64, len(domain.KPIMetrics)),
		}
		for _, m := range domain.KPIMetrics {
			r.Metrics[m] = t.Float(i, m)
		}
		out[i] = r
	}
	return out
}

type lossKey struct {
	teacher string
	month   string
}

// LossCounts counts, per normalized teacher name and start month, the loss
// records that carry an attendance number. Records without a start date
// are ignored.
func LossCounts(records []domain.LossRecord) map[lossKey]int {
	out := make(map[lossKey]int)
	for _, r := range records {
		if r.StartDate.IsZero() || math.IsNaN(r.AttendanceNumber) {
			continue
		}
		out[lossKey{teacher: r.NameNormalized, month: dataprocessing.FormatMonth(r.StartDate)}]++
	}
	return out
}

type workPeriod struct {
	first, last time.Time
	total       int
}

// Importance joins monthly loss counts onto the KPI rows and weighs every
// KPI by the teacher's churn per month worked.
//
// months_worked spans the first to the last KPI month of the teacher
// inclusive, and loss_number_normalized is the teacher's total loss count
// divided by it. Scores are scaled from percent to fractions before p, the
// inverse of their sum, is applied.
func Importance(rates []domain.TeacherRate, losses map[lossKey]int) []domain.TeacherImportance {
	out := make([]domain.TeacherImportance, len(rates))
	periods := make(map[string]*workPeriod)
	months := make([]time.Time, len(rates))

	for i, r := range rates {
		row := domain.TeacherImportance{TeacherRate: r}
		if m, ok := dataprocessing.ParseMonth(r.Date); ok {
			months[i] = m
			row.Month = dataprocessing.FormatMonth(m)
			row.LossNumber = float64(losses[lossKey{teacher: r.TeacherName, month: row.Month}])

			wp, seen := periods[r.TeacherName]
			if !seen {
				wp = &workPeriod{first: m, last: m}
				periods[r.TeacherName] = wp
			}
			if m.Before(wp.first) {
				wp.first = m
			}
			if m.After(wp.last) {
				wp.last = m
			}
		}
		out[i] = row
	}
	for _, row := range out {
		if wp, ok := periods[row.TeacherName]; ok {
			wp.total += int(row.LossNumber)
		}
	}

	for i := range out {
		row := &out[i]
		row.LossNumberNormalized = math.NaN()
		row.TotalLossNumber = 0
		if wp, ok := periods[row.TeacherName]; ok {
			row.MonthsWorked = dataprocessing.MonthsBetween(wp.first, wp.last) + 1
			row.TotalLossNumber = float64(wp.total)
			row.LossNumberNormalized = stats.Round(stats.SafeDiv(row.TotalLossNumber, float64(row.MonthsWorked)), 2)
		}

		row.Quality = make(map[string]float64, len(domain.KPIMetrics))
		var sum float64
		for _, m := range domain.KPIMetrics {
			q := row.Metrics[m] / 100
			row.Quality[m] = q
			if !math.IsNaN(q) {
				sum += q
			}
		}
		row.P = stats.Round(stats.SafeDiv(1, sum), 2)

		row.Importance = make(map[string]float64, len(domain.KPIMetrics))
		for _, m := range domain.KPIMetrics {
			row.Importance[m] = stats.Round(row.P*row.Quality[m]*row.LossNumberNormalized, 2)
		}
		if months[i].IsZero() {
			continue
		}
		row.Date = dataprocessing.FormatDate(parsedDate(row.TeacherRate.Date, months[i]))
	}
	return out
}

// parsedDate keeps the day of full dates; bare months fall on the first.
func parsedDate(raw string, month time.Time) time.Time {
	if d, ok, _ := dataprocessing.ParseDate(raw); ok {
		return d
	}
	return month
}

// EncodeImportance renders Analysis_teacher_with_importance.csv.
func EncodeImportance(rows []domain.TeacherImportance) *dataprocessing.Table {
	t := dataprocessing.NewTable(ImportanceColumns()...)
	for _, r := range rows {
		cells := []string{r.TeacherName, r.Date}
		for _, m := range domain.KPIMetrics {
			cells = append(cells, dataprocessing.FormatFloat(r.Quality[m]))
		}
		months := ""
		if r.MonthsWorked > 0 {
			months = dataprocessing.FormatInt(r.MonthsWorked)
		}
		cells = append(cells,
			r.Month,
			dataprocessing.FormatInt(int(r.LossNumber)),
			months,
			dataprocessing.FormatFloat(r.TotalLossNumber),
			dataprocessing.FormatFloat(r.LossNumberNormalized),
			dataprocessing.FormatFloat(r.P),
		)
		for _, m := range domain.KPIMetrics {
			cells = append(cells, dataprocessing.FormatFloat(r.Importance[m]))
		}
		t.Append(cells...)
	}
	return t
}
