package finance

import (
	"math"

	"churncli/internal/dataprocessing"
	"churncli/internal/stats"
	"churncli/pkg/contracts/domain"
)

// LossSummaryColumns is the header of financial_analysis_<period>.csv.
var LossSummaryColumns = []string{
	"Period",
	"Teacher_Mean_Loss",
	"Teacher_Std_Loss",
	"Company_Mean_Loss",
	"Company_Std_Loss",
	"Max_Groups",
	"Avg_Salary",
	"Max_Teacher_Profit",
	"Max_Loss_Teacher",
	"Teacher_Loss_%",
	"Group_Number",
	"Mean_Lesson_Cost",
	"Profit_School_Year",
	"Loss_School_Year",
	"Company_Loss_%",
}

// Horizon holds the constants that annualize a loss.
type Horizon struct {
	AllLessons    float64
	MonthsPerYear float64
}

// SummarizePeriod computes the loss breakdown of the records that started
// inside period. Money values are rounded to cents.
func SummarizePeriod(records []domain.LossRecord, period domain.Period, h Horizon) domain.PeriodLossSummary {
	in := dataprocessing.FilterPeriod(records, period)

	teacherLost := make([]float64, 0, len(in))
	schoolLost := make([]float64, 0, len(in))
	salaries := make([]float64, 0, len(in))
	costs := make([]float64, 0, len(in))
	groupsByTeacher := make(map[string]map[float64]struct{})
	groups := make(map[float64]struct{})

	for _, r := range in {
		teacherLost = append(teacherLost, r.TeacherLost)
		schoolLost = append(schoolLost, r.SchoolLost)
		salaries = append(salaries, r.TeacherSalaries)
		costs = append(costs, r.CourseCostInMonth)
		if math.IsNaN(r.GroupID) {
			continue
		}
		groups[r.GroupID] = struct{}{}
		set, ok := groupsByTeacher[r.TeacherName]
		if !ok {
			set = make(map[float64]struct{})
			groupsByTeacher[r.TeacherName] = set
		}
		set[r.GroupID] = struct{}{}
	}

	maxGroups := 0
	for _, set := range groupsByTeacher {
		maxGroups = max(maxGroups, len(set))
	}

	s := domain.PeriodLossSummary{
		Period:          period.Name,
		TeacherMeanLoss: stats.Mean(teacherLost),
		TeacherStdLoss:  stats.StdDev(teacherLost),
		CompanyMeanLoss: stats.Mean(schoolLost),
		CompanyStdLoss:  stats.StdDev(schoolLost),
		MaxGroups:       maxGroups,
		AvgSalary:       stats.Mean(salaries),
		GroupNumber:     len(groups),
		MeanLessonCost:  stats.Mean(costs),
	}
	s.MaxTeacherProfit = float64(maxGroups) * h.AllLessons * s.AvgSalary * h.MonthsPerYear
	s.MaxLossTeacher = s.TeacherMeanLoss * float64(maxGroups)
	s.TeacherLossPct = percent(s.MaxLossTeacher, s.MaxTeacherProfit)
	s.ProfitSchoolYear = s.MeanLessonCost * float64(s.GroupNumber) * h.MonthsPerYear
	s.LossSchoolYear = s.CompanyMeanLoss * float64(s.GroupNumber)
	s.CompanyLossPct = percent(s.LossSchoolYear, s.ProfitSchoolYear)

	for _, f := range []*float64{
		&s.TeacherMeanLoss, &s.TeacherStdLoss, &s.CompanyMeanLoss, &s.CompanyStdLoss,
		&s.AvgSalary, &s.MaxTeacherProfit, &s.MaxLossTeacher,
		&s.MeanLessonCost, &s.ProfitSchoolYear, &s.LossSchoolYear,
	} {
		*f = roundMoney(*f)
	}
	return s
}

// EncodeLossSummary renders s as a one-row table.
func EncodeLossSummary(s domain.PeriodLossSummary) *dataprocessing.Table {
	t := dataprocessing.NewTable(LossSummaryColumns...)
	t.Append(
		s.Period,
		dataprocessing.FormatFloat(s.TeacherMeanLoss),
		dataprocessing.FormatFloat(s.TeacherStdLoss),
		dataprocessing.FormatFloat(s.CompanyMeanLoss),
		dataprocessing.FormatFloat(s.CompanyStdLoss),
		dataprocessing.FormatInt(s.MaxGroups),
		dataprocessing.FormatFloat(s.AvgSalary),
		dataprocessing.FormatFloat(s.MaxTeacherProfit),
		dataprocessing.FormatFloat(s.MaxLossTeacher),
		dataprocessing.FormatFloat(s.TeacherLossPct),
		dataprocessing.FormatInt(s.GroupNumber),
		dataprocessing.FormatFloat(s.MeanLessonCost),
		dataprocessing.FormatFloat(s.ProfitSchoolYear),
		dataprocessing.FormatFloat(s.LossSchoolYear),
		dataprocessing.FormatFloat(s.CompanyLossPct),
	)
	return t
}
