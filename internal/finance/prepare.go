package finance

import (
	"context"
	"log/slog"
	"math"

	"churncli/internal/dataprocessing"
	"churncli/internal/shared"
	"churncli/pkg/contracts/domain"
)

// PrepareResult summarizes the enrichment step.
type PrepareResult struct {
	Rows         int
	MissingDates int
	Unpriced     int
}

// PrepareService enriches the joined report with costs and losses.
type PrepareService struct {
	env *shared.Env
}

// NewPrepareService creates the prepare step.
func NewPrepareService(env *shared.Env) *PrepareService {
	return &PrepareService{env: env}
}

// Run reads the final report and the cost table and writes the general
// report.
func (s *PrepareService) Run(ctx context.Context) (*PrepareResult, error) {
	paths := s.env.Paths
	rules := s.env.Rules

	report, err := s.env.Load(ctx, paths.FinalReport)
	if err != nil {
		return nil, err
	}
	if err := report.Require(domain.ReportColumns...); err != nil {
		return nil, err
	}
	costs, err := s.env.Load(ctx, paths.CostsSalaries)
	if err != nil {
		return nil, err
	}
	periods, err := CostPeriodsFrom(rules)
	if err != nil {
		return nil, err
	}
	table, err := NewCostTable(costs, periods)
	if err != nil {
		return nil, err
	}

	records := dataprocessing.DecodeLossRecords(report)
	res := Enrich(records, table, LossFormulas{AllLessons: rules.AllLessons, AllMonths: rules.CourseMonths})
	if res.MissingDates > 0 {
		s.env.Logger.WarnContext(ctx, "invalid values in start_date",
			slog.Int("count", res.MissingDates))
	}
	if res.Unpriced > 0 {
		s.env.Logger.WarnContext(ctx, "rows without cost or salary",
			slog.Int("count", res.Unpriced))
	}

	out := dataprocessing.EncodeLossRecords(records, domain.EnrichedReportColumns)
	if err := s.env.Save(ctx, paths.GeneralReport, out); err != nil {
		return nil, err
	}
	s.env.Logger.InfoContext(ctx, "report enriched with costs",
		slog.Int("rows", res.Rows),
		slog.String("file", paths.GeneralReport))
	return res, nil
}

// Enrich fills cost, salary and loss columns in place. Start dates that
// are missing or unparsable are cleared and counted.
func Enrich(records []domain.LossRecord, costs *CostTable, f LossFormulas) *PrepareResult {
	res := &PrepareResult{Rows: len(records)}
	for i := range records {
		r := &records[i]
		if !r.HasStartDate() {
			res.MissingDates++
			r.StartDateRaw = ""
		}

		r.CourseCostInMonth, r.TeacherSalaries = costs.Lookup(r.City, r.StartDate)
		if math.IsNaN(r.CourseCostInMonth) || math.IsNaN(r.TeacherSalaries) {
			res.Unpriced++
		}
		r.TeacherLost = f.TeacherLost(r.TeacherSalaries, r.AttendanceNumber)
		r.SchoolLost = f.SchoolLost(r.CourseCostInMonth, r.AttendanceNumber)
	}
	return res
}
