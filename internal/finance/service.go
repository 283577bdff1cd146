package finance

import (
	"context"
	"fmt"
	"log/slog"

	"churncli/internal/charts"
	"churncli/internal/config"
	"churncli/internal/dataprocessing"
	"churncli/internal/shared"
	"churncli/pkg/contracts/domain"
)

// Result summarizes the finance step.
type Result struct {
	Periods []domain.PeriodLossSummary
	Growth  *BonusGrowth
}

// Service runs the finance step.
type Service struct {
	env *shared.Env
}

// NewService creates the finance step.
func NewService(env *shared.Env) *Service {
	return &Service{env: env}
}

// Run writes one loss summary per academic year and the Bonus_v1
// projection of the monthly financial report.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	paths := s.env.Paths
	rules := s.env.Rules
	logger := s.env.Logger

	table, err := s.env.Load(ctx, paths.GeneralReport)
	if err != nil {
		return nil, err
	}
	if err := table.Require(domain.EnrichedReportColumns...); err != nil {
		return nil, err
	}
	records := dataprocessing.DecodeLossRecords(table)

	res := &Result{}
	horizon := Horizon{AllLessons: rules.AllLessons, MonthsPerYear: rules.MonthsPerYear}
	for _, period := range rules.Years() {
		summary := SummarizePeriod(records, period, horizon)
		res.Periods = append(res.Periods, summary)

		path := paths.GetFinancialAnalysisPath(period.Name)
		if err := s.env.Save(ctx, path, EncodeLossSummary(summary)); err != nil {
			return nil, err
		}
		chart := paths.GetLossPieChartPath(period.Name)
		s.env.ChartDone(ctx, chart, s.env.Charts.Pie(chart,
			fmt.Sprintf("School revenue and losses, %s", period.Name),
			[]charts.Slice{
				{Label: "Lost to churn", Value: summary.LossSchoolYear},
				{Label: "Retained", Value: summary.ProfitSchoolYear - summary.LossSchoolYear},
			}))

		logger.InfoContext(ctx, "period losses computed",
			slog.String("period", period.Name),
			slog.Float64("teacher_loss_pct", summary.TeacherLossPct),
			slog.Float64("company_loss_pct", summary.CompanyLossPct))
	}

	growth, err := s.bonusGrowth(ctx)
	if err != nil {
		return nil, err
	}
	res.Growth = growth
	return res, nil
}

func (s *Service) bonusGrowth(ctx context.Context) (*BonusGrowth, error) {
	paths := s.env.Paths
	logger := s.env.Logger

	reportTable, err := s.env.Load(ctx, paths.MonthlyFinancialReport)
	if err != nil {
		return nil, err
	}
	report, err := reportTable.Frame(domain.ColFinMonth)
	if err != nil {
		return nil, err
	}
	bonusTable, err := s.env.Load(ctx, paths.BonusVariants)
	if err != nil {
		return nil, err
	}
	bonus, err := bonusTable.Frame(domain.ColIndMonth, domain.ColIndTeacher)
	if err != nil {
		return nil, err
	}

	growth, err := ProjectBonus(report, bonus, BonusParams{
		RetentionOddsRatio: s.env.Rules.RetentionOddsRatio,
		CourseMonths:       s.env.Rules.CourseMonths,
		StableDispersion:   config.StableDispersionPct,
	})
	if err != nil {
		return nil, err
	}

	for _, m := range growth.Months {
		logger.DebugContext(ctx, "bonus growth coefficient",
			slog.String("month", m.Month),
			slog.Float64("mean", m.Mean),
			slog.Float64("std", m.Std))
	}
	if !growth.Stable {
		logger.WarnContext(ctx, "bonus growth coefficient is not stable across months",
			slog.Float64("max_dispersion_pct", config.StableDispersionPct))
	}

	out := dataprocessing.FrameTable(growth.Report)
	if err := s.env.Save(ctx, paths.FinalFinancialResults, out); err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "bonus projection saved",
		slog.Float64("mean_grow_expenses", growth.MeanGrowExpense),
		slog.Float64("mean_grow_profit", growth.MeanGrowProfit))

	months := out.Column(domain.ColFinMonth)
	growExp := out.Floats(domain.ColFinGrowExpenses)
	growProfit := out.Floats(domain.ColFinGrowProfit)
	s.env.ChartDone(ctx, paths.ScatterGrowthChart, s.env.Charts.Scatter(paths.ScatterGrowthChart,
		"Expense growth vs profit growth under Bonus_v1", "Grow_expenses", "Grow_profit", growExp, growProfit))
	s.env.ChartDone(ctx, paths.BarGrowthChart, s.env.Charts.Bars(paths.BarGrowthChart,
		"Profit growth under Bonus_v1 by month", "Month", "Grow_profit", months, growProfit, false))
	return growth, nil
}
