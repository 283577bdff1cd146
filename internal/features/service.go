package features

import (
	"context"
	"log/slog"

	"churncli/internal/dataprocessing"
	"churncli/internal/exporter"
	"churncli/internal/shared"
	"churncli/internal/store"
	"churncli/pkg/contracts/domain"
)

// Result summarizes the features step.
type Result struct {
	Groups     map[domain.TeacherGroup][]string
	Rates      int
	Importance []domain.TeacherImportance
}

// Service runs the features step.
type Service struct {
	env *shared.Env
}

// NewService creates the features step.
func NewService(env *shared.Env) *Service {
	return &Service{env: env}
}

// Run writes the cohort files, the KPI export and the importance table.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	paths := s.env.Paths
	logger := s.env.Logger

	counts, err := dataprocessing.ReadCategoryCounts(paths.TeachersAnalysis)
	if err != nil {
		return nil, err
	}
	res := &Result{Groups: SplitGroups(counts)}
	for _, g := range domain.AllTeacherGroups {
		if err := s.env.Save(ctx, paths.GetTeacherGroupPath(string(g)), EncodeNames(res.Groups[g])); err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "teacher group saved",
			slog.String("group", string(g)),
			slog.Int("teachers", len(res.Groups[g])))
	}

	rateTable, err := store.ReadTeacherRates(ctx, paths.KPIDatabase, logger)
	if err != nil {
		return nil, err
	}
	if err := s.env.Save(ctx, paths.TeachersRate, rateTable, exporter.WithBOM()); err != nil {
		return nil, err
	}
	rates := DecodeRates(rateTable)
	res.Rates = len(rates)

	report, err := s.env.Load(ctx, paths.GeneralReport)
	if err != nil {
		return nil, err
	}
	if err := report.Require(domain.ColReportNameNorm, domain.ColReportStartDate, domain.ColReportAttendance); err != nil {
		return nil, err
	}
	losses := LossCounts(dataprocessing.DecodeLossRecords(report))

	res.Importance = Importance(rates, losses)
	undated := 0
	for _, r := range res.Importance {
		if r.Month == "" {
			undated++
		}
	}
	if undated > 0 {
		logger.WarnContext(ctx, "KPI rows with unparsable dates",
			slog.Int("rows", undated))
	}
	if err := s.env.Save(ctx, paths.TeacherImportance, EncodeImportance(res.Importance)); err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "KPI importance computed",
		slog.Int("rows", len(res.Importance)),
		slog.Int("loss_months", len(losses)))
	return res, nil
}

// CompareService runs the compare step.
type CompareService struct {
	env *shared.Env
}

// NewCompareService creates the compare step.
func NewCompareService(env *shared.Env) *CompareService {
	return &CompareService{env: env}
}

// Run compares every cohort pair and writes its tables and box plots.
func (s *CompareService) Run(ctx context.Context) ([]Comparison, error) {
	paths := s.env.Paths
	logger := s.env.Logger

	rateTable, err := s.env.Load(ctx, paths.TeachersRate)
	if err != nil {
		return nil, err
	}
	if err := rateTable.Require(store.TeacherRateColumns...); err != nil {
		return nil, err
	}
	rates := DecodeRates(rateTable)

	var out []Comparison
	for _, pair := range Pairs {
		first, err := ReadNames(paths.GetTeacherGroupPath(string(pair.First)))
		if err != nil {
			return nil, err
		}
		second, err := ReadNames(paths.GetTeacherGroupPath(string(pair.Second)))
		if err != nil {
			return nil, err
		}

		c := Compare(pair, rates, first, second)
		for _, kind := range Kinds {
			if err := s.env.Save(ctx, paths.GetComparisonPath(pair.Code, kind), c.Encode(kind)); err != nil {
				return nil, err
			}
		}
		if len(c.Tests) < len(domain.KPIMetrics) {
			logger.WarnContext(ctx, "metrics skipped for lack of data",
				slog.String("pair", pair.Code),
				slog.Int("tested", len(c.Tests)))
		}

		chart := paths.GetComparisonChartPath(pair.Code, pair.FirstLabel, pair.SecondLabel)
		s.env.ChartDone(ctx, chart, s.env.Charts.MetricGrid(chart, domain.KPIMetrics,
			[]string{pair.FirstLabel, pair.SecondLabel}, c.Samples))

		logger.InfoContext(ctx, "cohorts compared",
			slog.String("pair", pair.Code),
			slog.Int("first_teachers", len(first)),
			slog.Int("second_teachers", len(second)),
			slog.Any("significant", c.Significant()))
		out = append(out, c)
	}
	return out, nil
}
