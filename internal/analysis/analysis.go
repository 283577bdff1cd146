package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"churncli/internal/charts"
	"churncli/internal/dataprocessing"
	"churncli/internal/shared"
	"churncli/pkg/contracts/domain"
)

// YearResult is the outcome of one academic year.
type YearResult struct {
	Year      string
	Label     string
	Teachers  []domain.TeacherLossStats
	Bounds    domain.OutlierBounds
	Outliers  []string
	Quartiles domain.QuartileLists
}

// Result summarizes a run of the analysis step.
type Result struct {
	Loaded     int
	Kept       int
	Flags      dataprocessing.NormalizeStats
	Years      []YearResult
	Outliers   []string
	Reasons    map[string][]domain.ReasonCount
	Categories []domain.TeacherCategoryCounts
}

// Service runs the analysis step.
type Service struct {
	env      *shared.Env
	pre      *dataprocessing.Preprocessor
	analyzer *dataprocessing.Analyzer
}

// NewService creates the analysis step.
func NewService(env *shared.Env) *Service {
	return &Service{
		env:      env,
		pre:      dataprocessing.NewPreprocessor(env.Rules, env.Logger),
		analyzer: dataprocessing.NewAnalyzer(env.Logger),
	}
}

// Run executes the step end to end.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	paths := s.env.Paths
	logger := s.env.Logger

	table, err := s.env.Load(ctx, paths.GeneralReport)
	if err != nil {
		return nil, err
	}
	if err := table.Require(domain.ReportColumns...); err != nil {
		return nil, err
	}
	records := dataprocessing.DecodeLossRecords(table)

	res := &Result{Loaded: len(records), Reasons: make(map[string][]domain.ReasonCount)}
	res.Flags = s.pre.Normalize(ctx, records)

	filtered := dataprocessing.FilterPeriod(records, s.env.Rules.Window())
	res.Kept = len(filtered)
	s.env.Skipped(ctx, "outside_analysis_window", len(records)-len(filtered))
	logger.InfoContext(ctx, "records restricted to analysis window",
		slog.String("window", s.env.Rules.Window().Label()),
		slog.Int("loaded", len(records)),
		slog.Int("kept", len(filtered)))

	out := dataprocessing.EncodeLossRecords(filtered, domain.AnalyzedReportColumns)
	if err := s.env.Save(ctx, paths.GeneralReport, out); err != nil {
		return nil, err
	}

	for i, year := range s.env.Rules.Years() {
		yr, err := s.analyzeYear(ctx, filtered, year, s.env.Rules.AcademicYears[i].Label)
		if err != nil {
			return nil, err
		}
		res.Years = append(res.Years, yr)
		res.Outliers = append(res.Outliers, yr.Outliers...)
	}
	s.drawBoxComparison(ctx, res.Years)

	if len(res.Outliers) > 0 {
		logger.InfoContext(ctx, "outlier teachers found",
			slog.Int("count", len(res.Outliers)),
			slog.Any("teachers", res.Outliers))
	}

	// reasons use every normalized record, not only the analysis window
	for _, group := range s.env.Rules.AgeLabels {
		reasons, err := s.topReasons(ctx, records, group)
		if err != nil {
			return nil, err
		}
		res.Reasons[group] = reasons
	}

	years := make([]domain.QuartileLists, len(res.Years))
	for i := range res.Years {
		kept := dataprocessing.ExcludeTeachers(res.Years[i].Teachers, res.Outliers)
		res.Years[i].Quartiles = s.analyzer.QuartileCategories(kept)
		years[i] = res.Years[i].Quartiles
		logger.InfoContext(ctx, "quartile tiers computed",
			slog.String("year", res.Years[i].Year),
			slog.Float64("q1", res.Years[i].Quartiles.Q1),
			slog.Float64("q3", res.Years[i].Quartiles.Q3),
			slog.Int("best", len(res.Years[i].Quartiles.Best)),
			slog.Int("interquartile", len(res.Years[i].Quartiles.Interquartile)),
			slog.Int("bad", len(res.Years[i].Quartiles.Bad)))
	}

	res.Categories = dataprocessing.CategoryCounts(years, res.Outliers)
	if err := s.env.Save(ctx, paths.TeachersAnalysis, dataprocessing.EncodeCategoryCounts(res.Categories)); err != nil {
		return nil, err
	}

	return res, nil
}

func (s *Service) analyzeYear(ctx context.Context, records []domain.LossRecord, year domain.Period, label string) (YearResult, error) {
	counts, err := dataprocessing.ReadGroupCounts(s.env.Paths.GetGroupCountsPath(year.Name))
	if err != nil {
		return YearResult{}, fmt.Errorf("group counts for %s: %w", year.Name, err)
	}

	teachers := s.analyzer.LossByTeacher(ctx, records, year, counts)
	if err := s.env.Save(ctx, s.env.Paths.GetTeacherStatsPath(year.Name), dataprocessing.EncodeTeacherStats(teachers)); err != nil {
		return YearResult{}, err
	}

	bounds, outliers := s.analyzer.Outliers(teachers)
	s.env.Logger.DebugContext(ctx, "loss rate fences",
		slog.String("year", year.Name),
		slog.Float64("lower", bounds.Lower),
		slog.Float64("upper", bounds.Upper))

	return YearResult{
		Year:     year.Name,
		Label:    label,
		Teachers: teachers,
		Bounds:   bounds,
		Outliers: outliers,
	}, nil
}

func (s *Service) drawBoxComparison(ctx context.Context, years []YearResult) {
	groups := make([]charts.BoxGroup, len(years))
	for i, y := range years {
		g := charts.BoxGroup{Label: y.Label}
		for _, t := range y.Teachers {
			g.Values = append(g.Values, t.PercentOfLossForOneGroup)
			g.Names = append(g.Names, t.NameNormalized)
		}
		groups[i] = g
	}
	path := s.env.Paths.BoxplotChart
	err := s.env.Charts.BoxComparison(path,
		"Annual loss rate per group by teacher",
		"Academic year", "% of losses per group", groups)
	s.env.ChartDone(ctx, path, err)
}

func (s *Service) topReasons(ctx context.Context, records []domain.LossRecord, group string) ([]domain.ReasonCount, error) {
	reasons := dataprocessing.TopReasons(records, group, s.env.Rules.TopReasons)
	if err := s.env.Save(ctx, s.env.Paths.GetTopReasonsPath(group), dataprocessing.EncodeReasons(reasons)); err != nil {
		return nil, err
	}

	title := s.env.Rules.AgeGroupTitles[group]
	if title == "" {
		title = group
	}
	slices := make([]charts.Slice, len(reasons))
	for i, r := range reasons {
		slices[i] = charts.Slice{Label: r.Reason, Value: float64(r.Count)}
	}
	path := s.env.Paths.GetTopReasonsChartPath(group)
	err := s.env.Charts.Pie(path, fmt.Sprintf("Top %d reasons for the loss of clients in age group %s", s.env.Rules.TopReasons, title), slices)
	s.env.ChartDone(ctx, path, err)
	return reasons, nil
}

// Summary renders the per-year outcome as console rows.
func (r *Result) Summary() ([]string, [][]string) {
	header := []string{"year", "teachers", "q1", "q3", "outliers", "best", "interquartile", "bad"}
	rows := make([][]string, 0, len(r.Years))
	for _, y := range r.Years {
		rows = append(rows, []string{
			y.Label,
			dataprocessing.FormatInt(len(y.Teachers)),
			dataprocessing.FormatFixed(y.Quartiles.Q1, 2),
			dataprocessing.FormatFixed(y.Quartiles.Q3, 2),
			dataprocessing.FormatInt(len(y.Outliers)),
			dataprocessing.FormatInt(len(y.Quartiles.Best)),
			dataprocessing.FormatInt(len(y.Quartiles.Interquartile)),
			dataprocessing.FormatInt(len(y.Quartiles.Bad)),
		})
	}
	return header, rows
}
