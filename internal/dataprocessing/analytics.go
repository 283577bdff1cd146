package dataprocessing

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"churncli/internal/stats"
	"churncli/pkg/contracts/domain"
)

// Column headers of the per-year teacher statistics files.
const (
	ColNameNormalized   = "name_normalized"
	ColCount            = "count"
	ColNumberOfStudents = "number_of_students"
	ColNumberOfGroup    = "number_of_group"
	ColCountOfLoss      = "count_of_loss"
	ColGlobalPercent    = "global_percent_of_loss"
	ColPercentPerGroup  = "percent_of_loss_for_one_group"
)

// TeacherStatsColumns is the column order of Teachers_Data_analysis_<year>.csv
var TeacherStatsColumns = []string{
	ColNameNormalized,
	ColCount,
	ColNumberOfStudents,
	ColNumberOfGroup,
	ColGlobalPercent,
	ColPercentPerGroup,
}

// CategoryColumns is the column order of teachers_analysis.csv
var CategoryColumns = []string{"name", "best", "interquart", "bad", "worst"}

// ReadGroupCounts loads groups_and_losts_<year>.csv. The count_of_loss
// column, when present, is ignored.
func ReadGroupCounts(path string) ([]domain.GroupCounts, error) {
	t, err := ReadCSV(path)
	if err != nil {
		return nil, err
	}
	if err := t.Require(ColNameNormalized, ColNumberOfStudents, ColNumberOfGroup); err != nil {
		return nil, err
	}
	out := make([]domain.GroupCounts, t.Len())
	for i := range t.Rows {
		out[i] = domain.GroupCounts{
			NameNormalized:   strings.TrimSpace(t.Get(i, ColNameNormalized)),
			NumberOfStudents: t.Float(i, ColNumberOfStudents),
			NumberOfGroup:    t.Float(i, ColNumberOfGroup),
		}
	}
	return out, nil
}

// Analyzer computes the churn statistics of the analysis step.
type Analyzer struct {
	logger *slog.Logger
}

// NewAnalyzer creates an analyzer
func NewAnalyzer(logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{logger: logger}
}

// LossByTeacher counts the losses of each normalized teacher inside year
// and relates them to the teacher's student and group counts. Results are
// sorted by name; teachers without counts keep missing percentages.
func (a *Analyzer) LossByTeacher(ctx context.Context, records []domain.LossRecord, year domain.Period, counts []domain.GroupCounts) []domain.TeacherLossStats {
	perTeacher := make(map[string]int)
	for _, r := range records {
		if year.Contains(r.StartDate) {
			perTeacher[r.NameNormalized] += r.Count
		}
	}

	lookup := make(map[string]domain.GroupCounts, len(counts))
	for _, c := range counts {
		if _, dup := lookup[c.NameNormalized]; dup {
			a.logger.WarnContext(ctx, "duplicate teacher in group counts, keeping first",
				slog.String("teacher", c.NameNormalized),
				slog.String("year", year.Name))
			continue
		}
		lookup[c.NameNormalized] = c
	}

	names := make([]string, 0, len(perTeacher))
	for name := range perTeacher {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]domain.TeacherLossStats, 0, len(names))
	unmatched := 0
	for _, name := range names {
		s := domain.TeacherLossStats{
			NameNormalized:           name,
			Count:                    perTeacher[name],
			NumberOfStudents:         math.NaN(),
			NumberOfGroup:            math.NaN(),
			GlobalPercentOfLoss:      math.NaN(),
			PercentOfLossForOneGroup: math.NaN(),
		}
		if c, ok := lookup[name]; ok {
			s.NumberOfStudents = c.NumberOfStudents
			s.NumberOfGroup = c.NumberOfGroup
			s.GlobalPercentOfLoss = stats.Round(stats.SafeDiv(float64(s.Count)*100, c.NumberOfStudents), 2)
			s.PercentOfLossForOneGroup = stats.Round(stats.SafeDiv(s.GlobalPercentOfLoss, c.NumberOfGroup), 2)
		} else {
			unmatched++
		}
		out = append(out, s)
	}

	if unmatched > 0 {
		a.logger.WarnContext(ctx, "teachers missing from group counts",
			slog.String("year", year.Name),
			slog.Int("count", unmatched))
	}
	return out
}

// Outliers returns the Tukey fences of the per-group loss rate and the
// teachers outside them, in row order.
func (a *Analyzer) Outliers(rows []domain.TeacherLossStats) (domain.OutlierBounds, []string) {
	values := lossRates(rows)
	bounds := stats.TukeyFences(values)
	var names []string
	for i, v := range values {
		if stats.IsOutlier(bounds, v) {
			names = append(names, rows[i].NameNormalized)
		}
	}
	return bounds, names
}

// QuartileCategories splits teachers into best (< Q1), interquartile
// (Q1..Q3 inclusive) and bad (> Q3). Missing rates belong to no tier.
func (a *Analyzer) QuartileCategories(rows []domain.TeacherLossStats) domain.QuartileLists {
	values := lossRates(rows)
	q1, q3 := stats.Quartiles(values)
	lists := domain.QuartileLists{Q1: q1, Q3: q3}
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		name := rows[i].NameNormalized
		switch {
		case v < q1:
			lists.Best = append(lists.Best, name)
		case v > q3:
			lists.Bad = append(lists.Bad, name)
		default:
			lists.Interquartile = append(lists.Interquartile, name)
		}
	}
	return lists
}

// ExcludeTeachers drops the rows whose teacher is in names.
func ExcludeTeachers(rows []domain.TeacherLossStats, names []string) []domain.TeacherLossStats {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	out := make([]domain.TeacherLossStats, 0, len(rows))
	for _, r := range rows {
		if _, ok := drop[r.NameNormalized]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// CategoryCounts counts, per teacher, how many years they fell into each
// tier; worst counts outlier occurrences. Sorted by name.
func CategoryCounts(years []domain.QuartileLists, outliers []string) []domain.TeacherCategoryCounts {
	byName := make(map[string]*domain.TeacherCategoryCounts)
	get := func(name string) *domain.TeacherCategoryCounts {
		c, ok := byName[name]
		if !ok {
			c = &domain.TeacherCategoryCounts{Name: name}
			byName[name] = c
		}
		return c
	}

	for _, y := range years {
		for _, n := range y.Best {
			get(n).Best++
		}
		for _, n := range y.Interquartile {
			get(n).Interquart++
		}
		for _, n := range y.Bad {
			get(n).Bad++
		}
	}
	for _, n := range outliers {
		get(n).Worst++
	}

	out := make([]domain.TeacherCategoryCounts, 0, len(byName))
	for _, c := range byName {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// TopReasons returns the n most frequent non-empty lost reasons among
// records of ageGroup, ties broken by first appearance.
func TopReasons(records []domain.LossRecord, ageGroup string, n int) []domain.ReasonCount {
	counts := make(map[string]int)
	var order []string
	for _, r := range records {
		reason := strings.TrimSpace(r.LostReasons)
		if r.AgeGroup != ageGroup || reason == "" {
			continue
		}
		if _, seen := counts[reason]; !seen {
			order = append(order, reason)
		}
		counts[reason]++
	}

	out := make([]domain.ReasonCount, 0, len(order))
	for _, reason := range order {
		out = append(out, domain.ReasonCount{Reason: reason, Count: counts[reason]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func lossRates(rows []domain.TeacherLossStats) []float64 {
	values := make([]float64, len(rows))
	for i, r := range rows {
		values[i] = r.PercentOfLossForOneGroup
	}
	return values
}

// EncodeTeacherStats renders per-year statistics.
func EncodeTeacherStats(rows []domain.TeacherLossStats) *Table {
	t := NewTable(TeacherStatsColumns...)
	for _, r := range rows {
		t.Append(
			r.NameNormalized,
			FormatInt(r.Count),
			FormatNumber(r.NumberOfStudents),
			FormatNumber(r.NumberOfGroup),
			FormatFloat(r.GlobalPercentOfLoss),
			FormatFloat(r.PercentOfLossForOneGroup),
		)
	}
	return t
}

// EncodeReasons renders a top reasons list.
func EncodeReasons(reasons []domain.ReasonCount) *Table {
	t := NewTable(domain.ColReportLostReasons, ColCount)
	for _, r := range reasons {
		t.Append(r.Reason, FormatInt(r.Count))
	}
	return t
}

// EncodeCategoryCounts renders teachers_analysis.csv.
func EncodeCategoryCounts(rows []domain.TeacherCategoryCounts) *Table {
	t := NewTable(CategoryColumns...)
	for _, r := range rows {
		t.Append(r.Name, FormatInt(r.Best), FormatInt(r.Interquart), FormatInt(r.Bad), FormatInt(r.Worst))
	}
	return t
}

// ReadCategoryCounts loads teachers_analysis.csv.
func ReadCategoryCounts(path string) ([]domain.TeacherCategoryCounts, error) {
	t, err := ReadCSV(path)
	if err != nil {
		return nil, err
	}
	if err := t.Require(CategoryColumns...); err != nil {
		return nil, err
	}
	atoi := func(i int, col string) int {
		v, _ := strconv.Atoi(strings.TrimSpace(t.Get(i, col)))
		return v
	}
	out := make([]domain.TeacherCategoryCounts, t.Len())
	for i := range t.Rows {
		out[i] = domain.TeacherCategoryCounts{
			Name:       t.Get(i, "name"),
			Best:       atoi(i, "best"),
			Interquart: atoi(i, "interquart"),
			Bad:        atoi(i, "bad"),
			Worst:      atoi(i, "worst"),
		}
	}
	return out, nil
}
