package features

import (
	"context"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churncli/internal/dataprocessing"
	"churncli/internal/shared"
	"churncli/internal/shared/testutil"
	"churncli/internal/store"
	"churncli/pkg/contracts/domain"
)

func uniform(v float64) map[string]float64 {
	m := make(map[string]float64, len(domain.KPIMetrics))
	for _, k := range domain.KPIMetrics {
		m[k] = v
	}
	return m
}

func rate(teacher, date string, metrics map[string]float64) domain.TeacherRate {
	return domain.TeacherRate{TeacherName: teacher, Date: date, Metrics: metrics}
}

func loss(teacher, start string, attendance float64) domain.LossRecord {
	r := domain.NewLossRecord()
	r.NameNormalized = teacher
	r.StartDateRaw = start
	if d, ok, _ := dataprocessing.ParseDate(start); ok {
		r.StartDate = d
	}
	r.AttendanceNumber = attendance
	return r
}

var tierCounts = []domain.TeacherCategoryCounts{
	{Name: "Анна Коваль", Best: 2},
	{Name: "Борис Левченко", Best: 1, Bad: 1},
	{Name: "Віра Мельник", Interquart: 1, Worst: 1},
	{Name: "Галина Ткач", Bad: 1},
	{Name: "Олег Попруга", Interquart: 2},
	{Name: "Петро Сидоренко", Interquart: 1},
}

func TestInGroup(t *testing.T) {
	tests := []struct {
		name   string
		counts domain.TeacherCategoryCounts
		want   []domain.TeacherGroup
	}{
		{"twice best", tierCounts[0], []domain.TeacherGroup{domain.TeacherGroupStable}},
		{"best and bad", tierCounts[1], []domain.TeacherGroup{domain.TeacherGroupUnstable, domain.TeacherGroupBestOnce, domain.TeacherGroupBadOnce}},
		{"interquart and worst", tierCounts[2], []domain.TeacherGroup{domain.TeacherGroupUnstable}},
		{"bad once", tierCounts[3], []domain.TeacherGroup{domain.TeacherGroupBadOnce}},
		{"single year", tierCounts[5], nil},
		{"twice worst", domain.TeacherCategoryCounts{Worst: 2}, []domain.TeacherGroup{domain.TeacherGroupStable}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []domain.TeacherGroup
			for _, g := range domain.AllTeacherGroups {
				if InGroup(g, tt.counts) {
					got = append(got, g)
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitGroups(t *testing.T) {
	groups := SplitGroups(tierCounts)
	assert.Equal(t, []string{"Анна Коваль", "Олег Попруга"}, groups[domain.TeacherGroupStable])
	assert.Equal(t, []string{"Борис Левченко", "Віра Мельник"}, groups[domain.TeacherGroupUnstable])
	assert.Equal(t, []string{"Борис Левченко"}, groups[domain.TeacherGroupBestOnce])
	assert.Equal(t, []string{"Борис Левченко", "Галина Ткач"}, groups[domain.TeacherGroupBadOnce])

	empty := SplitGroups(nil)
	assert.Len(t, empty, 4)
	assert.Empty(t, empty[domain.TeacherGroupStable])
}

func TestLossCounts(t *testing.T) {
	counts := LossCounts([]domain.LossRecord{
		loss("Анна Коваль", "2023-10-02", 4),
		loss("Анна Коваль", "2023-10-20", 1),
		loss("Анна Коваль", "2023-11-05", 3),
		loss("Анна Коваль", "2023-11-06", math.NaN()),
		loss("Анна Коваль", "", 2),
	})
	assert.Equal(t, map[lossKey]int{
		{teacher: "Анна Коваль", month: "2023-10"}: 2,
		{teacher: "Анна Коваль", month: "2023-11"}: 1,
	}, counts)
}

func TestImportance(t *testing.T) {
	first := uniform(90)
	first[domain.MetricControlOfPotentialLoss] = 85
	first[domain.MetricAverageSuccess] = 75

	rates := []domain.TeacherRate{
		rate("Анна Коваль", "2023-10-01", first),
		rate("Анна Коваль", "2023-12", uniform(80)),
		rate("Олег Попруга", "someday", uniform(50)),
	}
	losses := map[lossKey]int{
		{teacher: "Анна Коваль", month: "2023-10"}: 2,
		{teacher: "Анна Коваль", month: "2023-11"}: 1,
	}
	rows := Importance(rates, losses)
	require.Len(t, rows, 3)

	a := rows[0]
	assert.Equal(t, "2023-10", a.Month)
	assert.Equal(t, "2023-10-01", a.Date)
	assert.Equal(t, 2.0, a.LossNumber)
	assert.Equal(t, 3, a.MonthsWorked)
	assert.Equal(t, 2.0, a.TotalLossNumber)
	assert.Equal(t, 0.67, a.LossNumberNormalized)
	assert.Equal(t, 0.23, a.P)
	assert.InDelta(t, 0.9, a.Quality[domain.MetricFeedbackForParents], 1e-12)
	assert.Equal(t, 0.14, a.Importance[domain.MetricFeedbackForParents])
	assert.Equal(t, 0.13, a.Importance[domain.MetricControlOfPotentialLoss])
	assert.Equal(t, 0.12, a.Importance[domain.MetricAverageSuccess])

	b := rows[1]
	assert.Equal(t, "2023-12-01", b.Date)
	assert.Zero(t, b.LossNumber)
	assert.Equal(t, 0.25, b.P)
	assert.Equal(t, 0.13, b.Importance[domain.MetricControlOfHomework])

	o := rows[2]
	assert.Empty(t, o.Month)
	assert.Equal(t, "someday", o.Date)
	assert.Zero(t, o.MonthsWorked)
	assert.True(t, math.IsNaN(o.LossNumberNormalized))
	assert.True(t, math.IsNaN(o.Importance[domain.MetricAverageSuccess]))

	out := EncodeImportance(rows)
	assert.Equal(t, ImportanceColumns(), out.Header)
	assert.Equal(t, "importance_of_success", out.Header[len(out.Header)-1])
	assert.Equal(t, "2", out.Get(0, ColLossNumber))
	assert.Equal(t, "3", out.Get(0, ColMonthsWorked))
	assert.Equal(t, "2.0", out.Get(0, ColTotalLossNumber))
	assert.Equal(t, "0.9", out.Get(0, domain.MetricFeedbackForParents))
	assert.Equal(t, "0", out.Get(2, ColLossNumber))
	assert.Empty(t, out.Get(2, ColMonthsWorked))
	assert.Empty(t, out.Get(2, ColLossNormalized))
}

func TestImportanceMissingScores(t *testing.T) {
	scores := uniform(math.NaN())
	scores[domain.MetricFeedbackForParents] = 50
	rows := Importance([]domain.TeacherRate{rate("Анна Коваль", "2024-01-01", scores)},
		map[lossKey]int{{teacher: "Анна Коваль", month: "2024-01"}: 4})
	require.Len(t, rows, 1)
	assert.Equal(t, 2.0, rows[0].P)
	assert.Equal(t, 4.0, rows[0].LossNumberNormalized)
	assert.Equal(t, 4.0, rows[0].Importance[domain.MetricFeedbackForParents])
	assert.True(t, math.IsNaN(rows[0].Importance[domain.MetricAverageSuccess]))
}

func TestCompare(t *testing.T) {
	rates := []domain.TeacherRate{
		rate("Анна Коваль", "2023-10-01", uniform(90)),
		rate("Анна Коваль", "2023-11-01", uniform(80)),
		rate("Олег Попруга", "2023-10-01", uniform(70)),
		rate("Борис Левченко", "2023-10-01", uniform(50)),
		rate("Борис Левченко", "2023-11-01", uniform(60)),
		rate("Борис Левченко", "2023-12-01", uniform(math.NaN())),
		rate("Сторонній", "2023-10-01", uniform(10)),
	}

	tests := []struct {
		name       string
		pair       Pair
		first      []string
		second     []string
		categories []string
		tests      int
	}{
		{"stable vs unstable", Pairs[0], []string{"Анна Коваль", "Олег Попруга"}, []string{"Борис Левченко"}, []string{"Stable", "Unstable"}, 5},
		{"empty cohort", Pairs[1], nil, []string{"Борис Левченко"}, []string{"Bad_One_Year"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Compare(tt.pair, rates, tt.first, tt.second)
			assert.Equal(t, tt.categories, c.Categories)
			assert.Len(t, c.Tests, tt.tests)
		})
	}

	c := Compare(Pairs[0], rates, []string{"Анна Коваль", "Олег Попруга"}, []string{"Борис Левченко"})
	assert.Equal(t, []float64{90, 80, 70}, c.Samples[domain.MetricAverageSuccess]["Stable"])
	assert.Equal(t, []float64{50, 60}, c.Samples[domain.MetricAverageSuccess]["Unstable"])
	assert.Equal(t, 80.0, c.Mean["Stable"][domain.MetricFeedbackForParents])
	assert.Equal(t, 55.0, c.Median["Unstable"][domain.MetricFeedbackForParents])

	test := c.Tests[0]
	assert.Equal(t, domain.MetricFeedbackForParents, test.Metric)
	assert.Equal(t, 6.0, test.U)
	assert.InDelta(t, 0.2, test.P, 1e-9)
	assert.False(t, test.Significant)
	assert.Empty(t, c.Significant())

	mean := c.Encode(KindMean)
	assert.Equal(t, append([]string{"category"}, domain.KPIMetrics...), mean.Header)
	assert.Equal(t, []string{"Stable", "80.0", "80.0", "80.0", "80.0", "80.0"}, mean.Rows[0])
	median := c.Encode(KindMedian)
	assert.Equal(t, "55.0", median.Get(1, domain.MetricAverageSuccess))
	mw := c.Encode(KindMannWhitney)
	assert.Equal(t, []string{"metric", "U_stat", "p_value", "significant"}, mw.Header)
	assert.Equal(t, []string{domain.MetricFeedbackForParents, "6.0", "0.2", "False"}, mw.Rows[0])
}

func TestCompareSignificant(t *testing.T) {
	var rates []domain.TeacherRate
	day := time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		date := dataprocessing.FormatDate(day.AddDate(0, i, 0))
		rates = append(rates,
			rate("Анна Коваль", date, uniform(float64(90+i))),
			rate("Галина Ткач", date, uniform(float64(40+i))))
	}
	c := Compare(Pairs[1], rates, []string{"Анна Коваль"}, []string{"Галина Ткач"})
	assert.Equal(t, []string{"Bad_One_Year", "Best_One_Year"}, c.Categories)
	require.Len(t, c.Tests, 5)
	assert.Equal(t, 36.0, c.Tests[0].U)
	assert.Equal(t, 0.0022, c.Tests[0].P)
	assert.True(t, c.Tests[0].Significant)
	assert.Equal(t, domain.KPIMetrics, c.Significant())
}

func TestServices(t *testing.T) {
	ctx := context.Background()
	paths := testutil.TempPaths(t)
	handler := testutil.NewBufferedSlogHandler(t)
	env := shared.NewEnv(paths, nil, slog.New(handler))

	testutil.WriteCSV(t, paths.TeachersAnalysis, dataprocessing.CategoryColumns,
		[]string{"Анна Коваль", "2", "0", "0", "0"},
		[]string{"Борис Левченко", "1", "0", "1", "0"},
		[]string{"Галина Ткач", "0", "0", "1", "0"},
	)
	var rates []domain.TeacherRate
	for i, month := range []string{"2023-10-01", "2023-11-01", "2023-12-01"} {
		rates = append(rates,
			rate("Анна Коваль", month, uniform(float64(90+i))),
			rate("Борис Левченко", month, uniform(float64(60+i))),
			rate("Галина Ткач", month, uniform(float64(50+i))))
	}
	require.NoError(t, store.WriteTeacherRates(ctx, paths.KPIDatabase, rates))
	testutil.WriteCSV(t, paths.GeneralReport,
		[]string{domain.ColReportNameNorm, domain.ColReportStartDate, domain.ColReportAttendance},
		[]string{"Борис Левченко", "2023-10-03", "2"},
		[]string{"Борис Левченко", "2023-10-09", "5"},
		[]string{"Галина Ткач", "2023-12-09", "1"},
	)

	res, err := NewService(env).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, res.Rates)
	assert.Equal(t, []string{"Анна Коваль"}, res.Groups[domain.TeacherGroupStable])

	header, rows := testutil.ReadCSV(t, paths.GetTeacherGroupPath("D"))
	assert.Equal(t, []string{"name"}, header)
	assert.Equal(t, [][]string{{"Борис Левченко"}, {"Галина Ткач"}}, rows)

	header, rows = testutil.ReadCSV(t, paths.TeachersRate)
	assert.Equal(t, store.TeacherRateColumns, header)
	assert.Len(t, rows, 9)

	header, rows = testutil.ReadCSV(t, paths.TeacherImportance)
	assert.Equal(t, ImportanceColumns(), header)
	require.Len(t, rows, 9)
	borys := testutil.Column(t, header, rows, ColLossNormalized)[3]
	assert.Equal(t, "0.67", borys)
	testutil.AssertNoErrors(t, handler)

	comparisons, err := NewCompareService(env).Run(ctx)
	require.NoError(t, err)
	require.Len(t, comparisons, 2)
	for _, pair := range Pairs {
		for _, kind := range []string{KindMean, KindMedian, KindMannWhitney} {
			assert.FileExists(t, paths.GetComparisonPath(pair.Code, kind))
		}
		assert.FileExists(t, paths.GetComparisonChartPath(pair.Code, pair.FirstLabel, pair.SecondLabel))
	}
	_, rows = testutil.ReadCSV(t, paths.GetComparisonPath("AB", KindMean))
	assert.Equal(t, "Stable", rows[0][0])
	assert.True(t, handler.ContainsMessage("cohorts compared"))
}

func TestServiceMissingInputs(t *testing.T) {
	env := shared.NewEnv(testutil.TempPaths(t), nil, slog.New(testutil.NewBufferedSlogHandler(t)))
	_, err := NewService(env).Run(context.Background())
	assert.Error(t, err)
	_, err = NewCompareService(env).Run(context.Background())
	assert.Error(t, err)
}
