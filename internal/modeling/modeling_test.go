package modeling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churncli/internal/config"
	"churncli/internal/dataprocessing"
	apperrors "churncli/internal/errors"
	"churncli/internal/features"
	"churncli/internal/shared"
	"churncli/internal/shared/testutil"
	"churncli/internal/stats"
	"churncli/pkg/contracts/domain"
)

func frame(t *testing.T, header []string, rows ...[]string) dataframe.DataFrame {
	t.Helper()
	tbl := dataprocessing.NewTable(header...)
	for _, r := range rows {
		tbl.Append(r...)
	}
	df, err := tbl.Frame(domain.ColIndMonth, domain.ColIndTeacher)
	require.NoError(t, err)
	return df
}

func floats(t *testing.T, df dataframe.DataFrame, col string) []float64 {
	t.Helper()
	v, err := dataprocessing.FrameFloats(df, col)
	require.NoError(t, err)
	return v
}

// indicator columns: Teacher, Month, BD, Bonus, Total_compensation,
// targets_achieved, lesson_count, rate, loss_number_normalized, KPIs
var smallIndicators = [][]string{
	{"Анна Коваль", "2023-09", "10000", "1000", "11000", "1", "40", "100", "0.5", "95", "95", "95", "90", "80"},
	{"Борис Левченко", "2023-09", "8000", "0", "8000", "0", "30", "20", "1.0", "80", "92", "85", "80", "70"},
	{"Анна Коваль", "2023-10", "10000", "2000", "12000", "1", "10", "50", "0.3", "90", "90", "90", "85", "75"},
	{"Борис Левченко", "2023-10", "8000", "700", "10000", "1", "30", "20", "0.7", "70", "70", "70", "70", "70"},
}

func TestAddChance(t *testing.T) {
	df, err := AddChance(frame(t, domain.IndicatorColumns, smallIndicators...))
	require.NoError(t, err)

	assert.Equal(t, []float64{0.09, 0, 0.17, 0.07}, floats(t, df, domain.ColIndChance))
	assert.Equal(t, []float64{0.09, 0.09, 0.12, 0.12}, floats(t, df, domain.ColIndMeanChance))
	assert.Equal(t, []float64{0.5, 0.5, 1, 1}, floats(t, df, domain.ColIndCoefTargets))

	coef, err := CoefTargetStats(df)
	require.NoError(t, err)
	assert.Equal(t, CoefStats{Median: 0.75, Max: 1, Mean: 0.75}, coef)
	assert.Equal(t, [][]string{{"Median", "0.75"}, {"Max", "1.0"}, {"Mean", "0.75"}}, coef.Encode().Rows)
}

func TestAddChanceMonthWithoutBonus(t *testing.T) {
	rows := [][]string{
		{"Анна Коваль", "2023-11", "10000", "0", "10000", "0", "40", "100", "0.5", "95", "95", "95", "90", "80"},
	}
	df, err := AddChance(frame(t, domain.IndicatorColumns, rows...))
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, floats(t, df, domain.ColIndMeanChance))
	assert.Equal(t, []float64{0}, floats(t, df, domain.ColIndCoefTargets))
}

func TestAddChanceMissingColumn(t *testing.T) {
	df := frame(t, []string{domain.ColIndTeacher, domain.ColIndMonth}, []string{"Анна Коваль", "2023-09"})
	_, err := AddChance(df)
	assert.Error(t, err)
}

func TestAddBonusVariants(t *testing.T) {
	df, err := AddBonusVariants(frame(t, domain.IndicatorColumns, smallIndicators...), BonusRulesFrom(config.DefaultPipeline()))
	require.NoError(t, err)

	tests := []struct {
		name                     string
		row                      int
		v1, income1, v2, income2 float64
	}{
		{"every target", 0, 6310, 16310, 4000, 14000},
		{"one target", 1, 1008, 9008, 0, 8000},
		{"thresholds are inclusive with bonus floor", 2, 6310, 16310, 1000, 11000},
		{"no target", 3, 0, 8000, 0, 8000},
	}
	v1 := floats(t, df, domain.ColIndBonusV1)
	income1 := floats(t, df, domain.ColIndTotalIncomeV1)
	v2 := floats(t, df, domain.ColIndBonusV2)
	income2 := floats(t, df, domain.ColIndTotalIncomeV2)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.v1, v1[tt.row])
			assert.Equal(t, tt.income1, income1[tt.row])
			assert.Equal(t, tt.v2, v2[tt.row])
			assert.Equal(t, tt.income2, income2[tt.row])
		})
	}
}

// indicatorRows builds 40 monthly rows: ten teachers over four months with
// mixed KPI scores so both bonus hypotheses and both outcomes occur. The
// paid bonus grows each month so mean_chance differs between months.
func indicatorRows() [][]string {
	months := []string{"2023-09", "2023-10", "2023-11", "2023-12"}
	var rows [][]string
	for i := 0; i < 40; i++ {
		m, j := i%4, i/4
		hit := 3
		if m%2 == 1 {
			hit = 5
		}
		targets := "0"
		if j < hit {
			targets = "1"
		}
		parents := 80 + (i*7)%20
		others := []int{70, 70, 70, 60}
		if i%5 == 0 {
			parents = 95
			others = []int{95, 95, 90, 80}
		}
		bd := 8000 + (i%3)*1000
		bonus := (i % 3) * (400 + 200*m)
		rows = append(rows, []string{
			fmt.Sprintf("Teacher %02d", j),
			months[m],
			fmt.Sprint(bd),
			fmt.Sprint(bonus),
			fmt.Sprint(bd + bonus),
			targets,
			fmt.Sprint(20 + (i%3)*10),
			"25",
			fmt.Sprintf("%.2f", float64((i*3)%10)*0.1+0.05),
			fmt.Sprint(parents),
			fmt.Sprint(others[0]),
			fmt.Sprint(others[1]),
			fmt.Sprint(others[2]),
			fmt.Sprint(others[3]),
		})
	}
	return rows
}

func TestClassifyTargets(t *testing.T) {
	rules := config.DefaultPipeline()
	df, err := AddChance(frame(t, domain.IndicatorColumns, indicatorRows()...))
	require.NoError(t, err)
	df, err = AddBonusVariants(df, BonusRulesFrom(rules))
	require.NoError(t, err)

	res, err := ClassifyTargets(df, rules.Classifier)
	require.NoError(t, err)
	assert.Equal(t, 28, res.Train)
	assert.Equal(t, 12, res.Test)
	assert.Zero(t, res.Dropped)

	require.Len(t, res.Report.Classes, 2)
	assert.Equal(t, 12, res.Report.Macro.Support)
	assert.GreaterOrEqual(t, res.Report.Accuracy, 0.0)
	assert.LessOrEqual(t, res.Report.Accuracy, 1.0)

	require.Len(t, res.Importances, 3)
	var sum float64
	for i, f := range res.Importances {
		sum += f.Value
		if i > 0 {
			assert.GreaterOrEqual(t, res.Importances[i-1].Value, f.Value)
		}
	}
	assert.InDelta(t, 1, sum, 1e-9)

	again, err := ClassifyTargets(df, rules.Classifier)
	require.NoError(t, err)
	assert.Equal(t, res.Importances, again.Importances, "seeded fit is reproducible")
	assert.Equal(t, res.Report.Accuracy, again.Report.Accuracy)

	out := EncodeReport(res.Report)
	assert.Equal(t, []string{"0", "1", "accuracy", "macro avg", "weighted avg", "roc_auc"}, out.Column(colMetric))
	assert.Equal(t, "12", out.Get(2, "support"))
}

func TestRankFeatures(t *testing.T) {
	got := RankFeatures([]string{"a", "b", "c"}, []float64{0.2, 0.5, 0.2})
	assert.Equal(t, []domain.FeatureImportance{{Feature: "b", Value: 0.5}, {Feature: "a", Value: 0.2}, {Feature: "c", Value: 0.2}}, got)

	out := EncodeImportances(got, colImportance)
	assert.Equal(t, []string{"b", "0.500000"}, out.Rows[0])
}

// effectRows builds 40 rows where treated rows are positive 14 times in
// 20 and untreated rows 6 times in 20. The control cycles independently
// of treatment.
func effectRows(treatment, outcome, control string, treated, positive, negative func(j int) string) ([]string, [][]string) {
	header := []string{treatment, outcome, control}
	var rows [][]string
	for g := 0; g < 2; g++ {
		ones := 6
		if g == 1 {
			ones = 14
		}
		for j := 0; j < 20; j++ {
			out := negative(j)
			if j < ones {
				out = positive(j)
			}
			tr := "0"
			if g == 1 {
				tr = treated(j)
			}
			rows = append(rows, []string{tr, out, fmt.Sprint((j % 4) * 1000)})
		}
	}
	return header, rows
}

func TestEstimate(t *testing.T) {
	tests := []struct {
		name       string
		exp        Experiment
		treatment  string
		outcome    string
		treated    func(int) string
		positive   func(int) string
		negative   func(int) string
		changeRow  string
		conclusion string
	}{
		{
			name: "bonus v1", exp: BonusV1Effect,
			treatment: domain.ColIndBonusV1, outcome: domain.ColIndCoefTargets,
			treated:   func(int) string { return "500" },
			positive:  func(int) string { return "0.9" },
			negative:  func(int) string { return "0.1" },
			changeRow: "Absolute Increase (%)", conclusion: "Bonus_v1 changes the odds",
		},
		{
			name: "targets uplift", exp: TargetsUpliftEffect,
			treatment: domain.ColIndTargetsAchieved, outcome: domain.ColIndLossNormalized,
			treated:   func(int) string { return "1" },
			positive:  func(int) string { return "0.2" },
			negative:  func(int) string { return "0.8" },
			changeRow: "Absolute Decrease in Loss (%)", conclusion: "Raising the KPI targets",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, rows := effectRows(tt.treatment, tt.outcome, tt.exp.Control, tt.treated, tt.positive, tt.negative)
			est, err := tt.exp.Estimate(frame(t, header, rows...))
			require.NoError(t, err)

			assert.Equal(t, 40, est.Observations)
			assert.Greater(t, est.ATE, 1.0)
			assert.InDelta(t, math.Exp(est.ATE), est.OddsRatio, 1e-12)
			assert.Greater(t, est.P1, est.P0)
			assert.InDelta(t, (est.P1-est.P0)*100, est.AbsoluteChange, 1e-12)
			assert.Less(t, est.PValue, 0.05)
			assert.Contains(t, est.Conclusion, tt.conclusion)
			assert.Contains(t, est.Conclusion, fmt.Sprintf("%.2f", est.OddsRatio))

			out := tt.exp.Encode(est)
			assert.Equal(t, []string{"Metric", "Value"}, out.Header)
			assert.Equal(t, tt.changeRow, out.Get(4, "Metric"))
			assert.Equal(t, "Conclusion", out.Get(out.Len()-1, "Metric"))
		})
	}
}

func TestEstimateMissingColumn(t *testing.T) {
	df := frame(t, []string{domain.ColIndBonusV1}, []string{"1"})
	_, err := BonusV1Effect.Estimate(df)
	assert.Error(t, err)
}

func importanceRows(n int) ([]string, [][]string) {
	header := append(ShapFeatures(), ShapTarget)
	var rows [][]string
	for i := 0; i < n; i++ {
		x0 := float64(i) * 0.1
		row := []string{fmt.Sprintf("%.2f", x0)}
		for k := 1; k < 5; k++ {
			row = append(row, fmt.Sprintf("%.2f", float64((i*(3+2*k))%7)*0.01))
		}
		row = append(row, fmt.Sprintf("%.2f", 2*x0))
		rows = append(rows, row)
	}
	return header, rows
}

func TestExplainChurn(t *testing.T) {
	header, rows := importanceRows(30)
	rows = append(rows, []string{"", "0.1", "0.1", "0.1", "0.1", "0.5"})
	df := frame(t, header, rows...)

	res, err := ExplainChurn(df, ShapTarget, config.DefaultPipeline().Regressor)
	require.NoError(t, err)
	assert.Equal(t, 30, res.Rows)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, ShapTarget, res.Metrics.Target)
	assert.Greater(t, res.Metrics.R2, 0.5)
	require.Len(t, res.Phi, 30)

	require.Len(t, res.Importance, 5)
	assert.Equal(t, features.ImportanceColumn(domain.MetricFeedbackForParents), res.Importance[0].Feature)
	for i := 1; i < len(res.Importance); i++ {
		assert.GreaterOrEqual(t, res.Importance[i-1].Value, res.Importance[i].Value)
	}

	m := EncodeRegressionMetrics(res.Metrics)
	assert.Equal(t, []string{"Target", "R2", "MAE", "RMSE"}, m.Header)
	assert.Equal(t, ShapTarget, m.Rows[0][0])
}

func TestServices(t *testing.T) {
	ctx := context.Background()
	paths := testutil.TempPaths(t)
	handler := testutil.NewBufferedSlogHandler(t)
	env := shared.NewEnv(paths, nil, slog.New(handler))

	testutil.WriteCSV(t, paths.TeacherIndicators, domain.IndicatorColumns, indicatorRows()...)
	bonus, err := NewBonusService(env).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, bonus.Rows)
	for _, p := range []string{paths.IndicatorsChance, paths.BonusVariants, paths.CoefTargetsStat, paths.ClassificationResults, paths.ClassificationImportances} {
		assert.FileExists(t, p)
	}
	header, rows := testutil.ReadCSV(t, paths.BonusVariants)
	assert.Contains(t, header, domain.ColIndTotalIncomeV2)
	assert.Len(t, rows, 40)
	assert.Equal(t, "2023-09", testutil.Column(t, header, rows, domain.ColIndMonth)[0])

	effects, err := NewEffectsService(env).Run(ctx)
	require.NoError(t, err)
	require.Len(t, effects, 2)
	assert.Equal(t, "bonus_v1", effects[0].Name)
	assert.FileExists(t, paths.BonusEffect)
	assert.FileExists(t, paths.UpliftEffect)

	ih, irows := importanceRows(30)
	testutil.WriteCSV(t, paths.TeacherImportance, ih, irows...)
	shap, err := NewShapService(env).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, shap.Rows)
	assert.FileExists(t, paths.GetRegressionMetricsPath(ShapTarget))
	assert.FileExists(t, paths.GetShapImportancePath(ShapTarget))
	assert.FileExists(t, paths.GetShapChartPath(ShapTarget))
	assert.FileExists(t, paths.GetShapSummaryChartPath(ShapTarget))

	testutil.AssertNoErrors(t, handler)
	assert.True(t, handler.ContainsMessage("target classifier trained"))
}

func TestServicesMissingInput(t *testing.T) {
	env := shared.NewEnv(testutil.TempPaths(t), nil, slog.New(testutil.NewBufferedSlogHandler(t)))
	ctx := context.Background()
	_, err := NewBonusService(env).Run(ctx)
	assert.Error(t, err)
	_, err = NewEffectsService(env).Run(ctx)
	assert.Error(t, err)
	_, err = NewShapService(env).Run(ctx)
	assert.Error(t, err)
}

func TestIndicatorRowsMeanChanceVariesByMonth(t *testing.T) {
	df, err := AddChance(frame(t, domain.IndicatorColumns, indicatorRows()...))
	require.NoError(t, err)

	months := make(map[string]float64)
	monthCol, err := dataprocessing.FrameStrings(df, domain.ColIndMonth)
	require.NoError(t, err)
	for i, v := range floats(t, df, domain.ColIndMeanChance) {
		months[monthCol[i]] = v
	}
	require.Len(t, months, 4)
	seen := make(map[float64]bool)
	for _, v := range months {
		seen[v] = true
	}
	assert.Len(t, seen, 4, "mean_chance per month: %v", months)
}

func TestEstimateConstantControl(t *testing.T) {
	header, rows := effectRows(domain.ColIndTargetsAchieved, domain.ColIndLossNormalized, domain.ColIndMeanChance,
		func(i int) string { return fmt.Sprint(i % 2) },
		func(int) string { return "0.2" },
		func(int) string { return "0.8" })
	require.Equal(t, domain.ColIndMeanChance, header[2])
	for _, r := range rows {
		r[2] = "0.07"
	}

	_, err := TargetsUpliftEffect.Estimate(frame(t, header, rows...))
	require.Error(t, err)
	assert.True(t, errors.Is(err, stats.ErrConstantColumn), "got %v", err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeModel))
	assert.Contains(t, err.Error(), "targets_uplift")
	assert.Contains(t, err.Error(), domain.ColIndMeanChance)
}

func TestForestFailuresAreModelErrors(t *testing.T) {
	rules := config.DefaultPipeline()
	df, err := AddChance(frame(t, domain.IndicatorColumns, indicatorRows()...))
	require.NoError(t, err)
	df, err = AddBonusVariants(df, BonusRulesFrom(rules))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *config.ForestConfig)
	}{
		{"no trees", func(c *config.ForestConfig) { c.Trees = 0 }},
		{"test size out of range", func(c *config.ForestConfig) { c.TestSize = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := rules.Classifier
			tt.mutate(&cfg)
			_, err := ClassifyTargets(df, cfg)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeModel), "got %v", err)
		})
	}
}
