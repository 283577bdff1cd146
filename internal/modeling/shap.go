package modeling

import (
	"github.com/go-gota/gota/dataframe"

	"churncli/internal/config"
	"churncli/internal/dataprocessing"
	apperrors "churncli/internal/errors"
	"churncli/internal/features"
	"churncli/internal/stats"
	"churncli/pkg/contracts/domain"
)

// ShapTarget is the column the churn regressor predicts.
const ShapTarget = features.ColLossNormalized

// ShapFeatures are the per-KPI importance columns.
func ShapFeatures() []string {
	out := make([]string, len(domain.KPIMetrics))
	for i, m := range domain.KPIMetrics {
		out[i] = features.ImportanceColumn(m)
	}
	return out
}

// ShapResult holds the regressor scores and its attributions over every
// usable row.
type ShapResult struct {
	Metrics    domain.RegressionMetrics
	Base       float64
	Phi        [][]float64
	Importance []domain.FeatureImportance
	Rows       int
	Dropped    int
}

// ExplainChurn fits a forest regressor of target on the importance
// features, scores it on a seeded held-out split and attributes every
// prediction to the features with exact Shapley values.
func ExplainChurn(df dataframe.DataFrame, target string, cfg config.ForestConfig) (*ShapResult, error) {
	names := ShapFeatures()
	x, keep, err := frameMatrix(df, append(append([]string{}, names...), target))
	if err != nil {
		return nil, err
	}
	y := make([]float64, len(x))
	for i := range x {
		y[i] = x[i][len(names)]
		x[i] = x[i][:len(names)]
	}

	train, test, err := stats.TrainTestSplit(len(x), cfg.TestSize, cfg.Seed)
	if err != nil {
		return nil, apperrors.NewModelError("split regressor rows", err).WithContext("rows", len(x))
	}
	forest, err := stats.FitForest(stats.Take(x, train), stats.Take(y, train), stats.ForestConfig{
		Task:   stats.Regression,
		NTrees: cfg.Trees,
		Seed:   cfg.Seed,
	})
	if err != nil {
		return nil, apperrors.NewModelError("fit regressor", err).WithContext("trees", cfg.Trees)
	}

	r2, mae, rmse := stats.RegressionScores(stats.Take(y, test), forest.PredictAll(stats.Take(x, test)))
	res := &ShapResult{
		Metrics: domain.RegressionMetrics{
			Target: target,
			R2:     stats.Round(r2, 3),
			MAE:    stats.Round(mae, 3),
			RMSE:   stats.Round(rmse, 3),
		},
		Rows:    len(keep),
		Dropped: df.Nrow() - len(keep),
	}

	res.Base, res.Phi, err = forest.ShapValues(x)
	if err != nil {
		return nil, apperrors.NewModelError("shapley values", err).WithContext("features", len(names))
	}
	mean := stats.MeanAbs(res.Phi)
	for i := range mean {
		mean[i] = stats.Round(mean[i], 6)
	}
	res.Importance = RankFeatures(names, mean)
	return res, nil
}

// EncodeRegressionMetrics renders metrics_<target>.csv.
func EncodeRegressionMetrics(m domain.RegressionMetrics) *dataprocessing.Table {
	t := dataprocessing.NewTable("Target", "R2", "MAE", "RMSE")
	t.Append(m.Target,
		dataprocessing.FormatFloat(m.R2),
		dataprocessing.FormatFloat(m.MAE),
		dataprocessing.FormatFloat(m.RMSE))
	return t
}
