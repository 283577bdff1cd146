package modeling

import (
	"math"
	"sort"

	"github.com/go-gota/gota/dataframe"

	"churncli/internal/config"
	"churncli/internal/dataprocessing"
	apperrors "churncli/internal/errors"
	"churncli/internal/stats"
	"churncli/pkg/contracts/domain"
)

const (
	colMetric     = "Metric"
	colValue      = "Value"
	colFeature    = "Feature"
	colImportance = "Importance"
)

// ClassifierFeatures are the bonus columns the target classifier sees.
var ClassifierFeatures = []string{domain.ColIndBonus, domain.ColIndBonusV1, domain.ColIndBonusV2}

// ClassifierResult is the held-out evaluation of the target classifier.
type ClassifierResult struct {
	Report      domain.ClassificationReport
	Importances []domain.FeatureImportance
	Train, Test int
	// Dropped counts rows with a missing feature.
	Dropped int
}

// frameMatrix extracts the rows of df that have every column present.
func frameMatrix(df dataframe.DataFrame, columns []string) (x [][]float64, keep []int, err error) {
	cols := make([][]float64, len(columns))
	for j, c := range columns {
		if cols[j], err = dataprocessing.FrameFloats(df, c); err != nil {
			return nil, nil, err
		}
	}
	for i := 0; i < df.Nrow(); i++ {
		row := make([]float64, len(columns))
		ok := true
		for j := range columns {
			row[j] = cols[j][i]
			if math.IsNaN(row[j]) {
				ok = false
			}
		}
		if ok {
			x = append(x, row)
			keep = append(keep, i)
		}
	}
	return x, keep, nil
}

// ClassifyTargets predicts whether a row's monthly target share is above
// the overall mean from the bonus columns, using a seeded split and a
// random forest.
func ClassifyTargets(df dataframe.DataFrame, cfg config.ForestConfig) (*ClassifierResult, error) {
	coef, err := dataprocessing.FrameFloats(df, domain.ColIndCoefTargets)
	if err != nil {
		return nil, err
	}
	mean := stats.Mean(coef)

	x, keep, err := frameMatrix(df, ClassifierFeatures)
	if err != nil {
		return nil, err
	}
	y := make([]float64, len(keep))
	for i, r := range keep {
		if coef[r] > mean {
			y[i] = 1
		}
	}

	train, test, err := stats.TrainTestSplit(len(x), cfg.TestSize, cfg.Seed)
	if err != nil {
		return nil, apperrors.NewModelError("split classifier rows", err).WithContext("rows", len(x))
	}
	forest, err := stats.FitForest(stats.Take(x, train), stats.Take(y, train), stats.ForestConfig{
		Task:        stats.Classification,
		NTrees:      cfg.Trees,
		MaxFeatures: stats.MaxFeaturesSqrt,
		Seed:        cfg.Seed,
	})
	if err != nil {
		return nil, apperrors.NewModelError("fit classifier", err).WithContext("trees", cfg.Trees)
	}

	xTest, yTest := stats.Take(x, test), stats.Take(y, test)
	pred := forest.PredictAll(xTest)
	proba := make([]float64, len(xTest))
	for i, row := range xTest {
		if p := forest.PredictProba(row); len(p) > 1 {
			proba[i] = p[1]
		}
	}

	res := &ClassifierResult{
		Report:  stats.Classify(yTest, pred, 2),
		Train:   len(train),
		Test:    len(test),
		Dropped: df.Nrow() - len(x),
	}
	res.Report.ROCAUC = stats.ROCAUC(yTest, proba)
	res.Importances = RankFeatures(ClassifierFeatures, forest.FeatureImportances())
	return res, nil
}

// RankFeatures pairs names with values sorted by value descending, ties
// kept in input order.
func RankFeatures(names []string, values []float64) []domain.FeatureImportance {
	out := make([]domain.FeatureImportance, len(names))
	for i, n := range names {
		out[i] = domain.FeatureImportance{Feature: n, Value: values[i]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out
}

// EncodeReport renders Classification_results.csv: one row per class, the
// accuracy and the two averages, then roc_auc in the value column.
func EncodeReport(r domain.ClassificationReport) *dataprocessing.Table {
	t := dataprocessing.NewTable(colMetric, "precision", "recall", "f1-score", "support", "value")
	score := func(s domain.ClassScore) {
		t.Append(s.Label,
			dataprocessing.FormatFloat(s.Precision),
			dataprocessing.FormatFloat(s.Recall),
			dataprocessing.FormatFloat(s.F1),
			dataprocessing.FormatInt(s.Support), "")
	}
	for _, s := range r.Classes {
		score(s)
	}
	acc := dataprocessing.FormatFloat(r.Accuracy)
	t.Append("accuracy", acc, acc, acc, dataprocessing.FormatInt(r.Macro.Support), "")
	score(r.Macro)
	score(r.Weighted)
	t.Append("roc_auc", "", "", "", "", dataprocessing.FormatFloat(r.ROCAUC))
	return t
}

// EncodeImportances renders a Feature/Importance table with six decimals.
func EncodeImportances(rows []domain.FeatureImportance, valueColumn string) *dataprocessing.Table {
	t := dataprocessing.NewTable(colFeature, valueColumn)
	for _, r := range rows {
		t.Append(r.Feature, dataprocessing.FormatFixed(r.Value, 6))
	}
	return t
}
