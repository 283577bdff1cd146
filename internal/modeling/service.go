package modeling

import (
	"context"
	"log/slog"

	"churncli/internal/dataprocessing"
	"churncli/internal/exporter"
	"churncli/internal/shared"
	"churncli/pkg/contracts/domain"
)

// BonusResult summarizes the model-bonus step.
type BonusResult struct {
	Rows       int
	Coef       CoefStats
	Classifier *ClassifierResult
}

// BonusService runs the model-bonus step.
type BonusService struct {
	env *shared.Env
}

// NewBonusService creates the model-bonus step.
func NewBonusService(env *shared.Env) *BonusService {
	return &BonusService{env: env}
}

// Run derives the motivation columns, applies both bonus hypotheses and
// trains the target classifier.
func (s *BonusService) Run(ctx context.Context) (*BonusResult, error) {
	paths := s.env.Paths
	logger := s.env.Logger

	table, err := s.env.Load(ctx, paths.TeacherIndicators)
	if err != nil {
		return nil, err
	}
	if err := table.Require(domain.IndicatorColumns...); err != nil {
		return nil, err
	}
	df, err := table.Frame(domain.ColIndMonth, domain.ColIndTeacher)
	if err != nil {
		return nil, err
	}

	if df, err = AddChance(df); err != nil {
		return nil, err
	}
	if err := s.env.Save(ctx, paths.IndicatorsChance, dataprocessing.FrameTable(df)); err != nil {
		return nil, err
	}

	if df, err = AddBonusVariants(df, BonusRulesFrom(s.env.Rules)); err != nil {
		return nil, err
	}
	if err := s.env.Save(ctx, paths.BonusVariants, dataprocessing.FrameTable(df)); err != nil {
		return nil, err
	}

	res := &BonusResult{Rows: df.Nrow()}
	if res.Coef, err = CoefTargetStats(df); err != nil {
		return nil, err
	}
	if err := s.env.Save(ctx, paths.CoefTargetsStat, res.Coef.Encode(), exporter.WithBOM()); err != nil {
		return nil, err
	}

	if res.Classifier, err = ClassifyTargets(df, s.env.Rules.Classifier); err != nil {
		return nil, err
	}
	s.env.Skipped(ctx, "classifier_missing_feature", res.Classifier.Dropped)
	if err := s.env.Save(ctx, paths.ClassificationResults, EncodeReport(res.Classifier.Report)); err != nil {
		return nil, err
	}
	if err := s.env.Save(ctx, paths.ClassificationImportances, EncodeImportances(res.Classifier.Importances, colImportance)); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "target classifier trained",
		slog.Int("train", res.Classifier.Train),
		slog.Int("test", res.Classifier.Test),
		slog.Float64("accuracy", res.Classifier.Report.Accuracy),
		slog.Float64("roc_auc", res.Classifier.Report.ROCAUC),
		slog.String("top_feature", res.Classifier.Importances[0].Feature))
	return res, nil
}

// EffectsService runs the model-effects step.
type EffectsService struct {
	env *shared.Env
}

// NewEffectsService creates the model-effects step.
func NewEffectsService(env *shared.Env) *EffectsService {
	return &EffectsService{env: env}
}

// Run estimates both treatment effects over Bonus_v1_v2.csv.
func (s *EffectsService) Run(ctx context.Context) ([]domain.EffectEstimate, error) {
	paths := s.env.Paths

	table, err := s.env.Load(ctx, paths.BonusVariants)
	if err != nil {
		return nil, err
	}
	df, err := table.Frame(domain.ColIndMonth, domain.ColIndTeacher)
	if err != nil {
		return nil, err
	}

	outputs := []struct {
		exp  Experiment
		path string
	}{
		{BonusV1Effect, paths.BonusEffect},
		{TargetsUpliftEffect, paths.UpliftEffect},
	}
	var out []domain.EffectEstimate
	for _, o := range outputs {
		est, err := o.exp.Estimate(df)
		if err != nil {
			return nil, err
		}
		if err := s.env.Save(ctx, o.path, o.exp.Encode(est), exporter.WithBOM()); err != nil {
			return nil, err
		}
		s.env.Logger.InfoContext(ctx, "treatment effect estimated",
			slog.String("experiment", est.Name),
			slog.Float64("ate", est.ATE),
			slog.Float64("odds_ratio", est.OddsRatio),
			slog.Float64("p_value", est.PValue),
			slog.Int("observations", est.Observations))
		out = append(out, est)
	}
	return out, nil
}

// ShapService runs the model-shap step.
type ShapService struct {
	env *shared.Env
}

// NewShapService creates the model-shap step.
func NewShapService(env *shared.Env) *ShapService {
	return &ShapService{env: env}
}

// Run explains normalized churn with the KPI importance features.
func (s *ShapService) Run(ctx context.Context) (*ShapResult, error) {
	paths := s.env.Paths
	logger := s.env.Logger

	table, err := s.env.Load(ctx, paths.TeacherImportance)
	if err != nil {
		return nil, err
	}
	if err := table.Require(append(ShapFeatures(), ShapTarget)...); err != nil {
		return nil, err
	}
	// only the model columns are typed; the rest is irrelevant here
	model, err := table.Select(append(ShapFeatures(), ShapTarget)...)
	if err != nil {
		return nil, err
	}
	df, err := model.Frame()
	if err != nil {
		return nil, err
	}

	res, err := ExplainChurn(df, ShapTarget, s.env.Rules.Regressor)
	if err != nil {
		return nil, err
	}
	if res.Dropped > 0 {
		s.env.Skipped(ctx, "regressor_missing_value", res.Dropped)
		logger.WarnContext(ctx, "rows with missing features left out of the regressor",
			slog.Int("rows", res.Dropped))
	}

	if err := s.env.Save(ctx, paths.GetRegressionMetricsPath(ShapTarget), EncodeRegressionMetrics(res.Metrics), exporter.WithBOM()); err != nil {
		return nil, err
	}
	if err := s.env.Save(ctx, paths.GetShapImportancePath(ShapTarget), EncodeImportances(res.Importance, "Mean_SHAP_Abs"), exporter.WithBOM()); err != nil {
		return nil, err
	}

	labels := make([]string, len(res.Importance))
	values := make([]float64, len(res.Importance))
	for i, f := range res.Importance {
		labels[i], values[i] = f.Feature, f.Value
	}
	bar := paths.GetShapChartPath(ShapTarget)
	s.env.ChartDone(ctx, bar, s.env.Charts.Bars(bar, "SHAP Bar Plot: "+ShapTarget,
		"mean(|SHAP value|)", "", labels, values, true))
	summary := paths.GetShapSummaryChartPath(ShapTarget)
	s.env.ChartDone(ctx, summary, s.env.Charts.ShapSummary(summary, "SHAP Summary Plot: "+ShapTarget,
		ShapFeatures(), res.Phi))

	logger.InfoContext(ctx, "churn regressor explained",
		slog.Int("rows", res.Rows),
		slog.Float64("r2", res.Metrics.R2),
		slog.Float64("mae", res.Metrics.MAE),
		slog.Float64("rmse", res.Metrics.RMSE),
		slog.String("top_feature", res.Importance[0].Feature))
	return res, nil
}
