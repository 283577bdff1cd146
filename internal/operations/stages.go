package operations

import (
	"context"
	"fmt"
	"log/slog"

	"churncli/internal/analysis"
	"churncli/internal/features"
	"churncli/internal/files"
	"churncli/internal/finance"
	"churncli/internal/lms"
	"churncli/internal/modeling"
	"churncli/internal/shared"
	"churncli/internal/store"
)

// ServiceStage adapts a step service to the Step interface. run returns
// the service result and a one-line summary.
type ServiceStage struct {
	BaseStage
	env *shared.Env
	run func(ctx context.Context, env *shared.Env) (interface{}, string, error)
}

// Execute runs the wrapped service with a step-scoped logger
func (s *ServiceStage) Execute(ctx context.Context, state *OperationState) error {
	env := s.env.WithLogger(s.env.Logger.With(slog.String("step", s.ID())))
	res, summary, err := s.run(ctx, env)
	if err != nil {
		return err
	}
	state.SetResult(s.ID(), res)
	if st := state.GetStage(s.ID()); st != nil {
		st.SetMessage(summary)
	}
	return nil
}

// ExtractStage builds the attendance file from the CRM extracts and the LMS
type ExtractStage struct {
	BaseStage
	env     *shared.Env
	options *StageOptions
}

// NewExtractStage creates the extract step
func NewExtractStage(env *shared.Env, options *StageOptions) *ExtractStage {
	if options == nil {
		options = &StageOptions{}
	}
	p := env.Paths
	return &ExtractStage{
		BaseStage: NewBaseStage(StepIDExtract, StepNameExtract, nil).
			WithFiles([]string{p.RawData, p.LostReasons}, []string{p.AttendedClasses}),
		env:     env,
		options: options,
	}
}

// Validate accepts a missing LMS when an attendance file already exists
func (s *ExtractStage) Validate(state *OperationState) error {
	if s.options.LMS == nil {
		if _, ok := files.Stat(s.env.Paths.AttendedClasses); !ok {
			return fmt.Errorf("LMS credentials not configured and %s is missing", s.env.Paths.AttendedClasses)
		}
		return nil
	}
	return s.BaseStage.Validate(state)
}

// Execute runs the extraction, or keeps the existing file without an LMS
func (s *ExtractStage) Execute(ctx context.Context, state *OperationState) error {
	st := state.GetStage(s.ID())
	if s.options.LMS == nil {
		s.env.Logger.WarnContext(ctx, "LMS credentials not configured, keeping existing attendance file",
			slog.String("file", s.env.Paths.AttendedClasses))
		if st != nil {
			st.SetMessage("kept existing attendance file")
		}
		return nil
	}

	env := s.env.WithLogger(s.env.Logger.With(slog.String("step", s.ID())))
	res, err := lms.NewExtractService(env, s.options.LMS, s.options.Workers).Run(ctx)
	if err != nil {
		return err
	}
	state.SetResult(s.ID(), res)
	if st != nil {
		st.SetMessage(fmt.Sprintf("%d rows, %d matched, %d failed requests", res.Rows, res.Matched, res.FailedRequests))
		st.SetMetadata("rows", res.Rows)
		st.SetMetadata("failed_requests", res.FailedRequests)
	}
	return nil
}

func newServiceStage(env *shared.Env, id, name string, deps, inputs, outputs []string,
	run func(ctx context.Context, env *shared.Env) (interface{}, string, error)) *ServiceStage {
	return &ServiceStage{
		BaseStage: NewBaseStage(id, name, deps).WithFiles(inputs, outputs),
		env:       env,
		run:       run,
	}
}

// NewBuildDBStage creates the build-db step
func NewBuildDBStage(env *shared.Env) *ServiceStage {
	p := env.Paths
	return newServiceStage(env, StepIDBuildDB, StepNameBuildDB,
		[]string{StepIDExtract},
		[]string{p.AttendedClasses, p.ExtendedRawData},
		[]string{p.LossDatabase, p.AttendedWithTeachers},
		func(ctx context.Context, env *shared.Env) (interface{}, string, error) {
			res, err := store.NewBuildService(env).Run(ctx)
			if err != nil {
				return nil, "", err
			}
			return res, fmt.Sprintf("%d students, %d teachers, %d groups, %d facts",
				res.Students, res.Teachers, res.Groups, res.Facts.Inserted), nil
		})
}

// NewExportReportStage creates the export-report step
func NewExportReportStage(env *shared.Env) *ServiceStage {
	p := env.Paths
	return newServiceStage(env, StepIDExportReport, StepNameExportReport,
		[]string{StepIDBuildDB},
		[]string{p.LossDatabase},
		[]string{p.FinalReport},
		func(ctx context.Context, env *shared.Env) (interface{}, string, error) {
			n, err := store.NewExportService(env).Run(ctx)
			if err != nil {
				return nil, "", err
			}
			return n, fmt.Sprintf("%d report rows", n), nil
		})
}

// NewPrepareStage creates the prepare step
func NewPrepareStage(env *shared.Env) *ServiceStage {
	p := env.Paths
	return newServiceStage(env, StepIDPrepare, StepNamePrepare,
		[]string{StepIDExportReport},
		[]string{p.FinalReport, p.CostsSalaries},
		[]string{p.GeneralReport},
		func(ctx context.Context, env *shared.Env) (interface{}, string, error) {
			res, err := finance.NewPrepareService(env).Run(ctx)
			if err != nil {
				return nil, "", err
			}
			return res, fmt.Sprintf("%d rows, %d unpriced, %d missing dates",
				res.Rows, res.Unpriced, res.MissingDates), nil
		})
}

// NewAnalyzeStage creates the analyze step
func NewAnalyzeStage(env *shared.Env) *ServiceStage {
	p := env.Paths
	inputs := []string{p.GeneralReport}
	for _, y := range env.Rules.AcademicYears {
		inputs = append(inputs, p.GetGroupCountsPath(y.Name))
	}
	return newServiceStage(env, StepIDAnalyze, StepNameAnalyze,
		[]string{StepIDPrepare},
		inputs,
		[]string{p.GeneralReport, p.TeachersAnalysis, p.BoxplotChart},
		func(ctx context.Context, env *shared.Env) (interface{}, string, error) {
			res, err := analysis.NewService(env).Run(ctx)
			if err != nil {
				return nil, "", err
			}
			return res, fmt.Sprintf("%d of %d records in window, %d outlier teachers",
				res.Kept, res.Loaded, len(res.Outliers)), nil
		})
}

// NewFeaturesStage creates the features step
func NewFeaturesStage(env *shared.Env) *ServiceStage {
	p := env.Paths
	return newServiceStage(env, StepIDFeatures, StepNameFeatures,
		[]string{StepIDAnalyze},
		[]string{p.TeachersAnalysis, p.KPIDatabase, p.GeneralReport},
		[]string{p.TeachersRate, p.TeacherImportance},
		func(ctx context.Context, env *shared.Env) (interface{}, string, error) {
			res, err := features.NewService(env).Run(ctx)
			if err != nil {
				return nil, "", err
			}
			return res, fmt.Sprintf("%d KPI rows, %d with importance", res.Rates, len(res.Importance)), nil
		})
}

// NewCompareStage creates the compare step
func NewCompareStage(env *shared.Env) *ServiceStage {
	p := env.Paths
	inputs := []string{p.TeachersRate}
	var outputs []string
	for _, pair := range features.Pairs {
		inputs = append(inputs, p.GetTeacherGroupPath(string(pair.First)), p.GetTeacherGroupPath(string(pair.Second)))
		for _, kind := range features.Kinds {
			outputs = append(outputs, p.GetComparisonPath(pair.Code, kind))
		}
	}
	return newServiceStage(env, StepIDCompare, StepNameCompare,
		[]string{StepIDFeatures},
		inputs,
		outputs,
		func(ctx context.Context, env *shared.Env) (interface{}, string, error) {
			res, err := features.NewCompareService(env).Run(ctx)
			if err != nil {
				return nil, "", err
			}
			significant := 0
			for _, c := range res {
				significant += len(c.Significant())
			}
			return res, fmt.Sprintf("%d cohort pairs, %d significant metrics", len(res), significant), nil
		})
}

// NewFinanceStage creates the finance step
func NewFinanceStage(env *shared.Env) *ServiceStage {
	p := env.Paths
	outputs := []string{p.FinalFinancialResults, p.ScatterGrowthChart, p.BarGrowthChart}
	for _, y := range env.Rules.AcademicYears {
		outputs = append(outputs, p.GetFinancialAnalysisPath(y.Name))
	}
	return newServiceStage(env, StepIDFinance, StepNameFinance,
		[]string{StepIDPrepare, StepIDModelBonus},
		[]string{p.GeneralReport, p.MonthlyFinancialReport, p.BonusVariants},
		outputs,
		func(ctx context.Context, env *shared.Env) (interface{}, string, error) {
			res, err := finance.NewService(env).Run(ctx)
			if err != nil {
				return nil, "", err
			}
			summary := fmt.Sprintf("%d periods", len(res.Periods))
			if res.Growth != nil {
				summary += fmt.Sprintf(", bonus growth stable: %t", res.Growth.Stable)
			}
			return res, summary, nil
		})
}

// NewModelBonusStage creates the model-bonus step
func NewModelBonusStage(env *shared.Env) *ServiceStage {
	p := env.Paths
	return newServiceStage(env, StepIDModelBonus, StepNameModelBonus,
		nil,
		[]string{p.TeacherIndicators},
		[]string{p.IndicatorsChance, p.BonusVariants, p.CoefTargetsStat, p.ClassificationResults, p.ClassificationImportances},
		func(ctx context.Context, env *shared.Env) (interface{}, string, error) {
			res, err := modeling.NewBonusService(env).Run(ctx)
			if err != nil {
				return nil, "", err
			}
			summary := fmt.Sprintf("%d rows", res.Rows)
			if res.Classifier != nil {
				summary += fmt.Sprintf(", classifier accuracy %.2f", res.Classifier.Report.Accuracy)
			}
			return res, summary, nil
		})
}

// NewModelEffectsStage creates the model-effects step
func NewModelEffectsStage(env *shared.Env) *ServiceStage {
	p := env.Paths
	return newServiceStage(env, StepIDModelEffects, StepNameModelEffects,
		[]string{StepIDModelBonus},
		[]string{p.BonusVariants},
		[]string{p.BonusEffect, p.UpliftEffect},
		func(ctx context.Context, env *shared.Env) (interface{}, string, error) {
			res, err := modeling.NewEffectsService(env).Run(ctx)
			if err != nil {
				return nil, "", err
			}
			return res, fmt.Sprintf("%d effects estimated", len(res)), nil
		})
}

// NewModelShapStage creates the model-shap step
func NewModelShapStage(env *shared.Env) *ServiceStage {
	p := env.Paths
	return newServiceStage(env, StepIDModelShap, StepNameModelShap,
		[]string{StepIDFeatures},
		[]string{p.TeacherImportance},
		[]string{p.GetRegressionMetricsPath(modeling.ShapTarget), p.GetShapImportancePath(modeling.ShapTarget)},
		func(ctx context.Context, env *shared.Env) (interface{}, string, error) {
			res, err := modeling.NewShapService(env).Run(ctx)
			if err != nil {
				return nil, "", err
			}
			return res, fmt.Sprintf("%d rows, R2 %.3f", res.Rows, res.Metrics.R2), nil
		})
}

// NewPipeline registers every step in run order
func NewPipeline(env *shared.Env, options *StageOptions) (*Registry, error) {
	r := NewRegistry()
	for _, step := range []Step{
		NewExtractStage(env, options),
		NewBuildDBStage(env),
		NewExportReportStage(env),
		NewPrepareStage(env),
		NewAnalyzeStage(env),
		NewFeaturesStage(env),
		NewCompareStage(env),
		NewFinanceStage(env),
		NewModelBonusStage(env),
		NewModelEffectsStage(env),
		NewModelShapStage(env),
	} {
		if err := r.Register(step); err != nil {
			return nil, err
		}
	}
	if err := r.ValidateDependencies(); err != nil {
		return nil, err
	}
	return r, nil
}
