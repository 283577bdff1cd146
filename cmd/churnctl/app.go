package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"churncli/internal/charts"
	"churncli/internal/config"
	"churncli/internal/exporter"
	"churncli/internal/features"
	"churncli/internal/infrastructure"
	"churncli/internal/lms"
	"churncli/internal/modeling"
	"churncli/internal/operations"
	"churncli/internal/shared"
)

// globalFlags override the loaded configuration when set
type globalFlags struct {
	configFile      string
	dataDir         string
	imagesDir       string
	logsDir         string
	logLevel        string
	continueOnError bool
	noCharts        bool
	noWorkbook      bool
	workers         int
}

// app is the wired runtime of one command invocation
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	providers *infrastructure.OTelProviders
	metrics   *infrastructure.PipelineMetrics
	env       *shared.Env
	out       io.Writer
}

func loadConfig(flags *globalFlags, changed func(string) bool) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configFile != "" {
		cfg, err = config.LoadFrom(flags.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if changed("data-dir") {
		cfg.Paths.DataDir = flags.dataDir
	}
	if changed("images-dir") {
		cfg.Paths.ImagesDir = flags.imagesDir
	}
	if changed("logs-dir") {
		cfg.Paths.LogsDir = flags.logsDir
		cfg.Logging.FilePath = filepath.Join(flags.logsDir, config.AppName+".log")
	}
	if changed("log-level") {
		cfg.Logging.Level = flags.logLevel
	}
	if changed("continue-on-error") {
		cfg.Run.ContinueOnError = flags.continueOnError
	}
	if flags.noCharts {
		cfg.Run.Charts = false
	}
	if flags.noWorkbook {
		cfg.Run.Workbook = false
	}
	if changed("workers") {
		cfg.LMS.Workers = flags.workers
	}
	if cfg.Telemetry.MetricsFile == "" {
		cfg.Telemetry.MetricsFile = filepath.Join(cfg.Paths.LogsDir, config.AppName+".prom")
	}
	return cfg, nil
}

func newApp(cfg *config.Config, out io.Writer) (*app, error) {
	paths := config.NewPaths(cfg.Paths)
	if err := paths.EnsureDirectories(); err != nil {
		return nil, err
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	providers, err := infrastructure.InitializeOTel(infrastructure.NewOTelConfig(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}
	metrics, err := infrastructure.CreatePipelineMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	rules, err := config.LoadPipeline(cfg.Paths.PipelineFile)
	if err != nil {
		return nil, err
	}

	env := shared.NewEnv(paths, rules, logger)
	env.Charts = charts.NewRenderer(cfg.Run.Charts, logger)
	env.Metrics = metrics

	return &app{
		cfg:       cfg,
		logger:    logger,
		providers: providers,
		metrics:   metrics,
		env:       env,
		out:       out,
	}, nil
}

// close flushes metrics and telemetry
func (a *app) close(ctx context.Context) {
	if err := a.providers.WriteMetrics(a.cfg.Telemetry.MetricsFile); err != nil {
		a.logger.WarnContext(ctx, "metrics not written", slog.String("error", err.Error()))
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.providers.Shutdown(shutdownCtx); err != nil {
		a.logger.WarnContext(ctx, "telemetry shutdown failed", slog.String("error", err.Error()))
	}
	_ = infrastructure.CloseLogFile()
}

func (a *app) lmsClient() lms.API {
	if !a.cfg.LMS.Credentials.Configured() {
		return nil
	}
	return lms.NewClient(a.cfg.LMS, a.metrics, infrastructure.WithComponent(a.logger, "lms"))
}

func (a *app) pipeline() (*operations.Manager, error) {
	registry, err := operations.NewPipeline(a.env, &operations.StageOptions{
		LMS:     a.lmsClient(),
		Workers: a.cfg.LMS.Workers,
	})
	if err != nil {
		return nil, err
	}
	opsConfig := operations.FromRunConfig(a.cfg.Run)
	opsConfig.ManifestPath = filepath.Join(a.env.Paths.LogsDir, "run_manifest.json")
	tracer := operations.NewOperationTracer(a.providers, a.metrics)
	return operations.NewManager(registry, opsConfig, tracer, a.logger), nil
}

// runSteps executes ids (all steps when empty), prints the step summary
// and refreshes the results workbook.
func (a *app) runSteps(ctx context.Context, ids []string) error {
	manager, err := a.pipeline()
	if err != nil {
		return err
	}

	resp, runErr := manager.Execute(ctx, operations.OperationRequest{Steps: ids})
	if resp != nil {
		renderSummary(a.out, resp)
	}

	if a.cfg.Run.Workbook && resp != nil && resp.Status != operations.OperationStatusCancelled {
		n, err := exporter.NewWorkbookWriter(a.logger).WriteWorkbook(a.env.Paths.ResultsWorkbook, workbookSources(a.env))
		if err != nil {
			a.logger.WarnContext(ctx, "results workbook not written", slog.String("error", err.Error()))
		} else if n > 0 {
			fmt.Fprintf(a.out, "\nResults workbook: %s (%d sheets)\n", a.env.Paths.ResultsWorkbook, n)
		}
	}
	return runErr
}

// workbookSources lists the result tables copied into the workbook
func workbookSources(env *shared.Env) []exporter.SheetSource {
	p := env.Paths
	sources := []exporter.SheetSource{
		{Name: "Final report", Path: p.FinalReport},
		{Name: "General report", Path: p.GeneralReport},
		{Name: "Teacher categories", Path: p.TeachersAnalysis},
	}
	for _, y := range env.Rules.AcademicYears {
		sources = append(sources, exporter.SheetSource{Name: "Teachers " + y.Name, Path: p.GetTeacherStatsPath(y.Name)})
	}
	sources = append(sources,
		exporter.SheetSource{Name: "Teacher rates", Path: p.TeachersRate},
		exporter.SheetSource{Name: "KPI importance", Path: p.TeacherImportance},
	)
	for _, pair := range features.Pairs {
		for _, kind := range features.Kinds {
			sources = append(sources, exporter.SheetSource{
				Name: fmt.Sprintf("%s %s", pair.Code, kind),
				Path: p.GetComparisonPath(pair.Code, kind),
			})
		}
	}
	sources = append(sources,
		exporter.SheetSource{Name: "Coef targets", Path: p.CoefTargetsStat},
		exporter.SheetSource{Name: "Classification", Path: p.ClassificationResults},
		exporter.SheetSource{Name: "Class importances", Path: p.ClassificationImportances},
		exporter.SheetSource{Name: "Bonus effect", Path: p.BonusEffect},
		exporter.SheetSource{Name: "Uplift effect", Path: p.UpliftEffect},
		exporter.SheetSource{Name: "Shap metrics", Path: p.GetRegressionMetricsPath(modeling.ShapTarget)},
		exporter.SheetSource{Name: "Shap importance", Path: p.GetShapImportancePath(modeling.ShapTarget)},
		exporter.SheetSource{Name: "Financial results", Path: p.FinalFinancialResults},
	)
	for _, y := range env.Rules.AcademicYears {
		sources = append(sources, exporter.SheetSource{Name: "Finance " + y.Name, Path: p.GetFinancialAnalysisPath(y.Name)})
	}
	return sources
}
