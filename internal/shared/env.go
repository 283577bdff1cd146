package shared

import (
	"context"
	"log/slog"
	"path/filepath"

	"churncli/internal/charts"
	"churncli/internal/config"
	"churncli/internal/dataprocessing"
	"churncli/internal/exporter"
	"churncli/internal/files"
	"churncli/internal/infrastructure"
)

// Env bundles what every pipeline step needs: file locations, business
// rules, writers and instrumentation.
type Env struct {
	Paths   *config.Paths
	Rules   *config.Pipeline
	CSV     *exporter.CSVWriter
	Charts  *charts.Renderer
	Metrics *infrastructure.PipelineMetrics
	Logger  *slog.Logger
}

// NewEnv creates an environment with charts enabled and no metrics.
func NewEnv(paths *config.Paths, rules *config.Pipeline, logger *slog.Logger) *Env {
	if logger == nil {
		logger = slog.Default()
	}
	if rules == nil {
		rules = config.DefaultPipeline()
	}
	return &Env{
		Paths:  paths,
		Rules:  rules,
		CSV:    exporter.NewCSVWriter(paths, logger),
		Charts: charts.NewRenderer(true, logger),
		Logger: logger,
	}
}

// WithLogger returns a copy of e that logs through logger.
func (e *Env) WithLogger(logger *slog.Logger) *Env {
	c := *e
	c.Logger = logger
	c.CSV = exporter.NewCSVWriter(e.Paths, logger)
	c.Charts = charts.NewRenderer(e.Charts.Enabled(), logger)
	return &c
}

// Load reads a CSV or XLSX table and counts its rows.
func (e *Env) Load(ctx context.Context, path string) (*dataprocessing.Table, error) {
	if resolved, ok := files.Resolve(path); ok {
		path = resolved
	}
	t, err := dataprocessing.ReadTable(path)
	if err != nil {
		e.Logger.ErrorContext(ctx, "failed to load table",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return nil, err
	}
	e.Metrics.RecordRowsRead(ctx, filepath.Base(path), t.Len())
	e.Logger.DebugContext(ctx, "table loaded",
		slog.String("file", filepath.Base(path)),
		slog.Int("rows", t.Len()))
	return t, nil
}

// Save writes t as CSV and counts its rows.
func (e *Env) Save(ctx context.Context, path string, t *dataprocessing.Table, opts ...exporter.Option) error {
	if err := e.CSV.WriteTable(path, t, opts...); err != nil {
		return err
	}
	e.Metrics.RecordRowsWritten(ctx, filepath.Base(path), t.Len())
	return nil
}

// Skipped records rows dropped for reason.
func (e *Env) Skipped(ctx context.Context, reason string, n int) {
	if n > 0 {
		e.Metrics.RecordRowsSkipped(ctx, reason, n)
	}
}

// ChartDone logs a chart failure without failing the step.
func (e *Env) ChartDone(ctx context.Context, path string, err error) {
	if err != nil {
		e.Logger.WarnContext(ctx, "chart not saved",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return
	}
	if e.Charts.Enabled() {
		e.Logger.DebugContext(ctx, "chart saved", slog.String("file", filepath.Base(path)))
	}
}
