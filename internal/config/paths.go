package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths contains every file the pipeline reads or writes.
// This is the single source of truth for pipeline file locations.
type Paths struct {
	DataDir   string
	ImagesDir string
	LogsDir   string

	ModelingDir         string
	FinancialDir        string
	MannWhitneyDir      string
	RandomForestDir     string
	FinancialPlotsDir   string
	RandomForestPlotDir string

	// Extraction
	RawData         string
	LostReasons     string
	AttendedClasses string

	// Relational snapshot
	ExtendedRawData      string
	AttendedWithTeachers string
	LossDatabase         string
	FinalReport          string

	// Enrichment and analysis
	CostsSalaries    string
	GeneralReport    string
	TeachersAnalysis string
	BoxplotChart     string

	// Teacher KPI features
	KPIDatabase       string
	TeachersRate      string
	TeacherImportance string

	// Modeling
	TeacherIndicators         string
	IndicatorsChance          string
	BonusVariants             string
	CoefTargetsStat           string
	ClassificationResults     string
	ClassificationImportances string
	BonusEffect               string
	UpliftEffect              string

	// Finance
	MonthlyFinancialReport string
	FinalFinancialResults  string
	ScatterGrowthChart     string
	BarGrowthChart         string

	// Aggregated results
	ResultsWorkbook string
}

// NewPaths resolves all pipeline files under the configured roots
func NewPaths(cfg PathsConfig) *Paths {
	data := cfg.DataDir
	images := cfg.ImagesDir
	modeling := filepath.Join(data, "results_of_modeling")
	financial := filepath.Join(data, "financial_results")
	financialPlots := filepath.Join(images, "financial_plots")

	return &Paths{
		DataDir:             data,
		ImagesDir:           images,
		LogsDir:             cfg.LogsDir,
		ModelingDir:         modeling,
		FinancialDir:        financial,
		MannWhitneyDir:      filepath.Join(data, "results_mannwhitney"),
		RandomForestDir:     filepath.Join(data, "results_RandomForest"),
		FinancialPlotsDir:   financialPlots,
		RandomForestPlotDir: filepath.Join(images, "plots_RandomForest"),

		RawData:         filepath.Join(data, "Raw_data.csv"),
		LostReasons:     filepath.Join(data, "Lost_reasons.csv"),
		AttendedClasses: filepath.Join(data, "1_Attended_classes.csv"),

		ExtendedRawData:      filepath.Join(data, "Extended_raw_data.csv"),
		AttendedWithTeachers: filepath.Join(data, "1_Attended_classes_with_teachers.csv"),
		LossDatabase:         filepath.Join(data, "Gone_Clients.sqlite"),
		FinalReport:          filepath.Join(data, "Final_Gone_Clients_Report.csv"),

		CostsSalaries:    filepath.Join(data, "costs_salaries_converted.csv"),
		GeneralReport:    filepath.Join(data, "General_Gone_Clients_Report.csv"),
		TeachersAnalysis: filepath.Join(data, "teachers_analysis.csv"),
		BoxplotChart:     filepath.Join(images, "boxplot_comparison.png"),

		KPIDatabase:       filepath.Join(data, "teacher_analysis.sqlite"),
		TeachersRate:      filepath.Join(data, "Analysis_teachers_rate.csv"),
		TeacherImportance: filepath.Join(data, "Analysis_teacher_with_importance.csv"),

		TeacherIndicators:         filepath.Join(data, "Teacher_indicators.csv"),
		IndicatorsChance:          filepath.Join(modeling, "Teacher_indicators_chance.csv"),
		BonusVariants:             filepath.Join(modeling, "Bonus_v1_v2.csv"),
		CoefTargetsStat:           filepath.Join(modeling, "Coef_achieved_targets_stat.csv"),
		ClassificationResults:     filepath.Join(modeling, "Classification_results.csv"),
		ClassificationImportances: filepath.Join(modeling, "Classification_importances_results.csv"),
		BonusEffect:               filepath.Join(modeling, "bonus_v1_effect.csv"),
		UpliftEffect:              filepath.Join(modeling, "targets_uplift_effect.csv"),

		MonthlyFinancialReport: filepath.Join(data, "Monthly_financial_report_2023_2024.csv"),
		FinalFinancialResults:  filepath.Join(financial, "final_financial_results.csv"),
		ScatterGrowthChart:     filepath.Join(financialPlots, "scatter_growth.png"),
		BarGrowthChart:         filepath.Join(financialPlots, "bar_growth.png"),

		ResultsWorkbook: filepath.Join(data, "churn_results.xlsx"),
	}
}

// EnsureDirectories creates all output directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	directories := []string{
		p.DataDir,
		p.ImagesDir,
		p.LogsDir,
		p.ModelingDir,
		p.FinancialDir,
		p.MannWhitneyDir,
		p.RandomForestDir,
		p.FinancialPlotsDir,
		p.RandomForestPlotDir,
	}

	for _, dir := range directories {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// GetTeacherGroupPath returns teachers_<group>.csv
func (p *Paths) GetTeacherGroupPath(group string) string {
	return filepath.Join(p.DataDir, fmt.Sprintf("teachers_%s.csv", group))
}

// GetGroupCountsPath returns the per-year group and student counts input
func (p *Paths) GetGroupCountsPath(year string) string {
	return filepath.Join(p.DataDir, fmt.Sprintf("groups_and_losts_%s.csv", year))
}

// GetTeacherStatsPath returns the per-year teacher loss statistics output
func (p *Paths) GetTeacherStatsPath(year string) string {
	return filepath.Join(p.DataDir, fmt.Sprintf("Teachers_Data_analysis_%s.csv", year))
}

// GetTopReasonsPath returns Top3_reasons_of_loss_<group>.csv
func (p *Paths) GetTopReasonsPath(ageGroup string) string {
	return filepath.Join(p.DataDir, fmt.Sprintf("Top3_reasons_of_loss_%s.csv", ageGroup))
}

// GetTopReasonsChartPath returns the pie chart of an age group's reasons
func (p *Paths) GetTopReasonsChartPath(ageGroup string) string {
	return filepath.Join(p.ImagesDir, fmt.Sprintf("top_lost_reasons_by_age_group_%s.png", ageGroup))
}

// GetComparisonPath returns results_<pair>_<kind>.csv
func (p *Paths) GetComparisonPath(pair, kind string) string {
	return filepath.Join(p.MannWhitneyDir, fmt.Sprintf("results_%s_%s.csv", pair, kind))
}

// GetComparisonChartPath returns <pair>_analysis_<first>_vs_<second>.png
func (p *Paths) GetComparisonChartPath(pair, first, second string) string {
	return filepath.Join(p.ImagesDir, fmt.Sprintf("%s_analysis_%s_vs_%s.png", pair, first, second))
}

// GetFinancialAnalysisPath returns financial_analysis_<period>.csv
func (p *Paths) GetFinancialAnalysisPath(period string) string {
	return filepath.Join(p.FinancialDir, fmt.Sprintf("financial_analysis_%s.csv", period))
}

// GetLossPieChartPath returns loss_pie_chart_<period>.png
func (p *Paths) GetLossPieChartPath(period string) string {
	return filepath.Join(p.FinancialPlotsDir, fmt.Sprintf("loss_pie_chart_%s.png", period))
}

// GetRegressionMetricsPath returns metrics_<target>.csv
func (p *Paths) GetRegressionMetricsPath(target string) string {
	return filepath.Join(p.RandomForestDir, fmt.Sprintf("metrics_%s.csv", target))
}

// GetShapImportancePath returns importance_<target>.csv
func (p *Paths) GetShapImportancePath(target string) string {
	return filepath.Join(p.RandomForestDir, fmt.Sprintf("importance_%s.csv", target))
}

// GetShapChartPath returns shap_bar_<target>.png
func (p *Paths) GetShapChartPath(target string) string {
	return filepath.Join(p.RandomForestPlotDir, fmt.Sprintf("shap_bar_%s.png", target))
}

// GetShapSummaryChartPath returns shap_summary_<target>.png
func (p *Paths) GetShapSummaryChartPath(target string) string {
	return filepath.Join(p.RandomForestPlotDir, fmt.Sprintf("shap_summary_%s.png", target))
}

// GetLogPath returns the full path for a log file
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LogPathResolution logs the resolved roots for debugging
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("resolved pipeline paths",
		slog.String("data_dir", p.DataDir),
		slog.String("images_dir", p.ImagesDir),
		slog.String("logs_dir", p.LogsDir),
		slog.String("loss_database", p.LossDatabase),
		slog.String("kpi_database", p.KPIDatabase))
}
