package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	apperrors "churncli/internal/errors"
	"churncli/pkg/contracts/domain"
)

// Pipeline holds the business rules of a run. Every value has a default so
// the YAML file only needs the keys that change.
type Pipeline struct {
	// Rows outside this window are dropped before per-year analysis
	AnalysisWindow PeriodConfig `yaml:"analysis_window" validate:"required"`

	// Academic years compared in the churn analysis, in order
	AcademicYears []AcademicYearConfig `yaml:"academic_years" validate:"required,min=1,dive"`

	// Tariff periods for the cost and salary lookup
	CostPeriods []CostPeriodConfig `yaml:"cost_periods" validate:"required,min=1,dive"`

	// Teacher name variants mapped onto a canonical name
	TeacherAliases map[string]string `yaml:"teacher_aliases"`

	// Teacher assigned to a group when the extended extract lacks one
	MissingTeachers map[string]string `yaml:"missing_teachers"`

	// Name corrections applied before fact lookups
	StudentFixes map[string]string `yaml:"student_fixes"`
	TeacherFixes map[string]string `yaml:"teacher_fixes"`
	GroupFixes   map[string]string `yaml:"group_fixes"`

	AgeBins        []float64         `yaml:"age_bins" validate:"required,min=2"`
	AgeLabels      []string          `yaml:"age_labels" validate:"required,min=1"`
	AgeGroupTitles map[string]string `yaml:"age_group_titles"`

	AllLessons         float64 `yaml:"all_lessons" validate:"gt=0"`
	AllMonths          float64 `yaml:"all_months" validate:"gt=0"`
	MonthsPerYear      float64 `yaml:"months_per_year" validate:"gt=0"`
	RetentionOddsRatio float64 `yaml:"retention_odds_ratio" validate:"gt=0"`
	CourseMonths       float64 `yaml:"course_months" validate:"gt=0"`

	BonusTargets       []BonusTargetConfig `yaml:"bonus_targets" validate:"required,min=1,dive"`
	MinAllTargetsBonus float64             `yaml:"min_all_targets_bonus"`
	TopReasons         int                 `yaml:"top_reasons" validate:"gte=1"`

	Classifier ForestConfig `yaml:"classifier"`
	Regressor  ForestConfig `yaml:"regressor"`
}

// PeriodConfig is a date range in YYYY-MM-DD form
type PeriodConfig struct {
	Name  string `yaml:"name"`
	Start string `yaml:"start" validate:"required"`
	End   string `yaml:"end" validate:"required"`
}

// Period converts to a parsed domain.Period
func (p PeriodConfig) Period() (domain.Period, error) {
	return domain.NewPeriod(p.Name, p.Start, p.End)
}

// AcademicYearConfig describes one analysed academic year
type AcademicYearConfig struct {
	PeriodConfig `yaml:",inline"`
	Label        string `yaml:"label" validate:"required"`
}

// CostPeriodConfig maps a date range onto the cost and salary columns of
// costs_salaries_converted.csv
type CostPeriodConfig struct {
	PeriodConfig `yaml:",inline"`
	CostColumn   string `yaml:"cost_column" validate:"required"`
	SalaryColumn string `yaml:"salary_column" validate:"required"`
}

// BonusTargetConfig is one KPI threshold of the Bonus_v1 scheme
type BonusTargetConfig struct {
	Metric    string  `yaml:"metric" validate:"required"`
	Threshold float64 `yaml:"threshold"`
	Rate      float64 `yaml:"rate" validate:"gte=0"`
}

// ForestConfig configures a random forest fit
type ForestConfig struct {
	Trees    int     `yaml:"trees" validate:"gte=1"`
	TestSize float64 `yaml:"test_size" validate:"gt=0,lt=1"`
	Seed     int64   `yaml:"seed"`
}

// DefaultPipeline returns the business rules used by the school
func DefaultPipeline() *Pipeline {
	return &Pipeline{
		AnalysisWindow: PeriodConfig{Name: "window", Start: "2022-08-01", End: "2024-07-31"},
		AcademicYears: []AcademicYearConfig{
			{PeriodConfig: PeriodConfig{Name: "2022_2023", Start: "2022-08-01", End: "2023-07-31"}, Label: "2022/2023"},
			{PeriodConfig: PeriodConfig{Name: "2023_2024", Start: "2023-08-01", End: "2024-07-31"}, Label: "2023/2024"},
		},
		CostPeriods: []CostPeriodConfig{
			{PeriodConfig: PeriodConfig{Name: "2022", Start: "2022-01-01", End: "2023-07-31"}, CostColumn: "2022_cost", SalaryColumn: "2022_salary"},
			{PeriodConfig: PeriodConfig{Name: "2023", Start: "2023-08-01", End: "2024-08-31"}, CostColumn: "2023_cost", SalaryColumn: "2023_salary"},
		},
		TeacherAliases: map[string]string{
			"Кнідзе Міша":        "Світлозар Чаус",
			"Книдзе Михаил":      "Світлозар Чаус",
			"Сазонова Ліза":      "Сазонова Єлизавета",
			"Котельніков Сергій": "Котельников Сергій",
			"Котельніков 50":     "Котельников Сергій",
			"Гончарук Онлайн":    "Гончарук Денис",
			"Удодік Іра":         "Удодік Ірина",
			"Олег Попруга":       "Попруга Олег",
			"Клименко 250":       "Клименко Владислав",
		},
		MissingTeachers: map[string]string{
			"215221_Умань_СБ_10:00 Геймдизайн": "Бондар Владислав",
		},
		StudentFixes: map[string]string{},
		TeacherFixes: map[string]string{},
		GroupFixes:   map[string]string{},
		AgeBins:      []float64{6, 8, 10, 13, 17},
		AgeLabels:    []string{"A", "B", "C", "D"},
		AgeGroupTitles: map[string]string{
			"A": "7-8 years",
			"B": "9-10 years",
			"C": "11-12 years",
			"D": "13-14 years",
		},
		AllLessons:         AllLessons,
		AllMonths:          AllMonths,
		MonthsPerYear:      MonthsPerYear,
		RetentionOddsRatio: RetentionOddsRatio,
		CourseMonths:       AllMonths,
		BonusTargets: []BonusTargetConfig{
			{Metric: domain.MetricFeedbackForParents, Threshold: 90, Rate: 0.111},
			{Metric: domain.MetricFeedbackToStudents, Threshold: 90, Rate: 0.126},
			{Metric: domain.MetricControlOfHomework, Threshold: 90, Rate: 0.132},
			{Metric: domain.MetricControlOfPotentialLoss, Threshold: 85, Rate: 0.130},
			{Metric: domain.MetricAverageSuccess, Threshold: 75, Rate: 0.132},
		},
		MinAllTargetsBonus: MinAllTargetsBonus,
		TopReasons:         3,
		Classifier:         ForestConfig{Trees: 100, TestSize: 0.3, Seed: 42},
		Regressor:          ForestConfig{Trees: 50, TestSize: 0.2, Seed: 42},
	}
}

// LoadPipeline overlays the YAML file at path onto DefaultPipeline. A
// missing file yields the defaults.
func LoadPipeline(path string) (*Pipeline, error) {
	p := DefaultPipeline()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, p); err != nil {
				return nil, apperrors.NewConfigError("parse pipeline file", err).WithContext("path", path)
			}
		case os.IsNotExist(err):
		default:
			return nil, apperrors.NewConfigError("read pipeline file", err).WithContext("path", path)
		}
	}

	if err := p.Validate(); err != nil {
		if appErr, ok := err.(*apperrors.AppError); ok && path != "" {
			appErr.WithContext("path", path)
		}
		return nil, err
	}
	return p, nil
}

// Validate checks struct constraints and that every period parses
func (p *Pipeline) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return apperrors.NewConfigError("pipeline validation failed", fmt.Errorf(format, args...))
	}
	if err := validator.New().Struct(p); err != nil {
		return apperrors.NewConfigError("pipeline validation failed", err)
	}
	if len(p.AgeLabels) != len(p.AgeBins)-1 {
		return invalid("%d age labels for %d bins", len(p.AgeLabels), len(p.AgeBins)-1)
	}
	for i := 1; i < len(p.AgeBins); i++ {
		if p.AgeBins[i] <= p.AgeBins[i-1] {
			return invalid("age bins must increase")
		}
	}
	if _, err := p.AnalysisWindow.Period(); err != nil {
		return invalid("analysis window: %w", err)
	}
	for _, y := range p.AcademicYears {
		if _, err := y.Period(); err != nil {
			return invalid("academic year %s: %w", y.Name, err)
		}
	}
	for _, c := range p.CostPeriods {
		if _, err := c.Period(); err != nil {
			return invalid("cost period %s: %w", c.Name, err)
		}
	}
	return nil
}

// Window returns the parsed analysis window
func (p *Pipeline) Window() domain.Period {
	w, _ := p.AnalysisWindow.Period()
	return w
}

// Years returns the parsed academic years
func (p *Pipeline) Years() []domain.Period {
	years := make([]domain.Period, 0, len(p.AcademicYears))
	for _, y := range p.AcademicYears {
		period, _ := y.Period()
		years = append(years, period)
	}
	return years
}

// YearLabels returns the display label of each academic year
func (p *Pipeline) YearLabels() []string {
	labels := make([]string, 0, len(p.AcademicYears))
	for _, y := range p.AcademicYears {
		labels = append(labels, y.Label)
	}
	return labels
}
