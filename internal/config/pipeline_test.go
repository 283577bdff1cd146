package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "churncli/internal/errors"
)

func TestLoadPipeline_Defaults(t *testing.T) {
	p, err := LoadPipeline(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Len(t, p.AcademicYears, 2)
	assert.Equal(t, []string{"2022/2023", "2023/2024"}, p.YearLabels())
	assert.Equal(t, "Світлозар Чаус", p.TeacherAliases["Книдзе Михаил"])
	assert.Equal(t, "Бондар Владислав", p.MissingTeachers["215221_Умань_СБ_10:00 Геймдизайн"])
	assert.Equal(t, []float64{6, 8, 10, 13, 17}, p.AgeBins)
	assert.Equal(t, 40.0, p.AllLessons)
	assert.Equal(t, 2.47, p.RetentionOddsRatio)
	assert.Len(t, p.BonusTargets, 5)

	window := p.Window()
	assert.Equal(t, time.Date(2022, 8, 1, 0, 0, 0, 0, time.UTC), window.Start)
	assert.True(t, window.Contains(time.Date(2024, 7, 31, 15, 0, 0, 0, time.UTC)))
	assert.False(t, window.Contains(time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)))
}

func TestLoadPipeline_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	content := `
academic_years:
  - name: 2023_2024
    start: "2023-08-01"
    end: "2024-07-31"
    label: 2023/2024
teacher_aliases:
  "Петренко Оля": "Петренко Ольга"
classifier:
  trees: 10
  test_size: 0.25
  seed: 7
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	p, err := LoadPipeline(path)
	require.NoError(t, err)

	require.Len(t, p.AcademicYears, 1)
	assert.Equal(t, "2023_2024", p.AcademicYears[0].Name)
	assert.Equal(t, "Петренко Ольга", p.TeacherAliases["Петренко Оля"])
	assert.Equal(t, "Світлозар Чаус", p.TeacherAliases["Кнідзе Міша"], "default aliases are kept")
	assert.Equal(t, 10, p.Classifier.Trees)
	assert.Equal(t, 50, p.Regressor.Trees)
}

func TestPipeline_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Pipeline)
	}{
		{"labels do not match bins", func(p *Pipeline) { p.AgeLabels = []string{"A", "B"} }},
		{"bins not increasing", func(p *Pipeline) { p.AgeBins = []float64{6, 10, 8, 13, 17} }},
		{"bad date", func(p *Pipeline) { p.AcademicYears[0].End = "2023-13-01" }},
		{"end before start", func(p *Pipeline) { p.AnalysisWindow.End = "2021-01-01" }},
		{"no cost periods", func(p *Pipeline) { p.CostPeriods = nil }},
		{"test size out of range", func(p *Pipeline) { p.Regressor.TestSize = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPipeline()
			tt.mutate(p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig), "got %v", err)
		})
	}

	assert.NoError(t, DefaultPipeline().Validate())
}

func TestLoadPipeline_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"malformed yaml", "age_bins: [6, 10\n", "parse pipeline file"},
		{"invalid rules", "age_bins: [6, 10, 8, 13, 17]\n", "age bins must increase"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "pipeline.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := LoadPipeline(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			var appErr *apperrors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, apperrors.ErrTypeConfig, appErr.Type)
			assert.Equal(t, path, appErr.Context["path"])
		})
	}
}
