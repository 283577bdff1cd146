package dataprocessing

import (
	"context"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churncli/internal/config"
	"churncli/internal/shared/testutil"
	"churncli/pkg/contracts/domain"
)

func TestNormalizeTeacher(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Петро Іваненко  ", "Петро Іваненко"},
		{"Котельніков Сергій (online)", "Котельніков Сергій"},
		{"Котельніков 50 група", "Котельніков 50"},
		{"O'Brien Sean Patrick", "O'Brien Sean"},
		{"Петро\u00a0Іваненко Олегович", "Петро\u00a0Іваненко"},
		{"Петро\u2009Іваненко", "Петро\u2009Іваненко"},
		{"Single", "Single"},
		{"", ""},
		{"Іра - заміна", "Іра - заміна"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTeacher(tt.in), "NormalizeTeacher(%q)", tt.in)
	}
}

func TestAgeGroup(t *testing.T) {
	bins := []float64{6, 8, 10, 13, 17}
	labels := []string{"A", "B", "C", "D"}

	tests := []struct {
		age    float64
		want   string
		binned bool
	}{
		{6, "A", true},
		{7, "A", true},
		{8, "A", true},
		{8.5, "B", true},
		{10, "B", true},
		{13, "C", true},
		{17, "D", true},
		{5, "", false},
		{18, "", false},
		{math.NaN(), "", false},
	}
	for _, tt := range tests {
		got, ok := AgeGroup(tt.age, bins, labels)
		assert.Equal(t, tt.want, got, "age %v", tt.age)
		assert.Equal(t, tt.binned, ok, "age %v", tt.age)
	}
}

func TestPreprocessor_Normalize(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	p := config.DefaultPipeline()
	pre := NewPreprocessor(p, logger)

	mk := func(teacher, date string, age float64) domain.LossRecord {
		r := domain.NewLossRecord()
		r.TeacherName = teacher
		r.StartDateRaw = date
		r.Age = age
		return r
	}
	records := []domain.LossRecord{
		mk(" Олег Попруга ", "2023-01-10", 7),
		mk("Котельніков 50 Онлайн", "garbage", 12),
		mk("Петро Іваненко", "", 20),
		mk("Петро Іваненко", "2024-02-01", math.NaN()),
	}

	stats := pre.Normalize(context.Background(), records)
	assert.Equal(t, NormalizeStats{InvalidDates: 1, OutOfRangeAge: 1}, stats)

	assert.Equal(t, "Олег Попруга", records[0].TeacherName)
	assert.Equal(t, "Попруга Олег", records[0].NameNormalized, "alias applied")
	assert.Equal(t, "A", records[0].AgeGroup)
	assert.Equal(t, 1, records[0].Count)
	assert.Equal(t, time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC), records[0].StartDate)

	assert.Equal(t, "Котельніков 50", records[1].TeacherNormalized)
	assert.Equal(t, "Котельников Сергій", records[1].NameNormalized)
	assert.True(t, records[1].StartDateInvalid)
	assert.Equal(t, "C", records[1].AgeGroup)

	assert.False(t, records[2].StartDateInvalid, "empty dates are missing, not invalid")
	assert.True(t, records[2].OutOfRangeAge)
	assert.Equal(t, "Петро Іваненко", records[2].NameNormalized)

	assert.False(t, records[3].OutOfRangeAge, "missing age is not out of range")
	assert.Equal(t, "", records[3].AgeGroup)

	testutil.AssertLogContains(t, handler, slog.LevelWarn, "invalid start dates found")
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "students with age outside bins")
}

func TestFilterPeriod(t *testing.T) {
	window := domain.MustPeriod("window", "2022-08-01", "2024-07-31")
	mk := func(d string) domain.LossRecord {
		r := domain.NewLossRecord()
		r.StartDate, _, _ = ParseDate(d)
		return r
	}
	records := []domain.LossRecord{
		mk("2022-07-31"),
		mk("2022-08-01"),
		mk("2024-07-31"),
		mk("2024-08-01"),
		mk(""),
	}

	kept := FilterPeriod(records, window)
	require.Len(t, kept, 2)
	assert.Equal(t, "2022-08-01", FormatDate(kept[0].StartDate))
	assert.Equal(t, "2024-07-31", FormatDate(kept[1].StartDate))
}
