package analysis

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churncli/internal/config"
	"churncli/internal/shared"
	"churncli/internal/shared/testutil"
	"churncli/pkg/contracts/domain"
)

func reportRow(student, teacher, date, age, reason string) []string {
	return []string{student, "1", age, teacher, "Python", "Київ", "g1", "1", date, "4", reason}
}

func writeFixtures(t *testing.T, paths *config.Paths) {
	t.Helper()

	var rows [][]string
	add := func(teacher, date, age, reason string, n int) {
		for i := 0; i < n; i++ {
			rows = append(rows, reportRow(fmt.Sprintf("s%d", len(rows)), teacher, date, age, reason))
		}
	}
	// 2022/2023
	add("Анна Коваль", "2022-09-10", "7", "Price", 2)
	add("Борис Левченко", "2022-10-10", "9", "Moved", 4)
	add("Віра Мельник", "2022-11-10", "12", "Schedule", 6)
	add("Галина Ткач", "2023-01-10", "14", "Price", 8)
	add("Олег Попруга", "2023-02-10", "7", "Moved", 30)
	// 2023/2024
	add("Анна Коваль", "2023-09-10", "7", "Price", 3)
	add("Борис Левченко", "2023-10-10", "9", "", 3)
	add("Віра Мельник", "2023-11-10", "12", "Price", 3)
	add("Галина Ткач", "2024-01-10", "14", "Schedule", 3)
	// outside the window, still counted for reasons
	add("Анна Коваль", "2021-05-10", "7", "Health", 5)
	add("Анна Коваль", "not a date", "30", "Price", 1)

	testutil.WriteCSV(t, paths.GeneralReport, domain.ReportColumns, rows...)

	header := []string{"name_normalized", "number_of_students", "number_of_group", "count_of_loss"}
	testutil.WriteCSV(t, paths.GetGroupCountsPath("2022_2023"), header,
		[]string{"Анна Коваль", "100", "5", "2"},
		[]string{"Борис Левченко", "100", "5", "4"},
		[]string{"Віра Мельник", "100", "5", "6"},
		[]string{"Галина Ткач", "100", "5", "8"},
		[]string{"Попруга Олег", "100", "5", "30"},
	)
	testutil.WriteCSV(t, paths.GetGroupCountsPath("2023_2024"), header,
		[]string{"Анна Коваль", "100", "1", "3"},
		[]string{"Борис Левченко", "100", "2", "3"},
		[]string{"Віра Мельник", "100", "3", "3"},
		[]string{"Галина Ткач", "100", "4", "3"},
	)
}

func TestService_Run(t *testing.T) {
	paths := testutil.TempPaths(t)
	writeFixtures(t, paths)
	logger, logs := testutil.NewTestLogger(t)
	env := shared.NewEnv(paths, config.DefaultPipeline(), logger)

	res, err := NewService(env).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 68, res.Loaded)
	assert.Equal(t, 62, res.Kept)
	assert.Equal(t, 1, res.Flags.InvalidDates)
	assert.Equal(t, 1, res.Flags.OutOfRangeAge)

	require.Len(t, res.Years, 2)
	// 2022/2023 rates per group: 0.4, 0.8, 1.2, 1.6, 6.0
	assert.Equal(t, []string{"Попруга Олег"}, res.Years[0].Outliers)
	assert.Empty(t, res.Years[1].Outliers)
	assert.Equal(t, []string{"Попруга Олег"}, res.Outliers)

	// filtered report overwrites the input with the analysis columns
	header, rows := testutil.ReadCSV(t, paths.GeneralReport)
	assert.Equal(t, domain.AnalyzedReportColumns, header)
	assert.Len(t, rows, 62)
	assert.Contains(t, testutil.Column(t, header, rows, "name_normalized"), "Попруга Олег")

	header, rows = testutil.ReadCSV(t, paths.GetTeacherStatsPath("2023_2024"))
	assert.Equal(t, []string{"name_normalized", "count", "number_of_students", "number_of_group", "global_percent_of_loss", "percent_of_loss_for_one_group"}, header)
	assert.Equal(t, []string{"Анна Коваль", "3", "100", "1", "3.0", "3.0"}, rows[0])

	// reasons for A include the record outside the window
	_, rows = testutil.ReadCSV(t, paths.GetTopReasonsPath("A"))
	assert.Equal(t, [][]string{{"Moved", "30"}, {"Price", "5"}, {"Health", "5"}}, rows)
	_, rows = testutil.ReadCSV(t, paths.GetTopReasonsPath("B"))
	assert.Equal(t, [][]string{{"Moved", "4"}}, rows, "empty reasons are not counted")

	header, rows = testutil.ReadCSV(t, paths.TeachersAnalysis)
	assert.Equal(t, []string{"name", "best", "interquart", "bad", "worst"}, header)
	byName := map[string][]string{}
	for _, r := range rows {
		byName[r[0]] = r[1:]
	}
	assert.Equal(t, []string{"0", "0", "0", "1"}, byName["Попруга Олег"])
	assert.Equal(t, []string{"1", "0", "1", "0"}, byName["Анна Коваль"])
	assert.Equal(t, []string{"1", "0", "1", "0"}, byName["Галина Ткач"])
	assert.Equal(t, []string{"0", "2", "0", "0"}, byName["Борис Левченко"])

	assert.FileExists(t, paths.BoxplotChart)
	assert.FileExists(t, paths.GetTopReasonsChartPath("A"))
	assert.FileExists(t, paths.GetTopReasonsChartPath("D"))
	testutil.AssertNoErrors(t, logs)

	header, summary := res.Summary()
	assert.Len(t, header, 8)
	assert.Len(t, summary, 2)
}

func TestService_MissingGroupCounts(t *testing.T) {
	paths := testutil.TempPaths(t)
	testutil.WriteCSV(t, paths.GeneralReport, domain.ReportColumns,
		reportRow("s1", "Анна Коваль", "2022-09-10", "7", "Price"))

	env := shared.NewEnv(paths, config.DefaultPipeline(), nil)
	_, err := NewService(env).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "group counts for 2022_2023")
}
