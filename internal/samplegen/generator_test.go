package samplegen_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churncli/internal/dataprocessing"
	"churncli/internal/operations"
	"churncli/internal/samplegen"
	"churncli/internal/shared"
	"churncli/internal/shared/testutil"
	"churncli/internal/store"
	"churncli/pkg/contracts/domain"
)

func generate(t *testing.T, opts samplegen.Options) (*shared.Env, *samplegen.Result) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	env := shared.NewEnv(testutil.TempPaths(t), nil, logger)
	res, err := samplegen.NewGenerator(env, opts).Run(context.Background())
	require.NoError(t, err)
	return env, res
}

func TestGenerator_Run(t *testing.T) {
	env, res := generate(t, samplegen.DefaultOptions())
	paths := env.Paths

	assert.Equal(t, 240, res.Students)
	assert.Equal(t, 8, res.Teachers)
	for _, f := range res.Files {
		_, err := os.Stat(f)
		assert.NoError(t, err, f)
	}

	header, rows := testutil.ReadCSV(t, paths.RawData)
	assert.Equal(t, []string{domain.ColStudentName, domain.ColGroupID, domain.ColDate}, header)
	assert.Len(t, rows, res.Students)

	require.NotNil(t, res.Extract)
	assert.Equal(t, res.Students, res.Extract.Rows)
	assert.Positive(t, res.Extract.Matched)
	assert.Positive(t, res.Extract.WithoutGroup+res.Extract.Unmatched)
	assert.Zero(t, res.Extract.FailedRequests)

	header, rows = testutil.ReadCSV(t, paths.AttendedClasses)
	assert.Contains(t, header, domain.ColAttendedLesson)
	assert.Contains(t, header, domain.ColGroupName)
	assert.Len(t, rows, res.Students)

	for _, y := range env.Rules.AcademicYears {
		counts, err := dataprocessing.ReadGroupCounts(paths.GetGroupCountsPath(y.Name))
		require.NoError(t, err)
		assert.Len(t, counts, res.Teachers)
	}

	rates, err := store.ReadTeacherRates(context.Background(), paths.KPIDatabase, nil)
	require.NoError(t, err)
	assert.Equal(t, res.KPIRows, rates.Len())

	header, rows = testutil.ReadCSV(t, paths.TeacherIndicators)
	assert.Equal(t, domain.IndicatorColumns, header)
	assert.Len(t, rows, res.IndicatorRows)
	assert.Contains(t, testutil.Column(t, header, rows, domain.ColIndTargetsAchieved), "1")

	header, _ = testutil.ReadCSV(t, paths.MonthlyFinancialReport)
	assert.Equal(t, domain.FinancialReportColumns, header)
}

func TestGenerator_Reproducible(t *testing.T) {
	opts := samplegen.Options{Seed: 7, Teachers: 3, Groups: 6, Students: 30}
	first, _ := generate(t, opts)
	second, _ := generate(t, opts)

	for _, path := range []func(*shared.Env) string{
		func(e *shared.Env) string { return e.Paths.RawData },
		func(e *shared.Env) string { return e.Paths.TeacherIndicators },
		func(e *shared.Env) string { return e.Paths.CostsSalaries },
	} {
		_, a := testutil.ReadCSV(t, path(first))
		_, b := testutil.ReadCSV(t, path(second))
		assert.Equal(t, a, b)
	}
}

func TestGenerator_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts samplegen.Options
	}{
		{"one teacher", samplegen.Options{Teachers: 1, Groups: 4, Students: 20}},
		{"fewer groups than teachers", samplegen.Options{Teachers: 4, Groups: 2, Students: 20}},
		{"too few students", samplegen.Options{Teachers: 2, Groups: 2, Students: 3}},
		{"negative seed", samplegen.Options{Seed: -1, Teachers: 2, Groups: 2, Students: 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := shared.NewEnv(testutil.TempPaths(t), nil, nil)
			_, err := samplegen.NewGenerator(env, tt.opts).Run(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestFakeLMS(t *testing.T) {
	fake := samplegen.NewFakeLMS()
	fake.Enroll(10, 1, "Anna Koval Petrivna", 12)

	roster, err := fake.Roster(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, int64(1), roster[0].ID)

	n, err := fake.Attendance(context.Background(), 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	empty, err := fake.Roster(context.Background(), 99)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Equal(t, 3, fake.Requests())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = fake.Attendance(ctx, 10, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSampleDataFeedsRelationalSteps(t *testing.T) {
	if testing.Short() {
		t.Skip("runs several pipeline steps")
	}
	env, res := generate(t, samplegen.DefaultOptions())
	logger, _ := testutil.NewTestLogger(t)

	registry, err := operations.NewPipeline(env, nil)
	require.NoError(t, err)
	manager := operations.NewManager(registry, operations.NewConfig(), nil, logger)

	resp, err := manager.Execute(context.Background(), operations.OperationRequest{
		Steps: []string{operations.StepIDBuildDB, operations.StepIDExportReport},
	})
	require.NoError(t, err)
	assert.Equal(t, operations.OperationStatusCompleted, resp.Status)

	build, ok := resp.Results[operations.StepIDBuildDB].(*store.BuildResult)
	require.True(t, ok)
	assert.Positive(t, build.Facts.Inserted)
	assert.LessOrEqual(t, build.Facts.Inserted, res.Students)
}
