package store

import (
	"context"
	"database/sql"
	"log/slog"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churncli/internal/config"
	"churncli/internal/dataprocessing"
	"churncli/internal/shared"
	"churncli/internal/shared/testutil"
	"churncli/pkg/contracts/domain"
)

var attendedHeader = []string{
	domain.ColStudentName, domain.ColStudentID, domain.ColChildAge,
	domain.ColGroupName, domain.ColGroupID, domain.ColDate,
	domain.ColAttendedLesson, domain.ColLostReason,
}

var extendedHeader = []string{
	domain.ColGroupID, domain.ColTeacher, domain.ColSubject, domain.ColCity,
}

func attendedTable() *dataprocessing.Table {
	t := dataprocessing.NewTable(attendedHeader...)
	t.Append("Іван Петренко", "101", "9", "G1 Python", "11", "2023-09-04", "5", "Переїзд")
	t.Append("Олена Шевчук", "102", "12", "G2 Roblox", "12", "2023-10-02", "", "")
	t.Append("Іван Петренко", "101", "9", "G1 Python", "11", "2023-09-04", "5", "Переїзд")
	t.Append("Марко Лисенко", "103", "8", "G3 Minecraft", "13", "2023-11-06", "2", "Ціна")
	return t
}

func extendedTable() *dataprocessing.Table {
	t := dataprocessing.NewTable(extendedHeader...)
	t.Append("G1 Python", "Анна Коваль", "Python", "Київ")
	t.Append("G1 Python", "Анна Коваль", "Python", "Київ")
	t.Append("G2 Roblox", "Борис Мельник", "Roblox", "Львів")
	t.Append("G2 Roblox", "Галина Бондар", "Roblox", "Львів")
	t.Append("G3 Minecraft", "", "Minecraft", "Умань")
	return t
}

func openTestStore(t *testing.T, logger *slog.Logger) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "loss.sqlite"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Rebuild(context.Background()))
	return s
}

func TestRebuild(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, nil)

	_, err := s.InsertDimension(ctx, "students", attendedTable(), StudentColumns)
	require.NoError(t, err)
	n, err := s.Count(ctx, "students")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, s.Rebuild(ctx))
	for _, table := range tables {
		n, err := s.Count(ctx, table)
		require.NoError(t, err)
		assert.Zero(t, n, table)
	}
	require.NoError(t, s.Migrate(ctx))
}

func TestInsertDimension(t *testing.T) {
	ctx := context.Background()
	handler := testutil.NewBufferedSlogHandler(t)
	s := openTestStore(t, slog.New(handler))

	tests := []struct {
		name    string
		table   string
		source  *dataprocessing.Table
		columns []ColumnMap
		want    int
	}{
		{"students deduplicated", "students", attendedTable(), StudentColumns, 3},
		{"teachers deduplicated", "teachers", extendedTable(), TeacherColumns, 4},
		{"groups deduplicated", "groups", attendedTable(), GroupColumns, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := s.InsertDimension(ctx, tt.table, tt.source, tt.columns)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)

			count, err := s.Count(ctx, tt.table)
			require.NoError(t, err)
			assert.Equal(t, tt.want, count)
		})
	}

	var age int64
	require.NoError(t, s.DB().QueryRowContext(ctx,
		"SELECT age FROM students WHERE student_name = ?", "Олена Шевчук").Scan(&age))
	assert.Equal(t, int64(12), age)

	records := handler.GetRecordsByMessage("table populated")
	require.Len(t, records, 3)
	assert.Equal(t, int64(1), records[0].Attrs["duplicates_dropped"])
}

func TestInsertDimensionMissingColumn(t *testing.T) {
	s := openTestStore(t, nil)
	_, err := s.InsertDimension(context.Background(), "teachers", attendedTable(), TeacherColumns)
	assert.Error(t, err)
}

func TestSQLValue(t *testing.T) {
	tests := []struct {
		cell string
		want any
	}{
		{"", nil},
		{"  ", nil},
		{"nan", nil},
		{"42", int64(42)},
		{"42.0", int64(42)},
		{"2.5", 2.5},
		{"Київ", "Київ"},
		{"2023-09-04", "2023-09-04"},
	}
	for _, tt := range tests {
		t.Run(tt.cell, func(t *testing.T) {
			assert.Equal(t, tt.want, SQLValue(tt.cell))
		})
	}
}

func TestUniteTeachers(t *testing.T) {
	merged, dropped, err := UniteTeachers(attendedTable(), extendedTable(), map[string]string{
		"G3 Minecraft": "Марко Ручний",
	})
	require.NoError(t, err)

	assert.Zero(t, dropped)
	assert.Equal(t, domain.ColTeacher, merged.Header[len(merged.Header)-1])
	assert.Equal(t, []string{
		"Анна Коваль",
		"Борис Мельник",
		"Галина Бондар",
		"Анна Коваль",
		"Марко Ручний",
	}, merged.Column(domain.ColTeacher))
	assert.Equal(t, "Олена Шевчук", merged.Get(2, domain.ColStudentName))
}

func TestUniteTeachersDropsUnassigned(t *testing.T) {
	attended := attendedTable()
	attended.Append("Нова Учениця", "104", "10", "G9 Unknown", "19", "2023-12-01", "1", "")

	merged, dropped, err := UniteTeachers(attended, extendedTable(), nil)
	require.NoError(t, err)

	// G3 has an empty teacher and G9 is absent from the extended extract
	assert.Equal(t, 2, dropped)
	assert.Equal(t, 4, merged.Len())
	assert.NotContains(t, merged.Column(domain.ColGroupName), "G9 Unknown")
}

func TestUniteTeachersMissingColumn(t *testing.T) {
	_, _, err := UniteTeachers(attendedTable(), dataprocessing.NewTable(domain.ColTeacher), nil)
	assert.Error(t, err)
}

func loadDimensions(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	_, err := s.InsertDimension(ctx, "students", attendedTable(), StudentColumns)
	require.NoError(t, err)
	_, err = s.InsertDimension(ctx, "teachers", extendedTable(), TeacherColumns)
	require.NoError(t, err)
	_, err = s.InsertDimension(ctx, "groups", attendedTable(), GroupColumns)
	require.NoError(t, err)
}

func TestInsertFacts(t *testing.T) {
	ctx := context.Background()
	handler := testutil.NewBufferedSlogHandler(t)
	s := openTestStore(t, slog.New(handler))
	loadDimensions(t, s)

	merged, _, err := UniteTeachers(attendedTable(), extendedTable(), map[string]string{"G3 Minecraft": "Тарас Новий"})
	require.NoError(t, err)

	stats, err := s.InsertFacts(ctx, merged, Fixes{
		Teachers: map[string]string{"Тарас Новий": "Анна Коваль"},
	})
	require.NoError(t, err)
	assert.Equal(t, FactStats{Inserted: 5}, stats)

	merged.Append("Невідомий", "999", "9", "G1 Python", "11", "2023-09-04", "1", "", "Анна Коваль")
	stats, err = s.InsertFacts(ctx, merged, Fixes{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MissingStudents)
	assert.Equal(t, 1, stats.MissingTeachers)
	assert.Equal(t, 2, stats.Skipped())
	assert.Len(t, handler.GetRecordsByMessage("student not found, fact skipped"), 1)
	assert.Len(t, handler.GetRecordsByMessage("teacher not found, fact skipped"), 1)

	var nulls int
	require.NoError(t, s.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM gone_clients_content WHERE attendance_number IS NULL AND lost_reasons IS NULL").Scan(&nulls))
	assert.Equal(t, 4, nulls, "two inserts of two Roblox rows each")

	var orphans int
	require.NoError(t, s.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM gone_clients_content gcc
		LEFT JOIN students s ON gcc.student_id = s.id
		WHERE s.id IS NULL`).Scan(&orphans))
	assert.Zero(t, orphans)
}

func TestForeignKeysEnforced(t *testing.T) {
	s := openTestStore(t, nil)
	_, err := s.DB().ExecContext(context.Background(),
		"INSERT INTO gone_clients_content (student_id, teacher_id, group_id) VALUES (1, 1, 1)")
	assert.Error(t, err)
}

func TestExportReport(t *testing.T) {
	ctx := context.Background()
	paths := testutil.TempPaths(t)
	env := shared.NewEnv(paths, nil, slog.New(testutil.NewBufferedSlogHandler(t)))

	s := openTestStore(t, nil)
	loadDimensions(t, s)
	merged, _, err := UniteTeachers(attendedTable(), extendedTable(), map[string]string{"G3 Minecraft": "Анна Коваль"})
	require.NoError(t, err)
	_, err = s.InsertFacts(ctx, merged, Fixes{})
	require.NoError(t, err)

	w, err := env.CSV.CreateStreamWriter(paths.FinalReport, domain.ReportColumns)
	require.NoError(t, err)
	n, err := s.ExportReport(ctx, w)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, 5, n)

	header, rows := testutil.ReadCSV(t, paths.FinalReport)
	assert.Equal(t, domain.ReportColumns, header)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{
		"Іван Петренко", "101", "9", "Анна Коваль", "Python", "Київ",
		"G1 Python", "11", "2023-09-04", "5", "Переїзд",
	}, rows[0])
	assert.Equal(t, "", testutil.Column(t, header, rows, domain.ColReportAttendance)[1])

	report, err := s.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, rows[4], report.Rows[4])
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"int", int64(7), "7"},
		{"float", 2.5, "2.5"},
		{"bytes", []byte("abc"), "abc"},
		{"string", "abc", "abc"},
		{"bool", true, "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}

func createKPIDatabase(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open(driverName, path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE Teachers (Teacher TEXT PRIMARY KEY);
		CREATE TABLE TeacherStats (
			Teacher TEXT, Date TEXT,
			Feedback_for_parents REAL, Feedback_to_students REAL,
			Control_of_homework REAL, Control_of_potential_loss REAL,
			Average_success REAL);
		INSERT INTO Teachers VALUES ('Борис Мельник'), ('Анна Коваль');
		INSERT INTO TeacherStats VALUES
			('Борис Мельник', '2023-10', 80, 85, 90, 70, 60),
			('Анна Коваль', '2023-11', 95, 91, 92.5, 88, 77),
			('Анна Коваль', '2023-10', 90, 90, 90, 85, 75),
			('Сторонній', '2023-10', 1, 1, 1, 1, 1);`)
	require.NoError(t, err)
}

func TestReadTeacherRates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teacher_analysis.sqlite")
	createKPIDatabase(t, path)

	rates, err := ReadTeacherRates(context.Background(), path, nil)
	require.NoError(t, err)

	assert.Equal(t, TeacherRateColumns, rates.Header)
	require.Equal(t, 3, rates.Len())
	assert.Equal(t, []string{"Анна Коваль", "2023-10", "90.0", "90.0", "90.0", "85.0", "75.0"}, rates.Rows[0])
	assert.Equal(t, "92.5", rates.Get(1, domain.MetricControlOfHomework))
	assert.Equal(t, "Борис Мельник", rates.Get(2, "teacher_name"))
}

func TestReadTeacherRatesMissingFile(t *testing.T) {
	_, err := ReadTeacherRates(context.Background(), filepath.Join(t.TempDir(), "absent.sqlite"), nil)
	assert.Error(t, err)
}

func TestWriteTeacherRates(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "teacher_analysis.sqlite")
	metrics := func(v float64) map[string]float64 {
		m := make(map[string]float64)
		for _, k := range domain.KPIMetrics {
			m[k] = v
		}
		return m
	}
	partial := metrics(70)
	partial[domain.MetricAverageSuccess] = math.NaN()

	rates := []domain.TeacherRate{
		{TeacherName: "Віра Ткач", Date: "2023-11-01", Metrics: metrics(80)},
		{TeacherName: "Віра Ткач", Date: "2023-10-01", Metrics: partial},
		{TeacherName: "Анна Коваль", Date: "2023-10-01", Metrics: metrics(90)},
	}
	require.NoError(t, WriteTeacherRates(ctx, path, rates))
	// rewriting replaces the previous contents
	require.NoError(t, WriteTeacherRates(ctx, path, rates))

	got, err := ReadTeacherRates(ctx, path, nil)
	require.NoError(t, err)
	require.Equal(t, 3, got.Len())
	assert.Equal(t, "Анна Коваль", got.Get(0, "teacher_name"))
	assert.Equal(t, []string{"Віра Ткач", "2023-10-01", "70.0", "70.0", "70.0", "70.0", ""}, got.Rows[1])
	assert.Equal(t, "2023-11-01", got.Get(2, "Date"))
}

func TestBuildAndExportServices(t *testing.T) {
	ctx := context.Background()
	paths := testutil.TempPaths(t)
	handler := testutil.NewBufferedSlogHandler(t)
	rules := config.DefaultPipeline()
	rules.MissingTeachers = map[string]string{"G3 Minecraft": "Анна Коваль"}
	env := shared.NewEnv(paths, rules, slog.New(handler))

	attended := attendedTable()
	testutil.WriteCSV(t, paths.AttendedClasses, attended.Header, attended.Rows...)
	extended := extendedTable()
	testutil.WriteCSV(t, paths.ExtendedRawData, extended.Header, extended.Rows...)

	res, err := NewBuildService(env).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Students)
	assert.Equal(t, 4, res.Teachers)
	assert.Equal(t, 3, res.Groups)
	assert.Equal(t, 5, res.Merged)
	assert.Zero(t, res.Dropped)
	assert.Equal(t, 5, res.Facts.Inserted)
	assert.FileExists(t, paths.AttendedWithTeachers)

	n, err := NewExportService(env).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	header, rows := testutil.ReadCSV(t, paths.FinalReport)
	assert.Equal(t, domain.ReportColumns, header)
	assert.Len(t, rows, 5)
	testutil.AssertNoErrors(t, handler)

	// a second build starts from an empty database
	res, err = NewBuildService(env).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Facts.Inserted)
	n, err = NewExportService(env).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestBuildServiceMissingInput(t *testing.T) {
	env := shared.NewEnv(testutil.TempPaths(t), nil, slog.New(testutil.NewBufferedSlogHandler(t)))
	_, err := NewBuildService(env).Run(context.Background())
	assert.Error(t, err)
}
