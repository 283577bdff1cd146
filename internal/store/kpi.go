package store

import (
	"context"
	"database/sql"
	"log/slog"
	"math"

	"churncli/internal/config"
	"churncli/internal/dataprocessing"
	apperrors "churncli/internal/errors"
	"churncli/pkg/contracts/domain"
)

const teacherRatesQuery = `
SELECT
	t.Teacher AS teacher_name,
	ts.Date,
	ts.Feedback_for_parents,
	ts.Feedback_to_students,
	ts.Control_of_homework,
	ts.Control_of_potential_loss,
	ts.Average_success
FROM TeacherStats ts
JOIN Teachers t ON ts.Teacher = t.Teacher
ORDER BY t.Teacher, ts.Date`

const kpiSchema = `
DROP TABLE IF EXISTS TeacherStats;
DROP TABLE IF EXISTS Teachers;
CREATE TABLE Teachers (Teacher TEXT PRIMARY KEY);
CREATE TABLE TeacherStats (
	Teacher TEXT NOT NULL REFERENCES Teachers(Teacher),
	Date TEXT NOT NULL,
	Feedback_for_parents REAL,
	Feedback_to_students REAL,
	Control_of_homework REAL,
	Control_of_potential_loss REAL,
	Average_success REAL
);`

// TeacherRateColumns is the header of Analysis_teachers_rate.csv.
var TeacherRateColumns = append([]string{"teacher_name", "Date"}, domain.KPIMetrics...)

// ReadTeacherRates loads the monthly KPI rows of every teacher from the
// teacher statistics database at path, ordered by teacher and date.
func ReadTeacherRates(ctx context.Context, path string, logger *slog.Logger) (*dataprocessing.Table, error) {
	if !config.FileExists(path) {
		return nil, apperrors.NewFileError("open", path, apperrors.ErrFileNotFound)
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, apperrors.NewStorageError("open kpi database", err).WithContext("path", path)
	}
	defer db.Close()

	t := dataprocessing.NewTable(TeacherRateColumns...)
	t.Path = path
	n, err := streamRows(ctx, db, teacherRatesQuery, tableWriter{t})
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "teacher KPI rows loaded",
		slog.String("path", path),
		slog.Int("rows", n))
	return t, nil
}

// WriteTeacherRates replaces the contents of the teacher statistics
// database at path with rates. Teachers are registered in first-seen
// order.
func WriteTeacherRates(ctx context.Context, path string, rates []domain.TeacherRate) error {
	st, err := Open(ctx, path, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := st.db.ExecContext(ctx, kpiSchema); err != nil {
		return apperrors.NewStorageError("create kpi schema", err).WithContext("path", path)
	}
	err = st.withTx(ctx, func(tx *sql.Tx) error {
		seen := make(map[string]bool)
		for _, r := range rates {
			if seen[r.TeacherName] {
				continue
			}
			seen[r.TeacherName] = true
			if _, err := tx.ExecContext(ctx, "INSERT INTO Teachers (Teacher) VALUES (?)", r.TeacherName); err != nil {
				return err
			}
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO TeacherStats VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rates {
			args := []any{r.TeacherName, r.Date}
			for _, m := range domain.KPIMetrics {
				args = append(args, floatArg(r.Metrics[m]))
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.NewStorageError("write teacher rates", err).WithContext("path", path)
	}
	return nil
}

func floatArg(f float64) any {
	if math.IsNaN(f) {
		return nil
	}
	return f
}
