package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"churncli/internal/dataprocessing"
	apperrors "churncli/internal/errors"
	"churncli/pkg/contracts/domain"
)

// ColumnMap binds a source table column to a database column.
type ColumnMap struct {
	Source string
	Target string
}

// Dimension mappings from the extracts onto the dimension tables.
var (
	StudentColumns = []ColumnMap{
		{domain.ColStudentName, "student_name"},
		{domain.ColStudentID, "student_id"},
		{domain.ColChildAge, "age"},
	}
	TeacherColumns = []ColumnMap{
		{domain.ColTeacher, "teacher_name"},
		{domain.ColSubject, "subject"},
		{domain.ColCity, "city"},
	}
	GroupColumns = []ColumnMap{
		{domain.ColGroupName, "group_name"},
		{domain.ColGroupID, "group_id"},
		{domain.ColDate, "start_date"},
	}
)

// InsertDimension copies the mapped columns of t into table. Rows that are
// identical across the mapped columns are inserted once.
func (s *Store) InsertDimension(ctx context.Context, table string, t *dataprocessing.Table, columns []ColumnMap) (int, error) {
	sources := make([]string, len(columns))
	targets := make([]string, len(columns))
	for i, c := range columns {
		sources[i] = c.Source
		targets[i] = c.Target
	}

	sel, err := t.Select(sources...)
	if err != nil {
		return 0, err
	}
	dropped := sel.DropDuplicates()

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(targets, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(targets)), ", "))

	inserted := 0
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, row := range sel.Rows {
			args := make([]any, len(row))
			for i, cell := range row {
				args[i] = SQLValue(cell)
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("insert into %s: %w", table, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, apperrors.NewStorageError("load dimension", err).WithContext("table", table)
	}

	s.logger.InfoContext(ctx, "table populated",
		slog.String("table", table),
		slog.Int("rows", inserted),
		slog.Int("duplicates_dropped", dropped))
	return inserted, nil
}

// SQLValue converts a CSV cell for insertion: empty cells become NULL and
// integral numbers are stored as integers.
func SQLValue(cell string) any {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}
	f := dataprocessing.ParseFloat(cell)
	switch {
	case math.IsNaN(f):
		if strings.EqualFold(cell, "nan") {
			return nil
		}
		return cell
	case f == math.Trunc(f) && math.Abs(f) < 1<<53:
		return int64(f)
	default:
		return f
	}
}

// Fixes are manual name corrections applied before fact lookups.
type Fixes struct {
	Students map[string]string
	Teachers map[string]string
	Groups   map[string]string
}

func fix(m map[string]string, name string) string {
	if v, ok := m[name]; ok {
		return v
	}
	return name
}

// FactStats counts the outcome of a fact load.
type FactStats struct {
	Inserted        int
	MissingStudents int
	MissingTeachers int
	MissingGroups   int
}

// Skipped is the number of rows that did not resolve.
func (f FactStats) Skipped() int {
	return f.MissingStudents + f.MissingTeachers + f.MissingGroups
}

// InsertFacts resolves each merged attendance row to its student, teacher
// and group and inserts a fact. Rows with any unresolved reference are
// logged and skipped.
func (s *Store) InsertFacts(ctx context.Context, merged *dataprocessing.Table, fixes Fixes) (FactStats, error) {
	if err := merged.Require(domain.ColStudentName, domain.ColGroupName, domain.ColTeacher); err != nil {
		return FactStats{}, err
	}

	var stats FactStats
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		lookups := make(map[string]*sql.Stmt, 3)
		for table, column := range map[string]string{"students": "student_name", "teachers": "teacher_name", "groups": "group_name"} {
			stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("SELECT id FROM %s WHERE %s = ? ORDER BY id LIMIT 1", table, column))
			if err != nil {
				return err
			}
			defer stmt.Close()
			lookups[table] = stmt
		}

		insert, err := tx.PrepareContext(ctx, `INSERT INTO gone_clients_content (
			student_id, teacher_id, group_id, attendance_number, lost_reasons)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer insert.Close()

		lookup := func(table, name string) (int64, bool, error) {
			var id int64
			err := lookups[table].QueryRowContext(ctx, name).Scan(&id)
			if err == sql.ErrNoRows {
				return 0, false, nil
			}
			return id, err == nil, err
		}

		for i := range merged.Rows {
			student := fix(fixes.Students, merged.Get(i, domain.ColStudentName))
			group := fix(fixes.Groups, merged.Get(i, domain.ColGroupName))
			teacher := fix(fixes.Teachers, merged.Get(i, domain.ColTeacher))

			studentRef, ok, err := lookup("students", student)
			if err != nil {
				return err
			}
			if !ok {
				stats.MissingStudents++
				s.logger.WarnContext(ctx, "student not found, fact skipped", slog.String("student", student))
				continue
			}
			teacherRef, ok, err := lookup("teachers", teacher)
			if err != nil {
				return err
			}
			if !ok {
				stats.MissingTeachers++
				s.logger.WarnContext(ctx, "teacher not found, fact skipped", slog.String("teacher", teacher))
				continue
			}
			groupRef, ok, err := lookup("groups", group)
			if err != nil {
				return err
			}
			if !ok {
				stats.MissingGroups++
				s.logger.WarnContext(ctx, "group not found, fact skipped", slog.String("group", group))
				continue
			}

			fact := domain.LossFact{
				StudentRef:  studentRef,
				TeacherRef:  teacherRef,
				GroupRef:    groupRef,
				LostReasons: merged.Get(i, domain.ColLostReason),
			}
			if a := merged.Float(i, domain.ColAttendedLesson); !math.IsNaN(a) {
				fact.AttendanceNumber = &a
			}
			if _, err := insert.ExecContext(ctx, fact.StudentRef, fact.TeacherRef, fact.GroupRef, attendanceArg(fact.AttendanceNumber), nullString(fact.LostReasons)); err != nil {
				return fmt.Errorf("insert fact for %s: %w", student, err)
			}
			stats.Inserted++
		}
		return nil
	})
	if err != nil {
		return stats, apperrors.NewStorageError("load facts", err)
	}

	s.logger.InfoContext(ctx, "facts loaded",
		slog.Int("inserted", stats.Inserted),
		slog.Int("skipped", stats.Skipped()))
	return stats, nil
}

func attendanceArg(a *float64) any {
	if a == nil {
		return nil
	}
	return int64(*a)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
