package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"churncli/internal/dataprocessing"
	apperrors "churncli/internal/errors"
	"churncli/pkg/contracts/domain"
)

const reportQuery = `
SELECT
	s.student_name,
	s.student_id,
	s.age,
	t.teacher_name,
	t.subject,
	t.city,
	g.group_name,
	g.group_id,
	g.start_date,
	gcc.attendance_number,
	gcc.lost_reasons
FROM gone_clients_content AS gcc
JOIN students AS s ON gcc.student_id = s.id
JOIN teachers AS t ON gcc.teacher_id = t.id
JOIN groups AS g ON gcc.group_id = g.id
ORDER BY gcc.id`

// RowWriter receives query rows one at a time.
type RowWriter interface {
	WriteRecord(record []string) error
}

// ExportReport streams the joined loss report to w in
// domain.ReportColumns order and returns the row count.
func (s *Store) ExportReport(ctx context.Context, w RowWriter) (int, error) {
	return s.stream(ctx, reportQuery, w)
}

// Report returns the joined loss report as a table.
func (s *Store) Report(ctx context.Context) (*dataprocessing.Table, error) {
	t := dataprocessing.NewTable(domain.ReportColumns...)
	if _, err := s.stream(ctx, reportQuery, tableWriter{t}); err != nil {
		return nil, err
	}
	return t, nil
}

type tableWriter struct{ t *dataprocessing.Table }

func (w tableWriter) WriteRecord(record []string) error {
	w.t.Append(record...)
	return nil
}

func (s *Store) stream(ctx context.Context, query string, w RowWriter, args ...any) (int, error) {
	return streamRows(ctx, s.db, query, w, args...)
}

func streamRows(ctx context.Context, db *sql.DB, query string, w RowWriter, args ...any) (int, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.NewStorageError("query", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, apperrors.NewStorageError("read columns", err)
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	n := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return n, apperrors.NewStorageError("scan row", err)
		}
		record := make([]string, len(values))
		for i, v := range values {
			record[i] = FormatValue(v)
		}
		if err := w.WriteRecord(record); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, apperrors.NewStorageError("iterate rows", err)
	}
	return n, nil
}

// FormatValue renders a scanned SQLite value as a CSV cell.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return dataprocessing.FormatFloat(x)
	case []byte:
		return string(x)
	case string:
		return x
	case bool:
		if x {
			return "1"
		}
		return "0"
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(domain.DateLayout)
		}
		return x.Format("2006-01-02 15:04:05")
	default:
		return ""
	}
}
