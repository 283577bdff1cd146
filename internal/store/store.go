package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	apperrors "churncli/internal/errors"
)

const driverName = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS students (
	id INTEGER PRIMARY KEY,
	student_name VARCHAR,
	student_id INTEGER,
	age INTEGER
);

CREATE TABLE IF NOT EXISTS teachers (
	id INTEGER PRIMARY KEY,
	teacher_name VARCHAR,
	subject VARCHAR,
	city VARCHAR
);

CREATE TABLE IF NOT EXISTS groups (
	id INTEGER PRIMARY KEY,
	group_name VARCHAR,
	group_id INTEGER,
	start_date DATE
);

CREATE TABLE IF NOT EXISTS gone_clients_content (
	id INTEGER PRIMARY KEY,
	student_id INTEGER,
	teacher_id INTEGER,
	group_id INTEGER,
	attendance_number INTEGER,
	lost_reasons VARCHAR,
	FOREIGN KEY (student_id) REFERENCES students (id),
	FOREIGN KEY (teacher_id) REFERENCES teachers (id),
	FOREIGN KEY (group_id) REFERENCES groups (id)
);
`

// tables in drop order, facts first
var tables = []string{"gone_clients_content", "groups", "teachers", "students"}

// Store is the lost clients database.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open connects to the database at path, creating the file when needed,
// and enables foreign keys.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, apperrors.NewStorageError("open database", err).WithContext("path", path)
	}
	// foreign_keys is a per-connection pragma
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("enable foreign keys", err).WithContext("path", path)
	}
	return &Store{db: db, path: path, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the connection for ad-hoc queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates any missing table. It is safe to call repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return apperrors.NewStorageError("create schema", err)
	}
	return nil
}

// Rebuild drops every table and recreates the schema.
func (s *Store) Rebuild(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStorageError("begin rebuild", err)
	}
	defer tx.Rollback()

	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", t)); err != nil {
			return apperrors.NewStorageError("drop table", err).WithContext("table", t)
		}
	}
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return apperrors.NewStorageError("create schema", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewStorageError("commit rebuild", err)
	}

	s.logger.InfoContext(ctx, "database schema rebuilt", slog.String("path", s.path))
	return nil
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		return 0, apperrors.NewStorageError("count rows", err).WithContext("table", table)
	}
	return n, nil
}
