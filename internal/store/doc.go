// Package store keeps the relational snapshot of lost clients in SQLite.
//
// The snapshot is rebuilt from scratch on every run: Rebuild drops the four
// tables and recreates them, the dimension tables are loaded from the
// attendance and extended extracts, and every fact row is inserted only
// when its student, teacher and group resolve. ExportReport streams the
// joined view back to CSV. ReadTeacherRates reads the monthly KPI rows of
// the separate teacher statistics database.
package store
