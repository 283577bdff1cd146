// Package exporter writes pipeline results: CSV files with an optional
// UTF-8 BOM for spreadsheet compatibility, an Excel workbook collecting the
// key result tables, and console summaries rendered as text tables.
//
// Example usage:
//
//	writer := exporter.NewCSVWriter(paths, logger)
//	err := writer.WriteTable(paths.FinalReport, table, exporter.WithBOM())
//
// Cell formatting lives with the Table type in dataprocessing.
package exporter
