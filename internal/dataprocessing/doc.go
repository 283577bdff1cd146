// Package dataprocessing provides the tabular layer shared by every step of
// the churn pipeline. It reads and writes the CSV and Excel extracts, turns
// rows into typed loss records, and holds the per-teacher loss analytics
// reused by the analysis and features steps.
//
// # Architecture
//
// The package is organized into four components:
//
// 1. Table: an ordered header plus string cells, read from CSV or the first
// readable sheet of a workbook
// 2. Frame: conversion to and from gota dataframes for column arithmetic
// 3. Records: decoding of the loss report into domain.LossRecord values,
// date and month parsing, and number formatting that matches the files
// written by earlier runs
// 4. Analytics: loss rates per teacher and year, Tukey outliers, quartile
// tiers and the most common lost reasons
//
// # Usage
//
//	t, err := dataprocessing.ReadTable("data/final_report.csv")
//	if err != nil {
//	    return err
//	}
//	records := dataprocessing.DecodeLossRecords(t)
//	stats := dataprocessing.NewAnalyzer(logger).LossByTeacher(ctx, records, year, counts)
//
// # Missing Values
//
// Empty cells and the literals "nan" and "NaT" decode to NaN or the zero
// time. Numbers are never coerced to zero, so downstream statistics can
// skip missing values instead of counting them.
package dataprocessing
