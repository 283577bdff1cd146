// Package shared holds helpers used across the pipeline packages that do
// not belong to any single step.
//
// The testutil subpackage provides a buffered slog handler for asserting
// on skip-and-log behaviour, and fixtures that lay out a temporary data
// directory with small CSV inputs.
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    paths := testutil.TempPaths(t)
//	    testutil.WriteCSV(t, paths.CostsSalaries, []string{"city"}, []string{"Kyiv"})
//	    logger, logs := testutil.NewTestLogger(t)
//	    ...
//	    testutil.AssertLogContains(t, logs, slog.LevelWarn, "row skipped")
//	}
package shared
