// Package features derives teacher cohorts and KPI features from the
// churn statistics.
//
// The features step splits teachers into the stability groups A to D from
// their tier counts, exports the monthly KPI scores kept in the teacher
// statistics database and weighs every KPI by the teacher's normalized
// monthly churn. The compare step tests whether the KPI distributions of
// two cohorts differ.
package features
