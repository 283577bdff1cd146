// Package charts renders the PNG figures of the pipeline: year-over-year
// box plots with labelled outliers, per-metric box grids for teacher
// category comparisons, bar and scatter charts with gonum/plot, and pie
// charts with go-chart.
//
// A Renderer built with enabled=false accepts every call and writes
// nothing, so steps can run headless without branching.
package charts
