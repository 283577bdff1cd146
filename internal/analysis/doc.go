// Package analysis runs the churn statistics step: it normalizes the
// enriched loss report, restricts it to the analysis window, computes
// per-teacher loss rates for each academic year, flags outlier teachers,
// lists the most common lost reasons per age group and counts how often
// each teacher falls into each quartile tier.
package analysis
