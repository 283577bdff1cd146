// Package stats holds the numeric routines behind the churn analysis:
// NaN-aware descriptive statistics, Tukey fences, the Mann-Whitney U test,
// logistic regression fitted by Newton-Raphson, CART trees and random
// forests with impurity importances, and exact Shapley attributions for
// tree ensembles.
//
// Missing values are represented as NaN throughout. Functions that
// summarise a sample drop NaN first, the way the reporting tables expect.
//
// Random number generation is always seeded by the caller so that model
// outputs are reproducible between runs.
package stats
