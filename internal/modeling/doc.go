// Package modeling holds the compensation experiments run on the monthly
// teacher indicators: the Bonus_v1 and Bonus_v2 hypotheses with a forest
// classifier over them, logistic estimates of treatment effects, and a
// forest regressor of normalized churn explained with Shapley values.
package modeling
