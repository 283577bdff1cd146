// Package finance attaches course costs and teacher salaries to the loss
// report and turns lost clients into money: per-period loss summaries and
// the projected effect of the Bonus_v1 compensation scheme on the monthly
// financial report.
package finance
