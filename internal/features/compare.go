package features

import (
	"errors"
	"math"
	"sort"

	"churncli/internal/dataprocessing"
	"churncli/internal/stats"
	"churncli/pkg/contracts/domain"
)

// Significance is the p-value below which two cohorts are said to differ.
const Significance = 0.05

// Comparison output kinds.
const (
	KindMean        = "mean"
	KindMedian      = "median"
	KindMannWhitney = "mannwhitney"
)

// Kinds lists the comparison outputs in write order.
var Kinds = []string{KindMean, KindMedian, KindMannWhitney}

const (
	colCategory    = "category"
	colMetric      = "metric"
	colUStat       = "U_stat"
	colPValue      = "p_value"
	colSignificant = "significant"
)

// Pair is two cohorts compared against each other.
type Pair struct {
	Code          string
	First, Second domain.TeacherGroup
	FirstLabel    string
	SecondLabel   string
}

// Pairs lists the cohort comparisons in output order.
var Pairs = []Pair{
	{Code: "AB", First: domain.TeacherGroupStable, Second: domain.TeacherGroupUnstable, FirstLabel: "Stable", SecondLabel: "Unstable"},
	{Code: "CD", First: domain.TeacherGroupBestOnce, Second: domain.TeacherGroupBadOnce, FirstLabel: "Best_One_Year", SecondLabel: "Bad_One_Year"},
}

// MetricTest is the rank-sum test of one KPI.
type MetricTest struct {
	Metric      string
	U           float64
	P           float64
	Significant bool
}

// Comparison holds the KPI samples and statistics of a cohort pair.
type Comparison struct {
	Pair Pair
	// Samples[metric][category] are the non-missing monthly scores.
	Samples map[string]map[string][]float64
	// Categories present in the data, sorted by label.
	Categories []string
	Mean       map[string]map[string]float64
	Median     map[string]map[string]float64
	Tests      []MetricTest
}

// Compare selects the KPI rows of each cohort's teachers and compares the
// two distributions metric by metric. Metrics with an empty side are not
// tested.
func Compare(pair Pair, rates []domain.TeacherRate, first, second []string) Comparison {
	c := Comparison{
		Pair:    pair,
		Samples: make(map[string]map[string][]float64, len(domain.KPIMetrics)),
		Mean:    make(map[string]map[string]float64),
		Median:  make(map[string]map[string]float64),
	}
	members := map[string]map[string]bool{
		pair.FirstLabel:  toSet(first),
		pair.SecondLabel: toSet(second),
	}
	rowsIn := make(map[string]int)
	for _, m := range domain.KPIMetrics {
		c.Samples[m] = map[string][]float64{pair.FirstLabel: {}, pair.SecondLabel: {}}
	}
	for _, r := range rates {
		for _, label := range []string{pair.FirstLabel, pair.SecondLabel} {
			if !members[label][r.TeacherName] {
				continue
			}
			rowsIn[label]++
			for _, m := range domain.KPIMetrics {
				if v := r.Metrics[m]; !math.IsNaN(v) {
					c.Samples[m][label] = append(c.Samples[m][label], v)
				}
			}
		}
	}

	for label, n := range rowsIn {
		if n > 0 {
			c.Categories = append(c.Categories, label)
		}
	}
	sort.Strings(c.Categories)

	for _, label := range c.Categories {
		c.Mean[label] = make(map[string]float64)
		c.Median[label] = make(map[string]float64)
		for _, m := range domain.KPIMetrics {
			c.Mean[label][m] = stats.Round(stats.Mean(c.Samples[m][label]), 2)
			c.Median[label][m] = stats.Round(stats.Median(c.Samples[m][label]), 2)
		}
	}

	for _, m := range domain.KPIMetrics {
		res, err := stats.MannWhitneyU(c.Samples[m][pair.FirstLabel], c.Samples[m][pair.SecondLabel])
		if errors.Is(err, stats.ErrEmptySample) {
			continue
		}
		c.Tests = append(c.Tests, MetricTest{
			Metric:      m,
			U:           stats.Round(res.U, 2),
			P:           stats.Round(res.P, 4),
			Significant: res.P < Significance,
		})
	}
	return c
}

func toSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

// Encode renders one of the comparison outputs.
func (c Comparison) Encode(kind string) *dataprocessing.Table {
	switch kind {
	case KindMannWhitney:
		t := dataprocessing.NewTable(colMetric, colUStat, colPValue, colSignificant)
		for _, r := range c.Tests {
			t.Append(r.Metric, dataprocessing.FormatFloat(r.U), dataprocessing.FormatFloat(r.P), dataprocessing.FormatBool(r.Significant))
		}
		return t
	default:
		values := c.Mean
		if kind == KindMedian {
			values = c.Median
		}
		t := dataprocessing.NewTable(append([]string{colCategory}, domain.KPIMetrics...)...)
		for _, label := range c.Categories {
			cells := []string{label}
			for _, m := range domain.KPIMetrics {
				cells = append(cells, dataprocessing.FormatFloat(values[label][m]))
			}
			t.Append(cells...)
		}
		return t
	}
}

// Significant lists the metrics whose distributions differ.
func (c Comparison) Significant() []string {
	var out []string
	for _, r := range c.Tests {
		if r.Significant {
			out = append(out, r.Metric)
		}
	}
	return out
}
