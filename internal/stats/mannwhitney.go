package stats

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrEmptySample is returned when a test needs at least one value per side.
var ErrEmptySample = errors.New("stats: empty sample")

// exactMaxSize is the largest sample for which the exact null distribution
// is used when there are no ties.
const exactMaxSize = 8

// MannWhitneyMethod names the way the p-value was obtained.
type MannWhitneyMethod string

const (
	MethodExact      MannWhitneyMethod = "exact"
	MethodAsymptotic MannWhitneyMethod = "asymptotic"
)

// MannWhitney is the outcome of a two-sided rank-sum test.
type MannWhitney struct {
	// U is the statistic of the first sample.
	U      float64
	P      float64
	Method MannWhitneyMethod
}

// MannWhitneyU runs a two-sided Mann-Whitney U test of x against y after
// dropping NaN. The exact distribution is used when either sample has at
// most eight values and no ties exist; otherwise the normal approximation
// with tie and continuity correction.
func MannWhitneyU(x, y []float64) (MannWhitney, error) {
	x, y = DropNaN(x), DropNaN(y)
	n1, n2 := len(x), len(y)
	if n1 == 0 || n2 == 0 {
		return MannWhitney{}, ErrEmptySample
	}

	ranks, tieTerm := rankWithTies(append(append([]float64{}, x...), y...))
	var r1 float64
	for i := 0; i < n1; i++ {
		r1 += ranks[i]
	}

	fn1, fn2 := float64(n1), float64(n2)
	u1 := r1 - fn1*(fn1+1)/2
	u2 := fn1*fn2 - u1
	u := math.Max(u1, u2)

	res := MannWhitney{U: u1}
	if (n1 <= exactMaxSize || n2 <= exactMaxSize) && tieTerm == 0 {
		res.Method = MethodExact
		res.P = exactUpperTail(n1, n2, int(math.Round(u)))
	} else {
		res.Method = MethodAsymptotic
		n := fn1 + fn2
		mu := fn1 * fn2 / 2
		sigma := math.Sqrt(fn1 * fn2 / 12 * ((n + 1) - tieTerm/(n*(n-1))))
		if sigma == 0 {
			res.P = 1
		} else {
			z := (u - mu - 0.5) / sigma
			res.P = distuv.UnitNormal.Survival(z)
		}
	}

	res.P = math.Min(1, math.Max(0, 2*res.P))
	return res, nil
}

// rankWithTies assigns average ranks (1-based) and returns the tie term
// sum(t^3 - t) over groups of equal values.
func rankWithTies(values []float64) ([]float64, float64) {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	ranks := make([]float64, n)
	var tieTerm float64
	for i := 0; i < n; {
		j := i + 1
		for j < n && values[idx[j]] == values[idx[i]] {
			j++
		}
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		if t := float64(j - i); t > 1 {
			tieTerm += t*t*t - t
		}
		i = j
	}
	return ranks, tieTerm
}

// exactUpperTail returns P(U >= u) under the null for sample sizes n1, n2.
func exactUpperTail(n1, n2, u int) float64 {
	counts := uCounts(n1, n2)
	var total, tail float64
	for k, c := range counts {
		total += c
		if k >= u {
			tail += c
		}
	}
	return tail / total
}

// uCounts returns, for each U in [0, n1*n2], the number of orderings of the
// pooled sample that produce it. Built from the recurrence
// c(m, n, u) = c(m-1, n, u-n) + c(m, n-1, u).
func uCounts(n1, n2 int) []float64 {
	prev := make([][]float64, n2+1)
	for j := 0; j <= n2; j++ {
		prev[j] = []float64{1}
	}

	for i := 1; i <= n1; i++ {
		cur := make([][]float64, n2+1)
		cur[0] = []float64{1}
		for j := 1; j <= n2; j++ {
			c := make([]float64, i*j+1)
			for u := range c {
				if u >= j && u-j < len(prev[j]) {
					c[u] += prev[j][u-j]
				}
				if u < len(cur[j-1]) {
					c[u] += cur[j-1][u]
				}
			}
			cur[j] = c
		}
		prev = cur
	}
	return prev[n2]
}
