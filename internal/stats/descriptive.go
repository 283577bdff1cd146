package stats

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"churncli/pkg/contracts/domain"
)

// TukeyK is the fence multiplier for IQR outliers.
const TukeyK = 1.5

// DropNaN returns the non-NaN values of xs in order.
func DropNaN(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// Mean is the arithmetic mean ignoring NaN. NaN for an empty sample.
func Mean(xs []float64) float64 {
	clean := DropNaN(xs)
	if len(clean) == 0 {
		return math.NaN()
	}
	return stat.Mean(clean, nil)
}

// StdDev is the sample standard deviation (n-1) ignoring NaN.
// NaN when fewer than two values remain.
func StdDev(xs []float64) float64 {
	clean := DropNaN(xs)
	if len(clean) < 2 {
		return math.NaN()
	}
	return stat.StdDev(clean, nil)
}

// Median ignoring NaN.
func Median(xs []float64) float64 {
	return Quantile(xs, 0.5)
}

// Sum ignoring NaN.
func Sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		if !math.IsNaN(x) {
			s += x
		}
	}
	return s
}

// Max ignoring NaN. NaN for an empty sample.
func Max(xs []float64) float64 {
	m := math.NaN()
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		if math.IsNaN(m) || x > m {
			m = x
		}
	}
	return m
}

// Quantile returns the p-quantile of xs with linear interpolation between
// closest ranks (Hyndman-Fan type 7). NaN values are ignored.
func Quantile(xs []float64, p float64) float64 {
	sorted := DropNaN(xs)
	if len(sorted) == 0 {
		return math.NaN()
	}
	sort.Float64s(sorted)
	return quantileSorted(sorted, p)
}

func quantileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	index := p * float64(n-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}

	weight := index - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

// Quartiles returns Q1 and Q3 of xs.
func Quartiles(xs []float64) (q1, q3 float64) {
	sorted := DropNaN(xs)
	if len(sorted) == 0 {
		return math.NaN(), math.NaN()
	}
	sort.Float64s(sorted)
	return quantileSorted(sorted, 0.25), quantileSorted(sorted, 0.75)
}

// TukeyFences computes Q1 - 1.5 IQR and Q3 + 1.5 IQR.
func TukeyFences(xs []float64) domain.OutlierBounds {
	q1, q3 := Quartiles(xs)
	iqr := q3 - q1
	return domain.OutlierBounds{
		Q1:    q1,
		Q3:    q3,
		IQR:   iqr,
		Lower: q1 - TukeyK*iqr,
		Upper: q3 + TukeyK*iqr,
	}
}

// IsOutlier reports whether x lies strictly outside b. NaN is never an
// outlier.
func IsOutlier(b domain.OutlierBounds, x float64) bool {
	if math.IsNaN(x) {
		return false
	}
	return x < b.Lower || x > b.Upper
}

// Round rounds x half away from zero to places decimals. NaN and infinities
// pass through unchanged.
func Round(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	f, _ := decimal.NewFromFloat(x).Round(int32(places)).Float64()
	return f
}

// SafeDiv returns a/b, or NaN when b is zero or either side is NaN.
func SafeDiv(a, b float64) float64 {
	if b == 0 || math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	return a / b
}
