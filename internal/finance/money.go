package finance

import (
	"math"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

func dec(x float64) decimal.Decimal {
	return decimal.NewFromFloat(x)
}

// roundMoney rounds half away from zero to cents. NaN stays NaN.
func roundMoney(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	f, _ := dec(x).Round(2).Float64()
	return f
}

// percent returns round(part*100/whole, 2), or NaN when whole is zero or
// either side is missing.
func percent(part, whole float64) float64 {
	return ratio(part*100, whole)
}

// ratio returns round(a/b, 2) with the same missing-value rules as percent.
func ratio(a, b float64) float64 {
	if b == 0 || math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
		return math.NaN()
	}
	f, _ := dec(a).DivRound(dec(b), 2).Float64()
	return f
}
