package dataprocessing

import (
	"math"
	"strconv"
	"strings"
)

// FormatFloat renders a float for CSV output: NaN as an empty cell,
// integral values with a trailing ".0", everything else in shortest form.
func FormatFloat(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// FormatFixed renders f with exactly places decimals, NaN as empty.
func FormatFixed(f float64, places int) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', places, 64)
}

// FormatNumber renders a count-like float without decimals when integral,
// the way integer columns with no missing values are written.
func FormatNumber(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return FormatFloat(f)
}

// FormatInt formats an integer for CSV output
func FormatInt(i int) string {
	return strconv.Itoa(i)
}

// FormatBool renders booleans as True/False
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
