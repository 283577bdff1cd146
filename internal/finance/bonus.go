package finance

import (
	"math"
	"strings"

	"github.com/go-gota/gota/dataframe"

	"churncli/internal/dataprocessing"
	"churncli/internal/stats"
	"churncli/pkg/contracts/domain"
)

// NormalizeMonth renders a month cell as YYYY-MM. Full dates keep their
// month; unrecognised values are returned trimmed.
func NormalizeMonth(s string) string {
	if m, ok := dataprocessing.ParseMonth(s); ok {
		return dataprocessing.FormatMonth(m)
	}
	return strings.TrimSpace(s)
}

// MonthStats is the bonus growth coefficient of one month.
type MonthStats struct {
	Month string
	Mean  float64
	Std   float64
	N     int
}

// Stable reports whether the spread is below maxPct percent of the mean.
// A month with a single observation has no spread and counts as stable.
func (m MonthStats) Stable(maxPct float64) bool {
	if math.IsNaN(m.Std) {
		return true
	}
	return m.Std < m.Mean*maxPct/100
}

// BonusParams are the constants of the Bonus_v1 projection.
type BonusParams struct {
	RetentionOddsRatio float64
	CourseMonths       float64
	StableDispersion   float64
}

// BonusGrowth is the result of projecting Bonus_v1 onto the financial
// report.
type BonusGrowth struct {
	Months          []MonthStats
	Stable          bool
	Report          dataframe.DataFrame
	MeanGrowExpense float64
	MeanGrowProfit  float64
}

// GrowthByMonth computes the bonus growth coefficient
// Total_income_v1 / Total_compensation per row of the bonus dataset and
// summarizes it per month, rounded to 2 places, in first-seen month order.
func GrowthByMonth(bonus dataframe.DataFrame) ([]MonthStats, error) {
	if err := dataprocessing.RequireFrame(bonus, "", domain.ColIndMonth, domain.ColIndTotalIncomeV1, domain.ColIndTotalComp); err != nil {
		return nil, err
	}
	months, _ := dataprocessing.FrameStrings(bonus, domain.ColIndMonth)
	income, _ := dataprocessing.FrameFloats(bonus, domain.ColIndTotalIncomeV1)
	comp, _ := dataprocessing.FrameFloats(bonus, domain.ColIndTotalComp)

	var order []string
	byMonth := make(map[string][]float64)
	for i := range months {
		m := NormalizeMonth(months[i])
		if _, ok := byMonth[m]; !ok {
			order = append(order, m)
		}
		byMonth[m] = append(byMonth[m], stats.SafeDiv(income[i], comp[i]))
	}

	out := make([]MonthStats, 0, len(order))
	for _, m := range order {
		xs := byMonth[m]
		out = append(out, MonthStats{
			Month: m,
			Mean:  stats.Round(stats.Mean(xs), 2),
			Std:   stats.Round(stats.StdDev(xs), 2),
			N:     len(stats.DropNaN(xs)),
		})
	}
	return out, nil
}

// ProjectBonus merges the monthly growth coefficients onto the financial
// report and projects expenses, lost clients and profit under Bonus_v1.
func ProjectBonus(report, bonus dataframe.DataFrame, p BonusParams) (*BonusGrowth, error) {
	if err := dataprocessing.RequireFrame(report, "", domain.FinancialReportColumns...); err != nil {
		return nil, err
	}
	months, err := GrowthByMonth(bonus)
	if err != nil {
		return nil, err
	}

	res := &BonusGrowth{Months: months, Stable: len(months) > 0}
	byMonth := make(map[string]MonthStats, len(months))
	for _, m := range months {
		byMonth[m.Month] = m
		if !m.Stable(p.StableDispersion) {
			res.Stable = false
		}
	}

	rawMonths, _ := dataprocessing.FrameStrings(report, domain.ColFinMonth)
	cost, _ := dataprocessing.FrameFloats(report, domain.ColFinCourseCost)
	planned, _ := dataprocessing.FrameFloats(report, domain.ColFinPlanned)
	lost, _ := dataprocessing.FrameFloats(report, domain.ColFinLost)
	expenses, _ := dataprocessing.FrameFloats(report, domain.ColFinExpenses)
	profit, _ := dataprocessing.FrameFloats(report, domain.ColFinProfit)

	n := report.Nrow()
	monthCol := make([]string, n)
	bgcMean := make([]float64, n)
	bgcStd := make([]float64, n)
	expBonus := make([]float64, n)
	lostBonus := make([]float64, n)
	profitBonus := make([]float64, n)
	growExp := make([]float64, n)
	growProfit := make([]float64, n)

	for i := 0; i < n; i++ {
		monthCol[i] = NormalizeMonth(rawMonths[i])
		m, ok := byMonth[monthCol[i]]
		if !ok {
			m = MonthStats{Mean: math.NaN(), Std: math.NaN()}
		}
		bgcMean[i], bgcStd[i] = m.Mean, m.Std

		expBonus[i] = roundMoney(expenses[i] * m.Mean)
		lostBonus[i] = ratio(lost[i], p.RetentionOddsRatio)
		profitBonus[i] = projectedProfit(cost[i], planned[i], lostBonus[i], p.CourseMonths, expBonus[i])
		growExp[i] = ratio(expBonus[i], expenses[i])
		growProfit[i] = ratio(profitBonus[i], profit[i])
	}

	df := dataprocessing.SetStrings(report, domain.ColFinMonth, monthCol)
	df = dataprocessing.SetFloats(df, domain.ColFinBonusGrowthAvg, bgcMean)
	df = dataprocessing.SetFloats(df, domain.ColFinBonusGrowthStd, bgcStd)
	df = dataprocessing.SetFloats(df, domain.ColFinExpensesBonus, expBonus)
	df = dataprocessing.SetFloats(df, domain.ColFinLostBonus, lostBonus)
	df = dataprocessing.SetFloats(df, domain.ColFinProfitBonus, profitBonus)
	df = dataprocessing.SetFloats(df, domain.ColFinGrowExpenses, growExp)
	df = dataprocessing.SetFloats(df, domain.ColFinGrowProfit, growProfit)
	if df.Err != nil {
		return nil, df.Err
	}

	res.Report = df
	res.MeanGrowExpense = stats.Round(stats.Mean(growExp), 2)
	res.MeanGrowProfit = stats.Round(stats.Mean(growProfit), 2)
	return res, nil
}

// projectedProfit is cost × (planned − lost) × months − expenses, in cents.
func projectedProfit(cost, planned, lost, months, expenses float64) float64 {
	for _, x := range []float64{cost, planned, lost, expenses} {
		if math.IsNaN(x) {
			return math.NaN()
		}
	}
	v := dec(cost).Mul(dec(planned).Sub(dec(lost))).Mul(dec(months)).Sub(dec(expenses)).Round(2)
	f, _ := v.Float64()
	return f
}
