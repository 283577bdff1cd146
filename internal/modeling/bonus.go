package modeling

import (
	"math"
	"strings"

	"github.com/go-gota/gota/dataframe"

	"churncli/internal/config"
	"churncli/internal/dataprocessing"
	"churncli/internal/stats"
	"churncli/pkg/contracts/domain"
)

// AddChance appends the bonus share of each row and two monthly averages:
// mean_chance over rows that earned a bonus and coef_achieved_targets, the
// share of rows that hit their targets. Months without data get 0.
func AddChance(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	if err := dataprocessing.RequireFrame(df, "", domain.IndicatorColumns...); err != nil {
		return df, err
	}
	months, _ := dataprocessing.FrameStrings(df, domain.ColIndMonth)
	bonus, _ := dataprocessing.FrameFloats(df, domain.ColIndBonus)
	comp, _ := dataprocessing.FrameFloats(df, domain.ColIndTotalComp)
	targets, _ := dataprocessing.FrameFloats(df, domain.ColIndTargetsAchieved)

	chance := make([]float64, len(months))
	paid := make(map[string][]float64)
	hits := make(map[string][]float64)
	for i := range months {
		m := strings.TrimSpace(months[i])
		chance[i] = stats.Round(stats.SafeDiv(bonus[i], comp[i]), 2)
		if chance[i] > 0 {
			paid[m] = append(paid[m], chance[i])
		}
		hits[m] = append(hits[m], targets[i])
	}

	meanChance := make([]float64, len(months))
	coef := make([]float64, len(months))
	for i := range months {
		m := strings.TrimSpace(months[i])
		meanChance[i] = zeroIfNaN(stats.Round(stats.Mean(paid[m]), 2))
		coef[i] = zeroIfNaN(stats.Round(stats.Mean(hits[m]), 2))
	}

	df = dataprocessing.SetFloats(df, domain.ColIndChance, chance)
	df = dataprocessing.SetFloats(df, domain.ColIndMeanChance, meanChance)
	df = dataprocessing.SetFloats(df, domain.ColIndCoefTargets, coef)
	return df, df.Err
}

func zeroIfNaN(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return f
}

// BonusRules are the two compensation hypotheses.
type BonusRules struct {
	Targets []config.BonusTargetConfig
	// MinAllTargets is the floor of Bonus_v2.
	MinAllTargets float64
}

// BonusRulesFrom reads the hypotheses from the pipeline rules.
func BonusRulesFrom(p *config.Pipeline) BonusRules {
	return BonusRules{Targets: p.BonusTargets, MinAllTargets: p.MinAllTargetsBonus}
}

// AddBonusVariants appends both hypotheses. Bonus_v1 pays a share of the
// base deposit for every KPI at or above its threshold; Bonus_v2 pays the
// teacher's lesson earnings, at least MinAllTargets, only when every KPI
// holds.
func AddBonusVariants(df dataframe.DataFrame, rules BonusRules) (dataframe.DataFrame, error) {
	cols := []string{domain.ColIndBaseDeposit, domain.ColIndRate, domain.ColIndLessonCount}
	for _, t := range rules.Targets {
		cols = append(cols, t.Metric)
	}
	if err := dataprocessing.RequireFrame(df, "", cols...); err != nil {
		return df, err
	}
	bd, _ := dataprocessing.FrameFloats(df, domain.ColIndBaseDeposit)
	rate, _ := dataprocessing.FrameFloats(df, domain.ColIndRate)
	lessons, _ := dataprocessing.FrameFloats(df, domain.ColIndLessonCount)
	scores := make([][]float64, len(rules.Targets))
	for j, t := range rules.Targets {
		scores[j], _ = dataprocessing.FrameFloats(df, t.Metric)
	}

	n := df.Nrow()
	v1 := make([]float64, n)
	income1 := make([]float64, n)
	v2 := make([]float64, n)
	income2 := make([]float64, n)
	for i := 0; i < n; i++ {
		all := true
		for j, t := range rules.Targets {
			if scores[j][i] >= t.Threshold {
				v1[i] += bd[i] * t.Rate
			} else {
				all = false
			}
		}
		v1[i] = stats.Round(v1[i], 2)
		income1[i] = stats.Round(bd[i]+v1[i], 2)

		if all {
			v2[i] = math.Max(rate[i]*lessons[i], rules.MinAllTargets)
		}
		income2[i] = stats.Round(bd[i]+v2[i], 2)
	}

	df = dataprocessing.SetFloats(df, domain.ColIndBonusV1, v1)
	df = dataprocessing.SetFloats(df, domain.ColIndTotalIncomeV1, income1)
	df = dataprocessing.SetFloats(df, domain.ColIndBonusV2, v2)
	df = dataprocessing.SetFloats(df, domain.ColIndTotalIncomeV2, income2)
	return df, df.Err
}

// CoefStats summarizes coef_achieved_targets.
type CoefStats struct {
	Median float64
	Max    float64
	Mean   float64
}

// CoefTargetStats computes the median, max and mean of the monthly target
// share over all rows.
func CoefTargetStats(df dataframe.DataFrame) (CoefStats, error) {
	coef, err := dataprocessing.FrameFloats(df, domain.ColIndCoefTargets)
	if err != nil {
		return CoefStats{}, err
	}
	return CoefStats{Median: stats.Median(coef), Max: stats.Max(coef), Mean: stats.Mean(coef)}, nil
}

// Encode renders Coef_achieved_targets_stat.csv.
func (c CoefStats) Encode() *dataprocessing.Table {
	t := dataprocessing.NewTable(colMetric, colValue)
	t.Append("Median", dataprocessing.FormatFloat(c.Median))
	t.Append("Max", dataprocessing.FormatFloat(c.Max))
	t.Append("Mean", dataprocessing.FormatFloat(c.Mean))
	return t
}
