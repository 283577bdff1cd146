package modeling

import (
	"fmt"
	"math"

	"github.com/go-gota/gota/dataframe"

	"churncli/internal/dataprocessing"
	"churncli/internal/stats"
	"churncli/pkg/contracts/domain"
)

const treatmentName = "treatment"

// Experiment defines a binary treatment, a binary outcome and one control
// drawn from the Bonus_v1_v2 dataset.
type Experiment struct {
	Name    string
	Control string
	// Labels of p0 and p1 in the output.
	Untreated, Treated string
	// ChangeLabel names the absolute change row.
	ChangeLabel string
	// Conclusion is formatted with the odds ratio and the absolute change.
	Conclusion string
	Assign     func(df dataframe.DataFrame) (treatment, outcome []float64, err error)
}

// BonusV1Effect asks whether paying Bonus_v1 raises the chance of an above
// average monthly target share, controlling for Bonus_v2.
var BonusV1Effect = Experiment{
	Name:        "bonus_v1",
	Control:     domain.ColIndBonusV2,
	Untreated:   "p0 (without Bonus_v1)",
	Treated:     "p1 (with Bonus_v1)",
	ChangeLabel: "Absolute Increase (%)",
	Conclusion: "Bonus_v1 changes the odds of teachers reaching their learning and business KPIs " +
		"by a factor of %.2f (absolute change ≈ %.1f%%).",
	Assign: func(df dataframe.DataFrame) ([]float64, []float64, error) {
		bonus, err := dataprocessing.FrameFloats(df, domain.ColIndBonusV1)
		if err != nil {
			return nil, nil, err
		}
		coef, err := dataprocessing.FrameFloats(df, domain.ColIndCoefTargets)
		if err != nil {
			return nil, nil, err
		}
		mean := stats.Mean(coef)
		return indicator(bonus, func(v float64) bool { return v > 0 }),
			indicator(coef, func(v float64) bool { return v > mean }), nil
	},
}

// TargetsUpliftEffect asks whether reaching targets lowers churn below
// the median, controlling for mean_chance.
var TargetsUpliftEffect = Experiment{
	Name:        "targets_uplift",
	Control:     domain.ColIndMeanChance,
	Untreated:   "p0 (targets not achieved)",
	Treated:     "p1 (targets achieved)",
	ChangeLabel: "Absolute Decrease in Loss (%)",
	Conclusion: "Raising the KPI targets changes the odds of below-median churn " +
		"by a factor of %.2f (absolute change ≈ %.1f%%).",
	Assign: func(df dataframe.DataFrame) ([]float64, []float64, error) {
		targets, err := dataprocessing.FrameFloats(df, domain.ColIndTargetsAchieved)
		if err != nil {
			return nil, nil, err
		}
		loss, err := dataprocessing.FrameFloats(df, domain.ColIndLossNormalized)
		if err != nil {
			return nil, nil, err
		}
		median := stats.Median(loss)
		return indicator(targets, func(v float64) bool { return v > 0 }),
			indicator(loss, func(v float64) bool { return v < median }), nil
	},
}

// indicator maps xs to 1 where cond holds. Missing values stay missing.
func indicator(xs []float64, cond func(float64) bool) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		switch {
		case math.IsNaN(x):
			out[i] = math.NaN()
		case cond(x):
			out[i] = 1
		}
	}
	return out
}

// Estimate fits outcome ~ const + treatment + control and turns the
// treatment coefficient into probabilities for both arms.
func (e Experiment) Estimate(df dataframe.DataFrame) (domain.EffectEstimate, error) {
	treatment, outcome, err := e.Assign(df)
	if err != nil {
		return domain.EffectEstimate{}, err
	}
	control, err := dataprocessing.FrameFloats(df, e.Control)
	if err != nil {
		return domain.EffectEstimate{}, err
	}
	fit, err := stats.FitLogit(outcome, []string{treatmentName, e.Control}, [][]float64{treatment, control})
	if err != nil {
		return domain.EffectEstimate{}, fmt.Errorf("%s: %w", e.Name, err)
	}

	b0 := fit.Params[0]
	b1, _ := fit.Param(treatmentName)
	pValue, _ := fit.PValue(treatmentName)
	est := domain.EffectEstimate{
		Name:         e.Name,
		ATE:          b1,
		OddsRatio:    math.Exp(b1),
		Intercept:    b0,
		P0:           stats.Sigmoid(b0),
		P1:           stats.Sigmoid(b0 + b1),
		PValue:       pValue,
		Observations: fit.Observations,
	}
	est.AbsoluteChange = (est.P1 - est.P0) * 100
	est.Conclusion = fmt.Sprintf(e.Conclusion, est.OddsRatio, est.AbsoluteChange)
	return est, nil
}

// Encode renders the Metric/Value table of an estimate.
func (e Experiment) Encode(est domain.EffectEstimate) *dataprocessing.Table {
	t := dataprocessing.NewTable(colMetric, colValue)
	t.Append("ATE (logit)", dataprocessing.FormatFloat(est.ATE))
	t.Append("Odds Ratio", dataprocessing.FormatFloat(est.OddsRatio))
	t.Append(e.Untreated, dataprocessing.FormatFloat(est.P0))
	t.Append(e.Treated, dataprocessing.FormatFloat(est.P1))
	t.Append(e.ChangeLabel, dataprocessing.FormatFloat(est.AbsoluteChange))
	t.Append("p-value (treatment)", dataprocessing.FormatFloat(est.PValue))
	t.Append("Observations", dataprocessing.FormatInt(est.Observations))
	t.Append("Conclusion", est.Conclusion)
	return t
}
