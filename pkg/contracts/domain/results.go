package domain

// MannWhitneyResult is a two-sided rank-sum test of one metric.
type MannWhitneyResult struct {
	Metric      string  `json:"Metric"`
	UStat       float64 `json:"U_stat"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
}

// PeriodLossSummary is the financial loss breakdown of one period.
type PeriodLossSummary struct {
	Period           string  `json:"Period"`
	TeacherMeanLoss  float64 `json:"Teacher_Mean_Loss"`
	TeacherStdLoss   float64 `json:"Teacher_Std_Loss"`
	CompanyMeanLoss  float64 `json:"Company_Mean_Loss"`
	CompanyStdLoss   float64 `json:"Company_Std_Loss"`
	MaxGroups        int     `json:"Max_Groups"`
	AvgSalary        float64 `json:"Avg_Salary"`
	MaxTeacherProfit float64 `json:"Max_Teacher_Profit"`
	MaxLossTeacher   float64 `json:"Max_Loss_Teacher"`
	TeacherLossPct   float64 `json:"Teacher_Loss_%"`
	GroupNumber      int     `json:"Group_Number"`
	MeanLessonCost   float64 `json:"Mean_Lesson_Cost"`
	ProfitSchoolYear float64 `json:"Profit_School_Year"`
	LossSchoolYear   float64 `json:"Loss_School_Year"`
	CompanyLossPct   float64 `json:"Company_Loss_%"`
}

// EffectEstimate is the logistic-regression effect of a binary treatment.
type EffectEstimate struct {
	Name           string  `json:"name"`
	ATE            float64 `json:"ATE"`
	OddsRatio      float64 `json:"OR"`
	Intercept      float64 `json:"intercept"`
	P0             float64 `json:"p0"`
	P1             float64 `json:"p1"`
	AbsoluteChange float64 `json:"absolute_change_pct"`
	PValue         float64 `json:"p_value"`
	Observations   int     `json:"observations"`
	Conclusion     string  `json:"conclusion"`
}

// FeatureImportance is a named model attribution.
type FeatureImportance struct {
	Feature string  `json:"Feature"`
	Value   float64 `json:"Importance"`
}

// RegressionMetrics summarizes a regressor on held-out data.
type RegressionMetrics struct {
	Target string  `json:"target"`
	R2     float64 `json:"R2"`
	MAE    float64 `json:"MAE"`
	RMSE   float64 `json:"RMSE"`
}

// ClassScore is one row of a classification report.
type ClassScore struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1-score"`
	Support   int     `json:"support"`
}

// ClassificationReport summarizes a binary classifier on held-out data.
type ClassificationReport struct {
	Accuracy float64      `json:"accuracy"`
	ROCAUC   float64      `json:"roc_auc"`
	Classes  []ClassScore `json:"classes"`
	Macro    ClassScore   `json:"macro_avg"`
	Weighted ClassScore   `json:"weighted_avg"`
}
