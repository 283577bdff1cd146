package domain

// Column headers used by the raw CRM extracts. They are part of the file
// format and must stay byte-identical to what the CRM exports.
const (
	ColStudentName    = "ПІБ студента"
	ColStudentID      = "ID студента"
	ColGroupID        = "ID групи"
	ColGroupName      = "Назва групи"
	ColAttendedLesson = "Кількість відвіданих занять"
	ColLostReason     = "Причина відвала"
	ColChildAge       = "Вік дитини"
	ColTeacher        = "Викладач"
	ColSubject        = "Предмет"
	ColCity           = "Місто"
	ColDate           = "Дата"
)

// Column headers of the joined loss report and its enriched variants.
const (
	ColReportStudentName      = "student_name"
	ColReportStudentID        = "student_id"
	ColReportAge              = "age"
	ColReportTeacherName      = "teacher_name"
	ColReportSubject          = "subject"
	ColReportCity             = "city"
	ColReportGroupName        = "group_name"
	ColReportGroupID          = "group_id"
	ColReportStartDate        = "start_date"
	ColReportAttendance       = "attendance_number"
	ColReportLostReasons      = "lost_reasons"
	ColReportCourseCost       = "course_cost_in_month"
	ColReportTeacherSalaries  = "teacher_salaries"
	ColReportTeacherLost      = "teacher_lost"
	ColReportSchoolLost       = "school_lost"
	ColReportStartDateInvalid = "start_date_invalid"
	ColReportCount            = "count"
	ColReportTeacherNorm      = "teacher_normalized"
	ColReportNameNorm         = "name_normalized"
	ColReportAgeGroup         = "age_group"
	ColReportOutOfRangeAge    = "out_of_range_age"
)

// ReportColumns is the column order of the joined loss report.
var ReportColumns = []string{
	ColReportStudentName,
	ColReportStudentID,
	ColReportAge,
	ColReportTeacherName,
	ColReportSubject,
	ColReportCity,
	ColReportGroupName,
	ColReportGroupID,
	ColReportStartDate,
	ColReportAttendance,
	ColReportLostReasons,
}

// EnrichedReportColumns extends ReportColumns with the cost features.
var EnrichedReportColumns = append(append([]string{}, ReportColumns...),
	ColReportCourseCost,
	ColReportTeacherSalaries,
	ColReportTeacherLost,
	ColReportSchoolLost,
)

// AnalyzedReportColumns extends EnrichedReportColumns with the normalization
// columns added during analysis.
var AnalyzedReportColumns = append(append([]string{}, EnrichedReportColumns...),
	ColReportStartDateInvalid,
	ColReportCount,
	ColReportTeacherNorm,
	ColReportNameNorm,
	ColReportAgeGroup,
	ColReportOutOfRangeAge,
)

// KPI metric columns, as stored in the teacher statistics database.
const (
	MetricFeedbackForParents     = "Feedback_for_parents"
	MetricFeedbackToStudents     = "Feedback_to_students"
	MetricControlOfHomework      = "Control_of_homework"
	MetricControlOfPotentialLoss = "Control_of_potential_loss"
	MetricAverageSuccess         = "Average_success"
)

// KPIMetrics lists the monthly KPI columns in their canonical order.
var KPIMetrics = []string{
	MetricFeedbackForParents,
	MetricFeedbackToStudents,
	MetricControlOfHomework,
	MetricControlOfPotentialLoss,
	MetricAverageSuccess,
}

// KPIShortNames maps each KPI metric to the suffix used in importance columns.
var KPIShortNames = map[string]string{
	MetricFeedbackForParents:     "parents",
	MetricFeedbackToStudents:     "students",
	MetricControlOfHomework:      "homework",
	MetricControlOfPotentialLoss: "loss",
	MetricAverageSuccess:         "success",
}

// Columns of Teacher_indicators.csv and the modeling outputs derived from it.
const (
	ColIndTeacher          = "Teacher"
	ColIndMonth            = "Month"
	ColIndBaseDeposit      = "BD"
	ColIndBonus            = "Bonus"
	ColIndTotalComp        = "Total_compensation"
	ColIndTargetsAchieved  = "targets_achieved"
	ColIndLessonCount      = "lesson_count"
	ColIndRate             = "rate"
	ColIndLossNormalized   = "loss_number_normalized"
	ColIndChance           = "chance"
	ColIndMeanChance       = "mean_chance"
	ColIndCoefTargets      = "coef_achieved_targets"
	ColIndBonusV1          = "Bonus_v1"
	ColIndTotalIncomeV1    = "Total_income_v1"
	ColIndBonusV2          = "Bonus_v2"
	ColIndTotalIncomeV2    = "Total_income_v2"
	ColIndClassifierTarget = "target"
	ColIndBonusGrowthCoeff = "BGC"
)

// IndicatorColumns are the columns Teacher_indicators.csv must carry.
var IndicatorColumns = append([]string{
	ColIndTeacher,
	ColIndMonth,
	ColIndBaseDeposit,
	ColIndBonus,
	ColIndTotalComp,
	ColIndTargetsAchieved,
	ColIndLessonCount,
	ColIndRate,
	ColIndLossNormalized,
}, KPIMetrics...)

// Columns of the monthly financial report and its Bonus_v1 projection.
const (
	ColFinMonth          = "Month"
	ColFinCourseCost     = "Course_cost"
	ColFinPlanned        = "Planned_clients"
	ColFinLost           = "Lost_clients"
	ColFinExpenses       = "Actual_expenses"
	ColFinProfit         = "Actual_profit"
	ColFinExpensesBonus  = "Expenses_Bonus_v1"
	ColFinLostBonus      = "Lost_clients_Bonus_v1"
	ColFinProfitBonus    = "Profit_Bonus_v1"
	ColFinGrowExpenses   = "Grow_expenses"
	ColFinGrowProfit     = "Grow_profit"
	ColFinBonusGrowthAvg = "BGC_mean"
	ColFinBonusGrowthStd = "BGC_std"
)

// FinancialReportColumns are the columns the monthly financial report must
// carry.
var FinancialReportColumns = []string{
	ColFinMonth,
	ColFinCourseCost,
	ColFinPlanned,
	ColFinLost,
	ColFinExpenses,
	ColFinProfit,
}
