package domain

// TeacherLossStats is one teacher's churn rate for an academic year.
type TeacherLossStats struct {
	NameNormalized           string  `json:"name_normalized"`
	Count                    int     `json:"count"`
	NumberOfStudents         float64 `json:"number_of_students"`
	NumberOfGroup            float64 `json:"number_of_group"`
	GlobalPercentOfLoss      float64 `json:"global_percent_of_loss"`
	PercentOfLossForOneGroup float64 `json:"percent_of_loss_for_one_group"`
}

// GroupCounts is one row of groups_and_losts_<year>.csv.
type GroupCounts struct {
	NameNormalized   string  `json:"name_normalized" validate:"required"`
	NumberOfStudents float64 `json:"number_of_students"`
	NumberOfGroup    float64 `json:"number_of_group"`
}

// QuartileLists holds teacher names split by loss-rate tier for one year.
type QuartileLists struct {
	Best          []string `json:"best"`
	Interquartile []string `json:"interquartile"`
	Bad           []string `json:"bad"`
	Q1            float64  `json:"q1"`
	Q3            float64  `json:"q3"`
}

// OutlierBounds are the Tukey fences of one sample.
type OutlierBounds struct {
	Q1    float64 `json:"q1"`
	Q3    float64 `json:"q3"`
	IQR   float64 `json:"iqr"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// TeacherCategoryCounts counts how often a teacher landed in each tier
// across the analysed years.
type TeacherCategoryCounts struct {
	Name       string `json:"name"`
	Best       int    `json:"best"`
	Interquart int    `json:"interquart"`
	Bad        int    `json:"bad"`
	Worst      int    `json:"worst"`
}

// ReasonCount is a lost reason and how many students gave it.
type ReasonCount struct {
	Reason string `json:"lost_reasons"`
	Count  int    `json:"count"`
}

// TeacherGroup is a stability cohort of teachers.
type TeacherGroup string

const (
	TeacherGroupStable   TeacherGroup = "A"
	TeacherGroupUnstable TeacherGroup = "B"
	TeacherGroupBestOnce TeacherGroup = "C"
	TeacherGroupBadOnce  TeacherGroup = "D"
)

// AllTeacherGroups in output order.
var AllTeacherGroups = []TeacherGroup{
	TeacherGroupStable,
	TeacherGroupUnstable,
	TeacherGroupBestOnce,
	TeacherGroupBadOnce,
}

// TeacherRate is one monthly KPI row for a teacher.
type TeacherRate struct {
	TeacherName string             `json:"teacher_name" validate:"required"`
	Date        string             `json:"Date"`
	Metrics     map[string]float64 `json:"metrics"`
}

// TeacherImportance is a KPI row with loss counts and per-metric importance.
type TeacherImportance struct {
	TeacherRate
	Month                string             `json:"Month"`
	LossNumber           float64            `json:"loss_number"`
	MonthsWorked         int                `json:"months_worked"`
	TotalLossNumber      float64            `json:"total_loss_number"`
	LossNumberNormalized float64            `json:"loss_number_normalized"`
	P                    float64            `json:"p"`
	Quality              map[string]float64 `json:"quality"`
	Importance           map[string]float64 `json:"importance"`
}
