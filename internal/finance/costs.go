package finance

import (
	"math"
	"time"

	"churncli/internal/config"
	"churncli/internal/dataprocessing"
	"churncli/pkg/contracts/domain"
)

const colCity = "city"

// CostPeriod binds a date range to the cost and salary columns that apply
// to groups starting in it.
type CostPeriod struct {
	domain.Period
	CostColumn   string
	SalaryColumn string
}

// CostPeriodsFrom converts configured periods.
func CostPeriodsFrom(rules *config.Pipeline) ([]CostPeriod, error) {
	out := make([]CostPeriod, 0, len(rules.CostPeriods))
	for _, c := range rules.CostPeriods {
		p, err := c.Period()
		if err != nil {
			return nil, err
		}
		out = append(out, CostPeriod{Period: p, CostColumn: c.CostColumn, SalaryColumn: c.SalaryColumn})
	}
	return out, nil
}

// CostTable answers monthly course cost and teacher salary by city and
// group start date.
type CostTable struct {
	periods []CostPeriod
	byCity  map[string][]string
	table   *dataprocessing.Table
}

// NewCostTable indexes costs by city; the first row of a city wins.
func NewCostTable(costs *dataprocessing.Table, periods []CostPeriod) (*CostTable, error) {
	required := []string{colCity}
	for _, p := range periods {
		required = append(required, p.CostColumn, p.SalaryColumn)
	}
	if err := costs.Require(required...); err != nil {
		return nil, err
	}

	ct := &CostTable{periods: periods, byCity: make(map[string][]string), table: costs}
	for i, row := range costs.Rows {
		city := costs.Get(i, colCity)
		if _, ok := ct.byCity[city]; !ok {
			ct.byCity[city] = row
		}
	}
	return ct, nil
}

// Lookup returns the course cost per month and the teacher salary for a
// group in city starting on start. Both are NaN when the city is unknown,
// the date is missing or no period contains it.
func (c *CostTable) Lookup(city string, start time.Time) (cost, salary float64) {
	nan := math.NaN()
	row, ok := c.byCity[city]
	if !ok || start.IsZero() {
		return nan, nan
	}
	for _, p := range c.periods {
		if p.Contains(start) {
			return c.cell(row, p.CostColumn), c.cell(row, p.SalaryColumn)
		}
	}
	return nan, nan
}

func (c *CostTable) cell(row []string, column string) float64 {
	for j, h := range c.table.Header {
		if h == column {
			return dataprocessing.ParseFloat(row[j])
		}
	}
	return math.NaN()
}

// LossFormulas computes what a lost student costs.
type LossFormulas struct {
	AllLessons float64
	AllMonths  float64
}

// TeacherLost is the salary the teacher no longer earns for the lessons
// the student did not attend.
func (f LossFormulas) TeacherLost(salary, attendance float64) float64 {
	return salary * (f.AllLessons - attendance)
}

// SchoolLost is the tuition the school no longer collects, spreading the
// monthly cost of the course over its lessons.
func (f LossFormulas) SchoolLost(costPerMonth, attendance float64) float64 {
	return costPerMonth * f.AllMonths / f.AllLessons * (f.AllLessons - attendance)
}
