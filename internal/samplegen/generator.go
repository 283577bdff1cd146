package samplegen

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/go-playground/validator/v10"

	"churncli/internal/dataprocessing"
	"churncli/internal/lms"
	"churncli/internal/shared"
	"churncli/internal/stats"
	"churncli/internal/store"
	"churncli/pkg/contracts/domain"
)

// Options sizes the generated school.
type Options struct {
	Seed     int64 `validate:"gte=0"`
	Teachers int   `validate:"gte=2,lte=200"`
	Groups   int   `validate:"gtefield=Teachers"`
	Students int   `validate:"gte=10"`
}

// DefaultOptions returns a school big enough for every model step.
func DefaultOptions() Options {
	return Options{Seed: 42, Teachers: 8, Groups: 24, Students: 240}
}

// Result lists what Run wrote.
type Result struct {
	Students      int
	Teachers      int
	Groups        int
	KPIRows       int
	IndicatorRows int
	Extract       *lms.ExtractResult
	Files         []string
}

var (
	subjects = []string{"Програмування", "Геймдизайн", "Робототехніка", "Веб-дизайн", "Графічний дизайн"}
	weekdays = []string{"ПН", "СР", "ПТ", "СБ", "НД"}
	reasons  = []string{
		"Переїзд",
		"Фінансові труднощі",
		"Не сподобався викладач",
		"Дитина втратила інтерес",
		"Незручний розклад",
		"Перейшли до іншої школи",
		"Хвороба",
	}
)

type teacher struct {
	name    string // canonical two-word name
	crmName string // as the CRM spells it
	subject string
	city    string
}

type group struct {
	id      int64
	name    string
	start   time.Time
	teacher *teacher
}

type student struct {
	name     string
	group    *group
	age      int
	reason   string
	attended int
}

// Generator writes a coherent synthetic data directory.
type Generator struct {
	env   *shared.Env
	opts  Options
	faker *gofakeit.Faker
	used  map[string]bool
}

// NewGenerator creates a generator seeded by opts.Seed.
func NewGenerator(env *shared.Env, opts Options) *Generator {
	return &Generator{
		env:   env,
		opts:  opts,
		faker: gofakeit.New(opts.Seed),
		used:  make(map[string]bool),
	}
}

// Run generates every input file of the pipeline. The attendance file is
// produced by the extract step against an in-memory LMS.
func (g *Generator) Run(ctx context.Context) (*Result, error) {
	if err := validator.New().Struct(g.opts); err != nil {
		return nil, fmt.Errorf("invalid sample options: %w", err)
	}
	years := make([]domain.Period, 0, len(g.env.Rules.AcademicYears))
	for _, y := range g.env.Rules.AcademicYears {
		p, err := y.Period()
		if err != nil {
			return nil, err
		}
		years = append(years, p)
	}
	if err := g.env.Paths.EnsureDirectories(); err != nil {
		return nil, err
	}

	teachers := g.teachers()
	groups := g.groups(teachers, years)
	students, fake := g.students(groups)

	res := &Result{Students: len(students), Teachers: len(teachers), Groups: len(groups)}
	paths := g.env.Paths
	save := func(path string, t *dataprocessing.Table) error {
		if err := g.env.Save(ctx, path, t); err != nil {
			return err
		}
		res.Files = append(res.Files, path)
		return nil
	}

	if err := save(paths.RawData, rawData(students)); err != nil {
		return nil, err
	}
	if err := save(paths.LostReasons, lostReasons(students)); err != nil {
		return nil, err
	}
	if err := save(paths.ExtendedRawData, extendedRawData(students)); err != nil {
		return nil, err
	}

	extracted, err := lms.NewExtractService(g.env, fake, 1).Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract synthetic attendance: %w", err)
	}
	res.Extract = extracted
	res.Files = append(res.Files, paths.AttendedClasses)

	if err := save(paths.CostsSalaries, g.costs(teachers)); err != nil {
		return nil, err
	}
	for i, y := range g.env.Rules.AcademicYears {
		if err := save(paths.GetGroupCountsPath(y.Name), g.groupCounts(teachers, groups, years[i])); err != nil {
			return nil, err
		}
	}

	rates := g.rates(teachers, years)
	if err := store.WriteTeacherRates(ctx, paths.KPIDatabase, rates); err != nil {
		return nil, err
	}
	res.KPIRows = len(rates)
	res.Files = append(res.Files, paths.KPIDatabase)

	months := reportMonths(years[len(years)-1])
	indicators := g.indicators(teachers, months)
	res.IndicatorRows = indicators.Len()
	if err := save(paths.TeacherIndicators, indicators); err != nil {
		return nil, err
	}
	if err := save(paths.MonthlyFinancialReport, g.financialReport(months)); err != nil {
		return nil, err
	}

	g.env.Logger.InfoContext(ctx, "sample data generated",
		slog.Int64("seed", g.opts.Seed),
		slog.Int("students", res.Students),
		slog.Int("teachers", res.Teachers),
		slog.Int("groups", res.Groups),
		slog.Int("kpi_rows", res.KPIRows),
		slog.Int("files", len(res.Files)))
	return res, nil
}

// unique draws from gen until it yields a value not seen before.
func (g *Generator) unique(gen func() string) string {
	for i := 0; ; i++ {
		v := gen()
		if i > 50 {
			v = fmt.Sprintf("%s %d", v, i)
		}
		if !g.used[v] {
			g.used[v] = true
			return v
		}
	}
}

func (g *Generator) teachers() []*teacher {
	cityCount := max(2, g.opts.Teachers/3)
	cities := make([]string, 0, cityCount)
	for len(cities) < cityCount {
		cities = append(cities, g.unique(g.faker.City))
	}

	out := make([]*teacher, g.opts.Teachers)
	for i := range out {
		name := g.unique(func() string { return g.faker.LastName() + " " + g.faker.FirstName() })
		crm := name
		if g.faker.Number(1, 5) == 1 {
			crm = name + " Онлайн"
		}
		out[i] = &teacher{
			name:    name,
			crmName: crm,
			subject: g.faker.RandomString(subjects),
			city:    cities[i%len(cities)],
		}
	}
	return out
}

func (g *Generator) groups(teachers []*teacher, years []domain.Period) []*group {
	out := make([]*group, g.opts.Groups)
	for i := range out {
		t := teachers[i%len(teachers)]
		year := years[g.faker.Number(0, len(years)-1)]
		id := int64(200000 + i*37 + g.faker.Number(0, 30))
		out[i] = &group{
			id:      id,
			start:   g.faker.DateRange(year.Start, year.End.AddDate(0, -3, 0)),
			teacher: t,
			name: fmt.Sprintf("%d_%s_%s_%02d:00 %s", id, t.city,
				g.faker.RandomString(weekdays), g.faker.Number(9, 18), t.subject),
		}
	}
	return out
}

// students also enrolls each student in the fake LMS. A few are left out
// of the roster and a few study individually without a group id.
func (g *Generator) students(groups []*group) ([]student, *FakeLMS) {
	fake := NewFakeLMS()
	individual := &group{name: "Індивідуальні заняття", teacher: groups[0].teacher, start: groups[0].start}
	out := make([]student, g.opts.Students)
	for i := range out {
		s := student{
			name:     g.unique(func() string { return g.faker.FirstName() + " " + g.faker.LastName() }),
			group:    groups[g.faker.Number(0, len(groups)-1)],
			age:      g.faker.Number(7, 14),
			reason:   g.faker.RandomString(reasons),
			attended: g.faker.Number(0, int(g.env.Rules.AllLessons)),
		}
		switch n := g.faker.Number(1, 100); {
		case n <= 2:
			s.group = individual
		case n <= 5:
			s.age = g.faker.Number(15, 17)
		}
		out[i] = s

		if s.group.id == 0 || g.faker.Number(1, 25) == 1 {
			continue
		}
		fake.Enroll(s.group.id, int64(5000+i), s.name+" "+g.faker.LastName(), s.attended)
	}
	return out, fake
}

func rawData(students []student) *dataprocessing.Table {
	t := dataprocessing.NewTable(domain.ColStudentName, domain.ColGroupID, domain.ColDate)
	for _, s := range students {
		t.Append(s.name, s.group.name, dataprocessing.FormatDate(s.group.start))
	}
	return t
}

func lostReasons(students []student) *dataprocessing.Table {
	t := dataprocessing.NewTable(domain.ColStudentName, domain.ColLostReason, domain.ColChildAge)
	for _, s := range students {
		t.Append(s.name, s.reason, strconv.Itoa(s.age))
	}
	return t
}

func extendedRawData(students []student) *dataprocessing.Table {
	t := dataprocessing.NewTable(domain.ColStudentName, domain.ColGroupID, domain.ColTeacher, domain.ColSubject, domain.ColCity)
	for _, s := range students {
		if s.group.id == 0 {
			continue
		}
		tc := s.group.teacher
		t.Append(s.name, s.group.name, tc.crmName, tc.subject, tc.city)
	}
	return t
}

func (g *Generator) costs(teachers []*teacher) *dataprocessing.Table {
	header := []string{"city"}
	for _, p := range g.env.Rules.CostPeriods {
		header = append(header, p.CostColumn, p.SalaryColumn)
	}
	t := dataprocessing.NewTable(header...)
	seen := make(map[string]bool)
	for _, tc := range teachers {
		if seen[tc.city] {
			continue
		}
		seen[tc.city] = true
		cells := []string{tc.city}
		base := float64(g.faker.Number(18, 24) * 100)
		for i := range g.env.Rules.CostPeriods {
			cost := base * (1 + 0.1*float64(i))
			cells = append(cells, dataprocessing.FormatNumber(cost), dataprocessing.FormatNumber(math.Round(cost*0.2)))
		}
		t.Append(cells...)
	}
	return t
}

func (g *Generator) groupCounts(teachers []*teacher, groups []*group, year domain.Period) *dataprocessing.Table {
	t := dataprocessing.NewTable(dataprocessing.ColNameNormalized, dataprocessing.ColNumberOfStudents, dataprocessing.ColNumberOfGroup)
	for _, tc := range teachers {
		n := 0
		for _, gr := range groups {
			if gr.teacher == tc && year.Contains(gr.start) {
				n++
			}
		}
		n = max(n, 1)
		t.Append(tc.name, strconv.Itoa(n*g.faker.Number(8, 12)), strconv.Itoa(n))
	}
	return t
}

// rates emits one KPI row per teacher and month of every academic year;
// about one value in thirty is missing.
func (g *Generator) rates(teachers []*teacher, years []domain.Period) []domain.TeacherRate {
	var out []domain.TeacherRate
	for _, tc := range teachers {
		for _, y := range years {
			for _, m := range monthsOf(y) {
				metrics := make(map[string]float64, len(domain.KPIMetrics))
				for _, k := range domain.KPIMetrics {
					metrics[k] = stats.Round(g.faker.Float64Range(55, 100), 1)
					if g.faker.Number(1, 30) == 1 {
						metrics[k] = math.NaN()
					}
				}
				out = append(out, domain.TeacherRate{
					TeacherName: tc.name,
					Date:        dataprocessing.FormatDate(m),
					Metrics:     metrics,
				})
			}
		}
	}
	return out
}

// indicators pays the configured bonus rate for every KPI target met; a
// teacher meeting all of them gets at least MinAllTargetsBonus.
func (g *Generator) indicators(teachers []*teacher, months []time.Time) *dataprocessing.Table {
	rules := g.env.Rules
	t := dataprocessing.NewTable(domain.IndicatorColumns...)
	for _, m := range months {
		for _, tc := range teachers {
			kpis := make(map[string]float64, len(domain.KPIMetrics))
			for _, k := range domain.KPIMetrics {
				kpis[k] = stats.Round(g.faker.Float64Range(60, 100), 0)
			}
			bd := float64(g.faker.Number(16, 24) * 500)
			rate, met := 0.0, 0
			for _, target := range rules.BonusTargets {
				if kpis[target.Metric] >= target.Threshold {
					rate += target.Rate
					met++
				}
			}
			bonus := math.Round(bd * rate)
			if met == len(rules.BonusTargets) {
				bonus = math.Max(bonus, rules.MinAllTargetsBonus)
			}
			achieved := "0"
			if bonus > 0 {
				achieved = "1"
			}
			cells := []string{
				tc.name,
				dataprocessing.FormatMonth(m),
				dataprocessing.FormatNumber(bd),
				dataprocessing.FormatNumber(bonus),
				dataprocessing.FormatNumber(bd + bonus),
				achieved,
				strconv.Itoa(g.faker.Number(8, 60)),
				strconv.Itoa(g.faker.Number(10, 100)),
				dataprocessing.FormatFloat(stats.Round(g.faker.Float64Range(0, 1.5), 2)),
			}
			for _, k := range domain.KPIMetrics {
				cells = append(cells, dataprocessing.FormatNumber(kpis[k]))
			}
			t.Append(cells...)
		}
	}
	return t
}

func (g *Generator) financialReport(months []time.Time) *dataprocessing.Table {
	t := dataprocessing.NewTable(domain.FinancialReportColumns...)
	for _, m := range months {
		cost := float64(g.faker.Number(20, 26) * 100)
		planned := g.faker.Number(300, 500)
		lost := g.faker.Number(10, 60)
		expenses := float64(planned) * cost * g.faker.Float64Range(0.45, 0.65)
		profit := cost*float64(planned-lost) - expenses
		t.Append(
			dataprocessing.FormatMonth(m),
			dataprocessing.FormatNumber(cost),
			strconv.Itoa(planned),
			strconv.Itoa(lost),
			dataprocessing.FormatNumber(math.Round(expenses)),
			dataprocessing.FormatNumber(math.Round(profit)),
		)
	}
	return t
}

// monthsOf returns the first day of every month that starts inside p.
func monthsOf(p domain.Period) []time.Time {
	var out []time.Time
	m := time.Date(p.Start.Year(), p.Start.Month(), 1, 0, 0, 0, 0, time.UTC)
	if m.Before(p.Start) {
		m = m.AddDate(0, 1, 0)
	}
	for ; !m.After(p.End); m = m.AddDate(0, 1, 0) {
		out = append(out, m)
	}
	return out
}

// reportMonths are the teaching months of a year, September through May.
func reportMonths(p domain.Period) []time.Time {
	var out []time.Time
	for _, m := range monthsOf(p) {
		if mo := m.Month(); mo >= time.September || mo <= time.May {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return monthsOf(p)
	}
	return out
}

var _ lms.API = (*FakeLMS)(nil)
