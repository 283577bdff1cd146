package store

import (
	"context"
	"log/slog"

	"churncli/internal/exporter"
	"churncli/internal/shared"
	"churncli/pkg/contracts/domain"
)

// BuildResult summarizes a database rebuild.
type BuildResult struct {
	Students int
	Teachers int
	Groups   int
	Merged   int
	Dropped  int
	Facts    FactStats
}

// BuildService rebuilds the lost clients database from the extracts.
type BuildService struct {
	env *shared.Env
}

// NewBuildService creates the build-db step.
func NewBuildService(env *shared.Env) *BuildService {
	return &BuildService{env: env}
}

// Run executes the step end to end.
func (b *BuildService) Run(ctx context.Context) (*BuildResult, error) {
	paths := b.env.Paths
	rules := b.env.Rules

	attended, err := b.env.Load(ctx, paths.AttendedClasses)
	if err != nil {
		return nil, err
	}
	extended, err := b.env.Load(ctx, paths.ExtendedRawData)
	if err != nil {
		return nil, err
	}

	s, err := Open(ctx, paths.LossDatabase, b.env.Logger)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if err := s.Rebuild(ctx); err != nil {
		return nil, err
	}

	res := &BuildResult{}
	if res.Students, err = s.InsertDimension(ctx, "students", attended, StudentColumns); err != nil {
		return nil, err
	}
	if res.Teachers, err = s.InsertDimension(ctx, "teachers", extended, TeacherColumns); err != nil {
		return nil, err
	}
	if res.Groups, err = s.InsertDimension(ctx, "groups", attended, GroupColumns); err != nil {
		return nil, err
	}

	merged, dropped, err := UniteTeachers(attended, extended, rules.MissingTeachers)
	if err != nil {
		return nil, err
	}
	res.Merged, res.Dropped = merged.Len(), dropped
	b.env.Skipped(ctx, "group_without_teacher", dropped)
	if dropped > 0 {
		b.env.Logger.WarnContext(ctx, "attendance rows without a teacher dropped", slog.Int("count", dropped))
	}
	if err := b.env.Save(ctx, paths.AttendedWithTeachers, merged); err != nil {
		return nil, err
	}

	res.Facts, err = s.InsertFacts(ctx, merged, Fixes{
		Students: rules.StudentFixes,
		Teachers: rules.TeacherFixes,
		Groups:   rules.GroupFixes,
	})
	if err != nil {
		return nil, err
	}
	b.env.Skipped(ctx, "student_not_found", res.Facts.MissingStudents)
	b.env.Skipped(ctx, "teacher_not_found", res.Facts.MissingTeachers)
	b.env.Skipped(ctx, "group_not_found", res.Facts.MissingGroups)

	return res, nil
}

// ExportService writes the joined loss report.
type ExportService struct {
	env *shared.Env
}

// NewExportService creates the export-report step.
func NewExportService(env *shared.Env) *ExportService {
	return &ExportService{env: env}
}

// Run streams the report to Final_Gone_Clients_Report.csv and returns the
// number of rows written.
func (e *ExportService) Run(ctx context.Context) (int, error) {
	paths := e.env.Paths

	s, err := Open(ctx, paths.LossDatabase, e.env.Logger)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	w, err := e.env.CSV.CreateStreamWriter(paths.FinalReport, domain.ReportColumns)
	if err != nil {
		return 0, err
	}
	n, err := s.ExportReport(ctx, w)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}

	e.env.Metrics.RecordRowsWritten(ctx, "Final_Gone_Clients_Report.csv", n)
	e.env.Logger.InfoContext(ctx, "joined report exported",
		slog.String("file", paths.FinalReport),
		slog.Int("rows", n))
	return n, nil
}

var _ RowWriter = (*exporter.StreamWriter)(nil)
