package lms

import (
	"context"
	stderrors "errors"
	"log/slog"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"churncli/internal/dataprocessing"
	apperrors "churncli/internal/errors"
	"churncli/internal/shared"
	"churncli/pkg/contracts/domain"
)

// API is the part of the LMS the extraction uses.
type API interface {
	Roster(ctx context.Context, groupID int64) ([]RosterEntry, error)
	Attendance(ctx context.Context, groupID, studentID int64) (int, error)
}

var leadingDigits = regexp.MustCompile(`^(\d+)`)

// GroupIDFromName extracts the numeric id that prefixes a group name.
func GroupIDFromName(name string) (int64, bool) {
	m := leadingDigits.FindString(name)
	if m == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(m, 10, 64)
	return id, err == nil
}

// ExtractResult summarizes an extraction run.
type ExtractResult struct {
	Rows           int
	WithoutGroup   int
	Matched        int
	Unmatched      int
	FailedRequests int
	Written        int
}

// ExtractService builds 1_Attended_classes.csv from the CRM extracts and
// the LMS.
type ExtractService struct {
	env     *shared.Env
	api     API
	workers int

	rosters singleflight.Group
	mu      sync.Mutex
	cache   map[int64][]RosterEntry
}

// NewExtractService creates the extract step. workers bounds concurrent
// rows; values below 1 run sequentially.
func NewExtractService(env *shared.Env, api API, workers int) *ExtractService {
	if workers < 1 {
		workers = 1
	}
	return &ExtractService{env: env, api: api, workers: workers, cache: make(map[int64][]RosterEntry)}
}

// Run executes the step.
func (s *ExtractService) Run(ctx context.Context) (*ExtractResult, error) {
	paths := s.env.Paths

	raw, err := s.env.Load(ctx, paths.RawData)
	if err != nil {
		return nil, err
	}
	if err := raw.Require(domain.ColStudentName, domain.ColGroupID); err != nil {
		return nil, err
	}
	reasons, err := s.env.Load(ctx, paths.LostReasons)
	if err != nil {
		return nil, err
	}
	if err := reasons.Require(domain.ColStudentName, domain.ColLostReason, domain.ColChildAge); err != nil {
		return nil, err
	}

	rows := PrepareRows(raw)
	res := &ExtractResult{Rows: len(rows)}

	var failed, transport, requests atomic.Int64
	track := func(err error) {
		requests.Add(1)
		if err == nil {
			return
		}
		failed.Add(1)
		var status *StatusError
		if !stderrors.As(err, &status) && ctx.Err() == nil {
			transport.Add(1)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range rows {
		row := &rows[i]
		if row.GroupID == nil {
			res.WithoutGroup++
			s.env.Logger.WarnContext(ctx, "row skipped, no group id",
				slog.Int("row", i),
				slog.String("group", row.GroupName))
			continue
		}
		g.Go(func() error {
			s.fill(gctx, row, track)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, row := range rows {
		if row.GroupID == nil {
			continue
		}
		if row.StudentID != 0 {
			res.Matched++
		} else {
			res.Unmatched++
		}
	}
	res.FailedRequests = int(failed.Load())
	s.env.Skipped(ctx, "lms_request_failed", res.FailedRequests)
	s.env.Skipped(ctx, "student_not_matched", res.Unmatched)

	if n := requests.Load(); n > 0 && transport.Load() == n {
		return nil, apperrors.NewNetworkError("lms unreachable", nil).WithContext("requests", n)
	}

	out := AttendanceTable(raw.Header, rows, reasons)
	if err := s.env.Save(ctx, paths.AttendedClasses, out); err != nil {
		return nil, err
	}
	res.Written = out.Len()

	s.env.Logger.InfoContext(ctx, "attendance extracted",
		slog.Int("rows", res.Rows),
		slog.Int("matched", res.Matched),
		slog.Int("unmatched", res.Unmatched),
		slog.Int("failed_requests", res.FailedRequests))
	return res, nil
}

// fill resolves the student id and attendance of one row. Failures leave
// the defaults in place.
func (s *ExtractService) fill(ctx context.Context, row *domain.AttendanceRow, track func(error)) {
	gid := *row.GroupID
	roster, err := s.roster(ctx, gid, track)
	if err != nil {
		s.env.Logger.WarnContext(ctx, "roster request failed",
			slog.Int64("group_id", gid),
			slog.String("error", err.Error()))
		return
	}
	row.StudentID = MatchStudent(roster, row.StudentName)
	if row.StudentID == 0 {
		s.env.Logger.WarnContext(ctx, "student not found in roster",
			slog.String("student", row.StudentName),
			slog.Int64("group_id", gid))
		return
	}

	n, err := s.api.Attendance(ctx, gid, row.StudentID)
	track(err)
	if err != nil {
		s.env.Logger.WarnContext(ctx, "attendance request failed",
			slog.Int64("student_id", row.StudentID),
			slog.String("error", err.Error()))
		return
	}
	row.Attended = n
	s.env.Logger.DebugContext(ctx, "attendance resolved",
		slog.String("student", row.StudentName),
		slog.Int("lessons", n))
}

// roster fetches each group once; concurrent callers share the request
// and failures are not cached.
func (s *ExtractService) roster(ctx context.Context, gid int64, track func(error)) ([]RosterEntry, error) {
	s.mu.Lock()
	cached, ok := s.cache[gid]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	v, err, _ := s.rosters.Do(strconv.FormatInt(gid, 10), func() (any, error) {
		s.mu.Lock()
		cached, ok := s.cache[gid]
		s.mu.Unlock()
		if ok {
			return cached, nil
		}
		roster, err := s.api.Roster(ctx, gid)
		track(err)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[gid] = roster
		s.mu.Unlock()
		return roster, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]RosterEntry), nil
}

// PrepareRows turns the raw extract into attendance rows. The raw group id
// column holds the group name; the numeric id is its leading digits.
func PrepareRows(raw *dataprocessing.Table) []domain.AttendanceRow {
	rows := make([]domain.AttendanceRow, raw.Len())
	for i := range raw.Rows {
		r := domain.AttendanceRow{
			StudentName: raw.Get(i, domain.ColStudentName),
			GroupName:   raw.Get(i, domain.ColGroupID),
			Extra:       make(map[string]string, len(raw.Header)),
		}
		if id, ok := GroupIDFromName(r.GroupName); ok {
			r.GroupID = &id
		}
		for _, h := range raw.Header {
			r.Extra[h] = raw.Get(i, h)
		}
		rows[i] = r
	}
	return rows
}

// AttendanceTable renders rows with the renamed group column, the derived
// ids and attendance, then left-joins lost reasons and child age by
// student name. A student listed twice in reasons yields two rows.
func AttendanceTable(rawHeader []string, rows []domain.AttendanceRow, reasons *dataprocessing.Table) *dataprocessing.Table {
	header := make([]string, 0, len(rawHeader)+5)
	for _, h := range rawHeader {
		if h == domain.ColGroupID {
			h = domain.ColGroupName
		}
		header = append(header, h)
	}
	header = append(header,
		domain.ColGroupID, domain.ColStudentID, domain.ColAttendedLesson,
		domain.ColLostReason, domain.ColChildAge)

	byName := make(map[string][]int)
	for i := range reasons.Rows {
		name := reasons.Get(i, domain.ColStudentName)
		byName[name] = append(byName[name], i)
	}

	out := dataprocessing.NewTable(header...)
	for _, r := range rows {
		cells := make([]string, 0, len(header))
		for _, h := range rawHeader {
			cells = append(cells, r.Extra[h])
		}
		gid := ""
		if r.GroupID != nil {
			gid = strconv.FormatInt(*r.GroupID, 10)
		}
		cells = append(cells, gid, strconv.FormatInt(r.StudentID, 10), strconv.Itoa(r.Attended))

		matches := byName[r.StudentName]
		if len(matches) == 0 {
			out.Append(append(cells, "", "")...)
			continue
		}
		for _, j := range matches {
			row := append(append([]string(nil), cells...),
				reasons.Get(j, domain.ColLostReason),
				reasons.Get(j, domain.ColChildAge))
			out.Append(row...)
		}
	}
	return out
}
