package samplegen

import (
	"context"
	"sync"

	"churncli/internal/lms"
)

// FakeLMS serves generated rosters and attendance in memory.
type FakeLMS struct {
	mu         sync.Mutex
	rosters    map[int64][]lms.RosterEntry
	attendance map[[2]int64]int
	requests   int
}

// NewFakeLMS creates an empty LMS.
func NewFakeLMS() *FakeLMS {
	return &FakeLMS{
		rosters:    make(map[int64][]lms.RosterEntry),
		attendance: make(map[[2]int64]int),
	}
}

// Enroll adds a student to a group roster with the number of lessons they
// attended.
func (f *FakeLMS) Enroll(groupID, studentID int64, fullName string, attended int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rosters[groupID] = append(f.rosters[groupID], lms.RosterEntry{ID: studentID, FullName: fullName})
	f.attendance[[2]int64{groupID, studentID}] = attended
}

// Roster implements lms.API. Unknown groups have an empty roster.
func (f *FakeLMS) Roster(ctx context.Context, groupID int64) ([]lms.RosterEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return append([]lms.RosterEntry(nil), f.rosters[groupID]...), nil
}

// Attendance implements lms.API.
func (f *FakeLMS) Attendance(ctx context.Context, groupID, studentID int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return f.attendance[[2]int64{groupID, studentID}], nil
}

// Requests returns how many calls the LMS served.
func (f *FakeLMS) Requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}
