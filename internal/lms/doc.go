// Package lms pulls student identifiers and attendance counts from the
// school's learning management system.
//
// The Client speaks the two read-only endpoints the extraction needs:
//
//	GET /api/v2/group/student/index?groupId={id}
//	GET /api/v1/stats/default/attendance?group={gid}&students[]={sid}
//
// Requests carry the bearer token and session cookies from the environment
// and are paced by a token bucket limiter. A failed request never aborts the
// extraction: the row keeps its default value and the failure is logged.
package lms
