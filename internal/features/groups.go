package features

import (
	"strings"

	"churncli/internal/dataprocessing"
	"churncli/pkg/contracts/domain"
)

// ColName is the single column of a teachers_<group>.csv file.
const ColName = "name"

func tiers(c domain.TeacherCategoryCounts) []int {
	return []int{c.Best, c.Interquart, c.Bad, c.Worst}
}

// InGroup reports whether a teacher's tier counts place them in g.
//
//	A: two years in the same tier
//	B: one year in each of at least two different tiers
//	C: exactly one year among the best
//	D: exactly one year among the bad
func InGroup(g domain.TeacherGroup, c domain.TeacherCategoryCounts) bool {
	switch g {
	case domain.TeacherGroupStable:
		for _, n := range tiers(c) {
			if n == 2 {
				return true
			}
		}
	case domain.TeacherGroupUnstable:
		ones := 0
		for _, n := range tiers(c) {
			if n == 1 {
				ones++
			}
		}
		return ones >= 2
	case domain.TeacherGroupBestOnce:
		return c.Best == 1
	case domain.TeacherGroupBadOnce:
		return c.Bad == 1
	}
	return false
}

// SplitGroups lists the members of every group in input order. A teacher
// may belong to several groups.
func SplitGroups(counts []domain.TeacherCategoryCounts) map[domain.TeacherGroup][]string {
	out := make(map[domain.TeacherGroup][]string, len(domain.AllTeacherGroups))
	for _, g := range domain.AllTeacherGroups {
		out[g] = []string{}
		for _, c := range counts {
			if InGroup(g, c) {
				out[g] = append(out[g], c.Name)
			}
		}
	}
	return out
}

// EncodeNames renders a group file.
func EncodeNames(names []string) *dataprocessing.Table {
	t := dataprocessing.NewTable(ColName)
	for _, n := range names {
		t.Append(n)
	}
	return t
}

// ReadNames loads the distinct names of a group file.
func ReadNames(path string) ([]string, error) {
	t, err := dataprocessing.ReadCSV(path)
	if err != nil {
		return nil, err
	}
	if err := t.Require(ColName); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, n := range t.Column(ColName) {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out, nil
}
