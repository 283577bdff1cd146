package store

import (
	"strings"

	"churncli/internal/dataprocessing"
	"churncli/pkg/contracts/domain"
)

// UniteTeachers attaches the teacher of each group to the attendance rows.
// In the extended extract the group id column holds the group name. Every
// distinct (group, teacher) pair of extended is joined onto attended by
// group name, so a group taught by two teachers yields two rows. Manual
// assignments then override the teacher of their group, and rows still
// without a teacher are dropped.
func UniteTeachers(attended, extended *dataprocessing.Table, manual map[string]string) (*dataprocessing.Table, int, error) {
	if err := attended.Require(domain.ColGroupName); err != nil {
		return nil, 0, err
	}
	if err := extended.Require(domain.ColGroupID, domain.ColTeacher); err != nil {
		return nil, 0, err
	}

	type pair struct{ group, teacher string }
	seen := make(map[pair]struct{})
	byGroup := make(map[string][]string)
	for i := range extended.Rows {
		p := pair{extended.Get(i, domain.ColGroupID), extended.Get(i, domain.ColTeacher)}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		byGroup[p.group] = append(byGroup[p.group], p.teacher)
	}

	header := append(append([]string(nil), attended.Header...), domain.ColTeacher)
	if attended.Has(domain.ColTeacher) {
		header = append([]string(nil), attended.Header...)
	}
	out := dataprocessing.NewTable(header...)
	out.Path = attended.Path

	dropped := 0
	emit := func(i int, teacher string) {
		if m, ok := manual[attended.Get(i, domain.ColGroupName)]; ok {
			teacher = m
		}
		if strings.TrimSpace(teacher) == "" {
			dropped++
			return
		}
		out.Append(attended.Rows[i]...)
		out.Set(out.Len()-1, domain.ColTeacher, teacher)
	}

	for i := range attended.Rows {
		teachers, ok := byGroup[attended.Get(i, domain.ColGroupName)]
		if !ok {
			emit(i, "")
			continue
		}
		for _, teacher := range teachers {
			emit(i, teacher)
		}
	}
	return out, dropped, nil
}
