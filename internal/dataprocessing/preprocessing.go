package dataprocessing

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"churncli/internal/config"
	"churncli/pkg/contracts/domain"
)

// teacherNamePattern captures the first two words of a teacher name.
var teacherNamePattern = regexp.MustCompile(`^([\p{L}\p{M}\p{N}_']+[\s\p{Zs}][\p{L}\p{M}\p{N}_']+)`)

// NormalizeTeacher returns the first two words of a trimmed name, or the
// trimmed name when it has fewer than two words.
func NormalizeTeacher(name string) string {
	name = strings.TrimSpace(name)
	if m := teacherNamePattern.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return name
}

// AgeGroup returns the label of the bin containing age. Bins are
// right-closed, and the lowest edge is included in the first bin.
func AgeGroup(age float64, bins []float64, labels []string) (string, bool) {
	if math.IsNaN(age) || len(bins) < 2 {
		return "", false
	}
	if age == bins[0] {
		return labels[0], true
	}
	for i := 1; i < len(bins) && i-1 < len(labels); i++ {
		if age > bins[i-1] && age <= bins[i] {
			return labels[i-1], true
		}
	}
	return "", false
}

// NormalizeStats counts the rows flagged during normalization.
type NormalizeStats struct {
	InvalidDates  int
	OutOfRangeAge int
}

// Preprocessor applies date parsing, teacher name normalization and age
// binning to loss records.
type Preprocessor struct {
	aliases map[string]string
	bins    []float64
	labels  []string
	logger  *slog.Logger
}

// NewPreprocessor builds a preprocessor from the pipeline rules
func NewPreprocessor(p *config.Pipeline, logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preprocessor{
		aliases: p.TeacherAliases,
		bins:    p.AgeBins,
		labels:  p.AgeLabels,
		logger:  logger,
	}
}

// Normalize rewrites records in place and returns the flag counts.
func (p *Preprocessor) Normalize(ctx context.Context, records []domain.LossRecord) NormalizeStats {
	var stats NormalizeStats
	for i := range records {
		r := &records[i]

		d, _, invalid := ParseDate(r.StartDateRaw)
		r.StartDate = d
		r.StartDateInvalid = invalid
		if invalid {
			stats.InvalidDates++
		}

		r.TeacherName = strings.TrimSpace(r.TeacherName)
		r.Count = 1
		r.TeacherNormalized = NormalizeTeacher(r.TeacherName)
		r.NameNormalized = p.canonicalName(r.TeacherNormalized)

		group, binned := AgeGroup(r.Age, p.bins, p.labels)
		r.AgeGroup = group
		r.OutOfRangeAge = !binned && !math.IsNaN(r.Age)
		if r.OutOfRangeAge {
			stats.OutOfRangeAge++
		}
	}

	if stats.InvalidDates > 0 {
		p.logger.WarnContext(ctx, "invalid start dates found",
			slog.String("column", domain.ColReportStartDate),
			slog.Int("count", stats.InvalidDates))
	}
	if stats.OutOfRangeAge > 0 {
		p.logger.WarnContext(ctx, "students with age outside bins",
			slog.Int("count", stats.OutOfRangeAge))
	}
	return stats
}

func (p *Preprocessor) canonicalName(name string) string {
	name = strings.TrimSpace(name)
	if alias, ok := p.aliases[name]; ok {
		return alias
	}
	return name
}

// FilterPeriod keeps the records whose start date falls inside period.
// Records without a start date are dropped.
func FilterPeriod(records []domain.LossRecord, period domain.Period) []domain.LossRecord {
	out := make([]domain.LossRecord, 0, len(records))
	for _, r := range records {
		if period.Contains(r.StartDate) {
			out = append(out, r)
		}
	}
	return out
}
