package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferedSlogHandler(t *testing.T) {
	logger, handler := NewTestLogger(t)

	logger.Info("row loaded", "row", 1)
	logger.With("component", "store").Warn("row skipped", "reason", "missing teacher")
	logger.Warn("row skipped", "reason", "missing group")

	assert.Equal(t, 3, handler.Count())
	assert.Equal(t, 2, handler.CountMessage("row skipped"))
	assert.True(t, handler.ContainsAttr("component", "store"))
	assert.True(t, handler.ContainsAttr("reason", "missing group"))
	assert.Len(t, handler.GetRecordsByLevel(slog.LevelWarn), 2)

	AssertLogContains(t, handler, slog.LevelWarn, "skipped")
	AssertNoErrors(t, handler)
}

func TestFixtures(t *testing.T) {
	paths := TempPaths(t)
	WriteCSV(t, paths.CostsSalaries, []string{"city", "2022_cost"}, []string{"Kyiv", "1200"})

	header, rows := ReadCSV(t, paths.CostsSalaries)
	assert.Equal(t, []string{"city", "2022_cost"}, header)
	assert.Equal(t, []string{"1200"}, Column(t, header, rows, "2022_cost"))
}
