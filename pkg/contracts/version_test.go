package contracts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionStrings(t *testing.T) {
	assert.Equal(t, "churnctl v"+Version, GetVersionString())

	full := GetFullVersionString()
	assert.True(t, strings.HasPrefix(full, GetVersionString()))
	assert.Contains(t, full, "data "+DataFormatVersion)

	info := GetVersionInfo()
	assert.Equal(t, Version, info.Version)
	assert.Contains(t, info.Platform, "/")
}
