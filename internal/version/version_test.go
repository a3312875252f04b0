package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBuildTime(t *testing.T) {
	defer func(old string) { BuildTime = old }(BuildTime)

	BuildTime = "unknown"
	assert.Equal(t, "unknown", formatBuildTime())

	BuildTime = "2024-03-05T14:07:09Z"
	assert.Equal(t, "Tue Mar 5 14:07:09 2024", formatBuildTime())

	BuildTime = "yesterday"
	assert.Equal(t, "yesterday", formatBuildTime())
	assert.Equal(t, "yesterday", Info()["FormattedTime"])
}
