package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	origVersion, origSHA, origTime := Version, GitSHA, BuildTime
	defer func() { Version, GitSHA, BuildTime = origVersion, origSHA, origTime }()

	assert.Equal(t, "replay dev (unknown, built unknown)", String("replay"))

	Version, GitSHA, BuildTime = "0.3.0", "0123456789abcdef0123", "2025-03-01T09:00:00Z"
	assert.Equal(t, "derive 0.3.0 (0123456789ab, built 2025-03-01T09:00:00Z)", String("derive"))
}
