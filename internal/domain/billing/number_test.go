package billing

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflakeNumbers_Format(t *testing.T) {
	g, err := NewSnowflakeNumbers("", 7)
	require.NoError(t, err)

	n := g.Next(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	assert.Regexp(t, regexp.MustCompile(`^F-2026-[0-9A-Z]+$`), n)
}

func TestSnowflakeNumbers_Unique(t *testing.T) {
	g, err := NewSnowflakeNumbers("INV", 1)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		n := g.Next(testNow)
		require.False(t, seen[n], "duplicate number %s", n)
		seen[n] = true
	}
}

func TestSnowflakeNumbers_InvalidNode(t *testing.T) {
	_, err := NewSnowflakeNumbers("F", 5000)
	assert.Error(t, err)
}
