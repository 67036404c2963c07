package cliui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCount_ThousandsSeparators(t *testing.T) {
	assert.Equal(t, "12,345", Count(12345))
	assert.Equal(t, "0", Count(0))
}

func TestBytes_NegativeClampedToZero(t *testing.T) {
	assert.Equal(t, "0 B", Bytes(-5))
}

func TestBytes_FormatsHumanReadable(t *testing.T) {
	assert.Equal(t, "1.0 MB", Bytes(1_000_000))
}

func TestSince_RendersRelativeTime(t *testing.T) {
	got := Since(time.Now().Add(-3 * time.Hour))
	assert.Contains(t, got, "ago")
}

func TestStylesRenderUnderlyingText(t *testing.T) {
	assert.Contains(t, Stage("analyzing"), "analyzing")
	assert.Contains(t, Success("done"), "done")
	assert.Contains(t, Failure("oops"), "oops")
	assert.Contains(t, Stat("areas", "3"), "areas: 3")
}
