package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 5.0, Clamp(1, 5, 100))
	assert.Equal(t, 100.0, Clamp(140, 5, 100))
	assert.Equal(t, 42.5, Clamp(42.5, 5, 100))
}

func TestSaturate(t *testing.T) {
	assert.Equal(t, 1.0, Saturate(1_000_000, 100_000))
	assert.Equal(t, 0.5, Saturate(50_000, 100_000))
	assert.Equal(t, 0.0, Saturate(10, 0))
}

func TestRoundInt(t *testing.T) {
	assert.Equal(t, 80, RoundInt(79.6))
	assert.Equal(t, 3, RoundInt(2.5))
	assert.Equal(t, 2, RoundInt(2.49))
}

func TestNormalizeKeyword(t *testing.T) {
	assert.Equal(t, "habit tracker", NormalizeKeyword("  Habit   Tracker\n"))
	assert.Equal(t, "", NormalizeKeyword("   "))
}

func TestDedupKeywords(t *testing.T) {
	got := DedupKeywords([]string{"Yoga", "yoga ", "", "Meditation", "  ", "YOGA", "sleep"})
	assert.Equal(t, []string{"yoga", "meditation", "sleep"}, got)
}

func TestPtr(t *testing.T) {
	p := Ptr(0.7)
	assert.Equal(t, 0.7, *p)
}
