package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToleranceChecker_ExactMatch(t *testing.T) {
	checker := NewToleranceChecker(5.0)

	check := checker.Check(50, 50)
	assert.True(t, check.Within)
	assert.Equal(t, 0.0, check.PercentDiff)
}

func TestToleranceChecker_WithinTolerance(t *testing.T) {
	checker := NewToleranceChecker(5.0)

	check := checker.Check(100, 104)
	assert.True(t, check.Within)
	assert.InDelta(t, 4.0, check.PercentDiff, 0.001)
}

func TestToleranceChecker_OutOfTolerance(t *testing.T) {
	checker := NewToleranceChecker(5.0)

	check := checker.Check(50, 60)
	assert.False(t, check.Within)
	assert.InDelta(t, 20.0, check.PercentDiff, 0.001)
}

func TestToleranceChecker_UnderExpected(t *testing.T) {
	checker := NewToleranceChecker(5.0)

	check := checker.Check(100, 90)
	assert.False(t, check.Within)
	assert.InDelta(t, 10.0, check.PercentDiff, 0.001)
}

func TestToleranceChecker_BothZero(t *testing.T) {
	checker := NewToleranceChecker(5.0)

	check := checker.Check(0, 0)
	assert.True(t, check.Within)
	assert.Equal(t, 0.0, check.PercentDiff)
}

func TestToleranceChecker_ExpectedZeroScannedPositive(t *testing.T) {
	checker := NewToleranceChecker(5.0)

	check := checker.Check(0, 10)
	assert.False(t, check.Within)
	assert.Equal(t, 100.0, check.PercentDiff)
}

func TestToleranceChecker_DefaultFallback(t *testing.T) {
	checker := NewToleranceChecker(0)
	assert.Equal(t, DefaultTolerancePercent, checker.TolerancePercent)

	checker = NewToleranceChecker(-3)
	assert.Equal(t, DefaultTolerancePercent, checker.TolerancePercent)
}

func TestParseQuantity(t *testing.T) {
	qty, err := ParseQuantity("50")
	require.NoError(t, err)
	assert.Equal(t, 50.0, qty)

	qty, err = ParseQuantity("  12.5  ")
	require.NoError(t, err)
	assert.Equal(t, 12.5, qty)

	_, err = ParseQuantity("abc")
	require.Error(t, err)

	_, err = ParseQuantity("")
	require.Error(t, err)

	_, err = ParseQuantity("   ")
	require.Error(t, err)
}
