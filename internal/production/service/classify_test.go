package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorAccumulator_Empty(t *testing.T) {
	var acc ErrorAccumulator

	assert.False(t, acc.HasErrors())
	assert.Equal(t, ErrorNone, acc.Primary())
	assert.Empty(t, acc.Messages())
	assert.True(t, acc.Overridable())
}

func TestErrorAccumulator_FirstErrorWins(t *testing.T) {
	var acc ErrorAccumulator

	acc.Add(ErrorReferenceMismatch, "wrong product")
	acc.Add(ErrorQuantityIncorrect, "20% off")
	acc.Add(ErrorIndiceIncorrect, "wrong index")

	assert.True(t, acc.HasErrors())
	assert.Equal(t, ErrorReferenceMismatch, acc.Primary())
	assert.Equal(t, []string{"wrong product", "20% off", "wrong index"}, acc.Messages())
}

func TestErrorAccumulator_OverridableWhenAllPolicyViolations(t *testing.T) {
	var acc ErrorAccumulator

	acc.Add(ErrorUnitAlreadyScanned, "already scanned")
	acc.Add(ErrorQuantityIncorrect, "out of tolerance")

	assert.True(t, acc.Overridable())
}

func TestErrorAccumulator_NotOverridableOnNonExistence(t *testing.T) {
	var acc ErrorAccumulator

	acc.Add(ErrorQuantityIncorrect, "out of tolerance")
	acc.Add(ErrorUnitNotFound, "unknown unit")

	assert.False(t, acc.Overridable())
}

func TestIsOverridable(t *testing.T) {
	overridable := []string{
		ErrorUnitAlreadyScanned,
		ErrorQuantityIncorrect,
		ErrorReferenceMismatch,
		ErrorIndiceIncorrect,
		ErrorQualityNonConforme,
	}
	for _, code := range overridable {
		assert.True(t, IsOverridable(code), code)
	}

	blocking := []string{
		ErrorReferenceUnknown,
		ErrorUnitNotFound,
		ErrorUnitInOtherOrder,
		ErrorOrderNotFound,
		ErrorOrderNotActive,
	}
	for _, code := range blocking {
		assert.False(t, IsOverridable(code), code)
	}
}
