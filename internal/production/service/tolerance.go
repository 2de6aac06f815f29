package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultTolerancePercent is used when no deployment override is configured
const DefaultTolerancePercent = 5.0

// QuantityCheck is the outcome of a tolerance comparison
type QuantityCheck struct {
	Within      bool    `json:"conforme"`
	PercentDiff float64 `json:"ecartPourcent"`
}

// ToleranceChecker compares scanned quantities against expected ones
// within a configurable percentage tolerance.
type ToleranceChecker struct {
	TolerancePercent float64
}

// NewToleranceChecker creates a checker, falling back to the default
// tolerance when the configured value is not positive.
func NewToleranceChecker(tolerancePercent float64) *ToleranceChecker {
	if tolerancePercent <= 0 {
		tolerancePercent = DefaultTolerancePercent
	}
	return &ToleranceChecker{TolerancePercent: tolerancePercent}
}

// Check computes the percent deviation between expected and scanned.
// Expected 0 with scanned 0 is consistent (both empty). Expected 0 with
// any scanned quantity counts as a full deviation.
func (c *ToleranceChecker) Check(expected, scanned float64) QuantityCheck {
	var percentDiff float64
	switch {
	case expected > 0:
		percentDiff = math.Abs(scanned-expected) / expected * 100
	case scanned != 0:
		percentDiff = 100
	default:
		percentDiff = 0
	}
	return QuantityCheck{
		Within:      percentDiff <= c.TolerancePercent,
		PercentDiff: percentDiff,
	}
}

// ParseQuantity parses a scanned quantity string. Non-numeric input is
// an error, never silently zero.
func ParseQuantity(raw string) (float64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("empty quantity")
	}
	qty, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric quantity %q", raw)
	}
	return qty, nil
}
