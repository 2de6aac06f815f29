package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlannerSegment(t *testing.T) {
	assert.Equal(t, "123456", PlannerSegment("123456789"))
	assert.Equal(t, "123456", PlannerSegment("AB-1234/56X78"))
	assert.Equal(t, "000042", PlannerSegment("REF42"))
	assert.Equal(t, "000000", PlannerSegment("NODIGITS"))
}

func TestBuildLabelBarcode(t *testing.T) {
	barcode, err := BuildLabelBarcode("CL-482910", 50, 7)
	require.NoError(t, err)

	assert.Equal(t, "482910", barcode.PlannerSegment)
	assert.Equal(t, 50, barcode.Quantity)
	assert.Equal(t, 7, barcode.Counter)
	assert.Equal(t, "4829100500007", barcode.String())
	assert.Len(t, barcode.String(), 13)
}

func TestBuildLabelBarcode_QuantityTooLarge(t *testing.T) {
	_, err := BuildLabelBarcode("123456", 1000, 1)
	require.Error(t, err)
}

func TestBuildLabelBarcode_CounterTooLarge(t *testing.T) {
	_, err := BuildLabelBarcode("123456", 10, 10000)
	require.Error(t, err)
}

func TestParseLabelBarcode_RoundTrip(t *testing.T) {
	built, err := BuildLabelBarcode("CL-482910", 120, 42)
	require.NoError(t, err)

	parsed, err := ParseLabelBarcode(built.String())
	require.NoError(t, err)
	assert.Equal(t, built, parsed)
}

func TestParseLabelBarcode_WrongLength(t *testing.T) {
	_, err := ParseLabelBarcode("12345")
	require.Error(t, err)
}

func TestParseLabelBarcode_NonDigit(t *testing.T) {
	_, err := ParseLabelBarcode("48291005000A7")
	require.Error(t, err)
}
