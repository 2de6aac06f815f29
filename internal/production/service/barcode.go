package service

import (
	"fmt"
	"math"
	"strconv"
	"unicode"
)

// Composite label barcode field widths
const (
	plannerSegmentWidth  = 6
	quantitySegmentWidth = 3
	counterSegmentWidth  = 4
)

// LabelBarcode is the decomposed form of a composite label code:
// a 6-digit planner segment derived from the client reference, a
// 3-digit quantity and a 4-digit per-reference sequence counter.
type LabelBarcode struct {
	PlannerSegment string `json:"segmentPlanning"`
	Quantity       int    `json:"quantite"`
	Counter        int    `json:"compteurHU"`
}

// String renders the three fixed-width segments as one scannable code
func (b LabelBarcode) String() string {
	return fmt.Sprintf("%s%0*d%0*d",
		b.PlannerSegment, quantitySegmentWidth, b.Quantity, counterSegmentWidth, b.Counter)
}

// PlannerSegment extracts the planner segment from a client reference:
// the first six digits found in the code, left padded with zeros when
// fewer digits exist.
func PlannerSegment(clientCode string) string {
	digits := make([]rune, 0, plannerSegmentWidth)
	for _, r := range clientCode {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
			if len(digits) == plannerSegmentWidth {
				break
			}
		}
	}
	return fmt.Sprintf("%0*s", plannerSegmentWidth, string(digits))
}

// BuildLabelBarcode composes the label code for a handling unit
func BuildLabelBarcode(clientCode string, quantity float64, counter int) (LabelBarcode, error) {
	qty := int(math.Round(quantity))
	if qty < 0 || qty > 999 {
		return LabelBarcode{}, fmt.Errorf("quantity %d does not fit %d digits", qty, quantitySegmentWidth)
	}
	if counter < 0 || counter > 9999 {
		return LabelBarcode{}, fmt.Errorf("counter %d does not fit %d digits", counter, counterSegmentWidth)
	}
	return LabelBarcode{
		PlannerSegment: PlannerSegment(clientCode),
		Quantity:       qty,
		Counter:        counter,
	}, nil
}

// ParseLabelBarcode splits a scanned label code back into its three
// fixed-width segments.
func ParseLabelBarcode(code string) (LabelBarcode, error) {
	want := plannerSegmentWidth + quantitySegmentWidth + counterSegmentWidth
	if len(code) != want {
		return LabelBarcode{}, fmt.Errorf("label code must be %d characters, got %d", want, len(code))
	}
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return LabelBarcode{}, fmt.Errorf("label code contains non-digit %q", r)
		}
	}

	planner := code[:plannerSegmentWidth]
	qty, err := strconv.Atoi(code[plannerSegmentWidth : plannerSegmentWidth+quantitySegmentWidth])
	if err != nil {
		return LabelBarcode{}, err
	}
	counter, err := strconv.Atoi(code[plannerSegmentWidth+quantitySegmentWidth:])
	if err != nil {
		return LabelBarcode{}, err
	}

	return LabelBarcode{PlannerSegment: planner, Quantity: qty, Counter: counter}, nil
}
