package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Scan verification events
	EventScanRecorded = "production.scan.recorded"
	EventScanRejected = "production.scan.rejected"

	// Order lifecycle events
	EventOrderCompleted = "production.order.completed"
	EventOrderCancelled = "production.order.cancelled"
	EventUnitRejected   = "production.unit.rejected"

	// Bulk import events
	EventUnitsImported = "production.units.imported"

	// Line supervision events (consumed)
	EventLineStatusChanged = "production.line.status_changed"
)

// Exchange names
const (
	ExchangeProductionEvents = "production.events"
	ExchangeLineEvents       = "line.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// ScanRecordedEvent is published after every authoritative scan commit
type ScanRecordedEvent struct {
	HistoryID    string  `json:"history_id"`
	OrderNumber  string  `json:"order_number"`
	UnitNumber   string  `json:"unit_number"`
	Result       string  `json:"result"`
	ErrorType    string  `json:"error_type"`
	Forced       bool    `json:"forced"`
	QuantityReal float64 `json:"quantity_real"`
	OperatorID   string  `json:"operator_id"`
}

// OrderCompletedEvent is published when the last handling unit of an
// order is validated
type OrderCompletedEvent struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	ClosedAt    time.Time `json:"closed_at"`
}

// OrderCancelledEvent is published on administrative cancellation
type OrderCancelledEvent struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	ClosedAt    time.Time `json:"closed_at"`
}

// UnitRejectedEvent is published when a handling unit is rejected
type UnitRejectedEvent struct {
	UnitID     string `json:"unit_id"`
	OrderID    string `json:"order_id"`
	UnitNumber string `json:"unit_number"`
}

// UnitsImportedEvent is published after a confirmed bulk import
type UnitsImportedEvent struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Count       int    `json:"count"`
}

// LineStatusChangedEvent is consumed from the plant supervision system
type LineStatusChangedEvent struct {
	LineID string `json:"line_id"`
	Status string `json:"status"`
}
