package events

import (
	"context"

	"github.com/scanflow/scanflow-backend/internal/production/repository"
	"github.com/scanflow/scanflow-backend/pkg/logger"
	"github.com/scanflow/scanflow-backend/pkg/messaging"
)

// Publisher emits production domain events. A nil inner publisher turns
// every emit into a no-op so the service keeps working when the broker
// is down or disabled.
type Publisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewPublisher creates a production event publisher
func NewPublisher(publisher *messaging.Publisher, log *logger.Logger) *Publisher {
	return &Publisher{publisher: publisher, logger: log}
}

// ScanRecorded emits the audit event of a successful or forced commit
func (p *Publisher) ScanRecorded(ctx context.Context, rec *repository.ScanHistoryRecord, orderNumber, unitNumber string, quantityReal float64) {
	p.emit(ctx, messaging.EventScanRecorded, p.scanEvent(rec, orderNumber, unitNumber, quantityReal))
}

// ScanRejected emits the audit event of a blocking verification failure
func (p *Publisher) ScanRejected(ctx context.Context, rec *repository.ScanHistoryRecord, orderNumber, unitNumber string, quantityReal float64) {
	p.emit(ctx, messaging.EventScanRejected, p.scanEvent(rec, orderNumber, unitNumber, quantityReal))
}

// OrderCompleted emits the completion event when the last unit of an
// order is validated
func (p *Publisher) OrderCompleted(ctx context.Context, order *repository.ProductionOrder) {
	event := messaging.OrderCompletedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
	}
	if order.ClosedAt != nil {
		event.ClosedAt = *order.ClosedAt
	}
	p.emit(ctx, messaging.EventOrderCompleted, event)
}

// OrderCancelled emits the administrative cancellation event
func (p *Publisher) OrderCancelled(ctx context.Context, order *repository.ProductionOrder) {
	event := messaging.OrderCancelledEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
	}
	if order.ClosedAt != nil {
		event.ClosedAt = *order.ClosedAt
	}
	p.emit(ctx, messaging.EventOrderCancelled, event)
}

// UnitRejected emits the unit rejection event
func (p *Publisher) UnitRejected(ctx context.Context, unit *repository.HandlingUnit) {
	p.emit(ctx, messaging.EventUnitRejected, messaging.UnitRejectedEvent{
		UnitID:     unit.ID,
		OrderID:    unit.OrderID,
		UnitNumber: unit.UnitNumber,
	})
}

// UnitsImported emits the bulk import confirmation event
func (p *Publisher) UnitsImported(ctx context.Context, order *repository.ProductionOrder, count int) {
	p.emit(ctx, messaging.EventUnitsImported, messaging.UnitsImportedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Count:       count,
	})
}

func (p *Publisher) scanEvent(rec *repository.ScanHistoryRecord, orderNumber, unitNumber string, quantityReal float64) messaging.ScanRecordedEvent {
	event := messaging.ScanRecordedEvent{
		HistoryID:    rec.ID,
		OrderNumber:  orderNumber,
		UnitNumber:   unitNumber,
		Result:       rec.Result,
		ErrorType:    rec.ErrorType,
		Forced:       rec.Forced,
		QuantityReal: quantityReal,
	}
	if rec.OperatorID != nil {
		event.OperatorID = *rec.OperatorID
	}
	return event
}

func (p *Publisher) emit(ctx context.Context, eventType string, data interface{}) {
	if p == nil || p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}
