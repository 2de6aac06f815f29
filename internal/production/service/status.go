package service

import (
	"context"
	"fmt"

	"github.com/scanflow/scanflow-backend/internal/production/events"
	"github.com/scanflow/scanflow-backend/internal/production/repository"
	apperrors "github.com/scanflow/scanflow-backend/pkg/errors"
	"github.com/scanflow/scanflow-backend/pkg/logger"
)

// Legal status transitions. TERMINE, ANNULE, VALIDE and REJETE are
// terminal; a forced re-scan of a VALIDE unit goes through the engine's
// override path, not through here.
var orderTransitions = map[string]map[string]bool{
	repository.OrderStatusInProgress: {
		repository.OrderStatusComplete:  true,
		repository.OrderStatusCancelled: true,
	},
}

var unitTransitions = map[string]map[string]bool{
	repository.UnitStatusToScan: {
		repository.UnitStatusScanned:   true,
		repository.UnitStatusValidated: true,
		repository.UnitStatusRejected:  true,
	},
	repository.UnitStatusScanned: {
		repository.UnitStatusValidated: true,
		repository.UnitStatusRejected:  true,
	},
}

// ValidOrderTransition reports whether an order may move between the
// two statuses
func ValidOrderTransition(from, to string) bool {
	return orderTransitions[from][to]
}

// ValidUnitTransition reports whether a handling unit may move between
// the two statuses
func ValidUnitTransition(from, to string) bool {
	return unitTransitions[from][to]
}

// Lifecycle applies the administrative status transitions that do not
// go through the scan commit: order cancellation and unit rejection.
type Lifecycle struct {
	orders    *repository.OrderRepository
	units     *repository.HandlingUnitRepository
	publisher *events.Publisher
	logger    *logger.Logger
}

// NewLifecycle creates the administrative transition service
func NewLifecycle(
	orders *repository.OrderRepository,
	units *repository.HandlingUnitRepository,
	publisher *events.Publisher,
	log *logger.Logger,
) *Lifecycle {
	return &Lifecycle{
		orders:    orders,
		units:     units,
		publisher: publisher,
		logger:    log.WithComponent("lifecycle"),
	}
}

// CancelOrder transitions an order to ANNULE
func (l *Lifecycle) CancelOrder(ctx context.Context, orderID string) (*repository.ProductionOrder, error) {
	order, err := l.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !ValidOrderTransition(order.Status, repository.OrderStatusCancelled) {
		return nil, apperrors.Conflict(fmt.Sprintf(
			"OF %s ne peut pas etre annule (statut %s)", order.OrderNumber, order.Status))
	}

	closedAt, err := l.orders.Cancel(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Status = repository.OrderStatusCancelled
	order.ClosedAt = &closedAt

	l.publisher.OrderCancelled(ctx, order)
	l.logger.Info().Str("order_number", order.OrderNumber).Msg("production order cancelled")
	return order, nil
}

// RejectUnit transitions a handling unit to REJETE. A rejected unit
// keeps blocking order completion until it is replaced.
func (l *Lifecycle) RejectUnit(ctx context.Context, orderID, unitID string) (*repository.HandlingUnit, error) {
	unit, err := l.units.GetByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if unit.OrderID != orderID {
		return nil, apperrors.NotFound("handling unit")
	}
	if !ValidUnitTransition(unit.Status, repository.UnitStatusRejected) {
		return nil, apperrors.Conflict(fmt.Sprintf(
			"HU %s ne peut pas etre rejetee (statut %s)", unit.UnitNumber, unit.Status))
	}

	if err := l.units.Reject(ctx, unitID); err != nil {
		return nil, err
	}
	unit.Status = repository.UnitStatusRejected

	l.publisher.UnitRejected(ctx, unit)
	l.logger.Info().
		Str("order_id", orderID).
		Str("unit_number", unit.UnitNumber).
		Msg("handling unit rejected")
	return unit, nil
}
