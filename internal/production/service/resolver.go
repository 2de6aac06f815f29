package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/scanflow/scanflow-backend/internal/production/repository"
	"github.com/scanflow/scanflow-backend/pkg/database"
	apperrors "github.com/scanflow/scanflow-backend/pkg/errors"
)

// Resolution statuses for each identifier kind
const (
	ResolutionFound            = "FOUND"
	ResolutionNotFound         = "NOT_FOUND"
	ResolutionFoundElsewhere   = "FOUND_ELSEWHERE"
	ResolutionInactiveOrder    = "INACTIVE_ORDER"
	ResolutionRefOrderMismatch = "REFERENCE_ORDER_MISMATCH"
	ResolutionAlreadyValidated = "ALREADY_VALIDATED"
)

// ReferenceResolution is the outcome of resolving a scanned reference code
type ReferenceResolution struct {
	Status    string
	Reference *repository.ReferenceProduct
}

// OrderResolution is the outcome of resolving a scanned order number.
// OrderStatus carries the current status when the order is not active.
type OrderResolution struct {
	Status      string
	Order       *repository.OrderWithReference
	OrderStatus string
}

// UnitResolution is the outcome of resolving a scanned unit number
// within an order. ElsewhereOrderNumber names the other order when the
// number exists only outside the scanning context.
type UnitResolution struct {
	Status               string
	Unit                 *repository.HandlingUnit
	ElsewhereOrderNumber string
}

// Resolver turns scanned strings into domain entities. It is strictly
// read only; all lookups run outside any transaction.
type Resolver struct {
	db     *database.DB
	refs   *repository.ReferenceRepository
	orders *repository.OrderRepository
	units  *repository.HandlingUnitRepository
}

// NewResolver creates a resolver over the given repositories
func NewResolver(db *database.DB, refs *repository.ReferenceRepository, orders *repository.OrderRepository, units *repository.HandlingUnitRepository) *Resolver {
	return &Resolver{db: db, refs: refs, orders: orders, units: units}
}

// ResolveReference matches a trimmed scanned code against internal and
// client reference codes.
func (r *Resolver) ResolveReference(ctx context.Context, scanned string) (*ReferenceResolution, error) {
	ref, err := r.refs.GetByCode(ctx, r.db, strings.TrimSpace(scanned))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return &ReferenceResolution{Status: ResolutionNotFound}, nil
		}
		return nil, err
	}
	return &ReferenceResolution{Status: ResolutionFound, Reference: ref}, nil
}

// ResolveOrder matches a trimmed scanned order number, verifies the
// order is in progress, and cross-validates the previously confirmed
// reference code when one is supplied.
func (r *Resolver) ResolveOrder(ctx context.Context, scanned, expectedReferenceCode string) (*OrderResolution, error) {
	order, err := r.orders.GetByNumber(ctx, r.db, strings.TrimSpace(scanned))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return &OrderResolution{Status: ResolutionNotFound}, nil
		}
		return nil, err
	}

	ow, err := r.orders.GetWithReference(ctx, r.db, order.ID)
	if err != nil {
		return nil, err
	}

	if order.Status != repository.OrderStatusInProgress {
		return &OrderResolution{Status: ResolutionInactiveOrder, Order: ow, OrderStatus: order.Status}, nil
	}

	if code := strings.TrimSpace(expectedReferenceCode); code != "" && !ow.Reference.MatchesCode(code) {
		return &OrderResolution{Status: ResolutionRefOrderMismatch, Order: ow}, nil
	}

	return &OrderResolution{Status: ResolutionFound, Order: ow}, nil
}

// ResolveUnit matches a trimmed scanned unit number scoped to an order.
// A miss in scope triggers a global lookup to distinguish a unit living
// under another order from one that exists nowhere.
func (r *Resolver) ResolveUnit(ctx context.Context, orderID, scanned string) (*UnitResolution, error) {
	unitNumber := strings.TrimSpace(scanned)

	unit, err := r.units.GetByNumberInOrder(ctx, r.db, orderID, unitNumber)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}

		otherOrder, err := r.units.FindOrderElsewhere(ctx, r.db, unitNumber, orderID)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				return &UnitResolution{Status: ResolutionNotFound}, nil
			}
			return nil, err
		}
		return &UnitResolution{Status: ResolutionFoundElsewhere, ElsewhereOrderNumber: otherOrder}, nil
	}

	if unit.Status == repository.UnitStatusValidated {
		return &UnitResolution{Status: ResolutionAlreadyValidated, Unit: unit}, nil
	}

	return &UnitResolution{Status: ResolutionFound, Unit: unit}, nil
}

// ResolveOrderByIDOrNumber accepts either an order ID or an order
// number, loading the order with its reference either way.
func (r *Resolver) ResolveOrderByIDOrNumber(ctx context.Context, idOrNumber string) (*repository.OrderWithReference, error) {
	ow, err := r.orders.GetWithReference(ctx, r.db, idOrNumber)
	if err == nil {
		return ow, nil
	}
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	order, err := r.orders.GetByNumber(ctx, r.db, strings.TrimSpace(idOrNumber))
	if err != nil {
		return nil, fmt.Errorf("resolve order %q: %w", idOrNumber, err)
	}
	return r.orders.GetWithReference(ctx, r.db, order.ID)
}
