package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/scanflow/scanflow-backend/internal/production/repository"
	"github.com/scanflow/scanflow-backend/internal/production/service"
	"github.com/scanflow/scanflow-backend/pkg/database"
	"github.com/scanflow/scanflow-backend/pkg/errors"
	"github.com/scanflow/scanflow-backend/pkg/httputil"
	"github.com/scanflow/scanflow-backend/pkg/logger"
)

// OrderHandler handles production order administration, their handling
// units, scan history and label derivation
type OrderHandler struct {
	db        *database.DB
	orders    *repository.OrderRepository
	units     *repository.HandlingUnitRepository
	history   *repository.HistoryRepository
	lifecycle *service.Lifecycle
	resolver  *service.Resolver
	logger    *logger.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(
	db *database.DB,
	orders *repository.OrderRepository,
	units *repository.HandlingUnitRepository,
	history *repository.HistoryRepository,
	lifecycle *service.Lifecycle,
	resolver *service.Resolver,
	log *logger.Logger,
) *OrderHandler {
	return &OrderHandler{
		db:        db,
		orders:    orders,
		units:     units,
		history:   history,
		lifecycle: lifecycle,
		resolver:  resolver,
		logger:    log,
	}
}

// CreateOrderRequest is the payload to raise a production order
type CreateOrderRequest struct {
	OrderNumber   string  `json:"numeroOF" validate:"required"`
	ReferenceID   string  `json:"referenceId" validate:"required"`
	TotalQuantity float64 `json:"quantiteTotale" validate:"required,gt=0"`
	LineID        *string `json:"ligneId,omitempty"`
}

// LabelResponse is the composite barcode derived for one handling unit
type LabelResponse struct {
	Code    string               `json:"code"`
	Barcode service.LabelBarcode `json:"barcode"`
}

// Create raises a new production order
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	order := &repository.ProductionOrder{
		OrderNumber:   req.OrderNumber,
		ReferenceID:   req.ReferenceID,
		TotalQuantity: req.TotalQuantity,
		LineID:        req.LineID,
	}
	if err := h.orders.Create(r.Context(), order); err != nil {
		httputil.Error(w, err)
		return
	}

	h.logger.Info().Str("order_number", order.OrderNumber).Msg("production order created")
	httputil.Created(w, order)
}

// Get returns one order with its reference product. The path segment
// accepts either the order ID or the OF number.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.Error(w, errors.BadRequest("order id is required"))
		return
	}

	order, err := h.resolver.ResolveOrderByIDOrNumber(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, order)
}

// List returns orders, optionally filtered by the statut query parameter
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context(), r.URL.Query().Get("statut"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, orders)
}

// Units returns the handling units of an order
func (h *OrderHandler) Units(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.Error(w, errors.BadRequest("order id is required"))
		return
	}

	units, err := h.units.ListByOrder(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, units)
}

// History returns the scan history of an order, newest first
func (h *OrderHandler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.Error(w, errors.BadRequest("order id is required"))
		return
	}

	records, err := h.history.ListByOrder(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, records)
}

// Cancel transitions an order to ANNULE
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.Error(w, errors.BadRequest("order id is required"))
		return
	}

	order, err := h.lifecycle.CancelOrder(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, order)
}

// RejectUnit transitions a handling unit to REJETE
func (h *OrderHandler) RejectUnit(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	huID := chi.URLParam(r, "huId")
	if orderID == "" || huID == "" {
		httputil.Error(w, errors.BadRequest("order id and handling unit id are required"))
		return
	}

	unit, err := h.lifecycle.RejectUnit(r.Context(), orderID, huID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, unit)
}

// Label derives the composite label barcode for one handling unit of an
// order. The planner segment comes from the client reference code, the
// quantity from the validated actual quantity when present.
func (h *OrderHandler) Label(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	huID := chi.URLParam(r, "huId")
	if orderID == "" || huID == "" {
		httputil.Error(w, errors.BadRequest("order id and handling unit id are required"))
		return
	}

	order, err := h.orders.GetWithReference(r.Context(), h.db, orderID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	unit, err := h.units.GetByID(r.Context(), huID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if unit.OrderID != order.ID {
		httputil.Error(w, errors.NotFound("handling unit"))
		return
	}

	clientCode := order.Reference.InternalCode
	if order.Reference.ClientCode != nil {
		clientCode = *order.Reference.ClientCode
	}
	quantity := unit.PlannedQuantity
	if unit.Status == repository.UnitStatusValidated {
		quantity = unit.ActualQuantity
	}

	barcode, err := service.BuildLabelBarcode(clientCode, quantity, unit.SequenceCounter)
	if err != nil {
		httputil.Error(w, errors.BadRequest(err.Error()))
		return
	}

	httputil.JSON(w, http.StatusOK, LabelResponse{
		Code:    barcode.String(),
		Barcode: barcode,
	})
}
