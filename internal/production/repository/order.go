package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/scanflow/scanflow-backend/pkg/database"
	"github.com/scanflow/scanflow-backend/pkg/errors"
)

// Production order statuses (wire values follow the plant vocabulary)
const (
	OrderStatusInProgress = "EN_COURS"
	OrderStatusComplete   = "TERMINE"
	OrderStatusCancelled  = "ANNULE"
)

// ProductionOrder is a unit of work to produce a quantity of one
// reference product. Status only moves EN_COURS→TERMINE (all units
// resolved) or EN_COURS→ANNULE (administrative).
type ProductionOrder struct {
	ID            string     `db:"id" json:"id"`
	OrderNumber   string     `db:"order_number" json:"numeroOF"`
	ReferenceID   string     `db:"reference_id" json:"referenceId"`
	TotalQuantity float64    `db:"total_quantity" json:"quantiteTotale"`
	Status        string     `db:"status" json:"statut"`
	LineID        *string    `db:"line_id" json:"ligneId,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"dateCreation"`
	ClosedAt      *time.Time `db:"closed_at" json:"dateCloture,omitempty"`
}

// OrderWithReference carries an order together with its reference product
type OrderWithReference struct {
	ProductionOrder
	Reference ReferenceProduct `db:"reference" json:"reference"`
}

// OrderRepository handles production order persistence
type OrderRepository struct {
	db *database.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *database.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create creates a new production order
func (r *OrderRepository) Create(ctx context.Context, order *ProductionOrder) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.Status == "" {
		order.Status = OrderStatusInProgress
	}

	query := `
		INSERT INTO production_orders (
			id, order_number, reference_id, total_quantity, status, line_id
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		order.ID, order.OrderNumber, order.ReferenceID,
		order.TotalQuantity, order.Status, order.LineID,
	).Scan(&order.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets an order by ID
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*ProductionOrder, error) {
	var order ProductionOrder
	query := `SELECT * FROM production_orders WHERE id = $1`
	if err := r.db.GetContext(ctx, &order, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("production order")
		}
		return nil, err
	}
	return &order, nil
}

// GetByNumber gets an order by its order number
func (r *OrderRepository) GetByNumber(ctx context.Context, ext sqlx.ExtContext, orderNumber string) (*ProductionOrder, error) {
	var order ProductionOrder
	query := `SELECT * FROM production_orders WHERE order_number = $1`
	if err := sqlx.GetContext(ctx, ext, &order, query, orderNumber); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("production order")
		}
		return nil, err
	}
	return &order, nil
}

const orderWithReferenceColumns = `
	o.id, o.order_number, o.reference_id, o.total_quantity, o.status,
	o.line_id, o.created_at, o.closed_at,
	r.id AS "reference.id",
	r.internal_code AS "reference.internal_code",
	r.client_code AS "reference.client_code",
	r.revision_index AS "reference.revision_index",
	r.packaging_quantity AS "reference.packaging_quantity",
	r.is_active AS "reference.is_active",
	r.created_at AS "reference.created_at",
	r.updated_at AS "reference.updated_at"
`

// GetWithReference loads an order joined with its reference product.
// Runs on ext so the engine can hold it inside its commit transaction.
func (r *OrderRepository) GetWithReference(ctx context.Context, ext sqlx.ExtContext, id string) (*OrderWithReference, error) {
	var ow OrderWithReference
	query := `
		SELECT ` + orderWithReferenceColumns + `
		FROM production_orders o
		JOIN reference_products r ON r.id = o.reference_id
		WHERE o.id = $1
	`
	if err := sqlx.GetContext(ctx, ext, &ow, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("production order")
		}
		return nil, err
	}
	return &ow, nil
}

// List lists orders, newest first
func (r *OrderRepository) List(ctx context.Context, status string) ([]*ProductionOrder, error) {
	var orders []*ProductionOrder
	if status != "" {
		query := `SELECT * FROM production_orders WHERE status = $1 ORDER BY created_at DESC`
		if err := r.db.SelectContext(ctx, &orders, query, status); err != nil {
			return nil, err
		}
		return orders, nil
	}
	query := `SELECT * FROM production_orders ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &orders, query); err != nil {
		return nil, err
	}
	return orders, nil
}

// Complete transitions an order to TERMINE and stamps the closure time.
// The guard on the current status keeps a concurrent commit from
// double-completing the order.
func (r *OrderRepository) Complete(ctx context.Context, ext sqlx.ExtContext, id string) (time.Time, error) {
	var closedAt time.Time
	query := `
		UPDATE production_orders
		SET status = $2, closed_at = NOW()
		WHERE id = $1 AND status = $3
		RETURNING closed_at
	`
	row := ext.QueryRowxContext(ctx, query, id, OrderStatusComplete, OrderStatusInProgress)
	if err := row.Scan(&closedAt); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, errors.Conflict("order is not in progress")
		}
		return time.Time{}, err
	}
	return closedAt, nil
}

// Cancel transitions an order to ANNULE, with the same current-status
// guard as Complete
func (r *OrderRepository) Cancel(ctx context.Context, id string) (time.Time, error) {
	var closedAt time.Time
	query := `
		UPDATE production_orders
		SET status = $2, closed_at = NOW()
		WHERE id = $1 AND status = $3
		RETURNING closed_at
	`
	row := r.db.QueryRowxContext(ctx, query, id, OrderStatusCancelled, OrderStatusInProgress)
	if err := row.Scan(&closedAt); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, errors.Conflict("order is not in progress")
		}
		return time.Time{}, err
	}
	return closedAt, nil
}
