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

// Handling unit statuses
const (
	UnitStatusToScan    = "A_SCANNER"
	UnitStatusScanned   = "SCANNE"
	UnitStatusValidated = "VALIDE"
	UnitStatusRejected  = "REJETE"
)

// Quality flags
const (
	QualityConforme    = "CONFORME"
	QualityNonConforme = "NON_CONFORME"
	QualityPending     = "EN_ATTENTE"
)

// HandlingUnit is a physical sub-batch within a production order. The
// unit number is unique within its order but may recur in other orders.
type HandlingUnit struct {
	ID                  string     `db:"id" json:"id"`
	OrderID             string     `db:"order_id" json:"orderId"`
	UnitNumber          string     `db:"unit_number" json:"numeroHU"`
	PlannedQuantity     float64    `db:"planned_quantity" json:"quantitePrevue"`
	ActualQuantity      float64    `db:"actual_quantity" json:"quantiteReelle"`
	Status              string     `db:"status" json:"statut"`
	Quality             string     `db:"quality" json:"qualite"`
	Forced              bool       `db:"forced" json:"validationForcee"`
	ForcedJustification *string    `db:"forced_justification" json:"justificationForcage,omitempty"`
	ScannedAt           *time.Time `db:"scanned_at" json:"dateScan,omitempty"`
	OperatorID          *string    `db:"operator_id" json:"operateurId,omitempty"`
	SequenceCounter     int        `db:"sequence_counter" json:"compteurHU"`
	Comment             *string    `db:"comment" json:"commentaire,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
}

// UnitValidation carries the fields written when a unit passes (or is
// forced through) the authoritative scan commit.
type UnitValidation struct {
	ActualQuantity float64
	Quality        string
	Forced         bool
	Justification  *string
	OperatorID     *string
}

// HandlingUnitRepository handles handling unit persistence
type HandlingUnitRepository struct {
	db *database.DB
}

// NewHandlingUnitRepository creates a new handling unit repository
func NewHandlingUnitRepository(db *database.DB) *HandlingUnitRepository {
	return &HandlingUnitRepository{db: db}
}

// Create creates a single handling unit
func (r *HandlingUnitRepository) Create(ctx context.Context, ext sqlx.ExtContext, unit *HandlingUnit) error {
	if unit.ID == "" {
		unit.ID = uuid.New().String()
	}
	if unit.Status == "" {
		unit.Status = UnitStatusToScan
	}
	if unit.Quality == "" {
		unit.Quality = QualityPending
	}

	query := `
		INSERT INTO handling_units (
			id, order_id, unit_number, planned_quantity, actual_quantity,
			status, quality, sequence_counter, comment
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := ext.QueryRowxContext(ctx, query,
		unit.ID, unit.OrderID, unit.UnitNumber, unit.PlannedQuantity,
		unit.ActualQuantity, unit.Status, unit.Quality,
		unit.SequenceCounter, unit.Comment,
	).Scan(&unit.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a handling unit by ID
func (r *HandlingUnitRepository) GetByID(ctx context.Context, id string) (*HandlingUnit, error) {
	var unit HandlingUnit
	query := `SELECT * FROM handling_units WHERE id = $1`
	if err := r.db.GetContext(ctx, &unit, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("handling unit")
		}
		return nil, err
	}
	return &unit, nil
}

// GetByNumberInOrder resolves a unit number scoped to one order
func (r *HandlingUnitRepository) GetByNumberInOrder(ctx context.Context, ext sqlx.ExtContext, orderID, unitNumber string) (*HandlingUnit, error) {
	var unit HandlingUnit
	query := `SELECT * FROM handling_units WHERE order_id = $1 AND unit_number = $2`
	if err := sqlx.GetContext(ctx, ext, &unit, query, orderID, unitNumber); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("handling unit")
		}
		return nil, err
	}
	return &unit, nil
}

// GetByNumberInOrderForUpdate is GetByNumberInOrder with a row lock so
// two concurrent commits cannot validate the same unit.
func (r *HandlingUnitRepository) GetByNumberInOrderForUpdate(ctx context.Context, ext sqlx.ExtContext, orderID, unitNumber string) (*HandlingUnit, error) {
	var unit HandlingUnit
	query := `SELECT * FROM handling_units WHERE order_id = $1 AND unit_number = $2 FOR UPDATE`
	if err := sqlx.GetContext(ctx, ext, &unit, query, orderID, unitNumber); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("handling unit")
		}
		return nil, err
	}
	return &unit, nil
}

// FindOrderElsewhere reports the order number of another order carrying
// this unit number, or ErrNotFound when the number exists nowhere else.
func (r *HandlingUnitRepository) FindOrderElsewhere(ctx context.Context, ext sqlx.ExtContext, unitNumber, excludeOrderID string) (string, error) {
	var orderNumber string
	query := `
		SELECT o.order_number
		FROM handling_units hu
		JOIN production_orders o ON o.id = hu.order_id
		WHERE hu.unit_number = $1 AND hu.order_id <> $2
		ORDER BY hu.created_at DESC
		LIMIT 1
	`
	if err := sqlx.GetContext(ctx, ext, &orderNumber, query, unitNumber, excludeOrderID); err != nil {
		if err == sql.ErrNoRows {
			return "", errors.NotFound("handling unit")
		}
		return "", err
	}
	return orderNumber, nil
}

// Validate marks a unit VALIDE and writes the scan outcome fields
func (r *HandlingUnitRepository) Validate(ctx context.Context, ext sqlx.ExtContext, id string, v UnitValidation) error {
	query := `
		UPDATE handling_units
		SET status = $2, actual_quantity = $3, quality = $4, forced = $5,
		    forced_justification = $6, operator_id = $7, scanned_at = NOW()
		WHERE id = $1
	`
	result, err := ext.ExecContext(ctx, query,
		id, UnitStatusValidated, v.ActualQuantity, v.Quality,
		v.Forced, v.Justification, v.OperatorID,
	)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("handling unit")
	}
	return nil
}

// Reject marks a unit REJETE (administrative action)
func (r *HandlingUnitRepository) Reject(ctx context.Context, id string) error {
	query := `UPDATE handling_units SET status = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, UnitStatusRejected)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("handling unit")
	}
	return nil
}

// CountPending counts units of an order that still block completion
// (anything not yet VALIDE)
func (r *HandlingUnitRepository) CountPending(ctx context.Context, ext sqlx.ExtContext, orderID string) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM handling_units
		WHERE order_id = $1 AND status IN ($2, $3, $4)
	`
	err := sqlx.GetContext(ctx, ext, &count, query,
		orderID, UnitStatusToScan, UnitStatusScanned, UnitStatusRejected)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListByOrder lists the units of an order
func (r *HandlingUnitRepository) ListByOrder(ctx context.Context, orderID string) ([]*HandlingUnit, error) {
	var units []*HandlingUnit
	query := `SELECT * FROM handling_units WHERE order_id = $1 ORDER BY unit_number`
	if err := r.db.SelectContext(ctx, &units, query, orderID); err != nil {
		return nil, err
	}
	return units, nil
}

// ListNumbersByOrder returns the unit numbers already persisted for an
// order (used by the import preview to detect duplicates)
func (r *HandlingUnitRepository) ListNumbersByOrder(ctx context.Context, orderID string) ([]string, error) {
	var numbers []string
	query := `SELECT unit_number FROM handling_units WHERE order_id = $1`
	if err := r.db.SelectContext(ctx, &numbers, query, orderID); err != nil {
		return nil, err
	}
	return numbers, nil
}
