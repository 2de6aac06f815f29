package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// ReferenceFixture describes a reference product to seed
type ReferenceFixture struct {
	ID            string
	InternalCode  string
	ClientCode    *string
	RevisionIndex string
}

// OrderFixture describes a production order to seed
type OrderFixture struct {
	ID            string
	OrderNumber   string
	ReferenceID   string
	TotalQuantity float64
	Status        string
	LineID        *string
}

// UnitFixture describes a handling unit to seed
type UnitFixture struct {
	ID              string
	OrderID         string
	UnitNumber      string
	PlannedQuantity float64
	Status          string
	SequenceCounter int
}

// SeedReference inserts a reference product and returns its ID
func SeedReference(t *testing.T, ctx context.Context, db *sqlx.DB, f ReferenceFixture) string {
	t.Helper()
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO reference_products (id, internal_code, client_code, revision_index)
		VALUES ($1, $2, $3, $4)
	`, f.ID, f.InternalCode, f.ClientCode, f.RevisionIndex)
	require.NoError(t, err)
	return f.ID
}

// SeedOrder inserts a production order and returns its ID
func SeedOrder(t *testing.T, ctx context.Context, db *sqlx.DB, f OrderFixture) string {
	t.Helper()
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.Status == "" {
		f.Status = "EN_COURS"
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO production_orders (id, order_number, reference_id, total_quantity, status, line_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, f.ID, f.OrderNumber, f.ReferenceID, f.TotalQuantity, f.Status, f.LineID)
	require.NoError(t, err)
	return f.ID
}

// SeedUnit inserts a handling unit and returns its ID
func SeedUnit(t *testing.T, ctx context.Context, db *sqlx.DB, f UnitFixture) string {
	t.Helper()
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.Status == "" {
		f.Status = "A_SCANNER"
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO handling_units (id, order_id, unit_number, planned_quantity, status, sequence_counter)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, f.ID, f.OrderID, f.UnitNumber, f.PlannedQuantity, f.Status, f.SequenceCounter)
	require.NoError(t, err)
	return f.ID
}
