package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/scanflow/scanflow-backend/pkg/database"
)

// SequenceRepository issues the per-reference global counter used for
// composite label barcodes. The upsert increments atomically under the
// row lock Postgres takes for ON CONFLICT DO UPDATE, so two concurrent
// unit creations for the same reference can never draw the same value.
type SequenceRepository struct {
	db *database.DB
}

// NewSequenceRepository creates a new sequence repository
func NewSequenceRepository(db *database.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// Next draws the next counter value for a reference product. Call on
// the same transaction as the handling unit insert.
func (r *SequenceRepository) Next(ctx context.Context, ext sqlx.ExtContext, referenceID string) (int, error) {
	var next int
	query := `
		INSERT INTO reference_sequences (reference_id, last_value)
		VALUES ($1, 1)
		ON CONFLICT (reference_id)
		DO UPDATE SET last_value = reference_sequences.last_value + 1
		RETURNING last_value
	`
	if err := ext.QueryRowxContext(ctx, query, referenceID).Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}
