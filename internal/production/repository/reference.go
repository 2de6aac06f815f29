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

// ReferenceProduct identifies a catalog item that production orders
// are raised against. The internal code is immutable once an order
// references it.
type ReferenceProduct struct {
	ID                string    `db:"id" json:"id"`
	InternalCode      string    `db:"internal_code" json:"codeReference"`
	ClientCode        *string   `db:"client_code" json:"codeClient,omitempty"`
	RevisionIndex     string    `db:"revision_index" json:"indice"`
	PackagingQuantity float64   `db:"packaging_quantity" json:"quantiteEmballage"`
	IsActive          bool      `db:"is_active" json:"actif"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// MatchesCode reports whether a trimmed scanned code equals either the
// internal or the client code.
func (r *ReferenceProduct) MatchesCode(code string) bool {
	if code == r.InternalCode {
		return true
	}
	return r.ClientCode != nil && code == *r.ClientCode
}

// ReferenceRepository handles reference product persistence
type ReferenceRepository struct {
	db *database.DB
}

// NewReferenceRepository creates a new reference repository
func NewReferenceRepository(db *database.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// Create creates a new reference product
func (r *ReferenceRepository) Create(ctx context.Context, ref *ReferenceProduct) error {
	if ref.ID == "" {
		ref.ID = uuid.New().String()
	}

	query := `
		INSERT INTO reference_products (
			id, internal_code, client_code, revision_index, packaging_quantity, is_active
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		ref.ID, ref.InternalCode, ref.ClientCode, ref.RevisionIndex,
		ref.PackagingQuantity, ref.IsActive,
	).Scan(&ref.CreatedAt, &ref.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a reference product by ID
func (r *ReferenceRepository) GetByID(ctx context.Context, id string) (*ReferenceProduct, error) {
	var ref ReferenceProduct
	query := `SELECT * FROM reference_products WHERE id = $1`
	if err := r.db.GetContext(ctx, &ref, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("reference product")
		}
		return nil, err
	}
	return &ref, nil
}

// GetByCode looks a reference product up by internal or client code.
// The caller is expected to have trimmed the scanned value.
func (r *ReferenceRepository) GetByCode(ctx context.Context, ext sqlx.ExtContext, code string) (*ReferenceProduct, error) {
	var ref ReferenceProduct
	query := `SELECT * FROM reference_products WHERE internal_code = $1 OR client_code = $1`
	if err := sqlx.GetContext(ctx, ext, &ref, query, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("reference product")
		}
		return nil, err
	}
	return &ref, nil
}

// List lists active reference products
func (r *ReferenceRepository) List(ctx context.Context) ([]*ReferenceProduct, error) {
	var refs []*ReferenceProduct
	query := `SELECT * FROM reference_products WHERE is_active = true ORDER BY internal_code`
	if err := r.db.SelectContext(ctx, &refs, query); err != nil {
		return nil, err
	}
	return refs, nil
}
