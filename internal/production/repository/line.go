package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/scanflow/scanflow-backend/pkg/database"
	"github.com/scanflow/scanflow-backend/pkg/errors"
)

// Production line statuses
const (
	LineStatusActive      = "active"
	LineStatusMaintenance = "maintenance"
	LineStatusStopped     = "stopped"
)

// LineTypeAirbag marks lines whose scan sequence requires the extended
// field set (revision index and quality flag).
const LineTypeAirbag = "airbag"

// ProductionLine is a physical line on the shop floor
type ProductionLine struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	Status           string    `db:"status" json:"status"`
	LineType         string    `db:"line_type" json:"type"`
	ThroughputTarget int       `db:"throughput_target" json:"throughputTarget"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// LineRepository handles production line persistence
type LineRepository struct {
	db *database.DB
}

// NewLineRepository creates a new line repository
func NewLineRepository(db *database.DB) *LineRepository {
	return &LineRepository{db: db}
}

// Create creates a new production line
func (r *LineRepository) Create(ctx context.Context, line *ProductionLine) error {
	if line.ID == "" {
		line.ID = uuid.New().String()
	}
	if line.Status == "" {
		line.Status = LineStatusActive
	}

	query := `
		INSERT INTO production_lines (id, name, status, line_type, throughput_target)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowxContext(ctx, query,
		line.ID, line.Name, line.Status, line.LineType, line.ThroughputTarget,
	).Scan(&line.CreatedAt, &line.UpdatedAt)
}

// GetByID gets a line by ID
func (r *LineRepository) GetByID(ctx context.Context, id string) (*ProductionLine, error) {
	var line ProductionLine
	query := `SELECT * FROM production_lines WHERE id = $1`
	if err := r.db.GetContext(ctx, &line, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("production line")
		}
		return nil, err
	}
	return &line, nil
}

// List lists all lines
func (r *LineRepository) List(ctx context.Context) ([]*ProductionLine, error) {
	var lines []*ProductionLine
	query := `SELECT * FROM production_lines ORDER BY name`
	if err := r.db.SelectContext(ctx, &lines, query); err != nil {
		return nil, err
	}
	return lines, nil
}

// UpdateStatus updates a line's status (driven by supervision events)
func (r *LineRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE production_lines SET status = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("production line")
	}
	return nil
}
