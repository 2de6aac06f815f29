package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/scanflow/scanflow-backend/pkg/database"
)

// Verification results
const (
	ResultSuccess = "SUCCES"
	ResultFailure = "ECHEC"
)

// ScanHistoryRecord is the immutable audit entry written on every
// verification attempt, success or failure. Records are never updated
// or deleted.
type ScanHistoryRecord struct {
	ID               string         `db:"id" json:"id"`
	OrderID          *string        `db:"order_id" json:"orderId,omitempty"`
	HandlingUnitID   *string        `db:"handling_unit_id" json:"handlingUnitId,omitempty"`
	ScannedReference string         `db:"scanned_reference" json:"referenceScannee"`
	ScannedQuantity  string         `db:"scanned_quantity" json:"quantiteScannee"`
	ScannedQuality   string         `db:"scanned_quality" json:"qualiteScannee"`
	Result           string         `db:"result" json:"resultatVerification"`
	ErrorType        string         `db:"error_type" json:"typeErreur"`
	Forced           bool           `db:"forced" json:"forcage"`
	Comment          string         `db:"comment" json:"commentaire"`
	Payload          types.JSONText `db:"payload" json:"payload,omitempty"`
	OperatorID       *string        `db:"operator_id" json:"operateurId,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"dateScan"`
}

// HistoryRepository handles scan history persistence
type HistoryRepository struct {
	db *database.DB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *database.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Create appends a history record. The engine calls this on ext inside
// the commit transaction for successful scans, and on the plain DB
// handle for blocking failures so the audit trail survives the rollback.
func (r *HistoryRepository) Create(ctx context.Context, ext sqlx.ExtContext, rec *ScanHistoryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if len(rec.Payload) == 0 {
		rec.Payload = types.JSONText("{}")
	}

	query := `
		INSERT INTO scan_history (
			id, order_id, handling_unit_id, scanned_reference, scanned_quantity,
			scanned_quality, result, error_type, forced, comment, payload, operator_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`

	return ext.QueryRowxContext(ctx, query,
		rec.ID, rec.OrderID, rec.HandlingUnitID, rec.ScannedReference,
		rec.ScannedQuantity, rec.ScannedQuality, rec.Result, rec.ErrorType,
		rec.Forced, rec.Comment, rec.Payload, rec.OperatorID,
	).Scan(&rec.CreatedAt)
}

// ListByOrder lists the scan history of an order, newest first
func (r *HistoryRepository) ListByOrder(ctx context.Context, orderID string) ([]*ScanHistoryRecord, error) {
	var records []*ScanHistoryRecord
	query := `SELECT * FROM scan_history WHERE order_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &records, query, orderID); err != nil {
		return nil, err
	}
	return records, nil
}
