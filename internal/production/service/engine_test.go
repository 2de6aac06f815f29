package service_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/scanflow/scanflow-backend/internal/production/events"
	"github.com/scanflow/scanflow-backend/internal/production/repository"
	"github.com/scanflow/scanflow-backend/internal/production/service"
	"github.com/scanflow/scanflow-backend/pkg/database"
	"github.com/scanflow/scanflow-backend/pkg/logger"
	"github.com/scanflow/scanflow-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOrderID = "order-1"
	testUnitID  = "unit-1"
	testRefID   = "ref-1"
)

func newTestEngine(t *testing.T) (*service.Engine, *testutil.MockDB) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	log := logger.New("test", "test")
	db := database.Wrap(mockDB.DB, log)

	engine := service.NewEngine(
		db,
		repository.NewReferenceRepository(db),
		repository.NewOrderRepository(db),
		repository.NewHandlingUnitRepository(db),
		repository.NewHistoryRepository(db),
		repository.NewLineRepository(db),
		service.NewToleranceChecker(5.0),
		events.NewPublisher(nil, log),
		log,
	)
	return engine, mockDB
}

func orderWithReferenceRows(status string) *sqlmock.Rows {
	now := time.Now()
	return testutil.MockRows(
		"id", "order_number", "reference_id", "total_quantity", "status",
		"line_id", "created_at", "closed_at",
		"reference.id", "reference.internal_code", "reference.client_code",
		"reference.revision_index", "reference.packaging_quantity",
		"reference.is_active", "reference.created_at", "reference.updated_at",
	).AddRow(
		testOrderID, "OF-100", testRefID, 100.0, status,
		nil, now, nil,
		testRefID, "REF1", "CL-482910",
		"B", 25.0,
		true, now, now,
	)
}

func unitRows(status string, planned float64) *sqlmock.Rows {
	return testutil.MockRows(
		"id", "order_id", "unit_number", "planned_quantity", "actual_quantity",
		"status", "quality", "forced", "forced_justification", "scanned_at",
		"operator_id", "sequence_counter", "comment", "created_at",
	).AddRow(
		testUnitID, testOrderID, "H1", planned, 0.0,
		status, "EN_ATTENTE", false, nil, nil,
		nil, 1, nil, time.Now(),
	)
}

func historyInsertRows() *sqlmock.Rows {
	return testutil.MockRows("created_at").AddRow(time.Now())
}

func TestCommitScan_Success(t *testing.T) {
	engine, mockDB := newTestEngine(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM production_orders o").WillReturnRows(orderWithReferenceRows("EN_COURS"))
	mockDB.ExpectQuery("FOR UPDATE").WillReturnRows(unitRows("A_SCANNER", 50))
	mockDB.ExpectQuery("INSERT INTO scan_history").WillReturnRows(historyInsertRows())
	mockDB.ExpectExec("UPDATE handling_units").WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("SELECT COUNT").WillReturnRows(testutil.MockRows("count").AddRow(1))
	mockDB.ExpectCommit()

	result, err := engine.CommitScan(context.Background(), testOrderID, service.ScanPayload{
		Reference:  "REF1",
		UnitNumber: "H1",
		Quantity:   "50",
	}, false, "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.False(t, result.AllOrderCompleted)
	assert.NotEmpty(t, result.HistoryID)
	assert.Empty(t, result.Errors)
	require.NotNil(t, result.Unit)
	assert.Equal(t, repository.UnitStatusValidated, result.Unit.Status)
	assert.Equal(t, 50.0, result.Unit.ActualQuantity)
	assert.False(t, result.Unit.Forced)

	mockDB.ExpectationsWereMet(t)
}

func TestCommitScan_ClientCodeMatchesToo(t *testing.T) {
	engine, mockDB := newTestEngine(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM production_orders o").WillReturnRows(orderWithReferenceRows("EN_COURS"))
	mockDB.ExpectQuery("FOR UPDATE").WillReturnRows(unitRows("A_SCANNER", 50))
	mockDB.ExpectQuery("INSERT INTO scan_history").WillReturnRows(historyInsertRows())
	mockDB.ExpectExec("UPDATE handling_units").WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("SELECT COUNT").WillReturnRows(testutil.MockRows("count").AddRow(3))
	mockDB.ExpectCommit()

	result, err := engine.CommitScan(context.Background(), testOrderID, service.ScanPayload{
		Reference:  "CL-482910",
		UnitNumber: "H1",
		Quantity:   "50",
	}, false, "")
	require.NoError(t, err)
	assert.True(t, result.Success)

	mockDB.ExpectationsWereMet(t)
}

func TestCommitScan_CompletesOrderOnLastUnit(t *testing.T) {
	engine, mockDB := newTestEngine(t)
	defer mockDB.Close()

	closedAt := time.Now()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM production_orders o").WillReturnRows(orderWithReferenceRows("EN_COURS"))
	mockDB.ExpectQuery("FOR UPDATE").WillReturnRows(unitRows("A_SCANNER", 50))
	mockDB.ExpectQuery("INSERT INTO scan_history").WillReturnRows(historyInsertRows())
	mockDB.ExpectExec("UPDATE handling_units").WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("SELECT COUNT").WillReturnRows(testutil.MockRows("count").AddRow(0))
	mockDB.ExpectQuery("UPDATE production_orders").WillReturnRows(testutil.MockRows("closed_at").AddRow(closedAt))
	mockDB.ExpectCommit()

	result, err := engine.CommitScan(context.Background(), testOrderID, service.ScanPayload{
		Reference:  "REF1",
		UnitNumber: "H1",
		Quantity:   "50",
	}, false, "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, result.AllOrderCompleted)
	require.NotNil(t, result.Order)
	assert.Equal(t, repository.OrderStatusComplete, result.Order.Status)
	require.NotNil(t, result.Order.ClosedAt)

	mockDB.ExpectationsWereMet(t)
}

func TestCommitScan_QuantityOutOfTolerance(t *testing.T) {
	engine, mockDB := newTestEngine(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM production_orders o").WillReturnRows(orderWithReferenceRows("EN_COURS"))
	mockDB.ExpectQuery("FOR UPDATE").WillReturnRows(unitRows("A_SCANNER", 50))
	mockDB.ExpectRollback()
	// Failure record survives the rollback, written outside the transaction
	mockDB.ExpectQuery("INSERT INTO scan_history").WillReturnRows(historyInsertRows())

	result, err := engine.CommitScan(context.Background(), testOrderID, service.ScanPayload{
		Reference:  "REF1",
		UnitNumber: "H1",
		Quantity:   "60",
	}, false, "")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, service.ErrorQuantityIncorrect, result.ErrorType)
	assert.Len(t, result.Errors, 1)
	assert.NotEmpty(t, result.HistoryID)
	require.NotNil(t, result.Expected)
	assert.Equal(t, 50.0, result.Expected.PlannedQuantity)
	require.NotNil(t, result.Scanned)
	assert.Equal(t, "60", result.Scanned.Quantity)

	mockDB.ExpectationsWereMet(t)
}

func TestCommitScan_ForcedOverridesQuantity(t *testing.T) {
	engine, mockDB := newTestEngine(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM production_orders o").WillReturnRows(orderWithReferenceRows("EN_COURS"))
	mockDB.ExpectQuery("FOR UPDATE").WillReturnRows(unitRows("A_SCANNER", 50))
	mockDB.ExpectQuery("INSERT INTO scan_history").WillReturnRows(historyInsertRows())
	mockDB.ExpectExec("UPDATE handling_units").
		WithArgs(testUnitID, repository.UnitStatusValidated, 60.0, repository.QualityConforme, true, "override approved", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("SELECT COUNT").WillReturnRows(testutil.MockRows("count").AddRow(2))
	mockDB.ExpectCommit()

	result, err := engine.CommitScan(context.Background(), testOrderID, service.ScanPayload{
		Reference:  "REF1",
		UnitNumber: "H1",
		Quantity:   "60",
	}, true, "override approved")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.Warnings)
	require.NotNil(t, result.Unit)
	assert.True(t, result.Unit.Forced)
	require.NotNil(t, result.Unit.ForcedJustification)
	assert.Equal(t, "override approved", *result.Unit.ForcedJustification)
	assert.Equal(t, 60.0, result.Unit.ActualQuantity)

	mockDB.ExpectationsWereMet(t)
}

func TestCommitScan_AlreadyScannedBlocksWithoutForce(t *testing.T) {
	engine, mockDB := newTestEngine(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM production_orders o").WillReturnRows(orderWithReferenceRows("EN_COURS"))
	mockDB.ExpectQuery("FOR UPDATE").WillReturnRows(unitRows("VALIDE", 50))
	mockDB.ExpectRollback()
	mockDB.ExpectQuery("INSERT INTO scan_history").WillReturnRows(historyInsertRows())

	result, err := engine.CommitScan(context.Background(), testOrderID, service.ScanPayload{
		Reference:  "REF1",
		UnitNumber: "H1",
		Quantity:   "50",
	}, false, "")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, service.ErrorUnitAlreadyScanned, result.ErrorType)

	mockDB.ExpectationsWereMet(t)
}

func TestCommitScan_UnitInOtherOrderNotForceable(t *testing.T) {
	engine, mockDB := newTestEngine(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM production_orders o").WillReturnRows(orderWithReferenceRows("EN_COURS"))
	mockDB.ExpectQuery("FOR UPDATE").WillReturnError(sql.ErrNoRows)
	mockDB.ExpectQuery("SELECT o.order_number").WillReturnRows(testutil.MockRows("order_number").AddRow("OF-200"))
	mockDB.ExpectRollback()
	mockDB.ExpectQuery("INSERT INTO scan_history").WillReturnRows(historyInsertRows())

	// Non-existence is never overridable, even with the force flag set
	result, err := engine.CommitScan(context.Background(), testOrderID, service.ScanPayload{
		Reference:  "REF1",
		UnitNumber: "H1",
		Quantity:   "50",
	}, true, "trying anyway")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, service.ErrorUnitInOtherOrder, result.ErrorType)
	assert.Contains(t, result.Errors[0], "OF-200")

	mockDB.ExpectationsWereMet(t)
}

func TestCommitScan_UnknownReferenceAccumulatesFirst(t *testing.T) {
	engine, mockDB := newTestEngine(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM production_orders o").WillReturnRows(orderWithReferenceRows("EN_COURS"))
	mockDB.ExpectQuery("FROM reference_products").WillReturnError(sql.ErrNoRows)
	mockDB.ExpectQuery("FOR UPDATE").WillReturnRows(unitRows("A_SCANNER", 50))
	mockDB.ExpectRollback()
	mockDB.ExpectQuery("INSERT INTO scan_history").WillReturnRows(historyInsertRows())

	// Out-of-tolerance quantity piles on but the primary tag stays on
	// the first detected condition
	result, err := engine.CommitScan(context.Background(), testOrderID, service.ScanPayload{
		Reference:  "REF9",
		UnitNumber: "H1",
		Quantity:   "60",
	}, false, "")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, service.ErrorReferenceUnknown, result.ErrorType)
	assert.Len(t, result.Errors, 2)

	mockDB.ExpectationsWereMet(t)
}

func TestCommitScan_ReferenceMismatchNamesOtherProduct(t *testing.T) {
	engine, mockDB := newTestEngine(t)
	defer mockDB.Close()

	otherRef := testutil.MockRows(
		"id", "internal_code", "client_code", "revision_index",
		"packaging_quantity", "is_active", "created_at", "updated_at",
	).AddRow("ref-2", "REF2", nil, "A", 10.0, true, time.Now(), time.Now())

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM production_orders o").WillReturnRows(orderWithReferenceRows("EN_COURS"))
	mockDB.ExpectQuery("FROM reference_products").WillReturnRows(otherRef)
	mockDB.ExpectQuery("FOR UPDATE").WillReturnRows(unitRows("A_SCANNER", 50))
	mockDB.ExpectRollback()
	mockDB.ExpectQuery("INSERT INTO scan_history").WillReturnRows(historyInsertRows())

	result, err := engine.CommitScan(context.Background(), testOrderID, service.ScanPayload{
		Reference:  "REF2",
		UnitNumber: "H1",
		Quantity:   "50",
	}, false, "")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, service.ErrorReferenceMismatch, result.ErrorType)
	assert.Contains(t, result.Errors[0], "REF2")

	mockDB.ExpectationsWereMet(t)
}

func TestCommitScan_IndiceMismatch(t *testing.T) {
	engine, mockDB := newTestEngine(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM production_orders o").WillReturnRows(orderWithReferenceRows("EN_COURS"))
	mockDB.ExpectQuery("FOR UPDATE").WillReturnRows(unitRows("A_SCANNER", 50))
	mockDB.ExpectRollback()
	mockDB.ExpectQuery("INSERT INTO scan_history").WillReturnRows(historyInsertRows())

	result, err := engine.CommitScan(context.Background(), testOrderID, service.ScanPayload{
		Reference:  "REF1",
		Indice:     "C",
		UnitNumber: "H1",
		Quantity:   "50",
	}, false, "")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, service.ErrorIndiceIncorrect, result.ErrorType)

	mockDB.ExpectationsWereMet(t)
}

func TestCommitScan_OrderNotActive(t *testing.T) {
	engine, mockDB := newTestEngine(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM production_orders o").WillReturnRows(orderWithReferenceRows("TERMINE"))
	mockDB.ExpectRollback()
	mockDB.ExpectQuery("INSERT INTO scan_history").WillReturnRows(historyInsertRows())

	result, err := engine.CommitScan(context.Background(), testOrderID, service.ScanPayload{
		Reference:  "REF1",
		UnitNumber: "H1",
		Quantity:   "50",
	}, false, "")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, service.ErrorOrderNotActive, result.ErrorType)

	mockDB.ExpectationsWereMet(t)
}

func TestCommitScan_OrderNotFound(t *testing.T) {
	engine, mockDB := newTestEngine(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM production_orders o").WillReturnError(sql.ErrNoRows)
	mockDB.ExpectRollback()
	mockDB.ExpectQuery("INSERT INTO scan_history").WillReturnRows(historyInsertRows())

	result, err := engine.CommitScan(context.Background(), "missing", service.ScanPayload{
		Reference:  "REF1",
		UnitNumber: "H1",
		Quantity:   "50",
	}, false, "")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, service.ErrorOrderNotFound, result.ErrorType)
	assert.Nil(t, result.Expected)

	mockDB.ExpectationsWereMet(t)
}

func TestCommitScan_NonConformeQualityBlocks(t *testing.T) {
	engine, mockDB := newTestEngine(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM production_orders o").WillReturnRows(orderWithReferenceRows("EN_COURS"))
	mockDB.ExpectQuery("FOR UPDATE").WillReturnRows(unitRows("A_SCANNER", 50))
	mockDB.ExpectRollback()
	mockDB.ExpectQuery("INSERT INTO scan_history").WillReturnRows(historyInsertRows())

	result, err := engine.CommitScan(context.Background(), testOrderID, service.ScanPayload{
		Reference:  "REF1",
		UnitNumber: "H1",
		Quantity:   "50",
		Quality:    repository.QualityNonConforme,
	}, false, "")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, service.ErrorQualityNonConforme, result.ErrorType)

	mockDB.ExpectationsWereMet(t)
}
