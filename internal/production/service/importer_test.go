package service_test

import (
	"context"
	"fmt"
	"strings"
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

func newTestImporter(t *testing.T) (*service.Importer, *testutil.MockDB) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	log := logger.New("test", "test")
	db := database.Wrap(mockDB.DB, log)

	importer := service.NewImporter(
		db,
		repository.NewOrderRepository(db),
		repository.NewHandlingUnitRepository(db),
		repository.NewSequenceRepository(db),
		events.NewPublisher(nil, log),
		log,
		1000, 5.0, 500,
	)
	return importer, mockDB
}

func plainOrderRows(totalQuantity float64) *sqlmock.Rows {
	return testutil.MockRows(
		"id", "order_number", "reference_id", "total_quantity", "status",
		"line_id", "created_at", "closed_at",
	).AddRow(testOrderID, "OF-100", testRefID, totalQuantity, "EN_COURS", nil, time.Now(), nil)
}

func expectPreviewLookups(mockDB *testutil.MockDB, totalQuantity float64, existingUnits ...string) {
	mockDB.ExpectQuery("FROM production_orders WHERE id").WillReturnRows(plainOrderRows(totalQuantity))
	numberRows := testutil.MockRows("unit_number")
	for _, n := range existingUnits {
		numberRows.AddRow(n)
	}
	mockDB.ExpectQuery("SELECT unit_number FROM handling_units").WillReturnRows(numberRows)
}

func TestPreviewImport_ValidRows(t *testing.T) {
	importer, mockDB := newTestImporter(t)
	defer mockDB.Close()

	expectPreviewLookups(mockDB, 100)

	preview, err := importer.PreviewImport(context.Background(), testOrderID, []map[string]interface{}{
		{"numeroHU": "H1", "quantite": 50.0},
		{"NumeroHU": "H2", "Quantite": "48"},
	})
	require.NoError(t, err)

	assert.True(t, preview.Success)
	assert.Equal(t, 2, preview.TotalLines)
	assert.Equal(t, 2, preview.ValidLines)
	assert.Empty(t, preview.Errors)
	assert.Equal(t, 98.0, preview.GlobalStats.TotalImportQuantity)
	assert.InDelta(t, 2.0, preview.GlobalStats.DeviationPercent, 0.001)

	mockDB.ExpectationsWereMet(t)
}

func TestPreviewImport_KeyCasingTolerated(t *testing.T) {
	importer, mockDB := newTestImporter(t)
	defer mockDB.Close()

	expectPreviewLookups(mockDB, 100)

	preview, err := importer.PreviewImport(context.Background(), testOrderID, []map[string]interface{}{
		{"NUMEROHU": "H1", "QUANTITE": 100.0},
		{"numero_hu": "H2", "qty": 1.0},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, preview.ValidLines)

	mockDB.ExpectationsWereMet(t)
}

func TestPreviewImport_BlockingErrors(t *testing.T) {
	importer, mockDB := newTestImporter(t)
	defer mockDB.Close()

	expectPreviewLookups(mockDB, 100, "H9")

	preview, err := importer.PreviewImport(context.Background(), testOrderID, []map[string]interface{}{
		{"quantite": 10.0},                       // missing unit number
		{"numeroHU": "H1", "quantite": 50.0},     // valid
		{"numeroHU": "H1", "quantite": 20.0},     // duplicate in file
		{"numeroHU": "H9", "quantite": 20.0},     // already persisted
		{"numeroHU": "H2"},                       // missing quantity
		{"numeroHU": "H3", "quantite": "abc"},    // non numeric
		{"numeroHU": "H4", "quantite": -5.0},     // non positive
		{"numeroHU": "H5", "quantite": 45.0},     // valid
	})
	require.NoError(t, err)

	assert.False(t, preview.Success)
	assert.Equal(t, 8, preview.TotalLines)
	assert.Equal(t, 2, preview.ValidLines)
	require.Len(t, preview.Errors, 6)

	codes := make([]string, 0, len(preview.Errors))
	for _, e := range preview.Errors {
		codes = append(codes, e.Code)
	}
	assert.Equal(t, []string{
		service.ImportErrMissingUnit,
		service.ImportErrDuplicateInFile,
		service.ImportErrDuplicatePersisted,
		service.ImportErrMissingQuantity,
		service.ImportErrNonNumericQuantity,
		service.ImportErrInvalidQuantity,
	}, codes)

	// Rejected rows never appear in the preview data
	for _, row := range preview.PreviewData {
		assert.NotEqual(t, "H3", row.UnitNumber)
	}

	mockDB.ExpectationsWereMet(t)
}

func TestPreviewImport_CommentTruncatedAsWarning(t *testing.T) {
	importer, mockDB := newTestImporter(t)
	defer mockDB.Close()

	expectPreviewLookups(mockDB, 50)

	longComment := strings.Repeat("x", 600)
	preview, err := importer.PreviewImport(context.Background(), testOrderID, []map[string]interface{}{
		{"numeroHU": "H1", "quantite": 50.0, "commentaire": longComment},
	})
	require.NoError(t, err)

	assert.True(t, preview.Success)
	require.Len(t, preview.Warnings, 1)
	assert.Equal(t, service.ImportWarnCommentTruncated, preview.Warnings[0].Code)
	require.Len(t, preview.PreviewData, 1)
	assert.Len(t, preview.PreviewData[0].Comment, 500)

	mockDB.ExpectationsWereMet(t)
}

func TestPreviewImport_GlobalDeviationWarning(t *testing.T) {
	importer, mockDB := newTestImporter(t)
	defer mockDB.Close()

	expectPreviewLookups(mockDB, 100)

	preview, err := importer.PreviewImport(context.Background(), testOrderID, []map[string]interface{}{
		{"numeroHU": "H1", "quantite": 50.0},
	})
	require.NoError(t, err)

	assert.True(t, preview.Success)
	require.Len(t, preview.Warnings, 1)
	assert.Equal(t, service.ImportWarnGlobalDeviation, preview.Warnings[0].Code)
	assert.InDelta(t, 50.0, preview.GlobalStats.DeviationPercent, 0.001)

	mockDB.ExpectationsWereMet(t)
}

func TestPreviewImport_TooManyRowsRejectedOutright(t *testing.T) {
	importer, mockDB := newTestImporter(t)
	defer mockDB.Close()

	// Only the order lookup runs, no row is processed
	mockDB.ExpectQuery("FROM production_orders WHERE id").WillReturnRows(plainOrderRows(100))

	rows := make([]map[string]interface{}, 1001)
	for i := range rows {
		rows[i] = map[string]interface{}{"numeroHU": fmt.Sprintf("H%d", i), "quantite": 1.0}
	}

	preview, err := importer.PreviewImport(context.Background(), testOrderID, rows)
	require.NoError(t, err)

	assert.False(t, preview.Success)
	assert.Equal(t, 0, preview.ValidLines)
	require.Len(t, preview.Errors, 1)
	assert.Equal(t, service.ImportErrTooManyRows, preview.Errors[0].Code)
	assert.Empty(t, preview.PreviewData)

	mockDB.ExpectationsWereMet(t)
}

func TestConfirmImport_InsertsUnitsWithSequenceCounters(t *testing.T) {
	importer, mockDB := newTestImporter(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM production_orders o").WillReturnRows(orderWithReferenceRows("EN_COURS"))
	mockDB.ExpectQuery("INSERT INTO reference_sequences").WillReturnRows(testutil.MockRows("last_value").AddRow(7))
	mockDB.ExpectQuery("INSERT INTO handling_units").WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
	mockDB.ExpectQuery("INSERT INTO reference_sequences").WillReturnRows(testutil.MockRows("last_value").AddRow(8))
	mockDB.ExpectQuery("INSERT INTO handling_units").WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
	mockDB.ExpectCommit()

	confirmation, err := importer.ConfirmImport(context.Background(), testOrderID, []service.PreviewRow{
		{Line: 1, UnitNumber: "H1", Quantity: 50},
		{Line: 2, UnitNumber: "H2", Quantity: 48},
	})
	require.NoError(t, err)

	assert.True(t, confirmation.Success)
	assert.Equal(t, 2, confirmation.Count)

	mockDB.ExpectationsWereMet(t)
}

func TestConfirmImport_EmptyRowsRejected(t *testing.T) {
	importer, mockDB := newTestImporter(t)
	defer mockDB.Close()

	_, err := importer.ConfirmImport(context.Background(), testOrderID, nil)
	require.Error(t, err)
}
