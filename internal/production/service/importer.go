package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/scanflow/scanflow-backend/internal/production/events"
	"github.com/scanflow/scanflow-backend/internal/production/repository"
	"github.com/scanflow/scanflow-backend/pkg/database"
	apperrors "github.com/scanflow/scanflow-backend/pkg/errors"
	"github.com/scanflow/scanflow-backend/pkg/logger"
)

// Import defaults
const (
	DefaultImportMaxRows              = 1000
	DefaultImportDeviationWarnPercent = 5.0
	DefaultImportCommentMaxLen        = 500
)

// Import issue codes. Blocking codes abandon the row; warning codes
// keep it.
const (
	ImportErrMissingUnit        = "HU_MANQUANT"
	ImportErrDuplicateInFile    = "HU_DOUBLON_FICHIER"
	ImportErrDuplicatePersisted = "HU_DOUBLON_EXISTANT"
	ImportErrMissingQuantity    = "QUANTITE_MANQUANTE"
	ImportErrNonNumericQuantity = "QUANTITE_NON_NUMERIQUE"
	ImportErrInvalidQuantity    = "QUANTITE_INVALIDE"
	ImportErrTooManyRows        = "FICHIER_TROP_GRAND"
	ImportWarnCommentTruncated  = "COMMENTAIRE_TRONQUE"
	ImportWarnGlobalDeviation   = "ECART_GLOBAL"
)

// Spreadsheet exports disagree on header casing and naming; each
// logical field accepts a fixed set of aliases, matched after
// lowercasing and stripping separators.
var importFieldAliases = map[string][]string{
	"numeroHU":    {"numerohu", "hu", "nohu", "unitnumber"},
	"quantite":    {"quantite", "quantiteprevue", "quantity", "qty"},
	"commentaire": {"commentaire", "comment", "commentaires"},
}

// ImportIssue tags one preview finding with its source line
type ImportIssue struct {
	Line    int    `json:"ligne"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PreviewRow is one validated row kept by the preview. Confirm inserts
// these verbatim.
type PreviewRow struct {
	Line       int     `json:"ligne"`
	UnitNumber string  `json:"numeroHU"`
	Quantity   float64 `json:"quantite"`
	Comment    string  `json:"commentaire,omitempty"`
}

// ImportStats aggregates the declared versus imported totals
type ImportStats struct {
	TotalOrderQuantity  float64 `json:"totalOfQty"`
	TotalImportQuantity float64 `json:"totalImportQty"`
	DeviationPercent    float64 `json:"deviationPercent"`
}

// ImportPreview is the dry-run outcome of a bulk import
type ImportPreview struct {
	Success     bool          `json:"success"`
	TotalLines  int           `json:"totalLines"`
	ValidLines  int           `json:"validLines"`
	Errors      []ImportIssue `json:"errors"`
	Warnings    []ImportIssue `json:"warnings"`
	PreviewData []PreviewRow  `json:"previewData"`
	GlobalStats ImportStats   `json:"globalStats"`
}

// ImportConfirmation is the outcome of a confirmed bulk insert
type ImportConfirmation struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// Importer validates and ingests tabular handling unit rows. The
// preview phase is read only; confirm trusts the preview's valid rows
// and performs the bulk insert.
type Importer struct {
	db        *database.DB
	orders    *repository.OrderRepository
	units     *repository.HandlingUnitRepository
	sequences *repository.SequenceRepository
	publisher *events.Publisher
	logger    *logger.Logger

	maxRows              int
	deviationWarnPercent float64
	commentMaxLen        int
}

// NewImporter creates a bulk importer. Non-positive limits fall back to
// the defaults.
func NewImporter(
	db *database.DB,
	orders *repository.OrderRepository,
	units *repository.HandlingUnitRepository,
	sequences *repository.SequenceRepository,
	publisher *events.Publisher,
	log *logger.Logger,
	maxRows int,
	deviationWarnPercent float64,
	commentMaxLen int,
) *Importer {
	if maxRows <= 0 {
		maxRows = DefaultImportMaxRows
	}
	if deviationWarnPercent <= 0 {
		deviationWarnPercent = DefaultImportDeviationWarnPercent
	}
	if commentMaxLen <= 0 {
		commentMaxLen = DefaultImportCommentMaxLen
	}
	return &Importer{
		db:                   db,
		orders:               orders,
		units:                units,
		sequences:            sequences,
		publisher:            publisher,
		logger:               log.WithComponent("importer"),
		maxRows:              maxRows,
		deviationWarnPercent: deviationWarnPercent,
		commentMaxLen:        commentMaxLen,
	}
}

// PreviewImport validates rows against the order without persisting
// anything. Each row is checked independently; a blocking finding
// abandons the row, a warning keeps it.
func (i *Importer) PreviewImport(ctx context.Context, orderID string, rows []map[string]interface{}) (*ImportPreview, error) {
	order, err := i.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != repository.OrderStatusInProgress {
		return nil, apperrors.Conflict(fmt.Sprintf("OF %s n'est pas en cours", order.OrderNumber))
	}

	preview := &ImportPreview{
		TotalLines:  len(rows),
		Errors:      []ImportIssue{},
		Warnings:    []ImportIssue{},
		PreviewData: []PreviewRow{},
		GlobalStats: ImportStats{TotalOrderQuantity: order.TotalQuantity},
	}

	if len(rows) > i.maxRows {
		preview.Errors = append(preview.Errors, ImportIssue{
			Code:    ImportErrTooManyRows,
			Message: fmt.Sprintf("fichier de %d lignes, maximum %d", len(rows), i.maxRows),
		})
		return preview, nil
	}

	persisted, err := i.units.ListNumbersByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]bool, len(persisted))
	for _, n := range persisted {
		existing[n] = true
	}

	seenInFile := make(map[string]bool, len(rows))

	for idx, row := range rows {
		line := idx + 1

		unitNumber := strings.TrimSpace(stringField(row, importFieldAliases["numeroHU"]))
		if unitNumber == "" {
			preview.Errors = append(preview.Errors, ImportIssue{
				Line: line, Code: ImportErrMissingUnit,
				Message: "numero HU manquant",
			})
			continue
		}
		if seenInFile[unitNumber] {
			preview.Errors = append(preview.Errors, ImportIssue{
				Line: line, Code: ImportErrDuplicateInFile,
				Message: fmt.Sprintf("HU %s en doublon dans le fichier", unitNumber),
			})
			continue
		}
		if existing[unitNumber] {
			preview.Errors = append(preview.Errors, ImportIssue{
				Line: line, Code: ImportErrDuplicatePersisted,
				Message: fmt.Sprintf("HU %s existe deja sur cet OF", unitNumber),
			})
			continue
		}

		rawQty, present := rawField(row, importFieldAliases["quantite"])
		if !present || strings.TrimSpace(fmt.Sprintf("%v", rawQty)) == "" {
			preview.Errors = append(preview.Errors, ImportIssue{
				Line: line, Code: ImportErrMissingQuantity,
				Message: fmt.Sprintf("quantite manquante pour HU %s", unitNumber),
			})
			continue
		}
		qty, numeric := numericValue(rawQty)
		if !numeric {
			preview.Errors = append(preview.Errors, ImportIssue{
				Line: line, Code: ImportErrNonNumericQuantity,
				Message: fmt.Sprintf("quantite %q non numerique pour HU %s", fmt.Sprintf("%v", rawQty), unitNumber),
			})
			continue
		}
		if qty <= 0 {
			preview.Errors = append(preview.Errors, ImportIssue{
				Line: line, Code: ImportErrInvalidQuantity,
				Message: fmt.Sprintf("quantite %.0f invalide pour HU %s", qty, unitNumber),
			})
			continue
		}

		comment := stringField(row, importFieldAliases["commentaire"])
		if len(comment) > i.commentMaxLen {
			comment = comment[:i.commentMaxLen]
			preview.Warnings = append(preview.Warnings, ImportIssue{
				Line: line, Code: ImportWarnCommentTruncated,
				Message: fmt.Sprintf("commentaire tronque a %d caracteres pour HU %s", i.commentMaxLen, unitNumber),
			})
		}

		seenInFile[unitNumber] = true
		preview.PreviewData = append(preview.PreviewData, PreviewRow{
			Line:       line,
			UnitNumber: unitNumber,
			Quantity:   qty,
			Comment:    comment,
		})
		preview.GlobalStats.TotalImportQuantity += qty
	}

	preview.ValidLines = len(preview.PreviewData)
	preview.Success = len(preview.Errors) == 0

	if order.TotalQuantity > 0 {
		deviation := math.Abs(preview.GlobalStats.TotalImportQuantity-order.TotalQuantity) / order.TotalQuantity * 100
		preview.GlobalStats.DeviationPercent = deviation
		if deviation > i.deviationWarnPercent {
			preview.Warnings = append(preview.Warnings, ImportIssue{
				Code: ImportWarnGlobalDeviation,
				Message: fmt.Sprintf("ecart global de %.1f%% entre quantite OF (%.0f) et quantite importee (%.0f)",
					deviation, order.TotalQuantity, preview.GlobalStats.TotalImportQuantity),
			})
		}
	}

	return preview, nil
}

// ConfirmImport inserts the rows a prior preview validated. Rows are
// trusted as-is; every unit starts TO_SCAN with zero actual quantity
// and draws its sequence counter inside the insert transaction.
func (i *Importer) ConfirmImport(ctx context.Context, orderID string, rows []PreviewRow) (*ImportConfirmation, error) {
	if len(rows) == 0 {
		return nil, apperrors.BadRequest("no rows to import")
	}
	if len(rows) > i.maxRows {
		return nil, apperrors.BadRequest(fmt.Sprintf("fichier de %d lignes, maximum %d", len(rows), i.maxRows))
	}

	var order *repository.OrderWithReference
	err := i.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		order, err = i.orders.GetWithReference(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != repository.OrderStatusInProgress {
			return apperrors.Conflict(fmt.Sprintf("OF %s n'est pas en cours", order.OrderNumber))
		}

		for _, row := range rows {
			counter, err := i.sequences.Next(ctx, tx, order.ReferenceID)
			if err != nil {
				return err
			}

			unit := &repository.HandlingUnit{
				OrderID:         orderID,
				UnitNumber:      row.UnitNumber,
				PlannedQuantity: row.Quantity,
				SequenceCounter: counter,
			}
			if row.Comment != "" {
				comment := row.Comment
				unit.Comment = &comment
			}
			if err := i.units.Create(ctx, tx, unit); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	i.publisher.UnitsImported(ctx, &order.ProductionOrder, len(rows))

	i.logger.Info().
		Str("order_number", order.OrderNumber).
		Int("count", len(rows)).
		Msg("handling units imported")

	return &ImportConfirmation{
		Success: true,
		Count:   len(rows),
		Message: fmt.Sprintf("%d HU importees sur l'OF %s", len(rows), order.OrderNumber),
	}, nil
}

// rawField resolves a logical field against its accepted header
// aliases, case-insensitively and ignoring separators.
func rawField(row map[string]interface{}, aliases []string) (interface{}, bool) {
	for key, value := range row {
		normalized := normalizeKey(key)
		for _, alias := range aliases {
			if normalized == alias {
				return value, true
			}
		}
	}
	return nil, false
}

func stringField(row map[string]interface{}, aliases []string) string {
	value, ok := rawField(row, aliases)
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func numericValue(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		qty, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return qty, true
	default:
		return 0, false
	}
}

func normalizeKey(key string) string {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.ReplaceAll(normalized, "_", "")
	normalized = strings.ReplaceAll(normalized, " ", "")
	normalized = strings.ReplaceAll(normalized, "-", "")
	return normalized
}
