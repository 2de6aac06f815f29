package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/scanflow/scanflow-backend/internal/production/events"
	"github.com/scanflow/scanflow-backend/internal/production/repository"
	"github.com/scanflow/scanflow-backend/pkg/database"
	apperrors "github.com/scanflow/scanflow-backend/pkg/errors"
	"github.com/scanflow/scanflow-backend/pkg/logger"
	"github.com/scanflow/scanflow-backend/pkg/operator"
)

// Interactive verification step kinds
const (
	StepReference = "reference"
	StepIndice    = "indice"
	StepOrder     = "order"
	StepUnit      = "handling_unit"
	StepQuantity  = "quantity"
	StepQuality   = "qualite"
)

// Interactive verification codes
const (
	CodeRefNotFound        = "REF_NOT_FOUND"
	CodeOrderNotFound      = "OF_NOT_FOUND"
	CodeOrderNotActive     = "OF_NOT_ACTIVE"
	CodeRefOrderMismatch   = "REF_OF_MISMATCH"
	CodeUnitWrongOrder     = "HU_WRONG_OF"
	CodeUnitNotFound       = "HU_NOT_FOUND"
	CodeUnitAlreadyScanned = "HU_ALREADY_SCANNED"
)

const successComment = "scan conforme"

// errScanBlocked aborts the commit transaction on a blocking
// verification failure so every entity write rolls back. The history
// record is written afterwards on the plain connection.
var errScanBlocked = errors.New("scan blocked")

// VerifyRequest is one interactive per-field verification call
type VerifyRequest struct {
	Step    string        `json:"step" validate:"required,oneof=reference order handling_unit"`
	Value   string        `json:"value" validate:"required"`
	Context VerifyContext `json:"context"`
}

// VerifyContext carries fields already confirmed in earlier steps
type VerifyContext struct {
	ReferenceCode string `json:"codeReference,omitempty"`
	OrderID       string `json:"orderId,omitempty"`
	OrderNumber   string `json:"numeroOF,omitempty"`
}

// VerifyResult is the structured outcome of one interactive step
type VerifyResult struct {
	OK      bool                   `json:"ok"`
	Step    string                 `json:"step"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// ScanPayload is the full set of scanned fields handed to the
// authoritative commit
type ScanPayload struct {
	Reference  string `json:"codeReference" validate:"required"`
	Indice     string `json:"indice,omitempty"`
	UnitNumber string `json:"numeroHU" validate:"required"`
	Quantity   string `json:"quantite" validate:"required"`
	Quality    string `json:"qualite,omitempty"`
}

// ExpectedValues is the diagnostic payload returned on failure so the
// operator can compare against what was scanned
type ExpectedValues struct {
	Reference       string  `json:"codeReference"`
	ClientCode      string  `json:"codeClient,omitempty"`
	Indice          string  `json:"indice,omitempty"`
	OrderNumber     string  `json:"numeroOF,omitempty"`
	PlannedQuantity float64 `json:"quantitePrevue,omitempty"`
}

// CommitResult is the outcome of an authoritative scan commit
type CommitResult struct {
	Success           bool                        `json:"success"`
	Message           string                      `json:"message,omitempty"`
	Errors            []string                    `json:"errors,omitempty"`
	ErrorType         string                      `json:"typeErreur,omitempty"`
	Expected          *ExpectedValues             `json:"expected,omitempty"`
	Scanned           *ScanPayload                `json:"scanned,omitempty"`
	HistoryID         string                      `json:"historyId,omitempty"`
	Unit              *repository.HandlingUnit    `json:"hu,omitempty"`
	Order             *repository.ProductionOrder `json:"of,omitempty"`
	Warnings          []string                    `json:"warnings,omitempty"`
	AllOrderCompleted bool                        `json:"allOrderCompleted"`
}

// ScanStep describes one entry of a line's scan sequence
type ScanStep struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

// Engine runs scan verification in both modes: stateless per-field
// feedback while the operator scans, and the authoritative transactional
// commit once every field is confirmed.
type Engine struct {
	db        *database.DB
	refs      *repository.ReferenceRepository
	orders    *repository.OrderRepository
	units     *repository.HandlingUnitRepository
	history   *repository.HistoryRepository
	lines     *repository.LineRepository
	resolver  *Resolver
	tolerance *ToleranceChecker
	publisher *events.Publisher
	logger    *logger.Logger
}

// NewEngine creates the scan verification engine
func NewEngine(
	db *database.DB,
	refs *repository.ReferenceRepository,
	orders *repository.OrderRepository,
	units *repository.HandlingUnitRepository,
	history *repository.HistoryRepository,
	lines *repository.LineRepository,
	tolerance *ToleranceChecker,
	publisher *events.Publisher,
	log *logger.Logger,
) *Engine {
	return &Engine{
		db:        db,
		refs:      refs,
		orders:    orders,
		units:     units,
		history:   history,
		lines:     lines,
		resolver:  NewResolver(db, refs, orders, units),
		tolerance: tolerance,
		publisher: publisher,
		logger:    log.WithComponent("scan-engine"),
	}
}

// VerifyStep resolves one scanned field and returns immediate feedback.
// It never persists anything.
func (e *Engine) VerifyStep(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	switch req.Step {
	case StepReference:
		return e.verifyReference(ctx, req)
	case StepOrder:
		return e.verifyOrder(ctx, req)
	case StepUnit:
		return e.verifyUnit(ctx, req)
	default:
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown verification step %q", req.Step))
	}
}

func (e *Engine) verifyReference(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	res, err := e.resolver.ResolveReference(ctx, req.Value)
	if err != nil {
		return nil, err
	}
	if res.Status == ResolutionNotFound {
		return &VerifyResult{
			Step:    StepReference,
			Code:    CodeRefNotFound,
			Message: fmt.Sprintf("reference %s inconnue", strings.TrimSpace(req.Value)),
		}, nil
	}

	return &VerifyResult{
		OK:      true,
		Step:    StepReference,
		Message: "reference reconnue",
		Data: map[string]interface{}{
			"referenceId":   res.Reference.ID,
			"codeReference": res.Reference.InternalCode,
			"indice":        res.Reference.RevisionIndex,
		},
	}, nil
}

func (e *Engine) verifyOrder(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	res, err := e.resolver.ResolveOrder(ctx, req.Value, req.Context.ReferenceCode)
	if err != nil {
		return nil, err
	}

	switch res.Status {
	case ResolutionNotFound:
		return &VerifyResult{
			Step:    StepOrder,
			Code:    CodeOrderNotFound,
			Message: fmt.Sprintf("OF %s introuvable", strings.TrimSpace(req.Value)),
		}, nil
	case ResolutionInactiveOrder:
		return &VerifyResult{
			Step:    StepOrder,
			Code:    CodeOrderNotActive,
			Message: fmt.Sprintf("OF %s n'est pas en cours (statut %s)", res.Order.OrderNumber, res.OrderStatus),
		}, nil
	case ResolutionRefOrderMismatch:
		return &VerifyResult{
			Step: StepOrder,
			Code: CodeRefOrderMismatch,
			Message: fmt.Sprintf("OF %s est lie a la reference %s, pas a %s",
				res.Order.OrderNumber, res.Order.Reference.InternalCode, strings.TrimSpace(req.Context.ReferenceCode)),
		}, nil
	}

	return &VerifyResult{
		OK:      true,
		Step:    StepOrder,
		Message: "OF reconnu",
		Data: map[string]interface{}{
			"orderId":        res.Order.ID,
			"numeroOF":       res.Order.OrderNumber,
			"quantiteTotale": res.Order.TotalQuantity,
			"codeReference":  res.Order.Reference.InternalCode,
		},
	}, nil
}

func (e *Engine) verifyUnit(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	orderID := req.Context.OrderID
	if orderID == "" {
		if req.Context.OrderNumber == "" {
			return nil, apperrors.BadRequest("handling unit verification requires an order context")
		}
		order, err := e.orders.GetByNumber(ctx, e.db, req.Context.OrderNumber)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				return &VerifyResult{
					Step:    StepUnit,
					Code:    CodeOrderNotFound,
					Message: fmt.Sprintf("OF %s introuvable", req.Context.OrderNumber),
				}, nil
			}
			return nil, err
		}
		orderID = order.ID
	}

	res, err := e.resolver.ResolveUnit(ctx, orderID, req.Value)
	if err != nil {
		return nil, err
	}

	switch res.Status {
	case ResolutionNotFound:
		return &VerifyResult{
			Step:    StepUnit,
			Code:    CodeUnitNotFound,
			Message: fmt.Sprintf("HU %s introuvable", strings.TrimSpace(req.Value)),
		}, nil
	case ResolutionFoundElsewhere:
		return &VerifyResult{
			Step:    StepUnit,
			Code:    CodeUnitWrongOrder,
			Message: fmt.Sprintf("HU %s appartient a l'OF %s", strings.TrimSpace(req.Value), res.ElsewhereOrderNumber),
			Data:    map[string]interface{}{"numeroOF": res.ElsewhereOrderNumber},
		}, nil
	case ResolutionAlreadyValidated:
		return &VerifyResult{
			Step:    StepUnit,
			Code:    CodeUnitAlreadyScanned,
			Message: fmt.Sprintf("HU %s deja scannee", res.Unit.UnitNumber),
			Data:    map[string]interface{}{"huId": res.Unit.ID},
		}, nil
	}

	return &VerifyResult{
		OK:      true,
		Step:    StepUnit,
		Message: "HU reconnue",
		Data: map[string]interface{}{
			"huId":           res.Unit.ID,
			"numeroHU":       res.Unit.UnitNumber,
			"quantitePrevue": res.Unit.PlannedQuantity,
		},
	}, nil
}

// StepsForLine returns the ordered scan sequence for a production line.
// Airbag type lines carry two extra steps: the revision index and the
// quality flag.
func (e *Engine) StepsForLine(ctx context.Context, lineID string) ([]ScanStep, error) {
	steps := []ScanStep{
		{Key: StepReference, Label: "Code reference", Required: true},
		{Key: StepOrder, Label: "Numero OF", Required: true},
		{Key: StepUnit, Label: "Numero HU", Required: true},
		{Key: StepQuantity, Label: "Quantite", Required: true},
	}

	if lineID == "" {
		return steps, nil
	}

	line, err := e.lines.GetByID(ctx, lineID)
	if err != nil {
		return nil, err
	}
	if line.LineType != repository.LineTypeAirbag {
		return steps, nil
	}

	extended := []ScanStep{
		steps[0],
		{Key: StepIndice, Label: "Indice", Required: true},
		steps[1],
		steps[2],
		steps[3],
		{Key: StepQuality, Label: "Qualite", Required: true},
	}
	return extended, nil
}

// CommitScan runs the authoritative verification of a full scan inside
// one transaction. On a blocking failure every entity write rolls back
// and only the history record survives, written outside the
// transaction. Forced validation bypasses policy violations but never
// non-existence.
func (e *Engine) CommitScan(ctx context.Context, orderID string, payload ScanPayload, force bool, justification string) (*CommitResult, error) {
	var (
		acc        ErrorAccumulator
		ow         *repository.OrderWithReference
		unit       *repository.HandlingUnit
		scannedQty float64
		qtyParsed  bool
		forced     bool
		completed  bool
		rec        *repository.ScanHistoryRecord
	)

	operatorID := operatorIDPtr(ctx)

	txErr := e.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error

		ow, err = e.orders.GetWithReference(ctx, tx, orderID)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				acc.Add(ErrorOrderNotFound, fmt.Sprintf("OF %s introuvable", orderID))
				return errScanBlocked
			}
			return err
		}
		if ow.Status != repository.OrderStatusInProgress {
			acc.Add(ErrorOrderNotActive, fmt.Sprintf("OF %s n'est pas en cours (statut %s)", ow.OrderNumber, ow.Status))
			return errScanBlocked
		}

		scannedRef := strings.TrimSpace(payload.Reference)
		if !ow.Reference.MatchesCode(scannedRef) {
			other, lookupErr := e.refs.GetByCode(ctx, tx, scannedRef)
			switch {
			case lookupErr == nil:
				acc.Add(ErrorReferenceMismatch, fmt.Sprintf(
					"reference %s appartient au produit %s, attendu %s",
					scannedRef, other.InternalCode, ow.Reference.InternalCode))
			case apperrors.Is(lookupErr, apperrors.ErrNotFound):
				acc.Add(ErrorReferenceUnknown, fmt.Sprintf("reference %s inconnue", scannedRef))
			default:
				return lookupErr
			}
		}

		if indice := strings.TrimSpace(payload.Indice); indice != "" && indice != ow.Reference.RevisionIndex {
			acc.Add(ErrorIndiceIncorrect, fmt.Sprintf(
				"indice %s incorrect, attendu %s", indice, ow.Reference.RevisionIndex))
		}

		unitNumber := strings.TrimSpace(payload.UnitNumber)
		unit, err = e.units.GetByNumberInOrderForUpdate(ctx, tx, orderID, unitNumber)
		if err != nil {
			if !apperrors.Is(err, apperrors.ErrNotFound) {
				return err
			}
			unit = nil

			otherOrder, lookupErr := e.units.FindOrderElsewhere(ctx, tx, unitNumber, orderID)
			switch {
			case lookupErr == nil:
				acc.Add(ErrorUnitInOtherOrder, fmt.Sprintf("HU %s appartient a l'OF %s", unitNumber, otherOrder))
			case apperrors.Is(lookupErr, apperrors.ErrNotFound):
				acc.Add(ErrorUnitNotFound, fmt.Sprintf("HU %s introuvable", unitNumber))
			default:
				return lookupErr
			}
		} else if unit.Status == repository.UnitStatusValidated {
			acc.Add(ErrorUnitAlreadyScanned, fmt.Sprintf("HU %s deja scannee", unit.UnitNumber))
		}

		if unit != nil {
			qty, parseErr := ParseQuantity(payload.Quantity)
			if parseErr != nil {
				acc.Add(ErrorQuantityIncorrect, fmt.Sprintf("quantite %q non numerique", payload.Quantity))
			} else {
				scannedQty = qty
				qtyParsed = true
				if check := e.tolerance.Check(unit.PlannedQuantity, qty); !check.Within {
					acc.Add(ErrorQuantityIncorrect, fmt.Sprintf(
						"quantite %.0f hors tolerance (%.1f%% d'ecart, prevu %.0f)",
						qty, check.PercentDiff, unit.PlannedQuantity))
				}
			}
		}

		if strings.TrimSpace(payload.Quality) == repository.QualityNonConforme {
			acc.Add(ErrorQualityNonConforme, "qualite non conforme")
		}

		forced = force && acc.HasErrors() && acc.Overridable() && unit != nil && qtyParsed
		if acc.HasErrors() && !forced {
			return errScanBlocked
		}

		rec = e.buildHistory(ow, unit, payload, &acc, forced, operatorID)
		rec.Result = repository.ResultSuccess
		if err := e.history.Create(ctx, tx, rec); err != nil {
			return err
		}

		var justificationPtr *string
		if forced {
			justificationPtr = &justification
		}
		quality := strings.TrimSpace(payload.Quality)
		if quality == "" {
			quality = repository.QualityConforme
		}
		validation := repository.UnitValidation{
			ActualQuantity: scannedQty,
			Quality:        quality,
			Forced:         forced,
			Justification:  justificationPtr,
			OperatorID:     operatorID,
		}
		if err := e.units.Validate(ctx, tx, unit.ID, validation); err != nil {
			return err
		}

		pending, err := e.units.CountPending(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if pending == 0 {
			closedAt, err := e.orders.Complete(ctx, tx, orderID)
			if err != nil {
				return err
			}
			ow.Status = repository.OrderStatusComplete
			ow.ClosedAt = &closedAt
			completed = true
		}
		return nil
	})

	if txErr != nil {
		if !errors.Is(txErr, errScanBlocked) {
			return nil, txErr
		}
		return e.recordBlockedScan(ctx, orderID, ow, unit, payload, &acc, operatorID)
	}

	unit.Status = repository.UnitStatusValidated
	unit.ActualQuantity = scannedQty
	unit.Quality = strings.TrimSpace(payload.Quality)
	if unit.Quality == "" {
		unit.Quality = repository.QualityConforme
	}
	unit.Forced = forced
	if forced {
		unit.ForcedJustification = &justification
	}
	unit.OperatorID = operatorID

	e.publisher.ScanRecorded(ctx, rec, ow.OrderNumber, unit.UnitNumber, scannedQty)
	if completed {
		e.publisher.OrderCompleted(ctx, &ow.ProductionOrder)
	}

	message := "scan valide"
	var warnings []string
	if forced {
		message = "scan valide en forcage"
		warnings = acc.Messages()
	}

	e.logger.Info().
		Str("order_number", ow.OrderNumber).
		Str("unit_number", unit.UnitNumber).
		Bool("forced", forced).
		Bool("order_completed", completed).
		Msg("scan committed")

	return &CommitResult{
		Success:           true,
		Message:           message,
		HistoryID:         rec.ID,
		Unit:              unit,
		Order:             &ow.ProductionOrder,
		Warnings:          warnings,
		AllOrderCompleted: completed,
	}, nil
}

// recordBlockedScan persists the audit record of a blocking failure on
// the plain connection, after the commit transaction rolled back.
func (e *Engine) recordBlockedScan(
	ctx context.Context,
	orderID string,
	ow *repository.OrderWithReference,
	unit *repository.HandlingUnit,
	payload ScanPayload,
	acc *ErrorAccumulator,
	operatorID *string,
) (*CommitResult, error) {
	rec := e.buildHistory(ow, unit, payload, acc, false, operatorID)
	rec.Result = repository.ResultFailure

	if err := e.history.Create(ctx, e.db, rec); err != nil {
		e.logger.Error().Err(err).Str("order_id", orderID).Msg("failed to persist scan failure record")
		return nil, err
	}

	var (
		expected    *ExpectedValues
		orderNumber string
		unitNumber  string
	)
	if ow != nil {
		orderNumber = ow.OrderNumber
		expected = &ExpectedValues{
			Reference:   ow.Reference.InternalCode,
			Indice:      ow.Reference.RevisionIndex,
			OrderNumber: ow.OrderNumber,
		}
		if ow.Reference.ClientCode != nil {
			expected.ClientCode = *ow.Reference.ClientCode
		}
		if unit != nil {
			expected.PlannedQuantity = unit.PlannedQuantity
		}
	}
	if unit != nil {
		unitNumber = unit.UnitNumber
	}

	e.publisher.ScanRejected(ctx, rec, orderNumber, unitNumber, 0)

	e.logger.Info().
		Str("order_id", orderID).
		Str("error_type", acc.Primary()).
		Int("error_count", len(acc.Messages())).
		Msg("scan blocked")

	return &CommitResult{
		Success:   false,
		Message:   "scan refuse",
		Errors:    acc.Messages(),
		ErrorType: acc.Primary(),
		Expected:  expected,
		Scanned:   &payload,
		HistoryID: rec.ID,
	}, nil
}

func (e *Engine) buildHistory(
	ow *repository.OrderWithReference,
	unit *repository.HandlingUnit,
	payload ScanPayload,
	acc *ErrorAccumulator,
	forced bool,
	operatorID *string,
) *repository.ScanHistoryRecord {
	rec := &repository.ScanHistoryRecord{
		ScannedReference: strings.TrimSpace(payload.Reference),
		ScannedQuantity:  strings.TrimSpace(payload.Quantity),
		ScannedQuality:   strings.TrimSpace(payload.Quality),
		ErrorType:        acc.Primary(),
		Forced:           forced,
		Comment:          successComment,
		OperatorID:       operatorID,
	}
	if acc.HasErrors() {
		rec.Comment = strings.Join(acc.Messages(), "; ")
	}
	if ow != nil {
		rec.OrderID = &ow.ID
	}
	if unit != nil {
		rec.HandlingUnitID = &unit.ID
	}
	if raw, err := payloadJSON(payload); err == nil {
		rec.Payload = raw
	}
	return rec
}

func operatorIDPtr(ctx context.Context) *string {
	if id := operator.IDFromContext(ctx); id != "" {
		return &id
	}
	return nil
}

func payloadJSON(payload ScanPayload) (types.JSONText, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return types.JSONText(raw), nil
}
