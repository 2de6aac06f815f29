package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/scanflow/scanflow-backend/internal/production/service"
	"github.com/scanflow/scanflow-backend/pkg/errors"
	"github.com/scanflow/scanflow-backend/pkg/httputil"
	"github.com/scanflow/scanflow-backend/pkg/logger"
)

// ScanHandler exposes the interactive verification and the
// authoritative scan commit
type ScanHandler struct {
	engine *service.Engine
	logger *logger.Logger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(engine *service.Engine, log *logger.Logger) *ScanHandler {
	return &ScanHandler{
		engine: engine,
		logger: log,
	}
}

// CommitScanRequest is the full scan payload plus override flags
type CommitScanRequest struct {
	service.ScanPayload
	ForceValidation bool   `json:"validationForcee"`
	Justification   string `json:"justificationForcage"`
}

// Verify gives immediate feedback on one scanned field
func (h *ScanHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req service.VerifyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.engine.VerifyStep(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Steps returns the ordered scan sequence, optionally shaped by the
// line type given in the lineId query parameter
func (h *ScanHandler) Steps(w http.ResponseWriter, r *http.Request) {
	steps, err := h.engine.StepsForLine(r.Context(), r.URL.Query().Get("lineId"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, steps)
}

// Commit runs the authoritative scan verification for an order. A
// blocking failure is a domain outcome, not a transport error; it is
// returned as 422 with the full diagnostic payload.
func (h *ScanHandler) Commit(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		httputil.Error(w, errors.BadRequest("order id is required"))
		return
	}

	var req CommitScanRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req.ScanPayload); err != nil {
		httputil.Error(w, err)
		return
	}
	if req.ForceValidation && strings.TrimSpace(req.Justification) == "" {
		httputil.Error(w, errors.BadRequest("forced validation requires a justification"))
		return
	}

	result, err := h.engine.CommitScan(r.Context(), orderID, req.ScanPayload, req.ForceValidation, req.Justification)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if !result.Success {
		httputil.JSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}
