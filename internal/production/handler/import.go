package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/scanflow/scanflow-backend/internal/production/service"
	"github.com/scanflow/scanflow-backend/pkg/errors"
	"github.com/scanflow/scanflow-backend/pkg/httputil"
	"github.com/scanflow/scanflow-backend/pkg/logger"
)

// ImportHandler handles bulk handling unit imports
type ImportHandler struct {
	importer *service.Importer
	logger   *logger.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(importer *service.Importer, log *logger.Logger) *ImportHandler {
	return &ImportHandler{
		importer: importer,
		logger:   log,
	}
}

// PreviewImportRequest carries the raw spreadsheet rows
type PreviewImportRequest struct {
	Rows []map[string]interface{} `json:"lignes"`
}

// ConfirmImportRequest carries the valid rows a prior preview returned
type ConfirmImportRequest struct {
	Rows []service.PreviewRow `json:"lignes"`
}

// Preview dry-runs the import and returns per-row findings
func (h *ImportHandler) Preview(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		httputil.Error(w, errors.BadRequest("order id is required"))
		return
	}

	var req PreviewImportRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	preview, err := h.importer.PreviewImport(r.Context(), orderID, req.Rows)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, preview)
}

// Confirm performs the bulk insert of previously previewed rows
func (h *ImportHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		httputil.Error(w, errors.BadRequest("order id is required"))
		return
	}

	var req ConfirmImportRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	confirmation, err := h.importer.ConfirmImport(r.Context(), orderID, req.Rows)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, confirmation)
}
