package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/scanflow/scanflow-backend/internal/production/repository"
	"github.com/scanflow/scanflow-backend/pkg/errors"
	"github.com/scanflow/scanflow-backend/pkg/httputil"
	"github.com/scanflow/scanflow-backend/pkg/logger"
)

// LineHandler handles production line administration
type LineHandler struct {
	lines  *repository.LineRepository
	logger *logger.Logger
}

// NewLineHandler creates a new line handler
func NewLineHandler(lines *repository.LineRepository, log *logger.Logger) *LineHandler {
	return &LineHandler{
		lines:  lines,
		logger: log,
	}
}

// CreateLineRequest is the payload to register a production line
type CreateLineRequest struct {
	Name             string `json:"name" validate:"required"`
	LineType         string `json:"type"`
	ThroughputTarget int    `json:"throughputTarget" validate:"gte=0"`
}

// UpdateLineStatusRequest changes a line's operating status
type UpdateLineStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active maintenance stopped"`
}

// Create registers a new production line
func (h *LineHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateLineRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	line := &repository.ProductionLine{
		Name:             req.Name,
		LineType:         req.LineType,
		ThroughputTarget: req.ThroughputTarget,
	}
	if err := h.lines.Create(r.Context(), line); err != nil {
		httputil.Error(w, err)
		return
	}

	h.logger.Info().Str("line", line.Name).Msg("production line created")
	httputil.Created(w, line)
}

// Get returns one production line
func (h *LineHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.Error(w, errors.BadRequest("line id is required"))
		return
	}

	line, err := h.lines.GetByID(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, line)
}

// List returns all production lines
func (h *LineHandler) List(w http.ResponseWriter, r *http.Request) {
	lines, err := h.lines.List(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lines)
}

// UpdateStatus changes a line's operating status
func (h *LineHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.Error(w, errors.BadRequest("line id is required"))
		return
	}

	var req UpdateLineStatusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.lines.UpdateStatus(r.Context(), id, req.Status); err != nil {
		httputil.Error(w, err)
		return
	}

	h.logger.Info().Str("line_id", id).Str("status", req.Status).Msg("line status updated")
	httputil.NoContent(w)
}
