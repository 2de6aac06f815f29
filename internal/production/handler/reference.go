package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/scanflow/scanflow-backend/internal/production/repository"
	"github.com/scanflow/scanflow-backend/pkg/errors"
	"github.com/scanflow/scanflow-backend/pkg/httputil"
	"github.com/scanflow/scanflow-backend/pkg/logger"
)

// ReferenceHandler handles reference product administration
type ReferenceHandler struct {
	refs   *repository.ReferenceRepository
	logger *logger.Logger
}

// NewReferenceHandler creates a new reference handler
func NewReferenceHandler(refs *repository.ReferenceRepository, log *logger.Logger) *ReferenceHandler {
	return &ReferenceHandler{
		refs:   refs,
		logger: log,
	}
}

// CreateReferenceRequest is the payload to register a catalog item
type CreateReferenceRequest struct {
	InternalCode      string  `json:"codeReference" validate:"required"`
	ClientCode        *string `json:"codeClient,omitempty"`
	RevisionIndex     string  `json:"indice"`
	PackagingQuantity float64 `json:"quantiteEmballage" validate:"gte=0"`
}

// Create registers a new reference product
func (h *ReferenceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateReferenceRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	ref := &repository.ReferenceProduct{
		InternalCode:      req.InternalCode,
		ClientCode:        req.ClientCode,
		RevisionIndex:     req.RevisionIndex,
		PackagingQuantity: req.PackagingQuantity,
		IsActive:          true,
	}
	if err := h.refs.Create(r.Context(), ref); err != nil {
		httputil.Error(w, err)
		return
	}

	h.logger.Info().Str("internal_code", ref.InternalCode).Msg("reference product created")
	httputil.Created(w, ref)
}

// Get returns one reference product
func (h *ReferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.Error(w, errors.BadRequest("reference id is required"))
		return
	}

	ref, err := h.refs.GetByID(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, ref)
}

// List returns the active reference products
func (h *ReferenceHandler) List(w http.ResponseWriter, r *http.Request) {
	refs, err := h.refs.List(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, refs)
}
