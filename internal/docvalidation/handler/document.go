package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/repository"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/service"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/validation"
	"github.com/ecodeli/ecodeli-backend/pkg/errors"
	"github.com/ecodeli/ecodeli-backend/pkg/httputil"
	"github.com/ecodeli/ecodeli-backend/pkg/logger"
)

// RoleAdmin may read every user's validation history
const RoleAdmin = "admin"

// Validator runs a document validation
type Validator interface {
	Validate(ctx context.Context, req service.Request) (*service.Verdict, error)
}

// History reads the validation audit trail
type History interface {
	GetByID(ctx context.Context, id string) (*repository.ValidationRecord, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*repository.ValidationRecord, error)
}

// DocumentHandler handles document validation endpoints
type DocumentHandler struct {
	validator Validator
	history   History
	french    *validation.FrenchValidator
	logger    *logger.Logger
}

// NewDocumentHandler creates a new document handler. history may be nil when
// no database is configured; the history routes are then not mounted.
func NewDocumentHandler(validator Validator, history History, log *logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		validator: validator,
		history:   history,
		french:    validation.NewFrenchValidator(),
		logger:    log,
	}
}

// Routes mounts the document endpoints on r
func (h *DocumentHandler) Routes(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Post("/validate", h.Validate)
		r.Post("/validate/siret", h.ValidateSIRET)
		r.Post("/validate/iban", h.ValidateIBAN)

		if h.history != nil {
			r.Get("/validations", h.ListValidations)
			r.Get("/validations/{id}", h.GetValidation)
		}
	})
}

func init() {
	if err := httputil.RegisterCustomValidation("document_category", func(fl validator.FieldLevel) bool {
		return isKnownCategoryName(fl.Field().String())
	}); err != nil {
		panic(err)
	}
}

func isKnownCategoryName(s string) bool {
	s = strings.TrimSpace(s)
	return domain.ParseCategory(s) != domain.CategoryUnknown || strings.EqualFold(s, string(domain.CategoryUnknown))
}

// ValidateRequest is the body of POST /documents/validate
type ValidateRequest struct {
	FileReference    string            `json:"file_reference" validate:"required,max=2048"`
	ExpectedCategory string            `json:"expected_category" validate:"omitempty,max=64,document_category"`
	Metadata         map[string]string `json:"metadata" validate:"max=32,dive,keys,max=64,endkeys,max=512"`
}

// Validate validates a referenced document for the authenticated user
func (h *DocumentHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	expected := domain.CategoryUnknown
	if req.ExpectedCategory != "" {
		expected = domain.ParseCategory(req.ExpectedCategory)
	}

	verdict, err := h.validator.Validate(r.Context(), service.Request{
		FileReference:    req.FileReference,
		ExpectedCategory: expected,
		UserID:           httputil.GetUserID(r.Context()),
		Metadata:         req.Metadata,
	})
	if err != nil {
		h.logger.Debug().Err(err).Str("file_reference", req.FileReference).Msg("validation request failed")
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, verdict)
}

type identifierRequest struct {
	Value string `json:"value" validate:"required,max=64"`
}

// ValidateSIRET checks a SIRET number without a document
func (h *DocumentHandler) ValidateSIRET(w http.ResponseWriter, r *http.Request) {
	var req identifierRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, h.french.ValidateSIRET(req.Value))
}

// ValidateIBAN checks a French IBAN without a document
func (h *DocumentHandler) ValidateIBAN(w http.ResponseWriter, r *http.Request) {
	var req identifierRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, h.french.ValidateIBAN(req.Value))
}

// ListValidations lists the caller's most recent validations
func (h *DocumentHandler) ListValidations(w http.ResponseWriter, r *http.Request) {
	// Zero lets the repository apply its default page size
	var limit int
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.ErrorLocalized(w, r, errors.BadRequest("limit must be a positive integer"))
			return
		}
		limit = n
	}

	userID := httputil.GetUserID(r.Context())
	if other := r.URL.Query().Get("user_id"); other != "" && other != userID {
		if httputil.GetUserRole(r.Context()) != RoleAdmin {
			httputil.ErrorLocalized(w, r, errors.Forbidden("cannot read another user's validations"))
			return
		}
		userID = other
	}

	records, err := h.history.ListByUser(r.Context(), userID, limit)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, records, &httputil.Meta{Total: int64(len(records))})
}

// GetValidation returns one validation of the caller
func (h *DocumentHandler) GetValidation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		httputil.ErrorLocalized(w, r, errors.NotFound("validation"))
		return
	}

	record, err := h.history.GetByID(r.Context(), id)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	// Other users' validations are reported as missing
	if record.UserID != httputil.GetUserID(r.Context()) && httputil.GetUserRole(r.Context()) != RoleAdmin {
		httputil.ErrorLocalized(w, r, errors.NotFound("validation"))
		return
	}

	httputil.JSON(w, http.StatusOK, record)
}
