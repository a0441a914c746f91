// Package repository persists validation audit rows and looks up approved
// documents for the duplicate check.
package repository

import (
	"context"
	"database/sql"
	_ "embed"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/pkg/database"
	"github.com/ecodeli/ecodeli-backend/pkg/errors"
)

//go:embed schema.sql
var schema string

// Migrate creates the tables used by the service when they are missing.
// The schema is applied in one transaction so a failed statement leaves
// nothing half created.
func Migrate(ctx context.Context, db *database.DB) error {
	return db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
		return nil
	})
}

// DocumentRepository reads the documents table
type DocumentRepository struct {
	db *database.DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *database.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// FindApprovedDocument returns the most recently approved document of the
// category for the user, or nil when there is none.
func (r *DocumentRepository) FindApprovedDocument(ctx context.Context, userID string, category domain.DocumentCategory) (*domain.ApprovedDocument, error) {
	var doc domain.ApprovedDocument
	query := `
		SELECT id, user_id, category, approved_at, expires_at
		FROM documents
		WHERE user_id = $1 AND category = $2 AND status = 'approved'
		ORDER BY approved_at DESC
		LIMIT 1
	`
	if err := r.db.GetContext(ctx, &doc, query, userID, string(category)); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find approved document: %w", err)
	}
	return &doc, nil
}

// ValidationRecord is one row of the validation audit trail
type ValidationRecord struct {
	ID               string         `db:"id" json:"id"`
	UserID           string         `db:"user_id" json:"userId"`
	FileReference    string         `db:"file_reference" json:"fileReference"`
	Fingerprint      string         `db:"fingerprint" json:"fingerprint,omitempty"`
	ExpectedCategory string         `db:"expected_category" json:"expectedCategory"`
	DetectedCategory string         `db:"detected_category" json:"detectedCategory"`
	IsValid          bool           `db:"is_valid" json:"isValid"`
	Confidence       float64        `db:"confidence" json:"confidence"`
	Issues           types.JSONText `db:"issues" json:"issues"`
	Suggestions      types.JSONText `db:"suggestions" json:"suggestions"`
	Backend          string         `db:"backend" json:"backend"`
	FellBack         bool           `db:"fell_back" json:"fellBack"`
	FallbackReason   string         `db:"fallback_reason" json:"fallbackReason,omitempty"`
	DurationMS       int64          `db:"duration_ms" json:"durationMs"`
	CreatedAt        time.Time      `db:"created_at" json:"createdAt"`
}

// AuditRepository handles the document_validations table
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record inserts a validation row and fills in ID and CreatedAt
func (r *AuditRepository) Record(ctx context.Context, rec *ValidationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if len(rec.Issues) == 0 {
		rec.Issues = types.JSONText("[]")
	}
	if len(rec.Suggestions) == 0 {
		rec.Suggestions = types.JSONText("[]")
	}

	query := `
		INSERT INTO document_validations (
			id, user_id, file_reference, fingerprint, expected_category, detected_category,
			is_valid, confidence, issues, suggestions, backend, fell_back, fallback_reason, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		rec.ID, rec.UserID, rec.FileReference, rec.Fingerprint, rec.ExpectedCategory,
		rec.DetectedCategory, rec.IsValid, rec.Confidence, rec.Issues, rec.Suggestions,
		rec.Backend, rec.FellBack, rec.FallbackReason, rec.DurationMS,
	).Scan(&rec.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("record validation: %w", err)
	}
	return nil
}

// GetByID gets a validation row by ID
func (r *AuditRepository) GetByID(ctx context.Context, id string) (*ValidationRecord, error) {
	var rec ValidationRecord
	query := `SELECT * FROM document_validations WHERE id = $1`
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("validation")
		}
		return nil, err
	}
	return &rec, nil
}

// ListByUser returns the user's most recent validations, newest first
func (r *AuditRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*ValidationRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := `
		SELECT * FROM document_validations
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	records := []*ValidationRecord{}
	if err := r.db.SelectContext(ctx, &records, query, userID, limit); err != nil {
		return nil, err
	}
	return records, nil
}
