package repository_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/repository"
	apperrors "github.com/ecodeli/ecodeli-backend/pkg/errors"
	"github.com/ecodeli/ecodeli-backend/pkg/testutil"
)

func TestMain(m *testing.M) {
	code := m.Run()
	testutil.TerminateContainer(context.Background())
	os.Exit(code)
}

func TestMigrate_AppliesSchemaInTransaction(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.Mock.ExpectExec(`CREATE TABLE IF NOT EXISTS documents`).WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectCommit()

	require.NoError(t, repository.Migrate(context.Background(), mockDB.Wrapped()))
	mockDB.ExpectationsWereMet(t)
}

func TestMigrate_RollsBackOnFailure(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.Mock.ExpectExec(`CREATE TABLE IF NOT EXISTS documents`).WillReturnError(errors.New("permission denied for schema public"))
	mockDB.ExpectRollback()

	err := repository.Migrate(context.Background(), mockDB.Wrapped())

	assert.ErrorContains(t, err, "failed to apply schema")
	mockDB.ExpectationsWereMet(t)
}

const findApprovedQuery = `
		SELECT id, user_id, category, approved_at, expires_at
		FROM documents
		WHERE user_id = $1 AND category = $2 AND status = 'approved'
		ORDER BY approved_at DESC
		LIMIT 1
	`

func TestDocumentRepository_FindApprovedDocument(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	approvedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mockDB.ExpectQuery(findApprovedQuery).
		WithArgs("user-1", "driving_license").
		WillReturnRows(testutil.MockRows("id", "user_id", "category", "approved_at", "expires_at").
			AddRow("doc-1", "user-1", "driving_license", approvedAt, nil))

	repo := repository.NewDocumentRepository(mockDB.Wrapped())
	doc, err := repo.FindApprovedDocument(context.Background(), "user-1", domain.CategoryDrivingLicense)

	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, domain.CategoryDrivingLicense, doc.Category)
	assert.Equal(t, approvedAt, doc.ApprovedAt)
	assert.Nil(t, doc.ExpiresAt)
	mockDB.ExpectationsWereMet(t)
}

func TestDocumentRepository_FindApprovedDocument_WithExpiry(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	approvedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	expiresAt := time.Date(2031, 3, 1, 0, 0, 0, 0, time.UTC)
	mockDB.ExpectQuery(findApprovedQuery).
		WithArgs("user-1", "id_card").
		WillReturnRows(testutil.MockRows("id", "user_id", "category", "approved_at", "expires_at").
			AddRow("doc-2", "user-1", "id_card", approvedAt, expiresAt))

	doc, err := repository.NewDocumentRepository(mockDB.Wrapped()).FindApprovedDocument(context.Background(), "user-1", domain.CategoryIDCard)

	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, testutil.PtrTime(expiresAt), doc.ExpiresAt)
	mockDB.ExpectationsWereMet(t)
}

func TestDocumentRepository_FindApprovedDocument_None(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery(findApprovedQuery).
		WithArgs("user-1", "passport").
		WillReturnRows(testutil.MockRows("id", "user_id", "category", "approved_at", "expires_at"))

	repo := repository.NewDocumentRepository(mockDB.Wrapped())
	doc, err := repo.FindApprovedDocument(context.Background(), "user-1", domain.CategoryPassport)

	require.NoError(t, err)
	assert.Nil(t, doc)
	mockDB.ExpectationsWereMet(t)
}

func TestDocumentRepository_FindApprovedDocument_Error(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery(findApprovedQuery).WillReturnError(errors.New("connection reset"))

	repo := repository.NewDocumentRepository(mockDB.Wrapped())
	_, err := repo.FindApprovedDocument(context.Background(), "user-1", domain.CategoryPassport)

	assert.ErrorContains(t, err, "connection reset")
}

const insertValidationQuery = `
		INSERT INTO document_validations (
			id, user_id, file_reference, fingerprint, expected_category, detected_category,
			is_valid, confidence, issues, suggestions, backend, fell_back, fallback_reason, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`

func TestAuditRepository_Record(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	createdAt := time.Date(2026, 10, 15, 14, 30, 0, 0, time.UTC)
	mockDB.ExpectQuery(insertValidationQuery).
		WithArgs(testutil.AnyUUID{}, "user-1", "permis.pdf", "abc", "driving_license", "driving_license",
			true, 0.8, types.JSONText("[]"), types.JSONText(`["Upload both sides"]`), "basic", false, "", int64(12)).
		WillReturnRows(testutil.MockRows("created_at").AddRow(createdAt))

	rec := &repository.ValidationRecord{
		UserID:           "user-1",
		FileReference:    "permis.pdf",
		Fingerprint:      "abc",
		ExpectedCategory: "driving_license",
		DetectedCategory: "driving_license",
		IsValid:          true,
		Confidence:       0.8,
		Suggestions:      types.JSONText(`["Upload both sides"]`),
		Backend:          "basic",
		DurationMS:       12,
	}
	err := repository.NewAuditRepository(mockDB.Wrapped()).Record(context.Background(), rec)

	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, createdAt, rec.CreatedAt)
	mockDB.ExpectationsWereMet(t)
}

func TestAuditRepository_Record_MapsConstraintErrors(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery(insertValidationQuery).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "document_validations_pkey"})

	err := repository.NewAuditRepository(mockDB.Wrapped()).Record(context.Background(), &repository.ValidationRecord{ID: "fixed"})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 409, appErr.StatusCode)
}

func TestAuditRepository_GetByID_NotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery(`SELECT * FROM document_validations WHERE id = $1`).
		WithArgs("missing").
		WillReturnRows(testutil.MockRows("id"))

	_, err := repository.NewAuditRepository(mockDB.Wrapped()).GetByID(context.Background(), "missing")

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.StatusCode)
}

func TestAuditRepository_ListByUser_ClampsLimit(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.Mock.ExpectQuery(`SELECT \* FROM document_validations`).
		WithArgs("user-1", 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "is_valid", "confidence"}).
			AddRow("v1", "user-1", true, 0.9))

	records, err := repository.NewAuditRepository(mockDB.Wrapped()).ListByUser(context.Background(), "user-1", 1000)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "v1", records[0].ID)
	mockDB.ExpectationsWereMet(t)
}

func TestRepositories_Postgres(t *testing.T) {
	s := testutil.RequireIntegrationSuite(t, repository.Migrate)
	s.Truncate(t, "documents", "document_validations")
	ctx := testutil.DefaultTestContext(t)

	_, err := s.RawDB.ExecContext(ctx, `
		INSERT INTO documents (id, user_id, category, status, file_reference, approved_at) VALUES
			('6f0c7c1e-5c55-4f5e-9a3c-000000000001', 'user-1', 'passport', 'approved', 'old.pdf', '2025-01-01T00:00:00Z'),
			('6f0c7c1e-5c55-4f5e-9a3c-000000000002', 'user-1', 'passport', 'approved', 'new.pdf', '2026-01-01T00:00:00Z'),
			('6f0c7c1e-5c55-4f5e-9a3c-000000000003', 'user-1', 'id_card', 'pending', 'id.pdf', NULL)
	`)
	require.NoError(t, err)

	docs := repository.NewDocumentRepository(s.DB)
	doc, err := docs.FindApprovedDocument(ctx, "user-1", domain.CategoryPassport)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "6f0c7c1e-5c55-4f5e-9a3c-000000000002", doc.ID)

	doc, err = docs.FindApprovedDocument(ctx, "user-1", domain.CategoryIDCard)
	require.NoError(t, err)
	assert.Nil(t, doc)

	audit := repository.NewAuditRepository(s.DB)
	rec := &repository.ValidationRecord{
		UserID:           "user-1",
		FileReference:    "new.pdf",
		ExpectedCategory: "passport",
		DetectedCategory: "passport",
		IsValid:          true,
		Confidence:       0.8,
		Issues:           types.JSONText(`[{"severity":"info","code":"EXISTING_DOCUMENT","message":"x"}]`),
		Backend:          "basic",
	}
	require.NoError(t, audit.Record(ctx, rec))

	got, err := audit.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "passport", got.DetectedCategory)
	assert.JSONEq(t, string(rec.Issues), string(got.Issues))

	list, err := audit.ListByUser(ctx, "user-1", 5)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
