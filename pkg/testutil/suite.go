package testutil

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/ecodeli/ecodeli-backend/pkg/database"
	"github.com/ecodeli/ecodeli-backend/pkg/logger"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	DB        *database.DB
	Logger    *logger.Logger
}

// NewIntegrationSuite connects to the shared container, starting it on
// first use, and applies migrate to the database.
func NewIntegrationSuite(ctx context.Context, migrate func(context.Context, *database.DB) error) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.Nop()
	wrapped := database.Wrap(db, log)
	if migrate != nil {
		if err := migrate(ctx, wrapped); err != nil {
			return nil, err
		}
	}

	return &IntegrationSuite{
		Container: container,
		RawDB:     db,
		DB:        wrapped,
		Logger:    log,
	}, nil
}

// RequireIntegrationSuite skips the test in short mode, otherwise returns a
// migrated suite or fails the test.
//
// Usage:
//
//	func TestAuditRepository_Record(t *testing.T) {
//	    s := testutil.RequireIntegrationSuite(t, repository.Migrate)
//	    s.Truncate(t, "document_validations")
//	    repo := repository.NewAuditRepository(s.DB)
//	    ...
//	}
func RequireIntegrationSuite(t *testing.T, migrate func(context.Context, *database.DB) error) *IntegrationSuite {
	t.Helper()
	SkipIfShort(t)

	s, err := NewIntegrationSuite(DefaultTestContext(t), migrate)
	if err != nil {
		t.Fatalf("failed to create integration suite: %v", err)
	}
	return s
}

// getOrCreateContainer returns the shared test container
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// Truncate empties the given tables
func (s *IntegrationSuite) Truncate(t *testing.T, tables ...string) {
	t.Helper()
	for _, table := range tables {
		if _, err := s.RawDB.Exec("TRUNCATE TABLE " + table); err != nil {
			t.Fatalf("failed to truncate %s: %v", table, err)
		}
	}
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		_ = globalContainer.Terminate(ctx)
	}
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// IsCI returns true if running in CI environment
func IsCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL"}
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}
