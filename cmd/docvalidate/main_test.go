package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecodeli/ecodeli-backend/internal/auth/jwt"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/service"
	"github.com/ecodeli/ecodeli-backend/pkg/config"
	"github.com/ecodeli/ecodeli-backend/pkg/testutil"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stderr)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func TestCheck_ValidDocument(t *testing.T) {
	path := testutil.WritePDF(t, "permis_jean.pdf")

	out, err := run(t, "check", path, "--category", "DRIVING_LICENSE", "--user", "user-1", "--backend", "none")

	require.NoError(t, err)
	var verdict service.Verdict
	require.NoError(t, json.Unmarshal([]byte(out), &verdict))
	assert.Equal(t, "user-1", verdict.UserID)
	assert.Equal(t, "basic", verdict.Backend)
	assert.Equal(t, domain.CategoryDrivingLicense, verdict.Result.DocumentCategory)
	assert.True(t, strings.Contains(out, "\n  \"validationId\""), "output is indented")
}

func TestCheck_InvalidDocument(t *testing.T) {
	out, err := run(t, "check", "/nonexistent/permis.pdf", "-c", "driving_license")

	require.ErrorIs(t, err, errDocumentInvalid)
	assert.Contains(t, out, domain.CodeFileAccessError)
}

func TestCheck_SeveralFilesKeepArgumentOrder(t *testing.T) {
	licence := testutil.WritePDF(t, "permis_jean.pdf")
	rib := testutil.WritePDF(t, "rib_societe.pdf")

	out, err := run(t, "check", licence, rib, "--parallel", "2", "--backend", "none")

	require.NoError(t, err)
	var verdicts []service.Verdict
	require.NoError(t, json.Unmarshal([]byte(out), &verdicts))
	require.Len(t, verdicts, 2)
	assert.Equal(t, licence, verdicts[0].FileReference)
	assert.Equal(t, domain.CategoryDrivingLicense, verdicts[0].Result.DocumentCategory)
	assert.Equal(t, domain.CategoryBankProof, verdicts[1].Result.DocumentCategory)
}

func TestCheck_Errors(t *testing.T) {
	_, err := run(t, "check", "a.pdf", "--category", "spaceship")
	assert.ErrorContains(t, err, "unknown category")

	_, err = run(t, "check", "a.pdf", "--backend", "carrier_pigeon")
	assert.ErrorContains(t, err, "carrier_pigeon")

	_, err = run(t, "check")
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	out, err := run(t, "token", "--user", "user-9", "--role", "merchant")
	require.NoError(t, err)

	cfg, err := config.Load("docvalidate")
	require.NoError(t, err)
	claims, err := jwt.NewManager(&cfg.JWT).ValidateAccessToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "user-9", claims.UserID)
	assert.Equal(t, "merchant", claims.Role)

	_, err = run(t, "token")
	assert.Error(t, err)
}
