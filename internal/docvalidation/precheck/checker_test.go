package precheck_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/precheck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pdfBytes  = []byte("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n")
	jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	pngBytes  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00}
	webpBytes = []byte("RIFF\x24\x00\x00\x00WEBPVP8 ")
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func onlyIssue(t *testing.T, r *domain.ValidationResult) domain.Issue {
	t.Helper()
	require.Len(t, r.Issues, 1)
	return r.Issues[0]
}

func TestChecker_Accepts(t *testing.T) {
	checker := precheck.NewChecker(domain.DefaultValidationConfig())

	tests := []struct {
		name string
		file string
		data []byte
	}{
		{"pdf", "permis.pdf", pdfBytes},
		{"jpg", "scan.jpg", jpegBytes},
		{"jpeg upper case", "SCAN.JPEG", jpegBytes},
		{"png", "rib.png", pngBytes},
		{"webp", "kbis.webp", webpBytes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := checker.Check(context.Background(), writeFile(t, tt.file, tt.data))

			assert.True(t, r.IsValid)
			assert.Equal(t, 1.0, r.Confidence)
			assert.Equal(t, domain.CategoryUnknown, r.DocumentCategory)
			assert.Empty(t, r.Issues)
		})
	}
}

func TestChecker_Rejects(t *testing.T) {
	checker := precheck.NewChecker(domain.NewValidationConfig(domain.ValidationSettings{
		MaxFileSizeBytes: 16,
	}))

	tests := []struct {
		name     string
		path     func(t *testing.T) string
		wantCode string
	}{
		{
			name:     "missing file",
			path:     func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.pdf") },
			wantCode: domain.CodeFileAccessError,
		},
		{
			name:     "directory",
			path:     func(t *testing.T) string { return t.TempDir() },
			wantCode: domain.CodeFileAccessError,
		},
		{
			name:     "zero bytes",
			path:     func(t *testing.T) string { return writeFile(t, "empty.pdf", nil) },
			wantCode: domain.CodeFileAccessError,
		},
		{
			name:     "too large",
			path:     func(t *testing.T) string { return writeFile(t, "big.pdf", append(pdfBytes, make([]byte, 32)...)) },
			wantCode: domain.CodeFileTooLarge,
		},
		{
			name:     "extension not allowed",
			path:     func(t *testing.T) string { return writeFile(t, "notes.docx", []byte("PK\x03\x04")) },
			wantCode: domain.CodeInvalidFormat,
		},
		{
			name:     "no extension",
			path:     func(t *testing.T) string { return writeFile(t, "README", []byte("hello")) },
			wantCode: domain.CodeInvalidFormat,
		},
		{
			name:     "pdf bytes named jpg",
			path:     func(t *testing.T) string { return writeFile(t, "photo.jpg", []byte("%PDF")) },
			wantCode: domain.CodeCorruptedFile,
		},
		{
			name:     "truncated png",
			path:     func(t *testing.T) string { return writeFile(t, "rib.png", pngBytes[:4]) },
			wantCode: domain.CodeCorruptedFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := checker.Check(context.Background(), tt.path(t))

			assert.False(t, r.IsValid)
			assert.Equal(t, 0.0, r.Confidence)
			issue := onlyIssue(t, r)
			assert.Equal(t, tt.wantCode, issue.Code)
			assert.Equal(t, domain.SeverityError, issue.Severity)
		})
	}
}

func TestChecker_UnknownSignatureIsInfo(t *testing.T) {
	checker := precheck.NewChecker(domain.NewValidationConfig(domain.ValidationSettings{
		AllowedFileExtensions: []string{"pdf", ".TIFF"},
	}))

	r := checker.Check(context.Background(), writeFile(t, "scan.tiff", []byte("II*\x00")))

	assert.True(t, r.IsValid)
	assert.Equal(t, 0.5, r.Confidence)
	assert.Equal(t, domain.CodeSignatureNotVerified, onlyIssue(t, r).Code)
	assert.Equal(t, domain.SeverityInfo, onlyIssue(t, r).Severity)
}

func TestChecker_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := precheck.NewChecker(domain.DefaultValidationConfig()).Check(ctx, writeFile(t, "permis.pdf", pdfBytes))

	assert.False(t, r.IsValid)
	assert.Equal(t, domain.CodeFileAccessError, onlyIssue(t, r).Code)
}

func TestSignatureMatches(t *testing.T) {
	assert.True(t, precheck.SignatureMatches(".PDF", pdfBytes))
	assert.True(t, precheck.SignatureMatches("webp", webpBytes))
	assert.False(t, precheck.SignatureMatches("jpg", pdfBytes))
	assert.False(t, precheck.SignatureMatches("tiff", []byte("II*\x00")))
}
