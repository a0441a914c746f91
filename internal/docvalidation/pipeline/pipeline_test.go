package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/processor"
)

var fixedNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

type scriptedClassifier struct {
	mu     sync.Mutex
	calls  int
	result func() *domain.ValidationResult
	panic  bool
}

func (s *scriptedClassifier) Name() string { return "scripted" }

func (s *scriptedClassifier) Classify(_ context.Context, _ processor.Submission) (*domain.ValidationResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.panic {
		panic("backend exploded")
	}
	return s.result(), nil
}

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func pdf(t *testing.T, name string) string {
	return writeFile(t, name, []byte("%PDF-1.7\n1 0 obj\n"))
}

func enabled(strict bool) domain.ValidationConfig {
	return domain.NewValidationConfig(domain.ValidationSettings{
		BackendEnabled:  true,
		BackendProvider: domain.ProviderVisionLLM,
		StrictMode:      strict,
	})
}

func TestValidateDocument_FilenameMatch(t *testing.T) {
	p := New(domain.DefaultValidationConfig(), Dependencies{})

	r := p.ValidateDocument(context.Background(), pdf(t, "permis_jean.pdf"), domain.CategoryDrivingLicense, "u1", nil)

	assert.Equal(t, domain.CategoryDrivingLicense, r.DocumentCategory)
	assert.Equal(t, 0.8, r.Confidence)
	assert.True(t, r.IsValid)
	assert.Empty(t, r.Issues)
}

func TestValidateDocument_NoKeywordIsNotAMismatch(t *testing.T) {
	p := New(domain.DefaultValidationConfig(), Dependencies{})

	r := p.ValidateDocument(context.Background(), pdf(t, "facture.pdf"), domain.CategoryDrivingLicense, "u1", nil)

	assert.Equal(t, domain.CategoryUnknown, r.DocumentCategory)
	assert.Equal(t, 0.5, r.Confidence)
	assert.True(t, r.IsValid)
	assert.Empty(t, r.Issues)
}

func TestValidateDocument_BadSIRETChecksum(t *testing.T) {
	backend := &scriptedClassifier{result: func() *domain.ValidationResult {
		r := domain.NewResult(true, 0.92, domain.CategoryBusinessRegistration)
		r.ExtractedFields["siret"] = "73282932000074"
		return r
	}}
	p := New(enabled(false), Dependencies{Classifier: backend, Clock: func() time.Time { return fixedNow }})

	r := p.ValidateDocument(context.Background(), pdf(t, "kbis.pdf"), domain.CategoryBusinessRegistration, "u1", nil)

	assert.False(t, r.IsValid)
	assert.True(t, r.HasIssue(domain.CodeInvalidSIRETChecksum))
	assert.Contains(t, r.Suggestions, "Check that the document is current and not expired")
}

func TestValidateDocument_ExpiredLicence(t *testing.T) {
	for _, confidence := range []float64{0.3, 0.85, 1} {
		backend := &scriptedClassifier{result: func() *domain.ValidationResult {
			r := domain.NewResult(true, confidence, domain.CategoryDrivingLicense)
			r.ExtractedFields["number"] = "12AB34567890"
			r.ExtractedFields["categories"] = "B"
			r.ExtractedFields["expiryDate"] = fixedNow.AddDate(-1, 0, 0).Format(domain.DateLayout)
			return r
		}}
		p := New(enabled(false), Dependencies{Classifier: backend, Clock: func() time.Time { return fixedNow }})

		r := p.ValidateDocument(context.Background(), writeFile(t, "licence.png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0}),
			domain.CategoryDrivingLicense, "u1", nil)

		assert.False(t, r.IsValid, confidence)
		assert.True(t, r.HasIssue(domain.CodeExpiredDocument), confidence)
	}
}

func TestValidateDocument_BackendWithoutFieldsIsPenalised(t *testing.T) {
	tests := []struct {
		name     string
		category domain.DocumentCategory
		fields   map[string]any
		wantConf float64
	}{
		{"licence read but empty", domain.CategoryDrivingLicense, nil, 0.76},
		{"kbis read but empty", domain.CategoryBusinessRegistration, nil, 0.76},
		{"licence with one field", domain.CategoryDrivingLicense, map[string]any{"number": "X1"}, 0.76},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &scriptedClassifier{result: func() *domain.ValidationResult {
				r := domain.NewResult(true, 0.95, tt.category)
				for k, v := range tt.fields {
					r.ExtractedFields[k] = v
				}
				return r
			}}
			p := New(enabled(false), Dependencies{Classifier: backend, Clock: func() time.Time { return fixedNow }})

			r, report := p.Run(context.Background(), Request{Path: pdf(t, "scan.pdf"), Expected: tt.category, UserID: "u1"})

			assert.Equal(t, "scripted", report.Outcome.Backend)
			assert.True(t, r.HasIssue(domain.CodeMissingFields))
			assert.InDelta(t, tt.wantConf, r.Confidence, 1e-9)
		})
	}
}

func TestValidateDocument_InputErrorsSkipBackend(t *testing.T) {
	backend := &scriptedClassifier{result: func() *domain.ValidationResult { return domain.NewResult(true, 1, domain.CategoryPassport) }}
	p := New(enabled(false), Dependencies{Classifier: backend})

	tests := []struct {
		name string
		path string
		code string
	}{
		{"missing", filepath.Join(t.TempDir(), "nope.pdf"), domain.CodeFileAccessError},
		{"empty", writeFile(t, "empty.pdf", nil), domain.CodeFileAccessError},
		{"wrong extension", writeFile(t, "notes.txt", []byte("hello")), domain.CodeInvalidFormat},
		{"pdf named jpg", writeFile(t, "photo.jpg", []byte("%PDF-1.4")), domain.CodeCorruptedFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := p.ValidateDocument(context.Background(), tt.path, domain.CategoryPassport, "u1", nil)

			assert.False(t, r.IsValid)
			assert.Equal(t, 0.0, r.Confidence)
			require.NotEmpty(t, r.Issues)
			assert.Equal(t, tt.code, r.Issues[0].Code)
		})
	}
	assert.Zero(t, backend.calls)
}

func TestValidateDocument_StrictMode(t *testing.T) {
	path := pdf(t, "facture.pdf")

	lenient := New(domain.DefaultValidationConfig(), Dependencies{}).ValidateDocument(context.Background(), path, domain.CategoryIDCard, "", nil)
	assert.True(t, lenient.IsValid)
	assert.False(t, lenient.HasIssue(domain.CodeLowConfidence))

	strictCfg := domain.NewValidationConfig(domain.ValidationSettings{StrictMode: true})
	strict := New(strictCfg, Dependencies{}).ValidateDocument(context.Background(), path, domain.CategoryIDCard, "", nil)
	assert.False(t, strict.IsValid)
	assert.True(t, strict.HasIssue(domain.CodeLowConfidence))
}

func TestValidateDocument_CheckerConfidenceCapsBackend(t *testing.T) {
	cfg := domain.NewValidationConfig(domain.ValidationSettings{
		BackendEnabled:        true,
		BackendProvider:       domain.ProviderVisionLLM,
		AllowedFileExtensions: []string{"pdf", "tiff"},
	})
	backend := &scriptedClassifier{result: func() *domain.ValidationResult { return domain.NewResult(true, 0.97, domain.CategoryCertificate) }}
	p := New(cfg, Dependencies{Classifier: backend})

	r := p.ValidateDocument(context.Background(), writeFile(t, "cert.tiff", []byte("II*\x00")), domain.CategoryCertificate, "", nil)

	assert.Equal(t, 0.5, r.Confidence)
	assert.True(t, r.HasIssue(domain.CodeSignatureNotVerified))
	assert.True(t, r.IsValid)
}

func TestRun_PanicBecomesValidationFailed(t *testing.T) {
	backend := &scriptedClassifier{panic: true}
	p := New(enabled(false), Dependencies{Classifier: backend})

	r, report := p.Run(context.Background(), Request{Path: pdf(t, "permis.pdf"), Expected: domain.CategoryDrivingLicense})

	assert.True(t, report.Panicked)
	assert.False(t, r.IsValid)
	assert.Equal(t, 0.0, r.Confidence)
	require.Len(t, r.Issues, 1)
	assert.Equal(t, domain.CodeValidationFailed, r.Issues[0].Code)
}

func TestRun_ReportsFallback(t *testing.T) {
	p := New(enabled(false), Dependencies{Classifier: &scriptedClassifier{result: func() *domain.ValidationResult { return nil }}})

	r, report := p.Run(context.Background(), Request{Path: pdf(t, "passeport.pdf"), Expected: domain.CategoryPassport})

	assert.True(t, report.Outcome.FellBack)
	assert.Equal(t, processor.ReasonEmptyResponse, report.Outcome.Reason)
	assert.Equal(t, domain.CategoryPassport, r.DocumentCategory)
	assert.Equal(t, 0.8, r.Confidence)
}

func TestValidateDocument_Idempotent(t *testing.T) {
	p := New(domain.DefaultValidationConfig(), Dependencies{})
	path := pdf(t, "scan_passeport.pdf")

	first, err := json.Marshal(p.ValidateDocument(context.Background(), path, domain.CategoryIDCard, "u1", map[string]string{"a": "b"}))
	require.NoError(t, err)
	second, err := json.Marshal(p.ValidateDocument(context.Background(), path, domain.CategoryIDCard, "u1", map[string]string{"a": "b"}))
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first, second))
}

func TestValidateDocument_ConcurrentRequests(t *testing.T) {
	p := New(domain.DefaultValidationConfig(), Dependencies{})
	licence := pdf(t, "permis.pdf")
	rib := pdf(t, "rib.pdf")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r := p.ValidateDocument(context.Background(), licence, domain.CategoryDrivingLicense, "", nil)
			assert.Equal(t, domain.CategoryDrivingLicense, r.DocumentCategory)
		}()
		go func() {
			defer wg.Done()
			r := p.ValidateDocument(context.Background(), rib, domain.CategoryBankProof, "", nil)
			assert.Equal(t, domain.CategoryBankProof, r.DocumentCategory)
		}()
	}
	wg.Wait()
}
