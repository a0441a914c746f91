package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClassifier struct {
	calls  atomic.Int32
	result *domain.ValidationResult
	err    error
	delay  time.Duration
	seen   Submission
}

func (f *fakeClassifier) Name() string { return "fake" }

func (f *fakeClassifier) Classify(ctx context.Context, sub Submission) (*domain.ValidationResult, error) {
	f.calls.Add(1)
	f.seen = sub
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func enabledConfig(timeout time.Duration) domain.ValidationConfig {
	return domain.NewValidationConfig(domain.ValidationSettings{
		BackendEnabled:  true,
		BackendProvider: domain.ProviderVisionLLM,
		RequestTimeout:  timeout,
	})
}

func tempDocument(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0o600))
	return path
}

func TestDispatcher_NoBackendUsesFilename(t *testing.T) {
	d := NewDispatcher(domain.DefaultValidationConfig(), nil, BreakerConfig{}, nil)

	r, outcome := d.Dispatch(context.Background(), Submission{Path: "permis_jean.pdf", Expected: domain.CategoryDrivingLicense})

	assert.Equal(t, domain.CategoryDrivingLicense, r.DocumentCategory)
	assert.Equal(t, 0.8, r.Confidence)
	assert.Equal(t, "basic", outcome.Backend)
	assert.False(t, outcome.FellBack)
	assert.Equal(t, "basic", d.Backend())
}

func TestDispatcher_PrimarySuccess(t *testing.T) {
	backendResult := domain.NewResult(true, 0.95, domain.CategoryDrivingLicense)
	fake := &fakeClassifier{result: backendResult}
	d := NewDispatcher(enabledConfig(time.Second), fake, BreakerConfig{}, nil)

	path := tempDocument(t, "scan.pdf")
	r, outcome := d.Dispatch(context.Background(), Submission{Path: path, Expected: domain.CategoryDrivingLicense})

	assert.Same(t, backendResult, r)
	assert.Equal(t, "fake", outcome.Backend)
	assert.False(t, outcome.FellBack)
	assert.Equal(t, []byte("%PDF-1.4 test"), fake.seen.Data)
}

func TestDispatcher_FallsBackOnFailure(t *testing.T) {
	tests := []struct {
		name       string
		classifier *fakeClassifier
		path       func(t *testing.T) string
		wantReason string
	}{
		{
			name:       "backend error",
			classifier: &fakeClassifier{err: errors.New("connection refused")},
			path:       func(t *testing.T) string { return tempDocument(t, "permis.pdf") },
			wantReason: ReasonBackendError,
		},
		{
			name:       "nil result",
			classifier: &fakeClassifier{},
			path:       func(t *testing.T) string { return tempDocument(t, "permis.pdf") },
			wantReason: ReasonEmptyResponse,
		},
		{
			name:       "unsupported media",
			classifier: &fakeClassifier{err: ErrUnsupportedMedia},
			path:       func(t *testing.T) string { return tempDocument(t, "permis.pdf") },
			wantReason: ReasonUnsupported,
		},
		{
			name:       "timeout",
			classifier: &fakeClassifier{delay: time.Second, result: domain.NewResult(true, 1, domain.CategoryPassport)},
			path:       func(t *testing.T) string { return tempDocument(t, "permis.pdf") },
			wantReason: ReasonTimeout,
		},
		{
			name:       "file vanished",
			classifier: &fakeClassifier{result: domain.NewResult(true, 1, domain.CategoryPassport)},
			path:       func(t *testing.T) string { return filepath.Join(t.TempDir(), "permis.pdf") },
			wantReason: ReasonReadError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(enabledConfig(50*time.Millisecond), tt.classifier, BreakerConfig{}, nil)

			r, outcome := d.Dispatch(context.Background(), Submission{Path: tt.path(t), Expected: domain.CategoryDrivingLicense})

			require.NotNil(t, r)
			assert.True(t, outcome.FellBack)
			assert.Equal(t, "basic", outcome.Backend)
			assert.Equal(t, tt.wantReason, outcome.Reason)
			assert.Equal(t, domain.CategoryDrivingLicense, r.DocumentCategory)
			assert.Equal(t, 0.8, r.Confidence)
			assert.False(t, r.HasErrors())
		})
	}
}

func TestDispatcher_NoRetries(t *testing.T) {
	fake := &fakeClassifier{err: errors.New("503")}
	d := NewDispatcher(enabledConfig(time.Second), fake, BreakerConfig{}, nil)

	d.Dispatch(context.Background(), Submission{Path: tempDocument(t, "doc.pdf"), Expected: domain.CategoryUnknown})

	assert.Equal(t, int32(1), fake.calls.Load())
}

func TestDispatcher_OpenBreakerSkipsBackend(t *testing.T) {
	fake := &fakeClassifier{err: errors.New("boom")}
	d := NewDispatcher(enabledConfig(time.Second), fake, BreakerConfig{
		MinRequests:  2,
		FailureRatio: 0.5,
		OpenTimeout:  time.Minute,
	}, nil)
	path := tempDocument(t, "doc.pdf")

	for i := 0; i < 2; i++ {
		_, outcome := d.Dispatch(context.Background(), Submission{Path: path})
		assert.Equal(t, ReasonBackendError, outcome.Reason)
	}

	_, outcome := d.Dispatch(context.Background(), Submission{Path: path})
	assert.Equal(t, ReasonCircuitOpen, outcome.Reason)
	assert.Equal(t, int32(2), fake.calls.Load())
}

func TestDispatcher_ClampsBackendConfidence(t *testing.T) {
	out := domain.NewResult(true, 0.5, domain.CategoryPassport)
	out.Confidence = 4.2
	d := NewDispatcher(enabledConfig(time.Second), &fakeClassifier{result: out}, BreakerConfig{}, nil)

	r, _ := d.Dispatch(context.Background(), Submission{Path: tempDocument(t, "p.pdf")})

	assert.Equal(t, 1.0, r.Confidence)
}

func TestBackends_Select(t *testing.T) {
	vision, ocr, text := &fakeClassifier{}, &fakeClassifier{}, &fakeClassifier{}
	backends := Backends{Vision: vision, CloudOCR: ocr, TextExtraction: text}

	cfg := func(enabled bool, p domain.BackendProvider) domain.ValidationConfig {
		return domain.NewValidationConfig(domain.ValidationSettings{BackendEnabled: enabled, BackendProvider: p})
	}

	assert.Same(t, vision, backends.Select(cfg(true, domain.ProviderVisionLLM)))
	assert.Same(t, ocr, backends.Select(cfg(true, domain.ProviderCloudOCR)))
	assert.Same(t, text, backends.Select(cfg(true, domain.ProviderCloudTextExtraction)))
	assert.Nil(t, backends.Select(cfg(false, domain.ProviderVisionLLM)))
	assert.Nil(t, backends.Select(cfg(true, domain.ProviderNone)))
}
