package processor

import (
	"context"
	"errors"
	"time"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/precheck"
)

// Classifier interprets a submitted document and returns a normalized result.
// Remote implementations can be swapped in without changing the pipeline.
type Classifier interface {
	// Classify returns an error for any transport or payload failure.
	// The document bytes should NOT be retained after the call.
	Classify(ctx context.Context, sub Submission) (*domain.ValidationResult, error)

	// Name returns the backend name for logging/metrics
	Name() string
}

// Submission is what the dispatcher hands to a classifier
type Submission struct {
	Path     string
	Expected domain.DocumentCategory
	Metadata map[string]string

	// Data holds the file bytes for remote backends. The basic classifier ignores it.
	Data []byte

	// ReceivedAt anchors two-digit years read from the document. Zero means now.
	ReceivedAt time.Time
}

func (s Submission) referenceTime() time.Time {
	if s.ReceivedAt.IsZero() {
		return time.Now()
	}
	return s.ReceivedAt
}

// Extension returns the lower-cased file extension
func (s Submission) Extension() string {
	return precheck.Extension(s.Path)
}

// MediaType returns the MIME type implied by the extension
func (s Submission) MediaType() string {
	return MediaTypeFor(s.Extension())
}

// MediaTypeFor maps an extension to its MIME type. Unknown extensions map to octet-stream.
func MediaTypeFor(ext string) string {
	switch domain.NormalizeExtension(ext) {
	case "pdf":
		return "application/pdf"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

var (
	// ErrUnsupportedMedia is returned when a backend cannot read the file type
	ErrUnsupportedMedia = errors.New("unsupported media type for backend")
	// ErrEmptyResponse is returned when a backend answers without usable content
	ErrEmptyResponse = errors.New("backend returned an empty response")
)

// Backends holds the remote classifiers built from configuration.
// Nil entries are treated as not configured.
type Backends struct {
	Vision         Classifier
	CloudOCR       Classifier
	TextExtraction Classifier
}

// Select picks the classifier for the configured provider, once.
// It returns nil when the backend is disabled or the provider is not configured.
func (b Backends) Select(cfg domain.ValidationConfig) Classifier {
	switch cfg.EffectiveProvider() {
	case domain.ProviderVisionLLM:
		return b.Vision
	case domain.ProviderCloudOCR:
		return b.CloudOCR
	case domain.ProviderCloudTextExtraction:
		return b.TextExtraction
	default:
		return nil
	}
}
