package service

import (
	"net/http"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/pipeline"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/processor"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/rules"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/storage"
	"github.com/ecodeli/ecodeli-backend/pkg/config"
	"github.com/ecodeli/ecodeli-backend/pkg/logger"
)

// ValidationConfig freezes the validation section of cfg
func ValidationConfig(cfg *config.Config) domain.ValidationConfig {
	v := cfg.Validation
	return domain.NewValidationConfig(domain.ValidationSettings{
		BackendEnabled:        v.BackendEnabled,
		BackendProvider:       domain.ParseProvider(v.BackendProvider),
		StrictMode:            v.StrictMode,
		MinimumConfidence:     v.MinimumConfidence,
		AllowedFileExtensions: v.AllowedExtensions,
		MaxFileSizeBytes:      v.MaxFileSizeBytes,
		RequestTimeout:        v.RequestTimeout,
	})
}

// NewBackends builds every remote classifier from cfg. httpClient may be nil.
func NewBackends(cfg *config.Config, httpClient *http.Client) processor.Backends {
	b := cfg.Backends
	return processor.Backends{
		Vision: processor.NewVisionClassifier(processor.VisionConfig{
			APIKey:      b.Vision.APIKey,
			Model:       b.Vision.Model,
			BaseURL:     b.Vision.BaseURL,
			MaxTokens:   b.Vision.MaxTokens,
			MaxPDFPages: b.Vision.MaxPDFPages,
		}),
		CloudOCR: processor.NewCloudOCRClassifier(processor.CloudOCRConfig{
			APIKey:   b.CloudOCR.APIKey,
			Endpoint: b.CloudOCR.Endpoint,
		}, httpClient),
		TextExtraction: processor.NewTextExtractionClassifier(processor.TextExtractionConfig{
			APIKey:   b.TextExtraction.APIKey,
			Endpoint: b.TextExtraction.Endpoint,
			Model:    b.TextExtraction.Model,
		}, httpClient),
	}
}

// NewPipeline selects the backend once and builds the pipeline. finder may
// be nil, which disables the duplicate check.
func NewPipeline(cfg *config.Config, finder rules.ApprovedDocumentFinder, log *logger.Logger) *pipeline.Pipeline {
	vcfg := ValidationConfig(cfg)
	classifier := NewBackends(cfg, nil).Select(vcfg)

	deps := pipeline.Dependencies{
		Classifier: classifier,
		Breaker: processor.BreakerConfig{
			MinRequests:  cfg.Validation.Breaker.MinRequests,
			FailureRatio: cfg.Validation.Breaker.FailureRatio,
			OpenTimeout:  cfg.Validation.Breaker.OpenTimeout,
		},
		Finder: finder,
		Logger: log,
	}
	return pipeline.New(vcfg, deps)
}

// NewResolver builds the reference router. Blob references are only
// accepted when a connection string is configured.
func NewResolver(cfg *config.Config, log *logger.Logger) (*storage.Router, error) {
	router := &storage.Router{Local: &storage.LocalResolver{Root: cfg.Storage.LocalRoot}}
	if cfg.Storage.AzureConnectionString == "" {
		return router, nil
	}

	maxBytes := ValidationConfig(cfg).MaxFileSizeBytes()
	blob, err := storage.NewBlobResolver(cfg.Storage.AzureConnectionString, cfg.Storage.TempDir, maxBytes, log)
	if err != nil {
		return nil, err
	}
	router.Blob = blob
	return router, nil
}
