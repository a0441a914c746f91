package domain

import (
	"sort"
	"strings"
	"time"
)

// BackendProvider selects the classification backend
type BackendProvider string

const (
	ProviderVisionLLM           BackendProvider = "vision_llm"
	ProviderCloudOCR            BackendProvider = "cloud_ocr"
	ProviderCloudTextExtraction BackendProvider = "cloud_text_extraction"
	ProviderNone                BackendProvider = "none"
)

// ParseProvider maps a configuration string to a provider. Unknown values map to ProviderNone.
func ParseProvider(s string) BackendProvider {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vision_llm", "vision", "llm", "anthropic", "claude":
		return ProviderVisionLLM
	case "cloud_ocr", "ocr", "google_vision":
		return ProviderCloudOCR
	case "cloud_text_extraction", "text_extraction", "mistral", "textract":
		return ProviderCloudTextExtraction
	default:
		return ProviderNone
	}
}

// Defaults applied by NewValidationConfig when a value is left at zero
const (
	DefaultMinimumConfidence = 0.8
	DefaultMaxFileSizeBytes  = 10 << 20
	DefaultRequestTimeout    = 30 * time.Second
)

// DefaultAllowedExtensions are the accepted upload extensions
var DefaultAllowedExtensions = []string{"pdf", "jpg", "jpeg", "png", "webp"}

// ValidationConfig is built once per pipeline and only read afterwards.
// Fields are unexported so a running pipeline cannot be reconfigured.
type ValidationConfig struct {
	backendEnabled    bool
	backendProvider   BackendProvider
	strictMode        bool
	minimumConfidence float64
	allowedExtensions map[string]struct{}
	maxFileSizeBytes  int64
	requestTimeout    time.Duration
}

// ValidationSettings is the mutable input used to build a ValidationConfig
type ValidationSettings struct {
	BackendEnabled        bool
	BackendProvider       BackendProvider
	StrictMode            bool
	MinimumConfidence     float64
	AllowedFileExtensions []string
	MaxFileSizeBytes      int64
	RequestTimeout        time.Duration
}

// NewValidationConfig freezes settings into a ValidationConfig
func NewValidationConfig(s ValidationSettings) ValidationConfig {
	cfg := ValidationConfig{
		backendEnabled:    s.BackendEnabled,
		backendProvider:   s.BackendProvider,
		strictMode:        s.StrictMode,
		minimumConfidence: s.MinimumConfidence,
		maxFileSizeBytes:  s.MaxFileSizeBytes,
		requestTimeout:    s.RequestTimeout,
		allowedExtensions: make(map[string]struct{}),
	}
	if cfg.backendProvider == "" {
		cfg.backendProvider = ProviderNone
	}
	if cfg.minimumConfidence <= 0 || cfg.minimumConfidence > 1 {
		cfg.minimumConfidence = DefaultMinimumConfidence
	}
	if cfg.maxFileSizeBytes <= 0 {
		cfg.maxFileSizeBytes = DefaultMaxFileSizeBytes
	}
	if cfg.requestTimeout <= 0 {
		cfg.requestTimeout = DefaultRequestTimeout
	}

	exts := s.AllowedFileExtensions
	if len(exts) == 0 {
		exts = DefaultAllowedExtensions
	}
	for _, ext := range exts {
		ext = NormalizeExtension(ext)
		if ext != "" {
			cfg.allowedExtensions[ext] = struct{}{}
		}
	}
	return cfg
}

// DefaultValidationConfig returns the configuration used when nothing is set
func DefaultValidationConfig() ValidationConfig {
	return NewValidationConfig(ValidationSettings{})
}

func (c ValidationConfig) BackendEnabled() bool             { return c.backendEnabled }
func (c ValidationConfig) BackendProvider() BackendProvider { return c.backendProvider }
func (c ValidationConfig) StrictMode() bool                 { return c.strictMode }
func (c ValidationConfig) MinimumConfidence() float64       { return c.minimumConfidence }
func (c ValidationConfig) MaxFileSizeBytes() int64          { return c.maxFileSizeBytes }
func (c ValidationConfig) RequestTimeout() time.Duration    { return c.requestTimeout }

// EffectiveProvider returns ProviderNone when the backend is disabled
func (c ValidationConfig) EffectiveProvider() BackendProvider {
	if !c.backendEnabled {
		return ProviderNone
	}
	return c.backendProvider
}

// ExtensionAllowed reports whether ext (with or without a dot, any case) is allowed
func (c ValidationConfig) ExtensionAllowed(ext string) bool {
	_, ok := c.allowedExtensions[NormalizeExtension(ext)]
	return ok
}

// AllowedExtensions returns the allowed extensions sorted
func (c ValidationConfig) AllowedExtensions() []string {
	out := make([]string, 0, len(c.allowedExtensions))
	for ext := range c.allowedExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// NormalizeExtension lower-cases ext and strips a leading dot
func NormalizeExtension(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}
