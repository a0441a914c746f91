package composer

import (
	"context"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/pkg/i18n"
)

// Suggestion message keys
const (
	KeyErrorCurrent    = "suggestions.error_current"
	KeyErrorLegible    = "suggestions.error_legible"
	KeyWarningLighting = "suggestions.warning_lighting"
	KeyWarningFraming  = "suggestions.warning_framing"
)

// Composer turns the issues of a result into user-facing suggestions.
// Suggestions are localized with the locale carried by the context.
type Composer struct{}

// New creates a composer
func New() *Composer {
	return &Composer{}
}

// Compose returns a copy of r with suggestions appended. Existing suggestions
// are kept and nothing is added twice.
func (c *Composer) Compose(ctx context.Context, r *domain.ValidationResult) *domain.ValidationResult {
	out := r.Clone()
	t := i18n.LocalizerFromContext(ctx)

	for _, issue := range out.Issues {
		switch issue.Severity {
		case domain.SeverityError:
			out.AddSuggestion(t.T(KeyErrorCurrent))
			out.AddSuggestion(t.T(KeyErrorLegible))
		case domain.SeverityWarning:
			out.AddSuggestion(t.T(KeyWarningLighting))
			out.AddSuggestion(t.T(KeyWarningFraming))
		}
	}

	out.AddSuggestion(t.T(CategoryKey(out.DocumentCategory)))
	return out
}

// CategoryKey returns the message key of the static suggestion for a category
func CategoryKey(category domain.DocumentCategory) string {
	switch category {
	case domain.CategoryDrivingLicense,
		domain.CategoryIDCard,
		domain.CategoryPassport,
		domain.CategoryInsuranceCard,
		domain.CategoryVehicleRegistration,
		domain.CategoryBusinessRegistration,
		domain.CategoryBankProof,
		domain.CategoryCertificate:
		return "suggestions.category." + string(category)
	default:
		return "suggestions.category." + string(domain.CategoryUnknown)
	}
}
