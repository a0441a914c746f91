package rules

import (
	"context"
	"strings"
	"time"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/validation"
	"github.com/ecodeli/ecodeli-backend/pkg/i18n"
	"github.com/ecodeli/ecodeli-backend/pkg/logger"
)

const (
	// ExpiryWarningWindow is how close to expiry a document gets EXPIRING_SOON
	ExpiryWarningWindow = 90 * 24 * time.Hour

	missingFieldsFactor = 0.8
)

// ApprovedDocumentFinder looks up an approved document of a category for a user.
// It returns nil, nil when none exists.
type ApprovedDocumentFinder interface {
	FindApprovedDocument(ctx context.Context, userID string, category domain.DocumentCategory) (*domain.ApprovedDocument, error)
}

// Subject identifies who submitted the document and what they claimed it is
type Subject struct {
	UserID   string
	Expected domain.DocumentCategory
	// FilenameOnly is set when the result came from the filename classifier,
	// which reads no content and so has no fields to check
	FilenameOnly bool
}

// Engine applies the per-category business rules and the duplicate check
type Engine struct {
	cfg    domain.ValidationConfig
	finder ApprovedDocumentFinder
	french *validation.FrenchValidator
	now    func() time.Time
	log    *logger.Logger
}

// Option customizes an Engine
type Option func(*Engine)

// WithClock overrides the time source used for expiry checks
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a rule engine. finder may be nil, which disables the
// duplicate lookup.
func NewEngine(cfg domain.ValidationConfig, finder ApprovedDocumentFinder, log *logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	e := &Engine{
		cfg:    cfg,
		finder: finder,
		french: validation.NewFrenchValidator(),
		now:    time.Now,
		log:    log.WithComponent("rules"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply returns a copy of r with the business rules applied.
//
// Rules run only for a valid result whose confidence reaches the configured
// minimum. An extracted expiry date in the past is the exception: it
// invalidates any valid result whatever its confidence. Category rules run for
// every backend that read the content, even one that extracted nothing; the
// duplicate check runs for filename-only results too.
func (e *Engine) Apply(ctx context.Context, r *domain.ValidationResult, subject Subject) *domain.ValidationResult {
	out := r.Clone()
	if !out.IsValid {
		return out
	}

	category := out.DocumentCategory
	if category == domain.CategoryUnknown {
		category = subject.Expected
	}

	if out.Confidence < e.cfg.MinimumConfidence() {
		if expiry, ok := out.Field("expiryDate"); ok && hasExpiryRule(category) {
			if t, ok := domain.ParseDate(expiry); ok && e.expired(t) {
				out.AddIssue(expiredIssue(expiry))
			}
		}
		return out
	}

	if !subject.FilenameOnly {
		e.categoryRules(out, category)
	}

	e.checkDuplicate(ctx, out, subject.UserID, category)
	return out
}

func (e *Engine) categoryRules(r *domain.ValidationResult, category domain.DocumentCategory) {
	switch category {
	case domain.CategoryDrivingLicense:
		e.drivingLicense(r)
	case domain.CategoryBusinessRegistration:
		e.businessRegistration(r)
	case domain.CategoryBankProof:
		e.bankProof(r)
	case domain.CategoryIDCard, domain.CategoryPassport, domain.CategoryInsuranceCard:
		if expiry, ok := r.Field("expiryDate"); ok && expiry != "" {
			e.checkExpiry(r, expiry)
		}
	case domain.CategoryVehicleRegistration, domain.CategoryCertificate, domain.CategoryUnknown:
	}
}

func hasExpiryRule(c domain.DocumentCategory) bool {
	switch c {
	case domain.CategoryDrivingLicense, domain.CategoryIDCard, domain.CategoryPassport, domain.CategoryInsuranceCard:
		return true
	default:
		return false
	}
}

// RequiredFields returns the fields a category must carry, if any
func RequiredFields(c domain.DocumentCategory) []string {
	switch c {
	case domain.CategoryDrivingLicense:
		return []string{"number", "expiryDate", "categories"}
	case domain.CategoryBusinessRegistration:
		return []string{"siret"}
	case domain.CategoryBankProof:
		return []string{"iban"}
	default:
		return nil
	}
}

func (e *Engine) drivingLicense(r *domain.ValidationResult) {
	if missing := missingFields(r, RequiredFields(domain.CategoryDrivingLicense)); len(missing) > 0 {
		addMissing(r, missing)
	}
	if expiry, ok := r.Field("expiryDate"); ok && expiry != "" {
		e.checkExpiry(r, expiry)
	}
}

func (e *Engine) businessRegistration(r *domain.ValidationResult) {
	raw, ok := r.Field("siret")
	siret := validation.CleanIdentifier(raw)
	if !ok || siret == "" {
		addMissing(r, []string{"siret"})
		return
	}
	if !validation.IsSIRETFormat(siret) {
		r.AddIssue(domain.NewFieldIssue(domain.SeverityError, domain.CodeInvalidSIRETFormat,
			"SIRET must be exactly 14 digits", "siret"))
		return
	}
	if !validation.ValidateSIRETChecksum(siret) {
		r.AddIssue(domain.NewFieldIssue(domain.SeverityError, domain.CodeInvalidSIRETChecksum,
			"Invalid SIRET checksum", "siret"))
	}
}

func (e *Engine) bankProof(r *domain.ValidationResult) {
	raw, ok := r.Field("iban")
	if !ok || validation.CleanIdentifier(raw) == "" {
		addMissing(r, []string{"iban"})
		return
	}
	if res := e.french.ValidateIBAN(raw); !res.Valid {
		r.AddIssue(domain.NewFieldIssue(domain.SeverityError, domain.CodeInvalidIBAN, res.Message, "iban"))
	}
}

func (e *Engine) checkExpiry(r *domain.ValidationResult, value string) {
	t, ok := domain.ParseDate(value)
	if !ok {
		r.AddIssue(domain.NewFieldIssue(domain.SeverityWarning, domain.CodeInvalidDate,
			"Expiry date could not be read: "+value, "expiryDate"))
		return
	}
	switch {
	case e.expired(t):
		r.AddIssue(expiredIssue(value))
	case t.Before(e.today().Add(ExpiryWarningWindow)):
		r.AddIssue(domain.NewFieldIssue(domain.SeverityWarning, domain.CodeExpiringSoon,
			"Document expires on "+t.Format(domain.DateLayout), "expiryDate"))
	}
}

// expired reports whether a document valid through t is no longer valid today
func (e *Engine) expired(t time.Time) bool {
	return t.Before(e.today())
}

func (e *Engine) today() time.Time {
	now := e.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func expiredIssue(value string) domain.Issue {
	return domain.NewFieldIssue(domain.SeverityError, domain.CodeExpiredDocument,
		"Document expired on "+domain.CanonicalDate(value), "expiryDate")
}

func (e *Engine) checkDuplicate(ctx context.Context, r *domain.ValidationResult, userID string, category domain.DocumentCategory) {
	if e.finder == nil || userID == "" || category == domain.CategoryUnknown {
		return
	}
	existing, err := e.finder.FindApprovedDocument(ctx, userID, category)
	if err != nil {
		e.log.Warn().Err(err).Str("category", string(category)).Msg("duplicate document lookup failed")
		return
	}
	if existing == nil {
		return
	}
	r.AddIssue(domain.NewIssue(domain.SeverityInfo, domain.CodeExistingDocument,
		"An approved document of this category is already on record"))
	r.AddSuggestion(i18n.TFromContext(ctx, "suggestions.replace_existing", map[string]string{
		"category": i18n.TFromContext(ctx, "categories."+string(category)),
	}))
}

func missingFields(r *domain.ValidationResult, required []string) []string {
	var missing []string
	for _, name := range required {
		if !hasValue(r.ExtractedFields[name]) {
			missing = append(missing, name)
		}
	}
	return missing
}

func hasValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	default:
		return true
	}
}

func addMissing(r *domain.ValidationResult, fields []string) {
	issue := domain.NewIssue(domain.SeverityWarning, domain.CodeMissingFields,
		"Missing required fields: "+strings.Join(fields, ", "))
	if len(fields) == 1 {
		issue.Field = fields[0]
	}
	r.AddIssue(issue)
	r.ScaleConfidence(missingFieldsFactor)
}
