package domain

import "strings"

// DocumentCategory is the kind of document a user submits
type DocumentCategory string

const (
	CategoryDrivingLicense       DocumentCategory = "driving_license"
	CategoryIDCard               DocumentCategory = "id_card"
	CategoryPassport             DocumentCategory = "passport"
	CategoryInsuranceCard        DocumentCategory = "insurance_card"
	CategoryVehicleRegistration  DocumentCategory = "vehicle_registration"
	CategoryBusinessRegistration DocumentCategory = "business_registration"
	CategoryBankProof            DocumentCategory = "bank_proof"
	CategoryCertificate          DocumentCategory = "certificate"
	CategoryUnknown              DocumentCategory = "unknown"
)

// AllCategories returns every known category in declaration order.
// CategoryUnknown is not included.
func AllCategories() []DocumentCategory {
	return []DocumentCategory{
		CategoryDrivingLicense,
		CategoryIDCard,
		CategoryPassport,
		CategoryInsuranceCard,
		CategoryVehicleRegistration,
		CategoryBusinessRegistration,
		CategoryBankProof,
		CategoryCertificate,
	}
}

// IsKnown reports whether c is one of AllCategories
func (c DocumentCategory) IsKnown() bool {
	for _, known := range AllCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory maps the wire value, the upper snake form (DRIVING_LICENSE)
// or the camel form (DrivingLicense) to a category. Anything else is Unknown.
func ParseCategory(s string) DocumentCategory {
	key := normalizeCategoryKey(s)
	if key == "" {
		return CategoryUnknown
	}
	for _, c := range AllCategories() {
		if normalizeCategoryKey(string(c)) == key {
			return c
		}
	}
	if alias, ok := categoryAliases[key]; ok {
		return alias
	}
	return CategoryUnknown
}

var categoryAliases = map[string]DocumentCategory{
	"drivinglicence":               CategoryDrivingLicense,
	"driverslicense":               CategoryDrivingLicense,
	"identitycard":                 CategoryIDCard,
	"nationalid":                   CategoryIDCard,
	"businessregistrationdocument": CategoryBusinessRegistration,
	"kbis":                         CategoryBusinessRegistration,
	"rib":                          CategoryBankProof,
	"bankstatement":                CategoryBankProof,
}

func normalizeCategoryKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if r == '_' || r == '-' || r == ' ' || r == '\'' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Severity of an issue. Error > Warning > Info.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Rank orders severities so that error ranks highest
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Issue codes. These strings are persisted by downstream systems and must not change.
const (
	CodeFileAccessError      = "FILE_ACCESS_ERROR"
	CodeFileTooLarge         = "FILE_TOO_LARGE"
	CodeInvalidFormat        = "INVALID_FORMAT"
	CodeCorruptedFile        = "CORRUPTED_FILE"
	CodeSignatureNotVerified = "SIGNATURE_NOT_VERIFIED"
	CodeNoTextDetected       = "NO_TEXT_DETECTED"
	CodeAIParsingError       = "AI_PARSING_ERROR"
	CodeBackendIssue         = "BACKEND_ISSUE"
	CodeTypeMismatch         = "TYPE_MISMATCH"
	CodeMissingFields        = "MISSING_FIELDS"
	CodeExpiredDocument      = "EXPIRED_DOCUMENT"
	CodeExpiringSoon         = "EXPIRING_SOON"
	CodeInvalidDate          = "INVALID_DATE"
	CodeInvalidSIRETFormat   = "INVALID_SIRET_FORMAT"
	CodeInvalidSIRETChecksum = "INVALID_SIRET_CHECKSUM"
	CodeInvalidIBAN          = "INVALID_IBAN"
	CodeExistingDocument     = "EXISTING_DOCUMENT"
	CodeLowConfidence        = "LOW_CONFIDENCE"
	CodeValidationFailed     = "VALIDATION_FAILED"
)

// Issue is a single finding attached to a validation result
type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Field    string   `json:"field,omitempty"`
}

// NewIssue builds an issue without a field reference
func NewIssue(severity Severity, code, message string) Issue {
	return Issue{Severity: severity, Code: code, Message: message}
}

// NewFieldIssue builds an issue bound to an extracted field
func NewFieldIssue(severity Severity, code, message, field string) Issue {
	return Issue{Severity: severity, Code: code, Message: message, Field: field}
}
