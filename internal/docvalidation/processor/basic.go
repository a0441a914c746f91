package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
)

// Confidence levels of the filename heuristic
const (
	BasicMatchConfidence    = 0.8
	BasicMismatchConfidence = 0.6
	BasicNoMatchConfidence  = 0.5
)

// BasicBackend names the filename classifier in outcomes
const BasicBackend = "basic"

// BasicClassifier guesses the category from the filename only.
// It never fails and never raises an error-severity issue.
type BasicClassifier struct{}

// NewBasicClassifier creates the filename classifier
func NewBasicClassifier() *BasicClassifier {
	return &BasicClassifier{}
}

func (c *BasicClassifier) Name() string { return BasicBackend }

func (c *BasicClassifier) Classify(_ context.Context, sub Submission) (*domain.ValidationResult, error) {
	return ValidateFilename(sub.Path, sub.Expected), nil
}

// Keywords returns the filename keywords of a category. Keywords of four
// letters or fewer must match a whole filename token; longer ones may appear
// anywhere in the name.
func Keywords(category domain.DocumentCategory) []string {
	switch category {
	case domain.CategoryDrivingLicense:
		return []string{"permis", "license", "licence", "driving", "conduire"}
	case domain.CategoryIDCard:
		return []string{"cni", "identite", "identity", "idcard"}
	case domain.CategoryPassport:
		return []string{"passeport", "passport"}
	case domain.CategoryInsuranceCard:
		return []string{"vitale", "mutuelle", "insurance", "assurance"}
	case domain.CategoryVehicleRegistration:
		return []string{"cartegrise", "carte_grise", "grise", "vehicule", "vehicle"}
	case domain.CategoryBusinessRegistration:
		return []string{"kbis", "siret", "siren", "sirene", "business"}
	case domain.CategoryBankProof:
		return []string{"rib", "iban", "bank", "banque", "bancaire"}
	case domain.CategoryCertificate:
		return []string{"certificat", "certificate", "attestation", "diplome", "diploma"}
	default:
		return nil
	}
}

// ValidateFilename runs the keyword table over the base name of path
func ValidateFilename(path string, expected domain.DocumentCategory) *domain.ValidationResult {
	detected := DetectCategory(path)

	switch {
	case detected == domain.CategoryUnknown:
		return domain.NewResult(true, BasicNoMatchConfidence, domain.CategoryUnknown)
	case expected.IsKnown() && detected != expected:
		r := domain.NewResult(true, BasicMismatchConfidence, detected)
		r.AddIssue(domain.NewFieldIssue(domain.SeverityWarning, domain.CodeTypeMismatch,
			fmt.Sprintf("Filename suggests %s, expected %s", detected, expected), "documentType"))
		return r
	default:
		return domain.NewResult(true, BasicMatchConfidence, detected)
	}
}

// DetectCategory returns the first category, in declaration order, whose
// keywords match the filename
func DetectCategory(path string) domain.DocumentCategory {
	name := foldName(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	if name == "" || name == "." {
		return domain.CategoryUnknown
	}

	tokens := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for _, category := range domain.AllCategories() {
		for _, keyword := range Keywords(category) {
			if keywordMatches(name, tokens, keyword) {
				return category
			}
		}
	}
	return domain.CategoryUnknown
}

func keywordMatches(name string, tokens []string, keyword string) bool {
	if len(keyword) > 4 {
		return strings.Contains(name, keyword)
	}
	for _, tok := range tokens {
		if tok == keyword {
			return true
		}
	}
	return false
}

var accentFolder = strings.NewReplacer(
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"à", "a", "â", "a", "ä", "a",
	"î", "i", "ï", "i",
	"ô", "o", "ö", "o",
	"ù", "u", "û", "u", "ü", "u",
	"ç", "c",
)

func foldName(s string) string {
	return accentFolder.Replace(strings.ToLower(s))
}
