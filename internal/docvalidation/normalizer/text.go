package normalizer

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
)

// Extractor pulls one field out of OCR text. The first capture group is the value.
type Extractor struct {
	Field   string
	Pattern *regexp.Regexp
	Clean   func(string) string
}

const datePattern = `(\d{2}[/.\-]\d{2}[/.\-]\d{4}|\d{4}-\d{2}-\d{2})`

const licenceCategory = `(?:AM|A1|A2|BE|B1|C1E|C1|CE|D1E|D1|DE|A|B|C|D)`

var (
	expiryDateRe = regexp.MustCompile(`(?i)(?:date\s+d'expiration|expir\w*|valable\s+jusqu'?\s*au|valid\s+until|fin\s+de\s+validit[ée]|4b\.)(?:\s+le)?\s*[:.]?\s*` + datePattern)
	birthDateRe  = regexp.MustCompile(`(?i)(?:n[ée]e?\s+le|date\s+de\s+naissance|date\s+of\s+birth|born)\s*[:.]?\s*` + datePattern)

	licenceNumberRe     = regexp.MustCompile(`(?i)(?:n[°o]\s*(?:de\s+)?permis|licen[cs]e\s*(?:no\.?|number|n°)|5\.)\s*[:.]?\s*([A-Z0-9]{6,15})\b`)
	licenceCategoriesRe = regexp.MustCompile(`(?i)(?:cat[ée]gories?|9\.)\s*[:.]?\s*(` + licenceCategory + `(?:[\s,/;]+` + licenceCategory + `)*)\b`)

	idNumberRe       = regexp.MustCompile(`(?i)(?:n[°o]|num[ée]ro)\s*(?:de\s+(?:carte|document)\s*)?[:.]?\s*([A-Z0-9]{9,12})\b`)
	passportNumberRe = regexp.MustCompile(`\b(\d{2}[A-Z]{2}\d{5})\b`)
	passportMRZRe    = regexp.MustCompile(`(P<[A-Z]{3}[A-Z<]{10,})`)

	socialSecurityRe = regexp.MustCompile(`\b([12]\s?\d{2}\s?\d{2}\s?(?:\d{2}|2A|2B)\s?\d{3}\s?\d{3}\s?\d{2})\b`)
	memberNumberRe   = regexp.MustCompile(`(?i)(?:adh[ée]rent|member|contrat|policy)\s*(?:n[°o]|no\.?|number)?\s*[:.]?\s*([A-Z0-9]{6,20})\b`)

	plateRe             = regexp.MustCompile(`\b([A-Z]{2}-\d{3}-[A-Z]{2})\b`)
	vinRe               = regexp.MustCompile(`\b([A-HJ-NPR-Z0-9]{17})\b`)
	firstRegistrationRe = regexp.MustCompile(`(?i)(?:date\s+de\s+premi[èe]re\s+immatriculation|B\.)\s*[:.]?\s*` + datePattern)

	siretRe            = regexp.MustCompile(`\b(\d{3}\s?\d{3}\s?\d{3}\s?\d{5})\b`)
	registrationDateRe = regexp.MustCompile(`(?i)(?:immatricul[ée]e?\s+le|date\s+d'immatriculation)\s*[:.]?\s*` + datePattern)

	ibanRe = regexp.MustCompile(`\b(FR\d{2}(?:\s?[0-9A-Z]{4}){5}\s?[0-9A-Z]{3})\b`)
	bicRe  = regexp.MustCompile(`(?i)(?:BIC|SWIFT)\s*[:.]?\s*([A-Z]{6}[A-Z0-9]{2}(?:[A-Z0-9]{3})?)\b`)

	issueDateRe         = regexp.MustCompile(`(?i)(?:d[ée]livr[ée]e?\s+le|issued\s+on|fait\s+le|date\s+d'[ée]mission)\s*[:.]?\s*` + datePattern)
	certificateNumberRe = regexp.MustCompile(`(?i)(?:certificat|certificate|attestation)\s*(?:n[°o]|no\.?|number)\s*[:.]?\s*([A-Z0-9\-]{4,20})\b`)
)

// Extractors returns the field extractors of a category. Unknown has none.
func Extractors(category domain.DocumentCategory) []Extractor {
	switch category {
	case domain.CategoryDrivingLicense:
		return []Extractor{
			{Field: "number", Pattern: licenceNumberRe, Clean: strings.ToUpper},
			{Field: "expiryDate", Pattern: expiryDateRe, Clean: domain.CanonicalDate},
			{Field: "categories", Pattern: licenceCategoriesRe, Clean: cleanLicenceCategories},
		}
	case domain.CategoryIDCard:
		return []Extractor{
			{Field: "number", Pattern: idNumberRe, Clean: strings.ToUpper},
			{Field: "birthDate", Pattern: birthDateRe, Clean: domain.CanonicalDate},
			{Field: "expiryDate", Pattern: expiryDateRe, Clean: domain.CanonicalDate},
		}
	case domain.CategoryPassport:
		return []Extractor{
			{Field: "number", Pattern: passportNumberRe},
			{Field: "mrz", Pattern: passportMRZRe},
			{Field: "expiryDate", Pattern: expiryDateRe, Clean: domain.CanonicalDate},
		}
	case domain.CategoryInsuranceCard:
		return []Extractor{
			{Field: "socialSecurityNumber", Pattern: socialSecurityRe, Clean: removeSpaces},
			{Field: "memberNumber", Pattern: memberNumberRe, Clean: strings.ToUpper},
			{Field: "expiryDate", Pattern: expiryDateRe, Clean: domain.CanonicalDate},
		}
	case domain.CategoryVehicleRegistration:
		return []Extractor{
			{Field: "plate", Pattern: plateRe},
			{Field: "vin", Pattern: vinRe},
			{Field: "firstRegistrationDate", Pattern: firstRegistrationRe, Clean: domain.CanonicalDate},
		}
	case domain.CategoryBusinessRegistration:
		return []Extractor{
			{Field: "siret", Pattern: siretRe, Clean: removeSpaces},
			{Field: "registrationDate", Pattern: registrationDateRe, Clean: domain.CanonicalDate},
		}
	case domain.CategoryBankProof:
		return []Extractor{
			{Field: "iban", Pattern: ibanRe, Clean: removeSpaces},
			{Field: "bic", Pattern: bicRe, Clean: strings.ToUpper},
		}
	case domain.CategoryCertificate:
		return []Extractor{
			{Field: "certificateNumber", Pattern: certificateNumberRe, Clean: strings.ToUpper},
			{Field: "issueDate", Pattern: issueDateRe, Clean: domain.CanonicalDate},
		}
	default:
		return nil
	}
}

// FromText runs the category extractors over OCR text.
// confidence = fields found / fields defined, and the result is valid at 0.5 or more.
// With an Unknown expectation every category is scored and the best one kept.
// now resolves the century of two-digit years in a machine readable zone.
func FromText(text string, expected domain.DocumentCategory, now time.Time) *domain.ValidationResult {
	if expected.IsKnown() {
		return scoreCategory(text, expected, now)
	}

	var best *domain.ValidationResult
	for _, category := range domain.AllCategories() {
		candidate := scoreCategory(text, category, now)
		if best == nil || candidate.Confidence > best.Confidence {
			best = candidate
		}
	}
	return best
}

func scoreCategory(text string, category domain.DocumentCategory, now time.Time) *domain.ValidationResult {
	extractors := Extractors(category)
	fields := make(map[string]any, len(extractors))

	for _, ex := range extractors {
		match := ex.Pattern.FindStringSubmatch(text)
		if len(match) < 2 {
			continue
		}
		value := strings.TrimSpace(match[1])
		if ex.Clean != nil {
			value = ex.Clean(value)
		}
		if value != "" {
			fields[ex.Field] = value
		}
	}

	if category == domain.CategoryPassport || category == domain.CategoryIDCard {
		applyMRZ(text, category, now, fields)
	}

	found := 0
	for _, ex := range extractors {
		if _, ok := fields[ex.Field]; ok {
			found++
		}
	}
	confidence := 0.0
	if len(extractors) > 0 {
		confidence = float64(found) / float64(len(extractors))
	}

	detected := category
	if len(fields) == 0 {
		detected = domain.CategoryUnknown
	}

	result := domain.NewResult(confidence >= 0.5, confidence, detected)
	for k, v := range fields {
		result.ExtractedFields[k] = v
	}
	return result
}

// applyMRZ fills fields the printed text did not yield from a machine readable
// zone whose check digits match. Names and nationality only come from the zone.
func applyMRZ(text string, category domain.DocumentCategory, now time.Time, fields map[string]any) {
	mrz, ok := ParseMRZ(text, now)
	if !ok || !mrz.ChecksValid {
		return
	}
	if (category == domain.CategoryPassport) != (mrz.Format == FormatTD3) {
		return
	}

	fill := func(field, value string) {
		if _, exists := fields[field]; !exists && value != "" {
			fields[field] = value
		}
	}
	fill("number", mrz.Number)
	fill("expiryDate", mrz.ExpiryDate)
	if category == domain.CategoryIDCard {
		fill("birthDate", mrz.BirthDate)
	}
	fill("lastName", mrz.LastName)
	fill("firstName", mrz.FirstNames)
	fill("nationality", mrz.Nationality)
}

// NoTextDetected marks a result whose backend returned no text at all
func NoTextDetected(r *domain.ValidationResult, backend string) {
	r.AddIssue(domain.NewIssue(domain.SeverityWarning, domain.CodeNoTextDetected,
		fmt.Sprintf("No text detected by %s; the document may be unreadable", backend)))
}

func removeSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}

var licenceCategorySplit = regexp.MustCompile(`[\s,/;]+`)

func cleanLicenceCategories(s string) string {
	parts := licenceCategorySplit.Split(strings.ToUpper(s), -1)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}
