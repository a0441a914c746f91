package validation

import (
	"regexp"
	"strings"
)

const (
	// FrenchIBANLength is the total length of a French IBAN
	FrenchIBANLength = 27
	// FrenchIBANCountry is the country prefix of a French IBAN
	FrenchIBANCountry = "FR"
	// SIRETLength is the number of digits in a SIRET
	SIRETLength = 14
)

var (
	siretPattern     = regexp.MustCompile(`^\d{14}$`)
	frenchIBANFormat = regexp.MustCompile(`^FR\d{2}[0-9A-Z]{23}$`)
)

// FrenchValidator provides French business identifier and bank account checks
type FrenchValidator struct{}

// NewFrenchValidator creates a new French validator
func NewFrenchValidator() *FrenchValidator {
	return &FrenchValidator{}
}

// ValidationResult contains the result of a validation
type ValidationResult struct {
	Valid     bool   `json:"valid"`
	Message   string `json:"message,omitempty"`
	Formatted string `json:"formatted,omitempty"`
}

// ValidateSIRET validates a French establishment identifier (SIRET)
// Format: 14 digits, SIREN (9) + NIC (5)
func (v *FrenchValidator) ValidateSIRET(siret string) *ValidationResult {
	clean := CleanIdentifier(siret)

	if !IsSIRETFormat(clean) {
		return &ValidationResult{
			Valid:   false,
			Message: "SIRET must be exactly 14 digits",
		}
	}

	if !ValidateSIRETChecksum(clean) {
		return &ValidationResult{
			Valid:   false,
			Message: "Invalid SIRET checksum",
		}
	}

	return &ValidationResult{
		Valid:     true,
		Formatted: formatSIRET(clean),
	}
}

// ValidateIBAN validates a French IBAN
// Format: FRkk bbbb bggg ggcc cccc cccc cxx (27 characters)
func (v *FrenchValidator) ValidateIBAN(iban string) *ValidationResult {
	clean := CleanIdentifier(iban)

	if len(clean) != FrenchIBANLength {
		return &ValidationResult{
			Valid:   false,
			Message: "IBAN must be 27 characters (French format)",
		}
	}

	if !strings.HasPrefix(clean, FrenchIBANCountry) {
		return &ValidationResult{
			Valid:   false,
			Message: "French IBAN must start with FR",
		}
	}

	if !frenchIBANFormat.MatchString(clean) {
		return &ValidationResult{
			Valid:   false,
			Message: "Invalid IBAN format",
		}
	}

	if !ValidateIBANChecksum(clean) {
		return &ValidationResult{
			Valid:   false,
			Message: "Invalid IBAN checksum",
		}
	}

	return &ValidationResult{
		Valid:     true,
		Formatted: formatIBAN(clean),
	}
}

// CleanIdentifier removes whitespace, dots and dashes and upper-cases the rest
func CleanIdentifier(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		switch r {
		case ' ', '\t', '\n', '\r', '.', '-', ' ':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsSIRETFormat reports whether s is exactly 14 ASCII digits
func IsSIRETFormat(s string) bool {
	return siretPattern.MatchString(s)
}

// ValidateSIRETChecksum runs the weighted check over a 14-digit code.
// Digits are read left to right; every digit at an odd (0-based) index is
// doubled and reduced by 9 when above 9. The code is valid when the sum of
// all 14 adjusted digits is a multiple of 10. Non 14-digit input is rejected.
func ValidateSIRETChecksum(siret string) bool {
	if !IsSIRETFormat(siret) {
		return false
	}

	sum := 0
	for i, c := range siret {
		digit := int(c - '0')
		if i%2 == 1 {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
	}

	return sum%10 == 0
}

// ValidateIBANChecksum validates a French IBAN using MOD 97-10.
// The code must start with FR and be exactly 27 characters long.
func ValidateIBANChecksum(iban string) bool {
	if len(iban) != FrenchIBANLength || !strings.HasPrefix(iban, FrenchIBANCountry) {
		return false
	}

	// Move country code and check digits to end
	rearranged := iban[4:] + iban[0:4]

	// Letters count as two digits (A=10 ... Z=35), processed digit by digit
	remainder := 0
	for _, c := range rearranged {
		switch {
		case c >= '0' && c <= '9':
			remainder = (remainder*10 + int(c-'0')) % 97
		case c >= 'A' && c <= 'Z':
			value := int(c-'A') + 10
			remainder = (remainder*10 + value/10) % 97
			remainder = (remainder*10 + value%10) % 97
		default:
			return false
		}
	}

	return remainder == 1
}

// formatIBAN formats an IBAN in groups of four
func formatIBAN(iban string) string {
	var b strings.Builder
	for i, c := range iban {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// formatSIRET formats a SIRET as SIREN + NIC
func formatSIRET(siret string) string {
	if len(siret) != SIRETLength {
		return siret
	}
	return siret[0:3] + " " + siret[3:6] + " " + siret[6:9] + " " + siret[9:14]
}
