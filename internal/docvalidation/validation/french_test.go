package validation_test

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/validation"
	"github.com/stretchr/testify/assert"
)

const (
	validSIRET   = "73282932000076"
	invalidSIRET = "73282932000074"
	validIBAN    = "FR1420041010050500013M02606"
)

func TestValidateSIRETChecksum(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"known valid", validSIRET, true},
		{"all zeros", "00000000000000", true},
		{"known invalid", invalidSIRET, false},
		{"sequential digits", "12345678901234", false},
		{"too short", "7328293200007", false},
		{"too long", "732829320000761", false},
		{"letters", "7328293200007A", false},
		{"empty", "", false},
		{"spaces are not stripped", "732 829 320 00076", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validation.ValidateSIRETChecksum(tt.input))
		})
	}
}

func TestValidateSIRETChecksum_MatchesWeightedSum(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for n := 0; n < 2000; n++ {
		digits := randomDigits(rng, validation.SIRETLength)

		sum := 0
		for i, c := range digits {
			d := int(c - '0')
			if i%2 == 1 {
				d *= 2
				if d > 9 {
					d -= 9
				}
			}
			sum += d
		}

		assert.Equal(t, sum%10 == 0, validation.ValidateSIRETChecksum(digits), digits)
	}
}

func TestValidateSIRETChecksum_SingleDigitMutation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	detected, total := 0, 0

	for n := 0; n < 500; n++ {
		base := makeValidSIRET(rng)
		if !validation.ValidateSIRETChecksum(base) {
			t.Fatalf("generated SIRET %s should be valid", base)
		}

		pos := rng.Intn(validation.SIRETLength)
		replacement := byte('0' + rng.Intn(10))
		if replacement == base[pos] {
			replacement = '0' + (replacement-'0'+1)%10
		}
		mutated := base[:pos] + string(replacement) + base[pos+1:]

		total++
		if !validation.ValidateSIRETChecksum(mutated) {
			detected++
		}
	}

	assert.Greater(t, float64(detected)/float64(total), 0.9)
}

func TestValidateIBANChecksum(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"valid with letters in account", validIBAN, true},
		{"valid numeric", "FR7630006000011234567890189", true},
		{"another valid", "FR7630004000031234567890143", true},
		{"wrong check digits", "FR1520041010050500013M02606", false},
		{"wrong country", "DE1420041010050500013M02606", false},
		{"too short", "FR142004101005050001302606", false},
		{"too long", "FR1420041010050500013M026061", false},
		{"lowercase letters", "FR1420041010050500013m02606", false},
		{"punctuation", "FR1420041010050500013-02606", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validation.ValidateIBANChecksum(tt.input))
		})
	}
}

func TestValidateIBANChecksum_DetectsSingleCharacterSubstitution(t *testing.T) {
	for _, iban := range []string{validIBAN, "FR7630006000011234567890189"} {
		for i := 0; i < len(iban); i++ {
			alphabet := "0123456789"
			if iban[i] >= 'A' && iban[i] <= 'Z' {
				alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
			}
			for _, r := range alphabet {
				if byte(r) == iban[i] {
					continue
				}
				mutated := iban[:i] + string(r) + iban[i+1:]
				assert.False(t, validation.ValidateIBANChecksum(mutated), "substitution at %d accepted: %s", i, mutated)
			}
		}
	}
}

func TestFrenchValidator_ValidateIBAN(t *testing.T) {
	v := validation.NewFrenchValidator()

	tests := []struct {
		name          string
		input         string
		wantValid     bool
		wantFormatted string
	}{
		{"spaced input", "FR14 2004 1010 0505 0001 3M02 606", true, "FR14 2004 1010 0505 0001 3M02 606"},
		{"lowercase input", strings.ToLower(validIBAN), true, "FR14 2004 1010 0505 0001 3M02 606"},
		{"german IBAN", "DE89370400440532013000", false, ""},
		{"bad checksum", "FR1520041010050500013M02606", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.ValidateIBAN(tt.input)
			assert.Equal(t, tt.wantValid, got.Valid)
			assert.Equal(t, tt.wantFormatted, got.Formatted)
			if !tt.wantValid {
				assert.NotEmpty(t, got.Message)
			}
		})
	}
}

func TestFrenchValidator_ValidateSIRET(t *testing.T) {
	v := validation.NewFrenchValidator()

	got := v.ValidateSIRET("732 829 320 00076")
	assert.True(t, got.Valid)
	assert.Equal(t, "732 829 320 00076", got.Formatted)

	got = v.ValidateSIRET(invalidSIRET)
	assert.False(t, got.Valid)
	assert.Equal(t, "Invalid SIRET checksum", got.Message)

	got = v.ValidateSIRET("123")
	assert.False(t, got.Valid)
	assert.Equal(t, "SIRET must be exactly 14 digits", got.Message)
}

func randomDigits(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('0' + rng.Intn(10))
	}
	return string(b)
}

// makeValidSIRET fixes the last digit so the weighted sum is a multiple of 10.
// The last index is odd, so its contribution is the doubled-and-reduced value.
func makeValidSIRET(rng *rand.Rand) string {
	prefix := randomDigits(rng, validation.SIRETLength-1)
	for d := 0; d <= 9; d++ {
		candidate := prefix + string(byte('0'+d))
		if validation.ValidateSIRETChecksum(candidate) {
			return candidate
		}
	}
	return ""
}
