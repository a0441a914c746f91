package normalizer

import (
	"strings"
	"time"
)

// MRZ formats (ICAO 9303)
const (
	FormatTD1 = "TD1" // identity cards, 3 lines of 30
	FormatTD3 = "TD3" // passports, 2 lines of 44
)

// MRZ holds the fields read from a machine readable zone. Dates are YYYY-MM-DD.
type MRZ struct {
	Format       string
	DocumentCode string
	Issuer       string
	Number       string
	Nationality  string
	BirthDate    string
	ExpiryDate   string
	Sex          string
	LastName     string
	FirstNames   string

	// ChecksValid is true when the number, birth date and expiry check digits match
	ChecksValid bool
}

// ParseMRZ finds a TD1 or TD3 zone in OCR text. OCR often splits the zone
// with spaces, so whitespace inside a line is ignored. Birth years after
// now's year are placed in the previous century.
func ParseMRZ(text string, now time.Time) (*MRZ, bool) {
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
		if isMRZLine(line) {
			lines = append(lines, line)
		} else {
			lines = append(lines, "")
		}
	}

	for i := range lines {
		if i+1 < len(lines) && len(lines[i]) == 44 && len(lines[i+1]) == 44 {
			return parseTD3(lines[i], lines[i+1], now.Year()), true
		}
		if i+2 < len(lines) && len(lines[i]) == 30 && len(lines[i+1]) == 30 && len(lines[i+2]) == 30 {
			return parseTD1(lines[i], lines[i+1], lines[i+2], now.Year()), true
		}
	}
	return nil, false
}

func isMRZLine(s string) bool {
	if len(s) != 30 && len(s) != 44 {
		return false
	}
	if !strings.Contains(s, "<") {
		return false
	}
	for _, c := range s {
		if !(c == '<' || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}

// Line 1: P<ISSUER LAST<<FIRST<MIDDLE
// Line 2: number(9) check nationality(3) birth(6) check sex expiry(6) check ...
func parseTD3(line1, line2 string, currentYear int) *MRZ {
	m := &MRZ{
		Format:       FormatTD3,
		DocumentCode: cleanMRZ(line1[0:2]),
		Issuer:       cleanMRZ(line1[2:5]),
		Number:       cleanMRZ(line2[0:9]),
		Nationality:  cleanMRZ(line2[10:13]),
		BirthDate:    mrzDate(line2[13:19], false, currentYear),
		Sex:          mrzSex(line2[20]),
		ExpiryDate:   mrzDate(line2[21:27], true, currentYear),
	}
	m.LastName, m.FirstNames = mrzNames(line1[5:])
	m.ChecksValid = checkDigitMatches(line2[0:9], line2[9]) &&
		checkDigitMatches(line2[13:19], line2[19]) &&
		checkDigitMatches(line2[21:27], line2[27])
	return m
}

// Line 1: code(2) issuer(3) number(9) check ...
// Line 2: birth(6) check sex expiry(6) check nationality(3) ...
// Line 3: LAST<<FIRST<MIDDLE
func parseTD1(line1, line2, line3 string, currentYear int) *MRZ {
	m := &MRZ{
		Format:       FormatTD1,
		DocumentCode: cleanMRZ(line1[0:2]),
		Issuer:       cleanMRZ(line1[2:5]),
		Number:       cleanMRZ(line1[5:14]),
		BirthDate:    mrzDate(line2[0:6], false, currentYear),
		Sex:          mrzSex(line2[7]),
		ExpiryDate:   mrzDate(line2[8:14], true, currentYear),
		Nationality:  cleanMRZ(line2[15:18]),
	}
	m.LastName, m.FirstNames = mrzNames(line3)
	m.ChecksValid = checkDigitMatches(line1[5:14], line1[14]) &&
		checkDigitMatches(line2[0:6], line2[6]) &&
		checkDigitMatches(line2[8:14], line2[14])
	return m
}

// checkDigitMatches applies the 7-3-1 weighting
func checkDigitMatches(field string, check byte) bool {
	if check < '0' || check > '9' {
		return false
	}
	weights := [3]int{7, 3, 1}
	sum := 0
	for i := 0; i < len(field); i++ {
		var v int
		switch c := field[i]; {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c >= 'A' && c <= 'Z':
			v = int(c-'A') + 10
		case c == '<':
			v = 0
		default:
			return false
		}
		sum += v * weights[i%3]
	}
	return sum%10 == int(check-'0')
}

func cleanMRZ(s string) string {
	return strings.ReplaceAll(s, "<", "")
}

func mrzNames(s string) (last, first string) {
	parts := strings.SplitN(strings.TrimRight(s, "<"), "<<", 2)
	last = strings.TrimSpace(strings.ReplaceAll(parts[0], "<", " "))
	if len(parts) == 2 {
		first = strings.TrimSpace(strings.ReplaceAll(parts[1], "<", " "))
	}
	return last, first
}

func mrzSex(c byte) string {
	if c == 'M' || c == 'F' {
		return string(c)
	}
	return ""
}

// Expiry dates are always this century; birth dates later than the current
// year belong to the previous one
func mrzDate(yymmdd string, expiry bool, currentYear int) string {
	t, err := time.Parse("060102", yymmdd)
	if err != nil {
		return ""
	}
	year := 2000 + t.Year()%100
	if !expiry && year > currentYear {
		year -= 100
	}
	return time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}
