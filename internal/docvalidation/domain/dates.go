package domain

import (
	"strings"
	"time"
)

// DateLayout is the canonical layout of extracted date fields
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	"02/01/2006",
	"02.01.2006",
	"02-01-2006",
	"2006/01/02",
	time.RFC3339,
}

// ParseDate reads a document date. Day-first layouts are tried before
// anything else since French documents print DD/MM/YYYY.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CanonicalDate rewrites a parseable date as YYYY-MM-DD and leaves anything else untouched
func CanonicalDate(s string) string {
	if t, ok := ParseDate(s); ok {
		return t.Format(DateLayout)
	}
	return strings.TrimSpace(s)
}
