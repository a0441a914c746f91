package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
)

// Confidence of the terminal result for an unreadable backend answer
const ParsingErrorConfidence = 0.3

// Confidence assumed when the backend answer omits one
const defaultBackendConfidence = 0.5

type backendAnswer struct {
	IsValid       *bool           `json:"isValid"`
	Confidence    json.RawMessage `json:"confidence"`
	DocumentType  string          `json:"documentType"`
	ExtractedData map[string]any  `json:"extractedData"`
	Issues        []any           `json:"issues"`
}

// FromJSON maps a free-text model answer to a result. The first balanced
// {...} object in raw is parsed; anything unreadable yields the terminal
// AI_PARSING_ERROR result.
func FromJSON(raw string, expected domain.DocumentCategory) *domain.ValidationResult {
	object, ok := FirstJSONObject(raw)
	if !ok {
		return ParsingError("No JSON object found in backend response")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(object)))
	dec.UseNumber()

	var answer backendAnswer
	if err := dec.Decode(&answer); err != nil {
		return ParsingError(fmt.Sprintf("Backend response is not valid JSON: %v", err))
	}

	detected := domain.ParseCategory(answer.DocumentType)
	if strings.TrimSpace(answer.DocumentType) == "" {
		detected = expected
	}

	result := domain.NewResult(true, parseConfidence(answer.Confidence), detected)
	for key, value := range answer.ExtractedData {
		if key == "" {
			continue
		}
		result.ExtractedFields[key] = normalizeValue(value)
	}

	for _, issue := range answer.Issues {
		if parsed, ok := parseIssue(issue); ok {
			result.AddIssue(parsed)
		}
	}

	if expected.IsKnown() && detected.IsKnown() && detected != expected {
		result.AddIssue(domain.NewFieldIssue(domain.SeverityWarning, domain.CodeTypeMismatch,
			fmt.Sprintf("Document looks like %s, expected %s", detected, expected), "documentType"))
	}

	if answer.IsValid != nil && !*answer.IsValid {
		result.IsValid = false
	}

	return result
}

// ParsingError is the terminal result for an unusable backend answer
func ParsingError(message string) *domain.ValidationResult {
	r := domain.NewResult(false, ParsingErrorConfidence, domain.CategoryUnknown)
	r.AddIssue(domain.NewIssue(domain.SeverityError, domain.CodeAIParsingError, message))
	return r
}

// FirstJSONObject returns the first balanced {...} substring of s.
// Braces inside JSON strings are ignored.
func FirstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		if end, ok := matchBrace(s, start); ok {
			return s[start : end+1], true
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func parseConfidence(raw json.RawMessage) float64 {
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if text == "" || text == "null" {
		return defaultBackendConfidence
	}
	c, err := strconv.ParseFloat(strings.TrimSuffix(text, "%"), 64)
	if err != nil {
		return defaultBackendConfidence
	}
	if strings.HasSuffix(text, "%") {
		c /= 100
	}
	return domain.ClampConfidence(c)
}

func parseIssue(v any) (domain.Issue, bool) {
	switch issue := v.(type) {
	case string:
		if strings.TrimSpace(issue) == "" {
			return domain.Issue{}, false
		}
		return domain.NewIssue(domain.SeverityWarning, domain.CodeBackendIssue, issue), true
	case map[string]any:
		message := stringValue(issue["message"])
		code := strings.ToUpper(strings.TrimSpace(stringValue(issue["code"])))
		if message == "" && code == "" {
			return domain.Issue{}, false
		}
		if code == "" {
			code = domain.CodeBackendIssue
		}
		return domain.Issue{
			Severity: parseSeverity(stringValue(issue["severity"])),
			Code:     code,
			Message:  message,
			Field:    stringValue(issue["field"]),
		}, true
	default:
		return domain.Issue{}, false
	}
}

func parseSeverity(s string) domain.Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "critical", "high":
		return domain.SeverityError
	case "info", "low":
		return domain.SeverityInfo
	default:
		return domain.SeverityWarning
	}
}

// normalizeValue turns json.Number into its literal text so identifiers such
// as a SIRET keep every digit
func normalizeValue(v any) any {
	switch value := v.(type) {
	case json.Number:
		return value.String()
	case string:
		return strings.TrimSpace(value)
	case []any:
		out := make([]any, len(value))
		for i := range value {
			out[i] = normalizeValue(value[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, inner := range value {
			out[k] = normalizeValue(inner)
		}
		return out
	default:
		return value
	}
}

func stringValue(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case json.Number:
		return value.String()
	default:
		return ""
	}
}
