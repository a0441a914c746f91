package domain

import "math"

// ValidationResult is threaded through every pipeline stage.
// Stages append issues and may only turn IsValid from true to false.
type ValidationResult struct {
	IsValid          bool             `json:"isValid"`
	Confidence       float64          `json:"confidence"`
	DocumentCategory DocumentCategory `json:"documentCategory"`
	ExtractedFields  map[string]any   `json:"extractedFields"`
	Issues           []Issue          `json:"issues"`
	Suggestions      []string         `json:"suggestions"`
}

// NewResult creates an empty result with the given verdict and confidence
func NewResult(isValid bool, confidence float64, category DocumentCategory) *ValidationResult {
	r := &ValidationResult{
		IsValid:          isValid,
		DocumentCategory: category,
		ExtractedFields:  map[string]any{},
		Issues:           []Issue{},
		Suggestions:      []string{},
	}
	r.SetConfidence(confidence)
	return r
}

// FailedResult is the terminal result for internal faults
func FailedResult(message string) *ValidationResult {
	r := NewResult(false, 0, CategoryUnknown)
	r.AddIssue(NewIssue(SeverityError, CodeValidationFailed, message))
	return r
}

// AddIssue appends an issue. An error issue forces IsValid to false.
func (r *ValidationResult) AddIssue(issue Issue) {
	r.Issues = append(r.Issues, issue)
	if issue.Severity == SeverityError {
		r.IsValid = false
	}
}

// AddSuggestion appends a suggestion unless it is already present
func (r *ValidationResult) AddSuggestion(s string) {
	if s == "" {
		return
	}
	for _, existing := range r.Suggestions {
		if existing == s {
			return
		}
	}
	r.Suggestions = append(r.Suggestions, s)
}

// SetConfidence stores c clamped to [0, 1]. NaN becomes 0.
func (r *ValidationResult) SetConfidence(c float64) {
	r.Confidence = ClampConfidence(c)
}

// ScaleConfidence multiplies the confidence by factor
func (r *ValidationResult) ScaleConfidence(factor float64) {
	r.SetConfidence(r.Confidence * factor)
}

// HasErrors reports whether any error-severity issue is present
func (r *ValidationResult) HasErrors() bool {
	return r.HasSeverity(SeverityError)
}

// HasSeverity reports whether an issue of the given severity is present
func (r *ValidationResult) HasSeverity(s Severity) bool {
	for _, issue := range r.Issues {
		if issue.Severity == s {
			return true
		}
	}
	return false
}

// HasIssue reports whether an issue with the given code is present
func (r *ValidationResult) HasIssue(code string) bool {
	for _, issue := range r.Issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}

// Field returns an extracted field as a string
func (r *ValidationResult) Field(name string) (string, bool) {
	v, ok := r.ExtractedFields[name]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Clone returns a deep copy so later stages never mutate an earlier stage's value
func (r *ValidationResult) Clone() *ValidationResult {
	out := &ValidationResult{
		IsValid:          r.IsValid,
		Confidence:       r.Confidence,
		DocumentCategory: r.DocumentCategory,
		ExtractedFields:  make(map[string]any, len(r.ExtractedFields)),
		Issues:           make([]Issue, len(r.Issues)),
		Suggestions:      make([]string, len(r.Suggestions)),
	}
	for k, v := range r.ExtractedFields {
		out.ExtractedFields[k] = v
	}
	copy(out.Issues, r.Issues)
	copy(out.Suggestions, r.Suggestions)
	return out
}

// ClampConfidence bounds c to [0, 1]
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
