package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventDocumentUploaded            = "document.uploaded"
	EventDocumentValidationCompleted = "document.validation.completed"
)

// Exchange names
const (
	ExchangeDocumentEvents = "document.events"
	ExchangeDeadLetter     = "dlx.events"
)

// Event is the envelope of every message on the bus
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// DocumentUploadedEvent is published by the upload service once the bytes are stored
type DocumentUploadedEvent struct {
	UserID           string            `json:"user_id"`
	FileReference    string            `json:"file_reference"`
	ExpectedCategory string            `json:"expected_category"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// IssueSummary is the compact form of an issue carried in events
type IssueSummary struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Field    string `json:"field,omitempty"`
}

// DocumentValidatedEvent is published after every validation
type DocumentValidatedEvent struct {
	ValidationID     string         `json:"validation_id"`
	UserID           string         `json:"user_id"`
	FileReference    string         `json:"file_reference"`
	Fingerprint      string         `json:"fingerprint,omitempty"`
	ExpectedCategory string         `json:"expected_category"`
	DetectedCategory string         `json:"detected_category"`
	IsValid          bool           `json:"is_valid"`
	Confidence       float64        `json:"confidence"`
	Issues           []IssueSummary `json:"issues"`
	Backend          string         `json:"backend"`
	FellBack         bool           `json:"fell_back"`
	ValidatedAt      time.Time      `json:"validated_at"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.NewString()
}
