package events

import (
	"context"
	"time"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/processor"
	"github.com/ecodeli/ecodeli-backend/pkg/logger"
	"github.com/ecodeli/ecodeli-backend/pkg/messaging"
)

// Source is the service name stamped on published events
const Source = "docvalidation-service"

// ValidationEventPublisher publishes validation events
type ValidationEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewValidationEventPublisher declares the document exchange and creates a publisher
func NewValidationEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*ValidationEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeDocumentEvents, Source, log)
	if err != nil {
		return nil, err
	}
	return newValidationEventPublisher(publisher, log), nil
}

func newValidationEventPublisher(publisher *messaging.Publisher, log *logger.Logger) *ValidationEventPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &ValidationEventPublisher{
		publisher: publisher,
		logger:    log.WithComponent("events"),
	}
}

// PublishValidated publishes a document.validation.completed event
func (p *ValidationEventPublisher) PublishValidated(ctx context.Context, event *messaging.DocumentValidatedEvent) error {
	if p == nil {
		return nil
	}
	if err := p.publisher.Publish(ctx, messaging.EventDocumentValidationCompleted, event); err != nil {
		p.logger.Error().Err(err).Str("validation_id", event.ValidationID).Msg("failed to publish validation event")
		return err
	}
	return nil
}

// Validation carries what a validated event is built from
type Validation struct {
	ID            string
	UserID        string
	FileReference string
	Fingerprint   string
	Expected      domain.DocumentCategory
	Result        *domain.ValidationResult
	Outcome       processor.Outcome
	At            time.Time
}

// NewValidatedEvent builds the event payload. Issue messages are left out:
// consumers key on codes.
func NewValidatedEvent(v Validation) *messaging.DocumentValidatedEvent {
	issues := make([]messaging.IssueSummary, 0, len(v.Result.Issues))
	for _, issue := range v.Result.Issues {
		issues = append(issues, messaging.IssueSummary{
			Code:     issue.Code,
			Severity: string(issue.Severity),
			Field:    issue.Field,
		})
	}

	return &messaging.DocumentValidatedEvent{
		ValidationID:     v.ID,
		UserID:           v.UserID,
		FileReference:    v.FileReference,
		Fingerprint:      v.Fingerprint,
		ExpectedCategory: string(v.Expected),
		DetectedCategory: string(v.Result.DocumentCategory),
		IsValid:          v.Result.IsValid,
		Confidence:       v.Result.Confidence,
		Issues:           issues,
		Backend:          v.Outcome.Backend,
		FellBack:         v.Outcome.FellBack,
		ValidatedAt:      v.At.UTC(),
	}
}
