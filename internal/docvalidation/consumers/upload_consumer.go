package consumers

import (
	"context"
	"fmt"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/service"
	"github.com/ecodeli/ecodeli-backend/pkg/errors"
	"github.com/ecodeli/ecodeli-backend/pkg/logger"
	"github.com/ecodeli/ecodeli-backend/pkg/messaging"
)

// UploadQueue is the queue the service consumes uploads from
const UploadQueue = "docvalidation-service.document-uploads"

// Validator runs a validation for a bus request
type Validator interface {
	Validate(ctx context.Context, req service.Request) (*service.Verdict, error)
}

// UploadConsumer validates documents announced on the document exchange
type UploadConsumer struct {
	consumer  *messaging.Consumer
	validator Validator
	logger    *logger.Logger
}

// NewUploadConsumer declares and binds the upload queue
func NewUploadConsumer(rmq *messaging.RabbitMQ, validator Validator, log *logger.Logger) (*UploadConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, UploadQueue, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeDocumentEvents, messaging.EventDocumentUploaded); err != nil {
		return nil, err
	}

	c := newUploadConsumer(validator, log)
	c.consumer = consumer
	consumer.RegisterHandler(messaging.EventDocumentUploaded, c.handleUploaded)

	return c, nil
}

func newUploadConsumer(validator Validator, log *logger.Logger) *UploadConsumer {
	if log == nil {
		log = logger.Nop()
	}
	return &UploadConsumer{
		validator: validator,
		logger:    log.WithComponent("upload-consumer"),
	}
}

// Start starts consuming messages
func (c *UploadConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *UploadConsumer) handleUploaded(ctx context.Context, event *messaging.Event) error {
	var data messaging.DocumentUploadedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return messaging.Permanent(fmt.Errorf("decode %s: %w", event.Type, err))
	}
	if data.FileReference == "" {
		return messaging.Permanent(fmt.Errorf("%s without file reference", event.Type))
	}

	ctx = messaging.WithCorrelationID(ctx, correlationID(event))

	c.logger.Info().
		Str("event_id", event.ID).
		Str("user_id", data.UserID).
		Str("expected_category", data.ExpectedCategory).
		Msg("received document uploaded event")

	verdict, err := c.validator.Validate(ctx, service.Request{
		FileReference:    data.FileReference,
		ExpectedCategory: domain.ParseCategory(data.ExpectedCategory),
		UserID:           data.UserID,
		Metadata:         data.Metadata,
	})
	if err != nil {
		if errors.Is(err, errors.ErrUnresolvable) {
			// Redelivering an unresolvable reference cannot succeed
			return messaging.Permanent(err)
		}
		return err
	}

	c.logger.Debug().
		Str("validation_id", verdict.ValidationID).
		Bool("valid", verdict.Result.IsValid).
		Msg("uploaded document validated")
	return nil
}

func correlationID(event *messaging.Event) string {
	if event.CorrelationID != "" {
		return event.CorrelationID
	}
	return event.ID
}
