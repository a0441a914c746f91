package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/processor"
	"github.com/ecodeli/ecodeli-backend/pkg/messaging"
)

type captureChannel struct {
	key  string
	body []byte
	err  error
}

func (c *captureChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	c.key, c.body = key, msg.Body
	return c.err
}

func TestNewValidatedEvent(t *testing.T) {
	result := domain.NewResult(true, 0.9, domain.CategoryBusinessRegistration)
	result.AddIssue(domain.NewFieldIssue(domain.SeverityError, domain.CodeInvalidSIRETChecksum, "Invalid SIRET checksum", "siret"))
	at := time.Date(2026, 10, 15, 16, 30, 0, 0, time.FixedZone("CEST", 2*3600))

	event := NewValidatedEvent(Validation{
		ID:            "v1",
		UserID:        "user-1",
		FileReference: "kbis.pdf",
		Expected:      domain.CategoryBusinessRegistration,
		Result:        result,
		Outcome:       processor.Outcome{Backend: "basic", FellBack: true, Reason: processor.ReasonTimeout},
		At:            at,
	})

	assert.False(t, event.IsValid)
	assert.Equal(t, "business_registration", event.DetectedCategory)
	assert.Equal(t, []messaging.IssueSummary{{Code: "INVALID_SIRET_CHECKSUM", Severity: "error", Field: "siret"}}, event.Issues)
	assert.True(t, event.FellBack)
	assert.Equal(t, time.UTC, event.ValidatedAt.Location())
	assert.Equal(t, 14, event.ValidatedAt.Hour())
}

func TestValidationEventPublisher_PublishValidated(t *testing.T) {
	ch := &captureChannel{}
	p := newValidationEventPublisher(messaging.NewChannelPublisher(ch, messaging.ExchangeDocumentEvents, Source, nil), nil)

	err := p.PublishValidated(context.Background(), &messaging.DocumentValidatedEvent{ValidationID: "v1", Issues: []messaging.IssueSummary{}})
	require.NoError(t, err)
	assert.Equal(t, messaging.EventDocumentValidationCompleted, ch.key)

	var envelope messaging.Event
	require.NoError(t, json.Unmarshal(ch.body, &envelope))
	assert.Equal(t, Source, envelope.Source)

	ch.err = amqp.ErrClosed
	assert.ErrorIs(t, p.PublishValidated(context.Background(), &messaging.DocumentValidatedEvent{}), amqp.ErrClosed)

	var nilPublisher *ValidationEventPublisher
	assert.NoError(t, nilPublisher.PublishValidated(context.Background(), &messaging.DocumentValidatedEvent{}))
}
