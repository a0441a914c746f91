package consumers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/service"
	apperrors "github.com/ecodeli/ecodeli-backend/pkg/errors"
	"github.com/ecodeli/ecodeli-backend/pkg/messaging"
)

type recordingValidator struct {
	req           service.Request
	correlationID string
	err           error
}

func (r *recordingValidator) Validate(ctx context.Context, req service.Request) (*service.Verdict, error) {
	r.req = req
	r.correlationID = messaging.CorrelationID(ctx)
	if r.err != nil {
		return nil, r.err
	}
	return &service.Verdict{ValidationID: "v1", Result: domain.NewResult(true, 0.8, req.ExpectedCategory)}, nil
}

func uploadedEvent(t *testing.T, data any) *messaging.Event {
	t.Helper()
	event, err := messaging.NewEvent(messaging.EventDocumentUploaded, "upload-service", "", data)
	require.NoError(t, err)
	return event
}

func TestUploadConsumer_HandleUploaded(t *testing.T) {
	v := &recordingValidator{}
	c := newUploadConsumer(v, nil)
	event := uploadedEvent(t, messaging.DocumentUploadedEvent{
		UserID:           "user-1",
		FileReference:    "azblob://uploads/permis.pdf",
		ExpectedCategory: "DRIVING_LICENSE",
		Metadata:         map[string]string{"courier": "jean"},
	})

	require.NoError(t, c.handleUploaded(context.Background(), event))

	assert.Equal(t, "azblob://uploads/permis.pdf", v.req.FileReference)
	assert.Equal(t, domain.CategoryDrivingLicense, v.req.ExpectedCategory)
	assert.Equal(t, "user-1", v.req.UserID)
	assert.Equal(t, "jean", v.req.Metadata["courier"])
	assert.Equal(t, event.ID, v.correlationID)
}

func TestUploadConsumer_PermanentFailures(t *testing.T) {
	c := newUploadConsumer(&recordingValidator{}, nil)

	malformed := &messaging.Event{Type: messaging.EventDocumentUploaded, Data: []byte(`"not an object"`)}
	assert.True(t, messaging.IsPermanent(c.handleUploaded(context.Background(), malformed)))

	noRef := uploadedEvent(t, messaging.DocumentUploadedEvent{UserID: "user-1"})
	assert.True(t, messaging.IsPermanent(c.handleUploaded(context.Background(), noRef)))

	unresolvable := newUploadConsumer(&recordingValidator{err: apperrors.InvalidFileReference(errors.New("outside root"))}, nil)
	err := unresolvable.handleUploaded(context.Background(), uploadedEvent(t, messaging.DocumentUploadedEvent{FileReference: "../x.pdf"}))
	assert.True(t, messaging.IsPermanent(err))
}

func TestUploadConsumer_TransientFailureIsRetried(t *testing.T) {
	c := newUploadConsumer(&recordingValidator{err: errors.New("storage unavailable")}, nil)

	err := c.handleUploaded(context.Background(), uploadedEvent(t, messaging.DocumentUploadedEvent{FileReference: "azblob://uploads/a.pdf"}))

	require.Error(t, err)
	assert.False(t, messaging.IsPermanent(err))
}
