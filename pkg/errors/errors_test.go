package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecodeli/ecodeli-backend/pkg/i18n"
)

func TestInvalidFileReference(t *testing.T) {
	cause := fmt.Errorf("azblob://uploads/a.pdf: container missing")
	err := InvalidFileReference(cause)

	assert.Equal(t, http.StatusUnprocessableEntity, err.StatusCode)
	assert.True(t, Is(err, ErrUnresolvable))
	assert.True(t, Is(err, cause))

	wrapped := fmt.Errorf("validate: %w", err)
	var appErr *AppError
	require.True(t, As(wrapped, &appErr))
	assert.Equal(t, "INVALID_FILE_REFERENCE", appErr.Code)
}

func TestAppError_Localize(t *testing.T) {
	fr := i18n.WithLocale(context.Background(), i18n.LocaleFrench)

	assert.Equal(t, "Votre session a expiré", TokenExpired().Localize(fr))
	assert.Equal(t, "document introuvable", NotFound("document").Localize(fr))
	assert.Equal(t, "document not found", NotFound("document").Message)

	plain := New("STORAGE_UNAVAILABLE", "document storage is unavailable", http.StatusServiceUnavailable)
	assert.Equal(t, plain.Message, plain.Localize(fr))
}

func TestAppError_Error(t *testing.T) {
	limited := RateLimited()
	assert.Equal(t, "too many requests", limited.Message)
	assert.Equal(t, "too many requests: rate limited", limited.Error())

	assert.Equal(t, "validation failed", New("X", "validation failed", http.StatusBadRequest).Error())

	err := Wrap(fmt.Errorf("dial tcp: refused"), "STORAGE_UNAVAILABLE", "document storage is unavailable", http.StatusServiceUnavailable)
	assert.Equal(t, "document storage is unavailable: dial tcp: refused", err.Error())

	details := Validation(map[string]string{"siret": "required"})
	assert.Equal(t, "required", details.Details["siret"])
	assert.True(t, Is(details, ErrValidation))
}
