package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAcceptLanguage(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", LocaleEnglish},
		{"fr", LocaleFrench},
		{"fr-FR,fr;q=0.9,en;q=0.8", LocaleFrench},
		{"en-US,fr;q=0.5", LocaleEnglish},
		{"de-DE,fr;q=0.7,en;q=0.3", LocaleFrench},
		{"en;q=0.2, fr-CA;q=0.8", LocaleFrench},
		{"de, it", LocaleEnglish},
		{"FR", LocaleFrench},
		{"fr;q=bogus", LocaleFrench},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseAcceptLanguage(tt.header), tt.header)
	}
}

func TestLocalizer_T(t *testing.T) {
	assert.Equal(t, "Votre session a expiré", TWithLocale(LocaleFrench, "errors.token_expired"))
	assert.Equal(t, "Your session has expired", T("errors.token_expired"))
	assert.Equal(t, "document introuvable", TWithLocale(LocaleFrench, "errors.not_found", map[string]string{"resource": "document"}))
	assert.Equal(t, "Upload a bank account proof (RIB) in your name", T("suggestions.category.bank_proof"))
	assert.Equal(t, "missing.key", T("missing.key"))
	assert.Equal(t, "suggestions.category", T("suggestions.category"))
	assert.Equal(t, LocaleEnglish, NewLocalizer("de").GetLocale())
}

func TestCatalogsHaveTheSameKeys(t *testing.T) {
	loadMessages()
	en, fr := flatten("", messages[LocaleEnglish]), flatten("", messages[LocaleFrench])
	assert.NotEmpty(t, en)
	assert.ElementsMatch(t, en, fr)
}

func flatten(prefix string, m map[string]interface{}) []string {
	var keys []string
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok {
			keys = append(keys, flatten(key, nested)...)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

func TestTFromContext(t *testing.T) {
	ctx := WithLocale(context.Background(), LocaleFrench)
	assert.Equal(t, "Déposez un RIB à votre nom", TFromContext(ctx, "suggestions.category.bank_proof"))
	assert.Equal(t, LocaleEnglish, GetLocaleFromContext(context.Background()))
}

func TestMiddleware(t *testing.T) {
	var got string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetLocaleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "fr-FR")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, LocaleFrench, got)
	assert.Equal(t, LocaleFrench, rec.Header().Get("Content-Language"))

	req = httptest.NewRequest(http.MethodGet, "/?lang=en", nil)
	req.Header.Set("Accept-Language", "fr-FR")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, LocaleEnglish, got)
}
