package i18n

import (
	"net/http"
)

// LocaleQueryParam overrides the Accept-Language header when present
const LocaleQueryParam = "lang"

// Middleware resolves the request locale and stores it in the context.
// The response carries the chosen locale in Content-Language.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale := RequestLocale(r)
		w.Header().Set("Content-Language", locale)
		next.ServeHTTP(w, r.WithContext(WithLocale(r.Context(), locale)))
	})
}

// RequestLocale picks the locale for r: the lang query parameter first,
// then Accept-Language
func RequestLocale(r *http.Request) string {
	if lang := r.URL.Query().Get(LocaleQueryParam); lang != "" {
		return ParseAcceptLanguage(lang)
	}
	return ParseAcceptLanguage(r.Header.Get("Accept-Language"))
}
