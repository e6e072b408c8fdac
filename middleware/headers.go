package middleware

import (
	"net/http"
	"net/url"
)

// SecurityHeaders sets hardening headers on every response. HSTS is added
// only when serverURL is https, so local development over plain HTTP is not
// pinned.
func SecurityHeaders(serverURL string) func(http.Handler) http.Handler {
	hsts := false
	if parsed, err := url.Parse(serverURL); err == nil && parsed.Scheme == "https" {
		hsts = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
			h.Set("Pragma", "no-cache")
			if hsts {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
