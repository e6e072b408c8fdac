package middleware

import (
	"net/http"

	"github.com/eventgate/admission"
)

// RateLimit enforces the named admission policy on every request. Denials
// answer 429 with the Retry-After and X-RateLimit-* headers from the verdict;
// allowed requests carry the X-RateLimit-* headers too so clients can pace
// themselves.
func RateLimit(adm *admission.Admission, policy string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			verdict := adm.Evaluate(r.Context(), policy, admission.Request{
				IP:           r.RemoteAddr,
				ForwardedFor: r.Header.Get("X-Forwarded-For"),
				Path:         r.URL.Path,
			})

			for name, value := range verdict.Headers {
				w.Header().Set(name, value)
			}
			if !verdict.Allowed {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
