package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/eventgate/admission/security"
)

// BasicAuthConfig configures BasicAuth.
type BasicAuthConfig struct {
	// Username is the expected username.
	Username string

	// PasswordHash is the bcrypt hash of the expected password. Plaintext
	// passwords are never configured.
	PasswordHash string

	// Realm is the authentication realm. Empty means "restricted".
	Realm string

	// Guard locks a client out after repeated failures. Optional but
	// strongly recommended; bcrypt alone does not stop online guessing.
	Guard *security.BruteForceGuard

	// Logger receives auth failures. Nil means slog.Default().
	Logger *slog.Logger

	// Auditor receives auth failure events. Optional.
	Auditor *security.Auditor
}

// BasicAuth protects a handler with HTTP basic auth. The client key is
// checked against the brute force guard before credentials are compared, so
// a locked out client gets 429 without exercising bcrypt. Username and
// password comparisons leak nothing through timing.
func BasicAuth(cfg BasicAuthConfig) func(http.Handler) http.Handler {
	if cfg.Realm == "" {
		cfg.Realm = "restricted"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := security.ClientKey(r.Header.Get("X-Forwarded-For"), r.RemoteAddr)

			if cfg.Guard != nil && cfg.Guard.IsLocked(ctx, key) {
				retry := cfg.Guard.LockoutRemaining(ctx, key)
				secs := int(math.Ceil(retry.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				http.Error(w, "too many failed attempts", http.StatusTooManyRequests)
				return
			}

			username, password, ok := r.BasicAuth()
			if ok {
				ok = security.ConstantTimeEquals(username, cfg.Username)
			}
			if ok {
				ok = bcrypt.CompareHashAndPassword([]byte(cfg.PasswordHash), []byte(password)) == nil
			}

			if !ok {
				if cfg.Guard != nil {
					cfg.Guard.RecordFailure(ctx, key)
				}
				cfg.Logger.Warn("basic auth failed",
					"key", key, "path", r.URL.Path)
				cfg.Auditor.LogAuthFailure(username, key)
				w.Header().Set("WWW-Authenticate", `Basic realm="`+cfg.Realm+`"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if cfg.Guard != nil {
				cfg.Guard.RecordSuccess(ctx, key)
			}
			next.ServeHTTP(w, r)
		})
	}
}
