package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/eventgate/admission/instrumentation"
	"github.com/eventgate/admission/security"
)

const (
	// DefaultSignatureHeader is the header carrying the payload signature,
	// the X-Hub-Signature-256 convention of Facebook and GitHub deliveries.
	DefaultSignatureHeader = "X-Hub-Signature-256"

	// DefaultMaxBody caps how much of a webhook body is read for
	// verification. Bodies above the cap are rejected, not truncated.
	DefaultMaxBody = 1 << 20
)

// SignatureConfig configures VerifySignature.
type SignatureConfig struct {
	// Secret is the shared signing secret. Required.
	Secret string

	// Header is the signature header name. Empty means
	// DefaultSignatureHeader.
	Header string

	// MaxBody caps the request body size in bytes. Zero means
	// DefaultMaxBody.
	MaxBody int64

	// Logger receives verification failures. Nil means slog.Default().
	Logger *slog.Logger

	// Auditor receives signature failure events. Optional.
	Auditor *security.Auditor

	// Instrumentation records verification metrics. Optional.
	Instrumentation *instrumentation.Instrumentation
}

// VerifySignature authenticates webhook bodies against their sha256= header
// signature before the handler runs. The body is read in full, verified, and
// replayed to the next handler. Failures answer 401 without detail; the
// distinction between a missing header, a missing prefix and a bad digest
// goes to the log only.
func VerifySignature(cfg SignatureConfig) func(http.Handler) http.Handler {
	if cfg.Header == "" {
		cfg.Header = DefaultSignatureHeader
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = DefaultMaxBody
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := security.ClientKey(r.Header.Get("X-Forwarded-For"), r.RemoteAddr)

			body, err := io.ReadAll(io.LimitReader(r.Body, cfg.MaxBody+1))
			if err != nil {
				cfg.Logger.Warn("webhook body read failed", "key", key, "error", err)
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			if int64(len(body)) > cfg.MaxBody {
				cfg.Logger.Warn("webhook body exceeds limit",
					"key", key, "limit", cfg.MaxBody)
				http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
				return
			}

			res := security.Verify(body, r.Header.Get(cfg.Header), cfg.Secret, security.FormatSHA256Prefixed)
			if cfg.Instrumentation != nil {
				cfg.Instrumentation.Metrics().RecordSignatureVerification(r.Context(), res.Valid)
			}
			if !res.Valid {
				cfg.Logger.Warn("webhook signature rejected",
					"key", key,
					"path", r.URL.Path,
					"error", res.Err)
				cfg.Auditor.LogSignatureFailure(key, res.Err)
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
