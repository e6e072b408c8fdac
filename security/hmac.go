package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureFormat selects the wire encoding of an HMAC-SHA256 signature.
type SignatureFormat string

const (
	// FormatHex is a bare lowercase hex digest, used for OAuth state.
	FormatHex SignatureFormat = "hex"

	// FormatSHA256Prefixed is a hex digest carrying the "sha256=" prefix,
	// the X-Hub-Signature-256 convention used by Facebook and GitHub
	// webhook deliveries.
	FormatSHA256Prefixed SignatureFormat = "sha256=hex"
)

const sha256Prefix = "sha256="

var (
	// ErrMissingPrefix is returned when a prefixed-format signature lacks
	// its "sha256=" prefix.
	ErrMissingPrefix = errors.New("missing prefix")

	// ErrInvalidSignature is returned when the provided signature does not
	// match the one computed over the payload.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrUnsupportedFormat is returned for an unknown SignatureFormat.
	ErrUnsupportedFormat = errors.New("unsupported signature format")
)

// VerificationResult is the outcome of a signature check. Failures are
// values, never panics, so a malformed signature can't be mistaken for a
// server error.
type VerificationResult struct {
	// Valid reports whether the signature matched.
	Valid bool

	// Computed is the lowercase hex signature expected over the payload.
	Computed string

	// Err classifies the failure when Valid is false.
	Err error
}

// Sign computes the HMAC-SHA256 signature of payload under secret, returned
// as lowercase hex.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature of payload and compares it against the
// provided one in constant time. For FormatSHA256Prefixed the provided value
// must carry the "sha256=" prefix; without it verification fails with
// ErrMissingPrefix instead of attempting a compare.
func Verify(payload []byte, signature, secret string, format SignatureFormat) VerificationResult {
	switch format {
	case FormatSHA256Prefixed:
		rest, found := strings.CutPrefix(signature, sha256Prefix)
		if !found {
			return VerificationResult{Err: ErrMissingPrefix}
		}
		signature = rest
	case FormatHex:
	default:
		return VerificationResult{Err: ErrUnsupportedFormat}
	}

	computed := Sign(payload, secret)
	if !ConstantTimeEquals(computed, strings.ToLower(signature)) {
		return VerificationResult{Computed: computed, Err: ErrInvalidSignature}
	}
	return VerificationResult{Valid: true, Computed: computed}
}

// AppSecretProof computes the appsecret_proof parameter the Graph API
// expects on server-side calls: HMAC-SHA256 of the access token keyed by
// the app secret.
func AppSecretProof(accessToken, appSecret string) string {
	return Sign([]byte(accessToken), appSecret)
}
