package security

import (
	"errors"
	"net/url"
	"strings"
)

var (
	// ErrInvalidStateFormat is returned for state values that don't parse:
	// no separator, an undecodable payload, or a payload that is not a URL.
	ErrInvalidStateFormat = errors.New("invalid state format")

	// ErrOriginNotAllowed is returned when a correctly signed state names an
	// origin outside the allow-list. Kept distinct from ErrInvalidSignature
	// so the two failure modes are distinguishable in logs; callers must
	// refuse to redirect on either.
	ErrOriginNotAllowed = errors.New("origin not allowed")
)

// StateResult is the outcome of decoding a signed state token.
type StateResult struct {
	// Valid reports whether the state is authentic and its origin allowed.
	Valid bool

	// Origin is the verified redirect origin; set only when Valid.
	Origin string

	// Err classifies the failure when Valid is false.
	Err error
}

// EncodeState produces the opaque state parameter carried through an OAuth
// round trip: the URL-encoded origin joined to its signature with "|".
// The signature is computed over the raw origin, not the encoded form.
func EncodeState(origin, secret string) string {
	return url.QueryEscape(origin) + "|" + Sign([]byte(origin), secret)
}

// DecodeState verifies a state parameter returned by the provider callback.
// The signature must verify AND the origin must be on the allow-list; a
// forged state and a signed-but-foreign origin both fail, with distinct
// errors. Malformed input fails closed with ErrInvalidStateFormat.
func DecodeState(state, secret string, allowedOrigins []string) StateResult {
	sep := strings.LastIndex(state, "|")
	if sep < 0 {
		return StateResult{Err: ErrInvalidStateFormat}
	}

	origin, err := url.QueryUnescape(state[:sep])
	if err != nil {
		return StateResult{Err: ErrInvalidStateFormat}
	}

	if res := Verify([]byte(origin), state[sep+1:], secret, FormatHex); !res.Valid {
		return StateResult{Err: ErrInvalidSignature}
	}

	norm, ok := normalizeOrigin(origin)
	if !ok {
		return StateResult{Err: ErrInvalidStateFormat}
	}
	for _, allowed := range allowedOrigins {
		if a, ok := normalizeOrigin(allowed); ok && a == norm {
			return StateResult{Valid: true, Origin: origin}
		}
	}
	return StateResult{Err: ErrOriginNotAllowed}
}

// normalizeOrigin reduces a URL to its origin (scheme://host[:port]) for
// exact comparison. Scheme and host are case-insensitive per RFC 3986.
func normalizeOrigin(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}
