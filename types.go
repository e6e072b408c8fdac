package admission

import "time"

// Request is the admission-relevant slice of an inbound HTTP request. The
// HTTP layer extracts it; this package never touches *http.Request directly.
type Request struct {
	// IP is the direct connection address, with or without a port.
	IP string

	// ForwardedFor is the raw X-Forwarded-For header value, empty when the
	// header is absent. Only pass it when a trusted proxy sets it.
	ForwardedFor string

	// Path is the request path, used for logging only.
	Path string
}

// Verdict is the outcome of an admission check.
type Verdict struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// RetryAfter is how long the client should wait before retrying.
	// Set only on denial.
	RetryAfter time.Duration

	// Headers carries the rate-limit introspection headers
	// (X-RateLimit-Limit, X-RateLimit-Used, X-RateLimit-Remaining,
	// X-RateLimit-Reset) and, on denial, Retry-After.
	Headers map[string]string
}
