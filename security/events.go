package security

// Event type constants for security audit logging. Shared constants keep
// event names consistent across the façade, the middleware and the guard.
const (
	// EventRateLimitExceeded is logged when a policy denies a request.
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventWebhookAbuse is logged when the webhook policy denies a request.
	// Sustained webhook abuse is the most actionable attack signal this
	// layer sees, so it is raised at critical severity.
	EventWebhookAbuse = "webhook_abuse"

	// EventBruteForceLockout is logged when a key crosses the failure
	// threshold and is locked out.
	EventBruteForceLockout = "brute_force_lockout"

	// EventAuthFailure is logged for a failed credential check.
	EventAuthFailure = "auth_failure"

	// EventSignatureInvalid is logged when a webhook payload signature
	// fails verification.
	EventSignatureInvalid = "signature_invalid"

	// EventStateRejected is logged when an OAuth state parameter fails
	// decoding, signature verification, or the origin allow-list.
	EventStateRejected = "state_rejected"

	// EventThrottled is logged when the coarse per-client throttle denies
	// a request before it reaches a policy.
	EventThrottled = "throttled"
)
