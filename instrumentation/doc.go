// Package instrumentation provides OpenTelemetry (OTEL) instrumentation for
// the admission library.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "eventgate-admission",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
// # Available Metrics
//
// Admission:
//   - admission.checks.total{policy, allowed} - Admission verdicts
//   - admission.rate_limit.exceeded{policy, limiter_type} - Rate limit denials
//   - admission.lockouts.total - Brute force lockouts engaged
//   - admission.throttle.denied - Connection-level throttle denials
//
// Security:
//   - admission.signature.verifications{valid} - Webhook signature checks
//   - admission.state.verifications{valid} - OAuth state checks
//
// HTTP:
//   - admission.http.requests.total{method, endpoint, status} - HTTP requests
//   - admission.http.request.duration{endpoint} - Request duration in milliseconds
//
// # Performance
//
// When instrumentation is disabled the package uses no-op providers and adds
// no overhead.
//
// # Security Considerations
//
// Never record secrets, signatures, or credentials as attribute values. The
// attributes used here are policy names, verdicts, and coarse client keys.
// Client IP keys may be considered PII in some jurisdictions; set
// Config.LogClientIPs to false to omit them from observability data.
package instrumentation
