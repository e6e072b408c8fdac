package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the admission library.
type Metrics struct {
	// Admission verdicts
	AdmissionChecksTotal metric.Int64Counter
	RateLimitExceeded    metric.Int64Counter
	LockoutsTotal        metric.Int64Counter
	ThrottleDenied       metric.Int64Counter

	// Verification outcomes
	SignatureVerifications metric.Int64Counter
	StateVerifications     metric.Int64Counter

	// HTTP layer
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
}

// newMetrics creates and registers all metric instruments.
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	admissionMeter := inst.Meter("admission")
	securityMeter := inst.Meter("security")
	httpMeter := inst.Meter("http")

	var err error
	m.AdmissionChecksTotal, err = admissionMeter.Int64Counter(
		"admission.checks.total",
		metric.WithDescription("Total number of admission checks"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create checks.total counter: %w", err)
	}

	m.RateLimitExceeded, err = admissionMeter.Int64Counter(
		"admission.rate_limit.exceeded",
		metric.WithDescription("Number of rate limit denials"),
		metric.WithUnit("{denial}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.exceeded counter: %w", err)
	}

	m.LockoutsTotal, err = admissionMeter.Int64Counter(
		"admission.lockouts.total",
		metric.WithDescription("Number of brute force lockouts engaged"),
		metric.WithUnit("{lockout}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create lockouts.total counter: %w", err)
	}

	m.ThrottleDenied, err = admissionMeter.Int64Counter(
		"admission.throttle.denied",
		metric.WithDescription("Number of connection-level throttle denials"),
		metric.WithUnit("{denial}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create throttle.denied counter: %w", err)
	}

	m.SignatureVerifications, err = securityMeter.Int64Counter(
		"admission.signature.verifications",
		metric.WithDescription("Number of payload signature verifications"),
		metric.WithUnit("{verification}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create signature.verifications counter: %w", err)
	}

	m.StateVerifications, err = securityMeter.Int64Counter(
		"admission.state.verifications",
		metric.WithDescription("Number of OAuth state verifications"),
		metric.WithUnit("{verification}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create state.verifications counter: %w", err)
	}

	m.HTTPRequestsTotal, err = httpMeter.Int64Counter(
		"admission.http.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.requests.total counter: %w", err)
	}

	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"admission.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	return m, nil
}

// Helper methods for common metric recording patterns

// RecordAdmissionCheck records an admission verdict.
func (m *Metrics) RecordAdmissionCheck(ctx context.Context, policy string, allowed bool) {
	m.AdmissionChecksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("policy", policy),
		attribute.Bool("allowed", allowed),
	))
}

// RecordRateLimitExceeded records a rate limit denial.
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, policy, limiterType string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("policy", policy),
		attribute.String("limiter_type", limiterType),
	))
}

// RecordLockout records a brute force lockout.
func (m *Metrics) RecordLockout(ctx context.Context) {
	m.LockoutsTotal.Add(ctx, 1)
}

// RecordThrottleDenied records a connection-level throttle denial.
func (m *Metrics) RecordThrottleDenied(ctx context.Context) {
	m.ThrottleDenied.Add(ctx, 1)
}

// RecordSignatureVerification records a payload signature check outcome.
func (m *Metrics) RecordSignatureVerification(ctx context.Context, valid bool) {
	m.SignatureVerifications.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("valid", valid),
	))
}

// RecordStateVerification records an OAuth state check outcome.
func (m *Metrics) RecordStateVerification(ctx context.Context, valid bool) {
	m.StateVerifications.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("valid", valid),
	))
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}
