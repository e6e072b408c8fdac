// Package middleware provides the net/http glue between the admission façade
// and an HTTP server: rate limiting, webhook signature verification, request
// ID propagation, security headers, a coarse per-client throttle, and basic
// auth backed by the brute force guard.
//
// Each middleware is independent; compose the ones a route needs:
//
//	r.Use(middleware.RequestID)
//	r.Use(middleware.SecurityHeaders(serverURL))
//	r.With(middleware.RateLimit(adm, admission.PolicyWebhook)).
//		Post("/webhooks/facebook", handler)
package middleware
