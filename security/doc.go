// Package security implements the admission and trust-verification
// primitives for the event aggregation backend: rate limiters, a brute-force
// lockout guard, HMAC signature verification for webhook payloads, and the
// signed state token used for OAuth CSRF and open-redirect protection.
//
// The limiters keep their per-key state behind the store.Store interface;
// the default backend is an in-process map, with a Redis backend available
// for multi-instance deployments. All verification helpers are pure
// functions that return result values and never panic on untrusted input.
package security
