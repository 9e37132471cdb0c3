// Package middleware exposes net/http adapters over Engine access-token
// validation.
//
// [Guard] reads the access token from the configured cookie (falling back to
// an Authorization bearer header), calls Engine.ValidateAccess, and injects
// the validated claims into the request context for
// [AuthResultFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to Engine).
//   - Touch the identity store.
//   - Make authorization decisions beyond pass/reject from ValidateAccess.
package middleware
