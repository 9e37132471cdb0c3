// Package authkit provides an embeddable credential-issuance and session
// engine: account registration with uniqueness guarantees, password login,
// signed access/refresh token pairs, and refresh rotation with reuse
// detection.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authkit is the public surface. It exposes [Engine], [Builder], [Config],
// the [IdentityStore] persistence contract, and value types (Identity,
// LoginResult, MetricsSnapshot). Callers supply the identity store — the
// redistore and pgstore subpackages ship ready-made implementations — plus an
// optional [MediaResolver] for profile media.
//
// # What this package must NOT do
//
//   - Expose store clients or encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Import any sub-package that re-imports authkit (no import cycles).
//
// # Performance contract
//
// ValidateAccess is the hot path: a pure signature check with no store
// round-trips. Login, Refresh, Register, and ChangePassword are allowed one
// store round-trip plus rate-limiter bookkeeping per call.
package authkit
