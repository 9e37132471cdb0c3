// Package rate implements the Redis-backed fixed-window counters behind the
// engine's login, refresh, and registration throttles.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - akl:  — login per-identifier
//   - akli: — login per-IP
//   - akr:  — refresh per-identity
//   - akg:  — registration per-IP
//
// # What this package must NOT do
//
//   - Decide which operations are throttled (the engine owns policy).
//   - Be imported outside the authkit module.
package rate
