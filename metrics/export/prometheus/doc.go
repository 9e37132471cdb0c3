// Package prometheus renders authkit metrics in Prometheus text exposition
// format.
//
// [NewExporter] accepts an [authkit.Engine] and exposes an [http.Handler]
// that renders every counter and the validation latency histogram. Counter
// names are prefixed authkit_*_total; the histogram is
// authkit_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
