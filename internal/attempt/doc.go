// Package attempt owns the in-process failed-attempt state for the
// verification gate: a concurrent key→record map plus the reclaimer that
// bounds its memory under sustained attack traffic.
//
// # Update discipline
//
// Records are immutable values replaced wholesale through a
// compare-and-swap loop. Concurrent failures on one key each advance the
// counter by exactly one; keys never contend with each other; reads are
// never blocked by writes.
//
// # What this package must NOT do
//
//   - Decide whether a key is locked out (that is internal/lockout).
//   - Perform any I/O. State is process-local.
//   - Be imported outside the otpgate module.
package attempt
