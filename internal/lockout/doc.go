// Package lockout holds the pure lockout decision: given a failure
// record and the clock, is this key locked and for how much longer.
//
// # What this package must NOT do
//
//   - Mutate attempt state. Restarting an expired streak is the store's
//     job on the next write; Evaluate only reads.
//   - Import anything beyond internal/attempt and the standard library.
package lockout
