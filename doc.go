// Package otpgate provides a rate-limited second-factor verification
// gate for login pipelines: it validates a one-time code against an
// enrolled credential, tracks failed attempts per (source address,
// identity) pair, and temporarily locks out further attempts once a
// threshold is exceeded, with automatic expiry and memory reclamation.
//
// The package is designed for concurrent server workloads: Gate methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// otpgate is the public surface. It exposes [Gate], [Builder], [Config],
// the [Outcome] values, and the collaborator interfaces
// ([CredentialProvider], [Verifier], [AuditSink]). All internal
// coordination (attempt accounting, lockout evaluation, reclamation)
// lives under internal/ and is never exported.
//
// # What this package must NOT do
//
//   - Orchestrate the surrounding login flow. Callers invoke
//     [Gate.Challenge] and [Gate.Verify] at one step of their flow and
//     map the returned Outcome to their own rendering.
//   - Share lockout state across processes. Counters are process-local;
//     a multi-instance deployment has independent counters per instance.
//   - Surface raw internal errors to end users. Every user-facing result
//     is one of the enumerated Outcome kinds.
package otpgate
