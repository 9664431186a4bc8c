// Package rest exposes the gate's operational status over HTTP:
// a health probe, a bearer-guarded stats endpoint, and a text metrics
// exposition. It is read-only plumbing over [otpgate.Gate]; nothing in
// here mutates gate state.
package rest
