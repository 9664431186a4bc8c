package otpgate

import "errors"

var (
	// ErrUnknownIdentity is an exported constant or variable used by the verification gate.
	ErrUnknownIdentity = errors.New("no identity bound to attempt")
	// ErrNotEnrolled is an exported constant or variable used by the verification gate.
	ErrNotEnrolled = errors.New("identity has no second-factor credential")
	// ErrLockedOut is an exported constant or variable used by the verification gate.
	ErrLockedOut = errors.New("too many attempts")
	// ErrMissingInput is an exported constant or variable used by the verification gate.
	ErrMissingInput = errors.New("code required")
	// ErrInvalidCode is an exported constant or variable used by the verification gate.
	ErrInvalidCode = errors.New("invalid code")
	// ErrVerifierFault is an exported constant or variable used by the verification gate.
	ErrVerifierFault = errors.New("verifier failed")
	// ErrCredentialUnavailable is an exported constant or variable used by the verification gate.
	ErrCredentialUnavailable = errors.New("credential backend unavailable")
	// ErrGateNotReady is an exported constant or variable used by the verification gate.
	ErrGateNotReady = errors.New("gate not initialized")
)
