package otpgate

import (
	"context"
	"time"
)

// Identity describes the account a verification attempt is made against.
type Identity struct {
	ID       string
	Username string
	Realm    string
}

// Request carries one inbound attempt through [Gate.Challenge] and
// [Gate.Verify]. Identity may be nil when the caller could not bind an
// identity; SourceAddr may be empty when the network address is unknown.
type Request struct {
	Identity   *Identity
	SourceAddr string
	ClientID   string
	Code       string
}

// OutcomeKind enumerates every user-facing gate decision. No raw
// internal error ever reaches the caller outside this set.
type OutcomeKind int

const (
	// OutcomeProceedToForm is an exported constant or variable used by the verification gate.
	OutcomeProceedToForm OutcomeKind = iota
	// OutcomeSkip is an exported constant or variable used by the verification gate.
	OutcomeSkip
	// OutcomeSuccess is an exported constant or variable used by the verification gate.
	OutcomeSuccess
	// OutcomeInvalidCode is an exported constant or variable used by the verification gate.
	OutcomeInvalidCode
	// OutcomeMissingInput is an exported constant or variable used by the verification gate.
	OutcomeMissingInput
	// OutcomeLockedOut is an exported constant or variable used by the verification gate.
	OutcomeLockedOut
	// OutcomeUnknownIdentity is an exported constant or variable used by the verification gate.
	OutcomeUnknownIdentity
)

// String returns the stable name for the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeProceedToForm:
		return "proceed_to_form"
	case OutcomeSkip:
		return "skip"
	case OutcomeSuccess:
		return "success"
	case OutcomeInvalidCode:
		return "invalid_code"
	case OutcomeMissingInput:
		return "missing_input"
	case OutcomeLockedOut:
		return "locked_out"
	case OutcomeUnknownIdentity:
		return "unknown_identity"
	default:
		return "unknown"
	}
}

// Outcome is the gate's decision for one attempt. ErrorKey and the
// numeric fields carry what a login form needs to render the result:
// "otpRequired", "otpInvalid" with AttemptsRemaining, or "otpLockedOut"
// with RemainingSeconds.
type Outcome struct {
	Kind              OutcomeKind
	ErrorKey          string
	RemainingSeconds  int64
	AttemptsRemaining int

	err error
}

// Err returns the operator-facing error behind the outcome, if any.
// User-facing callers should render ErrorKey instead.
func (o Outcome) Err() error {
	return o.err
}

// OTPCredential is the stored second-factor credential for one identity.
// Secret is the raw HMAC key; zero-valued Digits, Period, or Algorithm
// fall back to the verifier's configuration.
type OTPCredential struct {
	Secret          []byte
	Algorithm       string
	Digits          int
	Period          int
	Enabled         bool
	LastUsedCounter int64
	CreatedAt       time.Time
}

// CredentialProvider is the interface callers implement to expose their
// credential storage to the gate. Returning (nil, nil) from
// GetOTPCredential means the identity is not enrolled.
type CredentialProvider interface {
	GetOTPCredential(ctx context.Context, realm, identityID string) (*OTPCredential, error)
	UpdateLastUsedCounter(ctx context.Context, realm, identityID string, counter int64) error
}

// Verifier is the credential-verification primitive the gate delegates
// to. Implementations report (false, err) for backend faults; the gate
// treats those as failed attempts (fail closed) and logs the error.
type Verifier interface {
	Verify(ctx context.Context, identity Identity, cred *OTPCredential, code string) (bool, error)
}
