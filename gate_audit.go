package otpgate

import (
	"context"
	"errors"
)

const (
	auditEventChallengeLockedOut = "otp_locked_out"
	auditEventValidated          = "otp_validated"
	auditEventValidationFailed   = "otp_validation_failed"
	auditEventLockoutTriggered   = "otp_lockout_triggered"
	auditEventVerifierFault      = "otp_verifier_fault"
	auditEventConfigInvalid      = "otp_config_invalid"
	auditEventSweep              = "otp_records_swept"
)

// AuditErrorCode defines a public type used by otpgate APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrUnknownIdentity AuditErrorCode = "unknown_identity"
	auditErrLockedOut       AuditErrorCode = "locked_out"
	auditErrMissingInput    AuditErrorCode = "missing_input"
	auditErrInvalidCode     AuditErrorCode = "invalid_code"
	auditErrVerifierFault   AuditErrorCode = "verifier_fault"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
)

func auditErrorCode(err error) AuditErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownIdentity):
		return auditErrUnknownIdentity
	case errors.Is(err, ErrLockedOut):
		return auditErrLockedOut
	case errors.Is(err, ErrMissingInput):
		return auditErrMissingInput
	case errors.Is(err, ErrInvalidCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrVerifierFault):
		return auditErrVerifierFault
	case errors.Is(err, ErrCredentialUnavailable):
		return auditErrUnavailable
	default:
		return auditErrVerifierFault
	}
}

// emitAudit assembles the domain fields of an event and hands it to
// the dispatcher, which stamps identity and timestamp and applies the
// source-address redaction policy.
func (g *Gate) emitAudit(
	ctx context.Context,
	action string,
	req Request,
	success bool,
	err error,
	metadataBuilder func() map[string]string,
) {
	if g == nil || g.audit == nil {
		return
	}

	var details map[string]string
	if metadataBuilder != nil {
		details = metadataBuilder()
	}

	event := AuditEvent{
		Action:     action,
		ClientID:   req.ClientID,
		SourceAddr: req.SourceAddr,
		Success:    success,
		Details:    details,
	}
	if req.Identity != nil {
		event.Realm = req.Identity.Realm
		event.IdentityID = req.Identity.ID
		event.Username = req.Identity.Username
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	g.audit.Emit(ctx, event)
}
