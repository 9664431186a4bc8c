package otpgate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/finappkc/otpgate/internal/attempt"
	"github.com/finappkc/otpgate/internal/lockout"
)

const (
	errorKeyLockedOut = "otpLockedOut"
	errorKeyInvalid   = "otpInvalid"
	errorKeyRequired  = "otpRequired"

	keyPrefix          = "otp:"
	placeholderAddr    = "unknown"
	placeholderSubject = "anonymous"
)

// Gate defines a public type used by otpgate APIs.
//
// Gate instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Gate struct {
	store        *attempt.Store
	reclaimer    *attempt.Reclaimer
	policy       lockout.Policy
	credentials  CredentialProvider
	verifier     Verifier
	audit        *auditDispatcher
	metrics      *Metrics
	configIssues []string
	now          func() time.Time
}

// Close describes the close operation and its observable behavior.
//
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gate) Close() {
	if g == nil {
		return
	}
	if g.reclaimer != nil {
		g.reclaimer.Close()
	}
	if g.audit != nil {
		g.audit.Close()
	}
}

// ConfigIssues returns the configuration errors collected at build time.
// A non-empty result means the gate is running with defaults substituted
// for the offending fields.
func (g *Gate) ConfigIssues() []string {
	if g == nil || len(g.configIssues) == 0 {
		return nil
	}
	out := make([]string, len(g.configIssues))
	copy(out, g.configIssues)
	return out
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gate) AuditDropped() uint64 {
	if g == nil || g.audit == nil {
		return 0
	}
	return g.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gate) MetricsSnapshot() MetricsSnapshot {
	if g == nil || g.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return g.metrics.Snapshot()
}

// ActiveRecords reports how many rate-limit records are currently live.
func (g *Gate) ActiveRecords() int {
	if g == nil {
		return 0
	}
	return g.store.Len()
}

func (g *Gate) metricInc(id MetricID) {
	if g == nil || g.metrics == nil {
		return
	}
	g.metrics.Inc(id)
}

// rateLimitKey composes the per-(source address, identity) accounting
// key. Missing dimensions degrade to deterministic placeholders, so
// concurrent anonymous attempts from unknown addresses share a single
// counter.
func rateLimitKey(req Request) string {
	addr := req.SourceAddr
	if addr == "" {
		addr = placeholderAddr
	}
	subject := placeholderSubject
	if req.Identity != nil && req.Identity.ID != "" {
		subject = req.Identity.ID
	}
	return keyPrefix + addr + ":" + subject
}

// Challenge decides whether the caller should render the code form for
// this attempt. Unenrolled identities skip the challenge entirely (fail
// open; enrollment is enforced upstream). A locked key is rejected
// before any side effect.
func (g *Gate) Challenge(ctx context.Context, req Request) Outcome {
	if g == nil {
		return Outcome{Kind: OutcomeUnknownIdentity, err: ErrGateNotReady}
	}
	if req.Identity == nil || req.Identity.ID == "" {
		g.metricInc(MetricUnknownIdentity)
		return Outcome{Kind: OutcomeUnknownIdentity, err: ErrUnknownIdentity}
	}

	cred, err := g.credentials.GetOTPCredential(ctx, req.Identity.Realm, req.Identity.ID)
	if err != nil {
		// Enrollment is unknowable right now. Showing the form is safe:
		// Verify will hit the same backend and fail closed there.
		g.metricInc(MetricVerifierFault)
		g.emitAudit(ctx, auditEventVerifierFault, req, false,
			fmt.Errorf("%w: %v", ErrCredentialUnavailable, err), func() map[string]string {
				return map[string]string{"stage": "challenge", "error_detail": err.Error()}
			})
		g.metricInc(MetricChallengeShown)
		return Outcome{Kind: OutcomeProceedToForm}
	}
	if cred == nil || !cred.Enabled {
		g.metricInc(MetricChallengeSkipped)
		return Outcome{Kind: OutcomeSkip, err: ErrNotEnrolled}
	}

	key := rateLimitKey(req)
	verdict := g.evaluate(key)
	if verdict.Locked {
		remaining := verdict.RemainingSeconds()
		g.metricInc(MetricChallengeLockedOut)
		g.emitAudit(ctx, auditEventChallengeLockedOut, req, false, ErrLockedOut, func() map[string]string {
			return map[string]string{"remaining_seconds": strconv.FormatInt(remaining, 10)}
		})
		return Outcome{
			Kind:             OutcomeLockedOut,
			ErrorKey:         errorKeyLockedOut,
			RemainingSeconds: remaining,
			err:              ErrLockedOut,
		}
	}

	g.metricInc(MetricChallengeShown)
	return Outcome{Kind: OutcomeProceedToForm}
}

// Verify validates the submitted code for this attempt. The lockout is
// re-checked first because a concurrent request may have just tripped
// it. A blank code counts as a failed attempt. Verifier errors are
// failed attempts too (fail closed), with the full error confined to
// the audit sink.
func (g *Gate) Verify(ctx context.Context, req Request) Outcome {
	if g == nil {
		return Outcome{Kind: OutcomeUnknownIdentity, err: ErrGateNotReady}
	}
	if req.Identity == nil || req.Identity.ID == "" {
		g.metricInc(MetricUnknownIdentity)
		return Outcome{Kind: OutcomeUnknownIdentity, err: ErrUnknownIdentity}
	}

	key := rateLimitKey(req)
	if verdict := g.evaluate(key); verdict.Locked {
		return g.lockedOutcome(ctx, req, verdict, MetricVerifyLockedOut)
	}

	if req.Code == "" {
		rec := g.recordFailure(ctx, key)
		g.metricInc(MetricVerifyMissingInput)
		g.emitAudit(ctx, auditEventValidationFailed, req, false, ErrMissingInput, func() map[string]string {
			return map[string]string{"attempt_count": strconv.Itoa(rec.Attempts)}
		})
		return Outcome{Kind: OutcomeMissingInput, ErrorKey: errorKeyRequired, err: ErrMissingInput}
	}

	cred, err := g.credentials.GetOTPCredential(ctx, req.Identity.Realm, req.Identity.ID)
	if err != nil {
		return g.verifierFault(ctx, req, key, fmt.Errorf("%w: %v", ErrCredentialUnavailable, err))
	}
	if cred == nil || !cred.Enabled {
		// Enrollment was removed between challenge and submit. Same fail
		// open contract as Challenge.
		g.metricInc(MetricChallengeSkipped)
		return Outcome{Kind: OutcomeSkip, err: ErrNotEnrolled}
	}

	ok, err := g.verifier.Verify(ctx, *req.Identity, cred, req.Code)
	if err != nil {
		return g.verifierFault(ctx, req, key, fmt.Errorf("%w: %v", ErrVerifierFault, err))
	}

	if ok {
		g.store.Clear(key)
		g.metricInc(MetricVerifySuccess)
		g.emitAudit(ctx, auditEventValidated, req, true, nil, nil)
		return Outcome{Kind: OutcomeSuccess}
	}

	return g.classifyFailure(ctx, req, key, ErrInvalidCode)
}

// classifyFailure records one failed attempt and decides between
// invalid-code (with attempts remaining) and a freshly tripped lockout.
func (g *Gate) classifyFailure(ctx context.Context, req Request, key string, cause error) Outcome {
	rec := g.recordFailure(ctx, key)

	g.emitAudit(ctx, auditEventValidationFailed, req, false, cause, func() map[string]string {
		return map[string]string{"attempt_count": strconv.Itoa(rec.Attempts)}
	})

	verdict := lockout.Evaluate(&rec, g.policy, g.now())
	if verdict.Locked {
		g.metricInc(MetricVerifyInvalid)
		g.metricInc(MetricLockoutTriggered)
		g.emitAudit(ctx, auditEventLockoutTriggered, req, false, ErrLockedOut, func() map[string]string {
			return map[string]string{
				"attempt_count":     strconv.Itoa(rec.Attempts),
				"remaining_seconds": strconv.FormatInt(verdict.RemainingSeconds(), 10),
			}
		})
		return Outcome{
			Kind:             OutcomeLockedOut,
			ErrorKey:         errorKeyLockedOut,
			RemainingSeconds: verdict.RemainingSeconds(),
			err:              ErrLockedOut,
		}
	}

	remaining := g.policy.MaxAttempts - rec.Attempts
	if remaining < 0 {
		remaining = 0
	}
	g.metricInc(MetricVerifyInvalid)
	return Outcome{
		Kind:              OutcomeInvalidCode,
		ErrorKey:          errorKeyInvalid,
		AttemptsRemaining: remaining,
		err:               cause,
	}
}

func (g *Gate) verifierFault(ctx context.Context, req Request, key string, err error) Outcome {
	g.metricInc(MetricVerifierFault)
	g.emitAudit(ctx, auditEventVerifierFault, req, false, err, func() map[string]string {
		return map[string]string{"stage": "verify", "error_detail": err.Error()}
	})
	return g.classifyFailure(ctx, req, key, err)
}

func (g *Gate) lockedOutcome(ctx context.Context, req Request, verdict lockout.Verdict, metric MetricID) Outcome {
	remaining := verdict.RemainingSeconds()
	g.metricInc(metric)
	g.emitAudit(ctx, auditEventChallengeLockedOut, req, false, ErrLockedOut, func() map[string]string {
		return map[string]string{"remaining_seconds": strconv.FormatInt(remaining, 10)}
	})
	return Outcome{
		Kind:             OutcomeLockedOut,
		ErrorKey:         errorKeyLockedOut,
		RemainingSeconds: remaining,
		err:              ErrLockedOut,
	}
}

func (g *Gate) evaluate(key string) lockout.Verdict {
	rec, ok := g.store.Get(key)
	if !ok {
		return lockout.Verdict{}
	}
	return lockout.Evaluate(&rec, g.policy, g.now())
}

func (g *Gate) recordFailure(ctx context.Context, key string) attempt.Record {
	now := g.now()
	rec := g.store.RecordFailure(key, now)
	if evicted := g.reclaimer.Note(now); evicted > 0 {
		g.metrics.Add(MetricRecordsSwept, uint64(evicted))
		g.emitAudit(ctx, auditEventSweep, Request{}, true, nil, func() map[string]string {
			return map[string]string{"evicted": strconv.Itoa(evicted)}
		})
	}
	return rec
}
