package otpgate

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/finappkc/otpgate/internal/attempt"
	"github.com/finappkc/otpgate/internal/lockout"
)

// Builder defines a public type used by otpgate APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config      Config
	envProblems []string

	credentials CredentialProvider
	verifier    Verifier
	auditSink   AuditSink
	clock       func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithEnvOverrides applies OTPGATE_* environment variables on top of the
// current configuration. Parse failures are collected with the
// validation errors, never fatal.
func (b *Builder) WithEnvOverrides() *Builder {
	cfg, problems := b.config.ApplyEnv()
	b.config = cfg
	b.envProblems = append(b.envProblems, problems...)
	return b
}

// WithCredentialProvider describes the withcredentialprovider operation and its observable behavior.
//
// WithCredentialProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithCredentialProvider(cp CredentialProvider) *Builder {
	b.credentials = cp
	return b
}

// WithVerifier installs a custom credential-verification primitive.
// When omitted, Build wires the built-in [TOTPVerifier].
func (b *Builder) WithVerifier(v Verifier) *Builder {
	b.verifier = v
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithClock overrides the gate's time source. Tests use it to pin or
// advance the clock deterministically.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Gate, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.credentials == nil {
		return nil, errors.New("credential provider required")
	}

	// Configuration problems never abort startup: the offending fields
	// run on defaults and the issues stay visible to operators.
	issues := append(b.envProblems, b.config.Validate()...)
	cfg := sanitizeConfig(b.config)

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	verifier := b.verifier
	if verifier == nil {
		verifier = NewTOTPVerifier(cfg.TOTP, b.credentials)
	}

	store := attempt.NewStore(cfg.Gate.LockoutDuration)

	// A record may influence a verdict for up to one lockout window
	// after its last write; double that before eviction, with a floor so
	// duration-0 configs still reclaim promptly.
	maxAge := 2 * cfg.Gate.LockoutDuration
	if maxAge < time.Minute {
		maxAge = time.Minute
	}
	reclaimer := attempt.NewReclaimer(store, maxAge, cfg.Gate.SweepEvery)

	gate := &Gate{
		store:       store,
		reclaimer:   reclaimer,
		credentials: b.credentials,
		verifier:    verifier,
		policy: lockout.Policy{
			Enabled:     cfg.Gate.Enabled,
			MaxAttempts: cfg.Gate.MaxAttempts,
			Duration:    cfg.Gate.LockoutDuration,
		},
		audit:        newAuditDispatcher(cfg.Audit, b.auditSink, clock),
		metrics:      NewMetrics(cfg.Metrics),
		configIssues: issues,
		now:          clock,
	}

	if cfg.Gate.SweepInterval > 0 {
		reclaimer.Start(cfg.Gate.SweepInterval, func(evicted int) {
			gate.metrics.Add(MetricRecordsSwept, uint64(evicted))
		})
	}

	if len(issues) > 0 {
		gate.emitAudit(context.Background(), auditEventConfigInvalid, Request{}, false, nil, func() map[string]string {
			out := make(map[string]string, len(issues))
			for i, issue := range issues {
				out["issue_"+strconv.Itoa(i)] = issue
			}
			return out
		})
	}

	b.built = true
	return gate, nil
}
