package otpgate

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config defines a public type used by otpgate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Gate    GateConfig
	TOTP    TOTPConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

// GateConfig holds the rate-limit thresholds. Read once at startup,
// shared read-only afterwards.
type GateConfig struct {
	Enabled         bool
	MaxAttempts     int
	LockoutDuration time.Duration

	// SweepEvery triggers an eviction sweep after this many recorded
	// failures; SweepInterval additionally runs one on a timer when > 0.
	SweepEvery    int
	SweepInterval time.Duration
}

// TOTPConfig configures the built-in TOTP verifier. Ignored when a
// custom [Verifier] is injected through the builder.
type TOTPConfig struct {
	Digits                  int
	Period                  int
	Algorithm               string
	Skew                    int
	EnforceReplayProtection bool
}

// AuditConfig defines a public type used by otpgate APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	IncludeIP  bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by otpgate APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the built-in defaults: rate limiting enabled,
// 5 attempts, 300 second lockout.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Gate: GateConfig{
			Enabled:         true,
			MaxAttempts:     5,
			LockoutDuration: 300 * time.Second,
			SweepEvery:      100,
			SweepInterval:   0,
		},
		TOTP: TOTPConfig{
			Digits:                  6,
			Period:                  30,
			Algorithm:               "SHA1",
			Skew:                    1,
			EnforceReplayProtection: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			IncludeIP:  true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

/*
====================================
ENVIRONMENT OVERRIDES
====================================
*/

// Environment variables override the caller-supplied Config, which in
// turn overrides the built-in defaults. Same precedence the deployment
// surface documents: env > packaged configuration > default.
const (
	envRateLimitEnabled       = "OTPGATE_RATE_LIMIT_ENABLED"
	envMaxAttempts            = "OTPGATE_MAX_ATTEMPTS"
	envLockoutDurationSeconds = "OTPGATE_LOCKOUT_DURATION_SECONDS"
	envAuditIncludeIP         = "OTPGATE_AUDIT_INCLUDE_IP"
)

// ApplyEnv returns a copy of c with any recognized OTPGATE_* environment
// variables applied on top. Unparseable values are ignored and reported
// alongside validation errors.
func (c Config) ApplyEnv() (Config, []string) {
	var problems []string

	if raw, ok := os.LookupEnv(envRateLimitEnabled); ok {
		if v, err := strconv.ParseBool(raw); err == nil {
			c.Gate.Enabled = v
		} else {
			problems = append(problems, fmt.Sprintf("%s: %q is not a boolean", envRateLimitEnabled, raw))
		}
	}
	if raw, ok := os.LookupEnv(envMaxAttempts); ok {
		if v, err := strconv.Atoi(raw); err == nil {
			c.Gate.MaxAttempts = v
		} else {
			problems = append(problems, fmt.Sprintf("%s: %q is not an integer", envMaxAttempts, raw))
		}
	}
	if raw, ok := os.LookupEnv(envLockoutDurationSeconds); ok {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			c.Gate.LockoutDuration = time.Duration(v) * time.Second
		} else {
			problems = append(problems, fmt.Sprintf("%s: %q is not an integer", envLockoutDurationSeconds, raw))
		}
	}
	if raw, ok := os.LookupEnv(envAuditIncludeIP); ok {
		if v, err := strconv.ParseBool(raw); err == nil {
			c.Audit.IncludeIP = v
		} else {
			problems = append(problems, fmt.Sprintf("%s: %q is not a boolean", envAuditIncludeIP, raw))
		}
	}

	return c, problems
}

/*
====================================
VALIDATION
====================================
*/

// Validate collects human-readable configuration errors. An invalid
// configuration never prevents the gate from starting: [Builder.Build]
// replaces offending fields with defaults and surfaces the collected
// errors through [Gate.ConfigIssues] for operator remediation.
func (c *Config) Validate() []string {
	var errs []string

	if c.Gate.MaxAttempts < 1 {
		errs = append(errs, "Gate MaxAttempts must be at least 1")
	}
	if c.Gate.LockoutDuration < 0 {
		errs = append(errs, "Gate LockoutDuration must be non-negative")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		errs = append(errs, "Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.TOTP.Digits != 0 && c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		errs = append(errs, "TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period < 0 {
		errs = append(errs, "TOTP Period must be non-negative")
	}
	if c.TOTP.Skew < 0 {
		errs = append(errs, "TOTP Skew must be non-negative")
	}

	return errs
}

// sanitizeConfig replaces invalid fields with their defaults so the gate
// can run while the reported errors are remediated.
func sanitizeConfig(c Config) Config {
	def := defaultConfig()

	if c.Gate.MaxAttempts < 1 {
		c.Gate.MaxAttempts = def.Gate.MaxAttempts
	}
	if c.Gate.LockoutDuration < 0 {
		c.Gate.LockoutDuration = def.Gate.LockoutDuration
	}
	if c.Gate.SweepEvery <= 0 {
		c.Gate.SweepEvery = def.Gate.SweepEvery
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		c.Audit.BufferSize = def.Audit.BufferSize
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		c.TOTP.Digits = def.TOTP.Digits
	}
	if c.TOTP.Period <= 0 {
		c.TOTP.Period = def.TOTP.Period
	}
	if c.TOTP.Skew < 0 {
		c.TOTP.Skew = def.TOTP.Skew
	}
	if c.TOTP.Algorithm == "" {
		c.TOTP.Algorithm = def.TOTP.Algorithm
	}

	return c
}
