package lockout

import (
	"time"

	"github.com/finappkc/otpgate/internal/attempt"
)

// Policy is the read-only lockout configuration. Duration 0 means a
// lockout expires the instant it begins: attempts are still counted but
// Evaluate never reports locked.
type Policy struct {
	Enabled     bool
	MaxAttempts int
	Duration    time.Duration
}

// Verdict is the transient outcome of one evaluation. It is derived from
// a record and never stored.
type Verdict struct {
	Locked    bool
	Remaining time.Duration
}

// RemainingSeconds returns the remaining lockout rounded up to whole
// seconds, never negative.
func (v Verdict) RemainingSeconds() int64 {
	if v.Remaining <= 0 {
		return 0
	}
	secs := int64(v.Remaining / time.Second)
	if v.Remaining%time.Second != 0 {
		secs++
	}
	return secs
}

// Evaluate decides whether the key behind rec is locked at now. A nil
// record, a disabled policy, or a counter below the threshold is never
// locked. At or over the threshold the key stays locked until one full
// Duration after the last failure.
func Evaluate(rec *attempt.Record, p Policy, now time.Time) Verdict {
	if !p.Enabled || rec == nil {
		return Verdict{}
	}
	if rec.Attempts < p.MaxAttempts {
		return Verdict{}
	}

	end := rec.Last.Add(p.Duration)
	if !now.Before(end) {
		return Verdict{}
	}
	return Verdict{Locked: true, Remaining: end.Sub(now)}
}
