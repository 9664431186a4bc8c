package otpgate

import (
	"sync/atomic"
)

// MetricID defines a public type used by otpgate APIs.
//
// MetricID instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricID uint16

const (
	// MetricChallengeShown is an exported constant or variable used by the verification gate.
	MetricChallengeShown MetricID = iota
	// MetricChallengeSkipped is an exported constant or variable used by the verification gate.
	MetricChallengeSkipped
	// MetricChallengeLockedOut is an exported constant or variable used by the verification gate.
	MetricChallengeLockedOut
	// MetricVerifySuccess is an exported constant or variable used by the verification gate.
	MetricVerifySuccess
	// MetricVerifyInvalid is an exported constant or variable used by the verification gate.
	MetricVerifyInvalid
	// MetricVerifyMissingInput is an exported constant or variable used by the verification gate.
	MetricVerifyMissingInput
	// MetricVerifyLockedOut is an exported constant or variable used by the verification gate.
	MetricVerifyLockedOut
	// MetricVerifierFault is an exported constant or variable used by the verification gate.
	MetricVerifierFault
	// MetricUnknownIdentity is an exported constant or variable used by the verification gate.
	MetricUnknownIdentity
	// MetricLockoutTriggered is an exported constant or variable used by the verification gate.
	MetricLockoutTriggered
	// MetricRecordsSwept is an exported constant or variable used by the verification gate.
	MetricRecordsSwept
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics defines a public type used by otpgate APIs.
//
// Metrics instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot defines a public type used by otpgate APIs.
//
// MetricsSnapshot instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics describes the newmetrics operation and its observable behavior.
//
// NewMetrics does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
	}
}

// Enabled describes the enabled operation and its observable behavior.
//
// Enabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc describes the inc operation and its observable behavior.
//
// Inc does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add describes the add operation and its observable behavior.
//
// Add does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Value describes the value operation and its observable behavior.
//
// Value does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}

	s := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, int(metricIDCount)),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}

// MetricName returns the stable exposition name for id, or "" for an
// unknown metric.
func MetricName(id MetricID) string {
	switch id {
	case MetricChallengeShown:
		return "otpgate_challenge_shown_total"
	case MetricChallengeSkipped:
		return "otpgate_challenge_skipped_total"
	case MetricChallengeLockedOut:
		return "otpgate_challenge_locked_out_total"
	case MetricVerifySuccess:
		return "otpgate_verify_success_total"
	case MetricVerifyInvalid:
		return "otpgate_verify_invalid_total"
	case MetricVerifyMissingInput:
		return "otpgate_verify_missing_input_total"
	case MetricVerifyLockedOut:
		return "otpgate_verify_locked_out_total"
	case MetricVerifierFault:
		return "otpgate_verifier_fault_total"
	case MetricUnknownIdentity:
		return "otpgate_unknown_identity_total"
	case MetricLockoutTriggered:
		return "otpgate_lockout_triggered_total"
	case MetricRecordsSwept:
		return "otpgate_records_swept_total"
	default:
		return ""
	}
}

// MetricIDs returns every defined metric in declaration order.
func MetricIDs() []MetricID {
	out := make([]MetricID, 0, int(metricIDCount))
	for id := MetricID(0); id < metricIDCount; id++ {
		out = append(out, id)
	}
	return out
}
