package flowguard

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricRegistrationStarted counts BeginRegistration calls that sent an
	// activation email.
	MetricRegistrationStarted MetricID = iota
	// MetricRegistrationCompleted counts accounts created.
	MetricRegistrationCompleted
	// MetricRegistrationRejected counts generic registration rejections.
	MetricRegistrationRejected
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess
	// MetricLoginFailure counts failed logins, locked rejections excluded.
	MetricLoginFailure
	// MetricLoginLocked counts logins rejected by the lockout window.
	MetricLoginLocked
	// MetricCaptchaChallenged counts logins rejected pending a CAPTCHA.
	MetricCaptchaChallenged
	// MetricResumeSuccess counts sessions established from remember tokens.
	MetricResumeSuccess
	// MetricResumeFailure counts remember tokens silently rejected.
	MetricResumeFailure
	// MetricRecoveryStarted counts BeginRecovery calls that sent an email.
	MetricRecoveryStarted
	// MetricRecoveryCompleted counts password changes via recovery.
	MetricRecoveryCompleted
	// MetricRecoveryRejected counts generic recovery rejections.
	MetricRecoveryRejected
	// MetricUnlockStarted counts BeginUnlock calls that sent an email.
	MetricUnlockStarted
	// MetricUnlockCompleted counts successful unlocks.
	MetricUnlockCompleted
	// MetricUnlockRejected counts generic unlock rejections.
	MetricUnlockRejected
	// MetricLogout counts sessions ended by logout.
	MetricLogout
	// MetricSessionCreated counts sessions established by any flow.
	MetricSessionCreated
	// MetricSessionInvalidated counts sessions deleted by any flow.
	MetricSessionInvalidated
	// MetricEmailSendFailure counts best-effort email sends that failed.
	MetricEmailSendFailure
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds the engine's counters. Counters are lock-free and padded to
// avoid false sharing between hot IDs.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics creates a Metrics registry.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counting is active.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc increments a counter. A disabled registry is a no-op.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value returns the current count for one ID.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter.
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
