package pacer

import "time"

// configurable is implemented by calculators that accept the shared
// MinSleep/MaxSleep/DecayConstant/AttackConstant/Burst options. Each
// calculator only wires up the settings it actually uses; the rest are
// no-ops.
type configurable interface {
	setMinSleep(time.Duration)
	setMaxSleep(time.Duration)
	setDecayConstant(uint)
	setAttackConstant(uint)
	setBurst(int)
}

// CalcOption configures a Calculator constructor (NewDefault, NewS3,
// NewGoogleDrive, ...).
type CalcOption func(configurable)

// MinSleep sets the minimum time to sleep between calls.
func MinSleep(d time.Duration) CalcOption {
	return func(c configurable) { c.setMinSleep(d) }
}

// MaxSleep sets the maximum time to sleep between calls.
func MaxSleep(d time.Duration) CalcOption {
	return func(c configurable) { c.setMaxSleep(d) }
}

// DecayConstant sets the rate at which the sleep time decays back towards
// MinSleep after a successful call. Bigger is slower.
func DecayConstant(n uint) CalcOption {
	return func(c configurable) { c.setDecayConstant(n) }
}

// AttackConstant sets the rate at which the sleep time grows after a
// retried call. Bigger is slower; 0 means jump straight to MaxSleep.
func AttackConstant(n uint) CalcOption {
	return func(c configurable) { c.setAttackConstant(n) }
}

// Burst sets the number of calls allowed through for free before a
// calculator that paces non-retried calls (e.g. GoogleDrive) starts
// inserting a minimum sleep between them.
func Burst(n int) CalcOption {
	return func(c configurable) { c.setBurst(n) }
}
