package pacer

import "time"

// Default is the Calculator used by the FTP transport: it decays
// the sleep time towards minSleep on success and attacks it towards
// maxSleep on a retry.
type Default struct {
	minSleep       time.Duration
	maxSleep       time.Duration
	decayConstant  uint
	attackConstant uint
}

// NewDefault returns a Default calculator with a 10ms minimum sleep, a
// 2s maximum sleep, decay constant 2, and attack constant 1.
func NewDefault(opts ...CalcOption) *Default {
	d := &Default{
		minSleep:       10 * time.Millisecond,
		maxSleep:       2 * time.Second,
		decayConstant:  2,
		attackConstant: 1,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Default) setMinSleep(t time.Duration) { d.minSleep = t }
func (d *Default) setMaxSleep(t time.Duration)  { d.maxSleep = t }
func (d *Default) setDecayConstant(n uint)      { d.decayConstant = n }
func (d *Default) setAttackConstant(n uint)     { d.attackConstant = n }
func (d *Default) setBurst(int)                 {}

// Calculate decays sleepTime towards minSleep after a successful call, or
// attacks it towards maxSleep after a retried one.
func (d *Default) Calculate(state State) time.Duration {
	if state.ConsecutiveRetries == 0 {
		return d.decay(state.SleepTime)
	}
	return d.attack(state.SleepTime)
}

func (d *Default) decay(sleepTime time.Duration) time.Duration {
	sleepTime -= sleepTime >> d.decayConstant
	if sleepTime < d.minSleep {
		sleepTime = d.minSleep
	}
	return sleepTime
}

func (d *Default) attack(sleepTime time.Duration) time.Duration {
	if d.attackConstant == 0 {
		return d.maxSleep
	}
	factor := time.Duration(1) << d.attackConstant
	sleepTime = sleepTime * factor / (factor - 1)
	if sleepTime > d.maxSleep {
		sleepTime = d.maxSleep
	}
	if sleepTime < d.minSleep {
		sleepTime = d.minSleep
	}
	return sleepTime
}
