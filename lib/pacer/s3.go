package pacer

import "time"

// S3 is a Calculator tuned for the object-storage backend: it attacks
// towards maxSleep exactly like Default, but decays all the way to zero
// once the sleep time would otherwise fall below minSleep, since S3 has
// no benefit from a nonzero floor the way a persistent FTP/SFTP control
// connection does.
type S3 struct {
	Default
}

// NewS3 returns an S3 calculator with the same defaults as NewDefault.
func NewS3(opts ...CalcOption) *S3 {
	s := &S3{Default: *NewDefault()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *S3) Calculate(state State) time.Duration {
	if state.ConsecutiveRetries == 0 {
		sleepTime := state.SleepTime - state.SleepTime>>s.decayConstant
		if sleepTime < s.minSleep {
			return 0
		}
		return sleepTime
	}
	return s.attack(state.SleepTime)
}
