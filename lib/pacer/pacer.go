// Package pacer converts sequences of maybe-retriable operations into
// reliable ones by pacing the calls according to a Calculator and
// bounding the number of calls in flight at once.
package pacer

import (
	"time"
)

// Paced is a function that does a single paced operation. It should
// return retry true if the operation should be retried, and a non-nil
// error describing what went wrong. If it returns true then the error
// will still be returned if retries are exhausted.
type Paced func() (retry bool, err error)

// State is the current state of the pacer used by a Calculator to work
// out the next sleep time.
type State struct {
	// SleepTime is the current sleep time between calls.
	SleepTime time.Duration
	// ConsecutiveRetries is the number of consecutive retries, reset to
	// 0 by a successful, non-retried call.
	ConsecutiveRetries int
	// LastError is the error from the last call, if any.
	LastError error
}

// Calculator works out the next sleep time for the pacer given the
// current State.
type Calculator interface {
	Calculate(state State) time.Duration
}

// Pacer paces operations, sleeping between them as directed by its
// Calculator and limiting the number of concurrent in-flight calls when
// MaxConnections is set.
type Pacer struct {
	pacer          chan struct{}
	connTokens     chan struct{}
	maxConnections int
	retries        int
	state          State
	calculator     Calculator
}

// Option configures a new Pacer.
type Option func(*Pacer)

// CalculatorOption sets the Calculator used to compute sleep times.
func CalculatorOption(c Calculator) Option {
	return func(p *Pacer) { p.calculator = c }
}

// RetriesOption sets how many times a retriable call is attempted before
// giving up.
func RetriesOption(retries int) Option {
	return func(p *Pacer) { p.retries = retries }
}

// MaxConnectionsOption bounds the number of concurrent in-flight calls;
// 0 means unlimited.
func MaxConnectionsOption(n int) Option {
	return func(p *Pacer) { p.SetMaxConnections(n) }
}

// New returns a ready-to-use Pacer. Defaults match the teacher's
// conservative FTP/S3 pacing: a Default calculator with a 10ms minimum
// sleep, 2s maximum, and 10 retries.
func New(opts ...Option) *Pacer {
	p := &Pacer{
		pacer:      make(chan struct{}, 1),
		retries:    10,
		calculator: NewDefault(),
	}
	for _, o := range opts {
		o(p)
	}
	if d, ok := p.calculator.(*Default); ok {
		p.state.SleepTime = d.minSleep
	}
	p.pacer <- struct{}{}
	return p
}

// SetMaxConnections sets the maximum number of concurrent calls. 0
// disables the limit.
func (p *Pacer) SetMaxConnections(n int) {
	p.maxConnections = n
	if n <= 0 {
		p.connTokens = nil
		return
	}
	p.connTokens = make(chan struct{}, n)
	for i := 0; i < n; i++ {
		p.connTokens <- struct{}{}
	}
}

// SetRetries sets the number of retries used by Call.
func (p *Pacer) SetRetries(retries int) { p.retries = retries }

// SetCalculator installs a new Calculator.
func (p *Pacer) SetCalculator(c Calculator) { p.calculator = c }

// beginCall acquires a pace token (and a connection token, if limited)
// before a call is allowed to start, then arranges for the pace token to
// be returned after the calculator's current sleep time has elapsed.
func (p *Pacer) beginCall() {
	<-p.pacer
	if p.connTokens != nil {
		<-p.connTokens
	}
	go func() {
		time.Sleep(p.state.SleepTime)
		p.pacer <- struct{}{}
	}()
}

// endCall releases the connection token and updates the pacer state based
// on whether the call is being retried.
func (p *Pacer) endCall(retry bool, err error) {
	if p.connTokens != nil {
		p.connTokens <- struct{}{}
	}
	if retry {
		p.state.ConsecutiveRetries++
	} else {
		p.state.ConsecutiveRetries = 0
	}
	p.state.LastError = err
	p.state.SleepTime = p.calculator.Calculate(p.state)
}

// call runs fn, pacing each attempt, retrying up to retries times while fn
// reports retry=true.
func (p *Pacer) call(fn Paced, retries int) error {
	var retry bool
	var err error
	for try := 1; try <= retries; try++ {
		p.beginCall()
		retry, err = fn()
		p.endCall(retry, err)
		if !retry {
			break
		}
	}
	return err
}

// Call runs fn, retrying it (pacing between every attempt) up to the
// configured retry count while it returns retry=true.
func (p *Pacer) Call(fn Paced) error {
	return p.call(fn, p.retries)
}

// CallNoRetry runs fn exactly once, still subject to pacing and the
// connection-count limit.
func (p *Pacer) CallNoRetry(fn Paced) error {
	return p.call(fn, 1)
}
