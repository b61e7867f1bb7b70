package mission

import "time"

type StartState int

const (
	StartNotStarted StartState = iota
	StartPending
	StartRejected
	StartAccepted
)

func (s StartState) String() string {
	switch s {
	case StartNotStarted:
		return "not_started"
	case StartPending:
		return "pending"
	case StartRejected:
		return "rejected"
	case StartAccepted:
		return "accepted"
	}
	return "unknown"
}

// Starter issues an asynchronous mission start.
type Starter interface {
	Start(generation uint64) error
}

// StartRetrier retries a rejected mission start until a wall-clock window
// measured from the first attempt has elapsed. The number of attempts is not
// bounded.
type StartRetrier struct {
	timeout  time.Duration
	first    time.Time
	attempts int
	state    StartState
	lastErr  error
}

func NewStartRetrier(timeout time.Duration) *StartRetrier {
	return &StartRetrier{timeout: timeout}
}

func (r *StartRetrier) Attempt(now time.Time, generation uint64, manualOverride bool, starter Starter) error {
	if r.attempts == 0 {
		r.first = now
	}
	r.attempts++
	r.state = StartPending

	if manualOverride {
		r.lastErr = ErrManualOverride
	} else {
		r.lastErr = starter.Start(generation)
	}
	if r.lastErr != nil {
		r.state = StartRejected
	}
	return r.lastErr
}

func (r *StartRetrier) Complete(err error) {
	if r.state != StartPending {
		return
	}
	if err != nil {
		r.state = StartRejected
		r.lastErr = err
		return
	}
	r.state = StartAccepted
	r.lastErr = nil
}

// Expired reports whether more than the timeout has passed since the first attempt.
func (r *StartRetrier) Expired(now time.Time) bool {
	return r.attempts > 0 && now.Sub(r.first) > r.timeout
}

func (r *StartRetrier) State() StartState {
	return r.state
}

func (r *StartRetrier) Attempts() int {
	return r.attempts
}

func (r *StartRetrier) LastError() error {
	return r.lastErr
}
