package mission

import "github.com/pkg/errors"

var ErrManualOverride = errors.New("vehicle is under manual control")

type UploadState int

const (
	UploadIdle UploadState = iota
	UploadStarted
	UploadSucceeded
	UploadFailed
)

func (s UploadState) String() string {
	switch s {
	case UploadIdle:
		return "idle"
	case UploadStarted:
		return "started"
	case UploadSucceeded:
		return "succeeded"
	case UploadFailed:
		return "failed"
	}
	return "unknown"
}

// Uploader issues an asynchronous upload. Implementations clear the mission
// stored on the vehicle before uploading the new one, and report the outcome
// back with the same generation.
type Uploader interface {
	Upload(generation uint64, plan Plan) error
}

// UploadRetrier tracks the attempts to upload one plan.
type UploadRetrier struct {
	ceiling  int
	attempts int
	state    UploadState
	lastErr  error
}

func NewUploadRetrier(ceiling int) *UploadRetrier {
	if ceiling < 1 {
		ceiling = 1
	}
	return &UploadRetrier{ceiling: ceiling}
}

// Begin counts an attempt and issues the upload. On error the retrier is left
// in UploadFailed and nothing was sent.
func (r *UploadRetrier) Begin(generation uint64, plan Plan, manualOverride bool, uploader Uploader) error {
	r.attempts++
	r.state = UploadFailed

	switch {
	case plan.Empty():
		r.lastErr = ErrEmptyPlan
	case manualOverride:
		r.lastErr = ErrManualOverride
	default:
		r.lastErr = uploader.Upload(generation, plan)
	}
	if r.lastErr != nil {
		return r.lastErr
	}

	r.state = UploadStarted
	return nil
}

// Complete records the result of the upload in flight.
func (r *UploadRetrier) Complete(err error) {
	if r.state != UploadStarted {
		return
	}
	if err != nil {
		r.state = UploadFailed
		r.lastErr = err
		return
	}
	r.state = UploadSucceeded
	r.lastErr = nil
}

func (r *UploadRetrier) State() UploadState {
	return r.state
}

func (r *UploadRetrier) Attempts() int {
	return r.attempts
}

func (r *UploadRetrier) Exhausted() bool {
	return r.attempts >= r.ceiling
}

func (r *UploadRetrier) LastError() error {
	return r.lastErr
}
