package controller

import (
	"context"
	"sync"
	"time"
)

// job is one vehicle interaction. run executes on the dispatcher goroutine;
// done executes later on the controller goroutine.
type job struct {
	name        string
	run         func(ctx context.Context) (interface{}, error)
	done        func(value interface{}, err error)
	cancellable bool
	cancelled   bool
}

type jobResult struct {
	job   *job
	value interface{}
	err   error
}

type jobRunner interface {
	submit(j *job)
	cancelUpload()
}

// dispatcher runs vehicle jobs one at a time in submission order.
type dispatcher struct {
	timeout time.Duration
	deliver func(ctx context.Context, r jobResult)

	mu      sync.Mutex
	queue   []*job
	running *job
	cancel  context.CancelFunc
	wake    chan struct{}
}

func newDispatcher(timeout time.Duration, deliver func(ctx context.Context, r jobResult)) *dispatcher {
	return &dispatcher{
		timeout: timeout,
		deliver: deliver,
		wake:    make(chan struct{}, 1),
	}
}

func (d *dispatcher) submit(j *job) {
	d.mu.Lock()
	d.queue = append(d.queue, j)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// cancelUpload aborts the running upload and marks queued ones as cancelled.
func (d *dispatcher) cancelUpload() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running != nil && d.running.cancellable && d.cancel != nil {
		d.cancel()
	}
	for _, j := range d.queue {
		if j.cancellable {
			j.cancelled = true
		}
	}
}

func (d *dispatcher) next() *job {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return nil
	}
	j := d.queue[0]
	d.queue = d.queue[1:]
	return j
}

func (d *dispatcher) run(ctx context.Context) error {
	for {
		j := d.next()
		if j == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-d.wake:
				continue
			}
		}

		jctx, cancel := context.WithTimeout(ctx, d.timeout)
		d.mu.Lock()
		d.running = j
		d.cancel = cancel
		skip := j.cancelled
		d.mu.Unlock()

		var value interface{}
		var err error
		if skip {
			err = context.Canceled
		} else {
			value, err = j.run(jctx)
		}

		d.mu.Lock()
		d.running = nil
		d.cancel = nil
		d.mu.Unlock()
		cancel()

		d.deliver(ctx, jobResult{j, value, err})
	}
}
