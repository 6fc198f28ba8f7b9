package video

import (
	"context"
	"sync"
)

// Dispatcher is the presentation context: a single goroutine that runs every
// render-surface mutation in submission order.
type Dispatcher struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool
	running bool

	wake     chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Dispatch queues fn and returns immediately. It reports false once the
// dispatcher has stopped, in which case fn never runs.
func (d *Dispatcher) Dispatch(fn func()) bool {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

// Run executes queued functions until ctx is done or Stop is called.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped || d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = true
	d.mu.Unlock()
	defer close(d.done)

	for {
		fn, ok := d.next()
		if ok {
			fn()
			continue
		}
		select {
		case <-ctx.Done():
			d.markStopped()
			return nil
		case <-d.quit:
			return nil
		case <-d.wake:
		}
	}
}

func (d *Dispatcher) next() (func(), bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.queue) == 0 {
		return nil, false
	}
	fn := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	return fn, true
}

func (d *Dispatcher) markStopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.queue = nil
	d.quitOnce.Do(func() { close(d.quit) })
	return d.running
}

// Stop discards pending work and waits for a running function to finish.
// No queued function runs after Stop returns. It must not be called from a
// dispatched function.
func (d *Dispatcher) Stop() {
	if d.markStopped() {
		<-d.done
	}
}
