package rtc

import (
	"sync"

	"github.com/dkeye/VideoCall/internal/core"
)

// eventQueue is an unbounded FIFO between pion callbacks and the Events
// channel. push never blocks; a pump goroutine feeds out until close.
type eventQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	closed   bool
	events   []core.EngineEvent

	out  chan core.EngineEvent
	done chan struct{}
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		out:  make(chan core.EngineEvent),
		done: make(chan struct{}),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	go q.pump()
	return q
}

func (q *eventQueue) push(ev core.EngineEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.events = append(q.events, ev)
	q.notEmpty.Signal()
	return true
}

// pop blocks until an event is available or the queue is closed.
func (q *eventQueue) pop() (core.EngineEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.events) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.closed {
		return nil, false
	}
	ev := q.events[0]
	q.events[0] = nil
	q.events = q.events[1:]
	return ev, true
}

func (q *eventQueue) pump() {
	defer close(q.out)
	for {
		ev, ok := q.pop()
		if !ok {
			return
		}
		select {
		case q.out <- ev:
		case <-q.done:
			return
		}
	}
}

// close discards undelivered events; out is closed once the pump exits.
func (q *eventQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.events = nil
	close(q.done)
	q.notEmpty.Broadcast()
	q.mu.Unlock()
}
