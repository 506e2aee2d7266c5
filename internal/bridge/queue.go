package bridge

import "sync"

// waiter is one blocked WaitFor call. Its channel has capacity 1 and
// receives at most one event; the queue closes it instead when the
// bridge shuts down.
type waiter struct {
	pred Predicate
	ch   chan Event
}

// eventQueue keeps undelivered interpreter events in arrival order.
// The reader goroutine is the only producer; WaitFor callers consume.
// All mutation happens under one mutex so a concurrent push can never
// slip past a registering waiter.
type eventQueue struct {
	mu      sync.Mutex
	events  []Event
	waiters []*waiter
	closed  bool
}

func newEventQueue() *eventQueue {
	return &eventQueue{}
}

// push delivers ev to the oldest matching waiter, or appends it to the
// queue when nobody is waiting for it. Events pushed after close are
// dropped.
func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	for i, w := range q.waiters {
		if w.pred(ev) {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			w.ch <- ev
			return
		}
	}
	q.events = append(q.events, ev)
}

// subscribe scans queued events in arrival order, removing and
// returning the first match. When none is queued it registers a waiter
// atomically, so the caller can block on waiter.ch without racing the
// reader. The returned cancel func deregisters the waiter after a
// timeout; it is safe to call after delivery.
func (q *eventQueue) subscribe(pred Predicate) (Event, bool, *waiter, func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, ev := range q.events {
		if pred(ev) {
			q.events = append(q.events[:i], q.events[i+1:]...)
			return ev, true, nil, nil
		}
	}

	w := &waiter{pred: pred, ch: make(chan Event, 1)}
	if q.closed {
		close(w.ch)
		return Event{}, false, w, func() {}
	}
	q.waiters = append(q.waiters, w)

	cancel := func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		for i, x := range q.waiters {
			if x == w {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				return
			}
		}
	}
	return Event{}, false, w, cancel
}

// close drops all queued events, releases every blocked waiter by
// closing its channel, and refuses further pushes and waiters. Each
// bridge start gets a fresh queue, so close is final.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = nil
	for _, w := range q.waiters {
		close(w.ch)
	}
	q.waiters = nil
	q.closed = true
}

// len reports the number of undelivered events, for logging.
func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
