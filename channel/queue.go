package channel

import (
	"sync"
	"time"

	"github.com/execfabric/execfabric/xerr"
)

// wakeInterval bounds how long a timed Receive can oversleep past its
// deadline (spec §5: "Receivers poll an internal wake interval so that a
// sibling closing the channel unblocks them promptly").
const wakeInterval = 50 * time.Millisecond

// itemQueue is an unbounded FIFO of received values terminated by a single
// logical end-of-stream, grounded on the original's queue.Queue-backed
// Channel._items plus its ENDMARKER re-enqueue trick — re-implemented
// here as a sticky "closed" flag instead of re-putting a sentinel, since
// Go gives us a condition variable rather than a blocking Queue: once
// drained and closed, every subsequent Receive returns the same terminal
// error forever (spec §4.5's endmarker-exactly-once is satisfied by
// delivering it to the callback path exactly once; polling Receive()
// callers may observe the terminal state repeatedly, matching the
// original's "for other receivers" comment).
type itemQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []interface{}
	closed bool
	endErr error
}

func newItemQueue() *itemQueue {
	q := &itemQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put enqueues a value for a future Receive.
func (q *itemQueue) Put(v interface{}) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.cond.Signal()
}

// Close marks the queue terminated with endErr as the error every Receive
// returns once the backlog is drained. Idempotent.
func (q *itemQueue) Close(endErr error) {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.endErr = endErr
	}
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Receive blocks until a value is available or the queue is closed and
// drained, in which case it returns the queue's terminal error. timeout <= 0
// waits forever; otherwise Receive wakes at wakeInterval to recheck the
// deadline and returns xerr.TimeoutError on expiry (spec §5).
func (q *itemQueue) Receive(timeout time.Duration) (interface{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var deadline time.Time
	waiting := timeout > 0
	if waiting {
		deadline = time.Now().Add(timeout)
	}
	for len(q.items) == 0 && !q.closed {
		if waiting {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, xerr.NewTimeoutError("receive timed out")
			}
			q.waitUpTo(minDuration(remaining, wakeInterval))
			continue
		}
		q.cond.Wait()
	}
	if len(q.items) > 0 {
		v := q.items[0]
		q.items = q.items[1:]
		return v, nil
	}
	return nil, q.endErr
}

// waitUpTo releases q.mu, sleeps at most d or until Signal/Broadcast, then
// reacquires q.mu. Callers re-check their condition afterward.
func (q *itemQueue) waitUpTo(d time.Duration) {
	timer := time.AfterFunc(d, q.cond.Broadcast)
	defer timer.Stop()
	q.cond.Wait()
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// drainCallback delivers every already-queued item to cb, then reports
// whether the queue was already closed (so the caller can decide whether
// to deliver an endmarker immediately) — used by SetCallback to match the
// original's "already queued items immediately trigger the callback"
// contract.
func (q *itemQueue) drainCallback(cb func(interface{})) (wasClosed bool, endErr error) {
	q.mu.Lock()
	items := q.items
	q.items = nil
	wasClosed = q.closed
	endErr = q.endErr
	q.mu.Unlock()
	for _, item := range items {
		cb(item)
	}
	return wasClosed, endErr
}
