package engine

import "sync"

// pendingCall is a submitted call waiting for the Run loop.
type pendingCall struct {
	call Call
	done chan Result
}

// callQueue is a thread-safe FIFO of submitted calls.
//
// The queue is unbounded so a callback (for example a randomness fulfilment)
// can submit follow-up calls without blocking the loop.
//
// The signal channel enables context-aware waiting in Run.
type callQueue struct {
	mu     sync.Mutex
	calls  []pendingCall
	closed bool
	signal chan struct{} // buffered, size 1
}

func newCallQueue() *callQueue {
	return &callQueue{
		calls:  make([]pendingCall, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a call to the back of the queue.
// Returns false if the queue is closed.
func (q *callQueue) Enqueue(p pendingCall) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.calls = append(q.calls, p)

	// Non-blocking: the size-1 buffer coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front call without blocking.
func (q *callQueue) TryDequeue() (pendingCall, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.calls) == 0 {
		return pendingCall{}, false
	}
	p := q.calls[0]
	// Release the closure for GC.
	q.calls[0] = pendingCall{}
	if len(q.calls) == 1 {
		q.calls = q.calls[:0]
	} else {
		q.calls = q.calls[1:]
	}
	return p, true
}

// Wait returns a channel that signals when calls may be available.
// It is closed when the queue closes.
func (q *callQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued calls.
func (q *callQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.calls)
}

// Close stops accepting calls and wakes waiters.
func (q *callQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
