// Package waveform animates activity bars onto a drawing surface, one scheduled frame at a time.
package waveform

import (
	"sync"
	"time"
)

// FrameID identifies one requested frame callback.
type FrameID uint64

// FrameFunc runs once when its frame is due.
type FrameFunc func(now time.Time)

// Scheduler queues one-shot frame callbacks.
type Scheduler interface {
	RequestFrame(fn FrameFunc) FrameID
	CancelFrame(id FrameID)
}

// FrameQueue is a Scheduler advanced explicitly by Step.
//
// Callbacks requested while a step runs are deferred to the following step.
type FrameQueue struct {
	mu      sync.Mutex
	next    FrameID
	order   []FrameID
	pending map[FrameID]FrameFunc
}

// NewFrameQueue returns an empty queue.
func NewFrameQueue() *FrameQueue {
	return &FrameQueue{pending: make(map[FrameID]FrameFunc)}
}

// RequestFrame queues fn for the next Step.
func (q *FrameQueue) RequestFrame(fn FrameFunc) FrameID {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.next++
	id := q.next
	q.pending[id] = fn
	q.order = append(q.order, id)
	return id
}

// CancelFrame drops a queued callback. Unknown or already-run IDs are ignored.
func (q *FrameQueue) CancelFrame(id FrameID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, id)
}

// Step runs every callback queued before the call and returns how many ran.
func (q *FrameQueue) Step(now time.Time) int {
	q.mu.Lock()
	due := q.order
	q.order = nil
	fns := make([]FrameFunc, 0, len(due))
	for _, id := range due {
		if fn, ok := q.pending[id]; ok {
			fns = append(fns, fn)
			delete(q.pending, id)
		}
	}
	q.mu.Unlock()

	for _, fn := range fns {
		fn(now)
	}
	return len(fns)
}

// Pending reports how many callbacks wait for the next Step.
func (q *FrameQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
