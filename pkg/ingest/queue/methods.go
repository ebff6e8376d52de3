package queue

import (
	"context"
	"sync/atomic"
)

// TryEnqueueBytes copies payload into a pooled buffer and enqueues a new
// Op constructed from the provided fields.
func (q *Queue) TryEnqueueBytes(handler HandlerID, target, id string, payload []byte, ts int64) error {
	return q.TryEnqueue(&Op{Handler: handler, Target: target, ID: id, Payload: payload, TS: ts})
}

// EnqueueBytes blocks until the constructed Op is enqueued or ctx expires.
func (q *Queue) EnqueueBytes(ctx context.Context, handler HandlerID, target, id string, payload []byte, ts int64) error {
	return q.Enqueue(ctx, &Op{Handler: handler, Target: target, ID: id, Payload: payload, TS: ts})
}

// EnqueueOp constructs an Op with Extras and enqueues it without blocking.
// Callers pass the header extras map extracted by the API layer.
func (q *Queue) EnqueueOp(handler HandlerID, target, id string, payload []byte, ts int64, extras map[string]string) error {
	op := &Op{Handler: handler, Target: target, ID: id, Payload: payload, TS: ts, Extras: extras}
	return q.TryEnqueue(op)
}

// CloseAndDrain rejects further enqueues, waits for in-progress enqueues,
// then closes the channel and drains remaining items so pooled resources
// are released.
func (q *Queue) CloseAndDrain() {
	q.closeOnce.Do(func() {
		atomic.StoreInt32(&q.closed, 1)
		q.enqWg.Wait()
		close(q.ch)
	})
	for it := range q.ch {
		it.Done()
	}
}

// Len returns the current number of items in the queue.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the configured capacity of the queue.
func (q *Queue) Cap() int { return q.capacity }

// Dropped returns the number of operations dropped due to a full queue or
// context cancellation during enqueue.
func (q *Queue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }

// EnqueuedTotal returns total attempted enqueues.
func (q *Queue) EnqueuedTotal() uint64 { return atomic.LoadUint64(&enqueueTotal) }

// FailedTotal returns total enqueue failures.
func (q *Queue) FailedTotal() uint64 { return atomic.LoadUint64(&enqueueFailTotal) }

// InFlight returns the number of dequeued items not yet released.
func (q *Queue) InFlight() int64 { return atomic.LoadInt64(&q.inFlight) }
