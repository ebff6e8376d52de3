// Package queue provides the bounded in-memory queue behind the optimistic
// mutation path. Producers (the HTTP fast path) enqueue small Ops; the
// ingest processor drains them and invokes the engines.
package queue

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

// HandlerID identifies the concrete handler the processor should invoke for
// this Op. It is set by the enqueueing code (the API layer), which has the
// authoritative intent for the operation; the processor never probes
// payloads to decide dispatch.
type HandlerID string

const (
	HandlerReactionAdd    HandlerID = "reaction.add"
	HandlerReactionRemove HandlerID = "reaction.remove"
	HandlerCommentCreate  HandlerID = "comment.create"
	HandlerCommentEdit    HandlerID = "comment.edit"
	HandlerCommentDelete  HandlerID = "comment.delete"
)

// Op is a lightweight in-memory representation of one queued mutation.
// Payload may be backed by a pooled ByteBuffer; consumers must call
// Item.Done() when finished.
type Op struct {
	// Handler is the explicit dispatch key set by enqueueing code.
	Handler HandlerID
	// Target serializes ops that touch the same entity: ops with equal
	// Target are processed in enqueue order on one lane. Usually the
	// post id, or the comment id for comment-targeted ops.
	Target string
	// ID is the pre-assigned entity id returned to the client on accept.
	ID string
	// Payload holds the raw request bytes for the operation (may be nil).
	Payload []byte
	// TS is an optional client/server timestamp (nanoseconds).
	TS int64
	// EnqSeq is a monotonic enqueue sequence assigned when the op is
	// accepted into the queue.
	EnqSeq uint64
	// Extras holds small metadata extracted from HTTP request headers
	// (role, identity, request id). Optional.
	Extras map[string]string
}

// Item wraps an Op and owns a pooled ByteBuffer if one was used. Consumers
// MUST call Done() exactly once after processing the item to return pooled
// resources.
type Item struct {
	Op *Op

	buf  *bytebufferpool.ByteBuffer
	once sync.Once
	q    *Queue
}

// Done releases pooled resources (buffer + op) back to their pools.
func (it *Item) Done() {
	it.once.Do(func() {
		if it.q != nil {
			atomic.AddInt64(&it.q.inFlight, -1)
			it.q = nil
		}
		if it.buf != nil {
			// avoid retaining huge buffers in the pool
			if cap(it.buf.B) > maxPooledBuffer {
				it.buf = nil
			} else {
				bytebufferpool.Put(it.buf)
				it.buf = nil
			}
		}
		if it.Op != nil {
			it.Op.Payload = nil
			it.Op.Extras = nil
			opPool.Put(it.Op)
			it.Op = nil
		}
		itemPool.Put(it)
	})
}

var opPool = sync.Pool{New: func() any { return &Op{} }}
var itemPool = sync.Pool{New: func() any { return &Item{} }}

// maxPooledBuffer caps the size of buffers returned to the pool; larger
// ones are dropped so resident memory stays bounded.
var maxPooledBuffer = 256 * 1024 // 256 KiB

// SetMaxPooledBuffer overrides the pooled-buffer cap. Call before any
// queue is constructed; it is not safe to change while enqueues run.
func SetMaxPooledBuffer(n int) {
	if n > 0 {
		maxPooledBuffer = n
	}
}

// ErrQueueFull is returned by TryEnqueue when the queue is at capacity.
var ErrQueueFull = errors.New("ingest queue full")

// ErrQueueClosed is returned when enqueue is attempted after close.
var ErrQueueClosed = errors.New("ingest queue closed")
