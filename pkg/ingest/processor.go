// Package ingest drains the mutation queue and executes the engines.
// Ops that touch the same target are hashed onto one lane so they apply
// in enqueue order; ops on different targets run in parallel.
package ingest

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"hearth/pkg/ingest/queue"
	"hearth/pkg/logger"
)

// HandlerFunc executes one dequeued Op. The Op (and its payload buffer) is
// only valid for the duration of the call.
type HandlerFunc func(ctx context.Context, op *queue.Op) error

const defaultLanes = 8
const laneBuffer = 256

// Processor owns the lane workers that consume from the API queue and
// invoke registered handlers, releasing each item back to its pool.
type Processor struct {
	q        *queue.Queue
	lanes    []chan *queue.Item
	handlers map[queue.HandlerID]HandlerFunc

	stop    chan struct{}
	wg      sync.WaitGroup
	running int32
	paused  int32
}

// NewProcessor creates a Processor attached to q with the given number of
// lanes (workers). lanes <= 0 falls back to the default.
func NewProcessor(q *queue.Queue, lanes int) *Processor {
	if lanes <= 0 {
		lanes = defaultLanes
	}
	p := &Processor{
		q:        q,
		lanes:    make([]chan *queue.Item, lanes),
		handlers: make(map[queue.HandlerID]HandlerFunc),
		stop:     make(chan struct{}),
	}
	for i := range p.lanes {
		p.lanes[i] = make(chan *queue.Item, laneBuffer)
	}
	return p
}

// RegisterHandler registers fn for a HandlerID. Must be called before Start.
func (p *Processor) RegisterHandler(h queue.HandlerID, fn HandlerFunc) {
	p.handlers[h] = fn
}

// Pause stops dispatching new items until Resume is called.
func (p *Processor) Pause() { atomic.StoreInt32(&p.paused, 1) }

// Resume resumes dispatching after a Pause.
func (p *Processor) Resume() { atomic.StoreInt32(&p.paused, 0) }

// Start launches the dispatcher and lane workers.
func (p *Processor) Start() {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return
	}
	for i := range p.lanes {
		p.wg.Add(1)
		go func(lane chan *queue.Item) {
			defer p.wg.Done()
			p.laneLoop(lane)
		}(p.lanes[i])
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.dispatchLoop()
	}()
	logger.Info("ingest_processor_started", "lanes", len(p.lanes))
}

// Stop signals workers to exit and waits for them, bounded by ctx.
func (p *Processor) Stop(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return
	}
	close(p.stop)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("ingest_processor_stopped")
	case <-ctx.Done():
		logger.Warn("ingest_processor_stop_timeout")
	}
}

// dispatchLoop hashes each dequeued item onto its lane.
func (p *Processor) dispatchLoop() {
	defer func() {
		for _, lane := range p.lanes {
			close(lane)
		}
	}()
	for {
		if atomic.LoadInt32(&p.paused) == 1 {
			select {
			case <-p.stop:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}
		select {
		case it, ok := <-p.q.Out():
			if !ok {
				return
			}
			lane := p.lanes[laneIndex(it.Op.Target, len(p.lanes))]
			select {
			case lane <- it:
			case <-p.stop:
				it.Done()
				return
			}
		case <-p.stop:
			return
		}
	}
}

func (p *Processor) laneLoop(lane chan *queue.Item) {
	for it := range lane {
		p.process(it)
	}
}

func (p *Processor) process(it *queue.Item) {
	defer it.Done()
	op := it.Op
	fn, ok := p.handlers[op.Handler]
	if !ok || fn == nil {
		logger.Warn("no_ingest_handler", "handler", op.Handler)
		processErrors.WithLabelValues(string(op.Handler)).Inc()
		return
	}
	start := time.Now()
	if err := fn(context.Background(), op); err != nil {
		logger.Error("ingest_handler_error", "handler", op.Handler, "target", op.Target, "error", err)
		processErrors.WithLabelValues(string(op.Handler)).Inc()
		return
	}
	processTotal.WithLabelValues(string(op.Handler)).Inc()
	processDur.Observe(time.Since(start).Seconds())
}

func laneIndex(target string, lanes int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(target))
	return int(h.Sum32() % uint32(lanes))
}
