package ingest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"hearth/pkg/ingest/queue"
)

func TestProcessorPerTargetOrdering(t *testing.T) {
	q := queue.NewQueue(1024)
	p := NewProcessor(q, 4)

	var mu sync.Mutex
	seen := map[string][]string{}
	var wg sync.WaitGroup

	p.RegisterHandler(queue.HandlerCommentCreate, func(ctx context.Context, op *queue.Op) error {
		defer wg.Done()
		mu.Lock()
		seen[op.Target] = append(seen[op.Target], op.ID)
		mu.Unlock()
		return nil
	})
	p.Start()
	defer p.Stop(context.Background())

	targets := []string{"p1", "p2", "p3"}
	const perTarget = 50
	wg.Add(len(targets) * perTarget)
	for i := 0; i < perTarget; i++ {
		for _, tgt := range targets {
			id := fmt.Sprintf("%s-%03d", tgt, i)
			if err := q.TryEnqueueBytes(queue.HandlerCommentCreate, tgt, id, nil, 0); err != nil {
				t.Fatalf("enqueue %s: %v", id, err)
			}
		}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for _, tgt := range targets {
		ids := seen[tgt]
		if len(ids) != perTarget {
			t.Fatalf("target %s: expected %d ops, got %d", tgt, perTarget, len(ids))
		}
		for i := 1; i < len(ids); i++ {
			if ids[i] <= ids[i-1] {
				t.Fatalf("target %s: out of order at %d: %s after %s", tgt, i, ids[i], ids[i-1])
			}
		}
	}
}

func TestProcessorUnknownHandlerReleased(t *testing.T) {
	q := queue.NewQueue(8)
	p := NewProcessor(q, 1)
	p.Start()
	defer p.Stop(context.Background())

	if err := q.TryEnqueueBytes("bogus.handler", "p1", "", nil, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for q.InFlight() != 0 || q.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("item not released: inflight=%d len=%d", q.InFlight(), q.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProcessorPauseResume(t *testing.T) {
	q := queue.NewQueue(8)
	p := NewProcessor(q, 1)

	processed := make(chan string, 8)
	p.RegisterHandler(queue.HandlerReactionAdd, func(ctx context.Context, op *queue.Op) error {
		processed <- op.ID
		return nil
	})
	p.Pause()
	p.Start()
	defer p.Stop(context.Background())

	if err := q.TryEnqueueBytes(queue.HandlerReactionAdd, "p1", "r1", nil, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case id := <-processed:
		t.Fatalf("processed %s while paused", id)
	case <-time.After(150 * time.Millisecond):
	}

	p.Resume()
	select {
	case id := <-processed:
		if id != "r1" {
			t.Fatalf("unexpected id %s", id)
		}
	case <-time.After(time.Second):
		t.Fatalf("op not processed after resume")
	}
}

func TestProcessorStopDrainsLanes(t *testing.T) {
	q := queue.NewQueue(8)
	p := NewProcessor(q, 2)
	done := make(chan struct{}, 8)
	p.RegisterHandler(queue.HandlerReactionRemove, func(ctx context.Context, op *queue.Op) error {
		done <- struct{}{}
		return nil
	})
	p.Start()
	for i := 0; i < 4; i++ {
		if err := q.TryEnqueueBytes(queue.HandlerReactionRemove, fmt.Sprintf("p%d", i), "", nil, 0); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("op %d not processed", i)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Stop(ctx)
	// Stop is idempotent.
	p.Stop(ctx)
}
