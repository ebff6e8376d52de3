// Package sensor polls host resources and watches store pressure so the
// ingest processor can back off before pebble falls over.
package sensor

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// Snapshot is a lightweight view of system resources used for throttling
// decisions. Fields are best-effort and may be zero on unsupported
// platforms.
type Snapshot struct {
	Timestamp time.Time

	// Memory in bytes (Go runtime view)
	MemTotal uint64
	MemUsed  uint64

	// Disk free/total in bytes for the filesystem where the data lives
	DiskTotal uint64
	DiskFree  uint64
}

// ThrottleRequest is an advisory signal emitted by components that want
// others to throttle down or release resources.
type ThrottleRequest struct {
	Source   string
	Reason   string
	Severity float64 // [0..1], 1 is most urgent
}

// Sensor polls host resources and exposes a current Snapshot, plus a small
// pub/sub for throttle requests.
type Sensor struct {
	mu       sync.RWMutex
	snap     Snapshot
	interval time.Duration

	thMu     sync.RWMutex
	handlers []func(ThrottleRequest)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSensor creates a sensor that polls every interval.
func NewSensor(interval time.Duration) *Sensor {
	s := &Sensor{interval: interval}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Start begins background polling. Call Stop to terminate.
func (s *Sensor) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.sample()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.sample()
			}
		}
	}()
}

// Stop stops background polling and waits for workers to exit.
func (s *Sensor) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Snapshot returns the most recent snapshot.
func (s *Sensor) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// RegisterThrottleHandler registers a callback for throttle requests.
// Handlers are invoked asynchronously.
func (s *Sensor) RegisterThrottleHandler(h func(ThrottleRequest)) {
	s.thMu.Lock()
	defer s.thMu.Unlock()
	s.handlers = append(s.handlers, h)
}

// SendThrottle emits a throttle request to registered handlers.
// Non-blocking and best-effort; a handler gets 250ms before it is
// abandoned.
func (s *Sensor) SendThrottle(req ThrottleRequest) {
	s.thMu.RLock()
	handlers := append([]func(ThrottleRequest){}, s.handlers...)
	s.thMu.RUnlock()
	for _, h := range handlers {
		go func(cb func(ThrottleRequest)) {
			done := make(chan struct{})
			go func() {
				cb(req)
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(250 * time.Millisecond):
			}
		}(h)
	}
}

// sample collects best-effort metrics and updates the current snapshot.
// Disk fields stay zero on platforms without statfs support.
func (s *Sensor) sample() {
	snap := Snapshot{Timestamp: time.Now()}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	snap.MemTotal = memStats.Sys
	snap.MemUsed = memStats.Alloc

	fillDisk(&snap)

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}
