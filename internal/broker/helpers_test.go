package broker

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type fakeHandle struct {
	id       int64
	route    TenantRoute
	closed   atomic.Int32
	closeErr error
}

func (h *fakeHandle) DB() *sql.DB        { return nil }
func (h *fakeHandle) Route() TenantRoute { return h.route }
func (h *fakeHandle) Close() error {
	h.closed.Add(1)
	return h.closeErr
}

// fakeFactory counts Open calls and remembers every handle it produced
type fakeFactory struct {
	mu      sync.Mutex
	calls   atomic.Int64
	handles []*fakeHandle
	delay   time.Duration
	fail    error
	gate    chan struct{}
}

func (f *fakeFactory) Open(ctx context.Context, route TenantRoute) (Handle, error) {
	n := f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail != nil {
		return nil, f.fail
	}

	h := &fakeHandle{id: n, route: route}
	f.mu.Lock()
	f.handles = append(f.handles, h)
	f.mu.Unlock()
	return h, nil
}

func (f *fakeFactory) produced() []*fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*fakeHandle, len(f.handles))
	copy(out, f.handles)
	return out
}

var errUnreachable = errors.New("dial tcp 10.0.0.9:5432: connect: connection refused")

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingRecorder struct {
	hits, misses, failures, releaseFailures atomic.Int64
	mu                                      sync.Mutex
	evictions                               map[string]int
	active                                  atomic.Int64
	lowestActive                            atomic.Int64
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{evictions: make(map[string]int)}
}

func (r *countingRecorder) CacheHit()      { r.hits.Add(1) }
func (r *countingRecorder) CacheMiss()     { r.misses.Add(1) }
func (r *countingRecorder) ConnectFailed() { r.failures.Add(1) }
func (r *countingRecorder) ReleaseFailed() { r.releaseFailures.Add(1) }
func (r *countingRecorder) SetActive(n int) {
	r.active.Store(int64(n))
	for {
		low := r.lowestActive.Load()
		if int64(n) >= low || r.lowestActive.CompareAndSwap(low, int64(n)) {
			return
		}
	}
}
func (r *countingRecorder) Evicted(reason string) {
	r.mu.Lock()
	r.evictions[reason]++
	r.mu.Unlock()
}

func (r *countingRecorder) evicted(reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictions[reason]
}

var tenant1 = TenantRoute{ConnectionTarget: "postgres://app@db.internal:5432/main", DatabaseName: "tenant1"}
