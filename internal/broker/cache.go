package broker

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultShards is the default number of lock stripes
	DefaultShards = 32

	// Eviction reasons reported to the Recorder
	ReasonLogout  = "logout"
	ReasonIdle    = "idle"
	ReasonDrain   = "drain"
	ReasonClosed  = "closed"
	drainParallel = 8
)

// Recorder observes cache activity. Implementations must be safe for
// concurrent use.
type Recorder interface {
	CacheHit()
	CacheMiss()
	Evicted(reason string)
	ConnectFailed()
	ReleaseFailed()
	SetActive(n int)
}

type nopRecorder struct{}

func (nopRecorder) CacheHit()      {}
func (nopRecorder) CacheMiss()     {}
func (nopRecorder) Evicted(string) {}
func (nopRecorder) ConnectFailed() {}
func (nopRecorder) ReleaseFailed() {}
func (nopRecorder) SetActive(int)  {}

// entry is one slot in the cache. A slot is pending until ready is closed;
// after that handle and err are immutable and only lastTouched changes.
type entry struct {
	ready       chan struct{}
	handle      Handle
	err         error
	lastTouched atomic.Int64
}

func (e *entry) isReady() bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}

func (e *entry) touch(now time.Time) {
	e.lastTouched.Store(now.UnixNano())
}

func (e *entry) idle(threshold time.Duration, now time.Time) bool {
	return now.UnixNano()-e.lastTouched.Load() >= int64(threshold)
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// CacheConfig contains configuration for the session cache
type CacheConfig struct {
	Factory  Factory
	Logger   *zap.Logger
	Recorder Recorder
	Shards   int

	// ConnectTimeout bounds each factory call made on a miss
	ConnectTimeout time.Duration

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Cache maps session keys to live tenant handles. All methods are safe for
// concurrent use; operations on keys in different shards never contend.
type Cache struct {
	factory        Factory
	logger         *zap.Logger
	recorder       Recorder
	clock          func() time.Time
	connectTimeout time.Duration

	shards []*shard
	active atomic.Int64
	closed atomic.Bool
}

// NewCache creates a new session cache
func NewCache(config *CacheConfig) *Cache {
	if config.Shards <= 0 {
		config.Shards = DefaultShards
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Recorder == nil {
		config.Recorder = nopRecorder{}
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}

	c := &Cache{
		factory:        config.Factory,
		logger:         config.Logger,
		recorder:       config.Recorder,
		clock:          config.Clock,
		connectTimeout: config.ConnectTimeout,
		shards:         make([]*shard, config.Shards),
	}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]*entry)}
	}

	return c
}

func (c *Cache) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// GetOrCreate returns the handle cached for key, refreshing its liveness.
// On a miss the factory is called exactly once for key no matter how many
// callers race; the others wait for the winner's result.
func (c *Cache) GetOrCreate(ctx context.Context, key string, route TenantRoute) (Handle, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	sh := c.shardFor(key)

	for {
		sh.mu.Lock()
		e, ok := sh.entries[key]
		if !ok {
			if c.closed.Load() {
				sh.mu.Unlock()
				return nil, ErrClosed
			}
			break
		}
		sh.mu.Unlock()

		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if e.err != nil {
			// The claim failed and its slot is gone. Surface the same error
			// rather than retrying, so a storm costs one connection attempt.
			return nil, e.err
		}

		sh.mu.Lock()
		if sh.entries[key] != e {
			// Evicted after it resolved; start over.
			sh.mu.Unlock()
			continue
		}
		e.touch(c.clock())
		sh.mu.Unlock()

		c.recorder.CacheHit()
		return e.handle, nil
	}

	// Claim the slot while still holding the shard lock.
	e := &entry{ready: make(chan struct{})}
	sh.entries[key] = e
	sh.mu.Unlock()

	c.recorder.CacheMiss()
	return c.create(ctx, sh, key, e, route)
}

func (c *Cache) create(ctx context.Context, sh *shard, key string, e *entry, route TenantRoute) (Handle, error) {
	// A claimed creation runs to completion even if the claimant goes away.
	openCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.connectTimeout)
	defer cancel()

	h, err := c.factory.Open(openCtx, route)
	if err == nil && h == nil {
		err = errors.New("factory returned no handle")
	}
	if err != nil && !errors.Is(err, ErrConnectFailed) {
		err = fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	sh.mu.Lock()
	drained := err == nil && c.closed.Load()
	if err != nil || drained {
		if sh.entries[key] == e {
			delete(sh.entries, key)
		}
		if drained {
			err = ErrClosed
		}
		e.err = err
		close(e.ready)
		sh.mu.Unlock()

		if drained {
			// Drained while connecting: this creator owns the only release.
			c.release(key, h, ReasonClosed)
			return nil, err
		}

		c.recorder.ConnectFailed()
		c.logger.Warn("tenant handle creation failed",
			zap.String("session_ref", KeyRef(key)),
			zap.String("database", route.DatabaseName),
			zap.Error(err))
		return nil, err
	}

	e.handle = h
	e.touch(c.clock())
	// counted before the entry becomes visible so an eviction cannot
	// decrement first
	active := c.active.Add(1)
	close(e.ready)
	sh.mu.Unlock()

	c.recorder.SetActive(int(active))
	c.logger.Debug("tenant handle cached",
		zap.String("session_ref", KeyRef(key)),
		zap.String("database", route.DatabaseName))

	return h, nil
}

// Touch refreshes key's liveness and reports whether it was cached.
// Pending claims are not considered cached.
func (c *Cache) Touch(key string) bool {
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok || !e.isReady() {
		return false
	}
	e.touch(c.clock())
	return true
}

// touchAndGet refreshes key and returns its handle under one lock, so the
// handle returned is the one that was touched
func (c *Cache) touchAndGet(key string) (Handle, bool) {
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok || !e.isReady() {
		return nil, false
	}
	e.touch(c.clock())
	return e.handle, true
}

// Lookup returns the handle cached for key without extending its liveness.
func (c *Cache) Lookup(key string) (Handle, error) {
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok || !e.isReady() {
		return nil, ErrNotFound
	}
	return e.handle, nil
}

// Evict removes key and releases its handle. Evicting an absent key is a
// no-op. A pending claim is waited on first so it is never dropped before
// its handle exists.
func (c *Cache) Evict(key string) {
	c.evict(key, ReasonLogout)
}

func (c *Cache) evict(key, reason string) {
	sh := c.shardFor(key)

	for {
		sh.mu.Lock()
		e, ok := sh.entries[key]
		if !ok {
			sh.mu.Unlock()
			return
		}
		if !e.isReady() {
			sh.mu.Unlock()
			<-e.ready
			continue
		}
		delete(sh.entries, key)
		sh.mu.Unlock()

		c.recorder.SetActive(int(c.active.Add(-1)))
		c.release(key, e.handle, reason)
		return
	}
}

// SnapshotIdle returns the keys whose last touch is at least threshold
// before now. It does not mutate the cache.
func (c *Cache) SnapshotIdle(threshold time.Duration, now time.Time) []string {
	var keys []string
	for _, sh := range c.shards {
		sh.mu.Lock()
		for key, e := range sh.entries {
			if e.isReady() && e.idle(threshold, now) {
				keys = append(keys, key)
			}
		}
		sh.mu.Unlock()
	}
	return keys
}

// EvictIfIdle evicts key only if it is still idle as of now. It returns
// whether an eviction happened.
func (c *Cache) EvictIfIdle(key string, threshold time.Duration, now time.Time) bool {
	sh := c.shardFor(key)

	sh.mu.Lock()
	e, ok := sh.entries[key]
	if !ok || !e.isReady() || !e.idle(threshold, now) {
		sh.mu.Unlock()
		return false
	}
	delete(sh.entries, key)
	sh.mu.Unlock()

	c.recorder.SetActive(int(c.active.Add(-1)))
	c.release(key, e.handle, ReasonIdle)
	return true
}

// Drain closes the cache and releases every cached handle. Claims still
// in flight release their own handle when they complete.
func (c *Cache) Drain() int {
	c.closed.Store(true)

	type victim struct {
		key    string
		handle Handle
	}
	var victims []victim

	for _, sh := range c.shards {
		sh.mu.Lock()
		for key, e := range sh.entries {
			if !e.isReady() {
				continue
			}
			delete(sh.entries, key)
			victims = append(victims, victim{key: key, handle: e.handle})
		}
		sh.mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(drainParallel)
	for _, v := range victims {
		g.Go(func() error {
			c.release(v.key, v.handle, ReasonDrain)
			return nil
		})
	}
	_ = g.Wait()

	c.recorder.SetActive(int(c.active.Add(-int64(len(victims)))))
	if len(victims) > 0 {
		c.logger.Info("session cache drained", zap.Int("released", len(victims)))
	}

	return len(victims)
}

// Len returns the number of ready entries
func (c *Cache) Len() int {
	return int(c.active.Load())
}

// Stats returns the current cache statistics
func (c *Cache) Stats() Stats {
	st := Stats{Shards: len(c.shards)}
	for _, sh := range c.shards {
		sh.mu.Lock()
		for _, e := range sh.entries {
			if e.isReady() {
				st.Entries++
			} else {
				st.Pending++
			}
		}
		sh.mu.Unlock()
	}
	return st
}

// release closes h. Failures are logged and counted, never returned.
func (c *Cache) release(key string, h Handle, reason string) {
	c.recorder.Evicted(reason)

	if err := h.Close(); err != nil {
		err = fmt.Errorf("%w: %v", ErrReleaseFailed, err)
		c.recorder.ReleaseFailed()
		c.logger.Error("failed to release tenant handle",
			zap.String("session_ref", KeyRef(key)),
			zap.String("reason", reason),
			zap.Error(err))
		return
	}

	c.logger.Debug("tenant handle released",
		zap.String("session_ref", KeyRef(key)),
		zap.String("reason", reason))
}
