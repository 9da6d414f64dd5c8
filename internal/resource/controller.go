package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when a reservation would exceed the cache budget.
var ErrMemoryLimitExceeded = errors.New("resource: memory limit exceeded")

// Config holds resource limits. Zero values mean unlimited.
type Config struct {
	// MemoryLimitBytes caps the bytes the blob cache may hold.
	MemoryLimitBytes int64

	// MaxConcurrentRequests caps in-flight backend calls.
	MaxConcurrentRequests int64

	// BytesPerSec caps backend throughput.
	BytesPerSec int64
}

// Controller enforces a Config.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	reqSem   *semaphore.Weighted // nil if unlimited
	inFlight atomic.Int64

	limiter *rate.Limiter // nil if unlimited
}

// NewController creates a controller for cfg.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.MaxConcurrentRequests > 0 {
		c.reqSem = semaphore.NewWeighted(cfg.MaxConcurrentRequests)
	}
	if cfg.BytesPerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.BytesPerSec), int(cfg.BytesPerSec))
	}

	return c
}

// Config returns the limits the controller was built with.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// AcquireMemory reserves bytes of cache memory without blocking.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return ErrMemoryLimitExceeded
	}
	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory returns bytes reserved with AcquireMemory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the reserved cache memory in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireRequest blocks until a request slot is free and size bytes of
// throughput are available. The caller must call ReleaseRequest on success.
func (c *Controller) AcquireRequest(ctx context.Context, size int) error {
	if c == nil {
		return nil
	}
	if c.reqSem != nil {
		if err := c.reqSem.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	if err := c.waitBytes(ctx, size); err != nil {
		if c.reqSem != nil {
			c.reqSem.Release(1)
		}
		return err
	}
	c.inFlight.Add(1)
	return nil
}

// ReleaseRequest frees a slot taken by AcquireRequest.
func (c *Controller) ReleaseRequest() {
	if c == nil {
		return
	}
	c.inFlight.Add(-1)
	if c.reqSem != nil {
		c.reqSem.Release(1)
	}
}

// InFlight returns the number of requests currently holding a slot.
func (c *Controller) InFlight() int64 {
	if c == nil {
		return 0
	}
	return c.inFlight.Load()
}

// AcquireIO waits for size bytes of throughput without taking a request slot.
func (c *Controller) AcquireIO(ctx context.Context, size int) error {
	if c == nil {
		return nil
	}
	return c.waitBytes(ctx, size)
}

// waitBytes charges size against the limiter in burst-sized chunks so that
// blobs larger than one second of budget still make progress.
func (c *Controller) waitBytes(ctx context.Context, size int) error {
	if c.limiter == nil || size <= 0 {
		return nil
	}
	burst := c.limiter.Burst()
	for size > 0 {
		n := min(size, burst)
		if err := c.limiter.WaitN(ctx, n); err != nil {
			return err
		}
		size -= n
	}
	return nil
}
