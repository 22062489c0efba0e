// Package pool provides a fixed-capacity pool of interchangeable handles.
//
// The free set is a buffered channel holding every handle not currently
// checked out. Acquire receives from it, so callers block without spinning
// and are served in arrival order when handles come back; Release sends to it.
// The pool never grows: demand beyond capacity is absorbed purely by blocking.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	e "github.com/gartstein/coupons/internal/coupons/errors"
	"github.com/gartstein/coupons/internal/coupons/metrics"
	"go.uber.org/zap"
)

// Pool hands out exclusive use of one handle at a time per caller.
// A caller must never hold two handles at once; operations that need
// several statements share the handle they already hold.
type Pool[T any] struct {
	free     chan T
	size     int
	closing  chan struct{}
	closeFn  func(T) error
	logger   *zap.Logger
	once     sync.Once
	drainErr error

	// mu orders Release against an interrupted Shutdown giving up on the
	// free set; once abandoned, returned handles are closed on the spot.
	mu        sync.Mutex
	abandoned bool
}

// New builds a pool owning handles. closeFn is invoked once per handle on Shutdown.
func New[T any](handles []T, closeFn func(T) error, logger *zap.Logger) (*Pool[T], error) {
	if len(handles) == 0 {
		return nil, fmt.Errorf("%w: pool needs at least one handle", e.ErrInvalidInput)
	}
	p := &Pool[T]{
		free:    make(chan T, len(handles)),
		size:    len(handles),
		closing: make(chan struct{}),
		closeFn: closeFn,
		logger:  logger.Named("pool"),
	}
	for _, h := range handles {
		p.free <- h
	}
	return p, nil
}

// Size returns the fixed capacity of the pool.
func (p *Pool[T]) Size() int {
	return p.size
}

// Available returns the number of handles currently free.
func (p *Pool[T]) Available() int {
	return len(p.free)
}

// Acquire returns a free handle, blocking until one is released, ctx is done,
// or shutdown begins. Once shutdown has begun it fails with ErrPoolClosed.
func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T
	if p.isClosing() {
		return zero, e.ErrPoolClosed
	}

	start := time.Now()
	select {
	case h := <-p.free:
		if p.isClosing() {
			// Shutdown is collecting handles; give this one back to it.
			p.put(h)
			return zero, e.ErrPoolClosed
		}
		metrics.PoolAcquireWait.Observe(time.Since(start).Seconds())
		metrics.PoolHandlesInUse.Inc()
		return h, nil
	case <-p.closing:
		return zero, e.ErrPoolClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Release returns h to the free set, waking one blocked Acquire if any.
// After a Shutdown that gave up waiting, h is closed instead.
func (p *Pool[T]) Release(h T) {
	metrics.PoolHandlesInUse.Dec()
	p.put(h)
}

func (p *Pool[T]) put(h T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.abandoned {
		p.closeHandle(h)
		return
	}
	select {
	case p.free <- h:
	default:
		// Only reachable when a handle is released twice or did not come from this pool.
		p.logger.Error("Released handle exceeds pool capacity, discarding", zap.Int("size", p.size))
	}
}

func (p *Pool[T]) closeHandle(h T) error {
	if p.closeFn == nil {
		return nil
	}
	err := p.closeFn(h)
	if err != nil {
		p.logger.Warn("Failed to close handle", zap.Error(err))
	}
	return err
}

// abandon closes whatever is free now and makes later releases close their
// handle directly.
func (p *Pool[T]) abandon() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.abandoned = true
	for {
		select {
		case h := <-p.free:
			_ = p.closeHandle(h)
		default:
			return
		}
	}
}

// Shutdown stops new acquisitions, waits until all handles have been released,
// then closes each one. It returns ctx.Err() if ctx ends before every handle is
// back; handles still out at that point are closed when released. Later calls
// return the result of the first.
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		close(p.closing)
		p.drainErr = p.drain(ctx)
	})
	return p.drainErr
}

func (p *Pool[T]) drain(ctx context.Context) error {
	var closeErrs []error
	for collected := 0; collected < p.size; collected++ {
		select {
		case h := <-p.free:
			if err := p.closeHandle(h); err != nil {
				closeErrs = append(closeErrs, err)
			}
		case <-ctx.Done():
			p.abandon()
			p.logger.Error("Shutdown interrupted before all handles were returned",
				zap.Int("returned", collected),
				zap.Int("size", p.size),
			)
			return ctx.Err()
		}
	}
	p.logger.Info("Pool shut down", zap.Int("size", p.size))
	if len(closeErrs) > 0 {
		return fmt.Errorf("failed to close %d handles: %w", len(closeErrs), closeErrs[0])
	}
	return nil
}

func (p *Pool[T]) isClosing() bool {
	select {
	case <-p.closing:
		return true
	default:
		return false
	}
}
