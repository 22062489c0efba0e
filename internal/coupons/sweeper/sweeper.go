// Package sweeper retires expired coupons in the background.
package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	e "github.com/gartstein/coupons/internal/coupons/errors"
	"github.com/gartstein/coupons/internal/coupons/events"
	"github.com/gartstein/coupons/internal/coupons/metrics"
	"github.com/gartstein/coupons/internal/coupons/models"
	"go.uber.org/zap"
)

const DefaultInterval = 24 * time.Hour

// Store is the part of the repository the sweeper needs. Each call borrows a
// pool handle only for its own duration.
type Store interface {
	ListCoupons(ctx context.Context) ([]models.Coupon, error)
	DeleteCouponCascade(ctx context.Context, id int64) error
}

type EventProducer interface {
	Produce(event events.Event)
}

// Sweeper deletes every coupon whose end date has passed, once on start and
// then on every interval. A failed cycle is logged and retried on the next one.
type Sweeper struct {
	store    Store
	producer EventProducer
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time

	stop    chan struct{}
	once    sync.Once
	running sync.WaitGroup
}

type Option func(*Sweeper)

// WithClock sets the time source that decides expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

func New(store Store, producer EventProducer, interval time.Duration, logger *zap.Logger, opts ...Option) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Sweeper{
		store:    store,
		producer: producer,
		logger:   logger.Named("sweeper"),
		interval: interval,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps until ctx is done or Stop is called. A cycle in progress when
// that happens is abandoned between coupons.
func (s *Sweeper) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Expiration sweeper started", zap.Duration("interval", s.interval))
	s.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Expiration sweeper stopped")
			return nil
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

// Start runs the sweeper in its own goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		_ = s.Run(ctx)
	}()
}

// Stop ends the sweeper and waits for a sweeper launched by Start to return.
func (s *Sweeper) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.running.Wait()
}

func (s *Sweeper) cycle(ctx context.Context) {
	deleted, err := s.Sweep(ctx)
	if err != nil {
		metrics.RecordSweep("failure", deleted)
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("Expiration sweep failed", zap.Int("deleted", deleted), zap.Error(err))
		return
	}
	metrics.RecordSweep("success", deleted)
	s.logger.Info("Expiration sweep finished", zap.Int("deleted", deleted))
}

// Sweep runs one cycle and returns the number of coupons deleted. A coupon that
// fails to delete does not stop the rest; the first such failure is returned.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	coupons, err := s.store.ListCoupons(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	deleted := 0
	var firstErr error
	for i := range coupons {
		coupon := &coupons[i]
		if !coupon.Expired(now) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		err := s.store.DeleteCouponCascade(ctx, coupon.ID)
		switch {
		case err == nil:
			deleted++
			s.logger.Info("Expired coupon deleted",
				zap.Int64("coupon_id", coupon.ID),
				zap.Time("end_date", coupon.EndDate),
			)
			s.producer.Produce(events.NewEvent(events.CouponExpired, coupon.ID))
		case errors.Is(err, e.ErrNotFound):
			// Deleted by its company since the listing.
		default:
			s.logger.Error("Failed to delete expired coupon", zap.Int64("coupon_id", coupon.ID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return deleted, firstErr
}
