package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gartstein/coupons/internal/coupons/db"
	e "github.com/gartstein/coupons/internal/coupons/errors"
	"github.com/gartstein/coupons/internal/coupons/events"
	"github.com/gartstein/coupons/internal/coupons/metrics"
	"github.com/gartstein/coupons/internal/coupons/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CustomerFacade purchases and lists coupons for one authenticated customer.
type CustomerFacade struct {
	repo       Repository
	producer   EventProducer
	logger     *zap.Logger
	now        func() time.Time
	customerID int64
}

func NewCustomerFacade(repo Repository, producer EventProducer, logger *zap.Logger) *CustomerFacade {
	return &CustomerFacade{
		repo:     repo,
		producer: producer,
		logger:   logger.Named("customer_facade"),
		now:      time.Now,
	}
}

func (f *CustomerFacade) ClientType() ClientType { return CustomerClient }

// Login resolves the credentials to a customer. On failure the facade stays
// unauthenticated.
func (f *CustomerFacade) Login(ctx context.Context, email, password string) (bool, error) {
	if f.customerID != 0 {
		return false, fmt.Errorf("%w: session already logged in", e.ErrInvalidInput)
	}
	id, found, err := f.repo.CustomerIDByCredentials(ctx, email, password)
	if err != nil || !found {
		return false, err
	}
	f.authenticate(id)
	return true, nil
}

func (f *CustomerFacade) authenticate(id int64) {
	f.customerID = id
	f.logger = f.logger.With(
		zap.String("session_id", uuid.NewString()),
		zap.Int64("customer_id", id),
	)
	f.logger.Info("Customer logged in")
}

// CustomerID returns the authenticated customer, or 0 before login.
func (f *CustomerFacade) CustomerID() int64 {
	return f.customerID
}

func (f *CustomerFacade) check() error {
	if f.customerID == 0 {
		return errNotLoggedIn
	}
	return nil
}

// PurchaseCoupon buys one unit of the coupon for the authenticated customer.
//
// Checks run in order and the first failure wins: the coupon must exist, must
// not already be owned by the customer, must be in stock and must not be
// expired. The stock decrement is a single conditional update inside the same
// transaction as the purchase record, so concurrent buyers can never drive the
// amount below zero.
func (f *CustomerFacade) PurchaseCoupon(ctx context.Context, couponID int64) error {
	if err := f.check(); err != nil {
		return err
	}

	err := f.repo.WithTransaction(ctx, func(repo *db.Repository) error {
		coupon, err := repo.GetCoupon(ctx, couponID)
		if err != nil {
			return err
		}

		purchased, err := repo.AlreadyPurchased(ctx, f.customerID, couponID)
		if err != nil {
			return err
		}
		if purchased {
			return e.ErrAlreadyPurchased
		}
		if coupon.Amount <= 0 {
			return e.ErrOutOfStock
		}
		if coupon.Expired(f.now()) {
			return e.ErrDateExpired
		}

		decremented, err := repo.DecrementAmount(ctx, couponID)
		if err != nil {
			return err
		}
		if !decremented {
			return e.ErrOutOfStock
		}
		return repo.AddPurchase(ctx, f.customerID, couponID)
	})

	metrics.RecordPurchase(purchaseResult(err))
	if err != nil {
		if e.IsDomain(err) && !errors.Is(err, e.ErrStorage) {
			f.logger.Debug("Purchase rejected", zap.Int64("coupon_id", couponID), zap.Error(err))
		} else {
			f.logger.Error("Purchase failed", zap.Int64("coupon_id", couponID), zap.Error(err))
		}
		return err
	}

	f.logger.Info("Coupon purchased", zap.Int64("coupon_id", couponID))
	event := events.NewEvent(events.CouponPurchased, couponID)
	event.CustomerID = f.customerID
	f.producer.Produce(event)
	return nil
}

func purchaseResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, e.ErrNotFound):
		return "not_found"
	case errors.Is(err, e.ErrAlreadyPurchased):
		return "already_purchased"
	case errors.Is(err, e.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, e.ErrDateExpired):
		return "date_expired"
	default:
		return "error"
	}
}

func (f *CustomerFacade) GetCustomerCoupons(ctx context.Context) ([]models.Coupon, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.repo.CustomerCoupons(ctx, f.customerID, models.CouponFilter{})
}

func (f *CustomerFacade) GetCustomerCouponsByCategory(ctx context.Context, category models.Category) ([]models.Coupon, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	filter, err := categoryFilter(category)
	if err != nil {
		return nil, err
	}
	return f.repo.CustomerCoupons(ctx, f.customerID, filter)
}

func (f *CustomerFacade) GetCustomerCouponsUpToPrice(ctx context.Context, maxPrice float64) ([]models.Coupon, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.repo.CustomerCoupons(ctx, f.customerID, models.CouponFilter{MaxPrice: &maxPrice})
}

// GetCustomerDetails returns the authenticated customer with the coupons they purchased.
func (f *CustomerFacade) GetCustomerDetails(ctx context.Context) (*models.Customer, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.repo.GetCustomer(ctx, f.customerID)
}
