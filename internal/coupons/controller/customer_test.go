package controller

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gartstein/coupons/internal/coupons/config"
	"github.com/gartstein/coupons/internal/coupons/db"
	e "github.com/gartstein/coupons/internal/coupons/errors"
	"github.com/gartstein/coupons/internal/coupons/events"
	"github.com/gartstein/coupons/internal/coupons/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCustomerFacade_PurchaseCoupon(t *testing.T) {
	fx := newFixture(t, 4)
	ctx := context.Background()
	company := fx.company(t, "toyota")
	customer := fx.customer(t, "dana@gmail.com")

	car := couponFixture("Electric car", models.Electricity, 100, 2)
	require.NoError(t, company.AddCoupon(ctx, car))

	require.NoError(t, customer.PurchaseCoupon(ctx, car.ID))

	stored, err := fx.repo.GetCoupon(ctx, car.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Amount)

	owned, err := customer.GetCustomerCoupons(ctx)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, car.ID, owned[0].ID)

	assert.ErrorIs(t, customer.PurchaseCoupon(ctx, car.ID), e.ErrAlreadyPurchased)

	stored, err = fx.repo.GetCoupon(ctx, car.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Amount, "a rejected purchase leaves stock alone")

	require.Equal(t, 1, fx.producer.count(events.CouponPurchased))
}

func TestCustomerFacade_PurchasePrecedence(t *testing.T) {
	fx := newFixture(t, 4)
	ctx := context.Background()
	company := fx.company(t, "toyota")
	customer := fx.customer(t, "dana@gmail.com")
	today := models.Date(time.Now())

	seed := func(title string, amount int, end time.Time) *models.Coupon {
		c := couponFixture(title, models.Food, 10, amount)
		c.CompanyID = company.CompanyID()
		c.StartDate = end.AddDate(0, -1, 0)
		c.EndDate = end
		require.NoError(t, fx.repo.CreateCoupon(ctx, c))
		return c
	}

	last := seed("Last unit", 1, today.AddDate(0, 0, 7))
	require.NoError(t, customer.PurchaseCoupon(ctx, last.ID))

	emptyAndExpired := seed("Empty and expired", 0, today.AddDate(0, 0, -1))
	expired := seed("Expired", 5, today.AddDate(0, 0, -1))
	endsToday := seed("Ends today", 5, today)

	tests := []struct {
		name          string
		couponID      int64
		expectedError error
	}{
		{name: "missing coupon", couponID: 999, expectedError: e.ErrNotFound},
		{name: "already purchased wins over out of stock", couponID: last.ID, expectedError: e.ErrAlreadyPurchased},
		{name: "out of stock wins over expired", couponID: emptyAndExpired.ID, expectedError: e.ErrOutOfStock},
		{name: "expired", couponID: expired.ID, expectedError: e.ErrDateExpired},
		{name: "last day is still valid", couponID: endsToday.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := customer.PurchaseCoupon(ctx, tt.couponID)
			if tt.expectedError == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.expectedError)
		})
	}
}

func TestCustomerFacade_PurchaseUsesClock(t *testing.T) {
	nextMonth := time.Now().AddDate(0, 2, 0)
	fx := newFixture(t, 4, WithClock(func() time.Time { return nextMonth }))
	ctx := context.Background()
	company := fx.company(t, "toyota")
	customer := fx.customer(t, "dana@gmail.com")

	car := couponFixture("Electric car", models.Electricity, 100, 2)
	require.NoError(t, company.AddCoupon(ctx, car))

	assert.ErrorIs(t, customer.PurchaseCoupon(ctx, car.ID), e.ErrDateExpired)
}

func TestCustomerFacade_ConcurrentPurchasesNeverOversell(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping concurrent purchase scenario in short mode")
	}
	raceForCoupon(t, newFixture(t, 20), 100, 150)
}

func TestCustomerFacade_ConcurrentPurchasesWithDefaultConfig(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping concurrent purchase scenario in short mode")
	}
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "coupons.db")
	require.Equal(t, db.DriverSQLite, cfg.Database.Driver)

	raceForCoupon(t, newFixtureFromConfig(t, cfg.DB()), 100, 150)
}

// raceForCoupon lets buyers customers buy one coupon with stock units at the
// same moment and checks that exactly stock of them succeed.
func raceForCoupon(t *testing.T, fx *fixture, stock, buyers int) {
	ctx := context.Background()
	company := fx.company(t, "toyota")
	car := couponFixture("Electric car", models.Electricity, 100, stock)
	require.NoError(t, company.AddCoupon(ctx, car))

	customers := make([]*CustomerFacade, buyers)
	for i := range customers {
		customers[i] = fx.customer(t, fmt.Sprintf("buyer%03d@gmail.com", i))
	}

	var (
		wg         sync.WaitGroup
		succeeded  atomic.Int64
		outOfStock atomic.Int64
		unexpected = make(chan error, buyers)
		start      = make(chan struct{})
	)
	for _, customer := range customers {
		wg.Add(1)
		go func(c *CustomerFacade) {
			defer wg.Done()
			<-start
			err := c.PurchaseCoupon(ctx, car.ID)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, e.ErrOutOfStock):
				outOfStock.Add(1)
			default:
				unexpected <- err
			}
		}(customer)
	}
	close(start)
	wg.Wait()
	close(unexpected)

	for err := range unexpected {
		t.Errorf("unexpected purchase error: %v", err)
	}
	assert.Equal(t, int64(stock), succeeded.Load())
	assert.Equal(t, int64(buyers-stock), outOfStock.Load())

	stored, err := fx.repo.GetCoupon(ctx, car.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Amount)

	listed, err := company.GetCompanyCoupons(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1, "a depleted coupon is still listed")
	assert.Equal(t, car.ID, listed[0].ID)
}

func TestCustomerFacade_PurchaseStorageFailure(t *testing.T) {
	boom := &e.StorageError{Op: "transaction", Err: errors.New("database is locked")}
	repo := &MockRepository{
		withTransaction: func(context.Context, func(*db.Repository) error) error {
			return boom
		},
	}
	producer := &MockProducer{}
	customer := NewCustomerFacade(repo, producer, zaptest.NewLogger(t))
	customer.customerID = 7

	err := customer.PurchaseCoupon(context.Background(), 1)
	assert.ErrorIs(t, err, e.ErrStorage)
	assert.Empty(t, producer.types(), "failed purchases emit nothing")
}

func TestPurchaseResult(t *testing.T) {
	tests := map[string]error{
		"success":           nil,
		"not_found":         e.NoSuchCoupon(1),
		"already_purchased": e.ErrAlreadyPurchased,
		"out_of_stock":      e.ErrOutOfStock,
		"date_expired":      e.ErrDateExpired,
		"error":             errors.New("boom"),
	}
	for want, err := range tests {
		assert.Equal(t, want, purchaseResult(err))
	}
}

func TestCustomerFacade_Reads(t *testing.T) {
	fx := newFixture(t, 4)
	ctx := context.Background()
	company := fx.company(t, "toyota")
	customer := fx.customer(t, "dana@gmail.com")
	other := fx.customer(t, "noa@gmail.com")

	car := couponFixture("Electric car", models.Electricity, 100, 10)
	dinner := couponFixture("Dinner", models.Restaurant, 40, 10)
	lunch := couponFixture("Lunch", models.Restaurant, 15, 10)
	for _, c := range []*models.Coupon{car, dinner, lunch} {
		require.NoError(t, company.AddCoupon(ctx, c))
	}
	require.NoError(t, customer.PurchaseCoupon(ctx, car.ID))
	require.NoError(t, customer.PurchaseCoupon(ctx, lunch.ID))
	require.NoError(t, other.PurchaseCoupon(ctx, dinner.ID))

	all, err := customer.GetCustomerCoupons(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	restaurants, err := customer.GetCustomerCouponsByCategory(ctx, models.Restaurant)
	require.NoError(t, err)
	require.Len(t, restaurants, 1, "scoped to the authenticated customer")
	assert.Equal(t, lunch.ID, restaurants[0].ID)

	cheap, err := customer.GetCustomerCouponsUpToPrice(ctx, 50)
	require.NoError(t, err)
	require.Len(t, cheap, 1)
	assert.Equal(t, lunch.ID, cheap[0].ID)

	details, err := customer.GetCustomerDetails(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dana@gmail.com", details.Email)
	assert.Len(t, details.Coupons, 2)

	anonymous := NewCustomerFacade(fx.repo, fx.producer, zaptest.NewLogger(t))
	_, err = anonymous.GetCustomerDetails(ctx)
	assert.ErrorIs(t, err, e.ErrInvalidCredentials)
	assert.ErrorIs(t, anonymous.PurchaseCoupon(ctx, car.ID), e.ErrInvalidCredentials)
}
