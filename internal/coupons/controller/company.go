package controller

import (
	"context"
	"errors"
	"fmt"

	e "github.com/gartstein/coupons/internal/coupons/errors"
	"github.com/gartstein/coupons/internal/coupons/events"
	"github.com/gartstein/coupons/internal/coupons/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CompanyFacade manages the coupons of one authenticated company.
type CompanyFacade struct {
	repo      Repository
	producer  EventProducer
	logger    *zap.Logger
	companyID int64
}

func NewCompanyFacade(repo Repository, producer EventProducer, logger *zap.Logger) *CompanyFacade {
	return &CompanyFacade{
		repo:     repo,
		producer: producer,
		logger:   logger.Named("company_facade"),
	}
}

func (f *CompanyFacade) ClientType() ClientType { return CompanyClient }

// Login resolves the credentials to a company. On failure the facade stays
// unauthenticated.
func (f *CompanyFacade) Login(ctx context.Context, email, password string) (bool, error) {
	if f.companyID != 0 {
		return false, fmt.Errorf("%w: session already logged in", e.ErrInvalidInput)
	}
	id, found, err := f.repo.CompanyIDByCredentials(ctx, email, password)
	if err != nil || !found {
		return false, err
	}
	f.authenticate(id)
	return true, nil
}

func (f *CompanyFacade) authenticate(id int64) {
	f.companyID = id
	f.logger = f.logger.With(
		zap.String("session_id", uuid.NewString()),
		zap.Int64("company_id", id),
	)
	f.logger.Info("Company logged in")
}

// CompanyID returns the authenticated company, or 0 before login.
func (f *CompanyFacade) CompanyID() int64 {
	return f.companyID
}

func (f *CompanyFacade) check() error {
	if f.companyID == 0 {
		return errNotLoggedIn
	}
	return nil
}

// AddCoupon publishes a coupon owned by the authenticated company. The title
// must not already be used by this company.
func (f *CompanyFacade) AddCoupon(ctx context.Context, coupon *models.Coupon) error {
	if err := f.check(); err != nil {
		return err
	}
	if coupon.CompanyID == 0 {
		coupon.CompanyID = f.companyID
	}
	if coupon.CompanyID != f.companyID {
		return e.FieldNotMutable("company_id")
	}
	if err := validateCoupon(coupon); err != nil {
		return err
	}

	exists, err := f.repo.TitleExistsInCompany(ctx, f.companyID, coupon.Title)
	if err != nil {
		return fmt.Errorf("failed to check title existence: %w", err)
	}
	if exists {
		return e.AlreadyExists("title", coupon.Title)
	}

	if err := f.repo.CreateCoupon(ctx, coupon); err != nil {
		if errors.Is(err, e.ErrAlreadyExists) {
			return e.AlreadyExists("title", coupon.Title)
		}
		return fmt.Errorf("failed to create coupon: %w", err)
	}

	f.logger.Info("Coupon created", zap.Int64("coupon_id", coupon.ID), zap.String("title", coupon.Title))
	f.producer.Produce(events.NewEvent(events.CouponCreated, coupon.ID))
	return nil
}

// owned loads a coupon of the authenticated company. Coupons of other
// companies are reported as missing.
func (f *CompanyFacade) owned(ctx context.Context, id int64) (*models.Coupon, error) {
	stored, err := f.repo.GetCoupon(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored.CompanyID != f.companyID {
		f.logger.Warn("Access to foreign coupon", zap.Int64("coupon_id", id))
		return nil, e.NoSuchCoupon(id)
	}
	return stored, nil
}

// UpdateCoupon stores every field of the coupon except its owner, which must
// stay the same. A zero company id means the authenticated company, as in AddCoupon.
func (f *CompanyFacade) UpdateCoupon(ctx context.Context, coupon *models.Coupon) error {
	if err := f.check(); err != nil {
		return err
	}
	stored, err := f.owned(ctx, coupon.ID)
	if err != nil {
		return err
	}
	if coupon.CompanyID == 0 {
		coupon.CompanyID = f.companyID
	}
	if coupon.CompanyID != stored.CompanyID {
		return e.FieldNotMutable("company_id")
	}
	if err := validateCoupon(coupon); err != nil {
		return err
	}

	if coupon.Title != stored.Title {
		exists, err := f.repo.TitleExistsInCompany(ctx, f.companyID, coupon.Title)
		if err != nil {
			return fmt.Errorf("failed to check title existence: %w", err)
		}
		if exists {
			return e.AlreadyExists("title", coupon.Title)
		}
	}

	if err := f.repo.UpdateCoupon(ctx, coupon); err != nil {
		if errors.Is(err, e.ErrAlreadyExists) {
			return e.AlreadyExists("title", coupon.Title)
		}
		return err
	}
	f.logger.Info("Coupon updated", zap.Int64("coupon_id", coupon.ID))
	f.producer.Produce(events.NewEvent(events.CouponUpdated, coupon.ID))
	return nil
}

// DeleteCoupon removes the coupon and its purchase records.
func (f *CompanyFacade) DeleteCoupon(ctx context.Context, id int64) error {
	if err := f.check(); err != nil {
		return err
	}
	if _, err := f.owned(ctx, id); err != nil {
		return err
	}
	if err := f.repo.DeleteCouponCascade(ctx, id); err != nil {
		return err
	}
	f.logger.Info("Coupon deleted", zap.Int64("coupon_id", id))
	f.producer.Produce(events.NewEvent(events.CouponDeleted, id))
	return nil
}

func (f *CompanyFacade) GetCompanyCoupons(ctx context.Context) ([]models.Coupon, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.repo.CompanyCoupons(ctx, f.companyID, models.CouponFilter{})
}

func (f *CompanyFacade) GetCompanyCouponsByCategory(ctx context.Context, category models.Category) ([]models.Coupon, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	filter, err := categoryFilter(category)
	if err != nil {
		return nil, err
	}
	return f.repo.CompanyCoupons(ctx, f.companyID, filter)
}

func (f *CompanyFacade) GetCompanyCouponsUpToPrice(ctx context.Context, maxPrice float64) ([]models.Coupon, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.repo.CompanyCoupons(ctx, f.companyID, models.CouponFilter{MaxPrice: &maxPrice})
}

// GetCompanyDetails returns the authenticated company with its coupons.
func (f *CompanyFacade) GetCompanyDetails(ctx context.Context) (*models.Company, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.repo.GetCompany(ctx, f.companyID)
}
