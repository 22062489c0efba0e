package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/gartstein/coupons/internal/coupons/db/models"
	e "github.com/gartstein/coupons/internal/coupons/errors"
	domain "github.com/gartstein/coupons/internal/coupons/models"
	"gorm.io/gorm"
)

// CreateCoupon inserts coupon and sets its generated ID.
// A title already used by the same company yields ErrAlreadyExists.
func (r *Repository) CreateCoupon(ctx context.Context, coupon *domain.Coupon) error {
	return r.run(ctx, "create coupon", func(tx *gorm.DB) error {
		rec := couponRecord(coupon)
		rec.ID = 0
		if err := tx.Create(rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("coupon %q: %w", coupon.Title, e.ErrAlreadyExists)
			}
			return err
		}
		coupon.ID = rec.ID
		return nil
	})
}

// UpdateCoupon stores every field of coupon except its owning company.
func (r *Repository) UpdateCoupon(ctx context.Context, coupon *domain.Coupon) error {
	return r.run(ctx, "update coupon", func(tx *gorm.DB) error {
		rec := couponRecord(coupon)
		result := tx.Model(&models.Coupon{}).
			Where("id = ?", coupon.ID).
			Updates(map[string]interface{}{
				"category_id": rec.CategoryID,
				"title":       rec.Title,
				"description": rec.Description,
				"start_date":  rec.StartDate,
				"end_date":    rec.EndDate,
				"amount":      rec.Amount,
				"price":       rec.Price,
				"image":       rec.Image,
			})
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("coupon %q: %w", coupon.Title, e.ErrAlreadyExists)
			}
			return result.Error
		}
		if result.RowsAffected == 0 {
			return e.NoSuchCoupon(coupon.ID)
		}
		return nil
	})
}

// GetCoupon loads one coupon.
func (r *Repository) GetCoupon(ctx context.Context, id int64) (*domain.Coupon, error) {
	var coupon domain.Coupon
	err := r.run(ctx, "get coupon", func(tx *gorm.DB) error {
		var rec models.Coupon
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return e.NoSuchCoupon(id)
			}
			return err
		}
		var err error
		coupon, err = couponModel(&rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// ListCoupons loads every coupon.
func (r *Repository) ListCoupons(ctx context.Context) ([]domain.Coupon, error) {
	var coupons []domain.Coupon
	err := r.run(ctx, "list coupons", func(tx *gorm.DB) error {
		var recs []models.Coupon
		if err := tx.Order("id").Find(&recs).Error; err != nil {
			return err
		}
		var err error
		coupons, err = couponModels(recs)
		return err
	})
	return coupons, err
}

// CompanyCoupons lists the coupons owned by a company, narrowed by filter.
func (r *Repository) CompanyCoupons(ctx context.Context, companyID int64, filter domain.CouponFilter) ([]domain.Coupon, error) {
	var coupons []domain.Coupon
	err := r.run(ctx, "list company coupons", func(tx *gorm.DB) error {
		var err error
		coupons, err = findCompanyCoupons(tx, companyID, filter)
		return err
	})
	return coupons, err
}

// CustomerCoupons lists the coupons purchased by a customer, narrowed by filter.
func (r *Repository) CustomerCoupons(ctx context.Context, customerID int64, filter domain.CouponFilter) ([]domain.Coupon, error) {
	var coupons []domain.Coupon
	err := r.run(ctx, "list customer coupons", func(tx *gorm.DB) error {
		var err error
		coupons, err = findCustomerCoupons(tx, customerID, filter)
		return err
	})
	return coupons, err
}

// TitleExistsInCompany reports whether the company already has a coupon titled title.
func (r *Repository) TitleExistsInCompany(ctx context.Context, companyID int64, title string) (bool, error) {
	return r.exists(ctx, "check coupon title", &models.Coupon{},
		"company_id = ? AND title = ?", companyID, title)
}

// DecrementAmount takes one unit of stock from the coupon in a single
// conditional statement. It reports false, leaving the row untouched, when the
// coupon is missing or its amount is already zero.
func (r *Repository) DecrementAmount(ctx context.Context, couponID int64) (bool, error) {
	var decremented bool
	err := r.run(ctx, "decrement coupon amount", func(tx *gorm.DB) error {
		result := tx.Model(&models.Coupon{}).
			Where("id = ? AND amount > 0", couponID).
			UpdateColumn("amount", gorm.Expr("amount - ?", 1))
		if result.Error != nil {
			return result.Error
		}
		decremented = result.RowsAffected == 1
		return nil
	})
	return decremented, err
}

// AddPurchase records that the customer bought the coupon.
// A second record for the same pair yields ErrAlreadyPurchased.
func (r *Repository) AddPurchase(ctx context.Context, customerID, couponID int64) error {
	return r.run(ctx, "add purchase", func(tx *gorm.DB) error {
		err := tx.Create(&models.Purchase{CustomerID: customerID, CouponID: couponID}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return e.ErrAlreadyPurchased
		}
		return err
	})
}

// DeletePurchasesForCoupon removes every purchase record of the coupon.
func (r *Repository) DeletePurchasesForCoupon(ctx context.Context, couponID int64) error {
	return r.run(ctx, "delete coupon purchases", func(tx *gorm.DB) error {
		return tx.Where("coupon_id = ?", couponID).Delete(&models.Purchase{}).Error
	})
}

// DeleteCouponCascade removes the coupon's purchases, then the coupon, in one transaction.
func (r *Repository) DeleteCouponCascade(ctx context.Context, id int64) error {
	return r.WithTransaction(ctx, func(repo *Repository) error {
		if err := repo.DeletePurchasesForCoupon(ctx, id); err != nil {
			return err
		}
		return repo.run(ctx, "delete coupon", func(tx *gorm.DB) error {
			result := tx.Delete(&models.Coupon{}, "id = ?", id)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return e.NoSuchCoupon(id)
			}
			return nil
		})
	})
}

func applyCouponFilter(q *gorm.DB, filter domain.CouponFilter) *gorm.DB {
	if filter.Category != nil {
		q = q.Where("coupons.category_id = ?", filter.Category.ID())
	}
	if filter.MaxPrice != nil {
		q = q.Where("coupons.price <= ?", *filter.MaxPrice)
	}
	return q
}

func findCompanyCoupons(tx *gorm.DB, companyID int64, filter domain.CouponFilter) ([]domain.Coupon, error) {
	var recs []models.Coupon
	q := tx.Model(&models.Coupon{}).Where("coupons.company_id = ?", companyID)
	if err := applyCouponFilter(q, filter).Order("coupons.id").Find(&recs).Error; err != nil {
		return nil, err
	}
	return couponModels(recs)
}

func findCustomerCoupons(tx *gorm.DB, customerID int64, filter domain.CouponFilter) ([]domain.Coupon, error) {
	var recs []models.Coupon
	q := tx.Model(&models.Coupon{}).
		Select("coupons.*").
		Joins("JOIN purchases ON purchases.coupon_id = coupons.id").
		Where("purchases.customer_id = ?", customerID)
	if err := applyCouponFilter(q, filter).Order("coupons.id").Find(&recs).Error; err != nil {
		return nil, err
	}
	return couponModels(recs)
}
