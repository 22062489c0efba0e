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

// CreateCompany inserts company and sets its generated ID.
// A name or email collision yields ErrAlreadyExists.
func (r *Repository) CreateCompany(ctx context.Context, company *domain.Company) error {
	return r.run(ctx, "create company", func(tx *gorm.DB) error {
		rec := companyRecord(company)
		rec.ID = 0
		if err := tx.Create(rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("company %q: %w", company.Name, e.ErrAlreadyExists)
			}
			return err
		}
		company.ID = rec.ID
		return nil
	})
}

// UpdateCompany stores the mutable fields of company. Name and email are never written.
func (r *Repository) UpdateCompany(ctx context.Context, company *domain.Company) error {
	return r.run(ctx, "update company", func(tx *gorm.DB) error {
		result := tx.Model(&models.Company{}).
			Where("id = ?", company.ID).
			Update("password", company.Password)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return e.NoSuchCompany(company.ID)
		}
		return nil
	})
}

// GetCompany loads one company together with the coupons it owns.
func (r *Repository) GetCompany(ctx context.Context, id int64) (*domain.Company, error) {
	var company *domain.Company
	err := r.run(ctx, "get company", func(tx *gorm.DB) error {
		var rec models.Company
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return e.NoSuchCompany(id)
			}
			return err
		}
		coupons, err := findCompanyCoupons(tx, id, domain.CouponFilter{})
		if err != nil {
			return err
		}
		company = companyModel(&rec, coupons)
		return nil
	})
	return company, err
}

// ListCompanies loads every company together with its coupons.
func (r *Repository) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	var companies []domain.Company
	err := r.run(ctx, "list companies", func(tx *gorm.DB) error {
		var recs []models.Company
		if err := tx.Order("id").Find(&recs).Error; err != nil {
			return err
		}
		var couponRecs []models.Coupon
		if err := tx.Order("id").Find(&couponRecs).Error; err != nil {
			return err
		}
		coupons, err := couponModels(couponRecs)
		if err != nil {
			return err
		}
		owned := make(map[int64][]domain.Coupon, len(recs))
		for _, c := range coupons {
			owned[c.CompanyID] = append(owned[c.CompanyID], c)
		}
		companies = make([]domain.Company, 0, len(recs))
		for i := range recs {
			companies = append(companies, *companyModel(&recs[i], owned[recs[i].ID]))
		}
		return nil
	})
	return companies, err
}

// CompanyNameExists reports whether any company already uses name.
func (r *Repository) CompanyNameExists(ctx context.Context, name string) (bool, error) {
	return r.exists(ctx, "check company name", &models.Company{}, "name = ?", name)
}

// CompanyEmailExists reports whether any company already uses email.
func (r *Repository) CompanyEmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "check company email", &models.Company{}, "email = ?", email)
}

// CompanyIDByCredentials resolves a login pair to a company id.
func (r *Repository) CompanyIDByCredentials(ctx context.Context, email, password string) (int64, bool, error) {
	var rec models.Company
	found := false
	err := r.run(ctx, "company login", func(tx *gorm.DB) error {
		result := tx.Select("id").
			Where("email = ? AND password = ?", email, password).
			Limit(1).
			Find(&rec)
		if result.Error != nil {
			return result.Error
		}
		found = result.RowsAffected > 0
		return nil
	})
	return rec.ID, found, err
}

// DeleteCompanyCascade removes a company and everything that depends on it in
// one transaction: purchases of its coupons, then its coupons, then the company.
func (r *Repository) DeleteCompanyCascade(ctx context.Context, id int64) error {
	return r.WithTransaction(ctx, func(repo *Repository) error {
		var couponIDs []int64
		err := repo.run(ctx, "list company coupon ids", func(tx *gorm.DB) error {
			return tx.Model(&models.Coupon{}).Where("company_id = ?", id).Pluck("id", &couponIDs).Error
		})
		if err != nil {
			return err
		}
		for _, couponID := range couponIDs {
			if err := repo.DeletePurchasesForCoupon(ctx, couponID); err != nil {
				return err
			}
		}
		err = repo.run(ctx, "delete company coupons", func(tx *gorm.DB) error {
			return tx.Where("company_id = ?", id).Delete(&models.Coupon{}).Error
		})
		if err != nil {
			return err
		}
		return repo.run(ctx, "delete company", func(tx *gorm.DB) error {
			result := tx.Delete(&models.Company{}, "id = ?", id)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return e.NoSuchCompany(id)
			}
			return nil
		})
	})
}

func (r *Repository) exists(ctx context.Context, op string, model interface{}, query string, args ...interface{}) (bool, error) {
	var count int64
	err := r.run(ctx, op, func(tx *gorm.DB) error {
		return tx.Model(model).Where(query, args...).Limit(1).Count(&count).Error
	})
	return count > 0, err
}
