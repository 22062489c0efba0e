package db

import (
	"github.com/gartstein/coupons/internal/coupons/db/models"
	domain "github.com/gartstein/coupons/internal/coupons/models"
)

func companyRecord(c *domain.Company) *models.Company {
	return &models.Company{
		ID:       c.ID,
		Name:     c.Name,
		Email:    c.Email,
		Password: c.Password,
	}
}

func companyModel(rec *models.Company, coupons []domain.Coupon) *domain.Company {
	return &domain.Company{
		ID:       rec.ID,
		Name:     rec.Name,
		Email:    rec.Email,
		Password: rec.Password,
		Coupons:  coupons,
	}
}

func customerRecord(c *domain.Customer) *models.Customer {
	return &models.Customer{
		ID:        c.ID,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Email:     c.Email,
		Password:  c.Password,
	}
}

func customerModel(rec *models.Customer, coupons []domain.Coupon) *domain.Customer {
	return &domain.Customer{
		ID:        rec.ID,
		FirstName: rec.FirstName,
		LastName:  rec.LastName,
		Email:     rec.Email,
		Password:  rec.Password,
		Coupons:   coupons,
	}
}

func couponRecord(c *domain.Coupon) *models.Coupon {
	return &models.Coupon{
		ID:          c.ID,
		CompanyID:   c.CompanyID,
		CategoryID:  c.Category.ID(),
		Title:       c.Title,
		Description: c.Description,
		StartDate:   domain.Date(c.StartDate),
		EndDate:     domain.Date(c.EndDate),
		Amount:      c.Amount,
		Price:       c.Price,
		Image:       c.Image,
	}
}

func couponModel(rec *models.Coupon) (domain.Coupon, error) {
	category, err := domain.CategoryFromID(rec.CategoryID)
	if err != nil {
		return domain.Coupon{}, err
	}
	return domain.Coupon{
		ID:          rec.ID,
		CompanyID:   rec.CompanyID,
		Category:    category,
		Title:       rec.Title,
		Description: rec.Description,
		StartDate:   rec.StartDate.UTC(),
		EndDate:     rec.EndDate.UTC(),
		Amount:      rec.Amount,
		Price:       rec.Price,
		Image:       rec.Image,
	}, nil
}

func couponModels(recs []models.Coupon) ([]domain.Coupon, error) {
	coupons := make([]domain.Coupon, 0, len(recs))
	for i := range recs {
		c, err := couponModel(&recs[i])
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, c)
	}
	return coupons, nil
}
