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

// CreateCustomer inserts customer and sets its generated ID.
// An email collision yields ErrAlreadyExists.
func (r *Repository) CreateCustomer(ctx context.Context, customer *domain.Customer) error {
	return r.run(ctx, "create customer", func(tx *gorm.DB) error {
		rec := customerRecord(customer)
		rec.ID = 0
		if err := tx.Create(rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("customer %q: %w", customer.Email, e.ErrAlreadyExists)
			}
			return err
		}
		customer.ID = rec.ID
		return nil
	})
}

// UpdateCustomer stores every field of customer under its ID.
func (r *Repository) UpdateCustomer(ctx context.Context, customer *domain.Customer) error {
	return r.run(ctx, "update customer", func(tx *gorm.DB) error {
		result := tx.Model(&models.Customer{}).
			Where("id = ?", customer.ID).
			Updates(map[string]interface{}{
				"first_name": customer.FirstName,
				"last_name":  customer.LastName,
				"email":      customer.Email,
				"password":   customer.Password,
			})
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("customer %q: %w", customer.Email, e.ErrAlreadyExists)
			}
			return result.Error
		}
		if result.RowsAffected == 0 {
			return e.NoSuchCustomer(customer.ID)
		}
		return nil
	})
}

// GetCustomer loads one customer together with the coupons they purchased.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var customer *domain.Customer
	err := r.run(ctx, "get customer", func(tx *gorm.DB) error {
		var rec models.Customer
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return e.NoSuchCustomer(id)
			}
			return err
		}
		coupons, err := findCustomerCoupons(tx, id, domain.CouponFilter{})
		if err != nil {
			return err
		}
		customer = customerModel(&rec, coupons)
		return nil
	})
	return customer, err
}

// ListCustomers loads every customer together with their purchased coupons.
func (r *Repository) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	var customers []domain.Customer
	err := r.run(ctx, "list customers", func(tx *gorm.DB) error {
		var recs []models.Customer
		if err := tx.Order("id").Find(&recs).Error; err != nil {
			return err
		}
		customers = make([]domain.Customer, 0, len(recs))
		for i := range recs {
			coupons, err := findCustomerCoupons(tx, recs[i].ID, domain.CouponFilter{})
			if err != nil {
				return err
			}
			customers = append(customers, *customerModel(&recs[i], coupons))
		}
		return nil
	})
	return customers, err
}

// CustomerEmailExists reports whether any customer already uses email.
func (r *Repository) CustomerEmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "check customer email", &models.Customer{}, "email = ?", email)
}

// CustomerIDByCredentials resolves a login pair to a customer id.
func (r *Repository) CustomerIDByCredentials(ctx context.Context, email, password string) (int64, bool, error) {
	var rec models.Customer
	found := false
	err := r.run(ctx, "customer login", func(tx *gorm.DB) error {
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

// AlreadyPurchased reports whether the customer holds a purchase of the coupon.
func (r *Repository) AlreadyPurchased(ctx context.Context, customerID, couponID int64) (bool, error) {
	return r.exists(ctx, "check purchase", &models.Purchase{},
		"customer_id = ? AND coupon_id = ?", customerID, couponID)
}

// DeleteCustomerCascade removes the customer's purchases, then the customer, in one transaction.
func (r *Repository) DeleteCustomerCascade(ctx context.Context, id int64) error {
	return r.WithTransaction(ctx, func(repo *Repository) error {
		if err := repo.DeletePurchasesForCustomer(ctx, id); err != nil {
			return err
		}
		return repo.run(ctx, "delete customer", func(tx *gorm.DB) error {
			result := tx.Delete(&models.Customer{}, "id = ?", id)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return e.NoSuchCustomer(id)
			}
			return nil
		})
	})
}

// DeletePurchasesForCustomer removes every purchase record held by the customer.
func (r *Repository) DeletePurchasesForCustomer(ctx context.Context, customerID int64) error {
	return r.run(ctx, "delete customer purchases", func(tx *gorm.DB) error {
		return tx.Where("customer_id = ?", customerID).Delete(&models.Purchase{}).Error
	})
}
