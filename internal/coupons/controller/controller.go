// Package controller implements the role-scoped business facades of the
// marketplace (administrator, company, customer) and the login manager that
// hands them out. Facades enforce the cross-entity rules before delegating to
// the repository and emit marketplace events for every change they apply.
package controller

import (
	"context"
	"fmt"

	"github.com/gartstein/coupons/internal/coupons/db"
	e "github.com/gartstein/coupons/internal/coupons/errors"
	"github.com/gartstein/coupons/internal/coupons/events"
	"github.com/gartstein/coupons/internal/coupons/models"
)

// ClientType selects which facade a login produces.
type ClientType string

const (
	Administrator  ClientType = "ADMINISTRATOR"
	CompanyClient  ClientType = "COMPANY"
	CustomerClient ClientType = "CUSTOMER"
)

// ClientFacade is the capability shared by every facade. Login is the only
// transition into the authenticated state and succeeds at most once.
type ClientFacade interface {
	Login(ctx context.Context, email, password string) (bool, error)
	ClientType() ClientType
}

type EventProducer interface {
	Produce(event events.Event)
}

// Repository defines the storage operations the facades rely on.
type Repository interface {
	CreateCompany(ctx context.Context, company *models.Company) error
	UpdateCompany(ctx context.Context, company *models.Company) error
	GetCompany(ctx context.Context, id int64) (*models.Company, error)
	ListCompanies(ctx context.Context) ([]models.Company, error)
	CompanyNameExists(ctx context.Context, name string) (bool, error)
	CompanyEmailExists(ctx context.Context, email string) (bool, error)
	CompanyIDByCredentials(ctx context.Context, email, password string) (int64, bool, error)
	DeleteCompanyCascade(ctx context.Context, id int64) error

	CreateCustomer(ctx context.Context, customer *models.Customer) error
	UpdateCustomer(ctx context.Context, customer *models.Customer) error
	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)
	ListCustomers(ctx context.Context) ([]models.Customer, error)
	CustomerEmailExists(ctx context.Context, email string) (bool, error)
	CustomerIDByCredentials(ctx context.Context, email, password string) (int64, bool, error)
	DeleteCustomerCascade(ctx context.Context, id int64) error

	CreateCoupon(ctx context.Context, coupon *models.Coupon) error
	UpdateCoupon(ctx context.Context, coupon *models.Coupon) error
	GetCoupon(ctx context.Context, id int64) (*models.Coupon, error)
	CompanyCoupons(ctx context.Context, companyID int64, filter models.CouponFilter) ([]models.Coupon, error)
	CustomerCoupons(ctx context.Context, customerID int64, filter models.CouponFilter) ([]models.Coupon, error)
	TitleExistsInCompany(ctx context.Context, companyID int64, title string) (bool, error)
	DeleteCouponCascade(ctx context.Context, id int64) error

	WithTransaction(ctx context.Context, fn func(repo *db.Repository) error) error
}

var errNotLoggedIn = fmt.Errorf("%w: not logged in", e.ErrInvalidCredentials)

func validateCompany(c *models.Company) error {
	if c == nil {
		return fmt.Errorf("%w: missing company", e.ErrInvalidInput)
	}
	if c.Name == "" || c.Email == "" || c.Password == "" {
		return fmt.Errorf("%w: company name, email and password are required", e.ErrInvalidInput)
	}
	return nil
}

func validateCustomer(c *models.Customer) error {
	if c == nil {
		return fmt.Errorf("%w: missing customer", e.ErrInvalidInput)
	}
	if c.Email == "" || c.Password == "" {
		return fmt.Errorf("%w: customer email and password are required", e.ErrInvalidInput)
	}
	return nil
}

func validateCoupon(c *models.Coupon) error {
	switch {
	case c.Title == "":
		return fmt.Errorf("%w: coupon title is required", e.ErrInvalidInput)
	case !c.Category.Valid():
		return fmt.Errorf("%w: unknown category %q", e.ErrInvalidInput, c.Category)
	case c.Amount < 0:
		return fmt.Errorf("%w: negative amount", e.ErrInvalidInput)
	case c.Price < 0:
		return fmt.Errorf("%w: negative price", e.ErrInvalidInput)
	case models.Date(c.EndDate).Before(models.Date(c.StartDate)):
		return fmt.Errorf("%w: end date before start date", e.ErrInvalidInput)
	}
	return nil
}

func categoryFilter(category models.Category) (models.CouponFilter, error) {
	if !category.Valid() {
		return models.CouponFilter{}, fmt.Errorf("%w: unknown category %q", e.ErrInvalidInput, category)
	}
	return models.CouponFilter{Category: &category}, nil
}
