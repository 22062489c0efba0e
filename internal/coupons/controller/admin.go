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

// Credentials is the fixed administrator login pair.
type Credentials struct {
	Email    string
	Password string
}

// AdminFacade manages companies and customers. Its login is a constant check
// against the configured administrator credentials.
type AdminFacade struct {
	repo          Repository
	producer      EventProducer
	logger        *zap.Logger
	credentials   Credentials
	authenticated bool
}

func NewAdminFacade(repo Repository, producer EventProducer, credentials Credentials, logger *zap.Logger) *AdminFacade {
	return &AdminFacade{
		repo:        repo,
		producer:    producer,
		logger:      logger.Named("admin_facade"),
		credentials: credentials,
	}
}

func (f *AdminFacade) ClientType() ClientType { return Administrator }

// Login checks email and password against the administrator credentials.
func (f *AdminFacade) Login(_ context.Context, email, password string) (bool, error) {
	if f.authenticated {
		return false, fmt.Errorf("%w: session already logged in", e.ErrInvalidInput)
	}
	if email != f.credentials.Email || password != f.credentials.Password {
		return false, nil
	}
	f.authenticate()
	return true, nil
}

func (f *AdminFacade) authenticate() {
	f.authenticated = true
	f.logger = f.logger.With(zap.String("session_id", uuid.NewString()))
	f.logger.Info("Administrator logged in")
}

func (f *AdminFacade) check() error {
	if !f.authenticated {
		return errNotLoggedIn
	}
	return nil
}

// AddCompany enrolls a company whose name and email are both unused.
func (f *AdminFacade) AddCompany(ctx context.Context, company *models.Company) error {
	if err := f.check(); err != nil {
		return err
	}
	if err := validateCompany(company); err != nil {
		return err
	}

	if err := f.companyTaken(ctx, company); err != nil {
		return err
	}

	if err := f.repo.CreateCompany(ctx, company); err != nil {
		if errors.Is(err, e.ErrAlreadyExists) {
			// Lost a race with a concurrent enrollment; report which field collided.
			if takenErr := f.companyTaken(ctx, company); takenErr != nil {
				return takenErr
			}
		}
		return fmt.Errorf("failed to create company: %w", err)
	}

	f.logger.Info("Company created", zap.Int64("company_id", company.ID), zap.String("name", company.Name))
	f.producer.Produce(events.NewEvent(events.CompanyCreated, company.ID))
	return nil
}

func (f *AdminFacade) companyTaken(ctx context.Context, company *models.Company) error {
	exists, err := f.repo.CompanyNameExists(ctx, company.Name)
	if err != nil {
		return fmt.Errorf("failed to check name existence: %w", err)
	}
	if exists {
		return e.AlreadyExists("name", company.Name)
	}
	exists, err = f.repo.CompanyEmailExists(ctx, company.Email)
	if err != nil {
		return fmt.Errorf("failed to check email existence: %w", err)
	}
	if exists {
		return e.AlreadyExists("email", company.Email)
	}
	return nil
}

// UpdateCompany stores a new password for the company. Name and email must
// match the stored values.
func (f *AdminFacade) UpdateCompany(ctx context.Context, company *models.Company) error {
	if err := f.check(); err != nil {
		return err
	}
	if err := validateCompany(company); err != nil {
		return err
	}

	stored, err := f.repo.GetCompany(ctx, company.ID)
	if err != nil {
		return err
	}
	if stored.Name != company.Name {
		return e.FieldNotMutable("name")
	}
	if stored.Email != company.Email {
		return e.FieldNotMutable("email")
	}

	if err := f.repo.UpdateCompany(ctx, company); err != nil {
		return err
	}
	f.logger.Info("Company updated", zap.Int64("company_id", company.ID))
	f.producer.Produce(events.NewEvent(events.CompanyUpdated, company.ID))
	return nil
}

// DeleteCompany removes the company with its coupons and their purchases.
func (f *AdminFacade) DeleteCompany(ctx context.Context, id int64) error {
	if err := f.check(); err != nil {
		return err
	}
	if err := f.repo.DeleteCompanyCascade(ctx, id); err != nil {
		return err
	}
	f.logger.Info("Company deleted", zap.Int64("company_id", id))
	f.producer.Produce(events.NewEvent(events.CompanyDeleted, id))
	return nil
}

func (f *AdminFacade) GetAllCompanies(ctx context.Context) ([]models.Company, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.repo.ListCompanies(ctx)
}

func (f *AdminFacade) GetOneCompany(ctx context.Context, id int64) (*models.Company, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.repo.GetCompany(ctx, id)
}

// AddCustomer enrolls a customer whose email is unused.
func (f *AdminFacade) AddCustomer(ctx context.Context, customer *models.Customer) error {
	if err := f.check(); err != nil {
		return err
	}
	if err := validateCustomer(customer); err != nil {
		return err
	}

	exists, err := f.repo.CustomerEmailExists(ctx, customer.Email)
	if err != nil {
		return fmt.Errorf("failed to check email existence: %w", err)
	}
	if exists {
		return e.AlreadyExists("email", customer.Email)
	}

	if err := f.repo.CreateCustomer(ctx, customer); err != nil {
		if errors.Is(err, e.ErrAlreadyExists) {
			return e.AlreadyExists("email", customer.Email)
		}
		return fmt.Errorf("failed to create customer: %w", err)
	}

	f.logger.Info("Customer created", zap.Int64("customer_id", customer.ID))
	f.producer.Produce(events.NewEvent(events.CustomerCreated, customer.ID))
	return nil
}

// UpdateCustomer stores every field of the customer. A new email must be unused.
func (f *AdminFacade) UpdateCustomer(ctx context.Context, customer *models.Customer) error {
	if err := f.check(); err != nil {
		return err
	}
	if err := validateCustomer(customer); err != nil {
		return err
	}

	stored, err := f.repo.GetCustomer(ctx, customer.ID)
	if err != nil {
		return err
	}
	if stored.Email != customer.Email {
		exists, err := f.repo.CustomerEmailExists(ctx, customer.Email)
		if err != nil {
			return fmt.Errorf("failed to check email existence: %w", err)
		}
		if exists {
			return e.AlreadyExists("email", customer.Email)
		}
	}

	if err := f.repo.UpdateCustomer(ctx, customer); err != nil {
		if errors.Is(err, e.ErrAlreadyExists) {
			return e.AlreadyExists("email", customer.Email)
		}
		return err
	}
	f.logger.Info("Customer updated", zap.Int64("customer_id", customer.ID))
	f.producer.Produce(events.NewEvent(events.CustomerUpdated, customer.ID))
	return nil
}

// DeleteCustomer removes the customer and their purchase records.
func (f *AdminFacade) DeleteCustomer(ctx context.Context, id int64) error {
	if err := f.check(); err != nil {
		return err
	}
	if err := f.repo.DeleteCustomerCascade(ctx, id); err != nil {
		return err
	}
	f.logger.Info("Customer deleted", zap.Int64("customer_id", id))
	f.producer.Produce(events.NewEvent(events.CustomerDeleted, id))
	return nil
}

func (f *AdminFacade) GetAllCustomers(ctx context.Context) ([]models.Customer, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.repo.ListCustomers(ctx)
}

func (f *AdminFacade) GetOneCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.repo.GetCustomer(ctx, id)
}
