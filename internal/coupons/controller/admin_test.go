package controller

import (
	"context"
	"errors"
	"testing"

	e "github.com/gartstein/coupons/internal/coupons/errors"
	"github.com/gartstein/coupons/internal/coupons/events"
	"github.com/gartstein/coupons/internal/coupons/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAdminFacade_AddCompany(t *testing.T) {
	fx := newFixture(t, 4)
	admin := fx.admin(t)
	ctx := context.Background()
	require.NoError(t, admin.AddCompany(ctx, &models.Company{Name: "toyota", Email: "toyota@gmail.com", Password: "pw"}))

	tests := []struct {
		name          string
		input         *models.Company
		expectedError error
		field         string
	}{
		{
			name:  "successful creation",
			input: &models.Company{Name: "honda", Email: "honda@gmail.com", Password: "pw"},
		},
		{
			name:          "duplicate name",
			input:         &models.Company{Name: "toyota", Email: "other@gmail.com", Password: "pw"},
			expectedError: e.ErrAlreadyExists,
			field:         "name",
		},
		{
			name:          "duplicate email",
			input:         &models.Company{Name: "lexus", Email: "toyota@gmail.com", Password: "pw"},
			expectedError: e.ErrAlreadyExists,
			field:         "email",
		},
		{
			name:          "missing password",
			input:         &models.Company{Name: "mazda", Email: "mazda@gmail.com"},
			expectedError: e.ErrInvalidInput,
		},
		{
			name:          "nil company",
			expectedError: e.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := admin.AddCompany(ctx, tt.input)
			if tt.expectedError == nil {
				require.NoError(t, err)
				assert.NotZero(t, tt.input.ID)
				return
			}
			assert.ErrorIs(t, err, tt.expectedError)
			if tt.field != "" {
				var exists *e.AlreadyExistsError
				require.True(t, errors.As(err, &exists))
				assert.Equal(t, tt.field, exists.Field)
			}
		})
	}

	assert.Equal(t, 2, fx.producer.count(events.CompanyCreated))
}

func TestAdminFacade_AddCompanyRaceReportsField(t *testing.T) {
	checks := 0
	repo := &MockRepository{
		companyNameExists: func(context.Context, string) (bool, error) {
			checks++
			return checks > 1, nil
		},
		companyEmailExists: func(context.Context, string) (bool, error) {
			return false, nil
		},
		createCompany: func(context.Context, *models.Company) error {
			return e.ErrAlreadyExists
		},
	}
	admin := NewAdminFacade(repo, &MockProducer{}, Credentials{Email: "a", Password: "b"}, zaptest.NewLogger(t))
	ok, err := admin.Login(context.Background(), "a", "b")
	require.NoError(t, err)
	require.True(t, ok)

	err = admin.AddCompany(context.Background(), &models.Company{Name: "toyota", Email: "t@gmail.com", Password: "pw"})

	var exists *e.AlreadyExistsError
	require.True(t, errors.As(err, &exists))
	assert.Equal(t, "name", exists.Field)
}

func TestAdminFacade_StorageFailurePropagates(t *testing.T) {
	boom := &e.StorageError{Op: "check company name", Err: errors.New("connection reset")}
	repo := &MockRepository{
		companyNameExists: func(context.Context, string) (bool, error) {
			return false, boom
		},
	}
	admin := NewAdminFacade(repo, &MockProducer{}, Credentials{Email: "a", Password: "b"}, zaptest.NewLogger(t))
	_, err := admin.Login(context.Background(), "a", "b")
	require.NoError(t, err)

	err = admin.AddCompany(context.Background(), &models.Company{Name: "toyota", Email: "t@gmail.com", Password: "pw"})
	assert.ErrorIs(t, err, e.ErrStorage)
}

func TestAdminFacade_RequiresLogin(t *testing.T) {
	admin := NewAdminFacade(&MockRepository{}, &MockProducer{}, Credentials{Email: "a", Password: "b"}, zaptest.NewLogger(t))
	ctx := context.Background()

	ok, err := admin.Login(ctx, "a", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = admin.GetAllCompanies(ctx)
	assert.ErrorIs(t, err, e.ErrInvalidCredentials)

	ok, err = admin.Login(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = admin.Login(ctx, "a", "b")
	assert.ErrorIs(t, err, e.ErrInvalidInput, "login is one-shot")
}

func TestAdminFacade_UpdateCompany(t *testing.T) {
	fx := newFixture(t, 4)
	admin := fx.admin(t)
	ctx := context.Background()
	company := &models.Company{Name: "toyota", Email: "toyota@gmail.com", Password: "pw"}
	require.NoError(t, admin.AddCompany(ctx, company))

	tests := []struct {
		name          string
		update        models.Company
		expectedError error
		field         string
	}{
		{
			name:          "changed email",
			update:        models.Company{ID: company.ID, Name: "toyota", Email: "new@gmail.com", Password: "pw"},
			expectedError: e.ErrFieldNotMutable,
			field:         "email",
		},
		{
			name:          "changed name",
			update:        models.Company{ID: company.ID, Name: "lexus", Email: "toyota@gmail.com", Password: "pw"},
			expectedError: e.ErrFieldNotMutable,
			field:         "name",
		},
		{
			name:          "unknown company",
			update:        models.Company{ID: 999, Name: "toyota", Email: "toyota@gmail.com", Password: "pw"},
			expectedError: e.ErrNotFound,
		},
		{
			name:   "new password",
			update: models.Company{ID: company.ID, Name: "toyota", Email: "toyota@gmail.com", Password: "changed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := admin.UpdateCompany(ctx, &tt.update)
			if tt.expectedError == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.expectedError)
			if tt.field != "" {
				var notMutable *e.FieldNotMutableError
				require.True(t, errors.As(err, &notMutable))
				assert.Equal(t, tt.field, notMutable.Field)
			}
		})
	}

	stored, err := admin.GetOneCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, "toyota@gmail.com", stored.Email, "rejected updates leave the company unchanged")
	assert.Equal(t, "changed", stored.Password)
	assert.Equal(t, 1, fx.producer.count(events.CompanyUpdated))
}

func TestAdminFacade_DeleteCompanyCascades(t *testing.T) {
	fx := newFixture(t, 4)
	ctx := context.Background()
	company := fx.company(t, "toyota")
	coupon := couponFixture("Electric car", models.Electricity, 100, 10)
	require.NoError(t, company.AddCoupon(ctx, coupon))
	customer := fx.customer(t, "dana@gmail.com")
	require.NoError(t, customer.PurchaseCoupon(ctx, coupon.ID))

	admin := fx.admin(t)
	require.NoError(t, admin.DeleteCompany(ctx, company.CompanyID()))

	_, err := admin.GetOneCompany(ctx, company.CompanyID())
	assert.ErrorIs(t, err, e.ErrNotFound)

	_, err = fx.repo.GetCoupon(ctx, coupon.ID)
	assert.ErrorIs(t, err, e.ErrNotFound)

	owned, err := customer.GetCustomerCoupons(ctx)
	require.NoError(t, err)
	assert.Empty(t, owned, "purchase records of the company's coupons are gone")

	assert.ErrorIs(t, admin.DeleteCompany(ctx, company.CompanyID()), e.ErrNotFound)
}

func TestAdminFacade_Customers(t *testing.T) {
	fx := newFixture(t, 4)
	admin := fx.admin(t)
	ctx := context.Background()

	dana := &models.Customer{FirstName: "Dana", LastName: "Levi", Email: "dana@gmail.com", Password: "pw"}
	noa := &models.Customer{FirstName: "Noa", LastName: "Cohen", Email: "noa@gmail.com", Password: "pw"}
	require.NoError(t, admin.AddCustomer(ctx, dana))
	require.NoError(t, admin.AddCustomer(ctx, noa))

	err := admin.AddCustomer(ctx, &models.Customer{Email: "dana@gmail.com", Password: "pw"})
	assert.ErrorIs(t, err, e.ErrAlreadyExists)

	noa.Email = "dana@gmail.com"
	assert.ErrorIs(t, admin.UpdateCustomer(ctx, noa), e.ErrAlreadyExists)

	noa.Email = "noa.cohen@gmail.com"
	noa.LastName = "Levi"
	require.NoError(t, admin.UpdateCustomer(ctx, noa))

	stored, err := admin.GetOneCustomer(ctx, noa.ID)
	require.NoError(t, err)
	assert.Equal(t, "noa.cohen@gmail.com", stored.Email)
	assert.Equal(t, "Levi", stored.LastName)

	assert.ErrorIs(t, admin.UpdateCustomer(ctx, &models.Customer{ID: 999, Email: "x@gmail.com", Password: "pw"}), e.ErrNotFound)

	all, err := admin.GetAllCustomers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, admin.DeleteCustomer(ctx, dana.ID))
	_, err = admin.GetOneCustomer(ctx, dana.ID)
	assert.ErrorIs(t, err, e.ErrNotFound)
	assert.ErrorIs(t, admin.DeleteCustomer(ctx, dana.ID), e.ErrNotFound)

	assert.Equal(t, []events.EventType{
		events.CustomerCreated,
		events.CustomerCreated,
		events.CustomerUpdated,
		events.CustomerDeleted,
	}, fx.producer.types())
}

func TestAdminFacade_GetAllCompanies(t *testing.T) {
	fx := newFixture(t, 2)
	ctx := context.Background()
	toyota := fx.company(t, "toyota")
	require.NoError(t, toyota.AddCoupon(ctx, couponFixture("Electric car", models.Electricity, 100, 10)))
	fx.company(t, "honda")

	companies, err := fx.admin(t).GetAllCompanies(ctx)
	require.NoError(t, err)
	require.Len(t, companies, 2)
	assert.Len(t, companies[0].Coupons, 1)
	assert.Empty(t, companies[1].Coupons)
}
