package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gartstein/coupons/internal/coupons/db"
	"github.com/gartstein/coupons/internal/coupons/db/dbtest"
	"github.com/gartstein/coupons/internal/coupons/events"
	"github.com/gartstein/coupons/internal/coupons/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// MockRepository overrides single Repository methods with function fields.
// Methods left unset fall through to the embedded interface and panic.
type MockRepository struct {
	Repository
	companyNameExists  func(context.Context, string) (bool, error)
	companyEmailExists func(context.Context, string) (bool, error)
	createCompany      func(context.Context, *models.Company) error
	getCoupon          func(context.Context, int64) (*models.Coupon, error)
	withTransaction    func(context.Context, func(*db.Repository) error) error
}

func (m *MockRepository) CompanyNameExists(ctx context.Context, name string) (bool, error) {
	return m.companyNameExists(ctx, name)
}

func (m *MockRepository) CompanyEmailExists(ctx context.Context, email string) (bool, error) {
	return m.companyEmailExists(ctx, email)
}

func (m *MockRepository) CreateCompany(ctx context.Context, c *models.Company) error {
	return m.createCompany(ctx, c)
}

func (m *MockRepository) GetCoupon(ctx context.Context, id int64) (*models.Coupon, error) {
	return m.getCoupon(ctx, id)
}

func (m *MockRepository) WithTransaction(ctx context.Context, fn func(*db.Repository) error) error {
	return m.withTransaction(ctx, fn)
}

// MockProducer is a test double for the Kafka producer.
type MockProducer struct {
	mu     sync.Mutex
	events []events.Event
}

func (m *MockProducer) Produce(event events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *MockProducer) types() []events.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []events.EventType
	for _, ev := range m.events {
		out = append(out, ev.Type)
	}
	return out
}

func (m *MockProducer) count(eventType events.EventType) int {
	n := 0
	for _, t := range m.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	repo     *db.Repository
	producer *MockProducer
	manager  *LoginManager
}

func newFixture(t *testing.T, poolSize int, opts ...Option) *fixture {
	return fixtureFor(t, dbtest.NewRepository(t, poolSize), opts...)
}

// newFixtureFromConfig opens the repository exactly as a process would from cfg.
func newFixtureFromConfig(t *testing.T, cfg *db.Config, opts ...Option) *fixture {
	repo, err := db.NewRepository(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.Close(ctx); err != nil {
			t.Errorf("failed to close database: %v", err)
		}
	})
	return fixtureFor(t, repo, opts...)
}

func fixtureFor(t *testing.T, repo *db.Repository, opts ...Option) *fixture {
	producer := &MockProducer{}
	return &fixture{
		repo:     repo,
		producer: producer,
		manager:  NewLoginManager(repo, producer, zaptest.NewLogger(t), opts...),
	}
}

func (fx *fixture) admin(t *testing.T) *AdminFacade {
	facade, err := fx.manager.Login(context.Background(), DefaultAdminEmail, DefaultAdminPassword, Administrator)
	require.NoError(t, err)
	return facade.(*AdminFacade)
}

func (fx *fixture) company(t *testing.T, name string) *CompanyFacade {
	ctx := context.Background()
	company := &models.Company{Name: name, Email: name + "@gmail.com", Password: name}
	require.NoError(t, fx.admin(t).AddCompany(ctx, company))

	facade, err := fx.manager.Login(ctx, company.Email, company.Password, CompanyClient)
	require.NoError(t, err)
	return facade.(*CompanyFacade)
}

func (fx *fixture) customer(t *testing.T, email string) *CustomerFacade {
	ctx := context.Background()
	customer := &models.Customer{FirstName: "Dana", LastName: "Levi", Email: email, Password: "pw"}
	require.NoError(t, fx.admin(t).AddCustomer(ctx, customer))

	facade, err := fx.manager.Login(ctx, email, "pw", CustomerClient)
	require.NoError(t, err)
	return facade.(*CustomerFacade)
}

func couponFixture(title string, category models.Category, price float64, amount int) *models.Coupon {
	today := models.Date(time.Now())
	return &models.Coupon{
		Category:    category,
		Title:       title,
		Description: title,
		StartDate:   today,
		EndDate:     today.AddDate(0, 1, 0),
		Amount:      amount,
		Price:       price,
		Image:       title + ".png",
	}
}
