package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gartstein/coupons/internal/coupons/auth"
	e "github.com/gartstein/coupons/internal/coupons/errors"
	"go.uber.org/zap"
)

const (
	DefaultAdminEmail    = "admin@admin.com"
	DefaultAdminPassword = "admin"
	DefaultTokenTTL      = 24 * time.Hour
)

// LoginManager authenticates a client and returns the facade for its role.
// Each call builds a fresh facade, so a failed attempt leaves nothing behind.
type LoginManager struct {
	repo     Repository
	producer EventProducer
	logger   *zap.Logger
	// facadeLogger is handed to facades, which name themselves.
	facadeLogger *zap.Logger
	admin        Credentials
	secret       string
	ttl          time.Duration
	now          func() time.Time
}

type Option func(*LoginManager)

// WithAdminCredentials replaces the default administrator login pair.
func WithAdminCredentials(email, password string) Option {
	return func(m *LoginManager) {
		m.admin = Credentials{Email: email, Password: password}
	}
}

// WithTokenSecret enables session tokens signed with secret and valid for ttl.
func WithTokenSecret(secret string, ttl time.Duration) Option {
	return func(m *LoginManager) {
		m.secret = secret
		m.ttl = ttl
	}
}

// WithClock sets the time source used for token validity and coupon expiry.
func WithClock(now func() time.Time) Option {
	return func(m *LoginManager) {
		m.now = now
	}
}

func NewLoginManager(repo Repository, producer EventProducer, logger *zap.Logger, opts ...Option) *LoginManager {
	m := &LoginManager{
		repo:         repo,
		producer:     producer,
		logger:       logger.Named("login_manager"),
		facadeLogger: logger,
		admin:        Credentials{Email: DefaultAdminEmail, Password: DefaultAdminPassword},
		ttl:          DefaultTokenTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *LoginManager) newFacade(clientType ClientType) (ClientFacade, error) {
	switch clientType {
	case Administrator:
		return NewAdminFacade(m.repo, m.producer, m.admin, m.facadeLogger), nil
	case CompanyClient:
		return NewCompanyFacade(m.repo, m.producer, m.facadeLogger), nil
	case CustomerClient:
		f := NewCustomerFacade(m.repo, m.producer, m.facadeLogger)
		f.now = m.now
		return f, nil
	default:
		return nil, fmt.Errorf("%w: unknown client type %q", e.ErrInvalidCredentials, clientType)
	}
}

// Login dispatches to the facade of clientType and returns it authenticated.
// Wrong credentials and unknown client types fail with ErrInvalidCredentials.
func (m *LoginManager) Login(ctx context.Context, email, password string, clientType ClientType) (ClientFacade, error) {
	facade, err := m.newFacade(clientType)
	if err != nil {
		m.logger.Warn("Login rejected", zap.String("client_type", string(clientType)), zap.Error(err))
		return nil, err
	}

	ok, err := facade.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		m.logger.Warn("Invalid credentials",
			zap.String("client_type", string(clientType)),
			zap.String("email", email),
		)
		return nil, e.ErrInvalidCredentials
	}
	return facade, nil
}

// IssueToken signs a session token for an authenticated facade.
func (m *LoginManager) IssueToken(facade ClientFacade) (string, error) {
	if m.secret == "" {
		return "", fmt.Errorf("%w: session tokens are disabled", e.ErrInvalidInput)
	}

	var subject string
	switch f := facade.(type) {
	case *AdminFacade:
		if f.check() != nil {
			return "", errNotLoggedIn
		}
		subject = f.credentials.Email
	case *CompanyFacade:
		if f.check() != nil {
			return "", errNotLoggedIn
		}
		subject = strconv.FormatInt(f.companyID, 10)
	case *CustomerFacade:
		if f.check() != nil {
			return "", errNotLoggedIn
		}
		subject = strconv.FormatInt(f.customerID, 10)
	default:
		return "", fmt.Errorf("%w: unsupported facade %T", e.ErrInvalidInput, facade)
	}

	return auth.GenerateToken(subject, string(facade.ClientType()), m.secret, m.ttl, m.now())
}

// Resume rebuilds an authenticated facade from a session token. Tokens that are
// invalid, expired, or name an entity that no longer exists fail with
// ErrInvalidCredentials.
func (m *LoginManager) Resume(ctx context.Context, token string) (ClientFacade, error) {
	if m.secret == "" {
		return nil, fmt.Errorf("%w: session tokens are disabled", e.ErrInvalidInput)
	}
	claims, err := auth.ParseToken(token, m.secret, m.now())
	if err != nil {
		m.logger.Warn("Rejected session token", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", e.ErrInvalidCredentials, err)
	}

	facade, err := m.newFacade(ClientType(claims.Role))
	if err != nil {
		return nil, err
	}

	switch f := facade.(type) {
	case *AdminFacade:
		if claims.Subject != m.admin.Email {
			return nil, e.ErrInvalidCredentials
		}
		f.authenticate()
	case *CompanyFacade:
		id, err := resolve(claims.Subject, func(id int64) error {
			_, err := m.repo.GetCompany(ctx, id)
			return err
		})
		if err != nil {
			return nil, err
		}
		f.authenticate(id)
	case *CustomerFacade:
		id, err := resolve(claims.Subject, func(id int64) error {
			_, err := m.repo.GetCustomer(ctx, id)
			return err
		})
		if err != nil {
			return nil, err
		}
		f.authenticate(id)
	}
	return facade, nil
}

func resolve(subject string, lookup func(id int64) error) (int64, error) {
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: malformed subject", e.ErrInvalidCredentials)
	}
	if err := lookup(id); err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return 0, fmt.Errorf("%w: %v", e.ErrInvalidCredentials, err)
		}
		return 0, err
	}
	return id, nil
}
