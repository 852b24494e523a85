// Package account регистрирует покупателей и выдаёт токены доступа.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const minPasswordLength = 8

// errBadCredentials одинакова для неизвестного email и неверного пароля.
var errBadCredentials = fmt.Errorf("invalid email or password: %w", domain.ErrUnauthenticated)

// Hasher хеширует и сверяет пароли.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenIssuer выпускает токен доступа для клиента.
type TokenIssuer interface {
	Issue(customerID, email string, role domain.Role) (string, time.Time, error)
}

// RegisterInput — данные регистрации.
type RegisterInput struct {
	FullName string
	Email    string
	Password string
	Phone    string
	Address  string
}

// Session — результат входа.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Role      domain.Role
	Customer  domain.Customer
}

// Service — регистрация и вход.
type Service struct {
	customers domain.CustomerRepository
	hasher    Hasher
	tokens    TokenIssuer
	admins    map[string]struct{}
	logger    *log.Entry
	now       func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithAdminEmails выдаёт роль admin при входе с перечисленных адресов.
func WithAdminEmails(emails ...string) Option {
	return func(s *Service) {
		for _, e := range emails {
			if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
				s.admins[e] = struct{}{}
			}
		}
	}
}

// NewService создаёт сервис аккаунтов.
func NewService(customers domain.CustomerRepository, hasher Hasher, tokens TokenIssuer, logger *log.Entry, opts ...Option) *Service {
	if logger == nil {
		logger = log.WithField("component", "account")
	}
	s := &Service{
		customers: customers,
		hasher:    hasher,
		tokens:    tokens,
		admins:    make(map[string]struct{}),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register создаёт клиента. Повтор email даёт ErrConflict.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.Customer, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	switch {
	case in.FullName == "":
		return domain.Customer{}, domain.NewInvalidArgument("full_name", "is required")
	case in.Email == "":
		return domain.Customer{}, domain.NewInvalidArgument("email", "is required")
	case !strings.Contains(in.Email, "@"):
		return domain.Customer{}, domain.NewInvalidArgument("email", "must contain @")
	case len(in.Password) < minPasswordLength:
		return domain.Customer{}, domain.NewInvalidArgument("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return domain.Customer{}, domain.NewInvalidArgument("password", err.Error())
		}
		return domain.Customer{}, err
	}

	customer := domain.Customer{
		ID:           uuid.NewString(),
		FullName:     in.FullName,
		Email:        in.Email,
		PasswordHash: hash,
		Phone:        strings.TrimSpace(in.Phone),
		Address:      strings.TrimSpace(in.Address),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.customers.CreateCustomer(ctx, customer); err != nil {
		return domain.Customer{}, err
	}

	s.logger.WithField("customer_id", customer.ID).Info("customer registered")
	return customer, nil
}

// Login проверяет пароль и выпускает токен.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	customer, err := s.customers.GetCustomerByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Session{}, errBadCredentials
		}
		return Session{}, err
	}
	if err := s.hasher.Compare(customer.PasswordHash, password); err != nil {
		s.logger.WithField("customer_id", customer.ID).Warn("login with wrong password")
		return Session{}, errBadCredentials
	}

	role := domain.RoleCustomer
	if _, ok := s.admins[customer.Email]; ok {
		role = domain.RoleAdmin
	}
	token, expiresAt, err := s.tokens.Issue(customer.ID, customer.Email, role)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{Token: token, ExpiresAt: expiresAt, Role: role, Customer: customer}, nil
}

// Get возвращает клиента по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (domain.Customer, error) {
	return s.customers.GetCustomer(ctx, id)
}
