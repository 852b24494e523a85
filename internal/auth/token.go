package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const issuer = "storefront"

// Claims — содержимое токена доступа. Subject хранит идентификатор клиента.
type Claims struct {
	Email string      `json:"email,omitempty"`
	Role  domain.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager выпускает и проверяет HS256 JWT.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager создаёт менеджер токенов с общим секретом.
func NewTokenManager(secret string, ttl time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue выпускает токен для клиента и возвращает его вместе со временем истечения.
func (m *TokenManager) Issue(customerID, email string, role domain.Role) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := &Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   customerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify проверяет подпись и срок действия. Токен без роли считается клиентским.
func (m *TokenManager) Verify(tokenString string) (domain.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return domain.Principal{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return domain.Principal{}, fmt.Errorf("%w: token without subject", domain.ErrUnauthenticated)
	}
	role := claims.Role
	switch role {
	case "":
		role = domain.RoleCustomer
	case domain.RoleCustomer, domain.RoleAdmin:
	default:
		return domain.Principal{}, fmt.Errorf("%w: unknown role %q", domain.ErrUnauthenticated, role)
	}
	return domain.Principal{CustomerID: claims.Subject, Role: role}, nil
}
