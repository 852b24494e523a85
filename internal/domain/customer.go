package domain

import "time"

// Customer — зарегистрированный покупатель.
type Customer struct {
	ID           string
	FullName     string
	Email        string
	PasswordHash string
	Phone        string
	Address      string
	CreatedAt    time.Time
}

// Role — роль субъекта токена.
type Role string

const (
	RoleCustomer Role = "customer"
	// RoleAdmin ведёт каталог, подтверждает платежи и отгружает заказы.
	RoleAdmin Role = "admin"
)

// Principal — проверенный субъект запроса.
type Principal struct {
	CustomerID string
	Role       Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }
