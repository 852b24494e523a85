// Package httpapi реализует REST API магазина поверх chi.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/account"
)

const (
	requestTimeout  = 15 * time.Second
	defaultOrderTTL = 24 * time.Hour
)

// Accounts — регистрация и вход.
type Accounts interface {
	Register(ctx context.Context, in account.RegisterInput) (domain.Customer, error)
	Login(ctx context.Context, email, password string) (account.Session, error)
}

type Catalog interface {
	List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	Get(ctx context.Context, id string) (domain.Product, error)
	Create(ctx context.Context, p domain.Product) (domain.Product, error)
	Update(ctx context.Context, id string, p domain.Product) (domain.Product, error)
	Delete(ctx context.Context, id string) error
}

type Carts interface {
	Get(ctx context.Context, customerID string) ([]domain.CartItemView, error)
	Add(ctx context.Context, customerID, productID string, qty int) (domain.CartLine, error)
	UpdateQuantity(ctx context.Context, customerID, lineID string, qty int) (domain.CartLine, error)
	Remove(ctx context.Context, customerID, lineID string) error
	Checkout(ctx context.Context, customerID string) (domain.Order, error)
}

// Orders — движок заказов.
type Orders interface {
	PlaceOrder(ctx context.Context, customerID string, lines []domain.RequestedLine) (domain.Order, []domain.OrderDetail, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListCustomerOrders(ctx context.Context, customerID string, limit int) ([]domain.Order, error)
	Cancel(ctx context.Context, orderID, reason string) (domain.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
	Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
}

type Payments interface {
	Create(ctx context.Context, customerID, orderID string, method domain.PaymentMethod, amountMinor int64) (domain.Payment, error)
	Get(ctx context.Context, paymentID string) (domain.Payment, error)
	GetByOrder(ctx context.Context, orderID string) ([]domain.Payment, error)
	UpdateStatus(ctx context.Context, paymentID string, to domain.PaymentStatus) (domain.Payment, error)
	Delete(ctx context.Context, paymentID string) error
}

type Shipments interface {
	Ship(ctx context.Context, orderID, carrier, trackingNumber string) (domain.Shipment, error)
	Get(ctx context.Context, shipmentID string) (domain.Shipment, error)
	GetByOrder(ctx context.Context, orderID string) (domain.Shipment, error)
	UpdateStatus(ctx context.Context, shipmentID string, to domain.ShipmentStatus) (domain.Shipment, error)
}

type Reviews interface {
	Add(ctx context.Context, customerID, productID string, rating int, comment string) (domain.Review, error)
	ListByProduct(ctx context.Context, productID string) ([]domain.Review, error)
}

// TokenVerifier проверяет токен доступа и возвращает его субъекта.
type TokenVerifier interface {
	Verify(token string) (domain.Principal, error)
}

// Config — зависимости роутера. Idempotency и Metrics необязательны.
type Config struct {
	Accounts    Accounts
	Catalog     Catalog
	Carts       Carts
	Orders      Orders
	Payments    Payments
	Shipments   Shipments
	Reviews     Reviews
	Tokens      TokenVerifier
	Idempotency domain.IdempotencyRepository
	// IdempotencyTTL — срок хранения ответа по Idempotency-Key.
	IdempotencyTTL time.Duration
	Metrics        *metrics.HTTPMetrics
	Logger         *log.Entry
}

type handler struct {
	cfg    Config
	logger *log.Entry
	idem   *idempotency
}

// NewRouter собирает маршруты /api.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	ttl := cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultOrderTTL
	}
	h := &handler{cfg: cfg, logger: logger}
	if cfg.Idempotency != nil {
		h.idem = newIdempotency(cfg.Idempotency, ttl, logger)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(instrument(cfg.Metrics))
	r.Use(recoverer(logger))
	r.Use(middleware.Timeout(requestTimeout))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	auth := authenticate(cfg.Tokens)

	// Соседние маршруты используют один параметр {id}: chi не различает
	// параметры с разными именами в одной позиции пути.
	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Get("/{id}", h.getProduct)
			r.Get("/{id}/reviews", h.listReviews)
			r.With(auth, requireAdmin).Post("/", h.createProduct)
			r.With(auth, requireAdmin).Put("/{id}", h.updateProduct)
			r.With(auth, requireAdmin).Delete("/{id}", h.deleteProduct)
		})
		r.With(auth).Post("/reviews", h.addReview)

		r.Group(func(r chi.Router) {
			r.Use(auth)

			r.Route("/cart", func(r chi.Router) {
				r.Post("/", h.addToCart)
				r.With(h.idempotent).Post("/checkout", h.checkout)
				r.Get("/{id}", h.getCart)
				r.Put("/{id}", h.updateCartLine)
				r.Delete("/{id}", h.removeCartLine)
			})

			r.Route("/orders", func(r chi.Router) {
				r.With(h.idempotent).Post("/", h.placeOrder)
				r.Get("/order/{id}", h.getOrder)
				r.Get("/order/{id}/timeline", h.orderTimeline)
				r.Get("/{id}", h.listOrders)
				r.Put("/{id}", h.updateOrderStatus)
				r.Delete("/{id}", h.deleteOrder)
			})

			r.Route("/payments", func(r chi.Router) {
				r.Post("/", h.createPayment)
				r.Get("/{id}", h.listPayments)
				r.With(requireAdmin).Put("/{id}", h.updatePayment)
				r.Delete("/{id}", h.deletePayment)
			})

			r.Route("/order-tracking", func(r chi.Router) {
				r.With(requireAdmin).Post("/", h.ship)
				r.Get("/{id}", h.getTracking)
				r.With(requireAdmin).Put("/{id}", h.updateTracking)
			})
		})
	})

	return r
}
