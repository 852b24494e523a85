package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/account"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/review"
	"github.com/vladislavdragonenkov/storefront/internal/service/tracking"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
)

type RouterTestSuite struct {
	suite.Suite

	store  *memory.Store
	server *httptest.Server
	tokens *auth.TokenManager
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}

func (s *RouterTestSuite) SetupTest() {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	entry := log.NewEntry(logger)

	tokens, err := auth.NewTokenManager("test-secret", time.Hour)
	s.Require().NoError(err)
	s.tokens = tokens

	s.store = memory.NewStore()
	engine := ordering.NewEngine(s.store.Products, s.store.Customers, s.store.Orders,
		ordering.WithTransactor(s.store),
		ordering.WithOutbox(s.store.Outbox),
		ordering.WithTimeline(s.store.Timeline),
		ordering.WithCurrency("usd"),
		ordering.WithMetrics(metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())),
		ordering.WithLogger(entry),
	)

	accounts := account.NewService(s.store.Customers, auth.NewPasswordHasher(bcrypt.MinCost), tokens, entry,
		account.WithAdminEmails("admin@example.com"))

	router := httpapi.NewRouter(httpapi.Config{
		Accounts:    accounts,
		Catalog:     catalog.NewService(s.store.Products, entry),
		Carts:       cart.NewService(s.store.Carts, s.store.Products, engine, entry),
		Orders:      engine,
		Payments:    payment.NewRecorder(s.store.Payments, engine, s.store, entry),
		Shipments:   tracking.NewTracker(s.store.Shipments, engine, s.store, entry),
		Reviews:     review.NewService(s.store.Reviews, s.store.Products, entry),
		Tokens:      tokens,
		Idempotency: s.store.Idempotency,
		Metrics:     metrics.NewHTTPMetrics(prometheus.NewRegistry()),
		Logger:      entry,
	})
	s.server = httptest.NewServer(router)
}

func (s *RouterTestSuite) TearDownTest() {
	s.server.Close()
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) decode(t *testing.T, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.body, dst), "body: %s", r.body)
}

func (s *RouterTestSuite) do(method, path, token string, body any, headers ...string) response {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	s.Require().NoError(err)
	return response{status: resp.StatusCode, header: resp.Header, body: buf.Bytes()}
}

// registerAndLogin возвращает id клиента и его токен.
func (s *RouterTestSuite) registerAndLogin(email string) (string, string) {
	resp := s.do(http.MethodPost, "/api/register", "", map[string]string{
		"full_name": "Test Customer",
		"email":     email,
		"password":  "secret-password",
	})
	s.Require().Equal(http.StatusCreated, resp.status, string(resp.body))

	resp = s.do(http.MethodPost, "/api/login", "", map[string]string{
		"email":    email,
		"password": "secret-password",
	})
	s.Require().Equal(http.StatusOK, resp.status, string(resp.body))

	var session struct {
		Token    string `json:"token"`
		Customer struct {
			ID string `json:"id"`
		} `json:"customer"`
	}
	resp.decode(s.T(), &session)
	return session.Customer.ID, session.Token
}

func (s *RouterTestSuite) seedProduct(id string, priceMinor int64, stock int) {
	now := time.Now().UTC()
	s.Require().NoError(s.store.Products.CreateProduct(context.Background(), domain.Product{
		ID: id, Name: "Product " + id, PriceMinor: priceMinor, Stock: stock, CreatedAt: now, UpdatedAt: now,
	}))
}

func (s *RouterTestSuite) placeOrder(token string, items ...map[string]any) map[string]any {
	resp := s.do(http.MethodPost, "/api/orders", token, map[string]any{"items": items})
	s.Require().Equal(http.StatusCreated, resp.status, string(resp.body))
	var order map[string]any
	resp.decode(s.T(), &order)
	return order
}

func (s *RouterTestSuite) TestRegisterDuplicateEmail() {
	s.registerAndLogin("dup@example.com")

	resp := s.do(http.MethodPost, "/api/register", "", map[string]string{
		"full_name": "Other",
		"email":     "DUP@example.com",
		"password":  "secret-password",
	})
	s.Equal(http.StatusConflict, resp.status)
}

func (s *RouterTestSuite) TestLoginWrongPassword() {
	s.registerAndLogin("login@example.com")

	resp := s.do(http.MethodPost, "/api/login", "", map[string]string{
		"email":    "login@example.com",
		"password": "wrong-password",
	})
	s.Equal(http.StatusUnauthorized, resp.status)
}

func (s *RouterTestSuite) TestProtectedRoutesRequireToken() {
	resp := s.do(http.MethodPost, "/api/orders", "", map[string]any{"items": []any{}})
	s.Equal(http.StatusUnauthorized, resp.status)

	resp = s.do(http.MethodPost, "/api/orders", "garbage", map[string]any{"items": []any{}})
	s.Equal(http.StatusUnauthorized, resp.status)

	var body map[string]any
	resp.decode(s.T(), &body)
	s.Equal("invalid or expired token", body["message"])
}

func (s *RouterTestSuite) TestProductCRUDUsesDecimalPrices() {
	_, token := s.registerAndLogin("admin@example.com")

	resp := s.do(http.MethodPost, "/api/products", token, map[string]any{
		"name":     "Keyboard",
		"price":    "49.90",
		"stock":    3,
		"category": "peripherals",
	})
	s.Require().Equal(http.StatusCreated, resp.status, string(resp.body))
	var created map[string]any
	resp.decode(s.T(), &created)
	s.Equal("49.90", created["price"])
	id := created["id"].(string)

	resp = s.do(http.MethodGet, "/api/products/"+id, "", nil)
	s.Require().Equal(http.StatusOK, resp.status)

	resp = s.do(http.MethodGet, "/api/products?category=peripherals&limit=10", "", nil)
	s.Require().Equal(http.StatusOK, resp.status)
	var list []map[string]any
	resp.decode(s.T(), &list)
	s.Len(list, 1)

	resp = s.do(http.MethodGet, "/api/products?limit=abc", "", nil)
	s.Equal(http.StatusBadRequest, resp.status)

	resp = s.do(http.MethodPost, "/api/products", token, map[string]any{"name": "Bad", "price": "1.005", "stock": 1})
	s.Equal(http.StatusBadRequest, resp.status)

	resp = s.do(http.MethodDelete, "/api/products/"+id, token, nil)
	s.Equal(http.StatusNoContent, resp.status)

	resp = s.do(http.MethodGet, "/api/products/"+id, "", nil)
	s.Equal(http.StatusNotFound, resp.status)
}

func (s *RouterTestSuite) TestUnknownFieldsRejected() {
	_, token := s.registerAndLogin("strict@example.com")

	resp := s.do(http.MethodPost, "/api/orders", token, `{"items":[{"product_id":"p1","quantity":1,"price":"0.01"}]}`)
	s.Equal(http.StatusBadRequest, resp.status)

	resp = s.do(http.MethodPost, "/api/orders", token, "")
	s.Equal(http.StatusBadRequest, resp.status)
}

func (s *RouterTestSuite) TestPlaceOrderLifecycle() {
	s.seedProduct("p1", 1000, 10)
	s.seedProduct("p2", 500, 1)
	customerID, token := s.registerAndLogin("buyer@example.com")

	order := s.placeOrder(token,
		map[string]any{"product_id": "p1", "quantity": 2},
		map[string]any{"product_id": "p2", "quantity": 1},
	)
	s.Equal("pending", order["status"])
	s.Equal("25.00", order["total"])
	s.Len(order["details"], 2)
	orderID := order["id"].(string)

	p2, err := s.store.Products.GetProduct(context.Background(), "p2")
	s.Require().NoError(err)
	s.Equal(0, p2.Stock)

	resp := s.do(http.MethodGet, "/api/orders/"+customerID, token, nil)
	s.Require().Equal(http.StatusOK, resp.status)
	var orders []map[string]any
	resp.decode(s.T(), &orders)
	s.Len(orders, 1)

	resp = s.do(http.MethodPut, "/api/orders/"+orderID, token, map[string]string{"status": "delivered"})
	s.Equal(http.StatusBadRequest, resp.status)

	resp = s.do(http.MethodPut, "/api/orders/"+orderID, token, map[string]string{"status": "cancelled", "reason": "changed mind"})
	s.Require().Equal(http.StatusOK, resp.status, string(resp.body))

	resp = s.do(http.MethodGet, "/api/orders/order/"+orderID+"/timeline", token, nil)
	s.Require().Equal(http.StatusOK, resp.status)
	var events []map[string]any
	resp.decode(s.T(), &events)
	s.Require().Len(events, 2)
	s.Equal("pending", events[0]["status"])
	s.Equal("cancelled", events[1]["status"])
	s.Equal("changed mind", events[1]["reason"])

	p2, err = s.store.Products.GetProduct(context.Background(), "p2")
	s.Require().NoError(err)
	s.Equal(1, p2.Stock)
}

func (s *RouterTestSuite) TestPlaceOrderErrors() {
	s.seedProduct("p1", 1000, 1)
	_, token := s.registerAndLogin("errors@example.com")

	cases := []struct {
		name  string
		items []map[string]any
		want  int
	}{
		{name: "empty", items: []map[string]any{}, want: http.StatusBadRequest},
		{name: "zero quantity", items: []map[string]any{{"product_id": "p1", "quantity": 0}}, want: http.StatusBadRequest},
		{name: "unknown product", items: []map[string]any{{"product_id": "nope", "quantity": 1}}, want: http.StatusNotFound},
		{name: "insufficient stock", items: []map[string]any{{"product_id": "p1", "quantity": 2}}, want: http.StatusConflict},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			resp := s.do(http.MethodPost, "/api/orders", token, map[string]any{"items": tc.items})
			s.Equal(tc.want, resp.status, string(resp.body))
		})
	}
}

func (s *RouterTestSuite) TestForeignOrderForbidden() {
	s.seedProduct("p1", 1000, 10)
	_, ownerToken := s.registerAndLogin("owner@example.com")
	otherID, otherToken := s.registerAndLogin("other@example.com")

	order := s.placeOrder(ownerToken, map[string]any{"product_id": "p1", "quantity": 1})
	orderID := order["id"].(string)

	resp := s.do(http.MethodGet, "/api/orders/order/"+orderID, otherToken, nil)
	s.Equal(http.StatusForbidden, resp.status)

	resp = s.do(http.MethodDelete, "/api/orders/"+orderID, otherToken, nil)
	s.Equal(http.StatusForbidden, resp.status)

	resp = s.do(http.MethodGet, "/api/cart/"+otherID, ownerToken, nil)
	s.Equal(http.StatusForbidden, resp.status)
}

func (s *RouterTestSuite) TestIdempotentPlaceOrder() {
	s.seedProduct("p1", 1000, 10)
	_, token := s.registerAndLogin("idem@example.com")
	body := map[string]any{"items": []map[string]any{{"product_id": "p1", "quantity": 1}}}

	first := s.do(http.MethodPost, "/api/orders", token, body, "Idempotency-Key", "order-1")
	s.Require().Equal(http.StatusCreated, first.status, string(first.body))

	second := s.do(http.MethodPost, "/api/orders", token, body, "Idempotency-Key", "order-1")
	s.Require().Equal(http.StatusCreated, second.status)
	s.Equal("true", second.header.Get("Idempotent-Replayed"))
	s.JSONEq(string(first.body), string(second.body))

	p1, err := s.store.Products.GetProduct(context.Background(), "p1")
	s.Require().NoError(err)
	s.Equal(9, p1.Stock)

	other := map[string]any{"items": []map[string]any{{"product_id": "p1", "quantity": 2}}}
	resp := s.do(http.MethodPost, "/api/orders", token, other, "Idempotency-Key", "order-1")
	s.Equal(http.StatusConflict, resp.status)
}

func (s *RouterTestSuite) TestCartCheckout() {
	s.seedProduct("p1", 1250, 5)
	customerID, token := s.registerAndLogin("cart@example.com")

	resp := s.do(http.MethodPost, "/api/cart", token, map[string]any{"product_id": "p1", "quantity": 2})
	s.Require().Equal(http.StatusCreated, resp.status, string(resp.body))

	resp = s.do(http.MethodGet, "/api/cart/"+customerID, token, nil)
	s.Require().Equal(http.StatusOK, resp.status)
	var c struct {
		Items []map[string]any `json:"items"`
		Total string           `json:"total"`
	}
	resp.decode(s.T(), &c)
	s.Len(c.Items, 1)
	s.Equal("25.00", c.Total)

	resp = s.do(http.MethodPost, "/api/cart/checkout", token, nil)
	s.Require().Equal(http.StatusCreated, resp.status, string(resp.body))

	resp = s.do(http.MethodGet, "/api/cart/"+customerID, token, nil)
	s.Require().Equal(http.StatusOK, resp.status)
	resp.decode(s.T(), &c)
	s.Empty(c.Items)

	resp = s.do(http.MethodPost, "/api/cart/checkout", token, nil)
	s.Equal(http.StatusBadRequest, resp.status)
}

func (s *RouterTestSuite) TestPaymentAndShipmentFlow() {
	s.seedProduct("p1", 1000, 10)
	_, token := s.registerAndLogin("flow@example.com")
	order := s.placeOrder(token, map[string]any{"product_id": "p1", "quantity": 2})
	orderID := order["id"].(string)

	resp := s.do(http.MethodPost, "/api/payments", token, map[string]string{
		"order_id": orderID, "method": "card", "amount": "19.99",
	})
	s.Equal(http.StatusBadRequest, resp.status)

	resp = s.do(http.MethodPost, "/api/payments", token, map[string]string{
		"order_id": orderID, "method": "card", "amount": "20.00",
	})
	s.Require().Equal(http.StatusCreated, resp.status, string(resp.body))
	var p map[string]any
	resp.decode(s.T(), &p)
	paymentID := p["id"].(string)

	resp = s.do(http.MethodPut, "/api/payments/"+paymentID, token, map[string]string{"status": "completed"})
	s.Equal(http.StatusForbidden, resp.status)

	_, adminToken := s.registerAndLogin("admin@example.com")
	resp = s.do(http.MethodPut, "/api/payments/"+paymentID, adminToken, map[string]string{"status": "completed"})
	s.Require().Equal(http.StatusOK, resp.status, string(resp.body))

	resp = s.do(http.MethodGet, "/api/orders/order/"+orderID, token, nil)
	s.Require().Equal(http.StatusOK, resp.status)
	resp.decode(s.T(), &order)
	s.Equal("paid", order["status"])

	shipBody := map[string]string{"order_id": orderID, "carrier": "DHL", "tracking_number": "TRK-1"}
	resp = s.do(http.MethodPost, "/api/order-tracking", token, shipBody)
	s.Equal(http.StatusForbidden, resp.status)

	resp = s.do(http.MethodPost, "/api/order-tracking", adminToken, shipBody)
	s.Require().Equal(http.StatusCreated, resp.status, string(resp.body))
	var sh map[string]any
	resp.decode(s.T(), &sh)
	s.Equal("preparing", sh["status"])
	shipmentID := sh["id"].(string)

	resp = s.do(http.MethodGet, "/api/order-tracking/"+orderID, token, nil)
	s.Require().Equal(http.StatusOK, resp.status, string(resp.body))

	resp = s.do(http.MethodPut, "/api/order-tracking/"+shipmentID, adminToken, map[string]string{"status": "in_transit"})
	s.Require().Equal(http.StatusOK, resp.status, string(resp.body))

	resp = s.do(http.MethodGet, "/api/orders/order/"+orderID, token, nil)
	resp.decode(s.T(), &order)
	s.Equal("shipped", order["status"])

	resp = s.do(http.MethodPut, "/api/order-tracking/"+shipmentID, adminToken, map[string]string{"status": "delivered"})
	s.Require().Equal(http.StatusOK, resp.status, string(resp.body))

	resp = s.do(http.MethodGet, "/api/orders/order/"+orderID, token, nil)
	resp.decode(s.T(), &order)
	s.Equal("delivered", order["status"])
}

func (s *RouterTestSuite) TestOrderStatusEndpointOnlyCancels() {
	s.seedProduct("p1", 1000, 10)
	_, token := s.registerAndLogin("status@example.com")
	_, adminToken := s.registerAndLogin("admin@example.com")
	order := s.placeOrder(token, map[string]any{"product_id": "p1", "quantity": 1})
	orderID := order["id"].(string)

	for _, status := range []string{"paid", "shipped", "delivered", "pending", "bogus"} {
		resp := s.do(http.MethodPut, "/api/orders/"+orderID, token, map[string]string{"status": status})
		s.Equal(http.StatusBadRequest, resp.status, "status %s: %s", status, resp.body)
	}
	resp := s.do(http.MethodGet, "/api/orders/order/"+orderID, token, nil)
	s.Require().Equal(http.StatusOK, resp.status)
	resp.decode(s.T(), &order)
	s.Equal("pending", order["status"])

	resp = s.do(http.MethodPost, "/api/payments", token, map[string]string{
		"order_id": orderID, "method": "card", "amount": "10.00",
	})
	s.Require().Equal(http.StatusCreated, resp.status, string(resp.body))
	var p map[string]any
	resp.decode(s.T(), &p)
	resp = s.do(http.MethodPut, "/api/payments/"+p["id"].(string), adminToken, map[string]string{"status": "completed"})
	s.Require().Equal(http.StatusOK, resp.status, string(resp.body))

	resp = s.do(http.MethodPut, "/api/orders/"+orderID, token, map[string]string{"status": "cancelled"})
	s.Equal(http.StatusConflict, resp.status, string(resp.body))

	resp = s.do(http.MethodGet, "/api/payments/"+orderID, token, nil)
	s.Require().Equal(http.StatusOK, resp.status)
	var payments []map[string]any
	resp.decode(s.T(), &payments)
	s.Require().Len(payments, 1)
	s.Equal("completed", payments[0]["status"])

	resp = s.do(http.MethodPut, "/api/payments/"+p["id"].(string), adminToken, map[string]string{"status": "refunded"})
	s.Require().Equal(http.StatusOK, resp.status, string(resp.body))
	resp = s.do(http.MethodGet, "/api/orders/order/"+orderID, token, nil)
	resp.decode(s.T(), &order)
	s.Equal("cancelled", order["status"])
}

func (s *RouterTestSuite) TestProductWritesRequireAdmin() {
	s.seedProduct("p1", 1000, 10)
	_, token := s.registerAndLogin("shopper@example.com")

	resp := s.do(http.MethodPost, "/api/products", token, map[string]any{"name": "Lamp", "price": "9.99", "stock": 1})
	s.Equal(http.StatusForbidden, resp.status)
	s.Contains(string(resp.body), "admin role required")

	resp = s.do(http.MethodPut, "/api/products/p1", token, map[string]any{"name": "Cheap", "price": "0.01", "stock": 1})
	s.Equal(http.StatusForbidden, resp.status)

	resp = s.do(http.MethodDelete, "/api/products/p1", token, nil)
	s.Equal(http.StatusForbidden, resp.status)

	p1, err := s.store.Products.GetProduct(context.Background(), "p1")
	s.Require().NoError(err)
	s.Equal(int64(1000), p1.PriceMinor)
}

func (s *RouterTestSuite) TestReviews() {
	s.seedProduct("p1", 1000, 10)
	_, token := s.registerAndLogin("review@example.com")

	resp := s.do(http.MethodPost, "/api/reviews", token, map[string]any{"product_id": "p1", "rating": 6})
	s.Equal(http.StatusBadRequest, resp.status)

	resp = s.do(http.MethodPost, "/api/reviews", token, map[string]any{"product_id": "p1", "rating": 5, "comment": "great"})
	s.Require().Equal(http.StatusCreated, resp.status, string(resp.body))

	resp = s.do(http.MethodGet, "/api/products/p1/reviews", "", nil)
	s.Require().Equal(http.StatusOK, resp.status)
	var reviews []map[string]any
	resp.decode(s.T(), &reviews)
	s.Len(reviews, 1)
}

func (s *RouterTestSuite) TestUnknownRoute() {
	resp := s.do(http.MethodGet, "/api/unknown", "", nil)
	s.Equal(http.StatusNotFound, resp.status)
	s.Contains(string(resp.body), "route not found")
}
