package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/money"
)

// Суммы в JSON передаются десятичными строками ("12.50").

type registerRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type customerResponse struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	Role      string           `json:"role"`
	Customer  customerResponse `json:"customer"`
}

type productRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Stock       int    `json:"stock"`
	Category    string `json:"category"`
	ImageURL    string `json:"image_url"`
}

type productResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       string    `json:"price"`
	Stock       int       `json:"stock"`
	Category    string    `json:"category,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type reviewRequest struct {
	ProductID string `json:"product_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

type reviewResponse struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	ProductID  string    `json:"product_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type cartAddRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type cartUpdateRequest struct {
	Quantity int `json:"quantity"`
}

type cartLineResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type cartItemResponse struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Price       string `json:"price"`
	Quantity    int    `json:"quantity"`
	Subtotal    string `json:"subtotal"`
}

type cartResponse struct {
	Items []cartItemResponse `json:"items"`
	Total string             `json:"total"`
}

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type placeOrderRequest struct {
	Items []orderItemRequest `json:"items"`
}

type orderStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type orderDetailResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

type orderResponse struct {
	ID         string                `json:"id"`
	CustomerID string                `json:"customer_id"`
	Status     string                `json:"status"`
	Currency   string                `json:"currency"`
	Total      string                `json:"total"`
	Version    int64                 `json:"version"`
	Details    []orderDetailResponse `json:"details"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

type timelineEventResponse struct {
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type paymentRequest struct {
	OrderID string `json:"order_id"`
	Method  string `json:"method"`
	Amount  string `json:"amount"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type paymentResponse struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Method    string    `json:"method"`
	Status    string    `json:"status"`
	Amount    string    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type shipRequest struct {
	OrderID        string `json:"order_id"`
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

type shipmentResponse struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"order_id"`
	Carrier        string    `json:"carrier"`
	TrackingNumber string    `json:"tracking_number"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toCustomerResponse(c domain.Customer) customerResponse {
	return customerResponse{
		ID:        c.ID,
		FullName:  c.FullName,
		Email:     c.Email,
		Phone:     c.Phone,
		Address:   c.Address,
		CreatedAt: c.CreatedAt,
	}
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       money.Format(p.PriceMinor),
		Stock:       p.Stock,
		Category:    p.Category,
		ImageURL:    p.ImageURL,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (r productRequest) toDomain() (domain.Product, error) {
	price, err := money.Parse(r.Price)
	if err != nil {
		return domain.Product{}, domain.NewInvalidArgument("price", err.Error())
	}
	return domain.Product{
		Name:        r.Name,
		Description: r.Description,
		PriceMinor:  price,
		Stock:       r.Stock,
		Category:    r.Category,
		ImageURL:    r.ImageURL,
	}, nil
}

func toReviewResponse(r domain.Review) reviewResponse {
	return reviewResponse{
		ID:         r.ID,
		CustomerID: r.CustomerID,
		ProductID:  r.ProductID,
		Rating:     r.Rating,
		Comment:    r.Comment,
		CreatedAt:  r.CreatedAt,
	}
}

func toCartResponse(items []domain.CartItemView) cartResponse {
	resp := cartResponse{Items: make([]cartItemResponse, 0, len(items))}
	var total int64
	for _, it := range items {
		subtotal := it.PriceMinor * int64(it.Quantity)
		total += subtotal
		resp.Items = append(resp.Items, cartItemResponse{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Price:       money.Format(it.PriceMinor),
			Quantity:    it.Quantity,
			Subtotal:    money.Format(subtotal),
		})
	}
	resp.Total = money.Format(total)
	return resp
}

func toOrderResponse(o domain.Order) orderResponse {
	resp := orderResponse{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		Status:     string(o.Status),
		Currency:   o.Currency,
		Total:      money.Format(o.TotalMinor),
		Version:    o.Version,
		Details:    make([]orderDetailResponse, 0, len(o.Details)),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
	for _, d := range o.Details {
		resp.Details = append(resp.Details, orderDetailResponse{
			ID:        d.ID,
			ProductID: d.ProductID,
			Quantity:  d.Quantity,
			UnitPrice: money.Format(d.UnitPriceMinor),
			Subtotal:  money.Format(d.SubtotalMinor),
		})
	}
	return resp
}

func toPaymentResponse(p domain.Payment) paymentResponse {
	return paymentResponse{
		ID:        p.ID,
		OrderID:   p.OrderID,
		Method:    string(p.Method),
		Status:    string(p.Status),
		Amount:    money.Format(p.AmountMinor),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toShipmentResponse(s domain.Shipment) shipmentResponse {
	return shipmentResponse{
		ID:             s.ID,
		OrderID:        s.OrderID,
		Carrier:        s.Carrier,
		TrackingNumber: s.TrackingNumber,
		Status:         string(s.Status),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}
