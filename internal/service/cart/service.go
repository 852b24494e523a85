// Package cart реализует корзину покупателя и оформление заказа из неё.
package cart

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// OrderPlacer оформляет заказ из запрошенных строк.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, customerID string, lines []domain.RequestedLine) (domain.Order, []domain.OrderDetail, error)
}

// Service — операции над корзиной.
type Service struct {
	carts   domain.CartRepository
	catalog domain.CatalogStore
	placer  OrderPlacer
	logger  *log.Entry
}

// NewService создаёт сервис корзины.
func NewService(carts domain.CartRepository, catalog domain.CatalogStore, placer OrderPlacer, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "cart")
	}
	return &Service{carts: carts, catalog: catalog, placer: placer, logger: logger}
}

// Get возвращает строки корзины с названием и текущей ценой товара.
// Строки удалённых из каталога товаров пропускаются.
func (s *Service) Get(ctx context.Context, customerID string) ([]domain.CartItemView, error) {
	lines, err := s.carts.ListLines(ctx, customerID)
	if err != nil {
		return nil, err
	}

	items := make([]domain.CartItemView, 0, len(lines))
	for _, line := range lines {
		p, err := s.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				s.logger.WithFields(log.Fields{
					"customer_id": customerID,
					"product_id":  line.ProductID,
				}).Warn("cart line references missing product")
				continue
			}
			return nil, err
		}
		items = append(items, domain.CartItemView{
			CartLine:    line,
			ProductName: p.Name,
			PriceMinor:  p.PriceMinor,
		})
	}
	return items, nil
}

// Add кладёт товар в корзину или увеличивает количество.
func (s *Service) Add(ctx context.Context, customerID, productID string, qty int) (domain.CartLine, error) {
	if strings.TrimSpace(productID) == "" {
		return domain.CartLine{}, domain.NewInvalidArgument("product_id", "is required")
	}
	if qty < 1 {
		return domain.CartLine{}, domain.NewInvalidArgument("quantity", "must be at least 1")
	}
	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return domain.CartLine{}, err
	}
	return s.carts.AddLine(ctx, customerID, productID, qty)
}

func (s *Service) UpdateQuantity(ctx context.Context, customerID, lineID string, qty int) (domain.CartLine, error) {
	if qty < 1 {
		return domain.CartLine{}, domain.NewInvalidArgument("quantity", "must be at least 1")
	}
	return s.carts.UpdateLine(ctx, customerID, lineID, qty)
}

func (s *Service) Remove(ctx context.Context, customerID, lineID string) error {
	return s.carts.RemoveLine(ctx, customerID, lineID)
}

func (s *Service) Clear(ctx context.Context, customerID string) error {
	return s.carts.Clear(ctx, customerID)
}

// Checkout оформляет заказ из корзины и очищает её после успеха.
// Ошибка очистки не отменяет оформленный заказ.
func (s *Service) Checkout(ctx context.Context, customerID string) (domain.Order, error) {
	lines, err := s.carts.ListLines(ctx, customerID)
	if err != nil {
		return domain.Order{}, err
	}
	if len(lines) == 0 {
		return domain.Order{}, domain.NewInvalidArgument("cart", "is empty")
	}

	requested := make([]domain.RequestedLine, 0, len(lines))
	for _, line := range lines {
		requested = append(requested, domain.RequestedLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	order, _, err := s.placer.PlaceOrder(ctx, customerID, requested)
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.carts.Clear(ctx, customerID); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"customer_id": customerID,
			"order_id":    order.ID,
		}).Warn("cart not cleared after checkout")
	}
	return order, nil
}
