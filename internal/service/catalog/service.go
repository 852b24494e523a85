// Package catalog управляет товарами каталога.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Service — CRUD каталога с валидацией полей.
type Service struct {
	products domain.ProductRepository
	logger   *log.Entry
	now      func() time.Time
}

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{products: products, logger: logger, now: time.Now}
}

// List возвращает товары по фильтру. Limit ограничен сверху.
func (s *Service) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	if filter.Offset < 0 {
		return nil, domain.NewInvalidArgument("offset", "must be non-negative")
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}
	filter.Category = strings.TrimSpace(filter.Category)
	return s.products.ListProducts(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id string) (domain.Product, error) {
	return s.products.GetProduct(ctx, id)
}

// Create сохраняет новый товар с новым идентификатором.
func (s *Service) Create(ctx context.Context, p domain.Product) (domain.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}

	now := s.now().UTC()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := s.products.CreateProduct(ctx, p); err != nil {
		return domain.Product{}, err
	}

	s.logger.WithFields(log.Fields{"product_id": p.ID, "name": p.Name}).Info("product created")
	return p, nil
}

// Update перезаписывает изменяемые поля товара id.
func (s *Service) Update(ctx context.Context, id string, p domain.Product) (domain.Product, error) {
	current, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	p.ID = id
	p.Name = strings.TrimSpace(p.Name)
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = s.now().UTC()
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}
	if err := s.products.UpdateProduct(ctx, p); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.products.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("product_id", id).Info("product deleted")
	return nil
}
