package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
	"github.com/Heinvv10/gaztime-sub001/internal/store"
	"github.com/Heinvv10/gaztime-sub001/internal/xid"
)

const (
	catalogKeyActive = "active"
	catalogKeyAll    = "all"
)

// ListProducts serves from the catalog cache; concurrent misses share one
// repository read.
func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	key := catalogKeyActive
	if includeInactive {
		key = catalogKeyAll
	}

	if products, ok, err := s.catalogCache.GetProducts(ctx, key); err != nil {
		s.logger.Warn("catalog cache read failed", "key", key, "error", err)
	} else if ok {
		return products, nil
	}

	// The fill is shared, so one caller's cancellation must not fail the rest.
	fillCtx := context.WithoutCancel(ctx)
	value, err, _ := s.catalogFill.Do(key, func() (any, error) {
		products, err := s.repo.ListProducts(fillCtx, includeInactive)
		if err != nil {
			return nil, err
		}
		if err := s.catalogCache.SetProducts(fillCtx, key, products, s.catalogTTL); err != nil {
			s.logger.Warn("catalog cache write failed", "key", key, "error", err)
		}
		return products, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]domain.Product), nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, strings.TrimSpace(id))
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	switch {
	case req.SKU == "" || req.Name == "":
		return nil, fmt.Errorf("%w: sku and name are required", store.ErrValidation)
	case req.UnitPrice.IsNegative():
		return nil, fmt.Errorf("%w: unit_price must be >= 0", store.ErrValidation)
	case !req.SizeKg.IsPositive():
		return nil, fmt.Errorf("%w: size_kg must be > 0", store.ErrValidation)
	case req.InitialStock < 0:
		return nil, fmt.Errorf("%w: initial_stock must be >= 0", store.ErrValidation)
	}

	locationID := s.podOrDefault(req.LocationID)
	product, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:        xid.New("prod"),
		SKU:       req.SKU,
		Name:      req.Name,
		SizeKg:    req.SizeKg,
		UnitPrice: req.UnitPrice,
		Active:    true,
	}, locationID, req.InitialStock)
	if err != nil {
		return nil, err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, locationID, "product.create", "product", product.ID,
		fmt.Sprintf("sku=%s price=%s stock=%d", product.SKU, product.UnitPrice.StringFixed(2), req.InitialStock))
	return product, nil
}

// UpdateProduct records a price-history row whenever the price changes.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	current, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}

	updated := *current
	var history *domain.ProductPriceHistory
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.UnitPrice != nil {
		if req.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: unit_price must be >= 0", store.ErrValidation)
		}
		if !req.UnitPrice.Equal(current.UnitPrice) {
			history = &domain.ProductPriceHistory{
				ID:        xid.New("price"),
				ProductID: current.ID,
				OldPrice:  current.UnitPrice,
				NewPrice:  *req.UnitPrice,
				ChangedBy: actor.Username,
				ChangedAt: s.now(),
			}
		}
		updated.UnitPrice = *req.UnitPrice
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	product, err := s.repo.UpdateProduct(ctx, updated, history)
	if err != nil {
		return nil, err
	}

	s.invalidateCatalog(ctx)
	detail := fmt.Sprintf("active=%t", product.Active)
	if history != nil {
		detail = fmt.Sprintf("price %s -> %s, %s", history.OldPrice.StringFixed(2), history.NewPrice.StringFixed(2), detail)
	}
	s.logAudit(ctx, s.defaultPodID, "product.update", "product", product.ID, detail)
	return product, nil
}

func (s *Service) ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleOperator); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListPriceHistory(ctx, productID, limit)
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if err := s.catalogCache.Invalidate(ctx); err != nil {
		s.logger.Warn("catalog cache invalidate failed", "error", err)
	}
}
