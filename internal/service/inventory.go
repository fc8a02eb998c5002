package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
	"github.com/Heinvv10/gaztime-sub001/internal/store"
)

func (s *Service) GetStock(ctx context.Context, locationID string) (domain.StockLevelResponse, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleOperator, domain.RoleDriver); err != nil {
		return domain.StockLevelResponse{}, err
	}
	locationID = s.podOrDefault(locationID)
	entries, err := s.repo.GetStock(ctx, locationID)
	if err != nil {
		return domain.StockLevelResponse{}, err
	}
	return domain.StockLevelResponse{LocationID: locationID, Items: entries}, nil
}

// ReceiveStock credits a depot or pod with delivered cylinders.
func (s *Service) ReceiveStock(ctx context.Context, req domain.StockMovementRequest) (domain.StockEntry, error) {
	req, err := s.validateMovement(ctx, req)
	if err != nil {
		return domain.StockEntry{}, err
	}
	qty, err := s.repo.CreditStock(ctx, req.LocationID, req.ProductID, req.Quantity)
	if err != nil {
		return domain.StockEntry{}, err
	}
	s.logAudit(ctx, req.LocationID, "stock.receive", "product", req.ProductID, movementDetail(req, qty))
	return domain.StockEntry{LocationID: req.LocationID, ProductID: req.ProductID, Quantity: qty}, nil
}

// IssueStock writes off cylinders outside a sale (damaged, lost).
func (s *Service) IssueStock(ctx context.Context, req domain.StockMovementRequest) (domain.StockEntry, error) {
	req, err := s.validateMovement(ctx, req)
	if err != nil {
		return domain.StockEntry{}, err
	}
	qty, err := s.repo.DebitStock(ctx, req.LocationID, req.ProductID, req.Quantity)
	if err != nil {
		return domain.StockEntry{}, err
	}
	s.logAudit(ctx, req.LocationID, "stock.issue", "product", req.ProductID, movementDetail(req, qty))
	return domain.StockEntry{LocationID: req.LocationID, ProductID: req.ProductID, Quantity: qty}, nil
}

func (s *Service) validateMovement(ctx context.Context, req domain.StockMovementRequest) (domain.StockMovementRequest, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleOperator); err != nil {
		return req, err
	}
	req.LocationID = s.podOrDefault(req.LocationID)
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.Quantity < 1 {
		return req, fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
	}
	if _, err := s.repo.GetProduct(ctx, req.ProductID); err != nil {
		return req, err
	}
	return req, nil
}

func movementDetail(req domain.StockMovementRequest, balance int) string {
	detail := fmt.Sprintf("qty=%d balance=%d", req.Quantity, balance)
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		detail += " notes=" + notes
	}
	return detail
}
