package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
	"github.com/Heinvv10/gaztime-sub001/internal/store"
)

var driverStatuses = map[domain.OrderStatus]bool{
	domain.StatusInTransit: true,
	domain.StatusArriving:  true,
	domain.StatusDelivered: true,
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleOperator, domain.RoleDriver, domain.RoleCustomer)
	if err != nil {
		return nil, err
	}
	order, err := s.repo.GetOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleCustomer && order.CustomerID != actor.Username {
		return nil, store.ErrNotFound
	}
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleOperator, domain.RoleDriver, domain.RoleCustomer)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleCustomer {
		filter.CustomerID = actor.Username
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", store.ErrValidation, filter.Status)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return nil, fmt.Errorf("%w: from must be before to", store.ErrValidation)
	}
	if filter.Limit < 1 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.ListOrders(ctx, filter)
}

// UpdateOrderStatus applies one state-machine step. Cancelling restocks
// and refunds inside the store operation.
func (s *Service) UpdateOrderStatus(ctx context.Context, id string, req domain.OrderStatusUpdateRequest) (*domain.Order, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleOperator, domain.RoleDriver)
	if err != nil {
		return nil, err
	}
	if !req.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", store.ErrValidation, req.Status)
	}
	if actor.Role == domain.RoleDriver && !driverStatuses[req.Status] {
		return nil, fmt.Errorf("%w: drivers cannot set %s", store.ErrForbidden, req.Status)
	}

	order, err := s.repo.TransitionOrder(ctx, strings.TrimSpace(id), req.Status, s.now())
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.OrderEventStatusChanged, *order)
	detail := "status=" + string(order.Status)
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		detail += " reason=" + reason
	}
	s.logAudit(ctx, order.LocationID, "order.status", "order", order.ID, detail)
	s.logger.Info("order status changed", "order_id", order.ID, "status", order.Status, "actor", actor.Username)
	return order, nil
}

func (s *Service) UpdatePaymentStatus(ctx context.Context, id string, req domain.PaymentStatusUpdateRequest) (*domain.Order, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleOperator); err != nil {
		return nil, err
	}
	if !req.PaymentStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", store.ErrValidation, req.PaymentStatus)
	}

	order, err := s.repo.UpdatePaymentStatus(ctx, strings.TrimSpace(id), req.PaymentStatus, s.now())
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.OrderEventPaymentChange, *order)
	detail := "payment_status=" + string(order.PaymentStatus)
	if ref := strings.TrimSpace(req.Reference); ref != "" {
		detail += " reference=" + ref
	}
	s.logAudit(ctx, order.LocationID, "order.payment", "order", order.ID, detail)
	return order, nil
}
