package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
	"github.com/Heinvv10/gaztime-sub001/internal/phone"
	"github.com/Heinvv10/gaztime-sub001/internal/store"
	"github.com/Heinvv10/gaztime-sub001/internal/xid"
)

const referralCodeLength = 8

// FindCustomerByPhone reports an unknown phone as (nil, false, nil).
func (s *Service) FindCustomerByPhone(ctx context.Context, raw string) (*domain.Customer, bool, error) {
	normalized, err := phone.Normalize(raw, s.countryCode)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	customer, err := s.repo.FindCustomerByPhone(ctx, normalized)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return customer, true, nil
}

func (s *Service) LookupCustomer(ctx context.Context, raw string) (domain.CustomerLookupResponse, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleOperator); err != nil {
		return domain.CustomerLookupResponse{}, err
	}
	customer, found, err := s.FindCustomerByPhone(ctx, raw)
	if err != nil {
		return domain.CustomerLookupResponse{}, err
	}
	normalized, _ := phone.Normalize(raw, s.countryCode)
	return domain.CustomerLookupResponse{Found: found, Phone: normalized, Customer: customer}, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleOperator, domain.RoleCustomer)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleCustomer && actor.Username != id {
		return nil, store.ErrForbidden
	}
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (*domain.Customer, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleOperator); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if strings.TrimSpace(req.Phone) == "" || name == "" {
		return nil, fmt.Errorf("%w: phone and name are required", store.ErrValidation)
	}
	normalized, err := phone.Normalize(req.Phone, s.countryCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	for _, addr := range req.Addresses {
		if strings.TrimSpace(addr.Description) == "" {
			return nil, fmt.Errorf("%w: address description is required", store.ErrValidation)
		}
	}

	draft := domain.Customer{
		ID:            xid.New("cust"),
		Phone:         normalized,
		Name:          name,
		Addresses:     domain.NormalizeAddresses(req.Addresses),
		WalletBalance: decimal.Zero,
		Status:        domain.CustomerStatusActive,
		Segments:      []string{},
		CreatedAt:     s.now(),
	}
	customer, err := withFreshCode(s, "", referralCodeLength, func(code string) (*domain.Customer, error) {
		draft.ReferralCode = code
		return s.repo.CreateCustomer(ctx, draft)
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, s.defaultPodID, "customer.create", "customer", customer.ID, "phone="+customer.Phone)
	s.logger.Info("customer created", "customer_id", customer.ID)
	return customer, nil
}

func (s *Service) AddCustomerAddress(ctx context.Context, customerID string, addr domain.Address) (*domain.Customer, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleOperator, domain.RoleCustomer)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleCustomer && actor.Username != customerID {
		return nil, store.ErrForbidden
	}
	addr.Label = strings.TrimSpace(addr.Label)
	addr.Description = strings.TrimSpace(addr.Description)
	if addr.Description == "" {
		return nil, fmt.Errorf("%w: address description is required", store.ErrValidation)
	}

	customer, err := s.repo.AddCustomerAddress(ctx, customerID, addr)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, s.defaultPodID, "customer.address_add", "customer", customerID, addr.Label)
	return customer, nil
}

func (s *Service) ListCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleOperator); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return s.repo.ListCustomers(ctx, strings.TrimSpace(query), limit)
}
