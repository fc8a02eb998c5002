package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Heinvv10/gaztime-sub001/internal/cart"
	"github.com/Heinvv10/gaztime-sub001/internal/domain"
	"github.com/Heinvv10/gaztime-sub001/internal/store"
	"github.com/Heinvv10/gaztime-sub001/internal/xid"
)

const orderReferenceLength = 6

// Checkout commits c as an order. The stock debit, the order row and any
// wallet debit land in one store operation; c is cleared only on success.
func (s *Service) Checkout(ctx context.Context, c *cart.Cart, opts domain.CheckoutOptions) (domain.CheckoutResponse, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleOperator, domain.RoleCustomer)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if c == nil || c.IsEmpty() {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: cart is empty", store.ErrInvalidRequest)
	}
	if opts.PaymentMethod == "" {
		opts.PaymentMethod = c.PaymentMethod
	}
	if opts.PaymentMethod == "" {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: payment method is required", store.ErrInvalidRequest)
	}
	if !opts.PaymentMethod.Valid() {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: unknown payment method %q", store.ErrValidation, opts.PaymentMethod)
	}

	opts.Channel = channelFor(actor, opts.Channel)
	if !opts.Channel.Valid() {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: unknown channel %q", store.ErrValidation, opts.Channel)
	}
	opts.LocationID = s.podOrDefault(opts.LocationID)
	if actor.Role == domain.RoleCustomer {
		opts.CustomerID = actor.Username
	}
	opts.CustomerID = strings.TrimSpace(opts.CustomerID)

	if actor.Role == domain.RoleOperator && opts.Channel.CounterSale() {
		if _, err := s.repo.GetActiveShift(ctx, actor.Username); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.CheckoutResponse{}, fmt.Errorf("%w: start a shift before selling", store.ErrPrecondition)
			}
			return domain.CheckoutResponse{}, err
		}
	}

	var customer *domain.Customer
	if opts.CustomerID != "" {
		customer, err = s.repo.GetCustomer(ctx, opts.CustomerID)
		if err != nil {
			return domain.CheckoutResponse{}, err
		}
		if customer.Status != domain.CustomerStatusActive {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: customer is %s", store.ErrPrecondition, customer.Status)
		}
	}

	address, err := deliveryAddressFor(opts, customer)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	fee := opts.DeliveryFee
	if customer == nil || opts.Channel.CounterSale() {
		fee = decimal.Zero
	}
	if fee.IsNegative() {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: delivery_fee must be >= 0", store.ErrValidation)
	}

	lines, err := s.snapshotLines(ctx, c)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	paymentStatus := domain.PaymentPending
	if opts.PaymentMethod.SettlesImmediately() {
		paymentStatus = domain.PaymentPaid
	}
	idempotencyKey := strings.TrimSpace(opts.IdempotencyKey)
	if idempotencyKey == "" {
		idempotencyKey = xid.New("idem")
	}

	now := s.now()
	order := domain.Order{
		ID:              xid.New("ord"),
		CustomerID:      opts.CustomerID,
		Channel:         opts.Channel,
		LocationID:      opts.LocationID,
		Lines:           lines,
		DeliveryAddress: address,
		DeliveryFee:     fee,
		PaymentMethod:   opts.PaymentMethod,
		PaymentStatus:   paymentStatus,
		Status:          domain.StatusCreated,
		IdempotencyKey:  idempotencyKey,
		CreatedBy:       actor.Username,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	order.TotalAmount = order.LinesTotal().Add(fee)

	var duplicate bool
	created, err := withFreshCode(s, "GT", orderReferenceLength, func(reference string) (*domain.Order, error) {
		order.Reference = reference
		created, replayed, err := s.repo.CreateOrder(ctx, order)
		duplicate = replayed
		return created, err
	})
	if err != nil {
		s.logger.Warn("checkout rejected", "location_id", order.LocationID, "payment_method", order.PaymentMethod, "error", err)
		return domain.CheckoutResponse{}, err
	}

	c.Clear()
	if !duplicate {
		s.publish(ctx, domain.OrderEventCreated, *created)
		s.logAudit(ctx, created.LocationID, "order.create", "order", created.ID,
			fmt.Sprintf("ref=%s total=%s method=%s", created.Reference, created.TotalAmount.StringFixed(2), created.PaymentMethod))
		s.logger.Info("order committed", "order_id", created.ID, "reference", created.Reference, "total", created.TotalAmount.StringFixed(2))
	}
	return domain.CheckoutResponse{Order: *created, Duplicate: duplicate}, nil
}

// CreateOrder commits an order from explicit items, for callers without a
// cart session.
func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.CheckoutResponse, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleOperator, domain.RoleCustomer); err != nil {
		return domain.CheckoutResponse{}, err
	}
	if len(req.Items) == 0 {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: items are required", store.ErrInvalidRequest)
	}

	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	c := cart.New()
	for _, item := range req.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		if err := c.AddItem(product, item.Quantity); err != nil {
			return domain.CheckoutResponse{}, err
		}
	}
	return s.Checkout(ctx, c, req.CheckoutOptions)
}

// snapshotLines freezes the cart's captured prices into order lines after
// confirming every product still exists and is on sale.
func (s *Service) snapshotLines(ctx context.Context, c *cart.Cart) ([]domain.OrderLine, error) {
	items := c.Items()
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	lines := make([]domain.OrderLine, 0, len(items))
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		if !product.Active {
			return nil, fmt.Errorf("%w: product %s is not on sale", store.ErrValidation, product.Name)
		}
		lines = append(lines, domain.OrderLine{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.Total(),
		})
	}
	return lines, nil
}

func channelFor(actor domain.Actor, requested domain.Channel) domain.Channel {
	if actor.Role == domain.RoleCustomer {
		return domain.ChannelApp
	}
	if requested != "" {
		return requested
	}
	if actor.Role == domain.RoleAdmin {
		return domain.ChannelAdmin
	}
	return domain.ChannelPod
}

func deliveryAddressFor(opts domain.CheckoutOptions, customer *domain.Customer) (domain.Address, error) {
	if opts.DeliveryAddress != nil && strings.TrimSpace(opts.DeliveryAddress.Description) != "" {
		return *opts.DeliveryAddress, nil
	}
	if customer != nil {
		if addr, ok := customer.DefaultAddress(); ok {
			return addr, nil
		}
	}
	if opts.Channel.CounterSale() || customer == nil {
		return domain.Address{Label: "Walk-in", Description: "Collected at " + opts.LocationID}, nil
	}
	return domain.Address{}, fmt.Errorf("%w: delivery address is required", store.ErrValidation)
}
