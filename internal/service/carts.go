package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Heinvv10/gaztime-sub001/internal/cart"
	"github.com/Heinvv10/gaztime-sub001/internal/domain"
	"github.com/Heinvv10/gaztime-sub001/internal/store"
)

var cartRoles = []domain.Role{domain.RoleAdmin, domain.RoleOperator, domain.RoleCustomer}

// sessionKey scopes a client-chosen session id to the caller, so one actor
// can never reach another's cart.
func sessionKey(actor domain.Actor, sessionID string) string {
	return actor.Username + "/" + sessionID
}

func (s *Service) loadCart(ctx context.Context, sessionID string) (*cart.Cart, string, error) {
	actor, err := requireRole(ctx, cartRoles...)
	if err != nil {
		return nil, "", err
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, "", fmt.Errorf("%w: session id is required", store.ErrInvalidRequest)
	}
	key := sessionKey(actor, sessionID)
	c, err := s.carts.Load(ctx, key)
	if err != nil {
		return nil, "", fmt.Errorf("%w: load cart: %v", store.ErrUpstream, err)
	}
	return c, key, nil
}

func (s *Service) saveCart(ctx context.Context, key string, sessionID string, c *cart.Cart) (cart.View, error) {
	if err := s.carts.Save(ctx, key, c); err != nil {
		return cart.View{}, fmt.Errorf("%w: save cart: %v", store.ErrUpstream, err)
	}
	return c.View(sessionID), nil
}

func (s *Service) GetCart(ctx context.Context, sessionID string) (cart.View, error) {
	c, _, err := s.loadCart(ctx, sessionID)
	if err != nil {
		return cart.View{}, err
	}
	return c.View(sessionID), nil
}

// AddCartItem captures the product's current price into the cart line.
func (s *Service) AddCartItem(ctx context.Context, sessionID string, item domain.CartItem) (cart.View, error) {
	c, key, err := s.loadCart(ctx, sessionID)
	if err != nil {
		return cart.View{}, err
	}
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(item.ProductID))
	if err != nil {
		return cart.View{}, err
	}
	if !product.Active {
		return cart.View{}, fmt.Errorf("%w: product %s is not on sale", store.ErrValidation, product.Name)
	}
	if err := c.AddItem(*product, item.Quantity); err != nil {
		return cart.View{}, err
	}
	return s.saveCart(ctx, key, sessionID, c)
}

func (s *Service) RemoveCartItem(ctx context.Context, sessionID string, productID string) (cart.View, error) {
	c, key, err := s.loadCart(ctx, sessionID)
	if err != nil {
		return cart.View{}, err
	}
	c.RemoveItem(productID)
	return s.saveCart(ctx, key, sessionID, c)
}

func (s *Service) SetCartPaymentMethod(ctx context.Context, sessionID string, method domain.PaymentMethod) (cart.View, error) {
	c, key, err := s.loadCart(ctx, sessionID)
	if err != nil {
		return cart.View{}, err
	}
	if err := c.SetPaymentMethod(method); err != nil {
		return cart.View{}, err
	}
	return s.saveCart(ctx, key, sessionID, c)
}

func (s *Service) ClearCart(ctx context.Context, sessionID string) error {
	_, key, err := s.loadCart(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.carts.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: delete cart: %v", store.ErrUpstream, err)
	}
	return nil
}

// CheckoutSession commits the session's cart; the session survives a failed
// commit untouched.
func (s *Service) CheckoutSession(ctx context.Context, sessionID string, opts domain.CheckoutOptions) (domain.CheckoutResponse, error) {
	c, key, err := s.loadCart(ctx, sessionID)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	result, err := s.Checkout(ctx, c, opts)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if err := s.carts.Delete(ctx, key); err != nil {
		s.logger.Warn("delete checked-out cart failed", "session_id", sessionID, "error", err)
	}
	return result, nil
}
