// Package cart holds the checkout-session aggregate: an ordered set of
// product lines with a pending payment method.
package cart

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
	"github.com/Heinvv10/gaztime-sub001/internal/store"
)

type Line struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is not safe for concurrent use; a session owns exactly one.
type Cart struct {
	Lines         []Line               `json:"lines"`
	PaymentMethod domain.PaymentMethod `json:"payment_method,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func New() *Cart {
	return &Cart{Lines: make([]Line, 0, 4)}
}

// AddItem merges into an existing line for the same product. Stock is not
// checked here; the commit does that.
func (c *Cart) AddItem(product domain.Product, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
	}
	if product.ID == "" {
		return fmt.Errorf("%w: product id is required", store.ErrValidation)
	}
	c.touch()
	if i := c.indexOf(product.ID); i >= 0 {
		c.Lines[i].Quantity += quantity
		return nil
	}
	c.Lines = append(c.Lines, Line{
		ProductID: product.ID,
		Name:      product.Name,
		UnitPrice: product.UnitPrice,
		Quantity:  quantity,
	})
	return nil
}

func (c *Cart) RemoveItem(productID string) {
	if i := c.indexOf(productID); i >= 0 {
		c.Lines = slices.Delete(c.Lines, i, i+1)
		c.touch()
	}
}

func (c *Cart) Clear() {
	c.Lines = c.Lines[:0]
	c.PaymentMethod = ""
	c.touch()
}

func (c *Cart) SetPaymentMethod(method domain.PaymentMethod) error {
	if !method.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", store.ErrValidation, method)
	}
	c.PaymentMethod = method
	c.touch()
	return nil
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Lines {
		total = total.Add(line.Total())
	}
	return total
}

// Items returns a copy of the lines in insertion order.
func (c *Cart) Items() []Line {
	return slices.Clone(c.Lines)
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) indexOf(productID string) int {
	return slices.IndexFunc(c.Lines, func(l Line) bool { return l.ProductID == productID })
}

func (c *Cart) touch() {
	c.UpdatedAt = time.Now().UTC()
}

// View is the wire shape of a cart, with computed totals.
type View struct {
	SessionID     string               `json:"session_id"`
	Lines         []Line               `json:"lines"`
	PaymentMethod domain.PaymentMethod `json:"payment_method,omitempty"`
	ItemCount     int                  `json:"item_count"`
	Total         decimal.Decimal      `json:"total"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func (c *Cart) View(sessionID string) View {
	count := 0
	for _, line := range c.Lines {
		count += line.Quantity
	}
	return View{
		SessionID:     sessionID,
		Lines:         c.Items(),
		PaymentMethod: c.PaymentMethod,
		ItemCount:     count,
		Total:         c.Total(),
		UpdatedAt:     c.UpdatedAt,
	}
}
