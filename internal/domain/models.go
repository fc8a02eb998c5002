package domain

import (
	"maps"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string          `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	SizeKg    decimal.Decimal `json:"size_kg"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Active    bool            `json:"active"`
}

type ProductCreateRequest struct {
	LocationID   string          `json:"location_id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	SizeKg       decimal.Decimal `json:"size_kg"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	InitialStock int             `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Name      *string          `json:"name,omitempty"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	Active    *bool            `json:"active,omitempty"`
}

type ProductPriceHistory struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
	ChangedBy string          `json:"changed_by"`
	ChangedAt time.Time       `json:"changed_at"`
}

type Address struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Landmark    string `json:"landmark,omitempty"`
	IsDefault   bool   `json:"is_default"`
}

type Customer struct {
	ID            string          `json:"id"`
	Phone         string          `json:"phone"`
	Name          string          `json:"name"`
	Addresses     []Address       `json:"addresses"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	ReferralCode  string          `json:"referral_code"`
	Status        string          `json:"status"`
	Segments      []string        `json:"segments,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// DefaultAddress returns the address flagged default, if any.
func (c Customer) DefaultAddress() (Address, bool) {
	for _, addr := range c.Addresses {
		if addr.IsDefault {
			return addr, true
		}
	}
	return Address{}, false
}

// NormalizeAddresses keeps at most one default and promotes the first
// address when none is flagged.
func NormalizeAddresses(addresses []Address) []Address {
	result := make([]Address, 0, len(addresses))
	seenDefault := false
	for _, addr := range addresses {
		if addr.IsDefault && seenDefault {
			addr.IsDefault = false
		}
		seenDefault = seenDefault || addr.IsDefault
		result = append(result, addr)
	}
	if !seenDefault && len(result) > 0 {
		result[0].IsDefault = true
	}
	return result
}

// WithAddress appends addr; a new default clears the previous one.
func WithAddress(addresses []Address, addr Address) []Address {
	result := make([]Address, 0, len(addresses)+1)
	for _, existing := range addresses {
		if addr.IsDefault {
			existing.IsDefault = false
		}
		result = append(result, existing)
	}
	return NormalizeAddresses(append(result, addr))
}

type CustomerCreateRequest struct {
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	Addresses []Address `json:"addresses"`
}

type CustomerLookupResponse struct {
	Found    bool      `json:"found"`
	Phone    string    `json:"phone"`
	Customer *Customer `json:"customer,omitempty"`
}

type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CheckoutOptions carries everything a commit needs besides the cart lines.
type CheckoutOptions struct {
	CustomerID      string          `json:"customer_id,omitempty"`
	Channel         Channel         `json:"channel"`
	LocationID      string          `json:"location_id"`
	PaymentMethod   PaymentMethod   `json:"payment_method,omitempty"`
	DeliveryAddress *Address        `json:"delivery_address,omitempty"`
	DeliveryFee     decimal.Decimal `json:"delivery_fee"`
	IdempotencyKey  string          `json:"idempotency_key"`
}

type OrderCreateRequest struct {
	CheckoutOptions
	Items []CartItem `json:"items"`
}

type CheckoutResponse struct {
	Order     Order `json:"order"`
	Duplicate bool  `json:"duplicate"`
}

// OrderLine is frozen at commit time; later catalog changes never touch it.
type OrderLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type Order struct {
	ID              string          `json:"id"`
	Reference       string          `json:"reference"`
	CustomerID      string          `json:"customer_id,omitempty"`
	Channel         Channel         `json:"channel"`
	LocationID      string          `json:"location_id"`
	Lines           []OrderLine     `json:"lines"`
	DeliveryAddress Address         `json:"delivery_address"`
	DeliveryFee     decimal.Decimal `json:"delivery_fee"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	Status          OrderStatus     `json:"status"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty"`
	CreatedBy       string          `json:"created_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
	Rating          *int            `json:"rating,omitempty"`
}

// LinesTotal is Σ line totals, excluding the delivery fee.
func (o Order) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.LineTotal)
	}
	return total
}

// SameRequest reports whether other asks for the same quantities, payer,
// location and payment method as o.
func (o Order) SameRequest(other Order) bool {
	if o.CustomerID != other.CustomerID || o.LocationID != other.LocationID || o.PaymentMethod != other.PaymentMethod {
		return false
	}
	return maps.Equal(o.quantities(), other.quantities())
}

func (o Order) quantities() map[string]int {
	result := make(map[string]int, len(o.Lines))
	for _, line := range o.Lines {
		result[line.ProductID] += line.Quantity
	}
	return result
}

type OrderStatusUpdateRequest struct {
	Status OrderStatus `json:"status"`
	Reason string      `json:"reason,omitempty"`
}

type PaymentStatusUpdateRequest struct {
	PaymentStatus PaymentStatus `json:"payment_status"`
	Reference     string        `json:"reference,omitempty"`
}

type OrderFilter struct {
	LocationID string
	CustomerID string
	Status     OrderStatus
	From       time.Time
	To         time.Time
	Limit      int
}

type StockEntry struct {
	LocationID string `json:"location_id"`
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
}

type StockLevelResponse struct {
	LocationID string       `json:"location_id"`
	Items      []StockEntry `json:"items"`
}

type StockMovementRequest struct {
	LocationID string `json:"location_id"`
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	Notes      string `json:"notes,omitempty"`
}

type HandoverChecklist struct {
	StockCounted     bool `json:"stock_counted"`
	CashReconciled   bool `json:"cash_reconciled"`
	WorkspaceCleaned bool `json:"workspace_cleaned"`
	IssuesReported   bool `json:"issues_reported"`
}

// Missing lists the unchecked items, in display order.
func (c HandoverChecklist) Missing() []string {
	missing := make([]string, 0, 4)
	if !c.StockCounted {
		missing = append(missing, "stock_counted")
	}
	if !c.CashReconciled {
		missing = append(missing, "cash_reconciled")
	}
	if !c.WorkspaceCleaned {
		missing = append(missing, "workspace_cleaned")
	}
	if !c.IssuesReported {
		missing = append(missing, "issues_reported")
	}
	return missing
}

type Shift struct {
	ID         string             `json:"id"`
	OperatorID string             `json:"operator_id"`
	PodID      string             `json:"pod_id"`
	StartedAt  time.Time          `json:"started_at"`
	EndedAt    *time.Time         `json:"ended_at,omitempty"`
	Checklist  *HandoverChecklist `json:"checklist,omitempty"`
}

type ShiftStartRequest struct {
	PodID string `json:"pod_id"`
}

type ShiftEndRequest struct {
	Checklist HandoverChecklist `json:"checklist"`
}

type ShiftResponse struct {
	Shift Shift `json:"shift"`
}

type Reconciliation struct {
	ID           string          `json:"id"`
	PodID        string          `json:"pod_id"`
	Date         string          `json:"date"`
	ExpectedCash decimal.Decimal `json:"expected_cash"`
	ActualCash   decimal.Decimal `json:"actual_cash"`
	Variance     decimal.Decimal `json:"variance"`
	OperatorID   string          `json:"operator_id"`
	Notes        string          `json:"notes,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type ReconciliationRequest struct {
	Date       string          `json:"date"`
	ActualCash decimal.Decimal `json:"actual_cash"`
	Notes      string          `json:"notes,omitempty"`
}

type DailyReportPayment struct {
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Orders        int64           `json:"orders"`
	Total         decimal.Decimal `json:"total"`
}

type DailyReportChannel struct {
	Channel Channel         `json:"channel"`
	Orders  int64           `json:"orders"`
	Total   decimal.Decimal `json:"total"`
}

type DailyReport struct {
	PodID        string               `json:"pod_id"`
	Date         string               `json:"date"`
	Orders       int64                `json:"orders"`
	Cancelled    int64                `json:"cancelled"`
	GrossSales   decimal.Decimal      `json:"gross_sales"`
	DeliveryFees decimal.Decimal      `json:"delivery_fees"`
	CashExpected decimal.Decimal      `json:"cash_expected"`
	ByPayment    []DailyReportPayment `json:"by_payment"`
	ByChannel    []DailyReportChannel `json:"by_channel"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	PodID         string    `json:"pod_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     Role      `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        Role   `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     Role
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

type User struct {
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      Role
	Active    bool
	CreatedAt time.Time
}

const (
	OrderEventCreated       = "order.created"
	OrderEventStatusChanged = "order.status_changed"
	OrderEventPaymentChange = "order.payment_changed"
)

type OrderEvent struct {
	Type          string        `json:"type"`
	OrderID       string        `json:"order_id"`
	Reference     string        `json:"reference"`
	PodID         string        `json:"pod_id"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	At            time.Time     `json:"at"`
}
