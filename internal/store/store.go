package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrConflict          = errors.New("conflict")
	ErrInvalidState      = errors.New("invalid state transition")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPrecondition      = errors.New("precondition failed")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrUpstream          = errors.New("upstream unavailable")
	// ErrCodeTaken reports a generated reference or referral code that is
	// already in use; callers regenerate and retry.
	ErrCodeTaken         = errors.New("generated code already taken")
)

// ReplayOrder resolves an idempotent replay against the stored order. A key
// reused for a different request is a conflict.
func ReplayOrder(existing *domain.Order, request domain.Order) (*domain.Order, bool, error) {
	if existing.CreatedBy != request.CreatedBy || !existing.SameRequest(request) {
		return nil, false, fmt.Errorf("%w: idempotency key %s was used for a different order", ErrConflict, request.IdempotencyKey)
	}
	return existing, true, nil
}

// CatalogRepository covers products and their price history.
type CatalogRepository interface {
	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	// CreateProduct inserts the product and seeds its stock at locationID.
	CreateProduct(ctx context.Context, product domain.Product, locationID string, initialStock int) (*domain.Product, error)
	// UpdateProduct writes the product and, when history is non-nil, the
	// price history row in the same unit of work.
	UpdateProduct(ctx context.Context, product domain.Product, history *domain.ProductPriceHistory) (*domain.Product, error)
	ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error)
}

type CustomerRepository interface {
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error)
	// AddCustomerAddress applies domain.WithAddress under the customer's lock.
	AddCustomerAddress(ctx context.Context, customerID string, address domain.Address) (*domain.Customer, error)
}

// StockLedger mutates per (location, product) quantities atomically.
// Debits never drive a quantity below zero.
type StockLedger interface {
	GetStock(ctx context.Context, locationID string) ([]domain.StockEntry, error)
	DebitStock(ctx context.Context, locationID string, productID string, qty int) (int, error)
	CreditStock(ctx context.Context, locationID string, productID string, qty int) (int, error)
}

type OrderRepository interface {
	// CreateOrder persists the order, debits stock for every line and, for
	// wallet payments, the customer's wallet. All or nothing. Idempotency
	// keys are scoped to CreatedBy; a replay returns the stored order and
	// duplicate=true. A reference already in use returns ErrCodeTaken.
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, bool, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	// TransitionOrder validates and applies a status change under a per-order
	// lock. Cancellation restocks lines and refunds settled payments.
	TransitionOrder(ctx context.Context, orderID string, next domain.OrderStatus, at time.Time) (*domain.Order, error)
	UpdatePaymentStatus(ctx context.Context, orderID string, next domain.PaymentStatus, at time.Time) (*domain.Order, error)
}

type ShiftRepository interface {
	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetActiveShift(ctx context.Context, operatorID string) (*domain.Shift, error)
	CloseActiveShift(ctx context.Context, operatorID string, checklist domain.HandoverChecklist, endedAt time.Time) (*domain.Shift, error)
}

type ReportRepository interface {
	// ExpectedCash sums total_amount of non-cancelled cash orders at podID
	// created in [from, to).
	ExpectedCash(ctx context.Context, podID string, from time.Time, to time.Time) (decimal.Decimal, error)
	CreateReconciliation(ctx context.Context, record domain.Reconciliation) (*domain.Reconciliation, error)
	GetReconciliation(ctx context.Context, podID string, date string) (*domain.Reconciliation, error)
	GetDailyReport(ctx context.Context, podID string, from time.Time, to time.Time) (domain.DailyReport, error)
}

type AuditRepository interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, podID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	CatalogRepository
	CustomerRepository
	StockLedger
	OrderRepository
	ShiftRepository
	ReportRepository
	AuditRepository
	UserRepository
}
