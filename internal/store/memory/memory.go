package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
	"github.com/Heinvv10/gaztime-sub001/internal/store"
	"github.com/Heinvv10/gaztime-sub001/internal/xid"
)

const (
	DemoPodID      = "pod-main"
	DemoDepotID    = "depot-central"
	DemoCustomerID = "cust-demo"
)

// Store keeps everything behind one RWMutex, so every multi-step mutation
// (checkout, cancellation) is serialized exactly like a database transaction.
type Store struct {
	mu                sync.RWMutex
	products          map[string]domain.Product
	priceHistory      map[string][]domain.ProductPriceHistory
	inventory         map[string]map[string]int
	customersByID     map[string]domain.Customer
	customerByPhone   map[string]string
	customerByCode    map[string]string
	ordersByID        map[string]*domain.Order
	orderByIdem       map[string]string
	orderByRef        map[string]string
	shiftsByID        map[string]domain.Shift
	activeShiftByUser map[string]string
	reconciliations   map[string]domain.Reconciliation
	auditLogs         []domain.AuditLog
	usersByUsername   map[string]domain.UserAccount
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		products:          make(map[string]domain.Product),
		priceHistory:      make(map[string][]domain.ProductPriceHistory),
		inventory:         make(map[string]map[string]int),
		customersByID:     make(map[string]domain.Customer),
		customerByPhone:   make(map[string]string),
		customerByCode:    make(map[string]string),
		ordersByID:        make(map[string]*domain.Order),
		orderByIdem:       make(map[string]string),
		orderByRef:        make(map[string]string),
		shiftsByID:        make(map[string]domain.Shift),
		activeShiftByUser: make(map[string]string),
		reconciliations:   make(map[string]domain.Reconciliation),
		auditLogs:         make([]domain.AuditLog, 0, 128),
		usersByUsername:   make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with the demo cylinder range stocked at one pod
// and the central depot, a demo customer and the staff accounts.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{ID: "prod-lpg-3kg", SKU: "LPG-3KG", Name: "3kg LPG Cylinder", SizeKg: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(120), Active: true},
		{ID: "prod-lpg-5kg", SKU: "LPG-5KG", Name: "5kg LPG Cylinder", SizeKg: decimal.NewFromInt(5), UnitPrice: decimal.NewFromInt(175), Active: true},
		{ID: "prod-lpg-9kg", SKU: "LPG-9KG", Name: "9kg LPG Cylinder", SizeKg: decimal.NewFromInt(9), UnitPrice: decimal.NewFromInt(350), Active: true},
		{ID: "prod-lpg-14kg", SKU: "LPG-14KG", Name: "14kg LPG Cylinder", SizeKg: decimal.NewFromInt(14), UnitPrice: decimal.NewFromInt(540), Active: true},
		{ID: "prod-lpg-19kg", SKU: "LPG-19KG", Name: "19kg LPG Cylinder", SizeKg: decimal.NewFromInt(19), UnitPrice: decimal.NewFromInt(735), Active: true},
		{ID: "prod-lpg-48kg", SKU: "LPG-48KG", Name: "48kg LPG Cylinder", SizeKg: decimal.NewFromInt(48), UnitPrice: decimal.RequireFromString("1850.00"), Active: true},
	}
	s.inventory[DemoPodID] = make(map[string]int)
	s.inventory[DemoDepotID] = make(map[string]int)
	for _, p := range products {
		s.products[p.ID] = p
		s.inventory[DemoPodID][p.ID] = 40
		s.inventory[DemoDepotID][p.ID] = 500
	}

	demo := domain.Customer{
		ID:    DemoCustomerID,
		Phone: "+27825550001",
		Name:  "Thandi Mokoena",
		Addresses: []domain.Address{
			{Label: "Home", Description: "14 Vilakazi Street, Orlando West", Landmark: "Opposite the spaza shop", IsDefault: true},
		},
		WalletBalance: decimal.NewFromInt(500),
		ReferralCode:  "GT-DEMO01",
		Status:        domain.CustomerStatusActive,
		CreatedAt:     now,
	}
	s.customersByID[demo.ID] = demo
	s.customerByPhone[demo.Phone] = demo.ID
	s.customerByCode[demo.ReferralCode] = demo.ID

	s.usersByUsername = seedUsers(now)
	return s
}

// seedUsers builds the demo staff accounts. Passwords come from
// SEED_ADMIN_PASSWORD, SEED_OPERATOR_PASSWORD and SEED_DRIVER_PASSWORD and
// fall back to dev defaults. The Postgres store never uses these.
func seedUsers(now time.Time) map[string]domain.UserAccount {
	accounts := []struct {
		username string
		envKey   string
		fallback string
		role     domain.Role
	}{
		{"admin", "SEED_ADMIN_PASSWORD", "admin123", domain.RoleAdmin},
		{"operator", "SEED_OPERATOR_PASSWORD", "operator123", domain.RoleOperator},
		{"driver", "SEED_DRIVER_PASSWORD", "driver123", domain.RoleDriver},
	}

	users := make(map[string]domain.UserAccount, len(accounts))
	for _, acc := range accounts {
		password := os.Getenv(acc.envKey)
		if password == "" {
			password = acc.fallback
			slog.Warn("memory store using default dev credential", "username", acc.username, "env", acc.envKey)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			slog.Error("hash seed password", "username", acc.username, "error", err)
			continue
		}
		users[acc.username] = domain.UserAccount{
			Username:  acc.username,
			Password:  string(hash),
			Role:      acc.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func (s *Store) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active && !includeInactive {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := a.SizeKg.Cmp(b.SizeKg); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product, locationID string, initialStock int) (*domain.Product, error) {
	if product.ID == "" || product.SKU == "" || product.Name == "" || product.UnitPrice.IsNegative() {
		return nil, store.ErrValidation
	}
	if initialStock < 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return nil, fmt.Errorf("%w: product %s exists", store.ErrConflict, product.ID)
	}
	for _, existing := range s.products {
		if strings.EqualFold(existing.SKU, product.SKU) {
			return nil, fmt.Errorf("%w: sku %s exists", store.ErrConflict, product.SKU)
		}
	}

	s.products[product.ID] = product
	if locationID != "" && initialStock > 0 {
		s.stockLocked(locationID)[product.ID] += initialStock
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product, history *domain.ProductPriceHistory) (*domain.Product, error) {
	if product.Name == "" || product.UnitPrice.IsNegative() {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.products[product.ID] = product
	if history != nil {
		s.priceHistory[product.ID] = append(s.priceHistory[product.ID], *history)
	}
	updated := product
	return &updated, nil
}

func (s *Store) ListPriceHistory(_ context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.products[productID]; !exists {
		return nil, store.ErrNotFound
	}
	entries := s.priceHistory[productID]
	result := make([]domain.ProductPriceHistory, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		result = append(result, entries[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || customer.Phone == "" || customer.Name == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customerByPhone[customer.Phone]; exists {
		return nil, fmt.Errorf("%w: phone %s already registered", store.ErrConflict, customer.Phone)
	}
	if _, exists := s.customerByCode[customer.ReferralCode]; exists {
		return nil, fmt.Errorf("%w: referral code %s", store.ErrCodeTaken, customer.ReferralCode)
	}

	dup := cloneCustomer(customer)
	s.customersByID[dup.ID] = dup
	s.customerByPhone[dup.Phone] = dup.ID
	s.customerByCode[dup.ReferralCode] = dup.ID
	created := cloneCustomer(dup)
	return &created, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneCustomer(customer)
	return &dup, nil
}

func (s *Store) FindCustomerByPhone(_ context.Context, phone string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.customerByPhone[phone]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneCustomer(s.customersByID[id])
	return &dup, nil
}

func (s *Store) ListCustomers(_ context.Context, query string, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	result := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		if query != "" && !strings.Contains(strings.ToLower(c.Name), query) && !strings.Contains(c.Phone, query) {
			continue
		}
		result = append(result, cloneCustomer(c))
	}
	slices.SortFunc(result, func(a, b domain.Customer) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) AddCustomerAddress(_ context.Context, customerID string, address domain.Address) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customersByID[customerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	customer.Addresses = domain.WithAddress(customer.Addresses, address)
	s.customersByID[customerID] = customer
	dup := cloneCustomer(customer)
	return &dup, nil
}

func (s *Store) GetStock(_ context.Context, locationID string) ([]domain.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	levels := s.inventory[locationID]
	entries := make([]domain.StockEntry, 0, len(levels))
	for productID, qty := range levels {
		entries = append(entries, domain.StockEntry{LocationID: locationID, ProductID: productID, Quantity: qty})
	}
	slices.SortFunc(entries, func(a, b domain.StockEntry) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return entries, nil
}

func (s *Store) DebitStock(_ context.Context, locationID string, productID string, qty int) (int, error) {
	if qty < 1 || locationID == "" || productID == "" {
		return 0, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	levels := s.stockLocked(locationID)
	if levels[productID] < qty {
		return levels[productID], fmt.Errorf("%w: %s at %s", store.ErrInsufficientStock, productID, locationID)
	}
	levels[productID] -= qty
	return levels[productID], nil
}

func (s *Store) CreditStock(_ context.Context, locationID string, productID string, qty int) (int, error) {
	if qty < 1 || locationID == "" || productID == "" {
		return 0, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[productID]; !exists {
		return 0, store.ErrNotFound
	}
	levels := s.stockLocked(locationID)
	levels[productID] += qty
	return levels[productID], nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, bool, error) {
	if order.ID == "" || order.LocationID == "" || len(order.Lines) == 0 {
		return nil, false, store.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if order.IdempotencyKey != "" {
		if id, exists := s.orderByIdem[idempotencyIndex(order)]; exists {
			return store.ReplayOrder(cloneOrder(s.ordersByID[id]), order)
		}
	}
	if _, exists := s.ordersByID[order.ID]; exists {
		return nil, false, fmt.Errorf("%w: order %s exists", store.ErrConflict, order.ID)
	}
	if _, exists := s.orderByRef[order.Reference]; exists && order.Reference != "" {
		return nil, false, fmt.Errorf("%w: order reference %s", store.ErrCodeTaken, order.Reference)
	}

	requested := make(map[string]int, len(order.Lines))
	for _, line := range order.Lines {
		if line.Quantity < 1 {
			return nil, false, store.ErrInvalidRequest
		}
		requested[line.ProductID] += line.Quantity
	}
	levels := s.stockLocked(order.LocationID)
	for productID, qty := range requested {
		if levels[productID] < qty {
			return nil, false, fmt.Errorf("%w: %s at %s", store.ErrInsufficientStock, productID, order.LocationID)
		}
	}

	var payer *domain.Customer
	if order.PaymentMethod == domain.PaymentWallet {
		customer, ok := s.customersByID[order.CustomerID]
		if !ok {
			return nil, false, fmt.Errorf("%w: wallet payment needs a customer", store.ErrPrecondition)
		}
		if customer.WalletBalance.LessThan(order.TotalAmount) {
			return nil, false, fmt.Errorf("%w: wallet balance too low", store.ErrPrecondition)
		}
		payer = &customer
	}

	for productID, qty := range requested {
		levels[productID] -= qty
	}
	if payer != nil {
		payer.WalletBalance = payer.WalletBalance.Sub(order.TotalAmount)
		s.customersByID[payer.ID] = *payer
	}

	stored := cloneOrder(&order)
	s.ordersByID[stored.ID] = stored
	if stored.Reference != "" {
		s.orderByRef[stored.Reference] = stored.ID
	}
	if stored.IdempotencyKey != "" {
		s.orderByIdem[idempotencyIndex(*stored)] = stored.ID
	}
	return cloneOrder(stored), false, nil
}

func idempotencyIndex(order domain.Order) string {
	return order.CreatedBy + "\x00" + order.IdempotencyKey
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *Store) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, 64)
	for _, order := range s.ordersByID {
		if filter.LocationID != "" && order.LocationID != filter.LocationID {
			continue
		}
		if filter.CustomerID != "" && order.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && order.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !order.CreatedAt.Before(filter.To) {
			continue
		}
		result = append(result, *cloneOrder(order))
	}

	slices.SortFunc(result, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) TransitionOrder(_ context.Context, orderID string, next domain.OrderStatus, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !order.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidState, order.Status, next)
	}

	order.Status = next
	order.UpdatedAt = at
	switch next {
	case domain.StatusDelivered:
		delivered := at
		order.DeliveredAt = &delivered
	case domain.StatusCancelled:
		levels := s.stockLocked(order.LocationID)
		for _, line := range order.Lines {
			levels[line.ProductID] += line.Quantity
		}
		if order.PaymentStatus == domain.PaymentPaid {
			s.refundLocked(order)
		}
	}
	return cloneOrder(order), nil
}

func (s *Store) UpdatePaymentStatus(_ context.Context, orderID string, next domain.PaymentStatus, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !order.PaymentStatus.CanBecome(next) {
		return nil, fmt.Errorf("%w: payment %s -> %s", store.ErrInvalidState, order.PaymentStatus, next)
	}
	if next == domain.PaymentRefunded {
		s.refundLocked(order)
	} else {
		order.PaymentStatus = next
	}
	order.UpdatedAt = at
	return cloneOrder(order), nil
}

// refundLocked marks the order refunded and returns wallet money. Caller
// holds s.mu.
func (s *Store) refundLocked(order *domain.Order) {
	order.PaymentStatus = domain.PaymentRefunded
	if order.PaymentMethod != domain.PaymentWallet {
		return
	}
	if customer, ok := s.customersByID[order.CustomerID]; ok {
		customer.WalletBalance = customer.WalletBalance.Add(order.TotalAmount)
		s.customersByID[customer.ID] = customer
	}
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.OperatorID) == "" || strings.TrimSpace(shift.PodID) == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if openID, exists := s.activeShiftByUser[shift.OperatorID]; exists {
		return nil, fmt.Errorf("%w: shift %s already open", store.ErrConflict, openID)
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.StartedAt.IsZero() {
		shift.StartedAt = time.Now().UTC()
	}
	shift.EndedAt = nil
	shift.Checklist = nil

	s.shiftsByID[shift.ID] = shift
	s.activeShiftByUser[shift.OperatorID] = shift.ID
	dup := cloneShift(shift)
	return &dup, nil
}

func (s *Store) GetActiveShift(_ context.Context, operatorID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, exists := s.activeShiftByUser[operatorID]
	if !exists {
		return nil, store.ErrNotFound
	}
	dup := cloneShift(s.shiftsByID[shiftID])
	return &dup, nil
}

func (s *Store) CloseActiveShift(_ context.Context, operatorID string, checklist domain.HandoverChecklist, endedAt time.Time) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shiftID, exists := s.activeShiftByUser[operatorID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if missing := checklist.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: checklist incomplete: %s", store.ErrPrecondition, strings.Join(missing, ", "))
	}
	if endedAt.IsZero() {
		endedAt = time.Now().UTC()
	}

	shift := s.shiftsByID[shiftID]
	shift.EndedAt = &endedAt
	shift.Checklist = &checklist
	s.shiftsByID[shiftID] = shift
	delete(s.activeShiftByUser, operatorID)
	dup := cloneShift(shift)
	return &dup, nil
}

func (s *Store) ExpectedCash(_ context.Context, podID string, from time.Time, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, order := range s.ordersByID {
		if order.LocationID != podID || order.PaymentMethod != domain.PaymentCash || order.Status == domain.StatusCancelled {
			continue
		}
		if order.CreatedAt.Before(from) || !order.CreatedAt.Before(to) {
			continue
		}
		total = total.Add(order.TotalAmount)
	}
	return total, nil
}

func (s *Store) CreateReconciliation(_ context.Context, record domain.Reconciliation) (*domain.Reconciliation, error) {
	if record.ID == "" || record.PodID == "" || record.Date == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := reconciliationKey(record.PodID, record.Date)
	if _, exists := s.reconciliations[key]; exists {
		return nil, fmt.Errorf("%w: pod %s already reconciled for %s", store.ErrConflict, record.PodID, record.Date)
	}
	s.reconciliations[key] = record
	created := record
	return &created, nil
}

func (s *Store) GetReconciliation(_ context.Context, podID string, date string) (*domain.Reconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.reconciliations[reconciliationKey(podID, date)]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &record, nil
}

func (s *Store) GetDailyReport(_ context.Context, podID string, from time.Time, to time.Time) (domain.DailyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.DailyReport{
		PodID:        podID,
		Date:         from.UTC().Format(time.DateOnly),
		GrossSales:   decimal.Zero,
		DeliveryFees: decimal.Zero,
		CashExpected: decimal.Zero,
	}
	byPayment := make(map[domain.PaymentMethod]*domain.DailyReportPayment)
	byChannel := make(map[domain.Channel]*domain.DailyReportChannel)

	for _, order := range s.ordersByID {
		if podID != "" && order.LocationID != podID {
			continue
		}
		if order.CreatedAt.Before(from) || !order.CreatedAt.Before(to) {
			continue
		}
		if order.Status == domain.StatusCancelled {
			report.Cancelled++
			continue
		}
		report.Orders++
		report.GrossSales = report.GrossSales.Add(order.TotalAmount)
		report.DeliveryFees = report.DeliveryFees.Add(order.DeliveryFee)
		if order.PaymentMethod == domain.PaymentCash {
			report.CashExpected = report.CashExpected.Add(order.TotalAmount)
		}

		p := byPayment[order.PaymentMethod]
		if p == nil {
			p = &domain.DailyReportPayment{PaymentMethod: order.PaymentMethod, Total: decimal.Zero}
			byPayment[order.PaymentMethod] = p
		}
		p.Orders++
		p.Total = p.Total.Add(order.TotalAmount)

		c := byChannel[order.Channel]
		if c == nil {
			c = &domain.DailyReportChannel{Channel: order.Channel, Total: decimal.Zero}
			byChannel[order.Channel] = c
		}
		c.Orders++
		c.Total = c.Total.Add(order.TotalAmount)
	}

	report.ByPayment = make([]domain.DailyReportPayment, 0, len(byPayment))
	for _, method := range domain.PaymentMethods {
		if p, ok := byPayment[method]; ok {
			report.ByPayment = append(report.ByPayment, *p)
		}
	}
	report.ByChannel = make([]domain.DailyReportChannel, 0, len(byChannel))
	for _, c := range byChannel {
		report.ByChannel = append(report.ByChannel, *c)
	}
	slices.SortFunc(report.ByChannel, func(a, b domain.DailyReportChannel) int {
		return strings.Compare(string(a.Channel), string(b.Channel))
	})
	return report, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, podID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if podID != "" && entry.PodID != podID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" || !user.Role.Valid() {
		return store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("%w: username %s exists", store.ErrConflict, username)
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// stockLocked returns the mutable level map for a location. Caller holds s.mu
// for writing.
func (s *Store) stockLocked(locationID string) map[string]int {
	levels, ok := s.inventory[locationID]
	if !ok {
		levels = make(map[string]int)
		s.inventory[locationID] = levels
	}
	return levels
}

func reconciliationKey(podID string, date string) string {
	return podID + "|" + date
}

func cloneOrder(src *domain.Order) *domain.Order {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Lines = slices.Clone(src.Lines)
	if src.DeliveredAt != nil {
		at := *src.DeliveredAt
		dup.DeliveredAt = &at
	}
	if src.Rating != nil {
		rating := *src.Rating
		dup.Rating = &rating
	}
	return &dup
}

func cloneCustomer(src domain.Customer) domain.Customer {
	dup := src
	dup.Addresses = slices.Clone(src.Addresses)
	dup.Segments = slices.Clone(src.Segments)
	return dup
}

func cloneShift(src domain.Shift) domain.Shift {
	dup := src
	if src.EndedAt != nil {
		at := *src.EndedAt
		dup.EndedAt = &at
	}
	if src.Checklist != nil {
		checklist := *src.Checklist
		dup.Checklist = &checklist
	}
	return dup
}
