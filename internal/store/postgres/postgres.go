package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
	"github.com/Heinvv10/gaztime-sub001/internal/store"
	"github.com/Heinvv10/gaztime-sub001/internal/xid"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Repository = (*Store)(nil)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 30
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const productColumns = `id, sku, name, size_kg, unit_price, active`

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.SizeKg, &p.UnitPrice, &p.Active)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active OR $1
		ORDER BY size_kg, name
	`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 16)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	return result, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product, locationID string, initialStock int) (*domain.Product, error) {
	if product.ID == "" || product.SKU == "" || product.Name == "" || product.UnitPrice.IsNegative() || initialStock < 0 {
		return nil, store.ErrValidation
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO products (id, sku, name, size_kg, unit_price, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
	`, product.ID, product.SKU, product.Name, product.SizeKg, product.UnitPrice, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku %s exists", store.ErrConflict, product.SKU)
		}
		return nil, err
	}
	if locationID != "" && initialStock > 0 {
		if _, err := creditStock(ctx, tx, locationID, product.ID, initialStock); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product, history *domain.ProductPriceHistory) (*domain.Product, error) {
	if product.Name == "" || product.UnitPrice.IsNegative() {
		return nil, store.ErrValidation
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE products
		SET name = $2, unit_price = $3, active = $4, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.UnitPrice, product.Active)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrNotFound
	}
	if history != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO product_price_history (id, product_id, old_price, new_price, changed_by, changed_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, history.ID, history.ProductID, history.OldPrice, history.NewPrice, history.ChangedBy, history.ChangedAt)
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	updated := product
	return &updated, nil
}

func (s *Store) ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	if _, err := s.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, product_id, old_price, new_price, changed_by, changed_at
		FROM product_price_history
		WHERE product_id = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.ProductPriceHistory, 0, limit)
	for rows.Next() {
		var e domain.ProductPriceHistory
		if err := rows.Scan(&e.ID, &e.ProductID, &e.OldPrice, &e.NewPrice, &e.ChangedBy, &e.ChangedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const customerColumns = `id, phone, name, addresses, wallet_balance, referral_code, status, segments, created_at`

func scanCustomer(row pgx.Row) (domain.Customer, error) {
	var c domain.Customer
	var addresses []byte
	if err := row.Scan(&c.ID, &c.Phone, &c.Name, &addresses, &c.WalletBalance, &c.ReferralCode, &c.Status, &c.Segments, &c.CreatedAt); err != nil {
		return c, err
	}
	if len(addresses) > 0 {
		if err := json.Unmarshal(addresses, &c.Addresses); err != nil {
			return c, fmt.Errorf("decode addresses of %s: %w", c.ID, err)
		}
	}
	return c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || customer.Phone == "" || customer.Name == "" {
		return nil, store.ErrValidation
	}
	addresses, err := json.Marshal(nonNilAddresses(customer.Addresses))
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO customers (id, phone, name, addresses, wallet_balance, referral_code, status, segments, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, customer.ID, customer.Phone, customer.Name, addresses, customer.WalletBalance, customer.ReferralCode,
		customer.Status, nonNilStrings(customer.Segments), customer.CreatedAt)
	if constraint, ok := uniqueViolation(err); ok {
		if constraint == constraintReferralCode {
			return nil, fmt.Errorf("%w: referral code %s", store.ErrCodeTaken, customer.ReferralCode)
		}
		return nil, fmt.Errorf("%w: phone %s already registered", store.ErrConflict, customer.Phone)
	}
	if err != nil {
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return s.findCustomer(ctx, s.pool, "id", id, false)
}

func (s *Store) FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	return s.findCustomer(ctx, s.pool, "phone", phone, false)
}

func (s *Store) findCustomer(ctx context.Context, q querier, column string, value string, lock bool) (*domain.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE ` + column + ` = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	c, err := scanCustomer(q.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error) {
	if limit <= 0 {
		limit = 100
	}
	pattern := "%" + strings.TrimSpace(query) + "%"
	rows, err := s.pool.Query(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE $1 = '%%' OR name ILIKE $1 OR phone LIKE $1
		ORDER BY name, id
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) AddCustomerAddress(ctx context.Context, customerID string, address domain.Address) (*domain.Customer, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	customer, err := s.findCustomer(ctx, tx, "id", customerID, true)
	if err != nil {
		return nil, err
	}
	customer.Addresses = domain.WithAddress(customer.Addresses, address)
	payload, err := json.Marshal(customer.Addresses)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE customers SET addresses = $2 WHERE id = $1`, customerID, payload); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return customer, nil
}

func (s *Store) GetStock(ctx context.Context, locationID string) ([]domain.StockEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT product_id, qty
		FROM inventory_stocks
		WHERE location_id = $1
		ORDER BY product_id
	`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.StockEntry, 0, 16)
	for rows.Next() {
		entry := domain.StockEntry{LocationID: locationID}
		if err := rows.Scan(&entry.ProductID, &entry.Quantity); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) DebitStock(ctx context.Context, locationID string, productID string, qty int) (int, error) {
	if qty < 1 || locationID == "" || productID == "" {
		return 0, store.ErrValidation
	}
	return debitStock(ctx, s.pool, locationID, productID, qty)
}

func (s *Store) CreditStock(ctx context.Context, locationID string, productID string, qty int) (int, error) {
	if qty < 1 || locationID == "" || productID == "" {
		return 0, store.ErrValidation
	}
	return creditStock(ctx, s.pool, locationID, productID, qty)
}

// debitStock is a single conditional update, so two concurrent sales of the
// last unit cannot both match the qty >= n guard.
func debitStock(ctx context.Context, q querier, locationID string, productID string, qty int) (int, error) {
	var remaining int
	err := q.QueryRow(ctx, `
		UPDATE inventory_stocks
		SET qty = qty - $3, updated_at = now()
		WHERE location_id = $1 AND product_id = $2 AND qty >= $3
		RETURNING qty
	`, locationID, productID, qty).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s at %s", store.ErrInsufficientStock, productID, locationID)
		}
		return 0, err
	}
	return remaining, nil
}

func creditStock(ctx context.Context, q querier, locationID string, productID string, qty int) (int, error) {
	var total int
	err := q.QueryRow(ctx, `
		INSERT INTO inventory_stocks (location_id, product_id, qty, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (location_id, product_id)
		DO UPDATE SET qty = inventory_stocks.qty + EXCLUDED.qty, updated_at = now()
		RETURNING qty
	`, locationID, productID, qty).Scan(&total)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return total, nil
}

const orderColumns = `id, reference, customer_id, channel, location_id, delivery_address, delivery_fee, total_amount,
	payment_method, payment_status, status, idempotency_key, created_by, created_at, updated_at, delivered_at, rating`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var customerID, idempotencyKey *string
	var address []byte
	err := row.Scan(&o.ID, &o.Reference, &customerID, &o.Channel, &o.LocationID, &address, &o.DeliveryFee, &o.TotalAmount,
		&o.PaymentMethod, &o.PaymentStatus, &o.Status, &idempotencyKey, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt, &o.DeliveredAt, &o.Rating)
	if err != nil {
		return o, err
	}
	if customerID != nil {
		o.CustomerID = *customerID
	}
	if idempotencyKey != nil {
		o.IdempotencyKey = *idempotencyKey
	}
	if len(address) > 0 {
		if err := json.Unmarshal(address, &o.DeliveryAddress); err != nil {
			return o, fmt.Errorf("decode delivery address of %s: %w", o.ID, err)
		}
	}
	return o, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, bool, error) {
	if order.ID == "" || order.LocationID == "" || len(order.Lines) == 0 {
		return nil, false, store.ErrInvalidRequest
	}

	created, err := s.createOrder(ctx, order)
	switch constraint, _ := uniqueViolation(err); {
	case constraint == constraintOrderReference:
		return nil, false, fmt.Errorf("%w: order reference %s", store.ErrCodeTaken, order.Reference)
	case constraint == constraintOrderIdempotency:
		// A concurrent commit with the same key won the insert.
		existing, findErr := s.findOrderByIdempotency(ctx, s.pool, order.CreatedBy, order.IdempotencyKey)
		if findErr != nil {
			return nil, false, findErr
		}
		return store.ReplayOrder(existing, order)
	case err != nil:
		return nil, false, err
	}
	if created.ID != order.ID {
		return store.ReplayOrder(created, order)
	}
	return created, false, nil
}

func (s *Store) createOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if order.IdempotencyKey != "" {
		existing, err := s.findOrderByIdempotency(ctx, tx, order.CreatedBy, order.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	requested := make(map[string]int, len(order.Lines))
	for _, line := range order.Lines {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidRequest
		}
		requested[line.ProductID] += line.Quantity
	}
	// Sorted so concurrent checkouts lock stock rows in the same order.
	productIDs := make([]string, 0, len(requested))
	for productID := range requested {
		productIDs = append(productIDs, productID)
	}
	slices.Sort(productIDs)
	for _, productID := range productIDs {
		if _, err := debitStock(ctx, tx, order.LocationID, productID, requested[productID]); err != nil {
			return nil, err
		}
	}

	if order.PaymentMethod == domain.PaymentWallet {
		tag, err := tx.Exec(ctx, `
			UPDATE customers
			SET wallet_balance = wallet_balance - $2
			WHERE id = $1 AND wallet_balance >= $2
		`, order.CustomerID, order.TotalAmount)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("%w: wallet balance too low or customer unknown", store.ErrPrecondition)
		}
	}

	address, err := json.Marshal(order.DeliveryAddress)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, reference, customer_id, channel, location_id, delivery_address, delivery_fee, total_amount,
			payment_method, payment_status, status, idempotency_key, created_by, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, order.ID, order.Reference, nullIfEmpty(order.CustomerID), string(order.Channel), order.LocationID, address,
		order.DeliveryFee, order.TotalAmount, string(order.PaymentMethod), string(order.PaymentStatus), string(order.Status),
		nullIfEmpty(order.IdempotencyKey), order.CreatedBy, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return nil, err
	}

	for i, line := range order.Lines {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_lines (order_id, line_no, product_id, name, quantity, unit_price, line_total)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, order.ID, i+1, line.ProductID, line.Name, line.Quantity, line.UnitPrice, line.LineTotal)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	created := order
	created.Lines = slices.Clone(order.Lines)
	return &created, nil
}

func (s *Store) findOrderByIdempotency(ctx context.Context, q querier, createdBy string, key string) (*domain.Order, error) {
	order, err := scanOrder(q.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE created_by = $1 AND idempotency_key = $2`, createdBy, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := loadLines(ctx, q, []*domain.Order{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return getOrder(ctx, s.pool, id, false)
}

func getOrder(ctx context.Context, q querier, id string, lock bool) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	order, err := scanOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := loadLines(ctx, q, []*domain.Order{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

func loadLines(ctx context.Context, q querier, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
		o.Lines = make([]domain.OrderLine, 0, 4)
	}

	rows, err := q.Query(ctx, `
		SELECT order_id, product_id, name, quantity, unit_price, line_total
		FROM order_lines
		WHERE order_id = ANY($1)
		ORDER BY order_id, line_no
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var orderID string
		var line domain.OrderLine
		if err := rows.Scan(&orderID, &line.ProductID, &line.Name, &line.Quantity, &line.UnitPrice, &line.LineTotal); err != nil {
			return err
		}
		if o, ok := byID[orderID]; ok {
			o.Lines = append(o.Lines, line)
		}
	}
	return rows.Err()
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	conditions := make([]string, 0, 5)
	args := make([]any, 0, 6)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if filter.LocationID != "" {
		add("location_id = $%d", filter.LocationID)
	}
	if filter.CustomerID != "" {
		add("customer_id = $%d", filter.CustomerID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at < $%d", filter.To)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ptrs := make([]*domain.Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	if err := loadLines(ctx, s.pool, ptrs); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) TransitionOrder(ctx context.Context, orderID string, next domain.OrderStatus, at time.Time) (*domain.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	order, err := getOrder(ctx, tx, orderID, true)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidState, order.Status, next)
	}

	order.Status = next
	order.UpdatedAt = at
	if next == domain.StatusDelivered {
		delivered := at
		order.DeliveredAt = &delivered
	}
	_, err = tx.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = $3, delivered_at = $4 WHERE id = $1
	`, order.ID, string(order.Status), order.UpdatedAt, nullTime(order.DeliveredAt))
	if err != nil {
		return nil, err
	}

	if next == domain.StatusCancelled {
		for _, line := range order.Lines {
			if _, err := creditStock(ctx, tx, order.LocationID, line.ProductID, line.Quantity); err != nil {
				return nil, err
			}
		}
		if order.PaymentStatus == domain.PaymentPaid {
			if err := refund(ctx, tx, order); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, orderID string, next domain.PaymentStatus, at time.Time) (*domain.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	order, err := getOrder(ctx, tx, orderID, true)
	if err != nil {
		return nil, err
	}
	if !order.PaymentStatus.CanBecome(next) {
		return nil, fmt.Errorf("%w: payment %s -> %s", store.ErrInvalidState, order.PaymentStatus, next)
	}
	order.UpdatedAt = at
	if next == domain.PaymentRefunded {
		if err := refund(ctx, tx, order); err != nil {
			return nil, err
		}
	} else {
		order.PaymentStatus = next
	}
	_, err = tx.Exec(ctx, `UPDATE orders SET payment_status = $2, updated_at = $3 WHERE id = $1`,
		order.ID, string(order.PaymentStatus), order.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return order, nil
}

// refund marks the order refunded and returns wallet money inside tx.
func refund(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	order.PaymentStatus = domain.PaymentRefunded
	_, err := tx.Exec(ctx, `UPDATE orders SET payment_status = $2 WHERE id = $1`, order.ID, string(order.PaymentStatus))
	if err != nil {
		return err
	}
	if order.PaymentMethod != domain.PaymentWallet || order.CustomerID == "" {
		return nil
	}
	_, err = tx.Exec(ctx, `UPDATE customers SET wallet_balance = wallet_balance + $2 WHERE id = $1`,
		order.CustomerID, order.TotalAmount)
	return err
}

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.OperatorID) == "" || strings.TrimSpace(shift.PodID) == "" {
		return nil, store.ErrValidation
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.StartedAt.IsZero() {
		shift.StartedAt = time.Now().UTC()
	}
	shift.EndedAt = nil
	shift.Checklist = nil

	// shifts_one_open_per_operator is a partial unique index on ended_at IS NULL.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO shifts (id, operator_id, pod_id, started_at)
		VALUES ($1,$2,$3,$4)
	`, shift.ID, shift.OperatorID, shift.PodID, shift.StartedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: operator %s already has an open shift", store.ErrConflict, shift.OperatorID)
		}
		return nil, err
	}
	return &shift, nil
}

const shiftColumns = `id, operator_id, pod_id, started_at, ended_at, checklist`

func scanShift(row pgx.Row) (domain.Shift, error) {
	var shift domain.Shift
	var checklist []byte
	if err := row.Scan(&shift.ID, &shift.OperatorID, &shift.PodID, &shift.StartedAt, &shift.EndedAt, &checklist); err != nil {
		return shift, err
	}
	if len(checklist) > 0 {
		var c domain.HandoverChecklist
		if err := json.Unmarshal(checklist, &c); err != nil {
			return shift, err
		}
		shift.Checklist = &c
	}
	return shift, nil
}

func (s *Store) GetActiveShift(ctx context.Context, operatorID string) (*domain.Shift, error) {
	shift, err := scanShift(s.pool.QueryRow(ctx, `
		SELECT `+shiftColumns+` FROM shifts WHERE operator_id = $1 AND ended_at IS NULL
	`, operatorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &shift, nil
}

func (s *Store) CloseActiveShift(ctx context.Context, operatorID string, checklist domain.HandoverChecklist, endedAt time.Time) (*domain.Shift, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	shift, err := scanShift(tx.QueryRow(ctx, `
		SELECT `+shiftColumns+` FROM shifts WHERE operator_id = $1 AND ended_at IS NULL FOR UPDATE
	`, operatorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if missing := checklist.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: checklist incomplete: %s", store.ErrPrecondition, strings.Join(missing, ", "))
	}
	if endedAt.IsZero() {
		endedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(checklist)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE shifts SET ended_at = $2, checklist = $3 WHERE id = $1`, shift.ID, endedAt, payload); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	shift.EndedAt = &endedAt
	shift.Checklist = &checklist
	return &shift, nil
}

func (s *Store) ExpectedCash(ctx context.Context, podID string, from time.Time, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_amount), 0)
		FROM orders
		WHERE location_id = $1 AND payment_method = $2 AND status <> $3
		  AND created_at >= $4 AND created_at < $5
	`, podID, string(domain.PaymentCash), string(domain.StatusCancelled), from, to).Scan(&total)
	return total, err
}

func (s *Store) CreateReconciliation(ctx context.Context, record domain.Reconciliation) (*domain.Reconciliation, error) {
	day, err := time.Parse(time.DateOnly, record.Date)
	if err != nil || record.ID == "" || record.PodID == "" {
		return nil, store.ErrValidation
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO reconciliations (id, pod_id, business_date, expected_cash, actual_cash, variance, operator_id, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, record.ID, record.PodID, day, record.ExpectedCash, record.ActualCash, record.Variance, record.OperatorID, record.Notes, record.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: pod %s already reconciled for %s", store.ErrConflict, record.PodID, record.Date)
		}
		return nil, err
	}
	created := record
	return &created, nil
}

func (s *Store) GetReconciliation(ctx context.Context, podID string, date string) (*domain.Reconciliation, error) {
	day, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return nil, store.ErrValidation
	}
	var r domain.Reconciliation
	var businessDate time.Time
	err = s.pool.QueryRow(ctx, `
		SELECT id, pod_id, business_date, expected_cash, actual_cash, variance, operator_id, notes, created_at
		FROM reconciliations
		WHERE pod_id = $1 AND business_date = $2
	`, podID, day).Scan(&r.ID, &r.PodID, &businessDate, &r.ExpectedCash, &r.ActualCash, &r.Variance, &r.OperatorID, &r.Notes, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	r.Date = businessDate.Format(time.DateOnly)
	return &r, nil
}

func (s *Store) GetDailyReport(ctx context.Context, podID string, from time.Time, to time.Time) (domain.DailyReport, error) {
	report := domain.DailyReport{
		PodID:        podID,
		Date:         from.UTC().Format(time.DateOnly),
		GrossSales:   decimal.Zero,
		DeliveryFees: decimal.Zero,
		CashExpected: decimal.Zero,
		ByPayment:    []domain.DailyReportPayment{},
		ByChannel:    []domain.DailyReportChannel{},
	}

	rows, err := s.pool.Query(ctx, `
		SELECT payment_method, channel, status = $4 AS cancelled, COUNT(*), SUM(total_amount), SUM(delivery_fee)
		FROM orders
		WHERE ($1 = '' OR location_id = $1) AND created_at >= $2 AND created_at < $3
		GROUP BY 1, 2, 3
	`, podID, from, to, string(domain.StatusCancelled))
	if err != nil {
		return report, err
	}
	defer rows.Close()

	byPayment := make(map[domain.PaymentMethod]*domain.DailyReportPayment)
	byChannel := make(map[domain.Channel]*domain.DailyReportChannel)
	for rows.Next() {
		var method domain.PaymentMethod
		var channel domain.Channel
		var cancelled bool
		var count int64
		var total, fees decimal.Decimal
		if err := rows.Scan(&method, &channel, &cancelled, &count, &total, &fees); err != nil {
			return report, err
		}
		if cancelled {
			report.Cancelled += count
			continue
		}
		report.Orders += count
		report.GrossSales = report.GrossSales.Add(total)
		report.DeliveryFees = report.DeliveryFees.Add(fees)
		if method == domain.PaymentCash {
			report.CashExpected = report.CashExpected.Add(total)
		}
		p := byPayment[method]
		if p == nil {
			p = &domain.DailyReportPayment{PaymentMethod: method, Total: decimal.Zero}
			byPayment[method] = p
		}
		p.Orders += count
		p.Total = p.Total.Add(total)
		c := byChannel[channel]
		if c == nil {
			c = &domain.DailyReportChannel{Channel: channel, Total: decimal.Zero}
			byChannel[channel] = c
		}
		c.Orders += count
		c.Total = c.Total.Add(total)
	}
	if err := rows.Err(); err != nil {
		return report, err
	}

	for _, method := range domain.PaymentMethods {
		if p, ok := byPayment[method]; ok {
			report.ByPayment = append(report.ByPayment, *p)
		}
	}
	for _, c := range byChannel {
		report.ByChannel = append(report.ByChannel, *c)
	}
	slices.SortFunc(report.ByChannel, func(a, b domain.DailyReportChannel) int {
		return strings.Compare(string(a.Channel), string(b.Channel))
	})
	return report, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, pod_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.PodID, entry.ActorUsername, string(entry.ActorRole), entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, podID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, pod_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR pod_id = $1) AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, podID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.PodID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" || !user.Role.Valid() {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, username, user.Password, string(user.Role), user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username %s exists", store.ErrConflict, username)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	_, ok := uniqueViolation(err)
	return ok
}

// Constraint names as declared in schema.sql.
const (
	constraintOrderReference   = "orders_reference_key"
	constraintOrderIdempotency = "orders_idempotency_key"
	constraintReferralCode     = "customers_referral_code_key"
)

// uniqueViolation returns the violated constraint when err is a 23505.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func nonNilAddresses(addresses []domain.Address) []domain.Address {
	if addresses == nil {
		return []domain.Address{}
	}
	return addresses
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
