package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
	"github.com/Heinvv10/gaztime-sub001/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("GAZTIME_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set GAZTIME_TEST_DATABASE_URL to run postgres integration tests")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplySchema(ctx))
	return s
}

func seedProduct(t *testing.T, s *Store, podID string, qty int) domain.Product {
	t.Helper()
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	product := domain.Product{
		ID:        fmt.Sprintf("prod-it-%d", stamp),
		SKU:       fmt.Sprintf("LPG-IT-%d", stamp),
		Name:      "9kg LPG Cylinder",
		SizeKg:    decimal.NewFromInt(9),
		UnitPrice: decimal.NewFromInt(350),
		Active:    true,
	}
	_, err := s.CreateProduct(ctx, product, podID, qty)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = s.pool.Exec(ctx, `DELETE FROM order_lines WHERE product_id = $1`, product.ID)
		_, _ = s.pool.Exec(ctx, `DELETE FROM orders WHERE location_id = $1`, podID)
		_, _ = s.pool.Exec(ctx, `DELETE FROM inventory_stocks WHERE product_id = $1`, product.ID)
		_, _ = s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
	})
	return product
}

func cashOrder(id string, podID string, product domain.Product) domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:            id,
		Reference:     "GT-" + id,
		Channel:       domain.ChannelPOS,
		LocationID:    podID,
		Lines:         []domain.OrderLine{{ProductID: product.ID, Name: product.Name, Quantity: 1, UnitPrice: product.UnitPrice, LineTotal: product.UnitPrice}},
		DeliveryFee:   decimal.Zero,
		TotalAmount:   product.UnitPrice,
		PaymentMethod: domain.PaymentCash,
		PaymentStatus: domain.PaymentPaid,
		Status:        domain.StatusCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func stockQty(t *testing.T, s *Store, podID string, productID string) int {
	t.Helper()
	entries, err := s.GetStock(context.Background(), podID)
	require.NoError(t, err)
	for _, e := range entries {
		if e.ProductID == productID {
			return e.Quantity
		}
	}
	return 0
}

func TestConcurrentCheckoutsOfLastUnit(t *testing.T) {
	s := newIntegrationStore(t)
	podID := fmt.Sprintf("pod-it-%d", time.Now().UnixNano())
	product := seedProduct(t, s, podID, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = s.CreateOrder(context.Background(), cashOrder(fmt.Sprintf("%s-%d", podID, i), podID, product))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, store.ErrInsufficientStock)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, stockQty(t, s, podID, product.ID))
}

func TestCancelOrderRestocksInventory(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	podID := fmt.Sprintf("pod-it-%d", time.Now().UnixNano())
	product := seedProduct(t, s, podID, 10)

	order := cashOrder(podID+"-cancel", podID, product)
	order.IdempotencyKey = "idem-" + order.ID
	_, duplicate, err := s.CreateOrder(ctx, order)
	require.NoError(t, err)
	require.False(t, duplicate)
	assert.Equal(t, 9, stockQty(t, s, podID, product.ID))

	_, duplicate, err = s.CreateOrder(ctx, order)
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Equal(t, 9, stockQty(t, s, podID, product.ID))

	cancelled, err := s.TransitionOrder(ctx, order.ID, domain.StatusCancelled, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, domain.PaymentRefunded, cancelled.PaymentStatus)
	assert.Equal(t, 10, stockQty(t, s, podID, product.ID))

	_, err = s.TransitionOrder(ctx, order.ID, domain.StatusConfirmed, time.Now().UTC())
	require.ErrorIs(t, err, store.ErrInvalidState)
}

func TestCreateOrderScopesIdempotencyAndReferences(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	podID := fmt.Sprintf("pod-it-%d", time.Now().UnixNano())
	product := seedProduct(t, s, podID, 10)

	order := cashOrder(podID+"-a", podID, product)
	order.IdempotencyKey = "k-1"
	order.CreatedBy = "operator"
	_, _, err := s.CreateOrder(ctx, order)
	require.NoError(t, err)

	other := cashOrder(podID+"-b", podID, product)
	other.IdempotencyKey = "k-1"
	other.CreatedBy = "operator-2"
	_, duplicate, err := s.CreateOrder(ctx, other)
	require.NoError(t, err)
	assert.False(t, duplicate)

	changed := cashOrder(podID+"-c", podID, product)
	changed.IdempotencyKey = "k-1"
	changed.CreatedBy = "operator"
	changed.Lines[0].Quantity = 2
	_, _, err = s.CreateOrder(ctx, changed)
	require.ErrorIs(t, err, store.ErrConflict)

	taken := cashOrder(podID+"-d", podID, product)
	taken.Reference = order.Reference
	_, _, err = s.CreateOrder(ctx, taken)
	require.ErrorIs(t, err, store.ErrCodeTaken)
	assert.Equal(t, 8, stockQty(t, s, podID, product.ID))
}
