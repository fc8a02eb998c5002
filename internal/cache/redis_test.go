package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Heinvv10/gaztime-sub001/internal/cart"
	"github.com/Heinvv10/gaztime-sub001/internal/domain"
)

func newTestClient(t *testing.T) *RedisCatalogCache {
	t.Helper()
	addr := os.Getenv("GAZTIME_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set GAZTIME_TEST_REDIS_ADDR to run redis integration tests")
	}
	client := NewRedisClient(addr, "", 0)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return NewRedisCatalogCache(client)
}

func TestNoopCatalogCacheAlwaysMisses(t *testing.T) {
	var c CatalogCache = NoopCatalogCache{}
	ctx := context.Background()
	require.NoError(t, c.SetProducts(ctx, "active", []domain.Product{{ID: "p"}}, time.Minute))

	_, ok, err := c.GetProducts(ctx, "active")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCatalogCacheRoundTripAndInvalidate(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := fmt.Sprintf("test-%d", time.Now().UnixNano())

	products := []domain.Product{{ID: "prod-lpg-9kg", Name: "9kg LPG Cylinder", UnitPrice: decimal.NewFromInt(350), Active: true}}
	require.NoError(t, c.SetProducts(ctx, key, products, time.Minute))

	cached, ok, err := c.GetProducts(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, cached[0].UnitPrice.Equal(decimal.NewFromInt(350)))

	require.NoError(t, c.Invalidate(ctx))
	_, ok, err = c.GetProducts(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCartSessionsPersistCart(t *testing.T) {
	c := newTestClient(t)
	sessions := NewRedisCartSessions(c.client, time.Minute)
	ctx := context.Background()
	sessionID := fmt.Sprintf("till-%d", time.Now().UnixNano())
	t.Cleanup(func() { _ = sessions.Delete(ctx, sessionID) })

	empty, err := sessions.Load(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	basket := cart.New()
	require.NoError(t, basket.AddItem(domain.Product{ID: "prod-lpg-9kg", Name: "9kg", UnitPrice: decimal.NewFromInt(350)}, 2))
	require.NoError(t, basket.SetPaymentMethod(domain.PaymentCash))
	require.NoError(t, sessions.Save(ctx, sessionID, basket))

	loaded, err := sessions.Load(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, loaded.Total().Equal(decimal.NewFromInt(700)))
	assert.Equal(t, domain.PaymentCash, loaded.PaymentMethod)
}
