package cart

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
	"github.com/Heinvv10/gaztime-sub001/internal/store"
)

var (
	cylinder9  = domain.Product{ID: "prod-9kg", Name: "9kg LPG Cylinder", UnitPrice: decimal.NewFromInt(350), Active: true}
	cylinder19 = domain.Product{ID: "prod-19kg", Name: "19kg LPG Cylinder", UnitPrice: decimal.RequireFromString("735.50"), Active: true}
	cylinder48 = domain.Product{ID: "prod-48kg", Name: "48kg LPG Cylinder", UnitPrice: decimal.NewFromInt(1850), Active: true}
)

func TestAddSameProductMergesQuantity(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(cylinder9, 2))
	require.NoError(t, c.AddItem(cylinder9, 3))

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
	assert.True(t, c.Total().Equal(decimal.NewFromInt(1750)))
}

func TestAddRejectsNonPositiveQuantity(t *testing.T) {
	c := New()
	err := c.AddItem(cylinder9, 0)
	require.ErrorIs(t, err, store.ErrValidation)
	assert.True(t, c.IsEmpty())
}

func TestItemsKeepInsertionOrder(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(cylinder48, 1))
	require.NoError(t, c.AddItem(cylinder9, 1))
	require.NoError(t, c.AddItem(cylinder48, 1))

	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "prod-48kg", items[0].ProductID)
	assert.Equal(t, "prod-9kg", items[1].ProductID)
}

func TestRemoveAbsentIsNoOp(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(cylinder9, 1))
	c.RemoveItem("prod-unknown")
	assert.Len(t, c.Items(), 1)
}

func TestClearResetsPaymentMethod(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(cylinder9, 1))
	require.NoError(t, c.SetPaymentMethod(domain.PaymentCash))
	c.Clear()

	assert.True(t, c.IsEmpty())
	assert.Empty(t, c.PaymentMethod)
	assert.True(t, c.Total().IsZero())
	require.ErrorIs(t, c.SetPaymentMethod("card"), store.ErrValidation)
}

func TestTotalMatchesLinesAfterRandomEdits(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	products := []domain.Product{cylinder9, cylinder19, cylinder48}
	c := New()
	for step := 0; step < 500; step++ {
		p := products[rng.IntN(len(products))]
		if rng.IntN(3) == 0 {
			c.RemoveItem(p.ID)
		} else {
			require.NoError(t, c.AddItem(p, 1+rng.IntN(4)))
		}

		expected := decimal.Zero
		seen := map[string]bool{}
		for _, line := range c.Items() {
			assert.False(t, seen[line.ProductID], "duplicate line for %s", line.ProductID)
			seen[line.ProductID] = true
			expected = expected.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}
		require.True(t, c.Total().Equal(expected), "step %d", step)
	}
}

func TestMemorySessionStoreExpiresIdleCarts(t *testing.T) {
	sessions := NewMemorySessionStore(time.Minute)
	clock := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return clock }
	ctx := context.Background()

	c := New()
	require.NoError(t, c.AddItem(cylinder9, 1))
	require.NoError(t, sessions.Save(ctx, "till-1", c))

	loaded, err := sessions.Load(ctx, "till-1")
	require.NoError(t, err)
	assert.Len(t, loaded.Items(), 1)

	loaded.RemoveItem(cylinder9.ID)
	again, err := sessions.Load(ctx, "till-1")
	require.NoError(t, err)
	assert.Len(t, again.Items(), 1, "loaded carts are copies")

	clock = clock.Add(2 * time.Minute)
	expired, err := sessions.Load(ctx, "till-1")
	require.NoError(t, err)
	assert.True(t, expired.IsEmpty())
}
