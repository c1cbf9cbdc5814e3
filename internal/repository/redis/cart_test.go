package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rownie/vc-module-cart/pkg/errors"
	"github.com/rownie/vc-module-cart/internal/domain"
)

func setupTestRedis(t *testing.T) (*CartRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	repo := NewCartRepository(client, 24*time.Hour)
	return repo, mr
}

func sampleCart(id string) *domain.Cart {
	now := time.Now().UTC().Truncate(time.Millisecond)
	cart := &domain.Cart{
		ID:         id,
		StoreID:    "store-1",
		CustomerID: "cust-1",
		Name:       "default",
		Currency:   "USD",
		Items: []domain.LineItem{
			{ID: "L1", ProductID: "prod-1", SKU: "SKU-1", Name: "Widget", Price: 1990, Quantity: 2},
		},
		Shipments: []domain.Shipment{},
		Payments:  []domain.Payment{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	cart.RecalculateTotals()
	return cart
}

func TestCartRepository_SaveAndGetByIDs(t *testing.T) {
	repo, _ := setupTestRedis(t)
	ctx := context.Background()

	cart := sampleCart("cart-1")
	require.NoError(t, repo.Save(ctx, cart))

	got, err := repo.GetByIDs(ctx, []string{"cart-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, cart.ID, got[0].ID)
	assert.Equal(t, cart.StoreID, got[0].StoreID)
	assert.Equal(t, cart.SubTotal, got[0].SubTotal)
	require.Len(t, got[0].Items, 1)
	assert.Equal(t, "SKU-1", got[0].Items[0].SKU)
}

func TestCartRepository_GetByIDs_SkipsMissing(t *testing.T) {
	repo, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleCart("cart-1")))

	got, err := repo.GetByIDs(ctx, []string{"cart-1", "nope"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "cart-1", got[0].ID)
}

func TestCartRepository_GetByOwner(t *testing.T) {
	repo, _ := setupTestRedis(t)
	ctx := context.Background()

	cart := sampleCart("cart-1")
	require.NoError(t, repo.Save(ctx, cart))

	got, err := repo.GetByOwner(ctx, cart.OwnerKey())
	require.NoError(t, err)
	assert.Equal(t, "cart-1", got.ID)
}

func TestCartRepository_GetByOwner_NotFound(t *testing.T) {
	repo, _ := setupTestRedis(t)

	_, err := repo.GetByOwner(context.Background(), domain.OwnerKey{
		StoreID: "store-1", CustomerID: "ghost", Name: "default", Currency: "USD",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestCartRepository_GetByOwner_StaleIndex(t *testing.T) {
	repo, mr := setupTestRedis(t)
	ctx := context.Background()

	cart := sampleCart("cart-1")
	require.NoError(t, repo.Save(ctx, cart))

	// Expire the cart value but leave the index entry behind.
	mr.Del(cartKey("cart-1"))

	_, err := repo.GetByOwner(ctx, cart.OwnerKey())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestCartRepository_Save_RefreshesTTL(t *testing.T) {
	repo, mr := setupTestRedis(t)
	ctx := context.Background()

	cart := sampleCart("cart-1")
	require.NoError(t, repo.Save(ctx, cart))

	ttl := mr.TTL(cartKey("cart-1"))
	assert.Equal(t, 24*time.Hour, ttl)
}

func TestCartRepository_Delete(t *testing.T) {
	repo, mr := setupTestRedis(t)
	ctx := context.Background()

	cart := sampleCart("cart-1")
	require.NoError(t, repo.Save(ctx, cart))
	require.NoError(t, repo.Delete(ctx, []string{"cart-1", "unknown"}))

	got, err := repo.GetByIDs(ctx, []string{"cart-1"})
	require.NoError(t, err)
	assert.Empty(t, got)

	// Owner index and id set must be gone too.
	assert.False(t, mr.Exists(ownerKey(cart.OwnerKey())))
	members, _ := mr.SMembers(idSetKey)
	assert.Empty(t, members)
}

func TestCartRepository_Search(t *testing.T) {
	repo, _ := setupTestRedis(t)
	ctx := context.Background()

	a := sampleCart("cart-a")
	b := sampleCart("cart-b")
	b.CustomerID = "cust-2"
	b.CreatedAt = a.CreatedAt.Add(time.Minute)
	c := sampleCart("cart-c")
	c.Currency = "EUR"
	require.NoError(t, repo.Save(ctx, a, b, c))

	results, total, err := repo.Search(ctx, domain.SearchCriteria{Currency: "USD"}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, results, 2)
	// Newest first.
	assert.Equal(t, "cart-b", results[0].ID)
	assert.Equal(t, "cart-a", results[1].ID)
}

func TestCartRepository_Search_Paging(t *testing.T) {
	repo, _ := setupTestRedis(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"c1", "c2", "c3"} {
		cart := sampleCart(id)
		cart.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Save(ctx, cart))
	}

	results, total, err := repo.Search(ctx, domain.SearchCriteria{}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, results, 1)
	assert.Equal(t, "c2", results[0].ID)

	results, total, err = repo.Search(ctx, domain.SearchCriteria{}, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, results)
}

func TestCartRepository_RoundTripPreservesStructure(t *testing.T) {
	repo, _ := setupTestRedis(t)
	ctx := context.Background()

	cart := sampleCart("cart-1")
	cart.Coupon = "SAVE10"
	cart.Shipments = []domain.Shipment{{ID: "S1", MethodCode: "ground", Price: 500, Currency: "USD"}}
	cart.Payments = []domain.Payment{{ID: "P1", GatewayCode: "card", Amount: 4480, Currency: "USD"}}
	cart.RecalculateTotals()
	require.NoError(t, repo.Save(ctx, cart))

	got, err := repo.GetByIDs(ctx, []string{"cart-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	want, _ := json.Marshal(cart)
	have, _ := json.Marshal(got[0])
	assert.JSONEq(t, string(want), string(have))
}
