package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rownie/vc-module-cart/pkg/health"
	"github.com/rownie/vc-module-cart/pkg/httputil"
	pkgkafka "github.com/rownie/vc-module-cart/pkg/kafka"
	"github.com/rownie/vc-module-cart/pkg/keymutex"
	"github.com/rownie/vc-module-cart/internal/domain"
	"github.com/rownie/vc-module-cart/internal/event"
	"github.com/rownie/vc-module-cart/internal/pricing/static"
	redisrepo "github.com/rownie/vc-module-cart/internal/repository/redis"
	"github.com/rownie/vc-module-cart/internal/service"
)

// ============================================================================
// Test helpers
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupServer wires the full production router over a miniredis-backed
// repository so routes, middleware and service behavior are tested together.
func setupServer(t *testing.T) (http.Handler, *redisrepo.CartRepository) {
	t.Helper()
	logger := testLogger()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	repo := redisrepo.NewCartRepository(client, 24*time.Hour)

	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:19092"})
	kafkaCfg.Async = true
	producer := event.NewProducer(pkgkafka.NewProducer(kafkaCfg, logger), logger)

	svc := service.NewCartService(
		repo,
		keymutex.New(),
		producer,
		static.NewRateProvider(nil),
		static.NewMethodProvider(nil),
		static.NewCouponValidator([]string{"SAVE10"}),
		logger,
	)

	return NewRouter(svc, health.NewHandler(), logger), repo
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func seedCart(t *testing.T, repo *redisrepo.CartRepository, id string) *domain.Cart {
	t.Helper()
	cart := &domain.Cart{
		ID:         id,
		StoreID:    "store-1",
		CustomerID: "cust-1",
		Name:       "default",
		Currency:   "USD",
		Items: []domain.LineItem{
			{ID: "L1", ProductID: "prod-1", SKU: "SKU-1", Name: "Widget", Price: 1000, Quantity: 2},
		},
		Shipments: []domain.Shipment{},
		Payments:  []domain.Payment{},
		CreatedAt: time.Now().UTC(),
	}
	cart.RecalculateTotals()
	require.NoError(t, repo.Save(context.Background(), cart))
	return cart
}

func loadCart(t *testing.T, repo *redisrepo.CartRepository, id string) *domain.Cart {
	t.Helper()
	carts, err := repo.GetByIDs(context.Background(), []string{id})
	require.NoError(t, err)
	require.Len(t, carts, 1)
	return carts[0]
}

// ============================================================================
// Tests
// ============================================================================

func TestGetCurrentCart_CreatesThenReturnsSame(t *testing.T) {
	router, _ := setupServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/carts/store-1/cust-1/default/USD/en-US/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var first domain.Cart
	resp := decodeResponse(t, rec)
	data, _ := json.Marshal(resp.Data)
	require.NoError(t, json.Unmarshal(data, &first))
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "store-1", first.StoreID)
	assert.Empty(t, first.Items)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/carts/store-1/cust-1/default/USD/en-US/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var second domain.Cart
	resp = decodeResponse(t, rec)
	data, _ = json.Marshal(resp.Data)
	require.NoError(t, json.Unmarshal(data, &second))
	assert.Equal(t, first.ID, second.ID)
}

func TestGetCartByID_NotFound(t *testing.T) {
	router, _ := setupServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/carts/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestGetItemsCount(t *testing.T) {
	router, repo := setupServer(t)
	seedCart(t, repo, "cart-1")

	rec := doJSON(t, router, http.MethodGet, "/api/v1/carts/cart-1/itemscount", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"count":1}}`, rec.Body.String())

	// Unknown cart reports zero, not an error.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/carts/ghost/itemscount", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"count":0}}`, rec.Body.String())
}

func TestAddItem(t *testing.T) {
	router, repo := setupServer(t)
	seedCart(t, repo, "cart-1")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/carts/cart-1/items", map[string]any{
		"product_id": "prod-2",
		"sku":        "SKU-2",
		"name":       "Gadget",
		"price":      500,
		"quantity":   3,
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	cart := loadCart(t, repo, "cart-1")
	assert.Equal(t, 2, cart.ItemCount())
}

func TestAddItem_ValidationError(t *testing.T) {
	router, repo := setupServer(t)
	seedCart(t, repo, "cart-1")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/carts/cart-1/items", map[string]any{
		"sku": "SKU-2",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "ProductID")
}

func TestAddItem_UnknownCart(t *testing.T) {
	router, _ := setupServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/carts/ghost/items", map[string]any{
		"product_id": "prod-2",
		"sku":        "SKU-2",
		"name":       "Gadget",
		"price":      500,
		"quantity":   1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChangeItemQuantity(t *testing.T) {
	router, repo := setupServer(t)
	seedCart(t, repo, "cart-1")

	rec := doJSON(t, router, http.MethodPut, "/api/v1/carts/cart-1/items?lineItemId=L1&quantity=7", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 7, loadCart(t, repo, "cart-1").Items[0].Quantity)

	// Quantity zero removes the line.
	rec = doJSON(t, router, http.MethodPut, "/api/v1/carts/cart-1/items?lineItemId=L1&quantity=0", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, loadCart(t, repo, "cart-1").Items)
}

func TestChangeItemQuantity_MissingParams(t *testing.T) {
	router, repo := setupServer(t)
	seedCart(t, repo, "cart-1")

	rec := doJSON(t, router, http.MethodPut, "/api/v1/carts/cart-1/items?quantity=7", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/api/v1/carts/cart-1/items?lineItemId=L1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveItem_ReturnsCount(t *testing.T) {
	router, repo := setupServer(t)
	seedCart(t, repo, "cart-1")

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/carts/cart-1/items/L1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"count":0}}`, rec.Body.String())

	// Removing it again is an idempotent no-op.
	rec = doJSON(t, router, http.MethodDelete, "/api/v1/carts/cart-1/items/L1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"count":0}}`, rec.Body.String())
}

func TestClear(t *testing.T) {
	router, repo := setupServer(t)
	seedCart(t, repo, "cart-1")

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/carts/cart-1/items", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, loadCart(t, repo, "cart-1").Items)
}

func TestMergeWithCart(t *testing.T) {
	router, repo := setupServer(t)
	seedCart(t, repo, "cart-1")

	rec := doJSON(t, router, http.MethodPatch, "/api/v1/carts/cart-1", map[string]any{
		"items": []map[string]any{
			{"product_id": "prod-1", "sku": "SKU-1", "name": "Widget", "price": 1000, "quantity": 3},
			{"product_id": "prod-9", "sku": "SKU-9", "name": "Doohickey", "price": 250, "quantity": 1},
		},
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	cart := loadCart(t, repo, "cart-1")
	require.Len(t, cart.Items, 2)
	assert.Equal(t, 5, cart.Items[0].Quantity)
}

func TestCoupons(t *testing.T) {
	router, repo := setupServer(t)
	seedCart(t, repo, "cart-1")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/carts/cart-1/coupons/SAVE10", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "SAVE10", loadCart(t, repo, "cart-1").Coupon)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/carts/cart-1/coupons/SAVE10", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, loadCart(t, repo, "cart-1").Coupon)
}

func TestAddCoupon_Rejected(t *testing.T) {
	router, repo := setupServer(t)
	seedCart(t, repo, "cart-1")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/carts/cart-1/coupons/BOGUS", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, loadCart(t, repo, "cart-1").Coupon)
}

func TestAddOrUpdateShipment(t *testing.T) {
	router, repo := setupServer(t)
	seedCart(t, repo, "cart-1")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/carts/cart-1/shipments", map[string]any{
		"method_code": "ground",
		"price":       700,
		"currency":    "USD",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	cart := loadCart(t, repo, "cart-1")
	require.Len(t, cart.Shipments, 1)
	assert.Equal(t, int64(2000+700), cart.Total)
}

func TestAddOrUpdatePayment(t *testing.T) {
	router, repo := setupServer(t)
	seedCart(t, repo, "cart-1")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/carts/cart-1/payments", map[string]any{
		"gateway_code": "card",
		"amount":       2000,
		"currency":     "USD",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, loadCart(t, repo, "cart-1").Payments, 1)
}

func TestAvailableRatesAndMethods(t *testing.T) {
	router, repo := setupServer(t)
	seedCart(t, repo, "cart-1")

	rec := doJSON(t, router, http.MethodGet, "/api/v1/carts/cart-1/availshippingrates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.NotEmpty(t, resp.Data)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/carts/cart-1/availpaymentmethods", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeResponse(t, rec)
	assert.NotEmpty(t, resp.Data)
}

func TestSearch(t *testing.T) {
	router, repo := setupServer(t)
	for i := 0; i < 3; i++ {
		cart := seedCart(t, repo, fmt.Sprintf("cart-%d", i))
		cart.CustomerID = fmt.Sprintf("cust-%d", i)
		require.NoError(t, repo.Save(context.Background(), cart))
	}

	rec := doJSON(t, router, http.MethodPost, "/api/v1/carts/search?page=1&per_page=2", map[string]any{
		"currency": "USD",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result httputil.PaginatedResponse[domain.Cart]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, 3, result.TotalCount)
	assert.Len(t, result.Data, 2)
	assert.True(t, result.HasNext)
}

func TestCreateAndUpdate(t *testing.T) {
	router, repo := setupServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/carts/", map[string]any{
		"store_id":    "store-1",
		"customer_id": "cust-1",
		"name":        "default",
		"currency":    "USD",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var created domain.Cart
	resp := decodeResponse(t, rec)
	data, _ := json.Marshal(resp.Data)
	require.NoError(t, json.Unmarshal(data, &created))
	require.NotEmpty(t, created.ID)

	created.Coupon = ""
	created.Items = []domain.LineItem{{ID: "L1", ProductID: "p", SKU: "s", Name: "A", Price: 100, Quantity: 1}}
	rec = doJSON(t, router, http.MethodPut, "/api/v1/carts/", created)
	require.Equal(t, http.StatusOK, rec.Code)

	got := loadCart(t, repo, created.ID)
	assert.Equal(t, 1, got.ItemCount())
	assert.Equal(t, int64(100), got.SubTotal)
}

func TestDeleteCarts(t *testing.T) {
	router, repo := setupServer(t)
	seedCart(t, repo, "cart-1")
	c2 := seedCart(t, repo, "cart-2")
	c2.CustomerID = "cust-2"
	require.NoError(t, repo.Save(context.Background(), c2))

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/carts/?ids=cart-1,cart-2", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	carts, err := repo.GetByIDs(context.Background(), []string{"cart-1", "cart-2"})
	require.NoError(t, err)
	assert.Empty(t, carts)
}

func TestContentTypeEnforced(t *testing.T) {
	router, repo := setupServer(t)
	seedCart(t, repo, "cart-1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/carts/cart-1/items", bytes.NewBufferString(`{"product_id":"p"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}
