package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rownie/vc-module-cart/pkg/health"
	"github.com/rownie/vc-module-cart/pkg/middleware"
	"github.com/rownie/vc-module-cart/internal/service"
)

// NewRouter creates a chi router with all cart service routes registered.
func NewRouter(
	cartService *service.CartService,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("cart"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Cart API endpoints
	cartHandler := NewCartHandler(cartService, logger)

	r.Route("/api/v1/carts", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/search", cartHandler.Search)
		r.Post("/", cartHandler.Create)
		r.Put("/", cartHandler.Update)
		r.Delete("/", cartHandler.DeleteCarts)

		r.Get("/{storeId}/{customerId}/{cartName}/{currency}/{cultureName}/current", cartHandler.GetCurrentCart)

		r.Get("/{cartId}", cartHandler.GetCartByID)
		r.Patch("/{cartId}", cartHandler.MergeWithCart)
		r.Get("/{cartId}/itemscount", cartHandler.GetItemsCount)
		r.Get("/{cartId}/availshippingrates", cartHandler.GetAvailableShippingRates)
		r.Get("/{cartId}/availpaymentmethods", cartHandler.GetAvailablePaymentMethods)

		r.Post("/{cartId}/items", cartHandler.AddItem)
		r.Put("/{cartId}/items", cartHandler.ChangeItemQuantity)
		r.Delete("/{cartId}/items", cartHandler.Clear)
		r.Delete("/{cartId}/items/{lineItemId}", cartHandler.RemoveItem)

		r.Post("/{cartId}/coupons/{couponCode}", cartHandler.AddCoupon)
		r.Delete("/{cartId}/coupons/{couponCode}", cartHandler.RemoveCoupon)

		r.Post("/{cartId}/shipments", cartHandler.AddOrUpdateShipment)
		r.Post("/{cartId}/payments", cartHandler.AddOrUpdatePayment)
	})

	return r
}
