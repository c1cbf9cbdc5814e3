package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rownie/vc-module-cart/pkg/httputil"
	"github.com/rownie/vc-module-cart/pkg/pagination"
	"github.com/rownie/vc-module-cart/pkg/validator"
	"github.com/rownie/vc-module-cart/internal/domain"
	"github.com/rownie/vc-module-cart/internal/service"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	service *service.CartService
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc *service.CartService, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// ShipmentRequest is the JSON request body for upserting a shipment.
type ShipmentRequest struct {
	ID           string `json:"id"`
	MethodCode   string `json:"method_code" validate:"required"`
	Price        int64  `json:"price" validate:"gte=0"`
	Currency     string `json:"currency" validate:"required"`
	RecipientZip string `json:"recipient_zip"`
}

// PaymentRequest is the JSON request body for upserting a payment.
type PaymentRequest struct {
	ID          string `json:"id"`
	GatewayCode string `json:"gateway_code" validate:"required"`
	Amount      int64  `json:"amount" validate:"gte=0"`
	Currency    string `json:"currency" validate:"required"`
}

// SearchRequest is the JSON request body for a cart search.
type SearchRequest struct {
	domain.SearchCriteria
}

// --- Handlers ---

// GetCurrentCart handles
// GET /api/v1/carts/{storeId}/{customerId}/{cartName}/{currency}/{cultureName}/current
func (h *CartHandler) GetCurrentCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.GetOrCreateCart(r.Context(),
		chi.URLParam(r, "storeId"),
		chi.URLParam(r, "customerId"),
		chi.URLParam(r, "cartName"),
		chi.URLParam(r, "currency"),
		chi.URLParam(r, "cultureName"),
	)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: cart})
}

// GetCartByID handles GET /api/v1/carts/{cartId}
func (h *CartHandler) GetCartByID(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.GetCartByID(r.Context(), chi.URLParam(r, "cartId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: cart})
}

// GetItemsCount handles GET /api/v1/carts/{cartId}/itemscount
func (h *CartHandler) GetItemsCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.GetItemsCount(r.Context(), chi.URLParam(r, "cartId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]int{"count": count}})
}

// AddItem handles POST /api/v1/carts/{cartId}/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var input service.AddItemInput
	if err := validator.DecodeAndValidate(r, &input); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.service.AddItem(r.Context(), chi.URLParam(r, "cartId"), input); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangeItemQuantity handles PUT /api/v1/carts/{cartId}/items?lineItemId=&quantity=
func (h *CartHandler) ChangeItemQuantity(w http.ResponseWriter, r *http.Request) {
	lineItemID := r.URL.Query().Get("lineItemId")
	quantityRaw := r.URL.Query().Get("quantity")
	quantity, err := strconv.Atoi(quantityRaw)
	if lineItemID == "" || err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "lineItemId and a numeric quantity are required"},
		})
		return
	}

	if err := h.service.ChangeItemQuantity(r.Context(), chi.URLParam(r, "cartId"), lineItemID, quantity); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveItem handles DELETE /api/v1/carts/{cartId}/items/{lineItemId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.RemoveItem(r.Context(), chi.URLParam(r, "cartId"), chi.URLParam(r, "lineItemId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]int{"count": count}})
}

// Clear handles DELETE /api/v1/carts/{cartId}/items
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context(), chi.URLParam(r, "cartId")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MergeWithCart handles PATCH /api/v1/carts/{cartId}
func (h *CartHandler) MergeWithCart(w http.ResponseWriter, r *http.Request) {
	var other domain.Cart
	if err := validator.DecodeAndValidate(r, &other); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.service.MergeWithCart(r.Context(), chi.URLParam(r, "cartId"), &other); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAvailableShippingRates handles GET /api/v1/carts/{cartId}/availshippingrates
func (h *CartHandler) GetAvailableShippingRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.service.GetAvailableShippingRates(r.Context(), chi.URLParam(r, "cartId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: rates})
}

// GetAvailablePaymentMethods handles GET /api/v1/carts/{cartId}/availpaymentmethods
func (h *CartHandler) GetAvailablePaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.service.GetAvailablePaymentMethods(r.Context(), chi.URLParam(r, "cartId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: methods})
}

// AddCoupon handles POST /api/v1/carts/{cartId}/coupons/{couponCode}
func (h *CartHandler) AddCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.service.AddCoupon(r.Context(), chi.URLParam(r, "cartId"), chi.URLParam(r, "couponCode")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveCoupon handles DELETE /api/v1/carts/{cartId}/coupons/{couponCode}
func (h *CartHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveCoupon(r.Context(), chi.URLParam(r, "cartId")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddOrUpdateShipment handles POST /api/v1/carts/{cartId}/shipments
func (h *CartHandler) AddOrUpdateShipment(w http.ResponseWriter, r *http.Request) {
	var req ShipmentRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	shipment := domain.Shipment{
		ID:           req.ID,
		MethodCode:   req.MethodCode,
		Price:        req.Price,
		Currency:     req.Currency,
		RecipientZip: req.RecipientZip,
	}
	if err := h.service.AddOrUpdateShipment(r.Context(), chi.URLParam(r, "cartId"), shipment); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddOrUpdatePayment handles POST /api/v1/carts/{cartId}/payments
func (h *CartHandler) AddOrUpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	payment := domain.Payment{
		ID:          req.ID,
		GatewayCode: req.GatewayCode,
		Amount:      req.Amount,
		Currency:    req.Currency,
	}
	if err := h.service.AddOrUpdatePayment(r.Context(), chi.URLParam(r, "cartId"), payment); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles POST /api/v1/carts/search
func (h *CartHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	params := pagination.FromRequest(r)
	carts, total, err := h.service.Search(r.Context(), req.SearchCriteria, params.Offset, params.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(carts, total, params.Page, params.PerPage))
}

// Create handles POST /api/v1/carts
func (h *CartHandler) Create(w http.ResponseWriter, r *http.Request) {
	var cart domain.Cart
	if err := validator.DecodeAndValidate(r, &cart); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	created, err := h.service.Create(r.Context(), &cart)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: created})
}

// Update handles PUT /api/v1/carts
func (h *CartHandler) Update(w http.ResponseWriter, r *http.Request) {
	var cart domain.Cart
	if err := validator.DecodeAndValidate(r, &cart); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	updated, err := h.service.Update(r.Context(), &cart)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: updated})
}

// DeleteCarts handles DELETE /api/v1/carts?ids=a,b,c
func (h *CartHandler) DeleteCarts(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, raw := range r.URL.Query()["ids"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	if err := h.service.DeleteCarts(r.Context(), ids); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
