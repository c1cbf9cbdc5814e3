package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/rownie/vc-module-cart/pkg/errors"
	"github.com/rownie/vc-module-cart/pkg/keymutex"
	"github.com/rownie/vc-module-cart/internal/domain"
	"github.com/rownie/vc-module-cart/internal/event"
	"github.com/rownie/vc-module-cart/internal/pricing"
	"github.com/rownie/vc-module-cart/internal/repository"
)

// Cart operation upper-bound limits to prevent abuse.
const (
	// MaxQuantityPerItem is the maximum quantity allowed for a single cart line.
	MaxQuantityPerItem = 100
	// MaxItemsPerCart is the maximum number of distinct lines allowed in a cart.
	MaxItemsPerCart = 50
	// MaxPriceCents is the maximum price in cents (100,000.00) allowed per item.
	MaxPriceCents = 100_000_00
)

const lockKeyPrefix = "Cart:"

// cartLockKey derives the serialization key for an id-addressed mutation.
func cartLockKey(cartID string) string {
	return lockKeyPrefix + cartID
}

// ownerLockKey derives the serialization key for a cart addressed by its
// owner tuple, used before the cart has an id.
func ownerLockKey(owner domain.OwnerKey) string {
	return lockKeyPrefix + strings.Join([]string{owner.StoreID, owner.CustomerID, owner.Name, owner.Currency}, ":")
}

// AddItemInput holds the parameters for adding an item to a cart.
type AddItemInput struct {
	ProductID string `json:"product_id" validate:"required"`
	SKU       string `json:"sku" validate:"required"`
	Name      string `json:"name" validate:"required,min=1,max=500"`
	Price     int64  `json:"price" validate:"gte=0"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
	ImageURL  string `json:"image_url"`
}

// CartService implements the business logic for cart operations. Every
// mutation runs a load-mutate-save transaction under the cart's lock key, so
// mutations on the same cart are applied one at a time while unrelated carts
// proceed in parallel.
type CartService struct {
	repo     repository.CartRepository
	locks    *keymutex.KeyedMutex
	producer *event.Producer
	rates    pricing.RateProvider
	methods  pricing.MethodProvider
	coupons  pricing.CouponValidator
	logger   *slog.Logger
}

// NewCartService creates a new cart service.
func NewCartService(
	repo repository.CartRepository,
	locks *keymutex.KeyedMutex,
	producer *event.Producer,
	rates pricing.RateProvider,
	methods pricing.MethodProvider,
	coupons pricing.CouponValidator,
	logger *slog.Logger,
) *CartService {
	return &CartService{
		repo:     repo,
		locks:    locks,
		producer: producer,
		rates:    rates,
		methods:  methods,
		coupons:  coupons,
		logger:   logger,
	}
}

// takeCart starts a mutation chain over a loaded cart.
func (s *CartService) takeCart(cart *domain.Cart) *CartBuilder {
	return &CartBuilder{cart: cart, repo: s.repo, coupons: s.coupons}
}

// loadCart fetches a cart by id or reports not-found. Mutations never
// construct a cart from nothing; only GetOrCreateCart does.
func (s *CartService) loadCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	carts, err := s.repo.GetByIDs(ctx, []string{cartID})
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(carts) == 0 {
		return nil, apperrors.NotFound("cart", cartID)
	}
	return carts[0], nil
}

// mutate runs one load-mutate-save transaction for the cart under its lock
// key. The lock is released on every exit path; a canceled ctx while waiting
// returns the cancellation without ever acquiring the lock.
func (s *CartService) mutate(ctx context.Context, cartID string, fn func(*CartBuilder) *CartBuilder) (*domain.Cart, error) {
	var saved *domain.Cart
	err := s.locks.WithLock(ctx, cartLockKey(cartID), func() error {
		cart, err := s.loadCart(ctx, cartID)
		if err != nil {
			return err
		}
		saved, err = fn(s.takeCart(cart)).Save(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.producer.PublishCartUpdated(ctx, saved); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("cart_id", saved.ID),
			slog.String("error", err.Error()),
		)
	}
	return saved, nil
}

// GetOrCreateCart returns the cart for the owner tuple, creating and
// persisting an empty one if none exists. The operation is serialized on the
// tuple-derived key, so concurrent first requests for the same owner observe
// a single created cart.
func (s *CartService) GetOrCreateCart(ctx context.Context, storeID, customerID, name, currency, languageCode string) (*domain.Cart, error) {
	if storeID == "" || customerID == "" || name == "" || currency == "" {
		return nil, apperrors.InvalidInput("store id, customer id, cart name and currency are required")
	}

	owner := domain.OwnerKey{StoreID: storeID, CustomerID: customerID, Name: name, Currency: currency}

	var cart *domain.Cart
	err := s.locks.WithLock(ctx, ownerLockKey(owner), func() error {
		existing, err := s.repo.GetByOwner(ctx, owner)
		if err == nil {
			cart = existing
			return nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("get cart by owner: %w", err)
		}

		now := time.Now().UTC()
		cart = &domain.Cart{
			ID:           uuid.New().String(),
			StoreID:      storeID,
			CustomerID:   customerID,
			Name:         name,
			Currency:     currency,
			LanguageCode: languageCode,
			Items:        []domain.LineItem{},
			Shipments:    []domain.Shipment{},
			Payments:     []domain.Payment{},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		cart.RecalculateTotals()
		if err := s.repo.Save(ctx, cart); err != nil {
			return fmt.Errorf("save new cart: %w", err)
		}

		s.logger.InfoContext(ctx, "cart created",
			slog.String("cart_id", cart.ID),
			slog.String("store_id", storeID),
			slog.String("customer_id", customerID),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// GetCartByID fetches a cart by id without taking its lock.
func (s *CartService) GetCartByID(ctx context.Context, cartID string) (*domain.Cart, error) {
	if cartID == "" {
		return nil, apperrors.InvalidInput("cart id is required")
	}
	return s.loadCart(ctx, cartID)
}

// GetItemsCount returns the number of lines in the cart, or 0 if the cart
// does not exist.
func (s *CartService) GetItemsCount(ctx context.Context, cartID string) (int, error) {
	carts, err := s.repo.GetByIDs(ctx, []string{cartID})
	if err != nil {
		return 0, fmt.Errorf("load cart: %w", err)
	}
	if len(carts) == 0 {
		return 0, nil
	}
	return carts[0].ItemCount(), nil
}

// AddItem adds a line to the cart, merging quantities into an existing line
// with the same item identity.
func (s *CartService) AddItem(ctx context.Context, cartID string, input AddItemInput) error {
	if cartID == "" {
		return apperrors.InvalidInput("cart id is required")
	}
	if input.ProductID == "" || input.SKU == "" {
		return apperrors.InvalidInput("product id and sku are required")
	}
	if input.Quantity <= 0 {
		return apperrors.InvalidInput("quantity must be greater than 0")
	}
	if input.Quantity > MaxQuantityPerItem {
		return apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerItem))
	}
	if input.Price < 0 {
		return apperrors.InvalidInput("price must not be negative")
	}
	if input.Price > MaxPriceCents {
		return apperrors.InvalidInput(fmt.Sprintf("price must not exceed %d cents", MaxPriceCents))
	}

	cart, err := s.mutate(ctx, cartID, func(b *CartBuilder) *CartBuilder {
		if b.Cart().ItemCount() >= MaxItemsPerCart && b.Cart().FindMatchingItemIndex(domain.LineItem{ProductID: input.ProductID, SKU: input.SKU}) < 0 {
			b.err = apperrors.InvalidInput(fmt.Sprintf("cart must not contain more than %d items", MaxItemsPerCart))
			return b
		}
		return b.AddItem(domain.LineItem{
			ProductID: input.ProductID,
			SKU:       input.SKU,
			Name:      input.Name,
			Price:     input.Price,
			Quantity:  input.Quantity,
			ImageURL:  input.ImageURL,
		})
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("cart_id", cart.ID),
		slog.String("product_id", input.ProductID),
		slog.String("sku", input.SKU),
		slog.Int("quantity", input.Quantity),
	)
	return nil
}

// ChangeItemQuantity sets a line's quantity. Zero removes the line; an
// absent line id is a silent no-op.
func (s *CartService) ChangeItemQuantity(ctx context.Context, cartID, lineItemID string, quantity int) error {
	if cartID == "" || lineItemID == "" {
		return apperrors.InvalidInput("cart id and line item id are required")
	}
	if quantity > MaxQuantityPerItem {
		return apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerItem))
	}

	cart, err := s.mutate(ctx, cartID, func(b *CartBuilder) *CartBuilder {
		return b.ChangeItemQuantity(lineItemID, quantity)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "cart item quantity changed",
		slog.String("cart_id", cart.ID),
		slog.String("line_item_id", lineItemID),
		slog.Int("quantity", quantity),
	)
	return nil
}

// RemoveItem removes a line and returns the remaining line count. An absent
// line id is a silent no-op.
func (s *CartService) RemoveItem(ctx context.Context, cartID, lineItemID string) (int, error) {
	if cartID == "" || lineItemID == "" {
		return 0, apperrors.InvalidInput("cart id and line item id are required")
	}

	cart, err := s.mutate(ctx, cartID, func(b *CartBuilder) *CartBuilder {
		return b.RemoveItem(lineItemID)
	})
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "item removed from cart",
		slog.String("cart_id", cart.ID),
		slog.String("line_item_id", lineItemID),
	)
	return cart.ItemCount(), nil
}

// Clear empties the cart.
func (s *CartService) Clear(ctx context.Context, cartID string) error {
	if cartID == "" {
		return apperrors.InvalidInput("cart id is required")
	}

	cart, err := s.mutate(ctx, cartID, func(b *CartBuilder) *CartBuilder {
		return b.Clear()
	})
	if err != nil {
		return err
	}

	if err := s.producer.PublishCartCleared(ctx, cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("cart_id", cart.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cart cleared",
		slog.String("cart_id", cart.ID),
	)
	return nil
}

// MergeWithCart merges another cart's contents into the identified cart.
func (s *CartService) MergeWithCart(ctx context.Context, cartID string, other *domain.Cart) error {
	if cartID == "" {
		return apperrors.InvalidInput("cart id is required")
	}
	if other == nil {
		return apperrors.InvalidInput("cart to merge is required")
	}

	cart, err := s.mutate(ctx, cartID, func(b *CartBuilder) *CartBuilder {
		return b.MergeWithCart(other)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "cart merged",
		slog.String("cart_id", cart.ID),
		slog.Int("item_count", cart.ItemCount()),
	)
	return nil
}

// AddCoupon validates and applies a coupon code to the cart.
func (s *CartService) AddCoupon(ctx context.Context, cartID, code string) error {
	if cartID == "" {
		return apperrors.InvalidInput("cart id is required")
	}

	cart, err := s.mutate(ctx, cartID, func(b *CartBuilder) *CartBuilder {
		return b.AddCoupon(ctx, code)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "coupon added to cart",
		slog.String("cart_id", cart.ID),
		slog.String("coupon", code),
	)
	return nil
}

// RemoveCoupon clears the cart's coupon.
func (s *CartService) RemoveCoupon(ctx context.Context, cartID string) error {
	if cartID == "" {
		return apperrors.InvalidInput("cart id is required")
	}

	_, err := s.mutate(ctx, cartID, func(b *CartBuilder) *CartBuilder {
		return b.RemoveCoupon()
	})
	return err
}

// AddOrUpdateShipment upserts a shipment on the cart.
func (s *CartService) AddOrUpdateShipment(ctx context.Context, cartID string, shipment domain.Shipment) error {
	if cartID == "" {
		return apperrors.InvalidInput("cart id is required")
	}
	if shipment.MethodCode == "" {
		return apperrors.InvalidInput("shipment method code is required")
	}

	_, err := s.mutate(ctx, cartID, func(b *CartBuilder) *CartBuilder {
		return b.AddOrUpdateShipment(shipment)
	})
	return err
}

// AddOrUpdatePayment upserts a payment on the cart.
func (s *CartService) AddOrUpdatePayment(ctx context.Context, cartID string, payment domain.Payment) error {
	if cartID == "" {
		return apperrors.InvalidInput("cart id is required")
	}
	if payment.GatewayCode == "" {
		return apperrors.InvalidInput("payment gateway code is required")
	}
	if payment.Amount < 0 {
		return apperrors.InvalidInput("payment amount must not be negative")
	}

	_, err := s.mutate(ctx, cartID, func(b *CartBuilder) *CartBuilder {
		return b.AddOrUpdatePayment(payment)
	})
	return err
}

// GetAvailableShippingRates computes shipping rates for the cart's current
// persisted snapshot. No lock is taken; a concurrent mutation simply means
// the rates reflect the previous save.
func (s *CartService) GetAvailableShippingRates(ctx context.Context, cartID string) ([]pricing.ShippingRate, error) {
	cart, err := s.loadCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	rates, err := s.rates.AvailableRates(ctx, cart)
	if err != nil {
		return nil, fmt.Errorf("get shipping rates: %w", err)
	}
	return rates, nil
}

// GetAvailablePaymentMethods lists payment methods for the cart's current
// persisted snapshot, without a lock.
func (s *CartService) GetAvailablePaymentMethods(ctx context.Context, cartID string) ([]pricing.PaymentMethod, error) {
	cart, err := s.loadCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	methods, err := s.methods.AvailableMethods(ctx, cart)
	if err != nil {
		return nil, fmt.Errorf("get payment methods: %w", err)
	}
	return methods, nil
}

// Search returns carts matching the criteria with the total match count.
func (s *CartService) Search(ctx context.Context, criteria domain.SearchCriteria, offset, limit int) ([]*domain.Cart, int, error) {
	return s.repo.Search(ctx, criteria, offset, limit)
}

// Create persists a new cart supplied by the caller, assigning an id and
// timestamps when absent.
func (s *CartService) Create(ctx context.Context, cart *domain.Cart) (*domain.Cart, error) {
	if cart == nil {
		return nil, apperrors.InvalidInput("cart is required")
	}
	if cart.StoreID == "" || cart.CustomerID == "" || cart.Currency == "" {
		return nil, apperrors.InvalidInput("store id, customer id and currency are required")
	}

	if cart.ID == "" {
		cart.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now
	cart.RecalculateTotals()

	if err := s.repo.Save(ctx, cart); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}

	s.logger.InfoContext(ctx, "cart created",
		slog.String("cart_id", cart.ID),
		slog.String("store_id", cart.StoreID),
	)
	return cart, nil
}

// Update replaces a persisted cart wholesale, serialized on the cart's lock
// key so it cannot interleave with item-level mutations.
func (s *CartService) Update(ctx context.Context, cart *domain.Cart) (*domain.Cart, error) {
	if cart == nil || cart.ID == "" {
		return nil, apperrors.InvalidInput("cart id is required")
	}

	err := s.locks.WithLock(ctx, cartLockKey(cart.ID), func() error {
		if _, err := s.loadCart(ctx, cart.ID); err != nil {
			return err
		}
		cart.UpdatedAt = time.Now().UTC()
		cart.RecalculateTotals()
		if err := s.repo.Save(ctx, cart); err != nil {
			return fmt.Errorf("save cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.producer.PublishCartUpdated(ctx, cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("cart_id", cart.ID),
			slog.String("error", err.Error()),
		)
	}
	return cart, nil
}

// DeleteCarts removes carts by id. Unknown ids are ignored.
func (s *CartService) DeleteCarts(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return apperrors.InvalidInput("at least one cart id is required")
	}

	if err := s.repo.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete carts: %w", err)
	}

	if err := s.producer.PublishCartDeleted(ctx, ids); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.deleted event",
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "carts deleted",
		slog.Int("count", len(ids)),
	)
	return nil
}
