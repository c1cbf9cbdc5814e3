package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rownie/vc-module-cart/internal/domain"
	"github.com/rownie/vc-module-cart/internal/pricing"
	"github.com/rownie/vc-module-cart/internal/repository"
)

// CartBuilder applies a chain of in-memory mutations to one loaded cart and
// collapses them into a single persistence call. Mutation methods return the
// builder for chaining; the first error stops the chain and is reported by
// Save. A builder is only valid while its caller holds the cart's lock.
type CartBuilder struct {
	cart    *domain.Cart
	repo    repository.CartRepository
	coupons pricing.CouponValidator
	err     error
}

// Cart returns the cart being built.
func (b *CartBuilder) Cart() *domain.Cart {
	return b.cart
}

// AddItem appends a line item, or merges it into an existing line with the
// same item identity by summing quantities.
func (b *CartBuilder) AddItem(item domain.LineItem) *CartBuilder {
	if b.err != nil {
		return b
	}
	if idx := b.cart.FindMatchingItemIndex(item); idx >= 0 {
		line := &b.cart.Items[idx]
		line.Quantity += item.Quantity
		// Refresh descriptive fields in case the catalog changed.
		line.Price = item.Price
		line.Name = item.Name
		line.ImageURL = item.ImageURL
	} else {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		b.cart.Items = append(b.cart.Items, item)
	}
	b.cart.RecalculateTotals()
	return b
}

// ChangeItemQuantity sets the quantity of the line with the given id.
// A quantity of zero or less removes the line. An absent line id is a
// silent no-op so retries stay idempotent.
func (b *CartBuilder) ChangeItemQuantity(lineItemID string, quantity int) *CartBuilder {
	if b.err != nil {
		return b
	}
	idx := b.cart.FindItemIndex(lineItemID)
	if idx < 0 {
		return b
	}
	if quantity <= 0 {
		b.cart.Items = append(b.cart.Items[:idx], b.cart.Items[idx+1:]...)
	} else {
		b.cart.Items[idx].Quantity = quantity
	}
	b.cart.RecalculateTotals()
	return b
}

// RemoveItem removes the line with the given id. An absent id is a silent
// no-op.
func (b *CartBuilder) RemoveItem(lineItemID string) *CartBuilder {
	if b.err != nil {
		return b
	}
	if idx := b.cart.FindItemIndex(lineItemID); idx >= 0 {
		b.cart.Items = append(b.cart.Items[:idx], b.cart.Items[idx+1:]...)
		b.cart.RecalculateTotals()
	}
	return b
}

// Clear empties the item list and drops the coupon. Shipments and payments
// stay; totals are recomputed over what remains.
func (b *CartBuilder) Clear() *CartBuilder {
	if b.err != nil {
		return b
	}
	b.cart.Items = []domain.LineItem{}
	b.cart.Coupon = ""
	b.cart.RecalculateTotals()
	return b
}

// MergeWithCart unions another cart into this one: lines with matching item
// identity sum their quantities, other lines are appended; shipments and
// payments are upserted by id; the target keeps its own coupon unless it has
// none and the source defines one. Merging is additive, so merging the same
// source twice doubles its quantities; callers must avoid double-merge.
func (b *CartBuilder) MergeWithCart(other *domain.Cart) *CartBuilder {
	if b.err != nil || other == nil {
		return b
	}
	for _, item := range other.Items {
		if idx := b.cart.FindMatchingItemIndex(item); idx >= 0 {
			b.cart.Items[idx].Quantity += item.Quantity
		} else {
			if item.ID == "" {
				item.ID = uuid.New().String()
			}
			b.cart.Items = append(b.cart.Items, item)
		}
	}
	for _, shipment := range other.Shipments {
		if shipment.ID == "" {
			shipment.ID = uuid.New().String()
		}
		b.upsertShipment(shipment)
	}
	for _, payment := range other.Payments {
		if payment.ID == "" {
			payment.ID = uuid.New().String()
		}
		b.upsertPayment(payment)
	}
	if b.cart.Coupon == "" {
		b.cart.Coupon = other.Coupon
	}
	b.cart.RecalculateTotals()
	return b
}

// AddCoupon validates the code against the promotion rules and applies it.
// A rejected code fails the chain; it is never silently ignored.
func (b *CartBuilder) AddCoupon(ctx context.Context, code string) *CartBuilder {
	if b.err != nil {
		return b
	}
	if err := b.coupons.Validate(ctx, b.cart, code); err != nil {
		b.err = err
		return b
	}
	b.cart.Coupon = code
	return b
}

// RemoveCoupon clears the applied coupon.
func (b *CartBuilder) RemoveCoupon() *CartBuilder {
	if b.err != nil {
		return b
	}
	b.cart.Coupon = ""
	return b
}

// AddOrUpdateShipment replaces the shipment with the same id, or appends.
func (b *CartBuilder) AddOrUpdateShipment(shipment domain.Shipment) *CartBuilder {
	if b.err != nil {
		return b
	}
	if shipment.ID == "" {
		shipment.ID = uuid.New().String()
	}
	b.upsertShipment(shipment)
	b.cart.RecalculateTotals()
	return b
}

// AddOrUpdatePayment replaces the payment with the same id, or appends.
func (b *CartBuilder) AddOrUpdatePayment(payment domain.Payment) *CartBuilder {
	if b.err != nil {
		return b
	}
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	b.upsertPayment(payment)
	return b
}

// Save persists the whole cart as one atomic call and returns it. If any
// step of the chain failed, Save reports that error and persists nothing.
func (b *CartBuilder) Save(ctx context.Context) (*domain.Cart, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.cart.UpdatedAt = time.Now().UTC()
	if err := b.repo.Save(ctx, b.cart); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	return b.cart, nil
}

func (b *CartBuilder) upsertShipment(shipment domain.Shipment) {
	for i := range b.cart.Shipments {
		if b.cart.Shipments[i].ID == shipment.ID {
			b.cart.Shipments[i] = shipment
			return
		}
	}
	b.cart.Shipments = append(b.cart.Shipments, shipment)
}

func (b *CartBuilder) upsertPayment(payment domain.Payment) {
	for i := range b.cart.Payments {
		if b.cart.Payments[i].ID == payment.ID {
			b.cart.Payments[i] = payment
			return
		}
	}
	b.cart.Payments = append(b.cart.Payments, payment)
}
