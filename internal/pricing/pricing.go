package pricing

import (
	"context"

	"github.com/rownie/vc-module-cart/internal/domain"
)

// ShippingRate is a delivery option priced for a specific cart.
type ShippingRate struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
}

// PaymentMethod is a way the customer can pay for a cart.
type PaymentMethod struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

// RateProvider computes the shipping rates available for a cart.
type RateProvider interface {
	AvailableRates(ctx context.Context, cart *domain.Cart) ([]ShippingRate, error)
}

// MethodProvider lists the payment methods available for a cart.
type MethodProvider interface {
	AvailableMethods(ctx context.Context, cart *domain.Cart) ([]PaymentMethod, error)
}

// CouponValidator checks a coupon code against the promotion rules. A nil
// return means the code may be applied to the cart.
type CouponValidator interface {
	Validate(ctx context.Context, cart *domain.Cart, code string) error
}
