// Package static provides in-process pricing collaborators backed by fixed
// tables. Intended for development and single-tenant deployments; production
// installs swap in providers that call a real pricing engine.
package static

import (
	"context"

	apperrors "github.com/rownie/vc-module-cart/pkg/errors"
	"github.com/rownie/vc-module-cart/internal/domain"
	"github.com/rownie/vc-module-cart/internal/pricing"
)

// RateProvider returns a fixed rate table filtered by the cart's currency.
type RateProvider struct {
	rates []pricing.ShippingRate
}

// NewRateProvider creates a provider over the given rate table. With an
// empty table a small default set is used.
func NewRateProvider(rates []pricing.ShippingRate) *RateProvider {
	if len(rates) == 0 {
		rates = []pricing.ShippingRate{
			{Code: "ground", Name: "Ground", Price: 700, Currency: "USD"},
			{Code: "express", Name: "Express", Price: 1900, Currency: "USD"},
			{Code: "ground", Name: "Ground", Price: 800, Currency: "EUR"},
		}
	}
	return &RateProvider{rates: rates}
}

// AvailableRates returns the rates matching the cart's currency.
func (p *RateProvider) AvailableRates(_ context.Context, cart *domain.Cart) ([]pricing.ShippingRate, error) {
	matched := make([]pricing.ShippingRate, 0, len(p.rates))
	for _, rate := range p.rates {
		if rate.Currency == cart.Currency {
			matched = append(matched, rate)
		}
	}
	return matched, nil
}

// MethodProvider returns a fixed list of payment methods.
type MethodProvider struct {
	methods []pricing.PaymentMethod
}

// NewMethodProvider creates a provider over the given methods. With an empty
// list a small default set is used.
func NewMethodProvider(methods []pricing.PaymentMethod) *MethodProvider {
	if len(methods) == 0 {
		methods = []pricing.PaymentMethod{
			{Code: "card", Name: "Credit card", Priority: 1},
			{Code: "invoice", Name: "Invoice", Priority: 2},
		}
	}
	return &MethodProvider{methods: methods}
}

// AvailableMethods returns the configured payment methods.
func (p *MethodProvider) AvailableMethods(_ context.Context, _ *domain.Cart) ([]pricing.PaymentMethod, error) {
	return p.methods, nil
}

// CouponValidator accepts codes from a configured allow-list. With an empty
// list any non-empty code is accepted.
type CouponValidator struct {
	codes map[string]struct{}
}

// NewCouponValidator creates a validator over the given codes.
func NewCouponValidator(codes []string) *CouponValidator {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return &CouponValidator{codes: set}
}

// Validate rejects empty codes and, when an allow-list is configured, codes
// outside it.
func (v *CouponValidator) Validate(_ context.Context, _ *domain.Cart, code string) error {
	if code == "" {
		return apperrors.InvalidInput("coupon code is required")
	}
	if len(v.codes) == 0 {
		return nil
	}
	if _, ok := v.codes[code]; !ok {
		return apperrors.InvalidInput("coupon code " + code + " is not valid")
	}
	return nil
}
