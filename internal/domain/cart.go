package domain

import "time"

// Cart represents a shopping cart aggregate: the cart itself plus its owned
// line items, shipments and payments, treated as one consistency unit.
type Cart struct {
	ID            string     `json:"id"`
	StoreID       string     `json:"store_id"`
	CustomerID    string     `json:"customer_id"`
	Name          string     `json:"name"`
	Currency      string     `json:"currency"`
	LanguageCode  string     `json:"language_code,omitempty"`
	Items         []LineItem `json:"items"`
	Shipments     []Shipment `json:"shipments"`
	Payments      []Payment  `json:"payments"`
	Coupon        string     `json:"coupon,omitempty"`
	SubTotal      int64      `json:"sub_total"`
	ShippingTotal int64      `json:"shipping_total"`
	Total         int64      `json:"total"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// LineItem represents a single product line in the cart. Prices are in
// minor currency units (cents).
type LineItem struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	ImageURL  string `json:"image_url,omitempty"`
}

// SameIdentity reports whether two lines refer to the same purchasable item.
// Lines with equal identity are merged rather than duplicated.
func (li LineItem) SameIdentity(other LineItem) bool {
	return li.ProductID == other.ProductID && li.SKU == other.SKU
}

// Shipment represents a delivery for (part of) the cart.
type Shipment struct {
	ID           string `json:"id"`
	MethodCode   string `json:"method_code"`
	Price        int64  `json:"price"`
	Currency     string `json:"currency"`
	RecipientZip string `json:"recipient_zip,omitempty"`
}

// Payment represents an intended payment against the cart.
type Payment struct {
	ID          string `json:"id"`
	GatewayCode string `json:"gateway_code"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// OwnerKey identifies the (store, customer, name, currency) tuple a cart
// belongs to. Two requests address the same unsaved cart iff their tuples
// are equal.
type OwnerKey struct {
	StoreID    string
	CustomerID string
	Name       string
	Currency   string
}

// SearchCriteria filters carts in a search request. Empty fields match
// everything.
type SearchCriteria struct {
	StoreID    string `json:"store_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Currency   string `json:"currency,omitempty"`
	Keyword    string `json:"keyword,omitempty"`
}

// FindItemIndex returns the index of the line with the given ID, or -1.
func (c *Cart) FindItemIndex(lineItemID string) int {
	for i := range c.Items {
		if c.Items[i].ID == lineItemID {
			return i
		}
	}
	return -1
}

// FindMatchingItemIndex returns the index of the line sharing the given
// line's item identity, or -1.
func (c *Cart) FindMatchingItemIndex(item LineItem) int {
	for i := range c.Items {
		if c.Items[i].SameIdentity(item) {
			return i
		}
	}
	return -1
}

// ItemCount returns the number of distinct lines in the cart.
func (c *Cart) ItemCount() int {
	return len(c.Items)
}

// TotalQuantity returns the summed quantity across all lines.
func (c *Cart) TotalQuantity() int {
	var n int
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// OwnerKey returns the tuple identifying the cart's owner.
func (c *Cart) OwnerKey() OwnerKey {
	return OwnerKey{
		StoreID:    c.StoreID,
		CustomerID: c.CustomerID,
		Name:       c.Name,
		Currency:   c.Currency,
	}
}

// RecalculateTotals recomputes the derived totals from the item and shipment
// lists. Called after every mutation so every persisted cart is
// self-consistent.
func (c *Cart) RecalculateTotals() {
	var sub int64
	for _, item := range c.Items {
		sub += item.Price * int64(item.Quantity)
	}
	var shipping int64
	for _, s := range c.Shipments {
		shipping += s.Price
	}
	c.SubTotal = sub
	c.ShippingTotal = shipping
	c.Total = sub + shipping
}

// Matches reports whether the cart satisfies the search criteria.
func (c *Cart) Matches(criteria SearchCriteria) bool {
	if criteria.StoreID != "" && c.StoreID != criteria.StoreID {
		return false
	}
	if criteria.CustomerID != "" && c.CustomerID != criteria.CustomerID {
		return false
	}
	if criteria.Name != "" && c.Name != criteria.Name {
		return false
	}
	if criteria.Currency != "" && c.Currency != criteria.Currency {
		return false
	}
	if criteria.Keyword != "" {
		for _, item := range c.Items {
			if item.Name == criteria.Keyword || item.SKU == criteria.Keyword {
				return true
			}
		}
		return false
	}
	return true
}
