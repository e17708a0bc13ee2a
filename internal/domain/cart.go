package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Pricing policy applied on every totals recompute.
var (
	TaxRate               = decimal.NewFromFloat(0.10)
	FreeShippingThreshold = decimal.NewFromInt(50)
	FlatShippingFee       = decimal.NewFromInt(5)
)

// DefaultCartTTL is how long an untouched cart survives before the sweeper purges it.
const DefaultCartTTL = 7 * 24 * time.Hour

// Variant identifies a product variation (size, color, ...). Stored serialized
// at the repository boundary, decoded before it crosses into any service.
type Variant struct {
	SKU     string            `json:"sku,omitempty" bson:"sku,omitempty"`
	Options map[string]string `json:"options,omitempty" bson:"options,omitempty"`
}

// Key returns a deterministic identity string so (productID, variant) upserts
// are stable regardless of map iteration order.
func (v *Variant) Key() string {
	if v == nil {
		return ""
	}
	keys := make([]string, 0, len(v.Options))
	for k := range v.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(v.SKU)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(v.Options[k])
	}
	return b.String()
}

// EncodeVariant serializes a variant for storage. Nil encodes to nil.
func EncodeVariant(v *Variant) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// DecodeVariant is the inverse of EncodeVariant.
func DecodeVariant(raw []byte) (*Variant, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v Variant
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode variant: %w", err)
	}
	return &v, nil
}

type CartItem struct {
	ProductID int64           `bson:"product_id" json:"product_id"`
	Quantity  int             `bson:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `bson:"unit_price" json:"unit_price"`
	Variant   *Variant        `bson:"variant,omitempty" json:"variant,omitempty"`
	AddedAt   time.Time       `bson:"added_at" json:"added_at"`
}

// LineTotal is unit price times quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Matches reports whether the item occupies the same (productID, variant) slot.
func (i CartItem) Matches(productID int64, variant *Variant) bool {
	return i.ProductID == productID && i.Variant.Key() == variant.Key()
}

// Cart is owned by exactly one of user / anonymous session, scoped to one
// website. Totals are derived and recomputed after every mutation.
type Cart struct {
	ID        string     `bson:"_id,omitempty" json:"id"`
	UserID    string     `bson:"user_id,omitempty" json:"user_id,omitempty"`
	SessionID string     `bson:"session_id,omitempty" json:"session_id,omitempty"`
	WebsiteID string     `bson:"website_id" json:"website_id"`
	Items     []CartItem `bson:"items" json:"items"`

	Subtotal decimal.Decimal `bson:"subtotal" json:"subtotal"`
	Tax      decimal.Decimal `bson:"tax" json:"tax"`
	Shipping decimal.Decimal `bson:"shipping" json:"shipping"`
	Discount decimal.Decimal `bson:"discount" json:"discount"`
	Total    decimal.Decimal `bson:"total" json:"total"`

	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// RecomputeTotals rederives subtotal, tax, shipping and total from the item
// lines. Idempotent; must run after every item mutation so totals are never
// stored stale.
func (c *Cart) RecomputeTotals() {
	subtotal := decimal.Zero
	for _, item := range c.Items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	c.Subtotal = subtotal
	c.Tax = subtotal.Mul(TaxRate)
	c.Shipping = ShippingFee(subtotal)
	c.Total = c.Subtotal.Add(c.Tax).Add(c.Shipping).Sub(c.Discount)
}

// ShippingFee applies the flat-fee policy: free above the threshold and for
// an empty subtotal, flat otherwise.
func ShippingFee(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(FreeShippingThreshold) || subtotal.IsZero() {
		return decimal.Zero
	}
	return FlatShippingFee
}

// UpsertItem adds the item or, when the (productID, variant) slot already
// exists, adds the quantity onto the existing line. Recomputes totals.
func (c *Cart) UpsertItem(item CartItem) {
	for i := range c.Items {
		if c.Items[i].Matches(item.ProductID, item.Variant) {
			c.Items[i].Quantity += item.Quantity
			c.RecomputeTotals()
			return
		}
	}
	c.Items = append(c.Items, item)
	c.RecomputeTotals()
}

// SetItemQuantity replaces the quantity for a line. Quantity <= 0 removes the
// line; that is documented policy, not an error.
func (c *Cart) SetItemQuantity(productID int64, variant *Variant, quantity int) bool {
	for i := range c.Items {
		if c.Items[i].Matches(productID, variant) {
			if quantity <= 0 {
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
			} else {
				c.Items[i].Quantity = quantity
			}
			c.RecomputeTotals()
			return true
		}
	}
	return false
}

// RemoveItem drops the line for the (productID, variant) slot.
func (c *Cart) RemoveItem(productID int64, variant *Variant) bool {
	return c.SetItemQuantity(productID, variant, 0)
}

// IsExpired checks if the cart has passed its expiry timestamp.
func (c *Cart) IsExpired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// ItemCount is the number of distinct lines; TotalQuantity sums all units.
func (c *Cart) ItemCount() int { return len(c.Items) }

func (c *Cart) TotalQuantity() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}
