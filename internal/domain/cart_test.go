package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(productID int64, qty int, price int64) CartItem {
	return CartItem{ProductID: productID, Quantity: qty, UnitPrice: decimal.NewFromInt(price)}
}

func TestRecomputeTotals_ScenarioFromPricingPolicy(t *testing.T) {
	// 2 x $10 + 1 x $20 => subtotal 40, tax 4, shipping 5 (under threshold), total 49
	c := &Cart{}
	c.UpsertItem(item(1, 2, 10))
	c.UpsertItem(item(2, 1, 20))

	assert.True(t, c.Subtotal.Equal(decimal.NewFromInt(40)), "subtotal = %s", c.Subtotal)
	assert.True(t, c.Tax.Equal(decimal.NewFromInt(4)), "tax = %s", c.Tax)
	assert.True(t, c.Shipping.Equal(decimal.NewFromInt(5)), "shipping = %s", c.Shipping)
	assert.True(t, c.Total.Equal(decimal.NewFromInt(49)), "total = %s", c.Total)
}

func TestRecomputeTotals_FreeShippingAtThreshold(t *testing.T) {
	c := &Cart{}
	c.UpsertItem(item(1, 5, 10)) // subtotal exactly 50

	assert.True(t, c.Shipping.IsZero())
	assert.True(t, c.Total.Equal(decimal.NewFromInt(55))) // 50 + 5 tax
}

func TestTotalsInvariantHoldsAfterEveryMutation(t *testing.T) {
	c := &Cart{Discount: decimal.NewFromInt(3)}

	checkInvariant := func() {
		t.Helper()
		want := c.Subtotal.Add(c.Tax).Add(c.Shipping).Sub(c.Discount)
		assert.True(t, c.Total.Equal(want), "total %s != %s", c.Total, want)
	}

	c.UpsertItem(item(1, 2, 10))
	checkInvariant()
	c.UpsertItem(item(2, 1, 20))
	checkInvariant()
	c.SetItemQuantity(1, nil, 5)
	checkInvariant()
	c.RemoveItem(2, nil)
	checkInvariant()
	c.RemoveItem(1, nil)
	checkInvariant()
}

func TestUpsertItem_AdditiveOnSameVariant(t *testing.T) {
	c := &Cart{}
	v := &Variant{Options: map[string]string{"size": "M", "color": "red"}}
	c.UpsertItem(CartItem{ProductID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(10), Variant: v})
	c.UpsertItem(CartItem{ProductID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(10), Variant: v})

	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)
}

func TestUpsertItem_DistinctVariantIsDistinctLine(t *testing.T) {
	c := &Cart{}
	c.UpsertItem(CartItem{ProductID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(10), Variant: &Variant{Options: map[string]string{"size": "M"}}})
	c.UpsertItem(CartItem{ProductID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(10), Variant: &Variant{Options: map[string]string{"size": "L"}}})

	assert.Len(t, c.Items, 2)
}

func TestSetItemQuantity_ZeroOrNegativeRemovesLine(t *testing.T) {
	buildCart := func() *Cart {
		c := &Cart{}
		c.UpsertItem(item(1, 2, 10))
		c.UpsertItem(item(2, 1, 20))
		return c
	}

	viaUpdate := buildCart()
	viaUpdate.SetItemQuantity(1, nil, 0)

	viaRemove := buildCart()
	viaRemove.RemoveItem(1, nil)

	assert.Equal(t, viaRemove.Items, viaUpdate.Items)
	assert.True(t, viaUpdate.Total.Equal(viaRemove.Total))
}

func TestVariantKey_DeterministicAcrossOptionOrder(t *testing.T) {
	a := &Variant{SKU: "X", Options: map[string]string{"size": "M", "color": "red"}}
	b := &Variant{SKU: "X", Options: map[string]string{"color": "red", "size": "M"}}
	assert.Equal(t, a.Key(), b.Key())

	var none *Variant
	assert.Equal(t, "", none.Key())
}

func TestVariantEncodeDecodeRoundTrip(t *testing.T) {
	raw, err := EncodeVariant(&Variant{SKU: "X", Options: map[string]string{"size": "M"}})
	require.NoError(t, err)

	v, err := DecodeVariant(raw)
	require.NoError(t, err)
	assert.Equal(t, "X", v.SKU)
	assert.Equal(t, "M", v.Options["size"])

	nilVariant, err := DecodeVariant(nil)
	require.NoError(t, err)
	assert.Nil(t, nilVariant)
}
