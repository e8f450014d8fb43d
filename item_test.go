package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLineItem(t *testing.T) {
	item, err := NewLineItem(Fields{
		"name":        "Widget",
		"sku":         "W-1",
		"description": "blue",
		"quantity":    "2",
		"price":       "42.50",
	}, usd)
	require.NoError(t, err)
	assert.Equal(t, "Widget", item.Name())
	assert.Equal(t, "W-1", item.SKU())
	assert.Equal(t, "blue", item.Description())
	assert.Equal(t, int64(2), item.Quantity())
	assert.Equal(t, Money(4250), item.UnitPrice())
	assert.Equal(t, Money(8500), item.Total())
	assert.Equal(t, usd, item.Currency())
}

func TestNewLineItem_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		in    Fields
		field string
	}{
		{"missing name", Fields{"quantity": 1, "price": "1.00"}, "name"},
		{"blank name", Fields{"name": "  ", "quantity": 1, "price": "1.00"}, "name"},
		{"zero quantity", Fields{"name": "a", "quantity": 0, "price": "1.00"}, "quantity"},
		{"fractional quantity", Fields{"name": "a", "quantity": 1.5, "price": "1.00"}, "quantity"},
		{"missing price", Fields{"name": "a", "quantity": 1}, "price"},
		{"negative price", Fields{"name": "a", "quantity": 1, "price": "-1.00"}, "price"},
		{"currency mismatch", Fields{"name": "a", "quantity": 1, "price": "1.00", "currency": "EUR"}, "currency"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLineItem(tc.in, usd)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedInput)
			assert.Equal(t, tc.field, err.(*Error).Field)
		})
	}
}

func TestNewItemCollection(t *testing.T) {
	items, err := NewItemCollection([]Fields{
		{"name": "a", "quantity": 2, "price": "10.00"},
		{"name": "b", "quantity": 1, "price": "5.25"},
	}, usd)
	require.NoError(t, err)
	assert.Equal(t, 2, items.Len())
	assert.Equal(t, Money(2525), items.Subtotal())
	assert.Equal(t, "a", items.Items()[0].Name())
	assert.Equal(t, "b", items.Items()[1].Name())

	_, err = NewItemCollection([]Fields{
		{"name": "a", "quantity": 2, "price": "10.00"},
		{"name": "b", "quantity": 1, "price": "5.255"},
	}, usd)
	require.Error(t, err)
	assert.Equal(t, "items[1].price", err.(*Error).Field)
}

func TestNewItemCollection_Overflow(t *testing.T) {
	_, err := NewLineItem(Fields{"name": "a", "quantity": 3, "price": "50000000000000000.00"}, usd)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedInput)
	assert.Equal(t, "price", err.(*Error).Field)

	_, err = NewItemCollection([]Fields{
		{"name": "a", "quantity": 1, "price": "92233720368547758.07"},
		{"name": "b", "quantity": 1, "price": "0.01"},
	}, usd)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedInput)
	assert.Equal(t, "items[1].price", err.(*Error).Field)
}

func TestNewItemCollection_Empty(t *testing.T) {
	items, err := NewItemCollection(nil, usd)
	require.NoError(t, err)
	assert.Equal(t, 0, items.Len())
	assert.Equal(t, Money(0), items.Subtotal())
}

func TestNewTransaction(t *testing.T) {
	amount, err := NewAmount(usd, 1000, nil)
	require.NoError(t, err)

	_, err = NewTransaction(amount, ItemCollection{}, "desc", "  ")
	require.Error(t, err)
	assert.Equal(t, "invoice_number", err.(*Error).Field)

	eur := MustCurrency("EUR")
	items, err := NewItemCollection([]Fields{{"name": "a", "quantity": 1, "price": "10.00"}}, eur)
	require.NoError(t, err)
	_, err = NewTransaction(amount, items, "desc", "INV-1")
	require.Error(t, err)
	assert.Equal(t, "items", err.(*Error).Field)

	tx, err := NewTransaction(amount, ItemCollection{}, "desc", " INV-1 ")
	require.NoError(t, err)
	assert.Equal(t, "INV-1", tx.InvoiceNumber())
	assert.Equal(t, "desc", tx.Description())
	assert.True(t, tx.Amount().Equal(amount))
}
