package entity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLineTotal(t *testing.T) {
	tests := []struct {
		name      string
		quantity  int
		unitPrice string
		want      string
	}{
		{name: "whole units", quantity: 2, unitPrice: "100.00", want: "200.00"},
		{name: "single unit", quantity: 1, unitPrice: "50.00", want: "50.00"},
		{name: "cent precision", quantity: 3, unitPrice: "19.99", want: "59.97"},
		{name: "no float drift", quantity: 10, unitPrice: "0.10", want: "1.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LineTotal(tt.quantity, decimal.RequireFromString(tt.unitPrice))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestNewOrderItemDerivesTotal(t *testing.T) {
	item := NewOrderItem("Keyboard", "mechanical", 4, decimal.RequireFromString("75.50"))

	assert.Equal(t, "Keyboard", item.ProductName)
	assert.True(t, item.TotalPrice.Equal(decimal.RequireFromString("302.00")))
}

func TestOrderTotal(t *testing.T) {
	items := []*OrderItem{
		NewOrderItem("A", "", 2, decimal.RequireFromString("100.00")),
		NewOrderItem("B", "", 1, decimal.RequireFromString("50.00")),
	}
	assert.True(t, OrderTotal(items).Equal(decimal.RequireFromString("250.00")))

	assert.True(t, OrderTotal(nil).Equal(decimal.Zero))
}

func TestStatusAllows(t *testing.T) {
	assert.True(t, StatusDraft.Allows(TriggerSubmit))
	assert.True(t, StatusPendingApproval.Allows(TriggerApprove))
	assert.True(t, StatusPendingApproval.Allows(TriggerReject))

	assert.False(t, StatusDraft.Allows(TriggerApprove))
	assert.False(t, StatusApproved.Allows(TriggerSubmit))
	assert.False(t, StatusRejected.Allows(TriggerSubmit))
	assert.False(t, StatusApproved.Allows(TriggerReject))
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusDraft, StatusPendingApproval, StatusApproved, StatusRejected} {
		assert.True(t, s.Valid())
	}
	assert.False(t, Status("cancelled").Valid())
}
