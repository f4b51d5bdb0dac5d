package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// OrderItem is one product line owned by an order. Items have no independent
// lifecycle: they are inserted and replaced only through their order.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID          int64           `bun:",pk,autoincrement"`
	OrderID     int64           `bun:"order_id"`
	ProductName string          `bun:"product_name,notnull"`
	Description string          `bun:"description,nullzero"`
	Quantity    int             `bun:"quantity,notnull"`
	UnitPrice   decimal.Decimal `bun:"unit_price,notnull"`
	TotalPrice  decimal.Decimal `bun:"total_price,notnull"`
	CreatedAt   time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time       `bun:"updated_at,nullzero"`
}

// NewOrderItem builds an item with its total derived from quantity and unit
// price. There is no other write path for the total.
func NewOrderItem(productName, description string, quantity int, unitPrice decimal.Decimal) *OrderItem {
	return &OrderItem{
		ProductName: productName,
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		TotalPrice:  LineTotal(quantity, unitPrice),
	}
}

// LineTotal computes quantity * unitPrice with exact decimal arithmetic.
func LineTotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// OrderTotal sums the line totals; zero for an empty set.
func OrderTotal(items []*OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.TotalPrice)
	}
	return total
}
