package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// OrderStatusHistory is one append-only ledger entry recording a status
// transition. Entries are written in the same transaction as the order change
// and are never updated or deleted.
type OrderStatusHistory struct {
	bun.BaseModel `bun:"table:order_status_history,alias:osh"`

	ID         int64     `bun:",pk,autoincrement"`
	OrderID    int64     `bun:"order_id,notnull"`
	FromStatus *Status   `bun:"from_status,nullzero"`
	ToStatus   Status    `bun:"to_status,notnull"`
	ChangedBy  int64     `bun:"changed_by,notnull"`
	Comment    string    `bun:"comment,nullzero"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`

	Actor *User `bun:"rel:belongs-to,join:changed_by=id"`
}

// NewHistoryEntry builds a ledger entry. from is nil for the creation record.
func NewHistoryEntry(orderID int64, from *Status, to Status, changedBy int64, comment string, now time.Time) *OrderStatusHistory {
	return &OrderStatusHistory{
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		ChangedBy:  changedBy,
		Comment:    comment,
		CreatedAt:  now,
	}
}
