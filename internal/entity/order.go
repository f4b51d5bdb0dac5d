package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Order represents a purchase order moving through the approval workflow.
// Its total always equals the sum of its item totals; both are rewritten in
// the same transaction whenever the item set changes.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID          int64           `bun:",pk,autoincrement"`
	OrderNumber string          `bun:"order_number,notnull"`
	Status      Status          `bun:"status,notnull"`
	TotalAmount decimal.Decimal `bun:"total_amount,notnull"`
	Notes       string          `bun:"notes,nullzero"`
	CreatedBy   int64           `bun:"created_by,notnull"`
	ApprovedBy  *int64          `bun:"approved_by,nullzero"`
	ApprovedAt  *time.Time      `bun:"approved_at,nullzero"`
	CreatedAt   time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time       `bun:"updated_at,nullzero"`
	DeletedAt   time.Time       `bun:"deleted_at,soft_delete,nullzero"`

	Items    []*OrderItem          `bun:"rel:has-many,join:id=order_id"`
	History  []*OrderStatusHistory `bun:"rel:has-many,join:id=order_id"`
	Creator  *User                 `bun:"rel:belongs-to,join:created_by=id"`
	Approver *User                 `bun:"rel:belongs-to,join:approved_by=id"`
}

// NewOrder constructs a draft order owned by the creating user. The item set
// must be non-empty; the total is derived from it.
func NewOrder(orderNumber, notes string, items []*OrderItem, createdBy int64, now time.Time) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	return &Order{
		OrderNumber: orderNumber,
		Status:      StatusDraft,
		TotalAmount: OrderTotal(items),
		Notes:       notes,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
		Items:       items,
	}, nil
}

// RequiresApproval reports whether the order total meets the threshold above
// which explicit approval is needed.
func (o *Order) RequiresApproval(threshold decimal.Decimal) bool {
	return o.TotalAmount.GreaterThanOrEqual(threshold)
}

// CanBeModified reports whether notes and items may still be replaced.
// Rejected orders remain editable so they can be reworked.
func (o *Order) CanBeModified() bool {
	return o.Status != StatusApproved
}

// Deleted reports whether the order carries the soft-deletion marker.
func (o *Order) Deleted() bool {
	return !o.DeletedAt.IsZero()
}

// ReplaceItems swaps the full item set and recomputes the total. Editing never
// changes status; a reworked order must be resubmitted explicitly.
func (o *Order) ReplaceItems(items []*OrderItem, notes string, now time.Time) error {
	if !o.CanBeModified() {
		return ErrImmutableState
	}
	if len(items) == 0 {
		return ErrEmptyOrder
	}
	for _, item := range items {
		item.OrderID = o.ID
	}
	o.Items = items
	o.TotalAmount = OrderTotal(items)
	o.Notes = notes
	o.UpdatedAt = now
	return nil
}

// Submit moves a draft order into the pipeline. Orders below the approval
// threshold are auto-approved with the submitting actor as approver; the rest
// wait in pending_approval. Returns the originating status for the ledger.
func (o *Order) Submit(actorID int64, threshold decimal.Decimal, now time.Time) (Status, error) {
	if !o.Status.Allows(TriggerSubmit) {
		return "", &InvalidTransitionError{Trigger: TriggerSubmit, From: o.Status}
	}
	if len(o.Items) == 0 {
		return "", ErrEmptyOrder
	}

	from := o.Status
	if o.RequiresApproval(threshold) {
		o.Status = StatusPendingApproval
	} else {
		o.Status = StatusApproved
		o.ApprovedBy = &actorID
		o.ApprovedAt = &now
	}
	o.UpdatedAt = now
	return from, nil
}

// Approve marks a pending order approved by the acting user.
func (o *Order) Approve(actorID int64, now time.Time) (Status, error) {
	if !o.Status.Allows(TriggerApprove) {
		return "", &InvalidTransitionError{Trigger: TriggerApprove, From: o.Status}
	}

	from := o.Status
	o.Status = StatusApproved
	o.ApprovedBy = &actorID
	o.ApprovedAt = &now
	o.UpdatedAt = now
	return from, nil
}

// Reject sends a pending order back for rework. The comment is mandatory so
// the ledger records why.
func (o *Order) Reject(comment string, now time.Time) (Status, error) {
	if !o.Status.Allows(TriggerReject) {
		return "", &InvalidTransitionError{Trigger: TriggerReject, From: o.Status}
	}
	if comment == "" {
		return "", ErrMissingComment
	}

	from := o.Status
	o.Status = StatusRejected
	o.UpdatedAt = now
	return from, nil
}
