package dto

import (
	"time"

	"github.com/Additional-Code/procure/internal/entity"
)

// OrderResponse represents an order as exposed via transport layers.
// Monetary fields are fixed-point strings to keep exact decimal values on
// the wire.
type OrderResponse struct {
	ID          int64               `json:"id"`
	OrderNumber string              `json:"order_number"`
	Status      string              `json:"status"`
	TotalAmount string              `json:"total_amount"`
	Notes       string              `json:"notes,omitempty"`
	CreatedBy   int64               `json:"created_by"`
	Creator     *UserResponse       `json:"creator,omitempty"`
	ApprovedBy  *int64              `json:"approved_by"`
	Approver    *UserResponse       `json:"approver,omitempty"`
	ApprovedAt  *time.Time          `json:"approved_at"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Items       []OrderItemResponse `json:"items"`
	History     []HistoryResponse   `json:"status_history,omitempty"`
}

// OrderItemResponse represents one product line of an order.
type OrderItemResponse struct {
	ID          int64  `json:"id"`
	ProductName string `json:"product_name"`
	Description string `json:"description,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	TotalPrice  string `json:"total_price"`
}

// HistoryResponse represents one status transition ledger entry.
type HistoryResponse struct {
	ID         int64         `json:"id"`
	OrderID    int64         `json:"order_id"`
	FromStatus *string       `json:"from_status"`
	ToStatus   string        `json:"to_status"`
	ChangedBy  int64         `json:"changed_by"`
	Actor      *UserResponse `json:"actor,omitempty"`
	Comment    string        `json:"comment,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// UserResponse represents a resolved actor identity.
type UserResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// FromOrder maps an order aggregate onto its transport shape.
func FromOrder(order *entity.Order) OrderResponse {
	resp := OrderResponse{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status.String(),
		TotalAmount: order.TotalAmount.StringFixed(2),
		Notes:       order.Notes,
		CreatedBy:   order.CreatedBy,
		Creator:     fromUser(order.Creator),
		ApprovedBy:  order.ApprovedBy,
		Approver:    fromUser(order.Approver),
		ApprovedAt:  order.ApprovedAt,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
		Items:       make([]OrderItemResponse, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, FromOrderItem(item))
	}
	for _, entry := range order.History {
		resp.History = append(resp.History, FromHistory(entry))
	}
	return resp
}

// FromOrders maps a list of orders.
func FromOrders(orders []*entity.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, FromOrder(order))
	}
	return out
}

// FromOrderItem maps one line item.
func FromOrderItem(item *entity.OrderItem) OrderItemResponse {
	return OrderItemResponse{
		ID:          item.ID,
		ProductName: item.ProductName,
		Description: item.Description,
		Quantity:    item.Quantity,
		UnitPrice:   item.UnitPrice.StringFixed(2),
		TotalPrice:  item.TotalPrice.StringFixed(2),
	}
}

// FromHistory maps one ledger entry.
func FromHistory(entry *entity.OrderStatusHistory) HistoryResponse {
	resp := HistoryResponse{
		ID:        entry.ID,
		OrderID:   entry.OrderID,
		ToStatus:  entry.ToStatus.String(),
		ChangedBy: entry.ChangedBy,
		Actor:     fromUser(entry.Actor),
		Comment:   entry.Comment,
		CreatedAt: entry.CreatedAt,
	}
	if entry.FromStatus != nil {
		from := entry.FromStatus.String()
		resp.FromStatus = &from
	}
	return resp
}

// FromHistoryList maps a ledger in commit order.
func FromHistoryList(entries []*entity.OrderStatusHistory) []HistoryResponse {
	out := make([]HistoryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromHistory(entry))
	}
	return out
}

func fromUser(user *entity.User) *UserResponse {
	if user == nil {
		return nil
	}
	return &UserResponse{ID: user.ID, Name: user.Name, Email: user.Email}
}
