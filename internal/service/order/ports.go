package order

import (
	"context"

	"github.com/Additional-Code/procure/internal/entity"
)

// Repository is the persistence surface the lifecycle engine depends on.
// Multi-row writes (order + items + ledger entry) are committed atomically by
// the implementation; partial failure rolls everything back.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*entity.Order, error)
	GetDetailed(ctx context.Context, id int64) (*entity.Order, error)
	List(ctx context.Context) ([]*entity.Order, error)
	Count(ctx context.Context) (int64, error)
	ExistsByNumber(ctx context.Context, number string) (bool, error)
	CreateWithHistory(ctx context.Context, order *entity.Order, entry *entity.OrderStatusHistory) error
	Update(ctx context.Context, order *entity.Order) error
	UpdateWithHistory(ctx context.Context, order *entity.Order, entry *entity.OrderStatusHistory, from entity.Status) error
	ListHistory(ctx context.Context, orderID int64) ([]*entity.OrderStatusHistory, error)
	SoftDelete(ctx context.Context, id int64) error
	Restore(ctx context.Context, id int64) error
}
